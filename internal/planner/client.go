// Package planner is the Plan Provider Client (C3, spec §4.3): a
// synchronous HTTP request/response call to the planning service for one
// (directory, business) pair, with local retry on transport errors and
// 5xx responses.
package planner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/directorybolt/submission-pipeline/internal/domain"
)

// Client requests submission plans from the external planning service.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Config controls the client's endpoint and timeout. Timeout bounds the
// whole call, retries and backoff waits included.
type Config struct {
	URL     string
	Timeout time.Duration
}

// New builds a Client whose underlying transport retries up to 3 times
// with exponential backoff on connection failures, 5xx responses other
// than 501, and 429; it does not retry any other 4xx, since those
// indicate a malformed request rather than a transient fault.
func New(cfg Config) *Client {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 3
	retryClient.RetryWaitMin = 500 * time.Millisecond
	retryClient.RetryWaitMax = 4 * time.Second
	retryClient.Logger = nil

	std := retryClient.StandardClient()
	std.Timeout = cfg.Timeout

	return &Client{
		baseURL:    cfg.URL,
		httpClient: std,
	}
}

type businessPayload struct {
	Name        string   `json:"name"`
	Phone       string   `json:"phone"`
	Address     string   `json:"address"`
	City        string   `json:"city"`
	State       string   `json:"state"`
	Zip         string   `json:"zip"`
	Website     string   `json:"website"`
	Email       string   `json:"email"`
	Description string   `json:"description"`
	Categories  []string `json:"categories"`
}

type hintsPayload struct {
	LastKnownFields map[string]string `json:"lastKnownFields"`
}

type planRequest struct {
	Directory string          `json:"directory"`
	Business  businessPayload `json:"business"`
	Hints     hintsPayload    `json:"hints"`
}

// GetPlan requests the submission plan for directory given business (spec
// §4.3). On transport exhaustion it returns a TransientError wrapping
// domain.ErrPlanUnavailable, which the directory task (C6) surfaces as a
// PlanUnavailable failure.
func (c *Client) GetPlan(ctx context.Context, directory string, business *domain.BusinessProfile, lastKnownFields map[string]string) (*domain.Plan, error) {
	req := planRequest{
		Directory: directory,
		Business: businessPayload{
			Name:        business.Name,
			Phone:       business.Phone,
			Address:     business.Address,
			City:        business.City,
			State:       business.State,
			Zip:         business.Zip,
			Website:     business.Website,
			Email:       business.Email,
			Description: business.Description,
			Categories:  []string{business.Category},
		},
		Hints: hintsPayload{LastKnownFields: lastKnownFields},
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal plan request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/plan", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build plan request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, domain.Transient(fmt.Errorf("%w: %w", domain.ErrPlanUnavailable, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, domain.Transient(fmt.Errorf("%w: planner returned %d", domain.ErrPlanUnavailable, resp.StatusCode))
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: planner rejected request with %d", domain.ErrPlanUnavailable, resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.Transient(fmt.Errorf("failed to read plan response: %w", err))
	}

	var plan domain.Plan
	if err := json.Unmarshal(raw, &plan); err != nil {
		return nil, fmt.Errorf("failed to decode plan response: %w", err)
	}
	return &plan, nil
}
