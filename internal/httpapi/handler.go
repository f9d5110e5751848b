// Package httpapi is the enqueue/admin HTTP surface: submission of new
// jobs onto the main queue, a health check, and operator review of the
// dead-letter queue.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/directorybolt/submission-pipeline/internal/domain"
)

// Queue is the subset of the queue the API drives.
type Queue interface {
	Send(ctx context.Context, body any) (string, error)
	ApproximateDepth(ctx context.Context) (int, error)
	PeekDeadLetter(ctx context.Context, dlqName string, limit int) ([]DeadLetterMessage, error)
	DiscardDeadLetter(ctx context.Context, messageID string) error
	RequeueFromDeadLetter(ctx context.Context, messageID, destQueueName string) (string, error)
}

// DeadLetterMessage is the minimal shape an admin listing needs.
type DeadLetterMessage struct {
	ID           string
	Body         json.RawMessage
	ReceiveCount int
}

// Server holds the HTTP API's dependencies.
type Server struct {
	queue       Queue
	queueName   string
	dlqName     string
	environment string
}

// NewServer builds a Server. environment is stored on the Server; Health
// reports its "environment" check as "ok" without reading it.
func NewServer(queue Queue, queueName, dlqName, environment string) *Server {
	return &Server{queue: queue, queueName: queueName, dlqName: dlqName, environment: environment}
}

type enqueueRequest struct {
	JobID       string         `json:"job_id"`
	CustomerID  string         `json:"customer_id"`
	PackageSize int            `json:"package_size"`
	Priority    int            `json:"priority"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

type enqueueResponse struct {
	JobID         string `json:"job_id"`
	MessageID     string `json:"message_id"`
	QueueProvider string `json:"queue_provider"`
	QueueURL      string `json:"queue_url"`
	Status        string `json:"status"`
}

// EnqueueJob handles POST /api/jobs/enqueue (spec §4.11).
func (s *Server) EnqueueJob(w http.ResponseWriter, r *http.Request) {
	var req enqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "malformed JSON body")
		return
	}

	if err := domain.ValidateJobDirectory(req.JobID, "_"); err != nil {
		FromDomainError(w, r, err)
		return
	}
	if req.CustomerID == "" {
		FromDomainError(w, r, &domain.ValidationError{Field: "customer_id", Reason: "must not be empty"})
		return
	}

	if s.queueName == "" {
		FromDomainError(w, r, domain.ErrQueueNotConfigured)
		return
	}

	body := map[string]any{
		"job_id":       req.JobID,
		"customer_id":  req.CustomerID,
		"package_size": domain.ValidatePackageSize(req.PackageSize, req.PackageSize != 0),
		"priority":     string(domain.NewPriorityFromInt(req.Priority)),
	}
	if req.Metadata != nil {
		body["metadata"] = req.Metadata
	}

	messageID, err := s.queue.Send(r.Context(), body)
	if err != nil {
		FromDomainError(w, r, fmt.Errorf("%w: %w", domain.ErrQueueSendFailed, err))
		return
	}

	slog.InfoContext(r.Context(), "enqueued job", "job_id", req.JobID, "message_id", messageID)

	OK(w, enqueueResponse{
		JobID:         req.JobID,
		MessageID:     messageID,
		QueueProvider: "postgres",
		QueueURL:      s.queueName,
		Status:        "queued",
	})
}

type healthResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks"`
	Timestamp string            `json:"timestamp"`
}

// Health handles GET /health. It never fails the HTTP call itself — a
// failing check is reported in the body with an "error" status, per the
// convention of keeping liveness probes fast and side-effect free.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{
		"environment": "ok",
		"auth":        "ok",
	}

	status := "healthy"
	if _, err := s.queue.ApproximateDepth(r.Context()); err != nil {
		checks["queue"] = "error"
		status = "degraded"
	} else {
		checks["queue"] = "ok"
	}

	OK(w, healthResponse{
		Status:    status,
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

type dlqListResponse struct {
	Messages []dlqMessageView `json:"messages"`
}

type dlqMessageView struct {
	MessageID    string          `json:"message_id"`
	Body         json.RawMessage `json:"body"`
	ReceiveCount int             `json:"receive_count"`
}

// ListDeadLetter handles GET /api/admin/dlq.
func (s *Server) ListDeadLetter(w http.ResponseWriter, r *http.Request) {
	messages, err := s.queue.PeekDeadLetter(r.Context(), s.dlqName, 50)
	if err != nil {
		InternalError(w, r, err)
		return
	}

	views := make([]dlqMessageView, len(messages))
	for i, m := range messages {
		views[i] = dlqMessageView{MessageID: m.ID, Body: m.Body, ReceiveCount: m.ReceiveCount}
	}
	OK(w, dlqListResponse{Messages: views})
}

type dlqActionResponse struct {
	MessageID    string `json:"message_id"`
	NewMessageID string `json:"new_message_id,omitempty"`
	Status       string `json:"status"`
}

// RetryDeadLetter handles POST /api/admin/dlq/{messageID}/retry: it
// re-enqueues the message onto the main queue.
func (s *Server) RetryDeadLetter(w http.ResponseWriter, r *http.Request, messageID string) {
	newID, err := s.queue.RequeueFromDeadLetter(r.Context(), messageID, s.queueName)
	if err != nil {
		InternalError(w, r, err)
		return
	}
	slog.InfoContext(r.Context(), "retried dead-letter message", "message_id", messageID, "new_message_id", newID)
	OK(w, dlqActionResponse{MessageID: messageID, NewMessageID: newID, Status: "requeued"})
}

// DiscardDeadLetter handles POST /api/admin/dlq/{messageID}/discard.
func (s *Server) DiscardDeadLetter(w http.ResponseWriter, r *http.Request, messageID string) {
	if err := s.queue.DiscardDeadLetter(r.Context(), messageID); err != nil {
		InternalError(w, r, err)
		return
	}
	slog.InfoContext(r.Context(), "discarded dead-letter message", "message_id", messageID)
	OK(w, dlqActionResponse{MessageID: messageID, Status: "discarded"})
}
