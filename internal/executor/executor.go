// Package executor is the Submission Executor (C4, spec §4.4): drives one
// plan to completion in a sandboxed browser session, with an AI
// form-mapping fallback when the plan ships no fill steps, and spawns
// heartbeat emission for the run's lifetime.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/directorybolt/submission-pipeline/internal/advisors"
	"github.com/directorybolt/submission-pipeline/internal/artifacts"
	"github.com/directorybolt/submission-pipeline/internal/domain"
)

// stepDelay is the fixed minimum wait between actions (spec §4.4: "≥500ms").
const stepDelay = 500 * time.Millisecond

var successIndicators = []string{"success", "thank you", "submitted", "received"}

// Outcome is RunPlan's result: always populated with a duration and
// response log, per spec §4.4 ("duration and a structured response log
// are always produced").
type Outcome struct {
	Status        domain.ResultStatus
	DurationMs    int64
	ScreenshotURI string
	ListingURL    string
	ResponseLog   map[string]any
	ErrorMessage  string
}

// Executor runs plans against a Driver, optionally consulting an
// advisors.FormFieldAdvisor and persisting screenshots via an
// artifacts.Store.
type Executor struct {
	driver    Driver
	artifacts artifacts.Store
	advisor   advisors.FormFieldAdvisor
}

// New builds an Executor. advisor may be advisors.NoOpFormFieldAdvisor{}.
func New(driver Driver, store artifacts.Store, advisor advisors.FormFieldAdvisor) *Executor {
	return &Executor{driver: driver, artifacts: store, advisor: advisor}
}

// RunPlan executes plan for (job, directory, business) and always returns
// an Outcome — it never returns a bare error, since a driver failure is
// itself a failed-status outcome (spec §4.4). startHeartbeat, if non-nil, is
// spawned for the lifetime of the run and cancelled on return.
func (e *Executor) RunPlan(ctx context.Context, jobID, directory string, plan *domain.Plan, business *domain.BusinessProfile, startHeartbeat func(context.Context)) *Outcome {
	start := time.Now()

	if startHeartbeat != nil {
		hbCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go startHeartbeat(hbCtx)
	}

	outcome, err := e.run(ctx, jobID, directory, plan, business)
	if err != nil {
		return &Outcome{
			Status:       domain.ResultFailed,
			DurationMs:   time.Since(start).Milliseconds(),
			ErrorMessage: err.Error(),
			ResponseLog:  map[string]any{"error": err.Error()},
		}
	}
	outcome.DurationMs = time.Since(start).Milliseconds()
	return outcome
}

func (e *Executor) run(ctx context.Context, jobID, directory string, plan *domain.Plan, business *domain.BusinessProfile) (*Outcome, error) {
	page, err := e.driver.NewPage(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open browser page: %w", err)
	}
	defer page.Close(ctx)

	steps := plan.Steps
	if !plan.HasFillSteps() && e.advisor != nil {
		steps = e.applyFormFieldAdvisor(ctx, page, directory, business, steps)
	}

	for _, step := range steps {
		if err := e.executeStep(ctx, page, step); err != nil {
			return nil, fmt.Errorf("step %q failed: %w", step.Action, err)
		}
		if err := sleepCtx(ctx, stepDelay); err != nil {
			return nil, err
		}
	}

	screenshot, err := page.Screenshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to capture screenshot: %w", err)
	}
	content, err := page.Content(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read final page content: %w", err)
	}
	finalURL := page.URL()

	screenshotURI := ""
	if e.artifacts != nil {
		key := fmt.Sprintf("%s/%s.png", jobID, directory)
		uri, err := e.artifacts.Put(ctx, key, "image/png", screenshot)
		if err == nil {
			screenshotURI = uri
		}
	}

	success := containsAny(strings.ToLower(content), successIndicators)
	status := domain.ResultSubmitted
	errMsg := ""
	if !success {
		status = domain.ResultFailed
		errMsg = "no success indicators"
	}

	return &Outcome{
		Status:        status,
		ScreenshotURI: screenshotURI,
		ListingURL:    finalURL,
		ErrorMessage:  errMsg,
		ResponseLog: map[string]any{
			"final_url":                finalURL,
			"steps_executed":           len(steps),
			"success_indicators_found": success,
		},
	}, nil
}

func (e *Executor) applyFormFieldAdvisor(ctx context.Context, page Page, directory string, business *domain.BusinessProfile, fallback []domain.Step) []domain.Step {
	if err := page.WaitForLoad(ctx); err != nil {
		return fallback
	}
	html, err := page.Content(ctx)
	if err != nil {
		return fallback
	}

	mappings, err := e.advisor.MapFields(ctx, page.URL(), html)
	if err != nil || len(mappings) == 0 {
		if err != nil {
			slog.WarnContext(ctx, "form field advisor failed, using plan steps", "directory", directory, "error", err)
		}
		return fallback
	}

	var aiSteps []domain.Step
	for _, m := range mappings {
		value := fieldValue(business, m.Field)
		if value == "" {
			continue
		}
		aiSteps = append(aiSteps, domain.Step{Action: domain.StepFill, Selector: m.Selector, Value: value})
	}
	if len(aiSteps) == 0 {
		return fallback
	}

	for _, s := range fallback {
		if s.Action != domain.StepFill {
			aiSteps = append(aiSteps, s)
		}
	}
	return aiSteps
}

func fieldValue(b *domain.BusinessProfile, field string) string {
	switch field {
	case "businessName":
		return b.Name
	case "email":
		return b.Email
	case "website":
		return b.Website
	case "description":
		return b.Description
	case "phone":
		return b.Phone
	default:
		return ""
	}
}

func (e *Executor) executeStep(ctx context.Context, page Page, step domain.Step) error {
	switch step.Action {
	case domain.StepGoto:
		return page.Goto(ctx, step.URL)
	case domain.StepFill:
		return page.Fill(ctx, step.Selector, step.Value)
	case domain.StepClick:
		return page.Click(ctx, step.Selector)
	case domain.StepWait:
		if step.Until == "networkidle" {
			return page.WaitForLoad(ctx)
		}
		seconds := step.Seconds
		if seconds <= 0 {
			seconds = 1
		}
		return sleepCtx(ctx, time.Duration(seconds*float64(time.Second)))
	case domain.StepSelect:
		return page.Select(ctx, step.Selector, step.Value)
	default:
		return fmt.Errorf("unknown action: %s", step.Action)
	}
}

// sleepCtx sleeps for d unless ctx is cancelled first, propagating flow
// cancellation into an in-flight directory task's step loop (spec §4.6
// "Cancellation and timeouts").
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}
