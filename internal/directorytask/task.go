// Package directorytask is the Directory Task (C6, spec §4.6): a single
// (job, directory) attempt — idempotency preflight, plan fetch, rate-limit
// sleep, execute, record — retried up to 3 times with backoff under a
// per-attempt deadline.
package directorytask

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/directorybolt/submission-pipeline/internal/advisors"
	"github.com/directorybolt/submission-pipeline/internal/domain"
	"github.com/directorybolt/submission-pipeline/internal/executor"
	"github.com/directorybolt/submission-pipeline/internal/heartbeat"
	"github.com/directorybolt/submission-pipeline/internal/idempotency"
	"github.com/directorybolt/submission-pipeline/internal/planner"
	"github.com/directorybolt/submission-pipeline/internal/ptr"
	"github.com/directorybolt/submission-pipeline/internal/retry"
)

const (
	maxAttempts     = 3
	baseDelay       = 30 * time.Second
	maxDelay        = 480 * time.Second
	attemptDeadline = 480 * time.Second
)

// Store is the subset of the C2 data access layer the task needs. It
// embeds heartbeat.Writer so a Task can hand its store straight to the
// heartbeat emitter it spawns per attempt.
type Store interface {
	heartbeat.Writer
	GetBusinessProfile(ctx context.Context, jobID string) (*domain.BusinessProfile, error)
	UpsertJobResult(ctx context.Context, jobID, directory string, status domain.ResultStatus, idemKey string, payload, responseLog map[string]any, errMsg *string) (domain.UpsertOutcome, error)
	RecordHistory(ctx context.Context, jobID string, directory *string, event string, details map[string]any, workerID *string) error
}

// Task runs SubmitDirectory for one (job, directory) pair.
type Task struct {
	store    Store
	planner  *planner.Client
	executor *executor.Executor
	advisors advisors.Set
	workerID string
}

// New builds a Task. advisorSet should be advisors.DefaultSet() when no
// real collaborators are wired.
func New(store Store, planClient *planner.Client, exec *executor.Executor, advisorSet advisors.Set, workerID string) *Task {
	return &Task{store: store, planner: planClient, executor: exec, advisors: advisorSet, workerID: workerID}
}

// Result mirrors spec §4.6's SubmitDirectory contract.
type Result struct {
	Status     domain.ResultStatus
	Directory  string
	DurationMs int64
}

// SubmitDirectory executes the full directory-task algorithm (spec §4.6
// steps 1-11), retrying executor failures up to maxAttempts with
// exponential backoff, each attempt bounded by attemptDeadline.
func (t *Task) SubmitDirectory(ctx context.Context, job *domain.Job, directory string, priority domain.Priority) Result {
	start := time.Now()

	if err := domain.ValidateJobDirectory(job.ID, directory); err != nil {
		return Result{Status: domain.ResultFailed, Directory: directory, DurationMs: time.Since(start).Milliseconds()}
	}
	directory = domain.NormalizeDirectory(directory)

	business, err := t.store.GetBusinessProfile(ctx, job.ID)
	if err != nil {
		t.store.RecordHistory(ctx, job.ID, ptr.To(directory), "error_no_profile", map[string]any{"error": err.Error()}, ptr.To(t.workerID))
		return Result{Status: domain.ResultFailed, Directory: directory, DurationMs: time.Since(start).Milliseconds()}
	}

	business = t.maybeRewriteContent(ctx, directory, business)

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, attemptDeadline)
		status, failed := t.attempt(attemptCtx, job, directory, priority, business)
		cancel()

		if !failed {
			return Result{Status: status, Directory: directory, DurationMs: time.Since(start).Milliseconds()}
		}
		lastErr = fmt.Errorf("attempt %d/%d failed", attempt, maxAttempts)

		if t.advisors.Retry != nil {
			rec, err := t.advisors.Retry.Advise(ctx, directory, lastErr)
			if err != nil {
				slog.WarnContext(ctx, "retry advisor failed, using default retry policy", "job_id", job.ID, "directory", directory, "error", err)
			} else if rec != nil && !rec.ShouldRetry {
				break
			}
		}
		if attempt < maxAttempts {
			delay := retry.Delay(attempt, retry.Config{BaseDelay: baseDelay, MaxDelay: maxDelay, MaxRetries: maxAttempts})
			select {
			case <-ctx.Done():
				return Result{Status: domain.ResultFailed, Directory: directory, DurationMs: time.Since(start).Milliseconds()}
			case <-time.After(delay):
			}
		}
	}

	slog.ErrorContext(ctx, "directory task exhausted retries", "job_id", job.ID, "directory", directory, "error", lastErr)
	return Result{Status: domain.ResultFailed, Directory: directory, DurationMs: time.Since(start).Milliseconds()}
}

// attempt runs steps 4-10 of spec §4.6 once. The bool return reports
// whether the attempt failed in a way eligible for outer retry: a
// retryable planner error, a failed preflight upsert, a cancelled
// rate-limit wait, or a failed executor outcome. A skipped or submitted
// result, or a non-retryable planner error, returns false.
func (t *Task) attempt(ctx context.Context, job *domain.Job, directory string, priority domain.Priority, business *domain.BusinessProfile) (domain.ResultStatus, bool) {
	plan, err := t.planner.GetPlan(ctx, directory, business, nil)
	if err != nil {
		if domain.IsRetryable(err) {
			return domain.ResultFailed, true
		}
		t.store.RecordHistory(ctx, job.ID, ptr.To(directory), "error_plan_unavailable", map[string]any{"error": err.Error()}, ptr.To(t.workerID))
		return domain.ResultFailed, false
	}

	factors := idempotencyFactors(plan, directory, business)
	idemKey := idempotency.Key(job.ID, directory, factors)

	outcome, err := t.store.UpsertJobResult(ctx, job.ID, directory, domain.ResultSubmitting, idemKey, nil, nil, nil)
	if err != nil {
		return domain.ResultFailed, true
	}
	if outcome == domain.OutcomeDuplicateSuccess {
		t.store.RecordHistory(ctx, job.ID, ptr.To(directory), "skipped_duplicate", map[string]any{"idempotency_key": idemKey}, ptr.To(t.workerID))
		return domain.ResultSkipped, false
	}

	delay := rateLimitDelay(plan.Constraints.RateLimitMs, priority)
	select {
	case <-ctx.Done():
		return domain.ResultFailed, true
	case <-time.After(delay):
	}

	hb := heartbeat.New(t.store, t.workerID, "default")
	result := t.executor.RunPlan(ctx, job.ID, directory, plan, business, func(hbCtx context.Context) {
		hb.Run(hbCtx, job.ID, directory)
	})

	var errMsg *string
	if result.ErrorMessage != "" {
		errMsg = ptr.To(result.ErrorMessage)
	}
	if _, err := t.store.UpsertJobResult(ctx, job.ID, directory, result.Status, idemKey, nil, result.ResponseLog, errMsg); err != nil {
		slog.ErrorContext(ctx, "failed to record final directory result", "job_id", job.ID, "directory", directory, "error", err)
	}

	t.store.RecordHistory(ctx, job.ID, ptr.To(directory), "directory_submitted", map[string]any{
		"status":      string(result.Status),
		"duration_ms": result.DurationMs,
		"screenshot":  result.ScreenshotURI,
		"listing_url": result.ListingURL,
	}, ptr.To(t.workerID))

	if result.Status == domain.ResultFailed {
		return domain.ResultFailed, true
	}
	return result.Status, false
}

func (t *Task) maybeRewriteContent(ctx context.Context, directory string, business *domain.BusinessProfile) *domain.BusinessProfile {
	if t.advisors.Content == nil {
		return business
	}
	rewritten, err := t.advisors.Content.Rewrite(ctx, directory, business)
	if err != nil || rewritten == nil {
		if err != nil {
			slog.WarnContext(ctx, "content advisor failed, using original business profile", "directory", directory, "error", err)
		}
		return business
	}
	return rewritten
}

// idempotencyFactors derives the factor map from the plan's own
// idempotency_factors when present, else defaults to {name, directory}
// (spec §4.6 step 4).
func idempotencyFactors(plan *domain.Plan, directory string, business *domain.BusinessProfile) map[string]any {
	if len(plan.IdempotencyFactors) > 0 {
		factors := make(map[string]any, len(plan.IdempotencyFactors))
		for k, v := range plan.IdempotencyFactors {
			factors[k] = v
		}
		return factors
	}
	return map[string]any{"name": business.Name, "directory": directory}
}

// rateLimitDelay applies the priority-scaled rate-limit delay (spec §4.6
// step 7): k = 0.5 for enterprise (floor 500ms), 1.0 for pro, 1.5 for
// starter.
func rateLimitDelay(rateLimitMs int, priority domain.Priority) time.Duration {
	scaled := float64(rateLimitMs) * priority.RateLimitScale()
	d := time.Duration(scaled) * time.Millisecond
	if priority == domain.PriorityEnterprise && d < 500*time.Millisecond {
		d = 500 * time.Millisecond
	}
	return d
}
