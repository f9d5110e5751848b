// Package subscriber is the Queue Subscriber (C8, spec §4.8): a
// long-polling loop over the main queue that validates each message,
// dispatches it to the job flow, and deletes it only once dispatch has
// been accepted.
package subscriber

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/directorybolt/submission-pipeline/internal/domain"
)

const (
	defaultVisibilityTimeout = 600
	defaultBatchSize         = 5
	defaultWaitSeconds       = 20
	dlqReceiveThreshold      = 3
	maxConsecutiveErrors     = 10
)

// Queue is the subset of the Postgres-backed queue the subscriber drives.
type Queue interface {
	Receive(ctx context.Context, batchSize, visibilityTimeoutSeconds int) ([]Message, error)
	Delete(ctx context.Context, messageID string) error
	MoveToDeadLetter(ctx context.Context, dlqName, messageID, reason string) error
}

// Message mirrors queue/postgres.Message without importing it directly,
// so this package stays independent of the queue's storage backend.
type Message struct {
	ID           string
	Body         []byte
	ReceiveCount int
}

// Dispatcher hands a validated job off to be processed. The job flow runs
// in-process (spec §9 Design Notes: "the subscriber owns the job flow's
// lifetime; no separate worker pool process exists for it"), so dispatch
// is fire-and-forget from the subscriber's point of view.
type Dispatcher interface {
	Dispatch(ctx context.Context, job *domain.Job)
}

// Subscriber runs the long-polling receive loop.
type Subscriber struct {
	queue      Queue
	dispatcher Dispatcher
	dlqName    string

	batchSize         int
	waitSeconds       int
	visibilityTimeout int
}

// New builds a Subscriber with spec-default tuning (batch 5, 20s wait,
// 600s visibility timeout).
func New(queue Queue, dispatcher Dispatcher, dlqName string) *Subscriber {
	return &Subscriber{
		queue:             queue,
		dispatcher:        dispatcher,
		dlqName:           dlqName,
		batchSize:         defaultBatchSize,
		waitSeconds:       defaultWaitSeconds,
		visibilityTimeout: defaultVisibilityTimeout,
	}
}

// messageBody mirrors the queue wire format (spec §4.8 step 1).
type messageBody struct {
	JobID       string `json:"job_id"`
	CustomerID  string `json:"customer_id"`
	PackageSize *int   `json:"package_size"`
	Priority    string `json:"priority"`
}

// Run polls until ctx is cancelled, validating and dispatching each
// received message; it tracks consecutive receive errors and stops once
// maxConsecutiveErrors is reached (spec §4.8's circuit breaker).
func (s *Subscriber) Run(ctx context.Context) error {
	consecutiveErrors := 0

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		messages, err := s.queue.Receive(ctx, s.batchSize, s.visibilityTimeout)
		if err != nil {
			consecutiveErrors++
			slog.ErrorContext(ctx, "failed to receive from queue", "error", err, "consecutive_errors", consecutiveErrors)
			if consecutiveErrors >= maxConsecutiveErrors {
				return fmt.Errorf("circuit breaker tripped after %d consecutive receive errors: %w", consecutiveErrors, err)
			}
			if !sleepCtx(ctx, time.Duration(s.waitSeconds)*time.Second) {
				return ctx.Err()
			}
			continue
		}
		consecutiveErrors = 0

		if len(messages) == 0 {
			if !sleepCtx(ctx, time.Duration(s.waitSeconds)*time.Second) {
				return ctx.Err()
			}
			continue
		}

		for _, m := range messages {
			s.handle(ctx, m)
		}
	}
}

func (s *Subscriber) handle(ctx context.Context, m Message) {
	if m.ReceiveCount > dlqReceiveThreshold {
		reason := fmt.Sprintf("exceeded max receive count (%d > %d)", m.ReceiveCount, dlqReceiveThreshold)
		if err := s.queue.MoveToDeadLetter(ctx, s.dlqName, m.ID, reason); err != nil {
			slog.ErrorContext(ctx, "failed to move message to dead letter queue", "message_id", m.ID, "error", err)
		}
		return
	}

	job, err := parseAndValidate(m.Body)
	if err != nil {
		reason := fmt.Sprintf("invalid message: %v", err)
		if err := s.queue.MoveToDeadLetter(ctx, s.dlqName, m.ID, reason); err != nil {
			slog.ErrorContext(ctx, "failed to move invalid message to dead letter queue", "message_id", m.ID, "error", err)
		}
		return
	}

	s.dispatcher.Dispatch(ctx, job)

	if err := s.queue.Delete(ctx, m.ID); err != nil {
		slog.ErrorContext(ctx, "failed to delete dispatched message", "message_id", m.ID, "job_id", job.ID, "error", err)
	}
}

// parseAndValidate decodes and normalizes a raw message body per spec
// §4.8 step 1: job_id and customer_id are required, package_size defaults
// to 50 when missing or negative, priority defaults to starter.
func parseAndValidate(raw []byte) (*domain.Job, error) {
	var body messageBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("failed to decode message body: %w", err)
	}
	if err := domain.ValidateJobDirectory(body.JobID, "_"); err != nil {
		return nil, fmt.Errorf("job_id: %w", err)
	}
	if body.CustomerID == "" {
		return nil, &domain.ValidationError{Field: "customer_id", Reason: "must not be empty"}
	}

	packageSize := 50
	if body.PackageSize != nil {
		packageSize = domain.ValidatePackageSize(*body.PackageSize, true)
	}

	return &domain.Job{
		ID:          body.JobID,
		CustomerID:  body.CustomerID,
		PackageSize: packageSize,
		Priority:    domain.NewPriority(body.Priority),
		Status:      domain.JobPending,
	}, nil
}

// sleepCtx returns false if ctx was cancelled before d elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
