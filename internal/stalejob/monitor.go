// Package stalejob is the Stale Job Monitor (C9, spec §4.9): a periodic
// sweep that requeues jobs stuck in_progress with no live worker
// heartbeat, so a crashed worker's job is not silently lost.
package stalejob

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/directorybolt/submission-pipeline/internal/domain"
)

const (
	defaultPeriod          = 120 * time.Second
	defaultStaleThreshold  = 10 * time.Minute
	requeuedByStaleMonitor = "stale_job_monitor"
)

// Store is the subset of the data access layer the monitor needs.
type Store interface {
	FindStaleJobs(ctx context.Context, threshold time.Duration) ([]*domain.Job, error)
	SetJobStatus(ctx context.Context, jobID string, status domain.JobStatus, errMsg *string) error
	RecordHistory(ctx context.Context, jobID string, directory *string, event string, details map[string]any, workerID *string) error
}

// Queue is the subset of the queue the monitor requeues onto.
type Queue interface {
	Send(ctx context.Context, body any) (string, error)
}

// requeueMessage is the wire shape sent back onto the main queue (spec
// §4.9): retry_attempt, requeued_by, requeued_at and source are stamped
// onto the resubmitted message.
type requeueMessage struct {
	JobID        string `json:"job_id"`
	CustomerID   string `json:"customer_id"`
	PackageSize  int    `json:"package_size"`
	Priority     string `json:"priority"`
	RetryAttempt int    `json:"retry_attempt"`
	RequeuedBy   string `json:"requeued_by"`
	RequeuedAt   string `json:"requeued_at"`
	Source       string `json:"source"`
}

// Monitor periodically requeues stale jobs.
type Monitor struct {
	store     Store
	queue     Queue
	period    time.Duration
	threshold time.Duration
	workerID  string
}

// New builds a Monitor with spec-default tuning (120s period, 10-minute
// staleness threshold).
func New(store Store, queue Queue, workerID string) *Monitor {
	return &Monitor{store: store, queue: queue, period: defaultPeriod, threshold: defaultStaleThreshold, workerID: workerID}
}

// Run sweeps every m.period until ctx is cancelled. A single job's
// requeue failure is logged and does not interrupt the sweep (spec §4.9:
// "per-job failures are isolated; the loop continues").
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.period)
	defer ticker.Stop()

	m.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.sweep(ctx)
		}
	}
}

func (m *Monitor) sweep(ctx context.Context) {
	jobs, err := m.store.FindStaleJobs(ctx, m.threshold)
	if err != nil {
		slog.ErrorContext(ctx, "failed to query stale jobs", "error", err)
		return
	}
	if len(jobs) > 0 {
		slog.InfoContext(ctx, "found stale jobs", "count", len(jobs))
	}

	for _, job := range jobs {
		if err := m.requeue(ctx, job); err != nil {
			slog.ErrorContext(ctx, "failed to requeue stale job", "job_id", job.ID, "error", err)
		}
	}
}

func (m *Monitor) requeue(ctx context.Context, job *domain.Job) error {
	now := time.Now().UTC()
	msg := requeueMessage{
		JobID:        job.ID,
		CustomerID:   job.CustomerID,
		PackageSize:  job.PackageSize,
		Priority:     string(job.Priority),
		RetryAttempt: 1,
		RequeuedBy:   requeuedByStaleMonitor,
		RequeuedAt:   now.Format(time.RFC3339),
		Source:       requeuedByStaleMonitor,
	}

	messageID, err := m.queue.Send(ctx, msg)
	if err != nil {
		return fmt.Errorf("failed to send requeue message: %w", err)
	}

	if err := m.store.SetJobStatus(ctx, job.ID, domain.JobPending, nil); err != nil {
		return fmt.Errorf("failed to reset job status to pending: %w", err)
	}

	if err := m.store.RecordHistory(ctx, job.ID, nil, "requeued_stale", map[string]any{
		"message_id":  messageID,
		"requeued_by": requeuedByStaleMonitor,
	}, &m.workerID); err != nil {
		slog.WarnContext(ctx, "failed to record stale requeue history", "job_id", job.ID, "error", err)
	}

	slog.InfoContext(ctx, "requeued stale job", "job_id", job.ID, "message_id", messageID)
	return nil
}
