// Package heartbeat implements the Heartbeat Emitter (C5, spec §4.5): a
// scoped liveness task tied to the lifetime of a single submission run.
package heartbeat

import (
	"context"
	"log/slog"
	"time"

	"github.com/directorybolt/submission-pipeline/internal/domain"
)

// Interval is the default period between heartbeat writes.
const Interval = 20 * time.Second

// Writer is the subset of the data access layer the emitter needs.
type Writer interface {
	UpsertWorkerHeartbeat(ctx context.Context, workerID, queue string, status domain.WorkerStatus, currentJobID *string, metadata map[string]any) error
}

// Emitter writes a heartbeat on a fixed interval for the life of a
// submission run, and one final idle heartbeat when the run ends.
type Emitter struct {
	store    Writer
	workerID string
	queue    string
}

// New returns an Emitter bound to a worker id and queue name; both are
// echoed into every heartbeat row.
func New(store Writer, workerID, queue string) *Emitter {
	return &Emitter{store: store, workerID: workerID, queue: queue}
}

// Run writes a running heartbeat immediately, then every Interval, until
// ctx is done. MUST NOT block submission teardown: callers spawn Run in
// its own goroutine and cancel ctx when the run completes (spec §4.5);
// Run always writes the final idle heartbeat before returning.
func (e *Emitter) Run(ctx context.Context, jobID, directory string) {
	metadata := map[string]any{"directory": directory}

	e.write(ctx, domain.WorkerRunning, &jobID, metadata)

	ticker := time.NewTicker(Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.writeFinal(jobID, directory)
			return
		case <-ticker.C:
			e.write(ctx, domain.WorkerRunning, &jobID, metadata)
		}
	}
}

func (e *Emitter) write(ctx context.Context, status domain.WorkerStatus, jobID *string, metadata map[string]any) {
	if err := e.store.UpsertWorkerHeartbeat(ctx, e.workerID, e.queue, status, jobID, metadata); err != nil {
		slog.ErrorContext(ctx, "failed to write heartbeat",
			"worker_id", e.workerID, "error", err)
	}
}

// writeFinal uses a background context since the run's own context is
// already cancelled by the time this fires.
func (e *Emitter) writeFinal(jobID, directory string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.store.UpsertWorkerHeartbeat(ctx, e.workerID, e.queue, domain.WorkerIdle, nil, map[string]any{"directory": directory}); err != nil {
		slog.ErrorContext(ctx, "failed to write final heartbeat",
			"worker_id", e.workerID, "error", err)
	}
}
