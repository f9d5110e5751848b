// Package jobflow is the Job Flow (C7, spec §4.7): fans a job out into one
// directory task per directory, bounded by a worker pool, and finalizes
// the job once every child has settled.
package jobflow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/directorybolt/submission-pipeline/internal/advisors"
	"github.com/directorybolt/submission-pipeline/internal/directorytask"
	"github.com/directorybolt/submission-pipeline/internal/domain"
)

// Store is the subset of the C2 data access layer the flow needs directly
// (directory enumeration and job-level status/history); the per-directory
// work itself goes through directorytask.Task.
type Store interface {
	SetJobStatus(ctx context.Context, jobID string, status domain.JobStatus, errMsg *string) error
	RecordHistory(ctx context.Context, jobID string, directory *string, event string, details map[string]any, workerID *string) error
	GetDirectoriesForJob(ctx context.Context, jobID string) ([]string, error)
}

// Flow orchestrates ProcessJob over a bounded pool of directory tasks.
type Flow struct {
	store       Store
	task        *directorytask.Task
	advisors    advisors.Set
	concurrency int
	workerID    string
}

// New builds a Flow. concurrency bounds the number of directory tasks run
// at once (spec §5: "bounded by the orchestrator's worker pool").
func New(store Store, task *directorytask.Task, advisorSet advisors.Set, concurrency int, workerID string) *Flow {
	if concurrency <= 0 {
		concurrency = 5
	}
	return &Flow{store: store, task: task, advisors: advisorSet, concurrency: concurrency, workerID: workerID}
}

// Summary is ProcessJob's result (spec §4.7.1).
type Summary = domain.JobSummary

// ProcessJob runs the full C7 algorithm: mark in-progress, enumerate
// directories, fan out bounded by f.concurrency, await all, finalize.
func (f *Flow) ProcessJob(ctx context.Context, job *domain.Job) Summary {
	if job.ID == "" {
		return Summary{JobID: job.ID, Status: domain.JobFailed, Error: "invalid job id"}
	}

	if err := f.store.SetJobStatus(ctx, job.ID, domain.JobInProgress, nil); err != nil {
		slog.ErrorContext(ctx, "failed to mark job in_progress", "job_id", job.ID, "error", err)
	}
	f.store.RecordHistory(ctx, job.ID, nil, "job_started", map[string]any{"customer_id": job.CustomerID}, &f.workerID)

	directories, err := f.store.GetDirectoriesForJob(ctx, job.ID)
	if err != nil {
		errMsg := err.Error()
		f.finalize(ctx, job.ID, domain.JobFailed, &errMsg, 0, 0, 0, 0)
		return Summary{JobID: job.ID, Status: domain.JobFailed, Error: errMsg}
	}
	if len(directories) == 0 {
		reason := "no_directories"
		f.finalize(ctx, job.ID, domain.JobFailed, &reason, 0, 0, 0, 0)
		return Summary{JobID: job.ID, Status: domain.JobFailed, Error: reason}
	}

	directories = f.maybeReorder(ctx, job, directories)

	outcomes := f.fanOut(ctx, job, directories)

	return f.finalizeFromOutcomes(ctx, job.ID, outcomes)
}

func (f *Flow) maybeReorder(ctx context.Context, job *domain.Job, directories []string) []string {
	if f.advisors.Variant == nil {
		return directories
	}
	reordered, err := f.advisors.Variant.Reorder(ctx, directories, nil)
	if err != nil || len(reordered) != len(directories) {
		if err != nil {
			slog.WarnContext(ctx, "variant advisor failed, keeping original directory order", "job_id", job.ID, "error", err)
		}
		return directories
	}
	return reordered
}

// fanOut dispatches one directory task per directory, bounded by
// f.concurrency lightweight tasks (spec §5).
func (f *Flow) fanOut(ctx context.Context, job *domain.Job, directories []string) []domain.DirectoryOutcome {
	sem := make(chan struct{}, f.concurrency)
	outcomes := make([]domain.DirectoryOutcome, len(directories))

	var wg sync.WaitGroup
	for i, d := range directories {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, directory string) {
			defer wg.Done()
			defer func() { <-sem }()
			outcomes[i] = f.runOne(ctx, job, directory)
		}(i, d)
	}
	wg.Wait()
	return outcomes
}

// runOne recovers a directory task panic into a failed outcome (spec §4.7
// step 6: "a raised exception is aggregated as {status: failed, error}").
func (f *Flow) runOne(ctx context.Context, job *domain.Job, directory string) (outcome domain.DirectoryOutcome) {
	defer func() {
		if r := recover(); r != nil {
			outcome = domain.DirectoryOutcome{Directory: directory, Status: domain.ResultFailed, Error: fmt.Sprintf("panic: %v", r)}
		}
	}()

	result := f.task.SubmitDirectory(ctx, job, directory, job.Priority)
	return domain.DirectoryOutcome{
		Directory:  result.Directory,
		Status:     result.Status,
		DurationMs: result.DurationMs,
	}
}

// finalizeFromOutcomes implements spec §4.7.1.
func (f *Flow) finalizeFromOutcomes(ctx context.Context, jobID string, outcomes []domain.DirectoryOutcome) Summary {
	var submitted, failed, skipped int
	for _, o := range outcomes {
		switch o.Status {
		case domain.ResultSubmitted:
			submitted++
		case domain.ResultSkipped:
			skipped++
		default:
			failed++
		}
	}
	n := len(outcomes)

	var status domain.JobStatus
	var errMsg *string
	switch {
	case n == 0:
		status = domain.JobFailed
		reason := "no_results"
		errMsg = &reason
	case failed == n:
		status = domain.JobFailed
		reason := "All submissions failed"
		errMsg = &reason
	case submitted+skipped == n:
		status = domain.JobCompleted
	default:
		status = domain.JobCompleted
		reason := domain.FormatPartialFailure(failed, n)
		errMsg = &reason
	}

	f.finalize(ctx, jobID, status, errMsg, n, submitted, failed, skipped)

	summary := Summary{JobID: jobID, Total: n, Submitted: submitted, Failed: failed, Skipped: skipped, Status: status}
	if errMsg != nil {
		summary.Error = *errMsg
	}
	return summary
}

func (f *Flow) finalize(ctx context.Context, jobID string, status domain.JobStatus, errMsg *string, total, submitted, failed, skipped int) {
	if err := f.store.SetJobStatus(ctx, jobID, status, errMsg); err != nil {
		slog.ErrorContext(ctx, "failed to set final job status", "job_id", jobID, "error", err)
	}
	details := map[string]any{
		"total":     total,
		"submitted": submitted,
		"failed":    failed,
		"skipped":   skipped,
		"status":    string(status),
	}
	f.store.RecordHistory(ctx, jobID, nil, "job_finalized", details, &f.workerID)
}
