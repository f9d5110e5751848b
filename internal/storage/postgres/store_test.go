package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/directorybolt/submission-pipeline/internal/domain"
)

func insertTestJob(t *testing.T, s *Store, jobID string) {
	t.Helper()
	err := s.InsertJob(t.Context(), &domain.Job{
		ID:          jobID,
		CustomerID:  "cust-1",
		PackageSize: 1,
		Priority:    domain.PriorityStarter,
	}, []string{"yelp"})
	require.NoError(t, err)
}

// TestUpsertJobResult_OutcomeLadder exercises Invariant I2: the first write
// for an idempotency key inserts, a later write for the same key while
// non-terminal updates in place, and any write after a terminal status is
// suppressed as a duplicate rather than overwriting the terminal row.
func TestUpsertJobResult_OutcomeLadder(t *testing.T) {
	s, ctx := setupTestStore(t)
	insertTestJob(t, s, "job-1")

	outcome, err := s.UpsertJobResult(ctx, "job-1", "yelp", domain.ResultSubmitting, "key-1", nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeInserted, outcome)

	outcome, err = s.UpsertJobResult(ctx, "job-1", "yelp", domain.ResultSubmitting, "key-1", nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeUpdated, outcome, "a non-terminal row may be updated in place")

	outcome, err = s.UpsertJobResult(ctx, "job-1", "yelp", domain.ResultSubmitted, "key-1", nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeUpdated, outcome, "transitioning into a terminal status is itself an update")

	outcome, err = s.UpsertJobResult(ctx, "job-1", "yelp", domain.ResultSubmitting, "key-1", nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeDuplicateSuccess, outcome, "a terminal row must never be demoted back to submitting")

	counts, err := s.CountResultsByStatus(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, 1, counts[domain.ResultSubmitted], "the terminal row must still read back as submitted")
}

// TestUpsertJobResult_SkippedIsAlsoTerminal verifies the skipped branch of
// Invariant I2 is guarded the same way submitted is.
func TestUpsertJobResult_SkippedIsAlsoTerminal(t *testing.T) {
	s, ctx := setupTestStore(t)
	insertTestJob(t, s, "job-2")

	_, err := s.UpsertJobResult(ctx, "job-2", "yelp", domain.ResultSkipped, "key-2", nil, nil, nil)
	require.NoError(t, err)

	outcome, err := s.UpsertJobResult(ctx, "job-2", "yelp", domain.ResultFailed, "key-2", nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeDuplicateSuccess, outcome)
}

// TestFindStaleJobs_NoHeartbeatGatesOnStartedAt is the regression this test
// guards: a job that just transitioned to in_progress, before the worker's
// first heartbeat write, must not be reported stale on the very next sweep.
func TestFindStaleJobs_NoHeartbeatGatesOnStartedAt(t *testing.T) {
	s, ctx := setupTestStore(t)
	insertTestJob(t, s, "job-fresh")
	require.NoError(t, s.SetJobStatus(ctx, "job-fresh", domain.JobInProgress, nil))

	jobs, err := s.FindStaleJobs(ctx, 10*time.Minute)
	require.NoError(t, err)
	assert.Empty(t, jobs, "a job just marked in_progress with no heartbeat yet must not be stale")
}

// TestFindStaleJobs_NoHeartbeatPastThresholdIsStale covers the companion
// case: once started_at itself is older than the threshold, a missing
// heartbeat row is stale.
func TestFindStaleJobs_NoHeartbeatPastThresholdIsStale(t *testing.T) {
	s, ctx := setupTestStore(t)
	insertTestJob(t, s, "job-stuck")
	require.NoError(t, s.SetJobStatus(ctx, "job-stuck", domain.JobInProgress, nil))

	_, err := s.pool.Exec(ctx, `UPDATE jobs SET started_at = now() - interval '20 minutes' WHERE job_id = $1`, "job-stuck")
	require.NoError(t, err)

	jobs, err := s.FindStaleJobs(ctx, 10*time.Minute)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "job-stuck", jobs[0].ID)
}

// TestFindStaleJobs_StaleHeartbeatIsStale covers the heartbeat-present
// branch: a worker that stopped heartbeating past the threshold is stale
// regardless of started_at.
func TestFindStaleJobs_StaleHeartbeatIsStale(t *testing.T) {
	s, ctx := setupTestStore(t)
	insertTestJob(t, s, "job-dead-worker")
	require.NoError(t, s.SetJobStatus(ctx, "job-dead-worker", domain.JobInProgress, nil))

	err := s.UpsertWorkerHeartbeat(ctx, "worker-1", "main", domain.WorkerRunning, strPtr("job-dead-worker"), nil)
	require.NoError(t, err)
	_, err = s.pool.Exec(ctx, `UPDATE worker_heartbeats SET last_heartbeat = now() - interval '20 minutes' WHERE worker_id = $1`, "worker-1")
	require.NoError(t, err)

	jobs, err := s.FindStaleJobs(ctx, 10*time.Minute)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "job-dead-worker", jobs[0].ID)
}

func strPtr(s string) *string { return &s }
