package heartbeat

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/directorybolt/submission-pipeline/internal/domain"
)

type fakeWriter struct {
	mu     sync.Mutex
	writes []write
}

type write struct {
	status domain.WorkerStatus
	jobID  *string
}

func (f *fakeWriter) UpsertWorkerHeartbeat(_ context.Context, _, _ string, status domain.WorkerStatus, currentJobID *string, _ map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, write{status: status, jobID: currentJobID})
	return nil
}

func (f *fakeWriter) snapshot() []write {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]write, len(f.writes))
	copy(out, f.writes)
	return out
}

// TestRun_WritesRunningImmediatelyThenIdleOnCancel covers spec §4.5: an
// immediate running heartbeat, then a final idle heartbeat once the run's
// context is cancelled.
func TestRun_WritesRunningImmediatelyThenIdleOnCancel(t *testing.T) {
	w := &fakeWriter{}
	e := New(w, "worker-1", "main")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		e.Run(ctx, "job-1", "yelp")
		close(done)
	}()

	require.Eventually(t, func() bool { return len(w.snapshot()) >= 1 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancellation")
	}

	writes := w.snapshot()
	require.Len(t, writes, 2, "expected the initial running heartbeat plus the final idle heartbeat")
	assert.Equal(t, domain.WorkerRunning, writes[0].status)
	require.NotNil(t, writes[0].jobID)
	assert.Equal(t, "job-1", *writes[0].jobID)

	assert.Equal(t, domain.WorkerIdle, writes[1].status)
	assert.Nil(t, writes[1].jobID, "the final idle heartbeat must clear current_job_id")
}
