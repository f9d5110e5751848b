package stalejob

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/directorybolt/submission-pipeline/internal/domain"
)

type fakeStaleStore struct {
	stale       []*domain.Job
	findErr     error
	setStatuses map[string]domain.JobStatus
	historyEvts []string
}

func (f *fakeStaleStore) FindStaleJobs(_ context.Context, _ time.Duration) ([]*domain.Job, error) {
	return f.stale, f.findErr
}

func (f *fakeStaleStore) SetJobStatus(_ context.Context, jobID string, status domain.JobStatus, _ *string) error {
	if f.setStatuses == nil {
		f.setStatuses = map[string]domain.JobStatus{}
	}
	f.setStatuses[jobID] = status
	return nil
}

func (f *fakeStaleStore) RecordHistory(_ context.Context, _ string, _ *string, event string, _ map[string]any, _ *string) error {
	f.historyEvts = append(f.historyEvts, event)
	return nil
}

type fakeQueue struct {
	sent    []any
	sendErr error
}

func (f *fakeQueue) Send(_ context.Context, body any) (string, error) {
	if f.sendErr != nil {
		return "", f.sendErr
	}
	f.sent = append(f.sent, body)
	return "msg-1", nil
}

// TestRequeue_StampsSourceAndResetsJobToPending covers SPEC_FULL.md §12's
// source:"stale_job_monitor" promise and spec §4.9's pending-reset.
func TestRequeue_StampsSourceAndResetsJobToPending(t *testing.T) {
	store := &fakeStaleStore{}
	queue := &fakeQueue{}
	m := New(store, queue, "monitor-1")

	job := &domain.Job{ID: "job-1", CustomerID: "cust-1", PackageSize: 3, Priority: domain.PriorityPro}
	require.NoError(t, m.requeue(context.Background(), job))

	require.Len(t, queue.sent, 1)
	raw, err := json.Marshal(queue.sent[0])
	require.NoError(t, err)
	var msg requeueMessage
	require.NoError(t, json.Unmarshal(raw, &msg))

	assert.Equal(t, "stale_job_monitor", msg.Source)
	assert.Equal(t, "stale_job_monitor", msg.RequeuedBy)
	assert.Equal(t, domain.JobPending, store.setStatuses["job-1"])
	assert.Contains(t, store.historyEvts, "requeued_stale")
}

// TestSweep_IsolatesPerJobFailures covers spec §4.9: one job's requeue
// failure must not stop the sweep from attempting the rest.
func TestSweep_IsolatesPerJobFailures(t *testing.T) {
	store := &fakeStaleStore{stale: []*domain.Job{
		{ID: "job-fail", CustomerID: "c1", Priority: domain.PriorityStarter},
		{ID: "job-ok", CustomerID: "c1", Priority: domain.PriorityStarter},
	}}
	queue := &failNthQueue{failOn: "job-fail"}
	m := New(store, queue, "monitor-1")

	m.sweep(context.Background())

	assert.Equal(t, domain.JobPending, store.setStatuses["job-ok"], "the second job must still be requeued despite the first failing")
	_, failedWasSet := store.setStatuses["job-fail"]
	assert.False(t, failedWasSet, "a job whose send failed must not be reset to pending")
}

type failNthQueue struct {
	failOn string
}

func (f *failNthQueue) Send(_ context.Context, body any) (string, error) {
	raw, _ := json.Marshal(body)
	var msg requeueMessage
	_ = json.Unmarshal(raw, &msg)
	if msg.JobID == f.failOn {
		return "", errors.New("send failed")
	}
	return "msg-ok", nil
}

// TestSweep_NoStaleJobsIsANoOp covers the empty case.
func TestSweep_NoStaleJobsIsANoOp(t *testing.T) {
	store := &fakeStaleStore{}
	queue := &fakeQueue{}
	m := New(store, queue, "monitor-1")

	m.sweep(context.Background())

	assert.Empty(t, queue.sent)
}
