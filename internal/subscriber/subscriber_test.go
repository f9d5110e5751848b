package subscriber

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/directorybolt/submission-pipeline/internal/domain"
)

type dlqCall struct {
	dlqName   string
	messageID string
	reason    string
}

type fakeQueue struct {
	deleted  []string
	dlqCalls []dlqCall
}

func (f *fakeQueue) Receive(_ context.Context, _, _ int) ([]Message, error) {
	return nil, nil
}

func (f *fakeQueue) Delete(_ context.Context, messageID string) error {
	f.deleted = append(f.deleted, messageID)
	return nil
}

func (f *fakeQueue) MoveToDeadLetter(_ context.Context, dlqName, messageID, reason string) error {
	f.dlqCalls = append(f.dlqCalls, dlqCall{dlqName: dlqName, messageID: messageID, reason: reason})
	return nil
}

type fakeDispatcher struct {
	dispatched []*domain.Job
}

func (f *fakeDispatcher) Dispatch(_ context.Context, job *domain.Job) {
	f.dispatched = append(f.dispatched, job)
}

// TestHandle_ExceedsReceiveThresholdReportsActualCountInReason covers spec
// scenario S5 and the fix for the DLQ reason string: it must report the
// message's own receive count, not the fixed threshold, so two messages
// dead-lettered at different receive counts produce distinguishable reasons.
func TestHandle_ExceedsReceiveThresholdReportsActualCountInReason(t *testing.T) {
	q := &fakeQueue{}
	d := &fakeDispatcher{}
	s := New(q, d, "main-dlq")

	s.handle(context.Background(), Message{ID: "m1", ReceiveCount: 7})

	require.Len(t, q.dlqCalls, 1)
	assert.Equal(t, "main-dlq", q.dlqCalls[0].dlqName)
	assert.Equal(t, "m1", q.dlqCalls[0].messageID)
	assert.Contains(t, q.dlqCalls[0].reason, "7 > 3")
	assert.Empty(t, d.dispatched, "a dead-lettered message must not be dispatched")
	assert.Empty(t, q.deleted, "a dead-lettered message must not also be deleted")
}

func TestHandle_DifferentReceiveCountsProduceDifferentReasons(t *testing.T) {
	q := &fakeQueue{}
	d := &fakeDispatcher{}
	s := New(q, d, "main-dlq")

	s.handle(context.Background(), Message{ID: "m1", ReceiveCount: 4})
	s.handle(context.Background(), Message{ID: "m2", ReceiveCount: 10})

	require.Len(t, q.dlqCalls, 2)
	assert.NotEqual(t, q.dlqCalls[0].reason, q.dlqCalls[1].reason)
	assert.Contains(t, q.dlqCalls[0].reason, "4 >")
	assert.Contains(t, q.dlqCalls[1].reason, "10 >")
}

func TestHandle_MalformedBodyIsDeadLetteredWithInvalidMessageReason(t *testing.T) {
	q := &fakeQueue{}
	d := &fakeDispatcher{}
	s := New(q, d, "main-dlq")

	s.handle(context.Background(), Message{ID: "m1", Body: []byte(`{not json`), ReceiveCount: 1})

	require.Len(t, q.dlqCalls, 1)
	assert.Contains(t, q.dlqCalls[0].reason, "invalid message")
	assert.Empty(t, d.dispatched)
}

func TestHandle_MissingCustomerIDIsDeadLettered(t *testing.T) {
	q := &fakeQueue{}
	d := &fakeDispatcher{}
	s := New(q, d, "main-dlq")

	s.handle(context.Background(), Message{ID: "m1", Body: []byte(`{"job_id":"J1"}`), ReceiveCount: 1})

	require.Len(t, q.dlqCalls, 1)
	assert.Contains(t, q.dlqCalls[0].reason, "invalid message")
}

// TestHandle_ValidMessageUnderThresholdDispatchesAndDeletes covers the
// happy path: a message below the receive threshold is parsed, dispatched,
// and deleted from the queue, never dead-lettered.
func TestHandle_ValidMessageUnderThresholdDispatchesAndDeletes(t *testing.T) {
	q := &fakeQueue{}
	d := &fakeDispatcher{}
	s := New(q, d, "main-dlq")

	body := []byte(`{"job_id":"J1","customer_id":"C1","package_size":20,"priority":"pro"}`)
	s.handle(context.Background(), Message{ID: "m1", Body: body, ReceiveCount: 1})

	require.Empty(t, q.dlqCalls)
	require.Len(t, d.dispatched, 1)
	assert.Equal(t, "J1", d.dispatched[0].ID)
	assert.Equal(t, "C1", d.dispatched[0].CustomerID)
	assert.Equal(t, 20, d.dispatched[0].PackageSize)
	assert.Equal(t, domain.PriorityPro, d.dispatched[0].Priority)

	require.Len(t, q.deleted, 1)
	assert.Equal(t, "m1", q.deleted[0])
}

func TestHandle_PackageSizeDefaultsToFiftyWhenOmitted(t *testing.T) {
	q := &fakeQueue{}
	d := &fakeDispatcher{}
	s := New(q, d, "main-dlq")

	body := []byte(`{"job_id":"J1","customer_id":"C1"}`)
	s.handle(context.Background(), Message{ID: "m1", Body: body, ReceiveCount: 1})

	require.Len(t, d.dispatched, 1)
	assert.Equal(t, 50, d.dispatched[0].PackageSize)
	assert.Equal(t, domain.PriorityStarter, d.dispatched[0].Priority)
}

func TestHandle_AtThresholdIsNotDeadLettered(t *testing.T) {
	q := &fakeQueue{}
	d := &fakeDispatcher{}
	s := New(q, d, "main-dlq")

	body := []byte(`{"job_id":"J1","customer_id":"C1"}`)
	s.handle(context.Background(), Message{ID: "m1", Body: body, ReceiveCount: dlqReceiveThreshold})

	assert.Empty(t, q.dlqCalls, "receive count equal to the threshold must not be dead-lettered, only strictly greater")
	assert.Len(t, d.dispatched, 1)
}
