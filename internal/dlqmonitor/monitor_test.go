package dlqmonitor

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDLQ struct {
	depth     int
	depthErr  error
	messages  []Message
	peekCalls int
}

func (f *fakeDLQ) DeadLetterDepth(_ context.Context, _ string) (int, error) {
	return f.depth, f.depthErr
}

func (f *fakeDLQ) PeekDeadLetter(_ context.Context, _ string, _ int) ([]Message, error) {
	f.peekCalls++
	return f.messages, nil
}

func newTestMonitor(q Queue) *Monitor {
	m := New(q, "main-dlq", "")
	m.alertThreshold = 1
	return m
}

// TestCheck_BelowThresholdDoesNotPeek covers the quiet branch of spec
// §4.10: depth below threshold never reads sample messages.
func TestCheck_BelowThresholdDoesNotPeek(t *testing.T) {
	q := &fakeDLQ{depth: 0}
	m := newTestMonitor(q)

	m.check(context.Background())

	assert.Equal(t, 0, q.peekCalls)
}

// TestCheck_AboveThresholdAlertsOnce covers the alert-then-dedup rule: a
// first check above threshold alerts, and a repeat check at the same depth
// does not re-peek: the monitor stays quiet until the depth grows past the
// depth it last alerted at.
func TestCheck_AboveThresholdAlertsOnce(t *testing.T) {
	q := &fakeDLQ{depth: 3}
	m := newTestMonitor(q)

	m.check(context.Background())
	assert.Equal(t, 1, q.peekCalls)

	m.check(context.Background())
	assert.Equal(t, 1, q.peekCalls, "an unchanged depth must not trigger a second peek/alert")
}

// TestCheck_DepthIncreaseReAlerts covers growth past a prior alert depth
// re-triggering.
func TestCheck_DepthIncreaseReAlerts(t *testing.T) {
	q := &fakeDLQ{depth: 3}
	m := newTestMonitor(q)
	m.check(context.Background())

	q.depth = 5
	m.check(context.Background())

	assert.Equal(t, 2, q.peekCalls)
}

// TestCheck_DepthDropBelowThresholdResetsDedup covers the depth-drops-then-
// rises-again path: once depth falls back under threshold, the dedup state
// resets so the next breach alerts again even at the same depth as before.
func TestCheck_DepthDropBelowThresholdResetsDedup(t *testing.T) {
	q := &fakeDLQ{depth: 3}
	m := newTestMonitor(q)
	m.check(context.Background())
	require.Equal(t, 1, q.peekCalls)

	q.depth = 0
	m.check(context.Background())

	q.depth = 3
	m.check(context.Background())
	assert.Equal(t, 2, q.peekCalls)
}

func TestExtractFields_MissingFieldsDefaultToUnknown(t *testing.T) {
	jobID, customerID, retryAttempt := extractFields(json.RawMessage(`{}`))
	assert.Equal(t, "unknown", jobID)
	assert.Equal(t, "unknown", customerID)
	assert.Equal(t, 0, retryAttempt.(int))
}

func TestExtractFields_MalformedBodyDefaultsToUnknown(t *testing.T) {
	jobID, customerID, _ := extractFields(json.RawMessage(`not json`))
	assert.Equal(t, "unknown", jobID)
	assert.Equal(t, "unknown", customerID)
}

func TestFormatAlert_CapsSampleMessagesAndNotesOverflow(t *testing.T) {
	messages := make([]Message, 0, 8)
	for i := 0; i < 8; i++ {
		messages = append(messages, Message{ID: "m", Body: json.RawMessage(`{"job_id":"j"}`)})
	}

	alert := formatAlert(8, messages)

	sectionCount := 0
	overflowSeen := false
	for _, b := range alert.Blocks {
		if b.Type == "section" && b.Text != nil {
			sectionCount++
			if b.Text.Text == "_...and 3 more messages_" {
				overflowSeen = true
			}
		}
	}
	// summary + 5 capped samples + overflow note + action-required = 8
	assert.Equal(t, 8, sectionCount, "expected only messagesPerAlert sample sections")
	assert.True(t, overflowSeen, "expected an overflow note for the 3 messages beyond the cap")
}
