// Package dlqmonitor is the Dead Letter Queue Monitor (C10, spec §4.10):
// a periodic depth check that fires a Slack alert once failed jobs
// accumulate past a threshold, and stays quiet on repeat checks until the
// depth grows past the depth it last alerted at.
package dlqmonitor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

const (
	defaultPeriod         = 300 * time.Second
	defaultAlertThreshold = 1
	peekLimit             = 10
	messagesPerAlert      = 5
)

// Queue is the subset of the dead-letter queue the monitor reads.
type Queue interface {
	DeadLetterDepth(ctx context.Context, dlqName string) (int, error)
	PeekDeadLetter(ctx context.Context, dlqName string, limit int) ([]Message, error)
}

// Message is the minimal shape the monitor needs from a peeked
// dead-letter entry.
type Message struct {
	ID   string
	Body json.RawMessage
}

// Monitor periodically checks DLQ depth and alerts on growth past
// threshold.
type Monitor struct {
	queue          Queue
	dlqName        string
	webhookURL     string
	httpClient     *http.Client
	period         time.Duration
	alertThreshold int
	lastAlertDepth int
}

// New builds a Monitor with spec-default tuning (300s period, alert
// threshold 1). webhookURL may be empty, in which case alerts are logged
// only (mirrors the monitor this is grounded on: "SLACK_WEBHOOK_URL not
// configured - alerts will be logged only").
func New(queue Queue, dlqName, webhookURL string) *Monitor {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 3
	retryClient.Logger = nil
	retryClient.HTTPClient.Timeout = 10 * time.Second

	return &Monitor{
		queue:          queue,
		dlqName:        dlqName,
		webhookURL:     webhookURL,
		httpClient:     retryClient.StandardClient(),
		period:         defaultPeriod,
		alertThreshold: defaultAlertThreshold,
	}
}

// Run checks DLQ depth every m.period until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.period)
	defer ticker.Stop()

	m.check(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.check(ctx)
		}
	}
}

func (m *Monitor) check(ctx context.Context) {
	depth, err := m.queue.DeadLetterDepth(ctx, m.dlqName)
	if err != nil {
		slog.ErrorContext(ctx, "failed to read dead letter queue depth", "error", err)
		return
	}

	if depth < m.alertThreshold {
		slog.InfoContext(ctx, "dead letter queue depth below threshold", "depth", depth, "threshold", m.alertThreshold)
		m.lastAlertDepth = 0
		return
	}

	if depth <= m.lastAlertDepth {
		slog.InfoContext(ctx, "dead letter queue depth unchanged, skipping duplicate alert", "depth", depth)
		return
	}

	slog.WarnContext(ctx, "dead letter queue threshold exceeded", "depth", depth, "threshold", m.alertThreshold)

	messages, err := m.queue.PeekDeadLetter(ctx, m.dlqName, peekLimit)
	if err != nil {
		slog.ErrorContext(ctx, "failed to peek dead letter queue", "error", err)
		return
	}

	if err := m.alert(ctx, depth, messages); err != nil {
		slog.ErrorContext(ctx, "failed to send dead letter queue alert", "error", err)
		return
	}
	m.lastAlertDepth = depth
}

// slackMessage is the Block Kit payload shape the webhook expects.
type slackMessage struct {
	Text   string       `json:"text"`
	Blocks []slackBlock `json:"blocks"`
}

type slackBlock struct {
	Type     string           `json:"type"`
	Text     *slackBlockText  `json:"text,omitempty"`
	Elements []slackBlockText `json:"elements,omitempty"`
}

type slackBlockText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// formatAlert mirrors the original monitor's format_slack_message: a
// header, a summary line, one section per sample message (capped at
// messagesPerAlert), an overflow note, and a timestamp footer.
func formatAlert(depth int, messages []Message) slackMessage {
	blocks := []slackBlock{
		{Type: "header", Text: &slackBlockText{Type: "plain_text", Text: "Dead Letter Queue Alert"}},
		{Type: "section", Text: &slackBlockText{Type: "mrkdwn", Text: fmt.Sprintf("*%d failed job(s)* detected in the dead letter queue", depth)}},
		{Type: "divider"},
	}

	shown := messages
	if len(shown) > messagesPerAlert {
		shown = shown[:messagesPerAlert]
	}
	for i, msg := range shown {
		jobID, customerID, retryAttempt := extractFields(msg.Body)
		text := fmt.Sprintf("*Message %d:*\n• Job ID: `%s`\n• Customer ID: `%s`\n• Retry Attempts: %v\n• Message ID: `%s`",
			i+1, jobID, customerID, retryAttempt, msg.ID)
		blocks = append(blocks, slackBlock{Type: "section", Text: &slackBlockText{Type: "mrkdwn", Text: text}})
	}
	if depth > messagesPerAlert {
		blocks = append(blocks, slackBlock{Type: "section", Text: &slackBlockText{Type: "mrkdwn", Text: fmt.Sprintf("_...and %d more messages_", depth-messagesPerAlert)}})
	}

	blocks = append(blocks,
		slackBlock{Type: "divider"},
		slackBlock{Type: "section", Text: &slackBlockText{Type: "mrkdwn", Text: "*Action Required:*\n1. Investigate failed jobs\n2. Check worker logs for errors\n3. Manually retry or resolve issues\n4. Purge the dead letter queue after resolution"}},
		slackBlock{Type: "context", Elements: []slackBlockText{{Type: "mrkdwn", Text: time.Now().UTC().Format("2006-01-02 15:04:05 UTC")}}},
	)

	return slackMessage{
		Text:   fmt.Sprintf("DLQ Alert: %d failed jobs detected", depth),
		Blocks: blocks,
	}
}

func extractFields(body json.RawMessage) (jobID, customerID string, retryAttempt any) {
	var parsed struct {
		JobID        string `json:"job_id"`
		CustomerID   string `json:"customer_id"`
		RetryAttempt any    `json:"retry_attempt"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "unknown", "unknown", 0
	}
	if parsed.JobID == "" {
		parsed.JobID = "unknown"
	}
	if parsed.CustomerID == "" {
		parsed.CustomerID = "unknown"
	}
	if parsed.RetryAttempt == nil {
		parsed.RetryAttempt = 0
	}
	return parsed.JobID, parsed.CustomerID, parsed.RetryAttempt
}

func (m *Monitor) alert(ctx context.Context, depth int, messages []Message) error {
	if m.webhookURL == "" {
		slog.WarnContext(ctx, "no dead letter queue alert webhook configured, logging only", "depth", depth)
		return nil
	}

	payload, err := json.Marshal(formatAlert(depth, messages))
	if err != nil {
		return fmt.Errorf("failed to marshal slack alert payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build slack alert request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to post slack alert: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack webhook returned status %d", resp.StatusCode)
	}
	slog.InfoContext(ctx, "sent dead letter queue alert", "depth", depth)
	return nil
}
