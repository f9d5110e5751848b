// Package postgres is a Postgres-backed work queue standing in for an
// external managed queue (spec §4.8): SKIP LOCKED claim with a visibility
// timeout, receive-count tracking, and a dead-letter table, built on the
// same pool as the data access layer in internal/storage/postgres. No
// queue SDK appears anywhere in this codebase's dependency
// lineage, so the queue itself is implemented on top of Postgres rather
// than introducing an unrelated broker client.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Message is one queue entry: an opaque JSON body plus the delivery
// metadata the subscriber's DLQ-threshold check needs.
type Message struct {
	ID           string
	Body         json.RawMessage
	ReceiveCount int
}

// Queue is a single named Postgres-backed queue. The main queue and the
// dead-letter queue are both *Queue values over distinct queue_name
// partitions of the same two tables.
type Queue struct {
	pool *pgxpool.Pool
	name string
}

// New returns a handle to the named queue partition.
func New(pool *pgxpool.Pool, name string) *Queue {
	return &Queue{pool: pool, name: name}
}

// Send enqueues a new message, immediately visible.
func (q *Queue) Send(ctx context.Context, body any) (string, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to marshal message body: %w", err)
	}

	var id uuid.UUID
	err = q.pool.QueryRow(ctx, `
		INSERT INTO queue_messages (queue_name, body, receive_count, visible_at)
		VALUES ($1, $2, 0, now())
		RETURNING message_id
	`, q.name, raw).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("failed to send message: %w", err)
	}
	return id.String(), nil
}

// Receive claims up to batchSize messages whose visible_at has elapsed,
// using SKIP LOCKED so concurrent subscribers never double-claim, and
// advances visible_at by visibilityTimeout while incrementing receive_count.
func (q *Queue) Receive(ctx context.Context, batchSize int, visibilityTimeout int) ([]Message, error) {
	tx, err := q.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `
		SELECT message_id, body, receive_count
		FROM queue_messages
		WHERE queue_name = $1 AND visible_at <= now()
		ORDER BY created_at
		FOR UPDATE SKIP LOCKED
		LIMIT $2
	`, q.name, batchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to claim messages: %w", err)
	}

	var claimed []Message
	var ids []uuid.UUID
	for rows.Next() {
		var m Message
		var id uuid.UUID
		if err := rows.Scan(&id, &m.Body, &m.ReceiveCount); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan claimed message: %w", err)
		}
		m.ID = id.String()
		m.ReceiveCount++
		claimed = append(claimed, m)
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("failed to iterate claimed messages: %w", err)
	}
	rows.Close()

	if len(ids) > 0 {
		_, err = tx.Exec(ctx, `
			UPDATE queue_messages
			SET receive_count = receive_count + 1,
			    visible_at = now() + make_interval(secs => $2)
			WHERE message_id = ANY($1)
		`, ids, float64(visibilityTimeout))
		if err != nil {
			return nil, fmt.Errorf("failed to extend visibility of claimed messages: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit claim transaction: %w", err)
	}
	return claimed, nil
}

// Delete removes a message after successful processing.
func (q *Queue) Delete(ctx context.Context, messageID string) error {
	_, err := q.pool.Exec(ctx, `DELETE FROM queue_messages WHERE message_id = $1 AND queue_name = $2`, messageID, q.name)
	if err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	return nil
}

// MoveToDeadLetter copies a message into the dead-letter table annotated
// with the caller's reason, then removes it from this queue (spec §4.8
// step 2). dlqName is the queue_name the message is filed under in the
// dead-letter table, distinct from this queue's own name.
func (q *Queue) MoveToDeadLetter(ctx context.Context, dlqName, messageID, reason string) error {
	tx, err := q.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var body json.RawMessage
	var receiveCount int
	err = tx.QueryRow(ctx, `
		SELECT body, receive_count FROM queue_messages WHERE message_id = $1 AND queue_name = $2
	`, messageID, q.name).Scan(&body, &receiveCount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return fmt.Errorf("failed to load message for DLQ move: %w", err)
	}

	annotated := map[string]any{}
	if err := json.Unmarshal(body, &annotated); err != nil {
		annotated = map[string]any{"_original_body": string(body)}
	}
	annotated["_dlq_reason"] = reason
	annotated["_original_message_id"] = messageID
	annotatedBody, err := json.Marshal(annotated)
	if err != nil {
		return fmt.Errorf("failed to marshal annotated DLQ body: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO dead_letter_messages (queue_name, body, receive_count, last_error)
		VALUES ($1, $2, $3, $4)
	`, dlqName, annotatedBody, receiveCount, reason)
	if err != nil {
		return fmt.Errorf("failed to insert dead-letter message: %w", err)
	}

	_, err = tx.Exec(ctx, `DELETE FROM queue_messages WHERE message_id = $1 AND queue_name = $2`, messageID, q.name)
	if err != nil {
		return fmt.Errorf("failed to delete source message after DLQ move: %w", err)
	}

	return tx.Commit(ctx)
}

// DiscardDeadLetter permanently removes a dead-letter entry after an
// operator has reviewed and decided not to retry it.
func (q *Queue) DiscardDeadLetter(ctx context.Context, messageID string) error {
	_, err := q.pool.Exec(ctx, `DELETE FROM dead_letter_messages WHERE message_id = $1`, messageID)
	if err != nil {
		return fmt.Errorf("failed to discard dead-letter message: %w", err)
	}
	return nil
}

// RequeueFromDeadLetter re-enqueues a dead-letter entry's body onto the
// named queue as a fresh message and removes the dead-letter row,
// returning the new message id.
func (q *Queue) RequeueFromDeadLetter(ctx context.Context, messageID, destQueueName string) (string, error) {
	tx, err := q.pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var body json.RawMessage
	if err := tx.QueryRow(ctx, `SELECT body FROM dead_letter_messages WHERE message_id = $1`, messageID).Scan(&body); err != nil {
		return "", fmt.Errorf("failed to load dead-letter message: %w", err)
	}

	var newID uuid.UUID
	err = tx.QueryRow(ctx, `
		INSERT INTO queue_messages (queue_name, body, receive_count, visible_at)
		VALUES ($1, $2, 0, now())
		RETURNING message_id
	`, destQueueName, body).Scan(&newID)
	if err != nil {
		return "", fmt.Errorf("failed to requeue dead-letter message: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM dead_letter_messages WHERE message_id = $1`, messageID); err != nil {
		return "", fmt.Errorf("failed to delete requeued dead-letter message: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("failed to commit requeue transaction: %w", err)
	}
	return newID.String(), nil
}

// ApproximateDepth returns the count of queue_messages rows under this
// queue's name, visible and in flight alike. Dead-letter rows are not
// counted; DeadLetterDepth counts those.
func (q *Queue) ApproximateDepth(ctx context.Context) (int, error) {
	var n int
	if err := q.pool.QueryRow(ctx, `SELECT count(*) FROM queue_messages WHERE queue_name = $1`, q.name).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count queue depth: %w", err)
	}
	return n, nil
}

// DeadLetterDepth returns the count of messages filed under this queue's
// dead-letter partition.
func (q *Queue) DeadLetterDepth(ctx context.Context, dlqName string) (int, error) {
	var n int
	if err := q.pool.QueryRow(ctx, `SELECT count(*) FROM dead_letter_messages WHERE queue_name = $1`, dlqName).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count dead-letter depth: %w", err)
	}
	return n, nil
}

// PeekDeadLetter returns up to limit dead-letter messages without
// consuming them, newest first (spec §4.10's alert sample).
func (q *Queue) PeekDeadLetter(ctx context.Context, dlqName string, limit int) ([]Message, error) {
	rows, err := q.pool.Query(ctx, `
		SELECT message_id, body, receive_count FROM dead_letter_messages
		WHERE queue_name = $1 ORDER BY moved_at DESC LIMIT $2
	`, dlqName, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to peek dead-letter messages: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		var id uuid.UUID
		if err := rows.Scan(&id, &m.Body, &m.ReceiveCount); err != nil {
			return nil, fmt.Errorf("failed to scan dead-letter message: %w", err)
		}
		m.ID = id.String()
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate dead-letter messages: %w", err)
	}
	return messages, nil
}
