package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/directorybolt/submission-pipeline/internal/domain"
)

// Store is the Postgres-backed implementation of the C2 data access layer
// (spec §4.2). Every method takes a bound context and uses the shared pool
// directly; there is no generated query layer, since the factor map and
// payload columns are dynamic JSON rather than a fixed row shape.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wraps an already-configured pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Pool exposes the underlying pool for collaborators that need it directly
// (the Postgres-backed queue in internal/queue/postgres shares this pool).
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// Close releases the pool. Callers own the pool's lifecycle via this method,
// not via the pool itself, so Store remains the single owner.
func (s *Store) Close() {
	s.pool.Close()
}

func marshalJSON(v map[string]any) ([]byte, error) {
	if v == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(v)
}

// UpsertJobResult implements the preflight-and-write contract of spec §4.2:
// look up by idempotency key; if a terminal row already exists, report
// OutcomeDuplicateSuccess without touching it (Invariant I2); otherwise
// insert or update in place.
func (s *Store) UpsertJobResult(ctx context.Context, jobID, directory string, status domain.ResultStatus, idemKey string, payload, responseLog map[string]any, errMsg *string) (domain.UpsertOutcome, error) {
	payloadJSON, err := marshalJSON(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payload: %w", err)
	}
	responseJSON, err := marshalJSON(responseLog)
	if err != nil {
		return "", fmt.Errorf("failed to marshal response log: %w", err)
	}

	// Invariant I2 under at-least-once redelivery: a preflight-then-insert
	// pattern races concurrent task starts for the same key. The unique
	// index on idempotency_key plus a conditional ON CONFLICT DO UPDATE
	// closes that race at the database level: the WHERE clause refuses to
	// demote a row already in a terminal status, so the statement either
	// inserts, updates a non-terminal row, or is a no-op against a
	// terminal one — all in a single round trip. The xmax trick in the
	// RETURNING clause distinguishes insert from update without a second
	// query: a freshly inserted row's xmax is 0.
	var wasInsert bool
	err = s.pool.QueryRow(ctx, `
		INSERT INTO job_results (job_id, directory, idempotency_key, status, payload, response_log, error_message, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		ON CONFLICT (idempotency_key) DO UPDATE SET
			status = EXCLUDED.status,
			payload = EXCLUDED.payload,
			response_log = EXCLUDED.response_log,
			error_message = EXCLUDED.error_message,
			updated_at = now()
		WHERE job_results.status NOT IN ('submitted', 'skipped')
		RETURNING (xmax = 0)
	`, jobID, directory, idemKey, string(status), payloadJSON, responseJSON, errMsg).Scan(&wasInsert)

	switch {
	case errors.Is(err, pgx.ErrNoRows):
		// The WHERE clause vetoed the update: the existing row is already
		// terminal, so neither branch of the upsert produced a row.
		slog.InfoContext(ctx, "duplicate submission suppressed by idempotency key",
			"job_id", jobID, "directory", directory, "idempotency_key", idemKey)
		return domain.OutcomeDuplicateSuccess, nil
	case err != nil:
		return "", fmt.Errorf("failed to upsert job result: %w", err)
	case wasInsert:
		return domain.OutcomeInserted, nil
	default:
		return domain.OutcomeUpdated, nil
	}
}

// SetJobStatus writes the job's lifecycle status and timestamps the
// corresponding transition (spec §4.2).
func (s *Store) SetJobStatus(ctx context.Context, jobID string, status domain.JobStatus, errMsg *string) error {
	var startedAtClause, completedAtClause string
	switch status {
	case domain.JobInProgress:
		startedAtClause = ", started_at = COALESCE(started_at, now())"
	case domain.JobCompleted, domain.JobFailed:
		completedAtClause = ", completed_at = now()"
	}

	query := fmt.Sprintf(`
		UPDATE jobs SET status = $1, error_message = $2, updated_at = now()%s%s WHERE job_id = $3
	`, startedAtClause, completedAtClause)

	tag, err := s.pool.Exec(ctx, query, string(status), errMsg, jobID)
	if err != nil {
		return fmt.Errorf("failed to set job status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: job %s", domain.ErrJobNotFound, jobID)
	}
	return nil
}

// RecordHistory appends an immutable audit-log row (spec §4.2, append-only).
func (s *Store) RecordHistory(ctx context.Context, jobID string, directory *string, event string, details map[string]any, workerID *string) error {
	detailsJSON, err := marshalJSON(details)
	if err != nil {
		return fmt.Errorf("failed to marshal history details: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO history_events (job_id, directory, event, details, worker_id, occurred_at)
		VALUES ($1, $2, $3, $4, $5, now())
	`, jobID, directory, event, detailsJSON, workerID)
	if err != nil {
		return fmt.Errorf("failed to record history event: %w", err)
	}
	return nil
}

// GetBusinessProfile loads the read-only business profile a job's plan
// requests and AI fallback are built from.
func (s *Store) GetBusinessProfile(ctx context.Context, jobID string) (*domain.BusinessProfile, error) {
	var p domain.BusinessProfile
	err := s.pool.QueryRow(ctx, `
		SELECT job_id, name, phone, address, city, state, zip, website, email, description, category
		FROM business_profiles WHERE job_id = $1
	`, jobID).Scan(&p.JobID, &p.Name, &p.Phone, &p.Address, &p.City, &p.State, &p.Zip, &p.Website, &p.Email, &p.Description, &p.Category)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: job %s", domain.ErrProfileNotFound, jobID)
		}
		return nil, fmt.Errorf("failed to get business profile: %w", err)
	}
	return &p, nil
}

// GetDirectoriesForJob returns the ordered list of directories still
// pending a terminal result row (spec §4.2).
func (s *Store) GetDirectoriesForJob(ctx context.Context, jobID string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT jd.directory
		FROM job_directories jd
		WHERE jd.job_id = $1
		  AND NOT EXISTS (
			SELECT 1 FROM job_results jr
			WHERE jr.job_id = jd.job_id AND jr.directory = jd.directory
			  AND jr.status IN ('submitted', 'skipped')
		  )
		ORDER BY jd.position
	`, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending directories: %w", err)
	}
	defer rows.Close()

	var directories []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("failed to scan directory row: %w", err)
		}
		directories = append(directories, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate directory rows: %w", err)
	}
	return directories, nil
}

// UpsertWorkerHeartbeat records liveness for a worker id (spec §4.2,
// Invariant I3). Upserted by worker id so a worker's row is always a
// single, most-recent snapshot.
func (s *Store) UpsertWorkerHeartbeat(ctx context.Context, workerID, queue string, status domain.WorkerStatus, currentJobID *string, metadata map[string]any) error {
	metaJSON, err := marshalJSON(metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal heartbeat metadata: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO worker_heartbeats (worker_id, queue_name, status, current_job_id, metadata, last_heartbeat)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (worker_id) DO UPDATE SET
			queue_name = EXCLUDED.queue_name,
			status = EXCLUDED.status,
			current_job_id = EXCLUDED.current_job_id,
			metadata = EXCLUDED.metadata,
			last_heartbeat = now()
	`, workerID, queue, string(status), currentJobID, metaJSON)
	if err != nil {
		return fmt.Errorf("failed to upsert worker heartbeat: %w", err)
	}
	return nil
}

// FindStaleJobs returns jobs stuck in_progress whose worker's last
// heartbeat (if any) is older than threshold. A job with no heartbeat row
// yet (heartbeat not written until deep inside the directory task's first
// attempt) is only stale once it has itself been in_progress longer than
// threshold, not the instant it transitions into that status (spec §4.2,
// §4.9).
func (s *Store) FindStaleJobs(ctx context.Context, threshold time.Duration) ([]*domain.Job, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT j.job_id, j.customer_id, j.package_size, j.priority, j.status,
		       j.created_at, j.started_at, j.completed_at, j.updated_at, j.error_message
		FROM jobs j
		LEFT JOIN worker_heartbeats wh ON wh.current_job_id = j.job_id
		WHERE j.status = 'in_progress'
		  AND (
		        (wh.last_heartbeat IS NULL AND j.started_at < now() - make_interval(secs => $1))
		        OR wh.last_heartbeat < now() - make_interval(secs => $1)
		      )
	`, threshold.Seconds())
	if err != nil {
		return nil, fmt.Errorf("failed to query stale jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*domain.Job
	for rows.Next() {
		var j domain.Job
		var priority string
		var status string
		if err := rows.Scan(&j.ID, &j.CustomerID, &j.PackageSize, &priority, &status,
			&j.CreatedAt, &j.StartedAt, &j.CompletedAt, &j.UpdatedAt, &j.ErrorMessage); err != nil {
			return nil, fmt.Errorf("failed to scan stale job row: %w", err)
		}
		j.Priority = domain.Priority(priority)
		j.Status = domain.JobStatus(status)
		jobs = append(jobs, &j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate stale job rows: %w", err)
	}
	return jobs, nil
}

// CountResultsByStatus tallies job_results rows for a job by status,
// across every result row for the job regardless of which process
// instance wrote it.
func (s *Store) CountResultsByStatus(ctx context.Context, jobID string) (map[domain.ResultStatus]int, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT status, count(*) FROM job_results WHERE job_id = $1 GROUP BY status
	`, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to count results by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.ResultStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan result count row: %w", err)
		}
		counts[domain.ResultStatus(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate result count rows: %w", err)
	}
	return counts, nil
}

// InsertJob creates the job row and its ordered directory list in one
// transaction.
func (s *Store) InsertJob(ctx context.Context, job *domain.Job, directories []string) error {
	metaJSON := []byte("{}")

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO jobs (job_id, customer_id, package_size, priority, status, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now(), now())
		ON CONFLICT (job_id) DO NOTHING
	`, job.ID, job.CustomerID, job.PackageSize, string(job.Priority), string(job.Status), metaJSON)
	if err != nil {
		return fmt.Errorf("failed to insert job: %w", err)
	}

	for i, d := range directories {
		_, err = tx.Exec(ctx, `
			INSERT INTO job_directories (job_id, directory, position)
			VALUES ($1, $2, $3)
			ON CONFLICT (job_id, directory) DO NOTHING
		`, job.ID, d, i)
		if err != nil {
			return fmt.Errorf("failed to insert job directory %s: %w", d, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit job insert: %w", err)
	}
	return nil
}
