package domain

import "time"

// Job is the unit of customer work (spec §3).
type Job struct {
	ID          string
	CustomerID  string
	PackageSize int
	Priority    Priority
	Status      JobStatus
	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	UpdatedAt   time.Time
	ErrorMessage *string
}

// BusinessProfile is the identity/contact data a directory submission is
// built from. It is a joined, read-only view over the job's customer data;
// the core does not own its schema beyond the fields a Plan request and
// the executor's AI form-mapping fallback need.
type BusinessProfile struct {
	JobID       string
	Name        string
	Phone       string
	Address     string
	City        string
	State       string
	Zip         string
	Website     string
	Email       string
	Description string
	Category    string
}

// DirectorySubmission is one row per (job, directory) attempt (spec §3).
// Invariant I1: at most one row per IdempotencyKey. Invariant I2: once
// Status is terminal (Submitted, Skipped) no later write may change it.
type DirectorySubmission struct {
	JobID          string
	Directory      string
	Status         ResultStatus
	IdempotencyKey string
	Payload        map[string]any
	ResponseLog    map[string]any
	ErrorMessage   *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// HistoryEvent is an append-only audit log entry (spec §3). Never mutated
// or deleted by the core; any component may write one.
type HistoryEvent struct {
	JobID     string
	Directory *string
	Event     string
	Detail    map[string]any
	WorkerID  *string
	CreatedAt time.Time
}

// WorkerHeartbeat is one row per worker id (spec §3, Invariant I3).
// Freshness is measured solely by the LastHeartbeat delta against wall
// clock; the row is upserted by worker id.
type WorkerHeartbeat struct {
	WorkerID      string
	Queue         string
	Status        WorkerStatus
	CurrentJobID  *string
	LastHeartbeat time.Time
	Metadata      map[string]any
}

// JobSummary is the aggregate C7 hands back once every directory task has
// settled (spec §4.7.1).
type JobSummary struct {
	JobID     string
	Total     int
	Submitted int
	Failed    int
	Skipped   int
	Status    JobStatus
	Error     string
}

// DirectoryOutcome is what C7 builds from each SubmitDirectory (C6)
// result and aggregates across the fan-out (spec §4.6, §4.7).
type DirectoryOutcome struct {
	Directory  string
	Status     ResultStatus
	DurationMs int64
	Error      string
}
