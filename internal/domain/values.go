package domain

import (
	"fmt"
	"strings"
)

// JobStatus is the lifecycle state of a Job.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobInProgress JobStatus = "in_progress"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// Priority is the customer's service tier. It scales the per-directory
// rate-limit delay (§4.6) and is echoed back into requeue messages.
type Priority string

const (
	PriorityStarter    Priority = "starter"
	PriorityPro        Priority = "pro"
	PriorityEnterprise Priority = "enterprise"
)

// NewPriority validates and normalizes a priority string. Unknown or empty
// values normalize to PriorityStarter, matching the subscriber's default
// (spec §4.8 step 1) rather than returning an error — callers that need to
// distinguish "defaulted" from "given" should compare the input directly.
func NewPriority(s string) Priority {
	switch Priority(strings.ToLower(strings.TrimSpace(s))) {
	case PriorityPro:
		return PriorityPro
	case PriorityEnterprise:
		return PriorityEnterprise
	case PriorityStarter:
		return PriorityStarter
	default:
		return PriorityStarter
	}
}

// NewPriorityFromInt maps the HTTP enqueue endpoint's numeric priority
// (spec §6: `priority:int`) onto the tier enum used everywhere else: 3 is
// enterprise, 2 is pro, and 1 (or anything else) is starter — the same
// "unknown defaults to starter" rule NewPriority applies to the string
// form.
func NewPriorityFromInt(n int) Priority {
	switch n {
	case 3:
		return PriorityEnterprise
	case 2:
		return PriorityPro
	default:
		return PriorityStarter
	}
}

// RateLimitScale returns the multiplier k applied to the planner's
// rateLimitMs to derive the per-directory cooperative sleep (spec §4.6
// step 7): 0.5 for enterprise (floor 500ms), 1.0 for pro, 1.5 for starter.
func (p Priority) RateLimitScale() float64 {
	switch p {
	case PriorityEnterprise:
		return 0.5
	case PriorityPro:
		return 1.0
	default:
		return 1.5
	}
}

// ResultStatus is the lifecycle state of a DirectorySubmission row.
// Terminal values (Submitted, Skipped) must never be overwritten by a
// later attempt with the same idempotency key (Invariant I2).
type ResultStatus string

const (
	ResultSubmitting ResultStatus = "submitting"
	ResultSubmitted  ResultStatus = "submitted"
	ResultSkipped    ResultStatus = "skipped"
	ResultFailed     ResultStatus = "failed"
)

// Terminal reports whether status is a terminal result status per
// Invariant I2.
func (s ResultStatus) Terminal() bool {
	return s == ResultSubmitted || s == ResultSkipped
}

// WorkerStatus is the liveness state recorded in a WorkerHeartbeat row.
type WorkerStatus string

const (
	WorkerRunning WorkerStatus = "running"
	WorkerIdle    WorkerStatus = "idle"
)

// UpsertOutcome is returned by the data access layer's UpsertJobResult to
// tell the caller whether Invariant I2's terminality gate fired.
type UpsertOutcome string

const (
	OutcomeInserted         UpsertOutcome = "inserted"
	OutcomeUpdated          UpsertOutcome = "updated"
	OutcomeDuplicateSuccess UpsertOutcome = "duplicate_success"
)

// ValidatePackageSize normalizes an untrusted package_size value (spec
// §4.8 step 1): negative or non-numeric values default to 50.
func ValidatePackageSize(v int, ok bool) int {
	if !ok || v < 0 {
		return 50
	}
	return v
}

// NormalizeDirectory trims and lower-cases a directory identifier for use
// as an idempotency factor and as a map/log key.
func NormalizeDirectory(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func requireNonEmpty(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return &ValidationError{Field: field, Reason: "must not be empty"}
	}
	return nil
}

// ValidateJobDirectory validates the two inputs every directory-level
// operation takes (spec §4.6 step 1).
func ValidateJobDirectory(jobID, directory string) error {
	if err := requireNonEmpty("job_id", jobID); err != nil {
		return err
	}
	if err := requireNonEmpty("directory", directory); err != nil {
		return err
	}
	return nil
}

// FormatPartialFailure renders the job-level error message for a partial
// failure (spec §4.7.1): "{f} of {N} submissions failed".
func FormatPartialFailure(failed, total int) string {
	return fmt.Sprintf("%d of %d submissions failed", failed, total)
}
