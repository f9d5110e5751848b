// Package advisors defines the narrow, capability-typed collaborator
// interfaces the executor and directory task consult at well-defined hook
// points (spec §9 Design Notes): form-field mapping, content rewriting,
// retry analysis, variant assignment, and success prediction. Every
// interface has a no-op default so the core compiles and runs without any
// of them wired, and every call site degrades to the unadvised path and
// logs only on advisor failure — an advisor is never allowed to fail a
// submission.
package advisors

import (
	"context"

	"github.com/directorybolt/submission-pipeline/internal/domain"
)

// FormFieldMapping is one field the form-mapping advisor locates on a page.
type FormFieldMapping struct {
	Field    string // logical field name: businessName, email, website, description, phone
	Selector string
}

// FormFieldAdvisor maps a rendered page's form fields to logical business
// fields when a plan ships no fill steps of its own (spec §4.4).
type FormFieldAdvisor interface {
	MapFields(ctx context.Context, pageURL, pageHTML string) ([]FormFieldMapping, error)
}

// ContentAdvisor rewrites a business's free-text fields (description,
// category) before they are used to fill a form, e.g. to fit a directory's
// length limits or tone.
type ContentAdvisor interface {
	Rewrite(ctx context.Context, directory string, business *domain.BusinessProfile) (*domain.BusinessProfile, error)
}

// RetryAdvisor is consulted on executor failure to recommend whether (and
// how) a directory task should retry (spec §4.6 step 11). A nil
// recommendation means "use the task's own retry policy unchanged".
type RetryRecommendation struct {
	ShouldRetry bool
	DelayMs     int
}

type RetryAdvisor interface {
	Advise(ctx context.Context, directory string, failure error) (*RetryRecommendation, error)
}

// VariantAssigner reorders a job's directory list by predicted success
// probability (spec §4.6 step 4). Falls back to the original order on
// failure.
type VariantAssigner interface {
	Reorder(ctx context.Context, directories []string, business *domain.BusinessProfile) ([]string, error)
}

// SuccessPredictor scores a (directory, business) pair before it is
// attempted, primarily for VariantAssigner implementations to consult.
type SuccessPredictor interface {
	Predict(ctx context.Context, directory string, business *domain.BusinessProfile) (probability float64, err error)
}

// Set bundles every advisor a component may consult. Nil fields are
// treated as "not configured" by every call site in this package.
type Set struct {
	FormField FormFieldAdvisor
	Content   ContentAdvisor
	Retry     RetryAdvisor
	Variant   VariantAssigner
	Success   SuccessPredictor
}
