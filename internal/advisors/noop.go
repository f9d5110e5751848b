package advisors

import (
	"context"

	"github.com/directorybolt/submission-pipeline/internal/domain"
)

// NoOpFormFieldAdvisor reports no mappings; the executor falls back to
// whatever fill steps the plan itself shipped.
type NoOpFormFieldAdvisor struct{}

func (NoOpFormFieldAdvisor) MapFields(ctx context.Context, pageURL, pageHTML string) ([]FormFieldMapping, error) {
	return nil, nil
}

// NoOpContentAdvisor returns the business profile unmodified.
type NoOpContentAdvisor struct{}

func (NoOpContentAdvisor) Rewrite(ctx context.Context, directory string, business *domain.BusinessProfile) (*domain.BusinessProfile, error) {
	return business, nil
}

// NoOpRetryAdvisor defers entirely to the caller's own retry policy.
type NoOpRetryAdvisor struct{}

func (NoOpRetryAdvisor) Advise(ctx context.Context, directory string, failure error) (*RetryRecommendation, error) {
	return nil, nil
}

// NoOpVariantAssigner returns the directory list unchanged.
type NoOpVariantAssigner struct{}

func (NoOpVariantAssigner) Reorder(ctx context.Context, directories []string, business *domain.BusinessProfile) ([]string, error) {
	return directories, nil
}

// NoOpSuccessPredictor has no model; callers treat a zero-probability,
// nil-error result as "no prediction available".
type NoOpSuccessPredictor struct{}

func (NoOpSuccessPredictor) Predict(ctx context.Context, directory string, business *domain.BusinessProfile) (float64, error) {
	return 0, nil
}

// DefaultSet wires every advisor to its no-op implementation, matching the
// DefaultErrorHandler pattern this codebase uses elsewhere: the core
// compiles and runs fully advised by defaults, and a caller overrides only
// the fields it has a real collaborator for.
func DefaultSet() Set {
	return Set{
		FormField: NoOpFormFieldAdvisor{},
		Content:   NoOpContentAdvisor{},
		Retry:     NoOpRetryAdvisor{},
		Variant:   NoOpVariantAssigner{},
		Success:   NoOpSuccessPredictor{},
	}
}
