package planner

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/directorybolt/submission-pipeline/internal/domain"
)

func TestGetPlan_HappyPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req planRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "yelp", req.Directory)
		assert.Equal(t, "Acme", req.Business.Name)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(domain.Plan{
			Constraints: domain.Constraints{RateLimitMs: 100},
		})
	}))
	defer srv.Close()

	c := New(Config{URL: srv.URL, Timeout: 2 * time.Second})
	plan, err := c.GetPlan(t.Context(), "yelp", &domain.BusinessProfile{Name: "Acme"}, nil)

	require.NoError(t, err)
	assert.Equal(t, 100, plan.Constraints.RateLimitMs)
}

// TestGetPlan_5xxIsTransient covers spec §4.3's retry classification: a
// server error is retryable, surfaced wrapped in domain.ErrPlanUnavailable.
func TestGetPlan_5xxIsTransient(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(Config{URL: srv.URL, Timeout: 2 * time.Second})
	_, err := c.GetPlan(t.Context(), "yelp", &domain.BusinessProfile{Name: "Acme"}, nil)

	require.Error(t, err)
	assert.True(t, domain.IsRetryable(err))
	assert.ErrorIs(t, err, domain.ErrPlanUnavailable)
	assert.Greater(t, calls, 1, "a 5xx must be retried by the underlying transport")
}

// TestGetPlan_4xxIsNotTransient covers the non-retryable rejection branch.
func TestGetPlan_4xxIsNotTransient(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := New(Config{URL: srv.URL, Timeout: 2 * time.Second})
	_, err := c.GetPlan(t.Context(), "yelp", &domain.BusinessProfile{Name: "Acme"}, nil)

	require.Error(t, err)
	assert.False(t, domain.IsRetryable(err))
	assert.ErrorIs(t, err, domain.ErrPlanUnavailable)
	assert.Equal(t, 1, calls, "a 4xx must not be retried")
}
