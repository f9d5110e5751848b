package httpapi

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/directorybolt/submission-pipeline/internal/domain"
)

func TestFromDomainError_MapsEachSentinelToItsStatus(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"validation", &domain.ValidationError{Field: "x", Reason: "bad"}, http.StatusBadRequest},
		{"job not found", domain.ErrJobNotFound, http.StatusNotFound},
		{"profile not found", domain.ErrProfileNotFound, http.StatusNotFound},
		{"invalid id", domain.ErrInvalidID, http.StatusBadRequest},
		{"queue not configured", domain.ErrQueueNotConfigured, http.StatusServiceUnavailable},
		{"queue send failed", domain.ErrQueueSendFailed, http.StatusBadGateway},
		{"wrapped queue send failed", errors.Join(domain.ErrQueueSendFailed, errors.New("dial tcp: refused")), http.StatusBadGateway},
		{"unknown", errors.New("something else"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/", nil)
			FromDomainError(w, req, tc.err)
			assert.Equal(t, tc.status, w.Code)
		})
	}
}
