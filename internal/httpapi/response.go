package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/directorybolt/submission-pipeline/internal/domain"
)

// ErrorResponse is the standard error response body.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries a machine-readable code plus a human message.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// OK sends a 200 OK response with JSON data.
func OK(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode success response", "error", err)
	}
}

// BadRequest sends a 400 response.
func BadRequest(w http.ResponseWriter, message string) {
	Error(w, "INVALID_REQUEST", message, http.StatusBadRequest)
}

// NotFound sends a 404 response.
func NotFound(w http.ResponseWriter, resource string) {
	Error(w, "NOT_FOUND", resource+" not found", http.StatusNotFound)
}

// Unauthorized sends a 401 response.
func Unauthorized(w http.ResponseWriter, message string) {
	Error(w, "UNAUTHORIZED", message, http.StatusUnauthorized)
}

// InternalError logs err server-side and returns a generic 500 body, to
// avoid leaking internals to the client.
func InternalError(w http.ResponseWriter, r *http.Request, err error) {
	if err != nil {
		slog.ErrorContext(r.Context(), "internal server error", "error", err)
	}
	Error(w, "INTERNAL_ERROR", "an internal error occurred", http.StatusInternalServerError)
}

// BadGateway logs err server-side and returns a 502, for failures enqueuing
// onto the downstream queue (spec §6).
func BadGateway(w http.ResponseWriter, r *http.Request, err error) {
	if err != nil {
		slog.ErrorContext(r.Context(), "queue send failed", "error", err)
	}
	Error(w, "QUEUE_SEND_FAILED", "failed to send message to queue", http.StatusBadGateway)
}

// ServiceUnavailable returns a 503, for a queue that is not configured
// (spec §6).
func ServiceUnavailable(w http.ResponseWriter, message string) {
	Error(w, "QUEUE_NOT_CONFIGURED", message, http.StatusServiceUnavailable)
}

// Error sends a generic error response.
func Error(w http.ResponseWriter, code, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{Error: ErrorDetail{Code: code, Message: message}})
}

// FromDomainError maps a domain sentinel error to the matching HTTP
// response.
func FromDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		BadRequest(w, ve.Error())
	case errors.Is(err, domain.ErrJobNotFound):
		NotFound(w, "job")
	case errors.Is(err, domain.ErrProfileNotFound):
		NotFound(w, "business profile")
	case errors.Is(err, domain.ErrInvalidID):
		BadRequest(w, "invalid id format")
	case errors.Is(err, domain.ErrQueueNotConfigured):
		ServiceUnavailable(w, "queue not configured")
	case errors.Is(err, domain.ErrQueueSendFailed):
		BadGateway(w, r, err)
	default:
		InternalError(w, r, err)
	}
}
