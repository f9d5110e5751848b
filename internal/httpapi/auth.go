package httpapi

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
)

// requireBearer is Chi-compatible middleware that rejects any request
// whose Authorization header doesn't present the configured bearer
// token. Comparison is constant-time to avoid leaking the key length or
// contents through response timing.
func requireBearer(apiKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				slog.WarnContext(r.Context(), "authentication failed: missing Authorization header", "path", r.URL.Path)
				Unauthorized(w, "missing Authorization header")
				return
			}

			token, found := strings.CutPrefix(authHeader, "Bearer ")
			if !found {
				Unauthorized(w, "invalid Authorization header format, expected: Bearer <token>")
				return
			}

			if subtle.ConstantTimeCompare([]byte(token), []byte(apiKey)) != 1 {
				slog.WarnContext(r.Context(), "authentication failed: invalid bearer token", "path", r.URL.Path)
				Unauthorized(w, "invalid bearer token")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
