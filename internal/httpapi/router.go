package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// DefaultMaxBodyBytes caps request bodies at 1MB to prevent accidental or
// malicious oversized enqueue requests.
const DefaultMaxBodyBytes = 1 << 20

// NewRouter builds the chi router: global middleware, an unauthenticated
// health check, and a bearer-authenticated /api tree.
func NewRouter(server *Server, apiKey string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestSize(DefaultMaxBodyBytes))

	r.Get("/health", server.Health)

	r.Route("/api", func(r chi.Router) {
		r.Use(requireBearer(apiKey))

		r.Post("/jobs/enqueue", server.EnqueueJob)

		r.Route("/admin/dlq", func(r chi.Router) {
			r.Get("/", server.ListDeadLetter)
			r.Post("/{messageID}/retry", func(w http.ResponseWriter, req *http.Request) {
				server.RetryDeadLetter(w, req, chi.URLParam(req, "messageID"))
			})
			r.Post("/{messageID}/discard", func(w http.ResponseWriter, req *http.Request) {
				server.DiscardDeadLetter(w, req, chi.URLParam(req, "messageID"))
			})
		})
	})

	return r
}
