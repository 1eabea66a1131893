/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging through logrus
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for the back-office frontend

ROUTE GROUPS:
  /api/health                         Liveness
  /api/agencies/{agencyID}/rule-sets  Rule set configuration
  /api/agencies/{agencyID}/contracts  Contracts, entries, totals
  /api/agencies/{agencyID}/payroll    Batch-refreshed listing with stats

SECURITY NOTE:
  No authentication middleware. The agency id in the path is trusted; put
  the service behind a gateway that enforces agency membership.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{Logger: h.Log, NoColor: true}))
	r.Use(middleware.Recoverer)
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:5173", "http://localhost:8080"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		r.Route("/agencies/{agencyID}", func(r chi.Router) {
			// Rule set routes
			r.Post("/rule-sets", h.SaveRuleSet)
			r.Get("/rule-sets/{name}", h.GetRuleSet)

			// Contract routes
			r.Route("/contracts", func(r chi.Router) {
				r.Post("/", h.CreateContract)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", h.GetContract)
					r.Post("/status", h.TransitionContract)
					r.Post("/detach-staff", h.DetachStaff)
					r.Get("/progress", h.GetProgress)

					r.Post("/entries", h.RecordEntry)
					r.Delete("/entries/{date}", h.DeleteEntry)
					r.Post("/preview", h.PreviewEntry)

					r.Post("/totals", h.RefreshTotals)
					r.Get("/totals", h.GetTotals)
				})
			})

			// Payroll routes
			r.Get("/payroll", h.GetPayroll)
			r.Post("/recalculate", h.Recalculate)
		})
	})

	return r
}
