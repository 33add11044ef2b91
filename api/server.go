/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request, copied into handler logs
  4. CORS:       Cross-origin requests for frontends

PER-ROUTE MIDDLEWARE (in order):
  withAPI        api id for the response envelope
  requireTenant  tenantid header
  Authenticator  acting user

ROUTE GROUPS:
  /api/v1/attendance*   Attendance operations
  /health               Liveness

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/warp/attendance-engine/attendance"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", HeaderTenantID, HeaderUserID},
		AllowCredentials: true,
	}))

	r.Get("/health", h.Health)

	r.Route("/api/v1/attendance", func(r chi.Router) {
		r.With(withAPI(attendance.APIMark), requireTenant, h.Auth.Middleware).Post("/", h.MarkAttendance)
		r.With(withAPI(attendance.APISearch), requireTenant, h.Auth.Middleware).Post("/list", h.SearchAttendance)
		r.With(withAPI(attendance.APIBulk), requireTenant, h.Auth.Middleware).Post("/bulkAttendance", h.BulkAttendance)
	})

	return r
}
