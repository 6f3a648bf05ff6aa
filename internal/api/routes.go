package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hyperengineering/goalboard/internal/observability"
)

// NewRouter creates a new router with all routes configured
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware (all routes)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware)
	r.Use(RecoveryMiddleware)

	r.Handle("/metrics", observability.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", h.Health)

		r.Post("/auth/anonymous", h.SignInAnonymously)
		r.Post("/auth/token", h.RedeemToken)

		// Document routes (session token required)
		r.Group(func(r chi.Router) {
			r.Use(SessionAuthMiddleware(h.issuer))
			r.Get("/apps/{app}/documents/*", h.GetDocument)
			r.Put("/apps/{app}/documents/*", h.PutDocument)
			r.Patch("/apps/{app}/documents/*", h.PatchDocument)
			r.Get("/apps/{app}/watch/*", h.WatchDocument)
		})

		// Admin routes (admin key required)
		r.Route("/admin", func(r chi.Router) {
			r.Use(AdminAuthMiddleware(h.adminKey))
			r.Get("/apps", h.ListNamespaces)
			r.Get("/apps/{app}", h.NamespaceStats)
			r.Get("/apps/{app}/changes", h.Changes)
			r.Get("/apps/{app}/snapshot", h.Snapshot)
			r.Get("/apps/{app}/snapshot/url", h.SnapshotURL)
			r.Delete("/apps/{app}/documents/*", h.DeleteDocument)
		})
	})

	return r
}
