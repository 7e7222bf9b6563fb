package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware (all routes)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware)
	r.Use(RecoveryMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		// Public routes (no auth required)
		r.Get("/health", h.Health)

		// Protected routes (auth required)
		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(h.apiKey))

			r.Post("/ideas", h.Intake)
			r.Get("/ideas", h.ListIdeas)
			r.Get("/ideas/{id}", h.GetIdea)
			r.Post("/ideas/{id}/rescore", h.Rescore)
			r.Post("/ideas/{id}/kill", h.Kill)
			r.Post("/ideas/{id}/confirm", h.Confirm)
			r.Post("/ideas/{id}/bump", h.Bump)

			r.Get("/evergreen", h.ListEvergreen)
			r.Post("/evergreen/pull", h.PullEvergreen)

			r.Get("/stats", h.Stats)
			r.Get("/alerts", h.Alerts)

			r.Route("/config", func(r chi.Router) {
				r.Post("/rules", h.CreateRule)
				r.Get("/rules", h.ListRules)
				r.Put("/rules/{id}", h.UpdateRule)
				r.Delete("/rules/{id}", h.DeleteRule)

				r.Post("/publications", h.CreatePublication)
				r.Get("/publications", h.ListPublications)
				r.Put("/publications/{id}", h.UpdatePublication)

				r.Post("/rubrics", h.CreateRubric)
				r.Get("/rubrics", h.ListRubrics)
				r.Put("/rubrics/{id}", h.UpdateRubric)
				r.Delete("/rubrics/{id}", h.DeleteRubric)

				r.Post("/thresholds", h.CreateThreshold)
				r.Get("/thresholds", h.ListThresholds)
				r.Put("/thresholds/{id}", h.UpdateThreshold)
				r.Delete("/thresholds/{id}", h.DeleteThreshold)

				r.Post("/slots", h.CreateSlot)
				r.Get("/slots", h.ListSlots)
				r.Put("/slots/{id}", h.UpdateSlot)
				r.Delete("/slots/{id}", h.DeleteSlot)
			})
		})
	})

	return r
}
