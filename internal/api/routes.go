package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zapponejosh/weekend-planner/internal/config"
)

// SetupRoutes configures all HTTP routes and returns the router.
//
// Route structure:
//
//	GET    /health
//	GET    /api/v1/weekends               ?from=YYYY-MM-DD&weeks=N
//	GET    /api/v1/weekends/summary       ?from=&weeks=
//	GET    /api/v1/days/{date}
//	PATCH  /api/v1/days/{date}            (auth)
//	DELETE /api/v1/days/{date}            (auth)
//	POST   /api/v1/days/{date}/suggestion
//	GET    /api/v1/recurrence
//	PUT    /api/v1/recurrence             (auth)
//	GET    /api/v1/recurrence/check       ?date=
//	GET    /api/v1/support.ics            ?from=&weeks=
//	GET    /api/v1/background
//	PUT    /api/v1/background             (auth, raw image body)
//	DELETE /api/v1/background             (auth)
//	GET    /api/v1/export
//	POST   /api/v1/import                 (auth)
//	POST   /api/v1/sync                   (auth)
func SetupRoutes(handlers *Handlers, cfg *config.Config, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(
		RecoveryMiddleware(logger),
		RequestIDMiddleware(),
		LoggingMiddleware(logger),
		CORSMiddleware(),
	)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		WriteNotFound(w, "Route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, http.StatusMethodNotAllowed, "Method not allowed", "METHOD_NOT_ALLOWED")
	})

	auth := AuthMiddleware(cfg, logger)

	r.Get("/health", handlers.HealthCheck)

	r.Route("/api/v1", func(r chi.Router) {
		// ==========================================================================
		// Public routes
		// ==========================================================================
		r.Get("/weekends", handlers.ListWeekends)
		r.Get("/weekends/summary", handlers.GetSummary)
		r.Get("/days/{date}", handlers.GetDay)
		r.Post("/days/{date}/suggestion", handlers.SuggestPlan)
		r.Get("/recurrence", handlers.GetRecurrence)
		r.Get("/recurrence/check", handlers.CheckRecurrence)
		r.Get("/support.ics", handlers.SupportCalendar)
		r.Get("/background", handlers.GetBackground)
		r.Get("/export", handlers.Export)

		// ==========================================================================
		// Mutating routes (API key)
		// ==========================================================================
		r.Group(func(r chi.Router) {
			r.Use(auth)

			r.Patch("/days/{date}", handlers.UpdateDay)
			r.Delete("/days/{date}", handlers.ClearDay)
			r.Put("/recurrence", handlers.UpdateRecurrence)
			r.Put("/background", handlers.SetBackground)
			r.Delete("/background", handlers.ClearBackground)
			r.Post("/import", handlers.Import)
			r.Post("/sync", handlers.Sync)
		})
	})

	return r
}
