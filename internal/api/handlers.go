package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/zapponejosh/weekend-planner/internal/config"
	"github.com/zapponejosh/weekend-planner/internal/database"
	"github.com/zapponejosh/weekend-planner/internal/logger"
	"github.com/zapponejosh/weekend-planner/internal/planner"
	"github.com/zapponejosh/weekend-planner/internal/suggest"
)

// maxImportBytes bounds the body of POST /api/v1/import.
const maxImportBytes = 16 << 20

// HealthChecker reports whether the backing store is usable.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Handlers contains all HTTP handlers and their dependencies.
type Handlers struct {
	planner *planner.Service
	health  HealthChecker
	cfg     *config.Config
	logger  *slog.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(svc *planner.Service, health HealthChecker, cfg *config.Config, logger *slog.Logger) *Handlers {
	return &Handlers{
		planner: svc,
		health:  health,
		cfg:     cfg,
		logger:  logger,
	}
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if err := h.health.Health(r.Context()); err != nil {
		logger.Warn(r.Context(), h.logger, "health check failed", slog.Any("error", err))
		WriteError(w, http.StatusServiceUnavailable, "Database unhealthy", "HEALTH_CHECK_FAILED")
		return
	}

	WriteSuccess(w, map[string]string{
		"status":   "healthy",
		"timezone": h.planner.Location().String(),
	})
}

// =============================================================================
// Weekends
// =============================================================================

// ListWeekends handles GET /api/v1/weekends?from=YYYY-MM-DD&weeks=N
func (h *Handlers) ListWeekends(w http.ResponseWriter, r *http.Request) {
	from, weeks, ok := h.window(w, r)
	if !ok {
		return
	}

	weekends, err := h.planner.Weekends(r.Context(), from, weeks)
	if err != nil {
		h.writeServiceError(w, r, err, "Failed to list weekends")
		return
	}

	WriteSuccess(w, weekends)
}

// GetSummary handles GET /api/v1/weekends/summary?from=&weeks=
func (h *Handlers) GetSummary(w http.ResponseWriter, r *http.Request) {
	from, weeks, ok := h.window(w, r)
	if !ok {
		return
	}

	sum, err := h.planner.Summarize(r.Context(), from, weeks)
	if err != nil {
		h.writeServiceError(w, r, err, "Failed to summarize weekends")
		return
	}

	WriteSuccess(w, sum)
}

// =============================================================================
// Days
// =============================================================================

// GetDay handles GET /api/v1/days/{date}
func (h *Handlers) GetDay(w http.ResponseWriter, r *http.Request) {
	day, err := h.planner.Day(r.Context(), chi.URLParam(r, "date"))
	if err != nil {
		h.writeServiceError(w, r, err, "Failed to load day")
		return
	}
	WriteSuccess(w, day)
}

// UpdateDay handles PATCH /api/v1/days/{date}
func (h *Handlers) UpdateDay(w http.ResponseWriter, r *http.Request) {
	var req planner.DayUpdate
	if err := decodeJSON(r, &req); err != nil {
		WriteBadRequest(w, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	day, err := h.planner.UpdateDay(r.Context(), chi.URLParam(r, "date"), req)
	if err != nil {
		h.writeServiceError(w, r, err, "Failed to update day")
		return
	}
	WriteSuccess(w, day)
}

// ClearDay handles DELETE /api/v1/days/{date}
func (h *Handlers) ClearDay(w http.ResponseWriter, r *http.Request) {
	day, err := h.planner.ClearDay(r.Context(), chi.URLParam(r, "date"))
	if err != nil {
		h.writeServiceError(w, r, err, "Failed to clear day")
		return
	}
	WriteSuccess(w, day)
}

// SuggestPlan handles POST /api/v1/days/{date}/suggestion
func (h *Handlers) SuggestPlan(w http.ResponseWriter, r *http.Request) {
	s, err := h.planner.Suggest(r.Context(), chi.URLParam(r, "date"))
	if err != nil {
		h.writeServiceError(w, r, err, "Failed to suggest a plan")
		return
	}
	WriteSuccess(w, s)
}

// =============================================================================
// Support rota
// =============================================================================

// GetRecurrence handles GET /api/v1/recurrence
func (h *Handlers) GetRecurrence(w http.ResponseWriter, r *http.Request) {
	rec, err := h.planner.Recurrence(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err, "Failed to load support rota")
		return
	}
	WriteSuccess(w, rec)
}

// UpdateRecurrence handles PUT /api/v1/recurrence
func (h *Handlers) UpdateRecurrence(w http.ResponseWriter, r *http.Request) {
	var req planner.RecurrenceUpdate
	if err := decodeJSON(r, &req); err != nil {
		WriteBadRequest(w, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	rec, err := h.planner.UpdateRecurrence(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err, "Failed to save support rota")
		return
	}
	WriteSuccess(w, rec)
}

// CheckRecurrence handles GET /api/v1/recurrence/check?date=YYYY-MM-DD
func (h *Handlers) CheckRecurrence(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		WriteBadRequest(w, "date parameter is required")
		return
	}

	check, err := h.planner.CheckDate(r.Context(), date)
	if err != nil {
		h.writeServiceError(w, r, err, "Failed to check date")
		return
	}
	WriteSuccess(w, check)
}

// =============================================================================
// Background
// =============================================================================

// GetBackground handles GET /api/v1/background
func (h *Handlers) GetBackground(w http.ResponseWriter, r *http.Request) {
	bg, err := h.planner.Background(r.Context())
	if err != nil {
		if database.IsNotFound(err) {
			WriteNotFound(w, "No background image set")
			return
		}
		h.writeServiceError(w, r, err, "Failed to load background")
		return
	}
	WriteSuccess(w, bg)
}

// SetBackground handles PUT /api/v1/background with the raw image as body.
func (h *Handlers) SetBackground(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	// One byte over the limit so oversized uploads are rejected, not truncated.
	data, err := io.ReadAll(io.LimitReader(r.Body, planner.MaxBackgroundBytes+1))
	if err != nil {
		WriteBadRequest(w, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	bg, err := h.planner.SetBackground(r.Context(), data)
	if err != nil {
		h.writeServiceError(w, r, err, "Failed to save background")
		return
	}
	WriteSuccess(w, bg)
}

// ClearBackground handles DELETE /api/v1/background
func (h *Handlers) ClearBackground(w http.ResponseWriter, r *http.Request) {
	if err := h.planner.ClearBackground(r.Context()); err != nil {
		h.writeServiceError(w, r, err, "Failed to clear background")
		return
	}
	WriteSuccess(w, map[string]bool{"cleared": true})
}

// =============================================================================
// Snapshots and sync
// =============================================================================

// Export handles GET /api/v1/export. The snapshot is written bare, without
// the response envelope, so the file can be posted back to /import as is.
func (h *Handlers) Export(w http.ResponseWriter, r *http.Request) {
	snap, err := h.planner.Export(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err, "Failed to export")
		return
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="weekends-%s.json"`, snap.ExportedAt.Format("20060102")))
	WriteJSON(w, http.StatusOK, snap)
}

// Import handles POST /api/v1/import
func (h *Handlers) Import(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImportBytes)

	var snap planner.Snapshot
	if err := decodeJSON(r, &snap); err != nil {
		WriteBadRequest(w, fmt.Sprintf("Invalid snapshot: %v", err))
		return
	}

	stats, err := h.planner.Import(r.Context(), &snap)
	if err != nil {
		h.writeServiceError(w, r, err, "Failed to import snapshot")
		return
	}
	WriteSuccess(w, stats)
}

// Sync handles POST /api/v1/sync
func (h *Handlers) Sync(w http.ResponseWriter, r *http.Request) {
	res, err := h.planner.Sync(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err, "Sync failed")
		return
	}
	WriteSuccess(w, res)
}

// =============================================================================
// HELPERS
// =============================================================================

// window reads the from and weeks query parameters, writing a 400 and
// returning false when either is malformed.
func (h *Handlers) window(w http.ResponseWriter, r *http.Request) (time.Time, int, bool) {
	q := r.URL.Query()

	from := h.planner.Today()
	if s := q.Get("from"); s != "" {
		t, err := h.planner.ParseDate(s)
		if err != nil {
			WriteBadRequest(w, fmt.Sprintf("Invalid from date: %s. Use YYYY-MM-DD", s))
			return time.Time{}, 0, false
		}
		from = t
	}

	weeks := h.cfg.WeekendHorizon
	if weeks < 1 {
		weeks = 8
	}
	if s := q.Get("weeks"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > config.MaxWeekendHorizon {
			WriteBadRequest(w, fmt.Sprintf("weeks must be between 1 and %d", config.MaxWeekendHorizon))
			return time.Time{}, 0, false
		}
		weeks = n
	}

	return from, weeks, true
}

// writeServiceError maps planner errors onto HTTP responses.
func (h *Handlers) writeServiceError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	switch {
	case database.IsInvalid(err):
		WriteBadRequest(w, err.Error())
	case database.IsNotFound(err):
		WriteNotFound(w, "Not found")
	case errors.Is(err, planner.ErrMirrorDisabled):
		WriteUnavailable(w, "Remote sync is not configured", "MIRROR_DISABLED")
	case errors.Is(err, suggest.ErrUnavailable):
		WriteUnavailable(w, "Suggestions are unavailable", "SUGGESTIONS_UNAVAILABLE")
	default:
		logger.Error(r.Context(), h.logger, msg, err, slog.String("path", r.URL.Path))
		WriteInternalError(w, msg)
	}
}

// decodeJSON decodes JSON request body.
func decodeJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return fmt.Errorf("request body is empty")
	}
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
