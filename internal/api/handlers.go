package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hyperengineering/deskflow/internal/routing"
	"github.com/hyperengineering/deskflow/internal/store"
	"github.com/hyperengineering/deskflow/internal/types"
	"github.com/hyperengineering/deskflow/internal/validation"
)

// schemaVersion tracks the migration level reported by health checks.
const schemaVersion = 1

// AlertCache serves pre-computed alert scans. Implemented by the alert
// scanner worker.
type AlertCache interface {
	Current() ([]types.Alert, time.Time)
}

// Handler implements the API handlers.
type Handler struct {
	store    store.Store
	engine   *routing.Orchestrator
	alertCfg routing.AlertConfig
	alerts   AlertCache
	apiKey   string
	version  string
	now      func() time.Time
}

// NewHandler creates a Handler wired to the store and routing engine.
func NewHandler(s store.Store, engine *routing.Orchestrator, alertCfg routing.AlertConfig, apiKey, version string) *Handler {
	return &Handler{
		store:    s,
		engine:   engine,
		alertCfg: alertCfg,
		apiKey:   apiKey,
		version:  version,
		now:      time.Now,
	}
}

// UseAlertCache makes the alerts endpoint serve from a background scan
// instead of scanning on every request. A cache that has never scanned
// falls back to a live scan.
func (h *Handler) UseAlertCache(cache AlertCache) {
	h.alerts = cache
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// Health returns the health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	count, err := h.store.IdeaCount(r.Context())
	if err != nil {
		WriteProblem(w, r, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	writeJSON(w, http.StatusOK, types.HealthResponse{
		Status:        "healthy",
		Version:       h.version,
		IdeaCount:     count,
		SchemaVersion: schemaVersion,
		StatsAsOf:     h.now().UTC(),
	})
}

// Intake handles POST /api/v1/ideas: it persists the captured idea and
// runs the full routing pipeline, returning the placement decision.
func (h *Handler) Intake(w http.ResponseWriter, r *http.Request) {
	var req types.IntakeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteProblem(w, r, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %s", err.Error()))
		return
	}

	errs := validation.ValidateIdea(req.Idea)
	errs = append(errs, validation.ValidateOverride(req.Override)...)
	if len(errs) > 0 {
		WriteProblemWithErrors(w, r, "Request contains invalid fields", errs)
		return
	}

	result, err := h.engine.ProcessIntake(r.Context(), req.Idea, req.Override)
	if err != nil {
		slog.Error("intake pipeline failed", "error", err, "title", req.Idea.Title)
		MapDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, result)
}

// GetIdea handles GET /api/v1/ideas/{id}: the idea, its routing record,
// and the full status trail.
func (h *Handler) GetIdea(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	idea, err := h.store.GetIdea(r.Context(), id)
	if err != nil {
		MapDomainError(w, r, err)
		return
	}
	rt, err := h.store.GetRoutingByIdea(r.Context(), id)
	if err != nil {
		MapDomainError(w, r, err)
		return
	}
	log, err := h.store.ListStatusLog(r.Context(), rt.ID)
	if err != nil {
		MapDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, types.IdeaDetail{
		Idea:      *idea,
		Routing:   *rt,
		StatusLog: log,
	})
}

// ListIdeas handles GET /api/v1/ideas?status=: routing records filtered
// by status.
func (h *Handler) ListIdeas(w http.ResponseWriter, r *http.Request) {
	status := types.RoutingStatus(r.URL.Query().Get("status"))
	if status != "" && !status.Known() {
		WriteProblem(w, r, http.StatusBadRequest, fmt.Sprintf("Unknown status %q", string(status)))
		return
	}

	routings, err := h.store.ListRoutings(r.Context(), status)
	if err != nil {
		MapDomainError(w, r, err)
		return
	}
	if routings == nil {
		routings = []types.IdeaRouting{}
	}
	writeJSON(w, http.StatusOK, routings)
}

// Rescore handles POST /api/v1/ideas/{id}/rescore: re-evaluates a scored
// idea against the current rubric configuration.
func (h *Handler) Rescore(w http.ResponseWriter, r *http.Request) {
	rt, err := h.store.GetRoutingByIdea(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		MapDomainError(w, r, err)
		return
	}

	result, err := h.engine.Rescore(r.Context(), rt.ID)
	if err != nil {
		MapDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Kill handles POST /api/v1/ideas/{id}/kill: terminally marks an idea.
func (h *Handler) Kill(w http.ResponseWriter, r *http.Request) {
	var req types.KillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteProblem(w, r, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %s", err.Error()))
		return
	}
	if req.Reason == "" {
		WriteProblemWithErrors(w, r, "Request contains invalid fields",
			[]validation.ValidationError{{Field: "reason", Message: "is required"}})
		return
	}

	rt, err := h.store.GetRoutingByIdea(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		MapDomainError(w, r, err)
		return
	}

	updated, err := h.engine.Kill(r.Context(), rt.ID, req.Reason)
	if err != nil {
		MapDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// Bump handles POST /api/v1/ideas/{id}/bump: releases the idea's calendar
// position for a higher-priority item and re-runs assignment after the
// vacated date.
func (h *Handler) Bump(w http.ResponseWriter, r *http.Request) {
	var req types.BumpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteProblem(w, r, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %s", err.Error()))
		return
	}
	if req.Reason == "" {
		WriteProblemWithErrors(w, r, "Request contains invalid fields",
			[]validation.ValidationError{{Field: "reason", Message: "is required"}})
		return
	}

	rt, err := h.store.GetRoutingByIdea(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		MapDomainError(w, r, err)
		return
	}

	result, err := h.engine.Bump(r.Context(), rt.ID, req.Reason, req.BumpedBy)
	if err != nil {
		MapDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Confirm handles POST /api/v1/ideas/{id}/confirm: completes scheduling
// for an idea paused at slotted.
func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	rt, err := h.store.GetRoutingByIdea(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		MapDomainError(w, r, err)
		return
	}

	updated, err := h.engine.Confirm(r.Context(), rt.ID)
	if err != nil {
		MapDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// ListEvergreen handles GET /api/v1/evergreen?publication_id=.
func (h *Handler) ListEvergreen(w http.ResponseWriter, r *http.Request) {
	pubID := r.URL.Query().Get("publication_id")
	if pubID == "" {
		WriteProblem(w, r, http.StatusBadRequest, "publication_id query parameter is required")
		return
	}

	entries, err := h.store.ListEvergreenEntries(r.Context(), pubID)
	if err != nil {
		MapDomainError(w, r, err)
		return
	}
	if entries == nil {
		entries = []types.EvergreenQueueEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// PullEvergreen handles POST /api/v1/evergreen/pull: fills a calendar
// date from the evergreen queue.
func (h *Handler) PullEvergreen(w http.ResponseWriter, r *http.Request) {
	var req types.EvergreenPullRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteProblem(w, r, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %s", err.Error()))
		return
	}
	var errs []validation.ValidationError
	if req.PublicationID == "" {
		errs = append(errs, validation.ValidationError{Field: "publication_id", Message: "is required"})
	}
	if req.Date.IsZero() {
		errs = append(errs, validation.ValidationError{Field: "date", Message: "is required"})
	}
	if len(errs) > 0 {
		WriteProblemWithErrors(w, r, "Request contains invalid fields", errs)
		return
	}

	result, err := h.engine.PullEvergreen(r.Context(), req.PublicationID, req.Date, req.Reason)
	if err != nil {
		MapDomainError(w, r, err)
		return
	}
	if result == nil {
		WriteProblem(w, r, http.StatusNotFound, "Evergreen queue is empty")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Stats handles GET /api/v1/stats: dashboard projections.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.GetStats(r.Context())
	if err != nil {
		MapDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// Alerts handles GET /api/v1/alerts: the advisory alert scan, served from
// the background scanner's cache when one is wired and has run.
func (h *Handler) Alerts(w http.ResponseWriter, r *http.Request) {
	var alerts []types.Alert
	served := false
	if h.alerts != nil {
		if cached, scanned := h.alerts.Current(); !scanned.IsZero() {
			alerts = cached
			served = true
		}
	}
	if !served {
		var err error
		alerts, err = routing.ScanAlerts(r.Context(), h.store, h.alertCfg, h.now())
		if err != nil {
			MapDomainError(w, r, err)
			return
		}
	}
	if alerts == nil {
		alerts = []types.Alert{}
	}
	writeJSON(w, http.StatusOK, alerts)
}
