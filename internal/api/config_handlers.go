package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"

	"github.com/hyperengineering/deskflow/internal/types"
	"github.com/hyperengineering/deskflow/internal/validation"
)

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		WriteProblem(w, r, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %s", err.Error()))
		return false
	}
	return true
}

// CreateRule handles POST /api/v1/config/rules. The resulting rule set is
// validated as a whole so a broken catch-all is rejected up front.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	var rule types.RoutingRule
	if !decodeBody(w, r, &rule) {
		return
	}
	if errs := validation.ValidateRule(rule); len(errs) > 0 {
		WriteProblemWithErrors(w, r, "Rule contains invalid fields", errs)
		return
	}

	existing, err := h.store.ListRules(r.Context())
	if err != nil {
		MapDomainError(w, r, err)
		return
	}
	if errs := validation.ValidateRuleSet(append(existing, rule)); len(errs) > 0 {
		WriteProblemWithErrors(w, r, "Rule set would become invalid", errs)
		return
	}

	rule.ID = ulid.Make().String()
	if err := h.store.CreateRule(r.Context(), &rule); err != nil {
		MapDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rule)
}

// ListRules handles GET /api/v1/config/rules.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.store.ListRules(r.Context())
	if err != nil {
		MapDomainError(w, r, err)
		return
	}
	if rules == nil {
		rules = []types.RoutingRule{}
	}
	writeJSON(w, http.StatusOK, rules)
}

// UpdateRule handles PUT /api/v1/config/rules/{id}.
func (h *Handler) UpdateRule(w http.ResponseWriter, r *http.Request) {
	var rule types.RoutingRule
	if !decodeBody(w, r, &rule) {
		return
	}
	rule.ID = chi.URLParam(r, "id")
	if errs := validation.ValidateRule(rule); len(errs) > 0 {
		WriteProblemWithErrors(w, r, "Rule contains invalid fields", errs)
		return
	}

	existing, err := h.store.ListRules(r.Context())
	if err != nil {
		MapDomainError(w, r, err)
		return
	}
	merged := make([]types.RoutingRule, 0, len(existing))
	for _, e := range existing {
		if e.ID != rule.ID {
			merged = append(merged, e)
		}
	}
	if errs := validation.ValidateRuleSet(append(merged, rule)); len(errs) > 0 {
		WriteProblemWithErrors(w, r, "Rule set would become invalid", errs)
		return
	}

	if err := h.store.UpdateRule(r.Context(), &rule); err != nil {
		MapDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

// DeleteRule handles DELETE /api/v1/config/rules/{id}.
func (h *Handler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteRule(r.Context(), chi.URLParam(r, "id")); err != nil {
		MapDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreatePublication handles POST /api/v1/config/publications.
func (h *Handler) CreatePublication(w http.ResponseWriter, r *http.Request) {
	var pub types.Publication
	if !decodeBody(w, r, &pub) {
		return
	}
	if errs := validation.ValidatePublication(pub); len(errs) > 0 {
		WriteProblemWithErrors(w, r, "Publication contains invalid fields", errs)
		return
	}

	pub.ID = ulid.Make().String()
	if err := h.store.CreatePublication(r.Context(), &pub); err != nil {
		MapDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, pub)
}

// ListPublications handles GET /api/v1/config/publications.
func (h *Handler) ListPublications(w http.ResponseWriter, r *http.Request) {
	pubs, err := h.store.ListPublications(r.Context())
	if err != nil {
		MapDomainError(w, r, err)
		return
	}
	if pubs == nil {
		pubs = []types.Publication{}
	}
	writeJSON(w, http.StatusOK, pubs)
}

// UpdatePublication handles PUT /api/v1/config/publications/{id}.
func (h *Handler) UpdatePublication(w http.ResponseWriter, r *http.Request) {
	var pub types.Publication
	if !decodeBody(w, r, &pub) {
		return
	}
	pub.ID = chi.URLParam(r, "id")
	if errs := validation.ValidatePublication(pub); len(errs) > 0 {
		WriteProblemWithErrors(w, r, "Publication contains invalid fields", errs)
		return
	}
	if err := h.store.UpdatePublication(r.Context(), &pub); err != nil {
		MapDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pub)
}

// CreateRubric handles POST /api/v1/config/rubrics.
func (h *Handler) CreateRubric(w http.ResponseWriter, r *http.Request) {
	var rubric types.ScoringRubric
	if !decodeBody(w, r, &rubric) {
		return
	}
	if errs := validation.ValidateRubric(rubric); len(errs) > 0 {
		WriteProblemWithErrors(w, r, "Rubric contains invalid fields", errs)
		return
	}

	rubric.ID = ulid.Make().String()
	if err := h.store.CreateRubric(r.Context(), &rubric); err != nil {
		MapDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rubric)
}

// ListRubrics handles GET /api/v1/config/rubrics.
func (h *Handler) ListRubrics(w http.ResponseWriter, r *http.Request) {
	rubrics, err := h.store.ListRubrics(r.Context())
	if err != nil {
		MapDomainError(w, r, err)
		return
	}
	if rubrics == nil {
		rubrics = []types.ScoringRubric{}
	}
	writeJSON(w, http.StatusOK, rubrics)
}

// UpdateRubric handles PUT /api/v1/config/rubrics/{id}.
func (h *Handler) UpdateRubric(w http.ResponseWriter, r *http.Request) {
	var rubric types.ScoringRubric
	if !decodeBody(w, r, &rubric) {
		return
	}
	rubric.ID = chi.URLParam(r, "id")
	if errs := validation.ValidateRubric(rubric); len(errs) > 0 {
		WriteProblemWithErrors(w, r, "Rubric contains invalid fields", errs)
		return
	}
	if err := h.store.UpdateRubric(r.Context(), &rubric); err != nil {
		MapDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rubric)
}

// DeleteRubric handles DELETE /api/v1/config/rubrics/{id}.
func (h *Handler) DeleteRubric(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteRubric(r.Context(), chi.URLParam(r, "id")); err != nil {
		MapDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateThreshold handles POST /api/v1/config/thresholds. The full scope
// (same publication, or global) is re-validated for coverage.
func (h *Handler) CreateThreshold(w http.ResponseWriter, r *http.Request) {
	var th types.TierThreshold
	if !decodeBody(w, r, &th) {
		return
	}
	th.ID = ulid.Make().String()

	existing, err := h.store.ListThresholds(r.Context())
	if err != nil {
		MapDomainError(w, r, err)
		return
	}
	scope := thresholdScope(append(existing, th), th.PublicationID)
	if errs := validation.ValidateThresholds(scope); len(errs) > 0 {
		WriteProblemWithErrors(w, r, "Threshold scope would become invalid", errs)
		return
	}

	if err := h.store.CreateThreshold(r.Context(), &th); err != nil {
		MapDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, th)
}

// ListThresholds handles GET /api/v1/config/thresholds.
func (h *Handler) ListThresholds(w http.ResponseWriter, r *http.Request) {
	ths, err := h.store.ListThresholds(r.Context())
	if err != nil {
		MapDomainError(w, r, err)
		return
	}
	if ths == nil {
		ths = []types.TierThreshold{}
	}
	writeJSON(w, http.StatusOK, ths)
}

// UpdateThreshold handles PUT /api/v1/config/thresholds/{id}.
func (h *Handler) UpdateThreshold(w http.ResponseWriter, r *http.Request) {
	var th types.TierThreshold
	if !decodeBody(w, r, &th) {
		return
	}
	th.ID = chi.URLParam(r, "id")

	existing, err := h.store.ListThresholds(r.Context())
	if err != nil {
		MapDomainError(w, r, err)
		return
	}
	merged := make([]types.TierThreshold, 0, len(existing)+1)
	for _, e := range existing {
		if e.ID != th.ID {
			merged = append(merged, e)
		}
	}
	scope := thresholdScope(append(merged, th), th.PublicationID)
	if errs := validation.ValidateThresholds(scope); len(errs) > 0 {
		WriteProblemWithErrors(w, r, "Threshold scope would become invalid", errs)
		return
	}

	if err := h.store.UpdateThreshold(r.Context(), &th); err != nil {
		MapDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, th)
}

// DeleteThreshold handles DELETE /api/v1/config/thresholds/{id}.
func (h *Handler) DeleteThreshold(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteThreshold(r.Context(), chi.URLParam(r, "id")); err != nil {
		MapDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// thresholdScope narrows a threshold list to one coverage scope: the
// bands for a single publication, or the global bands.
func thresholdScope(all []types.TierThreshold, publicationID string) []types.TierThreshold {
	var scope []types.TierThreshold
	for _, t := range all {
		if t.PublicationID == publicationID {
			scope = append(scope, t)
		}
	}
	return scope
}

// CreateSlot handles POST /api/v1/config/slots.
func (h *Handler) CreateSlot(w http.ResponseWriter, r *http.Request) {
	var slot types.CalendarSlot
	if !decodeBody(w, r, &slot) {
		return
	}
	if errs := validation.ValidateSlot(slot); len(errs) > 0 {
		WriteProblemWithErrors(w, r, "Slot contains invalid fields", errs)
		return
	}

	slot.ID = ulid.Make().String()
	if err := h.store.CreateSlot(r.Context(), &slot); err != nil {
		MapDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, slot)
}

// ListSlots handles GET /api/v1/config/slots?publication_id=.
func (h *Handler) ListSlots(w http.ResponseWriter, r *http.Request) {
	pubID := r.URL.Query().Get("publication_id")
	if pubID == "" {
		WriteProblem(w, r, http.StatusBadRequest, "publication_id query parameter is required")
		return
	}

	slots, err := h.store.ListSlots(r.Context(), pubID)
	if err != nil {
		MapDomainError(w, r, err)
		return
	}
	if slots == nil {
		slots = []types.CalendarSlot{}
	}
	writeJSON(w, http.StatusOK, slots)
}

// UpdateSlot handles PUT /api/v1/config/slots/{id}.
func (h *Handler) UpdateSlot(w http.ResponseWriter, r *http.Request) {
	var slot types.CalendarSlot
	if !decodeBody(w, r, &slot) {
		return
	}
	slot.ID = chi.URLParam(r, "id")
	if errs := validation.ValidateSlot(slot); len(errs) > 0 {
		WriteProblemWithErrors(w, r, "Slot contains invalid fields", errs)
		return
	}
	if err := h.store.UpdateSlot(r.Context(), &slot); err != nil {
		MapDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, slot)
}

// DeleteSlot handles DELETE /api/v1/config/slots/{id}.
func (h *Handler) DeleteSlot(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteSlot(r.Context(), chi.URLParam(r, "id")); err != nil {
		MapDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
