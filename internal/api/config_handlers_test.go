package api

import (
	"net/http"
	"testing"

	"github.com/hyperengineering/deskflow/internal/types"
)

func TestCreateRule_RejectsBrokenCatchAll(t *testing.T) {
	router, _ := newTestServer(t)

	// A second always-true rule above the existing default breaks the
	// single-catch-all invariant.
	body := types.RoutingRule{
		Name: "also default", Priority: 50, IsActive: true,
		Conditions: types.Always(),
		RoutesTo:   types.DestinationCore, YouTubeVersion: types.YouTubeNo,
	}
	rec := doRequest(t, router, http.MethodPost, "/api/v1/config/rules", body)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, http.StatusUnprocessableEntity, rec.Body.String())
	}
}

func TestRuleCRUD(t *testing.T) {
	router, _ := newTestServer(t)

	body := types.RoutingRule{
		Name: "contrarian takes", Priority: 5, IsActive: true,
		Conditions: types.Leaf("has_contrarian_angle", types.OpEq, true),
		RoutesTo:   types.DestinationCore, YouTubeVersion: types.YouTubeTBD,
	}
	rec := doRequest(t, router, http.MethodPost, "/api/v1/config/rules", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d (body %s)", rec.Code, rec.Body.String())
	}
	var created types.RoutingRule
	decodeInto(t, rec, &created)
	if created.ID == "" {
		t.Fatal("created rule has no ID")
	}

	rec = doRequest(t, router, http.MethodGet, "/api/v1/config/rules", nil)
	var rules []types.RoutingRule
	decodeInto(t, rec, &rules)
	if len(rules) != 3 {
		t.Fatalf("len(rules) = %d, want 3", len(rules))
	}

	created.Priority = 7
	rec = doRequest(t, router, http.MethodPut, "/api/v1/config/rules/"+created.ID, created)
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d (body %s)", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, router, http.MethodDelete, "/api/v1/config/rules/"+created.ID, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}
	rec = doRequest(t, router, http.MethodDelete, "/api/v1/config/rules/"+created.ID, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestCreatePublication_DuplicateSlug(t *testing.T) {
	router, _ := newTestServer(t)

	body := types.Publication{
		Name: "Core Again", Slug: "core",
		Type: types.PublicationNewsletter, WeeklyTarget: 1, IsActive: true,
	}
	rec := doRequest(t, router, http.MethodPost, "/api/v1/config/publications", body)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, http.StatusConflict, rec.Body.String())
	}
}

func TestPublicationUpdate(t *testing.T) {
	router, _ := newTestServer(t)

	body := types.Publication{
		Name: "Core Renamed", Slug: "core",
		Type: types.PublicationNewsletter, WeeklyTarget: 3, IsActive: true,
	}
	rec := doRequest(t, router, http.MethodPut, "/api/v1/config/publications/pub-core", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d (body %s)", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, router, http.MethodGet, "/api/v1/config/publications", nil)
	var pubs []types.Publication
	decodeInto(t, rec, &pubs)
	for _, p := range pubs {
		if p.ID == "pub-core" && p.WeeklyTarget != 3 {
			t.Errorf("WeeklyTarget = %d, want 3", p.WeeklyTarget)
		}
	}
}

func TestCreateRubric_Validation(t *testing.T) {
	router, _ := newTestServer(t)

	body := types.ScoringRubric{
		PublicationID: "pub-core",
		Name:          "broken",
		Weight:        0, // base rubrics need positive weight
		SourceField:   "audience",
		MatchStrategy: types.MatchExact,
		Criteria:      []types.ScoringCriterion{{Value: "executive", Score: 90}},
		IsActive:      true,
	}
	rec := doRequest(t, router, http.MethodPost, "/api/v1/config/rubrics", body)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, http.StatusUnprocessableEntity, rec.Body.String())
	}
}

func TestCreateThreshold_RejectsGap(t *testing.T) {
	router, _ := newTestServer(t)

	// A publication-scoped band on its own leaves most of [0,100]
	// uncovered for that publication.
	body := types.TierThreshold{
		PublicationID: "pub-core",
		Tier:          types.TierA,
		MinScore:      80,
		MaxScore:      100,
		IsActive:      true,
	}
	rec := doRequest(t, router, http.MethodPost, "/api/v1/config/thresholds", body)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, http.StatusUnprocessableEntity, rec.Body.String())
	}
}

func TestThresholdList(t *testing.T) {
	router, _ := newTestServer(t)

	rec := doRequest(t, router, http.MethodGet, "/api/v1/config/thresholds", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var ths []types.TierThreshold
	decodeInto(t, rec, &ths)
	if len(ths) != 4 {
		t.Errorf("len(thresholds) = %d, want 4", len(ths))
	}
}

func TestSlotCRUD(t *testing.T) {
	router, _ := newTestServer(t)

	body := types.CalendarSlot{
		PublicationID: "pub-core",
		DayOfWeek:     5,
		TierPriority:  2,
		SkipRules:     []types.SkipRule{{Start: "12-20", End: "01-05"}},
		IsActive:      true,
	}
	rec := doRequest(t, router, http.MethodPost, "/api/v1/config/slots", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d (body %s)", rec.Code, rec.Body.String())
	}
	var created types.CalendarSlot
	decodeInto(t, rec, &created)

	rec = doRequest(t, router, http.MethodGet, "/api/v1/config/slots?publication_id=pub-core", nil)
	var slots []types.CalendarSlot
	decodeInto(t, rec, &slots)
	if len(slots) != 2 {
		t.Fatalf("len(slots) = %d, want 2", len(slots))
	}

	created.DayOfWeek = 4
	rec = doRequest(t, router, http.MethodPut, "/api/v1/config/slots/"+created.ID, created)
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d (body %s)", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, router, http.MethodDelete, "/api/v1/config/slots/"+created.ID, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}
}

func TestSlotCreate_RejectsBadSkipRule(t *testing.T) {
	router, _ := newTestServer(t)

	body := types.CalendarSlot{
		PublicationID: "pub-core",
		DayOfWeek:     5,
		SkipRules:     []types.SkipRule{{Date: "13-40"}},
		IsActive:      true,
	}
	rec := doRequest(t, router, http.MethodPost, "/api/v1/config/slots", body)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnprocessableEntity)
	}
}
