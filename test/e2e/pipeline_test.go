// Package e2e exercises the full service stack: the public client against
// a real router, orchestrator, and SQLite store.
package e2e

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hyperengineering/deskflow/internal/api"
	"github.com/hyperengineering/deskflow/internal/routing"
	"github.com/hyperengineering/deskflow/internal/store"
	"github.com/hyperengineering/deskflow/internal/types"
	"github.com/hyperengineering/deskflow/pkg/deskflow"
)

const apiKey = "e2e-api-key"

// startServer boots the full stack over an in-memory store with the
// standard fixture configuration. The engine clock is pinned to Monday
// 2025-03-03 so Wednesday slots resolve to 2025-03-05, 2025-03-12, and
// so on.
func startServer(t *testing.T) (*deskflow.Client, store.Store) {
	t.Helper()

	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })

	seedConfig(t, s)

	clock := func() time.Time { return time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC) }
	engine := routing.NewOrchestrator(s, routing.EngineConfig{HorizonWeeks: 2, ClaimRetries: 3}, clock, nil)
	alertCfg := routing.AlertConfig{
		IntakeFreshness:    48 * time.Hour,
		MinEvergreenBuffer: 3,
		DuplicateWindow:    30 * 24 * time.Hour,
	}

	h := api.NewHandler(s, engine, alertCfg, apiKey, "e2e")
	srv := httptest.NewServer(api.NewRouter(h))
	t.Cleanup(srv.Close)

	client, err := deskflow.New(deskflow.Config{BaseURL: srv.URL, APIKey: apiKey})
	if err != nil {
		t.Fatalf("deskflow.New() error = %v", err)
	}
	return client, s
}

func seedConfig(t *testing.T, s store.Store) {
	t.Helper()
	ctx := context.Background()

	pubs := []types.Publication{
		{ID: "pub-core", Name: "Core", Slug: "core", Type: types.PublicationNewsletter, WeeklyTarget: 1, IsActive: true},
		{ID: "pub-beginner", Name: "Beginner", Slug: "beginner", Type: types.PublicationNewsletter, WeeklyTarget: 1, IsActive: true},
	}
	for i := range pubs {
		if err := s.CreatePublication(ctx, &pubs[i]); err != nil {
			t.Fatalf("CreatePublication() error = %v", err)
		}
	}

	rules := []types.RoutingRule{
		{
			ID: "rule-exec", Name: "executive pieces", Priority: 1, IsActive: true,
			Conditions: types.Leaf("audience", types.OpEq, "executive"),
			RoutesTo:   types.DestinationCore, YouTubeVersion: types.YouTubeNo,
		},
		{
			ID: "rule-default", Name: "default", Priority: 100, IsActive: true,
			Conditions: types.Always(),
			RoutesTo:   types.DestinationBeginner, YouTubeVersion: types.YouTubeNo,
		},
	}
	for i := range rules {
		if err := s.CreateRule(ctx, &rules[i]); err != nil {
			t.Fatalf("CreateRule() error = %v", err)
		}
	}

	for _, pubID := range []string{"pub-core", "pub-beginner"} {
		rubric := types.ScoringRubric{
			ID:            "rub-" + pubID,
			PublicationID: pubID,
			Name:          "audience fit",
			Weight:        1,
			SourceField:   "audience",
			MatchStrategy: types.MatchExact,
			Criteria: []types.ScoringCriterion{
				{Value: "executive", Score: 90},
				{Value: "beginner", Score: 65},
				{Value: "intermediate", Score: 20},
			},
			IsActive: true,
		}
		if err := s.CreateRubric(ctx, &rubric); err != nil {
			t.Fatalf("CreateRubric() error = %v", err)
		}
	}

	thresholds := []types.TierThreshold{
		{ID: "t-kill", Tier: types.TierKill, MinScore: 0, MaxScore: 30, IsActive: true, Actions: types.TierActions{DoNotProduce: true}},
		{ID: "t-c", Tier: types.TierC, MinScore: 30, MaxScore: 50, IsActive: true},
		{ID: "t-b", Tier: types.TierB, MinScore: 50, MaxScore: 80, IsActive: true},
		{ID: "t-a", Tier: types.TierA, MinScore: 80, MaxScore: 100, IsActive: true},
	}
	for i := range thresholds {
		if err := s.CreateThreshold(ctx, &thresholds[i]); err != nil {
			t.Fatalf("CreateThreshold() error = %v", err)
		}
	}

	slots := []types.CalendarSlot{
		{ID: "slot-core-wed", PublicationID: "pub-core", DayOfWeek: 3, TierPriority: 1, IsActive: true},
		{ID: "slot-beg-wed", PublicationID: "pub-beginner", DayOfWeek: 3, TierPriority: 1, IsActive: true},
	}
	for i := range slots {
		if err := s.CreateSlot(ctx, &slots[i]); err != nil {
			t.Fatalf("CreateSlot() error = %v", err)
		}
	}
}

func submit(t *testing.T, c *deskflow.Client, title string, audience types.Audience) *deskflow.IntakeResult {
	t.Helper()
	result, err := c.SubmitIdea(context.Background(), deskflow.Idea{
		Title:           title,
		Audience:        string(audience),
		TimeSensitivity: string(types.SensitivityEvergreen),
	}, nil)
	if err != nil {
		t.Fatalf("SubmitIdea(%q) error = %v", title, err)
	}
	return result
}

func TestPipeline_IntakeToSchedule(t *testing.T) {
	client, _ := startServer(t)
	ctx := context.Background()

	health, err := client.Health(ctx)
	if err != nil {
		t.Fatalf("Health() error = %v", err)
	}
	if health.Status != "healthy" || health.Version != "e2e" {
		t.Fatalf("health = %+v", health)
	}

	result := submit(t, client, "Board-level security metrics", types.AudienceExecutive)
	if result.Routing.Status != string(types.StatusScheduled) {
		t.Fatalf("Routing.Status = %q, want scheduled", result.Routing.Status)
	}
	if result.Routing.PublicationID != "pub-core" {
		t.Errorf("PublicationID = %q, want pub-core", result.Routing.PublicationID)
	}
	if result.Routing.Tier != string(types.TierA) {
		t.Errorf("Tier = %q, want a", result.Routing.Tier)
	}
	if result.Placement.Kind != "scheduled" || result.Placement.Schedule == nil {
		t.Fatalf("Placement = %+v, want scheduled with entry", result.Placement)
	}
	if result.Placement.Schedule.CalendarDate != "2025-03-05" {
		t.Errorf("CalendarDate = %q, want 2025-03-05", result.Placement.Schedule.CalendarDate)
	}

	detail, err := client.GetIdea(ctx, result.Idea.ID)
	if err != nil {
		t.Fatalf("GetIdea() error = %v", err)
	}
	if len(detail.StatusLog) != 4 {
		t.Fatalf("len(StatusLog) = %d, want 4", len(detail.StatusLog))
	}
	if detail.StatusLog[0].ToStatus != string(types.StatusRouted) {
		t.Errorf("first transition to = %q, want routed", detail.StatusLog[0].ToStatus)
	}
	if last := detail.StatusLog[len(detail.StatusLog)-1]; last.ToStatus != string(types.StatusScheduled) {
		t.Errorf("last transition to = %q, want scheduled", last.ToStatus)
	}

	stats, err := client.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.IdeasByStatus["scheduled"] != 1 {
		t.Errorf("IdeasByStatus[scheduled] = %d, want 1", stats.IdeasByStatus["scheduled"])
	}
}

func TestPipeline_OverflowToEvergreenAndPull(t *testing.T) {
	client, _ := startServer(t)
	ctx := context.Background()

	// Two Wednesdays inside the horizon, then the queue.
	first := submit(t, client, "Exec piece one", types.AudienceExecutive)
	second := submit(t, client, "Exec piece two", types.AudienceExecutive)
	third := submit(t, client, "Exec piece three", types.AudienceExecutive)

	if first.Placement.Schedule.CalendarDate != "2025-03-05" {
		t.Errorf("first date = %q, want 2025-03-05", first.Placement.Schedule.CalendarDate)
	}
	if second.Placement.Schedule.CalendarDate != "2025-03-12" {
		t.Errorf("second date = %q, want 2025-03-12", second.Placement.Schedule.CalendarDate)
	}
	if third.Placement.Kind != "evergreen" || third.Placement.Evergreen == nil {
		t.Fatalf("third placement = %+v, want evergreen", third.Placement)
	}

	queue, err := client.ListEvergreen(ctx, "pub-core")
	if err != nil {
		t.Fatalf("ListEvergreen() error = %v", err)
	}
	if len(queue) != 1 {
		t.Fatalf("len(queue) = %d, want 1", len(queue))
	}
	if queue[0].IdeaID != third.Idea.ID {
		t.Errorf("queued idea = %q, want %q", queue[0].IdeaID, third.Idea.ID)
	}

	pulled, err := client.PullEvergreen(ctx, "pub-core", "2025-03-19", "gap fill")
	if err != nil {
		t.Fatalf("PullEvergreen() error = %v", err)
	}
	if pulled.Idea.ID != third.Idea.ID {
		t.Errorf("pulled idea = %q, want %q", pulled.Idea.ID, third.Idea.ID)
	}
	if pulled.Routing.Status != string(types.StatusScheduled) {
		t.Errorf("pulled status = %q, want scheduled", pulled.Routing.Status)
	}
	if pulled.Routing.CalendarDate != "2025-03-19" {
		t.Errorf("pulled date = %q, want 2025-03-19", pulled.Routing.CalendarDate)
	}

	// Queue is now empty.
	if _, err := client.PullEvergreen(ctx, "pub-core", "2025-03-26", "again"); err == nil {
		t.Fatal("PullEvergreen() on empty queue should fail")
	}
}

func TestPipeline_ConfirmationPause(t *testing.T) {
	client, _ := startServer(t)
	ctx := context.Background()

	result, err := client.SubmitIdea(ctx, deskflow.Idea{
		Title:                "Needs a second pair of eyes",
		Audience:             string(types.AudienceExecutive),
		TimeSensitivity:      string(types.SensitivityEvergreen),
		RequiresConfirmation: true,
	}, nil)
	if err != nil {
		t.Fatalf("SubmitIdea() error = %v", err)
	}
	if result.Routing.Status != string(types.StatusSlotted) {
		t.Fatalf("Routing.Status = %q, want slotted", result.Routing.Status)
	}
	if result.Placement.Kind != "slotted" {
		t.Fatalf("Placement.Kind = %q, want slotted", result.Placement.Kind)
	}

	confirmed, err := client.Confirm(ctx, result.Idea.ID)
	if err != nil {
		t.Fatalf("Confirm() error = %v", err)
	}
	if confirmed.Status != string(types.StatusScheduled) {
		t.Errorf("confirmed status = %q, want scheduled", confirmed.Status)
	}

	// Confirming twice is a conflict.
	_, err = client.Confirm(ctx, result.Idea.ID)
	var apiErr *deskflow.APIError
	if !asAPIError(err, &apiErr) || apiErr.Status != http.StatusConflict {
		t.Errorf("second Confirm() error = %v, want 409", err)
	}
}

func TestPipeline_KillAndRescore(t *testing.T) {
	client, _ := startServer(t)
	ctx := context.Background()

	result := submit(t, client, "Mediocre listicle", types.AudienceIntermediate)
	// Intermediate scores 20, below the kill threshold.
	if result.Routing.Status != string(types.StatusKilled) {
		t.Fatalf("Routing.Status = %q, want killed", result.Routing.Status)
	}
	if result.Placement.Kind != "killed" {
		t.Fatalf("Placement.Kind = %q, want killed", result.Placement.Kind)
	}

	// Killing an already-killed idea conflicts.
	_, err := client.Kill(ctx, result.Idea.ID, "already dead")
	var apiErr *deskflow.APIError
	if !asAPIError(err, &apiErr) || apiErr.Status != http.StatusConflict {
		t.Errorf("Kill() on killed idea error = %v, want 409", err)
	}

	// Rescore requires a scored status; a scheduled idea conflicts.
	scheduled := submit(t, client, "Fresh executive piece", types.AudienceExecutive)
	_, err = client.Rescore(ctx, scheduled.Idea.ID)
	if !asAPIError(err, &apiErr) || apiErr.Status != http.StatusConflict {
		t.Errorf("Rescore() on scheduled idea error = %v, want 409", err)
	}
}

func TestPipeline_ValidationAndAuth(t *testing.T) {
	client, s := startServer(t)
	ctx := context.Background()

	_, err := client.SubmitIdea(ctx, deskflow.Idea{
		Audience:        "vip",
		TimeSensitivity: string(types.SensitivityEvergreen),
	}, nil)
	var apiErr *deskflow.APIError
	if !asAPIError(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if apiErr.Status != http.StatusUnprocessableEntity {
		t.Errorf("Status = %d, want 422", apiErr.Status)
	}
	if len(apiErr.Errors) != 2 {
		t.Errorf("len(Errors) = %d, want 2 (title, audience): %+v", len(apiErr.Errors), apiErr.Errors)
	}

	// A client with the wrong key is rejected before any handler runs.
	count, err := s.IdeaCount(ctx)
	if err != nil {
		t.Fatalf("IdeaCount() error = %v", err)
	}

	bad, err := deskflow.New(deskflow.Config{BaseURL: client.BaseURL(), APIKey: "wrong"})
	if err != nil {
		t.Fatalf("deskflow.New() error = %v", err)
	}
	_, err = bad.SubmitIdea(ctx, deskflow.Idea{
		Title:           "Sneaky",
		Audience:        string(types.AudienceBeginner),
		TimeSensitivity: string(types.SensitivityEvergreen),
	}, nil)
	if !asAPIError(err, &apiErr) || apiErr.Status != http.StatusUnauthorized {
		t.Fatalf("unauthenticated submit error = %v, want 401", err)
	}

	after, err := s.IdeaCount(ctx)
	if err != nil {
		t.Fatalf("IdeaCount() error = %v", err)
	}
	if after != count {
		t.Errorf("idea count changed from %d to %d after rejected request", count, after)
	}
}

func TestPipeline_AlertsSurfaceLowBuffer(t *testing.T) {
	client, _ := startServer(t)

	alerts, err := client.Alerts(context.Background())
	if err != nil {
		t.Fatalf("Alerts() error = %v", err)
	}
	// Both publications start with empty evergreen queues.
	low := 0
	for _, a := range alerts {
		if a.Kind == string(types.AlertLowEvergreenBuffer) {
			low++
		}
	}
	if low != 2 {
		t.Errorf("low buffer alerts = %d, want 2 (got %+v)", low, alerts)
	}
}

func TestPipeline_ListIdeasFilters(t *testing.T) {
	client, _ := startServer(t)
	ctx := context.Background()

	submit(t, client, "Scheduled piece", types.AudienceExecutive)
	submit(t, client, "Killed piece", types.AudienceIntermediate)

	scheduled, err := client.ListIdeas(ctx, "scheduled")
	if err != nil {
		t.Fatalf("ListIdeas(scheduled) error = %v", err)
	}
	if len(scheduled) != 1 {
		t.Errorf("len(scheduled) = %d, want 1", len(scheduled))
	}

	all, err := client.ListIdeas(ctx, "")
	if err != nil {
		t.Fatalf("ListIdeas(all) error = %v", err)
	}
	if len(all) != 2 {
		t.Errorf("len(all) = %d, want 2", len(all))
	}
}

func asAPIError(err error, target **deskflow.APIError) bool {
	if err == nil {
		return false
	}
	if e, ok := err.(*deskflow.APIError); ok {
		*target = e
		return true
	}
	return false
}
