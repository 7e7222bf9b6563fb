package routing

import (
	"testing"
	"time"

	"github.com/hyperengineering/deskflow/internal/types"
)

var alertCfg = AlertConfig{
	IntakeFreshness:    48 * time.Hour,
	MinEvergreenBuffer: 3,
	DuplicateWindow:    30 * 24 * time.Hour,
}

func alertsOfKind(alerts []types.Alert, kind types.AlertKind) []types.Alert {
	var out []types.Alert
	for _, a := range alerts {
		if a.Kind == kind {
			out = append(out, a)
		}
	}
	return out
}

func TestBuildAlerts_StaleIntake(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	pending := []PendingIdea{
		{RoutingID: "r-1", Title: "AI launch reaction", Status: types.StatusIntake, Sensitivity: types.SensitivityNewsHook, CreatedAt: now.Add(-72 * time.Hour)},
		{RoutingID: "r-2", Title: "fresh news", Status: types.StatusIntake, Sensitivity: types.SensitivityNewsHook, CreatedAt: now.Add(-2 * time.Hour)},
		{RoutingID: "r-3", Title: "old evergreen guide", Status: types.StatusRouted, Sensitivity: types.SensitivityEvergreen, CreatedAt: now.Add(-200 * time.Hour)},
	}

	alerts := BuildAlerts(pending, nil, nil, nil, nil, alertCfg, now)
	stale := alertsOfKind(alerts, types.AlertStaleIntake)
	if len(stale) != 1 {
		t.Fatalf("stale intake alerts = %d, want 1 (only the aged perishable idea)", len(stale))
	}
	if stale[0].RoutingID != "r-1" {
		t.Errorf("RoutingID = %s, want r-1", stale[0].RoutingID)
	}
}

func TestBuildAlerts_LowEvergreenBuffer(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	pubs := []types.Publication{
		{ID: "pub-core", Name: "Core", IsActive: true},
		{ID: "pub-beginner", Name: "Beginner", IsActive: true},
		{ID: "pub-old", Name: "Retired", IsActive: false},
	}
	depths := map[string]int{"pub-core": 5, "pub-beginner": 1}

	alerts := BuildAlerts(nil, depths, pubs, nil, nil, alertCfg, now)
	low := alertsOfKind(alerts, types.AlertLowEvergreenBuffer)
	if len(low) != 1 {
		t.Fatalf("low buffer alerts = %d, want 1", len(low))
	}
	if low[0].PublicationID != "pub-beginner" {
		t.Errorf("PublicationID = %s, want pub-beginner", low[0].PublicationID)
	}
}

func TestBuildAlerts_SlotConflict(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	date := types.NewDate(2025, 3, 12)
	schedule := []types.ScheduleEntry{
		{PublicationID: "pub-core", CalendarDate: date, RoutingID: "r-1"},
		{PublicationID: "pub-core", CalendarDate: date, RoutingID: "r-2"},
		{PublicationID: "pub-beginner", CalendarDate: date, RoutingID: "r-3"},
	}

	alerts := BuildAlerts(nil, nil, nil, schedule, nil, alertCfg, now)
	conflicts := alertsOfKind(alerts, types.AlertSlotConflict)
	if len(conflicts) != 1 {
		t.Fatalf("slot conflict alerts = %d, want 1", len(conflicts))
	}
	if conflicts[0].PublicationID != "pub-core" {
		t.Errorf("PublicationID = %s, want pub-core", conflicts[0].PublicationID)
	}
}

func TestBuildAlerts_DuplicateTopic(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	topics := []RecentTopic{
		{RoutingID: "r-1", Title: "Complete Guide to Prompt Caching"},
		{RoutingID: "r-2", Title: "The Complete Prompt Caching Guide"},
		{RoutingID: "r-3", Title: "Kubernetes cost cutting tactics"},
	}

	alerts := BuildAlerts(nil, nil, nil, nil, topics, alertCfg, now)
	dups := alertsOfKind(alerts, types.AlertDuplicateTopic)
	if len(dups) != 1 {
		t.Fatalf("duplicate topic alerts = %d, want 1", len(dups))
	}
	if dups[0].RoutingID != "r-1" {
		t.Errorf("RoutingID = %s, want r-1", dups[0].RoutingID)
	}
}

func TestBuildAlerts_DeterministicOrder(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	pubs := []types.Publication{
		{ID: "pub-b", Name: "B", IsActive: true},
		{ID: "pub-a", Name: "A", IsActive: true},
	}

	first := BuildAlerts(nil, nil, pubs, nil, nil, alertCfg, now)
	reversed := []types.Publication{pubs[1], pubs[0]}
	second := BuildAlerts(nil, nil, reversed, nil, nil, alertCfg, now)

	if len(first) != len(second) {
		t.Fatalf("alert counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].Message != second[i].Message {
			t.Errorf("alert %d differs: %q vs %q", i, first[i].Message, second[i].Message)
		}
	}
}

func TestTopicSimilarity(t *testing.T) {
	tests := []struct {
		a, b string
		min  float64
		max  float64
	}{
		{"Complete Guide to Prompt Caching", "The Complete Prompt Caching Guide", 0.99, 1.0},
		{"Kubernetes cost cutting", "Postgres index tuning", 0, 0.01},
		{"", "anything at all", 0, 0},
		{"Prompt caching basics", "Prompt caching deep dive", 0.3, 0.5},
	}
	for _, tt := range tests {
		got := TopicSimilarity(tt.a, tt.b)
		if got < tt.min || got > tt.max {
			t.Errorf("TopicSimilarity(%q, %q) = %v, want in [%v, %v]", tt.a, tt.b, got, tt.min, tt.max)
		}
	}
}
