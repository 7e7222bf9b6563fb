package types

import (
	"encoding/json"
	"testing"
	"time"
)

func TestValidTransition_PipelineOrder(t *testing.T) {
	tests := []struct {
		from, to RoutingStatus
		want     bool
	}{
		{StatusIntake, StatusRouted, true},
		{StatusRouted, StatusScored, true},
		{StatusScored, StatusSlotted, true},
		{StatusSlotted, StatusScheduled, true},
		{StatusScheduled, StatusPublished, true},
		{StatusScored, StatusRouted, false}, // re-scoring never walks backward
		{StatusIntake, StatusScored, false},
		{StatusPublished, StatusScheduled, false},
	}

	for _, tt := range tests {
		if got := ValidTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("ValidTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestValidTransition_KilledFromAnyNonTerminal(t *testing.T) {
	for _, from := range []RoutingStatus{StatusIntake, StatusRouted, StatusScored, StatusSlotted, StatusScheduled} {
		if !ValidTransition(from, StatusKilled) {
			t.Errorf("ValidTransition(%s, killed) = false, want true", from)
		}
	}
	for _, from := range []RoutingStatus{StatusPublished, StatusKilled} {
		if ValidTransition(from, StatusKilled) {
			t.Errorf("ValidTransition(%s, killed) = true, want false", from)
		}
	}
}

func TestTierRank_TotalOrder(t *testing.T) {
	ordered := []Tier{TierKill, TierC, TierB, TierA, TierPremiumA}
	for i := 1; i < len(ordered); i++ {
		if ordered[i].Rank() <= ordered[i-1].Rank() {
			t.Errorf("Rank(%s) = %d, want greater than Rank(%s) = %d",
				ordered[i], ordered[i].Rank(), ordered[i-1], ordered[i-1].Rank())
		}
	}

	if Tier("bogus").Rank() != -1 {
		t.Errorf("unknown tier rank = %d, want -1", Tier("bogus").Rank())
	}
}

func TestIdeaFlagCount(t *testing.T) {
	idea := Idea{IsFoundational: true, HasContrarianAngle: true, NeedsVisualDemo: true}
	if got := idea.FlagCount(); got != 3 {
		t.Errorf("FlagCount() = %d, want 3", got)
	}
}

func TestDate_RoundTrip(t *testing.T) {
	d, err := ParseDate("2025-03-03")
	if err != nil {
		t.Fatalf("ParseDate: %v", err)
	}

	if d.Weekday() != 1 { // 2025-03-03 is a Monday
		t.Errorf("Weekday() = %d, want 1", d.Weekday())
	}
	if got := d.AddDays(2).String(); got != "2025-03-05" {
		t.Errorf("AddDays(2) = %s, want 2025-03-05", got)
	}
	if got := d.MonthDay(); got != "03-03" {
		t.Errorf("MonthDay() = %s, want 03-03", got)
	}

	b, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(b) != `"2025-03-03"` {
		t.Errorf("Marshal = %s, want %q", b, "2025-03-03")
	}

	var back Date
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !back.Equal(d) {
		t.Errorf("round trip = %s, want %s", back, d)
	}
}

func TestDate_AddDaysCrossesYearEnd(t *testing.T) {
	d := NewDate(2024, time.December, 30)
	if got := d.AddDays(7).String(); got != "2025-01-06" {
		t.Errorf("AddDays(7) = %s, want 2025-01-06", got)
	}
}

func TestValidMonthDay(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"01-05", true},
		{"12-31", true},
		{"02-29", true}, // leap-day skip rules are legal
		{"13-01", false},
		{"1-5", false},
		{"01/05", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := ValidMonthDay(tt.in); got != tt.want {
			t.Errorf("ValidMonthDay(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestCondition_UnmarshalShapes(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want ConditionKind
	}{
		{"always", `{"always": true}`, ConditionAlways},
		{"and", `{"and": [{"always": true}]}`, ConditionAnd},
		{"empty and", `{"and": []}`, ConditionAnd},
		{"or", `{"or": [{"field": "audience", "op": "=", "value": "beginner"}]}`, ConditionOr},
		{"leaf", `{"field": "audience", "op": "=", "value": "beginner"}`, ConditionLeaf},
		{"numeric leaf", `{"field": "estimated_length", "op": ">=", "value": 2000}`, ConditionLeaf},
		{"unknown op", `{"field": "audience", "op": "~", "value": "x"}`, ConditionInvalid},
		{"empty object", `{}`, ConditionInvalid},
		{"garbage keys", `{"nor": []}`, ConditionInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c Condition
			if err := json.Unmarshal([]byte(tt.in), &c); err != nil {
				t.Fatalf("Unmarshal(%s): %v", tt.in, err)
			}
			if c.Kind != tt.want {
				t.Errorf("Kind = %s, want %s", c.Kind, tt.want)
			}
		})
	}
}

func TestCondition_AlwaysWinsOverExtraKeys(t *testing.T) {
	// Malformed extra keys alongside always are ignored, not an error.
	var c Condition
	if err := json.Unmarshal([]byte(`{"always": true, "field": "audience", "op": "="}`), &c); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if c.Kind != ConditionAlways {
		t.Errorf("Kind = %s, want always", c.Kind)
	}
}

func TestCondition_MarshalRoundTrip(t *testing.T) {
	orig := And(
		Leaf("audience", OpEq, "beginner"),
		Or(Leaf("is_foundational", OpEq, true), Always()),
	)

	b, err := json.Marshal(orig)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var back Condition
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if back.Kind != ConditionAnd || len(back.Children) != 2 {
		t.Fatalf("round trip kind = %s children = %d, want and with 2", back.Kind, len(back.Children))
	}
	if back.Children[0].Kind != ConditionLeaf || back.Children[0].Field != "audience" {
		t.Errorf("child[0] = %+v, want audience leaf", back.Children[0])
	}
	if back.Children[1].Kind != ConditionOr || len(back.Children[1].Children) != 2 {
		t.Errorf("child[1] = %+v, want or with 2 children", back.Children[1])
	}
}

func TestCondition_InvalidNodePreservesRaw(t *testing.T) {
	raw := `{"nor":[{"always":true}]}`
	var c Condition
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if c.Kind != ConditionInvalid {
		t.Fatalf("Kind = %s, want invalid", c.Kind)
	}

	b, err := json.Marshal(c)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(b) != raw {
		t.Errorf("Marshal = %s, want original bytes %s", b, raw)
	}
}

func TestScoreBreakdown_MarshalNilContributions(t *testing.T) {
	b, err := json.Marshal(ScoreBreakdown{PublicationID: "pub1", Tier: TierB})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if _, ok := m["contributions"].([]any); !ok {
		t.Errorf("contributions = %v, want []", m["contributions"])
	}
}
