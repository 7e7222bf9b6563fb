package routing

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/hyperengineering/deskflow/internal/types"
)

func activeRule(id string, priority int, cond types.Condition, routesTo types.Destination) types.RoutingRule {
	return types.RoutingRule{
		ID:             id,
		Name:           "rule-" + id,
		Priority:       priority,
		IsActive:       true,
		Conditions:     cond,
		RoutesTo:       routesTo,
		YouTubeVersion: types.YouTubeTBD,
	}
}

func TestMatch_PriorityOrder(t *testing.T) {
	// The low-priority executive rule beats the catch-all despite list order.
	rules := []types.RoutingRule{
		activeRule("r1", 10, types.Always(), types.DestinationBoth),
		activeRule("r2", 1, types.Leaf("audience", types.OpEq, "executive"), types.DestinationCore),
	}

	idea := types.Idea{Audience: types.AudienceExecutive}
	result, err := Match(rules, idea.Attributes())
	if err != nil {
		t.Fatalf("Match: %v", err)
	}

	if result.Rule.Priority != 1 {
		t.Errorf("matched priority = %d, want 1", result.Rule.Priority)
	}
	if result.RoutesTo != types.DestinationCore {
		t.Errorf("RoutesTo = %s, want core", result.RoutesTo)
	}
}

func TestMatch_FallsThroughToCatchAll(t *testing.T) {
	rules := []types.RoutingRule{
		activeRule("r1", 1, types.Leaf("audience", types.OpEq, "executive"), types.DestinationCore),
		activeRule("r2", 100, types.Always(), types.DestinationBoth),
	}

	idea := types.Idea{Audience: types.AudienceBeginner}
	result, err := Match(rules, idea.Attributes())
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if result.Rule.ID != "r2" {
		t.Errorf("matched rule = %s, want catch-all r2", result.Rule.ID)
	}
}

func TestMatch_InactiveRulesIgnored(t *testing.T) {
	inactive := activeRule("r1", 1, types.Always(), types.DestinationCore)
	inactive.IsActive = false
	rules := []types.RoutingRule{
		inactive,
		activeRule("r2", 50, types.Always(), types.DestinationBeginner),
	}

	result, err := Match(rules, types.Idea{}.Attributes())
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if result.Rule.ID != "r2" {
		t.Errorf("matched rule = %s, want r2", result.Rule.ID)
	}
}

func TestMatch_PriorityTieBrokenByID(t *testing.T) {
	rules := []types.RoutingRule{
		activeRule("zzz", 5, types.Always(), types.DestinationCore),
		activeRule("aaa", 5, types.Always(), types.DestinationBeginner),
	}

	result, err := Match(rules, types.Idea{}.Attributes())
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if result.Rule.ID != "aaa" {
		t.Errorf("matched rule = %s, want aaa (ID tiebreak)", result.Rule.ID)
	}
}

func TestMatch_NoRuleMatches(t *testing.T) {
	rules := []types.RoutingRule{
		activeRule("r1", 1, types.Leaf("audience", types.OpEq, "executive"), types.DestinationCore),
	}

	_, err := Match(rules, types.Idea{Audience: types.AudienceBeginner}.Attributes())
	if !errors.Is(err, ErrNoMatchingRule) {
		t.Errorf("err = %v, want ErrNoMatchingRule", err)
	}
}

// With a catch-all present at lowest priority, match never fails for any
// attribute combination.
func TestMatch_CatchAllCoverageProperty(t *testing.T) {
	rules := []types.RoutingRule{
		activeRule("r1", 1, types.Leaf("audience", types.OpEq, "executive"), types.DestinationCore),
		activeRule("r2", 2, types.And(
			types.Leaf("is_foundational", types.OpEq, true),
			types.Leaf("estimated_length", types.OpGe, 2000),
		), types.DestinationBeginner),
		activeRule("r3", 3, types.Or(
			types.Leaf("has_contrarian_angle", types.OpEq, true),
			types.Leaf("time_sensitivity", types.OpEq, "news_hook"),
		), types.DestinationBoth),
		activeRule("catch-all", 1000, types.Always(), types.DestinationCore),
	}

	audiences := []types.Audience{types.AudienceBeginner, types.AudienceIntermediate, types.AudienceExecutive}
	sensitivities := []types.TimeSensitivity{types.SensitivityEvergreen, types.SensitivityNewsHook, types.SensitivityLaunchTie, types.SensitivitySeasonal}

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 500; i++ {
		idea := types.Idea{
			Title:              fmt.Sprintf("idea-%d", i),
			Audience:           audiences[rng.Intn(len(audiences))],
			TimeSensitivity:    sensitivities[rng.Intn(len(sensitivities))],
			EstimatedLength:    rng.Intn(6000),
			IsFoundational:     rng.Intn(2) == 0,
			HasContrarianAngle: rng.Intn(2) == 0,
			HasDataBacking:     rng.Intn(2) == 0,
		}
		if _, err := Match(rules, idea.Attributes()); err != nil {
			t.Fatalf("Match failed for random idea %d: %v", i, err)
		}
	}
}

func TestMatch_Deterministic(t *testing.T) {
	rules := []types.RoutingRule{
		activeRule("r1", 3, types.Leaf("has_data_backing", types.OpEq, true), types.DestinationCore),
		activeRule("r2", 3, types.Leaf("has_data_backing", types.OpEq, true), types.DestinationBoth),
		activeRule("catch-all", 99, types.Always(), types.DestinationBeginner),
	}
	idea := types.Idea{HasDataBacking: true}

	first, err := Match(rules, idea.Attributes())
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := Match(rules, idea.Attributes())
		if err != nil {
			t.Fatalf("Match: %v", err)
		}
		if again.Rule.ID != first.Rule.ID {
			t.Fatalf("run %d matched %s, first run matched %s", i, again.Rule.ID, first.Rule.ID)
		}
	}
}
