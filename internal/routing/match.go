package routing

import (
	"sort"

	"github.com/hyperengineering/deskflow/internal/types"
)

// MatchResult is the routing decision produced by the first matching rule.
type MatchResult struct {
	Rule           types.RoutingRule    `json:"rule"`
	RoutesTo       types.Destination    `json:"routes_to"`
	YouTubeVersion types.YouTubeVersion `json:"youtube_version"`
}

// Match evaluates active rules against the idea's attributes in priority
// order (ascending, ties broken by rule ID for determinism) and returns
// the first rule whose condition tree matches.
//
// Returns ErrNoMatchingRule when nothing matches. A well-formed rule set
// contains an always-true catch-all at the lowest priority, so this is a
// configuration defect rather than an expected outcome.
func Match(rules []types.RoutingRule, attrs map[string]any) (*MatchResult, error) {
	active := make([]types.RoutingRule, 0, len(rules))
	for _, r := range rules {
		if r.IsActive {
			active = append(active, r)
		}
	}

	sort.SliceStable(active, func(i, j int) bool {
		if active[i].Priority != active[j].Priority {
			return active[i].Priority < active[j].Priority
		}
		return active[i].ID < active[j].ID
	})

	for _, rule := range active {
		if Evaluate(rule.Conditions, attrs) {
			return &MatchResult{
				Rule:           rule,
				RoutesTo:       rule.RoutesTo,
				YouTubeVersion: rule.YouTubeVersion,
			}, nil
		}
	}

	return nil, ErrNoMatchingRule
}
