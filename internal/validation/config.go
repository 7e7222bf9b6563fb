package validation

import (
	"sort"

	"github.com/hyperengineering/deskflow/internal/types"
)

const (
	maxTitleLength  = 500
	maxNameLength   = 200
	maxReasonLength = 1000
)

var (
	audienceValues      = []string{"beginner", "intermediate", "executive"}
	sensitivityValues   = []string{"evergreen", "news_hook", "launch_tie", "seasonal"}
	destinationValues   = []string{"core", "beginner", "both"}
	youtubeValues       = []string{"yes", "no", "tbd"}
	publicationTypes    = []string{"newsletter", "video"}
	tierValues          = []string{"premium_a", "a", "b", "c", "kill"}
	matchStrategyValues = []string{"", "exact", "numeric_band", "flag_count"}
)

// ValidateIdea checks an intake payload.
func ValidateIdea(idea types.Idea) []ValidationError {
	var c Collector
	c.Add(ValidateRequired("title", idea.Title))
	c.Add(ValidateUTF8("title", idea.Title))
	c.Add(ValidateMaxLength("title", idea.Title, maxTitleLength))
	c.Add(ValidateEnum("audience", string(idea.Audience), audienceValues))
	c.Add(ValidateEnum("time_sensitivity", string(idea.TimeSensitivity), sensitivityValues))
	if idea.EstimatedLength < 0 {
		c.Addf("estimated_length", "must not be negative")
	}
	return c.Errors()
}

// ValidateOverride checks that override values carry a reason.
func ValidateOverride(o *types.OverrideSpec) []ValidationError {
	if o == nil {
		return nil
	}
	var c Collector
	if o.Destination != nil {
		c.Add(ValidateEnum("override.destination", string(*o.Destination), destinationValues))
	}
	if o.Score != nil {
		c.Add(ValidateRange("override.score", *o.Score, 0, 100))
	}
	if (o.Destination != nil || o.Score != nil || o.SlotID != nil) && o.Reason == "" {
		c.Addf("override.reason", "is required when any override value is set")
	}
	c.Add(ValidateMaxLength("override.reason", o.Reason, maxReasonLength))
	return c.Errors()
}

// ValidateRule checks a single routing rule.
func ValidateRule(rule types.RoutingRule) []ValidationError {
	var c Collector
	c.Add(ValidateRequired("name", rule.Name))
	c.Add(ValidateMaxLength("name", rule.Name, maxNameLength))
	c.Add(ValidateEnum("routes_to", string(rule.RoutesTo), destinationValues))
	c.Add(ValidateEnum("youtube_version", string(rule.YouTubeVersion), youtubeValues))
	if rule.Priority < 0 {
		c.Addf("priority", "must not be negative")
	}
	validateCondition(&c, "conditions", rule.Conditions)
	return c.Errors()
}

func validateCondition(c *Collector, field string, cond types.Condition) {
	switch cond.Kind {
	case types.ConditionAlways:
	case types.ConditionAnd, types.ConditionOr:
		for _, child := range cond.Children {
			validateCondition(c, field, child)
		}
	case types.ConditionLeaf:
		if cond.Field == "" {
			c.Addf(field, "leaf condition missing field")
		}
		if !cond.Op.Valid() {
			c.Addf(field, "leaf condition has unknown operator %q", string(cond.Op))
		}
	default:
		c.Addf(field, "condition did not match any known shape")
	}
}

// ValidateRuleSet checks invariants across the active rule set: matching
// must always terminate, so exactly one active always-true rule must sit
// at the lowest priority (highest number).
func ValidateRuleSet(rules []types.RoutingRule) []ValidationError {
	var c Collector

	var active []types.RoutingRule
	for _, r := range rules {
		if r.IsActive {
			active = append(active, r)
		}
	}
	if len(active) == 0 {
		c.Addf("rules", "at least one active rule is required")
		return c.Errors()
	}

	var catchAlls []types.RoutingRule
	maxPriority := active[0].Priority
	for _, r := range active {
		if r.Priority > maxPriority {
			maxPriority = r.Priority
		}
		if r.Conditions.Kind == types.ConditionAlways {
			catchAlls = append(catchAlls, r)
		}
	}

	switch len(catchAlls) {
	case 0:
		c.Addf("rules", "an active catch-all rule is required so matching always terminates")
	case 1:
		if catchAlls[0].Priority != maxPriority {
			c.Addf("rules", "catch-all rule %q must have the lowest priority (highest number)", catchAlls[0].Name)
		}
	default:
		c.Addf("rules", "only one active catch-all rule is allowed, found %d", len(catchAlls))
	}
	return c.Errors()
}

// ValidatePublication checks a publication payload.
func ValidatePublication(pub types.Publication) []ValidationError {
	var c Collector
	c.Add(ValidateRequired("name", pub.Name))
	c.Add(ValidateRequired("slug", pub.Slug))
	c.Add(ValidateEnum("type", string(pub.Type), publicationTypes))
	if pub.WeeklyTarget < 0 {
		c.Addf("weekly_target", "must not be negative")
	}
	if pub.UnifiedWith == pub.ID && pub.ID != "" {
		c.Addf("unified_with", "must not reference the publication itself")
	}
	return c.Errors()
}

// ValidateRubric checks a scoring rubric payload.
func ValidateRubric(rubric types.ScoringRubric) []ValidationError {
	var c Collector
	c.Add(ValidateRequired("publication_id", rubric.PublicationID))
	c.Add(ValidateRequired("name", rubric.Name))
	c.Add(ValidateEnum("match_strategy", string(rubric.MatchStrategy), matchStrategyValues))

	if rubric.IsModifier {
		if len(rubric.Criteria) > 0 {
			c.Addf("criteria", "modifier rubrics carry modifiers, not criteria")
		}
		for i, m := range rubric.Modifiers {
			if m.Condition == "" {
				c.Addf("modifiers", "modifier %d missing condition", i)
			}
		}
		return c.Errors()
	}

	if rubric.Weight <= 0 {
		c.Addf("weight", "must be positive for base rubrics")
	}
	if len(rubric.Criteria) == 0 {
		c.Addf("criteria", "base rubrics require at least one criterion")
	}
	if rubric.MatchStrategy != types.MatchFlagCount && rubric.SourceField == "" {
		c.Addf("source_field", "is required unless the strategy is flag_count")
	}
	for i, crit := range rubric.Criteria {
		c.Add(ValidateRange("criteria.score", crit.Score, 0, 100))
		if rubric.MatchStrategy == types.MatchNumericBand || rubric.MatchStrategy == types.MatchFlagCount {
			if crit.MaxValue <= crit.MinValue {
				c.Addf("criteria", "criterion %d band is empty (max <= min)", i)
			}
		} else if crit.Value == "" {
			c.Addf("criteria", "criterion %d missing value", i)
		}
	}
	return c.Errors()
}

// ValidateThresholds checks a threshold scope for exhaustive tier
// coverage: bands must not overlap, must leave no gaps, and together must
// cover [0,100] so every score resolves to a tier. The scope is one
// publication's bands or the global set; callers group before validating.
func ValidateThresholds(thresholds []types.TierThreshold) []ValidationError {
	var c Collector

	var active []types.TierThreshold
	for _, t := range thresholds {
		if t.IsActive {
			active = append(active, t)
		}
	}
	if len(active) == 0 {
		c.Addf("thresholds", "at least one active threshold band is required")
		return c.Errors()
	}

	for _, t := range active {
		c.Add(ValidateEnum("tier", string(t.Tier), tierValues))
		if t.MaxScore <= t.MinScore {
			c.Addf("thresholds", "band %s is empty (max_score <= min_score)", t.ID)
		}
	}

	sorted := make([]types.TierThreshold, len(active))
	copy(sorted, active)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].MinScore < sorted[j].MinScore })

	if sorted[0].MinScore != 0 {
		c.Addf("thresholds", "coverage must start at 0, first band starts at %v", sorted[0].MinScore)
	}
	if last := sorted[len(sorted)-1]; last.MaxScore != 100 {
		c.Addf("thresholds", "coverage must end at 100, last band ends at %v", last.MaxScore)
	}
	for i := 1; i < len(sorted); i++ {
		prev, cur := sorted[i-1], sorted[i]
		if cur.MinScore < prev.MaxScore {
			c.Addf("thresholds", "bands %s and %s overlap", prev.ID, cur.ID)
		} else if cur.MinScore > prev.MaxScore {
			c.Addf("thresholds", "gap between bands %s and %s: scores in [%v,%v) resolve to no tier", prev.ID, cur.ID, prev.MaxScore, cur.MinScore)
		}
	}
	return c.Errors()
}

// ValidateSlot checks a calendar slot payload.
func ValidateSlot(slot types.CalendarSlot) []ValidationError {
	var c Collector
	c.Add(ValidateRequired("publication_id", slot.PublicationID))
	if slot.DayOfWeek < 0 || slot.DayOfWeek > 6 {
		c.Addf("day_of_week", "must be 0 (Sunday) through 6 (Saturday)")
	}
	if slot.IsFixed && slot.FixedFormat == "" {
		c.Addf("fixed_format", "is required for fixed slots")
	}
	if slot.PreferredTier != "" && !slot.PreferredTier.Known() {
		c.Addf("preferred_tier", "unknown tier %q", string(slot.PreferredTier))
	}
	for i, rule := range slot.SkipRules {
		validateSkipRule(&c, i, rule)
	}
	return c.Errors()
}

func validateSkipRule(c *Collector, index int, rule types.SkipRule) {
	if rule.Date != "" {
		if rule.Start != "" || rule.End != "" {
			c.Addf("skip_rules", "rule %d sets both date and range", index)
		}
		if !types.ValidMonthDay(rule.Date) {
			c.Addf("skip_rules", "rule %d date %q is not MM-DD", index, rule.Date)
		}
		return
	}
	if rule.Start == "" || rule.End == "" {
		c.Addf("skip_rules", "rule %d requires either date or both start and end", index)
		return
	}
	if !types.ValidMonthDay(rule.Start) {
		c.Addf("skip_rules", "rule %d start %q is not MM-DD", index, rule.Start)
	}
	if !types.ValidMonthDay(rule.End) {
		c.Addf("skip_rules", "rule %d end %q is not MM-DD", index, rule.End)
	}
}
