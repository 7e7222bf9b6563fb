package routing

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/hyperengineering/deskflow/internal/types"
)

// Score computes a publication's weighted total for an idea and resolves
// it to a quality tier. The returned breakdown records every rubric's
// contribution and every applied modifier for audit.
//
// Weights are normalized by the sum of active non-modifier rubric weights,
// so totals are comparable across publications with differing rubric
// counts. Modifier rubrics apply after the base sum: baseline first, then
// every matching condition modifier cumulatively. The total is clamped to
// [0,100] and rounded half-to-even at the given decimal precision before
// tier resolution.
func Score(idea types.Idea, publicationID string, rubrics []types.ScoringRubric, thresholds []types.TierThreshold, precision int) (*types.ScoreBreakdown, error) {
	var base, modifiers []types.ScoringRubric
	for _, r := range rubrics {
		if !r.IsActive || r.PublicationID != publicationID {
			continue
		}
		if r.IsModifier {
			modifiers = append(modifiers, r)
		} else {
			base = append(base, r)
		}
	}
	if len(base) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoRubrics, publicationID)
	}

	// Deterministic rubric order regardless of load order.
	sort.Slice(base, func(i, j int) bool { return base[i].ID < base[j].ID })
	sort.Slice(modifiers, func(i, j int) bool { return modifiers[i].ID < modifiers[j].ID })

	var weightSum float64
	for _, r := range base {
		weightSum += r.Weight
	}

	breakdown := &types.ScoreBreakdown{PublicationID: publicationID}
	var total float64
	for _, r := range base {
		raw, criterion := criterionScore(r, idea)
		normWeight := r.Weight / weightSum
		weighted := raw * normWeight
		total += weighted
		breakdown.Contributions = append(breakdown.Contributions, types.RubricContribution{
			RubricID:         r.ID,
			RubricName:       r.Name,
			RawScore:         raw,
			Weight:           r.Weight,
			NormalizedWeight: normWeight,
			WeightedScore:    weighted,
			Criterion:        criterion,
		})
	}
	breakdown.BaseScore = total

	attrs := idea.Attributes()
	for _, r := range modifiers {
		total += r.BaselineScore
		for _, m := range r.Modifiers {
			if Evaluate(parseModifierCondition(m.Condition), attrs) {
				total += m.Modifier
				breakdown.Modifiers = append(breakdown.Modifiers, types.ModifierApplication{
					RubricID:  r.ID,
					Condition: m.Condition,
					Modifier:  m.Modifier,
				})
			}
		}
	}

	total = math.Max(0, math.Min(100, total))
	total = roundHalfEven(total, precision)
	breakdown.Total = total

	tier, err := ResolveTier(total, publicationID, thresholds)
	if err != nil {
		return nil, err
	}
	breakdown.Tier = tier
	return breakdown, nil
}

// criterionScore selects which criterion band applies for a base rubric,
// per its declared source field and match strategy. When no criterion
// matches, the rubric contributes zero.
func criterionScore(r types.ScoringRubric, idea types.Idea) (float64, string) {
	attrs := idea.Attributes()

	switch r.MatchStrategy {
	case types.MatchNumericBand:
		v, ok := attrs[r.SourceField]
		if !ok {
			return 0, ""
		}
		n, ok := toNumber(v)
		if !ok {
			return 0, ""
		}
		return numericBandScore(r.Criteria, n)
	case types.MatchFlagCount:
		return numericBandScore(r.Criteria, float64(idea.FlagCount()))
	default: // MatchExact, and the zero value for legacy rubric rows
		v, ok := attrs[r.SourceField]
		if !ok {
			return 0, ""
		}
		s := normalize(v)
		for _, c := range r.Criteria {
			if c.Value == s {
				return c.Score, c.Description
			}
		}
		return 0, ""
	}
}

// numericBandScore finds the first [min,max) band containing n.
func numericBandScore(criteria []types.ScoringCriterion, n float64) (float64, string) {
	for _, c := range criteria {
		if n >= c.MinValue && n < c.MaxValue {
			return c.Score, c.Description
		}
	}
	return 0, ""
}

// parseModifierCondition turns a modifier condition string into a leaf
// condition: "field=value" compares the field to the value, a bare name
// tests a boolean flag for true.
func parseModifierCondition(s string) types.Condition {
	if field, value, found := strings.Cut(s, "="); found {
		field = strings.TrimSpace(field)
		value = strings.TrimSpace(value)
		return types.Leaf(field, types.OpEq, parseConditionValue(value))
	}
	return types.Leaf(strings.TrimSpace(s), types.OpEq, true)
}

// parseConditionValue interprets a modifier value literal as bool, number,
// or string.
func parseConditionValue(s string) any {
	switch s {
	case "true":
		return true
	case "false":
		return false
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

// roundHalfEven rounds to the given number of decimal places using
// round-half-to-even, avoiding systematic bias at tier boundaries.
func roundHalfEven(v float64, precision int) float64 {
	if precision < 0 {
		precision = 0
	}
	scale := math.Pow(10, float64(precision))
	return math.RoundToEven(v*scale) / scale
}

// ResolveTier finds the threshold band containing score. Per-publication
// thresholds take precedence over global ones when any exist for the
// publication. Bands are checked in ascending min_score order; a band
// contains score when min <= score < max, and the topmost band is
// upper-inclusive so a score of exactly its max still resolves.
//
// Returns ErrNoTierMatch when no band contains the score; exhaustive
// coverage is a setup-time invariant, and the resolver never silently
// defaults to a tier.
func ResolveTier(score float64, publicationID string, thresholds []types.TierThreshold) (types.Tier, error) {
	bands := SelectThresholds(publicationID, thresholds)

	sort.Slice(bands, func(i, j int) bool { return bands[i].MinScore < bands[j].MinScore })

	for i, b := range bands {
		top := i == len(bands)-1
		if score >= b.MinScore && (score < b.MaxScore || (top && score == b.MaxScore)) {
			return b.Tier, nil
		}
	}
	return "", fmt.Errorf("%w: score %v, publication %s", ErrNoTierMatch, score, publicationID)
}

// SelectThresholds returns the active threshold set in scope for a
// publication: its own bands when any exist, otherwise the global bands.
func SelectThresholds(publicationID string, thresholds []types.TierThreshold) []types.TierThreshold {
	var scoped, global []types.TierThreshold
	for _, t := range thresholds {
		if !t.IsActive {
			continue
		}
		switch {
		case publicationID != "" && t.PublicationID == publicationID:
			scoped = append(scoped, t)
		case t.PublicationID == "":
			global = append(global, t)
		}
	}
	if len(scoped) > 0 {
		return scoped
	}
	return global
}

// ThresholdFor returns the band configured for the given tier in the
// publication's scope. The boolean result is false when the tier has no
// band there.
func ThresholdFor(tier types.Tier, publicationID string, thresholds []types.TierThreshold) (types.TierThreshold, bool) {
	for _, t := range SelectThresholds(publicationID, thresholds) {
		if t.Tier == tier {
			return t, true
		}
	}
	return types.TierThreshold{}, false
}
