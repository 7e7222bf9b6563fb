package routing

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/hyperengineering/deskflow/internal/types"
)

// Evaluate evaluates a condition tree against an idea's attribute map.
// It is a pure function over its inputs and never errors: malformed nodes
// evaluate to false and are reported through slog as configuration
// warnings, so one bad rule cannot break the matcher.
func Evaluate(cond types.Condition, attrs map[string]any) bool {
	switch cond.Kind {
	case types.ConditionAlways:
		return true
	case types.ConditionAnd:
		// Vacuous truth: an empty conjunction is true.
		for _, child := range cond.Children {
			if !Evaluate(child, attrs) {
				return false
			}
		}
		return true
	case types.ConditionOr:
		// An empty disjunction is false.
		for _, child := range cond.Children {
			if Evaluate(child, attrs) {
				return true
			}
		}
		return false
	case types.ConditionLeaf:
		return evaluateLeaf(cond, attrs)
	default:
		slog.Warn("malformed routing condition evaluated to false",
			"component", "routing",
			"raw", string(cond.Raw),
		)
		return false
	}
}

// evaluateLeaf applies a comparison operator to the attribute named by the
// leaf's field. Numeric operators fail closed when either side is not
// coercible to a number.
func evaluateLeaf(cond types.Condition, attrs map[string]any) bool {
	actual, ok := lookupAttr(attrs, cond.Field)
	if !ok {
		// Unknown field: equality against anything is false, inequality
		// is treated as false too (fails closed rather than matching).
		return false
	}

	if cond.Op.Numeric() {
		left, lok := toNumber(actual)
		right, rok := toNumber(cond.Value)
		if !lok || !rok {
			return false
		}
		switch cond.Op {
		case types.OpGt:
			return left > right
		case types.OpLt:
			return left < right
		case types.OpGe:
			return left >= right
		case types.OpLe:
			return left <= right
		}
		return false
	}

	equal := normalize(actual) == normalize(cond.Value)
	if cond.Op == types.OpNe {
		return !equal
	}
	return equal
}

// lookupAttr resolves a dotted path into the attribute map, descending
// through nested maps (e.g. "routing.tier").
func lookupAttr(attrs map[string]any, path string) (any, bool) {
	parts := strings.Split(path, ".")
	var current any = attrs
	for _, part := range parts {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// toNumber coerces runtime values to float64. Strings are parsed; booleans
// are not numbers.
func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// normalize renders a value in canonical string form for equality
// comparison: booleans as "true"/"false", numbers without trailing zeros,
// strings case-sensitively as-is.
func normalize(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// MergeRoutingAttrs returns the idea's attributes with the routing
// record's fields nested under "routing", so conditions can test values
// like "routing.tier" or "routing.destination".
func MergeRoutingAttrs(idea types.Idea, routing *types.IdeaRouting) map[string]any {
	attrs := idea.Attributes()
	if routing != nil {
		attrs["routing"] = map[string]any{
			"status":          string(routing.Status),
			"destination":     string(routing.Destination),
			"tier":            string(routing.Tier),
			"youtube_version": string(routing.YouTubeVersion),
		}
	}
	return attrs
}
