package types

import (
	"encoding/json"
)

// ConditionKind discriminates the closed set of condition node shapes.
type ConditionKind string

const (
	ConditionLeaf   ConditionKind = "leaf"
	ConditionAnd    ConditionKind = "and"
	ConditionOr     ConditionKind = "or"
	ConditionAlways ConditionKind = "always"

	// ConditionInvalid marks a node deserialized from external data that
	// matched none of the four shapes. It is not constructible through the
	// package constructors; the evaluator treats it as false.
	ConditionInvalid ConditionKind = "invalid"
)

// CompareOp is a leaf comparison operator.
type CompareOp string

const (
	OpEq CompareOp = "="
	OpNe CompareOp = "!="
	OpGt CompareOp = ">"
	OpLt CompareOp = "<"
	OpGe CompareOp = ">="
	OpLe CompareOp = "<="
)

// Numeric reports whether the operator requires numeric operands.
func (op CompareOp) Numeric() bool {
	switch op {
	case OpGt, OpLt, OpGe, OpLe:
		return true
	}
	return false
}

// Valid reports whether op is one of the six defined operators.
func (op CompareOp) Valid() bool {
	switch op {
	case OpEq, OpNe, OpGt, OpLt, OpGe, OpLe:
		return true
	}
	return false
}

// Condition is a recursive boolean expression over idea attributes.
// Exactly one shape is populated per node: a leaf comparison, an and/or
// combinator, or always-true. Use the constructors to build well-formed
// trees; decoding external JSON may yield ConditionInvalid nodes, which
// evaluate to false rather than erroring.
type Condition struct {
	Kind ConditionKind `json:"-"`

	// Leaf fields.
	Field string    `json:"-"`
	Op    CompareOp `json:"-"`
	Value any       `json:"-"`

	// Combinator children.
	Children []Condition `json:"-"`

	// Raw preserves the original bytes of an invalid node for diagnostics.
	Raw json.RawMessage `json:"-"`
}

// Always returns the unconditional true condition.
func Always() Condition {
	return Condition{Kind: ConditionAlways}
}

// And combines sub-conditions conjunctively. An empty And is vacuously true.
func And(children ...Condition) Condition {
	return Condition{Kind: ConditionAnd, Children: children}
}

// Or combines sub-conditions disjunctively. An empty Or is false.
func Or(children ...Condition) Condition {
	return Condition{Kind: ConditionOr, Children: children}
}

// Leaf returns a field comparison condition.
func Leaf(field string, op CompareOp, value any) Condition {
	return Condition{Kind: ConditionLeaf, Field: field, Op: op, Value: value}
}

// conditionJSON is the wire shape of a condition node. Pointer slices
// distinguish an absent combinator from an empty one.
type conditionJSON struct {
	Always *bool        `json:"always,omitempty"`
	And    *[]Condition `json:"and,omitempty"`
	Or     *[]Condition `json:"or,omitempty"`
	Field  string       `json:"field,omitempty"`
	Op     CompareOp    `json:"op,omitempty"`
	Value  any          `json:"value,omitempty"`
}

// UnmarshalJSON decodes a condition node. Shape precedence:
// always wins over any other keys present (malformed extras are ignored),
// then and, then or, then leaf. A node matching none of the shapes decodes
// as ConditionInvalid instead of returning an error, so one bad rule in a
// stored rule set cannot break deserialization of the rest.
func (c *Condition) UnmarshalJSON(data []byte) error {
	var aux conditionJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		*c = Condition{Kind: ConditionInvalid, Raw: append(json.RawMessage(nil), data...)}
		return nil
	}

	switch {
	case aux.Always != nil && *aux.Always:
		*c = Condition{Kind: ConditionAlways}
	case aux.And != nil:
		*c = Condition{Kind: ConditionAnd, Children: *aux.And}
	case aux.Or != nil:
		*c = Condition{Kind: ConditionOr, Children: *aux.Or}
	case aux.Field != "" && aux.Op.Valid():
		*c = Condition{Kind: ConditionLeaf, Field: aux.Field, Op: aux.Op, Value: aux.Value}
	default:
		*c = Condition{Kind: ConditionInvalid, Raw: append(json.RawMessage(nil), data...)}
	}
	return nil
}

// MarshalJSON encodes the canonical form of each shape. Invalid nodes
// round-trip their original bytes.
func (c Condition) MarshalJSON() ([]byte, error) {
	switch c.Kind {
	case ConditionAlways:
		return json.Marshal(map[string]bool{"always": true})
	case ConditionAnd:
		children := c.Children
		if children == nil {
			children = []Condition{}
		}
		return json.Marshal(map[string][]Condition{"and": children})
	case ConditionOr:
		children := c.Children
		if children == nil {
			children = []Condition{}
		}
		return json.Marshal(map[string][]Condition{"or": children})
	case ConditionLeaf:
		return json.Marshal(conditionJSON{Field: c.Field, Op: c.Op, Value: c.Value})
	default:
		if len(c.Raw) > 0 {
			return c.Raw, nil
		}
		return []byte("{}"), nil
	}
}

// Walk visits c and every descendant, depth-first.
func (c Condition) Walk(visit func(Condition)) {
	visit(c)
	for _, child := range c.Children {
		child.Walk(visit)
	}
}
