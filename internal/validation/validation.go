// Package validation holds field-level checks for intake payloads and the
// routing configuration entities, plus the setup-time invariants that make
// the engine total: rule-set coverage and tier-band exhaustiveness.
package validation

import (
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"
)

// ValidationError is one field-level failure. All failures for a request
// are collected and returned together rather than stopping at the first.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Collector accumulates validation errors across a set of checks.
type Collector struct {
	errors []ValidationError
}

// Add records err when it is non-nil, so check helpers can be chained
// without branching at the call site.
func (c *Collector) Add(err *ValidationError) {
	if err != nil {
		c.errors = append(c.errors, *err)
	}
}

// Addf records an error built from a format string.
func (c *Collector) Addf(field, format string, args ...any) {
	c.errors = append(c.errors, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
}

func (c *Collector) HasErrors() bool { return len(c.errors) > 0 }

// Errors returns everything collected, nil when all checks passed.
func (c *Collector) Errors() []ValidationError { return c.errors }

// ValidateRequired rejects empty and whitespace-only values.
func ValidateRequired(field, value string) *ValidationError {
	if strings.TrimSpace(value) == "" {
		return &ValidationError{Field: field, Message: "is required"}
	}
	return nil
}

// ValidateUTF8 rejects byte sequences that are not valid UTF-8.
func ValidateUTF8(field, value string) *ValidationError {
	if !utf8.ValidString(value) {
		return &ValidationError{Field: field, Message: "must be valid UTF-8"}
	}
	return nil
}

// ValidateMaxLength bounds a value's length in runes, not bytes.
func ValidateMaxLength(field, value string, max int) *ValidationError {
	if utf8.RuneCountInString(value) > max {
		return &ValidationError{
			Field:   field,
			Message: fmt.Sprintf("exceeds maximum length of %d characters", max),
		}
	}
	return nil
}

// ValidateEnum rejects values outside the allowed set.
func ValidateEnum(field, value string, allowed []string) *ValidationError {
	if slices.Contains(allowed, value) {
		return nil
	}
	return &ValidationError{
		Field:   field,
		Message: fmt.Sprintf("must be one of: %s", strings.Join(allowed, ", ")),
	}
}

// ValidateRange rejects values outside [min, max], inclusive on both ends.
func ValidateRange(field string, value, min, max float64) *ValidationError {
	if value < min || value > max {
		return &ValidationError{
			Field:   field,
			Message: fmt.Sprintf("must be between %g and %g", min, max),
		}
	}
	return nil
}
