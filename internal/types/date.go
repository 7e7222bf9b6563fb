package types

import (
	"fmt"
	"strings"
	"time"
)

// Date is a calendar date without a time component. The zero value is the
// zero time. Dates marshal as "2006-01-02" and compare in UTC.
type Date struct {
	t time.Time
}

// NewDate constructs a Date from year, month, day.
func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar date in UTC.
func DateOf(t time.Time) Date {
	y, m, d := t.UTC().Date()
	return NewDate(y, m, d)
}

// ParseDate parses a "2006-01-02" string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return DateOf(t), nil
}

// String returns the date in "2006-01-02" form.
func (d Date) String() string {
	return d.t.Format(time.DateOnly)
}

// Time returns the underlying UTC midnight time.
func (d Date) Time() time.Time { return d.t }

// IsZero reports whether the date is unset.
func (d Date) IsZero() bool { return d.t.IsZero() }

// Weekday returns the day of week (0 = Sunday matches slot day_of_week).
func (d Date) Weekday() int { return int(d.t.Weekday()) }

// AddDays returns d shifted by n calendar days.
func (d Date) AddDays(n int) Date {
	return Date{t: d.t.AddDate(0, 0, n)}
}

// Before reports whether d is earlier than other.
func (d Date) Before(other Date) bool { return d.t.Before(other.t) }

// After reports whether d is later than other.
func (d Date) After(other Date) bool { return d.t.After(other.t) }

// Equal reports whether both dates are the same calendar day.
func (d Date) Equal(other Date) bool { return d.t.Equal(other.t) }

// MonthDay returns the year-independent "MM-DD" form used by skip rules.
func (d Date) MonthDay() string {
	return d.t.Format("01-02")
}

// MarshalJSON implements json.Marshaler.
func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Date) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// MonthDayLess compares two "MM-DD" strings. Both must be well-formed;
// lexical comparison is correct because the fields are zero-padded.
func MonthDayLess(a, b string) bool { return a < b }

// ValidMonthDay reports whether s is a well-formed "MM-DD" string.
func ValidMonthDay(s string) bool {
	if len(s) != 5 || s[2] != '-' {
		return false
	}
	_, err := time.Parse("01-02", s)
	return err == nil
}
