package generic

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"time"
)

// =============================================================================
// TIME POINT - Calendar day (the dashboard never works below day granularity)
// =============================================================================

const isoDateLayout = "2006-01-02"

type TimePoint struct {
	Time time.Time
}

// NewTimePoint builds a UTC calendar day. Out-of-range months and days
// normalize the way time.Date does (month 0 is December of the previous year).
func NewTimePoint(year int, month time.Month, day int) TimePoint {
	return TimePoint{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf drops the clock and zone of t, keeping its local calendar day.
func DateOf(t time.Time) TimePoint {
	return NewTimePoint(t.Year(), t.Month(), t.Day())
}

func Today() TimePoint {
	return DateOf(time.Now())
}

// ParseDate parses an ISO date (YYYY-MM-DD). Longer timestamps are cut to
// their date part.
func ParseDate(s string) (TimePoint, error) {
	if len(s) > len(isoDateLayout) {
		s = s[:len(isoDateLayout)]
	}
	t, err := time.Parse(isoDateLayout, s)
	if err != nil {
		return TimePoint{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return TimePoint{Time: t}, nil
}

func MustParseDate(s string) TimePoint {
	tp, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return tp
}

// Comparison
func (tp TimePoint) Before(other TimePoint) bool        { return tp.Time.Before(other.Time) }
func (tp TimePoint) Equal(other TimePoint) bool         { return tp.Time.Equal(other.Time) }
func (tp TimePoint) After(other TimePoint) bool         { return tp.Time.After(other.Time) }
func (tp TimePoint) BeforeOrEqual(other TimePoint) bool { return !tp.After(other) }
func (tp TimePoint) AfterOrEqual(other TimePoint) bool  { return !tp.Before(other) }

// Arithmetic
func (tp TimePoint) AddDays(n int) TimePoint   { return TimePoint{Time: tp.Time.AddDate(0, 0, n)} }
func (tp TimePoint) AddMonths(n int) TimePoint { return TimePoint{Time: tp.Time.AddDate(0, n, 0)} }

// Properties
func (tp TimePoint) Year() int             { return tp.Time.Year() }
func (tp TimePoint) Month() time.Month     { return tp.Time.Month() }
func (tp TimePoint) Day() int              { return tp.Time.Day() }
func (tp TimePoint) Weekday() time.Weekday { return tp.Time.Weekday() }
func (tp TimePoint) IsZero() bool          { return tp.Time.IsZero() }

func (tp TimePoint) String() string {
	if tp.IsZero() {
		return ""
	}
	return tp.Time.Format(isoDateLayout)
}

func (tp TimePoint) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(tp.String())), nil
}

func (tp *TimePoint) UnmarshalJSON(data []byte) error {
	s, err := strconv.Unquote(string(data))
	if err != nil {
		return fmt.Errorf("date must be a string: %w", err)
	}
	if s == "" {
		*tp = TimePoint{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*tp = parsed
	return nil
}

// =============================================================================
// DAY CLAMPING
// =============================================================================

// DaysInMonth returns the number of days in the given month. Month overflow
// is normalized first, so DaysInMonth(2025, 13) is January 2026.
func DaysInMonth(year int, month time.Month) int {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	return first.AddDate(0, 1, -1).Day()
}

// SafeDay returns day-of-month `day` in the given month, clamped to
// [1, DaysInMonth]. Clamping an already clamped day returns the same date.
func SafeDay(year int, month time.Month, day int) TimePoint {
	first := NewTimePoint(year, month, 1)
	last := DaysInMonth(first.Year(), first.Month())
	if day < 1 {
		day = 1
	}
	if day > last {
		day = last
	}
	return NewTimePoint(first.Year(), first.Month(), day)
}

// ClampDay turns a raw day option into a day number in [1, 31].
// Non-numeric and non-finite input falls back to day 1.
func ClampDay(raw any) int {
	f, ok := toFloat(raw)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return 1
	}
	d := int(math.Floor(f + 0.5))
	if d < 1 {
		return 1
	}
	if d > 31 {
		return 31
	}
	return d
}

// =============================================================================
// MONTH KEYS
// =============================================================================

var monthKeyPattern = regexp.MustCompile(`^(\d{4})-(\d{2})`)

// MonthKey renders the YYYY-MM reference month of a date.
func MonthKey(tp TimePoint) string {
	return fmt.Sprintf("%04d-%02d", tp.Year(), int(tp.Month()))
}

// ParseMonthKey extracts year and month from a string starting with YYYY-MM.
// Period ids like "2025-06-H1" and "2025-06-M" resolve to their month.
func ParseMonthKey(s string) (int, time.Month, bool) {
	m := monthKeyPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, 0, false
	}
	year, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	if month < 1 || month > 12 {
		return 0, 0, false
	}
	return year, time.Month(month), true
}

// IsMonthKey reports whether s is exactly YYYY-MM.
func IsMonthKey(s string) bool {
	_, _, ok := ParseMonthKey(s)
	return ok && len(s) == 7
}

// =============================================================================
// TIME UTILITIES
// =============================================================================

func DaysBetween(from, to TimePoint) int {
	return int(to.Time.Sub(from.Time).Hours() / 24)
}

func StartOfMonth(year int, month time.Month) TimePoint { return NewTimePoint(year, month, 1) }

func EndOfMonth(year int, month time.Month) TimePoint {
	return NewTimePoint(year, month+1, 0)
}
