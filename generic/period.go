package generic

import (
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// DATE RANGE - Inclusive [Start, End] window of calendar days
// =============================================================================

type DateRange struct {
	Start TimePoint `json:"startDate"`
	End   TimePoint `json:"endDate"`
}

// Valid returns true when both ends are set and Start <= End.
func (r DateRange) Valid() bool {
	return !r.Start.IsZero() && !r.End.IsZero() && r.Start.BeforeOrEqual(r.End)
}

// Contains returns true if the day is within [Start, End].
func (r DateRange) Contains(t TimePoint) bool {
	return t.AfterOrEqual(r.Start) && t.BeforeOrEqual(r.End)
}

// Days returns every day in the range, in order.
func (r DateRange) Days() []TimePoint {
	if !r.Valid() {
		return nil
	}
	days := make([]TimePoint, 0, r.Len())
	for current := r.Start; current.BeforeOrEqual(r.End); current = current.AddDays(1) {
		days = append(days, current)
	}
	return days
}

// Len is the number of days in the range (0 when invalid).
func (r DateRange) Len() int {
	if !r.Valid() {
		return 0
	}
	return DaysBetween(r.Start, r.End) + 1
}

func (r DateRange) Overlaps(other DateRange) bool {
	return r.Start.BeforeOrEqual(other.End) && other.Start.BeforeOrEqual(r.End)
}

func (r DateRange) String() string {
	return "[" + r.Start.String() + ", " + r.End.String() + "]"
}

// Union returns the smallest range covering both.
func (r DateRange) Union(other DateRange) DateRange {
	if !r.Valid() {
		return other
	}
	if !other.Valid() {
		return r
	}
	out := r
	if other.Start.Before(out.Start) {
		out.Start = other.Start
	}
	if other.End.After(out.End) {
		out.End = other.End
	}
	return out
}

// =============================================================================
// EVALUATION RULE
// =============================================================================

// RuleType defines how evaluation periods are cut.
type RuleType string

const (
	RuleMonthly     RuleType = "monthly"      // Calendar month
	RuleHalfMonth   RuleType = "half-month"   // 1-15 and 16-end
	RuleMasterMonth RuleType = "master-month" // Previous month 16th to this month 15th
	RuleWeekly      RuleType = "weekly"       // 7 days from a configurable weekday
	RuleQuarterly   RuleType = "quarterly"    // 3 months from a fiscal start month
	RuleCustomMonth RuleType = "custom-month" // Configurable start/end day, may wrap
)

// Option keys understood by the generator.
const (
	OptStartWeekday     = "startWeekday"
	OptFiscalStartMonth = "fiscalStartMonth"
	OptStartDay         = "startDay"
	OptEndDay           = "endDay"
)

// EvaluationRule drives period generation. It is replaced wholesale when the
// setting changes; generated periods are never edited in place.
type EvaluationRule struct {
	Type    RuleType       `json:"type" yaml:"type"`
	Options map[string]any `json:"options" yaml:"options"`
}

func DefaultRule() EvaluationRule {
	return EvaluationRule{Type: RuleMonthly, Options: map[string]any{}}
}

var legacyRuleTypes = map[string]RuleType{
	"half-monthly":   RuleHalfMonth,
	"custom":         RuleCustomMonth,
	"master-monthly": RuleMasterMonth,
}

// NormalizeRuleType maps legacy spellings onto current rule types.
// Empty input is monthly.
func NormalizeRuleType(raw string) RuleType {
	s := strings.TrimSpace(raw)
	if mapped, ok := legacyRuleTypes[s]; ok {
		return mapped
	}
	if s == "" {
		return RuleMonthly
	}
	return RuleType(s)
}

// NormalizeRule fills defaults and maps legacy type names.
func NormalizeRule(rule EvaluationRule) EvaluationRule {
	out := EvaluationRule{Type: NormalizeRuleType(string(rule.Type)), Options: map[string]any{}}
	for k, v := range rule.Options {
		out.Options[k] = v
	}
	return out
}

// option returns the option value, treating falsy values as absent.
func (r EvaluationRule) option(key string) (any, bool) {
	v, ok := r.Options[key]
	if !ok || v == nil {
		return nil, false
	}
	if s, isString := v.(string); isString && strings.TrimSpace(s) == "" {
		return nil, false
	}
	if f, ok := toFloat(v); ok && f == 0 {
		if _, isString := v.(string); !isString {
			return nil, false
		}
	}
	return v, true
}

// StartWeekday is time.Sunday for "sunday", time.Monday otherwise.
func (r EvaluationRule) StartWeekday() time.Weekday {
	v, ok := r.option(OptStartWeekday)
	if ok && strings.EqualFold(fmt.Sprint(v), "sunday") {
		return time.Sunday
	}
	return time.Monday
}

// FiscalStartMonth defaults to January; out-of-range values fall back to it.
func (r EvaluationRule) FiscalStartMonth() time.Month {
	v, ok := r.option(OptFiscalStartMonth)
	if !ok {
		return time.January
	}
	m := int(Num(v))
	if m < 1 || m > 12 {
		return time.January
	}
	return time.Month(m)
}

func (r EvaluationRule) StartDay() int {
	v, ok := r.option(OptStartDay)
	if !ok {
		return 1
	}
	return ClampDay(v)
}

func (r EvaluationRule) EndDay() int {
	v, ok := r.option(OptEndDay)
	if !ok {
		return 31
	}
	return ClampDay(v)
}

// =============================================================================
// EVALUATION PERIOD
// =============================================================================

type EvaluationPeriod struct {
	ID        PeriodID  `json:"id"`
	Label     string    `json:"label"`
	StartDate TimePoint `json:"startDate"`
	EndDate   TimePoint `json:"endDate"`
}

func (p EvaluationPeriod) Range() DateRange {
	return DateRange{Start: p.StartDate, End: p.EndDate}
}

// Span sizes (offsets from "now", inclusive on both sides).
const (
	MonthSpan   = 12
	WeekSpan    = 26
	QuarterSpan = 8
)

// GeneratePeriods returns the ordered periods of the rule around now.
// Unknown rule types generate monthly periods.
func GeneratePeriods(rule EvaluationRule, now time.Time) []EvaluationPeriod {
	rule = NormalizeRule(rule)
	today := DateOf(now)
	switch rule.Type {
	case RuleHalfMonth:
		return halfMonthPeriods(today)
	case RuleMasterMonth:
		return masterMonthPeriods(today)
	case RuleWeekly:
		return weeklyPeriods(today, rule.StartWeekday())
	case RuleQuarterly:
		return quarterlyPeriods(today, rule.FiscalStartMonth())
	case RuleCustomMonth:
		return customMonthPeriods(today, rule.StartDay(), rule.EndDay())
	default:
		return monthlyPeriods(today)
	}
}

func monthID(year int, month time.Month) string {
	return fmt.Sprintf("%04d-%02d", year, int(month))
}

func monthLabel(year int, month time.Month) string {
	return fmt.Sprintf("%04d年%02d月", year, int(month))
}

func rangeLabel(start, end TimePoint) string {
	return start.String() + "〜" + end.String()
}

func monthlyPeriods(today TimePoint) []EvaluationPeriod {
	periods := make([]EvaluationPeriod, 0, 2*MonthSpan+1)
	for offset := -MonthSpan; offset <= MonthSpan; offset++ {
		base := NewTimePoint(today.Year(), today.Month()+time.Month(offset), 1)
		y, m := base.Year(), base.Month()
		periods = append(periods, EvaluationPeriod{
			ID:        PeriodID(monthID(y, m)),
			Label:     monthLabel(y, m),
			StartDate: StartOfMonth(y, m),
			EndDate:   EndOfMonth(y, m),
		})
	}
	return periods
}

func halfMonthPeriods(today TimePoint) []EvaluationPeriod {
	periods := make([]EvaluationPeriod, 0, 2*(2*MonthSpan+1))
	for offset := -MonthSpan; offset <= MonthSpan; offset++ {
		base := NewTimePoint(today.Year(), today.Month()+time.Month(offset), 1)
		y, m := base.Year(), base.Month()
		periods = append(periods,
			EvaluationPeriod{
				ID:        PeriodID(monthID(y, m) + "-H1"),
				Label:     monthLabel(y, m) + "前半",
				StartDate: StartOfMonth(y, m),
				EndDate:   NewTimePoint(y, m, 15),
			},
			EvaluationPeriod{
				ID:        PeriodID(monthID(y, m) + "-H2"),
				Label:     monthLabel(y, m) + "後半",
				StartDate: NewTimePoint(y, m, 16),
				EndDate:   EndOfMonth(y, m),
			},
		)
	}
	return periods
}

func masterMonthPeriods(today TimePoint) []EvaluationPeriod {
	periods := make([]EvaluationPeriod, 0, 2*MonthSpan+1)
	for offset := -MonthSpan; offset <= MonthSpan; offset++ {
		base := NewTimePoint(today.Year(), today.Month()+time.Month(offset), 1)
		y, m := base.Year(), base.Month()
		periods = append(periods, EvaluationPeriod{
			ID:        PeriodID(monthID(y, m) + "-M"),
			Label:     monthLabel(y, m) + "評価",
			StartDate: SafeDay(y, m-1, 16),
			EndDate:   SafeDay(y, m, 15),
		})
	}
	return periods
}

func weeklyPeriods(today TimePoint, startWeekday time.Weekday) []EvaluationPeriod {
	periods := make([]EvaluationPeriod, 0, 2*WeekSpan+1)
	for offset := -WeekSpan; offset <= WeekSpan; offset++ {
		base := today.AddDays(offset * 7)
		diff := (int(base.Weekday()) - int(startWeekday) + 7) % 7
		start := base.AddDays(-diff)
		end := start.AddDays(6)
		periods = append(periods, EvaluationPeriod{
			ID:        PeriodID(start.String()),
			Label:     rangeLabel(start, end),
			StartDate: start,
			EndDate:   end,
		})
	}
	return periods
}

// floorDiv is integer division rounding toward negative infinity.
func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func quarterlyPeriods(today TimePoint, fiscalStart time.Month) []EvaluationPeriod {
	periods := make([]EvaluationPeriod, 0, 2*QuarterSpan+1)
	fsm := int(fiscalStart)
	for offset := -QuarterSpan; offset <= QuarterSpan; offset++ {
		monthIndex := fsm - 1 + offset*3
		startMonth := time.Month(((monthIndex%12)+12)%12 + 1)
		startYear := today.Year() + floorDiv(monthIndex, 12)
		start := StartOfMonth(startYear, startMonth)
		end := EndOfMonth(startYear, startMonth+2)
		q := ((offset%4)+4)%4 + 1
		periods = append(periods, EvaluationPeriod{
			ID:        PeriodID(fmt.Sprintf("%04d-Q%d-%d", start.Year(), q, fsm)),
			Label:     fmt.Sprintf("Q%d（%s）", q, rangeLabel(start, end)),
			StartDate: start,
			EndDate:   end,
		})
	}
	return periods
}

// Both days clamp per month, so a startDay past the end of a short month
// makes that month's period start on the day the previous one ends.
func customMonthPeriods(today TimePoint, startDay, endDay int) []EvaluationPeriod {
	periods := make([]EvaluationPeriod, 0, 2*MonthSpan+1)
	for offset := -MonthSpan; offset <= MonthSpan; offset++ {
		base := NewTimePoint(today.Year(), today.Month()+time.Month(offset), 1)
		y, m := base.Year(), base.Month()
		start := SafeDay(y, m, startDay)
		var end TimePoint
		if startDay <= endDay {
			end = SafeDay(y, m, endDay)
		} else {
			end = SafeDay(y, m+1, endDay)
		}
		periods = append(periods, EvaluationPeriod{
			ID:        PeriodID(monthID(y, m) + "-C"),
			Label:     fmt.Sprintf("%s（%s）", monthLabel(y, m), rangeLabel(start, end)),
			StartDate: start,
			EndDate:   end,
		})
	}
	return periods
}

// =============================================================================
// LOOKUP
// =============================================================================

// FindPeriod returns the period with the given id.
func FindPeriod(id PeriodID, periods []EvaluationPeriod) (EvaluationPeriod, bool) {
	for _, p := range periods {
		if p.ID == id {
			return p, true
		}
	}
	return EvaluationPeriod{}, false
}

// FindPeriodByDate returns the first period containing the date.
func FindPeriodByDate(date TimePoint, periods []EvaluationPeriod) (EvaluationPeriod, bool) {
	for _, p := range periods {
		if p.StartDate.IsZero() || p.EndDate.IsZero() {
			continue
		}
		if p.Range().Contains(date) {
			return p, true
		}
	}
	return EvaluationPeriod{}, false
}

// FormatPeriodLabel renders "label（start〜end）", falling back to the id.
func FormatPeriodLabel(p EvaluationPeriod) string {
	name := p.Label
	if name == "" {
		name = string(p.ID)
	}
	if name == "" {
		name = "期間未設定"
	}
	if p.StartDate.IsZero() || p.EndDate.IsZero() {
		return name
	}
	return fmt.Sprintf("%s（%s）", name, rangeLabel(p.StartDate, p.EndDate))
}

// ReferenceMonth derives the YYYY-MM month a period belongs to: from the id
// prefix when it has one, otherwise from the period start (or end) date.
func ReferenceMonth(id PeriodID, periods []EvaluationPeriod) (int, time.Month, bool) {
	if y, m, ok := ParseMonthKey(string(id)); ok {
		return y, m, true
	}
	p, ok := FindPeriod(id, periods)
	if !ok {
		return 0, 0, false
	}
	ref := p.StartDate
	if ref.IsZero() {
		ref = p.EndDate
	}
	if ref.IsZero() {
		return 0, 0, false
	}
	return ref.Year(), ref.Month(), true
}
