/*
mswindow.go - MS (milestone-schedule) window resolution

PURPOSE:
  Maps (period, department, metric) to the concrete date range that a
  metric's cumulative target is paced over. Windows float around a reference
  month rather than following the evaluation period itself.

RESOLUTION ORDER:
  1. Reference month: "YYYY-MM" prefix of the period id, else the month of
     the period's start (or end) date.
  2. Non-revenue metric with an explicit setting for that month: use it as is.
  3. Otherwise the department offset table:

       marketing  prev-month 17  ->  this-month 19
       cs         prev-month 18  ->  this-month 20
       sales      prev-month 18  ->  this-month 19
       revenue    calendar month

     Unknown departments use the sales offsets.
  4. The revenue metric is always the calendar month.

CONFIGURED:
  A non-revenue window counts as configured only when the override store
  holds a setting for that month and metric. Revenue is always configured.

SEE ALSO:
  - service/ms.go: Implements MsOverrides over the MS period settings cache
  - dashboard/mstable.go: Builds table rows from resolved windows
*/
package goals

import (
	"fmt"
	"time"

	"github.com/warp/yield-pacing/generic"
)

// MsOverrides exposes explicit per-metric windows keyed by YYYY-MM month.
type MsOverrides interface {
	MsPeriodFor(month string, metric generic.MetricKey) (generic.DateRange, bool)
}

// dayOffsets is a window spanning the previous and the reference month.
type dayOffsets struct {
	prevStartDay int
	endDay       int
}

var departmentOffsets = map[generic.DepartmentKey]dayOffsets{
	DeptMarketing: {prevStartDay: 17, endDay: 19},
	DeptCS:        {prevStartDay: 18, endDay: 20},
	DeptSales:     {prevStartDay: 18, endDay: 19},
}

// Resolver resolves MS windows. A nil Overrides behaves as an empty store.
type Resolver struct {
	Overrides MsOverrides
}

func NewResolver(overrides MsOverrides) *Resolver {
	return &Resolver{Overrides: overrides}
}

// ReferenceMonthKey returns the YYYY-MM month the MS settings of a period are
// stored under.
func ReferenceMonthKey(periodID generic.PeriodID, periods []generic.EvaluationPeriod) (string, bool) {
	y, m, ok := generic.ReferenceMonth(periodID, periods)
	if !ok {
		return "", false
	}
	return fmt.Sprintf("%04d-%02d", y, int(m)), true
}

func (r *Resolver) override(month string, metric generic.MetricKey) (generic.DateRange, bool) {
	if r == nil || r.Overrides == nil || metric == "" || metric == MetricRevenue {
		return generic.DateRange{}, false
	}
	window, ok := r.Overrides.MsPeriodFor(month, metric)
	if !ok || !window.Valid() {
		return generic.DateRange{}, false
	}
	return window, true
}

// Window resolves the MS window. An empty metric skips the override lookup
// and yields the department window.
func (r *Resolver) Window(periodID generic.PeriodID, periods []generic.EvaluationPeriod, dept generic.DepartmentKey, metric generic.MetricKey) (generic.DateRange, error) {
	if _, ok := generic.FindPeriod(periodID, periods); !ok {
		return generic.DateRange{}, fmt.Errorf("period %q: %w", periodID, generic.ErrInvalidPeriod)
	}
	y, m, ok := generic.ReferenceMonth(periodID, periods)
	if !ok {
		return generic.DateRange{}, fmt.Errorf("period %q has no reference month: %w", periodID, generic.ErrInvalidPeriod)
	}

	if window, ok := r.override(fmt.Sprintf("%04d-%02d", y, int(m)), metric); ok {
		return window, nil
	}
	if metric == MetricRevenue {
		return calendarMonth(y, m), nil
	}
	return DepartmentWindow(dept, y, m), nil
}

// IsConfigured reports whether a non-revenue metric has an explicit setting
// for the period's reference month.
func (r *Resolver) IsConfigured(periodID generic.PeriodID, periods []generic.EvaluationPeriod, metric generic.MetricKey) bool {
	if metric == MetricRevenue {
		return true
	}
	if metric == "" {
		return false
	}
	month, ok := ReferenceMonthKey(periodID, periods)
	if !ok {
		return false
	}
	_, ok = r.override(month, metric)
	return ok
}

// DepartmentWindow applies the offset table around the given month.
func DepartmentWindow(dept generic.DepartmentKey, year int, month time.Month) generic.DateRange {
	if dept == DeptRevenue {
		return calendarMonth(year, month)
	}
	off, ok := departmentOffsets[dept]
	if !ok {
		off = departmentOffsets[DeptSales]
	}
	return generic.DateRange{
		Start: generic.NewTimePoint(year, month-1, off.prevStartDay),
		End:   generic.NewTimePoint(year, month, off.endDay),
	}
}

func calendarMonth(year int, month time.Month) generic.DateRange {
	return generic.DateRange{Start: generic.StartOfMonth(year, month), End: generic.EndOfMonth(year, month)}
}

// DeptRange spans every metric window of a department: earliest start to
// latest end. Departments without metrics use their offset window.
func (r *Resolver) DeptRange(periodID generic.PeriodID, periods []generic.EvaluationPeriod, dept generic.DepartmentKey) (generic.DateRange, error) {
	var span generic.DateRange
	for _, metric := range MetricsFor(dept) {
		window, err := r.Window(periodID, periods, dept, metric.Key)
		if err != nil {
			return generic.DateRange{}, err
		}
		span = span.Union(window)
	}
	if span.Valid() {
		return span, nil
	}
	return r.Window(periodID, periods, dept, "")
}

// =============================================================================
// COMPANY RANGES - derived from the period end date
// =============================================================================

type CompanyRanges struct {
	Marketing generic.DateRange `json:"marketingRange"`
	CS        generic.DateRange `json:"csRange"`
	Sales     generic.DateRange `json:"salesRange"`
	Revenue   generic.DateRange `json:"revenueRange"`
	Overall   generic.DateRange `json:"msOverallRange"` // prev-month 17 -> end of month
}

// For returns the range of one department.
func (c CompanyRanges) For(dept generic.DepartmentKey) generic.DateRange {
	switch dept {
	case DeptMarketing:
		return c.Marketing
	case DeptCS:
		return c.CS
	case DeptRevenue:
		return c.Revenue
	default:
		return c.Sales
	}
}

// CompanyRangesFor computes the company MS ranges from the month of the
// period's end date. A period without dates yields empty ranges.
func CompanyRangesFor(period generic.EvaluationPeriod) CompanyRanges {
	if period.StartDate.IsZero() || period.EndDate.IsZero() {
		return CompanyRanges{}
	}
	y, m := period.EndDate.Year(), period.EndDate.Month()
	return CompanyRanges{
		Marketing: DepartmentWindow(DeptMarketing, y, m),
		CS:        DepartmentWindow(DeptCS, y, m),
		Sales:     DepartmentWindow(DeptSales, y, m),
		Revenue:   calendarMonth(y, m),
		Overall: generic.DateRange{
			Start: generic.NewTimePoint(y, m-1, 17),
			End:   generic.EndOfMonth(y, m),
		},
	}
}

// IsDisabled reports whether a date falls outside the window. An unset window
// disables nothing.
func IsDisabled(date generic.TimePoint, window generic.DateRange) bool {
	if !window.Valid() {
		return false
	}
	return !window.Contains(date)
}
