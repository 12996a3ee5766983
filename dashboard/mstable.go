package dashboard

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/warp/yield-pacing/client"
	"github.com/warp/yield-pacing/generic"
	"github.com/warp/yield-pacing/goals"
)

// MsDepartments is the row order of an MS table.
var MsDepartments = []generic.DepartmentKey{goals.DeptMarketing, goals.DeptCS, goals.DeptSales, goals.DeptRevenue}

// =============================================================================
// DAILY ACTUALS
// =============================================================================

// DailyTotals maps an ISO date to summed raw counts.
type DailyTotals map[string]map[string]float64

// SumDailySeries adds the daily series of the given advisors. An empty allow
// list includes every item.
func SumDailySeries(items []client.YieldItem, allow []generic.AdvisorID) DailyTotals {
	allowed := make(map[generic.AdvisorID]bool, len(allow))
	for _, id := range allow {
		allowed[id] = true
	}
	out := DailyTotals{}
	for _, item := range items {
		if len(allowed) > 0 && !allowed[item.AdvisorID()] {
			continue
		}
		for date, counts := range item.Series {
			day, ok := out[date]
			if !ok {
				day = map[string]float64{}
				out[date] = day
			}
			for key, v := range counts {
				day[key] += generic.Num(v)
			}
		}
	}
	return out
}

// Value reads a metric's count on date: the camelCase field first, then the
// snake_case spelling.
func (d DailyTotals) Value(date string, m goals.Metric) float64 {
	day, ok := d[date]
	if !ok {
		return 0
	}
	for _, key := range []string{m.TargetKey, snakeCase(m.TargetKey), string(m.Key)} {
		if v, ok := day[key]; ok {
			return v
		}
	}
	return 0
}

func snakeCase(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= 'A' && r <= 'Z' {
			b.WriteByte('_')
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}

// =============================================================================
// TABLE
// =============================================================================

// MsCell is one day of a row.
type MsCell struct {
	generic.CumulativeCell
	Actual      decimal.Decimal // cumulative actual, zero when disabled
	Achievement int
	Band        goals.Band
}

// MsRow is one department's metric. An unconfigured row has no cells and is
// shown as a notice naming NoticeMonth.
type MsRow struct {
	Department  generic.DepartmentKey
	Metric      goals.Metric
	Window      generic.DateRange
	Configured  bool
	NoticeMonth string
	TargetTotal decimal.Decimal
	Cells       []MsCell
}

// MsTable is the MS grid of one period for the company or one advisor.
type MsTable struct {
	PeriodID  generic.PeriodID
	Scope     generic.Scope
	AdvisorID generic.AdvisorID
	Dates     []generic.TimePoint
	Rows      []MsRow
}

func (t MsTable) clone() MsTable {
	out := t
	out.Dates = append([]generic.TimePoint(nil), t.Dates...)
	out.Rows = make([]MsRow, len(t.Rows))
	for i, r := range t.Rows {
		r.Cells = append([]MsCell(nil), r.Cells...)
		out.Rows[i] = r
	}
	return out
}

// Row returns the row of a department.
func (t MsTable) Row(dept generic.DepartmentKey) (MsRow, bool) {
	for _, r := range t.Rows {
		if r.Department == dept {
			return r, true
		}
	}
	return MsRow{}, false
}

// MsTableInput carries everything BuildMsTable needs. Targets returns the
// saved MS targets of a department metric.
type MsTableInput struct {
	PeriodID  generic.PeriodID
	Periods   []generic.EvaluationPeriod
	Scope     generic.Scope
	AdvisorID generic.AdvisorID
	Metrics   map[generic.DepartmentKey]generic.MetricKey
	Resolver  *goals.Resolver
	Targets   func(dept generic.DepartmentKey, metric generic.MetricKey) goals.MsTargets
	Actuals   DailyTotals
}

// SelectMetric returns the picked metric of dept, or its first metric when
// the pick is missing or belongs to another department.
func SelectMetric(dept generic.DepartmentKey, picked generic.MetricKey) (goals.Metric, bool) {
	metrics := goals.MetricsFor(dept)
	if len(metrics) == 0 {
		return goals.Metric{}, false
	}
	for _, m := range metrics {
		if m.Key == picked {
			return m, true
		}
	}
	return metrics[0], true
}

// DataRange is the span covering every configured row's window. When no row
// is configured it falls back to the period's overall company range.
func DataRange(in MsTableInput) (generic.DateRange, error) {
	period, ok := generic.FindPeriod(in.PeriodID, in.Periods)
	if !ok {
		return generic.DateRange{}, fmt.Errorf("ms table period %q: %w", in.PeriodID, generic.ErrInvalidPeriod)
	}
	var span generic.DateRange
	for _, dept := range MsDepartments {
		metric, ok := SelectMetric(dept, in.Metrics[dept])
		if !ok || !in.Resolver.IsConfigured(in.PeriodID, in.Periods, metric.Key) {
			continue
		}
		window, err := in.Resolver.Window(in.PeriodID, in.Periods, dept, metric.Key)
		if err != nil {
			return generic.DateRange{}, err
		}
		span = span.Union(window)
	}
	if !span.Valid() {
		span = goals.CompanyRangesFor(period).Overall
	}
	return span, nil
}

// BuildMsTable resolves each department's window, merges saved overrides
// with the even distribution and lines up cumulative actuals.
func BuildMsTable(in MsTableInput) (MsTable, error) {
	span, err := DataRange(in)
	if err != nil {
		return MsTable{}, err
	}
	month, _ := goals.ReferenceMonthKey(in.PeriodID, in.Periods)
	table := MsTable{
		PeriodID:  in.PeriodID,
		Scope:     in.Scope,
		AdvisorID: in.AdvisorID,
		Dates:     span.Days(),
	}

	for _, dept := range MsDepartments {
		metric, ok := SelectMetric(dept, in.Metrics[dept])
		if !ok {
			continue
		}
		row := MsRow{Department: dept, Metric: metric, NoticeMonth: month}
		row.Configured = in.Resolver.IsConfigured(in.PeriodID, in.Periods, metric.Key)
		if !row.Configured {
			table.Rows = append(table.Rows, row)
			continue
		}
		row.Window, err = in.Resolver.Window(in.PeriodID, in.Periods, dept, metric.Key)
		if err != nil {
			return MsTable{}, err
		}

		var saved goals.MsTargets
		if in.Targets != nil {
			saved = in.Targets(dept, metric.Key)
		}
		row.TargetTotal = saved.TargetTotal
		if !row.TargetTotal.IsPositive() {
			row.TargetTotal = generic.InferTargetTotal(table.Dates, row.Window, saved.DailyTargets)
		}
		row.Cells = buildCells(table.Dates, row, saved.DailyTargets, in.Actuals)
		table.Rows = append(table.Rows, row)
	}
	return table, nil
}

func buildCells(dates []generic.TimePoint, row MsRow, overrides generic.DailyTargets, actuals DailyTotals) []MsCell {
	targets := generic.ResolveCumulative(dates, row.Window, overrides, row.TargetTotal)

	daily := make([]decimal.Decimal, len(dates))
	for i, d := range dates {
		if goals.IsDisabled(d, row.Window) {
			continue
		}
		daily[i] = decimal.NewFromFloat(actuals.Value(d.String(), row.Metric))
	}
	cumulative := generic.CumulativeFromDaily(daily)

	cells := make([]MsCell, len(dates))
	for i, target := range targets {
		cells[i].CumulativeCell = target
		if target.Disabled {
			continue
		}
		cells[i].Actual = cumulative[i]
		cells[i].Achievement, cells[i].Band = goals.AchievementBand(cumulative[i], target.Value)
	}
	return cells
}
