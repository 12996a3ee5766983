package dashboard

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/yield-pacing/client"
	"github.com/warp/yield-pacing/generic"
	"github.com/warp/yield-pacing/goals"
)

type stubOverrides map[string]goals.MsPeriodMap

func (s stubOverrides) MsPeriodFor(month string, metric generic.MetricKey) (generic.DateRange, bool) {
	r, ok := s[month][metric]
	return r, ok
}

func juneInput() MsTableInput {
	periods := generic.GeneratePeriods(generic.DefaultRule(), testNow)
	return MsTableInput{
		PeriodID: "2025-06",
		Periods:  periods,
		Scope:    generic.ScopeCompany,
		Resolver: goals.NewResolver(stubOverrides{
			"2025-06": {"valid_applications": {
				Start: generic.MustParseDate("2025-06-01"),
				End:   generic.MustParseDate("2025-06-03"),
			}},
		}),
		Targets: func(dept generic.DepartmentKey, _ generic.MetricKey) goals.MsTargets {
			switch dept {
			case goals.DeptMarketing:
				return goals.MsTargets{TargetTotal: decimal.NewFromInt(30)}
			case goals.DeptRevenue:
				return goals.MsTargets{DailyTargets: generic.DailyTargets{"2025-06-30": decimal.NewFromInt(300000)}}
			}
			return goals.MsTargets{}
		},
		Actuals: DailyTotals{
			"2025-06-01": {"validApplications": 10},
			"2025-06-02": {"valid_applications": 5},
			"2025-06-10": {"revenue": 50000},
		},
	}
}

func TestSumDailySeries(t *testing.T) {
	items := []client.YieldItem{
		{AdvisorUserID: 1, Series: map[string]map[string]any{"2025-06-01": {"revenue": 100, "offers": "2"}}},
		{AdvisorUserID: "2", Series: map[string]map[string]any{"2025-06-01": {"revenue": 50.5}}},
		{AdvisorUserID: 3, Series: map[string]map[string]any{"2025-06-02": {"revenue": 7}}},
	}

	all := SumDailySeries(items, nil)
	assert.Equal(t, 150.5, all["2025-06-01"]["revenue"])
	assert.Equal(t, 2.0, all["2025-06-01"]["offers"])
	assert.Equal(t, 7.0, all["2025-06-02"]["revenue"])

	one := SumDailySeries(items, []generic.AdvisorID{2})
	assert.Equal(t, 50.5, one["2025-06-01"]["revenue"])
	assert.NotContains(t, one, "2025-06-02")
}

func TestDailyTotals_ValueFallsBackToSnakeCase(t *testing.T) {
	m, _, ok := goals.LookupMetric("interviews_scheduled")
	require.True(t, ok)
	totals := DailyTotals{
		"2025-06-01": {"interviewsScheduled": 3},
		"2025-06-02": {"interviews_scheduled": 4},
	}

	assert.Equal(t, 3.0, totals.Value("2025-06-01", m))
	assert.Equal(t, 4.0, totals.Value("2025-06-02", m))
	assert.Equal(t, 0.0, totals.Value("2025-06-03", m))
}

func TestSelectMetric(t *testing.T) {
	m, ok := SelectMetric(goals.DeptSales, "offers")
	require.True(t, ok)
	assert.Equal(t, generic.MetricKey("offers"), m.Key)

	m, ok = SelectMetric(goals.DeptSales, "appointments")
	require.True(t, ok)
	assert.Equal(t, generic.MetricKey("new_interviews"), m.Key, "a metric of another department falls back")

	_, ok = SelectMetric("unknown", "")
	assert.False(t, ok)
}

func TestDataRange(t *testing.T) {
	t.Run("union of configured windows", func(t *testing.T) {
		span, err := DataRange(juneInput())
		require.NoError(t, err)
		assert.Equal(t, "2025-06-01", span.Start.String())
		assert.Equal(t, "2025-06-30", span.End.String())
	})

	t.Run("missing period", func(t *testing.T) {
		in := juneInput()
		in.PeriodID = "1999-01"
		_, err := DataRange(in)
		assert.ErrorIs(t, err, generic.ErrInvalidPeriod)
	})
}

func TestBuildMsTable(t *testing.T) {
	// GIVEN: marketing configured for three days with a 30 total, revenue
	//        with a single month-end override, sales and CS unconfigured
	// WHEN: building the company table
	// THEN: cumulative targets and actuals line up per day

	table, err := BuildMsTable(juneInput())
	require.NoError(t, err)
	require.Len(t, table.Dates, 30)
	require.Len(t, table.Rows, 4)

	marketing, ok := table.Row(goals.DeptMarketing)
	require.True(t, ok)
	require.True(t, marketing.Configured)
	assert.True(t, marketing.TargetTotal.Equal(decimal.NewFromInt(30)))
	want := []struct {
		target, actual int64
		pct            int
		band           goals.Band
	}{
		{10, 10, 100, goals.BandHigh},
		{20, 15, 75, goals.BandLow},
		{30, 15, 50, goals.BandLow},
	}
	for i, w := range want {
		cell := marketing.Cells[i]
		assert.True(t, cell.Value.Equal(decimal.NewFromInt(w.target)), "day %d target %s", i+1, cell.Value)
		assert.True(t, cell.Actual.Equal(decimal.NewFromInt(w.actual)), "day %d actual %s", i+1, cell.Actual)
		assert.Equal(t, w.pct, cell.Achievement)
		assert.Equal(t, w.band, cell.Band)
	}
	assert.True(t, marketing.Cells[3].Disabled)
	assert.True(t, marketing.Cells[3].Actual.IsZero())

	revenue, ok := table.Row(goals.DeptRevenue)
	require.True(t, ok)
	assert.True(t, revenue.Configured)
	assert.True(t, revenue.TargetTotal.Equal(decimal.NewFromInt(300000)), "total inferred from the last override")
	assert.True(t, revenue.Cells[0].Value.Equal(decimal.NewFromInt(10000)))
	assert.True(t, revenue.Cells[29].Explicit)
	assert.True(t, revenue.Cells[9].Actual.Equal(decimal.NewFromInt(50000)))

	sales, ok := table.Row(goals.DeptSales)
	require.True(t, ok)
	assert.False(t, sales.Configured)
	assert.Equal(t, "2025-06", sales.NoticeMonth)
	assert.Empty(t, sales.Cells)
}

func TestBuildMsTable_WithoutOverrides(t *testing.T) {
	in := juneInput()
	in.Resolver = goals.NewResolver(nil)
	in.Metrics = map[generic.DepartmentKey]generic.MetricKey{}

	span, err := DataRange(in)
	require.NoError(t, err)
	// revenue is always configured, so the span is still its calendar month
	assert.Equal(t, "2025-06-01", span.Start.String())

	table, err := BuildMsTable(in)
	require.NoError(t, err)
	marketing, _ := table.Row(goals.DeptMarketing)
	assert.False(t, marketing.Configured)
}

func TestMsTable_CloneIsDeep(t *testing.T) {
	table, err := BuildMsTable(juneInput())
	require.NoError(t, err)

	cp := table.clone()
	cp.Rows[0].Cells[0].Actual = decimal.NewFromInt(999)
	cp.Dates[0] = generic.MustParseDate("2000-01-01")

	assert.False(t, table.Rows[0].Cells[0].Actual.Equal(decimal.NewFromInt(999)))
	assert.Equal(t, "2025-06-01", table.Dates[0].String())
}
