package generic_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/yield-pacing/generic"
)

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func decs(vs ...int64) []decimal.Decimal {
	out := make([]decimal.Decimal, len(vs))
	for i, v := range vs {
		out[i] = dec(v)
	}
	return out
}

func assertDecimals(t *testing.T, want, got []decimal.Decimal) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		assert.True(t, want[i].Equal(got[i]), "index %d: want %s got %s", i, want[i], got[i])
	}
}

func daysFrom(start string, n int) []generic.TimePoint {
	first := date(start)
	out := make([]generic.TimePoint, n)
	for i := range out {
		out[i] = first.AddDays(i)
	}
	return out
}

// =============================================================================
// SERIES
// =============================================================================

func TestBuildCumulativeSeries_EvenSplit(t *testing.T) {
	assertDecimals(t, decs(33, 67, 100), generic.BuildCumulativeSeries(dec(100), 3))
	assertDecimals(t, decs(3, 5, 8, 10), generic.BuildCumulativeSeries(dec(10), 4))
}

func TestBuildCumulativeSeries_LastElementIsRoundedTotal(t *testing.T) {
	series := generic.BuildCumulativeSeries(decimal.RequireFromString("99.5"), 7)
	assert.True(t, series[6].Equal(dec(100)), "got %s", series[6])

	assertDecimals(t, decs(34, 67, 101), generic.BuildCumulativeSeries(decimal.RequireFromString("100.6"), 3))
}

func TestBuildCumulativeSeries_FractionalTotalsNeverDecrease(t *testing.T) {
	// GIVEN: fractional totals that round up or down
	// WHEN: building series of every length up to a month
	// THEN: no element drops below its predecessor and the last is round(total)

	for _, raw := range []string{"0.4", "0.5", "0.9", "1.49", "7.5", "99.5", "100.6", "250.25"} {
		total := decimal.RequireFromString(raw)
		for length := 1; length <= 31; length++ {
			series := generic.BuildCumulativeSeries(total, length)
			require.Len(t, series, length)
			for i := 1; i < length; i++ {
				require.False(t, series[i].LessThan(series[i-1]),
					"total %s length %d: series decreases at %d (%s -> %s)", raw, length, i, series[i-1], series[i])
			}
			require.True(t, series[length-1].Equal(total.Round(0)), "total %s length %d", raw, length)
		}
	}

	assertDecimals(t, decs(0, 0, 0, 0, 0, 1, 1, 1, 1, 1), generic.BuildCumulativeSeries(decimal.RequireFromString("0.9"), 10))
}

func TestBuildCumulativeSeries_Monotonic(t *testing.T) {
	// GIVEN: a range of totals and lengths
	// WHEN: building the series
	// THEN: it has the requested length, never decreases, and ends at the total

	for total := int64(0); total <= 60; total += 7 {
		for length := 1; length <= 31; length++ {
			series := generic.BuildCumulativeSeries(dec(total), length)
			require.Len(t, series, length)
			for i := 1; i < length; i++ {
				require.False(t, series[i].LessThan(series[i-1]),
					"total %d length %d: series decreases at %d", total, length, i)
			}
			require.True(t, series[length-1].Equal(dec(total)), "total %d length %d", total, length)
		}
	}
}

func TestBuildCumulativeSeries_Degenerate(t *testing.T) {
	assert.Empty(t, generic.BuildCumulativeSeries(dec(100), 0))
	assertDecimals(t, decs(0, 0, 0), generic.BuildCumulativeSeries(dec(-5), 3))
	assert.True(t, generic.CumulativeValue(dec(0), 0, 3).IsZero())
}

func TestCumulativeFromDaily(t *testing.T) {
	assertDecimals(t, decs(1, 1, 4, 6), generic.CumulativeFromDaily(decs(1, 0, 3, 2)))
}

// =============================================================================
// DISTRIBUTION OVER A WINDOW
// =============================================================================

func TestDistributeAcross_DisablesDatesOutsideWindow(t *testing.T) {
	// GIVEN: five calendar days, window covering the last three
	// WHEN: distributing 30
	// THEN: the first two are disabled, the rest get 10, 20, 30

	dates := daysFrom("2025-05-30", 5)
	window := generic.DateRange{Start: date("2025-06-01"), End: date("2025-06-03")}

	cells := generic.DistributeAcross(dec(30), dates, window)

	require.Len(t, cells, 5)
	assert.True(t, cells[0].Disabled)
	assert.True(t, cells[1].Disabled)
	assert.False(t, cells[0].HasValue)
	assert.True(t, cells[2].Value.Equal(dec(10)))
	assert.True(t, cells[3].Value.Equal(dec(20)))
	assert.True(t, cells[4].Value.Equal(dec(30)))

	m := generic.DistributionMap(dec(30), dates, window)
	assert.Len(t, m, 3)
	assert.True(t, m["2025-06-03"].Equal(dec(30)))
}

func TestResolveCumulative_OverrideWins(t *testing.T) {
	dates := daysFrom("2025-06-01", 4)
	overrides := generic.DailyTargets{"2025-06-02": dec(5)}

	cells := generic.ResolveCumulative(dates, generic.DateRange{}, overrides, dec(40))

	assert.True(t, cells[0].Value.Equal(dec(10)))
	assert.False(t, cells[0].Explicit)
	assert.True(t, cells[1].Value.Equal(dec(5)))
	assert.True(t, cells[1].Explicit)
	assert.True(t, cells[2].Value.Equal(dec(30)), "fallback index keeps advancing past overrides")
	assert.True(t, cells[3].Value.Equal(dec(40)))
}

func TestResolveCumulative_CarriesLastKnownForward(t *testing.T) {
	dates := daysFrom("2025-06-01", 4)
	overrides := generic.DailyTargets{"2025-06-02": dec(5)}

	cells := generic.ResolveCumulative(dates, generic.DateRange{}, overrides, decimal.Zero)

	assert.False(t, cells[0].HasValue)
	assert.True(t, cells[1].Value.Equal(dec(5)))
	assert.True(t, cells[2].HasValue)
	assert.True(t, cells[2].Value.Equal(dec(5)))
	assert.True(t, cells[3].Value.Equal(dec(5)))
}

func TestInferTargetTotal_LastActiveOverride(t *testing.T) {
	dates := daysFrom("2025-06-01", 10)
	window := generic.DateRange{Start: date("2025-06-01"), End: date("2025-06-05")}
	overrides := generic.DailyTargets{
		"2025-06-01": dec(3),
		"2025-06-03": dec(9),
		"2025-06-10": dec(99), // outside the window
	}

	assert.True(t, generic.InferTargetTotal(dates, window, overrides).Equal(dec(9)))
	assert.True(t, generic.InferTargetTotal(dates, window, nil).IsZero())
}

func TestNormalizeDailyTargets_DropsEmpty(t *testing.T) {
	got := generic.NormalizeDailyTargets(map[string]any{
		"2025-06-01": 3.0,
		"2025-06-02": "",
		"2025-06-03": nil,
		"2025-06-04": "7",
	})
	assert.Equal(t, []string{"2025-06-01", "2025-06-04"}, got.Dates())
	assert.True(t, got.Sum().Equal(dec(10)))
}
