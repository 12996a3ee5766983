package api

import (
	"hash/fnv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/yield-pacing/generic"
)

func day(s string) time.Time {
	return generic.MustParseDate(s).Time
}

func TestFnv32a_MatchesStdlib(t *testing.T) {
	for _, s := range []string{"", "a", "2026-01-01:30", "2026-01-31:2"} {
		h := fnv.New32a()
		_, _ = h.Write([]byte(s))
		assert.Equal(t, h.Sum32(), fnv32a(s), s)
	}
}

func TestBit_SignedShift(t *testing.T) {
	tests := []struct {
		h     uint32
		shift uint
		want  int
	}{
		{4, 2, 1},
		{8, 2, 0},
		{0xFFFFFFFF, 4, -1},
		{0x80000000, 31, -1},
		{0x7FFFFFFF, 30, 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, bit(tt.h, tt.shift), "%x>>%d", tt.h, tt.shift)
	}
}

func TestDailyCounts(t *testing.T) {
	// GIVEN: the same date and advisor
	// WHEN: generated twice, and once in cohort mode
	// THEN: results are identical, revenue follows accepts and cohort never
	//       exceeds period proposals

	for _, date := range []string{"2026-01-01", "2026-01-02", "2026-01-15", "2026-02-28"} {
		for _, advisor := range []generic.AdvisorID{1, 2, 30} {
			period := dailyCounts(date, advisor, false)
			assert.Equal(t, period, dailyCounts(date, advisor, false))

			assert.GreaterOrEqual(t, period.NewInterviews, 2)
			assert.LessOrEqual(t, period.NewInterviews, 5)
			assert.Equal(t, period.Accepts*revenuePerAccept, period.Revenue)
			for _, v := range []int{period.Proposals, period.Recommendations, period.InterviewsScheduled,
				period.InterviewsHeld, period.Offers, period.Accepts, period.Hires} {
				assert.GreaterOrEqual(t, v, 0)
			}

			cohort := dailyCounts(date, advisor, true)
			assert.Equal(t, period.NewInterviews, cohort.NewInterviews)
			assert.LessOrEqual(t, cohort.Proposals, period.Proposals)
		}
	}
}

func TestEnumerateDays(t *testing.T) {
	assert.Equal(t, []string{"2026-01-30", "2026-01-31", "2026-02-01"}, enumerateDays(day("2026-01-30"), day("2026-02-01")))
	assert.Empty(t, enumerateDays(day("2026-02-01"), day("2026-01-30")))
}

func TestBuildYield(t *testing.T) {
	base := yieldParams{
		From:        day("2026-01-30"),
		To:          day("2026-02-02"),
		Scope:       generic.ScopeCompany,
		GroupBy:     "advisor",
		Granularity: "day",
	}

	t.Run("grouped by advisor", func(t *testing.T) {
		resp := buildYield(base, fallbackMembers)
		require.Len(t, resp.Items, 3)
		assert.Equal(t, "period", resp.Meta.CalcMode)
		assert.Equal(t, generic.AdvisorID(30), *resp.Items[1].AdvisorUserID)
		assert.Len(t, resp.Items[1].Series, 4)
		assert.Equal(t, sumSeries(resp.Items[1].Series), resp.Items[1].KPI)
	})

	t.Run("company total sums members", func(t *testing.T) {
		p := base
		p.GroupBy = "none"
		grouped := buildYield(base, fallbackMembers)
		resp := buildYield(p, fallbackMembers)

		require.Len(t, resp.Items, 1)
		var want CountsDTO
		for _, item := range grouped.Items {
			want = want.Add(item.KPI)
		}
		assert.Equal(t, want, resp.Items[0].KPI)
		assert.Nil(t, resp.Items[0].AdvisorUserID)
	})

	t.Run("personal keeps one advisor", func(t *testing.T) {
		p := base
		p.Scope = generic.ScopePersonal
		p.Advisor = 2
		p.GroupBy = "none"
		resp := buildYield(p, fallbackMembers)

		require.Len(t, resp.Items, 1)
		assert.Equal(t, "営業 花子", resp.Items[0].Name)
	})

	t.Run("unknown personal advisor is empty", func(t *testing.T) {
		p := base
		p.Scope = generic.ScopePersonal
		p.Advisor = 99
		p.GroupBy = "none"
		resp := buildYield(p, fallbackMembers)

		require.Len(t, resp.Items, 1)
		assert.Equal(t, generic.AdvisorID(99), *resp.Items[0].AdvisorUserID)
		assert.Empty(t, resp.Items[0].Series)
		assert.Equal(t, CountsDTO{}, resp.Items[0].KPI)
	})

	t.Run("month granularity", func(t *testing.T) {
		p := base
		p.Granularity = "month"
		p.Cohort = true
		resp := buildYield(p, fallbackMembers)

		assert.Equal(t, "cohort", resp.Meta.CalcMode)
		item := resp.Items[0]
		require.Len(t, item.Series, 2)
		assert.Equal(t, item.KPI, item.Series["2026-01"].Add(item.Series["2026-02"]))
	})
}

func TestTrendAndBreakdown(t *testing.T) {
	trend := buildTrend(true)
	assert.Equal(t, "cohort", trend.Meta.CalcMode)
	assert.InDelta(t, 0.42, trend.Series[0].Rates["proposalRate"], 1e-9)
	assert.InDelta(t, 0.16, trend.Series[1].Rates["offerRate"], 1e-9)

	breakdown := buildBreakdown(false)
	assert.Equal(t, []BreakdownItemDTO{{Label: "Channel A", Count: 10}, {Label: "Channel B", Count: 5}}, breakdown.Items)
	assert.Equal(t, 3, buildBreakdown(true).Items[1].Count)
}
