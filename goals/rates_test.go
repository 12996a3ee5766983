package goals_test

import (
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/yield-pacing/goals"
)

// =============================================================================
// RATES
// =============================================================================

func TestCalcRate(t *testing.T) {
	assert.Equal(t, 0, goals.CalcRate(5, 0))
	assert.Equal(t, 0, goals.CalcRate(5, -3))
	assert.Equal(t, 75, goals.CalcRate(3, 4))
	assert.Equal(t, 67, goals.CalcRate(2, 3))
	assert.Equal(t, 50, goals.CalcRate(1, 2))
	assert.Equal(t, 150, goals.CalcRate(3, 2))
}

func funnel() goals.FunnelCounts {
	return goals.FunnelCounts{
		NewInterviews:       100,
		Proposals:           80,
		Recommendations:     40,
		InterviewsScheduled: 30,
		InterviewsHeld:      20,
		Offers:              10,
		Accepts:             5,
		Hires:               4,
	}
}

func TestComputeRates_BaseMode(t *testing.T) {
	// GIVEN: a funnel starting with 100 new interviews
	// WHEN: computing rates in base mode
	// THEN: every rate divides by newInterviews

	rates := goals.ComputeRates(funnel(), goals.RateModeBase)

	assert.Equal(t, goals.Rates{
		"proposalRate":          80,
		"recommendationRate":    40,
		"interviewScheduleRate": 30,
		"interviewHeldRate":     20,
		"offerRate":             10,
		"acceptRate":            5,
		"hireRate":              4,
	}, rates)
}

func TestComputeRates_StepMode(t *testing.T) {
	rates := goals.ComputeRates(funnel(), goals.RateModeStep)

	assert.Equal(t, goals.Rates{
		"proposalRate":          80,
		"recommendationRate":    50,
		"interviewScheduleRate": 75,
		"interviewHeldRate":     67,
		"offerRate":             50,
		"acceptRate":            50,
		"hireRate":              80,
	}, rates)
}

func TestComputeRates_EmptyFunnel(t *testing.T) {
	for _, v := range goals.ComputeRates(goals.FunnelCounts{}, goals.RateModeStep) {
		assert.Zero(t, v)
	}
}

// =============================================================================
// NORMALIZATION
// =============================================================================

func TestNormalizeCounts_Aliases(t *testing.T) {
	c := goals.NormalizeCounts(map[string]any{
		"new_interviews":       "12",
		"proposals":            10.0,
		"interviews_scheduled": 6.0,
		"interviewsHeld":       nil,
		"interviews_held":      4.0,
		"hires":                2.0,
		"current_amount":       500000.0,
		"revenue_target":       1000000.0,
	})

	assert.Equal(t, 12.0, c.NewInterviews)
	assert.Equal(t, 10.0, c.Proposals)
	assert.Equal(t, 6.0, c.InterviewsScheduled)
	assert.Equal(t, 4.0, c.InterviewsHeld, "nil values fall through to the next alias")
	assert.Equal(t, 2.0, c.Accepts, "accepts falls back to hires")
	assert.Equal(t, 2.0, c.Hires)
	assert.Equal(t, 500000.0, c.Revenue)
	assert.Equal(t, 1000000.0, c.TargetAmount)
	assert.Equal(t, 50.0, c.AchievementRate)
}

func TestNormalizeCounts_ProvidedAchievementRateWins(t *testing.T) {
	c := goals.NormalizeCounts(map[string]any{"revenue": 10.0, "targetAmount": 100.0, "achievementRate": 42.0})
	assert.Equal(t, 42.0, c.AchievementRate)
}

func TestNormalizeCounts_GarbageIsZero(t *testing.T) {
	c := goals.NormalizeCounts(map[string]any{"proposals": "n/a", "offers": []any{1}})
	assert.Zero(t, c.Proposals)
	assert.Zero(t, c.Offers)
	assert.Zero(t, c.AchievementRate)
}

func TestLookupNumber_FirstPresentAliasWins(t *testing.T) {
	raw := map[string]any{"revenue": "", "currentAmount": 99.0}
	assert.Zero(t, goals.LookupNumber(raw, goals.AliasRevenue...), "an empty but present alias stops the lookup")
}

func TestAchievementBand(t *testing.T) {
	cases := []struct {
		actual, target int64
		rate           int
		band           goals.Band
	}{
		{10, 0, 0, goals.BandNone},
		{10, 10, 100, goals.BandHigh},
		{8, 10, 80, goals.BandMid},
		{7, 10, 70, goals.BandLow},
		{0, 3, 0, goals.BandLow},
	}
	for _, tc := range cases {
		rate, band := goals.AchievementBand(decimal.NewFromInt(tc.actual), decimal.NewFromInt(tc.target))
		assert.Equal(t, tc.rate, rate)
		assert.Equal(t, tc.band, band)
	}
}

// =============================================================================
// MODES
// =============================================================================

func TestModeSettings_DefaultsAndFallback(t *testing.T) {
	m, err := goals.NewModeSettings(nil)
	require.NoError(t, err)

	assert.Equal(t, goals.RateModeBase, m.RateMode(goals.ScopeCompanyTerm))
	assert.Equal(t, goals.CalcModeCohort, m.CalcMode(goals.ScopeEmployee))

	_, err = m.SetRateMode(goals.ScopeDefault, "STEP")
	require.NoError(t, err)
	assert.Equal(t, goals.RateModeStep, m.RateMode(goals.ScopeCompanyTerm), "unset scopes follow the default")

	_, err = m.SetRateMode(goals.ScopeCompanyTerm, "base")
	require.NoError(t, err)
	assert.Equal(t, goals.RateModeBase, m.RateMode(goals.ScopeCompanyTerm))
	assert.Equal(t, goals.RateModeStep, m.RateMode(goals.ScopePersonalMonthly))
}

func TestModeSettings_PersistsAcrossInstances(t *testing.T) {
	prefs := goals.NewFilePreferences(filepath.Join(t.TempDir(), "prefs", "modes.json"))

	m, err := goals.NewModeSettings(prefs)
	require.NoError(t, err)
	_, err = m.SetRateMode(goals.ScopePersonalPeriod, goals.RateModeStep)
	require.NoError(t, err)
	_, err = m.SetCalcMode(goals.ScopePersonalPeriod, "anything")
	require.NoError(t, err)

	reloaded, err := goals.NewModeSettings(prefs)
	require.NoError(t, err)
	assert.Equal(t, goals.RateModeStep, reloaded.RateMode(goals.ScopePersonalPeriod))
	assert.Equal(t, goals.CalcModePeriod, reloaded.CalcMode(goals.ScopePersonalPeriod), "unknown calc modes normalize to period")
}

func TestCalcModeParams(t *testing.T) {
	m, _ := goals.NewModeSettings(nil)

	assert.Equal(t, goals.CalcParams{CalcMode: goals.CalcModeCohort, CountBasis: "application", TimeBasis: "application"},
		m.CalcModeParams(goals.ScopeCompanyMonthly))

	_, _ = m.SetCalcMode(goals.ScopeCompanyMonthly, goals.CalcModePeriod)
	assert.Equal(t, "event", m.CalcModeParams(goals.ScopeCompanyMonthly).CountBasis)

	assert.Equal(t, map[string]string{"calcMode": "period", "countBasis": "event", "timeBasis": "event"},
		goals.MsCalcModeParams().Values())
}
