package goals

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/warp/yield-pacing/generic"
)

// =============================================================================
// FUNNEL COUNTS
// =============================================================================

// FunnelCounts is the normalized shape of every KPI count payload.
type FunnelCounts struct {
	NewInterviews       float64 `json:"newInterviews"`
	Proposals           float64 `json:"proposals"`
	Recommendations     float64 `json:"recommendations"`
	InterviewsScheduled float64 `json:"interviewsScheduled"`
	InterviewsHeld      float64 `json:"interviewsHeld"`
	Offers              float64 `json:"offers"`
	Accepts             float64 `json:"accepts"`
	Hires               float64 `json:"hires"`
	Revenue             float64 `json:"revenue"`
	TargetAmount        float64 `json:"targetAmount"`
	AchievementRate     float64 `json:"achievementRate"`
}

// Field aliases, in lookup order. The first alias present in the payload wins
// even when its value coerces to zero.
var (
	AliasNewInterviews       = []string{"newInterviews", "new_interviews"}
	AliasProposals           = []string{"proposals"}
	AliasRecommendations     = []string{"recommendations"}
	AliasInterviewsScheduled = []string{"interviewsScheduled", "interviews_scheduled"}
	AliasInterviewsHeld      = []string{"interviewsHeld", "interviews_held"}
	AliasOffers              = []string{"offers"}
	AliasAccepts             = []string{"accepts", "hires"}
	AliasHires               = []string{"hires", "accepts"}
	AliasRevenue             = []string{"revenue", "currentAmount", "revenueAmount", "current_amount", "revenue_amount"}
	AliasTargetAmount        = []string{"targetAmount", "revenueTarget", "target_amount", "revenue_target"}
	AliasAchievementRate     = []string{"achievementRate", "achievement_rate"}
)

// LookupNumber returns the first alias with a non-nil value, coerced to a
// finite number. Missing fields are zero.
func LookupNumber(raw map[string]any, aliases ...string) float64 {
	for _, key := range aliases {
		if v, ok := raw[key]; ok && v != nil {
			return generic.Num(v)
		}
	}
	return 0
}

// NormalizeCounts maps a loosely typed payload onto FunnelCounts. The
// achievement rate is taken from the payload when non-zero, otherwise
// computed from revenue and target.
func NormalizeCounts(raw map[string]any) FunnelCounts {
	c := FunnelCounts{
		NewInterviews:       LookupNumber(raw, AliasNewInterviews...),
		Proposals:           LookupNumber(raw, AliasProposals...),
		Recommendations:     LookupNumber(raw, AliasRecommendations...),
		InterviewsScheduled: LookupNumber(raw, AliasInterviewsScheduled...),
		InterviewsHeld:      LookupNumber(raw, AliasInterviewsHeld...),
		Offers:              LookupNumber(raw, AliasOffers...),
		Accepts:             LookupNumber(raw, AliasAccepts...),
		Hires:               LookupNumber(raw, AliasHires...),
		Revenue:             LookupNumber(raw, AliasRevenue...),
		TargetAmount:        LookupNumber(raw, AliasTargetAmount...),
	}
	c.AchievementRate = LookupNumber(raw, AliasAchievementRate...)
	if c.AchievementRate == 0 && c.TargetAmount > 0 {
		c.AchievementRate = float64(roundHalfUp(c.Revenue / c.TargetAmount * 100))
	}
	return c
}

// Count returns a stage count by its camelCase key.
func (c FunnelCounts) Count(key string) float64 {
	switch key {
	case "newInterviews":
		return c.NewInterviews
	case "proposals":
		return c.Proposals
	case "recommendations":
		return c.Recommendations
	case "interviewsScheduled":
		return c.InterviewsScheduled
	case "interviewsHeld":
		return c.InterviewsHeld
	case "offers":
		return c.Offers
	case "accepts":
		return c.Accepts
	case "hires":
		return c.Hires
	case "revenue":
		return c.Revenue
	}
	return 0
}

// Add sums stage counts; rate fields are recomputed.
func (c FunnelCounts) Add(o FunnelCounts) FunnelCounts {
	sum := FunnelCounts{
		NewInterviews:       c.NewInterviews + o.NewInterviews,
		Proposals:           c.Proposals + o.Proposals,
		Recommendations:     c.Recommendations + o.Recommendations,
		InterviewsScheduled: c.InterviewsScheduled + o.InterviewsScheduled,
		InterviewsHeld:      c.InterviewsHeld + o.InterviewsHeld,
		Offers:              c.Offers + o.Offers,
		Accepts:             c.Accepts + o.Accepts,
		Hires:               c.Hires + o.Hires,
		Revenue:             c.Revenue + o.Revenue,
		TargetAmount:        c.TargetAmount + o.TargetAmount,
	}
	if sum.TargetAmount > 0 {
		sum.AchievementRate = float64(roundHalfUp(sum.Revenue / sum.TargetAmount * 100))
	}
	return sum
}

// =============================================================================
// RATES
// =============================================================================

func roundHalfUp(f float64) int {
	return int(math.Floor(f + 0.5))
}

// CalcRate is round(n/d*100), or 0 when d <= 0.
func CalcRate(numerator, denominator float64) int {
	if denominator <= 0 || math.IsNaN(denominator) || math.IsNaN(numerator) || math.IsInf(numerator, 0) {
		return 0
	}
	return roundHalfUp(numerator / denominator * 100)
}

// RateStep is one conversion in the funnel. StepDenominator is the previous
// stage; base mode always divides by newInterviews.
type RateStep struct {
	RateKey         string
	Numerator       string
	StepDenominator string
}

var RateSteps = []RateStep{
	{RateKey: "proposalRate", Numerator: "proposals", StepDenominator: "newInterviews"},
	{RateKey: "recommendationRate", Numerator: "recommendations", StepDenominator: "proposals"},
	{RateKey: "interviewScheduleRate", Numerator: "interviewsScheduled", StepDenominator: "recommendations"},
	{RateKey: "interviewHeldRate", Numerator: "interviewsHeld", StepDenominator: "interviewsScheduled"},
	{RateKey: "offerRate", Numerator: "offers", StepDenominator: "interviewsHeld"},
	{RateKey: "acceptRate", Numerator: "accepts", StepDenominator: "offers"},
	{RateKey: "hireRate", Numerator: "hires", StepDenominator: "accepts"},
}

// Denominator returns the count key the step divides by under mode.
func (s RateStep) Denominator(mode RateMode) string {
	if NormalizeRateMode(string(mode)) == RateModeStep {
		return s.StepDenominator
	}
	return "newInterviews"
}

// Rates maps a rate key (see RateSteps) to a percentage.
type Rates map[string]int

// ComputeRates evaluates every funnel step under mode.
func ComputeRates(c FunnelCounts, mode RateMode) Rates {
	out := make(Rates, len(RateSteps))
	for _, step := range RateSteps {
		out[step.RateKey] = CalcRate(c.Count(step.Numerator), c.Count(step.Denominator(mode)))
	}
	return out
}

// =============================================================================
// ACHIEVEMENT
// =============================================================================

type Band string

const (
	BandNone Band = "none" // no positive target
	BandHigh Band = "high" // >= 100%
	BandMid  Band = "mid"  // >= 80%
	BandLow  Band = "low"
)

const (
	HighThreshold = 100
	MidThreshold  = 80
)

// AchievementBand rates a cumulative actual against its cumulative target.
func AchievementBand(actual, target decimal.Decimal) (int, Band) {
	if !target.IsPositive() {
		return 0, BandNone
	}
	rate := int(actual.Mul(decimal.NewFromInt(100)).Div(target).Round(0).IntPart())
	switch {
	case rate >= HighThreshold:
		return rate, BandHigh
	case rate >= MidThreshold:
		return rate, BandMid
	default:
		return rate, BandLow
	}
}
