package api

import (
	"fmt"
	"time"

	"github.com/warp/yield-pacing/generic"
)

// =============================================================================
// SYNTHETIC YIELD - deterministic per (date, advisor) funnel counts
// =============================================================================

const (
	defaultYieldFrom = "2026-01-01"
	defaultYieldTo   = "2026-01-31"
	revenuePerAccept = 120000
)

// yieldMember is the minimum the generator needs about an advisor.
type yieldMember struct {
	ID   generic.AdvisorID
	Name string
}

// fallbackMembers is used when the members table is empty.
var fallbackMembers = []yieldMember{
	{ID: 1, Name: "管理者 太郎"},
	{ID: 30, Name: "テスト一般"},
	{ID: 2, Name: "営業 花子"},
}

// fnv32a hashes s with 32-bit FNV-1a.
func fnv32a(s string) uint32 {
	h := uint32(2166136261)
	for _, c := range []byte(s) {
		h ^= uint32(c)
		h *= 16777619
	}
	return h
}

// bit reads (h >> shift) % 2 on the signed 32-bit view of h, so it can be -1.
func bit(h uint32, shift uint) int {
	return int((int32(h) >> shift) % 2)
}

func max0(v int) int {
	if v > 0 {
		return v
	}
	return 0
}

// dailyCounts derives one day of funnel counts. Cohort mode lowers proposals
// by one, which cascades down the funnel.
func dailyCounts(date string, advisor generic.AdvisorID, cohort bool) CountsDTO {
	h := fnv32a(fmt.Sprintf("%s:%d", date, advisor))
	bias := 0
	if cohort {
		bias = -1
	}

	var c CountsDTO
	c.NewInterviews = 2 + int(h%4)
	c.Proposals = max0(c.NewInterviews - 1 + bit(h, 2) + bias)
	c.Recommendations = max0(c.Proposals - bit(h, 4))
	c.InterviewsScheduled = max0(c.Recommendations - bit(h, 5))
	c.InterviewsHeld = max0(c.InterviewsScheduled - bit(h, 6))
	c.Offers = max0(c.InterviewsHeld - 1 - bit(h, 7))
	c.Accepts = max0(c.Offers - bit(h, 8))
	c.Hires = max0(c.Accepts - bit(h, 9))
	c.Revenue = c.Accepts * revenuePerAccept
	return c
}

// enumerateDays lists YYYY-MM-DD dates from..to inclusive; empty when the
// range is inverted.
func enumerateDays(from, to time.Time) []string {
	var out []string
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		out = append(out, generic.DateOf(d).String())
	}
	return out
}

func sumSeries(series map[string]CountsDTO) CountsDTO {
	var total CountsDTO
	for _, c := range series {
		total = total.Add(c)
	}
	return total
}

func aggregateByMonth(series map[string]CountsDTO) map[string]CountsDTO {
	out := map[string]CountsDTO{}
	for day, c := range series {
		month := day[:7]
		out[month] = out[month].Add(c)
	}
	return out
}

// yieldParams is the parsed /kpi/yield query.
type yieldParams struct {
	From        time.Time
	To          time.Time
	Scope       generic.Scope
	GroupBy     string
	Granularity string
	Cohort      bool
	Advisor     generic.AdvisorID
}

// buildYield generates one item per member, or a single company item summed
// across members unless grouped by advisor.
func buildYield(p yieldParams, members []yieldMember) YieldResponse {
	if p.Scope == generic.ScopePersonal && p.Advisor.Valid() {
		var only []yieldMember
		for _, m := range members {
			if m.ID == p.Advisor {
				only = append(only, m)
			}
		}
		members = only
	}

	days := enumerateDays(p.From, p.To)
	items := make([]YieldItemDTO, 0, len(members))
	for _, m := range members {
		daily := make(map[string]CountsDTO, len(days))
		for _, d := range days {
			daily[d] = dailyCounts(d, m.ID, p.Cohort)
		}
		series := daily
		if p.Granularity == "month" {
			series = aggregateByMonth(daily)
		}
		id := m.ID
		items = append(items, YieldItemDTO{
			AdvisorUserID: &id,
			Name:          m.Name,
			Series:        series,
			KPI:           sumSeries(daily),
		})
	}

	resp := YieldResponse{Meta: YieldMeta{CalcMode: calcModeName(p.Cohort)}}
	if p.GroupBy == "advisor" {
		resp.Items = items
		return resp
	}
	resp.Items = []YieldItemDTO{mergeItems(items, p.Advisor)}
	return resp
}

// mergeItems folds advisor items into one. A single item passes through.
func mergeItems(items []YieldItemDTO, advisor generic.AdvisorID) YieldItemDTO {
	if len(items) == 1 {
		return items[0]
	}
	merged := YieldItemDTO{Series: map[string]CountsDTO{}}
	if advisor.Valid() {
		merged.AdvisorUserID = &advisor
	}
	for _, item := range items {
		for k, c := range item.Series {
			merged.Series[k] = merged.Series[k].Add(c)
		}
		merged.KPI = merged.KPI.Add(item.KPI)
	}
	return merged
}

// =============================================================================
// TREND AND BREAKDOWN - fixed shapes shifted by calc mode
// =============================================================================

func buildTrend(cohort bool) TrendResponse {
	bias := 0.0
	if cohort {
		bias = -0.08
	}
	return TrendResponse{
		Meta: YieldMeta{CalcMode: calcModeName(cohort)},
		Series: []TrendPointDTO{
			{Period: "2026-01", Rates: map[string]float64{"proposalRate": 0.5 + bias, "offerRate": 0.1 + bias/2}},
			{Period: "2026-02", Rates: map[string]float64{"proposalRate": 0.6 + bias, "offerRate": 0.2 + bias/2}},
		},
	}
}

func buildBreakdown(cohort bool) BreakdownResponse {
	delta := 0
	if cohort {
		delta = -2
	}
	return BreakdownResponse{
		Meta: YieldMeta{CalcMode: calcModeName(cohort)},
		Items: []BreakdownItemDTO{
			{Label: "Channel A", Count: 10 + delta},
			{Label: "Channel B", Count: 5 + delta},
		},
	}
}

func calcModeName(cohort bool) string {
	if cohort {
		return "cohort"
	}
	return "period"
}
