package goals

import (
	"math"
	"sort"

	"github.com/warp/yield-pacing/generic"
)

// =============================================================================
// KPI TARGETS - period goals for a company or an advisor
// =============================================================================

// KPITargetKeys are the fields of a period target, in display order.
var KPITargetKeys = []string{
	"newInterviewsTarget",
	"proposalsTarget",
	"recommendationsTarget",
	"interviewsScheduledTarget",
	"interviewsHeldTarget",
	"offersTarget",
	"acceptsTarget",
	"revenueTarget",
	"proposalRateTarget",
	"recommendationRateTarget",
	"interviewScheduleRateTarget",
	"interviewHeldRateTarget",
	"offerRateTarget",
	"acceptRateTarget",
	"hireRateTarget",
}

// Target always carries every KPITargetKeys entry.
type Target map[string]float64

// NormalizeTarget keeps the known keys, each coerced to a finite number or 0.
func NormalizeTarget(raw map[string]any) Target {
	t := make(Target, len(KPITargetKeys))
	for _, key := range KPITargetKeys {
		t[key] = generic.Num(raw[key])
	}
	return t
}

// NormalizeTargetValues is NormalizeTarget for an already numeric map.
func NormalizeTargetValues(raw map[string]float64) Target {
	t := make(Target, len(KPITargetKeys))
	for _, key := range KPITargetKeys {
		v := raw[key]
		if math.IsNaN(v) || math.IsInf(v, 0) {
			v = 0
		}
		t[key] = v
	}
	return t
}

func (t Target) Clone() Target {
	if t == nil {
		return nil
	}
	out := make(Target, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out
}

// DailyTargetSet maps an ISO date to that day's target.
type DailyTargetSet map[string]Target

func (d DailyTargetSet) Clone() DailyTargetSet {
	if d == nil {
		return nil
	}
	out := make(DailyTargetSet, len(d))
	for date, t := range d {
		out[date] = t.Clone()
	}
	return out
}

// Dates returns the keys in ascending order.
func (d DailyTargetSet) Dates() []string {
	out := make([]string, 0, len(d))
	for k := range d {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// =============================================================================
// PAGE RATE TARGETS - per-page rate goals keyed by month
// =============================================================================

// PageRateTargetKeys are the canonical page-rate keys.
var PageRateTargetKeys = []string{
	// ad management
	"adValidAppRate",
	"adInterviewSetupRate",
	"adOfferRateTarget",
	"adOfferRateTargetStep",
	"adHireRateTarget",
	"adHireRateTargetStep",
	"adRetentionRate",
	// teleapo
	"teleapoContactRate",
	"teleapoSetupRate",
	"teleapoAttendanceRate",
	"teleapoAttendanceRateContact",
	"teleapoConnectionRate",
	// referral clients
	"clientRetentionRate",
}

// PageRateAliases lists the backend spellings of each canonical key, in
// lookup order.
var PageRateAliases = map[string][]string{
	"adValidAppRate":       {"adValidAppRate", "adValidApplicationRateTarget", "ad_valid_application_rate_target", "validApplicationRateTarget"},
	"adInterviewSetupRate": {"adInterviewSetupRate", "adInitialInterviewRateTarget", "ad_initial_interview_rate_target", "initialInterviewRateTarget"},
	"adOfferRateTarget": {
		"offerRateTarget", "offer_rate_target",
		"adOfferRateTarget", "ad_offer_rate_target",
		"adOfferTarget", "ad_offer_target",
		"adOfferRate", "ad_offer_rate",
		"adProvisionalOfferRateTarget", "ad_provisional_offer_rate_target",
		"adInformalOfferRateTarget", "ad_informal_offer_rate_target",
	},
	"adOfferRateTargetStep": {"adOfferRateTargetStep", "ad_offer_rate_target_step"},
	"adHireRateTarget": {
		"hireRateTarget", "hire_rate_target",
		"adHireRateTarget", "ad_hire_rate_target",
		"adHireTarget", "ad_hire_target",
		"adHireRate", "ad_hire_rate",
		"adDecisionRateTarget", "ad_decision_rate_target",
		"decisionRateTarget", "decision_rate_target",
		"adEmploymentRateTarget", "ad_employment_rate_target",
	},
	"adHireRateTargetStep":         {"adHireRateTargetStep", "ad_hire_rate_target_step"},
	"adRetentionRate":              {"adRetentionRate", "adRetentionRateTarget", "ad_retention_rate_target", "retentionRateTarget"},
	"teleapoContactRate":           {"teleapoContactRate", "teleapoContactRateTarget", "teleapo_contact_rate_target"},
	"teleapoSetupRate":             {"teleapoSetupRate", "teleapoSetRateTarget", "teleapo_set_rate_target"},
	"teleapoAttendanceRate":        {"teleapoAttendanceRate", "teleapoShowRateTarget", "teleapo_show_rate_target"},
	"teleapoAttendanceRateContact": {"teleapoAttendanceRateContact", "teleapoShowRateTargetWithContact", "teleapo_show_rate_target_with_contact"},
	"teleapoConnectionRate":        {"teleapoConnectionRate", "teleapoConnectRateTarget", "teleapo_connect_rate_target"},
	"clientRetentionRate":          {"clientRetentionRate", "referralRetentionRateTarget", "referral_retention_rate_target"},
}

// PageRateTarget always carries every PageRateTargetKeys entry.
type PageRateTarget map[string]float64

func (p PageRateTarget) Clone() PageRateTarget {
	if p == nil {
		return nil
	}
	out := make(PageRateTarget, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

func aliasesOf(key string) []string {
	if a, ok := PageRateAliases[key]; ok {
		return a
	}
	return []string{key}
}

// NormalizePageRateTarget takes, per canonical key, the first alias holding a
// non-empty, finite, non-negative number. Keys without one are 0.
func NormalizePageRateTarget(raw map[string]any) PageRateTarget {
	out := make(PageRateTarget, len(PageRateTargetKeys))
	for _, key := range PageRateTargetKeys {
		out[key] = 0
		for _, alias := range aliasesOf(key) {
			v, ok := generic.ToDecimal(raw[alias])
			if !ok || v.IsNegative() {
				continue
			}
			out[key] = v.InexactFloat64()
			break
		}
	}
	return out
}

// ExpandPageRatePayload writes each canonical value under every alias so any
// backend spelling reads it back.
func ExpandPageRatePayload(target PageRateTarget) map[string]float64 {
	out := map[string]float64{}
	for _, key := range PageRateTargetKeys {
		v := target[key]
		for _, alias := range aliasesOf(key) {
			out[alias] = v
		}
	}
	return out
}
