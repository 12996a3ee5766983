// Package goals implements the recruiting-funnel domain on top of the generic
// pacing engine: departments and their MS metrics, MS windows, funnel rates,
// target shapes and member identity.
package goals

import "github.com/warp/yield-pacing/generic"

// =============================================================================
// DEPARTMENTS
// =============================================================================

const (
	DeptMarketing generic.DepartmentKey = "marketing"
	DeptCS        generic.DepartmentKey = "cs"
	DeptSales     generic.DepartmentKey = "sales"
	DeptRevenue   generic.DepartmentKey = "revenue"
)

type Department struct {
	Key   generic.DepartmentKey
	Label string
}

// Departments is the MS table row order.
var Departments = []Department{
	{Key: DeptMarketing, Label: "マーケ"},
	{Key: DeptCS, Label: "CS"},
	{Key: DeptSales, Label: "営業"},
	{Key: DeptRevenue, Label: "売上"},
}

func DepartmentLabel(key generic.DepartmentKey) string {
	for _, d := range Departments {
		if d.Key == key {
			return d.Label
		}
	}
	return string(key)
}

// =============================================================================
// MS METRICS
// =============================================================================

// Metric is one MS row. TargetKey names the field in daily actuals.
type Metric struct {
	Key       generic.MetricKey
	Label     string
	TargetKey string
}

const MetricRevenue generic.MetricKey = "revenue"

var (
	marketingMetrics = []Metric{
		{Key: "valid_applications", Label: "有効応募数", TargetKey: "validApplications"},
	}
	csMetrics = []Metric{
		{Key: "appointments", Label: "設定数", TargetKey: "appointments"},
		{Key: "sitting", Label: "着座数", TargetKey: "sitting"},
	}
	salesMetrics = []Metric{
		{Key: "new_interviews", Label: "新規面談数", TargetKey: "newInterviews"},
		{Key: "proposals", Label: "提案数", TargetKey: "proposals"},
		{Key: "recommendations", Label: "推薦数", TargetKey: "recommendations"},
		{Key: "interviews_scheduled", Label: "面談設定数", TargetKey: "interviewsScheduled"},
		{Key: "interviews_held", Label: "面談実施数", TargetKey: "interviewsHeld"},
		{Key: "offers", Label: "内定数", TargetKey: "offers"},
		{Key: "accepts", Label: "承諾数", TargetKey: "accepts"},
	}
	revenueMetrics = []Metric{
		{Key: MetricRevenue, Label: "売上", TargetKey: "revenue"},
	}
)

// MetricsFor returns the MS metrics of a department (nil when unknown).
func MetricsFor(dept generic.DepartmentKey) []Metric {
	switch dept {
	case DeptMarketing:
		return marketingMetrics
	case DeptCS:
		return csMetrics
	case DeptSales:
		return salesMetrics
	case DeptRevenue:
		return revenueMetrics
	}
	return nil
}

// LookupMetric finds a metric across every department.
func LookupMetric(key generic.MetricKey) (Metric, generic.DepartmentKey, bool) {
	for _, d := range Departments {
		for _, m := range MetricsFor(d.Key) {
			if m.Key == key {
				return m, d.Key, true
			}
		}
	}
	return Metric{}, "", false
}

// MetricLabel is the display label, or the key itself when unknown.
func MetricLabel(key generic.MetricKey) string {
	if m, _, ok := LookupMetric(key); ok {
		return m.Label
	}
	return string(key)
}

// ValidMsMetricKeys is the whitelist accepted by the MS period settings
// endpoint. Revenue always uses the calendar month and is not configurable.
var ValidMsMetricKeys = func() map[generic.MetricKey]bool {
	keys := map[generic.MetricKey]bool{}
	for _, group := range [][]Metric{marketingMetrics, csMetrics, salesMetrics} {
		for _, m := range group {
			keys[m.Key] = true
		}
	}
	return keys
}()

// ConfigurableMetrics lists the MS metrics in table order, revenue excluded.
func ConfigurableMetrics() []Metric {
	out := make([]Metric, 0, len(ValidMsMetricKeys))
	out = append(out, marketingMetrics...)
	out = append(out, csMetrics...)
	out = append(out, salesMetrics...)
	return out
}
