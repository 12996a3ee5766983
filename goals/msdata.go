package goals

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/warp/yield-pacing/generic"
)

// =============================================================================
// MS TARGETS - a period total plus explicit cumulative overrides
// =============================================================================

type MsTargets struct {
	TargetTotal  decimal.Decimal      `json:"targetTotal"`
	DailyTargets generic.DailyTargets `json:"dailyTargets"`
}

func (m MsTargets) Clone() MsTargets {
	return MsTargets{TargetTotal: m.TargetTotal, DailyTargets: m.DailyTargets.Clone()}
}

// IsEmpty reports a zero total without overrides.
func (m MsTargets) IsEmpty() bool {
	return m.TargetTotal.IsZero() && len(m.DailyTargets) == 0
}

// NormalizeMsTargets reads {targetTotal, dailyTargets}; garbage totals are 0.
func NormalizeMsTargets(raw map[string]any) MsTargets {
	daily, _ := raw["dailyTargets"].(map[string]any)
	return MsTargets{
		TargetTotal:  decimal.NewFromFloat(generic.Num(raw["targetTotal"])),
		DailyTargets: generic.NormalizeDailyTargets(daily),
	}
}

// =============================================================================
// IMPORTANT METRICS - the KPI an advisor chose to highlight
// =============================================================================

type ImportantMetric struct {
	DepartmentKey generic.DepartmentKey `json:"departmentKey"`
	UserID        generic.AdvisorID     `json:"userId"`
	MetricKey     generic.MetricKey     `json:"metricKey"`
}

// NormalizeImportantMetrics reads an items array; userId falls back to user_id.
func NormalizeImportantMetrics(items []any) []ImportantMetric {
	out := make([]ImportantMetric, 0, len(items))
	for _, item := range items {
		raw, ok := item.(map[string]any)
		if !ok {
			continue
		}
		user := generic.ParseAdvisorID(raw["userId"])
		if !user.Valid() {
			user = generic.ParseAdvisorID(raw["user_id"])
		}
		out = append(out, ImportantMetric{
			DepartmentKey: generic.DepartmentKey(firstString(raw, "departmentKey", "department_key")),
			UserID:        user,
			MetricKey:     generic.MetricKey(firstString(raw, "metricKey", "metric_key")),
		})
	}
	return out
}

// ReplaceUserMetric drops list entries of saved.UserID and appends saved.
func ReplaceUserMetric(list []ImportantMetric, saved ImportantMetric) []ImportantMetric {
	out := make([]ImportantMetric, 0, len(list)+1)
	for _, m := range list {
		if m.UserID != saved.UserID {
			out = append(out, m)
		}
	}
	return append(out, saved)
}

// =============================================================================
// MS PERIOD SETTINGS - explicit per-metric windows for one month
// =============================================================================

// MsPeriodSetting is one row of the settings form. Empty dates clear the row.
type MsPeriodSetting struct {
	MetricKey generic.MetricKey `json:"metricKey"`
	StartDate string            `json:"startDate"`
	EndDate   string            `json:"endDate"`
}

func (s MsPeriodSetting) blankStart() bool { return strings.TrimSpace(s.StartDate) == "" }
func (s MsPeriodSetting) blankEnd() bool   { return strings.TrimSpace(s.EndDate) == "" }

// IsClear reports a row with both dates empty.
func (s MsPeriodSetting) IsClear() bool { return s.blankStart() && s.blankEnd() }

// IsPartial reports a row with exactly one date.
func (s MsPeriodSetting) IsPartial() bool { return s.blankStart() != s.blankEnd() }

// Range parses both dates; ok is false unless both parse and start <= end.
func (s MsPeriodSetting) Range() (generic.DateRange, bool) {
	start, err := generic.ParseDate(s.StartDate)
	if err != nil {
		return generic.DateRange{}, false
	}
	end, err := generic.ParseDate(s.EndDate)
	if err != nil {
		return generic.DateRange{}, false
	}
	r := generic.DateRange{Start: start, End: end}
	return r, r.Valid()
}

// MsPeriodMap holds the configured windows of one month.
type MsPeriodMap map[generic.MetricKey]generic.DateRange

func (m MsPeriodMap) Clone() MsPeriodMap {
	if m == nil {
		return nil
	}
	out := make(MsPeriodMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Settings renders the map as rows in metric table order.
func (m MsPeriodMap) Settings() []MsPeriodSetting {
	out := make([]MsPeriodSetting, 0, len(m))
	for _, metric := range ConfigurableMetrics() {
		if r, ok := m[metric.Key]; ok {
			out = append(out, MsPeriodSetting{MetricKey: metric.Key, StartDate: r.Start.String(), EndDate: r.End.String()})
		}
	}
	return out
}

// BuildMsPeriodMap keeps rows with a metric key and a valid date pair.
func BuildMsPeriodMap(settings []MsPeriodSetting) MsPeriodMap {
	out := MsPeriodMap{}
	for _, s := range settings {
		if s.MetricKey == "" {
			continue
		}
		if r, ok := s.Range(); ok {
			out[s.MetricKey] = r
		}
	}
	return out
}

// Merge returns a copy of m with rows applied on top. Cleared rows remove
// their metric; rows without a valid date pair are ignored.
func (m MsPeriodMap) Merge(rows []MsPeriodSetting) MsPeriodMap {
	out := m.Clone()
	if out == nil {
		out = MsPeriodMap{}
	}
	for _, row := range rows {
		if row.MetricKey == "" {
			continue
		}
		if row.IsClear() {
			delete(out, row.MetricKey)
			continue
		}
		if r, ok := row.Range(); ok {
			out[row.MetricKey] = r
		}
	}
	return out
}

// ValidateMsPeriodSettings rejects rows with only one date. The error lists
// the metric labels in row order.
func ValidateMsPeriodSettings(settings []MsPeriodSetting) error {
	var labels []string
	for _, s := range settings {
		if s.IsPartial() {
			labels = append(labels, MetricLabel(s.MetricKey))
		}
	}
	if len(labels) > 0 {
		return &generic.FieldError{Fields: labels}
	}
	return nil
}
