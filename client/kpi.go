package client

import (
	"context"
	"net/url"
	"strconv"

	"github.com/warp/yield-pacing/generic"
	"github.com/warp/yield-pacing/goals"
)

// =============================================================================
// MS TARGETS
// =============================================================================

// MsTargetsPayload is the PUT /ms-targets body. AdvisorUserID is null for
// company scope.
type MsTargetsPayload struct {
	Scope         generic.Scope         `json:"scope"`
	DepartmentKey generic.DepartmentKey `json:"departmentKey"`
	MetricKey     generic.MetricKey     `json:"metricKey"`
	PeriodID      generic.PeriodID      `json:"periodId"`
	AdvisorUserID *generic.AdvisorID    `json:"advisorUserId"`
	TargetTotal   float64               `json:"targetTotal"`
	DailyTargets  map[string]float64    `json:"dailyTargets"`
}

func msQuery(key generic.MsTargetKey) url.Values {
	q := url.Values{
		"scope":         {string(key.Scope)},
		"departmentKey": {string(key.Department)},
		"metricKey":     {string(key.Metric)},
		"periodId":      {string(key.PeriodID)},
	}
	if key.AdvisorID.Valid() {
		q.Set("advisorUserId", key.AdvisorID.String())
	}
	return q
}

func (c *Client) GetMsTargets(ctx context.Context, key generic.MsTargetKey) (goals.MsTargets, error) {
	var raw map[string]any
	if err := c.getKPI(ctx, "/ms-targets", msQuery(key), &raw); err != nil {
		return goals.MsTargets{}, err
	}
	return goals.NormalizeMsTargets(raw), nil
}

func (c *Client) PutMsTargets(ctx context.Context, key generic.MsTargetKey, targets goals.MsTargets) error {
	payload := MsTargetsPayload{
		Scope:         key.Scope,
		DepartmentKey: key.Department,
		MetricKey:     key.Metric,
		PeriodID:      key.PeriodID,
		TargetTotal:   targets.TargetTotal.InexactFloat64(),
		DailyTargets:  targets.DailyTargets.MarshalPayload(),
	}
	if key.AdvisorID.Valid() {
		id := key.AdvisorID
		payload.AdvisorUserID = &id
	}
	return c.putKPI(ctx, "/ms-targets", payload)
}

// =============================================================================
// IMPORTANT METRICS
// =============================================================================

type itemsResponse struct {
	Items []any `json:"items"`
}

func (c *Client) GetImportantMetrics(ctx context.Context, key generic.ImportantMetricKey) ([]goals.ImportantMetric, error) {
	q := url.Values{}
	if key.Department != generic.AllDepartments {
		q.Set("departmentKey", string(key.Department))
	}
	if key.UserID.Valid() {
		q.Set("userId", key.UserID.String())
	}
	var resp itemsResponse
	if err := c.getKPI(ctx, "/important-metrics", q, &resp); err != nil {
		return nil, err
	}
	return goals.NormalizeImportantMetrics(resp.Items), nil
}

func (c *Client) PutImportantMetric(ctx context.Context, metric goals.ImportantMetric) error {
	return c.putKPI(ctx, "/important-metrics", metric)
}

// =============================================================================
// MS PERIOD SETTINGS
// =============================================================================

type msPeriodSettingsResponse struct {
	Settings []goals.MsPeriodSetting `json:"settings"`
}

type msPeriodSettingsPayload struct {
	Month    string                  `json:"month"`
	Settings []goals.MsPeriodSetting `json:"settings"`
}

// GetMsPeriodSettings returns the raw rows for a YYYY-MM month.
func (c *Client) GetMsPeriodSettings(ctx context.Context, month string) ([]goals.MsPeriodSetting, error) {
	var resp msPeriodSettingsResponse
	if err := c.getKPI(ctx, "/ms-period-settings", url.Values{"month": {month}}, &resp); err != nil {
		return nil, err
	}
	return resp.Settings, nil
}

func (c *Client) PutMsPeriodSettings(ctx context.Context, month string, settings []goals.MsPeriodSetting) error {
	return c.putKPI(ctx, "/ms-period-settings", msPeriodSettingsPayload{Month: month, Settings: settings})
}

// =============================================================================
// PAGE RATE TARGETS (/kpi-targets, keyed by YYYY-MM)
// =============================================================================

type kpiTargetsPayload struct {
	Period  string             `json:"period"`
	Targets map[string]float64 `json:"targets"`
}

// TargetMonth is the first seven characters of a period id.
func TargetMonth(periodID generic.PeriodID) string {
	s := string(periodID)
	if len(s) >= 7 {
		return s[:7]
	}
	return s
}

func (c *Client) GetPageRateTargets(ctx context.Context, periodID generic.PeriodID) (goals.PageRateTarget, error) {
	var raw map[string]any
	if err := c.getKPI(ctx, "/kpi-targets", url.Values{"period": {TargetMonth(periodID)}}, &raw); err != nil {
		return nil, err
	}
	return goals.NormalizePageRateTarget(raw), nil
}

// PutPageRateTargets writes every alias spelling of each key.
func (c *Client) PutPageRateTargets(ctx context.Context, periodID generic.PeriodID, target goals.PageRateTarget) error {
	return c.putKPI(ctx, "/kpi-targets", kpiTargetsPayload{
		Period:  TargetMonth(periodID),
		Targets: goals.ExpandPageRatePayload(target),
	})
}

// =============================================================================
// MEMBERS
// =============================================================================

func (c *Client) GetMembers(ctx context.Context) ([]goals.Member, error) {
	var raw any
	if err := c.getKPI(ctx, "/members", nil, &raw); err != nil {
		return nil, err
	}
	return goals.NormalizeMembers(raw), nil
}

// =============================================================================
// YIELD
// =============================================================================

// YieldQuery parameters for /kpi/yield and its trend/breakdown variants.
type YieldQuery struct {
	From        string
	To          string
	Scope       generic.Scope
	Advisor     generic.AdvisorID
	Granularity string // summary, day, month
	GroupBy     string // none, advisor
	Dimension   string // breakdown only
	Planned     bool
	MS          bool
	Calc        goals.CalcParams
}

// Values renders the query. MS requests always count by event date.
func (q YieldQuery) Values() url.Values {
	v := url.Values{}
	set := func(key, value string) {
		if value != "" {
			v.Set(key, value)
		}
	}
	set("from", q.From)
	set("to", q.To)
	set("scope", string(q.Scope))
	set("granularity", q.Granularity)
	set("groupBy", q.GroupBy)
	set("dimension", q.Dimension)
	if q.Advisor.Valid() {
		v.Set("advisorUserId", q.Advisor.String())
	}
	if q.Planned {
		v.Set("planned", "1")
	}

	calc := q.Calc
	if q.MS {
		v.Set("ms", "1")
		calc = goals.MsCalcModeParams()
	}
	for key, value := range calc.Values() {
		set(key, value)
	}
	return v
}

// YieldItem is one advisor (or the whole company) in a yield response.
type YieldItem struct {
	AdvisorUserID any                       `json:"advisorUserId"`
	Name          string                    `json:"name"`
	Series        map[string]map[string]any `json:"series"`
	KPI           map[string]any            `json:"kpi"`
}

func (i YieldItem) AdvisorID() generic.AdvisorID {
	return generic.ParseAdvisorID(i.AdvisorUserID)
}

// Counts normalizes the summary KPI.
func (i YieldItem) Counts() goals.FunnelCounts {
	return goals.NormalizeCounts(i.KPI)
}

// DailyCounts normalizes each entry of the series.
func (i YieldItem) DailyCounts() map[string]goals.FunnelCounts {
	out := make(map[string]goals.FunnelCounts, len(i.Series))
	for date, raw := range i.Series {
		out[date] = goals.NormalizeCounts(raw)
	}
	return out
}

type YieldResponse struct {
	Items []YieldItem `json:"items"`
	Meta  struct {
		CalcMode string `json:"calcMode"`
	} `json:"meta"`
}

func (c *Client) GetYield(ctx context.Context, q YieldQuery) (YieldResponse, error) {
	var resp YieldResponse
	err := c.getKPI(ctx, "/kpi/yield", q.Values(), &resp)
	return resp, err
}

type TrendPoint struct {
	Period string             `json:"period"`
	Rates  map[string]float64 `json:"rates"`
}

func (c *Client) GetYieldTrend(ctx context.Context, q YieldQuery) ([]TrendPoint, error) {
	var resp struct {
		Series []TrendPoint `json:"series"`
	}
	if err := c.getKPI(ctx, "/kpi/yield/trend", q.Values(), &resp); err != nil {
		return nil, err
	}
	return resp.Series, nil
}

type BreakdownItem struct {
	Label string  `json:"label"`
	Count float64 `json:"count"`
}

func (c *Client) GetYieldBreakdown(ctx context.Context, q YieldQuery) ([]BreakdownItem, error) {
	var resp struct {
		Items []BreakdownItem `json:"items"`
	}
	if err := c.getKPI(ctx, "/kpi/yield/breakdown", q.Values(), &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

// FormatAdvisorIDs renders ids for log fields.
func FormatAdvisorIDs(ids []generic.AdvisorID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, strconv.FormatInt(int64(id), 10))
	}
	return out
}
