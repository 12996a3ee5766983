/*
handlers_test.go - HTTP tests for the development backend

Tests for:
- parameter validation and 400 responses
- empty responses for missing data
- merge semantics of daily targets and MS period settings
- bearer auth and rate limiting
*/
package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/warp/yield-pacing/config"
	"github.com/warp/yield-pacing/generic"
	"github.com/warp/yield-pacing/store/sqlite"
)

var testNow = time.Date(2025, 6, 19, 9, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T, cfg config.ServerConfig) (*httptest.Server, *Handler) {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	h := NewHandler(store, zaptest.NewLogger(t))
	h.now = func() time.Time { return testNow }
	if cfg.AllowedOrigins == nil {
		cfg.AllowedOrigins = []string{"*"}
	}
	srv := httptest.NewServer(NewRouter(h, &cfg, zaptest.NewLogger(t)))
	t.Cleanup(srv.Close)
	return srv, h
}

// doJSON sends body (when non-nil) and decodes the response into out.
func doJSON(t *testing.T, method, url string, body, out any) int {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestGoalSettings_DefaultThenSaved(t *testing.T) {
	srv, _ := newTestServer(t, config.ServerConfig{})

	var got GoalSettingsDTO
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodGet, srv.URL+"/goal/goal-settings", nil, &got))
	assert.Equal(t, "monthly", got.EvaluationRuleType)
	assert.NotNil(t, got.EvaluationRuleOptions)

	var saved GoalSettingsSavedResponse
	status := doJSON(t, http.MethodPut, srv.URL+"/goal/goal-settings",
		GoalSettingsDTO{EvaluationRuleType: "weekly", EvaluationRuleOptions: map[string]any{"startWeekday": "sunday"}}, &saved)
	require.Equal(t, http.StatusOK, status)
	assert.True(t, saved.Success)
	assert.Equal(t, "weekly", saved.EvaluationRuleType)

	require.Equal(t, http.StatusOK, doJSON(t, http.MethodGet, srv.URL+"/goal/goal-settings", nil, &got))
	assert.Equal(t, "weekly", got.EvaluationRuleType)
	assert.Equal(t, "sunday", got.EvaluationRuleOptions["startWeekday"])

	// an empty type falls back to monthly
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodPut, srv.URL+"/goal/goal-settings", map[string]any{}, &saved))
	assert.Equal(t, "monthly", saved.EvaluationRuleType)
}

func TestGoalTargets_Validation(t *testing.T) {
	srv, _ := newTestServer(t, config.ServerConfig{})

	tests := []struct {
		name  string
		query string
		want  int
	}{
		{"missing scope", "?periodId=2025-06", http.StatusBadRequest},
		{"missing period", "?scope=company", http.StatusBadRequest},
		{"unknown scope", "?scope=team&periodId=2025-06", http.StatusBadRequest},
		{"personal without advisor", "?scope=personal&periodId=2025-06", http.StatusBadRequest},
		{"company", "?scope=company&periodId=2025-06", http.StatusOK},
		{"personal", "?scope=personal&periodId=2025-06&advisorUserId=30", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body map[string]any
			assert.Equal(t, tt.want, doJSON(t, http.MethodGet, srv.URL+"/goal/goal-targets"+tt.query, nil, &body))
			if tt.want == http.StatusBadRequest {
				assert.NotEmpty(t, body["error"])
			} else {
				assert.Equal(t, map[string]any{}, body["targets"])
			}
		})
	}

	var errBody ErrorResponse
	status := doJSON(t, http.MethodPut, srv.URL+"/goal/goal-targets",
		map[string]any{"scope": "personal", "periodId": "2025-06", "targets": map[string]any{}}, &errBody)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Validation failed", errBody.Error)
	assert.Contains(t, errBody.Details, "advisorUserId")
}

func TestGoalTargets_BulkPersonal(t *testing.T) {
	srv, _ := newTestServer(t, config.ServerConfig{})

	for _, id := range []int{30, 2} {
		status := doJSON(t, http.MethodPut, srv.URL+"/goal/goal-targets", map[string]any{
			"scope": "personal", "periodId": "2025-06", "advisorUserId": id,
			"targets": map[string]any{"offersTarget": float64(id)},
		}, nil)
		require.Equal(t, http.StatusOK, status)
	}

	var resp ItemsResponse[AdvisorTargetsDTO]
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodGet,
		srv.URL+"/goal/goal-targets?scope=personal&periodId=2025-06&advisorUserIds=30,x,2,7", nil, &resp))
	require.Len(t, resp.Items, 3)
	assert.Equal(t, 30.0, resp.Items[0].Targets["offersTarget"])
	assert.Equal(t, 2.0, resp.Items[1].Targets["offersTarget"])
	assert.Empty(t, resp.Items[2].Targets)
}

func TestGoalDailyTargets_MergeAndNarrow(t *testing.T) {
	srv, _ := newTestServer(t, config.ServerConfig{})
	put := func(items []DailyTargetItemDTO) {
		status := doJSON(t, http.MethodPut, srv.URL+"/goal/goal-daily-targets",
			DailyTargetsRequest{AdvisorUserID: 30, PeriodID: "2025-06", Items: items}, nil)
		require.Equal(t, http.StatusOK, status)
	}

	put([]DailyTargetItemDTO{
		{TargetDate: "2025-06-01", Targets: map[string]any{"offersTarget": 1.0}},
		{TargetDate: "2025-06-02", Targets: map[string]any{"offersTarget": 2.0}},
	})
	put([]DailyTargetItemDTO{
		{TargetDate: "2025-06-02", Targets: map[string]any{"offersTarget": 5.0}},
		{TargetDate: "", Targets: map[string]any{"offersTarget": 9.0}},
	})

	var single DailyTargetsResponse
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodGet,
		srv.URL+"/goal/goal-daily-targets?periodId=2025-06&advisorUserId=30", nil, &single))
	assert.Len(t, single.DailyTargets, 2)
	assert.Equal(t, 5.0, single.DailyTargets["2025-06-02"]["offersTarget"])

	var bulk ItemsResponse[AdvisorDailyTargetsDTO]
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodGet,
		srv.URL+"/goal/goal-daily-targets?periodId=2025-06&advisorUserIds=30&date=2025-06-01", nil, &bulk))
	require.Len(t, bulk.Items, 1)
	assert.Len(t, bulk.Items[0].DailyTargets, 1)

	assert.Equal(t, http.StatusBadRequest, doJSON(t, http.MethodGet,
		srv.URL+"/goal/goal-daily-targets?periodId=2025-06", nil, nil))
	assert.Equal(t, http.StatusBadRequest, doJSON(t, http.MethodPut, srv.URL+"/goal/goal-daily-targets",
		DailyTargetsRequest{PeriodID: "2025-06"}, nil))
}

func TestMsTargets(t *testing.T) {
	srv, _ := newTestServer(t, config.ServerConfig{})
	query := "?scope=company&departmentKey=marketing&metricKey=valid_applications&periodId=2025-06"

	var got MsTargetsDTO
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodGet, srv.URL+"/ms-targets"+query, nil, &got))
	assert.Zero(t, got.TargetTotal)
	assert.NotNil(t, got.DailyTargets)

	assert.Equal(t, http.StatusBadRequest, doJSON(t, http.MethodGet, srv.URL+"/ms-targets?scope=company", nil, nil))

	status := doJSON(t, http.MethodPut, srv.URL+"/ms-targets", map[string]any{
		"scope": "company", "departmentKey": "marketing", "metricKey": "valid_applications",
		"periodId": "2025-06", "advisorUserId": nil, "targetTotal": 30,
		"dailyTargets": map[string]float64{"2025-06-01": 10},
	}, nil)
	require.Equal(t, http.StatusOK, status)

	require.Equal(t, http.StatusOK, doJSON(t, http.MethodGet, srv.URL+"/ms-targets"+query, nil, &got))
	assert.Equal(t, 30.0, got.TargetTotal)
	assert.Equal(t, 10.0, got.DailyTargets["2025-06-01"])

	assert.Equal(t, http.StatusBadRequest, doJSON(t, http.MethodPut, srv.URL+"/ms-targets", map[string]any{
		"scope": "company", "departmentKey": "marketing", "metricKey": "valid_applications",
		"periodId": "2025-06", "targetTotal": -1,
	}, nil))
}

func TestImportantMetrics(t *testing.T) {
	srv, _ := newTestServer(t, config.ServerConfig{})

	for _, metric := range []generic.MetricKey{"offers", "accepts"} {
		require.Equal(t, http.StatusOK, doJSON(t, http.MethodPut, srv.URL+"/important-metrics",
			ImportantMetricRequest{DepartmentKey: "sales", UserID: 30, MetricKey: "offers"}, nil))
		require.Equal(t, http.StatusOK, doJSON(t, http.MethodPut, srv.URL+"/important-metrics",
			ImportantMetricRequest{DepartmentKey: "sales", UserID: 2, MetricKey: metric}, nil))
	}

	var resp struct {
		Items []ImportantMetricRequest `json:"items"`
	}
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodGet, srv.URL+"/important-metrics?departmentKey=sales", nil, &resp))
	assert.Len(t, resp.Items, 2)

	require.Equal(t, http.StatusOK, doJSON(t, http.MethodGet, srv.URL+"/important-metrics?departmentKey=sales&userId=2", nil, &resp))
	require.Len(t, resp.Items, 1)
	assert.Equal(t, "accepts", string(resp.Items[0].MetricKey))

	assert.Equal(t, http.StatusBadRequest, doJSON(t, http.MethodPut, srv.URL+"/important-metrics",
		map[string]any{"departmentKey": "sales", "metricKey": "offers"}, nil))
}

func TestMsPeriodSettings(t *testing.T) {
	srv, _ := newTestServer(t, config.ServerConfig{})

	assert.Equal(t, http.StatusBadRequest, doJSON(t, http.MethodGet, srv.URL+"/ms-period-settings?month=2025-6", nil, nil))
	assert.Equal(t, http.StatusBadRequest, doJSON(t, http.MethodPut, srv.URL+"/ms-period-settings",
		map[string]any{"month": "2025-06"}, nil))
	assert.Equal(t, http.StatusBadRequest, doJSON(t, http.MethodPut, srv.URL+"/ms-period-settings",
		map[string]any{"month": "June", "settings": []any{}}, nil))

	var msg MessageResponse
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodPut, srv.URL+"/ms-period-settings", map[string]any{
		"month": "2025-06",
		"settings": []map[string]string{
			{"metricKey": "proposals", "startDate": "2025-06-01", "endDate": "2025-06-20"},
			{"metricKey": "appointments", "startDate": "2025-05-25", "endDate": "2025-06-24"},
			{"metricKey": "bogus", "startDate": "2025-06-01", "endDate": "2025-06-20"},
		},
	}, &msg))
	assert.Equal(t, "2025-06", msg.Month)

	var got MsPeriodSettingsResponse
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodGet, srv.URL+"/ms-period-settings?month=2025-06", nil, &got))
	require.Len(t, got.Settings, 2)
	assert.Equal(t, "appointments", string(got.Settings[0].MetricKey))
	assert.Equal(t, "2025-05-25", got.Settings[0].StartDate)
}

func TestKPITargets(t *testing.T) {
	srv, _ := newTestServer(t, config.ServerConfig{})

	var got map[string]any
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodGet, srv.URL+"/kpi-targets?period=2025-06", nil, &got))
	assert.Empty(t, got)

	require.Equal(t, http.StatusOK, doJSON(t, http.MethodPut, srv.URL+"/kpi-targets",
		KPITargetsRequest{Period: "2025-06", Targets: map[string]any{"proposalRate": 40.0}}, nil))
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodPut, srv.URL+"/kpi-targets",
		KPITargetsRequest{Targets: map[string]any{"proposalRate": 99.0}}, nil))

	require.Equal(t, http.StatusOK, doJSON(t, http.MethodGet, srv.URL+"/kpi-targets?period=2025-06", nil, &got))
	assert.Equal(t, 40.0, got["proposalRate"])
}

func TestYieldEndpoints(t *testing.T) {
	srv, _ := newTestServer(t, config.ServerConfig{})

	var resp YieldResponse
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodGet, srv.URL+"/kpi/yield?groupBy=advisor&granularity=day", nil, &resp))
	require.Len(t, resp.Items, 3)
	assert.Len(t, resp.Items[0].Series, 31)
	assert.Equal(t, "period", resp.Meta.CalcMode)

	require.Equal(t, http.StatusOK, doJSON(t, http.MethodGet,
		srv.URL+"/kpi/yield?scope=personal&advisorUserId=30&from=2025-06-01&to=2025-06-03&calcMode=cohort", nil, &resp))
	require.Len(t, resp.Items, 1)
	assert.Equal(t, "テスト一般", resp.Items[0].Name)
	assert.Equal(t, "cohort", resp.Meta.CalcMode)

	require.Equal(t, http.StatusOK, doJSON(t, http.MethodGet, srv.URL+"/kpi/yield?calcMode=cohort&ms=1", nil, &resp))
	assert.Equal(t, "period", resp.Meta.CalcMode)

	var trend TrendResponse
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodGet, srv.URL+"/kpi/yield/trend?calcMode=cohort", nil, &trend))
	assert.Len(t, trend.Series, 2)

	var breakdown BreakdownResponse
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodGet, srv.URL+"/kpi/yield/breakdown", nil, &breakdown))
	assert.Len(t, breakdown.Items, 2)
}

func TestMembersAndScenarios(t *testing.T) {
	srv, _ := newTestServer(t, config.ServerConfig{})

	var members []MemberDTO
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodGet, srv.URL+"/members", nil, &members))
	assert.Empty(t, members)

	assert.Equal(t, http.StatusBadRequest, doJSON(t, http.MethodPost, srv.URL+"/scenarios/load",
		LoadScenarioRequest{ScenarioID: "nope"}, nil))
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodPost, srv.URL+"/scenarios/load",
		LoadScenarioRequest{ScenarioID: "demo"}, nil))

	require.Equal(t, http.StatusOK, doJSON(t, http.MethodGet, srv.URL+"/members", nil, &members))
	require.Len(t, members, 3)
	assert.True(t, members[0].IsAdmin)
	assert.Equal(t, "admin@example.com", members[0].Email)

	var current ScenarioDTO
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodGet, srv.URL+"/scenarios/current", nil, &current))
	assert.Equal(t, "demo", current.ID)
}

func TestBearerAuth(t *testing.T) {
	const secret = "test-secret"
	srv, _ := newTestServer(t, config.ServerConfig{JWTSecret: secret})

	sign := func(key string, exp time.Time) string {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "30", "name": "テスト一般", "exp": exp.Unix()})
		s, err := token.SignedString([]byte(key))
		require.NoError(t, err)
		return s
	}
	get := func(path, token string) int {
		req, err := http.NewRequest(http.MethodGet, srv.URL+path, nil)
		require.NoError(t, err)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}

	assert.Equal(t, http.StatusOK, get("/health", ""))
	assert.Equal(t, http.StatusUnauthorized, get("/members", ""))
	assert.Equal(t, http.StatusUnauthorized, get("/members", sign("other-secret", time.Now().Add(time.Hour))))
	assert.Equal(t, http.StatusUnauthorized, get("/members", sign(secret, time.Now().Add(-time.Hour))))
	assert.Equal(t, http.StatusOK, get("/members", sign(secret, time.Now().Add(time.Hour))))
}

func TestRateLimit(t *testing.T) {
	srv, _ := newTestServer(t, config.ServerConfig{RateLimitPerMinute: 1})

	assert.Equal(t, http.StatusOK, doJSON(t, http.MethodGet, srv.URL+"/health", nil, nil))
	assert.Equal(t, http.StatusTooManyRequests, doJSON(t, http.MethodGet, srv.URL+"/health", nil, nil))
}
