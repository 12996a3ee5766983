package api

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/yield-pacing/client"
	"github.com/warp/yield-pacing/config"
	"github.com/warp/yield-pacing/factory"
	"github.com/warp/yield-pacing/generic"
	"github.com/warp/yield-pacing/goals"
)

// The client package must be able to run entirely against this backend.
func TestClientRoundTrip(t *testing.T) {
	srv, _ := newTestServer(t, config.ServerConfig{})
	c := client.New(client.Config{GoalBaseURL: srv.URL + "/goal", KPIBaseURL: srv.URL})
	ctx := context.Background()

	t.Run("goal settings", func(t *testing.T) {
		require.NoError(t, c.PutGoalSettings(ctx, factory.BackendPayload{
			EvaluationRuleType:    "weekly",
			EvaluationRuleOptions: map[string]any{"startWeekday": "sunday"},
		}))
		doc, err := c.GetGoalSettings(ctx)
		require.NoError(t, err)
		assert.Equal(t, "weekly", doc.EvaluationRuleType)
		assert.Equal(t, "sunday", doc.EvaluationRuleOptions["startWeekday"])
		assert.Equal(t, generic.RuleType("weekly"), doc.Rule().Type)
	})

	t.Run("period targets", func(t *testing.T) {
		require.NoError(t, c.PutCompanyTarget(ctx, "2025-06", goals.Target{"offersTarget": 20}))
		require.NoError(t, c.PutPersonalTarget(ctx, "2025-06", 30, goals.Target{"offersTarget": 6}))

		company, err := c.GetCompanyTarget(ctx, "2025-06")
		require.NoError(t, err)
		assert.Equal(t, 20.0, company["offersTarget"])
		assert.Zero(t, company["acceptsTarget"])

		bulk, err := c.GetPersonalTargetsBulk(ctx, "2025-06", []generic.AdvisorID{30, 2})
		require.NoError(t, err)
		assert.Equal(t, 6.0, bulk[30]["offersTarget"])
		assert.Zero(t, bulk[2]["offersTarget"])
	})

	t.Run("daily targets", func(t *testing.T) {
		require.NoError(t, c.PutDailyTargets(ctx, "2025-06", 30, goals.DailyTargetSet{
			"2025-06-02": {"offersTarget": 1},
		}))
		daily, err := c.GetDailyTargets(ctx, "2025-06", 30)
		require.NoError(t, err)
		require.Contains(t, daily, "2025-06-02")
		assert.Equal(t, 1.0, daily["2025-06-02"]["offersTarget"])

		bulk, err := c.GetDailyTargetsBulk(ctx, "2025-06", []generic.AdvisorID{30}, "2025-06-03")
		require.NoError(t, err)
		assert.Empty(t, bulk[30])
	})

	t.Run("ms targets", func(t *testing.T) {
		key := generic.MsTargetKey{
			Scope:      generic.ScopePersonal,
			Department: goals.DeptSales,
			Metric:     "offers",
			PeriodID:   "2025-06",
			AdvisorID:  30,
		}
		require.NoError(t, c.PutMsTargets(ctx, key, goals.MsTargets{
			TargetTotal:  decimal.NewFromInt(12),
			DailyTargets: generic.DailyTargets{"2025-06-10": decimal.NewFromInt(3)},
		}))
		got, err := c.GetMsTargets(ctx, key)
		require.NoError(t, err)
		assert.True(t, got.TargetTotal.Equal(decimal.NewFromInt(12)))
		assert.True(t, got.DailyTargets["2025-06-10"].Equal(decimal.NewFromInt(3)))

		key.AdvisorID = 2
		empty, err := c.GetMsTargets(ctx, key)
		require.NoError(t, err)
		assert.True(t, empty.IsEmpty())
	})

	t.Run("ms period settings", func(t *testing.T) {
		require.NoError(t, c.PutMsPeriodSettings(ctx, "2025-06", []goals.MsPeriodSetting{
			{MetricKey: "offers", StartDate: "2025-06-05", EndDate: "2025-06-30"},
		}))
		settings, err := c.GetMsPeriodSettings(ctx, "2025-06")
		require.NoError(t, err)
		require.Len(t, settings, 1)
		assert.Equal(t, "2025-06-05", settings[0].StartDate)

		_, err = c.GetMsPeriodSettings(ctx, "bad")
		var apiErr *generic.APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, 400, apiErr.Status)
	})

	t.Run("important metrics", func(t *testing.T) {
		require.NoError(t, c.PutImportantMetric(ctx, goals.ImportantMetric{DepartmentKey: goals.DeptSales, UserID: 30, MetricKey: "offers"}))
		items, err := c.GetImportantMetrics(ctx, generic.NewImportantMetricKey(goals.DeptSales, 30))
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, generic.MetricKey("offers"), items[0].MetricKey)
	})

	t.Run("members and yield", func(t *testing.T) {
		members, err := c.GetMembers(ctx)
		require.NoError(t, err)
		assert.Empty(t, members)

		resp, err := c.GetYield(ctx, client.YieldQuery{
			From: "2025-06-01", To: "2025-06-02", Scope: generic.ScopePersonal, Advisor: 30, Granularity: "day",
		})
		require.NoError(t, err)
		require.Len(t, resp.Items, 1)
		assert.Equal(t, generic.AdvisorID(30), resp.Items[0].AdvisorID())
		assert.Len(t, resp.Items[0].DailyCounts(), 2)
		assert.Positive(t, resp.Items[0].Counts().NewInterviews)
	})
}
