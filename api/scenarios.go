/*
scenarios.go - Demo data sets for the development backend

PURPOSE:

	Populates the store with data that exercises the dashboard: a member
	directory, an evaluation rule, targets and MS windows for the current
	month.

AVAILABLE SCENARIOS:

	demo:    monthly rule, three members, targets and MS windows
	weekly:  demo data under a Sunday-start weekly rule
	empty:   members only, nothing configured

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Save members
 3. Save the rule
 4. Save targets keyed by the period containing today

USAGE VIA API:

	POST /scenarios/load
	{"scenario_id": "demo"}

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: the endpoints the seeded rows are read through
  - cmd/server/main.go: seeds "demo" into an empty database
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/warp/yield-pacing/factory"
	"github.com/warp/yield-pacing/generic"
	"github.com/warp/yield-pacing/goals"
	"github.com/warp/yield-pacing/store/sqlite"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{ID: "demo", Name: "Demo", Description: "Monthly rule with company, personal and MS targets"},
	{ID: "weekly", Name: "Weekly", Description: "Demo data under a Sunday-start weekly rule"},
	{ID: "empty", Name: "Empty", Description: "Member directory only"},
}

var demoMembers = []sqlite.MemberRecord{
	{ID: 1, Name: "管理者 太郎", Email: "admin@example.com", Role: "admin", IsAdmin: true},
	{ID: 30, Name: "テスト一般", Email: "test@example.com", Role: "member"},
	{ID: 2, Name: "営業 花子", Email: "sales@example.com", Role: "advisor"},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !h.decodeRequest(w, r, &req) {
		return
	}
	if err := h.ApplyScenario(r.Context(), req.ScenarioID); err != nil {
		if generic.IsNotFound(err) {
			writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
			return
		}
		h.internalError(w, r, "Failed to load scenario", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// ApplyScenario resets the store and loads id.
func (h *Handler) ApplyScenario(ctx context.Context, id string) error {
	var load func(context.Context) error
	switch id {
	case "demo":
		load = func(ctx context.Context) error { return h.loadDemo(ctx, "monthly", nil) }
	case "weekly":
		load = func(ctx context.Context) error {
			return h.loadDemo(ctx, "weekly", map[string]any{"startWeekday": "sunday"})
		}
	case "empty":
		load = h.saveMembers
	default:
		return fmt.Errorf("scenario %q: %w", id, generic.ErrNotFound)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.Store.Reset(ctx); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	h.currentScenario = ""
	if err := load(ctx); err != nil {
		return err
	}
	h.currentScenario = id
	h.logger.Info("scenario loaded", zap.String("scenario", id))
	return nil
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) saveMembers(ctx context.Context) error {
	for _, m := range demoMembers {
		if err := h.Store.SaveMember(ctx, m); err != nil {
			return fmt.Errorf("save member %d: %w", m.ID, err)
		}
	}
	return nil
}

// loadDemo seeds targets for the period containing today under the given
// rule. MS windows and MS targets are keyed by the calendar month.
func (h *Handler) loadDemo(ctx context.Context, ruleType string, options map[string]any) error {
	if err := h.saveMembers(ctx); err != nil {
		return err
	}
	if err := h.Store.SaveGoalSettings(ctx, ruleType, options); err != nil {
		return fmt.Errorf("save rule: %w", err)
	}

	now := h.now()
	today := generic.DateOf(now)
	monthStart := generic.StartOfMonth(today.Year(), today.Month())
	monthEnd := generic.EndOfMonth(today.Year(), today.Month())
	month := monthStart.String()[:7]
	periodID := demoPeriodID(ruleType, options, now, generic.PeriodID(month))

	company := map[string]any{
		"newInterviewsTarget": 120.0,
		"proposalsTarget":     90.0,
		"offersTarget":        20.0,
		"acceptsTarget":       12.0,
		"revenueTarget":       12000000.0,
		"proposalRateTarget":  75.0,
		"offerRateTarget":     20.0,
	}
	if err := h.Store.SaveTargets(ctx, generic.ScopeCompany, periodID, 0, company); err != nil {
		return fmt.Errorf("save company targets: %w", err)
	}
	for _, m := range demoMembers {
		personal := map[string]any{
			"newInterviewsTarget": 40.0,
			"proposalsTarget":     30.0,
			"offersTarget":        6.0,
			"revenueTarget":       4000000.0,
		}
		if err := h.Store.SaveTargets(ctx, generic.ScopePersonal, periodID, m.ID, personal); err != nil {
			return fmt.Errorf("save personal targets %d: %w", m.ID, err)
		}
	}

	if err := h.Store.SaveKPITargets(ctx, month, map[string]any{"proposalRate": 75.0, "offerRate": 20.0}); err != nil {
		return fmt.Errorf("save kpi targets: %w", err)
	}

	// sales metrics run from the 5th so the table shows an offset window
	var settings []goals.MsPeriodSetting
	for _, metric := range goals.ConfigurableMetrics() {
		start := monthStart
		if _, dept, _ := goals.LookupMetric(metric.Key); dept == goals.DeptSales {
			start = monthStart.AddDays(4)
		}
		settings = append(settings, goals.MsPeriodSetting{
			MetricKey: metric.Key,
			StartDate: start.String(),
			EndDate:   monthEnd.String(),
		})
	}
	if err := h.Store.SaveMsPeriodSettings(ctx, month, settings); err != nil {
		return fmt.Errorf("save ms period settings: %w", err)
	}

	key := generic.MsTargetKey{
		Scope:      generic.ScopeCompany,
		Department: goals.DeptMarketing,
		Metric:     "valid_applications",
		PeriodID:   generic.PeriodID(month),
	}
	if err := h.Store.SaveMsTargets(ctx, key, sqlite.MsTargetRecord{TargetTotal: 300}); err != nil {
		return fmt.Errorf("save ms targets: %w", err)
	}
	return nil
}

// demoPeriodID finds today's period under the rule, falling back to the
// calendar month id.
func demoPeriodID(ruleType string, options map[string]any, now time.Time, fallback generic.PeriodID) generic.PeriodID {
	rule, err := factory.NewRuleFactory().FromDocument(factory.RuleDocument{Type: ruleType, Options: options})
	if err != nil {
		return fallback
	}
	if p, ok := generic.FindPeriodByDate(generic.DateOf(now), generic.GeneratePeriods(rule, now)); ok {
		return p.ID
	}
	return fallback
}
