package dashboard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/warp/yield-pacing/client"
	"github.com/warp/yield-pacing/generic"
	"github.com/warp/yield-pacing/goals"
	"github.com/warp/yield-pacing/service"
)

// ErrNotSaved is returned when a best-effort MS save reported failure.
var ErrNotSaved = errors.New("ms targets were not saved")

// YieldSource serves KPI aggregates.
type YieldSource interface {
	GetYield(ctx context.Context, q client.YieldQuery) (client.YieldResponse, error)
}

var _ YieldSource = (*client.Client)(nil)

type Controller struct {
	settings *service.GoalSettings
	yield    YieldSource
	modes    *goals.ModeSettings
	state    *State
	logger   *zap.Logger
	now      func() time.Time
}

type ControllerOption func(*Controller)

func WithLogger(l *zap.Logger) ControllerOption {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

func WithClock(now func() time.Time) ControllerOption {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// WithModes sets the rate/calc mode preferences used for KPI queries.
func WithModes(m *goals.ModeSettings) ControllerOption {
	return func(c *Controller) {
		if m != nil {
			c.modes = m
		}
	}
}

func NewController(settings *service.GoalSettings, yield YieldSource, state *State, opts ...ControllerOption) *Controller {
	modes, _ := goals.NewModeSettings(nil)
	c := &Controller{
		settings: settings,
		yield:    yield,
		modes:    modes,
		state:    state,
		logger:   zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.state == nil {
		c.state = NewState(Selection{})
	}
	return c
}

func (c *Controller) State() *State { return c.state }

// =============================================================================
// LOAD ALL
// =============================================================================

// LoadAll refreshes every part of the dashboard the selection asks for.
// Read failures degrade to cached or empty values; the only error is
// generic.ErrStaleLoad when a newer LoadAll started meanwhile.
func (c *Controller) LoadAll(ctx context.Context) error {
	token := c.state.Begin()
	stale := func(step string) error {
		if c.state.IsCurrent(token) {
			return nil
		}
		c.logger.Debug("load superseded", zap.Uint64("token", token), zap.String("step", step))
		return generic.ErrStaleLoad
	}

	c.settings.LoadEvaluationRule(ctx, false)
	if err := stale("rule"); err != nil {
		return err
	}
	today := generic.DateOf(c.now())
	periods := c.settings.EvaluationPeriods()
	sel := resolveSelection(c.state.Selection(), periods, today)
	advisorID, ok := c.settings.ResolveAdvisorID(sel.Advisor)
	if !ok {
		advisorID = service.DefaultAdvisorID
	}
	advisor := advisorID.String()

	next := Snapshot{Periods: periods, Selection: sel, AdvisorID: advisorID}
	wantsPersonal := sel.Scope.Wants(ScopePersonal)
	wantsCompany := sel.Scope.Wants(ScopeCompany)
	wantsAdmin := sel.Scope.Wants(ScopeAdmin)

	// Targets first; the KPI and MS steps read them from the cache.
	g, gctx := errgroup.WithContext(ctx)
	if wantsCompany {
		g.Go(func() error {
			next.CompanyTarget = c.settings.LoadCompanyTarget(gctx, sel.CompanyPeriodID, true)
			return nil
		})
		g.Go(func() error {
			next.PageRateTargets = c.settings.LoadPageRateTargets(gctx, sel.CompanyPeriodID, true)
			return nil
		})
	}
	if wantsPersonal {
		g.Go(func() error {
			next.PersonalTarget = c.settings.LoadPersonalTarget(gctx, sel.PersonalPeriodID, advisor, true)
			return nil
		})
		g.Go(func() error {
			next.PersonalDaily = c.settings.LoadDailyTargets(gctx, sel.PersonalDailyPeriodID, advisor, true)
			return nil
		})
	}
	_ = g.Wait()
	if err := stale("targets"); err != nil {
		return err
	}

	if wantsPersonal {
		month := generic.DateRange{
			Start: generic.StartOfMonth(today.Year(), today.Month()),
			End:   generic.EndOfMonth(today.Year(), today.Month()),
		}
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			next.PersonalToday = c.summary(gctx, generic.DateRange{Start: today, End: today}, advisorID, goals.ScopePersonalMonthly, true)
			return nil
		})
		g.Go(func() error {
			next.PersonalMonthly = c.summary(gctx, month, advisorID, goals.ScopePersonalMonthly, false)
			return nil
		})
		g.Go(func() error {
			if p, ok := generic.FindPeriod(sel.PersonalPeriodID, periods); ok {
				next.PersonalPeriod = c.summary(gctx, p.Range(), advisorID, goals.ScopePersonalPeriod, false)
			}
			return nil
		})
		_ = g.Wait()
		if err := stale("personal kpi"); err != nil {
			return err
		}
	}

	if wantsCompany {
		if p, ok := generic.FindPeriod(sel.CompanyPeriodID, periods); ok {
			next.CompanyPeriod = c.summary(ctx, p.Range(), 0, goals.ScopeCompanyPeriod, false)
		}
		if err := stale("company kpi"); err != nil {
			return err
		}
	}

	if wantsAdmin {
		next.Employees = c.employees(ctx, sel.CompanyPeriodID, periods)
		if err := stale("employees"); err != nil {
			return err
		}
	}

	if wantsCompany || wantsAdmin {
		next.CompanyMs = c.loadMsTable(ctx, generic.ScopeCompany, sel.CompanyMsPeriodID, 0, sel, periods)
		if err := stale("company ms"); err != nil {
			return err
		}
	}

	if wantsPersonal {
		next.PersonalMs = c.loadMsTable(ctx, generic.ScopePersonal, sel.PersonalMsPeriodID, advisorID, sel, periods)
		next.PersonalMs = c.filterForRole(ctx, next.PersonalMs, advisorID)
		if err := stale("personal ms"); err != nil {
			return err
		}
	}

	next.LoadedAt = c.now()
	return c.state.Commit(token, func(s *Snapshot) {
		*s = next
	})
}

// resolveSelection fills empty period picks with the period containing
// today, or the first period.
func resolveSelection(sel Selection, periods []generic.EvaluationPeriod, today generic.TimePoint) Selection {
	var fallback generic.PeriodID
	if p, ok := generic.FindPeriodByDate(today, periods); ok {
		fallback = p.ID
	} else if len(periods) > 0 {
		fallback = periods[0].ID
	}
	for _, id := range []*generic.PeriodID{
		&sel.PersonalPeriodID, &sel.PersonalDailyPeriodID, &sel.PersonalMsPeriodID,
		&sel.CompanyPeriodID, &sel.CompanyMsPeriodID,
	} {
		if *id == "" {
			*id = fallback
		}
	}
	if sel.Scope == "" {
		sel.Scope = ScopeAll
	}
	return sel
}

// =============================================================================
// KPI
// =============================================================================

func (c *Controller) summarize(counts goals.FunnelCounts, scope goals.ModeScope) KPISummary {
	mode := c.modes.RateMode(scope)
	return KPISummary{Counts: counts, Rates: goals.ComputeRates(counts, mode), Mode: mode}
}

// summary fetches one funnel. A zero advisor means the whole company.
func (c *Controller) summary(ctx context.Context, r generic.DateRange, advisor generic.AdvisorID, scope goals.ModeScope, planned bool) KPISummary {
	q := client.YieldQuery{
		From:        r.Start.String(),
		To:          r.End.String(),
		Scope:       generic.ScopeCompany,
		Granularity: "summary",
		Planned:     planned,
		Calc:        c.modes.CalcModeParams(scope),
	}
	if advisor.Valid() {
		q.Scope = generic.ScopePersonal
		q.Advisor = advisor
	}
	resp, err := c.yield.GetYield(ctx, q)
	if err != nil {
		c.logger.Warn("load kpi failed",
			zap.String("scope", string(scope)),
			zap.String("range", r.String()),
			zap.Error(err))
		return c.summarize(goals.FunnelCounts{}, scope)
	}
	var counts goals.FunnelCounts
	for _, item := range resp.Items {
		counts = counts.Add(item.Counts())
	}
	return c.summarize(counts, scope)
}

func (c *Controller) employees(ctx context.Context, periodID generic.PeriodID, periods []generic.EvaluationPeriod) []EmployeeKPI {
	p, ok := generic.FindPeriod(periodID, periods)
	if !ok {
		return nil
	}
	resp, err := c.yield.GetYield(ctx, client.YieldQuery{
		From:        p.StartDate.String(),
		To:          p.EndDate.String(),
		Scope:       generic.ScopeCompany,
		Granularity: "summary",
		GroupBy:     "advisor",
		Calc:        c.modes.CalcModeParams(goals.ScopeCompanyTerm),
	})
	if err != nil {
		c.logger.Warn("load employee kpi failed", zap.String("period", string(periodID)), zap.Error(err))
		return nil
	}
	out := make([]EmployeeKPI, 0, len(resp.Items))
	for _, item := range resp.Items {
		out = append(out, EmployeeKPI{
			AdvisorID: item.AdvisorID(),
			Name:      item.Name,
			Summary:   c.summarize(item.Counts(), goals.ScopeCompanyTerm),
		})
	}
	return out
}

// =============================================================================
// MS TABLES
// =============================================================================

func (c *Controller) loadMsTable(ctx context.Context, scope generic.Scope, periodID generic.PeriodID, advisor generic.AdvisorID, sel Selection, periods []generic.EvaluationPeriod) MsTable {
	empty := MsTable{PeriodID: periodID, Scope: scope, AdvisorID: advisor}
	if _, ok := generic.FindPeriod(periodID, periods); !ok {
		return empty
	}
	c.settings.LoadMsPeriodSettingsFor(ctx, periodID, true)

	in := MsTableInput{
		PeriodID:  periodID,
		Periods:   periods,
		Scope:     scope,
		AdvisorID: advisor,
		Metrics:   sel.MetricKeys,
		Resolver:  c.settings.Resolver(),
	}
	span, err := DataRange(in)
	if err != nil {
		c.logger.Warn("resolve ms range failed", zap.String("period", string(periodID)), zap.Error(err))
		return empty
	}

	g, gctx := errgroup.WithContext(ctx)
	var items []client.YieldItem
	g.Go(func() error {
		resp, err := c.yield.GetYield(gctx, client.YieldQuery{
			From:        span.Start.String(),
			To:          span.End.String(),
			Scope:       generic.ScopeCompany,
			Granularity: "day",
			GroupBy:     "advisor",
			MS:          true,
		})
		if err != nil {
			c.logger.Warn("load ms daily actuals failed", zap.String("period", string(periodID)), zap.Error(err))
			return nil
		}
		items = resp.Items
		return nil
	})

	targets := make([]goals.MsTargets, len(MsDepartments))
	for i, dept := range MsDepartments {
		metric, ok := SelectMetric(dept, sel.MetricKeys[dept])
		if !ok {
			continue
		}
		key := generic.MsTargetKey{Scope: scope, Department: dept, Metric: metric.Key, PeriodID: periodID, AdvisorID: advisor}
		g.Go(func() error {
			targets[i], _ = c.settings.LoadMsTargets(gctx, key, true)
			return nil
		})
	}
	_ = g.Wait()

	var allow []generic.AdvisorID
	if scope == generic.ScopePersonal {
		allow = []generic.AdvisorID{advisor}
	} else {
		ids := make([]generic.AdvisorID, 0, len(items))
		for _, item := range items {
			ids = append(ids, item.AdvisorID())
		}
		c.settings.LoadPersonalTargetsBulk(ctx, periodID, ids, true)
	}
	in.Actuals = SumDailySeries(items, allow)
	in.Targets = func(dept generic.DepartmentKey, _ generic.MetricKey) goals.MsTargets {
		for i, d := range MsDepartments {
			if d == dept {
				return targets[i]
			}
		}
		return goals.MsTargets{}
	}

	table, err := BuildMsTable(in)
	if err != nil {
		c.logger.Warn("build ms table failed", zap.String("period", string(periodID)), zap.Error(err))
		return empty
	}
	return table
}

// filterForRole keeps the advisor's own department and revenue when the
// member's role names a department.
func (c *Controller) filterForRole(ctx context.Context, t MsTable, advisor generic.AdvisorID) MsTable {
	member, ok := goals.FindMember(c.settings.Members(ctx, false), advisor.String(), "", "")
	if !ok {
		return t
	}
	dept := goals.MapRoleToDepartment(member.Role)
	if dept == "" {
		return t
	}
	rows := t.Rows[:0:0]
	for _, r := range t.Rows {
		if r.Department == dept || r.Department == goals.DeptRevenue {
			rows = append(rows, r)
		}
	}
	t.Rows = rows
	return t
}

// =============================================================================
// DISTRIBUTE
// =============================================================================

// DistributeRequest spreads Total over a configured MS window.
type DistributeRequest struct {
	Scope      generic.Scope // personal when empty
	PeriodID   generic.PeriodID
	Department generic.DepartmentKey
	Metric     generic.MetricKey
	Advisor    string
	Total      decimal.Decimal
}

// Distribute writes the even cumulative distribution of Total across the
// window's days as the MS targets of the row.
func (c *Controller) Distribute(ctx context.Context, req DistributeRequest) (goals.MsTargets, error) {
	if req.Total.IsNegative() {
		return goals.MsTargets{}, fmt.Errorf("distribute total %s: %w", req.Total, generic.ErrMissingField)
	}
	scope := req.Scope
	if scope == "" {
		scope = generic.ScopePersonal
	}
	metric, ok := SelectMetric(req.Department, req.Metric)
	if !ok || metric.Key != req.Metric {
		return goals.MsTargets{}, fmt.Errorf("metric %q is not an MS metric of %q: %w", req.Metric, req.Department, generic.ErrMissingField)
	}

	periods := c.settings.EvaluationPeriods()
	c.settings.LoadMsPeriodSettingsFor(ctx, req.PeriodID, false)
	resolver := c.settings.Resolver()
	if !resolver.IsConfigured(req.PeriodID, periods, metric.Key) {
		return goals.MsTargets{}, fmt.Errorf("ms period for %s in %s is not configured: %w", metric.Key, req.PeriodID, generic.ErrInvalidPeriod)
	}
	window, err := resolver.Window(req.PeriodID, periods, req.Department, metric.Key)
	if err != nil {
		return goals.MsTargets{}, err
	}

	key := generic.MsTargetKey{Scope: scope, Department: req.Department, Metric: metric.Key, PeriodID: req.PeriodID}
	if scope == generic.ScopePersonal {
		id, ok := c.settings.ResolveAdvisorID(req.Advisor)
		if !ok {
			return goals.MsTargets{}, generic.ErrAdvisorRequired
		}
		key.AdvisorID = id
	}

	targets := goals.MsTargets{
		TargetTotal:  req.Total,
		DailyTargets: generic.DistributionMap(req.Total, window.Days(), window),
	}
	saved, ok := c.settings.SaveMsTargets(ctx, key, targets)
	if !ok {
		return goals.MsTargets{}, fmt.Errorf("distribute %s: %w", key, ErrNotSaved)
	}
	c.logger.Info("ms targets distributed",
		zap.Stringer("key", key),
		zap.String("total", req.Total.String()),
		zap.Int("days", len(saved.DailyTargets)))
	return saved, nil
}
