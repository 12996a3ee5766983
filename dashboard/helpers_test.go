package dashboard

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/warp/yield-pacing/client"
	"github.com/warp/yield-pacing/factory"
	"github.com/warp/yield-pacing/generic"
	"github.com/warp/yield-pacing/goals"
	"github.com/warp/yield-pacing/service"
	"github.com/warp/yield-pacing/session"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var testNow = time.Date(2025, 6, 19, 9, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

var notFound = &generic.APIError{Status: http.StatusNotFound, Path: "/test"}

// stubBackend answers 404 for everything except MS data and members.
type stubBackend struct {
	mu         sync.Mutex
	ms         map[generic.MsTargetKey]goals.MsTargets
	periodRows map[string][]goals.MsPeriodSetting
	members    []goals.Member
	putErr     error
	puts       []generic.MsTargetKey
}

var _ service.Backend = (*stubBackend)(nil)

func newStubBackend() *stubBackend {
	return &stubBackend{
		ms:         map[generic.MsTargetKey]goals.MsTargets{},
		periodRows: map[string][]goals.MsPeriodSetting{},
	}
}

func (b *stubBackend) GetGoalSettings(context.Context) (factory.RuleDocument, error) {
	return factory.RuleDocument{}, notFound
}
func (b *stubBackend) PutGoalSettings(context.Context, factory.BackendPayload) error { return nil }
func (b *stubBackend) GetCompanyTarget(context.Context, generic.PeriodID) (goals.Target, error) {
	return nil, notFound
}
func (b *stubBackend) GetPersonalTarget(context.Context, generic.PeriodID, generic.AdvisorID) (goals.Target, error) {
	return nil, notFound
}
func (b *stubBackend) GetPersonalTargetsBulk(context.Context, generic.PeriodID, []generic.AdvisorID) (map[generic.AdvisorID]goals.Target, error) {
	return map[generic.AdvisorID]goals.Target{}, nil
}
func (b *stubBackend) PutCompanyTarget(context.Context, generic.PeriodID, goals.Target) error {
	return nil
}
func (b *stubBackend) PutPersonalTarget(context.Context, generic.PeriodID, generic.AdvisorID, goals.Target) error {
	return nil
}
func (b *stubBackend) GetDailyTargets(context.Context, generic.PeriodID, generic.AdvisorID) (goals.DailyTargetSet, error) {
	return nil, notFound
}
func (b *stubBackend) GetDailyTargetsBulk(context.Context, generic.PeriodID, []generic.AdvisorID, string) (map[generic.AdvisorID]goals.DailyTargetSet, error) {
	return map[generic.AdvisorID]goals.DailyTargetSet{}, nil
}
func (b *stubBackend) PutDailyTargets(context.Context, generic.PeriodID, generic.AdvisorID, goals.DailyTargetSet) error {
	return nil
}

func (b *stubBackend) GetMsTargets(_ context.Context, key generic.MsTargetKey) (goals.MsTargets, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if t, ok := b.ms[key]; ok {
		return t.Clone(), nil
	}
	return goals.MsTargets{}, notFound
}

func (b *stubBackend) PutMsTargets(_ context.Context, key generic.MsTargetKey, t goals.MsTargets) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.putErr != nil {
		return b.putErr
	}
	b.ms[key] = t.Clone()
	b.puts = append(b.puts, key)
	return nil
}

func (b *stubBackend) GetImportantMetrics(context.Context, generic.ImportantMetricKey) ([]goals.ImportantMetric, error) {
	return nil, notFound
}
func (b *stubBackend) PutImportantMetric(context.Context, goals.ImportantMetric) error { return nil }

func (b *stubBackend) GetMsPeriodSettings(_ context.Context, month string) ([]goals.MsPeriodSetting, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	rows, ok := b.periodRows[month]
	if !ok {
		return nil, notFound
	}
	return append([]goals.MsPeriodSetting(nil), rows...), nil
}

func (b *stubBackend) PutMsPeriodSettings(context.Context, string, []goals.MsPeriodSetting) error {
	return nil
}
func (b *stubBackend) GetPageRateTargets(context.Context, generic.PeriodID) (goals.PageRateTarget, error) {
	return nil, notFound
}
func (b *stubBackend) PutPageRateTargets(context.Context, generic.PeriodID, goals.PageRateTarget) error {
	return nil
}

func (b *stubBackend) GetMembers(context.Context) ([]goals.Member, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]goals.Member(nil), b.members...), nil
}

// gatedYield returns the value current at call time. While gate is set,
// calls block until it is closed.
type gatedYield struct {
	mu      sync.Mutex
	value   float64
	err     error
	gate    chan struct{}
	entered chan struct{}
	series  map[string]map[string]any
	queries []client.YieldQuery
}

func (g *gatedYield) GetYield(ctx context.Context, q client.YieldQuery) (client.YieldResponse, error) {
	g.mu.Lock()
	v, err, gate, series := g.value, g.err, g.gate, g.series
	g.queries = append(g.queries, q)
	g.mu.Unlock()

	if gate != nil {
		select {
		case g.entered <- struct{}{}:
		default:
		}
		select {
		case <-gate:
		case <-ctx.Done():
			return client.YieldResponse{}, ctx.Err()
		}
	}
	if err != nil {
		return client.YieldResponse{}, err
	}
	item := client.YieldItem{
		AdvisorUserID: 30,
		Name:          "テスト一般",
		KPI:           map[string]any{"newInterviews": v, "proposals": v / 2},
	}
	if q.MS {
		item.Series = series
	}
	return client.YieldResponse{Items: []client.YieldItem{item}}, nil
}

func (g *gatedYield) count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.queries)
}

func sessionUser(id any, name string) session.Static {
	return session.Static{Session: &session.Session{Token: "t", User: session.User{ID: id, Name: name}}}
}

func newController(t *testing.T, backend service.Backend, yield YieldSource, sel Selection) (*Controller, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	logger := zap.New(core)
	settings := service.NewGoalSettings(backend, sessionUser(30, "テスト一般"),
		service.WithLogger(logger), service.WithClock(fixedClock))
	return NewController(settings, yield, NewState(sel), WithLogger(logger), WithClock(fixedClock)), logs
}

// juneOverrides configures marketing for 2025-06-01..03.
func juneOverrides(b *stubBackend) {
	b.periodRows["2025-06"] = []goals.MsPeriodSetting{
		{MetricKey: "valid_applications", StartDate: "2025-06-01", EndDate: "2025-06-03"},
	}
}
