/*
Package service caches goal and KPI settings on top of the backend client.

PURPOSE:
  GoalSettings is the single owner of every settings cache and of the active
  evaluation rule. The dashboard and the CLI read through it and never talk
  to the client directly.

READ PATH (Load*):
  1. Unless force is set, a cached entry is returned as a copy.
  2. Concurrent loads of the same key share one request (singleflight).
  3. A successful response is written through to the cache, forced or not.
  4. A 404 caches the empty value for that key.
  5. Any other failure logs at Warn and returns the cached value, or the
     empty value when nothing is cached. Reads never return errors.

WRITE PATH (Save*, SetEvaluationRule):
  Writes return errors and update the cache only after the backend accepted
  them. SaveMsTargets and SaveImportantMetric are best-effort: they log and
  report ok=false instead.

ADVISOR RESOLUTION:
  Personal operations take an advisor "name". An empty name, or one equal to
  the session user's name, means the session user. Otherwise a numeric name
  is used as the id. Anything else cannot be resolved.

SEE ALSO:
  - client/: the HTTP calls behind every Load/Save
  - goals/mswindow.go: consumes MsPeriodFor through goals.MsOverrides
  - dashboard/controller.go: the main consumer
*/
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/warp/yield-pacing/client"
	"github.com/warp/yield-pacing/factory"
	"github.com/warp/yield-pacing/generic"
	"github.com/warp/yield-pacing/generic/store"
	"github.com/warp/yield-pacing/goals"
	"github.com/warp/yield-pacing/session"
)

// Backend is the subset of the HTTP client the service depends on.
type Backend interface {
	GetGoalSettings(ctx context.Context) (factory.RuleDocument, error)
	PutGoalSettings(ctx context.Context, payload factory.BackendPayload) error

	GetCompanyTarget(ctx context.Context, periodID generic.PeriodID) (goals.Target, error)
	GetPersonalTarget(ctx context.Context, periodID generic.PeriodID, advisor generic.AdvisorID) (goals.Target, error)
	GetPersonalTargetsBulk(ctx context.Context, periodID generic.PeriodID, advisors []generic.AdvisorID) (map[generic.AdvisorID]goals.Target, error)
	PutCompanyTarget(ctx context.Context, periodID generic.PeriodID, target goals.Target) error
	PutPersonalTarget(ctx context.Context, periodID generic.PeriodID, advisor generic.AdvisorID, target goals.Target) error

	GetDailyTargets(ctx context.Context, periodID generic.PeriodID, advisor generic.AdvisorID) (goals.DailyTargetSet, error)
	GetDailyTargetsBulk(ctx context.Context, periodID generic.PeriodID, advisors []generic.AdvisorID, date string) (map[generic.AdvisorID]goals.DailyTargetSet, error)
	PutDailyTargets(ctx context.Context, periodID generic.PeriodID, advisor generic.AdvisorID, daily goals.DailyTargetSet) error

	GetMsTargets(ctx context.Context, key generic.MsTargetKey) (goals.MsTargets, error)
	PutMsTargets(ctx context.Context, key generic.MsTargetKey, targets goals.MsTargets) error
	GetImportantMetrics(ctx context.Context, key generic.ImportantMetricKey) ([]goals.ImportantMetric, error)
	PutImportantMetric(ctx context.Context, metric goals.ImportantMetric) error
	GetMsPeriodSettings(ctx context.Context, month string) ([]goals.MsPeriodSetting, error)
	PutMsPeriodSettings(ctx context.Context, month string, settings []goals.MsPeriodSetting) error

	GetPageRateTargets(ctx context.Context, periodID generic.PeriodID) (goals.PageRateTarget, error)
	PutPageRateTargets(ctx context.Context, periodID generic.PeriodID, target goals.PageRateTarget) error

	GetMembers(ctx context.Context) ([]goals.Member, error)
}

var _ Backend = (*client.Client)(nil)

// DefaultAdvisorID is the advisor shown when neither the session nor the
// member list yields one.
const DefaultAdvisorID generic.AdvisorID = 30

type GoalSettings struct {
	backend Backend
	session session.Provider
	factory *factory.RuleFactory
	logger  *zap.Logger
	now     func() time.Time

	mu      sync.RWMutex
	rule    generic.EvaluationRule
	periods []generic.EvaluationPeriod
	loaded  bool

	flight singleflight.Group

	companyTargets   *store.Memory[generic.PeriodID, goals.Target]
	personalTargets  *store.Memory[generic.AdvisorPeriodKey, goals.Target]
	dailyTargets     *store.Memory[generic.AdvisorPeriodKey, goals.DailyTargetSet]
	msTargets        *store.Memory[generic.MsTargetKey, goals.MsTargets]
	importantMetrics *store.Memory[generic.ImportantMetricKey, []goals.ImportantMetric]
	msPeriodSettings *store.Memory[string, goals.MsPeriodMap]
	pageRateTargets  *store.Memory[generic.PeriodID, goals.PageRateTarget]
	members          *store.Memory[string, []goals.Member]
}

var _ goals.MsOverrides = (*GoalSettings)(nil)

type Option func(*GoalSettings)

func WithLogger(l *zap.Logger) Option {
	return func(s *GoalSettings) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock replaces time.Now for period generation.
func WithClock(now func() time.Time) Option {
	return func(s *GoalSettings) {
		if now != nil {
			s.now = now
		}
	}
}

// NewGoalSettings starts with the monthly rule and its periods until the
// stored rule is loaded.
func NewGoalSettings(backend Backend, provider session.Provider, opts ...Option) *GoalSettings {
	s := &GoalSettings{
		backend: backend,
		session: provider,
		factory: factory.NewRuleFactory(),
		logger:  zap.NewNop(),
		now:     time.Now,

		companyTargets:   store.NewCloningMemory[generic.PeriodID](goals.Target.Clone),
		personalTargets:  store.NewCloningMemory[generic.AdvisorPeriodKey](goals.Target.Clone),
		dailyTargets:     store.NewCloningMemory[generic.AdvisorPeriodKey](goals.DailyTargetSet.Clone),
		msTargets:        store.NewCloningMemory[generic.MsTargetKey](goals.MsTargets.Clone),
		importantMetrics: store.NewCloningMemory[generic.ImportantMetricKey](cloneSlice[goals.ImportantMetric]),
		msPeriodSettings: store.NewCloningMemory[string](goals.MsPeriodMap.Clone),
		pageRateTargets:  store.NewCloningMemory[generic.PeriodID](goals.PageRateTarget.Clone),
		members:          store.NewCloningMemory[string](cloneSlice[goals.Member]),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.applyRule(generic.DefaultRule(), false)
	return s
}

func cloneSlice[T any](in []T) []T {
	if in == nil {
		return nil
	}
	return append([]T(nil), in...)
}

// =============================================================================
// LOAD PLUMBING
// =============================================================================

// loadThrough implements the read path for one cache entry.
func loadThrough[K comparable, V any](
	s *GoalSettings,
	resource string,
	cache *store.Memory[K, V],
	key K,
	force bool,
	empty func() V,
	fetch func() (V, error),
) V {
	if !force {
		if v, ok := cache.Get(key); ok {
			return v
		}
	}

	_, err, _ := s.flight.Do(fmt.Sprintf("%s|%v", resource, key), func() (any, error) {
		v, err := fetch()
		if generic.IsNotFound(err) {
			v, err = empty(), nil
		}
		if err != nil {
			return nil, err
		}
		cache.Set(key, v)
		return nil, nil
	})
	if err != nil {
		s.warn("load "+resource+" failed", err, zap.String("key", fmt.Sprint(key)))
	}

	if v, ok := cache.Get(key); ok {
		return v
	}
	return empty()
}

func (s *GoalSettings) warn(msg string, err error, fields ...zap.Field) {
	fields = append(fields, zap.Error(err), zap.Bool("retryable", generic.IsRetryable(err)))
	s.logger.Warn(msg, fields...)
}

// =============================================================================
// EVALUATION RULE
// =============================================================================

func (s *GoalSettings) applyRule(rule generic.EvaluationRule, loaded bool) {
	rule = generic.NormalizeRule(rule)
	periods := s.factory.Generator(rule)(s.now())

	s.mu.Lock()
	defer s.mu.Unlock()
	s.rule = rule
	s.periods = periods
	s.loaded = s.loaded || loaded
}

// LoadEvaluationRule fetches the stored rule once and regenerates periods.
// On failure the current rule stays and still counts as loaded.
func (s *GoalSettings) LoadEvaluationRule(ctx context.Context, force bool) generic.EvaluationRule {
	s.mu.RLock()
	loaded := s.loaded
	s.mu.RUnlock()
	if loaded && !force {
		return s.EvaluationRule()
	}

	doc, err := s.backend.GetGoalSettings(ctx)
	switch {
	case generic.IsNotFound(err):
		s.applyRule(generic.DefaultRule(), true)
	case err != nil:
		s.warn("load evaluation rule failed", err)
		s.mu.Lock()
		s.loaded = true
		s.mu.Unlock()
	default:
		rule, verr := s.factory.FromDocument(doc)
		if verr != nil {
			s.warn("stored evaluation rule is invalid", verr)
			rule = doc.Rule()
		}
		s.applyRule(rule, true)
	}
	return s.EvaluationRule()
}

// SetEvaluationRule validates, stores, and then replaces the rule and periods.
func (s *GoalSettings) SetEvaluationRule(ctx context.Context, rule generic.EvaluationRule) (generic.EvaluationRule, error) {
	rule = generic.NormalizeRule(rule)
	if err := s.factory.Validate(rule); err != nil {
		return generic.EvaluationRule{}, err
	}
	if err := s.backend.PutGoalSettings(ctx, s.factory.ToBackend(rule)); err != nil {
		return generic.EvaluationRule{}, fmt.Errorf("save evaluation rule: %w", err)
	}
	s.applyRule(rule, true)
	return s.EvaluationRule(), nil
}

func (s *GoalSettings) EvaluationRule() generic.EvaluationRule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return generic.NormalizeRule(s.rule)
}

// EvaluationPeriods returns a copy of the generated periods.
func (s *GoalSettings) EvaluationPeriods() []generic.EvaluationPeriod {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneSlice(s.periods)
}

// SetEvaluationPeriods replaces the periods without touching the rule.
func (s *GoalSettings) SetEvaluationPeriods(periods []generic.EvaluationPeriod) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.periods = cloneSlice(periods)
}

// PeriodByDate finds the period containing date in the current periods.
func (s *GoalSettings) PeriodByDate(date generic.TimePoint) (generic.EvaluationPeriod, bool) {
	return generic.FindPeriodByDate(date, s.EvaluationPeriods())
}

// Resolver resolves MS windows against this service's period settings.
func (s *GoalSettings) Resolver() *goals.Resolver {
	return goals.NewResolver(s)
}

// =============================================================================
// ADVISOR RESOLUTION
// =============================================================================

// ResolveAdvisorID maps an advisor name to an id. See the package comment.
func (s *GoalSettings) ResolveAdvisorID(name string) (generic.AdvisorID, bool) {
	var current *session.Session
	if s.session != nil {
		current = s.session.Current()
	}
	if id := current.AdvisorID(); id.Valid() {
		if name == "" || name == current.UserName() {
			return id, true
		}
	}
	if id := generic.ParseAdvisorID(name); id.Valid() {
		return id, true
	}
	return 0, false
}
