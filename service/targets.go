package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/warp/yield-pacing/client"
	"github.com/warp/yield-pacing/generic"
	"github.com/warp/yield-pacing/goals"
)

func emptyTarget() goals.Target           { return goals.NormalizeTarget(nil) }
func emptyDaily() goals.DailyTargetSet    { return goals.DailyTargetSet{} }
func emptyPageRate() goals.PageRateTarget { return goals.PageRateTarget{} }

// =============================================================================
// COMPANY TARGETS
// =============================================================================

// CompanyTarget returns the cached company target without loading.
func (s *GoalSettings) CompanyTarget(periodID generic.PeriodID) (goals.Target, bool) {
	return s.companyTargets.Get(periodID)
}

// LoadCompanyTarget returns nil for an empty period id.
func (s *GoalSettings) LoadCompanyTarget(ctx context.Context, periodID generic.PeriodID, force bool) goals.Target {
	if periodID == "" {
		return nil
	}
	return loadThrough(s, "company target", s.companyTargets, periodID, force, emptyTarget,
		func() (goals.Target, error) { return s.backend.GetCompanyTarget(ctx, periodID) })
}

func (s *GoalSettings) SaveCompanyTarget(ctx context.Context, periodID generic.PeriodID, target goals.Target) (goals.Target, error) {
	if periodID == "" {
		return nil, fmt.Errorf("company target: %w", generic.ErrInvalidPeriod)
	}
	normalized := goals.NormalizeTargetValues(target)
	if err := s.backend.PutCompanyTarget(ctx, periodID, normalized); err != nil {
		return nil, fmt.Errorf("save company target %s: %w", periodID, err)
	}
	s.companyTargets.Set(periodID, normalized)
	return normalized, nil
}

// =============================================================================
// PERSONAL TARGETS
// =============================================================================

func (s *GoalSettings) personalKey(periodID generic.PeriodID, advisor string) (generic.AdvisorPeriodKey, bool) {
	if periodID == "" {
		return generic.AdvisorPeriodKey{}, false
	}
	id, ok := s.ResolveAdvisorID(advisor)
	if !ok {
		return generic.AdvisorPeriodKey{}, false
	}
	return generic.AdvisorPeriodKey{AdvisorID: id, PeriodID: periodID}, true
}

// PersonalTarget returns the cached target of a resolvable advisor.
func (s *GoalSettings) PersonalTarget(periodID generic.PeriodID, advisor string) (goals.Target, bool) {
	key, ok := s.personalKey(periodID, advisor)
	if !ok {
		return nil, false
	}
	return s.personalTargets.Get(key)
}

// LoadPersonalTarget returns nil when the period is empty or the advisor
// cannot be resolved.
func (s *GoalSettings) LoadPersonalTarget(ctx context.Context, periodID generic.PeriodID, advisor string, force bool) goals.Target {
	key, ok := s.personalKey(periodID, advisor)
	if !ok {
		return nil
	}
	return s.loadPersonal(ctx, key, force)
}

func (s *GoalSettings) loadPersonal(ctx context.Context, key generic.AdvisorPeriodKey, force bool) goals.Target {
	return loadThrough(s, "personal target", s.personalTargets, key, force, emptyTarget,
		func() (goals.Target, error) { return s.backend.GetPersonalTarget(ctx, key.PeriodID, key.AdvisorID) })
}

// pending drops invalid ids and, unless force, ids already cached.
func pending(ids []generic.AdvisorID, force bool, cached func(generic.AdvisorID) bool) []generic.AdvisorID {
	out := make([]generic.AdvisorID, 0, len(ids))
	seen := make(map[generic.AdvisorID]bool, len(ids))
	for _, id := range ids {
		if !id.Valid() || seen[id] {
			continue
		}
		seen[id] = true
		if force || !cached(id) {
			out = append(out, id)
		}
	}
	return out
}

// LoadPersonalTargetsBulk warms the personal target cache for many advisors
// in one request. It returns how many advisors the response covered. When the
// bulk request fails every advisor is loaded on its own with force.
func (s *GoalSettings) LoadPersonalTargetsBulk(ctx context.Context, periodID generic.PeriodID, advisors []generic.AdvisorID, force bool) int {
	if periodID == "" {
		return 0
	}
	ids := pending(advisors, force, func(id generic.AdvisorID) bool {
		return s.personalTargets.Has(generic.AdvisorPeriodKey{AdvisorID: id, PeriodID: periodID})
	})
	if len(ids) == 0 {
		return 0
	}

	byAdvisor, err := s.backend.GetPersonalTargetsBulk(ctx, periodID, ids)
	if err != nil {
		s.warn("load personal targets (bulk) failed", err,
			zap.String("period", string(periodID)),
			zap.Strings("advisors", client.FormatAdvisorIDs(ids)))
		s.fanOut(ctx, ids, func(ctx context.Context, id generic.AdvisorID) {
			s.loadPersonal(ctx, generic.AdvisorPeriodKey{AdvisorID: id, PeriodID: periodID}, true)
		})
		return 0
	}
	for id, target := range byAdvisor {
		s.personalTargets.Set(generic.AdvisorPeriodKey{AdvisorID: id, PeriodID: periodID}, target)
	}
	return len(byAdvisor)
}

// fanOut runs fn for every id concurrently. fn never fails; the group only
// bounds the wait.
func (s *GoalSettings) fanOut(ctx context.Context, ids []generic.AdvisorID, fn func(context.Context, generic.AdvisorID)) {
	g, gctx := errgroup.WithContext(ctx)
	for _, id := range ids {
		g.Go(func() error {
			fn(gctx, id)
			return nil
		})
	}
	_ = g.Wait()
}

func (s *GoalSettings) SavePersonalTarget(ctx context.Context, periodID generic.PeriodID, advisor string, target goals.Target) (goals.Target, error) {
	if periodID == "" {
		return nil, fmt.Errorf("personal target: %w", generic.ErrInvalidPeriod)
	}
	id, ok := s.ResolveAdvisorID(advisor)
	if !ok {
		return nil, generic.ErrAdvisorRequired
	}
	normalized := goals.NormalizeTargetValues(target)
	if err := s.backend.PutPersonalTarget(ctx, periodID, id, normalized); err != nil {
		return nil, fmt.Errorf("save personal target %s/%s: %w", id, periodID, err)
	}
	s.personalTargets.Set(generic.AdvisorPeriodKey{AdvisorID: id, PeriodID: periodID}, normalized)
	return normalized, nil
}

// =============================================================================
// DAILY TARGETS
// =============================================================================

// DailyTargets returns the cached daily targets, or an empty set.
func (s *GoalSettings) DailyTargets(periodID generic.PeriodID, advisor string) goals.DailyTargetSet {
	key, ok := s.personalKey(periodID, advisor)
	if !ok {
		return emptyDaily()
	}
	if daily, ok := s.dailyTargets.Get(key); ok {
		return daily
	}
	return emptyDaily()
}

func (s *GoalSettings) LoadDailyTargets(ctx context.Context, periodID generic.PeriodID, advisor string, force bool) goals.DailyTargetSet {
	key, ok := s.personalKey(periodID, advisor)
	if !ok {
		return emptyDaily()
	}
	return s.loadDaily(ctx, key, force)
}

func (s *GoalSettings) loadDaily(ctx context.Context, key generic.AdvisorPeriodKey, force bool) goals.DailyTargetSet {
	return loadThrough(s, "daily targets", s.dailyTargets, key, force, emptyDaily,
		func() (goals.DailyTargetSet, error) { return s.backend.GetDailyTargets(ctx, key.PeriodID, key.AdvisorID) })
}

// LoadDailyTargetsBulk mirrors LoadPersonalTargetsBulk. A non-empty date
// narrows the response to that day.
func (s *GoalSettings) LoadDailyTargetsBulk(ctx context.Context, periodID generic.PeriodID, advisors []generic.AdvisorID, date string, force bool) int {
	if periodID == "" {
		return 0
	}
	ids := pending(advisors, force, func(id generic.AdvisorID) bool {
		return s.dailyTargets.Has(generic.AdvisorPeriodKey{AdvisorID: id, PeriodID: periodID})
	})
	if len(ids) == 0 {
		return 0
	}

	byAdvisor, err := s.backend.GetDailyTargetsBulk(ctx, periodID, ids, date)
	if err != nil {
		s.warn("load daily targets (bulk) failed", err,
			zap.String("period", string(periodID)),
			zap.Strings("advisors", client.FormatAdvisorIDs(ids)))
		s.fanOut(ctx, ids, func(ctx context.Context, id generic.AdvisorID) {
			s.loadDaily(ctx, generic.AdvisorPeriodKey{AdvisorID: id, PeriodID: periodID}, true)
		})
		return 0
	}
	for id, daily := range byAdvisor {
		s.dailyTargets.Set(generic.AdvisorPeriodKey{AdvisorID: id, PeriodID: periodID}, daily)
	}
	return len(byAdvisor)
}

// SaveDailyTargets upserts the given dates. The cache entry becomes exactly
// the saved set.
func (s *GoalSettings) SaveDailyTargets(ctx context.Context, periodID generic.PeriodID, advisor string, daily goals.DailyTargetSet) (goals.DailyTargetSet, error) {
	if periodID == "" {
		return emptyDaily(), nil
	}
	id, ok := s.ResolveAdvisorID(advisor)
	if !ok {
		return nil, generic.ErrAdvisorRequired
	}
	normalized := make(goals.DailyTargetSet, len(daily))
	for date, target := range daily {
		normalized[date] = goals.NormalizeTargetValues(target)
	}
	if err := s.backend.PutDailyTargets(ctx, periodID, id, normalized); err != nil {
		return nil, fmt.Errorf("save daily targets %s/%s: %w", id, periodID, err)
	}
	s.dailyTargets.Set(generic.AdvisorPeriodKey{AdvisorID: id, PeriodID: periodID}, normalized)
	return normalized, nil
}

// =============================================================================
// PAGE RATE TARGETS
// =============================================================================

func (s *GoalSettings) PageRateTargets(periodID generic.PeriodID) (goals.PageRateTarget, bool) {
	return s.pageRateTargets.Get(periodID)
}

// LoadPageRateTargets caches per period id although the backend stores them
// per month.
func (s *GoalSettings) LoadPageRateTargets(ctx context.Context, periodID generic.PeriodID, force bool) goals.PageRateTarget {
	if periodID == "" {
		return emptyPageRate()
	}
	return loadThrough(s, "page rate targets", s.pageRateTargets, periodID, force, emptyPageRate,
		func() (goals.PageRateTarget, error) { return s.backend.GetPageRateTargets(ctx, periodID) })
}

func (s *GoalSettings) SavePageRateTargets(ctx context.Context, periodID generic.PeriodID, target goals.PageRateTarget) (goals.PageRateTarget, error) {
	if periodID == "" {
		return nil, fmt.Errorf("page rate targets: %w", generic.ErrInvalidPeriod)
	}
	normalized := goals.NormalizePageRateTarget(toAny(target))
	if err := s.backend.PutPageRateTargets(ctx, periodID, normalized); err != nil {
		return nil, fmt.Errorf("save page rate targets %s: %w", periodID, err)
	}
	s.pageRateTargets.Set(periodID, normalized)
	return normalized, nil
}

func toAny(in map[string]float64) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
