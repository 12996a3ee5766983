package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/warp/yield-pacing/generic"
	"github.com/warp/yield-pacing/goals"
)

func emptyMsTargets() goals.MsTargets {
	return goals.MsTargets{DailyTargets: generic.DailyTargets{}}
}

func emptyMetrics() []goals.ImportantMetric { return []goals.ImportantMetric{} }
func emptyPeriodMap() goals.MsPeriodMap     { return goals.MsPeriodMap{} }

// =============================================================================
// MS TARGETS
// =============================================================================

func (s *GoalSettings) MsTargets(key generic.MsTargetKey) (goals.MsTargets, bool) {
	return s.msTargets.Get(key)
}

// LoadMsTargets reports ok=false for an incomplete key.
func (s *GoalSettings) LoadMsTargets(ctx context.Context, key generic.MsTargetKey, force bool) (goals.MsTargets, bool) {
	if !key.Complete() {
		return emptyMsTargets(), false
	}
	return loadThrough(s, "ms targets", s.msTargets, key, force, emptyMsTargets,
		func() (goals.MsTargets, error) { return s.backend.GetMsTargets(ctx, key) }), true
}

// SaveMsTargets is best-effort: failures are logged and reported as ok=false.
func (s *GoalSettings) SaveMsTargets(ctx context.Context, key generic.MsTargetKey, targets goals.MsTargets) (goals.MsTargets, bool) {
	if !key.Complete() {
		s.logger.Warn("save ms targets skipped: incomplete key", zap.Stringer("key", key))
		return goals.MsTargets{}, false
	}
	saved := targets.Clone()
	if saved.DailyTargets == nil {
		saved.DailyTargets = generic.DailyTargets{}
	}
	if err := s.backend.PutMsTargets(ctx, key, saved); err != nil {
		s.warn("save ms targets failed", err, zap.Stringer("key", key))
		return goals.MsTargets{}, false
	}
	s.msTargets.Set(key, saved)
	return saved, true
}

// =============================================================================
// IMPORTANT METRICS
// =============================================================================

func (s *GoalSettings) ImportantMetrics(dept generic.DepartmentKey, user generic.AdvisorID) []goals.ImportantMetric {
	if list, ok := s.importantMetrics.Get(generic.NewImportantMetricKey(dept, user)); ok {
		return list
	}
	return emptyMetrics()
}

// LoadImportantMetrics loads one user's choice, or the department list when
// user is 0.
func (s *GoalSettings) LoadImportantMetrics(ctx context.Context, dept generic.DepartmentKey, user generic.AdvisorID, force bool) []goals.ImportantMetric {
	key := generic.NewImportantMetricKey(dept, user)
	return loadThrough(s, "important metrics", s.importantMetrics, key, force, emptyMetrics,
		func() ([]goals.ImportantMetric, error) { return s.backend.GetImportantMetrics(ctx, key) })
}

// SaveImportantMetric is best-effort. On success the user's entry becomes
// the saved metric and the department list has that user's entry replaced.
func (s *GoalSettings) SaveImportantMetric(ctx context.Context, dept generic.DepartmentKey, user generic.AdvisorID, metric generic.MetricKey) (goals.ImportantMetric, bool) {
	if dept == "" || !user.Valid() || metric == "" {
		s.logger.Warn("save important metric skipped: missing field",
			zap.String("department", string(dept)),
			zap.Int64("user", int64(user)),
			zap.String("metric", string(metric)))
		return goals.ImportantMetric{}, false
	}
	saved := goals.ImportantMetric{DepartmentKey: dept, UserID: user, MetricKey: metric}
	if err := s.backend.PutImportantMetric(ctx, saved); err != nil {
		s.warn("save important metric failed", err,
			zap.String("department", string(dept)),
			zap.Int64("user", int64(user)))
		return goals.ImportantMetric{}, false
	}

	s.importantMetrics.Set(generic.NewImportantMetricKey(dept, user), []goals.ImportantMetric{saved})
	deptKey := generic.NewImportantMetricKey(dept, 0)
	current, _ := s.importantMetrics.Get(deptKey)
	s.importantMetrics.Set(deptKey, goals.ReplaceUserMetric(current, saved))
	return saved, true
}

// =============================================================================
// MS PERIOD SETTINGS
// =============================================================================

// MsPeriodSettings returns the cached windows of a YYYY-MM month.
func (s *GoalSettings) MsPeriodSettings(month string) (goals.MsPeriodMap, bool) {
	return s.msPeriodSettings.Get(month)
}

// MsPeriodFor implements goals.MsOverrides over the cache. It never loads.
func (s *GoalSettings) MsPeriodFor(month string, metric generic.MetricKey) (generic.DateRange, bool) {
	m, ok := s.msPeriodSettings.Get(month)
	if !ok {
		return generic.DateRange{}, false
	}
	r, ok := m[metric]
	return r, ok
}

// LoadMsPeriodSettings returns an empty map for a malformed month.
func (s *GoalSettings) LoadMsPeriodSettings(ctx context.Context, month string, force bool) goals.MsPeriodMap {
	if !generic.IsMonthKey(month) {
		return emptyPeriodMap()
	}
	return loadThrough(s, "ms period settings", s.msPeriodSettings, month, force, emptyPeriodMap,
		func() (goals.MsPeriodMap, error) {
			rows, err := s.backend.GetMsPeriodSettings(ctx, month)
			if err != nil {
				return nil, err
			}
			return goals.BuildMsPeriodMap(rows), nil
		})
}

// SaveMsPeriodSettings stores the rows of one month and returns the whole
// month after the save. A row with both dates empty clears that metric; a row
// with only one date rejects the whole save. Metrics not named keep their
// windows.
func (s *GoalSettings) SaveMsPeriodSettings(ctx context.Context, month string, settings []goals.MsPeriodSetting) (goals.MsPeriodMap, error) {
	if !generic.IsMonthKey(month) {
		return nil, fmt.Errorf("ms period settings month %q: %w", month, generic.ErrInvalidPeriod)
	}
	if err := goals.ValidateMsPeriodSettings(settings); err != nil {
		return nil, err
	}
	if err := s.backend.PutMsPeriodSettings(ctx, month, settings); err != nil {
		return nil, fmt.Errorf("save ms period settings %s: %w", month, err)
	}
	// The backend upserts only the rows sent, so the other metrics of the
	// month keep their cached windows.
	current, ok := s.msPeriodSettings.Get(month)
	if !ok {
		s.LoadMsPeriodSettings(ctx, month, false)
		if current, ok = s.msPeriodSettings.Get(month); !ok {
			return goals.BuildMsPeriodMap(settings), nil
		}
	}
	merged := current.Merge(settings)
	s.msPeriodSettings.Set(month, merged)
	return merged.Clone(), nil
}

// LoadMsPeriodSettingsFor loads the settings month a period's windows are
// resolved against.
func (s *GoalSettings) LoadMsPeriodSettingsFor(ctx context.Context, periodID generic.PeriodID, force bool) goals.MsPeriodMap {
	month, ok := goals.ReferenceMonthKey(periodID, s.EvaluationPeriods())
	if !ok {
		return emptyPeriodMap()
	}
	return s.LoadMsPeriodSettings(ctx, month, force)
}

// =============================================================================
// MEMBERS
// =============================================================================

const membersKey = "members"

// Members loads the member list once. Concurrent callers share one request
// and a failure yields an empty list.
func (s *GoalSettings) Members(ctx context.Context, force bool) []goals.Member {
	return loadThrough(s, "members", s.members, membersKey, force,
		func() []goals.Member { return []goals.Member{} },
		func() ([]goals.Member, error) { return s.backend.GetMembers(ctx) })
}

// AdvisorIDs are the ids of advisor-role members, in member order.
func (s *GoalSettings) AdvisorIDs(ctx context.Context) []generic.AdvisorID {
	var ids []generic.AdvisorID
	for _, m := range goals.Advisors(s.Members(ctx, false)) {
		if id := m.AdvisorID(); id.Valid() {
			ids = append(ids, id)
		}
	}
	return ids
}
