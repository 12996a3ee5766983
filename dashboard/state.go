/*
Package dashboard assembles the yield dashboard from the settings service and
the KPI endpoints.

PURPOSE:
  The controller gathers everything one screen needs (targets, KPI
  summaries, MS tables) and commits it to a State in one step. Rendering
  takes a Snapshot and never reaches back into the controller.

LOAD SEQUENCE:
  Every LoadAll takes a new token from State.Begin. Work fans out with
  errgroup and the token is re-checked after every wait. A superseded load
  returns generic.ErrStaleLoad and commits nothing, so the state always
  reflects the most recent LoadAll that finished. In-flight requests of a
  stale load are not cancelled; their results are dropped.

SCOPES:
  all       personal + company + admin
  personal  the signed-in advisor's targets, KPIs and MS table
  company   company targets, KPIs and MS table
  admin     company MS table plus per-advisor term KPIs

SEE ALSO:
  - dashboard/controller.go: LoadAll
  - dashboard/mstable.go: MS table rows
  - dashboard/render.go: text rendering
  - service/goalsettings.go: caches behind every load
*/
package dashboard

import (
	"sync"
	"time"

	"github.com/warp/yield-pacing/generic"
	"github.com/warp/yield-pacing/goals"
)

// Scope selects which parts of the dashboard LoadAll fills.
type Scope string

const (
	ScopeAll      Scope = "all"
	ScopePersonal Scope = "personal"
	ScopeCompany  Scope = "company"
	ScopeAdmin    Scope = "admin"
)

// Wants reports whether part is included in s.
func (s Scope) Wants(part Scope) bool {
	return s == "" || s == ScopeAll || s == part
}

// Selection holds the user's picks. Empty period ids fall back to the
// period containing today.
type Selection struct {
	Scope                 Scope
	Advisor               string
	PersonalPeriodID      generic.PeriodID
	PersonalDailyPeriodID generic.PeriodID
	PersonalMsPeriodID    generic.PeriodID
	CompanyPeriodID       generic.PeriodID
	CompanyMsPeriodID     generic.PeriodID
	MetricKeys            map[generic.DepartmentKey]generic.MetricKey
}

func (s Selection) clone() Selection {
	out := s
	if s.MetricKeys != nil {
		out.MetricKeys = make(map[generic.DepartmentKey]generic.MetricKey, len(s.MetricKeys))
		for k, v := range s.MetricKeys {
			out.MetricKeys[k] = v
		}
	}
	return out
}

// KPISummary is a funnel with its rates under the scope's rate mode.
type KPISummary struct {
	Counts goals.FunnelCounts
	Rates  goals.Rates
	Mode   goals.RateMode
}

// EmployeeKPI is one advisor row of the admin term table.
type EmployeeKPI struct {
	AdvisorID generic.AdvisorID
	Name      string
	Summary   KPISummary
}

// Snapshot is a copy of everything the dashboard shows.
type Snapshot struct {
	Seq      uint64
	LoadedAt time.Time
	Periods  []generic.EvaluationPeriod

	Selection Selection
	AdvisorID generic.AdvisorID

	PersonalTarget  goals.Target
	PersonalDaily   goals.DailyTargetSet
	CompanyTarget   goals.Target
	PageRateTargets goals.PageRateTarget

	PersonalToday   KPISummary
	PersonalMonthly KPISummary
	PersonalPeriod  KPISummary
	CompanyPeriod   KPISummary
	Employees       []EmployeeKPI

	PersonalMs MsTable
	CompanyMs  MsTable
}

func (s Snapshot) clone() Snapshot {
	out := s
	out.Periods = append([]generic.EvaluationPeriod(nil), s.Periods...)
	out.Selection = s.Selection.clone()
	out.PersonalTarget = s.PersonalTarget.Clone()
	out.PersonalDaily = s.PersonalDaily.Clone()
	out.CompanyTarget = s.CompanyTarget.Clone()
	out.PageRateTargets = s.PageRateTargets.Clone()
	out.PersonalToday = s.PersonalToday.clone()
	out.PersonalMonthly = s.PersonalMonthly.clone()
	out.PersonalPeriod = s.PersonalPeriod.clone()
	out.CompanyPeriod = s.CompanyPeriod.clone()
	out.Employees = make([]EmployeeKPI, len(s.Employees))
	for i, e := range s.Employees {
		e.Summary = e.Summary.clone()
		out.Employees[i] = e
	}
	out.PersonalMs = s.PersonalMs.clone()
	out.CompanyMs = s.CompanyMs.clone()
	return out
}

func (k KPISummary) clone() KPISummary {
	out := k
	if k.Rates != nil {
		out.Rates = make(goals.Rates, len(k.Rates))
		for key, v := range k.Rates {
			out.Rates[key] = v
		}
	}
	return out
}

// =============================================================================
// STATE
// =============================================================================

// State is the single store the controller writes and renderers read.
type State struct {
	mu   sync.RWMutex
	seq  uint64
	snap Snapshot
}

func NewState(sel Selection) *State {
	if sel.Scope == "" {
		sel.Scope = ScopeAll
	}
	return &State{snap: Snapshot{Selection: sel.clone()}}
}

// Begin starts a load and returns its token.
func (s *State) Begin() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return s.seq
}

// IsCurrent reports whether token belongs to the latest load.
func (s *State) IsCurrent(token uint64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.seq == token
}

// Commit applies fn when token is still current. The check and the write
// happen under one lock.
func (s *State) Commit(token uint64, fn func(*Snapshot)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seq != token {
		return generic.ErrStaleLoad
	}
	fn(&s.snap)
	s.snap.Seq = token
	return nil
}

// Selection returns a copy of the current picks.
func (s *State) Selection() Selection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.Selection.clone()
}

// Select edits the picks. It does not start a load.
func (s *State) Select(fn func(*Selection)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.snap.Selection)
}

func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.clone()
}
