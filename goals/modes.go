package goals

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// =============================================================================
// RATE & CALC MODES
// =============================================================================

// RateMode picks the denominator of funnel rates.
type RateMode string

const (
	RateModeBase RateMode = "base" // divide by newInterviews
	RateModeStep RateMode = "step" // divide by the previous stage
)

// CalcMode picks how the backend attributes counts to dates. It only changes
// outbound query parameters.
type CalcMode string

const (
	CalcModeCohort CalcMode = "cohort" // date of the originating application
	CalcModePeriod CalcMode = "period" // date of the funnel event
)

const (
	DefaultRateMode = RateModeBase
	DefaultCalcMode = CalcModeCohort
)

// NormalizeRateMode: "step" (any case) is step, everything else base.
func NormalizeRateMode(s string) RateMode {
	if strings.EqualFold(strings.TrimSpace(s), string(RateModeStep)) {
		return RateModeStep
	}
	return RateModeBase
}

// NormalizeCalcMode: "cohort" (any case) is cohort, everything else period.
func NormalizeCalcMode(s string) CalcMode {
	if strings.EqualFold(strings.TrimSpace(s), string(CalcModeCohort)) {
		return CalcModeCohort
	}
	return CalcModePeriod
}

// ModeScope is a dashboard section with its own sticky mode choice.
type ModeScope string

const (
	ScopeDefault         ModeScope = "default"
	ScopePersonalMonthly ModeScope = "personalMonthly"
	ScopePersonalPeriod  ModeScope = "personalPeriod"
	ScopeCompanyMonthly  ModeScope = "companyMonthly"
	ScopeCompanyPeriod   ModeScope = "companyPeriod"
	ScopeCompanyTerm     ModeScope = "companyTerm"
	ScopeEmployee        ModeScope = "employee"
)

var ModeScopes = []ModeScope{
	ScopePersonalMonthly, ScopePersonalPeriod, ScopeCompanyMonthly,
	ScopeCompanyPeriod, ScopeCompanyTerm, ScopeEmployee,
}

func resolveScope(scope ModeScope) ModeScope {
	s := ModeScope(strings.TrimSpace(string(scope)))
	if s == "" {
		return ScopeDefault
	}
	return s
}

// =============================================================================
// PREFERENCE STORE
// =============================================================================

// PreferenceStore persists small UI preferences as a flat string map.
type PreferenceStore interface {
	Load() (map[string]string, error)
	Save(prefs map[string]string) error
}

// Preference keys.
const (
	rateModePrefix  = "yieldRateCalcMode.v1."
	calcModePrefix  = "yieldCalcMode.v1."
	PrefGoalAPIBase = "dashboard.goalApiBase"
)

// FilePreferences stores preferences as a JSON object in a file. A missing
// file is an empty store.
type FilePreferences struct {
	Path string
	mu   sync.Mutex
}

func NewFilePreferences(path string) *FilePreferences {
	return &FilePreferences{Path: path}
}

func (f *FilePreferences) Load() (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, err := os.ReadFile(f.Path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read preferences: %w", err)
	}
	prefs := map[string]string{}
	if len(strings.TrimSpace(string(data))) == 0 {
		return prefs, nil
	}
	if err := json.Unmarshal(data, &prefs); err != nil {
		return nil, fmt.Errorf("parse preferences %s: %w", f.Path, err)
	}
	return prefs, nil
}

func (f *FilePreferences) Save(prefs map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, err := json.MarshalIndent(prefs, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(f.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create preferences dir: %w", err)
		}
	}
	return os.WriteFile(f.Path, data, 0o600)
}

// =============================================================================
// MODE SETTINGS
// =============================================================================

// ModeSettings tracks rate and calc modes per scope. Unset scopes fall back to
// the "default" scope, then to the package defaults.
type ModeSettings struct {
	mu    sync.RWMutex
	rate  map[ModeScope]RateMode
	calc  map[ModeScope]CalcMode
	store PreferenceStore
}

// NewModeSettings loads persisted modes from store (nil keeps them in memory).
func NewModeSettings(store PreferenceStore) (*ModeSettings, error) {
	m := &ModeSettings{
		rate:  map[ModeScope]RateMode{},
		calc:  map[ModeScope]CalcMode{},
		store: store,
	}
	if store == nil {
		return m, nil
	}
	prefs, err := store.Load()
	if err != nil {
		return m, err
	}
	for key, value := range prefs {
		switch {
		case strings.HasPrefix(key, rateModePrefix):
			m.rate[ModeScope(strings.TrimPrefix(key, rateModePrefix))] = NormalizeRateMode(value)
		case strings.HasPrefix(key, calcModePrefix):
			m.calc[ModeScope(strings.TrimPrefix(key, calcModePrefix))] = NormalizeCalcMode(value)
		}
	}
	return m, nil
}

func (m *ModeSettings) RateMode(scope ModeScope) RateMode {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if v, ok := m.rate[resolveScope(scope)]; ok {
		return v
	}
	if v, ok := m.rate[ScopeDefault]; ok {
		return v
	}
	return DefaultRateMode
}

func (m *ModeSettings) CalcMode(scope ModeScope) CalcMode {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if v, ok := m.calc[resolveScope(scope)]; ok {
		return v
	}
	if v, ok := m.calc[ScopeDefault]; ok {
		return v
	}
	return DefaultCalcMode
}

// SetRateMode stores and persists the mode. Setting the default scope changes
// the fallback of every unset scope.
func (m *ModeSettings) SetRateMode(scope ModeScope, mode RateMode) (RateMode, error) {
	normalized := NormalizeRateMode(string(mode))
	scope = resolveScope(scope)
	m.mu.Lock()
	m.rate[scope] = normalized
	m.mu.Unlock()
	return normalized, m.persist(rateModePrefix+string(scope), string(normalized))
}

func (m *ModeSettings) SetCalcMode(scope ModeScope, mode CalcMode) (CalcMode, error) {
	normalized := NormalizeCalcMode(string(mode))
	scope = resolveScope(scope)
	m.mu.Lock()
	m.calc[scope] = normalized
	m.mu.Unlock()
	return normalized, m.persist(calcModePrefix+string(scope), string(normalized))
}

func (m *ModeSettings) persist(key, value string) error {
	if m.store == nil {
		return nil
	}
	prefs, err := m.store.Load()
	if err != nil {
		return err
	}
	prefs[key] = value
	return m.store.Save(prefs)
}

// =============================================================================
// QUERY PARAMETERS
// =============================================================================

// CalcParams are the attribution parameters sent with KPI requests.
type CalcParams struct {
	CalcMode   CalcMode
	CountBasis string
	TimeBasis  string
}

func calcParamsFor(mode CalcMode) CalcParams {
	basis := "event"
	if mode == CalcModeCohort {
		basis = "application"
	}
	return CalcParams{CalcMode: mode, CountBasis: basis, TimeBasis: basis}
}

// CalcModeParams: cohort counts by application date, period by event date.
func (m *ModeSettings) CalcModeParams(scope ModeScope) CalcParams {
	return calcParamsFor(m.CalcMode(scope))
}

// MsCalcModeParams is always period/event regardless of scope settings.
func MsCalcModeParams() CalcParams {
	return calcParamsFor(CalcModePeriod)
}

// Values renders the parameters as query values.
func (p CalcParams) Values() map[string]string {
	return map[string]string{
		"calcMode":   string(p.CalcMode),
		"countBasis": p.CountBasis,
		"timeBasis":  p.TimeBasis,
	}
}
