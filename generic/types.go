/*
Package generic provides the calendar and target-pacing engine.

PURPOSE:
  This package contains the domain-agnostic types and algorithms behind the
  yield dashboard: turning an evaluation rule into concrete date ranges,
  clamping day-of-month parameters, and spreading a period-end target across
  the active days of a window as a cumulative series. Department tables,
  metric catalogues and backend wiring live in other packages.

KEY CONCEPTS IN THIS FILE (types.go):
  - Identifiers: typed keys for periods, advisors, departments and metrics
  - Coercion: the permissive "finite number or 0" rule applied to every
    numeric value that arrives from the backend

DESIGN PRINCIPLES:
  1. Determinism: for a fixed "now" every function returns the same output
  2. Precision: cumulative targets use decimal.Decimal, never float sums
  3. Type Safety: composite cache keys are structs, not joined strings

USAGE:
  periods := generic.GeneratePeriods(generic.EvaluationRule{Type: generic.RuleMonthly}, time.Now())
  series := generic.BuildCumulativeSeries(decimal.NewFromInt(100), 3) // 33, 67, 100

SEE ALSO:
  - time.go: TimePoint and day clamping
  - period.go: Evaluation period generation
  - distribution.go: Cumulative target distribution
  - store.go: Typed cache interface and keys
*/
package generic

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type PeriodID string
type AdvisorID int64
type DepartmentKey string
type MetricKey string
type Scope string

const (
	ScopeCompany  Scope = "company"
	ScopePersonal Scope = "personal"
)

// Valid reports whether the advisor id refers to a real user (ids are positive).
func (a AdvisorID) Valid() bool { return a > 0 }

func (a AdvisorID) String() string { return strconv.FormatInt(int64(a), 10) }

// =============================================================================
// COERCION - backend payloads are loosely typed
// =============================================================================

// toFloat mirrors the conversion rules the backend contract relies on:
// nil and blank strings are zero, unparsable strings are not numbers.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case nil:
		return 0, true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case AdvisorID:
		return float64(n), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case decimal.Decimal:
		return n.InexactFloat64(), true
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return 0, true
		}
		f, err := strconv.ParseFloat(s, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// Num coerces any backend value to a finite float64, or 0.
func Num(v any) float64 {
	f, ok := toFloat(v)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// ToDecimal converts a present, finite value to a decimal.
// nil and blank strings count as "no value" and report false.
func ToDecimal(v any) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case nil:
		return decimal.Zero, false
	case decimal.Decimal:
		return n, true
	case string:
		if strings.TrimSpace(n) == "" {
			return decimal.Zero, false
		}
	}
	f, ok := toFloat(v)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Zero, false
	}
	return decimal.NewFromFloat(f), true
}

// ParseAdvisorID accepts numbers or numeric strings; anything else is zero.
func ParseAdvisorID(v any) AdvisorID {
	f := Num(v)
	if f <= 0 || f != math.Trunc(f) {
		return 0
	}
	return AdvisorID(f)
}
