package generic

import (
	"sort"

	"github.com/shopspring/decimal"
)

// =============================================================================
// CUMULATIVE TARGET DISTRIBUTION
// =============================================================================
//
// A period-end target is spread evenly over the active days of a window as a
// running (cumulative) series. Element i is round(total*(i+1)/length), capped
// at round(total); the last element is round(total) so the final day never
// drifts off the target.
//
//   total=100, length=3  ->  33, 67, 100
//
// Days outside the window are "disabled": they take no part in the division
// and carry no value.

// CumulativeValue returns the cumulative target for the index-th active day.
// Non-positive totals and empty windows yield zero.
func CumulativeValue(total decimal.Decimal, index, length int) decimal.Decimal {
	if !total.IsPositive() || length <= 0 {
		return decimal.Zero
	}
	last := total.Round(0)
	if index >= length-1 {
		return last
	}
	v := total.
		Mul(decimal.NewFromInt(int64(index + 1))).
		Div(decimal.NewFromInt(int64(length))).
		Round(0)
	return decimal.Min(v, last)
}

// BuildCumulativeSeries returns length cumulative values ending at round(total).
// The series is non-decreasing; a non-positive total yields all zeros.
func BuildCumulativeSeries(total decimal.Decimal, length int) []decimal.Decimal {
	if length <= 0 {
		return nil
	}
	series := make([]decimal.Decimal, length)
	for i := range series {
		series[i] = CumulativeValue(total, i, length)
	}
	return series
}

// CumulativeFromDaily turns daily actuals into a running total.
func CumulativeFromDaily(values []decimal.Decimal) []decimal.Decimal {
	out := make([]decimal.Decimal, len(values))
	sum := decimal.Zero
	for i, v := range values {
		sum = sum.Add(v)
		out[i] = sum
	}
	return out
}

// =============================================================================
// DAILY TARGETS - explicit per-date overrides
// =============================================================================

// DailyTargets maps an ISO date to an explicit cumulative target.
// A key that is present always carries a value; empty entries are dropped on
// normalization.
type DailyTargets map[string]decimal.Decimal

// NormalizeDailyTargets converts a loosely typed backend map, dropping nil
// and blank entries.
func NormalizeDailyTargets(raw map[string]any) DailyTargets {
	out := make(DailyTargets, len(raw))
	for date, v := range raw {
		if d, ok := ToDecimal(v); ok {
			out[date] = d
		}
	}
	return out
}

func (d DailyTargets) Clone() DailyTargets {
	if d == nil {
		return nil
	}
	out := make(DailyTargets, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// Sum adds every value, used when no date list is known.
func (d DailyTargets) Sum() decimal.Decimal {
	sum := decimal.Zero
	for _, v := range d {
		sum = sum.Add(v)
	}
	return sum
}

// Dates returns the keys in ascending order.
func (d DailyTargets) Dates() []string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// MarshalPayload renders values as float64 for the wire.
func (d DailyTargets) MarshalPayload() map[string]float64 {
	out := make(map[string]float64, len(d))
	for k, v := range d {
		out[k] = v.InexactFloat64()
	}
	return out
}

// =============================================================================
// CELLS - one per calendar day of a table row
// =============================================================================

type CumulativeCell struct {
	Date     TimePoint       `json:"date"`
	Value    decimal.Decimal `json:"value"`
	HasValue bool            `json:"hasValue"`
	Disabled bool            `json:"disabled"`
	Explicit bool            `json:"explicit"` // value came from an override
}

// activeFilter reports whether a date takes part in distribution. An unset
// window disables nothing.
func activeFilter(window DateRange) func(TimePoint) bool {
	if !window.Valid() {
		return func(TimePoint) bool { return true }
	}
	return window.Contains
}

// ActiveDates filters dates down to those inside the window.
func ActiveDates(dates []TimePoint, window DateRange) []TimePoint {
	active := activeFilter(window)
	out := make([]TimePoint, 0, len(dates))
	for _, d := range dates {
		if active(d) {
			out = append(out, d)
		}
	}
	return out
}

// DistributeAcross spreads total over the active dates. Every input date
// yields a cell; disabled cells have no value.
func DistributeAcross(total decimal.Decimal, dates []TimePoint, window DateRange) []CumulativeCell {
	active := activeFilter(window)
	series := BuildCumulativeSeries(total, len(ActiveDates(dates, window)))

	cells := make([]CumulativeCell, len(dates))
	idx := 0
	for i, d := range dates {
		cells[i].Date = d
		if !active(d) {
			cells[i].Disabled = true
			continue
		}
		cells[i].Value = series[idx]
		cells[i].HasValue = true
		idx++
	}
	return cells
}

// DistributionMap is DistributeAcross keyed by ISO date, skipping disabled days.
// It is the shape persisted as an MS target's daily map.
func DistributionMap(total decimal.Decimal, dates []TimePoint, window DateRange) DailyTargets {
	out := DailyTargets{}
	for _, c := range DistributeAcross(total, dates, window) {
		if c.HasValue {
			out[c.Date.String()] = c.Value
		}
	}
	return out
}

// ResolveCumulative merges explicit overrides with the distributed fallback.
//
//  1. An override for the date wins.
//  2. Otherwise the fallback series value at the active index is used.
//  3. Otherwise the last known cumulative value carries forward.
//
// The active index advances on every active date, overridden or not, so the
// fallback stays aligned with the calendar.
func ResolveCumulative(dates []TimePoint, window DateRange, overrides DailyTargets, total decimal.Decimal) []CumulativeCell {
	active := activeFilter(window)
	var fallback []decimal.Decimal
	if total.IsPositive() {
		fallback = BuildCumulativeSeries(total, len(ActiveDates(dates, window)))
	}

	cells := make([]CumulativeCell, len(dates))
	idx := 0
	var last decimal.Decimal
	haveLast := false
	for i, d := range dates {
		cells[i].Date = d
		if !active(d) {
			cells[i].Disabled = true
			continue
		}
		switch saved, ok := overrides[d.String()]; {
		case ok:
			cells[i].Value, cells[i].HasValue, cells[i].Explicit = saved, true, true
		case idx < len(fallback):
			cells[i].Value, cells[i].HasValue = fallback[idx], true
		case haveLast:
			cells[i].Value, cells[i].HasValue = last, true
		}
		if cells[i].HasValue {
			last, haveLast = cells[i].Value, true
		}
		idx++
	}
	return cells
}

// InferTargetTotal returns the latest-dated active override, or zero.
func InferTargetTotal(dates []TimePoint, window DateRange, overrides DailyTargets) decimal.Decimal {
	active := activeFilter(window)
	last := decimal.Zero
	for _, d := range dates {
		if !active(d) {
			continue
		}
		if v, ok := overrides[d.String()]; ok {
			last = v
		}
	}
	return last
}
