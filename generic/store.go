/*
store.go - Typed cache interface and composite keys

PURPOSE:
  Every value fetched from the backend is cached for the life of the process.
  Caches are plain key -> value stores with no eviction; a forced reload
  bypasses the read but still writes through.

KEY INTERFACES:
  Cache[K, V]: Get, Set, Invalidate, Len

COMPOSITE KEYS:
  Keys are small comparable structs so two different tuples can never collide
  the way joined strings can ("a:b" + "c" vs "a" + "b:c"). String() renders
  the colon-joined form used in logs.

    MsTargetKey        scope:department:metric:period:advisor
    AdvisorPeriodKey   advisor:period
    ImportantMetricKey department:user   (empty department is "all")

OWNERSHIP:
  The service that owns a cache hands out copies. Consumers mutate their copy
  and go through a save call to update the backend and the cache entry.

IMPLEMENTATIONS:
  - generic/store/memory.go: RWMutex-protected map
*/
package generic

import (
	"fmt"
)

// =============================================================================
// CACHE - Interface for process-lifetime caches
// =============================================================================

type Cache[K comparable, V any] interface {
	// Get returns the cached value and whether it was present.
	Get(key K) (V, bool)

	// Set stores value under key, replacing any previous entry.
	Set(key K, value V)

	// Invalidate removes key. Missing keys are ignored.
	Invalidate(key K)

	// Len is the number of entries.
	Len() int
}

// =============================================================================
// COMPOSITE KEYS
// =============================================================================

type MsTargetKey struct {
	Scope      Scope
	Department DepartmentKey
	Metric     MetricKey
	PeriodID   PeriodID
	AdvisorID  AdvisorID // 0 for company scope
}

func (k MsTargetKey) String() string {
	return fmt.Sprintf("%s:%s:%s:%s:%d", k.Scope, k.Department, k.Metric, k.PeriodID, k.AdvisorID)
}

// Complete reports whether every required part is set.
func (k MsTargetKey) Complete() bool {
	return k.Scope != "" && k.Department != "" && k.Metric != "" && k.PeriodID != ""
}

type AdvisorPeriodKey struct {
	AdvisorID AdvisorID
	PeriodID  PeriodID
}

func (k AdvisorPeriodKey) String() string {
	return fmt.Sprintf("%d:%s", k.AdvisorID, k.PeriodID)
}

// AllDepartments is the department part of keys not tied to one department.
const AllDepartments DepartmentKey = "all"

type ImportantMetricKey struct {
	Department DepartmentKey
	UserID     AdvisorID // 0 selects the department-wide list
}

// NewImportantMetricKey applies the "all" default for an empty department.
func NewImportantMetricKey(dept DepartmentKey, user AdvisorID) ImportantMetricKey {
	if dept == "" {
		dept = AllDepartments
	}
	if user < 0 {
		user = 0
	}
	return ImportantMetricKey{Department: dept, UserID: user}
}

func (k ImportantMetricKey) String() string {
	return fmt.Sprintf("%s:%d", k.Department, k.UserID)
}
