// Package store provides Cache implementations.
package store

import (
	"sync"

	"github.com/warp/yield-pacing/generic"
)

// =============================================================================
// MEMORY CACHE - In-memory implementation
// =============================================================================

// Memory is a map guarded by an RWMutex. When a clone func is set, values are
// copied on the way in and on the way out so callers never share the cached
// map or slice.
type Memory[K comparable, V any] struct {
	mu      sync.RWMutex
	entries map[K]V
	clone   func(V) V
}

var _ generic.Cache[generic.PeriodID, int] = (*Memory[generic.PeriodID, int])(nil)

func NewMemory[K comparable, V any]() *Memory[K, V] {
	return &Memory[K, V]{entries: make(map[K]V)}
}

// NewCloningMemory copies values with clone on every Get and Set.
func NewCloningMemory[K comparable, V any](clone func(V) V) *Memory[K, V] {
	return &Memory[K, V]{entries: make(map[K]V), clone: clone}
}

func (m *Memory[K, V]) Get(key K) (V, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.entries[key]
	if ok && m.clone != nil {
		v = m.clone(v)
	}
	return v, ok
}

func (m *Memory[K, V]) Set(key K, value V) {
	if m.clone != nil {
		value = m.clone(value)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = value
}

func (m *Memory[K, V]) Invalidate(key K) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
}

func (m *Memory[K, V]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Has reports presence without copying the value.
func (m *Memory[K, V]) Has(key K) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.entries[key]
	return ok
}

// Keys returns a snapshot of the keys in no particular order.
func (m *Memory[K, V]) Keys() []K {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]K, 0, len(m.entries))
	for k := range m.entries {
		keys = append(keys, k)
	}
	return keys
}
