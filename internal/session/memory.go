// Package session holds the per-run variable store shared between the
// virtual machine and the capabilities it calls.
package session

import (
	"sort"
	"sync"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Entry is a single binding in a Memory snapshot.
type Entry struct {
	Key   string `json:"key" yaml:"key"`
	Value any    `json:"value" yaml:"value"`
}

// Memory is the Session Memory Context of one scenario run. Bindings keep
// their insertion order so diagnostics are reproducible.
//
// A Memory belongs to exactly one run. The lock only makes snapshots taken
// by an embedding host safe; it does not make sharing a Memory between
// concurrently executing runs meaningful.
type Memory struct {
	mu   sync.RWMutex
	vars *orderedmap.OrderedMap[string, any]
}

// NewMemory creates an empty memory.
func NewMemory() *Memory {
	return &Memory{vars: orderedmap.New[string, any]()}
}

// Set creates or overwrites a binding. Overwriting keeps the original position.
func (m *Memory) Set(key string, value any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vars.Set(key, value)
}

// Get returns the bound value, or def when key is unbound.
func (m *Memory) Get(key string, def any) any {
	if v, ok := m.Lookup(key); ok {
		return v
	}
	return def
}

// Lookup returns the bound value and whether it exists.
func (m *Memory) Lookup(key string) (any, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.vars.Get(key)
}

// Delete removes a binding; deleting an unbound key is a no-op.
func (m *Memory) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vars.Delete(key)
}

// Len returns the number of bindings.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.vars.Len()
}

// List returns a snapshot of all bindings in insertion order. Nested maps
// and slices are copied, so mutating the snapshot never reaches the memory.
func (m *Memory) List() []Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := make([]Entry, 0, m.vars.Len())
	for pair := m.vars.Oldest(); pair != nil; pair = pair.Next() {
		entries = append(entries, Entry{Key: pair.Key, Value: CopyValue(pair.Value)})
	}
	return entries
}

// Map returns a deep snapshot of all bindings as a plain map.
func (m *Memory) Map() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]any, m.vars.Len())
	for pair := m.vars.Oldest(); pair != nil; pair = pair.Next() {
		out[pair.Key] = CopyValue(pair.Value)
	}
	return out
}

// Seed binds every key of vars. Keys are applied in sorted order so seeded
// memories enumerate deterministically.
func (m *Memory) Seed(vars map[string]any) {
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		m.vars.Set(k, vars[k])
	}
}

// Clone returns an independent memory with the same bindings.
func (m *Memory) Clone() *Memory {
	clone := NewMemory()
	for _, e := range m.List() {
		clone.vars.Set(e.Key, e.Value)
	}
	return clone
}
