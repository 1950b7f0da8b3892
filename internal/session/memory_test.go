package session

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_SetGet(t *testing.T) {
	t.Parallel()
	m := NewMemory()

	m.Set("a", 1.0)
	assert.Equal(t, 1.0, m.Get("a", nil))

	m.Set("a", "overwritten")
	assert.Equal(t, "overwritten", m.Get("a", nil))
	assert.Equal(t, 1, m.Len())
}

func TestMemory_GetDefault(t *testing.T) {
	t.Parallel()
	m := NewMemory()

	assert.Equal(t, "fallback", m.Get("missing", "fallback"))
	assert.Nil(t, m.Get("missing", nil))

	_, ok := m.Lookup("missing")
	assert.False(t, ok)
}

func TestMemory_Delete(t *testing.T) {
	t.Parallel()
	m := NewMemory()
	m.Set("a", 1.0)

	m.Delete("a")
	m.Delete("never-bound")

	_, ok := m.Lookup("a")
	assert.False(t, ok)
	assert.Equal(t, 0, m.Len())
}

func TestMemory_ListPreservesInsertionOrder(t *testing.T) {
	t.Parallel()
	m := NewMemory()
	for i := 5; i > 0; i-- {
		m.Set(fmt.Sprintf("k%d", i), float64(i))
	}
	m.Set("k3", "again")

	entries := m.List()
	require.Len(t, entries, 5)

	keys := make([]string, len(entries))
	for i, e := range entries {
		keys[i] = e.Key
	}
	assert.Equal(t, []string{"k5", "k4", "k3", "k2", "k1"}, keys)
	assert.Equal(t, "again", entries[2].Value)
}

func TestMemory_ListIsSnapshot(t *testing.T) {
	t.Parallel()
	m := NewMemory()
	m.Set("a", 1.0)

	snap := m.List()
	snap[0].Value = "mutated"
	snap = append(snap, Entry{Key: "b", Value: 2.0})

	asMap := m.Map()
	asMap["c"] = 3.0

	assert.Equal(t, 1.0, m.Get("a", nil))
	assert.Equal(t, 1, m.Len())
	assert.Len(t, snap, 2)
}

func TestMemory_SnapshotsCopyNestedValues(t *testing.T) {
	t.Parallel()
	m := NewMemory()
	m.Set("cfg", map[string]any{"k": "live", "list": []any{"x", map[string]any{"deep": 1.0}}})

	snap := m.List()
	snap[0].Value.(map[string]any)["k"] = "mutated"
	snap[0].Value.(map[string]any)["list"].([]any)[0] = "mutated"

	asMap := m.Map()
	asMap["cfg"].(map[string]any)["list"].([]any)[1].(map[string]any)["deep"] = 2.0

	clone := m.Clone()
	clone.Get("cfg", nil).(map[string]any)["k"] = "from clone"

	live, ok := m.Lookup("cfg")
	require.True(t, ok)
	assert.Equal(t, map[string]any{"k": "live", "list": []any{"x", map[string]any{"deep": 1.0}}}, live)
}

func TestCopyValue(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   any
	}{
		{"scalar", 3.0},
		{"string", "s"},
		{"nil", nil},
		{"map", map[string]any{"a": []any{1.0, "b"}}},
		{"slice", []any{map[string]any{"a": 1.0}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.in, CopyValue(tt.in))
		})
	}
}

func TestMemory_SeedSortedAndClone(t *testing.T) {
	t.Parallel()
	m := NewMemory()
	m.Seed(map[string]any{"z": 1.0, "a": 2.0, "m": 3.0})

	entries := m.List()
	require.Len(t, entries, 3)
	assert.Equal(t, "a", entries[0].Key)
	assert.Equal(t, "m", entries[1].Key)
	assert.Equal(t, "z", entries[2].Key)

	clone := m.Clone()
	clone.Set("a", "changed")
	assert.Equal(t, 2.0, m.Get("a", nil))
	assert.Equal(t, "changed", clone.Get("a", nil))
}
