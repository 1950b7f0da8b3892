package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *HistoryStore {
	t.Helper()
	h, err := NewHistoryStore(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { h.Close() })
	return h
}

func TestHistoryStore_SaveAndGetRun(t *testing.T) {
	h := newTestStore(t)
	ctx := context.Background()
	started := time.Date(2026, 3, 1, 10, 0, 0, 123, time.UTC)

	rec := RunRecord{
		ID:         "run-1",
		Task:       "write greeting",
		State:      "completed",
		PC:         7,
		Steps:      7,
		Value:      `{"status":"ok","path":"/tmp/x.txt"}`,
		Memory:     `[{"name":"written","value":{"status":"ok"}}]`,
		Scenario:   "# TASK: write greeting\n",
		StartedAt:  started,
		FinishedAt: started.Add(250 * time.Millisecond),
		Calls: []CallRecord{
			{Index: 5, Capability: "file_write", DurationMS: 3},
			{Index: 6, Capability: "file_read", Failed: true, Error: "missing", DurationMS: 1},
		},
	}
	require.NoError(t, h.SaveRun(ctx, rec))

	got, err := h.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, rec.Task, got.Task)
	assert.Equal(t, rec.State, got.State)
	assert.Equal(t, 7, got.PC)
	assert.Equal(t, rec.Value, got.Value)
	assert.Equal(t, rec.Memory, got.Memory)
	assert.Equal(t, rec.Scenario, got.Scenario)
	assert.True(t, rec.StartedAt.Equal(got.StartedAt))
	assert.True(t, rec.FinishedAt.Equal(got.FinishedAt))
	assert.Equal(t, rec.Calls, got.Calls)

	// Saving again replaces the run and its calls.
	rec.State = "halted_on_error"
	rec.Calls = rec.Calls[:1]
	require.NoError(t, h.SaveRun(ctx, rec))
	got, err = h.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "halted_on_error", got.State)
	assert.Len(t, got.Calls, 1)
}

func TestHistoryStore_GetRunNotFound(t *testing.T) {
	h := newTestStore(t)
	_, err := h.GetRun(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestHistoryStore_ListRunsNewestFirst(t *testing.T) {
	h := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, h.SaveRun(ctx, RunRecord{
			ID:        id,
			State:     "completed",
			Scenario:  "LABEL step_1",
			StartedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}

	runs, err := h.ListRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "c", runs[0].ID)
	assert.Equal(t, "b", runs[1].ID)
	assert.Empty(t, runs[0].Scenario)
}

func TestHistoryStore_Queue(t *testing.T) {
	h := newTestStore(t)
	ctx := context.Background()

	first, err := h.Enqueue(ctx, "one", "LABEL step_1\n")
	require.NoError(t, err)
	second, err := h.Enqueue(ctx, "two", "LABEL step_1\n")
	require.NoError(t, err)
	assert.Greater(t, second, first)

	pending, err := h.PendingScenarios(ctx, 0)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, first, pending[0].ID)
	assert.Equal(t, StatusPending, pending[0].Status)
	assert.False(t, pending[0].EnqueuedAt.IsZero())

	ok, err := h.Claim(ctx, first)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = h.Claim(ctx, first)
	require.NoError(t, err)
	assert.False(t, ok, "second claim must lose")

	require.NoError(t, h.MarkDone(ctx, first, "run-9", "completed"))

	pending, err = h.PendingScenarios(ctx, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, second, pending[0].ID)

	all, err := h.ListQueue(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, second, all[0].ID)
	assert.Equal(t, StatusDone, all[1].Status)
	assert.Equal(t, "run-9", all[1].RunID)
	assert.Equal(t, "completed", all[1].State)
}
