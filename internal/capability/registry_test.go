package capability

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rahul/kriya/internal/governance"
	"github.com/rahul/kriya/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler(fields map[string]any) Handler {
	return HandlerFunc(func(context.Context, Task, *session.Memory) Result {
		return OK(fields)
	})
}

func TestRegistry_RegisterAndLookup(t *testing.T) {
	t.Parallel()
	r := NewRegistry()

	require.NoError(t, r.Register("echo", "Echo the task back", okHandler(nil)))
	h, err := r.Lookup("echo")
	require.NoError(t, err)
	assert.NotNil(t, h)
	assert.True(t, r.Has("echo"))
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_DuplicateRegistration(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	require.NoError(t, r.Register("echo", "first", okHandler(nil)))

	err := r.Register("echo", "second", okHandler(nil))
	var dup *DuplicateCapabilityError
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, "echo", dup.Name)

	// The original registration survives.
	for e := range r.List() {
		assert.Equal(t, "first", e.Description)
	}
}

func TestRegistry_UnknownLookup(t *testing.T) {
	t.Parallel()
	r := NewRegistry()

	for _, name := range []string{"nonexistent_op", "", "FILE_READ"} {
		_, err := r.Lookup(name)
		var unknown *UnknownCapabilityError
		require.True(t, errors.As(err, &unknown), name)
		assert.Equal(t, name, unknown.Name)
	}
}

func TestRegistry_RejectsInvalidRegistrations(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	assert.Error(t, r.Register("", "no name", okHandler(nil)))
	assert.Error(t, r.Register("nil", "no handler", nil))

	r.Seal()
	assert.ErrorIs(t, r.Register("late", "after seal", okHandler(nil)), ErrRegistrySealed)
}

func TestRegistry_ListIsOrderedAndRestartable(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	for _, name := range []string{"c", "a", "b"} {
		require.NoError(t, r.Register(name, "desc "+name, okHandler(nil)))
	}

	seq := r.List()
	collect := func() []string {
		var names []string
		for e := range seq {
			names = append(names, e.Name)
		}
		return names
	}
	assert.Equal(t, []string{"c", "a", "b"}, collect())
	assert.Equal(t, []string{"c", "a", "b"}, collect())

	// Early break is honoured.
	count := 0
	for range seq {
		count++
		break
	}
	assert.Equal(t, 1, count)
}

func TestRegistry_ConcurrentReaders(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	require.NoError(t, r.Register("echo", "Echo", okHandler(nil)))

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Lookup("echo")
			assert.NoError(t, err)
			for range r.List() {
			}
		}()
	}
	wg.Wait()
}

func TestResult_WireForm(t *testing.T) {
	t.Parallel()

	ok := OK(map[string]any{"path": "/tmp/x.txt", "status": "ignored"})
	assert.False(t, ok.Failed())
	assert.Equal(t, "ok", ok.Status())
	assert.Equal(t, map[string]any{"status": "ok", "path": "/tmp/x.txt"}, ok.Map())

	bad := Err("boom %d", 42)
	assert.True(t, bad.Failed())
	assert.Equal(t, "", bad.Status())
	assert.Equal(t, map[string]any{"error": "boom 42"}, bad.Map())

	assert.True(t, FromMap(map[string]any{"error": "x"}).Failed())
	assert.False(t, FromMap(map[string]any{"status": "ok"}).Failed())
}

func TestTask_Require(t *testing.T) {
	t.Parallel()
	task := Task{"path": "/tmp/x"}

	res, ok := task.Require("file_write", "path", "content")
	assert.False(t, ok)
	assert.Equal(t, "FILE_WRITE requires field 'content'", res.Error())

	_, ok = task.Require("file_read", "path")
	assert.True(t, ok)
}

func TestTask_CloneIsIndependent(t *testing.T) {
	t.Parallel()
	task := Task{"a": "1"}
	clone := task.Clone()
	clone["a"] = "2"
	clone["b"] = "3"
	assert.Equal(t, Task{"a": "1"}, task)
}

func TestTask_CloneCopiesNestedValues(t *testing.T) {
	t.Parallel()
	task := Task{
		"cfg":  map[string]any{"k": "vm", "tags": []any{"a"}},
		"list": []any{map[string]any{"n": 1.0}},
	}
	clone := task.Clone()
	clone["cfg"].(map[string]any)["k"] = "handler"
	clone["cfg"].(map[string]any)["tags"].([]any)[0] = "b"
	clone["list"].([]any)[0].(map[string]any)["n"] = 2.0

	assert.Equal(t, Task{
		"cfg":  map[string]any{"k": "vm", "tags": []any{"a"}},
		"list": []any{map[string]any{"n": 1.0}},
	}, task)
}

func TestDispatcher_PassesCopyOfTask(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	require.NoError(t, r.Register("mutate", "Mutates its task", HandlerFunc(
		func(_ context.Context, task Task, _ *session.Memory) Result {
			task["injected"] = true
			return OK(nil)
		})))

	d := NewDispatcher(r)
	task := Task{"path": "x"}
	res, err := d.Dispatch(context.Background(), "run", "mutate", task, session.NewMemory())
	require.NoError(t, err)
	assert.False(t, res.Failed())
	assert.NotContains(t, task, "injected")
}

func TestDispatcher_UnknownCapability(t *testing.T) {
	t.Parallel()
	d := NewDispatcher(NewRegistry())

	_, err := d.Dispatch(context.Background(), "run", "nonexistent_op", Task{}, session.NewMemory())
	var unknown *UnknownCapabilityError
	assert.True(t, errors.As(err, &unknown))
}

func TestDispatcher_PolicyDenial(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	called := false
	require.NoError(t, r.Register("vcs_pull", "Pull", HandlerFunc(
		func(context.Context, Task, *session.Memory) Result {
			called = true
			return OK(nil)
		})))

	policy := governance.NewDefaultPolicyEngine()
	policy.DenyCapability("vcs_pull")

	d := NewDispatcher(r, WithPolicy(policy))
	res, err := d.Dispatch(context.Background(), "run", "vcs_pull", Task{}, session.NewMemory())
	require.NoError(t, err)
	assert.True(t, res.Failed())
	assert.Contains(t, res.Error(), "denied by policy")
	assert.False(t, called)
}

func TestDispatcher_RecoversHandlerPanic(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	require.NoError(t, r.Register("explode", "Panics", HandlerFunc(
		func(context.Context, Task, *session.Memory) Result {
			panic("kaboom")
		})))

	d := NewDispatcher(r)
	res, err := d.Dispatch(context.Background(), "run", "explode", Task{}, session.NewMemory())
	require.NoError(t, err)
	assert.True(t, res.Failed())
	assert.Contains(t, res.Error(), "kaboom")
}

type schemaTool struct{}

func (schemaTool) Name() string        { return "schema_tool" }
func (schemaTool) Description() string { return "Has a schema" }
func (schemaTool) Parameters() map[string]any {
	return map[string]any{"type": "object", "required": []string{"path"}}
}
func (schemaTool) Invoke(context.Context, Task, *session.Memory) Result { return OK(nil) }

func TestLLMTools(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	require.NoError(t, r.RegisterTool(schemaTool{}))
	require.NoError(t, r.Register("plain", "No schema", okHandler(nil)))

	tools := LLMTools(r)
	require.Len(t, tools, 2)
	assert.Equal(t, "function", tools[0].Type)
	assert.Equal(t, "schema_tool", tools[0].Function.Name)
	assert.Equal(t, map[string]any{"type": "object", "required": []string{"path"}}, tools[0].Function.Parameters)
	assert.Equal(t, map[string]any{"type": "object"}, tools[1].Function.Parameters)

	assert.Equal(t, "- schema_tool: Has a schema\n- plain: No schema\n", Describe(r))
}
