package tools

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/rahul/kriya/internal/capability"
	"github.com/rahul/kriya/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRegistry(t *testing.T, opts Options) *capability.Registry {
	t.Helper()
	r := capability.NewRegistry()
	require.NoError(t, RegisterBuiltins(r, opts))
	return r
}

func invoke(t *testing.T, r *capability.Registry, name string, task capability.Task) capability.Result {
	t.Helper()
	h, err := r.Lookup(name)
	require.NoError(t, err)
	return h.Invoke(context.Background(), task, session.NewMemory())
}

func TestRegisterBuiltins(t *testing.T) {
	t.Parallel()
	r := newRegistry(t, Options{})

	var names []string
	for e := range r.List() {
		names = append(names, e.Name)
		assert.NotEmpty(t, e.Description, e.Name)
	}
	assert.Equal(t, []string{
		"file_read", "file_write", "file_patch",
		"patch_text", "patch_json", "patch_yaml", "patch_diff",
		"vcs_clone", "vcs_commit", "vcs_diff", "vcs_pull", "vcs_status",
		"build_run", "test_run", "docs_generate",
		"report_save",
	}, names)

	// A second registration of the same set collides.
	assert.Error(t, RegisterBuiltins(r, Options{}))
}

func TestBuiltins_ValidateRequiredFields(t *testing.T) {
	t.Parallel()
	r := newRegistry(t, Options{Workspace: t.TempDir()})

	for e := range r.List() {
		res := invoke(t, r, e.Name, capability.Task{})
		require.True(t, res.Failed(), e.Name)
		assert.True(t, strings.HasPrefix(res.Error(), strings.ToUpper(e.Name)+" requires field '"), res.Error())
	}

	res := invoke(t, r, "file_write", capability.Task{"path": "x.txt"})
	assert.Equal(t, "FILE_WRITE requires field 'content'", res.Error())
}

func TestFileWriteThenRead(t *testing.T) {
	t.Parallel()
	r := newRegistry(t, Options{})
	path := filepath.Join(t.TempDir(), "x.txt")

	res := invoke(t, r, "file_write", capability.Task{"path": path, "content": "hi"})
	require.False(t, res.Failed(), res.Error())
	assert.Equal(t, map[string]any{"status": "ok", "path": path}, res.Map())

	res = invoke(t, r, "file_read", capability.Task{"path": path})
	require.False(t, res.Failed(), res.Error())
	assert.Equal(t, map[string]any{"status": "ok", "content": "hi"}, res.Map())
}

func TestFileRead_Missing(t *testing.T) {
	t.Parallel()
	r := newRegistry(t, Options{Workspace: t.TempDir()})
	res := invoke(t, r, "file_read", capability.Task{"path": "missing.txt"})
	assert.True(t, res.Failed())
	assert.Contains(t, res.Error(), "failed to read file")
}

func TestRelativePathsStayInWorkspace(t *testing.T) {
	t.Parallel()
	ws := t.TempDir()
	r := newRegistry(t, Options{Workspace: ws})

	res := invoke(t, r, "file_write", capability.Task{"path": "sub/dir/a.txt", "content": "x"})
	require.False(t, res.Failed(), res.Error())
	data, err := os.ReadFile(filepath.Join(ws, "sub", "dir", "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "x", string(data))

	res = invoke(t, r, "file_write", capability.Task{"path": "../escape.txt", "content": "x"})
	assert.True(t, res.Failed())
	assert.Contains(t, res.Error(), "unsafe path")
}

func TestFilePatch(t *testing.T) {
	t.Parallel()
	ws := t.TempDir()
	r := newRegistry(t, Options{Workspace: ws})
	require.NoError(t, os.WriteFile(filepath.Join(ws, "main.go"), []byte("a := 1\nb := 1\n"), 0o644))

	res := invoke(t, r, "file_patch", capability.Task{"path": "main.go", "old": "1", "new": "2", "count": 1.0})
	require.False(t, res.Failed(), res.Error())
	replaced, _ := res.Get("replaced")
	assert.Equal(t, 1, replaced)
	diff, _ := res.Get("diff")
	assert.Contains(t, diff, "-a := 1")
	assert.Contains(t, diff, "+a := 2")

	data, _ := os.ReadFile(filepath.Join(ws, "main.go"))
	assert.Equal(t, "a := 2\nb := 1\n", string(data))

	res = invoke(t, r, "file_patch", capability.Task{"path": "main.go", "old": "zzz", "new": "y"})
	assert.True(t, res.Failed())
}

func TestPatchText(t *testing.T) {
	t.Parallel()
	ws := t.TempDir()
	r := newRegistry(t, Options{Workspace: ws})

	res := invoke(t, r, "patch_text", capability.Task{"path": "notes.txt", "content": "one\n"})
	require.False(t, res.Failed(), res.Error())
	diff, _ := res.Get("diff")
	assert.Contains(t, diff, "+one")
}

func TestPatchJSON(t *testing.T) {
	t.Parallel()
	ws := t.TempDir()
	r := newRegistry(t, Options{Workspace: ws})
	original := `{
  // build settings
  "name": "demo",
  "debug": true,
  "deps": {"a": "1.0", "b": "2.0",},
}`
	require.NoError(t, os.WriteFile(filepath.Join(ws, "cfg.jsonc"), []byte(original), 0o644))

	res := invoke(t, r, "patch_json", capability.Task{
		"path":  "cfg.jsonc",
		"patch": map[string]any{"debug": nil, "deps": map[string]any{"b": "2.1", "c": "3.0"}},
	})
	require.False(t, res.Failed(), res.Error())
	content, _ := res.Get("content")
	assert.JSONEq(t, `{"name":"demo","deps":{"a":"1.0","b":"2.1","c":"3.0"}}`, content.(string))

	res = invoke(t, r, "patch_json", capability.Task{"path": "new.json", "patch": `{"created": 1}`})
	require.False(t, res.Failed(), res.Error())
	content, _ = res.Get("content")
	assert.JSONEq(t, `{"created":1}`, content.(string))

	res = invoke(t, r, "patch_json", capability.Task{"path": "new.json", "patch": `[1,2]`})
	assert.True(t, res.Failed())
}

func TestPatchYAML(t *testing.T) {
	t.Parallel()
	ws := t.TempDir()
	r := newRegistry(t, Options{Workspace: ws})
	require.NoError(t, os.WriteFile(filepath.Join(ws, "ci.yaml"), []byte("name: ci\nsteps:\n  lint: true\n  test: true\n"), 0o644))

	res := invoke(t, r, "patch_yaml", capability.Task{"path": "ci.yaml", "patch": "steps:\n  lint: null\n  build: true\n"})
	require.False(t, res.Failed(), res.Error())
	content, _ := res.Get("content")
	assert.YAMLEq(t, "name: ci\nsteps:\n  test: true\n  build: true\n", content.(string))
}

func TestPatchDiff(t *testing.T) {
	t.Parallel()
	ws := t.TempDir()
	r := newRegistry(t, Options{Workspace: ws})
	require.NoError(t, os.WriteFile(filepath.Join(ws, "f.txt"), []byte("a\nb\nc\n"), 0o644))

	diff := "--- a/f.txt\n+++ b/f.txt\n@@ -1,3 +1,3 @@\n a\n-b\n+B\n c\n"
	res := invoke(t, r, "patch_diff", capability.Task{"path": "f.txt", "diff": diff})
	require.False(t, res.Failed(), res.Error())
	content, _ := res.Get("content")
	assert.Equal(t, "a\nB\nc\n", content)

	// Context no longer matches.
	res = invoke(t, r, "patch_diff", capability.Task{"path": "f.txt", "diff": diff})
	assert.True(t, res.Failed())

	res = invoke(t, r, "patch_diff", capability.Task{"path": "f.txt", "diff": "not a diff"})
	assert.True(t, res.Failed())
}

func TestPatchDiff_AppliesGeneratedDiff(t *testing.T) {
	t.Parallel()
	ws := t.TempDir()
	r := newRegistry(t, Options{Workspace: ws})
	before := "line 1\nline 2\nline 3\nline 4\n"
	after := "line 1\nline two\nline 3\nline 4\nline 5\n"
	require.NoError(t, os.WriteFile(filepath.Join(ws, "g.txt"), []byte(before), 0o644))

	res := invoke(t, r, "patch_diff", capability.Task{"path": "g.txt", "diff": unifiedDiff("g.txt", before, after)})
	require.False(t, res.Failed(), res.Error())
	content, _ := res.Get("content")
	assert.Equal(t, after, content)
}

func TestMergePatch(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		doc   any
		patch any
		want  any
	}{
		{"replace scalar", map[string]any{"a": "b"}, map[string]any{"a": "c"}, map[string]any{"a": "c"}},
		{"add key", map[string]any{"a": "b"}, map[string]any{"b": "c"}, map[string]any{"a": "b", "b": "c"}},
		{"delete key", map[string]any{"a": "b", "b": "c"}, map[string]any{"a": nil}, map[string]any{"b": "c"}},
		{"array replaces", map[string]any{"a": []any{"b"}}, map[string]any{"a": "c"}, map[string]any{"a": "c"}},
		{"non-object patch", map[string]any{"a": "b"}, []any{"c"}, []any{"c"}},
		{"object onto scalar", "x", map[string]any{"a": "b"}, map[string]any{"a": "b"}},
		{"nested null", nil, map[string]any{"a": map[string]any{"b": nil}}, map[string]any{"a": map[string]any{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MergePatch(tt.doc, tt.patch))
		})
	}
}

func TestCommandTool(t *testing.T) {
	t.Parallel()
	ws := t.TempDir()
	r := newRegistry(t, Options{
		Workspace:      ws,
		CommandTimeout: 5 * time.Second,
		Commands:       Commands{Build: "echo built", Test: "echo failing >&2; exit 3"},
	})

	res := invoke(t, r, "build_run", capability.Task{"dir": "."})
	require.False(t, res.Failed(), res.Error())
	stdout, _ := res.Get("stdout")
	assert.Equal(t, "built\n", stdout)

	res = invoke(t, r, "test_run", capability.Task{"dir": "."})
	require.True(t, res.Failed())
	assert.Contains(t, res.Error(), "exited with code 3")
	assert.Contains(t, res.Error(), "failing")

	res = invoke(t, r, "build_run", capability.Task{"dir": ".", "command": "pwd"})
	require.False(t, res.Failed(), res.Error())
	stdout, _ = res.Get("stdout")
	resolved, _ := filepath.EvalSymlinks(ws)
	assert.Contains(t, []string{ws, resolved}, strings.TrimSpace(stdout.(string)))
}

func TestCommandTool_Timeout(t *testing.T) {
	t.Parallel()
	r := newRegistry(t, Options{
		Workspace:      t.TempDir(),
		CommandTimeout: 50 * time.Millisecond,
		Commands:       Commands{Docs: "sleep 5"},
	})
	res := invoke(t, r, "docs_generate", capability.Task{"dir": "."})
	require.True(t, res.Failed())
	assert.Contains(t, res.Error(), "timed out")
}

func TestTail(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "short", tail("  short\n", 10))
	assert.Equal(t, "...cdef", tail("abcdef", 4))

	got := tail("xxéééé", 3)
	assert.True(t, utf8.ValidString(got), got)
	assert.Equal(t, "...é", got)
}

func TestReportSave(t *testing.T) {
	t.Parallel()
	ws := t.TempDir()
	r := newRegistry(t, Options{Workspace: ws})
	body := "# Run report\n\n| step | state |\n|---|---|\n| 1 | ok |\n\n<script>alert(1)</script>\n"

	res := invoke(t, r, "report_save", capability.Task{"path": "report.md", "content": body})
	require.False(t, res.Failed(), res.Error())
	data, _ := os.ReadFile(filepath.Join(ws, "report.md"))
	assert.Equal(t, body, string(data))

	res = invoke(t, r, "report_save", capability.Task{"path": "report.html", "content": body})
	require.False(t, res.Failed(), res.Error())
	data, _ = os.ReadFile(filepath.Join(ws, "report.html"))
	page := string(data)
	assert.Contains(t, page, "<h1")
	assert.Contains(t, page, "<table>")
	assert.NotContains(t, page, "<script>")

	res = invoke(t, r, "report_save", capability.Task{"path": "r.txt", "content": body, "format": "pdf"})
	assert.True(t, res.Failed())
}

func TestVCSStatusAndCommit(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	t.Parallel()
	ws := t.TempDir()
	ctx := context.Background()
	repo := repository{dir: ws, timeout: 10 * time.Second}
	_, err := repo.run(ctx, "init", "--quiet")
	require.NoError(t, err)
	_, err = repo.run(ctx, "config", "user.email", "dev@example.com")
	require.NoError(t, err)
	_, err = repo.run(ctx, "config", "user.name", "Dev")
	require.NoError(t, err)

	r := newRegistry(t, Options{Workspace: ws})
	res := invoke(t, r, "vcs_status", capability.Task{"dir": "."})
	require.False(t, res.Failed(), res.Error())
	clean, _ := res.Get("clean")
	assert.Equal(t, true, clean)

	require.NoError(t, os.WriteFile(filepath.Join(ws, "a.txt"), []byte("a\n"), 0o644))
	res = invoke(t, r, "vcs_status", capability.Task{"dir": "."})
	clean, _ = res.Get("clean")
	assert.Equal(t, false, clean)

	_, err = repo.run(ctx, "add", "a.txt")
	require.NoError(t, err)
	res = invoke(t, r, "vcs_commit", capability.Task{"dir": ".", "message": "add a"})
	require.False(t, res.Failed(), res.Error())

	res = invoke(t, r, "vcs_diff", capability.Task{"dir": ".", "args": "HEAD"})
	require.False(t, res.Failed(), res.Error())
	diff, _ := res.Get("diff")
	assert.Empty(t, diff)

	res = invoke(t, r, "vcs_pull", capability.Task{"dir": ".", "remote": "nowhere"})
	assert.True(t, res.Failed())
}

type fakeQueue struct {
	task, scenario string
}

func (f *fakeQueue) Enqueue(_ context.Context, task, scenario string) (int64, error) {
	f.task, f.scenario = task, scenario
	return 7, nil
}

func TestEnqueueTool(t *testing.T) {
	t.Parallel()
	q := &fakeQueue{}
	tool := NewEnqueueTool(q)

	res := tool.Invoke(context.Background(), capability.Task{"task": "later", "scenario": "# STEP 1: x\nNOP\n"}, session.NewMemory())
	require.False(t, res.Failed(), res.Error())
	id, _ := res.Get("id")
	assert.Equal(t, int64(7), id)
	assert.Equal(t, "later", q.task)

	res = tool.Invoke(context.Background(), capability.Task{"task": "bad", "scenario": "FROB"}, session.NewMemory())
	assert.True(t, res.Failed())

	res = tool.Invoke(context.Background(), capability.Task{"task": "huge", "scenario": "# STEP 1: x\nPUSH 1\nCALL file_read 4611686018427387904\n"}, session.NewMemory())
	assert.True(t, res.Failed())
}
