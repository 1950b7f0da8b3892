package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rahul/kriya/internal/agent"
	"github.com/rahul/kriya/internal/scenario"
	"github.com/rahul/kriya/internal/vm"
	"github.com/rahul/kriya/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutputOptions_Validate(t *testing.T) {
	for _, f := range []string{"text", "json", "yaml"} {
		opts := OutputOptions{Format: f}
		assert.NoError(t, opts.Validate(), f)
	}
	opts := OutputOptions{Format: "table"}
	assert.Error(t, opts.Validate())
}

func TestOutputOptions_Write(t *testing.T) {
	v := map[string]any{"state": "completed"}
	text := func(w io.Writer) error {
		_, err := io.WriteString(w, "plain\n")
		return err
	}

	tests := []struct {
		format string
		want   string
	}{
		{"text", "plain\n"},
		{"json", "{\n  \"state\": \"completed\"\n}\n"},
		{"yaml", "state: completed\n"},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			var buf bytes.Buffer
			opts := OutputOptions{Format: tt.format}
			require.NoError(t, opts.Write(&buf, v, text))
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestParseVars(t *testing.T) {
	vars, err := parseVars([]string{"n=3", "name=ada", `quoted="x y"`, `obj={"a":1}`, "empty="})
	require.NoError(t, err)
	assert.Equal(t, 3.0, vars["n"])
	assert.Equal(t, "ada", vars["name"])
	assert.Equal(t, "x y", vars["quoted"])
	assert.Equal(t, map[string]any{"a": 1.0}, vars["obj"])
	assert.Equal(t, "", vars["empty"])

	_, err = parseVars([]string{"novalue"})
	assert.Error(t, err)
	_, err = parseVars([]string{"=1"})
	assert.Error(t, err)
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("KRIYA_APP_WORKSPACE", filepath.Join(dir, "ws"))
	t.Setenv("KRIYA_MEMORY_PATH", filepath.Join(dir, "db", "history.db"))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "ws"), 0o755))

	c, _, err := config.Load(writeFile(t, dir, "kriya.yaml", "runner:\n  max_concurrent_runs: 2\n"))
	require.NoError(t, err)
	return c
}

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestEnvironment_RunsPlanEndToEnd(t *testing.T) {
	c := testConfig(t)
	env, err := newEnvironment(c, true)
	require.NoError(t, err)
	defer env.Close()

	assert.True(t, env.registry.Has("file_write"))
	assert.True(t, env.registry.Has("scenario_enqueue"))

	dir := t.TempDir()
	planPath := writeFile(t, dir, "plan.yaml", `
task: write a note
steps:
  - description: write the note
    capability: file_write
    args:
      path: note.txt
      content: hello
    store: written
  - description: read it back
    capability: file_read
    args:
      path: note.txt
    store: note
`)
	sc, err := loadScenario(env.runner, planPath)
	require.NoError(t, err)

	reports, err := env.runner.RunAll(context.Background(), []*scenario.Scenario{sc}, agent.RunOptions{})
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, vm.Completed, reports[0].State)

	data, err := os.ReadFile(filepath.Join(c.App.Workspace, "note.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	rec, err := env.history.GetRun(context.Background(), reports[0].RunID)
	require.NoError(t, err)
	assert.Equal(t, "write a note", rec.Task)
	assert.Len(t, rec.Calls, 2)
}

func TestEnvironment_PolicyDeniesCommands(t *testing.T) {
	c := testConfig(t)
	c.Policy.DeniedCapabilities = []string{"file_write"}
	env, err := newEnvironment(c, false)
	require.NoError(t, err)
	defer env.Close()
	assert.False(t, env.registry.Has("scenario_enqueue"))

	sc := env.runner.Compile(&scenario.Plan{Steps: []scenario.Step{{
		Description: "write",
		Capability:  "file_write",
		Args:        map[string]any{"path": "x.txt", "content": "x"},
	}}})
	rep, err := env.runner.RunScenario(context.Background(), sc, agent.RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, vm.HaltedOnError, rep.State)
	assert.Contains(t, rep.Message, "denied by policy")
}

func TestLoadScenario_Text(t *testing.T) {
	runner := &agent.Runner{}
	sc := runner.Compile(&scenario.Plan{Task: "t", Steps: []scenario.Step{{Description: "think"}}})

	dir := t.TempDir()
	path := writeFile(t, dir, "saved.txt", sc.Text())
	parsed, err := loadScenario(runner, path)
	require.NoError(t, err)
	assert.Equal(t, sc.Program(), parsed.Program())

	assert.True(t, isScenarioText("x.kriya", nil))
	assert.False(t, isScenarioText("plan.json", []byte("{}")))

	_, err = loadScenario(runner, writeFile(t, dir, "bad.kriya", "FROB\n"))
	assert.Error(t, err)
	_, err = loadScenario(runner, writeFile(t, dir, "bad.json", `{"steps": "nope"}`))
	assert.Error(t, err)
}

func TestVersionCommand(t *testing.T) {
	var buf bytes.Buffer
	versionCmd.SetOut(&buf)
	versionCmd.Run(versionCmd, nil)
	assert.True(t, strings.HasPrefix(buf.String(), "kriya version "))
}
