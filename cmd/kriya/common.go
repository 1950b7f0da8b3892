package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rahul/kriya/internal/agent"
	"github.com/rahul/kriya/internal/capability"
	"github.com/rahul/kriya/internal/ir"
	"github.com/rahul/kriya/internal/observability"
	"github.com/rahul/kriya/internal/scenario"
	"github.com/rahul/kriya/internal/store"
	"github.com/rahul/kriya/internal/tools"
	"github.com/rahul/kriya/pkg/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// OutputOptions selects how results are printed.
type OutputOptions struct {
	Format string
}

// RegisterFlags adds the output flags to a cobra command.
func (opts *OutputOptions) RegisterFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&opts.Format, "format", "text", "Output format: text, json, yaml")
}

// Validate checks the selected format.
func (opts *OutputOptions) Validate() error {
	switch opts.Format {
	case "text", "json", "yaml":
		return nil
	}
	return fmt.Errorf("invalid format: %s (valid: text, json, yaml)", opts.Format)
}

// Write prints v in the selected format. text renders with textFn.
func (opts *OutputOptions) Write(w io.Writer, v any, textFn func(io.Writer) error) error {
	switch opts.Format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(v)
	default:
		return textFn(w)
	}
}

// environment is the wiring shared by commands that execute scenarios.
type environment struct {
	registry *capability.Registry
	history  *store.HistoryStore
	logger   *observability.Logger
	runner   *agent.Runner
}

func (e *environment) Close() error {
	if e.history == nil {
		return nil
	}
	return e.history.Close()
}

// newEnvironment builds the registry, policy, dispatcher and runner from
// the loaded config. withStore opens the history database.
func newEnvironment(c *config.Config, withStore bool) (*environment, error) {
	env := &environment{registry: capability.NewRegistry()}

	if withStore {
		history, err := openHistory(c)
		if err != nil {
			return nil, err
		}
		env.history = history
	}

	err := tools.RegisterBuiltins(env.registry, tools.Options{
		Workspace:      c.App.Workspace,
		CommandTimeout: c.Runner.CommandTimeout,
		Commands: tools.Commands{
			Build: c.Commands.Build,
			Test:  c.Commands.Test,
			Docs:  c.Commands.Docs,
		},
	})
	if err == nil && env.history != nil {
		err = env.registry.RegisterTool(tools.NewEnqueueTool(env.history))
	}
	if err != nil {
		env.Close()
		return nil, err
	}
	env.registry.Seal()

	gov, err := c.BuildPolicy()
	if err != nil {
		env.Close()
		return nil, err
	}

	var logOpts []observability.Option
	if c.Log.EventLogPath != "" {
		logOpts = append(logOpts, observability.WithEventLog(c.Log.EventLogPath))
	}
	env.logger = observability.NewLogger(logOpts...)

	dispatcher := capability.NewDispatcher(env.registry,
		capability.WithPolicy(gov),
		capability.WithLogger(env.logger),
	)

	var runs agent.RunStore
	if env.history != nil {
		runs = env.history
	}
	env.runner = agent.NewRunner(dispatcher, runs, env.logger)
	env.runner.MaxConcurrentRuns = c.Runner.MaxConcurrentRuns
	return env, nil
}

func openHistory(c *config.Config) (*store.HistoryStore, error) {
	if c.Memory.Type != "" && c.Memory.Type != "sqlite" {
		return nil, fmt.Errorf("unsupported memory type: %s", c.Memory.Type)
	}
	if dir := filepath.Dir(c.Memory.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
	}
	return store.NewHistoryStore(c.Memory.Path)
}

// loadScenario reads either scenario text or a plan and returns a
// compiled scenario.
func loadScenario(runner *agent.Runner, path string) (*scenario.Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if isScenarioText(path, data) {
		sc, err := scenario.Parse(string(data))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return sc, nil
	}

	format := "json"
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		format = "yaml"
	}
	plan, err := scenario.ParsePlan(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return runner.Compile(plan), nil
}

func isScenarioText(path string, data []byte) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".kriya", ".scn":
		return true
	}
	return strings.HasPrefix(string(data), scenario.Header)
}

// parseVars turns key=value flags into memory seeds. Values that are valid
// JSON literals are decoded, anything else is kept as a string.
func parseVars(pairs []string) (map[string]any, error) {
	vars := make(map[string]any, len(pairs))
	for _, p := range pairs {
		key, raw, ok := strings.Cut(p, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --var %q (want key=value)", p)
		}
		if v, err := ir.ParseLiteral(raw); err == nil {
			vars[key] = v.Any()
		} else {
			vars[key] = raw
		}
	}
	return vars, nil
}
