// Package tools holds the built-in capabilities: file edits, structured
// patches, version control, build tooling and report writing. Every tool
// validates its task before acting, performs one external effect, and
// reports failures in-band.
package tools

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/rahul/kriya/internal/capability"
)

// DefaultCommandTimeout bounds subprocess tools when Options leaves it unset.
const DefaultCommandTimeout = 10 * time.Minute

// Commands are the default shell commands of the tooling capabilities.
type Commands struct {
	Build string
	Test  string
	Docs  string
}

// Options configures the built-in tools.
type Options struct {
	// Workspace anchors relative paths. Empty means the working directory.
	Workspace      string
	CommandTimeout time.Duration
	Commands       Commands
}

func (o Options) withDefaults() Options {
	if o.Workspace == "" {
		o.Workspace = "."
	}
	if abs, err := filepath.Abs(o.Workspace); err == nil {
		o.Workspace = abs
	}
	if o.CommandTimeout <= 0 {
		o.CommandTimeout = DefaultCommandTimeout
	}
	if o.Commands.Build == "" {
		o.Commands.Build = "go build ./..."
	}
	if o.Commands.Test == "" {
		o.Commands.Test = "go test ./..."
	}
	if o.Commands.Docs == "" {
		o.Commands.Docs = "go doc -all ./..."
	}
	return o
}

// Builtins returns the fixed set of built-in tools.
func Builtins(opts Options) []capability.Tool {
	opts = opts.withDefaults()
	ws := workspace(opts.Workspace)
	return []capability.Tool{
		&FileReadTool{ws: ws},
		&FileWriteTool{ws: ws},
		&FilePatchTool{ws: ws},
		&PatchTextTool{ws: ws},
		&PatchJSONTool{ws: ws},
		&PatchYAMLTool{ws: ws},
		&PatchDiffTool{ws: ws},
		&VCSCloneTool{ws: ws, timeout: opts.CommandTimeout},
		&VCSCommitTool{ws: ws, timeout: opts.CommandTimeout},
		&VCSDiffTool{ws: ws, timeout: opts.CommandTimeout},
		&VCSPullTool{ws: ws, timeout: opts.CommandTimeout},
		&VCSStatusTool{ws: ws, timeout: opts.CommandTimeout},
		NewCommandTool("build_run", "Run the project build command in a directory.", opts.Commands.Build, ws, opts.CommandTimeout),
		NewCommandTool("test_run", "Run the project test command in a directory.", opts.Commands.Test, ws, opts.CommandTimeout),
		NewCommandTool("docs_generate", "Run the documentation generator in a directory.", opts.Commands.Docs, ws, opts.CommandTimeout),
		&ReportSaveTool{ws: ws},
	}
}

// RegisterBuiltins registers every built-in tool with r.
func RegisterBuiltins(r *capability.Registry, opts Options) error {
	for _, t := range Builtins(opts) {
		if err := r.RegisterTool(t); err != nil {
			return fmt.Errorf("register %s: %w", t.Name(), err)
		}
	}
	return nil
}

type workspace string

// resolve maps a task path onto the filesystem. Absolute paths are used as
// given; relative paths must stay inside the workspace.
func (w workspace) resolve(p string) (string, error) {
	if filepath.IsAbs(p) {
		return filepath.Clean(p), nil
	}
	target := filepath.Join(string(w), p)
	rel, err := filepath.Rel(string(w), target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("unsafe path attempt: %s", p)
	}
	return target, nil
}

// requirePath validates the named fields and resolves the path field.
func (w workspace) requirePath(name string, task capability.Task, pathField string, fields ...string) (string, capability.Result, bool) {
	if res, ok := task.Require(name, append([]string{pathField}, fields...)...); !ok {
		return "", res, false
	}
	raw, _ := task.String(pathField)
	resolved, err := w.resolve(raw)
	if err != nil {
		return "", capability.Err("%s", err.Error()), false
	}
	return resolved, capability.Result{}, true
}

func schema(required []string, props map[string]string) map[string]any {
	properties := make(map[string]any, len(props))
	for name, desc := range props {
		properties[name] = map[string]any{
			"type":        "string",
			"description": desc,
		}
	}
	return map[string]any{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}
}
