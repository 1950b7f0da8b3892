package tools

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rahul/kriya/internal/capability"
	"github.com/rahul/kriya/internal/session"
)

const stderrTail = 2000

// CommandTool runs a project command (build, test, docs) through the shell
// in a directory. The run is bounded by the configured timeout.
type CommandTool struct {
	name        string
	description string
	command     string
	ws          workspace
	timeout     time.Duration
}

func NewCommandTool(name, description, command string, ws workspace, timeout time.Duration) *CommandTool {
	return &CommandTool{
		name:        name,
		description: description,
		command:     command,
		ws:          ws,
		timeout:     timeout,
	}
}

func (c *CommandTool) Name() string {
	return c.name
}

func (c *CommandTool) Description() string {
	return c.description + " Default command: " + c.command
}

func (c *CommandTool) Parameters() map[string]any {
	return schema([]string{"dir"}, map[string]string{
		"dir":     "Directory to run in",
		"command": "Shell command overriding the default",
	})
}

func (c *CommandTool) Invoke(ctx context.Context, task capability.Task, mem *session.Memory) capability.Result {
	dir, res, ok := c.ws.requirePath(c.name, task, "dir")
	if !ok {
		return res
	}
	command := c.command
	if override, ok := task.String("command"); ok && strings.TrimSpace(override) != "" {
		command = override
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return capability.Err("%s: %q timed out after %s", c.name, command, c.timeout)
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return capability.Err("%s: %q exited with code %d: %s",
			c.name, command, exitErr.ExitCode(), tail(stderr.String(), stderrTail))
	}
	if err != nil {
		return capability.Err("%s: failed to start %q: %v", c.name, command, err)
	}

	raw, _ := task.String("dir")
	return capability.OK(map[string]any{
		"dir":       raw,
		"stdout":    stdout.String(),
		"stderr":    stderr.String(),
		"exit_code": 0,
	})
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	i := len(s) - n
	for i < len(s) && !utf8.RuneStart(s[i]) {
		i++
	}
	return "..." + s[i:]
}
