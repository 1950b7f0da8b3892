package tools

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/rahul/kriya/internal/capability"
	"github.com/rahul/kriya/internal/session"
)

// repository runs git against one directory via "git -C <dir>". Stderr is
// captured separately and included in errors.
type repository struct {
	dir     string
	timeout time.Duration
}

func (r repository) run(ctx context.Context, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	fullArgs := append([]string{"-C", r.dir}, args...)
	var stdout, stderr bytes.Buffer
	command := exec.CommandContext(ctx, "git", fullArgs...)
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		return "", fmt.Errorf("git %s in %s: %w (stderr: %s)",
			strings.Join(args, " "), r.dir, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

type VCSCloneTool struct {
	ws      workspace
	timeout time.Duration
}

func (v *VCSCloneTool) Name() string { return "vcs_clone" }

func (v *VCSCloneTool) Description() string {
	return "Clone a git repository into a directory."
}

func (v *VCSCloneTool) Parameters() map[string]any {
	return schema([]string{"url", "dir"}, map[string]string{
		"url":    "Repository URL or path",
		"dir":    "Destination directory",
		"branch": "Branch to check out",
	})
}

func (v *VCSCloneTool) Invoke(ctx context.Context, task capability.Task, mem *session.Memory) capability.Result {
	dest, res, ok := v.ws.requirePath(v.Name(), task, "dir", "url")
	if !ok {
		return res
	}
	url, _ := task.String("url")
	args := []string{"clone"}
	if branch, ok := task.String("branch"); ok && branch != "" {
		args = append(args, "--branch", branch)
	}
	args = append(args, "--", url, dest)

	out, err := repository{dir: string(v.ws), timeout: v.timeout}.run(ctx, args...)
	if err != nil {
		return capability.Err("%v", err)
	}
	dir, _ := task.String("dir")
	return capability.OK(map[string]any{"dir": dir, "stdout": out})
}

type VCSCommitTool struct {
	ws      workspace
	timeout time.Duration
}

func (v *VCSCommitTool) Name() string { return "vcs_commit" }

func (v *VCSCommitTool) Description() string {
	return "Record staged changes in a git repository; with all=true, tracked modifications are included."
}

func (v *VCSCommitTool) Parameters() map[string]any {
	return schema([]string{"dir", "message"}, map[string]string{
		"dir":     "Repository directory",
		"message": "Commit message",
		"all":     "Commit all tracked modifications (true/false)",
	})
}

func (v *VCSCommitTool) Invoke(ctx context.Context, task capability.Task, mem *session.Memory) capability.Result {
	dir, res, ok := v.ws.requirePath(v.Name(), task, "dir", "message")
	if !ok {
		return res
	}
	message, _ := task.String("message")
	args := []string{"commit"}
	if task.Bool("all") {
		args = append(args, "--all")
	}
	args = append(args, "--message", message)

	out, err := repository{dir: dir, timeout: v.timeout}.run(ctx, args...)
	if err != nil {
		return capability.Err("%v", err)
	}
	raw, _ := task.String("dir")
	return capability.OK(map[string]any{"dir": raw, "stdout": out})
}

type VCSDiffTool struct {
	ws      workspace
	timeout time.Duration
}

func (v *VCSDiffTool) Name() string { return "vcs_diff" }

func (v *VCSDiffTool) Description() string {
	return "Show the git diff of a repository's working tree."
}

func (v *VCSDiffTool) Parameters() map[string]any {
	return schema([]string{"dir"}, map[string]string{
		"dir":  "Repository directory",
		"args": "Extra arguments for git diff, space separated",
	})
}

func (v *VCSDiffTool) Invoke(ctx context.Context, task capability.Task, mem *session.Memory) capability.Result {
	dir, res, ok := v.ws.requirePath(v.Name(), task, "dir")
	if !ok {
		return res
	}
	args := []string{"diff"}
	if extra, ok := task.String("args"); ok {
		args = append(args, strings.Fields(extra)...)
	}

	out, err := repository{dir: dir, timeout: v.timeout}.run(ctx, args...)
	if err != nil {
		return capability.Err("%v", err)
	}
	raw, _ := task.String("dir")
	return capability.OK(map[string]any{"dir": raw, "diff": out})
}

type VCSPullTool struct {
	ws      workspace
	timeout time.Duration
}

func (v *VCSPullTool) Name() string { return "vcs_pull" }

func (v *VCSPullTool) Description() string {
	return "Pull from a git remote into a repository."
}

func (v *VCSPullTool) Parameters() map[string]any {
	return schema([]string{"dir"}, map[string]string{
		"dir":    "Repository directory",
		"remote": "Remote name",
		"branch": "Remote branch (requires remote)",
	})
}

func (v *VCSPullTool) Invoke(ctx context.Context, task capability.Task, mem *session.Memory) capability.Result {
	dir, res, ok := v.ws.requirePath(v.Name(), task, "dir")
	if !ok {
		return res
	}
	args := []string{"pull"}
	if remote, ok := task.String("remote"); ok && remote != "" {
		args = append(args, remote)
		if branch, ok := task.String("branch"); ok && branch != "" {
			args = append(args, branch)
		}
	}

	out, err := repository{dir: dir, timeout: v.timeout}.run(ctx, args...)
	if err != nil {
		return capability.Err("%v", err)
	}
	raw, _ := task.String("dir")
	return capability.OK(map[string]any{"dir": raw, "stdout": out})
}

type VCSStatusTool struct {
	ws      workspace
	timeout time.Duration
}

func (v *VCSStatusTool) Name() string { return "vcs_status" }

func (v *VCSStatusTool) Description() string {
	return "Report the porcelain git status of a repository and whether it is clean."
}

func (v *VCSStatusTool) Parameters() map[string]any {
	return schema([]string{"dir"}, map[string]string{
		"dir": "Repository directory",
	})
}

func (v *VCSStatusTool) Invoke(ctx context.Context, task capability.Task, mem *session.Memory) capability.Result {
	dir, res, ok := v.ws.requirePath(v.Name(), task, "dir")
	if !ok {
		return res
	}
	out, err := repository{dir: dir, timeout: v.timeout}.run(ctx, "status", "--porcelain")
	if err != nil {
		return capability.Err("%v", err)
	}
	raw, _ := task.String("dir")
	return capability.OK(map[string]any{
		"dir":    raw,
		"status": out,
		"clean":  strings.TrimSpace(out) == "",
	})
}
