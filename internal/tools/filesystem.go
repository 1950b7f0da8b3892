package tools

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rahul/kriya/internal/capability"
	"github.com/rahul/kriya/internal/session"
)

type FileReadTool struct {
	ws workspace
}

func (f *FileReadTool) Name() string {
	return "file_read"
}

func (f *FileReadTool) Description() string {
	return "Read a text file and return its content."
}

func (f *FileReadTool) Parameters() map[string]any {
	return schema([]string{"path"}, map[string]string{
		"path": "File to read, absolute or relative to the workspace",
	})
}

func (f *FileReadTool) Invoke(ctx context.Context, task capability.Task, mem *session.Memory) capability.Result {
	target, res, ok := f.ws.requirePath(f.Name(), task, "path")
	if !ok {
		return res
	}
	data, err := os.ReadFile(target)
	if err != nil {
		return capability.Err("failed to read file: %v", err)
	}
	return capability.OK(map[string]any{"content": string(data)})
}

type FileWriteTool struct {
	ws workspace
}

func (f *FileWriteTool) Name() string {
	return "file_write"
}

func (f *FileWriteTool) Description() string {
	return "Write content to a file, creating parent directories and replacing any existing file."
}

func (f *FileWriteTool) Parameters() map[string]any {
	return schema([]string{"path", "content"}, map[string]string{
		"path":    "File to write",
		"content": "Full new content of the file",
	})
}

func (f *FileWriteTool) Invoke(ctx context.Context, task capability.Task, mem *session.Memory) capability.Result {
	target, res, ok := f.ws.requirePath(f.Name(), task, "path", "content")
	if !ok {
		return res
	}
	content, _ := task.String("content")
	if err := writeFile(target, []byte(content)); err != nil {
		return capability.Err("failed to write file: %v", err)
	}
	path, _ := task.String("path")
	return capability.OK(map[string]any{"path": path})
}

type FilePatchTool struct {
	ws workspace
}

func (f *FilePatchTool) Name() string {
	return "file_patch"
}

func (f *FilePatchTool) Description() string {
	return "Replace occurrences of a string in a file and report the resulting diff."
}

func (f *FilePatchTool) Parameters() map[string]any {
	s := schema([]string{"path", "old", "new"}, map[string]string{
		"path": "File to patch",
		"old":  "Exact text to replace",
		"new":  "Replacement text",
	})
	s["properties"].(map[string]any)["count"] = map[string]any{
		"type":        "integer",
		"description": "Maximum number of replacements; all when omitted",
	}
	return s
}

func (f *FilePatchTool) Invoke(ctx context.Context, task capability.Task, mem *session.Memory) capability.Result {
	target, res, ok := f.ws.requirePath(f.Name(), task, "path", "old", "new")
	if !ok {
		return res
	}
	oldText, _ := task.String("old")
	newText, _ := task.String("new")
	if oldText == "" {
		return capability.Err("FILE_PATCH field 'old' must not be empty")
	}
	count := -1
	if n, ok := task["count"].(float64); ok && n > 0 {
		count = int(n)
	}

	data, err := os.ReadFile(target)
	if err != nil {
		return capability.Err("failed to read file: %v", err)
	}
	before := string(data)
	found := strings.Count(before, oldText)
	if found == 0 {
		return capability.Err("text to replace not found in %s", target)
	}
	after := strings.Replace(before, oldText, newText, count)
	if err := writeFile(target, []byte(after)); err != nil {
		return capability.Err("failed to write file: %v", err)
	}

	replaced := found
	if count >= 0 && count < found {
		replaced = count
	}
	path, _ := task.String("path")
	return capability.OK(map[string]any{
		"path":     path,
		"replaced": replaced,
		"diff":     unifiedDiff(path, before, after),
	})
}

// writeFile replaces target, keeping the existing file mode when there is
// one.
func writeFile(target string, data []byte) error {
	mode := os.FileMode(0o644)
	if info, err := os.Stat(target); err == nil {
		mode = info.Mode().Perm()
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	return os.WriteFile(target, data, mode)
}
