package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/bluekeyes/go-gitdiff/gitdiff"
	"github.com/pmezard/go-difflib/difflib"
	"github.com/rahul/kriya/internal/capability"
	"github.com/rahul/kriya/internal/session"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// PatchTextTool replaces a file's whole content and reports what changed.
type PatchTextTool struct {
	ws workspace
}

func (p *PatchTextTool) Name() string {
	return "patch_text"
}

func (p *PatchTextTool) Description() string {
	return "Replace the full text of a file and return a unified diff of the change."
}

func (p *PatchTextTool) Parameters() map[string]any {
	return schema([]string{"path", "content"}, map[string]string{
		"path":    "File to rewrite",
		"content": "New text of the file",
	})
}

func (p *PatchTextTool) Invoke(ctx context.Context, task capability.Task, mem *session.Memory) capability.Result {
	target, res, ok := p.ws.requirePath(p.Name(), task, "path", "content")
	if !ok {
		return res
	}
	before, err := readOptional(target)
	if err != nil {
		return capability.Err("failed to read file: %v", err)
	}
	after, _ := task.String("content")
	if err := writeFile(target, []byte(after)); err != nil {
		return capability.Err("failed to write file: %v", err)
	}
	path, _ := task.String("path")
	return capability.OK(map[string]any{
		"path": path,
		"diff": unifiedDiff(path, string(before), after),
	})
}

// PatchJSONTool applies an RFC 7396 merge patch to a JSON document.
// Comments and trailing commas in the existing file are accepted; the
// rewritten file is plain indented JSON.
type PatchJSONTool struct {
	ws workspace
}

func (p *PatchJSONTool) Name() string {
	return "patch_json"
}

func (p *PatchJSONTool) Description() string {
	return "Merge a JSON patch (RFC 7396) into a JSON or JSONC file; null values delete keys."
}

func (p *PatchJSONTool) Parameters() map[string]any {
	return schema([]string{"path", "patch"}, map[string]string{
		"path":  "JSON file to patch; created when missing",
		"patch": "Merge patch as an object or JSON text",
	})
}

func (p *PatchJSONTool) Invoke(ctx context.Context, task capability.Task, mem *session.Memory) capability.Result {
	target, res, ok := p.ws.requirePath(p.Name(), task, "path", "patch")
	if !ok {
		return res
	}
	patch, err := decodePatch(task["patch"], func(b []byte, v any) error {
		return json.Unmarshal(jsonc.ToJSON(b), v)
	})
	if err != nil {
		return capability.Err("invalid patch: %v", err)
	}

	raw, err := readOptional(target)
	if err != nil {
		return capability.Err("failed to read file: %v", err)
	}
	var doc any
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(jsonc.ToJSON(raw), &doc); err != nil {
			return capability.Err("failed to parse %s: %v", target, err)
		}
	}

	out, err := json.MarshalIndent(MergePatch(doc, patch), "", "  ")
	if err != nil {
		return capability.Err("failed to encode JSON: %v", err)
	}
	out = append(out, '\n')
	if err := writeFile(target, out); err != nil {
		return capability.Err("failed to write file: %v", err)
	}
	path, _ := task.String("path")
	return capability.OK(map[string]any{"path": path, "content": string(out)})
}

// PatchYAMLTool applies the same merge semantics to a YAML document.
type PatchYAMLTool struct {
	ws workspace
}

func (p *PatchYAMLTool) Name() string {
	return "patch_yaml"
}

func (p *PatchYAMLTool) Description() string {
	return "Merge a patch into a YAML file; null values delete keys."
}

func (p *PatchYAMLTool) Parameters() map[string]any {
	return schema([]string{"path", "patch"}, map[string]string{
		"path":  "YAML file to patch; created when missing",
		"patch": "Merge patch as an object or YAML text",
	})
}

func (p *PatchYAMLTool) Invoke(ctx context.Context, task capability.Task, mem *session.Memory) capability.Result {
	target, res, ok := p.ws.requirePath(p.Name(), task, "path", "patch")
	if !ok {
		return res
	}
	patch, err := decodePatch(task["patch"], yaml.Unmarshal)
	if err != nil {
		return capability.Err("invalid patch: %v", err)
	}

	raw, err := readOptional(target)
	if err != nil {
		return capability.Err("failed to read file: %v", err)
	}
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return capability.Err("failed to parse %s: %v", target, err)
	}

	out, err := yaml.Marshal(MergePatch(doc, patch))
	if err != nil {
		return capability.Err("failed to encode YAML: %v", err)
	}
	if err := writeFile(target, out); err != nil {
		return capability.Err("failed to write file: %v", err)
	}
	path, _ := task.String("path")
	return capability.OK(map[string]any{"path": path, "content": string(out)})
}

// PatchDiffTool applies a unified diff to one file. Hunks must match the
// file exactly at their recorded positions; there is no fuzzy matching.
type PatchDiffTool struct {
	ws workspace
}

func (p *PatchDiffTool) Name() string {
	return "patch_diff"
}

func (p *PatchDiffTool) Description() string {
	return "Apply a unified diff (with ---/+++ headers) to a single file."
}

func (p *PatchDiffTool) Parameters() map[string]any {
	return schema([]string{"path", "diff"}, map[string]string{
		"path": "File the diff applies to",
		"diff": "Unified or git diff touching exactly one file",
	})
}

func (p *PatchDiffTool) Invoke(ctx context.Context, task capability.Task, mem *session.Memory) capability.Result {
	target, res, ok := p.ws.requirePath(p.Name(), task, "path", "diff")
	if !ok {
		return res
	}
	diff, _ := task.String("diff")
	files, _, err := gitdiff.Parse(strings.NewReader(diff))
	if err != nil {
		return capability.Err("invalid diff: %v", err)
	}
	switch {
	case len(files) == 0:
		return capability.Err("diff contains no file changes")
	case len(files) > 1:
		return capability.Err("diff touches %d files, patch_diff applies exactly one", len(files))
	case files[0].IsBinary:
		return capability.Err("binary diffs are not supported")
	}
	file := files[0]

	src, err := readOptional(target)
	if err != nil {
		return capability.Err("failed to read file: %v", err)
	}
	var out bytes.Buffer
	if err := gitdiff.Apply(&out, bytes.NewReader(src), file); err != nil {
		return capability.Err("failed to apply diff to %s: %v", target, err)
	}

	path, _ := task.String("path")
	if file.IsDelete {
		if err := os.Remove(target); err != nil {
			return capability.Err("failed to delete file: %v", err)
		}
		return capability.OK(map[string]any{"path": path, "content": ""})
	}
	if err := writeFile(target, out.Bytes()); err != nil {
		return capability.Err("failed to write file: %v", err)
	}
	return capability.OK(map[string]any{"path": path, "content": out.String()})
}

// MergePatch applies an RFC 7396 merge patch to doc and returns the result.
// doc is modified in place when it is an object.
func MergePatch(doc, patch any) any {
	p, ok := patch.(map[string]any)
	if !ok {
		return patch
	}
	target, ok := doc.(map[string]any)
	if !ok {
		target = make(map[string]any, len(p))
	}
	for k, v := range p {
		if v == nil {
			delete(target, k)
			continue
		}
		target[k] = MergePatch(target[k], v)
	}
	return target
}

// decodePatch accepts a patch either as a decoded value or as text in the
// document's own syntax.
func decodePatch(v any, unmarshal func([]byte, any) error) (any, error) {
	text, ok := v.(string)
	if !ok {
		return v, nil
	}
	var out any
	if err := unmarshal([]byte(text), &out); err != nil {
		return nil, err
	}
	if _, ok := out.(map[string]any); !ok {
		return nil, fmt.Errorf("patch must be an object, got %T", out)
	}
	return out, nil
}

// readOptional reads target, treating a missing file as empty.
func readOptional(target string) ([]byte, error) {
	data, err := os.ReadFile(target)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return data, err
}

func unifiedDiff(name, before, after string) string {
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(before),
		B:        difflib.SplitLines(after),
		FromFile: "a/" + strings.TrimPrefix(name, "/"),
		ToFile:   "b/" + strings.TrimPrefix(name, "/"),
		Context:  3,
	})
	if err != nil {
		return ""
	}
	return diff
}
