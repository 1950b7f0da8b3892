package tools

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"path/filepath"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
	"github.com/rahul/kriya/internal/capability"
	"github.com/rahul/kriya/internal/session"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

var (
	markdownOnce     sync.Once
	markdownRenderer goldmark.Markdown
	htmlPolicy       *bluemonday.Policy
)

func renderer() (goldmark.Markdown, *bluemonday.Policy) {
	markdownOnce.Do(func() {
		markdownRenderer = goldmark.New(goldmark.WithExtensions(extension.GFM))
		htmlPolicy = bluemonday.UGCPolicy()
	})
	return markdownRenderer, htmlPolicy
}

// ReportSaveTool writes a markdown report, optionally rendered to
// sanitised HTML.
type ReportSaveTool struct {
	ws workspace
}

func (r *ReportSaveTool) Name() string {
	return "report_save"
}

func (r *ReportSaveTool) Description() string {
	return "Save a markdown report to a file, as markdown or rendered HTML."
}

func (r *ReportSaveTool) Parameters() map[string]any {
	s := schema([]string{"path", "content"}, map[string]string{
		"path":    "Report file",
		"content": "Report body in markdown",
	})
	s["properties"].(map[string]any)["format"] = map[string]any{
		"type":        "string",
		"enum":        []string{"markdown", "html"},
		"description": "Output format; inferred from the file extension when omitted",
	}
	return s
}

func (r *ReportSaveTool) Invoke(ctx context.Context, task capability.Task, mem *session.Memory) capability.Result {
	target, res, ok := r.ws.requirePath(r.Name(), task, "path", "content")
	if !ok {
		return res
	}
	content, _ := task.String("content")
	format, _ := task.String("format")
	if format == "" {
		switch strings.ToLower(filepath.Ext(target)) {
		case ".html", ".htm":
			format = "html"
		default:
			format = "markdown"
		}
	}

	var out []byte
	switch format {
	case "markdown", "md":
		out = []byte(content)
	case "html":
		rendered, err := RenderHTML(content, filepath.Base(target))
		if err != nil {
			return capability.Err("failed to render report: %v", err)
		}
		out = rendered
	default:
		return capability.Err("unsupported report format %q", format)
	}

	if err := writeFile(target, out); err != nil {
		return capability.Err("failed to write report: %v", err)
	}
	path, _ := task.String("path")
	return capability.OK(map[string]any{"path": path, "bytes": len(out)})
}

// RenderHTML converts markdown to a sanitised standalone HTML document.
func RenderHTML(markdown, title string) ([]byte, error) {
	md, policy := renderer()
	var body bytes.Buffer
	if err := md.Convert([]byte(markdown), &body); err != nil {
		return nil, err
	}
	var doc bytes.Buffer
	fmt.Fprintf(&doc, "<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n<title>%s</title>\n</head>\n<body>\n",
		html.EscapeString(title))
	doc.Write(policy.SanitizeBytes(body.Bytes()))
	doc.WriteString("</body>\n</html>\n")
	return doc.Bytes(), nil
}
