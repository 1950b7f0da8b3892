// Package capability defines the uniform task/result contract every
// capability handler obeys, the registry handlers live in, and the
// dispatcher the virtual machine calls through.
package capability

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rahul/kriya/internal/session"
)

// Wire keys shared by every Result.
const (
	StatusKey = "status"
	ErrorKey  = "error"
	StatusOK  = "ok"
)

// Task is the input record of a capability call. Handlers receive their own
// copy, so mutating it never reaches the caller.
type Task map[string]any

// Clone returns a deep copy of the task: nested maps and slices are copied
// too, so a handler cannot write through them into the caller's values.
func (t Task) Clone() Task {
	out := make(Task, len(t))
	for k, v := range t {
		out[k] = session.CopyValue(v)
	}
	return out
}

// String returns field as a string. Numbers and booleans are formatted;
// a missing or nil field reports false.
func (t Task) String(field string) (string, bool) {
	v, ok := t[field]
	if !ok || v == nil {
		return "", false
	}
	switch val := v.(type) {
	case string:
		return val, true
	case float64:
		return formatNumber(val), true
	case fmt.Stringer:
		return val.String(), true
	default:
		return fmt.Sprint(val), true
	}
}

// Bool returns field as a boolean, accepting true/false strings.
func (t Task) Bool(field string) bool {
	switch v := t[field].(type) {
	case bool:
		return v
	case string:
		return v == "true" || v == "yes" || v == "1"
	case float64:
		return v != 0
	default:
		return false
	}
}

// Require checks that every field is present and not nil. The returned
// Result is the validation failure handlers must hand back unchanged.
func (t Task) Require(capabilityName string, fields ...string) (Result, bool) {
	for _, f := range fields {
		if v, ok := t[f]; !ok || v == nil {
			return MissingField(capabilityName, f), false
		}
	}
	return Result{}, true
}

// MissingField builds the canonical validation failure.
func MissingField(capabilityName, field string) Result {
	return Err("%s requires field '%s'", strings.ToUpper(capabilityName), field)
}

// Result is the output of a capability call: either OK with a
// capability-specific payload, or Err with a message. Construct it with OK
// or Err; the zero value is an OK result with no payload.
type Result struct {
	fields map[string]any
	err    string
	failed bool
}

// OK builds a successful result. The fields map is copied.
func OK(fields map[string]any) Result {
	payload := make(map[string]any, len(fields))
	for k, v := range fields {
		if k == StatusKey || k == ErrorKey {
			continue
		}
		payload[k] = v
	}
	return Result{fields: payload}
}

// Err builds a failed result.
func Err(format string, args ...any) Result {
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	return Result{err: msg, failed: true}
}

// FromMap interprets a wire-form mapping: a non-empty "error" key makes it a
// failure, anything else a success.
func FromMap(m map[string]any) Result {
	if e, ok := m[ErrorKey]; ok && e != nil && fmt.Sprint(e) != "" {
		return Err("%s", fmt.Sprint(e))
	}
	return OK(m)
}

// Failed reports whether the result carries an error.
func (r Result) Failed() bool {
	return r.failed
}

// Error returns the failure message, or "" for successful results.
func (r Result) Error() string {
	return r.err
}

// Status returns "ok" for successful results and "" for failures.
func (r Result) Status() string {
	if r.failed {
		return ""
	}
	return StatusOK
}

// Get returns a payload field.
func (r Result) Get(key string) (any, bool) {
	v, ok := r.fields[key]
	return v, ok
}

// Map returns the wire form: {"status": "ok", ...} or {"error": "..."}.
func (r Result) Map() map[string]any {
	if r.failed {
		return map[string]any{ErrorKey: r.err}
	}
	out := make(map[string]any, len(r.fields)+1)
	for k, v := range r.fields {
		out[k] = v
	}
	out[StatusKey] = StatusOK
	return out
}

func (r Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Map())
}

func (r Result) MarshalYAML() (any, error) {
	return r.Map(), nil
}

func (r Result) String() string {
	if r.failed {
		return "error: " + r.err
	}
	return fmt.Sprintf("ok %v", r.fields)
}

// Handler performs one capability. Handlers report every failure in-band
// through the returned Result.
type Handler interface {
	Invoke(ctx context.Context, task Task, mem *session.Memory) Result
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, task Task, mem *session.Memory) Result

func (f HandlerFunc) Invoke(ctx context.Context, task Task, mem *session.Memory) Result {
	return f(ctx, task, mem)
}

// Tool is a self-describing Handler.
type Tool interface {
	Handler
	Name() string
	Description() string
	Parameters() map[string]any // JSON Schema for the tool's inputs
}

// Entry describes a registered capability.
type Entry struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
}

func formatNumber(f float64) string {
	if f == float64(int64(f)) {
		return fmt.Sprintf("%d", int64(f))
	}
	return fmt.Sprintf("%g", f)
}
