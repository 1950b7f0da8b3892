// Package observability provides structured run events, process status and
// terminal helpers.
package observability

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// EventType defines the category of the log event.
type EventType string

const (
	EventTypeCompile          EventType = "compile"
	EventTypeRunStart         EventType = "run_start"
	EventTypeRunEnd           EventType = "run_end"
	EventTypeCapabilityCall   EventType = "capability_call"
	EventTypeCapabilityResult EventType = "capability_result"
	EventTypePolicyCheck      EventType = "policy_check"
	EventTypeHeartbeat        EventType = "heartbeat"
)

// DefaultMaxEventLogSize is the size after which the event log is rotated.
const DefaultMaxEventLogSize = 10 * 1024 * 1024

// Event represents a structured log entry.
type Event struct {
	Type      EventType `json:"type"`
	RunID     string    `json:"run_id,omitempty"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// Logger emits run events through slog and optionally mirrors capability
// events into a JSONL file.
type Logger struct {
	slog         *slog.Logger
	eventLogPath string
	maxSize      int64
	mu           sync.Mutex
}

// Option configures a Logger.
type Option func(*Logger)

// WithSlog sets the slog logger events are written to.
func WithSlog(l *slog.Logger) Option {
	return func(lg *Logger) {
		lg.slog = l
	}
}

// WithEventLog mirrors capability events to a JSONL file at path.
func WithEventLog(path string) Option {
	return func(lg *Logger) {
		lg.eventLogPath = path
	}
}

// WithMaxEventLogSize overrides the rotation threshold.
func WithMaxEventLogSize(size int64) Option {
	return func(lg *Logger) {
		lg.maxSize = size
	}
}

func NewLogger(opts ...Option) *Logger {
	l := &Logger{
		maxSize: DefaultMaxEventLogSize,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.slog == nil {
		l.slog = slog.Default()
	}
	return l
}

// Log emits a structured event.
func (l *Logger) Log(evt Event) {
	if l == nil {
		return
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}

	level := slog.LevelInfo
	switch evt.Type {
	case EventTypeCapabilityCall, EventTypeHeartbeat, EventTypePolicyCheck:
		level = slog.LevelDebug
	}
	l.slog.LogAttrs(context.Background(), level, string(evt.Type),
		slog.String("run_id", evt.RunID),
		slog.Any("data", evt.Data),
	)

	if l.eventLogPath != "" && (evt.Type == EventTypeCapabilityCall || evt.Type == EventTypeCapabilityResult) {
		data, err := json.Marshal(evt)
		if err != nil {
			l.slog.Warn("failed to marshal event", "type", evt.Type, "error", err)
			return
		}
		l.writeToFile(data)
	}
}

func (l *Logger) writeToFile(data []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.eventLogPath), 0755); err != nil {
		l.slog.Warn("failed to create event log directory", "error", err)
		return
	}

	info, err := os.Stat(l.eventLogPath)
	if err == nil && info.Size() > l.maxSize {
		l.rotateLogs()
	}

	f, err := os.OpenFile(l.eventLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		l.slog.Warn("failed to open event log", "path", l.eventLogPath, "error", err)
		return
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		l.slog.Warn("failed to write event log", "path", l.eventLogPath, "error", err)
	}
}

// rotateLogs keeps a single .old generation.
func (l *Logger) rotateLogs() {
	oldPath := l.eventLogPath + ".old"
	_ = os.Remove(oldPath)
	_ = os.Rename(l.eventLogPath, oldPath)
}

// Helper methods for common events

func (l *Logger) LogCompile(task string, steps, instructions int) {
	l.Log(Event{
		Type: EventTypeCompile,
		Data: map[string]any{
			"task":         task,
			"steps":        steps,
			"instructions": instructions,
		},
	})
}

func (l *Logger) LogRunStart(runID, task string, instructions int) {
	l.Log(Event{
		Type:  EventTypeRunStart,
		RunID: runID,
		Data: map[string]any{
			"task":         task,
			"instructions": instructions,
		},
	})
}

func (l *Logger) LogRunEnd(runID, state string, pc int, errMsg string, duration time.Duration) {
	data := map[string]any{
		"state":       state,
		"pc":          pc,
		"duration_ms": duration.Milliseconds(),
	}
	if errMsg != "" {
		data["error"] = errMsg
	}
	l.Log(Event{
		Type:  EventTypeRunEnd,
		RunID: runID,
		Data:  data,
	})
}

func (l *Logger) LogCapabilityCall(runID, capability string, task map[string]any) {
	l.Log(Event{
		Type:  EventTypeCapabilityCall,
		RunID: runID,
		Data: map[string]any{
			"capability": capability,
			"task":       task,
		},
	})
}

func (l *Logger) LogCapabilityResult(runID, capability string, failed bool, message string, duration time.Duration) {
	data := map[string]any{
		"capability":  capability,
		"ok":          !failed,
		"duration_ms": duration.Milliseconds(),
	}
	if failed {
		data["error"] = message
	}
	l.Log(Event{
		Type:  EventTypeCapabilityResult,
		RunID: runID,
		Data:  data,
	})
}

func (l *Logger) LogPolicyCheck(runID, capability, effect, reason string) {
	l.Log(Event{
		Type:  EventTypePolicyCheck,
		RunID: runID,
		Data: map[string]string{
			"capability": capability,
			"effect":     effect,
			"reason":     reason,
		},
	})
}

func (l *Logger) LogHeartbeat(activeRuns int) {
	l.Log(Event{
		Type: EventTypeHeartbeat,
		Data: map[string]any{"status": "alive", "active_runs": activeRuns},
	})
}
