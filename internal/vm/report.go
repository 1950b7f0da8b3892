package vm

import (
	"time"

	"github.com/rahul/kriya/internal/session"
)

// Call records one capability dispatch.
type Call struct {
	Index      int           `json:"index" yaml:"index"`
	Capability string        `json:"capability" yaml:"capability"`
	Failed     bool          `json:"failed" yaml:"failed"`
	Error      string        `json:"error,omitempty" yaml:"error,omitempty"`
	Duration   time.Duration `json:"duration" yaml:"duration"`
}

// Report is the outcome of a run: the terminal state, the last computed
// value or the error with the instruction index where it occurred, and the
// final memory snapshot.
type Report struct {
	RunID      string          `json:"run_id" yaml:"run_id"`
	State      State           `json:"state" yaml:"state"`
	Value      any             `json:"value,omitempty" yaml:"value,omitempty"`
	Err        error           `json:"-" yaml:"-"`
	Message    string          `json:"error,omitempty" yaml:"error,omitempty"`
	ErrorKind  string          `json:"error_kind,omitempty" yaml:"error_kind,omitempty"`
	PC         int             `json:"pc" yaml:"pc"`
	Steps      int             `json:"steps" yaml:"steps"`
	Memory     []session.Entry `json:"memory" yaml:"memory"`
	Calls      []Call          `json:"calls,omitempty" yaml:"calls,omitempty"`
	StartedAt  time.Time       `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time       `json:"finished_at" yaml:"finished_at"`
}

// Duration returns the wall time of the run.
func (r *Report) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Succeeded reports whether the run completed.
func (r *Report) Succeeded() bool {
	return r.State == Completed
}

// Bindings returns the final memory as a map.
func (r *Report) Bindings() map[string]any {
	out := make(map[string]any, len(r.Memory))
	for _, e := range r.Memory {
		out[e.Key] = e.Value
	}
	return out
}
