package store

import "time"

// Queue statuses.
const (
	StatusPending = "pending"
	StatusRunning = "running"
	StatusDone    = "done"
)

// RunRecord is the persisted report of one scenario run. Value and Memory
// hold JSON.
type RunRecord struct {
	ID         string       `json:"id" yaml:"id"`
	Task       string       `json:"task" yaml:"task"`
	State      string       `json:"state" yaml:"state"`
	PC         int          `json:"pc" yaml:"pc"`
	Steps      int          `json:"steps" yaml:"steps"`
	ErrorKind  string       `json:"error_kind,omitempty" yaml:"error_kind,omitempty"`
	Error      string       `json:"error,omitempty" yaml:"error,omitempty"`
	Value      string       `json:"value,omitempty" yaml:"value,omitempty"`
	Memory     string       `json:"memory,omitempty" yaml:"memory,omitempty"`
	Scenario   string       `json:"scenario,omitempty" yaml:"scenario,omitempty"`
	Calls      []CallRecord `json:"calls,omitempty" yaml:"calls,omitempty"`
	StartedAt  time.Time    `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time    `json:"finished_at" yaml:"finished_at"`
}

// CallRecord is one capability dispatch of a run.
type CallRecord struct {
	Index      int    `json:"index" yaml:"index"`
	Capability string `json:"capability" yaml:"capability"`
	Failed     bool   `json:"failed" yaml:"failed"`
	Error      string `json:"error,omitempty" yaml:"error,omitempty"`
	DurationMS int64  `json:"duration_ms" yaml:"duration_ms"`
}

// QueuedScenario is a scenario waiting for, or finished by, the worker.
type QueuedScenario struct {
	ID         int64     `json:"id" yaml:"id"`
	Task       string    `json:"task" yaml:"task"`
	Scenario   string    `json:"scenario" yaml:"scenario"`
	Status     string    `json:"status" yaml:"status"`
	RunID      string    `json:"run_id,omitempty" yaml:"run_id,omitempty"`
	State      string    `json:"state,omitempty" yaml:"state,omitempty"`
	EnqueuedAt time.Time `json:"enqueued_at" yaml:"enqueued_at"`
}
