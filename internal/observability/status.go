package observability

import (
	"sort"
	"sync"
	"time"
)

// RunStatus describes one in-flight run.
type RunStatus struct {
	RunID     string    `json:"run_id"`
	Task      string    `json:"task"`
	StartedAt time.Time `json:"started_at"`
}

// Status tracks the runs currently executing in this process.
type Status struct {
	mu            sync.RWMutex
	active        map[string]RunStatus
	lastHeartbeat time.Time
}

func NewStatus() *Status {
	return &Status{
		active:        make(map[string]RunStatus),
		lastHeartbeat: time.Now(),
	}
}

// Begin records a run as active.
func (s *Status) Begin(runID, task string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active[runID] = RunStatus{RunID: runID, Task: task, StartedAt: time.Now()}
}

// End removes a run from the active set.
func (s *Status) End(runID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, runID)
}

// Heartbeat updates the last heartbeat time.
func (s *Status) Heartbeat() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastHeartbeat = time.Now()
}

// Snapshot returns the active runs ordered by start time, and the last heartbeat.
func (s *Status) Snapshot() ([]RunStatus, time.Time) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := make([]RunStatus, 0, len(s.active))
	for _, r := range s.active {
		runs = append(runs, r)
	}
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAt.Before(runs[j].StartedAt)
	})
	return runs, s.lastHeartbeat
}

// Active returns the number of in-flight runs.
func (s *Status) Active() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.active)
}
