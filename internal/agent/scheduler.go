package agent

import (
	"context"
	"log/slog"
	"time"

	"github.com/rahul/kriya/internal/scenario"
	"github.com/rahul/kriya/internal/store"
)

// DefaultPollInterval is how often the scheduler checks the queue.
const DefaultPollInterval = 30 * time.Second

// StateInvalid marks a queue entry whose scenario text did not parse.
const StateInvalid = "invalid_scenario"

// QueueStore is the queue side of the history store.
type QueueStore interface {
	PendingScenarios(ctx context.Context, limit int) ([]store.QueuedScenario, error)
	Claim(ctx context.Context, id int64) (bool, error)
	MarkDone(ctx context.Context, id int64, runID, state string) error
}

// Scheduler works off queued scenarios.
type Scheduler struct {
	Runner   *Runner
	Queue    QueueStore
	Interval time.Duration
	Options  RunOptions
}

func NewScheduler(runner *Runner, queue QueueStore, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Scheduler{
		Runner:   runner,
		Queue:    queue,
		Interval: interval,
	}
}

// Start polls the queue until ctx is cancelled. The first poll happens
// immediately.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	slog.Info("scenario scheduler started", "interval", s.Interval)
	s.Poll(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("scenario scheduler stopped")
			return
		case <-ticker.C:
			s.heartbeat()
			s.Poll(ctx)
		}
	}
}

// Poll runs every pending scenario once, oldest first, and returns how
// many it processed.
func (s *Scheduler) Poll(ctx context.Context) int {
	pending, err := s.Queue.PendingScenarios(ctx, 0)
	if err != nil {
		slog.Error("failed to poll scenario queue", "error", err)
		return 0
	}

	processed := 0
	for _, q := range pending {
		if ctx.Err() != nil {
			break
		}
		claimed, err := s.Queue.Claim(ctx, q.ID)
		if err != nil {
			slog.Error("failed to claim queued scenario", "id", q.ID, "error", err)
			continue
		}
		if !claimed {
			continue
		}
		s.execute(ctx, q)
		processed++
	}
	return processed
}

func (s *Scheduler) execute(ctx context.Context, q store.QueuedScenario) {
	// Bookkeeping must land even when shutdown interrupts the run.
	bg := context.WithoutCancel(ctx)

	sc, err := scenario.Parse(q.Scenario)
	if err != nil {
		slog.Warn("queued scenario does not parse", "id", q.ID, "error", err)
		if err := s.Queue.MarkDone(bg, q.ID, "", StateInvalid); err != nil {
			slog.Error("failed to mark queued scenario", "id", q.ID, "error", err)
		}
		return
	}

	opts := s.Options
	if opts.Task == "" && sc.Task() == "" {
		opts.Task = q.Task
	}

	slog.Info("executing queued scenario", "id", q.ID, "task", q.Task)
	report, err := s.Runner.RunScenario(ctx, sc, opts)
	if err != nil {
		slog.Error("queued scenario failed to run", "id", q.ID, "error", err)
	}
	if report == nil {
		// Could not start: leave a trace rather than retrying forever.
		if err := s.Queue.MarkDone(bg, q.ID, "", StateInvalid); err != nil {
			slog.Error("failed to mark queued scenario", "id", q.ID, "error", err)
		}
		return
	}

	if err := s.Queue.MarkDone(bg, q.ID, report.RunID, report.State.String()); err != nil {
		slog.Error("failed to mark queued scenario", "id", q.ID, "error", err)
	}
	slog.Info("queued scenario finished", "id", q.ID, "run_id", report.RunID, "state", report.State)
}

func (s *Scheduler) heartbeat() {
	active := 0
	if st := s.Runner.Status; st != nil {
		st.Heartbeat()
		active = st.Active()
	}
	s.Runner.Logger.LogHeartbeat(active)
}
