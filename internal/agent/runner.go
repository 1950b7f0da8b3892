// Package agent drives scenarios end to end: compiling plans, running them
// on the virtual machine, persisting reports and working off the queue.
package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rahul/kriya/internal/capability"
	"github.com/rahul/kriya/internal/observability"
	"github.com/rahul/kriya/internal/scenario"
	"github.com/rahul/kriya/internal/session"
	"github.com/rahul/kriya/internal/store"
	"github.com/rahul/kriya/internal/vm"
	"golang.org/x/sync/errgroup"
)

// DefaultMaxConcurrentRuns bounds RunAll when the runner leaves it unset.
const DefaultMaxConcurrentRuns = 4

// RunStore persists finished runs.
type RunStore interface {
	SaveRun(ctx context.Context, r store.RunRecord) error
}

// RunOptions configures a single scenario run.
type RunOptions struct {
	// Vars seed the run's fresh memory.
	Vars            map[string]any
	ContinueOnError bool
	MaxSteps        int
	// Task overrides the scenario's task description in logs and records.
	Task string
}

// Runner executes compiled scenarios against a shared capability registry.
// Each run gets its own machine and memory; the registry and dispatcher are
// shared.
type Runner struct {
	Registry          *capability.Registry
	Dispatcher        *capability.Dispatcher
	Store             RunStore
	Logger            *observability.Logger
	Status            *observability.Status
	MaxConcurrentRuns int
}

func NewRunner(dispatcher *capability.Dispatcher, runs RunStore, logger *observability.Logger) *Runner {
	return &Runner{
		Registry:          dispatcher.Registry(),
		Dispatcher:        dispatcher,
		Store:             runs,
		Logger:            logger,
		Status:            observability.NewStatus(),
		MaxConcurrentRuns: DefaultMaxConcurrentRuns,
	}
}

// Compile turns a plan into a scenario named after the plan's task.
func (r *Runner) Compile(plan *scenario.Plan) *scenario.Scenario {
	task := ""
	if plan != nil {
		task = plan.Task
	}
	sc := scenario.Compile(plan, task)
	r.Logger.LogCompile(sc.Task(), len(sc.Steps()), len(sc.Program()))
	return sc
}

// RunScenario executes sc to a terminal state. The returned error is only
// set when the run could not be started or its record could not be saved;
// run failures are described by the report.
func (r *Runner) RunScenario(ctx context.Context, sc *scenario.Scenario, opts RunOptions) (*vm.Report, error) {
	task := opts.Task
	if task == "" {
		task = sc.Task()
	}

	mem := session.NewMemory()
	mem.Seed(opts.Vars)

	m := vm.New(sc.Program(), r.Dispatcher,
		vm.WithMemory(mem),
		vm.WithContinueOnError(opts.ContinueOnError),
		vm.WithMaxSteps(opts.MaxSteps),
		vm.WithLogger(r.Logger),
		vm.WithTask(task),
	)

	if r.Status != nil {
		r.Status.Begin(m.RunID(), task)
		defer r.Status.End(m.RunID())
	}

	report, err := m.Run(ctx)
	if err != nil {
		return nil, err
	}

	if r.Store != nil {
		rec, err := NewRunRecord(task, sc, report)
		if err != nil {
			return report, err
		}
		// The record is written even when the run was aborted.
		if err := r.Store.SaveRun(context.WithoutCancel(ctx), rec); err != nil {
			return report, fmt.Errorf("failed to save run %s: %w", report.RunID, err)
		}
	}
	return report, nil
}

// RunAll runs independent scenarios concurrently, at most
// MaxConcurrentRuns at a time. Reports are returned in input order; the
// error is the first infrastructure error encountered.
func (r *Runner) RunAll(ctx context.Context, scenarios []*scenario.Scenario, opts RunOptions) ([]*vm.Report, error) {
	var g errgroup.Group
	limit := r.MaxConcurrentRuns
	if limit <= 0 {
		limit = DefaultMaxConcurrentRuns
	}
	g.SetLimit(limit)

	reports := make([]*vm.Report, len(scenarios))
	for i, sc := range scenarios {
		g.Go(func() error {
			rep, err := r.RunScenario(ctx, sc, opts)
			reports[i] = rep
			return err
		})
	}
	err := g.Wait()
	return reports, err
}

// NewRunRecord converts a report into its persisted form.
func NewRunRecord(task string, sc *scenario.Scenario, rep *vm.Report) (store.RunRecord, error) {
	rec := store.RunRecord{
		ID:         rep.RunID,
		Task:       task,
		State:      rep.State.String(),
		PC:         rep.PC,
		Steps:      rep.Steps,
		ErrorKind:  rep.ErrorKind,
		Error:      rep.Message,
		StartedAt:  rep.StartedAt,
		FinishedAt: rep.FinishedAt,
	}
	if sc != nil {
		rec.Scenario = sc.Text()
	}
	if rep.Value != nil {
		data, err := json.Marshal(rep.Value)
		if err != nil {
			return rec, fmt.Errorf("failed to encode value of run %s: %w", rep.RunID, err)
		}
		rec.Value = string(data)
	}
	mem, err := json.Marshal(rep.Memory)
	if err != nil {
		return rec, fmt.Errorf("failed to encode memory of run %s: %w", rep.RunID, err)
	}
	rec.Memory = string(mem)

	for _, c := range rep.Calls {
		rec.Calls = append(rec.Calls, store.CallRecord{
			Index:      c.Index,
			Capability: c.Capability,
			Failed:     c.Failed,
			Error:      c.Error,
			DurationMS: c.Duration.Milliseconds(),
		})
	}
	return rec, nil
}
