package tools

import (
	"context"

	"github.com/rahul/kriya/internal/capability"
	"github.com/rahul/kriya/internal/ir"
	"github.com/rahul/kriya/internal/session"
)

// QueueStore accepts scenarios for later execution by a worker.
type QueueStore interface {
	Enqueue(ctx context.Context, task, scenario string) (int64, error)
}

// EnqueueTool lets a running scenario schedule a follow-up scenario. It is
// only registered when a run store is configured.
type EnqueueTool struct {
	Store QueueStore
}

func NewEnqueueTool(store QueueStore) *EnqueueTool {
	return &EnqueueTool{Store: store}
}

func (e *EnqueueTool) Name() string {
	return "scenario_enqueue"
}

func (e *EnqueueTool) Description() string {
	return "Queue a scenario (IR text) to be run later by the worker."
}

func (e *EnqueueTool) Parameters() map[string]any {
	return schema([]string{"task", "scenario"}, map[string]string{
		"task":     "Description of the queued scenario",
		"scenario": "Scenario text to run",
	})
}

func (e *EnqueueTool) Invoke(ctx context.Context, task capability.Task, mem *session.Memory) capability.Result {
	if res, ok := task.Require(e.Name(), "task", "scenario"); !ok {
		return res
	}
	desc, _ := task.String("task")
	text, _ := task.String("scenario")
	if _, err := ir.ParseProgram(text); err != nil {
		return capability.Err("invalid scenario: %v", err)
	}
	id, err := e.Store.Enqueue(ctx, desc, text)
	if err != nil {
		return capability.Err("failed to enqueue scenario: %v", err)
	}
	return capability.OK(map[string]any{"id": id})
}
