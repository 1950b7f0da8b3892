package capability

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/rahul/kriya/internal/governance"
	"github.com/rahul/kriya/internal/observability"
	"github.com/rahul/kriya/internal/session"
)

// Dispatcher is the VM side of the dispatch protocol: it resolves a
// capability, checks policy, and invokes the handler with its own copy of
// the task.
type Dispatcher struct {
	registry *Registry
	policy   governance.PolicyEngine
	logger   *observability.Logger
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithPolicy sets the policy consulted before every call.
func WithPolicy(policy governance.PolicyEngine) DispatcherOption {
	return func(d *Dispatcher) {
		d.policy = policy
	}
}

// WithLogger sets the event logger.
func WithLogger(logger *observability.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

func NewDispatcher(registry *Registry, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{registry: registry}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Registry returns the registry the dispatcher resolves names against.
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// Dispatch calls capability name. The only Go error it returns is
// *UnknownCapabilityError; every other failure is an Err result.
func (d *Dispatcher) Dispatch(ctx context.Context, runID, name string, task Task, mem *session.Memory) (Result, error) {
	handler, err := d.registry.Lookup(name)
	if err != nil {
		return Result{}, err
	}

	own := task.Clone()
	d.logger.LogCapabilityCall(runID, name, own.Clone())

	if d.policy != nil {
		args, _ := json.Marshal(own)
		decision, err := d.policy.Evaluate(ctx, governance.Request{
			Capability: name,
			Arguments:  string(args),
			Task:       own.Clone(),
			RunID:      runID,
		})
		if err != nil {
			res := Err("policy evaluation failed: %v", err)
			d.logger.LogCapabilityResult(runID, name, true, res.Error(), 0)
			return res, nil
		}
		d.logger.LogPolicyCheck(runID, name, string(decision.Effect), decision.Reason)
		if !decision.Allowed() {
			res := Err("denied by policy: %s", decision.Reason)
			d.logger.LogCapabilityResult(runID, name, true, res.Error(), 0)
			return res, nil
		}
	}

	start := time.Now()
	res := invoke(ctx, name, handler, own, mem)
	d.logger.LogCapabilityResult(runID, name, res.Failed(), res.Error(), time.Since(start))
	return res, nil
}

// invoke converts a handler panic into an Err result so a faulty plugin
// cannot take the run down with it.
func invoke(ctx context.Context, name string, h Handler, task Task, mem *session.Memory) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = Err("%s panicked: %v\n%s", name, r, debug.Stack())
		}
	}()
	return h.Invoke(ctx, task, mem)
}

// Describe renders the registry as "- name: description" lines, the form
// planners are given.
func Describe(r *Registry) string {
	var b strings.Builder
	for e := range r.List() {
		fmt.Fprintf(&b, "- %s: %s\n", e.Name, e.Description)
	}
	return b.String()
}
