// Package governance decides whether a capability call may proceed.
package governance

import (
	"context"
	"fmt"
	"regexp"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Effect defines the result of a policy evaluation.
type Effect string

const (
	EffectAllow Effect = "allow"
	EffectDeny  Effect = "deny"
)

// Request contains the context of a capability call to be evaluated.
type Request struct {
	Capability string
	Arguments  string         // task rendered as JSON
	Task       map[string]any // task as seen by the handler
	RunID      string
}

// Result contains the outcome of a policy evaluation.
type Result struct {
	Effect Effect
	Reason string
}

// Allowed reports whether the call may proceed.
func (r Result) Allowed() bool {
	return r.Effect == EffectAllow
}

// PolicyEngine evaluates capability calls against a set of rules.
type PolicyEngine interface {
	Evaluate(ctx context.Context, req Request) (Result, error)
}

type exprRule struct {
	source  string
	program *vm.Program
}

// DefaultPolicyEngine is a basic implementation of PolicyEngine.
type DefaultPolicyEngine struct {
	mu                 sync.RWMutex
	DeniedCapabilities map[string]bool
	DeniedRegex        []*regexp.Regexp
	rules              []exprRule
}

func NewDefaultPolicyEngine() *DefaultPolicyEngine {
	return &DefaultPolicyEngine{
		DeniedCapabilities: make(map[string]bool),
		DeniedRegex:        make([]*regexp.Regexp, 0),
	}
}

func (e *DefaultPolicyEngine) DenyCapability(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.DeniedCapabilities[name] = true
}

func (e *DefaultPolicyEngine) DenyArguments(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.DeniedRegex = append(e.DeniedRegex, re)
	return nil
}

// DenyWhen adds a boolean expr-lang rule. The expression sees `capability`
// (string), `task` (map) and `run_id` (string); a true result denies the call.
//
//	capability == "vcs_commit" && task.message == ""
func (e *DefaultPolicyEngine) DenyWhen(expression string) error {
	program, err := expr.Compile(expression, expr.Env(ruleEnv(Request{})), expr.AsBool())
	if err != nil {
		return fmt.Errorf("invalid policy rule %q: %w", expression, err)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = append(e.rules, exprRule{source: expression, program: program})
	return nil
}

func ruleEnv(req Request) map[string]any {
	task := req.Task
	if task == nil {
		task = map[string]any{}
	}
	return map[string]any{
		"capability": req.Capability,
		"task":       task,
		"run_id":     req.RunID,
	}
}

func (e *DefaultPolicyEngine) Evaluate(ctx context.Context, req Request) (Result, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.DeniedCapabilities[req.Capability] {
		return Result{
			Effect: EffectDeny,
			Reason: fmt.Sprintf("capability '%s' is restricted by system policy", req.Capability),
		}, nil
	}

	for _, re := range e.DeniedRegex {
		if re.MatchString(req.Arguments) {
			return Result{
				Effect: EffectDeny,
				Reason: fmt.Sprintf("arguments match restricted pattern: %s", re.String()),
			}, nil
		}
	}

	if len(e.rules) > 0 {
		env := ruleEnv(req)
		for _, rule := range e.rules {
			out, err := expr.Run(rule.program, env)
			if err != nil {
				return Result{}, fmt.Errorf("evaluating policy rule %q: %w", rule.source, err)
			}
			if deny, _ := out.(bool); deny {
				return Result{
					Effect: EffectDeny,
					Reason: fmt.Sprintf("matched policy rule: %s", rule.source),
				}, nil
			}
		}
	}

	return Result{
		Effect: EffectAllow,
		Reason: "approved by default policy",
	}, nil
}
