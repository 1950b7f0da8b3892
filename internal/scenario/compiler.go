package scenario

import (
	"fmt"
	"slices"
	"sort"
	"strings"
	"unicode"

	"github.com/rahul/kriya/internal/ir"
)

// StepBlock is the part of a scenario generated for one plan step.
type StepBlock struct {
	Number      int    `json:"number" yaml:"number"`
	Description string `json:"description" yaml:"description"`
	// Start is the index of the block's first instruction.
	Start int `json:"start" yaml:"start"`
}

// Scenario is a compiled plan: per-step blocks over one program. It is not
// modified after construction.
type Scenario struct {
	task    string
	steps   []StepBlock
	program ir.Program
}

func (s *Scenario) Task() string { return s.task }

// Steps returns a copy of the step blocks in order.
func (s *Scenario) Steps() []StepBlock { return slices.Clone(s.steps) }

// Program returns a copy of the instruction sequence.
func (s *Scenario) Program() ir.Program { return slices.Clone(s.program) }

// Descriptions returns the step descriptions in order.
func (s *Scenario) Descriptions() []string {
	out := make([]string, len(s.steps))
	for i, b := range s.steps {
		out[i] = b.Description
	}
	return out
}

// StepLabel is the label marking the start of step n.
func StepLabel(n int) string {
	return fmt.Sprintf("step_%d", n)
}

// Compile turns a plan into a scenario. Every step is represented, in
// order: a step with a capability becomes a CALL whose result is stored,
// any other step a NOP placeholder awaiting completion. Compile never
// fails, and the same input always yields the same scenario.
func Compile(plan *Plan, taskDescription string) *Scenario {
	s := &Scenario{task: taskDescription}
	if plan == nil {
		return s
	}
	for i, step := range plan.Steps {
		n := i + 1
		s.steps = append(s.steps, StepBlock{
			Number:      n,
			Description: step.Description,
			Start:       len(s.program),
		})
		s.program = append(s.program, ir.Label(StepLabel(n)))
		s.program = append(s.program, compileStep(n, step)...)
	}
	return s
}

func compileStep(n int, step Step) []ir.Instruction {
	if !step.Actionable() {
		return []ir.Instruction{ir.Nop("pending: " + oneLine(step.Description))}
	}
	capName := strings.TrimSpace(step.Capability)
	if !isName(capName) {
		return []ir.Instruction{ir.Nop(fmt.Sprintf("pending: invalid capability name %q", capName))}
	}

	keys := make([]string, 0, len(step.Args))
	for k := range step.Args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []ir.Instruction
	for _, k := range keys {
		value := ir.FromAny(step.Args[k])
		if _, err := value.Literal(); err != nil {
			return []ir.Instruction{ir.Nop(fmt.Sprintf("pending: argument %q: %v", k, err))}
		}
		out = append(out, ir.Push(k), ir.Push(value))
	}

	target := step.Store
	if !isName(target) {
		target = StepLabel(n)
	}
	out = append(out, ir.Call(capName, len(keys)), ir.Store(target))
	return out
}

func isName(s string) bool {
	return s != "" && strings.IndexFunc(s, unicode.IsSpace) < 0
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
