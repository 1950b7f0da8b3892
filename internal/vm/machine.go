// Package vm implements the stack machine that executes scenario programs.
// A Machine runs one program once: instructions execute strictly in order
// against an operand stack, a call stack and the run's session memory, and
// CALL blocks for the duration of the capability it dispatches.
package vm

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rahul/kriya/internal/capability"
	"github.com/rahul/kriya/internal/ir"
	"github.com/rahul/kriya/internal/observability"
	"github.com/rahul/kriya/internal/session"
)

type frame struct {
	name   string
	ret    int
	values []ir.Value
}

func (f *frame) push(v ir.Value) {
	f.values = append(f.values, v)
}

// top returns the n topmost values, deepest first, without popping them.
func (f *frame) top(n int) []ir.Value {
	return f.values[len(f.values)-n:]
}

func (f *frame) drop(n int) {
	f.values = f.values[:len(f.values)-n]
}

// Machine executes a single program.
type Machine struct {
	program    ir.Program
	dispatcher *capability.Dispatcher
	memory     *session.Memory
	logger     *observability.Logger

	runID           string
	task            string
	continueOnError bool
	maxSteps        int

	mu     sync.Mutex
	state  State
	report *Report

	layout *ir.Layout
	frames []*frame
	last   *ir.Value
	calls  []Call
}

// Option configures a Machine.
type Option func(*Machine)

// WithMemory runs against mem instead of a fresh memory. The caller must
// not share mem with another running machine.
func WithMemory(mem *session.Memory) Option {
	return func(m *Machine) {
		m.memory = mem
	}
}

// WithContinueOnError makes failed capability results flow onto the stack
// like successful ones instead of halting the run. VM faults still halt.
func WithContinueOnError(enabled bool) Option {
	return func(m *Machine) {
		m.continueOnError = enabled
	}
}

func WithLogger(l *observability.Logger) Option {
	return func(m *Machine) {
		m.logger = l
	}
}

func WithRunID(id string) Option {
	return func(m *Machine) {
		if id != "" {
			m.runID = id
		}
	}
}

// WithTask labels the run with its task description in events.
func WithTask(task string) Option {
	return func(m *Machine) {
		m.task = task
	}
}

// WithMaxSteps halts the run after n executed instructions. Zero disables
// the limit.
func WithMaxSteps(n int) Option {
	return func(m *Machine) {
		m.maxSteps = n
	}
}

// New loads program into a machine in the Ready state. dispatcher may be
// nil for programs that make no capability calls.
func New(program ir.Program, dispatcher *capability.Dispatcher, opts ...Option) *Machine {
	m := &Machine{
		program:    program,
		dispatcher: dispatcher,
		runID:      uuid.NewString(),
		state:      Ready,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.memory == nil {
		m.memory = session.NewMemory()
	}
	return m
}

func (m *Machine) RunID() string { return m.runID }

// Memory returns the run's session memory.
func (m *Machine) Memory() *session.Memory { return m.memory }

// State returns the current lifecycle state. Safe to call while Run is in
// progress.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Report returns the final report, or nil until the machine has finished.
func (m *Machine) Report() *Report {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.report
}

// Run executes the program to a terminal state. Cancelling ctx aborts the
// run at the next instruction boundary; a capability call already in
// flight is allowed to finish. Run fails with ErrAlreadyStarted on a
// machine that is not Ready; every other outcome is described by the
// report.
func (m *Machine) Run(ctx context.Context) (*Report, error) {
	m.mu.Lock()
	if m.state != Ready {
		m.mu.Unlock()
		return nil, ErrAlreadyStarted
	}
	m.state = Running
	m.mu.Unlock()

	started := time.Now()
	m.logger.LogRunStart(m.runID, m.task, len(m.program))

	state, pc, steps, err := m.execute(ctx)

	report := &Report{
		RunID:      m.runID,
		State:      state,
		Err:        err,
		ErrorKind:  ErrorKind(err),
		PC:         pc,
		Steps:      steps,
		Memory:     m.memory.List(),
		Calls:      m.calls,
		StartedAt:  started,
		FinishedAt: time.Now(),
	}
	if err != nil {
		report.Message = err.Error()
	}
	if state == Completed && m.last != nil {
		report.Value = m.last.Any()
	}

	m.mu.Lock()
	m.state = state
	m.report = report
	m.mu.Unlock()

	m.logger.LogRunEnd(m.runID, state.String(), pc, report.Message, report.Duration())
	return report, nil
}

func (m *Machine) execute(ctx context.Context) (State, int, int, error) {
	layout, err := ir.Resolve(m.program)
	if err != nil {
		return HaltedOnError, max(ir.Index(err), 0), 0, err
	}
	m.layout = layout
	m.frames = []*frame{{name: "main", ret: -1}}

	pc, steps := 0, 0
	for pc < len(m.program) {
		if ctx.Err() != nil {
			return Aborted, pc, steps, nil
		}
		if m.maxSteps > 0 && steps >= m.maxSteps {
			return HaltedOnError, pc, steps, NewStepLimitError(m.maxSteps)
		}
		steps++

		next, done, err := m.step(ctx, pc)
		if err != nil {
			return HaltedOnError, pc, steps, err
		}
		if done {
			return Completed, pc, steps, nil
		}
		pc = next
	}
	return Completed, pc, steps, nil
}

func (m *Machine) current() *frame {
	return m.frames[len(m.frames)-1]
}

func (m *Machine) produce(v ir.Value) {
	m.current().push(v)
	m.last = &v
}

// step executes the instruction at pc and returns the next pc. done is set
// when RET leaves the outermost frame.
func (m *Machine) step(ctx context.Context, pc int) (next int, done bool, err error) {
	in := m.program[pc]
	f := m.current()
	next = pc + 1

	switch in.Op {
	case ir.OpPush:
		m.produce(in.Operands[0])

	case ir.OpPop:
		if len(f.values) < 1 {
			return 0, false, NewStackUnderflowError(in.Op, 1, 0)
		}
		f.drop(1)

	case ir.OpStore:
		if len(f.values) < 1 {
			return 0, false, NewStackUnderflowError(in.Op, 1, 0)
		}
		v := f.top(1)[0]
		f.drop(1)
		m.memory.Set(in.Name(), v.Any())

	case ir.OpLoad:
		v, ok := m.memory.Lookup(in.Name())
		if !ok {
			return 0, false, NewUnboundVariableError(in.Name())
		}
		m.produce(ir.FromAny(v))

	case ir.OpDel:
		m.memory.Delete(in.Name())

	case ir.OpAdd, ir.OpSub, ir.OpMul, ir.OpDiv:
		r, err := arithmetic(in.Op, f)
		if err != nil {
			return 0, false, err
		}
		f.drop(2)
		m.produce(ir.Number(r))

	case ir.OpLabel, ir.OpNop:

	case ir.OpJmp:
		next, _ = m.layout.Target(in.Name())

	case ir.OpJz:
		if len(f.values) < 1 {
			return 0, false, NewStackUnderflowError(in.Op, 1, 0)
		}
		v := f.top(1)[0]
		f.drop(1)
		if !v.Truthy() {
			next, _ = m.layout.Target(in.Name())
		}

	case ir.OpFunc:
		// Reached sequentially: the body only runs through CALL.
		fn, _ := m.layout.Func(in.Name())
		next = fn.End + 1

	case ir.OpCall:
		// A registered capability wins over a FUNC of the same name.
		if !m.isCapability(in.Name()) {
			if fn, ok := m.layout.Func(in.Name()); ok {
				return m.callSubroutine(in, fn, pc)
			}
		}
		if err := m.callCapability(ctx, in, pc); err != nil {
			return 0, false, err
		}

	case ir.OpRet:
		if len(f.values) < 1 {
			return 0, false, NewStackUnderflowError(in.Op, 1, 0)
		}
		v := f.top(1)[0]
		if len(m.frames) == 1 {
			f.drop(1)
			m.last = &v
			return pc, true, nil
		}
		m.frames = m.frames[:len(m.frames)-1]
		m.produce(v)
		next = f.ret

	default:
		return 0, false, ir.NewMalformedInstructionError(pc, in.Op, "unknown opcode")
	}
	return next, false, nil
}

// arithmetic validates and computes a binary operation without popping, so
// a faulting instruction leaves the stack untouched.
func arithmetic(op ir.Opcode, f *frame) (float64, error) {
	if len(f.values) < 2 {
		return 0, NewStackUnderflowError(op, 2, len(f.values))
	}
	operands := f.top(2)
	a, ok := operands[0].Num()
	if !ok {
		return 0, NewTypeMismatchError(op, ir.KindNumber, operands[0].Kind())
	}
	b, ok := operands[1].Num()
	if !ok {
		return 0, NewTypeMismatchError(op, ir.KindNumber, operands[1].Kind())
	}

	switch op {
	case ir.OpAdd:
		return a + b, nil
	case ir.OpSub:
		return a - b, nil
	case ir.OpMul:
		return a * b, nil
	default:
		if b == 0 {
			return 0, NewDivisionByZeroError(a)
		}
		return a / b, nil
	}
}

func (m *Machine) isCapability(name string) bool {
	return m.dispatcher != nil && m.dispatcher.Registry().Has(name)
}

// callSubroutine moves argc arguments onto a new frame and enters the body.
func (m *Machine) callSubroutine(in ir.Instruction, fn ir.Subroutine, pc int) (int, bool, error) {
	f := m.current()
	argc := in.Argc()
	if argc < 0 || argc > len(f.values) {
		return 0, false, NewStackUnderflowError(in.Op, argc, len(f.values))
	}
	callee := &frame{name: fn.Name, ret: pc + 1}
	callee.values = append(callee.values, f.top(argc)...)
	f.drop(argc)
	m.frames = append(m.frames, callee)
	return fn.Body, false, nil
}

// callCapability assembles a Task from argc key/value pairs and dispatches
// it. The handler runs detached from ctx cancellation so an in-flight
// external effect is never cut short.
func (m *Machine) callCapability(ctx context.Context, in ir.Instruction, pc int) error {
	f := m.current()
	name := in.Name()
	argc := in.Argc()
	if argc < 0 || argc > len(f.values)/2 {
		return NewStackUnderflowError(in.Op, 2*max(argc, 0), len(f.values))
	}

	pairs := f.top(2 * argc)
	task := make(capability.Task, argc)
	for i := 0; i < len(pairs); i += 2 {
		key, ok := pairs[i].Text()
		if !ok {
			return NewTypeMismatchError(in.Op, ir.KindString, pairs[i].Kind())
		}
		task[key] = pairs[i+1].Any()
	}

	if m.dispatcher == nil {
		return capability.NewUnknownCapabilityError(name)
	}

	start := time.Now()
	res, err := m.dispatcher.Dispatch(context.WithoutCancel(ctx), m.runID, name, task, m.memory)
	if err != nil {
		var unknown *capability.UnknownCapabilityError
		if errors.As(err, &unknown) {
			return err
		}
		return NewCapabilityError(name, err.Error())
	}
	f.drop(2 * argc)

	m.calls = append(m.calls, Call{
		Index:      pc,
		Capability: name,
		Failed:     res.Failed(),
		Error:      res.Error(),
		Duration:   time.Since(start),
	})
	if res.Failed() && !m.continueOnError {
		return NewCapabilityError(name, res.Error())
	}
	m.produce(ir.Ref(res))
	return nil
}
