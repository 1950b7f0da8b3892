package ir

import (
	"fmt"
	"math"
)

// Instruction is one opcode with its operands.
type Instruction struct {
	Op       Opcode
	Operands []Value
}

// Program is an ordered instruction sequence. A program is owned by a
// single run and is not modified once handed to a machine.
type Program []Instruction

func New(op Opcode, operands ...Value) Instruction {
	return Instruction{Op: op, Operands: operands}
}

func Push(v any) Instruction       { return New(OpPush, FromAny(v)) }
func Store(name string) Instruction { return New(OpStore, String(name)) }
func Load(name string) Instruction  { return New(OpLoad, String(name)) }
func Del(name string) Instruction   { return New(OpDel, String(name)) }
func Label(name string) Instruction { return New(OpLabel, String(name)) }
func Jmp(label string) Instruction  { return New(OpJmp, String(label)) }
func Jz(label string) Instruction   { return New(OpJz, String(label)) }
func Func(name string) Instruction  { return New(OpFunc, String(name)) }
func Ret() Instruction              { return New(OpRet) }
func Pop() Instruction              { return New(OpPop) }
func Add() Instruction              { return New(OpAdd) }
func Sub() Instruction              { return New(OpSub) }
func Mul() Instruction              { return New(OpMul) }
func Div() Instruction              { return New(OpDiv) }

// Call calls a subroutine or capability with argc arguments.
func Call(name string, argc int) Instruction {
	if argc == 0 {
		return New(OpCall, String(name))
	}
	return New(OpCall, String(name), Number(float64(argc)))
}

// Nop is a placeholder; note, when non-empty, is kept for inspection.
func Nop(note string) Instruction {
	if note == "" {
		return New(OpNop)
	}
	return New(OpNop, String(note))
}

// Name returns the first operand as a name, or "" when there is none.
func (in Instruction) Name() string {
	if len(in.Operands) == 0 {
		return ""
	}
	s, _ := in.Operands[0].Text()
	return s
}

// MaxArgc bounds the argument count of a CALL.
const MaxArgc = math.MaxInt32

// Argc returns the argument count of a CALL.
func (in Instruction) Argc() int {
	if in.Op != OpCall || len(in.Operands) < 2 {
		return 0
	}
	n, _ := in.Operands[1].Num()
	return int(n)
}

// Validate checks the operand count and operand kinds against the opcode
// table.
func (in Instruction) Validate() error {
	if !in.Op.Valid() {
		return fmt.Errorf("unknown opcode %s", in.Op)
	}
	info := in.Op.Info()
	if n := len(in.Operands); n < info.MinOperands() || n > info.MaxOperands() {
		if info.MinOperands() == info.MaxOperands() {
			return fmt.Errorf("%s takes %d operand(s), got %d", in.Op, info.MaxOperands(), n)
		}
		return fmt.Errorf("%s takes %d to %d operands, got %d", in.Op, info.MinOperands(), info.MaxOperands(), n)
	}
	for i, v := range in.Operands {
		switch info.Operands[i] {
		case OperandName:
			if s, ok := v.Text(); !ok || s == "" {
				return fmt.Errorf("%s operand %d must be a non-empty name", in.Op, i+1)
			}
		case OperandNote:
			if _, ok := v.Text(); !ok {
				return fmt.Errorf("%s operand %d must be a string", in.Op, i+1)
			}
		case OperandCount:
			n, ok := v.Num()
			if !ok || n < 0 || n != math.Trunc(n) {
				return fmt.Errorf("%s operand %d must be a non-negative integer", in.Op, i+1)
			}
			if n > MaxArgc {
				return fmt.Errorf("%s operand %d exceeds the maximum argument count %d", in.Op, i+1, MaxArgc)
			}
		}
	}
	return nil
}

// Subroutine locates a FUNC body: Entry is the FUNC instruction, Body the
// first instruction of the body and End the RET that closes it.
type Subroutine struct {
	Name  string
	Entry int
	Body  int
	End   int
}

// Layout is a program's resolved label and subroutine table.
type Layout struct {
	Labels map[string]int
	Funcs  map[string]Subroutine
}

// Target returns the offset of label.
func (l *Layout) Target(label string) (int, bool) {
	pc, ok := l.Labels[label]
	return pc, ok
}

// Func returns the subroutine named name.
func (l *Layout) Func(name string) (Subroutine, bool) {
	fn, ok := l.Funcs[name]
	return fn, ok
}

// Resolve validates a program and builds its layout. Every label must be
// declared exactly once and every jump must target a declared label. A
// subroutine body runs from its FUNC to the first following RET; FUNC
// cannot nest.
func Resolve(p Program) (*Layout, error) {
	layout := &Layout{
		Labels: make(map[string]int),
		Funcs:  make(map[string]Subroutine),
	}

	open := -1
	for i, in := range p {
		if err := in.Validate(); err != nil {
			return nil, NewMalformedInstructionError(i, in.Op, err.Error())
		}
		switch in.Op {
		case OpLabel:
			if _, dup := layout.Labels[in.Name()]; dup {
				return nil, NewUnresolvedLabelError(in.Name(), i, "declared more than once")
			}
			layout.Labels[in.Name()] = i
		case OpFunc:
			if open >= 0 {
				return nil, NewMalformedInstructionError(i, in.Op, fmt.Sprintf("nested inside FUNC %s", p[open].Name()))
			}
			if _, dup := layout.Funcs[in.Name()]; dup {
				return nil, NewMalformedInstructionError(i, in.Op, fmt.Sprintf("subroutine %s declared more than once", in.Name()))
			}
			open = i
		case OpRet:
			if open >= 0 {
				layout.Funcs[p[open].Name()] = Subroutine{Name: p[open].Name(), Entry: open, Body: open + 1, End: i}
				open = -1
			}
		}
	}
	if open >= 0 {
		return nil, NewMalformedInstructionError(open, OpFunc, "missing RET")
	}

	for i, in := range p {
		if in.Op != OpJmp && in.Op != OpJz {
			continue
		}
		if _, ok := layout.Labels[in.Name()]; !ok {
			return nil, NewUnresolvedLabelError(in.Name(), i, "not declared")
		}
	}
	return layout, nil
}
