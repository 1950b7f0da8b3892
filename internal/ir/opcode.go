// Package ir defines the instruction set scenarios compile down to: a closed
// opcode vocabulary, the values a program manipulates, label resolution and
// the line-oriented text form.
package ir

import (
	"fmt"
	"strings"
)

// Opcode identifies a single IR instruction.
type Opcode uint8

// Stack and memory
const (
	OpInvalid Opcode = iota
	OpPush           // push literal
	OpPop            // discard top of stack
	OpStore          // pop into a memory binding
	OpLoad           // push a memory binding
	OpDel            // delete a memory binding
)

// Arithmetic
const (
	OpAdd Opcode = iota + 0x10
	OpSub
	OpMul
	OpDiv
)

// Control flow
const (
	OpLabel Opcode = iota + 0x20 // marker resolved at load time
	OpJmp                        // unconditional jump to label
	OpJz                         // pop, jump to label if falsy
	OpCall                       // call subroutine or capability
	OpFunc                       // subroutine entry point
	OpRet                        // return top of stack
	OpNop                        // placeholder, optional note
)

// OperandKind describes what an operand slot holds.
type OperandKind uint8

const (
	OperandNone    OperandKind = iota
	OperandLiteral             // JSON literal
	OperandName                // variable, label, subroutine or capability name
	OperandCount               // non-negative integer
	OperandNote                // free-form string
)

// OpcodeInfo holds metadata about an opcode.
type OpcodeInfo struct {
	Name        string        // mnemonic used in the text form
	Operands    []OperandKind // operand slots, in order
	Optional    int           // trailing slots that may be omitted
	StackEffect int           // net effect on the stack (-1 = variable)
}

// MinOperands returns the number of operands that must be present.
func (i OpcodeInfo) MinOperands() int {
	return len(i.Operands) - i.Optional
}

// MaxOperands returns the number of operand slots.
func (i OpcodeInfo) MaxOperands() int {
	return len(i.Operands)
}

var opcodeTable = map[Opcode]OpcodeInfo{
	OpPush:  {"PUSH", []OperandKind{OperandLiteral}, 0, 1},
	OpPop:   {"POP", nil, 0, -1},
	OpStore: {"STORE", []OperandKind{OperandName}, 0, -1},
	OpLoad:  {"LOAD", []OperandKind{OperandName}, 0, 1},
	OpDel:   {"DEL", []OperandKind{OperandName}, 0, 0},

	OpAdd: {"ADD", nil, 0, -1},
	OpSub: {"SUB", nil, 0, -1},
	OpMul: {"MUL", nil, 0, -1},
	OpDiv: {"DIV", nil, 0, -1},

	OpLabel: {"LABEL", []OperandKind{OperandName}, 0, 0},
	OpJmp:   {"JMP", []OperandKind{OperandName}, 0, 0},
	OpJz:    {"JZ", []OperandKind{OperandName}, 0, -1},
	OpCall:  {"CALL", []OperandKind{OperandName, OperandCount}, 1, -1}, // pops argc (subroutine) or 2*argc (capability)
	OpFunc:  {"FUNC", []OperandKind{OperandName}, 0, 0},
	OpRet:   {"RET", nil, 0, -1},
	OpNop:   {"NOP", []OperandKind{OperandNote}, 1, 0},
}

var opcodeByName = func() map[string]Opcode {
	m := make(map[string]Opcode, len(opcodeTable))
	for op, info := range opcodeTable {
		m[info.Name] = op
	}
	return m
}()

// Info returns the metadata for an opcode.
func (op Opcode) Info() OpcodeInfo {
	if info, ok := opcodeTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN_%02X", byte(op))}
}

// Valid reports whether op is part of the instruction set.
func (op Opcode) Valid() bool {
	_, ok := opcodeTable[op]
	return ok
}

// IsArithmetic reports whether op is one of ADD, SUB, MUL, DIV.
func (op Opcode) IsArithmetic() bool {
	return op >= OpAdd && op <= OpDiv
}

func (op Opcode) String() string {
	return op.Info().Name
}

// LookupOpcode resolves a mnemonic, case-insensitively.
func LookupOpcode(name string) (Opcode, bool) {
	op, ok := opcodeByName[strings.ToUpper(name)]
	return op, ok
}

// Opcodes returns every opcode in numeric order.
func Opcodes() []Opcode {
	var out []Opcode
	for op := Opcode(0); op < 0x30; op++ {
		if op.Valid() {
			out = append(out, op)
		}
	}
	return out
}
