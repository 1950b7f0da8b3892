package ir

import "fmt"

// UnresolvedLabelError reports a jump to an undeclared label or a label
// declared twice.
type UnresolvedLabelError struct {
	Label  string
	Index  int
	Reason string
}

func NewUnresolvedLabelError(label string, index int, reason string) *UnresolvedLabelError {
	return &UnresolvedLabelError{Label: label, Index: index, Reason: reason}
}

func (e *UnresolvedLabelError) Error() string {
	return fmt.Sprintf("instruction %d: label %q %s", e.Index, e.Label, e.Reason)
}

// MalformedInstructionError reports an instruction that cannot be loaded.
type MalformedInstructionError struct {
	Index  int
	Op     Opcode
	Reason string
}

func NewMalformedInstructionError(index int, op Opcode, reason string) *MalformedInstructionError {
	return &MalformedInstructionError{Index: index, Op: op, Reason: reason}
}

func (e *MalformedInstructionError) Error() string {
	return fmt.Sprintf("instruction %d (%s): %s", e.Index, e.Op, e.Reason)
}

// SyntaxError reports a line of program text that does not parse.
type SyntaxError struct {
	Line int
	Text string
	Msg  string
}

func NewSyntaxError(line int, text, msg string) *SyntaxError {
	return &SyntaxError{Line: line, Text: text, Msg: msg}
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("line %d: %s: %q", e.Line, e.Msg, e.Text)
}

// Index returns the instruction index an error refers to, or -1.
func Index(err error) int {
	switch e := err.(type) {
	case *UnresolvedLabelError:
		return e.Index
	case *MalformedInstructionError:
		return e.Index
	default:
		return -1
	}
}
