package vm

import (
	"errors"
	"fmt"

	"github.com/rahul/kriya/internal/capability"
	"github.com/rahul/kriya/internal/ir"
)

// ErrAlreadyStarted is returned by Run on a machine that has left Ready.
var ErrAlreadyStarted = errors.New("vm: machine already started")

// UnboundVariableError is raised by LOAD of a name with no binding.
type UnboundVariableError struct {
	Name string
}

func NewUnboundVariableError(name string) *UnboundVariableError {
	return &UnboundVariableError{Name: name}
}

func (e *UnboundVariableError) Error() string {
	return fmt.Sprintf("unbound variable %q", e.Name)
}

// DivisionByZeroError is raised by DIV with a zero divisor.
type DivisionByZeroError struct {
	Numerator float64
}

func NewDivisionByZeroError(numerator float64) *DivisionByZeroError {
	return &DivisionByZeroError{Numerator: numerator}
}

func (e *DivisionByZeroError) Error() string {
	return fmt.Sprintf("division by zero (%g / 0)", e.Numerator)
}

// TypeMismatchError is raised when an operand has the wrong kind.
type TypeMismatchError struct {
	Op       ir.Opcode
	Expected ir.Kind
	Got      ir.Kind
}

func NewTypeMismatchError(op ir.Opcode, expected, got ir.Kind) *TypeMismatchError {
	return &TypeMismatchError{Op: op, Expected: expected, Got: got}
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("%s: expected %s operand, got %s", e.Op, e.Expected, e.Got)
}

// StackUnderflowError is raised when an instruction needs more operands
// than the current frame holds.
type StackUnderflowError struct {
	Op   ir.Opcode
	Need int
	Have int
}

func NewStackUnderflowError(op ir.Opcode, need, have int) *StackUnderflowError {
	return &StackUnderflowError{Op: op, Need: need, Have: have}
}

func (e *StackUnderflowError) Error() string {
	return fmt.Sprintf("%s: stack underflow (need %d, have %d)", e.Op, e.Need, e.Have)
}

// CapabilityError carries the message of a capability's Err result.
type CapabilityError struct {
	Capability string
	Message    string
}

func NewCapabilityError(name, message string) *CapabilityError {
	return &CapabilityError{Capability: name, Message: message}
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("%s: %s", e.Capability, e.Message)
}

// StepLimitError is raised when a run exceeds its configured step budget.
type StepLimitError struct {
	Limit int
}

func NewStepLimitError(limit int) *StepLimitError {
	return &StepLimitError{Limit: limit}
}

func (e *StepLimitError) Error() string {
	return fmt.Sprintf("step limit of %d exceeded", e.Limit)
}

// ErrorKind names the type of a run error for reports.
func ErrorKind(err error) string {
	var (
		unbound   *UnboundVariableError
		divZero   *DivisionByZeroError
		mismatch  *TypeMismatchError
		underflow *StackUnderflowError
		capErr    *CapabilityError
		steps     *StepLimitError
		unknown   *capability.UnknownCapabilityError
		label     *ir.UnresolvedLabelError
		malformed *ir.MalformedInstructionError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &unbound):
		return "UnboundVariableError"
	case errors.As(err, &divZero):
		return "DivisionByZeroError"
	case errors.As(err, &mismatch):
		return "TypeMismatchError"
	case errors.As(err, &underflow):
		return "StackUnderflowError"
	case errors.As(err, &capErr):
		return "CapabilityError"
	case errors.As(err, &steps):
		return "StepLimitError"
	case errors.As(err, &unknown):
		return "UnknownCapabilityError"
	case errors.As(err, &label):
		return "UnresolvedLabelError"
	case errors.As(err, &malformed):
		return "MalformedInstructionError"
	default:
		return "Error"
	}
}
