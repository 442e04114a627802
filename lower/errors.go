package lower

import (
	"errors"
	"fmt"

	"github.com/gogpu/memlower/message"
)

// Error is a fatal lowering diagnostic. Lowering of the function is
// abandoned and its body left unchanged.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Function names the function being lowered.
	Function string

	// Instruction is the body index of the offending operation, -1 when the
	// error is not tied to one.
	Instruction int

	err error
}

// ErrorCode categorizes lowering errors.
type ErrorCode string

const (
	// ErrCodeUnsupported indicates an address space or operation shape
	// lowering does not recognize.
	ErrCodeUnsupported ErrorCode = "UNSUPPORTED_OPERATION"

	// ErrCodeShapeMismatch indicates inconsistent widths between related
	// operands, an upstream bug.
	ErrCodeShapeMismatch ErrorCode = "SHAPE_MISMATCH"

	// ErrCodeNoSuchAtomicOp indicates an atomic function with no hardware
	// opcode.
	ErrCodeNoSuchAtomicOp ErrorCode = "NO_SUCH_ATOMIC_OP"
)

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Instruction >= 0 {
		return fmt.Sprintf("%s: %s (function=%s, instruction=%d)", e.Code, e.Message, e.Function, e.Instruction)
	}
	return fmt.Sprintf("%s: %s (function=%s)", e.Code, e.Message, e.Function)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.err
}

// IsUnsupported returns true if the error is an unsupported operation error.
// Uses errors.As to handle wrapped errors.
func IsUnsupported(err error) bool {
	return hasCode(err, ErrCodeUnsupported)
}

// IsShapeMismatch returns true if the error is a shape mismatch error.
func IsShapeMismatch(err error) bool {
	return hasCode(err, ErrCodeShapeMismatch)
}

// IsNoSuchAtomicOp returns true if the error is a missing atomic opcode error.
func IsNoSuchAtomicOp(err error) bool {
	return hasCode(err, ErrCodeNoSuchAtomicOp)
}

func hasCode(err error, code ErrorCode) bool {
	var le *Error
	if errors.As(err, &le) {
		return le.Code == code
	}
	return false
}

// diagnose converts a construction error into an Error.
func diagnose(function string, index int, err error) *Error {
	code := ErrCodeUnsupported
	switch {
	case errors.Is(err, message.ErrShapeMismatch):
		code = ErrCodeShapeMismatch
	case errors.Is(err, message.ErrNoSuchAtomicOp):
		code = ErrCodeNoSuchAtomicOp
	}
	return &Error{
		Code:        code,
		Message:     err.Error(),
		Function:    function,
		Instruction: index,
		err:         err,
	}
}
