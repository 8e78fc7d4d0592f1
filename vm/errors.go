package vm

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrKind enumerates the fatal and non-fatal error categories the VM and
// decoder can raise. Mirrors the teacher's flat sentinel errors
// (errProgramFinished, errSegmentationFault, errIllegalOperation, ...) but
// grouped under one comparable type so callers can errors.Is/As against a
// kind instead of a dozen package-level vars.
type ErrKind int

const (
	ErrTruncatedInput ErrKind = iota
	ErrUnknownChunk
	ErrUnknownOpcode
	ErrInvalidTypeCombination
	ErrDivisionByZero
	ErrStackOverflow
	ErrStackUnderflow
	ErrFrameOverflow
	ErrUnimplementedBuiltin
	ErrInvalidVariableAccess
	ErrCancelled
	ErrUnimplemented
)

func (k ErrKind) String() string {
	switch k {
	case ErrTruncatedInput:
		return "truncated input"
	case ErrUnknownChunk:
		return "unknown chunk"
	case ErrUnknownOpcode:
		return "unknown opcode"
	case ErrInvalidTypeCombination:
		return "invalid type combination"
	case ErrDivisionByZero:
		return "division by zero"
	case ErrStackOverflow:
		return "stack overflow"
	case ErrStackUnderflow:
		return "stack underflow"
	case ErrFrameOverflow:
		return "frame overflow"
	case ErrUnimplementedBuiltin:
		return "unimplemented builtin"
	case ErrInvalidVariableAccess:
		return "invalid variable access"
	case ErrCancelled:
		return "cancelled"
	case ErrUnimplemented:
		return "unimplemented"
	default:
		return "unknown error"
	}
}

// VMError is the single error type every fatal decoder/VM failure is
// expressed as. Op, PC and ScriptChain are filled in as the error unwinds
// back to the host so the top-level diagnostic required by spec §7 (failing
// opcode, PC offset, call chain of script names) can be printed in one line.
type VMError struct {
	Kind        ErrKind
	Op          string
	PC          uint32
	ScriptChain []string
	cause       error
}

func newVMError(kind ErrKind, op string) *VMError {
	return &VMError{Kind: kind, Op: op}
}

func (e *VMError) Error() string {
	msg := fmt.Sprintf("%s", e.Kind)
	if e.Op != "" {
		msg = fmt.Sprintf("%s at %s (pc=%d)", msg, e.Op, e.PC)
	}
	if len(e.ScriptChain) > 0 {
		msg = fmt.Sprintf("%s [call chain: %v]", msg, e.ScriptChain)
	}
	if e.cause != nil {
		msg = fmt.Sprintf("%s: %s", msg, e.cause)
	}
	return msg
}

func (e *VMError) Unwrap() error { return e.cause }

// Is lets callers do errors.Is(err, ErrStackOverflowErr)-style comparisons:
// any *VMError target matches when its Kind equals this error's Kind.
func (e *VMError) Is(target error) bool {
	if other, ok := target.(*VMError); ok {
		return e.Kind == other.Kind
	}
	return false
}

// WithPC attaches the program counter at the point of failure.
func (e *VMError) WithPC(pc uint32) *VMError {
	clone := *e
	clone.PC = pc
	return &clone
}

// WithScript prepends a script name to the call chain as the error unwinds
// out of a nested `call`.
func (e *VMError) WithScript(name string) *VMError {
	clone := *e
	clone.ScriptChain = append([]string{name}, clone.ScriptChain...)
	return &clone
}

// Wrap attaches an underlying cause (e.g. a bounds-check failure) while
// preserving the stack trace pkg/errors captures at the call site.
func (e *VMError) Wrap(cause error) *VMError {
	clone := *e
	clone.cause = errors.WithStack(cause)
	return &clone
}

func errTruncatedInput(op string) *VMError {
	return newVMError(ErrTruncatedInput, op)
}

func errUnknownOpcode(op string) *VMError {
	return newVMError(ErrUnknownOpcode, op)
}

func errInvalidTypeCombination(op string) *VMError {
	return newVMError(ErrInvalidTypeCombination, op)
}

func errDivisionByZero(op string) *VMError {
	return newVMError(ErrDivisionByZero, op)
}

func errStackOverflow(op string) *VMError {
	return newVMError(ErrStackOverflow, op)
}

func errStackUnderflow(op string) *VMError {
	return newVMError(ErrStackUnderflow, op)
}

func errFrameOverflow(op string) *VMError {
	return newVMError(ErrFrameOverflow, op)
}

func errUnimplementedBuiltin(op string) *VMError {
	return newVMError(ErrUnimplementedBuiltin, op)
}

func errInvalidVariableAccess(op string) *VMError {
	return newVMError(ErrInvalidVariableAccess, op)
}

func errCancelled(op string) *VMError {
	return newVMError(ErrCancelled, op)
}

func errUnimplemented(op string) *VMError {
	return newVMError(ErrUnimplemented, op)
}

// sentinel kind markers usable with errors.Is(err, vm.ErrStackOverflowErr)
// for callers that only care about the category, not the full VMError.
var (
	ErrStackOverflowErr  = &VMError{Kind: ErrStackOverflow}
	ErrStackUnderflowErr = &VMError{Kind: ErrStackUnderflow}
	ErrDivisionByZeroErr = &VMError{Kind: ErrDivisionByZero}
	ErrCancelledErr      = &VMError{Kind: ErrCancelled}
)
