package kernel

import "fmt"

// Code classifies kernel failures.
type Code int

const (
	// CodeNone means no error.
	CodeNone Code = iota
	// CodeUnknown is an unclassified failure.
	CodeUnknown
	// CodeInvalidArgument means an argument was rejected.
	CodeInvalidArgument
	// CodeInvalidOperation means the call is illegal in the current state.
	CodeInvalidOperation
	// CodeOutOfMemory means an allocation failed.
	CodeOutOfMemory
	// CodeUnsupportedCPU means the requested ISA or width is not available.
	CodeUnsupportedCPU
	// CodeCancelled means a build was interrupted.
	CodeCancelled
)

// String returns the string representation of a Code.
func (c Code) String() string {
	switch c {
	case CodeNone:
		return "none"
	case CodeUnknown:
		return "unknown"
	case CodeInvalidArgument:
		return "invalid argument"
	case CodeInvalidOperation:
		return "invalid operation"
	case CodeOutOfMemory:
		return "out of memory"
	case CodeUnsupportedCPU:
		return "unsupported cpu"
	case CodeCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("code(%d)", int(c))
	}
}

// Error is a kernel failure.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("kernel: %s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

func errorf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}
