package raybridge

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/raybridge/internal/kernel"
)

var (
	// ErrInitialization is returned when the kernel cannot create a device.
	ErrInitialization = errors.New("device initialization failed")

	// ErrBufferBounds is returned when a buffer layout exceeds its backing slice.
	ErrBufferBounds = errors.New("buffer layout out of bounds")

	// ErrInUse is returned when unregistering a buffer a committed scene references.
	ErrInUse = errors.New("buffer in use")

	// ErrInvalidState is returned when an operation is illegal in the current lifecycle phase.
	ErrInvalidState = errors.New("invalid state")

	// ErrBuild is returned when a scene fails to commit.
	ErrBuild = errors.New("scene build failed")

	// ErrUseAfterFree is returned by every operation on a closed device.
	ErrUseAfterFree = errors.New("use after free")

	// ErrInvalidArgument is returned for malformed arguments.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrMemoryLimit is returned when an owned buffer copy would exceed the device memory limit.
	ErrMemoryLimit = errors.New("memory limit exceeded")
)

// ErrorCode classifies failures reported by the kernel.
type ErrorCode int

const (
	// CodeUnknown is an unclassified kernel failure.
	CodeUnknown ErrorCode = iota + 1
	// CodeInvalidArgument means the kernel rejected an argument.
	CodeInvalidArgument
	// CodeInvalidOperation means the call was illegal in the kernel's state.
	CodeInvalidOperation
	// CodeOutOfMemory means a kernel allocation failed.
	CodeOutOfMemory
	// CodeUnsupportedCPU means the CPU lacks the requested ISA or width.
	CodeUnsupportedCPU
	// CodeCancelled means a build was interrupted.
	CodeCancelled
)

// String returns the string representation of an ErrorCode.
func (c ErrorCode) String() string {
	switch c {
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

func codeOf(c kernel.Code) ErrorCode {
	switch c {
	case kernel.CodeInvalidArgument:
		return CodeInvalidArgument
	case kernel.CodeInvalidOperation:
		return CodeInvalidOperation
	case kernel.CodeOutOfMemory:
		return CodeOutOfMemory
	case kernel.CodeUnsupportedCPU:
		return CodeUnsupportedCPU
	case kernel.CodeCancelled:
		return CodeCancelled
	default:
		return CodeUnknown
	}
}

// InitializationError reports why the kernel refused to create a device.
//
// It matches ErrInitialization with errors.Is. The kernel error can be
// accessed via errors.Unwrap.
type InitializationError struct {
	Code   ErrorCode
	Reason string
	cause  error
}

func (e *InitializationError) Error() string {
	return fmt.Sprintf("device initialization failed (%s): %s", e.Code, e.Reason)
}

func (e *InitializationError) Unwrap() error { return e.cause }

// Is reports whether target is ErrInitialization.
func (e *InitializationError) Is(target error) bool { return target == ErrInitialization }

// BufferBoundsError describes a layout that does not fit its backing slice.
type BufferBoundsError struct {
	Offset int
	Stride int
	Count  int
	// Extent is the length of the backing slice in bytes.
	Extent int
	Reason string
	cause  error
}

func (e *BufferBoundsError) Error() string {
	return fmt.Sprintf("buffer layout out of bounds: %s (offset=%d stride=%d count=%d extent=%d)",
		e.Reason, e.Offset, e.Stride, e.Count, e.Extent)
}

func (e *BufferBoundsError) Unwrap() error { return e.cause }

// Is reports whether target is ErrBufferBounds.
func (e *BufferBoundsError) Is(target error) bool { return target == ErrBufferBounds }

// InUseError lists the committed scenes that still reference a buffer.
type InUseError struct {
	Buffer Handle
	Scenes []uint32
}

func (e *InUseError) Error() string {
	return fmt.Sprintf("buffer %s in use by %d committed scene(s): %v", e.Buffer, len(e.Scenes), e.Scenes)
}

// Is reports whether target is ErrInUse.
func (e *InUseError) Is(target error) bool { return target == ErrInUse }

// BuildError describes why a scene failed to commit.
//
// GeomID and PrimID are InvalidID when the failure is not tied to a
// geometry or primitive.
type BuildError struct {
	GeomID GeometryID
	PrimID uint32
	Reason string
	cause  error
}

func (e *BuildError) Error() string {
	switch {
	case e.GeomID == InvalidID:
		return "scene build failed: " + e.Reason
	case e.PrimID == InvalidID:
		return fmt.Sprintf("scene build failed: geometry %d: %s", e.GeomID, e.Reason)
	default:
		return fmt.Sprintf("scene build failed: geometry %d primitive %d: %s", e.GeomID, e.PrimID, e.Reason)
	}
}

func (e *BuildError) Unwrap() error { return e.cause }

// Is reports whether target is ErrBuild.
func (e *BuildError) Is(target error) bool { return target == ErrBuild }

func buildErrorf(geom GeometryID, prim uint32, format string, args ...any) *BuildError {
	return &BuildError{GeomID: geom, PrimID: prim, Reason: fmt.Sprintf(format, args...)}
}

func invalidArgf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

func invalidStatef(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidState, fmt.Sprintf(format, args...))
}

// translateKernelError maps a kernel failure onto the public taxonomy.
// op selects the sentinel for codes that depend on the calling operation.
func translateKernelError(op string, err error) error {
	if err == nil {
		return nil
	}

	// Cancellation surfaces as the context error itself.
	switch {
	case errors.Is(err, context.Canceled):
		return context.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		return context.DeadlineExceeded
	}

	var kerr *kernel.Error
	if !errors.As(err, &kerr) {
		return err
	}

	switch op {
	case opNewDevice:
		return &InitializationError{Code: codeOf(kerr.Code), Reason: kerr.Message, cause: err}
	case opCommit:
		if kerr.Code == kernel.CodeOutOfMemory {
			return fmt.Errorf("%w: %w", ErrMemoryLimit, err)
		}
		return &BuildError{GeomID: InvalidID, PrimID: InvalidID, Reason: kerr.Message, cause: err}
	}

	switch kerr.Code {
	case kernel.CodeInvalidArgument:
		return fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	case kernel.CodeInvalidOperation:
		return fmt.Errorf("%w: %w", ErrInvalidState, err)
	case kernel.CodeOutOfMemory:
		return fmt.Errorf("%w: %w", ErrMemoryLimit, err)
	default:
		return err
	}
}
