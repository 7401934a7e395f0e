package rtos

import (
	"errors"
	"fmt"
)

// Status is the result code returned by value from every kernel
// operation. The zero value, StatusOK, is success; every other value
// indicates why the operation did not complete as requested.
type Status int

const (
	// StatusOK indicates the operation completed successfully.
	StatusOK Status = iota
	// StatusTimeout indicates a bounded wait expired before the
	// condition the caller was waiting for became true.
	StatusTimeout
	// StatusWouldBlock indicates a Try* call could not complete
	// immediately and the caller asked not to wait.
	StatusWouldBlock
	// StatusInvalidArgument indicates a parameter or call failed
	// validation (a nil thread function, a kernel call in the wrong
	// lifecycle state, Join on a detached thread, Pool.Free of a block
	// the pool does not own, ...).
	StatusInvalidArgument
	// StatusPermission indicates the operation is not permitted from
	// the caller's current context (e.g. a blocking call from handler
	// mode, or a non-owner unlocking a mutex).
	StatusPermission
	// StatusDeadlock indicates the operation was refused because
	// completing it would deadlock the calling thread against itself.
	StatusDeadlock
	// StatusNotRecoverable indicates a robust mutex whose owner died
	// has been marked unusable until explicitly reinitialised.
	StatusNotRecoverable
	// StatusOwnerDead indicates a robust mutex's previous owner
	// terminated while holding it; the new owner must call
	// Mutex.Consistent to clear the flag.
	StatusOwnerDead
	// StatusClosed indicates the target object has been destroyed or
	// deleted and can no longer be operated on.
	StatusClosed
	// StatusInterrupted indicates a waiting thread was woken by
	// Thread.Interrupt before its wait condition was satisfied.
	StatusInterrupted
	// StatusWouldOverflow indicates a counting primitive (a semaphore's
	// count, a recursive mutex's recursion depth) is already at its
	// configured maximum and the operation would push it past that
	// limit.
	StatusWouldOverflow
	// StatusMessageTooBig indicates a message queue Send/TrySend was
	// given a payload larger than the queue's configured message size.
	StatusMessageTooBig
	// StatusOutOfMemory indicates a memory pool has no free blocks left
	// to satisfy an allocation.
	StatusOutOfMemory
	// StatusNotSupported indicates the requested combination of
	// attributes or operation is recognised but not implemented by this
	// port.
	StatusNotSupported
)

// String implements fmt.Stringer.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusTimeout:
		return "Timeout"
	case StatusWouldBlock:
		return "WouldBlock"
	case StatusInvalidArgument:
		return "InvalidArgument"
	case StatusPermission:
		return "Permission"
	case StatusDeadlock:
		return "Deadlock"
	case StatusNotRecoverable:
		return "NotRecoverable"
	case StatusOwnerDead:
		return "OwnerDead"
	case StatusClosed:
		return "Closed"
	case StatusInterrupted:
		return "Interrupted"
	case StatusWouldOverflow:
		return "WouldOverflow"
	case StatusMessageTooBig:
		return "MessageTooBig"
	case StatusOutOfMemory:
		return "OutOfMemory"
	case StatusNotSupported:
		return "NotSupported"
	default:
		return "Unknown"
	}
}

// Error adapts a Status into the standard error interface, carrying the
// operation name and an optional underlying cause for use with
// [errors.Is] and [errors.As].
type Error struct {
	Op     string
	Status Status
	Cause  error
}

// newErr builds an *Error for op/status, optionally wrapping cause.
func newErr(op string, status Status, cause error) *Error {
	return &Error{Op: op, Status: status, Cause: cause}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("rtos: %s: %s: %v", e.Op, e.Status, e.Cause)
	}
	return fmt.Sprintf("rtos: %s: %s", e.Op, e.Status)
}

// Unwrap returns the underlying cause for use with [errors.Is] and
// [errors.As].
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error with the same Status, so
// callers can write errors.Is(err, rtos.ErrTimeout) style sentinels
// without caring which operation produced them.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return other.Status == e.Status
	}
	return false
}

// StatusOf extracts the Status carried by err, or StatusOK if err is
// nil, or StatusInvalidArgument if err does not wrap an *Error.
func StatusOf(err error) Status {
	if err == nil {
		return StatusOK
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Status
	}
	return StatusInvalidArgument
}

// sentinel returns a stable *Error usable with errors.Is, matching the
// pattern used throughout the wait/timeout paths below.
func sentinel(status Status) error {
	return &Error{Status: status}
}

// Sentinel errors for the common blocking-wait outcomes. Compare with
// errors.Is, not ==, since every returned *Error carries its own Op.
var (
	ErrTimeout     = sentinel(StatusTimeout)
	ErrInterrupted = sentinel(StatusInterrupted)
	ErrClosed      = sentinel(StatusClosed)
	ErrOwnerDead   = sentinel(StatusOwnerDead)
)

// ThreadPanicError wraps a panic value recovered from a thread
// function, surfaced to whoever calls Thread.Join on the panicking
// thread.
type ThreadPanicError struct {
	Thread string
	Value  any
}

// Error implements the error interface.
func (e *ThreadPanicError) Error() string {
	if e.Thread == "" {
		return fmt.Sprintf("rtos: thread panicked: %v", e.Value)
	}
	return fmt.Sprintf("rtos: thread %q panicked: %v", e.Thread, e.Value)
}

// Unwrap returns the underlying error if the panic value is an error,
// enabling errors.Is/errors.As through the cause chain.
func (e *ThreadPanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
