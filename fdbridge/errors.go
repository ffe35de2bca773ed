// Package fdbridge attaches OS file descriptors to a single epoll instance
// and lets fiber-synchronous Read/Write calls suspend the calling goroutine
// until the kernel reports readiness, instead of blocking an OS thread.
//
// See bridge.go for the registration and suspension protocol.
package fdbridge

import (
	"errors"
	"fmt"
)

// OsError wraps a failed syscall with the operation and file descriptor
// that produced it, grounded on the reference reactor's error taxonomy
// (errors.go's WrapError: message plus cause, unwrappable via errors.Is).
type OsError struct {
	Op  string
	Fd  int
	Err error
}

func (e *OsError) Error() string {
	return fmt.Sprintf("fdbridge: %s(fd=%d): %v", e.Op, e.Fd, e.Err)
}

func (e *OsError) Unwrap() error { return e.Err }

// ResourceExhausted is returned when the bridge's fixed-size fd table has
// no room for another registration.
type ResourceExhausted struct {
	Limit int
}

func (e *ResourceExhausted) Error() string {
	return fmt.Sprintf("fdbridge: fd table exhausted (limit=%d)", e.Limit)
}

// Sentinel errors for caller misuse. ErrDoubleWait is only ever raised via
// panic (an assertion, mirroring the reference design's treatment of
// protocol violations); ErrBridgeClosed is returned as an error;
// ErrOutstandingWaiters is returned by FdBridge.Close and panicked by
// FD.Close.
var (
	// ErrDoubleWait is raised when two callers attempt to suspend on the
	// same FD concurrently, whether both for reading, both for writing, or
	// one of each - a FdContext holds at most one waiting fiber at a time.
	// The single-fiber-per-fd model this bridge targets never needs this;
	// if it happens, it means two fibers share an FD without their own
	// coordination.
	ErrDoubleWait = errors.New("fdbridge: concurrent wait on the same fd")

	// ErrBridgeClosed is returned by Close, Wrap and PollIdle when called
	// after Close.
	ErrBridgeClosed = errors.New("fdbridge: bridge is closed")

	// ErrOutstandingWaiters is raised by Close when one or more FDs still
	// have a fiber suspended waiting on them; the bridge has no way to
	// safely unblock them, so closing in that state is a caller bug.
	ErrOutstandingWaiters = errors.New("fdbridge: close called with outstanding fiber waiters")
)
