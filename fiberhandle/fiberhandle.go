// Package fiberhandle defines the one value type the core's leaf packages
// (fdbridge, timerwheel's reactor-facing callers) and the reactor package
// both need to name a fiber without depending on each other: a generational
// Handle, per spec.md §6's "FiberHandle contract: is_valid() → bool;
// copyable value type; equality on identity + generation."
//
// It lives in its own package rather than inside reactor so that fdbridge's
// small Reactor interface (see fdbridge/reactor.go) can name FiberHandle
// arguments without importing the concrete reactor package, matching
// SPEC_FULL.md §4.4's "core packages depend only on small interfaces, never
// on the concrete scheduler."
package fiberhandle

// Handle is a generational reference to a fiber: Index identifies a slot in
// whatever pool allocated it, Generation distinguishes this occupant from
// whatever was released and reused that slot before it.
type Handle struct {
	Index      int32
	Generation uint32
}

// Nil is the sentinel Handle (Index -1) that Valid reports false for, and
// that no real Acquire ever returns. It is not the zero Handle: Handle{}
// has Index 0 and reports Valid.
var Nil = Handle{Index: -1}

// Valid reports whether h could possibly address a live fiber. It does not,
// by itself, guarantee the fiber it once named hasn't since terminated -
// callers resolve that through whatever pool issued the handle.
func (h Handle) Valid() bool { return h.Index >= 0 }
