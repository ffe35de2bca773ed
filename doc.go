// Package fiberloop provides the core runtime primitives of a single-threaded
// cooperative fiber reactor: an epoll-backed non-blocking I/O bridge, a
// fixed-size fiber-local storage area, and a cascading timer wheel.
//
// # Architecture
//
// The three leaf components live in their own packages, each exposing only
// the contract the others (and the host reactor) need of it:
//
//   - [github.com/joeycumines/go-fiberloop/fdbridge] attaches OS file
//     descriptors to an epoll instance and suspends fiber-synchronous
//     read/write calls until the kernel reports readiness.
//   - [github.com/joeycumines/go-fiberloop/fls] provides a fixed-size
//     per-fiber memory region with statically registered typed slots,
//     swapped on every reactor context switch.
//   - [github.com/joeycumines/go-fiberloop/timerwheel] provides O(1)
//     amortized insertion and expiry of timers across a wide span via a
//     cascading hierarchy of bins.
//
// The [github.com/joeycumines/go-fiberloop/reactor] package hosts a minimal,
// concrete cooperative scheduler (goroutine-per-fiber, single logical thread
// of control) sufficient to drive and exercise the three components above. It
// is the "external collaborator" spec.md describes only through a contract;
// production hosts are free to replace it so long as they honor the same
// contract (current fiber handle, suspend/resume current fiber, register
// idle callback, is_open).
//
// # Platform support
//
// The I/O bridge is Linux-only: it is built directly on epoll via
// golang.org/x/sys/unix. Multi-threaded reactors, Windows/kqueue back-ends,
// and general filesystem or socket coverage beyond read/write/pipe are out
// of scope (see spec.md / SPEC_FULL.md Non-goals).
//
// # Concurrency model
//
// All three components assume execution on a single OS thread: the
// reactor's thread. There is no locking because there is no shared mutation
// across threads. See each package's doc comment for its specific
// invariants.
package fiberloop
