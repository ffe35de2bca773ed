package fdbridge

import (
	"time"

	"github.com/joeycumines/go-fiberloop/fiberhandle"
)

// Reactor is the small interface FdBridge depends on instead of any
// concrete scheduler, matching spec.md §6's Reactor contract. The bridge
// calls CurrentFiberHandle, SuspendCurrentFiber and ResumeFiber, and
// registers its idle driver through RegisterIdleCallback; IsOpen is part
// of the contract but the bridge itself never calls it. Per SPEC_FULL.md
// §4.4, core packages depend only on small interfaces, never on the
// concrete scheduler.
type Reactor interface {
	// IsOpen reports whether the reactor is still accepting work.
	IsOpen() bool

	// CurrentFiberHandle returns the handle of whichever fiber is
	// currently holding the turn - the one that would be suspended by a
	// call to SuspendCurrentFiber right now.
	CurrentFiberHandle() fiberhandle.Handle

	// SuspendCurrentFiber yields control back to the scheduler; it
	// returns only once some party calls ResumeFiber with this fiber's
	// handle.
	SuspendCurrentFiber()

	// ResumeFiber enqueues the named fiber as runnable. A no-op if handle
	// is stale (the fiber it named has already terminated).
	ResumeFiber(handle fiberhandle.Handle)

	// RegisterIdleCallback registers fn as the function the reactor
	// invokes, with its requested sleep duration, whenever no fiber is
	// runnable. Called once, by FdBridge's constructor.
	RegisterIdleCallback(fn func(time.Duration))
}
