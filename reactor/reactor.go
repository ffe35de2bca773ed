// Package reactor hosts a minimal, concrete cooperative scheduler tying
// together fdbridge, fls and timerwheel: one goroutine per fiber, but only
// one fiber's business logic ever executes at a time, handed a turn by the
// reactor's own scheduling loop - the single logical thread of control a
// cooperative fiber reactor is defined by.
//
// Grounded on the reference reactor's Loop (loop.go) for the overall
// run/stop state machine and timer-driven wakeups, and on pawscript's
// SpawnFiber (goroutine-per-fiber with a ResumeChan/CompleteChan pair) for
// the fiber lifecycle shape - adapted here into an explicit turn/yield
// channel handoff so that only the fiber currently holding the turn ever
// touches the active FLS area.
package reactor

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/joeycumines/go-fiberloop/fiberhandle"
	"github.com/joeycumines/go-fiberloop/fls"
	"github.com/joeycumines/go-fiberloop/internal/logx"
	"github.com/joeycumines/go-fiberloop/timerwheel"
)

// FiberHandle identifies a fiber spawned on a Reactor.
type FiberHandle = Handle

// timerEntry is the payload type timerwheel.Wheel stores for Sleep.
type timerEntry struct {
	dueAt int64
	fiber FiberHandle
}

func (e *timerEntry) TimePoint() int64 { return e.dueAt }

type fiberState struct {
	area     *fls.Area
	turn     chan struct{}
	yield    chan struct{}
	doneCh   chan struct{}
	alive    bool
	panicVal any
}

// Reactor is a single-threaded cooperative fiber scheduler. It exposes the
// small Reactor interface (CurrentFiberHandle/SuspendCurrentFiber/
// ResumeFiber/IsOpen/RegisterIdleCallback) that fdbridge depends on instead
// of the concrete type, per SPEC_FULL.md §4.4.
type Reactor struct {
	opts  reactorOptions
	start time.Time
	wheel *timerwheel.Wheel[*timerEntry, int64]
	pool  *FixedPool[*fiberState]
	state *fastState

	readyMu sync.Mutex
	ready   []FiberHandle
	wake    chan struct{}
	stopCh  chan struct{}

	current      FiberHandle
	idleCallback func(time.Duration)
}

// New constructs a Reactor. Fds are wrapped against it only after
// construction, via fdbridge.New(r) - see fdbridge's doc comment.
func New(opts ...Option) *Reactor {
	cfg := resolveOptions(opts)
	fls.Freeze()
	return &Reactor{
		opts:  cfg,
		start: time.Now(),
		wheel: timerwheel.New[*timerEntry, int64](
			timerwheel.WithResolution(int64(time.Millisecond)),
			timerwheel.WithNumBins(256),
			timerwheel.WithNumLevels(3),
		),
		pool:    NewFixedPool[*fiberState](cfg.maxFibers),
		state:   newFastState(),
		wake:    make(chan struct{}, 1),
		stopCh:  make(chan struct{}),
		current: Nil,
	}
}

// IsOpen reports whether the reactor is still accepting scheduling work -
// one of the small Reactor interface's contract methods. Spawn and
// Fiber.Sleep consult it; fdbridge itself does not call it.
func (r *Reactor) IsOpen() bool {
	switch r.state.Load() {
	case StateTerminating, StateTerminated:
		return false
	default:
		return true
	}
}

// CurrentFiberHandle returns the handle of the fiber currently holding the
// turn - the one SuspendCurrentFiber would suspend if called right now.
func (r *Reactor) CurrentFiberHandle() fiberhandle.Handle {
	return r.current
}

// SuspendCurrentFiber yields the calling fiber's turn back to the
// scheduler. It returns once some party (typically fdbridge's idle
// callback dispatch, or a timer) calls ResumeFiber with this fiber's
// handle. Panics if called outside of a fiber's own turn.
func (r *Reactor) SuspendCurrentFiber() {
	h := r.current
	st, ok := r.slot(h)
	if !ok {
		panic("reactor: SuspendCurrentFiber called with no fiber holding the turn")
	}
	st.yield <- struct{}{}
	<-st.turn
}

// ResumeFiber enqueues the named fiber as runnable. A no-op if handle is
// stale (the fiber it named has already terminated or was never valid).
func (r *Reactor) ResumeFiber(handle fiberhandle.Handle) {
	if st, ok := r.slot(handle); !ok || !st.alive {
		return
	}
	r.enqueueReady(handle)
}

// RegisterIdleCallback registers fn as the function Run invokes, with its
// requested sleep duration, whenever no fiber is runnable. Only the first
// registration takes effect; fdbridge.New calls this once per bridge, and
// a Reactor drives exactly one bridge.
func (r *Reactor) RegisterIdleCallback(fn func(time.Duration)) {
	if r.idleCallback == nil {
		r.idleCallback = fn
	}
}

// Spawn starts fn running as a new fiber and returns its handle. fn
// receives a *Fiber through which it yields control to sleep; fiber I/O
// goes directly through a *fdbridge.FD's Read/Write, which suspend the
// fiber via the Reactor interface themselves.
func (r *Reactor) Spawn(fn func(*Fiber)) (FiberHandle, error) {
	if !r.IsOpen() {
		return Nil, ErrReactorStopped
	}
	st := &fiberState{
		area:   fls.NewArea(),
		turn:   make(chan struct{}),
		yield:  make(chan struct{}),
		doneCh: make(chan struct{}),
		alive:  true,
	}
	h, ok := r.pool.Acquire(st)
	if !ok {
		return Nil, ErrCapacityExhausted
	}

	go func() {
		<-st.turn
		defer func() {
			if p := recover(); p != nil {
				st.panicVal = p
				logx.Get().Err().Log(`reactor: fiber panicked`)
			}
			st.alive = false
			close(st.doneCh)
			st.yield <- struct{}{}
		}()
		fn(&Fiber{r: r, h: h})
	}()

	r.enqueueReady(h)
	return h, nil
}

// Join blocks until the fiber named by h has returned (or panicked),
// returning a non-nil error in the panic case. Join also reclaims h's
// pool slot, so every spawned fiber must eventually be joined exactly
// once or it permanently pins capacity (mirrors pthread_join: a detach
// counterpart isn't offered since nothing here needs it).
func (r *Reactor) Join(h FiberHandle) error {
	st, ok := r.slot(h)
	if !ok {
		return ErrFiberNotFound
	}
	<-st.doneCh
	r.pool.Release(h)
	if st.panicVal != nil {
		return fmt.Errorf("reactor: fiber panicked: %v", st.panicVal)
	}
	return nil
}

// ResolveArea returns h's FLS area, for cross-fiber fls.GetIn access, or
// nil if h is stale or names a fiber that has already finished.
func (r *Reactor) ResolveArea(h FiberHandle) *fls.Area {
	st, ok := r.slot(h)
	if !ok || !st.alive {
		return nil
	}
	return st.area
}

// Stop requests the reactor wind down; Run returns once the current
// scheduling pass completes. Safe to call from any goroutine, including a
// running fiber.
func (r *Reactor) Stop() {
	if r.state.TryTransition(StateRunning, StateTerminating) ||
		r.state.TryTransition(StateSleeping, StateTerminating) {
		close(r.stopCh)
	}
}

// Run drives the reactor's scheduling loop until Stop is called. It
// returns an error if called more than once on the same Reactor.
//
// Each pass drains every ready fiber first. Only once none are runnable
// does it consult the timer wheel for how long it may safely idle, and
// invoke the registered idle callback (fdbridge's epoll_wait, if a bridge
// was constructed against this reactor) with that duration - per spec.md
// §4.1, the idle callback runs only when no fiber is runnable, which is
// also what lets FdContext and the fiber turn/yield handoff both go
// lock-free: nothing outside of whichever single goroutine currently holds
// the turn ever touches them concurrently.
func (r *Reactor) Run() error {
	if !r.state.TryTransition(StateAwake, StateRunning) {
		return errors.New("reactor: Run called more than once")
	}
	defer r.state.Store(StateTerminated)

	for {
		for {
			h, ok := r.popReady()
			if !ok {
				break
			}
			r.runTurn(h)
		}

		select {
		case <-r.stopCh:
			return nil
		default:
		}

		r.processDueTimers()

		if _, ok := r.popReadyPeek(); ok {
			continue
		}

		if r.idleCallback != nil {
			timeout := r.idleTimeout()
			r.state.TryTransition(StateRunning, StateSleeping)
			r.idleCallback(timeout)
			r.state.TryTransition(StateSleeping, StateRunning)
		} else {
			select {
			case <-r.stopCh:
				return nil
			case <-r.wake:
			case <-time.After(time.Millisecond):
			}
		}

		r.processDueTimers()
	}
}

// maxIdleWait bounds a single idle-callback wait. The callback's epoll wait
// does not watch the ready queue, so a fiber spawned or resumed from another
// goroutine, or a Stop, is noticed only once that wait returns.
const maxIdleWait = time.Millisecond

// idleTimeout computes how long Run may ask its idle callback to block: the
// cycle delta CyclesTillNextEntry reports for the timer wheel's earliest
// pending entry, capped at maxIdleWait, or maxIdleWait if nothing is
// pending. That delta is measured from the wheel's baseTime, which is only
// rebased when the wheel's level-0 cursor wraps, so it can exceed the time
// actually left until the entry is due; the cap bounds that overshoot.
func (r *Reactor) idleTimeout() time.Duration {
	delta, ok := r.wheel.CyclesTillNextEntry()
	if !ok || time.Duration(delta) > maxIdleWait {
		return maxIdleWait
	}
	return time.Duration(delta)
}

func (r *Reactor) processDueTimers() {
	now := int64(r.Now())
	for {
		e, ok := r.wheel.Pop(now)
		if !ok {
			break
		}
		r.enqueueReady(e.fiber)
	}
}

func (r *Reactor) runTurn(h FiberHandle) {
	st, ok := r.slot(h)
	if !ok {
		return
	}
	prev := r.current
	r.current = h
	fls.SwitchTo(st.area)
	st.turn <- struct{}{}
	<-st.yield
	fls.SwitchToNone()
	r.current = prev
}

func (r *Reactor) enqueueReady(h FiberHandle) {
	r.readyMu.Lock()
	r.ready = append(r.ready, h)
	r.readyMu.Unlock()
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

func (r *Reactor) popReady() (FiberHandle, bool) {
	r.readyMu.Lock()
	defer r.readyMu.Unlock()
	if len(r.ready) == 0 {
		return Nil, false
	}
	h := r.ready[0]
	r.ready = r.ready[1:]
	return h, true
}

func (r *Reactor) popReadyPeek() (FiberHandle, bool) {
	r.readyMu.Lock()
	defer r.readyMu.Unlock()
	if len(r.ready) == 0 {
		return Nil, false
	}
	return r.ready[0], true
}

func (r *Reactor) slot(h FiberHandle) (*fiberState, bool) {
	pp, ok := r.pool.Get(h)
	if !ok {
		return nil, false
	}
	return *pp, true
}

// Fiber is the handle a spawned function uses to yield control back to its
// Reactor in order to sleep. I/O is performed directly on a *fdbridge.FD,
// which suspends through the Reactor interface itself rather than through
// a wrapper method here.
type Fiber struct {
	r *Reactor
	h FiberHandle
}

// Handle returns this fiber's FiberHandle.
func (f *Fiber) Handle() FiberHandle { return f.h }

// Sleep suspends the calling fiber for d, yielding the turn back to the
// reactor so other fibers run while this one waits.
func (f *Fiber) Sleep(d time.Duration) error {
	r := f.r
	if !r.IsOpen() {
		return ErrReactorStopped
	}
	due := int64(r.Now().Add(d))
	if _, err := r.wheel.Insert(&timerEntry{dueAt: due, fiber: f.h}); err != nil {
		return err
	}
	st, ok := r.slot(f.h)
	if !ok {
		return ErrFiberNotFound
	}
	st.yield <- struct{}{}
	<-st.turn
	return nil
}
