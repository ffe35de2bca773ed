//go:build linux

package fdbridge

import (
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/joeycumines/go-fiberloop/fiberhandle"
)

type fakeReactor struct {
	current fiberhandle.Handle
	resumed []fiberhandle.Handle
	idleFn  func(time.Duration)
}

func (f *fakeReactor) IsOpen() bool                                { return true }
func (f *fakeReactor) CurrentFiberHandle() fiberhandle.Handle      { return f.current }
func (f *fakeReactor) SuspendCurrentFiber()                        {}
func (f *fakeReactor) ResumeFiber(h fiberhandle.Handle)            { f.resumed = append(f.resumed, h) }
func (f *fakeReactor) RegisterIdleCallback(fn func(time.Duration)) { f.idleFn = fn }

// TestFdBridge_Dispatch_SkipsStaleGenerationDirect reproduces spec's
// stale-epoll-event scenario without depending on the kernel ever actually
// re-delivering a queued event for a closed fd (which Linux's epoll
// internally prevents on close): register fd X, deregister it (bumping
// its slab generation) and re-register a different fd into the freed
// slot, then hand dispatch a fabricated event carrying X's original
// (now-stale) generation. It must skip the event rather than resuming
// whatever fiber is now parked on the reused slot.
func TestFdBridge_Dispatch_SkipsStaleGenerationDirect(t *testing.T) {
	fr := &fakeReactor{}
	b, err := New(fr)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer b.Close()

	r1, w1, err := unixSocketPair(t)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	defer unix.Close(w1)

	fd1, err := b.Wrap(r1)
	if err != nil {
		t.Fatalf("Wrap: %v", err)
	}
	ref1 := fd1.ref
	staleEvent := unix.EpollEvent{Events: unix.EPOLLIN}
	packEventData(&staleEvent, ref1.index, ref1.generation)

	// Deregister the original registration - bumping the slot's
	// generation - simulating the kernel having already queued an event
	// for it (captured above as staleEvent) before the deregistration
	// took effect.
	if err := fd1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	r2, w2, err := unixSocketPair(t)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	defer unix.Close(r2)
	defer unix.Close(w2)

	fd2, err := b.Wrap(r2)
	if err != nil {
		t.Fatalf("Wrap: %v", err)
	}
	defer fd2.Close()
	fr.current = fiberhandle.Handle{Index: 2, Generation: 0}
	b.suspend(fd2.ref)

	b.dispatch(&staleEvent)

	for _, h := range fr.resumed {
		if h == (fiberhandle.Handle{Index: 2, Generation: 0}) {
			t.Fatal("stale event must not resume the fiber now parked on the reused slot")
		}
	}
	if len(fr.resumed) != 0 {
		t.Fatalf("stale event must not resume anything, got %v", fr.resumed)
	}

	// A fresh, correctly-addressed event for fd2's live registration must
	// still resume its waiter normally.
	liveEvent := unix.EpollEvent{Events: unix.EPOLLIN}
	packEventData(&liveEvent, fd2.ref.index, fd2.ref.generation)
	b.dispatch(&liveEvent)
	if len(fr.resumed) != 1 || fr.resumed[0] != (fiberhandle.Handle{Index: 2, Generation: 0}) {
		t.Fatalf("expected fd2's waiter to be resumed, got %v", fr.resumed)
	}
}

func unixSocketPair(t *testing.T) (a, c int, err error) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return 0, 0, err
	}
	return fds[0], fds[1], nil
}
