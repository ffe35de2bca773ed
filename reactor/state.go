package reactor

import (
	"sync/atomic"
)

// RunState represents the current state of a Reactor.
//
// State machine:
//
//	StateAwake (0) → StateRunning (3)        [Run()]
//	StateRunning (3) → StateSleeping (2)     [poll via CAS]
//	StateRunning (3) → StateTerminating (4)  [Stop()]
//	StateSleeping (2) → StateRunning (3)     [poll wake via CAS]
//	StateSleeping (2) → StateTerminating (4) [Stop()]
//	StateTerminating (4) → StateTerminated (1) [Run returns]
//	StateTerminated (1) → (terminal)
//
// Use TryTransition (CAS) for the reversible states (Running, Sleeping);
// use Store only for the irreversible Terminated state.
type RunState uint64

const (
	// StateAwake: constructed, Run not yet called.
	StateAwake RunState = 0
	// StateTerminated: Run has returned; the reactor is done.
	StateTerminated RunState = 1
	// StateSleeping: blocked in the fd bridge's PollIdle.
	StateSleeping RunState = 2
	// StateRunning: actively scheduling fibers.
	StateRunning RunState = 3
	// StateTerminating: Stop requested, winding down.
	StateTerminating RunState = 4
)

func (s RunState) String() string {
	switch s {
	case StateAwake:
		return "Awake"
	case StateRunning:
		return "Running"
	case StateSleeping:
		return "Sleeping"
	case StateTerminating:
		return "Terminating"
	case StateTerminated:
		return "Terminated"
	default:
		return "Unknown"
	}
}

// fastState is a lock-free state machine with cache-line padding to
// isolate it from neighbouring hot fields, grounded on the reference
// reactor's FastState (state.go).
type fastState struct { // betteralign:ignore
	_ [64]byte
	v atomic.Uint64
	_ [56]byte
}

func newFastState() *fastState {
	s := &fastState{}
	s.v.Store(uint64(StateAwake))
	return s
}

func (s *fastState) Load() RunState { return RunState(s.v.Load()) }

func (s *fastState) Store(state RunState) { s.v.Store(uint64(state)) }

func (s *fastState) TryTransition(from, to RunState) bool {
	return s.v.CompareAndSwap(uint64(from), uint64(to))
}
