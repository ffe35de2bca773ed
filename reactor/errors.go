package reactor

import "errors"

var (
	// ErrCapacityExhausted is returned by Spawn when the fiber pool is at
	// WithMaxFibers capacity.
	ErrCapacityExhausted = errors.New("reactor: fiber capacity exhausted")

	// ErrFiberNotFound is returned by operations given a stale or unknown
	// FiberHandle.
	ErrFiberNotFound = errors.New("reactor: fiber handle not found")

	// ErrReactorStopped is returned by Spawn and Fiber.Sleep called after
	// the reactor has begun terminating.
	ErrReactorStopped = errors.New("reactor: reactor is stopped")
)
