package reactor

import "github.com/joeycumines/go-fiberloop/fiberhandle"

// Handle is the generational fiber reference this package hands out from
// Spawn, shared verbatim with fdbridge's small Reactor interface - see
// fiberhandle.Handle's doc comment for why it lives in its own package.
type Handle = fiberhandle.Handle

// Nil is the sentinel Handle (Index -1), never returned by Spawn and never
// valid.
var Nil = fiberhandle.Nil

type poolSlot[T any] struct {
	value      T
	generation uint32
	occupied   bool
}

// FixedPool is a fixed-capacity slab of T, addressed by generational
// Handle, with O(1) acquire/release via an internal freelist. Grounded on
// the reference poller's fixed fds [maxFDs]fdInfo array (poller_linux.go):
// a single contiguous allocation sized at construction, direct index
// lookups, no per-access map hashing. Generation tracking itself is
// grounded on the reference reactor's promise registry (fiber_registry.go),
// which pairs a weak.Pointer with an incrementing ID for the same purpose -
// detecting use of a stale reference after the thing it named is gone; this
// pool has no GC to lean on (fibers aren't heap objects the runtime
// scavenges), so staleness is tracked explicitly instead.
type FixedPool[T any] struct {
	slots []poolSlot[T]
	free  []int32
}

// NewFixedPool constructs a pool with room for exactly capacity occupants.
func NewFixedPool[T any](capacity int) *FixedPool[T] {
	p := &FixedPool[T]{
		slots: make([]poolSlot[T], capacity),
		free:  make([]int32, capacity),
	}
	for i := range p.free {
		p.free[i] = int32(capacity - 1 - i)
	}
	return p
}

// Acquire claims a free slot, stores v in it, and returns its Handle.
// Returns (Nil, false) if the pool is at capacity.
func (p *FixedPool[T]) Acquire(v T) (Handle, bool) {
	if len(p.free) == 0 {
		return Nil, false
	}
	idx := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]
	s := &p.slots[idx]
	s.value = v
	s.occupied = true
	return Handle{Index: idx, Generation: s.generation}, true
}

// Get returns a pointer to h's occupant, or (nil, false) if h is stale
// (the slot it names has since been released, possibly reused).
func (p *FixedPool[T]) Get(h Handle) (*T, bool) {
	if h.Index < 0 || int(h.Index) >= len(p.slots) {
		return nil, false
	}
	s := &p.slots[h.Index]
	if !s.occupied || s.generation != h.Generation {
		return nil, false
	}
	return &s.value, true
}

// Release frees h's slot, invalidating every Handle (including h) that
// named it, and returns the slot to the freelist for reuse.
func (p *FixedPool[T]) Release(h Handle) {
	if h.Index < 0 || int(h.Index) >= len(p.slots) {
		return
	}
	s := &p.slots[h.Index]
	if !s.occupied || s.generation != h.Generation {
		return
	}
	var zero T
	s.value = zero
	s.occupied = false
	s.generation++
	p.free = append(p.free, h.Index)
}

// Len returns the number of currently occupied slots.
func (p *FixedPool[T]) Len() int {
	return len(p.slots) - len(p.free)
}

// Cap returns the pool's total capacity.
func (p *FixedPool[T]) Cap() int { return len(p.slots) }
