// Package timerwheel implements a cascading (hierarchical) timer wheel: a
// fixed set of levels, each a ring of bins, where a higher level's bin
// spans numBins times the cycles of the level below it. Insertion and
// expiry are both O(1) amortized across the wheel's configured span,
// trading the O(log n) of a heap-based timer queue (the kind the
// reference reactor's single-threaded event loop uses - see loop.go's
// timerHeap, built on container/heap) for O(1) at the cost of a bounded
// maximum horizon (TooFarAheadError) and coarser resolution at longer
// horizons.
//
// Entries are never touched by the wheel except to store and return them;
// ownership, pooling and recycling are entirely the caller's concern - see
// the reactor package's FixedPool for the pattern the reference design
// uses for fixed-capacity object reuse (poller_linux.go's fds array).
package timerwheel

import (
	"golang.org/x/exp/constraints"

	"github.com/joeycumines/go-fiberloop/intrusive"
)

// Timestamped is the constraint an entry type must satisfy to be stored in
// a Wheel: it must expose its own due time, in the same cycle unit C the
// wheel is parameterized over.
type Timestamped[C constraints.Integer] interface {
	TimePoint() C
}

// Handle identifies an entry currently linked into a Wheel, returned by
// Insert. It is only ever used as an opaque argument to Cancel.
type Handle struct {
	level Handle8
	bin   int32
	node  intrusive.Handle
}

// Handle8 is a small fixed-width level index; wheels in this design never
// exceed a handful of levels (spec.md's example uses 3).
type Handle8 = uint8

// Wheel is a cascading timer wheel over entries of type T, whose time
// points are expressed in cycle unit C.
//
// The zero value is not usable; construct with New.
type Wheel[T Timestamped[C], C constraints.Integer] struct {
	numBins    int
	numLevels  int
	resolution C
	levelPow   []uint64 // levelPow[i] == numBins^i

	baseTime   C
	poppedTime C
	offset     uint64

	bins [][]intrusive.List[T] // bins[level][bin]

	metrics Metrics
}

// New constructs a Wheel with the given options. Panics if the resolved
// configuration is invalid (numBins not a power of two, numLevels < 1, or
// resolution <= 0) - these are startup-time configuration errors, not
// runtime conditions a caller should be expected to recover from.
func New[T Timestamped[C], C constraints.Integer](opts ...Option) *Wheel[T, C] {
	cfg := resolveOptions(opts)

	if cfg.numBins < 2 || cfg.numBins&(cfg.numBins-1) != 0 {
		panic("timerwheel: numBins must be a power of two >= 2")
	}
	if cfg.numLevels < 1 {
		panic("timerwheel: numLevels must be >= 1")
	}
	if cfg.resolution <= 0 {
		panic("timerwheel: resolution must be > 0")
	}

	w := &Wheel[T, C]{
		numBins:    cfg.numBins,
		numLevels:  cfg.numLevels,
		resolution: C(cfg.resolution),
		levelPow:   make([]uint64, cfg.numLevels+1),
		bins:       make([][]intrusive.List[T], cfg.numLevels),
	}
	w.levelPow[0] = 1
	for i := 1; i <= cfg.numLevels; i++ {
		w.levelPow[i] = w.levelPow[i-1] * uint64(cfg.numBins)
	}
	for lvl := 0; lvl < cfg.numLevels; lvl++ {
		row := make([]intrusive.List[T], cfg.numBins)
		for b := range row {
			row[b] = *intrusive.New[T]()
		}
		w.bins[lvl] = row
	}
	w.metrics.CascadesByLevel = make([]uint64, cfg.numLevels)

	return w
}

// Span returns the total number of level-0-resolution bins the wheel can
// address ahead of baseTime before Insert reports TooFarAheadError.
func (w *Wheel[T, C]) Span() uint64 {
	// numBins * (numBins^numLevels - 1) / (numBins - 1)
	return uint64(w.numBins) * (w.levelPow[w.numLevels] - 1) / uint64(w.numBins-1)
}

// Insert places an entry into the wheel, returning a Handle usable with
// Cancel, or a *TooFarAheadError if entry.TimePoint() exceeds the wheel's
// span measured from its current baseTime.
func (w *Wheel[T, C]) Insert(entry T) (Handle, error) {
	h, err := w.place(entry)
	if err != nil {
		return Handle{}, err
	}
	w.metrics.Inserted++
	return h, nil
}

// place performs the bin-placement computation shared by Insert (counted
// as an external insert) and cascade's reinsertion (not counted as one,
// since it moves an already-counted entry rather than adding a new one).
func (w *Wheel[T, C]) place(entry T) (Handle, error) {
	tp := entry.TimePoint()

	// Entries already due (time_point <= poppedTime) go directly into the
	// current level-0 bin, bypassing the general bin-index computation:
	// that computation assumes a non-negative forward delta, and would
	// otherwise misfile a past-due entry into a bin behind the cursor that
	// won't be visited again until the wheel wraps.
	if tp <= w.poppedTime {
		bin := int(w.offset % uint64(w.numBins))
		node := w.bins[0][bin].Append(entry)
		return Handle{level: 0, bin: int32(bin), node: node}, nil
	}

	delta := tp - w.baseTime
	idx := ceilDiv(delta, w.resolution)
	idx64 := uint64(idx)

	for level := 0; level < w.numLevels; level++ {
		if idx64 < uint64(w.numBins) {
			bin := int((w.offset/w.levelPow[level] + idx64) % uint64(w.numBins))
			node := w.bins[level][bin].Append(entry)
			return Handle{level: Handle8(level), bin: int32(bin), node: node}, nil
		}
		idx64 = idx64/uint64(w.numBins) - 1
	}

	return Handle{}, &TooFarAheadError[C]{
		TimePoint:        tp,
		BaseTime:         w.baseTime,
		PoppedTime:       w.poppedTime,
		Offset:           w.offset,
		ResolutionCycles: w.resolution,
	}
}

// Cancel removes a previously inserted entry given the Handle Insert
// returned for it. Cancelling a handle twice, or one already popped by
// Pop, is a programmer error and panics (see intrusive.List.Unlink).
func (w *Wheel[T, C]) Cancel(h Handle) {
	w.bins[h.level][h.bin].Unlink(h.node)
}

// Pop returns the single earliest entry due at or before now, removing it
// from the wheel, advancing the wheel's internal clock (and cascading
// lower from higher levels) as far as necessary to find it. Returns
// (zero, false) if nothing is due yet - callers drain all due entries for
// a given now by calling Pop in a loop until it returns false.
func (w *Wheel[T, C]) Pop(now C) (T, bool) {
	for {
		bin := int(w.offset % uint64(w.numBins))
		list := &w.bins[0][bin]
		if h, ok := list.Head(); ok {
			v := list.Value(h)
			if v.TimePoint() <= now {
				list.Unlink(h)
				w.metrics.Popped++
				return v, true
			}
		}

		if now < w.poppedTime {
			var zero T
			return zero, false
		}

		w.advance()
	}
}

// CyclesTillNextEntry returns the cycle delta, measured from baseTime, to
// the start of the earliest non-empty bin across all levels, scanning in
// wall-time order starting at each level's current cursor. Returns
// (0, false) if the wheel holds no entries at all.
//
// This is a scheduling hint only (how long the reactor may safely block in
// epoll_wait before timers need re-checking); it is not used by Pop, which
// always recomputes its own due-ness directly.
func (w *Wheel[T, C]) CyclesTillNextEntry() (C, bool) {
	for level := 0; level < w.numLevels; level++ {
		pow := w.levelPow[level]
		cursor := (w.offset / pow) % uint64(w.numBins)
		for r := uint64(0); r < uint64(w.numBins); r++ {
			j := (cursor + r) % uint64(w.numBins)
			if !w.bins[level][j].Empty() {
				delta := (cursor + r) * pow * uint64(w.resolution)
				return C(delta), true
			}
		}
	}
	return 0, false
}

// Stats returns a snapshot of the wheel's lifetime insert/pop/cascade
// counters.
func (w *Wheel[T, C]) Stats() Metrics {
	out := w.metrics
	out.CascadesByLevel = append([]uint64(nil), w.metrics.CascadesByLevel...)
	return out
}

func (w *Wheel[T, C]) advance() {
	w.offset++
	w.poppedTime += w.resolution
	if w.offset%uint64(w.numBins) == 0 {
		w.baseTime = w.poppedTime
		w.cascade(1)
	}
}

// cascade drains the level-`level` bin that has just expired (the one
// completed by the level-0 advance that triggered this call, or by a
// lower-level cascade), reinserting every entry it held via the normal
// Insert path - which redistributes each one to whichever lower bin its
// time_point now maps to. If draining empties out level's own cursor in
// turn, cascade recurses to level+1.
func (w *Wheel[T, C]) cascade(level int) {
	if level >= w.numLevels {
		return
	}
	pow := w.levelPow[level]
	bin := int((w.offset/pow - 1) % uint64(w.numBins))
	list := &w.bins[level][bin]

	for {
		v, ok := list.PopHead()
		if !ok {
			break
		}
		w.metrics.CascadesByLevel[level]++
		// Reinsert ignoring the returned Handle/error: a cascaded entry's
		// time_point was already validated against the wheel's span when
		// it was first inserted at this (now expiring) level, so it is
		// guaranteed to land at some lower level (or the current bin, if
		// it's now due). Not counted as a new Insert.
		_, _ = w.place(v)
	}

	if (w.offset/pow)%uint64(w.numBins) == 0 {
		w.cascade(level + 1)
	}
}

func ceilDiv[C constraints.Integer](a, b C) C {
	return (a + b - 1) / b
}
