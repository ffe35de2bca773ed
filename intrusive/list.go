// Package intrusive implements a doubly-linked list over a growable slab,
// addressed by Handle rather than by pointer.
//
// This is the Go analogue of the intrusive linked list used by the reference
// reactor: rather than embedding raw prev/next pointers in the payload type
// (which Go's GC and value semantics make awkward), elements live in a slab
// and are linked via int32 indices. Unlinking an element given its Handle is
// O(1) and never shifts or copies other elements, matching the essential
// property the reference design calls out: cancellation of a pending entry
// without a scan. See go-catrate's ringBuffer (_examples/joeycumines-go-utilpkg/catrate/ring.go)
// for the sibling technique of growing a slab in place rather than
// reallocating a tree of pointer nodes.
package intrusive

// Handle addresses a single element within a List's slab. The zero Handle is
// not meaningful on its own; use Nil to represent "no element".
type Handle int32

// Nil is the sentinel Handle meaning "no element".
const Nil Handle = -1

type node[T any] struct {
	value      T
	prev, next Handle
}

// List is a FIFO-ordered (on Append/PopHead) doubly linked list of T.
//
// The zero value is not usable; construct with New. A List is not safe for
// concurrent use - callers on this spec's reactor thread never need it to
// be.
type List[T any] struct {
	nodes    []node[T]
	freeHead Handle
	head     Handle
	tail     Handle
	length   int
}

// New returns an empty List.
func New[T any]() *List[T] {
	return &List[T]{freeHead: Nil, head: Nil, tail: Nil}
}

// Len returns the number of elements currently linked into the list.
func (l *List[T]) Len() int { return l.length }

// Empty reports whether the list has no linked elements.
func (l *List[T]) Empty() bool { return l.length == 0 }

// Append adds v to the tail of the list and returns its Handle, which may
// later be passed to Unlink for O(1) removal.
func (l *List[T]) Append(v T) Handle {
	h := l.alloc(v)
	n := &l.nodes[h]
	n.prev = l.tail
	n.next = Nil
	if l.tail != Nil {
		l.nodes[l.tail].next = h
	} else {
		l.head = h
	}
	l.tail = h
	l.length++
	return h
}

// PopHead removes and returns the head element, if any.
func (l *List[T]) PopHead() (value T, ok bool) {
	if l.head == Nil {
		return value, false
	}
	h := l.head
	value = l.nodes[h].value
	l.unlink(h)
	return value, true
}

// Unlink removes the element identified by h from the list in O(1).
// Unlinking a handle that is not currently linked (already popped or
// unlinked) is a programmer error and panics, mirroring the reference
// design's treatment of invariant violations as assertions.
func (l *List[T]) Unlink(h Handle) {
	if h < 0 || int(h) >= len(l.nodes) {
		panic("intrusive: unlink: handle out of range")
	}
	// A linked node is either the head or has a predecessor; a freed node
	// has prev == Nil and is never the head.
	if l.nodes[h].prev == Nil && l.head != h {
		panic("intrusive: unlink: handle not linked")
	}
	l.unlink(h)
}

// Value returns the payload currently linked at h.
func (l *List[T]) Value(h Handle) T {
	return l.nodes[h].value
}

// Head returns the Handle of the head element without unlinking it, or
// (Nil, false) if the list is empty. Used to peek a due-time before
// deciding whether to pop.
func (l *List[T]) Head() (Handle, bool) {
	if l.head == Nil {
		return Nil, false
	}
	return l.head, true
}

func (l *List[T]) unlink(h Handle) {
	n := &l.nodes[h]
	if n.prev != Nil {
		l.nodes[n.prev].next = n.next
	} else {
		l.head = n.next
	}
	if n.next != Nil {
		l.nodes[n.next].prev = n.prev
	} else {
		l.tail = n.prev
	}
	var zero T
	n.value = zero
	n.next = l.freeHead
	n.prev = Nil
	l.freeHead = h
	l.length--
}

func (l *List[T]) alloc(v T) Handle {
	if l.freeHead != Nil {
		h := l.freeHead
		n := &l.nodes[h]
		l.freeHead = n.next
		n.value = v
		return h
	}
	l.nodes = append(l.nodes, node[T]{value: v, prev: Nil, next: Nil})
	return Handle(len(l.nodes) - 1)
}
