package arena

import (
	"errors"
	"fmt"
	"unsafe"

	bbe "github.com/Brotcrunsher/BrotboxEngine"
)

// DefaultCapacity is the capacity of an arena created without WithCapacity.
const DefaultCapacity = 1024

// Errors returned by allocation.
var (
	// ErrCapacityExceeded means the request does not fit in the remaining
	// space. The arena is unchanged.
	ErrCapacityExceeded = errors.New("arena: capacity exceeded")

	// ErrInvalidAlignment means an alignment below 1 was requested.
	ErrInvalidAlignment = errors.New("arena: alignment must be >= 1")

	// ErrInvalidSize means a negative byte count was requested.
	ErrInvalidSize = errors.New("arena: size must be >= 0")

	// ErrInvalidCount means a typed allocation asked for fewer than one object.
	ErrInvalidCount = errors.New("arena: count must be >= 1")

	// ErrPointerType means the element type holds Go pointers, which the
	// garbage collector would not see inside arena memory.
	ErrPointerType = errors.New("arena: type contains pointers")
)

// Option configures an Arena during creation.
type Option func(*options)

type options struct {
	capacity int
	parent   Allocator
}

// WithCapacity sets the arena capacity in bytes.
// Values <= 0 select DefaultCapacity.
func WithCapacity(n int) Option {
	return func(o *options) {
		o.capacity = n
	}
}

// WithAllocator supplies the parent allocator. The arena borrows it and
// never closes it. Without this option the arena creates and owns a
// HeapAllocator.
func WithAllocator(a Allocator) Option {
	return func(o *options) {
		o.parent = a
	}
}

// Arena is a fixed-capacity bump allocator with a destructor registry.
type Arena struct {
	buf        []byte
	base       uintptr
	head       int
	peak       int
	parent     Allocator
	ownsParent bool
	dtors      registry
	closed     bool
}

// New creates an arena. Its buffer is obtained from the parent allocator
// once and zeroed; the arena never grows.
func New(opts ...Option) *Arena {
	o := options{capacity: DefaultCapacity}
	for _, opt := range opts {
		opt(&o)
	}
	if o.capacity <= 0 {
		o.capacity = DefaultCapacity
	}

	a := &Arena{parent: o.parent}
	if a.parent == nil {
		a.parent = NewHeapAllocator()
		a.ownsParent = true
	}
	a.buf = a.parent.Allocate(o.capacity)
	clear(a.buf)
	a.base = uintptr(unsafe.Pointer(unsafe.SliceData(a.buf)))
	return a
}

// Allocate reserves n bytes whose address is a multiple of alignment.
// The cursor first moves up to the next aligned address (not at all if it
// is already aligned), then past the n bytes.
//
// On failure the arena is unchanged. Rollback is the only way to give the
// bytes back.
func (a *Arena) Allocate(n, alignment int) ([]byte, error) {
	if err := a.checkOpen("Allocate"); err != nil {
		return nil, err
	}
	if alignment < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidAlignment, alignment)
	}
	if n < 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidSize, n)
	}
	start, err := a.reserve(n, alignment)
	if err != nil {
		return nil, err
	}
	return a.buf[start : start+n : start+n], nil
}

// reserve bumps the cursor past n bytes at the given alignment and returns
// the start offset.
func (a *Arena) reserve(n, alignment int) (int, error) {
	start := a.alignedHead(alignment)
	if start > len(a.buf) || n > len(a.buf)-start {
		return 0, fmt.Errorf("%w: need %d bytes at offset %d, capacity %d",
			ErrCapacityExceeded, n, start, len(a.buf))
	}
	a.head = start + n
	if a.head > a.peak {
		a.peak = a.head
	}
	return start, nil
}

// alignedHead returns the offset of the first address at or above the
// cursor that is a multiple of alignment.
func (a *Arena) alignedHead(alignment int) int {
	addr := a.base + uintptr(a.head)
	return a.head + int(alignUp(addr, uintptr(alignment))-addr)
}

// Marker captures the current cursor and destructor count.
func (a *Arena) Marker() Marker {
	if err := a.checkOpen("Marker"); err != nil {
		return Marker{}
	}
	return Marker{arena: a, head: a.head, destructors: a.dtors.len()}
}

// RollbackTo moves the cursor back to m. Destructors registered after m
// are removed; with invokeDestructors set they run newest first before the
// cursor moves. Objects allocated after m must not be used afterwards.
func (a *Arena) RollbackTo(m Marker, invokeDestructors bool) {
	if err := a.checkOpen("RollbackTo"); err != nil {
		return
	}
	if m.arena != a {
		_ = a.violate("RollbackTo", "marker belongs to a different arena")
		return
	}
	if m.head > a.head || m.destructors > a.dtors.len() {
		_ = a.violate("RollbackTo", fmt.Sprintf(
			"stale marker (head %d > %d or destructors %d > %d)",
			m.head, a.head, m.destructors, a.dtors.len()))
		return
	}
	a.rollback(m.head, m.destructors, invokeDestructors)
}

// ResetAll rolls back to the empty arena.
func (a *Arena) ResetAll(invokeDestructors bool) {
	if err := a.checkOpen("ResetAll"); err != nil {
		return
	}
	a.rollback(0, 0, invokeDestructors)
}

func (a *Arena) rollback(head, destructors int, invoke bool) {
	released := a.head - head
	dropped := a.dtors.len() - destructors
	a.dtors.truncate(destructors, invoke)
	a.head = head
	bbe.Logger().Debug("arena: rollback",
		"released", released, "destructors", dropped, "invoked", invoke)
}

// Scope runs fn between a marker and a rollback that invokes destructors.
// The rollback also happens when fn panics.
func (a *Arena) Scope(fn func() error) error {
	m := a.Marker()
	defer a.RollbackTo(m, true)
	return fn()
}

// Close returns the buffer to the parent allocator, and closes the parent
// if the arena created it. Every allocation must have been rolled back.
func (a *Arena) Close() {
	if a.closed {
		_ = a.violate("Close", "arena already closed")
		return
	}
	if a.head != 0 || a.dtors.len() != 0 {
		_ = a.violate("Close", fmt.Sprintf(
			"%d bytes and %d destructors still live", a.head, a.dtors.len()))
		// Reached only when violations do not panic.
		a.dtors.truncate(0, true)
		a.head = 0
	}
	a.parent.Deallocate(a.buf)
	if a.ownsParent {
		if c, ok := a.parent.(interface{ Close() }); ok {
			c.Close()
		}
	}
	a.buf = nil
	a.base = 0
	a.closed = true
}

// Len returns the cursor offset in bytes, including alignment padding.
func (a *Arena) Len() int { return a.head }

// Cap returns the fixed capacity in bytes.
func (a *Arena) Cap() int { return len(a.buf) }

// Available returns the bytes left above the cursor, ignoring alignment.
func (a *Arena) Available() int { return len(a.buf) - a.head }

// Peak returns the highest cursor offset ever reached.
func (a *Arena) Peak() int { return a.peak }

// Destructors returns the number of registered destructors.
func (a *Arena) Destructors() int { return a.dtors.len() }

// Closed reports whether Close has been called.
func (a *Arena) Closed() bool { return a.closed }

// Stats is a point-in-time snapshot of an arena.
type Stats struct {
	InUse       int
	Capacity    int
	Available   int
	Peak        int
	Destructors int
}

// Stats returns a snapshot of the arena counters.
func (a *Arena) Stats() Stats {
	return Stats{
		InUse:       a.head,
		Capacity:    len(a.buf),
		Available:   len(a.buf) - a.head,
		Peak:        a.peak,
		Destructors: a.dtors.len(),
	}
}

func (a *Arena) checkOpen(op string) error {
	if a.closed {
		return a.violate(op, "arena used after Close")
	}
	return nil
}
