// Package arena implements a fixed-capacity stack allocator.
//
// An [Arena] hands out aligned byte ranges by bumping a cursor through one
// buffer obtained from a parent [Allocator]. Typed values built with [Make]
// register a destructor in strict construction order. A [Marker] captures
// the cursor and the destructor count, and [Arena.RollbackTo] returns to it,
// optionally running the newer destructors in reverse order.
//
// Typical per-frame usage:
//
//	scratch := arena.New(arena.WithCapacity(64 << 10))
//	defer scratch.Close()
//
//	for running {
//	    m := scratch.Marker()
//	    verts, _ := arena.Make[Vertex](scratch, n, nil)
//	    ...
//	    scratch.RollbackTo(m, true)
//	}
//
// An Arena is not safe for concurrent use.
//
// # Protocol violations
//
// Closing an arena with live allocations, closing twice, using it after
// Close, or rolling back to a foreign or stale marker are protocol
// violations. By default they panic with an error wrapping
// [ErrProtocolViolation]. Builds tagged bberelease log the violation through
// the engine logger and continue: the operation is ignored, except Close,
// which runs the outstanding destructors and releases the buffer.
package arena
