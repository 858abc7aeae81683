package arena

import (
	"sync"
	"unsafe"

	bbe "github.com/Brotcrunsher/BrotboxEngine"
)

// MaxAlign is the alignment of every block returned by [HeapAllocator].
// Arena alignments up to MaxAlign are therefore independent of where the
// Go heap placed the block.
const MaxAlign = 64

// Allocator is the parent an [Arena] obtains its buffer from.
type Allocator interface {
	// Allocate returns a block of exactly size bytes.
	Allocate(size int) []byte
	// Deallocate returns a block previously obtained from Allocate.
	Deallocate(buf []byte)
}

// HeapAllocator is the default parent allocator. It hands out MaxAlign
// aligned blocks from the Go heap and tracks the blocks it has not seen
// returned. It is safe for concurrent use.
type HeapAllocator struct {
	mu    sync.Mutex
	live  map[uintptr]int
	bytes int
}

// NewHeapAllocator returns an empty HeapAllocator.
func NewHeapAllocator() *HeapAllocator {
	return &HeapAllocator{live: make(map[uintptr]int)}
}

// Allocate returns a zeroed block of size bytes starting on a MaxAlign boundary.
func (h *HeapAllocator) Allocate(size int) []byte {
	if size < 0 {
		size = 0
	}
	raw := make([]byte, size+MaxAlign)
	addr := uintptr(unsafe.Pointer(unsafe.SliceData(raw)))
	off := int(alignUp(addr, MaxAlign) - addr)
	block := raw[off : off+size : off+size]

	h.mu.Lock()
	if h.live == nil {
		h.live = make(map[uintptr]int)
	}
	h.live[blockKey(block)] = size
	h.bytes += size
	h.mu.Unlock()
	return block
}

// Deallocate forgets buf. Blocks this allocator never handed out are
// reported and ignored.
func (h *HeapAllocator) Deallocate(buf []byte) {
	key := blockKey(buf)
	h.mu.Lock()
	size, ok := h.live[key]
	if ok {
		delete(h.live, key)
		h.bytes -= size
	}
	h.mu.Unlock()
	if !ok {
		bbe.Logger().Warn("arena: deallocate of unknown block", "cap", cap(buf))
	}
}

// Live returns the number of blocks and bytes not yet deallocated.
func (h *HeapAllocator) Live() (blocks, bytes int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.live), h.bytes
}

// Close reports blocks that were never deallocated and drops them.
func (h *HeapAllocator) Close() {
	h.mu.Lock()
	blocks, bytes := len(h.live), h.bytes
	h.live = make(map[uintptr]int)
	h.bytes = 0
	h.mu.Unlock()
	if blocks > 0 {
		bbe.Logger().Warn("arena: heap allocator closed with live blocks",
			"blocks", blocks, "bytes", bytes)
	}
}

// blockKey identifies a block by its start address. Empty blocks share key 0.
func blockKey(buf []byte) uintptr {
	if cap(buf) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(unsafe.SliceData(buf)))
}

// alignUp rounds addr up to the next multiple of align (align >= 1).
// An already aligned addr is returned unchanged.
func alignUp(addr, align uintptr) uintptr {
	if rem := addr % align; rem != 0 {
		return addr + align - rem
	}
	return addr
}
