package arena

import (
	"log/slog"
	"unsafe"
)

const (
	// DefaultBlockSize is the block size used when the caller passes a
	// non-positive block size to a constructor (64 KiB).
	DefaultBlockSize = 1 << 16

	// MinBlockSize is the smallest block size an Arena will use;
	// smaller configured sizes are rounded up at construction.
	MinBlockSize = 4096

	// inlineBlockSize is the capacity of the block embedded in the
	// Arena struct itself. Small arenas never reserve a heap block.
	inlineBlockSize = 2048

	wordSize = int(unsafe.Sizeof(uintptr(0)))
)

// Arena is a single-threaded bump allocator. Memory is carved from an
// inline block embedded in the struct, then from heap blocks of a fixed
// block size; requests larger than a quarter block get a dedicated
// "irregular" block so they don't strand the tail of a shared one.
//
// Within the current block, aligned requests grow a cursor from the
// front and unaligned requests grow one from the back, so one block
// serves both without waste.
//
// Arena is not goroutine-safe; use ConcurrentArena for concurrent
// access. There is no per-object free: the arena is released as one
// unit with Release.
type Arena struct {
	inline [inlineBlockSize]byte

	blockSize    int
	hugePageSize int

	cur          []byte // current block; nil after Release
	alignedOff   int    // front cursor (aligned allocations)
	unalignedOff int    // back cursor (unaligned allocations)

	blocks       [][]byte
	blocksMemory int
	irregular    int
	inInline     bool

	tracker AllocTracker
}

// NewArena creates an Arena. blockSize drives the size of heap blocks;
// non-positive means DefaultBlockSize, and anything below MinBlockSize
// is rounded up. tracker may be nil. hugePageSize is the default
// placement hint for AllocateAligned; zero disables it.
func NewArena(blockSize int, tracker AllocTracker, hugePageSize int) *Arena {
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}
	if blockSize < MinBlockSize {
		blockSize = MinBlockSize
	}
	// Keep block sizes word-granular so back-cursor allocations of
	// word-multiple sizes stay word-aligned.
	blockSize = alignUp(blockSize, wordSize)

	a := &Arena{
		blockSize:    blockSize,
		hugePageSize: hugePageSize,
		blocksMemory: inlineBlockSize,
		inInline:     true,
		tracker:      tracker,
	}
	a.cur = a.inline[:]
	a.unalignedOff = len(a.cur)
	if tracker != nil {
		tracker.Allocate(inlineBlockSize)
	}
	return a
}

// Allocate returns a slice of exactly n uninitialized bytes, with no
// alignment guarantee. Returns nil if n <= 0.
func (a *Arena) Allocate(n int) []byte {
	if n <= 0 {
		return nil
	}
	a.panicIfReleased()
	if n <= a.unalignedOff-a.alignedOff {
		a.unalignedOff -= n
		return a.cur[a.unalignedOff : a.unalignedOff+n : a.unalignedOff+n]
	}
	return a.allocateFallback(n, false)
}

// AllocateAligned returns a slice of n uninitialized bytes whose first
// byte is word-aligned. A non-zero hugePageSize requests placement in a
// dedicated block; the decision is recorded on logger when one is
// supplied. Returns nil if n <= 0.
func (a *Arena) AllocateAligned(n int, hugePageSize int, logger *slog.Logger) []byte {
	if n <= 0 {
		return nil
	}
	a.panicIfReleased()

	if hugePageSize > 0 {
		// No portable huge-page placement from Go's allocator; the
		// request still gets its own block so the fixed-size blocks
		// keep their layout.
		if logger != nil {
			logger.Debug("arena: huge page requested, using dedicated block",
				"bytes", n, "huge_page_size", hugePageSize)
		}
		block := a.newBlock(alignUp(n, wordSize))
		a.irregular++
		return block[:n:n]
	}

	slop := a.alignedSlop()
	if n+slop <= a.unalignedOff-a.alignedOff {
		start := a.alignedOff + slop
		a.alignedOff = start + n
		return a.cur[start : start+n : start+n]
	}
	return a.allocateFallback(n, true)
}

// allocateFallback serves a request the current block cannot hold.
func (a *Arena) allocateFallback(n int, aligned bool) []byte {
	if n > a.blockSize/4 {
		// More than a quarter of a block: dedicated allocation, so the
		// leftover of the current block isn't wasted on one request.
		block := a.newBlock(alignUp(n, wordSize))
		a.irregular++
		return block[:n:n]
	}

	block := a.newBlock(a.blockSize)
	a.cur = block
	a.alignedOff = 0
	a.unalignedOff = len(block)

	if aligned {
		start := a.alignedSlop()
		a.alignedOff = start + n
		return a.cur[start : start+n : start+n]
	}
	a.unalignedOff -= n
	return a.cur[a.unalignedOff : a.unalignedOff+n : a.unalignedOff+n]
}

// alignedSlop returns how many bytes the front cursor must skip so the
// next allocation starts word-aligned.
func (a *Arena) alignedSlop() int {
	addr := uintptr(unsafe.Pointer(unsafe.SliceData(a.cur))) + uintptr(a.alignedOff)
	return int((uintptr(wordSize) - addr%uintptr(wordSize)) % uintptr(wordSize))
}

// newBlock reserves a heap block of size bytes and records it.
func (a *Arena) newBlock(size int) []byte {
	b := make([]byte, size)
	a.blocks = append(a.blocks, b)
	a.blocksMemory += size
	a.inInline = false
	if a.tracker != nil {
		a.tracker.Allocate(size)
	}
	return b
}

// AllocatedAndUnused returns the bytes remaining in the current block.
func (a *Arena) AllocatedAndUnused() int {
	if a.cur == nil {
		return 0
	}
	return a.unalignedOff - a.alignedOff
}

// MemoryAllocatedBytes returns the total backing memory reserved,
// including the inline block and irregular blocks.
func (a *Arena) MemoryAllocatedBytes() int {
	return a.blocksMemory
}

// ApproximateMemoryUsage returns reserved memory minus the unused tail
// of the current block.
func (a *Arena) ApproximateMemoryUsage() int {
	return a.blocksMemory - a.AllocatedAndUnused()
}

// IrregularBlockNum returns how many dedicated, off-size blocks have
// been reserved.
func (a *Arena) IrregularBlockNum() int {
	return a.irregular
}

// BlockSize returns the heap block size.
func (a *Arena) BlockSize() int {
	return a.blockSize
}

// IsInInlineBlock reports whether every allocation so far has been
// served from the inline block.
func (a *Arena) IsInInlineBlock() bool {
	return a.inInline
}

// Release drops all blocks and makes the arena unusable. Allocation
// after Release panics. Memory handed out earlier must no longer be
// used.
func (a *Arena) Release() {
	a.cur = nil
	a.blocks = nil
	a.blocksMemory = 0
	a.alignedOff = 0
	a.unalignedOff = 0
	a.irregular = 0
	a.inInline = false
	if a.tracker != nil {
		a.tracker.FreeMem()
	}
}

func (a *Arena) panicIfReleased() {
	if a.cur == nil {
		panic("arena: use after Release()")
	}
}

// alignUp rounds n up to the next multiple of align (a power of two).
func alignUp(n, align int) int {
	return (n + align - 1) &^ (align - 1)
}
