package arena

import (
	"log/slog"
	"runtime"
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

// maxShardBlockSize caps the per-core shard window. Without a cap, 64
// cores with 1 MiB windows would reserve 64 MiB before a single byte is
// used; 128 KiB keeps the worst case proportionate.
const maxShardBlockSize = 128 * 1024

// shard is one per-core allocation window carved from the underlying
// arena. Mutated only while mu is held; the capacity counter is also
// read lock-free by the statistics queries. CoreLocal pads each shard
// to its own cache line.
type shard struct {
	mu SpinLock
	// free is the current window. Aligned allocations consume it from
	// the front, unaligned ones from the back at capacity-n, so one
	// window serves both; the two ends can't meet because the counter
	// drops by n either way.
	free               []byte
	allocatedAndUnused atomic.Int64
}

// ConcurrentArena makes an Arena safe for concurrent use. Uncontended
// or large allocations go straight to the arena under a spin lock;
// small allocations under contention are served from per-core shard
// windows so that threads stop meeting on the arena lock. Shards are
// lazily populated and sized against the arena's own block size, so a
// ConcurrentArena that never sees concurrency wastes no memory on them.
//
// ConcurrentArena implements Allocator. Accounting queries are
// approximate: they read counters that are refreshed only while the
// arena lock is held.
type ConcurrentArena struct {
	shardBlockSize int
	shards         *CoreLocal[shard]
	// vcore holds each execution context's virtual core id, the Go
	// stand-in for a thread-local: 0 means "never repicked", any other
	// value was written by repick and only ever read modulo the shard
	// count. A racing store is harmless; the id is a locality hint.
	vcore *CoreLocal[atomic.Int64]
	arena *Arena

	// Hot read-mostly fields above; the lock and statistics below get
	// their own cache line so fixup stores don't invalidate them.
	_       cpu.CacheLinePad
	arenaMu SpinLock

	arenaAllocatedAndUnused atomic.Int64
	memoryAllocatedBytes    atomic.Int64
	irregularBlockNum       atomic.Int64
	_                       cpu.CacheLinePad
}

// NewConcurrentArena creates a ConcurrentArena and the Arena it wraps.
// Arguments are those of NewArena. The shard window size is derived
// from the arena's block size: blockSize/8, capped at 128 KiB.
func NewConcurrentArena(blockSize int, tracker AllocTracker, hugePageSize int) *ConcurrentArena {
	underlying := NewArena(blockSize, tracker, hugePageSize)
	ncore := runtime.GOMAXPROCS(0)
	a := &ConcurrentArena{
		shardBlockSize: min(maxShardBlockSize, underlying.BlockSize()/8),
		shards:         newCoreLocalSize[shard](ncore),
		vcore:          newCoreLocalSize[atomic.Int64](ncore),
		arena:          underlying,
	}
	a.fixup()
	return a
}

// Allocate returns a slice of exactly n uninitialized bytes. Safe for
// concurrent use. Returns nil if n <= 0.
func (a *ConcurrentArena) Allocate(n int) []byte {
	return a.allocate(n, false, func() []byte {
		return a.arena.Allocate(n)
	})
}

// AllocateAligned rounds n up to a multiple of the word size and
// returns a word-aligned slice of that length. A non-zero hugePageSize
// forces the allocation onto the underlying arena, which owns huge-page
// placement; logger receives its placement notes. Safe for concurrent
// use. Returns nil if n <= 0.
func (a *ConcurrentArena) AllocateAligned(n int, hugePageSize int, logger *slog.Logger) []byte {
	if n <= 0 {
		return nil
	}
	rounded := alignUp(n, wordSize)
	return a.allocate(rounded, hugePageSize != 0, func() []byte {
		return a.arena.AllocateAligned(rounded, hugePageSize, logger)
	})
}

// allocate routes one request. alloc performs the actual arena call and
// must be invoked only while arenaMu is held.
func (a *ConcurrentArena) allocate(n int, forceArena bool, alloc func() []byte) []byte {
	if n <= 0 {
		return nil
	}

	// Go directly to the arena if the request is too large for a
	// shard, if the caller requires it, or if no contention has been
	// seen yet (this context never repicked, shard 0 never filled) and
	// the arena lock is free right now. Single-threaded use stays on
	// this path forever and pays nothing for the shards.
	vcid := 0
	arenaLocked := false
	direct := n > a.shardBlockSize/4 || forceArena
	if !direct {
		vcid = a.currentVCore()
		if vcid == 0 &&
			a.shards.AccessAtCore(0).allocatedAndUnused.Load() == 0 &&
			a.arenaMu.TryLock() {
			direct = true
			arenaLocked = true
		}
	}
	if direct {
		if !arenaLocked {
			a.arenaMu.Lock()
		}
		rv := alloc()
		a.fixup()
		a.arenaMu.Unlock()
		return rv
	}

	s := a.shards.AccessAtCore(vcid & (a.shards.Size() - 1))
	if !s.mu.TryLock() {
		// Contended: move this context to a different shard and take
		// that one unconditionally. No retry loop.
		s = a.repick()
		s.mu.Lock()
	}
	defer s.mu.Unlock()

	avail := int(s.allocatedAndUnused.Load())
	if avail < n {
		a.arenaMu.Lock()
		exact := int(a.arenaAllocatedAndUnused.Load())
		if exact >= n && a.arena.IsInInlineBlock() {
			// The arena's inline block still covers this request;
			// don't burn a whole shard window on an allocator that may
			// only ever need a few hundred bytes.
			rv := alloc()
			a.fixup()
			a.arenaMu.Unlock()
			return rv
		}
		// If the arena's leftover is within a factor of two of the
		// shard window size, take exactly that and leave no stranded
		// remainder behind.
		if exact >= a.shardBlockSize/2 && exact < a.shardBlockSize*2 {
			avail = exact
		} else {
			avail = a.shardBlockSize
		}
		s.free = a.arena.AllocateAligned(avail, 0, nil)
		a.fixup()
		a.arenaMu.Unlock()
	}
	s.allocatedAndUnused.Store(int64(avail - n))

	if n%wordSize == 0 {
		rv := s.free[:n:n]
		s.free = s.free[n:]
		return rv
	}
	return s.free[avail-n : avail : avail]
}

// currentVCore returns the calling context's virtual core id, 0 if it
// has never been repicked.
func (a *ConcurrentArena) currentVCore() int {
	v, _ := a.vcore.AccessElementAndIndex()
	return int(v.Load())
}

// repick assigns the calling context a fresh shard after contention.
// The stored id is index | Size(): always non-zero, and each repick of
// a still-colliding context climbs into the next power-of-two id range,
// spreading it further on the next allocation.
func (a *ConcurrentArena) repick() *shard {
	s, idx := a.shards.AccessElementAndIndex()
	v, _ := a.vcore.AccessElementAndIndex()
	v.Store(int64(idx | a.shards.Size()))
	return s
}

// fixup refreshes the cached statistics from the arena. Callers must
// hold arenaMu.
func (a *ConcurrentArena) fixup() {
	a.arenaAllocatedAndUnused.Store(int64(a.arena.AllocatedAndUnused()))
	a.memoryAllocatedBytes.Store(int64(a.arena.MemoryAllocatedBytes()))
	a.irregularBlockNum.Store(int64(a.arena.IrregularBlockNum()))
}

// shardAllocatedAndUnused sums the shards' remaining capacities
// lock-free. Concurrent refills can transiently skew the sum.
func (a *ConcurrentArena) shardAllocatedAndUnused() int {
	total := int64(0)
	for i := 0; i < a.shards.Size(); i++ {
		total += a.shards.AccessAtCore(i).allocatedAndUnused.Load()
	}
	return int(total)
}

// ApproximateMemoryUsage returns the bytes in use: arena usage minus
// whatever still sits unused in shard windows. Approximate under
// concurrent allocation.
func (a *ConcurrentArena) ApproximateMemoryUsage() int {
	a.arenaMu.Lock()
	usage := a.arena.ApproximateMemoryUsage()
	a.arenaMu.Unlock()
	return usage - a.shardAllocatedAndUnused()
}

// MemoryAllocatedBytes returns the total backing memory reserved by the
// underlying arena.
func (a *ConcurrentArena) MemoryAllocatedBytes() int {
	return int(a.memoryAllocatedBytes.Load())
}

// AllocatedAndUnused returns bytes reserved but not yet handed out,
// in the arena's current block and across all shard windows.
func (a *ConcurrentArena) AllocatedAndUnused() int {
	return int(a.arenaAllocatedAndUnused.Load()) + a.shardAllocatedAndUnused()
}

// IrregularBlockNum returns the underlying arena's count of dedicated,
// off-size blocks.
func (a *ConcurrentArena) IrregularBlockNum() int {
	return int(a.irregularBlockNum.Load())
}

// BlockSize returns the underlying arena's block size.
func (a *ConcurrentArena) BlockSize() int {
	return a.arena.BlockSize()
}

// ShardBlockSize returns the per-core shard window size.
func (a *ConcurrentArena) ShardBlockSize() int {
	return a.shardBlockSize
}

// Release drops the underlying arena and every shard window. No
// allocation may be in flight, and memory handed out earlier must no
// longer be used. Shard locks are taken before the arena lock, same
// order as the allocation path.
func (a *ConcurrentArena) Release() {
	for i := 0; i < a.shards.Size(); i++ {
		a.shards.AccessAtCore(i).mu.Lock()
	}
	a.arenaMu.Lock()
	a.arena.Release()
	for i := 0; i < a.shards.Size(); i++ {
		s := a.shards.AccessAtCore(i)
		s.free = nil
		s.allocatedAndUnused.Store(0)
	}
	a.fixup()
	a.arenaMu.Unlock()
	for i := 0; i < a.shards.Size(); i++ {
		a.shards.AccessAtCore(i).mu.Unlock()
	}
}
