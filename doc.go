// Package arena implements a bump allocator (memory arena) with a
// sharded concurrency layer for Go.
//
// # Overview
//
// An arena allocator serves requests by advancing a cursor through
// preallocated blocks; nothing is freed individually, the whole arena
// is released at once. This suits workloads that create many small,
// short-lived records and drop them together, such as a storage
// engine's in-memory write buffers.
//
// Two allocator types are provided:
//
//   - Arena: the single-threaded core. Fast, no synchronization.
//   - ConcurrentArena: wraps an Arena for concurrent use. Large or
//     uncontended allocations take the arena directly under a spin
//     lock; small allocations under contention are served from
//     per-core shard windows so goroutines stop meeting on one lock.
//
// # Basic Usage
//
//	a := arena.NewConcurrentArena(0, nil, 0) // default block size
//	defer a.Release()                        // clean up when done
//
//	// Allocate raw bytes
//	buf := a.Allocate(1024)
//
//	// Word-aligned allocation
//	buf = a.AllocateAligned(1024, 0, nil)
//
//	// Allocate typed values
//	ptr := arena.Alloc[MyStruct](a)
//	slice := arena.AllocSlice[int](a, 100)
//
// # Concurrency
//
// ConcurrentArena keeps the uncontended case nearly free: a
// single-goroutine workload stays on the direct arena path and never
// pays for shard bookkeeping. When a goroutine finds its shard locked
// it is repicked onto another shard and remembers the choice, so a
// fixed set of competing goroutines spreads out across shards instead
// of spinning. Shard windows are small (blockSize/8, capped at 128 KiB)
// and lazily filled, bounding the memory parked in per-core caches.
//
// # Accounting
//
// Both types expose MemoryAllocatedBytes, AllocatedAndUnused,
// ApproximateMemoryUsage, IrregularBlockNum and a Metrics snapshot.
// On ConcurrentArena these are approximate: counters are refreshed only
// while the arena lock is held and read without locks elsewhere.
//
// # Important Notes
//
//   - Allocated memory is only valid until Release
//   - No individual deallocation; release the arena as one unit
//   - Memory is not zeroed unless allocated via Alloc/AllocSliceZeroed
//   - Alignment: AllocateAligned guarantees word alignment; Allocate
//     only when the size is a word multiple and served as such
package arena
