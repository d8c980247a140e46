package arena

import (
	"runtime"
	_ "unsafe" // for go:linkname

	"golang.org/x/sys/cpu"
)

//go:linkname runtime_procPin runtime.procPin
//go:nosplit
func runtime_procPin() int

//go:linkname runtime_procUnpin runtime.procUnpin
//go:nosplit
func runtime_procUnpin()

// coreSlot pads each element out to its own cache line so that
// neighboring slots never false-share.
type coreSlot[T any] struct {
	value T
	_     cpu.CacheLinePad
}

// CoreLocal is a fixed array of independently addressable slots, one
// per virtual core, sized to the next power of two at or above the
// scheduler's processor count. Slots are cache-line padded. The current
// execution context's slot is found by pinning to the current P; the
// mapping is best-effort (a goroutine may migrate between calls), so
// callers must treat slot identity as a locality hint, not an owner.
type CoreLocal[T any] struct {
	slots []coreSlot[T]
	mask  int
}

// NewCoreLocal creates a CoreLocal sized to the current GOMAXPROCS,
// rounded up to a power of two.
func NewCoreLocal[T any]() *CoreLocal[T] {
	return newCoreLocalSize[T](runtime.GOMAXPROCS(0))
}

func newCoreLocalSize[T any](n int) *CoreLocal[T] {
	size := 1
	for size < n {
		size <<= 1
	}
	return &CoreLocal[T]{
		slots: make([]coreSlot[T], size),
		mask:  size - 1,
	}
}

// Size returns the number of slots. It is always a power of two.
func (c *CoreLocal[T]) Size() int {
	return len(c.slots)
}

// AccessAtCore returns the slot at index i. i must be in [0, Size()).
func (c *CoreLocal[T]) AccessAtCore(i int) *T {
	return &c.slots[i].value
}

// AccessElementAndIndex returns the slot mapped to the current
// execution context together with its index.
func (c *CoreLocal[T]) AccessElementAndIndex() (*T, int) {
	pid := runtime_procPin()
	runtime_procUnpin()
	idx := pid & c.mask
	return &c.slots[idx].value, idx
}
