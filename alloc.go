package arena

import (
	"log/slog"
	"unsafe"
)

// Allocator is the capability contract shared by Arena and
// ConcurrentArena. Callers that only allocate should depend on this
// interface rather than a concrete arena type.
type Allocator interface {
	// Allocate returns exactly n uninitialized bytes, unaligned unless
	// n is itself a multiple of the word size.
	Allocate(n int) []byte
	// AllocateAligned returns a word-aligned region of at least n
	// bytes. A non-zero hugePageSize requests huge-page placement;
	// logger, which may be nil, receives placement notes.
	AllocateAligned(n int, hugePageSize int, logger *slog.Logger) []byte
	// BlockSize returns the allocator's block size.
	BlockSize() int
}

var (
	_ Allocator = (*Arena)(nil)
	_ Allocator = (*ConcurrentArena)(nil)
)

// Alloc returns a pointer to a zeroed T stored inside the allocator.
// The pointer is valid until the owning arena is released.
func Alloc[T any](a Allocator) *T {
	p := AllocUninitialized[T](a)
	var zero T
	*p = zero
	return p
}

// AllocUninitialized returns a *T located in the allocator without
// zeroing the memory. Faster than Alloc; the contents are undefined.
func AllocUninitialized[T any](a Allocator) *T {
	size := int(unsafe.Sizeof(*new(T)))
	if size == 0 {
		return new(T)
	}
	b := a.AllocateAligned(size, 0, nil)
	return (*T)(unsafe.Pointer(&b[0]))
}

// AllocSlice allocates a slice of n elements of type T inside the
// allocator. The elements are not initialized. Returns nil if n <= 0.
func AllocSlice[T any](a Allocator, n int) []T {
	if n <= 0 {
		return nil
	}
	elemSize := int(unsafe.Sizeof(*new(T)))
	if elemSize == 0 {
		return make([]T, n)
	}
	b := a.AllocateAligned(elemSize*n, 0, nil)
	return unsafe.Slice((*T)(unsafe.Pointer(&b[0])), n)
}

// AllocSliceZeroed allocates a slice of n zeroed elements of type T.
func AllocSliceZeroed[T any](a Allocator, n int) []T {
	s := AllocSlice[T](a, n)
	var zero T
	for i := range s {
		s[i] = zero
	}
	return s
}
