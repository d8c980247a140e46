package arena

import (
	"testing"
	"unsafe"
)

func TestNewArena(t *testing.T) {
	tests := []struct {
		name      string
		blockSize int
		expected  int
	}{
		{"default block size", 0, DefaultBlockSize},
		{"negative block size", -1, DefaultBlockSize},
		{"below minimum", 1024, MinBlockSize},
		{"custom block size", 8192, 8192},
		{"unaligned block size", 8193, alignUp(8193, wordSize)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewArena(tt.blockSize, nil, 0)
			if a.BlockSize() != tt.expected {
				t.Errorf("NewArena(%d) block size = %d, want %d", tt.blockSize, a.BlockSize(), tt.expected)
			}
			if !a.IsInInlineBlock() {
				t.Errorf("NewArena(%d) not in inline block", tt.blockSize)
			}
			if a.MemoryAllocatedBytes() != inlineBlockSize {
				t.Errorf("MemoryAllocatedBytes = %d, want %d", a.MemoryAllocatedBytes(), inlineBlockSize)
			}
		})
	}
}

func TestArenaAllocate(t *testing.T) {
	a := NewArena(8192, nil, 0)

	b1 := a.Allocate(100)
	if len(b1) != 100 {
		t.Errorf("Allocate(100) length = %d, want 100", len(b1))
	}

	if a.Allocate(0) != nil {
		t.Error("Allocate(0) should return nil")
	}
	if a.Allocate(-1) != nil {
		t.Error("Allocate(-1) should return nil")
	}

	// Unaligned requests come from the back of the current block, so
	// consecutive allocations move toward the front.
	b2 := a.Allocate(50)
	if uintptr(unsafe.Pointer(&b2[0]))+50 != uintptr(unsafe.Pointer(&b1[0])) {
		t.Error("expected back-cursor allocation directly below the previous one")
	}
}

func TestArenaAllocateAligned(t *testing.T) {
	a := NewArena(8192, nil, 0)

	for _, n := range []int{1, 7, 8, 13, 64, 100} {
		b := a.AllocateAligned(n, 0, nil)
		if len(b) != n {
			t.Fatalf("AllocateAligned(%d) length = %d", n, len(b))
		}
		if uintptr(unsafe.Pointer(&b[0]))%uintptr(wordSize) != 0 {
			t.Errorf("AllocateAligned(%d) not word-aligned", n)
		}
	}

	if a.AllocateAligned(0, 0, nil) != nil {
		t.Error("AllocateAligned(0) should return nil")
	}
}

func TestArenaInlineBlock(t *testing.T) {
	a := NewArena(0, nil, 0)

	// Small allocations fit in the inline block: no heap block, no
	// growth of reserved memory.
	for i := 0; i < 8; i++ {
		a.Allocate(64)
	}
	if !a.IsInInlineBlock() {
		t.Error("expected arena to still be in inline block")
	}
	if a.MemoryAllocatedBytes() != inlineBlockSize {
		t.Errorf("MemoryAllocatedBytes = %d, want %d", a.MemoryAllocatedBytes(), inlineBlockSize)
	}

	// Exhaust the inline block.
	a.Allocate(inlineBlockSize)
	if a.IsInInlineBlock() {
		t.Error("expected arena to have left the inline block")
	}
}

func TestArenaIrregularBlocks(t *testing.T) {
	a := NewArena(8192, nil, 0)

	// A quarter block or less goes through normal blocks.
	a.Allocate(1000)
	if got := a.IrregularBlockNum(); got != 0 {
		t.Errorf("IrregularBlockNum = %d, want 0", got)
	}

	// More than a quarter block gets a dedicated block.
	before := a.MemoryAllocatedBytes()
	b := a.Allocate(3000)
	if len(b) != 3000 {
		t.Fatalf("Allocate(3000) length = %d", len(b))
	}
	if got := a.IrregularBlockNum(); got != 1 {
		t.Errorf("IrregularBlockNum = %d, want 1", got)
	}
	if a.MemoryAllocatedBytes() != before+alignUp(3000, wordSize) {
		t.Errorf("dedicated block should add exactly the request size")
	}
	// The current block's remainder is untouched by a dedicated block.
	if a.AllocatedAndUnused() == 0 {
		t.Error("dedicated block should not consume the current block")
	}
}

func TestArenaHugePageRequest(t *testing.T) {
	a := NewArena(8192, nil, 0)

	b := a.AllocateAligned(100, 2<<20, nil)
	if len(b) != 100 {
		t.Fatalf("AllocateAligned length = %d, want 100", len(b))
	}
	if a.IrregularBlockNum() != 1 {
		t.Errorf("IrregularBlockNum = %d, want 1 (dedicated block)", a.IrregularBlockNum())
	}
}

func TestArenaDualCursors(t *testing.T) {
	a := NewArena(8192, nil, 0)
	a.Allocate(inlineBlockSize)            // consume the inline block
	front := a.AllocateAligned(64, 0, nil) // fresh block, front cursor

	remaining := a.AllocatedAndUnused()
	back := a.Allocate(13)
	if a.AllocatedAndUnused() != remaining-13 {
		t.Errorf("AllocatedAndUnused = %d, want %d", a.AllocatedAndUnused(), remaining-13)
	}

	frontAddr := uintptr(unsafe.Pointer(&front[0]))
	backAddr := uintptr(unsafe.Pointer(&back[0]))
	if frontAddr >= backAddr {
		t.Error("front allocation should sit below back allocation")
	}
	if backAddr-frontAddr >= 8192 {
		t.Error("both cursors should consume the same block")
	}
}

func TestArenaCounters(t *testing.T) {
	a := NewArena(8192, nil, 0)

	prevMem := a.MemoryAllocatedBytes()
	for _, n := range []int{16, 1000, 3000, 64, 5000, 8} {
		a.Allocate(n)
		if a.AllocatedAndUnused() < 0 {
			t.Fatalf("AllocatedAndUnused negative after Allocate(%d)", n)
		}
		if a.MemoryAllocatedBytes() < prevMem {
			t.Fatalf("MemoryAllocatedBytes decreased after Allocate(%d)", n)
		}
		prevMem = a.MemoryAllocatedBytes()
		if a.ApproximateMemoryUsage() > a.MemoryAllocatedBytes() {
			t.Fatalf("usage exceeds reserved memory after Allocate(%d)", n)
		}
	}
}

func TestArenaTracker(t *testing.T) {
	rec := &recordingTracker{}
	a := NewArena(8192, rec, 0)
	if rec.allocated != inlineBlockSize {
		t.Errorf("tracker allocated = %d, want inline block", rec.allocated)
	}

	a.Allocate(4096) // forces a heap block
	if rec.allocated < inlineBlockSize+4096 {
		t.Errorf("tracker allocated = %d, want at least %d", rec.allocated, inlineBlockSize+4096)
	}

	a.Release()
	if !rec.freed {
		t.Error("tracker not notified of release")
	}
}

func TestArenaRelease(t *testing.T) {
	a := NewArena(8192, nil, 0)
	a.Allocate(100)

	a.Release()
	if a.MemoryAllocatedBytes() != 0 {
		t.Error("expected zero reserved memory after Release()")
	}

	defer func() {
		if r := recover(); r == nil {
			t.Error("expected panic on use after Release()")
		}
	}()
	a.Allocate(100)
}

type recordingTracker struct {
	allocated int
	freed     bool
}

func (r *recordingTracker) Allocate(bytes int) { r.allocated += bytes }
func (r *recordingTracker) FreeMem()           { r.freed = true }
