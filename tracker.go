package arena

// AllocTracker is a passive sink notified whenever an Arena reserves a
// new block of backing memory. It is consumed, never implemented, by
// this package: callers that want to meter arena growth (e.g. a write
// buffer manager) pass one at construction time. Implementations are
// invoked while the arena's owner holds whatever lock guards the
// arena, so they must be cheap and must not call back into the arena.
type AllocTracker interface {
	// Allocate records that bytes of backing memory were reserved.
	Allocate(bytes int)
	// FreeMem records that all memory reserved so far was returned.
	// Called once, when the arena is released.
	FreeMem()
}

// NopAllocTracker is an AllocTracker that records nothing.
type NopAllocTracker struct{}

func (NopAllocTracker) Allocate(int) {}
func (NopAllocTracker) FreeMem()     {}
