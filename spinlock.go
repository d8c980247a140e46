package arena

import (
	"runtime"
	"sync/atomic"
)

// spinIterations is the number of CAS attempts made before each yield.
// Critical sections in this package are a handful of pointer/counter
// operations, so a short spin usually wins the lock without descheduling.
const spinIterations = 100

// SpinLock is a small test-and-set mutual exclusion primitive with a
// non-blocking TryLock. It provides no fairness or ordering guarantee.
// The zero value is an unlocked SpinLock. Must not be copied after first use.
type SpinLock struct {
	state atomic.Uint32
}

// TryLock attempts to acquire the lock without blocking.
// It reports whether the lock was acquired.
func (l *SpinLock) TryLock() bool {
	return l.state.CompareAndSwap(0, 1)
}

// Lock acquires the lock, spinning briefly and then yielding the
// processor between rounds until it succeeds.
func (l *SpinLock) Lock() {
	for {
		for i := 0; i < spinIterations; i++ {
			if l.state.CompareAndSwap(0, 1) {
				return
			}
		}
		runtime.Gosched()
	}
}

// Unlock releases the lock. Calling Unlock on an unlocked SpinLock
// leaves it unlocked.
func (l *SpinLock) Unlock() {
	l.state.Store(0)
}
