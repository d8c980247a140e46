package arena

// Metrics is a snapshot of an arena's accounting counters. For a
// ConcurrentArena the snapshot is approximate: its fields are gathered
// from the cached relaxed-atomic counters and the lock-free shard scan,
// so a concurrent refill can transiently skew them.
type Metrics struct {
	MemoryAllocated    int     // backing bytes reserved
	AllocatedAndUnused int     // reserved but not yet handed out
	ApproximateUsage   int     // reserved minus unused
	IrregularBlocks    int     // dedicated off-size blocks
	BlockSize          int     // configured block size
	ShardBlockSize     int     // per-core window size; 0 for plain Arena
	Utilization        float64 // usage / reserved, 0 when nothing reserved
}

// Metrics returns a snapshot of arena statistics.
func (a *Arena) Metrics() Metrics {
	m := Metrics{
		MemoryAllocated:    a.MemoryAllocatedBytes(),
		AllocatedAndUnused: a.AllocatedAndUnused(),
		ApproximateUsage:   a.ApproximateMemoryUsage(),
		IrregularBlocks:    a.IrregularBlockNum(),
		BlockSize:          a.BlockSize(),
	}
	if m.MemoryAllocated > 0 {
		m.Utilization = float64(m.ApproximateUsage) / float64(m.MemoryAllocated)
	}
	return m
}

// Metrics returns an approximate snapshot of arena statistics.
func (a *ConcurrentArena) Metrics() Metrics {
	m := Metrics{
		MemoryAllocated:    a.MemoryAllocatedBytes(),
		AllocatedAndUnused: a.AllocatedAndUnused(),
		ApproximateUsage:   a.ApproximateMemoryUsage(),
		IrregularBlocks:    a.IrregularBlockNum(),
		BlockSize:          a.BlockSize(),
		ShardBlockSize:     a.ShardBlockSize(),
	}
	if m.MemoryAllocated > 0 {
		m.Utilization = float64(m.ApproximateUsage) / float64(m.MemoryAllocated)
	}
	return m
}
