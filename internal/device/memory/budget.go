// Package memory accounts for the allocations made by the queue device.
//
// Queue storage is preallocated, so nothing on the data path calls the Go
// allocator per byte. A Budget stands in for the allocator instead: a queue
// charges one unit for every byte it stores and the session manager charges
// one unit for every private queue instance it creates. When a Budget refuses
// a reservation the caller reports device.ErrOutOfMemory.
package memory

import "sync/atomic"

// Budget is a concurrency-safe counter of reserved units bounded by a limit.
// A limit of zero means unlimited. A nil *Budget is unlimited and tracks
// nothing.
type Budget struct {
	limit int64
	used  atomic.Int64
}

// NewBudget creates a budget that admits at most limit units.
func NewBudget(limit int64) *Budget {
	if limit < 0 {
		limit = 0
	}
	return &Budget{limit: limit}
}

// Reserve claims n units. It reports false, and claims nothing, if that would
// exceed the limit.
func (b *Budget) Reserve(n int64) bool {
	if b == nil || n <= 0 {
		return true
	}
	for {
		used := b.used.Load()
		if b.limit > 0 && used+n > b.limit {
			return false
		}
		if b.used.CompareAndSwap(used, used+n) {
			return true
		}
	}
}

// Release returns n previously reserved units.
func (b *Budget) Release(n int64) {
	if b == nil || n <= 0 {
		return
	}
	if b.used.Add(-n) < 0 {
		panic("memory: released more than reserved")
	}
}

// Used returns the number of units currently reserved.
func (b *Budget) Used() int64 {
	if b == nil {
		return 0
	}
	return b.used.Load()
}

// Limit returns the configured limit, zero meaning unlimited.
func (b *Budget) Limit() int64 {
	if b == nil {
		return 0
	}
	return b.limit
}
