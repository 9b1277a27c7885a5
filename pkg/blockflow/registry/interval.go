package registry

import (
	"sort"
	"sync"
)

// span is one registered address range.
type span[K comparable] struct {
	start uintptr
	end   uintptr
	key   K
}

// IntervalIndex maps non-overlapping address ranges to keys. It answers
// "which range contains this address" in O(log n).
type IntervalIndex[K comparable] struct {
	mu    sync.RWMutex
	spans []span[K] // sorted by start
}

// NewIntervalIndex creates an empty index.
func NewIntervalIndex[K comparable]() *IntervalIndex[K] {
	return &IntervalIndex[K]{}
}

// Insert registers [start, start+size) under key. A key already present is
// moved to the new range. Zero-size ranges are ignored.
func (x *IntervalIndex[K]) Insert(start, size uintptr, key K) {
	if size == 0 {
		return
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	x.removeLocked(key)
	i := sort.Search(len(x.spans), func(i int) bool { return x.spans[i].start >= start })
	x.spans = append(x.spans, span[K]{})
	copy(x.spans[i+1:], x.spans[i:])
	x.spans[i] = span[K]{start: start, end: start + size, key: key}
}

// Remove drops the range registered under key and reports whether it existed.
func (x *IntervalIndex[K]) Remove(key K) bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.removeLocked(key)
}

func (x *IntervalIndex[K]) removeLocked(key K) bool {
	for i := range x.spans {
		if x.spans[i].key == key {
			x.spans = append(x.spans[:i], x.spans[i+1:]...)
			return true
		}
	}
	return false
}

// Lookup returns the key whose range contains addr and addr's offset from
// the range start.
func (x *IntervalIndex[K]) Lookup(addr uintptr) (K, uintptr, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	i := sort.Search(len(x.spans), func(i int) bool { return x.spans[i].start > addr })
	if i > 0 {
		s := x.spans[i-1]
		if addr < s.end {
			return s.key, addr - s.start, true
		}
	}
	var zero K
	return zero, 0, false
}

// Len returns the number of registered ranges.
func (x *IntervalIndex[K]) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.spans)
}
