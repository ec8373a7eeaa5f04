package container

import (
	"fmt"
	"sync"
)

// Handle identifies an entry in a Table.
// The zero Handle is never issued.
type Handle struct {
	Index      uint32
	Generation uint32
}

// String implements fmt.Stringer.
func (h Handle) String() string {
	return fmt.Sprintf("%d@%d", h.Index, h.Generation)
}

type slot[T any] struct {
	value T
	gen   uint32
	live  bool
}

// Table is a slot map keyed by generation-checked handles.
// Freed slots are reused in LIFO order.
type Table[T any] struct {
	mu    sync.RWMutex
	slots []slot[T]
	free  []uint32
	live  int
}

// NewTable creates an empty table.
func NewTable[T any]() *Table[T] {
	return &Table[T]{}
}

// Insert stores v and returns its handle.
func (t *Table[T]) Insert(v T) Handle {
	t.mu.Lock()
	defer t.mu.Unlock()

	var idx uint32
	if n := len(t.free); n > 0 {
		idx = t.free[n-1]
		t.free = t.free[:n-1]
	} else {
		idx = uint32(len(t.slots)) //nolint:gosec // bounded by memory long before 2^32 slots
		// Generation starts at 1 so the zero Handle stays invalid.
		t.slots = append(t.slots, slot[T]{gen: 1})
	}

	s := &t.slots[idx]
	s.value = v
	s.live = true
	t.live++

	return Handle{Index: idx, Generation: s.gen}
}

// Get returns the value for h if h is still live.
func (t *Table[T]) Get(h Handle) (T, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var zero T
	if int(h.Index) >= len(t.slots) {
		return zero, false
	}
	s := t.slots[h.Index]
	if !s.live || s.gen != h.Generation {
		return zero, false
	}
	return s.value, true
}

// Remove deletes the entry for h. It returns false for stale handles.
func (t *Table[T]) Remove(h Handle) (T, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var zero T
	if int(h.Index) >= len(t.slots) {
		return zero, false
	}
	s := &t.slots[h.Index]
	if !s.live || s.gen != h.Generation {
		return zero, false
	}

	v := s.value
	s.value = zero
	s.live = false
	s.gen++
	if s.gen == 0 {
		s.gen = 1
	}
	t.free = append(t.free, h.Index)
	t.live--

	return v, true
}

// Len returns the number of live entries.
func (t *Table[T]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.live
}

// Range calls fn for every live entry until fn returns false.
// fn must not modify the table.
func (t *Table[T]) Range(fn func(h Handle, v T) bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for i, s := range t.slots {
		if !s.live {
			continue
		}
		if !fn(Handle{Index: uint32(i), Generation: s.gen}, s.value) { //nolint:gosec // slot count fits uint32
			return
		}
	}
}
