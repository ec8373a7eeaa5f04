package mmap

import (
	"sync/atomic"
)

// Mapping is an anonymous read-write memory region outside the Go heap.
type Mapping struct {
	data   []byte
	locked atomic.Bool
	closed atomic.Bool
}

// MapAnon maps size bytes of zeroed anonymous memory.
func MapAnon(size int) (*Mapping, error) {
	if size <= 0 {
		return nil, ErrInvalidSize
	}
	data, err := osMapAnon(size)
	if err != nil {
		return nil, err
	}
	return &Mapping{data: data}, nil
}

// Bytes returns the mapped region.
// Warning: The slice is valid only until Close() is called.
func (m *Mapping) Bytes() []byte {
	if m.closed.Load() {
		return nil
	}
	return m.data
}

// Size returns the size of the mapping in bytes.
func (m *Mapping) Size() int {
	return len(m.data)
}

// Lock pins the pages in physical memory.
// Failure is not fatal for correctness; the address stays stable regardless.
func (m *Mapping) Lock() error {
	if m.closed.Load() {
		return ErrClosed
	}
	if err := osLock(m.data); err != nil {
		return err
	}
	m.locked.Store(true)
	return nil
}

// Locked reports whether Lock succeeded.
func (m *Mapping) Locked() bool {
	return m.locked.Load()
}

// Advise provides hints to the kernel about how the memory will be accessed.
func (m *Mapping) Advise(pattern AccessPattern) error {
	if m.closed.Load() {
		return ErrClosed
	}
	return osAdvise(m.data, pattern)
}

// Close unlocks and unmaps the memory. It is idempotent.
func (m *Mapping) Close() error {
	if m.closed.Swap(true) {
		return nil
	}
	if m.locked.Load() {
		_ = osUnlock(m.data)
	}
	return osUnmap(m.data)
}
