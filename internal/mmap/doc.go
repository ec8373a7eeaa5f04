// Package mmap provides anonymous off-heap mappings for pinned buffer copies.
//
// # Overview
//
// A pinned buffer must keep the same address for as long as a committed scene
// may read it. Memory obtained with MapAnon lives outside the Go heap: the
// garbage collector never scans, moves or frees it, and Lock additionally asks
// the OS to keep the pages resident.
//
// # Usage
//
//	m, err := mmap.MapAnon(size)
//	if err != nil { ... }
//	defer m.Close()
//
//	copy(m.Bytes(), src)
//	_ = m.Lock()                    // best effort, may fail under RLIMIT_MEMLOCK
//	_ = m.Advise(mmap.AccessRandom) // BVH traversal touches vertices randomly
//
// # Platform Support
//
//   - Unix (Linux, macOS, BSD): mmap(2), mlock(2), madvise(2)
//   - Windows: VirtualAlloc/VirtualLock (madvise is a no-op)
//
// # Thread Safety
//
// Bytes may be read concurrently. Close is idempotent and protected by an
// atomic flag; callers must ensure no goroutine touches Bytes() after Close.
package mmap
