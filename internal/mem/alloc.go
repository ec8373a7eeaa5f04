package mem

import (
	"unsafe"
)

// Alignment is the byte alignment of every allocation (one cache line).
const Alignment = 64

// AllocAligned allocates a byte slice of the given size with 64-byte alignment.
// The returned slice is guaranteed to start at a memory address divisible by 64.
//
// Note: This function allocates slightly more memory than requested to ensure alignment.
// The underlying array is kept alive by the returned slice.
func AllocAligned(size int) []byte {
	if size <= 0 {
		return nil
	}

	buf := make([]byte, size+Alignment)

	addr := uintptr(unsafe.Pointer(&buf[0])) //nolint:gosec // unsafe is required for memory alignment
	offset := (Alignment - (addr & (Alignment - 1))) & (Alignment - 1)

	return buf[offset : offset+uintptr(size) : offset+uintptr(size)]
}

// CopyAligned returns an aligned size-byte slice holding a copy of src.
// Bytes past len(src) are zero; src beyond size is dropped.
func CopyAligned(src []byte, size int) []byte {
	dst := AllocAligned(size)
	copy(dst, src)
	return dst
}

// IsAligned reports whether the first byte of b sits on an n-byte boundary.
// Empty slices are considered aligned.
func IsAligned(b []byte, n uintptr) bool {
	if len(b) == 0 {
		return true
	}
	return uintptr(unsafe.Pointer(&b[0]))%n == 0 //nolint:gosec // address inspection only
}
