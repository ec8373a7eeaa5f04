// Package mem provides aligned heap allocation for buffer copies.
//
// # Aligned Allocation
//
// Copies made by the buffer registry start on a 64-byte boundary so the
// kernel can read vertex data with unaligned-free 4-byte loads and so
// copies never straddle a cache line at their origin.
package mem
