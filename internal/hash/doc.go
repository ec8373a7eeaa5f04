// Package hash provides the checksums used to detect caller-side mutation of
// shared buffers between registration and commit.
package hash
