// Package conv provides checked integer conversions and layout arithmetic.
//
// Buffer layouts arrive from callers as plain ints (offset, stride, count).
// The kernel trusts whatever extent it is given, so every product and sum that
// describes a byte range is computed here with explicit overflow detection
// before it is compared against the real slice length.
package conv
