// SPDX-License-Identifier: MIT

/*
Package bitint provides the power-of-two helpers used to size FFT windows and
capture ring buffers.

	// Ring capacity large enough for one analysis window.
	capacity := bitint.NextPowerOfTwo(fftSize)

	// Reject window sizes the radix-2 transform cannot handle.
	if !bitint.IsPowerOfTwo(fftSize) { ... }

NextPowerOfTwo subtracts one before taking the bit length so that exact powers
of two are preserved: for 8 (0b1000), 8-1 = 7 (0b0111) has length 3 and 1<<3 is
8 again, whereas bits.Len(8) would be 4 and double the input.
*/
package bitint

import "math/bits"

// NextPowerOfTwo returns the smallest power of two >= size. Sizes <= 0
// return 1.
//
//	Input  Output
//	4      4
//	5      8
//	0      1
//	-1     1
func NextPowerOfTwo(size int) int {
	if size <= 0 {
		return 1
	}
	return 1 << bits.Len(uint(size-1))
}

// IsPowerOfTwo reports whether n is a positive power of two. A power of two
// has exactly one bit set, so clearing the lowest set bit with n&(n-1) leaves
// zero only for powers of two.
func IsPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// Mask returns size-1 for a power-of-two size, for wrapping ring indices
// with a bitwise AND instead of a modulo. It returns 0 for other sizes.
func Mask(size int) int {
	if !IsPowerOfTwo(size) {
		return 0
	}
	return size - 1
}
