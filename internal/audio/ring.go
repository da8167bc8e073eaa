// SPDX-License-Identifier: MIT
package audio

import (
	"sync"

	"soundmeter/pkg/bitint"
)

// ring holds the newest samples written by a capture callback.
type ring struct {
	mu      sync.Mutex
	buf     []float32
	mask    int
	pos     int // Next write index.
	written int // Total samples written, saturating at len(buf).
}

// newRing returns a ring holding at least size samples.
func newRing(size int) *ring {
	capacity := bitint.NextPowerOfTwo(size)
	return &ring{
		buf:  make([]float32, capacity),
		mask: bitint.Mask(capacity),
	}
}

// Write appends samples, overwriting the oldest.
func (r *ring) Write(samples []float32) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(samples) > len(r.buf) {
		samples = samples[len(samples)-len(r.buf):]
	}
	for _, s := range samples {
		r.buf[r.pos] = s
		r.pos = (r.pos + 1) & r.mask
	}
	r.written = min(r.written+len(samples), len(r.buf))
}

// Latest copies the newest len(dst) samples into dst, oldest first, with
// zeros in front of whatever has not been written yet.
func (r *ring) Latest(dst []float32) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := min(len(dst), r.written)
	pad := len(dst) - n
	clear(dst[:pad])

	start := (r.pos - n) & r.mask
	for i := range n {
		dst[pad+i] = r.buf[(start+i)&r.mask]
	}
}
