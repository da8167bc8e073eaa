// SPDX-License-Identifier: MIT
package audio

import (
	"sync"
	"sync/atomic"
	"time"

	applog "soundmeter/internal/log"

	"github.com/gopxl/beep/v2"
)

// beepStream feeds a beep.Streamer into a ring at the stream's sample rate,
// making a decoder or generator behave like a live capture. Once the streamer
// is drained the stream keeps delivering silence.
type beepStream struct {
	ring   *ring
	rate   float64
	chunk  int
	closer func() error

	mu        sync.Mutex // Guards streamer, frames, mono, exhausted.
	streamer  beep.Streamer
	frames    [][2]float64
	mono      []float32
	exhausted bool

	doneChan  chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
	closed    atomic.Bool
	closeErr  error
}

func newBeepStream(streamer beep.Streamer, rate float64, chunk, bufferSize int, closer func() error) *beepStream {
	chunk = max(chunk, 1)
	return &beepStream{
		ring:     newRing(max(bufferSize, chunk)),
		rate:     rate,
		chunk:    chunk,
		closer:   closer,
		streamer: streamer,
		frames:   make([][2]float64, chunk),
		mono:     make([]float32, chunk),
		doneChan: make(chan struct{}),
	}
}

// start pumps one chunk per chunk duration until Close.
func (b *beepStream) start() {
	interval := time.Duration(float64(b.chunk) / b.rate * float64(time.Second))
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-b.doneChan:
				return
			case <-ticker.C:
				b.advance(b.chunk)
			}
		}
	}()
}

// advance pulls n frames from the streamer, down-mixes them and writes them
// to the ring. Frames past the end of the streamer are written as zeros.
func (b *beepStream) advance(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for n > 0 {
		k := min(n, b.chunk)
		filled := 0
		for filled < k && !b.exhausted {
			got, ok := b.streamer.Stream(b.frames[filled:k])
			filled += got
			if !ok {
				b.exhausted = true
				if err := b.streamer.Err(); err != nil {
					applog.Warnf("Audio: Source stream ended with error: %v", err)
				}
			} else if got == 0 {
				break
			}
		}
		for i := range k {
			if i < filled {
				b.mono[i] = float32((b.frames[i][0] + b.frames[i][1]) / 2)
			} else {
				b.mono[i] = 0
			}
		}
		b.ring.Write(b.mono[:k])
		n -= k
	}
}

func (b *beepStream) Read(dst []float32) error {
	if b.closed.Load() {
		return ErrStreamClosed
	}
	b.ring.Latest(dst)
	return nil
}

func (b *beepStream) SampleRate() float64 {
	return b.rate
}

// Close stops the pump and releases the underlying reader.
func (b *beepStream) Close() error {
	b.closeOnce.Do(func() {
		b.closed.Store(true)
		close(b.doneChan)
		b.wg.Wait()
		if b.closer != nil {
			b.closeErr = b.closer()
		}
	})
	return b.closeErr
}
