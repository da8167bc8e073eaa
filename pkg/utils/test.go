// SPDX-License-Identifier: MIT

// Package utils provides synthetic signals and capture fakes for tests.
package utils

import (
	"context"
	"errors"
	"math"
	"sync"

	"soundmeter/internal/audio"
)

// GenerateSineWave returns size samples of a sine at frequency Hz with the given peak amplitude.
func GenerateSineWave(size int, sampleRate, frequency, amplitude float64) []float32 {
	buffer := make([]float32, size)
	for i := range buffer {
		t := float64(i) / sampleRate
		buffer[i] = float32(amplitude * math.Sin(2*math.Pi*frequency*t))
	}
	return buffer
}

// GenerateComplexWave returns a 440 Hz fundamental with its 2nd and 3rd harmonics.
func GenerateComplexWave(size int, sampleRate float64) []float32 {
	buffer := make([]float32, size)
	for i := range buffer {
		tm := float64(i) / sampleRate
		signal := math.Sin(2*math.Pi*440*tm)*0.5 +
			math.Sin(2*math.Pi*880*tm)*0.3 +
			math.Sin(2*math.Pi*1320*tm)*0.2
		buffer[i] = float32(signal * 0.9)
	}
	return buffer
}

// GenerateConstant returns size samples all equal to value.
func GenerateConstant(size int, value float32) []float32 {
	buffer := make([]float32, size)
	for i := range buffer {
		buffer[i] = value
	}
	return buffer
}

// MockSource is a capture source that hands out MockStreams. It records every
// Open so tests can check that each stream was released.
type MockSource struct {
	mu sync.Mutex

	// Samples returned by every stream read; the newest sample is last.
	Samples []float32
	// Rate reported by the streams, 44100 when zero.
	Rate float64
	// OpenErr, if set, is returned by Open instead of a stream.
	OpenErr error
	// Block makes Open wait until the context is cancelled or Release is closed.
	Block   bool
	Release chan struct{}

	streams []*MockStream
	pending int
}

var _ audio.Source = (*MockSource)(nil)

func (s *MockSource) Name() string { return "mock" }

// Open returns a new MockStream, or OpenErr.
func (s *MockSource) Open(ctx context.Context) (audio.Stream, error) {
	if s.Block {
		s.mu.Lock()
		s.pending++
		s.mu.Unlock()
		select {
		case <-ctx.Done():
		case <-s.Release:
		}
		s.mu.Lock()
		s.pending--
		s.mu.Unlock()
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
	if s.OpenErr != nil {
		return nil, s.OpenErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	rate := s.Rate
	if rate == 0 {
		rate = 44100
	}
	st := &MockStream{source: s, rate: rate}
	s.streams = append(s.streams, st)
	return st, nil
}

// SetSamples replaces the samples returned by subsequent reads.
func (s *MockSource) SetSamples(samples []float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Samples = samples
}

// Opened returns the number of streams opened so far.
func (s *MockSource) Opened() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.streams)
}

// Pending returns the number of Open calls currently blocked.
func (s *MockSource) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// OpenStreams returns the number of streams not yet closed.
func (s *MockSource) OpenStreams() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, st := range s.streams {
		if !st.closed {
			n++
		}
	}
	return n
}

// MockStream serves the samples of its MockSource.
type MockStream struct {
	source *MockSource
	rate   float64
	closed bool
	reads  int
}

var _ audio.Stream = (*MockStream)(nil)

// Read fills dst with the newest len(dst) source samples, zero-padded at the front.
func (st *MockStream) Read(dst []float32) error {
	st.source.mu.Lock()
	defer st.source.mu.Unlock()
	if st.closed {
		return errors.New("mock stream closed")
	}
	st.reads++
	src := st.source.Samples
	if len(src) > len(dst) {
		src = src[len(src)-len(dst):]
	}
	pad := len(dst) - len(src)
	clear(dst[:pad])
	copy(dst[pad:], src)
	return nil
}

func (st *MockStream) SampleRate() float64 { return st.rate }

// Close marks the stream released. Repeated calls are no-ops.
func (st *MockStream) Close() error {
	st.source.mu.Lock()
	defer st.source.mu.Unlock()
	st.closed = true
	return nil
}

// Reads returns the number of successful reads.
func (st *MockStream) Reads() int {
	st.source.mu.Lock()
	defer st.source.mu.Unlock()
	return st.reads
}
