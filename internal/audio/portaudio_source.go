// SPDX-License-Identifier: MIT
package audio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	applog "soundmeter/internal/log"

	"github.com/gordonklaus/portaudio"
)

// paStream is the part of *portaudio.Stream a capture needs.
type paStream interface {
	Start() error
	Stop() error
	Close() error
}

var paOpenStream = func(params portaudio.StreamParameters, callback func([]float32)) (paStream, error) {
	stream, err := portaudio.OpenStream(params, callback)
	if err != nil {
		return nil, err
	}
	return stream, nil
}

// PortAudioConfig selects and configures a live input device.
type PortAudioConfig struct {
	DeviceID        int     // Device index, or -1 for the system default.
	Channels        int     // Input channels, down-mixed to mono.
	SampleRate      float64 // Capture rate (Hz).
	FramesPerBuffer int     // Frames per callback.
	LowLatency      bool    // Prefer the device's low input latency.
	BufferSize      int     // Samples retained for Read.
}

// PortAudioSource captures from an input device. PortAudio must be
// initialized for as long as streams are open.
type PortAudioSource struct {
	cfg PortAudioConfig
}

// NewPortAudioSource returns a source for the configured device.
func NewPortAudioSource(cfg PortAudioConfig) *PortAudioSource {
	return &PortAudioSource{cfg: cfg}
}

func (s *PortAudioSource) Name() string {
	if s.cfg.DeviceID < 0 {
		return "default input"
	}
	return fmt.Sprintf("device %d", s.cfg.DeviceID)
}

// Open resolves the device and starts a callback stream into a ring buffer.
// Failures are classified as ErrDeviceUnavailable or ErrPermissionDenied.
func (s *PortAudioSource) Open(ctx context.Context) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	device, err := InputDevice(s.cfg.DeviceID)
	if err != nil {
		return nil, classifyError(err)
	}

	latency := device.DefaultHighInputLatency
	if s.cfg.LowLatency {
		latency = device.DefaultLowInputLatency
	}

	channels := min(max(s.cfg.Channels, 1), device.MaxInputChannels)
	st := &portAudioStream{
		ring:     newRing(max(s.cfg.BufferSize, s.cfg.FramesPerBuffer)),
		channels: channels,
		rate:     s.cfg.SampleRate,
		mono:     make([]float32, s.cfg.FramesPerBuffer),
	}

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Channels: channels,
			Device:   device,
			Latency:  latency,
		},
		Output: portaudio.StreamDeviceParameters{
			Channels: 0, // No output device
			Device:   nil,
		},
		FramesPerBuffer: s.cfg.FramesPerBuffer,
		SampleRate:      s.cfg.SampleRate,
	}

	stream, err := paOpenStream(params, st.process)
	if err != nil {
		return nil, classifyError(err)
	}
	st.stream = stream

	if err := stream.Start(); err != nil {
		_ = st.Close()
		return nil, classifyError(err)
	}

	applog.Infof("Audio: Capturing from %s (%d ch, %.0f Hz, latency %s)",
		device.Name, channels, s.cfg.SampleRate, latency.Round(time.Microsecond))
	return st, nil
}

type portAudioStream struct {
	ring     *ring
	channels int
	rate     float64
	mono     []float32 // Down-mix scratch, owned by the callback.

	closeOnce sync.Once
	closed    atomic.Bool
	stream    paStream
	closeErr  error
}

// process is the PortAudio callback. It runs on the host audio thread and
// only touches pre-allocated buffers.
func (st *portAudioStream) process(in []float32) {
	if st.channels == 1 {
		st.ring.Write(in)
		return
	}

	frames := len(in) / st.channels
	if frames > len(st.mono) {
		frames = len(st.mono)
	}
	scale := 1 / float32(st.channels)
	for i := range frames {
		var sum float32
		for c := range st.channels {
			sum += in[i*st.channels+c]
		}
		st.mono[i] = sum * scale
	}
	st.ring.Write(st.mono[:frames])
}

func (st *portAudioStream) Read(dst []float32) error {
	if st.closed.Load() {
		return ErrStreamClosed
	}
	st.ring.Latest(dst)
	return nil
}

func (st *portAudioStream) SampleRate() float64 {
	return st.rate
}

// Close stops and closes the PortAudio stream. It is safe on a stream whose
// Start failed.
func (st *portAudioStream) Close() error {
	st.closeOnce.Do(func() {
		st.closed.Store(true)
		if st.stream == nil {
			return
		}
		// Stop fails on a stream that never started; Close still has to run.
		_ = st.stream.Stop()
		if err := st.stream.Close(); err != nil {
			st.closeErr = classifyError(err)
		}
	})
	return st.closeErr
}

// classifyError maps PortAudio failures onto the capture error taxonomy.
// Host API errors (a refused microphone on CoreAudio, WASAPI or ALSA) become
// ErrPermissionDenied. Every other code becomes ErrDeviceUnavailable.
func classifyError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrPermissionDenied) || errors.Is(err, ErrDeviceUnavailable) {
		return err
	}

	var hostErr *portaudio.UnanticipatedHostError
	if errors.As(err, &hostErr) {
		return fmt.Errorf("%w: %w", ErrPermissionDenied, err)
	}
	return fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
}
