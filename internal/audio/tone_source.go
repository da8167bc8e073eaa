// SPDX-License-Identifier: MIT
package audio

import (
	"context"
	"fmt"

	applog "soundmeter/internal/log"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/generators"
)

// ToneConfig configures a ToneSource.
type ToneConfig struct {
	Frequency       float64 // Hz, below Nyquist.
	Amplitude       float64 // Peak amplitude in (0, 1].
	SampleRate      float64
	FramesPerBuffer int
	BufferSize      int
}

// ToneSource generates a continuous sine, for checking calibration and the
// peak readout against a known input.
type ToneSource struct {
	cfg ToneConfig
}

// NewToneSource returns a sine source.
func NewToneSource(cfg ToneConfig) *ToneSource {
	return &ToneSource{cfg: cfg}
}

func (s *ToneSource) Name() string {
	return fmt.Sprintf("%.0f Hz tone", s.cfg.Frequency)
}

func (s *ToneSource) Open(ctx context.Context) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	st, err := s.openStream()
	if err != nil {
		return nil, err
	}
	st.start()
	applog.Infof("Audio: Generating %.1f Hz tone at amplitude %.2f", s.cfg.Frequency, s.cfg.Amplitude)
	return st, nil
}

func (s *ToneSource) openStream() (*beepStream, error) {
	tone, err := generators.SineTone(beep.SampleRate(s.cfg.SampleRate), s.cfg.Frequency)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
	}
	// Gain scales by 1+Gain.
	scaled := &effects.Gain{Streamer: tone, Gain: s.cfg.Amplitude - 1}
	return newBeepStream(scaled, s.cfg.SampleRate, s.cfg.FramesPerBuffer, s.cfg.BufferSize, nil), nil
}
