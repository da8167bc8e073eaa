// SPDX-License-Identifier: MIT
package meter

import (
	"context"
	"errors"
	"sync"

	"soundmeter/internal/analysis"
	"soundmeter/internal/audio"
	applog "soundmeter/internal/log"
)

// SpectrumReadout is the output of one spectrum cycle.
type SpectrumReadout struct {
	// Spectrum holds one byte magnitude per exposed bin, nil when not capturing.
	Spectrum        []int
	PeakFrequencyHz float64
	PeakMagnitude   int
	Peak            analysis.Peak
}

// SpectrumMeter is the FFT spectrum widget: a session feeding a
// SpectralAnalyzer whose output goes through a PeakEstimator.
type SpectrumMeter struct {
	session *audio.Session
	cfg     analysis.SpectrumConfig

	mu       sync.Mutex
	analyzer *analysis.SpectralAnalyzer
	peaks    *analysis.PeakEstimator
	buffer   []float32
	spectrum []int
	last     SpectrumReadout
}

// NewSpectrumMeter returns a stopped meter. cfg.SampleRate is replaced by the
// stream's rate when the two differ.
func NewSpectrumMeter(source audio.Source, cfg analysis.SpectrumConfig) (*SpectrumMeter, error) {
	m := &SpectrumMeter{session: audio.NewSession(source)}
	if err := m.configure(cfg); err != nil {
		return nil, err
	}
	return m, nil
}

// configure rebuilds the analysis chain for cfg. Callers hold mu or own m exclusively.
func (m *SpectrumMeter) configure(cfg analysis.SpectrumConfig) error {
	analyzer, err := analysis.NewSpectralAnalyzer(cfg)
	if err != nil {
		return err
	}
	peaks, err := analysis.NewPeakEstimator(analyzer.BinResolution(), cfg.FrequencyCorrection)
	if err != nil {
		return err
	}
	m.cfg = cfg
	m.analyzer = analyzer
	m.peaks = peaks
	m.buffer = make([]float32, cfg.FFTSize)
	m.spectrum = make([]int, analyzer.BinCount())
	return nil
}

// Start begins capturing with a fresh smoothing history.
func (m *SpectrumMeter) Start(ctx context.Context) error {
	if err := m.session.Start(ctx); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.last = SpectrumReadout{}
	if rate := m.session.SampleRate(); rate > 0 && rate != m.cfg.SampleRate {
		cfg := m.cfg
		cfg.SampleRate = rate
		if err := m.configure(cfg); err != nil {
			_ = m.session.Stop()
			return err
		}
		applog.Infof("Meter: Spectrum reconfigured for %.0f Hz stream (%d bins)", rate, m.analyzer.BinCount())
	}
	m.analyzer.Reset()
	return nil
}

// Stop releases the capture and clears the smoothing history.
func (m *SpectrumMeter) Stop() error {
	err := m.session.Stop()
	m.mu.Lock()
	m.analyzer.Reset()
	m.last = SpectrumReadout{}
	m.mu.Unlock()
	return err
}

// Poll analyzes the newest window and locates its peak. Outside the
// Capturing state it returns an empty readout and no error.
func (m *SpectrumMeter) Poll() (SpectrumReadout, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.session.Read(m.buffer); err != nil {
		if errors.Is(err, audio.ErrNotCapturing) {
			m.last = SpectrumReadout{}
			return m.last, nil
		}
		return m.last, err
	}

	m.analyzer.Process(m.buffer)
	if err := m.analyzer.SpectrumInto(m.spectrum); err != nil {
		return m.last, err
	}
	peak, err := m.peaks.Estimate(m.spectrum)
	if err != nil {
		return m.last, err
	}

	spectrum := make([]int, len(m.spectrum))
	copy(spectrum, m.spectrum)
	m.last = SpectrumReadout{
		Spectrum:        spectrum,
		PeakFrequencyHz: peak.FrequencyHz,
		PeakMagnitude:   peak.Magnitude,
		Peak:            peak,
	}
	return m.last, nil
}

// Last returns the readout of the most recent Poll.
func (m *SpectrumMeter) Last() SpectrumReadout {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

// BinCount returns the number of exposed bins.
func (m *SpectrumMeter) BinCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.analyzer.BinCount()
}

// FrequencyForBin returns the corrected frequency of a bin.
func (m *SpectrumMeter) FrequencyForBin(i int) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.analyzer.FrequencyForBin(i)
}

// Config returns the active analysis configuration.
func (m *SpectrumMeter) Config() analysis.SpectrumConfig {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg
}

// Session exposes the underlying capture session.
func (m *SpectrumMeter) Session() *audio.Session {
	return m.session
}
