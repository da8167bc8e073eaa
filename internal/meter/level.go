// SPDX-License-Identifier: MIT

// Package meter joins a capture session to an analysis stage. Each meter is
// driven by Poll, once per display frame, and returns a readout the
// presentation layer renders as is.
package meter

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"soundmeter/internal/analysis"
	"soundmeter/internal/audio"
)

// LevelReadout is the output of one level cycle.
type LevelReadout struct {
	// LevelPercent is the calibrated level in [0, 100], nil when no sample
	// has been taken since the meter started.
	LevelPercent *int
	// Decibels is the uncalibrated dBFS value, -Inf for silence.
	Decibels float64
}

// LevelMeter is the noise-level widget: a session feeding a DecibelEstimator.
type LevelMeter struct {
	session   *audio.Session
	estimator *analysis.DecibelEstimator

	mu     sync.Mutex
	buffer []float32
	last   LevelReadout
}

// NewLevelMeter returns a stopped meter reading bufferSize samples per cycle.
func NewLevelMeter(source audio.Source, bufferSize int, cal analysis.Calibration) (*LevelMeter, error) {
	if bufferSize <= 0 {
		return nil, fmt.Errorf("level buffer size must be positive, got %d", bufferSize)
	}
	estimator, err := analysis.NewDecibelEstimator(cal)
	if err != nil {
		return nil, err
	}
	return &LevelMeter{
		session:   audio.NewSession(source),
		estimator: estimator,
		buffer:    make([]float32, bufferSize),
	}, nil
}

// Start begins capturing. On failure the session is in the Error state.
func (m *LevelMeter) Start(ctx context.Context) error {
	m.mu.Lock()
	m.last = LevelReadout{}
	m.mu.Unlock()
	return m.session.Start(ctx)
}

// Stop releases the capture and clears the readout.
func (m *LevelMeter) Stop() error {
	err := m.session.Stop()
	m.mu.Lock()
	m.last = LevelReadout{}
	m.mu.Unlock()
	return err
}

// Poll reads the newest buffer and returns its calibrated level. Outside the
// Capturing state it returns an empty readout and no error.
func (m *LevelMeter) Poll() (LevelReadout, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.session.Read(m.buffer); err != nil {
		if errors.Is(err, audio.ErrNotCapturing) {
			m.last = LevelReadout{}
			return m.last, nil
		}
		return m.last, err
	}

	db, err := m.estimator.Level(m.buffer)
	if err != nil {
		return m.last, err
	}
	level := analysis.Calibrate(db, m.estimator.Calibration())
	m.last = LevelReadout{LevelPercent: &level, Decibels: db}
	return m.last, nil
}

// Last returns the readout of the most recent Poll.
func (m *LevelMeter) Last() LevelReadout {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

// SetCalibration validates and applies cal from the next Poll on.
func (m *LevelMeter) SetCalibration(cal analysis.Calibration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.estimator.SetCalibration(cal)
}

// Calibration returns the active calibration.
func (m *LevelMeter) Calibration() analysis.Calibration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.estimator.Calibration()
}

// Session exposes the underlying capture session.
func (m *LevelMeter) Session() *audio.Session {
	return m.session
}
