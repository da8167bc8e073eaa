// SPDX-License-Identifier: MIT
package analysis

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// Calibration ranges exposed to the user.
const (
	MinCalibrationOffset = 0.0
	MaxCalibrationOffset = 200.0
	MinCalibrationScale  = 0.5
	MaxCalibrationScale  = 5.0

	// Display scale bounds of the calibrated level.
	MinLevel = 0
	MaxLevel = 100
)

var (
	ErrEmptyBuffer      = errors.New("sample buffer is empty")
	ErrCalibrationRange = errors.New("calibration out of range")
)

// Calibration is the linear mapping from raw dBFS to the 0-100 display scale.
type Calibration struct {
	Offset float64 // dB added to the raw level
	Scale  float64 // multiplier applied after the offset
}

// DefaultCalibration returns offset 100, scale 2.
func DefaultCalibration() Calibration {
	return Calibration{Offset: 100, Scale: 2}
}

// Validate reports whether the calibration lies within the user-adjustable ranges.
func (c Calibration) Validate() error {
	if c.Offset < MinCalibrationOffset || c.Offset > MaxCalibrationOffset {
		return fmt.Errorf("%w: offset %.1f outside [%.0f, %.0f]", ErrCalibrationRange,
			c.Offset, MinCalibrationOffset, MaxCalibrationOffset)
	}
	if c.Scale < MinCalibrationScale || c.Scale > MaxCalibrationScale {
		return fmt.Errorf("%w: scale %.2f outside [%.1f, %.1f]", ErrCalibrationRange,
			c.Scale, MinCalibrationScale, MaxCalibrationScale)
	}
	return nil
}

// Decibels converts an RMS amplitude to dBFS. Silence maps to -Inf.
func Decibels(rms float64) float64 {
	if rms > 0 {
		return 20 * math.Log10(rms)
	}
	return math.Inf(-1)
}

// Calibrate maps a raw dB value onto the integer display scale [0, 100].
// -Inf and NaN map to 0.
func Calibrate(db float64, cal Calibration) int {
	v := (db + cal.Offset) * cal.Scale
	if math.IsNaN(v) || v <= MinLevel {
		return MinLevel
	}
	if v >= MaxLevel {
		return MaxLevel
	}
	return int(math.Round(v))
}

// DecibelEstimator turns time-domain sample buffers into calibrated levels.
// It is not safe for concurrent use.
type DecibelEstimator struct {
	calibration Calibration
	workspace   []float64 // float64 copy of the last buffer
}

// NewDecibelEstimator returns an estimator using cal, which must be valid.
func NewDecibelEstimator(cal Calibration) (*DecibelEstimator, error) {
	if err := cal.Validate(); err != nil {
		return nil, err
	}
	return &DecibelEstimator{calibration: cal}, nil
}

// Calibration returns the current calibration.
func (e *DecibelEstimator) Calibration() Calibration {
	return e.calibration
}

// SetCalibration replaces the calibration. Invalid values are rejected and the
// previous calibration is kept.
func (e *DecibelEstimator) SetCalibration(cal Calibration) error {
	if err := cal.Validate(); err != nil {
		return err
	}
	e.calibration = cal
	return nil
}

// Level returns the raw level of samples in dBFS.
func (e *DecibelEstimator) Level(samples []float32) (float64, error) {
	if len(samples) == 0 {
		return 0, ErrEmptyBuffer
	}
	if cap(e.workspace) < len(samples) {
		e.workspace = make([]float64, len(samples))
	}
	w := e.workspace[:len(samples)]
	for i, s := range samples {
		w[i] = float64(s)
	}
	rms := math.Sqrt(floats.Dot(w, w) / float64(len(w)))
	return Decibels(rms), nil
}

// Estimate returns the calibrated level of samples in [0, 100].
func (e *DecibelEstimator) Estimate(samples []float32) (int, error) {
	db, err := e.Level(samples)
	if err != nil {
		return 0, err
	}
	return Calibrate(db, e.calibration), nil
}
