// SPDX-License-Identifier: MIT
package analysis

import (
	"errors"
	"fmt"
	"math"
)

// ErrDegenerateInterpolation is returned when the three magnitudes around a
// peak lie on a line, leaving the parabola without a vertex.
var ErrDegenerateInterpolation = errors.New("degenerate parabolic interpolation")

// Peak is the dominant frequency of one spectrum sample.
type Peak struct {
	FrequencyHz float64 // Corrected, interpolated frequency rounded to whole Hz.
	Magnitude   int     // Byte magnitude at the peak bin.
	Bin         int     // Index of the peak bin.
	Offset      float64 // Sub-bin offset from interpolation, in [-0.5, 0.5] for a true peak.
	Degenerate  bool    // Interpolation was skipped because the denominator was zero.
}

// PeakEstimator locates the dominant bin of a magnitude sequence and refines
// it with parabolic interpolation.
type PeakEstimator struct {
	binResolution float64
	correction    float64
}

// NewPeakEstimator returns an estimator for bins binResolution Hz wide whose
// frequencies are multiplied by correction before being reported.
func NewPeakEstimator(binResolution, correction float64) (*PeakEstimator, error) {
	if binResolution <= 0 {
		return nil, fmt.Errorf("bin resolution must be positive, got %f", binResolution)
	}
	if correction <= 0 {
		return nil, fmt.Errorf("frequency correction must be positive, got %f", correction)
	}
	return &PeakEstimator{binResolution: binResolution, correction: correction}, nil
}

// PeakIndex returns the index of the largest magnitude. Ties resolve to the
// lowest index. Empty input returns -1.
func PeakIndex(mags []int) int {
	if len(mags) == 0 {
		return -1
	}
	peak := 0
	for i := 1; i < len(mags); i++ {
		if mags[i] > mags[peak] {
			peak = i
		}
	}
	return peak
}

// Interpolate returns the vertex offset of the parabola through (-1, alpha),
// (0, beta) and (1, gamma). A positive offset leans toward gamma.
func Interpolate(alpha, beta, gamma float64) (float64, error) {
	denom := alpha - 2*beta + gamma
	if denom == 0 {
		return 0, ErrDegenerateInterpolation
	}
	return 0.5 * (alpha - gamma) / denom, nil
}

// Estimate finds the peak of mags. Boundary peaks are reported at their bin
// frequency; interior peaks are interpolated from their two neighbours, and a
// degenerate neighbourhood falls back to the bin frequency.
func (e *PeakEstimator) Estimate(mags []int) (Peak, error) {
	idx := PeakIndex(mags)
	if idx < 0 {
		return Peak{}, ErrEmptyBuffer
	}

	p := Peak{Bin: idx, Magnitude: mags[idx]}
	position := float64(idx)
	if idx > 0 && idx < len(mags)-1 {
		offset, err := Interpolate(float64(mags[idx-1]), float64(mags[idx]), float64(mags[idx+1]))
		// Unreachable for a first maximum: alpha < beta and gamma <= beta make
		// the denominator strictly negative. Interpolate keeps the check for
		// arbitrary callers.
		if err != nil {
			p.Degenerate = true
		} else {
			p.Offset = offset
			position += offset
		}
	}

	p.FrequencyHz = math.Round(position * e.binResolution * e.correction)
	return p, nil
}
