// SPDX-License-Identifier: MIT
package analysis

import (
	"fmt"
	"math"
	"math/cmplx"
	"strings"

	applog "soundmeter/internal/log"
	"soundmeter/pkg/bitint"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
)

// WindowFunc defines the type for selecting an FFT window function.
type WindowFunc int

// Enum for available window functions.
const (
	BartlettHann WindowFunc = iota
	Blackman
	BlackmanNuttall
	Hann
	Hamming
	Lanczos
	Nuttall
)

// MaxMagnitude is the top of the byte magnitude scale.
const MaxMagnitude = 255

func (w WindowFunc) String() string {
	switch w {
	case BartlettHann:
		return "BartlettHann"
	case Blackman:
		return "Blackman"
	case BlackmanNuttall:
		return "BlackmanNuttall"
	case Hann:
		return "Hann"
	case Hamming:
		return "Hamming"
	case Lanczos:
		return "Lanczos"
	case Nuttall:
		return "Nuttall"
	default:
		return fmt.Sprintf("WindowFunc(%d)", int(w))
	}
}

// ParseWindowFunc converts a string name (case-insensitive) to a WindowFunc
// enum, returns a known default (Blackman) and an error if the name is unknown.
func ParseWindowFunc(name string) (WindowFunc, error) {
	switch strings.ToLower(name) {
	case "bartletthann":
		return BartlettHann, nil
	case "blackman":
		return Blackman, nil
	case "blackmannuttall":
		return BlackmanNuttall, nil
	case "hann", "hanning":
		return Hann, nil
	case "hamming":
		return Hamming, nil
	case "lanczos":
		return Lanczos, nil
	case "nuttall":
		return Nuttall, nil
	default:
		return Blackman, fmt.Errorf("unknown FFT window function name: '%s'", name)
	}
}

// SpectrumConfig configures a SpectralAnalyzer.
type SpectrumConfig struct {
	FFTSize             int        // Window size, power of two.
	SampleRate          float64    // Input sample rate (Hz).
	MaxFrequency        float64    // Highest frequency of interest (Hz).
	FrequencyCorrection float64    // Multiplier applied when converting bins to Hz.
	Smoothing           float64    // Temporal smoothing constant in [0, 1).
	MinDecibels         float64    // dB mapped to magnitude 0.
	MaxDecibels         float64    // dB mapped to magnitude 255.
	Window              WindowFunc // Window applied before the transform.
}

// DefaultSpectrumConfig mirrors a browser AnalyserNode with fftSize 4096
// capped at 2000 Hz.
func DefaultSpectrumConfig() SpectrumConfig {
	return SpectrumConfig{
		FFTSize:             4096,
		SampleRate:          44100,
		MaxFrequency:        2000,
		FrequencyCorrection: 1.11,
		Smoothing:           0.8,
		MinDecibels:         -100,
		MaxDecibels:         -30,
		Window:              Blackman,
	}
}

// Pre-allocated buffers for FFT calculations.
type fftWorkspace struct {
	input     []float64    // Windowed input signal.
	fftOutput []complex128 // FFT complex results (N/2+1).
	smoothed  []float64    // Smoothed magnitudes carried across cycles.
	window    []float64    // Pre-calculated window coefficients.
	bytes     []int        // Byte magnitudes of the exposed bins.
}

// SpectralAnalyzer produces per-cycle byte magnitudes for the bins below the
// configured maximum frequency. It is owned by a single widget and is not safe
// for concurrent use.
type SpectralAnalyzer struct {
	cfg           SpectrumConfig
	fftCalculator *fourier.FFT
	binResolution float64
	binCount      int
	workspace     fftWorkspace
}

// NewSpectralAnalyzer validates cfg and pre-allocates every buffer used by Process.
func NewSpectralAnalyzer(cfg SpectrumConfig) (*SpectralAnalyzer, error) {
	if !bitint.IsPowerOfTwo(cfg.FFTSize) {
		return nil, fmt.Errorf("fft size must be a power of 2, got %d", cfg.FFTSize)
	}
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %f", cfg.SampleRate)
	}
	if cfg.MaxFrequency <= 0 || cfg.MaxFrequency > cfg.SampleRate/2 {
		return nil, fmt.Errorf("max frequency must be in (0, %.1f], got %.1f", cfg.SampleRate/2, cfg.MaxFrequency)
	}
	if cfg.FrequencyCorrection <= 0 {
		return nil, fmt.Errorf("frequency correction must be positive, got %f", cfg.FrequencyCorrection)
	}
	if cfg.Smoothing < 0 || cfg.Smoothing >= 1 {
		return nil, fmt.Errorf("smoothing must be in [0, 1), got %f", cfg.Smoothing)
	}
	if cfg.MinDecibels >= cfg.MaxDecibels {
		return nil, fmt.Errorf("min decibels (%.1f) must be below max decibels (%.1f)", cfg.MinDecibels, cfg.MaxDecibels)
	}

	binResolution := cfg.SampleRate / float64(cfg.FFTSize)
	// FFT output size for real input is N/2 + 1 complex values.
	outputSize := cfg.FFTSize/2 + 1
	binCount := min(int(math.Ceil(cfg.MaxFrequency/binResolution)), outputSize)

	windowCoeffs := make([]float64, cfg.FFTSize)
	applyWindow(windowCoeffs, cfg.Window)

	applog.Debugf("Analysis: Initializing SpectralAnalyzer (Size: %d, SampleRate: %.1f Hz, Window: %v, Bins: %d)",
		cfg.FFTSize, cfg.SampleRate, cfg.Window, binCount)

	return &SpectralAnalyzer{
		cfg:           cfg,
		fftCalculator: fourier.NewFFT(cfg.FFTSize),
		binResolution: binResolution,
		binCount:      binCount,
		workspace: fftWorkspace{
			input:     make([]float64, cfg.FFTSize),
			fftOutput: make([]complex128, outputSize),
			smoothed:  make([]float64, outputSize),
			window:    windowCoeffs,
			bytes:     make([]int, binCount),
		},
	}, nil
}

// Process windows the latest FFTSize samples, transforms them, smooths the
// magnitudes against the previous cycle and converts the exposed bins to bytes.
// Shorter input is zero-padded at the front so the newest sample stays last.
func (a *SpectralAnalyzer) Process(samples []float32) {
	n := a.cfg.FFTSize
	if len(samples) > n {
		samples = samples[len(samples)-n:]
	}
	pad := n - len(samples)
	for i := range pad {
		a.workspace.input[i] = 0
	}
	for i, s := range samples {
		a.workspace.input[pad+i] = float64(s) * a.workspace.window[pad+i]
	}

	a.fftCalculator.Coefficients(a.workspace.fftOutput, a.workspace.input)

	tau := a.cfg.Smoothing
	scale := 1 / float64(n)
	for i, c := range a.workspace.fftOutput {
		mag := cmplx.Abs(c) * scale
		a.workspace.smoothed[i] = tau*a.workspace.smoothed[i] + (1-tau)*mag
	}

	for i := range a.workspace.bytes {
		a.workspace.bytes[i] = a.toByte(a.workspace.smoothed[i])
	}
}

// toByte maps a linear magnitude onto [0, 255] through the configured dB range.
func (a *SpectralAnalyzer) toByte(mag float64) int {
	if mag <= 0 || math.IsNaN(mag) {
		return 0
	}
	db := 20 * math.Log10(mag)
	v := math.Floor(MaxMagnitude / (a.cfg.MaxDecibels - a.cfg.MinDecibels) * (db - a.cfg.MinDecibels))
	if v < 0 {
		return 0
	}
	if v > MaxMagnitude {
		return MaxMagnitude
	}
	return int(v)
}

// SpectrumInto copies the byte magnitudes into dest, which must have BinCount elements.
func (a *SpectralAnalyzer) SpectrumInto(dest []int) error {
	if len(dest) != len(a.workspace.bytes) {
		return fmt.Errorf("destination slice length %d does not match required length %d", len(dest), len(a.workspace.bytes))
	}
	copy(dest, a.workspace.bytes)
	return nil
}

// Reset clears the smoothing history and the last spectrum.
func (a *SpectralAnalyzer) Reset() {
	clear(a.workspace.smoothed)
	clear(a.workspace.bytes)
}

// BinCount returns the number of exposed bins, ceil(MaxFrequency/BinResolution).
func (a *SpectralAnalyzer) BinCount() int {
	return a.binCount
}

// BinResolution returns the width of one bin in Hz before correction.
func (a *SpectralAnalyzer) BinResolution() float64 {
	return a.binResolution
}

// FrequencyForBin returns the corrected display frequency of a bin, 0 for
// indices outside the exposed range.
func (a *SpectralAnalyzer) FrequencyForBin(binIndex int) float64 {
	if binIndex < 0 || binIndex >= a.binCount {
		return 0
	}
	return float64(binIndex) * a.binResolution * a.cfg.FrequencyCorrection
}

// Config returns the analyzer configuration.
func (a *SpectralAnalyzer) Config() SpectrumConfig {
	return a.cfg
}

// applyWindow fills coeffs with the selected window. Unknown types fall back to Blackman.
func applyWindow(coeffs []float64, windowType WindowFunc) {
	// gonum windows multiply in place, so start from ones.
	for i := range coeffs {
		coeffs[i] = 1.0
	}
	switch windowType {
	case BartlettHann:
		window.BartlettHann(coeffs)
	case Blackman:
		window.Blackman(coeffs)
	case BlackmanNuttall:
		window.BlackmanNuttall(coeffs)
	case Hann:
		window.Hann(coeffs)
	case Hamming:
		window.Hamming(coeffs)
	case Lanczos:
		window.Lanczos(coeffs)
	case Nuttall:
		window.Nuttall(coeffs)
	default:
		applog.Warnf("Analysis: Unknown window function type %d, defaulting to Blackman", windowType)
		window.Blackman(coeffs)
	}
}
