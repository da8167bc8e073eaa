// SPDX-License-Identifier: MIT

// Package analysis holds the signal-processing core of the meters: the
// decibel estimator, the windowed spectral analyzer and the peak frequency
// estimator. Everything here is pure computation over caller-supplied buffers;
// capture and scheduling live in the audio and meter packages.
package analysis

// SampleProcessor consumes one buffer of mono time-domain samples in [-1, 1].
type SampleProcessor interface {
	Process(samples []float32)
}

// SpectrumProvider exposes the byte magnitudes of the last processed cycle.
type SpectrumProvider interface {
	SpectrumInto(dest []int) error
	BinCount() int
	FrequencyForBin(binIndex int) float64
}

// SpectrumProcessor is a SampleProcessor whose output is a spectrum.
type SpectrumProcessor interface {
	SampleProcessor
	SpectrumProvider
	Reset()
}

// Compile-time checks for interface implementations.
var _ SpectrumProcessor = (*SpectralAnalyzer)(nil)
