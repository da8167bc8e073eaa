// SPDX-License-Identifier: MIT
package analysis

import (
	"math"
	"testing"

	"soundmeter/pkg/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testFFTSize    = 4096
	testSampleRate = 44100
)

func newTestAnalyzer(t *testing.T, mutate func(*SpectrumConfig)) *SpectralAnalyzer {
	t.Helper()
	cfg := DefaultSpectrumConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	a, err := NewSpectralAnalyzer(cfg)
	require.NoError(t, err)
	return a
}

func spectrumOf(t *testing.T, a *SpectralAnalyzer) []int {
	t.Helper()
	out := make([]int, a.BinCount())
	require.NoError(t, a.SpectrumInto(out))
	return out
}

func TestNewSpectralAnalyzerValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*SpectrumConfig)
		substr string
	}{
		{"fft not pow2", func(c *SpectrumConfig) { c.FFTSize = 4000 }, "power of 2"},
		{"zero sample rate", func(c *SpectrumConfig) { c.SampleRate = 0 }, "sample rate"},
		{"max freq above nyquist", func(c *SpectrumConfig) { c.MaxFrequency = 30000 }, "max frequency"},
		{"zero correction", func(c *SpectrumConfig) { c.FrequencyCorrection = 0 }, "correction"},
		{"smoothing one", func(c *SpectrumConfig) { c.Smoothing = 1 }, "smoothing"},
		{"inverted dB range", func(c *SpectrumConfig) { c.MinDecibels = -10 }, "decibels"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultSpectrumConfig()
			tt.mutate(&cfg)
			_, err := NewSpectralAnalyzer(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.substr)
		})
	}
}

func TestAnalyzerGeometry(t *testing.T) {
	a := newTestAnalyzer(t, nil)

	assert.InDelta(t, 10.7666, a.BinResolution(), 1e-4)
	// ceil(2000 / 10.7666) = 186
	assert.Equal(t, 186, a.BinCount())
	assert.Len(t, spectrumOf(t, a), 186)

	assert.Equal(t, 0.0, a.FrequencyForBin(0))
	assert.InDelta(t, 10*a.BinResolution()*1.11, a.FrequencyForBin(10), 1e-9)
	assert.Equal(t, 0.0, a.FrequencyForBin(-1))
	assert.Equal(t, 0.0, a.FrequencyForBin(186))
}

func TestAnalyzerFullBandwidth(t *testing.T) {
	a := newTestAnalyzer(t, func(c *SpectrumConfig) {
		c.FFTSize = 256
		c.MaxFrequency = testSampleRate / 2
	})
	// 22050 / 172.27 = 128, the Nyquist bin itself is not exposed.
	assert.Equal(t, 128, a.BinCount())
}

func TestProcessSilence(t *testing.T) {
	a := newTestAnalyzer(t, nil)
	a.Process(make([]float32, testFFTSize))

	for i, v := range spectrumOf(t, a) {
		if v != 0 {
			t.Fatalf("bin %d = %d, want 0 for silence", i, v)
		}
	}
}

func TestProcessSineLandsOnExpectedBin(t *testing.T) {
	a := newTestAnalyzer(t, func(c *SpectrumConfig) { c.Smoothing = 0 })
	a.Process(utils.GenerateSineWave(testFFTSize, testSampleRate, 440, 0.05))

	spectrum := spectrumOf(t, a)
	peak := PeakIndex(spectrum)
	// 440 / 10.7666 = 40.87
	assert.Equal(t, 41, peak)
	assert.Greater(t, spectrum[peak], 0)
	assert.Less(t, spectrum[peak], MaxMagnitude)

	for i, v := range spectrum {
		if v < 0 || v > MaxMagnitude {
			t.Fatalf("bin %d = %d outside [0, 255]", i, v)
		}
	}
}

func TestProcessIsDeterministic(t *testing.T) {
	input := utils.GenerateComplexWave(testFFTSize, testSampleRate)
	a := newTestAnalyzer(t, nil)
	b := newTestAnalyzer(t, nil)

	for range 3 {
		a.Process(input)
		b.Process(input)
	}
	assert.Equal(t, spectrumOf(t, a), spectrumOf(t, b))
}

func TestSmoothingDecaysAndReset(t *testing.T) {
	a := newTestAnalyzer(t, nil)
	tone := utils.GenerateSineWave(testFFTSize, testSampleRate, 440, 0.5)
	silence := make([]float32, testFFTSize)

	a.Process(tone)
	first := spectrumOf(t, a)[41]
	a.Process(tone)
	second := spectrumOf(t, a)[41]
	assert.GreaterOrEqual(t, second, first, "smoothed magnitude rises toward the steady state")

	a.Process(silence)
	decayed := spectrumOf(t, a)[41]
	assert.Greater(t, decayed, 0, "smoothing carries energy into the next cycle")
	assert.Less(t, decayed, second)

	a.Reset()
	assert.Equal(t, make([]int, a.BinCount()), spectrumOf(t, a))
	a.Process(silence)
	assert.Equal(t, 0, spectrumOf(t, a)[41])
}

func TestProcessShortAndLongInput(t *testing.T) {
	a := newTestAnalyzer(t, func(c *SpectrumConfig) { c.Smoothing = 0 })

	assert.NotPanics(t, func() { a.Process(utils.GenerateSineWave(100, testSampleRate, 440, 0.5)) })
	assert.NotPanics(t, func() { a.Process(nil) })
	assert.Equal(t, 0, spectrumOf(t, a)[41])

	// Only the newest FFTSize samples count: silence followed by a tone.
	long := append(make([]float32, testFFTSize), utils.GenerateSineWave(testFFTSize, testSampleRate, 440, 0.05)...)
	a.Process(long)
	assert.Equal(t, 41, PeakIndex(spectrumOf(t, a)))
}

func TestToByteMapping(t *testing.T) {
	a := newTestAnalyzer(t, nil)
	fromDB := func(db float64) float64 { return math.Pow(10, db/20) }

	tests := []struct {
		name string
		mag  float64
		min  int
		max  int
	}{
		{"zero", 0, 0, 0},
		{"nan", math.NaN(), 0, 0},
		{"below min dB", fromDB(-110), 0, 0},
		{"at min dB", fromDB(-100), 0, 0},
		{"midpoint", fromDB(-65), 127, 127},
		{"at max dB", fromDB(-30), 254, 255},
		{"above max dB", fromDB(-10), 255, 255},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := a.toByte(tt.mag)
			assert.GreaterOrEqual(t, got, tt.min)
			assert.LessOrEqual(t, got, tt.max)
		})
	}
}

func TestSpectrumInto(t *testing.T) {
	a := newTestAnalyzer(t, nil)
	a.Process(utils.GenerateComplexWave(testFFTSize, testSampleRate))

	dest := make([]int, a.BinCount())
	require.NoError(t, a.SpectrumInto(dest))
	assert.Equal(t, a.workspace.bytes, dest)

	assert.Error(t, a.SpectrumInto(make([]int, 3)))
}

func TestParseWindowFunc(t *testing.T) {
	tests := []struct {
		name    string
		want    WindowFunc
		wantErr bool
	}{
		{"Blackman", Blackman, false},
		{"hann", Hann, false},
		{"hanning", Hann, false},
		{"HAMMING", Hamming, false},
		{"bartletthann", BartlettHann, false},
		{"blackmannuttall", BlackmanNuttall, false},
		{"lanczos", Lanczos, false},
		{"nuttall", Nuttall, false},
		{"kaiser", Blackman, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseWindowFunc(tt.name)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantErr, err != nil)
		})
	}
}

func TestEveryWindowProducesAPeak(t *testing.T) {
	input := utils.GenerateSineWave(testFFTSize, testSampleRate, 1000, 0.05)
	for _, w := range []WindowFunc{BartlettHann, Blackman, BlackmanNuttall, Hann, Hamming, Lanczos, Nuttall} {
		t.Run(w.String(), func(t *testing.T) {
			a := newTestAnalyzer(t, func(c *SpectrumConfig) { c.Window = w; c.Smoothing = 0 })
			a.Process(input)
			// 1000 / 10.7666 = 92.88
			assert.InDelta(t, 93, PeakIndex(spectrumOf(t, a)), 1)
		})
	}
}

func TestProcessHotPath(t *testing.T) {
	a := newTestAnalyzer(t, nil)
	input := utils.GenerateComplexWave(testFFTSize, testSampleRate)

	a.Process(input)
	allocs := testing.AllocsPerRun(100, func() {
		a.Process(input)
	})
	if allocs > 0 {
		t.Errorf("Expected zero allocations in Process hot path, got %.1f", allocs)
	}
}

func BenchmarkProcess(b *testing.B) {
	a, _ := NewSpectralAnalyzer(DefaultSpectrumConfig())
	input := utils.GenerateComplexWave(testFFTSize, testSampleRate)

	b.ReportAllocs()
	for b.Loop() {
		a.Process(input)
	}
}
