// SPDX-License-Identifier: MIT
package meter_test

import (
	"context"
	"testing"

	"soundmeter/internal/analysis"
	"soundmeter/internal/audio"
	"soundmeter/internal/meter"
	"soundmeter/pkg/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelMeterReadouts(t *testing.T) {
	src := &utils.MockSource{Samples: utils.GenerateConstant(1024, 0.1)}
	m, err := meter.NewLevelMeter(src, 1024, analysis.Calibration{Offset: 100, Scale: 1})
	require.NoError(t, err)

	// Idle: no reading.
	r, err := m.Poll()
	require.NoError(t, err)
	assert.Nil(t, r.LevelPercent)

	require.NoError(t, m.Start(context.Background()))
	assert.Nil(t, m.Last().LevelPercent, "nothing measured yet")

	r, err = m.Poll()
	require.NoError(t, err)
	require.NotNil(t, r.LevelPercent)
	assert.Equal(t, 80, *r.LevelPercent)
	assert.InDelta(t, -20, r.Decibels, 1e-3)

	// Calibration changes apply from the next cycle.
	require.NoError(t, m.SetCalibration(analysis.Calibration{Offset: 70, Scale: 2}))
	r, err = m.Poll()
	require.NoError(t, err)
	assert.Equal(t, 100, *r.LevelPercent)

	assert.ErrorIs(t, m.SetCalibration(analysis.Calibration{Offset: 70, Scale: 9}), analysis.ErrCalibrationRange)
	assert.Equal(t, analysis.Calibration{Offset: 70, Scale: 2}, m.Calibration())

	src.SetSamples(make([]float32, 1024))
	r, err = m.Poll()
	require.NoError(t, err)
	assert.Equal(t, 0, *r.LevelPercent, "silence")

	require.NoError(t, m.Stop())
	assert.Nil(t, m.Last().LevelPercent)
	r, err = m.Poll()
	require.NoError(t, err)
	assert.Nil(t, r.LevelPercent)
	assert.Equal(t, 0, src.OpenStreams())
}

func TestLevelMeterPermissionDenied(t *testing.T) {
	src := &utils.MockSource{OpenErr: audio.ErrPermissionDenied}
	m, err := meter.NewLevelMeter(src, 1024, analysis.DefaultCalibration())
	require.NoError(t, err)

	err = m.Start(context.Background())
	assert.ErrorIs(t, err, audio.ErrPermissionDenied)
	assert.Equal(t, audio.StateError, m.Session().State())

	r, err := m.Poll()
	require.NoError(t, err)
	assert.Nil(t, r.LevelPercent, "no numeric output in the error state")
}

func TestNewLevelMeterValidation(t *testing.T) {
	_, err := meter.NewLevelMeter(&utils.MockSource{}, 0, analysis.DefaultCalibration())
	assert.Error(t, err)

	_, err = meter.NewLevelMeter(&utils.MockSource{}, 1024, analysis.Calibration{Offset: -1, Scale: 1})
	assert.ErrorIs(t, err, analysis.ErrCalibrationRange)
}

func spectrumConfig() analysis.SpectrumConfig {
	cfg := analysis.DefaultSpectrumConfig()
	cfg.FrequencyCorrection = 1
	return cfg
}

func TestSpectrumMeterFindsTone(t *testing.T) {
	src := &utils.MockSource{Samples: utils.GenerateSineWave(4096, 44100, 440, 0.05)}
	m, err := meter.NewSpectrumMeter(src, spectrumConfig())
	require.NoError(t, err)
	assert.Equal(t, 186, m.BinCount())

	r, err := m.Poll()
	require.NoError(t, err)
	assert.Nil(t, r.Spectrum, "idle")

	require.NoError(t, m.Start(context.Background()))
	for range 10 {
		r, err = m.Poll()
		require.NoError(t, err)
	}

	require.Len(t, r.Spectrum, 186)
	binRes := 44100.0 / 4096
	assert.InDelta(t, 440, r.PeakFrequencyHz, binRes/2)
	assert.Equal(t, r.Spectrum[r.Peak.Bin], r.PeakMagnitude)
	assert.Greater(t, r.PeakMagnitude, 0)
	assert.Equal(t, r, m.Last())

	// The readout is a copy.
	r.Spectrum[0] = 999
	assert.NotEqual(t, 999, m.Last().Spectrum[0])
}

func TestSpectrumMeterCorrection(t *testing.T) {
	src := &utils.MockSource{Samples: utils.GenerateSineWave(4096, 44100, 440, 0.05)}
	m, err := meter.NewSpectrumMeter(src, analysis.DefaultSpectrumConfig())
	require.NoError(t, err)
	require.NoError(t, m.Start(context.Background()))
	defer m.Stop()

	r, err := m.Poll()
	require.NoError(t, err)
	assert.InDelta(t, 440*1.11, r.PeakFrequencyHz, 1.11*44100.0/4096/2)
}

func TestSpectrumMeterStopResetsSmoothing(t *testing.T) {
	src := &utils.MockSource{Samples: utils.GenerateSineWave(4096, 44100, 440, 0.5)}
	m, err := meter.NewSpectrumMeter(src, spectrumConfig())
	require.NoError(t, err)

	require.NoError(t, m.Start(context.Background()))
	first, err := m.Poll()
	require.NoError(t, err)
	_, err = m.Poll()
	require.NoError(t, err)

	require.NoError(t, m.Stop())
	assert.Nil(t, m.Last().Spectrum)

	require.NoError(t, m.Start(context.Background()))
	again, err := m.Poll()
	require.NoError(t, err)
	assert.Equal(t, first.Spectrum, again.Spectrum, "restart begins from an empty history")
	require.NoError(t, m.Stop())
}

func TestSpectrumMeterAdoptsStreamRate(t *testing.T) {
	src := &utils.MockSource{Rate: 48000, Samples: utils.GenerateSineWave(4096, 48000, 1000, 0.05)}
	m, err := meter.NewSpectrumMeter(src, spectrumConfig())
	require.NoError(t, err)

	require.NoError(t, m.Start(context.Background()))
	defer m.Stop()

	assert.Equal(t, 48000.0, m.Config().SampleRate)
	// ceil(2000 / (48000/4096))
	assert.Equal(t, 171, m.BinCount())

	r, err := m.Poll()
	require.NoError(t, err)
	assert.InDelta(t, 1000, r.PeakFrequencyHz, 48000.0/4096/2)
}

func TestSpectrumMeterDeviceUnavailable(t *testing.T) {
	src := &utils.MockSource{OpenErr: audio.ErrDeviceUnavailable}
	m, err := meter.NewSpectrumMeter(src, spectrumConfig())
	require.NoError(t, err)

	assert.ErrorIs(t, m.Start(context.Background()), audio.ErrDeviceUnavailable)
	r, err := m.Poll()
	require.NoError(t, err)
	assert.Nil(t, r.Spectrum)
}

func TestToggle(t *testing.T) {
	src := &utils.MockSource{}
	m, err := meter.NewLevelMeter(src, 256, analysis.DefaultCalibration())
	require.NoError(t, err)

	require.NoError(t, meter.Toggle(context.Background(), m))
	assert.Equal(t, audio.StateCapturing, m.Session().State())
	require.NoError(t, meter.Toggle(context.Background(), m))
	assert.Equal(t, audio.StateIdle, m.Session().State())

	src.OpenErr = audio.ErrPermissionDenied
	assert.Error(t, meter.Toggle(context.Background(), m))
	assert.Equal(t, audio.StateError, m.Session().State())

	src.OpenErr = nil
	require.NoError(t, meter.Toggle(context.Background(), m), "error state retries")
	assert.Equal(t, audio.StateCapturing, m.Session().State())
	require.NoError(t, m.Stop())
}
