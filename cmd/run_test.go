// SPDX-License-Identifier: MIT
package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"soundmeter/internal/audio"
	"soundmeter/internal/config"
	applog "soundmeter/internal/log"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// syncBuffer is a bytes.Buffer safe for the poller and test goroutines.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func captureLogs(t *testing.T) *syncBuffer {
	t.Helper()
	buf := &syncBuffer{}
	applog.SetOutput(buf)
	t.Cleanup(func() {
		applog.UseConsole()
		applog.SetLevel(applog.LevelInfo)
	})
	return buf
}

func toneConfig() *config.Config {
	cfg := config.Default()
	cfg.Audio.Source = config.SourceTone
	cfg.Audio.ToneFrequency = 1000
	cfg.Display.Headless = true
	cfg.Display.RefreshInterval = 5 * time.Millisecond
	return cfg
}

func TestNewSource(t *testing.T) {
	cfg := config.Default()
	src, err := NewSource(cfg)
	require.NoError(t, err)
	assert.IsType(t, &audio.PortAudioSource{}, src)
	assert.Equal(t, "default input", src.Name())

	cfg.Audio.Source = config.SourceFile
	cfg.Audio.File = "/tmp/clip.wav"
	src, err = NewSource(cfg)
	require.NoError(t, err)
	assert.IsType(t, &audio.FileSource{}, src)
	assert.Equal(t, "clip.wav", src.Name())

	src, err = NewSource(toneConfig())
	require.NoError(t, err)
	assert.IsType(t, &audio.ToneSource{}, src)
	assert.Equal(t, "1000 Hz tone", src.Name())

	cfg.Audio.Source = "network"
	_, err = NewSource(cfg)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestNewMetersFromConfig(t *testing.T) {
	cfg := toneConfig()
	src, err := NewSource(cfg)
	require.NoError(t, err)

	lm, err := NewLevelMeter(cfg, src)
	require.NoError(t, err)
	assert.Equal(t, 100.0, lm.Calibration().Offset)
	assert.Equal(t, 2.0, lm.Calibration().Scale)

	sm, err := NewSpectrumMeter(cfg, src)
	require.NoError(t, err)
	assert.Equal(t, 186, sm.BinCount())

	cfg.Spectrum.Window = "triangle"
	_, err = NewSpectrumMeter(cfg, src)
	assert.Error(t, err)
}

func TestRunHeadlessLevel(t *testing.T) {
	logs := captureLogs(t)
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	err := Run(ctx, &Options{Command: CommandLevel, Config: toneConfig()}, &bytes.Buffer{})
	require.NoError(t, err)

	out := logs.String()
	assert.Contains(t, out, `"component":"level"`)
	assert.Contains(t, out, `"level":`)
	assert.Contains(t, out, `"capture":`)
}

func TestRunHeadlessSpectrum(t *testing.T) {
	logs := captureLogs(t)
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	err := Run(ctx, &Options{Command: CommandSpectrum, Config: toneConfig()}, &bytes.Buffer{})
	require.NoError(t, err)

	out := logs.String()
	assert.Contains(t, out, `"component":"spectrum"`)
	assert.Contains(t, out, `"peak_hz":`)
}

func TestRunHeadlessStartFailure(t *testing.T) {
	captureLogs(t)
	cfg := toneConfig()
	cfg.Audio.Source = config.SourceFile
	cfg.Audio.File = filepath.Join(t.TempDir(), "missing.wav")

	err := Run(context.Background(), &Options{Command: CommandLevel, Config: cfg}, &bytes.Buffer{})
	assert.ErrorIs(t, err, audio.ErrDeviceUnavailable)
}

func TestSetupLogging(t *testing.T) {
	t.Cleanup(func() {
		applog.UseConsole()
		applog.SetLevel(applog.LevelInfo)
	})

	cfg := config.Default()
	cfg.LogLevel = "warn"
	cfg.LogFile = filepath.Join(t.TempDir(), "meter.log")

	closer, err := setupLogging(cfg, true)
	require.NoError(t, err)
	require.NotNil(t, closer)
	assert.Equal(t, applog.LevelWarn, applog.GetLevel())

	applog.Warnf("written to file")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(cfg.LogFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "written to file")

	cfg.LogFile = filepath.Join(t.TempDir(), "missing", "meter.log")
	_, err = setupLogging(cfg, true)
	assert.Error(t, err)
}
