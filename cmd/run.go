// SPDX-License-Identifier: MIT
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"soundmeter/internal/analysis"
	"soundmeter/internal/audio"
	"soundmeter/internal/config"
	applog "soundmeter/internal/log"
	"soundmeter/internal/meter"
	"soundmeter/internal/tui"

	"github.com/rs/zerolog"
)

// Run executes the parsed command until ctx is cancelled or the user quits.
// Device listings are written to stdout.
func Run(ctx context.Context, opts *Options, stdout io.Writer) error {
	cfg := opts.Config

	interactive := opts.Command != CommandList && !cfg.Display.Headless
	logFile, err := setupLogging(cfg, interactive)
	if err != nil {
		return err
	}
	if logFile != nil {
		defer logFile.Close()
	}

	if opts.Command == CommandList || opts.Pick || cfg.Audio.Source == config.SourceDevice {
		if err := audio.Initialize(); err != nil {
			return err
		}
		defer func() {
			if err := audio.Terminate(); err != nil {
				applog.Warnf("Main: %v", err)
			}
		}()
	}

	if opts.Command == CommandList {
		return audio.ListDevices(stdout)
	}

	if opts.Pick {
		sel, ok, err := tui.PickDevice(nil)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		applog.Infof("Main: Selected device %d (%s) at %.0f Hz", sel.DeviceID, sel.DeviceName, sel.SampleRate)
		cfg.Audio.Source = config.SourceDevice
		cfg.Audio.InputDevice = sel.DeviceID
		cfg.Audio.SampleRate = sel.SampleRate
	}

	src, err := NewSource(cfg)
	if err != nil {
		return err
	}

	interval := cfg.Display.RefreshInterval
	switch opts.Command {
	case CommandLevel:
		lm, err := NewLevelMeter(cfg, src)
		if err != nil {
			return err
		}
		if !interactive {
			return runHeadless(ctx, lm, interval, reportLevel(lm))
		}
		return tui.Run(tui.NewLevelModel(ctx, lm, interval))

	case CommandSpectrum:
		sm, err := NewSpectrumMeter(cfg, src)
		if err != nil {
			return err
		}
		if !interactive {
			return runHeadless(ctx, sm, interval, reportSpectrum(sm))
		}
		return tui.Run(tui.NewSpectrumModel(ctx, sm, interval))

	default:
		return fmt.Errorf("unknown command %q", opts.Command)
	}
}

// setupLogging applies the configured level and destination. While the
// terminal UI owns the screen, logs go to the log file or nowhere. The
// returned file, if any, must be closed by the caller.
func setupLogging(cfg *config.Config, interactive bool) (io.Closer, error) {
	level, _ := applog.ParseLevel(cfg.LogLevel)
	applog.SetLevel(level)

	var closer io.Closer
	switch {
	case cfg.LogFile != "":
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		applog.SetOutput(zerolog.ConsoleWriter{Out: f, NoColor: true, TimeFormat: time.StampMicro})
		closer = f
	case interactive:
		applog.SetOutput(io.Discard)
	}
	applog.Debugf("Main: Logging at level %s", applog.GetLevel())
	return closer, nil
}

// NewSource builds the configured capture source. Its ring holds enough
// samples for either meter.
func NewSource(cfg *config.Config) (audio.Source, error) {
	bufferSize := max(cfg.Level.BufferSize, cfg.Spectrum.FFTSize)
	a := cfg.Audio

	switch a.Source {
	case config.SourceDevice:
		return audio.NewPortAudioSource(audio.PortAudioConfig{
			DeviceID:        a.InputDevice,
			Channels:        a.InputChannels,
			SampleRate:      a.SampleRate,
			FramesPerBuffer: a.FramesPerBuffer,
			LowLatency:      a.LowLatency,
			BufferSize:      bufferSize,
		}), nil
	case config.SourceFile:
		return audio.NewFileSource(audio.FileConfig{
			Path:            a.File,
			SampleRate:      a.SampleRate,
			FramesPerBuffer: a.FramesPerBuffer,
			BufferSize:      bufferSize,
		}), nil
	case config.SourceTone:
		return audio.NewToneSource(audio.ToneConfig{
			Frequency:       a.ToneFrequency,
			Amplitude:       a.ToneAmplitude,
			SampleRate:      a.SampleRate,
			FramesPerBuffer: a.FramesPerBuffer,
			BufferSize:      bufferSize,
		}), nil
	default:
		return nil, fmt.Errorf("%w: unknown audio.source %q", config.ErrInvalidConfig, a.Source)
	}
}

// NewLevelMeter builds the level widget from the configuration.
func NewLevelMeter(cfg *config.Config, src audio.Source) (*meter.LevelMeter, error) {
	return meter.NewLevelMeter(src, cfg.Level.BufferSize, analysis.Calibration{
		Offset: cfg.Level.CalibrationOffset,
		Scale:  cfg.Level.CalibrationScale,
	})
}

// NewSpectrumMeter builds the spectrum widget from the configuration.
func NewSpectrumMeter(cfg *config.Config, src audio.Source) (*meter.SpectrumMeter, error) {
	window, err := analysis.ParseWindowFunc(cfg.Spectrum.Window)
	if err != nil {
		return nil, err
	}
	return meter.NewSpectrumMeter(src, analysis.SpectrumConfig{
		FFTSize:             cfg.Spectrum.FFTSize,
		SampleRate:          cfg.Audio.SampleRate,
		MaxFrequency:        cfg.Spectrum.MaxFrequency,
		FrequencyCorrection: cfg.Spectrum.FrequencyCorrection,
		Smoothing:           cfg.Spectrum.Smoothing,
		MinDecibels:         cfg.Spectrum.MinDecibels,
		MaxDecibels:         cfg.Spectrum.MaxDecibels,
		Window:              window,
	})
}

// runHeadless starts m and runs report once per interval until ctx is done.
func runHeadless(ctx context.Context, m meter.Meter, interval time.Duration, report func()) error {
	if err := m.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := m.Stop(); err != nil {
			applog.Warnf("Main: Stop failed: %v", err)
		}
	}()

	poller, err := meter.NewPoller(interval, report)
	if err != nil {
		return err
	}
	poller.Start()
	defer poller.Close()

	<-ctx.Done()
	return nil
}

func reportLevel(lm *meter.LevelMeter) func() {
	logger := applog.For("level")
	return func() {
		r, err := lm.Poll()
		if err != nil {
			logger.Warn().Err(err).Msg("poll failed")
			return
		}
		if r.LevelPercent == nil {
			return
		}
		logger.Info().
			Stringer("capture", lm.Session().ID()).
			Int("level", *r.LevelPercent).
			Float64("dbfs", r.Decibels).
			Msg("readout")
	}
}

func reportSpectrum(sm *meter.SpectrumMeter) func() {
	logger := applog.For("spectrum")
	return func() {
		r, err := sm.Poll()
		if err != nil {
			logger.Warn().Err(err).Msg("poll failed")
			return
		}
		if r.Spectrum == nil {
			return
		}
		logger.Info().
			Stringer("capture", sm.Session().ID()).
			Float64("peak_hz", r.PeakFrequencyHz).
			Int("peak_magnitude", r.PeakMagnitude).
			Int("bin", r.Peak.Bin).
			Bool("degenerate", r.Peak.Degenerate).
			Msg("readout")
	}
}
