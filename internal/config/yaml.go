// SPDX-License-Identifier: MIT
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"soundmeter/internal/analysis"
	applog "soundmeter/internal/log"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is wrapped by every Validate failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config represents the main application configuration structure, loaded from YAML.
type Config struct {
	LogLevel string         `yaml:"log_level"`          // Logging level ("debug", "info", "warn", "error").
	LogFile  string         `yaml:"log_file,omitempty"` // Log destination while the terminal UI owns the screen.
	Audio    AudioConfig    `yaml:"audio"`              // Capture source settings.
	Level    LevelConfig    `yaml:"level"`              // Noise level meter settings.
	Spectrum SpectrumConfig `yaml:"spectrum"`           // Spectrum analyzer settings.
	Display  DisplayConfig  `yaml:"display"`            // Presentation settings.
}

// AudioConfig selects and configures the capture source.
type AudioConfig struct {
	Source          string  `yaml:"source"`            // "device", "file" or "tone".
	InputDevice     int     `yaml:"input_device"`      // PortAudio device index (-1 for default).
	InputChannels   int     `yaml:"input_channels"`    // Channels captured before the mono down-mix.
	SampleRate      float64 `yaml:"sample_rate"`       // Capture and analysis rate in Hz.
	FramesPerBuffer int     `yaml:"frames_per_buffer"` // PortAudio callback size.
	LowLatency      bool    `yaml:"low_latency"`       // Request the device's low input latency.
	File            string  `yaml:"file,omitempty"`    // Audio file replayed by the file source.
	ToneFrequency   float64 `yaml:"tone_frequency"`    // Sine frequency of the tone source (Hz).
	ToneAmplitude   float64 `yaml:"tone_amplitude"`    // Sine amplitude of the tone source (0-1].
}

// LevelConfig holds the noise level meter settings.
type LevelConfig struct {
	BufferSize        int     `yaml:"buffer_size"`        // Time-domain samples per reading.
	CalibrationOffset float64 `yaml:"calibration_offset"` // 0-200.
	CalibrationScale  float64 `yaml:"calibration_scale"`  // 0.5-5.
}

// SpectrumConfig holds the spectrum analyzer settings.
type SpectrumConfig struct {
	FFTSize             int     `yaml:"fft_size"`             // Window size, power of two.
	MaxFrequency        float64 `yaml:"max_frequency"`        // Highest frequency exposed (Hz).
	FrequencyCorrection float64 `yaml:"frequency_correction"` // Multiplier applied to bin frequencies.
	Smoothing           float64 `yaml:"smoothing"`            // Temporal smoothing constant [0,1).
	MinDecibels         float64 `yaml:"min_decibels"`         // dB mapped to magnitude 0.
	MaxDecibels         float64 `yaml:"max_decibels"`         // dB mapped to magnitude 255.
	Window              string  `yaml:"window"`               // Window function name.
}

// DisplayConfig holds presentation settings.
type DisplayConfig struct {
	RefreshInterval time.Duration `yaml:"refresh_interval"` // Frame interval.
	Headless        bool          `yaml:"headless"`         // Log readouts instead of drawing.
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Audio: AudioConfig{
			Source:          DefaultSource,
			InputDevice:     DefaultDeviceID,
			InputChannels:   DefaultChannels,
			SampleRate:      DefaultSampleRate,
			FramesPerBuffer: DefaultFramesPerBuffer,
			LowLatency:      DefaultLowLatency,
			ToneFrequency:   DefaultToneFrequency,
			ToneAmplitude:   DefaultToneAmplitude,
		},
		Level: LevelConfig{
			BufferSize:        DefaultLevelBufferSize,
			CalibrationOffset: DefaultCalibrationOffset,
			CalibrationScale:  DefaultCalibrationScale,
		},
		Spectrum: SpectrumConfig{
			FFTSize:             DefaultFFTSize,
			MaxFrequency:        DefaultMaxFrequency,
			FrequencyCorrection: DefaultFrequencyCorrection,
			Smoothing:           DefaultSmoothing,
			MinDecibels:         DefaultMinDecibels,
			MaxDecibels:         DefaultMaxDecibels,
			Window:              DefaultWindow,
		},
		Display: DisplayConfig{
			RefreshInterval: DefaultRefreshInterval,
		},
	}
}

// LoadConfig loads configuration from a YAML file specified by path. If path is empty,
// it searches default locations ("config.yaml"). If no file is found, it uses built-in
// defaults. A ".env" file in the working directory is loaded into the environment, then
// ENV_* overrides are applied. The result is not validated: callers overlay
// their own settings first and then call Validate.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		for _, candidate := range []string{"config.yaml"} {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// Missing .env is the common case.
	_ = godotenv.Load()
	cfg.applyEnvOverrides()
	return cfg, nil
}

// Validate checks ranges that the analyzers and capture sources rely on.
func (c *Config) Validate() error {
	if _, ok := applog.ParseLevel(c.LogLevel); !ok {
		return fmt.Errorf("%w: unknown log_level %q", ErrInvalidConfig, c.LogLevel)
	}

	switch c.Audio.Source {
	case SourceDevice:
	case SourceFile:
		if c.Audio.File == "" {
			return fmt.Errorf("%w: audio.file must be set when audio.source is %q", ErrInvalidConfig, SourceFile)
		}
	case SourceTone:
		if c.Audio.ToneFrequency <= 0 || c.Audio.ToneFrequency >= c.Audio.SampleRate/2 {
			return fmt.Errorf("%w: audio.tone_frequency %.1f outside (0, %.1f)", ErrInvalidConfig,
				c.Audio.ToneFrequency, c.Audio.SampleRate/2)
		}
		if c.Audio.ToneAmplitude <= 0 || c.Audio.ToneAmplitude > 1 {
			return fmt.Errorf("%w: audio.tone_amplitude %.2f outside (0, 1]", ErrInvalidConfig, c.Audio.ToneAmplitude)
		}
	default:
		return fmt.Errorf("%w: unknown audio.source %q", ErrInvalidConfig, c.Audio.Source)
	}

	if c.Audio.InputDevice < MinDeviceID {
		return fmt.Errorf("%w: audio.input_device %d", ErrInvalidConfig, c.Audio.InputDevice)
	}
	if c.Audio.InputChannels < 1 {
		return fmt.Errorf("%w: audio.input_channels must be at least 1", ErrInvalidConfig)
	}
	if c.Audio.SampleRate < MinSampleRate || c.Audio.SampleRate > MaxSampleRate {
		return fmt.Errorf("%w: audio.sample_rate %.0f outside [%d, %d]", ErrInvalidConfig,
			c.Audio.SampleRate, MinSampleRate, MaxSampleRate)
	}
	if c.Audio.FramesPerBuffer <= 0 {
		return fmt.Errorf("%w: audio.frames_per_buffer must be positive", ErrInvalidConfig)
	}

	if c.Level.BufferSize <= 0 {
		return fmt.Errorf("%w: level.buffer_size must be positive", ErrInvalidConfig)
	}
	if c.Level.CalibrationOffset < analysis.MinCalibrationOffset || c.Level.CalibrationOffset > analysis.MaxCalibrationOffset {
		return fmt.Errorf("%w: level.calibration_offset %.1f outside [%.0f, %.0f]", ErrInvalidConfig,
			c.Level.CalibrationOffset, analysis.MinCalibrationOffset, analysis.MaxCalibrationOffset)
	}
	if c.Level.CalibrationScale < analysis.MinCalibrationScale || c.Level.CalibrationScale > analysis.MaxCalibrationScale {
		return fmt.Errorf("%w: level.calibration_scale %.2f outside [%.1f, %.1f]", ErrInvalidConfig,
			c.Level.CalibrationScale, analysis.MinCalibrationScale, analysis.MaxCalibrationScale)
	}

	if c.Spectrum.FFTSize <= 0 || c.Spectrum.FFTSize > MaxFFTSize || c.Spectrum.FFTSize&(c.Spectrum.FFTSize-1) != 0 {
		return fmt.Errorf("%w: spectrum.fft_size %d must be a power of two up to %d", ErrInvalidConfig,
			c.Spectrum.FFTSize, MaxFFTSize)
	}
	if c.Spectrum.MaxFrequency <= 0 || c.Spectrum.MaxFrequency > c.Audio.SampleRate/2 {
		return fmt.Errorf("%w: spectrum.max_frequency %.1f outside (0, %.1f]", ErrInvalidConfig,
			c.Spectrum.MaxFrequency, c.Audio.SampleRate/2)
	}
	if c.Spectrum.FrequencyCorrection <= 0 {
		return fmt.Errorf("%w: spectrum.frequency_correction must be positive", ErrInvalidConfig)
	}
	if c.Spectrum.Smoothing < 0 || c.Spectrum.Smoothing >= 1 {
		return fmt.Errorf("%w: spectrum.smoothing %.2f outside [0, 1)", ErrInvalidConfig, c.Spectrum.Smoothing)
	}
	if _, err := analysis.ParseWindowFunc(c.Spectrum.Window); err != nil {
		return fmt.Errorf("%w: spectrum.window: %w", ErrInvalidConfig, err)
	}
	if c.Spectrum.MinDecibels >= c.Spectrum.MaxDecibels {
		return fmt.Errorf("%w: spectrum.min_decibels must be below spectrum.max_decibels", ErrInvalidConfig)
	}

	if c.Display.RefreshInterval <= 0 {
		return fmt.Errorf("%w: display.refresh_interval must be positive", ErrInvalidConfig)
	}

	return nil
}

// applyEnvOverrides applies ENV_* variables on top of file and default values.
// Unparseable values are ignored with a warning so a typo never blocks startup.
func (c *Config) applyEnvOverrides() {
	if val, ok := os.LookupEnv("ENV_LOG_LEVEL"); ok {
		c.LogLevel = val
	}
	if val, ok := os.LookupEnv("ENV_LOG_FILE"); ok {
		c.LogFile = val
	}

	// ENV_AUDIO_{...}
	if val, ok := os.LookupEnv("ENV_AUDIO_SOURCE"); ok {
		c.Audio.Source = strings.ToLower(val)
	}
	if val, ok := os.LookupEnv("ENV_AUDIO_FILE"); ok {
		c.Audio.File = val
	}
	envInt("ENV_AUDIO_INPUT_DEVICE", &c.Audio.InputDevice)
	envFloat("ENV_AUDIO_SAMPLE_RATE", &c.Audio.SampleRate)

	// ENV_LEVEL_{...}
	envFloat("ENV_LEVEL_CALIBRATION_OFFSET", &c.Level.CalibrationOffset)
	envFloat("ENV_LEVEL_CALIBRATION_SCALE", &c.Level.CalibrationScale)

	// ENV_SPECTRUM_{...}
	envFloat("ENV_SPECTRUM_MAX_FREQUENCY", &c.Spectrum.MaxFrequency)
	envFloat("ENV_SPECTRUM_FREQUENCY_CORRECTION", &c.Spectrum.FrequencyCorrection)

	// ENV_DISPLAY_{...}
	if val, ok := os.LookupEnv("ENV_DISPLAY_REFRESH_INTERVAL"); ok {
		if dur, err := time.ParseDuration(val); err == nil {
			c.Display.RefreshInterval = dur
		} else {
			applog.Warnf("configuration: ignoring ENV_DISPLAY_REFRESH_INTERVAL=%q: %v", val, err)
		}
	}
}

func envInt(name string, dst *int) {
	val, ok := os.LookupEnv(name)
	if !ok {
		return
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		applog.Warnf("configuration: ignoring %s=%q: %v", name, val, err)
		return
	}
	*dst = n
}

func envFloat(name string, dst *float64) {
	val, ok := os.LookupEnv(name)
	if !ok {
		return
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		applog.Warnf("configuration: ignoring %s=%q: %v", name, val, err)
		return
	}
	*dst = f
}
