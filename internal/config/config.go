// SPDX-License-Identifier: MIT
package config

import "time"

// Defaults and limits for the meters and their capture source.
const (
	// Capture
	DefaultSource          = SourceDevice
	DefaultDeviceID        = MinDeviceID // System default input device
	DefaultChannels        = 1           // Mono capture
	DefaultSampleRate      = 44100       // Rate the analyzers assume
	DefaultFramesPerBuffer = 512         // PortAudio callback size
	DefaultLowLatency      = false
	DefaultToneFrequency   = 440.0
	DefaultToneAmplitude   = 0.5

	// Level meter
	DefaultLevelBufferSize   = 1024  // getFloatTimeDomainData on a 2048-point analyser
	DefaultCalibrationOffset = 100.0 // dB added before scaling
	DefaultCalibrationScale  = 2.0

	// Spectrum analyzer
	DefaultFFTSize             = 4096
	DefaultMaxFrequency        = 2000.0 // Hz
	DefaultFrequencyCorrection = 1.11   // Measured against reference tones
	DefaultSmoothing           = 0.8
	DefaultMinDecibels         = -100.0
	DefaultMaxDecibels         = -30.0
	DefaultWindow              = "blackman"

	// Display
	DefaultRefreshInterval = 16 * time.Millisecond // ~60 Hz frame rate

	// Hardware and processing limits
	MinDeviceID   = -1 // -1 represents the system default device
	MinSampleRate = 8000
	MaxSampleRate = 192000
	MaxFFTSize    = 32768
)

// Capture source kinds.
const (
	SourceDevice = "device"
	SourceFile   = "file"
	SourceTone   = "tone"
)
