// SPDX-License-Identifier: MIT

/*
Package audio captures mono float32 samples for the meters.

A Source opens a Stream; the stream buffers incoming audio in a ring and hands
out the most recent samples on each Read, so the consumer's frame loop decides
the analysis rate independently of the capture callback. Three sources exist:

  - PortAudioSource: a live input device.
  - FileSource: a WAV, MP3 or FLAC file replayed in real time.
  - ToneSource: a synthetic sine, for calibration checks.

Session wraps a Source with the Idle/Capturing/Error state machine the meters
drive.
*/
package audio

import (
	"context"
	"errors"
)

var (
	// ErrPermissionDenied is returned when the host refuses access to the input.
	ErrPermissionDenied = errors.New("audio input permission denied")
	// ErrDeviceUnavailable is returned when no usable input device exists.
	ErrDeviceUnavailable = errors.New("audio input device unavailable")
	// ErrAlreadyCapturing is returned by Session.Start while a capture is active.
	ErrAlreadyCapturing = errors.New("session already capturing")
	// ErrNotCapturing is returned by Session.Read outside the Capturing state.
	ErrNotCapturing = errors.New("session not capturing")
	// ErrStreamClosed is returned by Stream.Read after Close.
	ErrStreamClosed = errors.New("stream closed")
)

// Source opens capture streams. Open may block, for instance while the host
// asks the user for microphone permission, and returns early when ctx is done.
type Source interface {
	Name() string
	Open(ctx context.Context) (Stream, error)
}

// Stream is an open capture.
type Stream interface {
	// Read fills dst with the newest mono samples in [-1, 1], oldest first.
	// Until enough audio has arrived the front of dst is zero.
	Read(dst []float32) error
	SampleRate() float64
	// Close releases the capture. It is safe to call more than once.
	Close() error
}
