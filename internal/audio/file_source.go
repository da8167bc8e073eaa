// SPDX-License-Identifier: MIT
package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	applog "soundmeter/internal/log"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/mp3"
)

// Container formats recognised by their magic bytes.
const (
	formatUnknown = ""
	formatWAV     = ".wav"
	formatMP3     = ".mp3"
	formatFLAC    = ".flac"
)

// resampleQuality is the beep resampler quality used for rate conversion.
const resampleQuality = 4

// FileConfig configures a FileSource.
type FileConfig struct {
	Path            string
	SampleRate      float64 // Output rate; the file is resampled when it differs.
	FramesPerBuffer int     // Frames pushed per pump tick.
	BufferSize      int     // Samples retained for Read.
}

// FileSource replays an audio file in real time as if it were a capture
// device. WAV is decoded with go-audio, MP3 and FLAC with beep.
type FileSource struct {
	cfg FileConfig
}

// NewFileSource returns a source for the configured file.
func NewFileSource(cfg FileConfig) *FileSource {
	return &FileSource{cfg: cfg}
}

func (s *FileSource) Name() string {
	return filepath.Base(s.cfg.Path)
}

// Open decodes the file and starts replaying it. A missing or undecodable
// file is reported as ErrDeviceUnavailable, an unreadable one as
// ErrPermissionDenied.
func (s *FileSource) Open(ctx context.Context) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	st, err := s.openStream()
	if err != nil {
		return nil, err
	}
	st.start()
	applog.Infof("Audio: Replaying %s at %.0f Hz", s.cfg.Path, s.cfg.SampleRate)
	return st, nil
}

// openStream decodes the file into a stream that has not started pumping.
func (s *FileSource) openStream() (*beepStream, error) {
	f, err := os.Open(s.cfg.Path)
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return nil, fmt.Errorf("%w: %w", ErrPermissionDenied, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
	}

	streamer, format, closer, err := decode(f)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%w: %s: %w", ErrDeviceUnavailable, s.cfg.Path, err)
	}
	if format.SampleRate <= 0 || format.NumChannels < 1 {
		if closer != nil {
			_ = closer()
		}
		return nil, fmt.Errorf("%w: %s: invalid format (%d Hz, %d channels)", ErrDeviceUnavailable,
			s.cfg.Path, format.SampleRate, format.NumChannels)
	}

	target := beep.SampleRate(s.cfg.SampleRate)
	if format.SampleRate != target {
		applog.Debugf("Audio: Resampling %s from %d Hz to %d Hz", s.cfg.Path, format.SampleRate, target)
		streamer = beep.Resample(resampleQuality, format.SampleRate, target, streamer)
	}

	return newBeepStream(streamer, s.cfg.SampleRate, s.cfg.FramesPerBuffer, s.cfg.BufferSize, closer), nil
}

// detectFormat reads the first 12 bytes to determine the container, then
// rewinds r.
func detectFormat(r io.ReadSeeker) (string, error) {
	const headerSize = 12
	header := make([]byte, headerSize)
	n, err := io.ReadFull(r, header)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return formatUnknown, fmt.Errorf("error reading magic bytes: %w", err)
	}
	header = header[:n]
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return formatUnknown, err
	}

	switch {
	case len(header) >= 12 && string(header[:4]) == "RIFF" && string(header[8:12]) == "WAVE":
		return formatWAV, nil
	case len(header) >= 4 && string(header[:4]) == "fLaC":
		return formatFLAC, nil
	case len(header) >= 3 && string(header[:3]) == "ID3":
		return formatMP3, nil
	case len(header) >= 2 && header[0] == 0xFF && (header[1]&0xF6) == 0xF2:
		return formatMP3, nil
	default:
		return formatUnknown, nil
	}
}

// decode picks a decoder by magic bytes. The returned closer releases f.
func decode(f *os.File) (beep.Streamer, beep.Format, func() error, error) {
	kind, err := detectFormat(f)
	if err != nil {
		return nil, beep.Format{}, nil, err
	}

	switch kind {
	case formatWAV:
		streamer, format, err := decodeWAV(f)
		if err != nil {
			return nil, beep.Format{}, nil, err
		}
		// Fully decoded, the file is no longer needed.
		if err := f.Close(); err != nil {
			return nil, beep.Format{}, nil, err
		}
		return streamer, format, nil, nil
	case formatMP3:
		streamer, format, err := mp3.Decode(f)
		if err != nil {
			return nil, beep.Format{}, nil, err
		}
		return streamer, format, closeWith(streamer, f), nil
	case formatFLAC:
		streamer, format, err := flac.Decode(f)
		if err != nil {
			return nil, beep.Format{}, nil, err
		}
		return streamer, format, closeWith(streamer, f), nil
	default:
		return nil, beep.Format{}, nil, errors.New("unsupported audio format")
	}
}

// closeWith closes the decoder and then f, which the decoder may already
// have closed.
func closeWith(streamer beep.StreamSeekCloser, f *os.File) func() error {
	return func() error {
		err := streamer.Close()
		if cerr := f.Close(); cerr != nil && !errors.Is(cerr, os.ErrClosed) {
			err = errors.Join(err, cerr)
		}
		return err
	}
}

// decodeWAV reads the whole PCM payload with go-audio.
func decodeWAV(r io.ReadSeeker) (*pcmStreamer, beep.Format, error) {
	d := wav.NewDecoder(r)
	if !d.IsValidFile() {
		return nil, beep.Format{}, errors.New("invalid WAV file")
	}
	if d.SampleRate == 0 || d.NumChans == 0 {
		return nil, beep.Format{}, fmt.Errorf("invalid WAV header: %d Hz, %d channels", d.SampleRate, d.NumChans)
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, beep.Format{}, fmt.Errorf("failed to decode WAV: %w", err)
	}

	format := beep.Format{
		SampleRate:  beep.SampleRate(d.SampleRate),
		NumChannels: int(d.NumChans),
		Precision:   int(d.BitDepth) / 8,
	}
	return newPCMStreamer(buf, int(d.BitDepth)), format, nil
}

// pcmStreamer serves a decoded integer PCM buffer as a beep.StreamSeeker.
type pcmStreamer struct {
	data     []int
	channels int
	offset   float64 // Subtracted before scaling; 8-bit WAV is unsigned.
	scale    float64
	pos      int
}

func newPCMStreamer(buf *goaudio.IntBuffer, bitDepth int) *pcmStreamer {
	channels := 1
	if buf.Format != nil && buf.Format.NumChannels > 0 {
		channels = buf.Format.NumChannels
	}
	bitDepth = max(bitDepth, 8)
	p := &pcmStreamer{
		data:     buf.Data,
		channels: channels,
		scale:    1 / float64(int64(1)<<(bitDepth-1)),
	}
	if bitDepth == 8 {
		p.offset = 128
	}
	return p
}

func (p *pcmStreamer) Stream(samples [][2]float64) (n int, ok bool) {
	frames := p.Len()
	if p.pos >= frames {
		return 0, false
	}
	for n < len(samples) && p.pos < frames {
		base := p.pos * p.channels
		left := (float64(p.data[base]) - p.offset) * p.scale
		right := left
		if p.channels > 1 {
			right = (float64(p.data[base+1]) - p.offset) * p.scale
		}
		samples[n] = [2]float64{left, right}
		n++
		p.pos++
	}
	return n, true
}

func (p *pcmStreamer) Err() error { return nil }

func (p *pcmStreamer) Len() int { return len(p.data) / p.channels }

func (p *pcmStreamer) Position() int { return p.pos }

func (p *pcmStreamer) Seek(pos int) error {
	if pos < 0 || pos > p.Len() {
		return fmt.Errorf("seek position %d out of range [0, %d]", pos, p.Len())
	}
	p.pos = pos
	return nil
}

var _ beep.StreamSeeker = (*pcmStreamer)(nil)
