// SPDX-License-Identifier: MIT
package audio

import (
	"context"
	"fmt"
	"sync"

	applog "soundmeter/internal/log"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// State is the lifecycle state of a Session.
type State int

const (
	StateIdle State = iota
	StateCapturing
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCapturing:
		return "capturing"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Session owns at most one open Stream of a Source.
//
//	Idle --Start ok--> Capturing --Stop--> Idle
//	Idle --Start fails--> Error --Stop or Start--> Idle/Capturing
//
// All methods are safe for concurrent use.
type Session struct {
	source Source

	mu         sync.Mutex
	state      State
	err        error
	stream     Stream
	id         uuid.UUID
	opening    bool
	cancelOpen context.CancelFunc
	generation uint64
	logger     zerolog.Logger
}

// NewSession returns an idle session over source.
func NewSession(source Source) *Session {
	return &Session{
		source: source,
		logger: applog.For("session").With().Str("source", source.Name()).Logger(),
	}
}

// Start opens the source. It is valid from Idle and Error; a session that is
// capturing or still opening returns ErrAlreadyCapturing. On failure the
// session moves to Error and Err reports the cause.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateCapturing || s.opening {
		s.mu.Unlock()
		return ErrAlreadyCapturing
	}
	s.id = uuid.New()
	s.err = nil
	s.opening = true
	s.generation++
	gen := s.generation
	openCtx, cancel := context.WithCancel(ctx)
	s.cancelOpen = cancel
	logger := s.logger.With().Str("session_id", s.id.String()).Logger()
	s.mu.Unlock()

	logger.Debug().Msg("opening capture source")
	stream, err := s.source.Open(openCtx)

	s.mu.Lock()
	defer s.mu.Unlock()
	cancel()

	if gen != s.generation {
		// Stop ran while the source was opening.
		if stream != nil {
			_ = stream.Close()
		}
		logger.Debug().Msg("capture cancelled before it started")
		return context.Canceled
	}
	s.opening = false
	s.cancelOpen = nil

	if err != nil {
		if stream != nil {
			_ = stream.Close()
		}
		s.state = StateError
		s.err = err
		logger.Error().Err(err).Msg("capture failed to start")
		return err
	}

	s.stream = stream
	s.state = StateCapturing
	logger.Info().Float64("sample_rate", stream.SampleRate()).Msg("capture started")
	return nil
}

// Stop releases the stream and returns to Idle. It is valid in every state,
// including while Start is still waiting on the source, and repeated calls
// are no-ops. The returned error is the stream's close error, if any; the
// session is Idle either way.
func (s *Session) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.opening {
		s.generation++
		s.opening = false
		if s.cancelOpen != nil {
			s.cancelOpen()
			s.cancelOpen = nil
		}
	}

	var err error
	if s.stream != nil {
		err = s.stream.Close()
		s.stream = nil
		s.logger.Info().Str("session_id", s.id.String()).Msg("capture stopped")
	}
	s.state = StateIdle
	s.err = nil
	if err != nil {
		s.logger.Warn().Err(err).Str("session_id", s.id.String()).Msg("error closing capture stream")
	}
	return err
}

// Read fills dst with the newest samples of the open stream.
func (s *Session) Read(dst []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateCapturing {
		return ErrNotCapturing
	}
	return s.stream.Read(dst)
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the cause of the Error state, nil otherwise.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// ID returns the identifier of the current or last capture.
func (s *Session) ID() uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// SampleRate returns the rate of the open stream, 0 when not capturing.
func (s *Session) SampleRate() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream == nil {
		return 0
	}
	return s.stream.SampleRate()
}

// SourceName returns the name of the wrapped source.
func (s *Session) SourceName() string {
	return s.source.Name()
}
