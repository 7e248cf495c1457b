package session

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/lexiqai/caption-gateway/internal/audio"
	"github.com/lexiqai/caption-gateway/internal/observability"
	"github.com/lexiqai/caption-gateway/internal/resilience"
	"github.com/lexiqai/caption-gateway/internal/stt"
	"github.com/lexiqai/caption-gateway/internal/translate"
)

// ErrRetriesExhausted is reported when the recognition stream kept failing
var ErrRetriesExhausted = errors.New("recognition stream retries exhausted")

// Deps are the collaborators of a session
type Deps struct {
	Recognizer stt.Recognizer
	Translator translate.Translator
	Sender     Sender
	Logger     zerolog.Logger
	Metrics    *observability.Metrics // optional
}

// Session runs the recognition state machine for one client connection. It
// reads audio from the connection's ChunkBuffer, streams it to the
// recognizer, and delivers a translation for every final transcript.
type Session struct {
	buffer    *audio.ChunkBuffer
	coalescer *audio.Coalescer
	activity  *audio.ActivityDetector
	deps      Deps
	config    Config
	logger    zerolog.Logger
	metrics   *observability.Metrics

	state atomic.Int32

	mu      sync.Mutex
	latest  stt.TranscriptEvent
	pending []byte // popped frame the last stream could not send

	done chan struct{}
	err  error
}

// New creates a session reading from buffer. Run starts it.
func New(buffer *audio.ChunkBuffer, deps Deps, config Config) *Session {
	metrics := deps.Metrics
	if metrics == nil {
		metrics = observability.NewConnectionMetrics("")
	}

	return &Session{
		buffer:    buffer,
		coalescer: audio.NewCoalescer(buffer, config.MaxFrameBytes),
		activity:  audio.NewActivityDetector(config.Activity),
		deps:      deps,
		config:    config,
		logger:    deps.Logger.With().Str("component", "session").Logger(),
		metrics:   metrics,
		done:      make(chan struct{}),
	}
}

// State returns the current state
func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) setState(state State) {
	if State(s.state.Swap(int32(state))) != state {
		s.logger.Debug().Str("state", state.String()).Msg("Session state changed")
	}
}

// Latest returns the most recent transcript event, interim or final
func (s *Session) Latest() stt.TranscriptEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest
}

// Done is closed once the session reached StateClosed
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Err reports why the session closed. It is nil for a session that ended
// with the client's audio and only valid after Done is closed.
func (s *Session) Err() error {
	<-s.done
	return s.err
}

// Run executes the state machine until the audio ends, the session gives up
// or ctx is cancelled. It must be called once.
func (s *Session) Run(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("session panic: %v", r)
			s.metrics.RecordError("panic", "session")
			s.logger.Error().
				Interface("panic", r).
				Str("stack", string(debug.Stack())).
				Msg("Recovered from panic in session")
		}
		s.err = err
		s.setState(StateClosed)
		close(s.done)
	}()

	reconnector := resilience.NewReconnector(&s.config.Reconnect)

	for {
		s.setState(StateStarting)
		result := s.stream(ctx)

		if ctx.Err() != nil {
			s.setState(StateDraining)
			return ctx.Err()
		}

		var sendErr *SendError
		if errors.As(result.err, &sendErr) {
			s.setState(StateDraining)
			s.logger.Warn().Err(result.err).Msg("Client delivery failed, draining session")
			return result.err
		}

		if result.events > 0 || stt.IsRollover(result.err) {
			reconnector.Reset()
		}

		if result.err == nil {
			s.metrics.RecordRecognitionStream("completed")
			if s.buffer.Ended() {
				s.setState(StateDraining)
				return nil
			}
			// The engine ended the call on its own, typically at its stream
			// duration limit. A call that carried audio reopens right away.
			if result.frames > 0 || result.events > 0 {
				s.logger.Debug().Msg("Recognition stream ended, reopening")
				continue
			}
		} else if stt.IsRollover(result.err) && result.frames > 0 && !s.buffer.Closed() {
			// The engine ended the call at its duration or audio timeout limit.
			s.metrics.RecordRecognitionStream("rollover")
			s.logger.Debug().Err(result.err).Msg("Recognition stream reached an engine limit, reopening")
			continue
		} else {
			s.setState(StateErrorRetry)
			s.metrics.RecordRecognitionStream("failed")
			s.metrics.RecordError("engine_stream", "stt")
			s.logger.Warn().
				Err(result.err).
				Int("attempt", reconnector.Attempts()+1).
				Msg("Recognition stream failed")

			if s.buffer.Closed() || s.buffer.Ended() {
				s.setState(StateDraining)
				return result.err
			}
			if !stt.IsRetryable(result.err) {
				s.setState(StateDraining)
				return result.err
			}
		}

		if err := reconnector.Wait(ctx); err != nil {
			s.setState(StateDraining)
			if errors.Is(err, resilience.ErrReconnectExhausted) {
				s.logger.Error().Int("attempts", reconnector.Attempts()).Msg("Giving up on recognition stream")
				if result.err == nil {
					return ErrRetriesExhausted
				}
				return fmt.Errorf("%w: %w", ErrRetriesExhausted, result.err)
			}
			return err
		}
		s.metrics.RecordRecognitionRetry()
	}
}

type streamResult struct {
	events int
	frames int64
	err    error
}

// stream runs one recognizer call to completion
func (s *Session) stream(ctx context.Context) streamResult {
	var result streamResult
	var frames atomic.Int64

	source := func(ctx context.Context) iter.Seq[[]byte] {
		return func(yield func([]byte) bool) {
			if frame := s.takePending(); frame != nil {
				if !yield(frame) {
					s.setPending(frame)
					return
				}
				frames.Add(1)
			}
			for frame := range s.coalescer.Frames(ctx) {
				s.observe(frame)
				if !yield(frame) {
					s.setPending(frame)
					return
				}
				frames.Add(1)
			}
		}
	}

	s.metrics.RecordRecognitionStream("opened")
	s.setState(StateStreaming)

	for ev, err := range s.deps.Recognizer.Stream(ctx, source) {
		if err != nil {
			result.err = err
			break
		}
		result.events++
		if err := s.handle(ctx, ev); err != nil {
			result.err = err
			break
		}
	}

	result.frames = frames.Load()
	return result
}

// takePending returns the frame a failed stream left unsent, if any
func (s *Session) takePending() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	frame := s.pending
	s.pending = nil
	return frame
}

func (s *Session) setPending(frame []byte) {
	s.mu.Lock()
	s.pending = frame
	s.mu.Unlock()
}

// observe feeds the level meter. It runs on the recognizer's send path.
func (s *Session) observe(frame []byte) {
	a := s.activity.Observe(frame)
	s.metrics.RecordAudioFrame(a.Level)

	switch {
	case a.Started:
		s.logger.Debug().Float64("level", a.Level).Msg("Speech started")
	case a.Ended:
		s.logger.Debug().Msg("Speech ended")
	}
}

// handle records ev and, for a final transcript, translates and delivers it.
// Only delivery failures are returned.
func (s *Session) handle(ctx context.Context, ev stt.TranscriptEvent) error {
	s.mu.Lock()
	s.latest = ev
	s.mu.Unlock()

	s.metrics.RecordTranscript(ev.IsFinal)

	if !ev.IsFinal || strings.TrimSpace(ev.Text) == "" {
		return nil
	}

	s.logger.Info().
		Str("transcript", ev.Text).
		Float64("confidence", ev.Confidence).
		Msg("Final transcript")

	s.metrics.RecordTranslationStart()
	translated, err := s.deps.Translator.Translate(ctx, ev.Text, s.config.TargetLanguage)
	s.metrics.RecordTranslationEnd(err == nil)
	if err != nil {
		s.metrics.RecordError("translation", "translate")
		s.logger.Warn().Err(err).Str("transcript", ev.Text).Msg("Translation failed, dropping transcript")
		return nil
	}

	payload, err := TranslationResult{Original: ev.Text, Translated: translated}.Marshal()
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode translation result")
		return nil
	}

	if err := s.deps.Sender.Send(ctx, payload); err != nil {
		s.metrics.RecordDelivery(false)
		return &SendError{Err: err}
	}
	s.metrics.RecordDelivery(true)

	return nil
}
