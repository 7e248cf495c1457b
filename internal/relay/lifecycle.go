package relay

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/lexiqai/caption-gateway/internal/audio"
	"github.com/lexiqai/caption-gateway/internal/observability"
	"github.com/lexiqai/caption-gateway/internal/session"
)

// Lifecycle binds one client connection to its audio buffer and recognition
// session. The transport calls OnMessage from its read loop and OnClose once
// the connection is gone; neither blocks on the recognizer.
type Lifecycle struct {
	deps         session.Deps
	config       session.Config
	drainTimeout time.Duration
	logger       zerolog.Logger
	metrics      *observability.Metrics

	buffer  *audio.ChunkBuffer
	session *session.Session
	cancel  context.CancelFunc

	closeOnce sync.Once
}

// NewLifecycle prepares a lifecycle. deps.Metrics may be nil.
func NewLifecycle(deps session.Deps, config session.Config, drainTimeout time.Duration) *Lifecycle {
	metrics := deps.Metrics
	if metrics == nil {
		metrics = observability.NewConnectionMetrics("")
		deps.Metrics = metrics
	}

	return &Lifecycle{
		deps:         deps,
		config:       config,
		drainTimeout: drainTimeout,
		logger:       deps.Logger,
		metrics:      metrics,
	}
}

// Open creates the buffer and the session and starts the session goroutine
func (l *Lifecycle) Open(ctx context.Context) {
	ctx, l.cancel = context.WithCancel(ctx)
	l.buffer = audio.NewChunkBuffer()
	l.session = session.New(l.buffer, l.deps, l.config)

	go func() {
		err := l.session.Run(ctx)
		switch {
		case err == nil:
			l.logger.Info().Msg("Recognition session finished")
		case errors.Is(err, context.Canceled):
			l.logger.Warn().Msg("Recognition session cancelled")
		default:
			l.logger.Error().Err(err).Msg("Recognition session ended with error")
		}
	}()

	l.logger.Info().Msg("Recognition session started")
}

// OnMessage handles one client frame. An empty binary frame ends the audio
// stream; text frames carry no protocol and are ignored.
func (l *Lifecycle) OnMessage(messageType int, data []byte) {
	switch messageType {
	case websocket.BinaryMessage:
		if len(data) == 0 {
			l.logger.Info().Msg("Client ended the audio stream")
			l.buffer.PushEndMarker()
			l.buffer.Close()
			return
		}

		if err := l.buffer.Push(data); err != nil {
			if errors.Is(err, audio.ErrBufferClosed) {
				l.logger.Debug().Int("bytes", len(data)).Msg("Dropping audio received after end of stream")
				return
			}
			l.logger.Error().Err(err).Msg("Failed to buffer audio")
			return
		}
		l.metrics.RecordAudioBytes(len(data))

	case websocket.TextMessage:
		l.logger.Debug().Int("bytes", len(data)).Msg("Ignoring text frame")

	default:
		l.logger.Debug().Int("type", messageType).Msg("Ignoring frame")
	}
}

// OnClose stops audio intake and waits for the session to drain. After the
// drain timeout the session context is cancelled. Safe to call more than once.
func (l *Lifecycle) OnClose() {
	l.closeOnce.Do(func() {
		defer l.metrics.RecordConnectionEnd()

		l.buffer.Close()
		l.buffer.PushEndMarker()

		timer := time.NewTimer(l.drainTimeout)
		defer timer.Stop()

		select {
		case <-l.session.Done():
		case <-timer.C:
			l.logger.Warn().
				Dur("drain_timeout", l.drainTimeout).
				Str("state", l.session.State().String()).
				Msg("Session did not drain in time, cancelling")
			l.cancel()
			<-l.session.Done()
		}
		l.cancel()
	})
}

// Done is closed when the session has ended, on its own or after OnClose
func (l *Lifecycle) Done() <-chan struct{} {
	return l.session.Done()
}

// Session returns the recognition session
func (l *Lifecycle) Session() *session.Session {
	return l.session
}
