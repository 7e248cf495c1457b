package stt

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"sync"
	"time"

	websocketv1api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket"
	msginterfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	listenClient "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
	"github.com/rs/zerolog"

	"github.com/lexiqai/caption-gateway/internal/observability"
)

// deepgramFinishGrace is how long a stream waits for trailing results after
// its audio ended before finishing the connection.
const deepgramFinishGrace = 2 * time.Second

// deepgramConn is the part of listenClient.WSCallback used by a stream
type deepgramConn interface {
	Write(p []byte) (int, error)
	Finish()
}

type deepgramDialer func(ctx context.Context, callback msginterfaces.LiveMessageCallback) (deepgramConn, error)

var _ Recognizer = (*DeepgramRecognizer)(nil)

// DeepgramRecognizer streams audio to Deepgram's live transcription API
type DeepgramRecognizer struct {
	dial        deepgramDialer
	finishGrace time.Duration
	logger      zerolog.Logger
}

// NewDeepgramRecognizer creates a recognizer that opens one Deepgram live
// connection per stream
func NewDeepgramRecognizer(apiKey, model string, config StreamConfig) (*DeepgramRecognizer, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram API key must be specified")
	}

	tOptions := &interfaces.LiveTranscriptionOptions{
		Model:          model,
		Language:       config.LanguageCode,
		Punctuate:      config.Punctuation,
		InterimResults: config.InterimResults,
		Encoding:       deepgramEncoding(config.Encoding),
		Channels:       1,
		SampleRate:     config.SampleRateHertz,
	}

	dial := func(ctx context.Context, callback msginterfaces.LiveMessageCallback) (deepgramConn, error) {
		client, err := listenClient.NewWSUsingCallback(ctx, apiKey, &interfaces.ClientOptions{}, tOptions, callback)
		if err != nil {
			return nil, fmt.Errorf("failed to create Deepgram client: %w", err)
		}
		if !client.Connect() {
			return nil, errors.New("failed to connect to Deepgram")
		}
		return client, nil
	}

	return &DeepgramRecognizer{
		dial:        dial,
		finishGrace: deepgramFinishGrace,
		logger:      observability.WithComponent("stt").With().Str("provider", "deepgram").Logger(),
	}, nil
}

func deepgramEncoding(encoding string) string {
	switch strings.ToUpper(encoding) {
	case "LINEAR16":
		return "linear16"
	case "MULAW":
		return "mulaw"
	default:
		return strings.ToLower(encoding)
	}
}

// Stream opens one live connection. Results arrive on SDK callbacks and are
// handed to the sequence through a channel.
func (d *DeepgramRecognizer) Stream(ctx context.Context, source AudioSource) iter.Seq2[TranscriptEvent, error] {
	return func(yield func(TranscriptEvent, error) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		handler := newDeepgramHandler(ctx.Done(), d.logger)
		conn, err := d.dial(ctx, handler)
		if err != nil {
			yield(TranscriptEvent{}, &StreamError{Provider: "deepgram", Op: "open", Err: err, Retryable: true})
			return
		}

		inputDone := make(chan struct{})
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer close(inputDone)
			for frame := range source(ctx) {
				if _, err := conn.Write(frame); err != nil {
					handler.fail(&StreamError{Provider: "deepgram", Op: "send", Err: err, Retryable: true})
					return
				}
			}
		}()
		defer func() {
			cancel()
			wg.Wait()
			conn.Finish()
		}()

		var grace <-chan time.Time
		done := inputDone
		for {
			select {
			case ev := <-handler.events:
				if !yield(ev, nil) {
					return
				}
			case err := <-handler.errs:
				yield(TranscriptEvent{}, err)
				return
			case <-handler.closed:
				return
			case <-done:
				done = nil
				grace = time.After(d.finishGrace)
			case <-grace:
				return
			case <-ctx.Done():
				return
			}
		}
	}
}

// Close is a no-op; connections are owned by their streams
func (d *DeepgramRecognizer) Close() error {
	return nil
}

// deepgramHandler implements the LiveMessageCallback interface.
// It embeds the default handler and overrides only the methods we need.
type deepgramHandler struct {
	*websocketv1api.DefaultCallbackHandler

	events    chan TranscriptEvent
	errs      chan error
	closed    chan struct{}
	closeOnce sync.Once
	done      <-chan struct{}
	logger    zerolog.Logger
}

func newDeepgramHandler(done <-chan struct{}, logger zerolog.Logger) *deepgramHandler {
	return &deepgramHandler{
		DefaultCallbackHandler: websocketv1api.NewDefaultCallbackHandler(),
		events:                 make(chan TranscriptEvent),
		errs:                   make(chan error, 1),
		closed:                 make(chan struct{}),
		done:                   done,
		logger:                 logger,
	}
}

// Message forwards transcription results
func (h *deepgramHandler) Message(msg *msginterfaces.MessageResponse) error {
	if msg == nil || len(msg.Channel.Alternatives) == 0 {
		return nil
	}

	alt := msg.Channel.Alternatives[0]
	if alt.Transcript == "" {
		return nil
	}

	h.emit(TranscriptEvent{
		Text:       alt.Transcript,
		IsFinal:    msg.IsFinal,
		Confidence: alt.Confidence,
	})
	return nil
}

// Error ends the stream with a retryable error
func (h *deepgramHandler) Error(errorResponse *msginterfaces.ErrorResponse) error {
	h.logger.Warn().Msgf("Deepgram error: %+v", errorResponse)
	h.fail(&StreamError{
		Provider:  "deepgram",
		Op:        "recv",
		Err:       fmt.Errorf("deepgram error: %+v", errorResponse),
		Retryable: true,
	})
	return nil
}

// Close marks the end of the connection
func (h *deepgramHandler) Close(*msginterfaces.CloseResponse) error {
	h.closeOnce.Do(func() { close(h.closed) })
	return nil
}

// emit blocks until the stream takes the event, so results keep their order
func (h *deepgramHandler) emit(ev TranscriptEvent) {
	select {
	case h.events <- ev:
	case <-h.done:
	}
}

// fail records the first error of the stream
func (h *deepgramHandler) fail(err error) {
	select {
	case h.errs <- err:
	default:
	}
}
