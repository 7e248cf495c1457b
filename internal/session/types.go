package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lexiqai/caption-gateway/internal/audio"
	"github.com/lexiqai/caption-gateway/internal/config"
	"github.com/lexiqai/caption-gateway/internal/resilience"
)

// State is the lifecycle state of a recognition session
type State int32

const (
	StateStarting State = iota
	StateStreaming
	StateErrorRetry
	StateDraining
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateStreaming:
		return "streaming"
	case StateErrorRetry:
		return "error_retry"
	case StateDraining:
		return "draining"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Sender delivers one outbound text message to the client
type Sender interface {
	Send(ctx context.Context, data []byte) error
}

// SendError is a delivery to the client that failed. It ends the session.
type SendError struct {
	Err error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("failed to deliver translation: %v", e.Err)
}

func (e *SendError) Unwrap() error {
	return e.Err
}

// TranslationResult is the message pushed to the client for every final
// transcript
type TranslationResult struct {
	Original   string `json:"original"`
	Translated string `json:"translated"`
}

// Marshal encodes the result as JSON. Non-ASCII text and HTML characters are
// written verbatim.
func (r TranslationResult) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(r); err != nil {
		return nil, fmt.Errorf("failed to encode translation result: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// Config holds the per-session settings
type Config struct {
	TargetLanguage string
	MaxFrameBytes  int
	Reconnect      resilience.ReconnectConfig
	Activity       audio.ActivityConfig
}

// ConfigFrom builds the session settings from the service config
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		TargetLanguage: cfg.TargetLanguage,
		MaxFrameBytes:  cfg.MaxFrameBytes,
		Reconnect: resilience.ReconnectConfig{
			MaxAttempts: cfg.RecognitionMaxRetries,
			Backoff:     time.Duration(cfg.RecognitionRetryBackoff) * time.Millisecond,
			Multiplier:  2.0,
			MaxBackoff:  time.Duration(cfg.RecognitionMaxBackoff) * time.Millisecond,
		},
		Activity: audio.ActivityConfig{
			EnergyThreshold: cfg.VADEnergyThreshold,
			SilenceFrames:   cfg.VADSilenceFrames,
		},
	}
}
