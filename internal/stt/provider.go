package stt

import (
	"context"
	"fmt"

	"github.com/lexiqai/caption-gateway/internal/config"
)

// StreamConfigFrom builds the recognition settings from the service config
func StreamConfigFrom(cfg *config.Config) StreamConfig {
	return StreamConfig{
		Encoding:        cfg.SpeechEncoding,
		SampleRateHertz: cfg.SpeechSampleRate,
		LanguageCode:    cfg.SpeechLanguage,
		Punctuation:     cfg.SpeechPunctuation,
		InterimResults:  cfg.SpeechInterimResults,
		Model:           cfg.SpeechModel,
	}
}

// NewRecognizer creates the recognizer selected by STT_PROVIDER
func NewRecognizer(ctx context.Context, cfg *config.Config) (Recognizer, error) {
	streamConfig := StreamConfigFrom(cfg)

	switch cfg.STTProvider {
	case config.ProviderGoogle:
		return DialGoogle(ctx, cfg.GoogleCredentialsFile, streamConfig)
	case config.ProviderDeepgram:
		return NewDeepgramRecognizer(cfg.DeepgramAPIKey, cfg.DeepgramModel, streamConfig)
	default:
		return nil, fmt.Errorf("unsupported STT provider %q", cfg.STTProvider)
	}
}
