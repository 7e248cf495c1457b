package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Recognition and translation providers
const (
	ProviderGoogle   = "google"
	ProviderDeepgram = "deepgram"
	ProviderOpenAI   = "openai"
)

// Config holds all configuration for the caption gateway
type Config struct {
	// Server configuration
	Port           string   `envconfig:"PORT" default:"8080"`
	AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS" default:"*"` // Comma separated; "*" accepts any origin

	// Google Cloud configuration. Credentials are handed to the clients that
	// need them instead of being exported process wide; an empty file falls
	// back to Application Default Credentials.
	GoogleProjectID       string `envconfig:"GOOGLE_PROJECT_ID"`
	GoogleCredentialsFile string `envconfig:"GOOGLE_CREDENTIALS_FILE" default:""`

	// Speech recognition configuration
	STTProvider          string `envconfig:"STT_PROVIDER" default:"google"`      // google, deepgram
	SpeechEncoding       string `envconfig:"SPEECH_ENCODING" default:"LINEAR16"` // 16-bit signed little-endian PCM
	SpeechSampleRate     int    `envconfig:"SPEECH_SAMPLE_RATE" default:"16000"`
	SpeechLanguage       string `envconfig:"SPEECH_LANGUAGE" default:"en-US"`
	SpeechPunctuation    bool   `envconfig:"SPEECH_PUNCTUATION" default:"true"`
	SpeechInterimResults bool   `envconfig:"SPEECH_INTERIM_RESULTS" default:"false"`
	SpeechModel          string `envconfig:"SPEECH_MODEL" default:""` // Provider specific, empty uses the provider default

	// Deepgram STT API configuration
	DeepgramAPIKey string `envconfig:"DEEPGRAM_API_KEY"`
	DeepgramModel  string `envconfig:"DEEPGRAM_MODEL" default:"nova-2"`

	// Translation configuration
	TranslateProvider       string `envconfig:"TRANSLATE_PROVIDER" default:"google"` // google, openai
	TargetLanguage          string `envconfig:"TARGET_LANGUAGE" default:"ja"`
	TranslateSourceLanguage string `envconfig:"TRANSLATE_SOURCE_LANGUAGE" default:""` // Empty lets the engine detect it
	TranslateLocation       string `envconfig:"TRANSLATE_LOCATION" default:"global"`
	TranslateTimeout        int    `envconfig:"TRANSLATE_TIMEOUT" default:"10"` // seconds

	// OpenAI translation configuration
	OpenAIAPIKey  string `envconfig:"OPENAI_API_KEY"`
	OpenAIModel   string `envconfig:"OPENAI_MODEL" default:"gpt-4o-mini"`
	OpenAIBaseURL string `envconfig:"OPENAI_BASE_URL" default:""` // Empty uses the public API

	// Question suggestion configuration, served when OPENAI_API_KEY is set
	SuggestModel   string `envconfig:"SUGGEST_MODEL" default:"gpt-4o-mini"`
	SuggestTimeout int    `envconfig:"SUGGEST_TIMEOUT" default:"45"` // seconds per request

	// Audio pipeline configuration
	MaxFrameBytes      int     `envconfig:"MAX_FRAME_BYTES" default:"0"`          // Upper bound for a coalesced frame, 0 is unlimited
	VADEnergyThreshold float64 `envconfig:"VAD_ENERGY_THRESHOLD" default:"500.0"` // RMS energy threshold for speech activity
	VADSilenceFrames   int     `envconfig:"VAD_SILENCE_FRAMES" default:"10"`      // Frames of silence to mark speech end

	// Session lifecycle configuration
	SessionDrainTimeout int `envconfig:"SESSION_DRAIN_TIMEOUT" default:"5"` // seconds to wait for a session after close
	WriteTimeout        int `envconfig:"WRITE_TIMEOUT" default:"10"`        // seconds per outbound websocket message

	// Resilience configuration
	CircuitBreakerMaxFailures  int `envconfig:"CIRCUIT_BREAKER_MAX_FAILURES" default:"5"`   // Failures before opening circuit
	CircuitBreakerResetTimeout int `envconfig:"CIRCUIT_BREAKER_RESET_TIMEOUT" default:"30"` // Seconds before attempting recovery
	RetryMaxAttempts           int `envconfig:"RETRY_MAX_ATTEMPTS" default:"2"`             // Translation attempts per transcript
	RetryInitialBackoff        int `envconfig:"RETRY_INITIAL_BACKOFF" default:"100"`        // Initial translation backoff in milliseconds
	RecognitionMaxRetries      int `envconfig:"RECOGNITION_MAX_RETRIES" default:"5"`        // Consecutive stream failures before giving up
	RecognitionRetryBackoff    int `envconfig:"RECOGNITION_RETRY_BACKOFF" default:"500"`    // Initial reopen backoff in milliseconds
	RecognitionMaxBackoff      int `envconfig:"RECOGNITION_MAX_BACKOFF" default:"10000"`    // Reopen backoff cap in milliseconds

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`       // Log level: debug, info, warn, error
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`     // Pretty print logs (for development)
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"` // Enable Prometheus metrics
}

// Load reads configuration from environment variables
// It first attempts to load from .env file if it exists, then from environment
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load .env file (useful for containerized deployments)
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks provider selection and the credentials each provider needs
func (c *Config) Validate() error {
	c.STTProvider = strings.ToLower(c.STTProvider)
	c.TranslateProvider = strings.ToLower(c.TranslateProvider)

	switch c.STTProvider {
	case ProviderGoogle:
	case ProviderDeepgram:
		if c.DeepgramAPIKey == "" {
			return fmt.Errorf("DEEPGRAM_API_KEY is required when STT_PROVIDER=deepgram")
		}
	default:
		return fmt.Errorf("unsupported STT_PROVIDER %q", c.STTProvider)
	}

	switch c.TranslateProvider {
	case ProviderGoogle:
		if c.GoogleProjectID == "" {
			return fmt.Errorf("GOOGLE_PROJECT_ID is required when TRANSLATE_PROVIDER=google")
		}
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required when TRANSLATE_PROVIDER=openai")
		}
	default:
		return fmt.Errorf("unsupported TRANSLATE_PROVIDER %q", c.TranslateProvider)
	}

	if c.SpeechSampleRate <= 0 {
		return fmt.Errorf("SPEECH_SAMPLE_RATE must be positive, got %d", c.SpeechSampleRate)
	}
	if c.TargetLanguage == "" {
		return fmt.Errorf("TARGET_LANGUAGE is required")
	}
	if c.RecognitionMaxRetries < 0 {
		return fmt.Errorf("RECOGNITION_MAX_RETRIES must not be negative, got %d", c.RecognitionMaxRetries)
	}

	return nil
}

// DrainTimeout is how long a closing connection waits for its session
func (c *Config) DrainTimeout() time.Duration {
	return time.Duration(c.SessionDrainTimeout) * time.Second
}

// SuggestCallTimeout bounds a single question suggestion request
func (c *Config) SuggestCallTimeout() time.Duration {
	return time.Duration(c.SuggestTimeout) * time.Second
}

// TranslateCallTimeout bounds a single translation request
func (c *Config) TranslateCallTimeout() time.Duration {
	return time.Duration(c.TranslateTimeout) * time.Second
}
