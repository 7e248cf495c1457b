package config

import (
	"strings"
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("GOOGLE_PROJECT_ID", "test-project")
}

func TestLoad(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.GoogleProjectID != "test-project" {
		t.Errorf("Expected GoogleProjectID 'test-project', got '%s'", cfg.GoogleProjectID)
	}
}

func TestLoad_MissingProject(t *testing.T) {
	t.Setenv("GOOGLE_PROJECT_ID", "")

	_, err := Load()
	if err == nil {
		t.Fatal("Expected error when GOOGLE_PROJECT_ID is missing")
	}
	if !strings.Contains(err.Error(), "GOOGLE_PROJECT_ID") {
		t.Errorf("Expected error to name GOOGLE_PROJECT_ID, got %v", err)
	}
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("Expected default Port '8080', got '%s'", cfg.Port)
	}
	if cfg.STTProvider != ProviderGoogle {
		t.Errorf("Expected default STTProvider 'google', got '%s'", cfg.STTProvider)
	}
	if cfg.SpeechEncoding != "LINEAR16" {
		t.Errorf("Expected default SpeechEncoding 'LINEAR16', got '%s'", cfg.SpeechEncoding)
	}
	if cfg.SpeechSampleRate != 16000 {
		t.Errorf("Expected default SpeechSampleRate 16000, got %d", cfg.SpeechSampleRate)
	}
	if cfg.SpeechLanguage != "en-US" {
		t.Errorf("Expected default SpeechLanguage 'en-US', got '%s'", cfg.SpeechLanguage)
	}
	if !cfg.SpeechPunctuation {
		t.Error("Expected punctuation to be enabled by default")
	}
	if cfg.SpeechInterimResults {
		t.Error("Expected interim results to be disabled by default")
	}
	if cfg.TranslateProvider != ProviderGoogle {
		t.Errorf("Expected default TranslateProvider 'google', got '%s'", cfg.TranslateProvider)
	}
	if cfg.TargetLanguage != "ja" {
		t.Errorf("Expected default TargetLanguage 'ja', got '%s'", cfg.TargetLanguage)
	}
	if cfg.RecognitionMaxRetries != 5 {
		t.Errorf("Expected default RecognitionMaxRetries 5, got %d", cfg.RecognitionMaxRetries)
	}
	if len(cfg.AllowedOrigins) != 1 || cfg.AllowedOrigins[0] != "*" {
		t.Errorf("Expected default AllowedOrigins [*], got %v", cfg.AllowedOrigins)
	}
	if cfg.DrainTimeout() != 5*time.Second {
		t.Errorf("Expected default drain timeout 5s, got %v", cfg.DrainTimeout())
	}
	if cfg.TranslateCallTimeout() != 10*time.Second {
		t.Errorf("Expected default translate timeout 10s, got %v", cfg.TranslateCallTimeout())
	}
	if cfg.LogLevel != "info" {
		t.Errorf("Expected default LogLevel 'info', got '%s'", cfg.LogLevel)
	}
	if !cfg.MetricsEnabled {
		t.Error("Expected MetricsEnabled to default to true")
	}
}

func TestLoad_CustomValues(t *testing.T) {
	setRequired(t)
	t.Setenv("PORT", "9090")
	t.Setenv("SPEECH_LANGUAGE", "ja-JP")
	t.Setenv("TARGET_LANGUAGE", "en")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example,https://b.example")
	t.Setenv("STT_PROVIDER", "Deepgram")
	t.Setenv("DEEPGRAM_API_KEY", "dg-key")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Port != "9090" {
		t.Errorf("Expected Port '9090', got '%s'", cfg.Port)
	}
	if cfg.SpeechLanguage != "ja-JP" {
		t.Errorf("Expected SpeechLanguage 'ja-JP', got '%s'", cfg.SpeechLanguage)
	}
	if cfg.TargetLanguage != "en" {
		t.Errorf("Expected TargetLanguage 'en', got '%s'", cfg.TargetLanguage)
	}
	if len(cfg.AllowedOrigins) != 2 {
		t.Errorf("Expected 2 allowed origins, got %v", cfg.AllowedOrigins)
	}
	if cfg.STTProvider != ProviderDeepgram {
		t.Errorf("Expected provider to be normalised to 'deepgram', got '%s'", cfg.STTProvider)
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			STTProvider:       ProviderGoogle,
			TranslateProvider: ProviderGoogle,
			GoogleProjectID:   "p",
			SpeechSampleRate:  16000,
			TargetLanguage:    "ja",
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"deepgram without key", func(c *Config) { c.STTProvider = ProviderDeepgram }, "DEEPGRAM_API_KEY"},
		{"unknown stt", func(c *Config) { c.STTProvider = "vosk" }, "STT_PROVIDER"},
		{"openai without key", func(c *Config) { c.TranslateProvider = ProviderOpenAI }, "OPENAI_API_KEY"},
		{"openai with key", func(c *Config) {
			c.TranslateProvider = ProviderOpenAI
			c.OpenAIAPIKey = "k"
			c.GoogleProjectID = ""
		}, ""},
		{"unknown translator", func(c *Config) { c.TranslateProvider = "deepl" }, "TRANSLATE_PROVIDER"},
		{"zero sample rate", func(c *Config) { c.SpeechSampleRate = 0 }, "SPEECH_SAMPLE_RATE"},
		{"no target", func(c *Config) { c.TargetLanguage = "" }, "TARGET_LANGUAGE"},
		{"negative retries", func(c *Config) { c.RecognitionMaxRetries = -1 }, "RECOGNITION_MAX_RETRIES"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Expected no error, got %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error mentioning %s, got %v", tt.wantErr, err)
			}
		})
	}
}
