package translate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lexiqai/caption-gateway/internal/config"
	"github.com/lexiqai/caption-gateway/internal/observability"
	"github.com/lexiqai/caption-gateway/internal/resilience"
)

// ErrEmptyResult is returned when the engine answered without a translation
var ErrEmptyResult = errors.New("translation returned no text")

// Translator translates one finalized transcript
type Translator interface {
	Translate(ctx context.Context, text, targetLanguage string) (string, error)
}

// Error is a failed translation. The transcript it belongs to is dropped.
type Error struct {
	Provider string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s translation failed: %v", e.Provider, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates the translator selected by TRANSLATE_PROVIDER, wrapped with
// retries and a circuit breaker
func New(ctx context.Context, cfg *config.Config) (Translator, error) {
	var (
		next Translator
		err  error
	)

	switch cfg.TranslateProvider {
	case config.ProviderGoogle:
		next, err = NewGoogleTranslator(ctx, GoogleOptions{
			ProjectID:       cfg.GoogleProjectID,
			Location:        cfg.TranslateLocation,
			SourceLanguage:  cfg.TranslateSourceLanguage,
			CredentialsFile: cfg.GoogleCredentialsFile,
		})
	case config.ProviderOpenAI:
		next, err = NewOpenAITranslator(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel, cfg.TranslateSourceLanguage)
	default:
		err = fmt.Errorf("unsupported translation provider %q", cfg.TranslateProvider)
	}
	if err != nil {
		return nil, err
	}

	breaker := resilience.NewCircuitBreaker(
		"translate_"+cfg.TranslateProvider,
		cfg.CircuitBreakerMaxFailures,
		time.Duration(cfg.CircuitBreakerResetTimeout)*time.Second,
	)
	breaker.OnStateChange = func(name string, state resilience.CircuitState) {
		observability.UpdateCircuitBreakerState(name, int(state))
		logger := observability.WithComponent("translate")
		logger.Warn().
			Str("breaker", name).
			Str("state", state.String()).
			Msg("Translation circuit breaker changed state")
	}

	retry := resilience.DefaultRetryConfig()
	retry.MaxAttempts = cfg.RetryMaxAttempts
	retry.InitialBackoff = time.Duration(cfg.RetryInitialBackoff) * time.Millisecond

	return NewResilient(next, breaker, retry, cfg.TranslateCallTimeout()), nil
}
