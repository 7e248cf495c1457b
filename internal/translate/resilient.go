package translate

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/lexiqai/caption-gateway/internal/resilience"
)

var _ Translator = (*Resilient)(nil)

// Resilient retries transient failures of the wrapped translator and stops
// calling it while its circuit breaker is open
type Resilient struct {
	next    Translator
	breaker *resilience.CircuitBreaker
	retry   *resilience.RetryConfig
	timeout time.Duration // per attempt, 0 means no extra bound
}

// NewResilient wraps next. A nil breaker or retry config disables that part.
func NewResilient(next Translator, breaker *resilience.CircuitBreaker, retry *resilience.RetryConfig, timeout time.Duration) *Resilient {
	if retry == nil {
		retry = &resilience.RetryConfig{MaxAttempts: 1}
	}
	return &Resilient{
		next:    next,
		breaker: breaker,
		retry:   retry,
		timeout: timeout,
	}
}

// Translate runs the wrapped translator under the breaker. Retries happen
// inside a single breaker call, so one transcript counts as one failure.
func (r *Resilient) Translate(ctx context.Context, text, targetLanguage string) (string, error) {
	var translated string

	attempt := func(ctx context.Context) error {
		if r.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, r.timeout)
			defer cancel()
		}

		out, err := r.next.Translate(ctx, text, targetLanguage)
		if err != nil {
			return err
		}
		translated = out
		return nil
	}

	call := func() error {
		return resilience.Retry(ctx, attempt, r.retry, isRetryable)
	}

	var err error
	if r.breaker != nil {
		err = r.breaker.Call(call)
	} else {
		err = call()
	}
	if err != nil {
		var te *Error
		if !errors.As(err, &te) {
			err = &Error{Provider: "translate", Err: err}
		}
		return "", err
	}

	return translated, nil
}

// isRetryable retries rate limiting, server errors and transport failures.
// Rejected requests and empty answers would fail the same way again.
func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrEmptyResult) {
		return false
	}
	if code, ok := googleStatusCode(err); ok {
		return retryableStatus(code)
	}
	if code, ok := openAIStatusCode(err); ok {
		return retryableStatus(code)
	}
	return resilience.IsRetryableNetworkError(err)
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

// CircuitOpen reports whether calls are currently being rejected
func (r *Resilient) CircuitOpen() bool {
	return r.breaker != nil && r.breaker.GetState() == resilience.StateOpen
}

// CircuitStats returns the breaker's request and failure totals and the
// failure rate in percent
func (r *Resilient) CircuitStats() (requests, failures int64, failureRate float64) {
	if r.breaker == nil {
		return 0, 0, 0
	}
	_, requests, failures, failureRate = r.breaker.GetStats()
	return requests, failures, failureRate
}
