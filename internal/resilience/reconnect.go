package resilience

import (
	"context"
	"errors"
	"time"
)

// ErrReconnectExhausted is returned by Reconnector.Wait once the attempt
// budget is spent
var ErrReconnectExhausted = errors.New("reconnect attempts exhausted")

// ReconnectConfig holds configuration for reconnection logic
type ReconnectConfig struct {
	MaxAttempts int           // Maximum number of consecutive reconnection attempts
	Backoff     time.Duration // Backoff before the first reconnection
	Multiplier  float64       // Backoff multiplier for exponential backoff
	MaxBackoff  time.Duration // Maximum backoff duration
}

// DefaultReconnectConfig returns a default reconnection configuration
func DefaultReconnectConfig() *ReconnectConfig {
	return &ReconnectConfig{
		MaxAttempts: 5,
		Backoff:     500 * time.Millisecond,
		Multiplier:  2.0,
		MaxBackoff:  10 * time.Second,
	}
}

// Reconnector paces reopening of a long-lived stream. Each Wait consumes one
// attempt and sleeps an exponentially growing backoff; Reset restores the
// budget after the stream made progress. Not safe for concurrent use.
type Reconnector struct {
	config   ReconnectConfig
	attempts int
}

// NewReconnector creates a reconnector, using the defaults when config is nil
func NewReconnector(config *ReconnectConfig) *Reconnector {
	if config == nil {
		config = DefaultReconnectConfig()
	}
	return &Reconnector{config: *config}
}

// Wait sleeps before the next reconnection attempt. It returns
// ErrReconnectExhausted when no attempts remain and ctx.Err() when ctx ends
// during the backoff.
func (r *Reconnector) Wait(ctx context.Context) error {
	if r.attempts >= r.config.MaxAttempts {
		return ErrReconnectExhausted
	}

	backoff := CalculateBackoff(r.attempts, r.config.Backoff, r.config.MaxBackoff, r.config.Multiplier)
	r.attempts++

	timer := time.NewTimer(backoff)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Attempts returns the number of attempts consumed since the last Reset
func (r *Reconnector) Attempts() int {
	return r.attempts
}

// Reset restores the full attempt budget
func (r *Reconnector) Reset() {
	r.attempts = 0
}
