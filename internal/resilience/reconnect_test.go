package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestReconnector_ExhaustsBudget(t *testing.T) {
	r := NewReconnector(&ReconnectConfig{
		MaxAttempts: 2,
		Backoff:     time.Millisecond,
		Multiplier:  2.0,
		MaxBackoff:  10 * time.Millisecond,
	})

	for i := 0; i < 2; i++ {
		if err := r.Wait(context.Background()); err != nil {
			t.Fatalf("Wait %d failed: %v", i, err)
		}
	}
	if r.Attempts() != 2 {
		t.Errorf("Expected 2 attempts, got %d", r.Attempts())
	}
	if err := r.Wait(context.Background()); !errors.Is(err, ErrReconnectExhausted) {
		t.Errorf("Expected ErrReconnectExhausted, got %v", err)
	}
}

func TestReconnector_Reset(t *testing.T) {
	r := NewReconnector(&ReconnectConfig{
		MaxAttempts: 1,
		Backoff:     time.Millisecond,
		Multiplier:  2.0,
		MaxBackoff:  time.Millisecond,
	})

	r.Wait(context.Background())
	r.Reset()

	if err := r.Wait(context.Background()); err != nil {
		t.Errorf("Expected budget to be restored after Reset, got %v", err)
	}
}

func TestReconnector_ContextCancelled(t *testing.T) {
	r := NewReconnector(&ReconnectConfig{
		MaxAttempts: 3,
		Backoff:     time.Second,
		Multiplier:  2.0,
		MaxBackoff:  time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	if err := r.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected context.DeadlineExceeded, got %v", err)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Error("Expected Wait to return when the context ends")
	}
}

func TestNewReconnector_Defaults(t *testing.T) {
	r := NewReconnector(nil)
	if r.config != *DefaultReconnectConfig() {
		t.Errorf("Expected default config, got %+v", r.config)
	}
}
