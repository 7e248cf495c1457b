package stt

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// StreamError is a recognition engine call that failed mid-stream
type StreamError struct {
	Provider  string
	Op        string // open, config, recv, send
	Err       error
	Retryable bool
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("%s recognition stream %s: %v", e.Provider, e.Op, e.Err)
}

func (e *StreamError) Unwrap() error {
	return e.Err
}

func newStreamError(provider, op string, err error) *StreamError {
	return &StreamError{
		Provider:  provider,
		Op:        op,
		Err:       err,
		Retryable: isTransient(err),
	}
}

// IsRetryable reports whether reopening the stream may succeed
func IsRetryable(err error) bool {
	var se *StreamError
	if errors.As(err, &se) {
		return se.Retryable
	}
	return err != nil && isTransient(err)
}

// isTransient classifies an engine error. Anything that is not clearly a
// configuration, credential or cancellation problem is worth a reopen.
func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}

	s, ok := status.FromError(err)
	if !ok {
		return true
	}

	switch s.Code() {
	case codes.InvalidArgument,
		codes.PermissionDenied,
		codes.Unauthenticated,
		codes.NotFound,
		codes.Unimplemented,
		codes.Canceled:
		return false
	default:
		return true
	}
}

// IsRollover reports whether the engine ended the call at one of its own
// limits, such as the maximum stream duration or the audio timeout. Google
// reports both as OUT_OF_RANGE. The stream is healthy and can be reopened
// without counting as a failure.
func IsRollover(err error) bool {
	return err != nil && status.Code(err) == codes.OutOfRange
}
