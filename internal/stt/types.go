package stt

import (
	"context"
	"iter"
)

// TranscriptEvent is one recognition result. Interim events may be revised
// by later ones; a final event never is.
type TranscriptEvent struct {
	// Text is the transcribed text
	Text string

	// IsFinal indicates if this is a final transcription (true) or interim (false)
	IsFinal bool

	// Confidence is the confidence score (0.0 to 1.0) if available
	Confidence float64
}

// StreamConfig describes the audio and the recognition options of a stream
type StreamConfig struct {
	Encoding        string // LINEAR16 is 16-bit signed little-endian PCM
	SampleRateHertz int
	LanguageCode    string
	Punctuation     bool
	InterimResults  bool
	Model           string // Provider specific, empty uses the provider default
}

// DefaultStreamConfig returns 16 kHz LINEAR16 English with punctuation and
// final results only
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		Encoding:        "LINEAR16",
		SampleRateHertz: 16000,
		LanguageCode:    "en-US",
		Punctuation:     true,
		InterimResults:  false,
	}
}

// AudioSource produces the audio frames of one recognition stream. The
// sequence must end when ctx is done. A recognizer breaks out of its loop on
// a frame only when it could not send that frame; the frame is then offered
// again to the next stream.
type AudioSource func(ctx context.Context) iter.Seq[[]byte]

// Recognizer is the interface for streaming speech-to-text engines
type Recognizer interface {
	// Stream runs one engine call. It reads audio from source until the
	// source ends, and yields the recognition events. A clean end of the
	// call ends the sequence; a failure is yielded as a non-nil error,
	// after which the sequence ends.
	Stream(ctx context.Context, source AudioSource) iter.Seq2[TranscriptEvent, error]

	// Close releases the engine client
	Close() error
}
