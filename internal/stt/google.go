package stt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/googleapis/gax-go/v2"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/option"
	"google.golang.org/grpc/status"
)

// SpeechClient is the part of cloud.google.com/go/speech/apiv1.Client used
// here, declared as an interface so tests can fake the stream.
type SpeechClient interface {
	StreamingRecognize(ctx context.Context, opts ...gax.CallOption) (speechpb.Speech_StreamingRecognizeClient, error)
	Close() error
}

var _ SpeechClient = (*speech.Client)(nil)

var _ Recognizer = (*GoogleRecognizer)(nil)

// GoogleRecognizer streams audio to Cloud Speech-to-Text v1
type GoogleRecognizer struct {
	client          SpeechClient
	streamingConfig *speechpb.StreamingRecognitionConfig
}

// NewGoogleRecognizer wraps an existing client
func NewGoogleRecognizer(client SpeechClient, config StreamConfig) (*GoogleRecognizer, error) {
	if client == nil {
		return nil, errors.New("speech client must be specified")
	}

	streamingConfig, err := googleStreamingConfig(config)
	if err != nil {
		return nil, err
	}

	return &GoogleRecognizer{
		client:          client,
		streamingConfig: streamingConfig,
	}, nil
}

// DialGoogle creates a Speech-to-Text client. An empty credentialsFile uses
// Application Default Credentials.
func DialGoogle(ctx context.Context, credentialsFile string, config StreamConfig) (*GoogleRecognizer, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := speech.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create speech client: %w", err)
	}

	r, err := NewGoogleRecognizer(client, config)
	if err != nil {
		client.Close()
		return nil, err
	}
	return r, nil
}

func googleStreamingConfig(config StreamConfig) (*speechpb.StreamingRecognitionConfig, error) {
	encoding, ok := speechpb.RecognitionConfig_AudioEncoding_value[strings.ToUpper(config.Encoding)]
	if !ok || encoding == int32(speechpb.RecognitionConfig_ENCODING_UNSPECIFIED) {
		return nil, fmt.Errorf("unsupported audio encoding %q", config.Encoding)
	}
	if config.SampleRateHertz <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", config.SampleRateHertz)
	}
	if config.LanguageCode == "" {
		return nil, errors.New("language code must be specified")
	}

	return &speechpb.StreamingRecognitionConfig{
		Config: &speechpb.RecognitionConfig{
			Encoding:                   speechpb.RecognitionConfig_AudioEncoding(encoding),
			SampleRateHertz:            int32(config.SampleRateHertz),
			LanguageCode:               config.LanguageCode,
			EnableAutomaticPunctuation: config.Punctuation,
			Model:                      config.Model,
		},
		InterimResults: config.InterimResults,
	}, nil
}

// Stream opens one StreamingRecognize call. The first request carries the
// configuration, the rest carry audio frames from source. Audio is sent from
// its own goroutine, which is always joined before the sequence returns.
func (g *GoogleRecognizer) Stream(ctx context.Context, source AudioSource) iter.Seq2[TranscriptEvent, error] {
	return func(yield func(TranscriptEvent, error) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		stream, err := g.client.StreamingRecognize(ctx)
		if err != nil {
			yield(TranscriptEvent{}, newStreamError("google", "open", err))
			return
		}

		if err := stream.Send(&speechpb.StreamingRecognizeRequest{
			StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
				StreamingConfig: g.streamingConfig,
			},
		}); err != nil {
			yield(TranscriptEvent{}, newStreamError("google", "config", err))
			return
		}

		var eg errgroup.Group
		eg.Go(func() error {
			for frame := range source(ctx) {
				if err := stream.Send(&speechpb.StreamingRecognizeRequest{
					StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{
						AudioContent: frame,
					},
				}); err != nil {
					// The broken stream is reported by Recv.
					return err
				}
			}
			return stream.CloseSend()
		})
		defer func() {
			cancel()
			eg.Wait()
		}()

		for {
			resp, err := stream.Recv()
			if err == io.EOF {
				return
			}
			if err != nil {
				yield(TranscriptEvent{}, newStreamError("google", "recv", err))
				return
			}
			if resp.GetError() != nil {
				yield(TranscriptEvent{}, newStreamError("google", "recv", status.FromProto(resp.GetError()).Err()))
				return
			}

			ev, ok := googleEvent(resp)
			if !ok {
				continue
			}
			if !yield(ev, nil) {
				return
			}
		}
	}
}

// googleEvent maps the first result of a response, which is the one that
// carries the current utterance.
func googleEvent(resp *speechpb.StreamingRecognizeResponse) (TranscriptEvent, bool) {
	results := resp.GetResults()
	if len(results) == 0 {
		return TranscriptEvent{}, false
	}
	alternatives := results[0].GetAlternatives()
	if len(alternatives) == 0 {
		return TranscriptEvent{}, false
	}

	return TranscriptEvent{
		Text:       alternatives[0].GetTranscript(),
		IsFinal:    results[0].GetIsFinal(),
		Confidence: float64(alternatives[0].GetConfidence()),
	}, true
}

// Close closes the underlying client
func (g *GoogleRecognizer) Close() error {
	return g.client.Close()
}
