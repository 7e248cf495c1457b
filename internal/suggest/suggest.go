package suggest

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// DefaultMaxTokens bounds the reply when the request does not
const DefaultMaxTokens = 8192

// ErrEmptyResult is returned when the model answered without text
var ErrEmptyResult = errors.New("suggestion returned no text")

const systemPrompt = `You assist a listener who follows a live conversation through its transcript.
Suggest questions the listener could ask next about the given keyword.

Instructions:
- Base every question on what was actually said in the transcript.
- Prefer questions that clarify, go deeper or connect the keyword to the rest of the conversation.
- Write the questions in the language of the transcript.

Constraints:
- At most five questions, one sentence each.
- Do not answer the questions and do not repeat the transcript.

Output format:
A numbered list with one question per line and nothing else.`

// Completer is the part of the OpenAI client the suggester uses
type Completer interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

var _ Completer = (*openai.Client)(nil)

// Suggester asks a chat model for follow-up questions about a transcript
type Suggester struct {
	client Completer
	model  string
}

// New creates a suggester using client. An empty model uses GPT-4o mini.
func New(client Completer, model string) *Suggester {
	if model == "" {
		model = openai.GPT4oMini
	}
	return &Suggester{client: client, model: model}
}

// NewOpenAI creates a suggester for the OpenAI API. An empty baseURL uses
// the public endpoint.
func NewOpenAI(apiKey, baseURL, model string) (*Suggester, error) {
	if apiKey == "" {
		return nil, errors.New("OpenAI API key must be specified")
	}
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return New(openai.NewClientWithConfig(config), model), nil
}

// Suggest returns the model's questions about keyword in transcript
func (s *Suggester) Suggest(ctx context.Context, transcript, keyword string, maxTokens int) (string, error) {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       s.model,
		MaxTokens:   maxTokens,
		Temperature: 0.3,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt(transcript, keyword)},
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResult
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", ErrEmptyResult
	}
	return text, nil
}

func userPrompt(transcript, keyword string) string {
	return fmt.Sprintf("Keyword: %s\n\nTranscript:\n%s", keyword, transcript)
}
