package translate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
)

const translationPrompt = "You are a translation engine for live captions. " +
	"Translate the user's message into the language with code %s%s. " +
	"Reply with the translation only, without quotes or explanations."

var _ Translator = (*OpenAITranslator)(nil)

// OpenAITranslator translates with a chat completion model
type OpenAITranslator struct {
	client         *openai.Client
	model          string
	sourceLanguage string
}

// NewOpenAITranslator creates a translator for the OpenAI API. An empty
// baseURL uses the public endpoint.
func NewOpenAITranslator(apiKey, baseURL, model, sourceLanguage string) (*OpenAITranslator, error) {
	if apiKey == "" {
		return nil, errors.New("OpenAI API key must be specified")
	}
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return NewOpenAITranslatorWithConfig(config, model, sourceLanguage), nil
}

// NewOpenAITranslatorWithConfig creates a translator for a custom client
// configuration, such as another base URL
func NewOpenAITranslatorWithConfig(config openai.ClientConfig, model, sourceLanguage string) *OpenAITranslator {
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAITranslator{
		client:         openai.NewClientWithConfig(config),
		model:          model,
		sourceLanguage: sourceLanguage,
	}
}

// Translate sends text as the user message and returns the reply
func (o *OpenAITranslator) Translate(ctx context.Context, text, targetLanguage string) (string, error) {
	source := ""
	if o.sourceLanguage != "" {
		source = " from the language with code " + o.sourceLanguage
	}

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: fmt.Sprintf(translationPrompt, targetLanguage, source),
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: text,
			},
		},
	})
	if err != nil {
		return "", &Error{Provider: "openai", Err: err}
	}
	if len(resp.Choices) == 0 {
		return "", &Error{Provider: "openai", Err: ErrEmptyResult}
	}

	translated := strings.TrimSpace(resp.Choices[0].Message.Content)
	if translated == "" {
		return "", &Error{Provider: "openai", Err: ErrEmptyResult}
	}
	return translated, nil
}

// openAIStatusCode returns the HTTP status of a failed API call
func openAIStatusCode(err error) (int, bool) {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return apiErr.HTTPStatusCode, true
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return reqErr.HTTPStatusCode, true
	}
	return 0, false
}
