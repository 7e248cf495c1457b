package translate

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	translatev3 "google.golang.org/api/translate/v3"
)

// GoogleOptions configures a Cloud Translation v3 client
type GoogleOptions struct {
	ProjectID       string
	Location        string // defaults to global
	SourceLanguage  string // empty lets the service detect it
	CredentialsFile string // empty uses Application Default Credentials

	// ClientOptions are appended after the credentials option
	ClientOptions []option.ClientOption
}

var _ Translator = (*GoogleTranslator)(nil)

// GoogleTranslator calls the Cloud Translation v3 REST API
type GoogleTranslator struct {
	service        *translatev3.Service
	parent         string
	sourceLanguage string
}

// NewGoogleTranslator creates a translator for projects/{id}/locations/{location}
func NewGoogleTranslator(ctx context.Context, opts GoogleOptions) (*GoogleTranslator, error) {
	if opts.ProjectID == "" {
		return nil, errors.New("google project ID must be specified")
	}
	if opts.Location == "" {
		opts.Location = "global"
	}

	var clientOpts []option.ClientOption
	if opts.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(opts.CredentialsFile))
	}
	clientOpts = append(clientOpts, opts.ClientOptions...)

	service, err := translatev3.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create translation service: %w", err)
	}

	return &GoogleTranslator{
		service:        service,
		parent:         fmt.Sprintf("projects/%s/locations/%s", opts.ProjectID, opts.Location),
		sourceLanguage: opts.SourceLanguage,
	}, nil
}

// Translate translates text as plain text
func (g *GoogleTranslator) Translate(ctx context.Context, text, targetLanguage string) (string, error) {
	req := &translatev3.TranslateTextRequest{
		Contents:           []string{text},
		MimeType:           "text/plain",
		SourceLanguageCode: g.sourceLanguage,
		TargetLanguageCode: targetLanguage,
	}

	resp, err := g.service.Projects.Locations.TranslateText(g.parent, req).Context(ctx).Do()
	if err != nil {
		return "", &Error{Provider: "google", Err: err}
	}
	if len(resp.Translations) == 0 {
		return "", &Error{Provider: "google", Err: ErrEmptyResult}
	}

	return resp.Translations[0].TranslatedText, nil
}

// googleStatusCode returns the HTTP status of a failed API call
func googleStatusCode(err error) (int, bool) {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return 0, false
	}
	return apiErr.Code, true
}
