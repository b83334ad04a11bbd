package google

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"

	translateapi "google.golang.org/api/translate/v2"

	"dubbing-service/domain/translation"
	"dubbing-service/infrastructure/cloud"
)

// TranslateService defines the interface for Google Translation operations
// This allows mocking the Google Translate API in tests
type TranslateService interface {
	Translate(ctx context.Context, text, target, source string) (*translateapi.TranslationsResource, error)
}

// GoogleTranslateService is the production implementation using the Translate v2 API
type GoogleTranslateService struct {
	service *translateapi.Service
}

// NewGoogleTranslateService creates a Translate v2 client
func NewGoogleTranslateService(ctx context.Context, auth AuthConfig) (*GoogleTranslateService, error) {
	opts, err := ClientOptions(ctx, auth, CloudPlatformScope)
	if err != nil {
		return nil, err
	}
	srv, err := translateapi.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to create translate service: %w", err)
	}
	return &GoogleTranslateService{service: srv}, nil
}

// Translate calls translations.list for a single text; an empty source means auto-detect
func (s *GoogleTranslateService) Translate(ctx context.Context, text, target, source string) (*translateapi.TranslationsResource, error) {
	call := s.service.Translations.List([]string{text}, target).Format("text").Context(ctx)
	if source != "" {
		call = call.Source(source)
	}
	resp, err := call.Do()
	if err != nil {
		return nil, err
	}
	if len(resp.Translations) == 0 {
		return nil, errors.New("translation response was empty")
	}
	return resp.Translations[0], nil
}

// Translator implements translation.Translator using Google Translate
type Translator struct {
	service TranslateService
	retrier *cloud.Retrier
	logger  *slog.Logger
}

// TranslatorOption is a functional option for configuring Translator
type TranslatorOption func(*Translator)

// WithTranslateService sets a custom translate service (for testing)
func WithTranslateService(svc TranslateService) TranslatorOption {
	return func(t *Translator) {
		t.service = svc
	}
}

// WithTranslatorRetrier retries transient failures
func WithTranslatorRetrier(r *cloud.Retrier) TranslatorOption {
	return func(t *Translator) {
		t.retrier = r
	}
}

// WithTranslatorLogger sets the logger
func WithTranslatorLogger(l *slog.Logger) TranslatorOption {
	return func(t *Translator) {
		t.logger = l
	}
}

// NewTranslator creates a Google translator
func NewTranslator(ctx context.Context, auth AuthConfig, opts ...TranslatorOption) (*Translator, error) {
	t := &Translator{logger: slog.Default()}
	for _, opt := range opts {
		opt(t)
	}

	if t.service == nil {
		svc, err := NewGoogleTranslateService(ctx, auth)
		if err != nil {
			return nil, err
		}
		t.service = svc
	}
	return t, nil
}

// Translate implements translation.Translator
func (t *Translator) Translate(ctx context.Context, req translation.Request) (translation.Result, error) {
	if req.TargetLanguage == "" {
		return translation.Result{}, &translation.Error{Err: errors.New("target language is required")}
	}

	res, err := cloud.Do(ctx, t.retrier, "google.translate", func(ctx context.Context) (*translateapi.TranslationsResource, error) {
		return t.service.Translate(ctx, req.Text, req.TargetLanguage, req.SourceLanguage)
	})
	if err != nil {
		return translation.Result{}, &translation.Error{TargetLanguage: req.TargetLanguage, Err: err}
	}

	detected := res.DetectedSourceLanguage
	if detected == "" {
		detected = req.SourceLanguage
	}
	t.logger.Debug("text translated", "source", detected, "target", req.TargetLanguage, "chars", len(res.TranslatedText))
	return translation.Result{
		// format=text should return plain text; unescape in case the engine fell back to HTML
		Text:                   html.UnescapeString(res.TranslatedText),
		DetectedSourceLanguage: detected,
	}, nil
}

// Ensure Translator implements translation.Translator
var _ translation.Translator = (*Translator)(nil)
