package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"dubbing-service/domain/speech"
	"dubbing-service/infrastructure/cloud"
)

// TranscriptionClient is the subset of the OpenAI client used here
// This allows mocking the OpenAI API in tests
type TranscriptionClient interface {
	CreateTranscription(ctx context.Context, req openai.AudioRequest) (openai.AudioResponse, error)
}

// Config holds the Whisper connection settings
type Config struct {
	APIKey            string
	BaseURL           string
	Model             string
	Timeout           time.Duration
	RequestsPerSecond float64
}

// Transcriber implements speech.Transcriber using the Whisper transcription endpoint
type Transcriber struct {
	client  TranscriptionClient
	model   string
	retrier *cloud.Retrier
	logger  *slog.Logger
}

// Option is a functional option for configuring Transcriber
type Option func(*Transcriber)

// WithClient sets a custom transcription client (for testing)
func WithClient(c TranscriptionClient) Option {
	return func(t *Transcriber) {
		t.client = c
	}
}

// WithRetrier retries transient failures
func WithRetrier(r *cloud.Retrier) Option {
	return func(t *Transcriber) {
		t.retrier = r
	}
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(t *Transcriber) {
		t.logger = l
	}
}

// NewTranscriber creates a Whisper transcriber
func NewTranscriber(cfg Config, opts ...Option) (*Transcriber, error) {
	t := &Transcriber{model: cfg.Model, logger: slog.Default()}
	if t.model == "" {
		t.model = openai.Whisper1
	}
	for _, opt := range opts {
		opt(t)
	}

	if t.client == nil {
		if cfg.APIKey == "" {
			return nil, errors.New("openai api key is required for whisper transcription")
		}
		aiConfig := openai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			aiConfig.BaseURL = cfg.BaseURL
		}
		aiConfig.HTTPClient = cloud.NewHTTPClient(cfg.Timeout, cfg.RequestsPerSecond)
		t.client = openai.NewClientWithConfig(aiConfig)
	}
	return t, nil
}

// Transcribe implements speech.Transcriber
func (t *Transcriber) Transcribe(ctx context.Context, req speech.Request) (speech.Result, error) {
	language := speech.BaseLanguage(req.LanguageHint)

	resp, err := cloud.Do(ctx, t.retrier, "openai.whisper", func(ctx context.Context) (openai.AudioResponse, error) {
		resp, err := t.client.CreateTranscription(ctx, openai.AudioRequest{
			Model:    t.model,
			FilePath: req.AudioPath,
			Format:   openai.AudioResponseFormatVerboseJSON,
			Language: language,
		})
		if code := statusCode(err); code > 0 && cloud.TransientStatus(code) {
			return resp, cloud.Transient(code, err)
		}
		return resp, err
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return speech.Result{}, err
		}
		return speech.Result{}, &speech.RecognitionServiceError{
			Provider:   "openai",
			StatusCode: statusCode(err),
			Err:        fmt.Errorf("whisper transcription: %w", err),
		}
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return speech.Result{}, speech.ErrUnintelligibleAudio
	}
	if resp.Language != "" {
		language = resp.Language
	}
	t.logger.Debug("speech recognized", "provider", "openai", "language", language, "chars", len(text))
	return speech.Result{Text: text, Language: language, Confidence: 1}, nil
}

func statusCode(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}

// Ensure Transcriber implements speech.Transcriber
var _ speech.Transcriber = (*Transcriber)(nil)
