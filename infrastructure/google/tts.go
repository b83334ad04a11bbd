package google

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"google.golang.org/api/texttospeech/v1"

	"dubbing-service/domain/synthesis"
	"dubbing-service/infrastructure/cloud"
)

// defaultLocales maps bare language codes to a locale with a stock voice
var defaultLocales = map[string]string{
	"ar": "ar-XA",
	"de": "de-DE",
	"en": "en-US",
	"es": "es-ES",
	"fr": "fr-FR",
	"hi": "hi-IN",
	"it": "it-IT",
	"ja": "ja-JP",
	"ko": "ko-KR",
	"nl": "nl-NL",
	"pl": "pl-PL",
	"pt": "pt-BR",
	"ru": "ru-RU",
	"tr": "tr-TR",
	"zh": "cmn-CN",
}

// SpeechSynthesisService defines the interface for Google Text-to-Speech operations
// This allows mocking the Google Text-to-Speech API in tests
type SpeechSynthesisService interface {
	Synthesize(ctx context.Context, req *texttospeech.SynthesizeSpeechRequest) (*texttospeech.SynthesizeSpeechResponse, error)
}

// GoogleTextToSpeechService is the production implementation using the Text-to-Speech v1 API
type GoogleTextToSpeechService struct {
	service *texttospeech.Service
}

// NewGoogleTextToSpeechService creates a Text-to-Speech v1 client
func NewGoogleTextToSpeechService(ctx context.Context, auth AuthConfig) (*GoogleTextToSpeechService, error) {
	opts, err := ClientOptions(ctx, auth, CloudPlatformScope)
	if err != nil {
		return nil, err
	}
	srv, err := texttospeech.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to create text-to-speech service: %w", err)
	}
	return &GoogleTextToSpeechService{service: srv}, nil
}

// Synthesize calls text:synthesize
func (s *GoogleTextToSpeechService) Synthesize(ctx context.Context, req *texttospeech.SynthesizeSpeechRequest) (*texttospeech.SynthesizeSpeechResponse, error) {
	return s.service.Text.Synthesize(req).Context(ctx).Do()
}

// Synthesizer implements synthesis.Synthesizer using Google Text-to-Speech
type Synthesizer struct {
	service SpeechSynthesisService
	voices  map[string]string
	retrier *cloud.Retrier
	logger  *slog.Logger
}

// SynthesizerOption is a functional option for configuring Synthesizer
type SynthesizerOption func(*Synthesizer)

// WithSynthesisService sets a custom text-to-speech service (for testing)
func WithSynthesisService(svc SpeechSynthesisService) SynthesizerOption {
	return func(s *Synthesizer) {
		s.service = svc
	}
}

// WithVoices pins a voice name per language code
func WithVoices(voices map[string]string) SynthesizerOption {
	return func(s *Synthesizer) {
		s.voices = voices
	}
}

// WithSynthesizerRetrier retries transient failures
func WithSynthesizerRetrier(r *cloud.Retrier) SynthesizerOption {
	return func(s *Synthesizer) {
		s.retrier = r
	}
}

// WithSynthesizerLogger sets the logger
func WithSynthesizerLogger(l *slog.Logger) SynthesizerOption {
	return func(s *Synthesizer) {
		s.logger = l
	}
}

// NewSynthesizer creates a Google synthesizer
func NewSynthesizer(ctx context.Context, auth AuthConfig, opts ...SynthesizerOption) (*Synthesizer, error) {
	s := &Synthesizer{logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}

	if s.service == nil {
		svc, err := NewGoogleTextToSpeechService(ctx, auth)
		if err != nil {
			return nil, err
		}
		s.service = svc
	}
	return s, nil
}

// voiceFor resolves the locale and optional pinned voice for a language code
func (s *Synthesizer) voiceFor(language, requested string) *texttospeech.VoiceSelectionParams {
	locale := language
	if !strings.ContainsAny(language, "-_") {
		if l, ok := defaultLocales[strings.ToLower(language)]; ok {
			locale = l
		}
	}

	name := requested
	if name == "" {
		name = s.voices[language]
	}
	return &texttospeech.VoiceSelectionParams{LanguageCode: locale, Name: name}
}

// Synthesize implements synthesis.Synthesizer
func (s *Synthesizer) Synthesize(ctx context.Context, req synthesis.Request) (synthesis.Result, error) {
	if err := req.Validate(); err != nil {
		return synthesis.Result{}, err
	}

	call := &texttospeech.SynthesizeSpeechRequest{
		Input:       &texttospeech.SynthesisInput{Text: req.Text},
		Voice:       s.voiceFor(req.LanguageCode, req.Voice),
		AudioConfig: &texttospeech.AudioConfig{AudioEncoding: "MP3"},
	}

	resp, err := cloud.Do(ctx, s.retrier, "google.tts", func(ctx context.Context) (*texttospeech.SynthesizeSpeechResponse, error) {
		return s.service.Synthesize(ctx, call)
	})
	if err != nil {
		reason := "engine error"
		if code := cloud.StatusCode(err); code == http.StatusBadRequest || code == http.StatusNotFound {
			reason = "unsupported language or voice"
		}
		return synthesis.Result{}, &synthesis.Error{LanguageCode: req.LanguageCode, Reason: reason, Err: err}
	}

	audio, err := base64.StdEncoding.DecodeString(resp.AudioContent)
	if err != nil {
		return synthesis.Result{}, &synthesis.Error{LanguageCode: req.LanguageCode, Reason: "undecodable audio content", Err: err}
	}
	if len(audio) == 0 {
		return synthesis.Result{}, &synthesis.Error{LanguageCode: req.LanguageCode, Reason: "engine returned no audio", Err: errors.New("empty audio content")}
	}

	s.logger.Debug("speech synthesized", "language", req.LanguageCode, "voice", call.Voice.Name, "bytes", len(audio))
	return synthesis.Result{Audio: audio, ContentType: "audio/mpeg", Extension: ".mp3"}, nil
}

// Ensure Synthesizer implements synthesis.Synthesizer
var _ synthesis.Synthesizer = (*Synthesizer)(nil)
