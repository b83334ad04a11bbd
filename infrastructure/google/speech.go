package google

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-audio/wav"
	speechapi "google.golang.org/api/speech/v1"

	"dubbing-service/domain/speech"
	"dubbing-service/infrastructure/cloud"
)

// syncRecognizeLimit is the longest audio sent to the synchronous endpoint
const syncRecognizeLimit = 55 * time.Second

// SpeechService defines the interface for Google Speech-to-Text operations
// This allows mocking the Google Speech API in tests
type SpeechService interface {
	Recognize(ctx context.Context, req *speechapi.RecognizeRequest) ([]*speechapi.SpeechRecognitionResult, error)
	LongRunningRecognize(ctx context.Context, req *speechapi.LongRunningRecognizeRequest) ([]*speechapi.SpeechRecognitionResult, error)
}

// GoogleSpeechService is the production implementation using the Speech v1 API
type GoogleSpeechService struct {
	service      *speechapi.Service
	pollInterval time.Duration
}

// NewGoogleSpeechService creates a Speech v1 client
func NewGoogleSpeechService(ctx context.Context, auth AuthConfig) (*GoogleSpeechService, error) {
	opts, err := ClientOptions(ctx, auth, CloudPlatformScope)
	if err != nil {
		return nil, err
	}
	srv, err := speechapi.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to create speech service: %w", err)
	}
	return &GoogleSpeechService{service: srv, pollInterval: 2 * time.Second}, nil
}

// Recognize calls speech:recognize
func (s *GoogleSpeechService) Recognize(ctx context.Context, req *speechapi.RecognizeRequest) ([]*speechapi.SpeechRecognitionResult, error) {
	resp, err := s.service.Speech.Recognize(req).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// LongRunningRecognize starts speech:longrunningrecognize and polls the operation until done
func (s *GoogleSpeechService) LongRunningRecognize(ctx context.Context, req *speechapi.LongRunningRecognizeRequest) ([]*speechapi.SpeechRecognitionResult, error) {
	op, err := s.service.Speech.Longrunningrecognize(req).Context(ctx).Do()
	if err != nil {
		return nil, err
	}

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()
	for !op.Done {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
		op, err = s.service.Operations.Get(op.Name).Context(ctx).Do()
		if err != nil {
			return nil, err
		}
	}

	if op.Error != nil {
		return nil, fmt.Errorf("recognition operation failed (code %d): %s", op.Error.Code, op.Error.Message)
	}
	var resp speechapi.LongRunningRecognizeResponse
	if err := json.Unmarshal(op.Response, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode recognition result: %w", err)
	}
	return resp.Results, nil
}

// Transcriber implements speech.Transcriber using Google Speech-to-Text
type Transcriber struct {
	service SpeechService
	retrier *cloud.Retrier
	logger  *slog.Logger
}

// TranscriberOption is a functional option for configuring Transcriber
type TranscriberOption func(*Transcriber)

// WithSpeechService sets a custom speech service (for testing)
func WithSpeechService(svc SpeechService) TranscriberOption {
	return func(t *Transcriber) {
		t.service = svc
	}
}

// WithTranscriberRetrier retries transient failures
func WithTranscriberRetrier(r *cloud.Retrier) TranscriberOption {
	return func(t *Transcriber) {
		t.retrier = r
	}
}

// WithTranscriberLogger sets the logger
func WithTranscriberLogger(l *slog.Logger) TranscriberOption {
	return func(t *Transcriber) {
		t.logger = l
	}
}

// NewTranscriber creates a Google transcriber
// If no speech service is provided, a real one is created from auth
func NewTranscriber(ctx context.Context, auth AuthConfig, opts ...TranscriberOption) (*Transcriber, error) {
	t := &Transcriber{logger: slog.Default()}
	for _, opt := range opts {
		opt(t)
	}

	if t.service == nil {
		svc, err := NewGoogleSpeechService(ctx, auth)
		if err != nil {
			return nil, err
		}
		t.service = svc
	}
	return t, nil
}

// wavInput is a PCM WAV file ready for upload
type wavInput struct {
	content    []byte
	sampleRate int
	channels   int
	duration   time.Duration
}

func readWAV(path string) (*wavInput, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio: %w", err)
	}

	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%s is not a valid PCM WAV file", path)
	}
	duration, err := dec.Duration()
	if err != nil {
		return nil, fmt.Errorf("failed to read WAV duration: %w", err)
	}

	return &wavInput{
		content:    data,
		sampleRate: int(dec.SampleRate),
		channels:   int(dec.NumChans),
		duration:   duration,
	}, nil
}

// Transcribe implements speech.Transcriber
func (t *Transcriber) Transcribe(ctx context.Context, req speech.Request) (speech.Result, error) {
	in, err := readWAV(req.AudioPath)
	if err != nil {
		return speech.Result{}, err
	}

	language := req.LanguageHint
	if language == "" {
		language = speech.DefaultLanguageHint
	}

	config := &speechapi.RecognitionConfig{
		Encoding:                   "LINEAR16",
		SampleRateHertz:            int64(in.sampleRate),
		AudioChannelCount:          int64(in.channels),
		LanguageCode:               language,
		EnableAutomaticPunctuation: true,
	}
	audio := &speechapi.RecognitionAudio{Content: base64.StdEncoding.EncodeToString(in.content)}

	results, err := cloud.Do(ctx, t.retrier, "google.speech", func(ctx context.Context) ([]*speechapi.SpeechRecognitionResult, error) {
		if in.duration > syncRecognizeLimit {
			return t.service.LongRunningRecognize(ctx, &speechapi.LongRunningRecognizeRequest{Config: config, Audio: audio})
		}
		return t.service.Recognize(ctx, &speechapi.RecognizeRequest{Config: config, Audio: audio})
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return speech.Result{}, err
		}
		return speech.Result{}, &speech.RecognitionServiceError{
			Provider:   "google",
			StatusCode: cloud.StatusCode(err),
			Err:        err,
		}
	}

	res := joinResults(results, language)
	if res.Text == "" {
		return speech.Result{}, speech.ErrUnintelligibleAudio
	}
	t.logger.Debug("speech recognized", "language", res.Language, "chars", len(res.Text), "audio", in.duration)
	return res, nil
}

// joinResults concatenates the top alternative of every result
func joinResults(results []*speechapi.SpeechRecognitionResult, language string) speech.Result {
	var parts []string
	var confidence float64
	for _, r := range results {
		if r == nil || len(r.Alternatives) == 0 {
			continue
		}
		text := strings.TrimSpace(r.Alternatives[0].Transcript)
		if text == "" {
			continue
		}
		parts = append(parts, text)
		confidence += r.Alternatives[0].Confidence
		if r.LanguageCode != "" {
			language = r.LanguageCode
		}
	}

	if len(parts) == 0 {
		return speech.Result{Language: language}
	}
	return speech.Result{
		Text:       strings.Join(parts, " "),
		Language:   language,
		Confidence: confidence / float64(len(parts)),
	}
}

// Ensure Transcriber implements speech.Transcriber
var _ speech.Transcriber = (*Transcriber)(nil)
