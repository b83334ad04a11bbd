package google

import (
	"context"
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	speechapi "google.golang.org/api/speech/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/texttospeech/v1"
	translateapi "google.golang.org/api/translate/v2"

	"dubbing-service/domain/speech"
	"dubbing-service/domain/synthesis"
	"dubbing-service/domain/translation"
	"dubbing-service/infrastructure/cloud"
)

// writeWAV writes seconds of silent mono 16-bit PCM at rate Hz
func writeWAV(t *testing.T, seconds, rate int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audio.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	enc := wav.NewEncoder(f, rate, 16, 1, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: rate},
		Data:           make([]int, seconds*rate),
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatal(err)
	}
	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}

// mockSpeechService records requests and returns canned results
type mockSpeechService struct {
	results      []*speechapi.SpeechRecognitionResult
	errs         []error
	calls        int
	longRunning  int
	lastConfig   *speechapi.RecognitionConfig
	lastAudioLen int
}

func (m *mockSpeechService) next() error {
	m.calls++
	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		return err
	}
	return nil
}

func (m *mockSpeechService) Recognize(ctx context.Context, req *speechapi.RecognizeRequest) ([]*speechapi.SpeechRecognitionResult, error) {
	m.lastConfig = req.Config
	m.lastAudioLen = len(req.Audio.Content)
	if err := m.next(); err != nil {
		return nil, err
	}
	return m.results, nil
}

func (m *mockSpeechService) LongRunningRecognize(ctx context.Context, req *speechapi.LongRunningRecognizeRequest) ([]*speechapi.SpeechRecognitionResult, error) {
	m.longRunning++
	m.lastConfig = req.Config
	if err := m.next(); err != nil {
		return nil, err
	}
	return m.results, nil
}

func result(text string, confidence float64) *speechapi.SpeechRecognitionResult {
	return &speechapi.SpeechRecognitionResult{
		Alternatives: []*speechapi.SpeechRecognitionAlternative{{Transcript: text, Confidence: confidence}},
	}
}

func fastRetrier() *cloud.Retrier {
	return cloud.NewRetrier(cloud.RetryConfig{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond})
}

func TestTranscriber_Transcribe(t *testing.T) {
	svc := &mockSpeechService{results: []*speechapi.SpeechRecognitionResult{
		result("hello world", 0.9),
		result(" this is a test ", 0.7),
	}}
	tr, err := NewTranscriber(context.Background(), AuthConfig{}, WithSpeechService(svc))
	if err != nil {
		t.Fatalf("NewTranscriber() error = %v", err)
	}

	got, err := tr.Transcribe(context.Background(), speech.Request{AudioPath: writeWAV(t, 1, 16000), LanguageHint: "en-GB"})
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}

	if got.Text != "hello world this is a test" {
		t.Errorf("Text = %q", got.Text)
	}
	if got.Language != "en-GB" {
		t.Errorf("Language = %q, want en-GB", got.Language)
	}
	if got.Confidence < 0.79 || got.Confidence > 0.81 {
		t.Errorf("Confidence = %v, want 0.8", got.Confidence)
	}
	cfg := svc.lastConfig
	if cfg.Encoding != "LINEAR16" || cfg.SampleRateHertz != 16000 || cfg.AudioChannelCount != 1 || cfg.LanguageCode != "en-GB" {
		t.Errorf("RecognitionConfig = %+v", cfg)
	}
	if svc.lastAudioLen == 0 {
		t.Error("audio content was not sent")
	}
}

func TestTranscriber_DefaultLanguage(t *testing.T) {
	svc := &mockSpeechService{results: []*speechapi.SpeechRecognitionResult{result("hi", 1)}}
	tr, _ := NewTranscriber(context.Background(), AuthConfig{}, WithSpeechService(svc))

	if _, err := tr.Transcribe(context.Background(), speech.Request{AudioPath: writeWAV(t, 1, 8000)}); err != nil {
		t.Fatal(err)
	}
	if svc.lastConfig.LanguageCode != "en-US" || svc.lastConfig.SampleRateHertz != 8000 {
		t.Errorf("config = %+v", svc.lastConfig)
	}
}

func TestTranscriber_LongAudioUsesLongRunning(t *testing.T) {
	svc := &mockSpeechService{results: []*speechapi.SpeechRecognitionResult{result("long talk", 1)}}
	tr, _ := NewTranscriber(context.Background(), AuthConfig{}, WithSpeechService(svc))

	if _, err := tr.Transcribe(context.Background(), speech.Request{AudioPath: writeWAV(t, 60, 8000)}); err != nil {
		t.Fatal(err)
	}
	if svc.longRunning != 1 {
		t.Errorf("long audio should use long running recognition, calls=%d longRunning=%d", svc.calls, svc.longRunning)
	}
}

func TestTranscriber_Unintelligible(t *testing.T) {
	svc := &mockSpeechService{results: []*speechapi.SpeechRecognitionResult{{}, result("   ", 0)}}
	tr, _ := NewTranscriber(context.Background(), AuthConfig{}, WithSpeechService(svc))

	_, err := tr.Transcribe(context.Background(), speech.Request{AudioPath: writeWAV(t, 1, 16000)})
	if !errors.Is(err, speech.ErrUnintelligibleAudio) {
		t.Errorf("Transcribe() error = %v, want ErrUnintelligibleAudio", err)
	}
}

func TestTranscriber_RetriesThenServiceError(t *testing.T) {
	unavailable := &googleapi.Error{Code: 503, Message: "unavailable"}
	svc := &mockSpeechService{errs: []error{unavailable, unavailable, unavailable}}
	tr, _ := NewTranscriber(context.Background(), AuthConfig{}, WithSpeechService(svc), WithTranscriberRetrier(fastRetrier()))

	_, err := tr.Transcribe(context.Background(), speech.Request{AudioPath: writeWAV(t, 1, 16000)})

	var rse *speech.RecognitionServiceError
	if !errors.As(err, &rse) {
		t.Fatalf("Transcribe() error = %v, want RecognitionServiceError", err)
	}
	if rse.StatusCode != 503 || rse.Provider != "google" {
		t.Errorf("RecognitionServiceError = %+v", rse)
	}
	if svc.calls != 3 {
		t.Errorf("service called %d times, want 3", svc.calls)
	}
}

func TestTranscriber_RecoversAfterTransient(t *testing.T) {
	svc := &mockSpeechService{
		errs:    []error{&googleapi.Error{Code: 429}},
		results: []*speechapi.SpeechRecognitionResult{result("ok", 1)},
	}
	tr, _ := NewTranscriber(context.Background(), AuthConfig{}, WithSpeechService(svc), WithTranscriberRetrier(fastRetrier()))

	got, err := tr.Transcribe(context.Background(), speech.Request{AudioPath: writeWAV(t, 1, 16000)})
	if err != nil || got.Text != "ok" {
		t.Errorf("Transcribe() = %+v, %v", got, err)
	}
}

func TestTranscriber_InvalidWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.wav")
	os.WriteFile(path, []byte("not a wav"), 0644)
	tr, _ := NewTranscriber(context.Background(), AuthConfig{}, WithSpeechService(&mockSpeechService{}))

	if _, err := tr.Transcribe(context.Background(), speech.Request{AudioPath: path}); err == nil {
		t.Error("Transcribe() expected error for invalid wav")
	}
}

// mockTranslateService returns a canned resource or error
type mockTranslateService struct {
	resource   *translateapi.TranslationsResource
	err        error
	lastText   string
	lastTarget string
	lastSource string
}

func (m *mockTranslateService) Translate(ctx context.Context, text, target, source string) (*translateapi.TranslationsResource, error) {
	m.lastText, m.lastTarget, m.lastSource = text, target, source
	return m.resource, m.err
}

func TestTranslator_Translate(t *testing.T) {
	svc := &mockTranslateService{resource: &translateapi.TranslationsResource{
		TranslatedText:         "Hola &amp; adiós",
		DetectedSourceLanguage: "en",
	}}
	tr, _ := NewTranslator(context.Background(), AuthConfig{}, WithTranslateService(svc))

	got, err := tr.Translate(context.Background(), translation.Request{Text: "Hello & goodbye", TargetLanguage: "es"})
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}
	if got.Text != "Hola & adiós" || got.DetectedSourceLanguage != "en" {
		t.Errorf("Translate() = %+v", got)
	}
	if svc.lastTarget != "es" || svc.lastSource != "" {
		t.Errorf("service called with target=%q source=%q", svc.lastTarget, svc.lastSource)
	}
}

func TestTranslator_Error(t *testing.T) {
	svc := &mockTranslateService{err: &googleapi.Error{Code: 400, Message: "Invalid Value"}}
	tr, _ := NewTranslator(context.Background(), AuthConfig{}, WithTranslateService(svc), WithTranslatorRetrier(fastRetrier()))

	_, err := tr.Translate(context.Background(), translation.Request{Text: "x", TargetLanguage: "zz"})
	var te *translation.Error
	if !errors.As(err, &te) || te.TargetLanguage != "zz" {
		t.Errorf("Translate() error = %v, want translation.Error", err)
	}
}

func TestTranslator_RequiresTarget(t *testing.T) {
	tr, _ := NewTranslator(context.Background(), AuthConfig{}, WithTranslateService(&mockTranslateService{}))
	if _, err := tr.Translate(context.Background(), translation.Request{Text: "x"}); err == nil {
		t.Error("Translate() expected error without target")
	}
}

// mockTTSService returns canned audio or an error
type mockTTSService struct {
	audio []byte
	err   error
	last  *texttospeech.SynthesizeSpeechRequest
}

func (m *mockTTSService) Synthesize(ctx context.Context, req *texttospeech.SynthesizeSpeechRequest) (*texttospeech.SynthesizeSpeechResponse, error) {
	m.last = req
	if m.err != nil {
		return nil, m.err
	}
	return &texttospeech.SynthesizeSpeechResponse{AudioContent: base64.StdEncoding.EncodeToString(m.audio)}, nil
}

func TestSynthesizer_Synthesize(t *testing.T) {
	svc := &mockTTSService{audio: []byte("ID3fake-mp3")}
	s, _ := NewSynthesizer(context.Background(), AuthConfig{}, WithSynthesisService(svc), WithVoices(map[string]string{"es": "es-ES-Standard-A"}))

	got, err := s.Synthesize(context.Background(), synthesis.Request{Text: "hola", LanguageCode: "es"})
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if string(got.Audio) != "ID3fake-mp3" || got.Extension != ".mp3" || got.ContentType != "audio/mpeg" {
		t.Errorf("Synthesize() = %+v", got)
	}
	if svc.last.Voice.LanguageCode != "es-ES" || svc.last.Voice.Name != "es-ES-Standard-A" {
		t.Errorf("voice = %+v", svc.last.Voice)
	}
	if svc.last.AudioConfig.AudioEncoding != "MP3" {
		t.Errorf("encoding = %q", svc.last.AudioConfig.AudioEncoding)
	}
}

func TestSynthesizer_RegionalCodePassesThrough(t *testing.T) {
	svc := &mockTTSService{audio: []byte("x")}
	s, _ := NewSynthesizer(context.Background(), AuthConfig{}, WithSynthesisService(svc))

	if _, err := s.Synthesize(context.Background(), synthesis.Request{Text: "oi", LanguageCode: "pt-PT"}); err != nil {
		t.Fatal(err)
	}
	if svc.last.Voice.LanguageCode != "pt-PT" || svc.last.Voice.Name != "" {
		t.Errorf("voice = %+v", svc.last.Voice)
	}
}

func TestSynthesizer_Errors(t *testing.T) {
	tests := []struct {
		name       string
		svc        *mockTTSService
		req        synthesis.Request
		wantReason string
	}{
		{"empty text", &mockTTSService{}, synthesis.Request{LanguageCode: "es"}, "text is empty"},
		{"unsupported language", &mockTTSService{err: &googleapi.Error{Code: 400}}, synthesis.Request{Text: "x", LanguageCode: "xx"}, "unsupported language or voice"},
		{"no audio", &mockTTSService{}, synthesis.Request{Text: "x", LanguageCode: "es"}, "engine returned no audio"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := NewSynthesizer(context.Background(), AuthConfig{}, WithSynthesisService(tt.svc))
			_, err := s.Synthesize(context.Background(), tt.req)

			var se *synthesis.Error
			if !errors.As(err, &se) {
				t.Fatalf("Synthesize() error = %v, want synthesis.Error", err)
			}
			if se.Reason != tt.wantReason {
				t.Errorf("Reason = %q, want %q", se.Reason, tt.wantReason)
			}
		})
	}
}

func TestHTTPClient_APIKey(t *testing.T) {
	client, err := HTTPClient(context.Background(), AuthConfig{APIKey: "k", Timeout: time.Second})
	if err != nil {
		t.Fatalf("HTTPClient() error = %v", err)
	}
	if client.Timeout != time.Second {
		t.Errorf("Timeout = %v", client.Timeout)
	}
}

func TestHTTPClient_MissingCredentialsFile(t *testing.T) {
	_, err := HTTPClient(context.Background(), AuthConfig{CredentialsFile: filepath.Join(t.TempDir(), "missing.json")})
	if err == nil {
		t.Error("HTTPClient() expected error for missing credentials file")
	}
}
