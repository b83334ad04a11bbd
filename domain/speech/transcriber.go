package speech

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// DefaultLanguageHint is the recognition locale used when none is configured
const DefaultLanguageHint = "en-US"

// ErrUnintelligibleAudio is returned when the engine recognized no speech
var ErrUnintelligibleAudio = errors.New("speech recognition could not understand the audio")

// Request is one recognition call
type Request struct {
	AudioPath    string // canonical PCM WAV
	LanguageHint string // BCP-47 locale such as en-US
}

// Result is a successful recognition
type Result struct {
	Text       string
	Language   string
	Confidence float64
}

// Transcriber wraps an external speech recognition engine.
// This is a port that can be implemented by different providers.
type Transcriber interface {
	Transcribe(ctx context.Context, req Request) (Result, error)
}

// RecognitionServiceError reports that the engine was unreachable or errored
type RecognitionServiceError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *RecognitionServiceError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s speech recognition error (http %d): %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s speech recognition error: %v", e.Provider, e.Err)
}

func (e *RecognitionServiceError) Unwrap() error {
	return e.Err
}

// Placeholder returns the human-readable transcript used in place of a failed recognition
func Placeholder(err error) string {
	if errors.Is(err, ErrUnintelligibleAudio) {
		return "Speech recognition could not understand the audio."
	}
	return "Speech recognition error: " + err.Error()
}

// BaseLanguage reduces a locale like en-US to its ISO-639-1 part
func BaseLanguage(locale string) string {
	locale = strings.TrimSpace(locale)
	if i := strings.IndexAny(locale, "-_"); i > 0 {
		locale = locale[:i]
	}
	return strings.ToLower(locale)
}
