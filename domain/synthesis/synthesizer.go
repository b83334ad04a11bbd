package synthesis

import (
	"context"
	"fmt"
)

// Request is one synthesis call
type Request struct {
	Text         string
	LanguageCode string
	Voice        string // optional engine-specific voice name
}

// Result carries synthesized audio
type Result struct {
	Audio       []byte
	ContentType string
	Extension   string // including the dot, e.g. ".mp3"
}

// Synthesizer wraps an external text-to-speech engine
type Synthesizer interface {
	Synthesize(ctx context.Context, req Request) (Result, error)
}

// Error reports a synthesis failure such as empty text or an unsupported language
type Error struct {
	LanguageCode string
	Reason       string
	Err          error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("speech synthesis (%s) failed: %s: %v", e.LanguageCode, e.Reason, e.Err)
	}
	return fmt.Sprintf("speech synthesis (%s) failed: %s", e.LanguageCode, e.Reason)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Validate rejects requests no engine can serve
func (r Request) Validate() error {
	if r.LanguageCode == "" {
		return &Error{Reason: "language code is required"}
	}
	if r.Text == "" {
		return &Error{LanguageCode: r.LanguageCode, Reason: "text is empty"}
	}
	return nil
}
