package translation

import (
	"context"
	"fmt"
)

// Request is one translation call. An empty SourceLanguage means auto-detect.
type Request struct {
	Text           string
	TargetLanguage string
	SourceLanguage string
}

// Result is a successful translation
type Result struct {
	Text                   string
	DetectedSourceLanguage string
}

// Translator wraps an external translation engine
type Translator interface {
	Translate(ctx context.Context, req Request) (Result, error)
}

// Error reports a failed translation
type Error struct {
	TargetLanguage string
	Err            error
}

func (e *Error) Error() string {
	return fmt.Sprintf("translation to %q failed: %v", e.TargetLanguage, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Placeholder returns the text embedded in place of a failed translation
func Placeholder(err error) string {
	return "Translation failed: " + err.Error()
}
