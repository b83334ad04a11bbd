package pipeline

import (
	"errors"
	"fmt"
)

// ErrorKind classifies stage failures for callers
type ErrorKind string

const (
	KindBadRequest          ErrorKind = "bad_request"
	KindNotFound            ErrorKind = "not_found"
	KindMediaTool           ErrorKind = "media_tool"
	KindRecognition         ErrorKind = "recognition"
	KindUnintelligibleAudio ErrorKind = "unintelligible_audio"
	KindTranslation         ErrorKind = "translation"
	KindSynthesis           ErrorKind = "synthesis"
	KindConflict            ErrorKind = "conflict"
	KindInternal            ErrorKind = "internal"
)

// Error is returned by every orchestrator stage
type Error struct {
	Kind      ErrorKind
	Stage     Stage
	SessionID string
	Message   string
	Err       error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Stage, e.Message, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Stage, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Stage, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Stage, e.Kind)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// BadRequest builds a KindBadRequest error
func BadRequest(stage Stage, msg string) *Error {
	return &Error{Kind: KindBadRequest, Stage: stage, Message: msg}
}

// KindOf returns the kind of err, or KindInternal for foreign errors
func KindOf(err error) ErrorKind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindInternal
}

// Warning describes a soft failure that did not stop a stage
type Warning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Warning codes
const (
	WarnUnintelligibleAudio = "unintelligible_audio"
	WarnRecognitionFailed   = "recognition_failed"
	WarnTranslationFailed   = "translation_failed"
	WarnAudioTruncated      = "audio_truncated"
)
