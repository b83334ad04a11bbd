package dub

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	apppipeline "dubbing-service/application/pipeline"
	"dubbing-service/domain/artifact"
	"dubbing-service/domain/media"
	"dubbing-service/domain/pipeline"
)

// Stages is the orchestrator the workflow drives
type Stages interface {
	Extract(ctx context.Context, in apppipeline.ExtractInput) (*apppipeline.ExtractOutput, error)
	Translate(ctx context.Context, in apppipeline.TranslateInput) (*apppipeline.TranslateOutput, error)
	Synthesize(ctx context.Context, in apppipeline.SynthesizeInput) (*apppipeline.SynthesizeOutput, error)
	Merge(ctx context.Context, in apppipeline.MergeInput) (*apppipeline.MergeOutput, error)
}

// Service runs all four stages for one local video file
type Service struct {
	stages      Stages
	fileChecker media.FileChecker
	output      io.Writer
	command     string
}

// NewService creates a new dub service. command is the binary name used in recovery hints.
func NewService(stages Stages, fileChecker media.FileChecker, output io.Writer, command string) *Service {
	if command == "" {
		command = "dubbing-service"
	}
	return &Service{
		stages:      stages,
		fileChecker: fileChecker,
		output:      output,
		command:     command,
	}
}

// Input contains all input parameters for the dub command
type Input struct {
	VideoPath      string
	TargetLanguage string
	LanguageHint   string // recognition locale of the source speech (optional)
}

// Result contains the results of a successful dub run
type Result struct {
	SessionID      string
	Transcription  string
	TranslatedText string
	Audio          artifact.Ref
	Merged         artifact.Ref
	Warnings       []pipeline.Warning
}

// ValidationError contains details about a validation failure with suggestions
type ValidationError struct {
	Message    string
	Suggestion string
}

func (e *ValidationError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("%s\n\nTo fix this, run:\n  %s", e.Message, e.Suggestion)
	}
	return e.Message
}

// Dub runs the complete end-to-end workflow
func (s *Service) Dub(ctx context.Context, input Input) (*Result, error) {
	startTime := time.Now()

	if err := s.validate(input); err != nil {
		return nil, err
	}

	fmt.Fprintf(s.output, "Using source: %s\n", filepath.Base(input.VideoPath))
	fmt.Fprintf(s.output, "Target language: %s\n\n", input.TargetLanguage)

	result := &Result{}

	// Step 1: Extract and transcribe
	fmt.Fprintf(s.output, "[1/4] Extracting audio and transcribing...\n")
	f, err := os.Open(input.VideoPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open video: %w", err)
	}
	extracted, err := s.stages.Extract(ctx, apppipeline.ExtractInput{
		Filename:     filepath.Base(input.VideoPath),
		Video:        f,
		LanguageHint: input.LanguageHint,
	})
	f.Close()
	if err != nil {
		s.showRecoveryCommands(1, input, sessionOf(err), result)
		return nil, fmt.Errorf("extraction failed: %w", err)
	}
	result.SessionID = extracted.Session.ID
	result.Transcription = extracted.Transcription
	result.Warnings = append(result.Warnings, extracted.Warnings...)
	fmt.Fprintf(s.output, "      Session: %s\n", result.SessionID)
	fmt.Fprintf(s.output, "      Created: %s\n", extracted.Transcript)
	s.printWarnings(extracted.Warnings)
	fmt.Fprintln(s.output)

	// Step 2: Translate
	fmt.Fprintf(s.output, "[2/4] Translating to %s...\n", input.TargetLanguage)
	translated, err := s.stages.Translate(ctx, apppipeline.TranslateInput{
		SessionID:      result.SessionID,
		Transcription:  extracted.Transcription,
		TargetLanguage: input.TargetLanguage,
	})
	if err != nil {
		s.showRecoveryCommands(2, input, result.SessionID, result)
		return nil, fmt.Errorf("translation failed: %w", err)
	}
	result.TranslatedText = translated.TranslatedText
	result.Warnings = append(result.Warnings, translated.Warnings...)
	fmt.Fprintf(s.output, "      Created: %s\n", translated.Text)
	s.printWarnings(translated.Warnings)
	fmt.Fprintln(s.output)

	// Step 3: Synthesize
	fmt.Fprintf(s.output, "[3/4] Synthesizing speech...\n")
	synthesized, err := s.stages.Synthesize(ctx, apppipeline.SynthesizeInput{
		SessionID: result.SessionID,
		Text:      translated.TranslatedText,
		Language:  input.TargetLanguage,
	})
	if err != nil {
		s.showRecoveryCommands(3, input, result.SessionID, result)
		return nil, fmt.Errorf("speech synthesis failed: %w", err)
	}
	result.Audio = synthesized.Audio
	fmt.Fprintf(s.output, "      Created: %s\n\n", synthesized.Audio)

	// Step 4: Merge
	fmt.Fprintf(s.output, "[4/4] Merging audio and video...\n")
	merged, err := s.stages.Merge(ctx, apppipeline.MergeInput{
		SessionID: result.SessionID,
		AudioRef:  synthesized.Audio.Name,
	})
	if err != nil {
		s.showRecoveryCommands(4, input, result.SessionID, result)
		return nil, fmt.Errorf("merge failed: %w", err)
	}
	result.Merged = merged.Merged
	result.Warnings = append(result.Warnings, merged.Warnings...)
	fmt.Fprintf(s.output, "      Created: %s\n", merged.Merged)
	s.printWarnings(merged.Warnings)
	fmt.Fprintln(s.output)

	elapsed := time.Since(startTime)
	fmt.Fprintf(s.output, "Done! Completed in %s\n", formatDuration(elapsed))

	return result, nil
}

func (s *Service) validate(input Input) error {
	if input.VideoPath == "" {
		return &ValidationError{
			Message:    "no video file given",
			Suggestion: fmt.Sprintf("%s dub --video <file> --lang %s", s.command, orDefault(input.TargetLanguage, "<code>")),
		}
	}
	if !s.fileChecker.Exists(input.VideoPath) {
		return fmt.Errorf("video file does not exist: %s", input.VideoPath)
	}
	if !artifact.ValidLanguage(input.TargetLanguage) {
		return &ValidationError{
			Message:    fmt.Sprintf("invalid target language %q", input.TargetLanguage),
			Suggestion: fmt.Sprintf("%s dub --video %q --lang es", s.command, input.VideoPath),
		}
	}
	return nil
}

func (s *Service) printWarnings(warnings []pipeline.Warning) {
	for _, w := range warnings {
		fmt.Fprintf(s.output, "      Warning: %s (%s)\n", w.Message, w.Code)
	}
}

func (s *Service) showRecoveryCommands(failedStep int, input Input, sessionID string, result *Result) {
	fmt.Fprintln(s.output)
	fmt.Fprintln(s.output, "To complete manually:")

	session := sessionID
	if session == "" {
		session = "<session>"
	}
	lang := input.TargetLanguage

	step := 1
	if failedStep <= 1 {
		fmt.Fprintf(s.output, "  %d. Extract:    %s extract-audio --video %q\n", step, s.command, input.VideoPath)
		step++
	}
	if failedStep <= 2 {
		fmt.Fprintf(s.output, "  %d. Translate:  %s translate --session %s --lang %s\n", step, s.command, session, lang)
		step++
	}
	if failedStep <= 3 {
		fmt.Fprintf(s.output, "  %d. Synthesize: %s synthesize --session %s --lang %s\n", step, s.command, session, lang)
		step++
	}
	if failedStep <= 4 {
		audio := result.Audio.Name
		if audio == "" {
			audio = artifact.Names{Session: session}.SynthesizedAudio(lang, "")
		}
		fmt.Fprintf(s.output, "  %d. Merge:      %s merge --session %s --audio %s\n", step, s.command, session, audio)
	}
	fmt.Fprintln(s.output)
}

func sessionOf(err error) string {
	var pe *pipeline.Error
	if errors.As(err, &pe) {
		return pe.SessionID
	}
	return ""
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	m := d / time.Minute
	sec := (d % time.Minute) / time.Second
	if m > 0 {
		return fmt.Sprintf("%dm %ds", m, sec)
	}
	return fmt.Sprintf("%ds", sec)
}

// StepInfo provides information about a workflow step
type StepInfo struct {
	Number      int
	Description string
}

// GetSteps returns the list of workflow steps
func GetSteps() []StepInfo {
	return []StepInfo{
		{1, "Extracting audio and transcribing"},
		{2, "Translating"},
		{3, "Synthesizing speech"},
		{4, "Merging audio and video"},
	}
}
