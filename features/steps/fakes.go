//go:build integration

package steps

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"dubbing-service/domain/speech"
	"dubbing-service/domain/synthesis"
	"dubbing-service/domain/translation"
	"dubbing-service/infrastructure/ffmpeg"
)

// fakeRunner stands in for the ffmpeg and ffprobe binaries.
// ffmpeg writes "<op>:<input contents>" to its output; ffprobe answers fixed durations.
type fakeRunner struct {
	mu            sync.Mutex
	calls         [][]string
	videoSeconds  float64
	speechSeconds float64
}

func (r *fakeRunner) Run(ctx context.Context, name string, args ...string) (ffmpeg.CommandResult, error) {
	r.mu.Lock()
	r.calls = append(r.calls, append([]string{filepath.Base(name)}, args...))
	r.mu.Unlock()

	switch filepath.Base(name) {
	case "ffprobe":
		path := args[len(args)-1]
		seconds := r.speechSeconds
		if strings.HasSuffix(path, ".mp4") {
			seconds = r.videoSeconds
		}
		return ffmpeg.CommandResult{Stdout: []byte(fmt.Sprintf("%.3f\n", seconds))}, nil

	case "ffmpeg":
		if len(args) == 1 && args[0] == "-version" {
			return ffmpeg.CommandResult{Stdout: []byte("ffmpeg version fake")}, nil
		}
		return r.ffmpeg(args)
	}
	return ffmpeg.CommandResult{ExitCode: 127}, fmt.Errorf("unknown tool %s", name)
}

func (r *fakeRunner) ffmpeg(args []string) (ffmpeg.CommandResult, error) {
	var inputs []string
	for i := 0; i < len(args)-1; i++ {
		if args[i] == "-i" {
			data, err := os.ReadFile(args[i+1])
			if err != nil {
				return ffmpeg.CommandResult{ExitCode: 1, Stderr: []byte(err.Error())}, errors.New("exit status 1")
			}
			inputs = append(inputs, string(data))
		}
	}

	op := "mux"
	switch {
	case contains(args, "-vn"):
		op = "audio"
		if len(inputs) > 0 && strings.Contains(inputs[0], "silent") {
			return ffmpeg.CommandResult{
				ExitCode: 1,
				Stderr:   []byte("Output file #0 does not contain any stream"),
			}, errors.New("exit status 1")
		}
	case contains(args, "pcm_s16le"):
		op = "wav"
	case contains(args, "-an"):
		op = "video"
	}

	out := args[len(args)-1]
	content := op + ":" + strings.Join(inputs, "+")
	if err := os.WriteFile(out, []byte(content), 0644); err != nil {
		return ffmpeg.CommandResult{ExitCode: 1}, err
	}
	return ffmpeg.CommandResult{}, nil
}

func (r *fakeRunner) lastMux() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.calls) - 1; i >= 0; i-- {
		if contains(r.calls[i], "1:a:0") {
			return r.calls[i]
		}
	}
	return nil
}

func contains(args []string, s string) bool {
	for _, a := range args {
		if a == s {
			return true
		}
	}
	return false
}

// fakeTranscriber returns a fixed transcript, or err
type fakeTranscriber struct {
	text string
	err  error
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, req speech.Request) (speech.Result, error) {
	if f.err != nil {
		return speech.Result{}, f.err
	}
	return speech.Result{Text: f.text, Language: speech.BaseLanguage(req.LanguageHint), Confidence: 0.93}, nil
}

// fakeTranslator answers a fixed text, or tags the input with the target language
type fakeTranslator struct {
	answer string
	err    error
}

func (f *fakeTranslator) Translate(ctx context.Context, req translation.Request) (translation.Result, error) {
	if f.err != nil {
		return translation.Result{}, &translation.Error{TargetLanguage: req.TargetLanguage, Err: f.err}
	}
	text := f.answer
	if text == "" {
		text = "[" + req.TargetLanguage + "] " + req.Text
	}
	return translation.Result{Text: text, DetectedSourceLanguage: "en"}, nil
}

// fakeSynthesizer "speaks" by prefixing the text
type fakeSynthesizer struct{}

func (f *fakeSynthesizer) Synthesize(ctx context.Context, req synthesis.Request) (synthesis.Result, error) {
	if err := req.Validate(); err != nil {
		return synthesis.Result{}, err
	}
	return synthesis.Result{
		Audio:       []byte("speech:" + req.Text),
		ContentType: "audio/mpeg",
		Extension:   ".mp3",
	}, nil
}
