package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"dubbing-service/domain/artifact"
	"dubbing-service/domain/media"
	"dubbing-service/domain/pipeline"
	"dubbing-service/domain/speech"
	"dubbing-service/domain/synthesis"
)

type fixture struct {
	store       *memStore
	shell       *mockShell
	transcriber *mockTranscriber
	translator  *mockTranslator
	synthesizer *mockSynthesizer
	repo        *memRepo
	observer    *recordingObserver
	svc         *Service
}

func newFixture(t *testing.T, settings Settings, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		store:       newMemStore(),
		shell:       &mockShell{},
		transcriber: &mockTranscriber{text: "hello world"},
		translator:  &mockTranslator{},
		synthesizer: &mockSynthesizer{},
		repo:        newMemRepo(),
		observer:    &recordingObserver{},
	}
	base := []Option{
		WithWorkDir(t.TempDir()),
		WithObserver(f.observer),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	f.svc = NewService(f.store, f.shell, f.transcriber, f.translator, f.synthesizer, f.repo, settings, append(base, opts...)...)
	return f
}

func (f *fixture) extract(t *testing.T) *ExtractOutput {
	t.Helper()
	out, err := f.svc.Extract(context.Background(), ExtractInput{Filename: "My Talk.mp4", Video: strings.NewReader("video-bytes")})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	return out
}

func (f *fixture) dubToSynthesized(t *testing.T, lang string) (*ExtractOutput, *SynthesizeOutput) {
	t.Helper()
	ctx := context.Background()
	ex := f.extract(t)
	tr, err := f.svc.Translate(ctx, TranslateInput{SessionID: ex.Session.ID, Transcription: ex.Transcription, TargetLanguage: lang})
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}
	sy, err := f.svc.Synthesize(ctx, SynthesizeInput{SessionID: ex.Session.ID, Text: tr.TranslatedText, Language: lang})
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	return ex, sy
}

func assertKind(t *testing.T, err error, want pipeline.ErrorKind) *pipeline.Error {
	t.Helper()
	var pe *pipeline.Error
	if !errors.As(err, &pe) {
		t.Fatalf("error = %v, want *pipeline.Error of kind %s", err, want)
	}
	if pe.Kind != want {
		t.Fatalf("error kind = %s, want %s (%v)", pe.Kind, want, err)
	}
	return pe
}

func TestExtract(t *testing.T) {
	f := newFixture(t, Settings{})
	out := f.extract(t)

	id := out.Session.ID
	if len(id) != 32 {
		t.Errorf("session id = %q, want 32 hex chars", id)
	}
	if out.Transcription != "hello world" {
		t.Errorf("Transcription = %q", out.Transcription)
	}
	if out.Session.State != pipeline.StateTranscribed {
		t.Errorf("State = %s, want transcribed", out.Session.State)
	}
	if want := id + "_My_Talk_original_audio.mp3"; out.OriginalAudio.Name != want {
		t.Errorf("OriginalAudio = %q, want %q", out.OriginalAudio.Name, want)
	}
	if got, _ := f.store.content(artifact.BucketAudio, out.OriginalAudio.Name); got != "demux:video-bytes" {
		t.Errorf("original audio content = %q", got)
	}
	if got, _ := f.store.content(artifact.BucketAudio, out.Transcript.Name); got != "hello world" {
		t.Errorf("transcript content = %q", got)
	}
	if _, ok := f.store.content(artifact.BucketUploads, id+"_source.mp4"); !ok {
		t.Error("source video not stored in uploads bucket")
	}
	if got := f.shell.ops(); !reflect.DeepEqual(got, []string{"demux", "resample"}) {
		t.Errorf("shell ops = %v", got)
	}
	if f.transcriber.lastReq.LanguageHint != speech.DefaultLanguageHint {
		t.Errorf("LanguageHint = %q, want default", f.transcriber.lastReq.LanguageHint)
	}
	if len(out.Warnings) != 0 {
		t.Errorf("Warnings = %v", out.Warnings)
	}
}

func TestExtract_LanguageHint(t *testing.T) {
	f := newFixture(t, Settings{LanguageHint: "de-DE"})
	f.extract(t)
	if f.transcriber.lastReq.LanguageHint != "de-DE" {
		t.Errorf("LanguageHint = %q, want configured de-DE", f.transcriber.lastReq.LanguageHint)
	}

	_, err := f.svc.Extract(context.Background(), ExtractInput{Filename: "a.mov", Video: strings.NewReader("v"), LanguageHint: "fr-FR"})
	if err != nil {
		t.Fatal(err)
	}
	if f.transcriber.lastReq.LanguageHint != "fr-FR" {
		t.Errorf("LanguageHint = %q, want request override", f.transcriber.lastReq.LanguageHint)
	}
}

func TestExtract_BadRequest(t *testing.T) {
	tests := []struct {
		name  string
		input ExtractInput
	}{
		{"no video", ExtractInput{Filename: "a.mp4"}},
		{"no filename", ExtractInput{Video: strings.NewReader("v")}},
		{"empty body", ExtractInput{Filename: "a.mp4", Video: strings.NewReader("")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, Settings{})
			_, err := f.svc.Extract(context.Background(), tt.input)
			assertKind(t, err, pipeline.KindBadRequest)
			if n := f.store.count(); n != 0 {
				t.Errorf("store has %d artifacts, want none", n)
			}
		})
	}
}

func TestExtract_ToolErrorKeepsEarlierArtifacts(t *testing.T) {
	f := newFixture(t, Settings{})
	f.shell.failOn = "resample"
	f.shell.failError = &media.ToolError{Tool: "ffmpeg", ExitCode: 1, Stderr: "Invalid data found"}

	_, err := f.svc.Extract(context.Background(), ExtractInput{Filename: "a.mp4", Video: strings.NewReader("v")})
	pe := assertKind(t, err, pipeline.KindMediaTool)
	if pe.SessionID == "" {
		t.Error("error does not carry the session id")
	}

	audio := f.store.names(artifact.BucketAudio)
	if len(audio) != 1 || !strings.HasSuffix(audio[0], "_original_audio.mp3") {
		t.Errorf("audio artifacts = %v, want only the original audio", audio)
	}
	if len(f.store.names(artifact.BucketUploads)) != 1 {
		t.Error("upload was rolled back")
	}
}

func TestExtract_RecognitionFailure(t *testing.T) {
	serviceErr := &speech.RecognitionServiceError{Provider: "google", StatusCode: 503, Err: errors.New("unavailable")}

	tests := []struct {
		name        string
		failErr     error
		strict      bool
		wantKind    pipeline.ErrorKind
		wantText    string
		wantWarning string
	}{
		{"unintelligible placeholder", speech.ErrUnintelligibleAudio, false, "", "Speech recognition could not understand the audio.", pipeline.WarnUnintelligibleAudio},
		{"service error placeholder", serviceErr, false, "", "Speech recognition error: " + serviceErr.Error(), pipeline.WarnRecognitionFailed},
		{"unintelligible strict", speech.ErrUnintelligibleAudio, true, pipeline.KindUnintelligibleAudio, "", ""},
		{"service error strict", serviceErr, true, pipeline.KindRecognition, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, Settings{FailOnSpeechError: tt.strict})
			f.transcriber.shouldFail = true
			f.transcriber.failError = tt.failErr

			out, err := f.svc.Extract(context.Background(), ExtractInput{Filename: "a.mp4", Video: strings.NewReader("v")})
			if tt.wantKind != "" {
				assertKind(t, err, tt.wantKind)
				return
			}
			if err != nil {
				t.Fatalf("Extract() error = %v", err)
			}
			if out.Transcription != tt.wantText {
				t.Errorf("Transcription = %q, want %q", out.Transcription, tt.wantText)
			}
			if len(out.Warnings) != 1 || out.Warnings[0].Code != tt.wantWarning {
				t.Errorf("Warnings = %+v, want %s", out.Warnings, tt.wantWarning)
			}
		})
	}
}

func TestTranslate(t *testing.T) {
	f := newFixture(t, Settings{})
	ex := f.extract(t)

	out, err := f.svc.Translate(context.Background(), TranslateInput{SessionID: ex.Session.ID, Transcription: "hello world", TargetLanguage: "es"})
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}
	if out.TranslatedText != "[es] hello world" || out.DetectedSourceLanguage != "en" {
		t.Errorf("output = %+v", out)
	}
	if want := ex.Session.ID + "_translated_es.txt"; out.Text.Name != want {
		t.Errorf("Text = %q, want %q", out.Text.Name, want)
	}
	if got, _ := f.store.content(artifact.BucketAudio, out.Text.Name); got != out.TranslatedText {
		t.Errorf("stored translation = %q", got)
	}
	if out.Session.State != pipeline.StateTranslated || !reflect.DeepEqual(out.Session.Languages, []string{"es"}) {
		t.Errorf("session = %+v", out.Session)
	}
}

func TestTranslate_DefaultTargetAndDetachedSession(t *testing.T) {
	f := newFixture(t, Settings{DefaultTargetLanguage: "fr"})

	out, err := f.svc.Translate(context.Background(), TranslateInput{Transcription: "hi"})
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}
	if !out.Session.Detached || out.Session.HasSource() {
		t.Errorf("session = %+v, want detached", out.Session)
	}
	if !strings.HasPrefix(out.Text.Name, out.Session.ID+"_translated_fr") {
		t.Errorf("Text = %q, want session scoped fr translation", out.Text.Name)
	}
}

func TestTranslate_EmptyInputWritesNothing(t *testing.T) {
	for _, text := range []string{"", "   \n\t"} {
		f := newFixture(t, Settings{})
		_, err := f.svc.Translate(context.Background(), TranslateInput{Transcription: text, TargetLanguage: "es"})
		assertKind(t, err, pipeline.KindBadRequest)
		if f.store.count() != 0 || f.translator.calls != 0 {
			t.Errorf("text %q: store=%d translator calls=%d, want none", text, f.store.count(), f.translator.calls)
		}
	}
}

func TestTranslate_Failure(t *testing.T) {
	t.Run("placeholder", func(t *testing.T) {
		f := newFixture(t, Settings{})
		f.translator.shouldFail = true
		f.translator.failError = errors.New("quota exceeded")

		out, err := f.svc.Translate(context.Background(), TranslateInput{Transcription: "hi", TargetLanguage: "es"})
		if err != nil {
			t.Fatalf("Translate() error = %v", err)
		}
		if !strings.HasPrefix(out.TranslatedText, "Translation failed: ") {
			t.Errorf("TranslatedText = %q", out.TranslatedText)
		}
		if len(out.Warnings) != 1 || out.Warnings[0].Code != pipeline.WarnTranslationFailed {
			t.Errorf("Warnings = %+v", out.Warnings)
		}
	})

	t.Run("strict", func(t *testing.T) {
		f := newFixture(t, Settings{FailOnTranslationError: true})
		f.translator.shouldFail = true
		f.translator.failError = errors.New("quota exceeded")

		_, err := f.svc.Translate(context.Background(), TranslateInput{Transcription: "hi", TargetLanguage: "es"})
		assertKind(t, err, pipeline.KindTranslation)
		if len(f.store.names(artifact.BucketAudio)) != 0 {
			t.Error("translation artifact written despite failure")
		}
	})
}

func TestTranslate_SessionErrors(t *testing.T) {
	f := newFixture(t, Settings{})
	uploaded := pipeline.NewSession("talk", ".mp4", time.Now())
	f.repo.Put(uploaded)

	tests := []struct {
		name      string
		sessionID string
		want      pipeline.ErrorKind
	}{
		{"malformed id", "../etc", pipeline.KindBadRequest},
		{"unknown session", strings.Repeat("a", 32), pipeline.KindNotFound},
		{"not transcribed yet", uploaded.ID, pipeline.KindConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Translate(context.Background(), TranslateInput{SessionID: tt.sessionID, Transcription: "hi", TargetLanguage: "es"})
			assertKind(t, err, tt.want)
		})
	}
}

func TestSynthesize(t *testing.T) {
	f := newFixture(t, Settings{Voices: map[string]string{"es": "es-ES-Wavenet-B"}})
	ex, out := f.dubToSynthesized(t, "es")

	if want := ex.Session.ID + "_translated_es.mp3"; out.Audio.Name != want {
		t.Errorf("Audio = %q, want %q", out.Audio.Name, want)
	}
	if got, _ := f.store.content(artifact.BucketAudio, out.Audio.Name); got != "mp3:[es] hello world" {
		t.Errorf("stored audio = %q", got)
	}
	if f.synthesizer.lastReq.Voice != "es-ES-Wavenet-B" {
		t.Errorf("Voice = %q, want pinned voice", f.synthesizer.lastReq.Voice)
	}
	if out.Session.State != pipeline.StateSynthesized {
		t.Errorf("State = %s", out.Session.State)
	}
}

func TestSynthesize_Errors(t *testing.T) {
	t.Run("empty text", func(t *testing.T) {
		f := newFixture(t, Settings{})
		_, err := f.svc.Synthesize(context.Background(), SynthesizeInput{Text: " ", Language: "es"})
		assertKind(t, err, pipeline.KindBadRequest)
		if f.store.count() != 0 {
			t.Error("artifact written for empty text")
		}
	})

	t.Run("engine error", func(t *testing.T) {
		f := newFixture(t, Settings{})
		f.synthesizer.shouldFail = true
		f.synthesizer.failError = &synthesis.Error{LanguageCode: "xx", Reason: "unsupported language or voice"}
		_, err := f.svc.Synthesize(context.Background(), SynthesizeInput{Text: "hola", Language: "xx"})
		pe := assertKind(t, err, pipeline.KindSynthesis)
		var se *synthesis.Error
		if !errors.As(pe, &se) {
			t.Error("synthesis.Error not preserved in chain")
		}
	})

	t.Run("detached text", func(t *testing.T) {
		f := newFixture(t, Settings{})
		out, err := f.svc.Synthesize(context.Background(), SynthesizeInput{Text: "hola"})
		if err != nil {
			t.Fatalf("Synthesize() error = %v", err)
		}
		if !strings.HasSuffix(out.Audio.Name, "_translated_en.mp3") {
			t.Errorf("Audio = %q, want default language en", out.Audio.Name)
		}
	})
}

func TestMerge(t *testing.T) {
	f := newFixture(t, Settings{MergePolicy: media.MergePad})
	ex, sy := f.dubToSynthesized(t, "es")

	refs := map[string]string{
		"bare name":    sy.Audio.Name,
		"absolute url": "http://localhost:5001/audio/" + sy.Audio.Name,
		"path":         "AudioFiles/" + sy.Audio.Name,
	}
	for name, ref := range refs {
		t.Run(name, func(t *testing.T) {
			out, err := f.svc.Merge(context.Background(), MergeInput{AudioRef: ref})
			if err != nil {
				t.Fatalf("Merge() error = %v", err)
			}
			if want := ex.Session.ID + "_merged_es.mp4"; out.Merged.Name != want {
				t.Errorf("Merged = %q, want %q", out.Merged.Name, want)
			}
			if out.Session.State != pipeline.StateMerged {
				t.Errorf("State = %s", out.Session.State)
			}
		})
	}

	if got, _ := f.store.content(artifact.BucketMerged, ex.Session.ID+"_merged_es.mp4"); got != "mux:strip:video-bytes" {
		t.Errorf("merged content = %q", got)
	}
	if _, ok := f.store.content(artifact.BucketMerged, ex.Session.ID+"_video_no_audio.mp4"); !ok {
		t.Error("silent video not stored")
	}
	if f.shell.lastPolicy != media.MergePad {
		t.Errorf("policy = %s, want pad", f.shell.lastPolicy)
	}
}

func TestMerge_Errors(t *testing.T) {
	f := newFixture(t, Settings{})
	a, syA := f.dubToSynthesized(t, "es")
	b := f.extract(t)

	detached, err := f.svc.Synthesize(context.Background(), SynthesizeInput{Text: "hola", Language: "es"})
	if err != nil {
		t.Fatal(err)
	}
	f.store.Put(context.Background(), artifact.BucketAudio, "loose.mp3", strings.NewReader("x"))
	early := b.Session.ID + "_translated_es.mp3"
	f.store.Put(context.Background(), artifact.BucketAudio, early, strings.NewReader("x"))

	tests := []struct {
		name  string
		input MergeInput
		want  pipeline.ErrorKind
	}{
		{"missing ref", MergeInput{}, pipeline.KindBadRequest},
		{"not audio", MergeInput{AudioRef: a.Transcript.Name}, pipeline.KindBadRequest},
		{"original audio", MergeInput{AudioRef: a.OriginalAudio.Name}, pipeline.KindBadRequest},
		{"unknown audio", MergeInput{AudioRef: a.Session.ID + "_translated_de.mp3"}, pipeline.KindBadRequest},
		{"no session", MergeInput{AudioRef: "loose.mp3"}, pipeline.KindBadRequest},
		{"other session's audio", MergeInput{SessionID: b.Session.ID, AudioRef: syA.Audio.Name}, pipeline.KindBadRequest},
		{"detached session", MergeInput{AudioRef: detached.Audio.Name}, pipeline.KindConflict},
		{"not synthesized", MergeInput{SessionID: b.Session.ID, AudioRef: early}, pipeline.KindConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Merge(context.Background(), tt.input)
			assertKind(t, err, tt.want)
		})
	}
	if names := f.store.names(artifact.BucketMerged); len(names) != 0 {
		t.Errorf("merged artifacts written on failure: %v", names)
	}
}

func TestMerge_TruncationWarning(t *testing.T) {
	tests := []struct {
		name   string
		policy media.MergePolicy
		audio  time.Duration
		warn   bool
	}{
		{"shortest with long audio", media.MergeShortest, 12 * time.Second, true},
		{"shortest with short audio", media.MergeShortest, 8 * time.Second, false},
		{"longest with long audio", media.MergeLongest, 12 * time.Second, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prober := &mockProber{durations: map[string]time.Duration{
				"_video_no_audio.mp4": 10 * time.Second,
				".mp3":                tt.audio,
			}}
			f := newFixture(t, Settings{MergePolicy: tt.policy}, WithProber(prober))
			_, sy := f.dubToSynthesized(t, "es")

			out, err := f.svc.Merge(context.Background(), MergeInput{AudioRef: sy.Audio.Name})
			if err != nil {
				t.Fatalf("Merge() error = %v", err)
			}
			got := len(out.Warnings) == 1 && out.Warnings[0].Code == pipeline.WarnAudioTruncated
			if got != tt.warn {
				t.Errorf("truncation warning = %v, want %v (%+v)", got, tt.warn, out.Warnings)
			}
		})
	}
}

func TestConcurrentSessionsAreIsolated(t *testing.T) {
	f := newFixture(t, Settings{})

	var wg sync.WaitGroup
	outs := make([]*MergeOutput, 2)
	errs := make([]error, 2)
	for i, lang := range []string{"es", "de"} {
		wg.Add(1)
		go func(i int, lang string) {
			defer wg.Done()
			ctx := context.Background()
			ex, err := f.svc.Extract(ctx, ExtractInput{Filename: "same.mp4", Video: strings.NewReader("video-" + lang)})
			if err != nil {
				errs[i] = err
				return
			}
			tr, err := f.svc.Translate(ctx, TranslateInput{SessionID: ex.Session.ID, Transcription: ex.Transcription, TargetLanguage: lang})
			if err != nil {
				errs[i] = err
				return
			}
			sy, err := f.svc.Synthesize(ctx, SynthesizeInput{SessionID: ex.Session.ID, Text: tr.TranslatedText, Language: lang})
			if err != nil {
				errs[i] = err
				return
			}
			outs[i], errs[i] = f.svc.Merge(ctx, MergeInput{AudioRef: sy.Audio.Name})
		}(i, lang)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("session %d error = %v", i, err)
		}
	}
	if outs[0].Session.ID == outs[1].Session.ID {
		t.Fatal("sessions share an id")
	}
	for i, lang := range []string{"es", "de"} {
		got, _ := f.store.content(artifact.BucketMerged, outs[i].Merged.Name)
		if got != "mux:strip:video-"+lang {
			t.Errorf("session %s merged content = %q", lang, got)
		}
	}
}

func TestSession_RecoveredFromStore(t *testing.T) {
	f := newFixture(t, Settings{})
	ex, _ := f.dubToSynthesized(t, "es")

	// a second instance sharing only the store
	other := NewService(f.store, f.shell, f.transcriber, f.translator, f.synthesizer, newMemRepo(), Settings{},
		WithWorkDir(t.TempDir()), WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	sess, err := other.Session(context.Background(), ex.Session.ID)
	if err != nil {
		t.Fatalf("Session() error = %v", err)
	}
	if sess.State != pipeline.StateSynthesized || sess.Stem != "My_Talk" || !sess.HasSource() {
		t.Errorf("recovered session = %+v", sess)
	}
	if !reflect.DeepEqual(sess.Languages, []string{"es"}) {
		t.Errorf("Languages = %v", sess.Languages)
	}

	if _, err := other.Merge(context.Background(), MergeInput{AudioRef: ex.Session.ID + "_translated_es.mp3"}); err != nil {
		t.Errorf("Merge() on recovered session error = %v", err)
	}
}

func TestSession_RecoveryReadsStemAsStem(t *testing.T) {
	f := newFixture(t, Settings{})
	ex, err := f.svc.Extract(context.Background(), ExtractInput{Filename: "translated_es.mp4", Video: strings.NewReader("video-bytes")})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	id := ex.Session.ID

	other := NewService(f.store, f.shell, f.transcriber, f.translator, f.synthesizer, newMemRepo(), Settings{},
		WithWorkDir(t.TempDir()), WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	sess, err := other.Session(context.Background(), id)
	if err != nil {
		t.Fatalf("Session() error = %v", err)
	}
	if sess.State != pipeline.StateTranscribed || sess.Stem != "translated_es" || len(sess.Languages) != 0 {
		t.Errorf("recovered session = %+v, want transcribed with no languages", sess)
	}

	for _, ref := range []string{id + "_translated_es_audio.wav", id + "_translated_es_original_audio.mp3"} {
		_, err := other.Merge(context.Background(), MergeInput{SessionID: id, AudioRef: ref})
		assertKind(t, err, pipeline.KindBadRequest)
	}
	if names := f.store.names(artifact.BucketMerged); len(names) != 0 {
		t.Errorf("merged before any synthesis: %v", names)
	}
}

func TestAttachToLatest(t *testing.T) {
	t.Run("requests without session ids reach a merge", func(t *testing.T) {
		f := newFixture(t, Settings{AttachToLatest: true})
		ctx := context.Background()
		f.extract(t)
		ex := f.extract(t)

		tr, err := f.svc.Translate(ctx, TranslateInput{Transcription: ex.Transcription, TargetLanguage: "es"})
		if err != nil {
			t.Fatalf("Translate() error = %v", err)
		}
		sy, err := f.svc.Synthesize(ctx, SynthesizeInput{Text: tr.TranslatedText, Language: "es"})
		if err != nil {
			t.Fatalf("Synthesize() error = %v", err)
		}
		out, err := f.svc.Merge(ctx, MergeInput{AudioRef: "http://localhost:5001/audio/" + sy.Audio.Name})
		if err != nil {
			t.Fatalf("Merge() error = %v", err)
		}

		for stage, id := range map[string]string{"translate": tr.Session.ID, "synthesize": sy.Session.ID, "merge": out.Session.ID} {
			if id != ex.Session.ID {
				t.Errorf("%s session = %s, want latest upload %s", stage, id, ex.Session.ID)
			}
		}
		if out.Merged.Name != ex.Session.ID+"_merged_es.mp4" {
			t.Errorf("Merged = %q", out.Merged.Name)
		}
	})

	t.Run("text without translate counts as translated", func(t *testing.T) {
		f := newFixture(t, Settings{AttachToLatest: true})
		ex := f.extract(t)
		sy, err := f.svc.Synthesize(context.Background(), SynthesizeInput{Text: "hola", Language: "es"})
		if err != nil {
			t.Fatalf("Synthesize() error = %v", err)
		}
		if sy.Session.ID != ex.Session.ID || sy.Session.State != pipeline.StateSynthesized {
			t.Errorf("session = %+v", sy.Session)
		}
	})

	t.Run("no upload yet opens a detached session", func(t *testing.T) {
		f := newFixture(t, Settings{AttachToLatest: true})
		out, err := f.svc.Translate(context.Background(), TranslateInput{Transcription: "hello", TargetLanguage: "es"})
		if err != nil {
			t.Fatalf("Translate() error = %v", err)
		}
		if !out.Session.Detached {
			t.Errorf("session = %+v, want detached", out.Session)
		}
	})

	t.Run("disabled keeps requests apart", func(t *testing.T) {
		f := newFixture(t, Settings{})
		ex := f.extract(t)
		tr, err := f.svc.Translate(context.Background(), TranslateInput{Transcription: ex.Transcription, TargetLanguage: "es"})
		if err != nil {
			t.Fatalf("Translate() error = %v", err)
		}
		if tr.Session.ID == ex.Session.ID {
			t.Error("translate attached to the upload with AttachToLatest off")
		}
	})
}

func TestMerge_KeepsSourceContainer(t *testing.T) {
	f := newFixture(t, Settings{})
	ctx := context.Background()
	ex, err := f.svc.Extract(ctx, ExtractInput{Filename: "clip.webm", Video: strings.NewReader("video-bytes")})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	id := ex.Session.ID
	if _, err := f.svc.Translate(ctx, TranslateInput{SessionID: id, Transcription: "hi", TargetLanguage: "pt_BR"}); err != nil {
		t.Fatalf("Translate() error = %v", err)
	}
	sy, err := f.svc.Synthesize(ctx, SynthesizeInput{SessionID: id, Text: "oi", Language: "pt_BR"})
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	out, err := f.svc.Merge(ctx, MergeInput{AudioRef: sy.Audio.Name})
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}

	if want := id + "_merged_pt-BR.webm"; out.Merged.Name != want {
		t.Errorf("Merged = %q, want %q", out.Merged.Name, want)
	}
	if _, ok := f.store.content(artifact.BucketMerged, id+"_video_no_audio.webm"); !ok {
		t.Errorf("silent video not kept in the source container: %v", f.store.names(artifact.BucketMerged))
	}
}

func TestStageLogsCarryRequestContext(t *testing.T) {
	h := newContextHandler()
	f := newFixture(t, Settings{}, WithLogger(slog.New(h)))
	ctx := context.WithValue(context.Background(), requestKey{}, "req-1")

	if _, err := f.svc.Extract(ctx, ExtractInput{Filename: "a.mp4", Video: strings.NewReader("v")}); err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	f.svc.Translate(ctx, TranslateInput{Transcription: ""})

	for _, msg := range []string{"stage finished", "stage failed"} {
		got := h.values(msg)
		if len(got) != 1 || got[0] != "req-1" {
			t.Errorf("%q logged with request values %v, want [req-1]", msg, got)
		}
	}
}

func TestOpen(t *testing.T) {
	f := newFixture(t, Settings{})
	ex := f.extract(t)

	obj, err := f.svc.Open(context.Background(), artifact.BucketAudio, ex.Transcript.Name)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	data, _ := io.ReadAll(obj)
	obj.Close()
	if string(data) != "hello world" {
		t.Errorf("content = %q", data)
	}

	for _, tc := range []struct {
		bucket artifact.Bucket
		name   string
	}{
		{artifact.BucketAudio, "missing.mp3"},
		{artifact.BucketAudio, "../secret"},
		{artifact.BucketUploads, ex.Session.SourceName},
	} {
		_, err := f.svc.Open(context.Background(), tc.bucket, tc.name)
		assertKind(t, err, pipeline.KindNotFound)
	}
}

func TestObserverRecordsStages(t *testing.T) {
	f := newFixture(t, Settings{})
	f.extract(t)
	f.svc.Translate(context.Background(), TranslateInput{Transcription: ""})

	f.observer.mu.Lock()
	defer f.observer.mu.Unlock()
	want := []string{"extract:", "translate:bad_request"}
	if !reflect.DeepEqual(f.observer.events, want) {
		t.Errorf("events = %v, want %v", f.observer.events, want)
	}
}
