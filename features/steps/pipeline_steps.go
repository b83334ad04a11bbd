//go:build integration

package steps

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/cucumber/godog"
	"github.com/prometheus/client_golang/prometheus"

	apppipeline "dubbing-service/application/pipeline"
	"dubbing-service/domain/artifact"
	"dubbing-service/domain/media"
	"dubbing-service/domain/speech"
	"dubbing-service/infrastructure/cache"
	"dubbing-service/infrastructure/ffmpeg"
	"dubbing-service/infrastructure/httpapi"
	"dubbing-service/infrastructure/metrics"
	"dubbing-service/infrastructure/session"
	"dubbing-service/infrastructure/storage"
)

const publicURL = "http://dub.test"

// pipelineContext holds test state for pipeline scenarios.
// The service is built on first use so Given steps can change its settings.
type pipelineContext struct {
	root        string
	policy      media.MergePolicy
	attach      bool // continue the latest upload when no session is named
	anonymous   bool // send requests without a session id, like the browser client
	runner      *fakeRunner
	transcriber *fakeTranscriber
	translator  *fakeTranslator

	store   *storage.FilesystemStore
	service *apppipeline.Service
	handler http.Handler

	status   int
	body     map[string]any
	session  string
	sessions []string // sessionId of every response, in order
	uploads  []uploadResult
}

type uploadResult struct {
	filename string
	status   int
	session  string
	audioURL string
}

// SharedPipelineContext is reset before each scenario via Before hook
var SharedPipelineContext *pipelineContext

func getPipelineContext() *pipelineContext {
	return SharedPipelineContext
}

func (p *pipelineContext) build() error {
	if p.handler != nil {
		return nil
	}

	store, err := storage.NewFilesystemStore(p.root, nil)
	if err != nil {
		return err
	}
	registry := prometheus.NewRegistry()
	m := metrics.MustNewMetrics(registry)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	runner := ffmpeg.NewBoundedRunner(p.runner, 2, time.Minute, ffmpeg.WithObserver(m), ffmpeg.WithRunnerLogger(logger))
	shell := ffmpeg.NewShell(ffmpeg.WithCommandRunner(runner), ffmpeg.WithLogger(logger))
	translator, err := cache.NewTranslationCache(p.translator, 16)
	if err != nil {
		return err
	}

	p.store = store
	p.service = apppipeline.NewService(
		store,
		shell,
		p.transcriber,
		translator,
		&fakeSynthesizer{},
		session.NewRegistry(100, time.Hour),
		apppipeline.Settings{MergePolicy: p.policy, AttachToLatest: p.attach},
		apppipeline.WithWorkDir(p.root+"/work"),
		apppipeline.WithProber(ffmpeg.NewProber("ffprobe", runner)),
		apppipeline.WithObserver(m),
		apppipeline.WithLogger(logger),
	)
	p.handler = httpapi.NewServer(httpapi.Config{PublicURL: publicURL}, p.service,
		httpapi.WithLogger(logger),
		httpapi.WithGatherer(registry),
	).Handler()
	return nil
}

func (p *pipelineContext) do(req *http.Request) error {
	if err := p.build(); err != nil {
		return err
	}
	rec := httptest.NewRecorder()
	p.handler.ServeHTTP(rec, req)

	p.status = rec.Code
	p.body = map[string]any{}
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &p.body); err != nil {
			return fmt.Errorf("invalid JSON response: %w", err)
		}
	}
	if sid, ok := p.body["sessionId"].(string); ok && sid != "" {
		p.session = sid
		p.sessions = append(p.sessions, sid)
	}
	return nil
}

func (p *pipelineContext) postJSON(path string, payload map[string]string) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	if p.session != "" && !p.anonymous {
		req.Header.Set("X-Session-ID", p.session)
	}
	return p.do(req)
}

func (p *pipelineContext) uploadRequest(filename string) (*http.Request, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("video", filename)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(part, "video:%s", filename)
	if err := w.Close(); err != nil {
		return nil, err
	}
	req := httptest.NewRequest(http.MethodPost, "/extract-audio", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req, nil
}

func (p *pipelineContext) field(name string) string {
	v, _ := p.body[name].(string)
	return v
}

func (p *pipelineContext) fetch(url string) (int, string, error) {
	if err := p.build(); err != nil {
		return 0, "", err
	}
	rec := httptest.NewRecorder()
	p.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, strings.TrimPrefix(url, publicURL), nil))
	return rec.Code, rec.Body.String(), nil
}

func InitializePipelineScenario(ctx *godog.ScenarioContext) {
	ctx.Before(func(c context.Context, sc *godog.Scenario) (context.Context, error) {
		root, err := os.MkdirTemp("", "dubbing-features-*")
		if err != nil {
			return c, err
		}
		SharedPipelineContext = &pipelineContext{
			root:        root,
			policy:      media.MergeShortest,
			attach:      true,
			runner:      &fakeRunner{videoSeconds: 10, speechSeconds: 10},
			transcriber: &fakeTranscriber{text: "hello everyone"},
			translator:  &fakeTranslator{},
		}
		return c, nil
	})

	ctx.After(func(c context.Context, sc *godog.Scenario, err error) (context.Context, error) {
		if p := SharedPipelineContext; p != nil {
			os.RemoveAll(p.root)
		}
		SharedPipelineContext = nil
		return c, nil
	})

	ctx.Step(`^the dubbing service is running$`, theDubbingServiceIsRunning)
	ctx.Step(`^the merge policy is "([^"]*)"$`, theMergePolicyIs)
	ctx.Step(`^the speech engine hears "([^"]*)"$`, theSpeechEngineHears)
	ctx.Step(`^the speech engine cannot understand the audio$`, theSpeechEngineCannotUnderstandTheAudio)
	ctx.Step(`^the translation engine answers "([^"]*)"$`, theTranslationEngineAnswers)
	ctx.Step(`^the client sends no session ids$`, theClientSendsNoSessionIDs)
	ctx.Step(`^requests without a session are not attached to the latest upload$`, requestsAreNotAttachedToTheLatestUpload)
	ctx.Step(`^the video lasts (\d+) seconds and the synthesized speech lasts (\d+) seconds$`, theVideoLastsAndSpeechLasts)

	ctx.Step(`^I upload "([^"]*)" to extract audio$`, iUploadToExtractAudio)
	ctx.Step(`^I translate the transcription to "([^"]*)"$`, iTranslateTheTranscriptionTo)
	ctx.Step(`^I translate "([^"]*)" to "([^"]*)"$`, iTranslateTo)
	ctx.Step(`^I synthesize the translated text in "([^"]*)"$`, iSynthesizeTheTranslatedTextIn)
	ctx.Step(`^I synthesize "([^"]*)" in "([^"]*)"$`, iSynthesizeIn)
	ctx.Step(`^I merge the synthesized audio into the video$`, iMergeTheSynthesizedAudioIntoTheVideo)
	ctx.Step(`^I dub "([^"]*)" into "([^"]*)" over HTTP$`, iDubIntoOverHTTP)
	ctx.Step(`^the videos "([^"]*)" and "([^"]*)" are uploaded at the same time$`, theVideosAreUploadedAtTheSameTime)

	ctx.Step(`^the response status should be (\d+)$`, theResponseStatusShouldBe)
	ctx.Step(`^the error kind should be "([^"]*)"$`, theErrorKindShouldBe)
	ctx.Step(`^the transcription should be "([^"]*)"$`, theTranscriptionShouldBe)
	ctx.Step(`^the translated text should be "([^"]*)"$`, theTranslatedTextShouldBe)
	ctx.Step(`^the response should carry the warning "([^"]*)"$`, theResponseShouldCarryTheWarning)
	ctx.Step(`^the response should carry no warnings$`, theResponseShouldCarryNoWarnings)
	ctx.Step(`^the original audio should be downloadable$`, theOriginalAudioShouldBeDownloadable)
	ctx.Step(`^the merged video should be downloadable$`, theMergedVideoShouldBeDownloadable)
	ctx.Step(`^ffmpeg should have merged with "([^"]*)"$`, ffmpegShouldHaveMergedWith)
	ctx.Step(`^ffmpeg should have merged without "([^"]*)"$`, ffmpegShouldHaveMergedWithout)
	ctx.Step(`^the session should be in state "([^"]*)"$`, theSessionShouldBeInState)
	ctx.Step(`^every stage should have used the uploaded session$`, everyStageShouldHaveUsedTheUploadedSession)
	ctx.Step(`^no translated text should have been stored$`, noTranslatedTextShouldHaveBeenStored)
	ctx.Step(`^both uploads should succeed with different sessions$`, bothUploadsShouldSucceedWithDifferentSessions)
	ctx.Step(`^each session's original audio should come from its own video$`, eachSessionsOriginalAudioShouldComeFromItsOwnVideo)
}

func theDubbingServiceIsRunning() error {
	return getPipelineContext().build()
}

func theMergePolicyIs(policy string) error {
	p := getPipelineContext()
	if p.handler != nil {
		return fmt.Errorf("merge policy must be set before the service starts")
	}
	parsed, err := media.ParseMergePolicy(policy)
	if err != nil {
		return err
	}
	p.policy = parsed
	return nil
}

func theClientSendsNoSessionIDs() error {
	getPipelineContext().anonymous = true
	return nil
}

func requestsAreNotAttachedToTheLatestUpload() error {
	p := getPipelineContext()
	if p.handler != nil {
		return fmt.Errorf("session attachment must be set before the service starts")
	}
	p.attach = false
	return nil
}

func theSpeechEngineHears(text string) error {
	getPipelineContext().transcriber.text = text
	return nil
}

func theSpeechEngineCannotUnderstandTheAudio() error {
	getPipelineContext().transcriber.err = speech.ErrUnintelligibleAudio
	return nil
}

func theTranslationEngineAnswers(text string) error {
	getPipelineContext().translator.answer = text
	return nil
}

func theVideoLastsAndSpeechLasts(videoSeconds, speechSeconds int) error {
	p := getPipelineContext()
	p.runner.videoSeconds = float64(videoSeconds)
	p.runner.speechSeconds = float64(speechSeconds)
	return nil
}

func iUploadToExtractAudio(filename string) error {
	p := getPipelineContext()
	req, err := p.uploadRequest(filename)
	if err != nil {
		return err
	}
	return p.do(req)
}

func iTranslateTheTranscriptionTo(lang string) error {
	p := getPipelineContext()
	return p.postJSON("/translate-text", map[string]string{
		"transcription":  p.field("transcription"),
		"targetLanguage": lang,
	})
}

func iTranslateTo(text, lang string) error {
	return getPipelineContext().postJSON("/translate-text", map[string]string{
		"transcription":  text,
		"targetLanguage": lang,
	})
}

func iSynthesizeTheTranslatedTextIn(lang string) error {
	p := getPipelineContext()
	return p.postJSON("/text-to-audio", map[string]string{
		"translatedText": p.field("translatedText"),
		"language":       lang,
	})
}

func iSynthesizeIn(text, lang string) error {
	return getPipelineContext().postJSON("/text-to-audio", map[string]string{
		"translatedText": text,
		"language":       lang,
	})
}

func iMergeTheSynthesizedAudioIntoTheVideo() error {
	p := getPipelineContext()
	return p.postJSON("/merge-audio-video", map[string]string{
		"audioPath": p.field("audioFilePath"),
	})
}

func iDubIntoOverHTTP(filename, lang string) error {
	p := getPipelineContext()
	steps := []func() error{
		func() error { return iUploadToExtractAudio(filename) },
		func() error { return iTranslateTheTranscriptionTo(lang) },
		func() error { return iSynthesizeTheTranslatedTextIn(lang) },
		iMergeTheSynthesizedAudioIntoTheVideo,
	}
	for i, step := range steps {
		if err := step(); err != nil {
			return err
		}
		if p.status != http.StatusOK {
			return fmt.Errorf("stage %d answered %d: %v", i+1, p.status, p.body)
		}
	}
	return nil
}

func theVideosAreUploadedAtTheSameTime(a, b string) error {
	p := getPipelineContext()
	if err := p.build(); err != nil {
		return err
	}

	var wg sync.WaitGroup
	results := make([]uploadResult, 2)
	for i, name := range []string{a, b} {
		req, err := p.uploadRequest(name)
		if err != nil {
			return err
		}
		wg.Add(1)
		go func(i int, name string, req *http.Request) {
			defer wg.Done()
			rec := httptest.NewRecorder()
			p.handler.ServeHTTP(rec, req)
			var body map[string]any
			json.Unmarshal(rec.Body.Bytes(), &body)
			sid, _ := body["sessionId"].(string)
			audio, _ := body["audioPath"].(string)
			results[i] = uploadResult{filename: name, status: rec.Code, session: sid, audioURL: audio}
		}(i, name, req)
	}
	wg.Wait()

	p.uploads = results
	return nil
}

func theResponseStatusShouldBe(status int) error {
	p := getPipelineContext()
	if p.status != status {
		return fmt.Errorf("expected status %d, got %d: %v", status, p.status, p.body)
	}
	return nil
}

func theErrorKindShouldBe(kind string) error {
	p := getPipelineContext()
	if got := p.field("kind"); got != kind {
		return fmt.Errorf("expected error kind %q, got %q (%v)", kind, got, p.body)
	}
	return nil
}

func theTranscriptionShouldBe(text string) error {
	if got := getPipelineContext().field("transcription"); got != text {
		return fmt.Errorf("expected transcription %q, got %q", text, got)
	}
	return nil
}

func theTranslatedTextShouldBe(text string) error {
	if got := getPipelineContext().field("translatedText"); got != text {
		return fmt.Errorf("expected translated text %q, got %q", text, got)
	}
	return nil
}

func warningCodes(body map[string]any) []string {
	raw, _ := body["warnings"].([]any)
	var codes []string
	for _, w := range raw {
		if m, ok := w.(map[string]any); ok {
			code, _ := m["code"].(string)
			codes = append(codes, code)
		}
	}
	return codes
}

func theResponseShouldCarryTheWarning(code string) error {
	codes := warningCodes(getPipelineContext().body)
	for _, c := range codes {
		if c == code {
			return nil
		}
	}
	return fmt.Errorf("expected warning %q, got %v", code, codes)
}

func theResponseShouldCarryNoWarnings() error {
	if codes := warningCodes(getPipelineContext().body); len(codes) > 0 {
		return fmt.Errorf("expected no warnings, got %v", codes)
	}
	return nil
}

func theOriginalAudioShouldBeDownloadable() error {
	p := getPipelineContext()
	status, body, err := p.fetch(p.field("audioPath"))
	if err != nil {
		return err
	}
	if status != http.StatusOK || !strings.HasPrefix(body, "audio:") {
		return fmt.Errorf("GET %s answered %d with %q", p.field("audioPath"), status, body)
	}
	return nil
}

func theMergedVideoShouldBeDownloadable() error {
	p := getPipelineContext()
	url := p.field("mergedVideoPath")
	status, body, err := p.fetch(url)
	if err != nil {
		return err
	}
	if status != http.StatusOK || !strings.HasPrefix(body, "mux:") {
		return fmt.Errorf("GET %s answered %d with %q", url, status, body)
	}
	if !strings.Contains(body, "speech:") {
		return fmt.Errorf("merged video does not contain the synthesized speech: %q", body)
	}
	return nil
}

func ffmpegShouldHaveMergedWith(args string) error {
	call := getPipelineContext().runner.lastMux()
	if call == nil {
		return fmt.Errorf("ffmpeg was never asked to merge")
	}
	if !strings.Contains(strings.Join(call, " "), args) {
		return fmt.Errorf("expected merge arguments to contain %q, got %v", args, call)
	}
	return nil
}

func ffmpegShouldHaveMergedWithout(arg string) error {
	call := getPipelineContext().runner.lastMux()
	if call == nil {
		return fmt.Errorf("ffmpeg was never asked to merge")
	}
	if contains(call, arg) {
		return fmt.Errorf("expected merge arguments without %q, got %v", arg, call)
	}
	return nil
}

func everyStageShouldHaveUsedTheUploadedSession() error {
	p := getPipelineContext()
	if len(p.sessions) < 4 {
		return fmt.Errorf("expected a session from every stage, got %v", p.sessions)
	}
	for _, sid := range p.sessions[1:] {
		if sid != p.sessions[0] {
			return fmt.Errorf("stages ran in different sessions: %v", p.sessions)
		}
	}
	return nil
}

func theSessionShouldBeInState(state string) error {
	p := getPipelineContext()
	status, body, err := p.fetch("/sessions/" + p.session)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("GET /sessions/%s answered %d", p.session, status)
	}
	if !strings.Contains(body, `"state":"`+state+`"`) {
		return fmt.Errorf("expected state %q in %s", state, body)
	}
	return nil
}

func noTranslatedTextShouldHaveBeenStored() error {
	p := getPipelineContext()
	infos, err := p.store.List(context.Background(), artifact.BucketAudio, "")
	if err != nil {
		return err
	}
	for _, info := range infos {
		if strings.Contains(info.Name, "_translated_") {
			return fmt.Errorf("unexpected artifact %s", info.Name)
		}
	}
	return nil
}

func bothUploadsShouldSucceedWithDifferentSessions() error {
	p := getPipelineContext()
	if len(p.uploads) != 2 {
		return fmt.Errorf("expected two uploads, got %d", len(p.uploads))
	}
	for _, u := range p.uploads {
		if u.status != http.StatusOK {
			return fmt.Errorf("upload of %s answered %d", u.filename, u.status)
		}
	}
	if p.uploads[0].session == p.uploads[1].session {
		return fmt.Errorf("both uploads share session %s", p.uploads[0].session)
	}
	return nil
}

func eachSessionsOriginalAudioShouldComeFromItsOwnVideo() error {
	p := getPipelineContext()
	for _, u := range p.uploads {
		status, body, err := p.fetch(u.audioURL)
		if err != nil {
			return err
		}
		if status != http.StatusOK {
			return fmt.Errorf("GET %s answered %d", u.audioURL, status)
		}
		if want := "audio:video:" + u.filename; body != want {
			return fmt.Errorf("session %s audio = %q, want %q", u.session, body, want)
		}
	}
	return nil
}
