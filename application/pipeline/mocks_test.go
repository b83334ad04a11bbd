package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"dubbing-service/domain/artifact"
	"dubbing-service/domain/media"
	"dubbing-service/domain/pipeline"
	"dubbing-service/domain/speech"
	"dubbing-service/domain/synthesis"
	"dubbing-service/domain/translation"
)

// memStore is an in-memory artifact.Store and artifact.Lister
type memStore struct {
	mu      sync.Mutex
	objects map[artifact.Bucket]map[string][]byte
	gets    int
}

func newMemStore() *memStore {
	return &memStore{objects: make(map[artifact.Bucket]map[string][]byte)}
}

func (m *memStore) Put(ctx context.Context, bucket artifact.Bucket, name string, r io.Reader) (artifact.Info, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return artifact.Info{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.objects[bucket] == nil {
		m.objects[bucket] = make(map[string][]byte)
	}
	m.objects[bucket][name] = data
	return artifact.Info{Bucket: bucket, Name: name, Size: int64(len(data)), ModTime: time.Now()}, nil
}

func (m *memStore) Get(ctx context.Context, bucket artifact.Bucket, name string) (artifact.Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	data, ok := m.objects[bucket][name]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", artifact.ErrNotFound, bucket, name)
	}
	return &memObject{Reader: bytes.NewReader(data), info: artifact.Info{Bucket: bucket, Name: name, Size: int64(len(data))}}, nil
}

func (m *memStore) Stat(ctx context.Context, bucket artifact.Bucket, name string) (artifact.Info, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[bucket][name]
	if !ok {
		return artifact.Info{}, fmt.Errorf("%w: %s/%s", artifact.ErrNotFound, bucket, name)
	}
	return artifact.Info{Bucket: bucket, Name: name, Size: int64(len(data))}, nil
}

func (m *memStore) List(ctx context.Context, bucket artifact.Bucket, prefix string) ([]artifact.Info, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []artifact.Info
	for name, data := range m.objects[bucket] {
		if strings.HasPrefix(name, prefix) {
			out = append(out, artifact.Info{Bucket: bucket, Name: name, Size: int64(len(data)), ModTime: time.Now()})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memStore) content(bucket artifact.Bucket, name string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[bucket][name]
	return string(data), ok
}

func (m *memStore) names(bucket artifact.Bucket) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for name := range m.objects[bucket] {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (m *memStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, b := range m.objects {
		n += len(b)
	}
	return n
}

type memObject struct {
	*bytes.Reader
	info artifact.Info
}

func (o *memObject) Close() error        { return nil }
func (o *memObject) Info() artifact.Info { return o.info }

// memRepo is an unbounded pipeline.SessionRepository
type memRepo struct {
	mu       sync.Mutex
	sessions map[string]*pipeline.Session
}

func newMemRepo() *memRepo {
	return &memRepo{sessions: make(map[string]*pipeline.Session)}
}

func (r *memRepo) Get(id string) (*pipeline.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	return s.Clone(), true
}

func (r *memRepo) Put(s *pipeline.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = s.Clone()
}

func (r *memRepo) Update(id string, fn func(*pipeline.Session)) (*pipeline.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	fn(s)
	return s.Clone(), true
}

// mockShell writes a marker file for every operation
type mockShell struct {
	mu         sync.Mutex
	calls      []string
	failOn     string
	failError  error
	lastPolicy media.MergePolicy
}

func (m *mockShell) do(op, input, output string) error {
	m.mu.Lock()
	m.calls = append(m.calls, op)
	fail := m.failOn == op
	m.mu.Unlock()
	if fail {
		return m.failError
	}
	in, err := os.ReadFile(input)
	if err != nil {
		return fmt.Errorf("mock %s: %w", op, err)
	}
	return os.WriteFile(output, append([]byte(op+":"), in...), 0644)
}

func (m *mockShell) DemuxAudio(ctx context.Context, videoPath, outputPath string) error {
	return m.do("demux", videoPath, outputPath)
}

func (m *mockShell) ResampleAudio(ctx context.Context, inputPath, outputPath string) error {
	return m.do("resample", inputPath, outputPath)
}

func (m *mockShell) StripAudio(ctx context.Context, videoPath, outputPath string) error {
	return m.do("strip", videoPath, outputPath)
}

func (m *mockShell) Mux(ctx context.Context, videoPath, audioPath, outputPath string, policy media.MergePolicy) error {
	m.mu.Lock()
	m.lastPolicy = policy
	m.mu.Unlock()
	return m.do("mux", videoPath, outputPath)
}

func (m *mockShell) ops() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

type mockProber struct {
	durations map[string]time.Duration // keyed by file suffix
}

func (m *mockProber) Duration(ctx context.Context, path string) (time.Duration, error) {
	for suffix, d := range m.durations {
		if strings.HasSuffix(path, suffix) {
			return d, nil
		}
	}
	return 0, fmt.Errorf("no duration for %s", path)
}

type mockTranscriber struct {
	mu         sync.Mutex
	text       string
	shouldFail bool
	failError  error
	lastReq    speech.Request
}

func (m *mockTranscriber) Transcribe(ctx context.Context, req speech.Request) (speech.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastReq = req
	if m.shouldFail {
		return speech.Result{}, m.failError
	}
	if _, err := os.Stat(req.AudioPath); err != nil {
		return speech.Result{}, err
	}
	return speech.Result{Text: m.text, Language: req.LanguageHint}, nil
}

type mockTranslator struct {
	mu         sync.Mutex
	shouldFail bool
	failError  error
	calls      int
}

func (m *mockTranslator) Translate(ctx context.Context, req translation.Request) (translation.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.shouldFail {
		return translation.Result{}, &translation.Error{TargetLanguage: req.TargetLanguage, Err: m.failError}
	}
	return translation.Result{Text: "[" + req.TargetLanguage + "] " + req.Text, DetectedSourceLanguage: "en"}, nil
}

type mockSynthesizer struct {
	mu         sync.Mutex
	shouldFail bool
	failError  error
	lastReq    synthesis.Request
}

func (m *mockSynthesizer) Synthesize(ctx context.Context, req synthesis.Request) (synthesis.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastReq = req
	if m.shouldFail {
		return synthesis.Result{}, m.failError
	}
	return synthesis.Result{Audio: []byte("mp3:" + req.Text), ContentType: "audio/mpeg", Extension: ".mp3"}, nil
}

type recordingObserver struct {
	mu     sync.Mutex
	events []string
}

func (o *recordingObserver) StageFinished(stage string, elapsed time.Duration, kind string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, stage+":"+kind)
}

type requestKey struct{}

// contextHandler records the request value carried by the context of every log record
type contextHandler struct {
	mu       sync.Mutex
	messages map[string][]any
}

func newContextHandler() *contextHandler {
	return &contextHandler{messages: make(map[string][]any)}
}

func (h *contextHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *contextHandler) Handle(ctx context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages[r.Message] = append(h.messages[r.Message], ctx.Value(requestKey{}))
	return nil
}

func (h *contextHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *contextHandler) WithGroup(string) slog.Handler      { return h }

func (h *contextHandler) values(msg string) []any {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]any(nil), h.messages[msg]...)
}
