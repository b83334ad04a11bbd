package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"dubbing-service/domain/artifact"
	"dubbing-service/domain/media"
	"dubbing-service/domain/pipeline"
	"dubbing-service/domain/speech"
	"dubbing-service/domain/synthesis"
	"dubbing-service/domain/translation"
)

var sessionIDRe = regexp.MustCompile(`^[0-9a-f]{32}$`)

// StageObserver is told about every finished stage. kind is empty on success.
type StageObserver interface {
	StageFinished(stage string, elapsed time.Duration, kind string)
}

// Settings holds the per-deployment behavior of the stages
type Settings struct {
	LanguageHint           string // default recognition locale
	FailOnSpeechError      bool   // otherwise a placeholder transcript is used
	FailOnTranslationError bool   // otherwise a placeholder translation is used
	DefaultTargetLanguage  string
	DefaultSpeechLanguage  string
	Voices                 map[string]string // pinned synthesis voice per language
	MergePolicy            media.MergePolicy

	// AttachToLatest makes translate and synthesize calls that name no session
	// continue the most recent successful upload instead of opening a detached
	// session. Single-tenant browser clients rely on it.
	AttachToLatest bool
}

// Service orchestrates the four dubbing stages over the artifact store
type Service struct {
	store       artifact.Store
	shell       media.Shell
	transcriber speech.Transcriber
	translator  translation.Translator
	synthesizer synthesis.Synthesizer
	sessions    pipeline.SessionRepository
	settings    Settings

	workspace *Workspace
	prober    media.Prober
	observer  StageObserver
	logger    *slog.Logger
	now       func() time.Time

	latestMu sync.Mutex
	latest   string // id of the last session whose extract succeeded
}

// Option is a functional option for configuring Service
type Option func(*Service)

// WithWorkDir sets the directory media tools work in
func WithWorkDir(dir string) Option {
	return func(s *Service) {
		s.workspace = NewWorkspace(s.store, dir)
	}
}

// WithProber enables duration checks before muxing
func WithProber(p media.Prober) Option {
	return func(s *Service) {
		s.prober = p
	}
}

// WithObserver reports stage outcomes to o
func WithObserver(o StageObserver) Option {
	return func(s *Service) {
		s.observer = o
	}
}

// WithLogger sets the structured logger
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		s.logger = l
	}
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates a new pipeline service
func NewService(
	store artifact.Store,
	shell media.Shell,
	transcriber speech.Transcriber,
	translator translation.Translator,
	synthesizer synthesis.Synthesizer,
	sessions pipeline.SessionRepository,
	settings Settings,
	opts ...Option,
) *Service {
	if settings.LanguageHint == "" {
		settings.LanguageHint = speech.DefaultLanguageHint
	}
	if settings.DefaultTargetLanguage == "" {
		settings.DefaultTargetLanguage = "en"
	}
	if settings.DefaultSpeechLanguage == "" {
		settings.DefaultSpeechLanguage = "en"
	}
	if settings.MergePolicy == "" {
		settings.MergePolicy = media.DefaultMergePolicy
	}
	if len(settings.Voices) > 0 {
		voices := make(map[string]string, len(settings.Voices))
		for lang, voice := range settings.Voices {
			voices[artifact.NormalizeLanguage(lang)] = voice
		}
		settings.Voices = voices
	}

	s := &Service{
		store:       store,
		shell:       shell,
		transcriber: transcriber,
		translator:  translator,
		synthesizer: synthesizer,
		sessions:    sessions,
		settings:    settings,
		logger:      slog.Default(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.workspace == nil {
		s.workspace = NewWorkspace(store, "")
	}
	return s
}

// Session returns a snapshot of a session, recovering it from the store if needed
func (s *Service) Session(ctx context.Context, id string) (sess *pipeline.Session, err error) {
	run := s.begin(ctx, pipeline.StageRetrieve)
	defer func() { run.end(&err) }()

	return s.loadSession(ctx, pipeline.StageRetrieve, id)
}

// Open streams a served artifact. Source uploads are never served.
func (s *Service) Open(ctx context.Context, bucket artifact.Bucket, name string) (obj artifact.Object, err error) {
	run := s.begin(ctx, pipeline.StageRetrieve)
	defer func() { run.end(&err) }()

	if bucket != artifact.BucketAudio && bucket != artifact.BucketMerged {
		return nil, &pipeline.Error{Kind: pipeline.KindNotFound, Stage: pipeline.StageRetrieve, Message: "file not found"}
	}
	if artifact.ValidateName(name) != nil {
		return nil, &pipeline.Error{Kind: pipeline.KindNotFound, Stage: pipeline.StageRetrieve, Message: "file not found"}
	}
	if sid, ok := artifact.SessionFromName(name); ok {
		run.session = sid
	}

	obj, err = s.store.Get(ctx, bucket, name)
	if err != nil {
		return nil, s.storeError(pipeline.StageRetrieve, "failed to open "+name, err)
	}
	return obj, nil
}

func (s *Service) setLatest(id string) {
	s.latestMu.Lock()
	s.latest = id
	s.latestMu.Unlock()
}

func (s *Service) latestSession() string {
	s.latestMu.Lock()
	defer s.latestMu.Unlock()
	return s.latest
}

// stageRun carries the bookkeeping of one stage invocation
type stageRun struct {
	s       *Service
	ctx     context.Context
	stage   pipeline.Stage
	session string
	start   time.Time
}

func (s *Service) begin(ctx context.Context, stage pipeline.Stage) *stageRun {
	if stage != pipeline.StageRetrieve {
		s.logger.DebugContext(ctx, "stage started", "stage", stage)
	}
	return &stageRun{s: s, ctx: ctx, stage: stage, start: s.now()}
}

// end normalizes *errp into a *pipeline.Error, then records metrics and logs
func (r *stageRun) end(errp *error) {
	elapsed := r.s.now().Sub(r.start)
	kind := ""

	if err := *errp; err != nil {
		var pe *pipeline.Error
		if !errors.As(err, &pe) {
			pe = &pipeline.Error{Kind: pipeline.KindInternal, Stage: r.stage, Err: err}
			*errp = pe
		}
		if pe.SessionID == "" {
			pe.SessionID = r.session
		}
		kind = string(pe.Kind)

		level := slog.LevelError
		if pe.Kind == pipeline.KindBadRequest || pe.Kind == pipeline.KindNotFound || pe.Kind == pipeline.KindConflict {
			level = slog.LevelInfo
		}
		r.s.logger.Log(r.ctx, level, "stage failed",
			"stage", r.stage, "session", r.session, "kind", pe.Kind, "error", pe.Error(), "elapsed", elapsed)
	} else if r.stage != pipeline.StageRetrieve {
		r.s.logger.InfoContext(r.ctx, "stage finished", "stage", r.stage, "session", r.session, "elapsed", elapsed)
	}

	if r.s.observer != nil {
		r.s.observer.StageFinished(string(r.stage), elapsed, kind)
	}
}

func (s *Service) storeError(stage pipeline.Stage, msg string, err error) *pipeline.Error {
	kind := pipeline.KindInternal
	if errors.Is(err, artifact.ErrNotFound) {
		kind = pipeline.KindNotFound
	}
	return &pipeline.Error{Kind: kind, Stage: stage, Message: msg, Err: err}
}

func (s *Service) toolError(stage pipeline.Stage, msg string, err error) *pipeline.Error {
	var te *media.ToolError
	if errors.As(err, &te) {
		return &pipeline.Error{Kind: pipeline.KindMediaTool, Stage: stage, Message: msg, Err: err}
	}
	return s.storeError(stage, msg, err)
}

func conflict(stage pipeline.Stage, msg string) *pipeline.Error {
	return &pipeline.Error{Kind: pipeline.KindConflict, Stage: stage, Message: msg}
}
