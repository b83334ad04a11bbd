package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	apppipeline "dubbing-service/application/pipeline"
	"dubbing-service/domain/artifact"
	"dubbing-service/domain/media"
	"dubbing-service/domain/speech"
	"dubbing-service/domain/synthesis"
	"dubbing-service/domain/translation"
	"dubbing-service/infrastructure/cache"
	"dubbing-service/infrastructure/cloud"
	"dubbing-service/infrastructure/config"
	"dubbing-service/infrastructure/ffmpeg"
	"dubbing-service/infrastructure/google"
	"dubbing-service/infrastructure/metrics"
	"dubbing-service/infrastructure/openai"
	"dubbing-service/infrastructure/session"
	"dubbing-service/infrastructure/storage"
)

// App holds the production object graph shared by serve and the stage commands
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
	Shell    *ffmpeg.Shell
	Store    artifact.Store
	Pipeline *apppipeline.Service
}

// Engines overrides the cloud engines; nil fields are built from config
type Engines struct {
	Transcriber speech.Transcriber
	Translator  translation.Translator
	Synthesizer synthesis.Synthesizer
}

func newLogger(cfg config.LoggingConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.ToLower(cfg.Format) == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// buildApp wires config into the orchestrator
func buildApp(ctx context.Context, cfg *config.Config, logOutput io.Writer, engines Engines) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration:\n%w", err)
	}

	logger := newLogger(cfg.Logging, logOutput)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m, err := metrics.NewMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	runner := ffmpeg.NewBoundedRunner(
		&ffmpeg.ExecCommandRunner{},
		cfg.Media.MaxConcurrent,
		cfg.Media.Timeout,
		ffmpeg.WithObserver(m),
		ffmpeg.WithRunnerLogger(logger),
	)
	shell := ffmpeg.NewShell(
		ffmpeg.WithFFmpegPath(cfg.Media.FFmpegPath),
		ffmpeg.WithCommandRunner(runner),
		ffmpeg.WithSampleRate(cfg.Media.SampleRate),
		ffmpeg.WithChannels(cfg.Media.Channels),
		ffmpeg.WithAudioCodec(cfg.Media.AudioCodec),
		ffmpeg.WithLogger(logger),
	)
	prober := ffmpeg.NewProber(cfg.Media.FFprobePath, runner)

	auth := google.AuthConfig{
		APIKey:            cfg.Google.APIKey,
		CredentialsFile:   cfg.Google.CredentialsFile,
		Timeout:           cfg.Google.Timeout,
		RequestsPerSecond: cfg.Google.RequestsPerSecond,
	}

	store, err := newStore(ctx, cfg, auth, logger)
	if err != nil {
		return nil, err
	}

	retrier := cloud.NewRetrier(cloud.RetryConfig{
		MaxAttempts:     cfg.Retry.MaxAttempts,
		InitialInterval: cfg.Retry.InitialInterval,
		MaxInterval:     cfg.Retry.MaxInterval,
	}, cloud.WithRetryObserver(m), cloud.WithRetryLogger(logger))

	if err := newEngines(ctx, cfg, auth, retrier, logger, &engines); err != nil {
		return nil, err
	}

	policy, err := media.ParseMergePolicy(cfg.Media.MergePolicy)
	if err != nil {
		return nil, err
	}

	svc := apppipeline.NewService(
		store,
		shell,
		engines.Transcriber,
		engines.Translator,
		engines.Synthesizer,
		session.NewRegistry(cfg.Sessions.MaxEntries, cfg.Sessions.TTL),
		apppipeline.Settings{
			LanguageHint:           cfg.Speech.Language,
			FailOnSpeechError:      cfg.Speech.OnFailure == config.PolicyFail,
			FailOnTranslationError: cfg.Translation.OnFailure == config.PolicyFail,
			DefaultTargetLanguage:  cfg.Translation.DefaultTarget,
			DefaultSpeechLanguage:  cfg.Synthesis.DefaultLanguage,
			Voices:                 cfg.Synthesis.Voices,
			MergePolicy:            policy,
			AttachToLatest:         cfg.Sessions.LegacyAttach,
		},
		apppipeline.WithWorkDir(cfg.Storage.WorkDir),
		apppipeline.WithProber(prober),
		apppipeline.WithObserver(m),
		apppipeline.WithLogger(logger),
	)

	return &App{
		Config:   cfg,
		Logger:   logger,
		Registry: registry,
		Metrics:  m,
		Shell:    shell,
		Store:    store,
		Pipeline: svc,
	}, nil
}

func newStore(ctx context.Context, cfg *config.Config, auth google.AuthConfig, logger *slog.Logger) (artifact.Store, error) {
	switch cfg.Storage.Backend {
	case config.BackendMinio:
		mc := cfg.Storage.Minio
		store, err := storage.NewMinioStore(ctx, storage.MinioConfig{
			Endpoint:     mc.Endpoint,
			AccessKey:    mc.AccessKey,
			SecretKey:    mc.SecretKey,
			UseSSL:       mc.UseSSL,
			Region:       mc.Region,
			BucketPrefix: mc.BucketPrefix,
		}, storage.WithMinioLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("failed to open minio store: %w", err)
		}
		return store, nil

	case config.BackendDrive:
		store, err := storage.NewDriveStore(ctx, cfg.Storage.Drive.FolderID, auth, storage.WithDriveLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("failed to open drive store: %w", err)
		}
		return store, nil

	default:
		fc := cfg.Storage.Filesystem
		store, err := storage.NewFilesystemStore(fc.Root, map[artifact.Bucket]string{
			artifact.BucketAudio:   fc.AudioDirectory,
			artifact.BucketMerged:  fc.MergedDirectory,
			artifact.BucketUploads: fc.UploadDirectory,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open filesystem store: %w", err)
		}
		return store, nil
	}
}

func newEngines(ctx context.Context, cfg *config.Config, auth google.AuthConfig, retrier *cloud.Retrier, logger *slog.Logger, e *Engines) error {
	if e.Transcriber == nil {
		switch cfg.Speech.Provider {
		case config.ProviderOpenAI:
			t, err := openai.NewTranscriber(openai.Config{
				APIKey:  cfg.OpenAI.APIKey,
				BaseURL: cfg.OpenAI.BaseURL,
				Model:   cfg.OpenAI.Model,
				Timeout: cfg.OpenAI.Timeout,
			}, openai.WithRetrier(retrier), openai.WithLogger(logger))
			if err != nil {
				return fmt.Errorf("failed to create whisper transcriber: %w", err)
			}
			e.Transcriber = t
		default:
			t, err := google.NewTranscriber(ctx, auth,
				google.WithTranscriberRetrier(retrier),
				google.WithTranscriberLogger(logger))
			if err != nil {
				return fmt.Errorf("failed to create speech client: %w", err)
			}
			e.Transcriber = t
		}
	}

	if e.Translator == nil {
		t, err := google.NewTranslator(ctx, auth,
			google.WithTranslatorRetrier(retrier),
			google.WithTranslatorLogger(logger))
		if err != nil {
			return fmt.Errorf("failed to create translation client: %w", err)
		}
		e.Translator = t
	}
	if cfg.Translation.CacheSize > 0 {
		cached, err := cache.NewTranslationCache(e.Translator, cfg.Translation.CacheSize)
		if err != nil {
			return fmt.Errorf("failed to create translation cache: %w", err)
		}
		e.Translator = cached
	}

	if e.Synthesizer == nil {
		s, err := google.NewSynthesizer(ctx, auth,
			google.WithVoices(cfg.Synthesis.Voices),
			google.WithSynthesizerRetrier(retrier),
			google.WithSynthesizerLogger(logger))
		if err != nil {
			return fmt.Errorf("failed to create text-to-speech client: %w", err)
		}
		e.Synthesizer = s
	}
	return nil
}
