package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	apppipeline "dubbing-service/application/pipeline"
	"dubbing-service/domain/artifact"
	"dubbing-service/domain/pipeline"
)

// Pipeline is the orchestrator the handlers call
type Pipeline interface {
	Extract(ctx context.Context, in apppipeline.ExtractInput) (*apppipeline.ExtractOutput, error)
	Translate(ctx context.Context, in apppipeline.TranslateInput) (*apppipeline.TranslateOutput, error)
	Synthesize(ctx context.Context, in apppipeline.SynthesizeInput) (*apppipeline.SynthesizeOutput, error)
	Merge(ctx context.Context, in apppipeline.MergeInput) (*apppipeline.MergeOutput, error)
	Session(ctx context.Context, id string) (*pipeline.Session, error)
	Open(ctx context.Context, bucket artifact.Bucket, name string) (artifact.Object, error)
}

// Config contains HTTP server settings
type Config struct {
	Address         string
	PublicURL       string // base for absolute artifact URLs; derived from the request when empty
	MaxUploadBytes  int64
	CORSOrigins     []string
	StageTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Server serves the dubbing API
type Server struct {
	cfg        Config
	pipeline   Pipeline
	logger     *slog.Logger
	gatherer   prometheus.Gatherer
	health     func(ctx context.Context) error
	engine     *gin.Engine
	httpServer *http.Server
}

// Option is a functional option for configuring Server
type Option func(*Server)

// WithLogger sets the structured logger
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// WithGatherer sets the registry served at /metrics
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// WithHealthCheck makes /healthz report the result of check
func WithHealthCheck(check func(ctx context.Context) error) Option {
	return func(s *Server) {
		s.health = check
	}
}

// NewServer creates the server and registers every route
func NewServer(cfg Config, p Pipeline, opts ...Option) *Server {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 1 << 30
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}

	s := &Server{
		cfg:      cfg,
		pipeline: p,
		logger:   slog.Default(),
		gatherer: prometheus.DefaultGatherer,
	}
	for _, opt := range opts {
		opt(s)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestID())
	engine.Use(accessLog(s.logger))
	engine.Use(cors.New(corsConfig(cfg.CORSOrigins)))
	engine.MaxMultipartMemory = 32 << 20

	engine.GET("/audio/:filename", s.serveArtifact(artifact.BucketAudio))
	engine.GET("/merged/:filename", s.serveArtifact(artifact.BucketMerged))
	engine.POST("/extract-audio", s.extractAudio)
	engine.POST("/translate-text", s.translateText)
	engine.POST("/text-to-audio", s.textToAudio)
	engine.POST("/merge-audio-video", s.mergeAudioVideo)
	engine.GET("/sessions/:id", s.getSession)
	engine.GET("/healthz", s.healthz)
	engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, errorResponse{Error: "route not found", Kind: string(pipeline.KindNotFound)})
	})

	s.engine = engine
	s.httpServer = &http.Server{
		Addr:              cfg.Address,
		Handler:           engine,
		ReadHeaderTimeout: 30 * time.Second,
	}
	return s
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", "Range", headerSessionID, headerRequestID},
		ExposeHeaders: []string{"Content-Length", "Content-Range", headerSessionID, headerRequestID},
		MaxAge:        12 * time.Hour,
	}
	for _, o := range origins {
		if o == "*" {
			cfg.AllowAllOrigins = true
			return cfg
		}
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	return cfg
}

// Handler returns the routed handler, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.engine
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "address", s.cfg.Address)
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down http server", "timeout", s.cfg.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

func (s *Server) stageContext(c *gin.Context) (context.Context, context.CancelFunc) {
	if s.cfg.StageTimeout > 0 {
		return context.WithTimeout(c.Request.Context(), s.cfg.StageTimeout)
	}
	return context.WithCancel(c.Request.Context())
}

func (s *Server) healthz(c *gin.Context) {
	if s.health != nil {
		if err := s.health(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
