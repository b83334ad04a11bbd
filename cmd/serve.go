package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dubbing-service/infrastructure/httpapi"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

var serveAddress string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the dubbing HTTP service",
	Long: `Start the HTTP service that exposes the four dubbing stages:

  POST /extract-audio       multipart upload (field "video")
  POST /translate-text      {"transcription", "targetLanguage"}
  POST /text-to-audio       {"translatedText", "language"}
  POST /merge-audio-video   {"audioPath"}
  GET  /audio/:filename     serve an audio artifact
  GET  /merged/:filename    serve a merged video

Every stage accepts a sessionId (body field or X-Session-ID header).

Example:
  dubbing-service serve --address :5001`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddress, "address", "", "Listen address (default from config, :5001)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := GetConfig()
	if err != nil {
		return err
	}
	if serveAddress != "" {
		cfg.Server.Address = serveAddress
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := buildApp(ctx, cfg, os.Stderr, Engines{})
	if err != nil {
		return err
	}

	// Verify ffmpeg is available
	verifyCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := app.Shell.VerifyInstalled(verifyCtx); err != nil {
		return fmt.Errorf("ffmpeg verification failed: %w", err)
	}

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	server := httpapi.NewServer(httpapi.Config{
		Address:         cfg.Server.Address,
		PublicURL:       cfg.Server.PublicURL,
		MaxUploadBytes:  cfg.Server.MaxUploadMB << 20,
		CORSOrigins:     cfg.Server.CORSOrigins,
		StageTimeout:    cfg.Server.StageTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, app.Pipeline,
		httpapi.WithLogger(app.Logger),
		httpapi.WithGatherer(app.Registry),
		httpapi.WithHealthCheck(app.Shell.VerifyInstalled),
	)

	app.Logger.Info("starting dubbing service",
		"address", cfg.Server.Address,
		"storage", cfg.Storage.Backend,
		"speech_provider", cfg.Speech.Provider,
		"merge_policy", cfg.Media.MergePolicy)
	return server.ListenAndServe(ctx)
}
