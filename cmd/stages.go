package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"dubbing-service/application/dub"
	"dubbing-service/domain/artifact"
	"dubbing-service/domain/pipeline"

	"github.com/spf13/cobra"
)

// StageService is the orchestrator as the local stage commands use it
type StageService interface {
	dub.Stages
	Session(ctx context.Context, id string) (*pipeline.Session, error)
	Open(ctx context.Context, bucket artifact.Bucket, name string) (artifact.Object, error)
}

// openApp builds the production graph for a local stage command.
// withMedia verifies ffmpeg first.
func openApp(cmd *cobra.Command, withMedia bool) (*App, error) {
	cfg, err := GetConfig()
	if err != nil {
		return nil, err
	}

	ctx := cmd.Context()
	app, err := buildApp(ctx, cfg, os.Stderr, Engines{})
	if err != nil {
		return nil, err
	}

	if withMedia {
		verifyCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := app.Shell.VerifyInstalled(verifyCtx); err != nil {
			return nil, fmt.Errorf("ffmpeg verification failed: %w", err)
		}
	}
	return app, nil
}

// loadText returns the text to work on: --text, then --text-file, then the
// session artifact named by artifactName
func loadText(ctx context.Context, svc StageService, text, textFile, sessionID string, artifactName func(artifact.Names) (string, error)) (string, error) {
	if text != "" {
		return text, nil
	}
	if textFile != "" {
		data, err := os.ReadFile(textFile)
		if err != nil {
			return "", fmt.Errorf("failed to read text file: %w", err)
		}
		return string(data), nil
	}
	if sessionID == "" {
		return "", fmt.Errorf("one of --text, --text-file or --session is required")
	}

	sess, err := svc.Session(ctx, sessionID)
	if err != nil {
		return "", err
	}
	name, err := artifactName(artifact.Names{Session: sess.ID, Stem: sess.Stem})
	if err != nil {
		return "", err
	}

	obj, err := svc.Open(ctx, artifact.BucketAudio, name)
	if err != nil {
		return "", fmt.Errorf("failed to load %s from session %s: %w", name, sess.ID, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", name, err)
	}
	return string(data), nil
}

// onlyLanguage returns the session's target language when there is exactly one
func onlyLanguage(ctx context.Context, svc StageService, sessionID string) (string, error) {
	sess, err := svc.Session(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if len(sess.Languages) != 1 {
		return "", fmt.Errorf("session %s has languages %v; choose one with --lang", sess.ID, sess.Languages)
	}
	return sess.Languages[0], nil
}

func printWarnings(out OutputWriter, warnings []pipeline.Warning) {
	for _, w := range warnings {
		fmt.Fprintf(out, "Warning (%s): %s\n", w.Code, w.Message)
	}
}

func preview(text string, max int) string {
	text = strings.TrimSpace(text)
	if len(text) <= max {
		return text
	}
	return text[:max] + "..."
}
