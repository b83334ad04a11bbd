package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"dubbing-service/application/dub"
	apppipeline "dubbing-service/application/pipeline"
	"dubbing-service/domain/media"
	"dubbing-service/infrastructure/filesystem"

	"github.com/spf13/cobra"
)

var (
	extractVideoPath string
	extractLanguage  string
)

var extractAudioCmd = &cobra.Command{
	Use:   "extract-audio",
	Short: "Extract the audio track of a video and transcribe it",
	Long: `Upload a local video into a new session, extract its audio track and
transcribe the speech.

The session id printed at the end is used by translate, synthesize and merge.

Example:
  dubbing-service extract-audio --video talk.mp4
  dubbing-service extract-audio --video talk.mp4 --language es-ES`,
	RunE: runExtractAudio,
}

func init() {
	rootCmd.AddCommand(extractAudioCmd)
	extractAudioCmd.Flags().StringVar(&extractVideoPath, "video", "", "Path to the source video file (required)")
	extractAudioCmd.Flags().StringVar(&extractLanguage, "language", "", "Recognition locale of the speech (default from config)")
	extractAudioCmd.MarkFlagRequired("video")
}

func runExtractAudio(cmd *cobra.Command, args []string) error {
	app, err := openApp(cmd, true)
	if err != nil {
		return err
	}

	return RunExtractAudioWithDependencies(
		cmd.Context(),
		app.Pipeline,
		filesystem.NewChecker(),
		extractVideoPath,
		extractLanguage,
		os.Stdout,
	)
}

// RunExtractAudioWithDependencies runs the extract-audio command with injected dependencies (for testing)
func RunExtractAudioWithDependencies(
	ctx context.Context,
	stages dub.Stages,
	fileChecker media.FileChecker,
	videoPath string,
	language string,
	output OutputWriter,
) error {
	if !fileChecker.Exists(videoPath) {
		return fmt.Errorf("video file not found: %s", videoPath)
	}

	f, err := os.Open(videoPath)
	if err != nil {
		return fmt.Errorf("failed to open video: %w", err)
	}
	defer f.Close()

	fmt.Fprintf(output, "Extracting audio from %s...\n", videoPath)

	out, err := stages.Extract(ctx, apppipeline.ExtractInput{
		Filename:     filepath.Base(videoPath),
		Video:        f,
		LanguageHint: language,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(output, "Session:    %s\n", out.Session.ID)
	fmt.Fprintf(output, "Audio:      %s\n", out.OriginalAudio)
	fmt.Fprintf(output, "Transcript: %s\n", out.Transcript)
	printWarnings(output, out.Warnings)
	fmt.Fprintf(output, "\nTranscription:\n%s\n", out.Transcription)
	fmt.Fprintf(output, "\nNext: dubbing-service translate --session %s --lang <code>\n", out.Session.ID)
	return nil
}
