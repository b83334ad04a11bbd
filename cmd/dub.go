package cmd

import (
	"context"
	"fmt"
	"os"

	"dubbing-service/application/dub"
	"dubbing-service/domain/artifact"
	"dubbing-service/domain/media"
	"dubbing-service/infrastructure/filesystem"

	"github.com/spf13/cobra"
)

var (
	dubVideoPath string
	dubLang      string
	dubLanguage  string
)

var dubCmd = &cobra.Command{
	Use:   "dub",
	Short: "Dub a video end to end",
	Long: `Run the complete dubbing workflow on a local video:
1. Extract the audio track and transcribe the speech
2. Translate the transcript to the target language
3. Synthesize the translation as speech
4. Merge the synthesized speech into the video

If a step fails, the commands to finish the remaining steps manually are printed.

Example:
  dubbing-service dub --video talk.mp4 --lang es
  dubbing-service dub --video talk.mp4 --lang de --language en-GB`,
	RunE: runDub,
}

func init() {
	rootCmd.AddCommand(dubCmd)
	dubCmd.Flags().StringVar(&dubVideoPath, "video", "", "Path to the source video file (required)")
	dubCmd.Flags().StringVar(&dubLang, "lang", "", "Target language code (required)")
	dubCmd.Flags().StringVar(&dubLanguage, "language", "", "Recognition locale of the source speech (default from config)")
	dubCmd.MarkFlagRequired("video")
	dubCmd.MarkFlagRequired("lang")
}

func runDub(cmd *cobra.Command, args []string) error {
	app, err := openApp(cmd, true)
	if err != nil {
		return err
	}

	var pather artifact.LocalPather
	if lp, ok := app.Store.(artifact.LocalPather); ok {
		pather = lp
	}

	return RunDubWithDependencies(
		cmd.Context(),
		app.Pipeline,
		filesystem.NewChecker(),
		pather,
		dub.Input{
			VideoPath:      dubVideoPath,
			TargetLanguage: dubLang,
			LanguageHint:   dubLanguage,
		},
		os.Stdout,
	)
}

// RunDubWithDependencies runs the dub command with injected dependencies (for testing).
// pather is optional and only used to print where the merged video landed.
func RunDubWithDependencies(
	ctx context.Context,
	stages dub.Stages,
	fileChecker media.FileChecker,
	pather artifact.LocalPather,
	input dub.Input,
	output OutputWriter,
) error {
	service := dub.NewService(stages, fileChecker, output, rootCmd.Name())

	result, err := service.Dub(ctx, input)
	if err != nil {
		return err
	}

	fmt.Fprintf(output, "Transcription: %s\n", preview(result.Transcription, 80))
	fmt.Fprintf(output, "Translation:   %s\n", preview(result.TranslatedText, 80))
	if pather != nil {
		if path, err := pather.LocalPath(result.Merged.Bucket, result.Merged.Name); err == nil {
			fmt.Fprintf(output, "Dubbed video:  %s\n", path)
			return nil
		}
	}
	fmt.Fprintf(output, "Dubbed video:  %s\n", result.Merged)
	return nil
}
