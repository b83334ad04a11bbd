package cmd

import (
	"context"
	"fmt"
	"os"

	apppipeline "dubbing-service/application/pipeline"
	"dubbing-service/domain/artifact"

	"github.com/spf13/cobra"
)

var (
	mergeSession string
	mergeAudio   string
)

var mergeCmd = &cobra.Command{
	Use:   "merge",
	Short: "Replace the audio track of the session's video",
	Long: `Merge synthesized audio into the session's source video.

--audio accepts an artifact name, a path or a served URL. When omitted and
the session has exactly one target language, its synthesized audio is used.

Example:
  dubbing-service merge --session 3f2a... --audio 3f2a..._translated_es.mp3`,
	RunE: runMerge,
}

func init() {
	rootCmd.AddCommand(mergeCmd)
	mergeCmd.Flags().StringVar(&mergeSession, "session", "", "Session id from extract-audio (required)")
	mergeCmd.Flags().StringVar(&mergeAudio, "audio", "", "Synthesized audio artifact")
	mergeCmd.MarkFlagRequired("session")
}

func runMerge(cmd *cobra.Command, args []string) error {
	app, err := openApp(cmd, true)
	if err != nil {
		return err
	}

	return RunMergeWithDependencies(cmd.Context(), app.Pipeline, mergeSession, mergeAudio, os.Stdout)
}

// RunMergeWithDependencies runs the merge command with injected dependencies (for testing)
func RunMergeWithDependencies(ctx context.Context, svc StageService, sessionID, audioRef string, output OutputWriter) error {
	if audioRef == "" {
		lang, err := onlyLanguage(ctx, svc, sessionID)
		if err != nil {
			return err
		}
		audioRef = artifact.Names{Session: sessionID}.SynthesizedAudio(lang, "")
	}

	fmt.Fprintf(output, "Merging %s into the session video...\n", audioRef)

	out, err := svc.Merge(ctx, apppipeline.MergeInput{
		SessionID: sessionID,
		AudioRef:  audioRef,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(output, "Session: %s\n", out.Session.ID)
	fmt.Fprintf(output, "Merged:  %s\n", out.Merged)
	printWarnings(output, out.Warnings)
	return nil
}
