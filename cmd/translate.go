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
	translateSession  string
	translateText     string
	translateTextFile string
	translateLang     string
)

var translateCmd = &cobra.Command{
	Use:   "translate",
	Short: "Translate a transcript",
	Long: `Translate text into the target language and store it in the session.

Without --text or --text-file the session's transcript is translated.

Example:
  dubbing-service translate --session 3f2a... --lang es
  dubbing-service translate --text "Hello everyone" --lang de`,
	RunE: runTranslate,
}

func init() {
	rootCmd.AddCommand(translateCmd)
	translateCmd.Flags().StringVar(&translateSession, "session", "", "Session id from extract-audio")
	translateCmd.Flags().StringVar(&translateText, "text", "", "Text to translate")
	translateCmd.Flags().StringVar(&translateTextFile, "text-file", "", "File containing the text to translate")
	translateCmd.Flags().StringVar(&translateLang, "lang", "", "Target language code (default from config)")
}

func runTranslate(cmd *cobra.Command, args []string) error {
	app, err := openApp(cmd, false)
	if err != nil {
		return err
	}

	return RunTranslateWithDependencies(
		cmd.Context(),
		app.Pipeline,
		translateSession,
		translateText,
		translateTextFile,
		translateLang,
		os.Stdout,
	)
}

// RunTranslateWithDependencies runs the translate command with injected dependencies (for testing)
func RunTranslateWithDependencies(
	ctx context.Context,
	svc StageService,
	sessionID, text, textFile, lang string,
	output OutputWriter,
) error {
	text, err := loadText(ctx, svc, text, textFile, sessionID, func(n artifact.Names) (string, error) {
		return n.Transcript(), nil
	})
	if err != nil {
		return err
	}

	out, err := svc.Translate(ctx, apppipeline.TranslateInput{
		SessionID:      sessionID,
		Transcription:  text,
		TargetLanguage: lang,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(output, "Session:    %s\n", out.Session.ID)
	fmt.Fprintf(output, "Translated: %s\n", out.Text)
	if out.DetectedSourceLanguage != "" {
		fmt.Fprintf(output, "Source:     %s\n", out.DetectedSourceLanguage)
	}
	printWarnings(output, out.Warnings)
	fmt.Fprintf(output, "\n%s\n", out.TranslatedText)
	return nil
}
