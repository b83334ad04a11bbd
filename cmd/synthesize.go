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
	synthesizeSession  string
	synthesizeText     string
	synthesizeTextFile string
	synthesizeLang     string
)

var synthesizeCmd = &cobra.Command{
	Use:   "synthesize",
	Short: "Synthesize translated text as speech",
	Long: `Turn translated text into speech audio stored in the session.

Without --text or --text-file the session's translation for --lang is used.

Example:
  dubbing-service synthesize --session 3f2a... --lang es
  dubbing-service synthesize --text "Hola a todos" --lang es`,
	RunE: runSynthesize,
}

func init() {
	rootCmd.AddCommand(synthesizeCmd)
	synthesizeCmd.Flags().StringVar(&synthesizeSession, "session", "", "Session id from extract-audio")
	synthesizeCmd.Flags().StringVar(&synthesizeText, "text", "", "Text to speak")
	synthesizeCmd.Flags().StringVar(&synthesizeTextFile, "text-file", "", "File containing the text to speak")
	synthesizeCmd.Flags().StringVar(&synthesizeLang, "lang", "", "Language of the text (default from config)")
}

func runSynthesize(cmd *cobra.Command, args []string) error {
	app, err := openApp(cmd, false)
	if err != nil {
		return err
	}

	return RunSynthesizeWithDependencies(
		cmd.Context(),
		app.Pipeline,
		synthesizeSession,
		synthesizeText,
		synthesizeTextFile,
		synthesizeLang,
		os.Stdout,
	)
}

// RunSynthesizeWithDependencies runs the synthesize command with injected dependencies (for testing)
func RunSynthesizeWithDependencies(
	ctx context.Context,
	svc StageService,
	sessionID, text, textFile, lang string,
	output OutputWriter,
) error {
	text, err := loadText(ctx, svc, text, textFile, sessionID, func(n artifact.Names) (string, error) {
		if lang == "" {
			l, err := onlyLanguage(ctx, svc, n.Session)
			if err != nil {
				return "", err
			}
			lang = l
		}
		return n.TranslatedText(lang), nil
	})
	if err != nil {
		return err
	}

	out, err := svc.Synthesize(ctx, apppipeline.SynthesizeInput{
		SessionID: sessionID,
		Text:      text,
		Language:  lang,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(output, "Session: %s\n", out.Session.ID)
	fmt.Fprintf(output, "Audio:   %s\n", out.Audio)
	fmt.Fprintf(output, "\nNext: dubbing-service merge --session %s --audio %s\n", out.Session.ID, out.Audio.Name)
	return nil
}
