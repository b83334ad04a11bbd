package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"dubbing-service/infrastructure/config"

	"github.com/spf13/cobra"
)

const defaultConfigPath = "config/config.yaml"

var (
	cfgFile string
	cfg     *config.Config
	cfgErr  error
)

var rootCmd = &cobra.Command{
	Use:   "dubbing-service",
	Short: "Dub a video into another language",
	Long: `dubbing-service turns a video into a dubbed version in another language:

  - Extract the audio track and transcribe the speech
  - Translate the transcript
  - Synthesize the translation as speech
  - Merge the synthesized speech back into the video

Run it as an HTTP service with 'serve', or run the stages locally.

Example:
  dubbing-service serve
  dubbing-service dub --video talk.mp4 --lang es`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config/config.yaml)")
}

func initConfig() {
	if err := config.LoadDotEnv(); err != nil {
		cfgErr = fmt.Errorf("failed to load .env: %w", err)
		return
	}

	explicit := cfgFile != ""
	if !explicit {
		cfgFile = defaultConfigPath
	}

	loaded, err := config.Load(cfgFile)
	switch {
	case err == nil:
		cfg = loaded
	case !explicit && errors.Is(err, fs.ErrNotExist):
		// the service runs on defaults when no file exists
		cfg = config.Default()
	default:
		cfgErr = err
		cfg = nil
		return
	}
	cfg.ApplyEnv()
}

// GetConfig returns the effective configuration: file, then defaults, then environment
func GetConfig() (*config.Config, error) {
	if cfgErr != nil {
		return nil, cfgErr
	}
	if cfg == nil {
		return nil, fmt.Errorf("configuration not loaded; ensure %s exists", cfgFile)
	}
	return cfg, nil
}

// OutputWriter allows capturing output in tests
type OutputWriter interface {
	Write(p []byte) (n int, err error)
}
