package cmd

import (
	"fmt"
	"os"
	"strings"

	"dubbing-service/domain/artifact"
	"dubbing-service/infrastructure/config"

	"github.com/AlecAivazis/survey/v2"
	"github.com/spf13/cobra"
)

// Prompter interface for interactive prompts (allows mocking in tests)
type Prompter interface {
	Input(message string, defaultValue string) (string, error)
	Confirm(message string, defaultValue bool) (bool, error)
	Select(message string, options []string, defaultValue string) (string, error)
}

// SurveyPrompter implements Prompter using the survey library
type SurveyPrompter struct{}

func (p *SurveyPrompter) Input(message string, defaultValue string) (string, error) {
	result := ""
	prompt := &survey.Input{
		Message: message,
		Default: defaultValue,
	}
	if err := survey.AskOne(prompt, &result); err != nil {
		return "", err
	}
	return result, nil
}

func (p *SurveyPrompter) Confirm(message string, defaultValue bool) (bool, error) {
	result := defaultValue
	prompt := &survey.Confirm{
		Message: message,
		Default: defaultValue,
	}
	if err := survey.AskOne(prompt, &result); err != nil {
		return false, err
	}
	return result, nil
}

func (p *SurveyPrompter) Select(message string, options []string, defaultValue string) (string, error) {
	result := ""
	prompt := &survey.Select{
		Message: message,
		Options: options,
		Default: defaultValue,
	}
	if err := survey.AskOne(prompt, &result); err != nil {
		return "", err
	}
	return result, nil
}

// DefaultPrompter is the prompter used in production
var DefaultPrompter Prompter = &SurveyPrompter{}

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Create configuration file interactively",
	Long: `Prompts for configuration values and creates config.yaml.

This command guides you through choosing where artifacts are stored,
which speech engine transcribes uploads, and how to reach Google Cloud.
Everything not asked for keeps its default.`,
	RunE: runSetup,
}

func init() {
	rootCmd.AddCommand(setupCmd)
}

func runSetup(cmd *cobra.Command, args []string) error {
	return RunSetupWithPrompter(DefaultPrompter, cfgPath(), DefaultOutput)
}

// RunSetupWithPrompter runs the setup with a given prompter (for testing)
func RunSetupWithPrompter(prompter Prompter, configPath string, out OutputWriter) error {
	// Check if config already exists
	if _, err := os.Stat(configPath); err == nil {
		overwrite, err := prompter.Confirm("config.yaml already exists. Overwrite?", false)
		if err != nil {
			return fmt.Errorf("prompt cancelled")
		}
		if !overwrite {
			fmt.Fprintln(out, "Setup cancelled.")
			return nil
		}
	}

	fmt.Fprintln(out, "Welcome to dubbing-service setup!")
	fmt.Fprintln(out)

	cfg := config.Default()

	if err := promptServer(prompter, cfg); err != nil {
		return err
	}
	if err := promptStorage(prompter, cfg); err != nil {
		return err
	}
	if err := promptSpeech(prompter, cfg); err != nil {
		return err
	}
	if err := promptGoogle(prompter, cfg); err != nil {
		return err
	}
	if err := promptLanguages(prompter, cfg); err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration is invalid:\n%w", err)
	}

	// Save configuration
	if err := config.Save(cfg, configPath); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	fmt.Fprintln(out)
	fmt.Fprintf(out, "Configuration saved to %s\n", configPath)
	if cfg.Storage.Backend == config.BackendMinio {
		fmt.Fprintln(out, "Set MINIO_ACCESS_KEY and MINIO_SECRET_KEY in the environment or .env.")
	}
	return nil
}

func promptServer(prompter Prompter, cfg *config.Config) error {
	address, err := prompter.Input("Address to listen on?", cfg.Server.Address)
	if err != nil {
		return fmt.Errorf("prompt cancelled")
	}
	if address != "" {
		cfg.Server.Address = address
	}

	publicURL, err := prompter.Input("Public base URL for artifact links (blank to use the request host)?", "")
	if err != nil {
		return fmt.Errorf("prompt cancelled")
	}
	cfg.Server.PublicURL = strings.TrimRight(publicURL, "/")
	return nil
}

func promptStorage(prompter Prompter, cfg *config.Config) error {
	backend, err := prompter.Select("Where should artifacts be stored?",
		[]string{config.BackendFilesystem, config.BackendMinio, config.BackendDrive}, config.BackendFilesystem)
	if err != nil {
		return fmt.Errorf("prompt cancelled")
	}
	cfg.Storage.Backend = backend

	switch backend {
	case config.BackendFilesystem:
		root, err := prompter.Input("Directory to keep artifacts under?", cfg.Storage.Filesystem.Root)
		if err != nil {
			return fmt.Errorf("prompt cancelled")
		}
		if root != "" {
			cfg.Storage.Filesystem.Root = root
		}

	case config.BackendMinio:
		endpoint, err := prompter.Input("MinIO endpoint (host:port)?", "localhost:9000")
		if err != nil {
			return fmt.Errorf("prompt cancelled")
		}
		if endpoint == "" {
			return fmt.Errorf("minio endpoint is required")
		}
		cfg.Storage.Minio.Endpoint = endpoint

		useSSL, err := prompter.Confirm("Use TLS for MinIO?", false)
		if err != nil {
			return fmt.Errorf("prompt cancelled")
		}
		cfg.Storage.Minio.UseSSL = useSSL

	case config.BackendDrive:
		folder, err := prompter.Input("Google Drive folder ID to store artifacts in?", "")
		if err != nil {
			return fmt.Errorf("prompt cancelled")
		}
		if folder == "" {
			return fmt.Errorf("folder ID is required")
		}
		cfg.Storage.Drive.FolderID = folder
	}
	return nil
}

func promptSpeech(prompter Prompter, cfg *config.Config) error {
	provider, err := prompter.Select("Which engine should transcribe speech?",
		[]string{config.ProviderGoogle, config.ProviderOpenAI}, config.ProviderGoogle)
	if err != nil {
		return fmt.Errorf("prompt cancelled")
	}
	cfg.Speech.Provider = provider

	if provider == config.ProviderOpenAI {
		key, err := prompter.Input("OpenAI API key (blank to read OPENAI_API_KEY)?", "")
		if err != nil {
			return fmt.Errorf("prompt cancelled")
		}
		if key == "" {
			key = os.Getenv("OPENAI_API_KEY")
		}
		if key == "" {
			return fmt.Errorf("an OpenAI API key is required for the openai provider")
		}
		cfg.OpenAI.APIKey = key
	}

	strict, err := prompter.Confirm("Fail requests when recognition or translation fails (instead of using placeholder text)?", false)
	if err != nil {
		return fmt.Errorf("prompt cancelled")
	}
	if strict {
		cfg.Speech.OnFailure = config.PolicyFail
		cfg.Translation.OnFailure = config.PolicyFail
	}
	return nil
}

func promptGoogle(prompter Prompter, cfg *config.Config) error {
	credentials, err := prompter.Input("Path to Google service account credentials (blank for application default)?", "")
	if err != nil {
		return fmt.Errorf("prompt cancelled")
	}
	cfg.Google.CredentialsFile = credentials
	return nil
}

func promptLanguages(prompter Prompter, cfg *config.Config) error {
	locale, err := prompter.Input("Recognition locale of uploaded speech?", cfg.Speech.Language)
	if err != nil {
		return fmt.Errorf("prompt cancelled")
	}
	if locale != "" {
		if !artifact.ValidLanguage(locale) {
			return fmt.Errorf("invalid locale %q", locale)
		}
		cfg.Speech.Language = locale
	}

	target, err := prompter.Input("Default translation target language?", cfg.Translation.DefaultTarget)
	if err != nil {
		return fmt.Errorf("prompt cancelled")
	}
	if target != "" {
		if !artifact.ValidLanguage(target) {
			return fmt.Errorf("invalid language %q", target)
		}
		cfg.Translation.DefaultTarget = target
	}

	policy, err := prompter.Select("When dubbed audio and video lengths differ, the output should",
		[]string{"shortest", "pad", "longest"}, cfg.Media.MergePolicy)
	if err != nil {
		return fmt.Errorf("prompt cancelled")
	}
	cfg.Media.MergePolicy = policy
	return nil
}
