package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"dubbing-service/infrastructure/config"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// DefaultOutput is the default output writer for config commands
var DefaultOutput OutputWriter = os.Stdout

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and manage the configuration",
	Long: `Show or validate the effective configuration, and manage pinned
synthesis voices and allowed CORS origins in the configuration file.

Examples:
  dubbing-service config show
  dubbing-service config validate
  dubbing-service config list voices
  dubbing-service config add voice --lang es --name es-ES-Standard-A
  dubbing-service config remove origin http://localhost:3000`,
}

func init() {
	rootCmd.AddCommand(configCmd)

	// Add subcommands
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
	configCmd.AddCommand(configAddCmd)
	configCmd.AddCommand(configListCmd)
	configCmd.AddCommand(configRemoveCmd)
	configCmd.AddCommand(configUpdateCmd)
}

// fileConfig loads the config file itself, without environment overrides,
// so that saving it never persists secrets taken from the environment
func fileConfig() (*config.Config, error) {
	c, err := config.Load(cfgPath())
	if err != nil {
		return nil, fmt.Errorf("config file not found. Run '%s setup' first: %w", rootCmd.Name(), err)
	}
	return c, nil
}

// --- SHOW command ---

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration with secrets masked",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := GetConfig()
		if err != nil {
			return err
		}
		return RunConfigShowWithDependencies(c, DefaultOutput)
	},
}

// RunConfigShowWithDependencies prints cfg as YAML with secrets masked
func RunConfigShowWithDependencies(c *config.Config, out OutputWriter) error {
	data, err := yaml.Marshal(c.Masked())
	if err != nil {
		return fmt.Errorf("failed to render config: %w", err)
	}
	_, err = out.Write(data)
	return err
}

// --- VALIDATE command ---

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := GetConfig()
		if err != nil {
			return err
		}
		return RunConfigValidateWithDependencies(c, DefaultOutput)
	},
}

// RunConfigValidateWithDependencies reports every problem in cfg
func RunConfigValidateWithDependencies(c *config.Config, out OutputWriter) error {
	if err := c.Validate(); err != nil {
		fmt.Fprintf(out, "Configuration is invalid:\n%v\n", err)
		return fmt.Errorf("configuration is invalid")
	}
	fmt.Fprintln(out, "Configuration is valid.")
	return nil
}

// --- ADD command ---

var (
	addLang string
	addName string
)

var configAddCmd = &cobra.Command{
	Use:   "add [voice|origin]",
	Short: "Add a new config entry",
	Long: `Pin a synthesis voice for a language, or allow a browser origin.

Examples:
  dubbing-service config add voice --lang es --name es-ES-Standard-A
  dubbing-service config add origin http://localhost:3000`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runConfigAdd,
}

func init() {
	configAddCmd.Flags().StringVar(&addLang, "lang", "", "Language code (voice)")
	configAddCmd.Flags().StringVar(&addName, "name", "", "Voice name (voice)")
}

func runConfigAdd(cmd *cobra.Command, args []string) error {
	c, err := fileConfig()
	if err != nil {
		return err
	}

	value := ""
	if len(args) > 1 {
		value = args[1]
	}
	return RunConfigAddWithDependencies(c, cfgPath(), args[0], addLang, addName, value, DefaultOutput)
}

// RunConfigAddWithDependencies runs the add command with injected dependencies
func RunConfigAddWithDependencies(c *config.Config, configPath, entityType, lang, name, origin string, out OutputWriter) error {
	mgr := config.NewConfigManager(c, configPath)

	switch entityType {
	case "voice":
		if lang == "" || name == "" {
			return fmt.Errorf("--lang and --name are required for voices")
		}
		if err := mgr.AddVoice(lang, name); err != nil {
			return err
		}
		fmt.Fprintf(out, "Added voice for %q: %s\n", lang, name)

	case "origin":
		if origin == "" {
			return fmt.Errorf("an origin is required, e.g. config add origin http://localhost:3000")
		}
		if err := mgr.AddOrigin(origin); err != nil {
			return err
		}
		fmt.Fprintf(out, "Added origin %s\n", origin)

	default:
		return fmt.Errorf("unknown entity type %q. Use voice or origin", entityType)
	}

	return nil
}

// --- LIST command ---

var configListCmd = &cobra.Command{
	Use:   "list [voices|origins]",
	Short: "List config entries",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := fileConfig()
		if err != nil {
			return err
		}
		return RunConfigListWithDependencies(c, cfgPath(), args[0], DefaultOutput)
	},
}

// RunConfigListWithDependencies runs the list command with injected dependencies
func RunConfigListWithDependencies(c *config.Config, configPath, entityType string, out OutputWriter) error {
	mgr := config.NewConfigManager(c, configPath)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	switch entityType {
	case "voices":
		voices := mgr.ListVoices()
		if len(voices) == 0 {
			fmt.Fprintln(out, "No voices pinned; the engine default is used for every language.")
			return nil
		}
		fmt.Fprintln(w, "LANGUAGE\tVOICE")
		for _, v := range voices {
			fmt.Fprintf(w, "%s\t%s\n", v.Language, v.Name)
		}

	case "origins":
		origins := mgr.ListOrigins()
		if len(origins) == 0 {
			fmt.Fprintln(out, "No origins configured; every origin is allowed.")
			return nil
		}
		fmt.Fprintln(w, "ORIGIN")
		for _, o := range origins {
			fmt.Fprintln(w, o)
		}

	default:
		return fmt.Errorf("unknown entity type %q. Use voices or origins", entityType)
	}

	return w.Flush()
}

// --- REMOVE command ---

var configRemoveCmd = &cobra.Command{
	Use:   "remove [voice|origin] <key>",
	Short: "Remove a config entry",
	Long: `Remove a pinned voice (by language) or an allowed origin.

Examples:
  dubbing-service config remove voice es
  dubbing-service config remove origin http://localhost:3000`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := fileConfig()
		if err != nil {
			return err
		}
		return RunConfigRemoveWithDependencies(c, cfgPath(), args[0], args[1], DefaultOutput)
	},
}

// RunConfigRemoveWithDependencies runs the remove command with injected dependencies
func RunConfigRemoveWithDependencies(c *config.Config, configPath, entityType, key string, out OutputWriter) error {
	mgr := config.NewConfigManager(c, configPath)

	switch entityType {
	case "voice":
		if err := mgr.RemoveVoice(key); err != nil {
			return err
		}
		fmt.Fprintf(out, "Removed voice for %q\n", key)

	case "origin":
		if err := mgr.RemoveOrigin(key); err != nil {
			return err
		}
		fmt.Fprintf(out, "Removed origin %s\n", key)

	default:
		return fmt.Errorf("unknown entity type %q. Use voice or origin", entityType)
	}

	return nil
}

// --- UPDATE command ---

var updateName string

var configUpdateCmd = &cobra.Command{
	Use:   "update voice <lang>",
	Short: "Change the pinned voice of a language",
	Long: `Example:
  dubbing-service config update voice es --name es-ES-Wavenet-B`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := fileConfig()
		if err != nil {
			return err
		}
		if updateName == "" {
			return fmt.Errorf("--name is required")
		}
		return RunConfigUpdateWithDependencies(c, cfgPath(), args[0], args[1], updateName, DefaultOutput)
	},
}

func init() {
	configUpdateCmd.Flags().StringVar(&updateName, "name", "", "New voice name")
}

// RunConfigUpdateWithDependencies runs the update command with injected dependencies
func RunConfigUpdateWithDependencies(c *config.Config, configPath, entityType, key, name string, out OutputWriter) error {
	if entityType != "voice" {
		return fmt.Errorf("unknown entity type %q. Only voices can be updated", entityType)
	}
	mgr := config.NewConfigManager(c, configPath)
	if err := mgr.UpdateVoice(key, name); err != nil {
		return err
	}
	fmt.Fprintf(out, "Updated voice for %q: %s\n", key, name)
	return nil
}

func cfgPath() string {
	if cfgFile == "" {
		return defaultConfigPath
	}
	return cfgFile
}
