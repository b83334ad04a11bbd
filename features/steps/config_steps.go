//go:build integration

package steps

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"dubbing-service/cmd"
	"dubbing-service/infrastructure/config"

	"github.com/cucumber/godog"
)

// configContext holds test state for config scenarios
type configContext struct {
	dir        string
	configPath string
	config     *config.Config
	output     *bytes.Buffer
	err        error
}

// SharedConfigContext is reset before each scenario via Before hook
var SharedConfigContext *configContext

func getConfigContext() *configContext {
	return SharedConfigContext
}

func InitializeConfigScenario(ctx *godog.ScenarioContext) {
	ctx.Before(func(c context.Context, sc *godog.Scenario) (context.Context, error) {
		dir, err := os.MkdirTemp("", "dubbing-config-*")
		if err != nil {
			return c, err
		}
		SharedConfigContext = &configContext{
			dir:        dir,
			configPath: filepath.Join(dir, "config.yaml"),
			output:     &bytes.Buffer{},
		}
		return c, nil
	})

	ctx.After(func(c context.Context, sc *godog.Scenario, err error) (context.Context, error) {
		if cc := SharedConfigContext; cc != nil {
			os.RemoveAll(cc.dir)
		}
		SharedConfigContext = nil
		return c, nil
	})

	ctx.Step(`^a default configuration file$`, aDefaultConfigurationFile)
	ctx.Step(`^I pin the voice "([^"]*)" for "([^"]*)"$`, iPinTheVoiceFor)
	ctx.Step(`^I change the voice for "([^"]*)" to "([^"]*)"$`, iChangeTheVoiceForTo)
	ctx.Step(`^I remove the voice for "([^"]*)"$`, iRemoveTheVoiceFor)
	ctx.Step(`^I allow the origin "([^"]*)"$`, iAllowTheOrigin)
	ctx.Step(`^the saved configuration should pin "([^"]*)" for "([^"]*)"$`, theSavedConfigurationShouldPinFor)
	ctx.Step(`^the saved configuration should pin no voice for "([^"]*)"$`, theSavedConfigurationShouldPinNoVoiceFor)
	ctx.Step(`^the saved configuration should allow "([^"]*)"$`, theSavedConfigurationShouldAllow)
	ctx.Step(`^the config command should fail with "([^"]*)"$`, theConfigCommandShouldFailWith)
	ctx.Step(`^the saved configuration should be valid$`, theSavedConfigurationShouldBeValid)
}

func aDefaultConfigurationFile() error {
	c := getConfigContext()
	c.config = config.Default()
	return config.Save(c.config, c.configPath)
}

func iPinTheVoiceFor(voice, lang string) error {
	c := getConfigContext()
	c.err = cmd.RunConfigAddWithDependencies(c.config, c.configPath, "voice", lang, voice, "", c.output)
	return nil
}

func iChangeTheVoiceForTo(lang, voice string) error {
	c := getConfigContext()
	c.err = cmd.RunConfigUpdateWithDependencies(c.config, c.configPath, "voice", lang, voice, c.output)
	return nil
}

func iRemoveTheVoiceFor(lang string) error {
	c := getConfigContext()
	c.err = cmd.RunConfigRemoveWithDependencies(c.config, c.configPath, "voice", lang, c.output)
	return nil
}

func iAllowTheOrigin(origin string) error {
	c := getConfigContext()
	c.err = cmd.RunConfigAddWithDependencies(c.config, c.configPath, "origin", "", "", origin, c.output)
	return nil
}

func savedConfig() (*config.Config, error) {
	c := getConfigContext()
	if c.err != nil {
		return nil, fmt.Errorf("config command failed: %w", c.err)
	}
	return config.Load(c.configPath)
}

func theSavedConfigurationShouldPinFor(voice, lang string) error {
	saved, err := savedConfig()
	if err != nil {
		return err
	}
	if got := saved.Synthesis.Voices[lang]; got != voice {
		return fmt.Errorf("expected voice %q for %q, got %q", voice, lang, got)
	}
	return nil
}

func theSavedConfigurationShouldPinNoVoiceFor(lang string) error {
	saved, err := savedConfig()
	if err != nil {
		return err
	}
	if got, ok := saved.Synthesis.Voices[lang]; ok {
		return fmt.Errorf("expected no voice for %q, got %q", lang, got)
	}
	return nil
}

func theSavedConfigurationShouldAllow(origin string) error {
	saved, err := savedConfig()
	if err != nil {
		return err
	}
	for _, o := range saved.Server.CORSOrigins {
		if o == origin {
			return nil
		}
	}
	return fmt.Errorf("expected origin %q in %v", origin, saved.Server.CORSOrigins)
}

func theConfigCommandShouldFailWith(msg string) error {
	c := getConfigContext()
	if c.err == nil {
		return fmt.Errorf("expected error containing %q", msg)
	}
	if !bytes.Contains([]byte(c.err.Error()), []byte(msg)) {
		return fmt.Errorf("expected error containing %q, got %q", msg, c.err.Error())
	}
	return nil
}

func theSavedConfigurationShouldBeValid() error {
	saved, err := savedConfig()
	if err != nil {
		return err
	}
	return saved.Validate()
}
