//go:build integration

package steps

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"dubbing-service/application/dub"
	"dubbing-service/cmd"
	"dubbing-service/infrastructure/filesystem"

	"github.com/cucumber/godog"
)

// dubContext holds test state for command line dub scenarios.
// It shares the service and fakes of the pipeline context.
type dubContext struct {
	videoPath string
	output    *bytes.Buffer
	err       error
}

// SharedDubContext is reset before each scenario via Before hook
var SharedDubContext *dubContext

func getDubContext() *dubContext {
	return SharedDubContext
}

func InitializeDubScenario(ctx *godog.ScenarioContext) {
	ctx.Before(func(c context.Context, sc *godog.Scenario) (context.Context, error) {
		SharedDubContext = &dubContext{output: &bytes.Buffer{}}
		return c, nil
	})

	ctx.After(func(c context.Context, sc *godog.Scenario, err error) (context.Context, error) {
		SharedDubContext = nil
		return c, nil
	})

	ctx.Step(`^a local video "([^"]*)"$`, aLocalVideo)
	ctx.Step(`^I run dub on it with target language "([^"]*)"$`, iRunDubOnItWithTargetLanguage)
	ctx.Step(`^the command should succeed$`, theCommandShouldSucceed)
	ctx.Step(`^the command should fail$`, theCommandShouldFail)
	ctx.Step(`^the output should contain "([^"]*)"$`, theOutputShouldContain)
	ctx.Step(`^the dubbed video should exist on disk$`, theDubbedVideoShouldExistOnDisk)
}

func aLocalVideo(name string) error {
	d := getDubContext()
	p := getPipelineContext()
	d.videoPath = filepath.Join(p.root, name)
	return os.WriteFile(d.videoPath, []byte("video:"+name), 0644)
}

func iRunDubOnItWithTargetLanguage(lang string) error {
	d := getDubContext()
	p := getPipelineContext()
	if err := p.build(); err != nil {
		return err
	}

	d.err = cmd.RunDubWithDependencies(
		context.Background(),
		p.service,
		filesystem.NewChecker(),
		p.store,
		dub.Input{VideoPath: d.videoPath, TargetLanguage: lang},
		d.output,
	)
	return nil
}

func theCommandShouldSucceed() error {
	d := getDubContext()
	if d.err != nil {
		return fmt.Errorf("expected success, got: %v\noutput:\n%s", d.err, d.output.String())
	}
	return nil
}

func theCommandShouldFail() error {
	if getDubContext().err == nil {
		return fmt.Errorf("expected the command to fail")
	}
	return nil
}

func theOutputShouldContain(text string) error {
	d := getDubContext()
	if !strings.Contains(d.output.String(), text) {
		return fmt.Errorf("expected output to contain %q, got:\n%s", text, d.output.String())
	}
	return nil
}

func theDubbedVideoShouldExistOnDisk() error {
	d := getDubContext()
	for _, line := range strings.Split(d.output.String(), "\n") {
		path, ok := strings.CutPrefix(line, "Dubbed video:")
		if !ok {
			continue
		}
		path = strings.TrimSpace(path)
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("dubbed video not readable: %w", err)
		}
		if !strings.HasPrefix(string(data), "mux:") {
			return fmt.Errorf("unexpected dubbed video content %q", data)
		}
		return nil
	}
	return fmt.Errorf("output does not name the dubbed video:\n%s", d.output.String())
}
