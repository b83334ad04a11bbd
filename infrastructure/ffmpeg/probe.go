package ffmpeg

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"dubbing-service/domain/media"
)

// Prober implements media.Prober using ffprobe
type Prober struct {
	ffprobePath string
	runner      CommandRunner
}

// NewProber creates a prober; an empty path means "ffprobe" on PATH
func NewProber(ffprobePath string, runner CommandRunner) *Prober {
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	if runner == nil {
		runner = &ExecCommandRunner{}
	}
	return &Prober{ffprobePath: ffprobePath, runner: runner}
}

// Duration implements media.Prober
func (p *Prober) Duration(ctx context.Context, path string) (time.Duration, error) {
	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	}

	res, err := p.runner.Run(ctx, p.ffprobePath, args...)
	if err != nil {
		return 0, fmt.Errorf("ffprobe failed: %w", toolError(p.ffprobePath, args, res, err))
	}

	out := strings.TrimSpace(string(res.Stdout))
	seconds, err := strconv.ParseFloat(out, 64)
	if err != nil {
		return 0, fmt.Errorf("ffprobe returned unparseable duration %q for %s", out, path)
	}
	return time.Duration(seconds * float64(time.Second)), nil
}

// Ensure Prober implements media.Prober
var _ media.Prober = (*Prober)(nil)
