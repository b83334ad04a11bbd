package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"time"

	"golang.org/x/sync/semaphore"

	"dubbing-service/domain/media"
)

// stderrTailSize bounds the diagnostics kept on a ToolError
const stderrTailSize = 4 << 10

// CommandResult is the captured outcome of one process run
type CommandResult struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// CommandRunner defines the interface for running external commands
// This allows mocking exec.Command in tests
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) (CommandResult, error)
}

// ExecCommandRunner is the production implementation using os/exec
type ExecCommandRunner struct{}

// Run executes a command, capturing stdout, stderr and the exit code
func (r *ExecCommandRunner) Run(ctx context.Context, name string, args ...string) (CommandResult, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := CommandResult{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	default:
		res.ExitCode = -1
	}
	return res, err
}

// Observer receives one event per tool invocation
type Observer interface {
	ToolStarted(tool string)
	ToolFinished(tool string, exitCode int, elapsed time.Duration)
}

// BoundedRunner limits concurrent invocations and applies a per-invocation timeout
type BoundedRunner struct {
	next     CommandRunner
	sem      *semaphore.Weighted
	timeout  time.Duration
	observer Observer
	logger   *slog.Logger
}

// BoundedOption is a functional option for configuring BoundedRunner
type BoundedOption func(*BoundedRunner)

// WithObserver reports each invocation to o
func WithObserver(o Observer) BoundedOption {
	return func(b *BoundedRunner) {
		b.observer = o
	}
}

// WithRunnerLogger sets the logger for invocation records
func WithRunnerLogger(l *slog.Logger) BoundedOption {
	return func(b *BoundedRunner) {
		b.logger = l
	}
}

// NewBoundedRunner wraps next; maxConcurrent below 1 is treated as 1
func NewBoundedRunner(next CommandRunner, maxConcurrent int, timeout time.Duration, opts ...BoundedOption) *BoundedRunner {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	b := &BoundedRunner{
		next:    next,
		sem:     semaphore.NewWeighted(int64(maxConcurrent)),
		timeout: timeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Run waits for a free slot, then runs the command under the configured timeout
func (b *BoundedRunner) Run(ctx context.Context, name string, args ...string) (CommandResult, error) {
	if err := b.sem.Acquire(ctx, 1); err != nil {
		return CommandResult{ExitCode: -1}, fmt.Errorf("waiting for media tool slot: %w", err)
	}
	defer b.sem.Release(1)

	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	tool := filepath.Base(name)
	if b.observer != nil {
		b.observer.ToolStarted(tool)
	}
	start := time.Now()
	res, err := b.next.Run(ctx, name, args...)
	elapsed := time.Since(start)
	if b.observer != nil {
		b.observer.ToolFinished(tool, res.ExitCode, elapsed)
	}

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			err = errors.Join(err, ctxErr)
		}
		b.logger.Warn("media tool failed",
			"tool", tool,
			"args", args,
			"exit_code", res.ExitCode,
			"elapsed", elapsed,
			"stderr", string(tail(res.Stderr, stderrTailSize)),
			"error", err)
		return res, err
	}
	b.logger.Debug("media tool finished", "tool", tool, "args", args, "elapsed", elapsed)
	return res, nil
}

// toolError converts a failed run into the domain error, keeping the last 4 KiB of stderr
func toolError(tool string, args []string, res CommandResult, err error) error {
	var te *media.ToolError
	if errors.As(err, &te) {
		return te
	}
	return &media.ToolError{
		Tool:     filepath.Base(tool),
		Args:     append([]string(nil), args...),
		ExitCode: res.ExitCode,
		Stderr:   string(tail(res.Stderr, stderrTailSize)),
		Err:      err,
	}
}

func tail(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[len(b)-n:]
}

var (
	_ CommandRunner = (*ExecCommandRunner)(nil)
	_ CommandRunner = (*BoundedRunner)(nil)
)
