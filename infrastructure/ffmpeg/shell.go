package ffmpeg

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"dubbing-service/domain/media"
)

// Shell implements media.Shell using ffmpeg
type Shell struct {
	ffmpegPath string
	runner     CommandRunner
	sampleRate int
	channels   int
	audioCodec string
	logger     *slog.Logger
}

// ShellOption is a functional option for configuring Shell
type ShellOption func(*Shell)

// WithFFmpegPath sets a custom ffmpeg executable path
func WithFFmpegPath(path string) ShellOption {
	return func(s *Shell) {
		s.ffmpegPath = path
	}
}

// WithCommandRunner sets a custom command runner (for testing)
func WithCommandRunner(runner CommandRunner) ShellOption {
	return func(s *Shell) {
		s.runner = runner
	}
}

// WithSampleRate sets the canonical WAV sample rate
func WithSampleRate(hz int) ShellOption {
	return func(s *Shell) {
		s.sampleRate = hz
	}
}

// WithChannels sets the canonical WAV channel count
func WithChannels(n int) ShellOption {
	return func(s *Shell) {
		s.channels = n
	}
}

// WithAudioCodec sets the encoder used for the muxed audio track
func WithAudioCodec(codec string) ShellOption {
	return func(s *Shell) {
		s.audioCodec = codec
	}
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) ShellOption {
	return func(s *Shell) {
		s.logger = l
	}
}

// NewShell creates a new FFmpeg-based media shell
func NewShell(opts ...ShellOption) *Shell {
	s := &Shell{
		ffmpegPath: "ffmpeg",
		runner:     &ExecCommandRunner{},
		sampleRate: 16000,
		channels:   1,
		audioCodec: "aac",
		logger:     slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// DemuxAudio implements media.Shell
func (s *Shell) DemuxAudio(ctx context.Context, videoPath, outputPath string) error {
	return s.produce(ctx, "audio extraction", outputPath, func(out string) []string {
		return []string{
			"-y",
			"-i", videoPath,
			"-vn",       // No video
			"-q:a", "0", // Best VBR quality
			out,
		}
	})
}

// ResampleAudio implements media.Shell
func (s *Shell) ResampleAudio(ctx context.Context, inputPath, outputPath string) error {
	return s.produce(ctx, "audio resampling", outputPath, func(out string) []string {
		return []string{
			"-y",
			"-i", inputPath,
			"-ac", strconv.Itoa(s.channels),
			"-ar", strconv.Itoa(s.sampleRate),
			"-c:a", "pcm_s16le",
			out,
		}
	})
}

// StripAudio implements media.Shell
func (s *Shell) StripAudio(ctx context.Context, videoPath, outputPath string) error {
	return s.produce(ctx, "audio removal", outputPath, func(out string) []string {
		return []string{
			"-y",
			"-i", videoPath,
			"-c:v", "copy",
			"-an",
			out,
		}
	})
}

// Mux implements media.Shell
func (s *Shell) Mux(ctx context.Context, videoPath, audioPath, outputPath string, policy media.MergePolicy) error {
	return s.produce(ctx, "merge", outputPath, func(out string) []string {
		args := []string{
			"-y",
			"-i", videoPath,
			"-i", audioPath,
			"-map", "0:v:0",
			"-map", "1:a:0",
			"-c:v", "copy",
			"-c:a", s.muxAudioCodec(outputPath),
		}
		args = append(args, policyArgs(policy)...)
		return append(args, out)
	})
}

// muxAudioCodec picks an encoder the output container accepts
func (s *Shell) muxAudioCodec(outputPath string) string {
	if strings.EqualFold(filepath.Ext(outputPath), ".webm") {
		return "libopus"
	}
	return s.audioCodec
}

func policyArgs(p media.MergePolicy) []string {
	switch p {
	case media.MergePad:
		return []string{"-af", "apad", "-shortest"}
	case media.MergeLongest:
		return nil
	default:
		return []string{"-shortest"}
	}
}

// VerifyInstalled checks that ffmpeg is available
func (s *Shell) VerifyInstalled(ctx context.Context) error {
	if _, err := s.runner.Run(ctx, s.ffmpegPath, "-version"); err != nil {
		return fmt.Errorf("ffmpeg not found or not executable: %w", err)
	}
	return nil
}

// produce runs ffmpeg into a temporary sibling of outputPath and renames it into place
func (s *Shell) produce(ctx context.Context, op, outputPath string, build func(out string) []string) error {
	dir := filepath.Dir(outputPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".partial-*"+filepath.Ext(outputPath))
	if err != nil {
		return fmt.Errorf("failed to create temp output: %w", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()

	args := build(tmpPath)
	res, err := s.runner.Run(ctx, s.ffmpegPath, args...)
	if err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ffmpeg %s failed: %w", op, toolError(s.ffmpegPath, args, res, err))
	}

	if err := os.Rename(tmpPath, outputPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to move %s output into place: %w", op, err)
	}
	s.logger.Debug("media file written", "op", op, "path", outputPath)
	return nil
}

// Ensure Shell implements media.Shell
var _ media.Shell = (*Shell)(nil)
