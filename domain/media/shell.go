package media

import (
	"context"
	"time"
)

// Shell defines the media transformations the pipeline needs.
// This is a port implemented by a command-line media tool adapter.
// Every operation writes exactly one file at outputPath and never mutates its inputs.
type Shell interface {
	// DemuxAudio extracts the best audio stream of a video container
	DemuxAudio(ctx context.Context, videoPath, outputPath string) error

	// ResampleAudio converts any audio input to canonical PCM WAV for recognition
	ResampleAudio(ctx context.Context, inputPath, outputPath string) error

	// StripAudio copies the video track only, dropping all audio
	StripAudio(ctx context.Context, videoPath, outputPath string) error

	// Mux combines a video-only input with a new audio track
	Mux(ctx context.Context, videoPath, audioPath, outputPath string, policy MergePolicy) error
}

// Prober reads stream metadata from a media file
type Prober interface {
	Duration(ctx context.Context, path string) (time.Duration, error)
}

// FileChecker defines the interface for checking file existence
type FileChecker interface {
	// Exists returns true if the file exists
	Exists(path string) bool
}
