package config

import (
	"errors"
	"fmt"
	"strings"

	"dubbing-service/domain/media"
)

// Storage backends
const (
	BackendFilesystem = "filesystem"
	BackendMinio      = "minio"
	BackendDrive      = "drive"
)

// Speech providers
const (
	ProviderGoogle = "google"
	ProviderOpenAI = "openai"
)

// Failure policies for soft-failing stages
const (
	PolicyPlaceholder = "placeholder"
	PolicyFail        = "fail"
)

var validSampleRates = map[int]bool{8000: true, 16000: true, 22050: true, 44100: true, 48000: true}

// Validate reports every invalid setting at once
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	switch c.Storage.Backend {
	case BackendFilesystem:
	case BackendMinio:
		if c.Storage.Minio.Endpoint == "" {
			add("storage.minio.endpoint is required for the minio backend")
		}
	case BackendDrive:
		if c.Storage.Drive.FolderID == "" {
			add("storage.drive.folder_id is required for the drive backend")
		}
	default:
		add("storage.backend %q is not one of filesystem, minio, drive", c.Storage.Backend)
	}
	if c.Storage.WorkDir == "" {
		add("storage.work_dir is required")
	}

	switch c.Speech.Provider {
	case ProviderGoogle:
	case ProviderOpenAI:
		if c.OpenAI.APIKey == "" {
			add("openai.api_key is required for the openai speech provider")
		}
	default:
		add("speech.provider %q is not one of google, openai", c.Speech.Provider)
	}

	if !validPolicy(c.Speech.OnFailure) {
		add("speech.on_failure %q is not one of placeholder, fail", c.Speech.OnFailure)
	}
	if !validPolicy(c.Translation.OnFailure) {
		add("translation.on_failure %q is not one of placeholder, fail", c.Translation.OnFailure)
	}

	if _, err := media.ParseMergePolicy(c.Media.MergePolicy); err != nil {
		add("media.merge_policy: %v", err)
	}
	if c.Media.MaxConcurrent < 1 {
		add("media.max_concurrent must be positive, got %d", c.Media.MaxConcurrent)
	}
	if !validSampleRates[c.Media.SampleRate] {
		add("media.sample_rate %d is not supported", c.Media.SampleRate)
	}
	if c.Media.Channels < 1 || c.Media.Channels > 2 {
		add("media.channels must be 1 or 2, got %d", c.Media.Channels)
	}
	if c.Media.Timeout <= 0 {
		add("media.timeout must be positive")
	}

	if c.Server.MaxUploadMB <= 0 {
		add("server.max_upload_mb must be positive")
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		add("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		add("logging.format %q is not one of text, json", c.Logging.Format)
	}
	if c.Retry.MaxAttempts < 1 {
		add("retry.max_attempts must be at least 1")
	}

	return errors.Join(errs...)
}

func validPolicy(p string) bool {
	return p == PolicyPlaceholder || p == PolicyFail
}
