package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is where commands look for the config file
const DefaultPath = "config/config.yaml"

// Config represents the complete application configuration
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Logging     LoggingConfig     `yaml:"logging"`
	Storage     StorageConfig     `yaml:"storage"`
	Media       MediaConfig       `yaml:"media"`
	Speech      SpeechConfig      `yaml:"speech"`
	Translation TranslationConfig `yaml:"translation"`
	Synthesis   SynthesisConfig   `yaml:"synthesis"`
	Google      GoogleConfig      `yaml:"google"`
	OpenAI      OpenAIConfig      `yaml:"openai"`
	Retry       RetryConfig       `yaml:"retry"`
	Sessions    SessionsConfig    `yaml:"sessions"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Address         string        `yaml:"address"`
	PublicURL       string        `yaml:"public_url"`
	MaxUploadMB     int64         `yaml:"max_upload_mb"`
	CORSOrigins     []string      `yaml:"cors_origins"`
	StageTimeout    time.Duration `yaml:"stage_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LoggingConfig selects the log level and encoding
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// StorageConfig selects and configures the artifact store backend
type StorageConfig struct {
	Backend    string           `yaml:"backend"`
	WorkDir    string           `yaml:"work_dir"`
	Filesystem FilesystemConfig `yaml:"filesystem"`
	Minio      MinioConfig      `yaml:"minio"`
	Drive      DriveConfig      `yaml:"drive"`
}

// FilesystemConfig contains directory paths for the filesystem backend
type FilesystemConfig struct {
	Root            string `yaml:"root"`
	AudioDirectory  string `yaml:"audio_directory"`
	MergedDirectory string `yaml:"merged_directory"`
	UploadDirectory string `yaml:"upload_directory"`
}

// MinioConfig contains S3-compatible object store settings
type MinioConfig struct {
	Endpoint     string `yaml:"endpoint"`
	AccessKey    string `yaml:"access_key"`
	SecretKey    string `yaml:"secret_key"`
	UseSSL       bool   `yaml:"use_ssl"`
	Region       string `yaml:"region"`
	BucketPrefix string `yaml:"bucket_prefix"`
}

// DriveConfig contains Google Drive backend settings
type DriveConfig struct {
	FolderID string `yaml:"folder_id"`
}

// MediaConfig contains ffmpeg settings
type MediaConfig struct {
	FFmpegPath    string        `yaml:"ffmpeg_path"`
	FFprobePath   string        `yaml:"ffprobe_path"`
	MaxConcurrent int           `yaml:"max_concurrent"`
	Timeout       time.Duration `yaml:"timeout"`
	SampleRate    int           `yaml:"sample_rate"`
	Channels      int           `yaml:"channels"`
	MergePolicy   string        `yaml:"merge_policy"`
	AudioCodec    string        `yaml:"audio_codec"`
}

// SpeechConfig contains recognition settings
type SpeechConfig struct {
	Provider  string `yaml:"provider"`
	Language  string `yaml:"language"`
	OnFailure string `yaml:"on_failure"`
}

// TranslationConfig contains translation settings
type TranslationConfig struct {
	OnFailure     string `yaml:"on_failure"`
	CacheSize     int    `yaml:"cache_size"`
	DefaultTarget string `yaml:"default_target"`
}

// SynthesisConfig contains text-to-speech settings
type SynthesisConfig struct {
	DefaultLanguage string            `yaml:"default_language"`
	Voices          map[string]string `yaml:"voices,omitempty"`
}

// GoogleConfig contains Google API settings
type GoogleConfig struct {
	APIKey            string        `yaml:"api_key"`
	CredentialsFile   string        `yaml:"credentials_file"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
}

// OpenAIConfig contains Whisper settings
type OpenAIConfig struct {
	APIKey  string        `yaml:"api_key"`
	BaseURL string        `yaml:"base_url"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

// RetryConfig contains backoff settings for cloud calls
type RetryConfig struct {
	MaxAttempts     int           `yaml:"max_attempts"`
	InitialInterval time.Duration `yaml:"initial_interval"`
	MaxInterval     time.Duration `yaml:"max_interval"`
}

// SessionsConfig bounds the in-memory session registry.
// LegacyAttach lets requests without a sessionId continue the latest upload.
type SessionsConfig struct {
	MaxEntries   int           `yaml:"max_entries"`
	TTL          time.Duration `yaml:"ttl"`
	LegacyAttach bool          `yaml:"legacy_attach"`
}

// Default returns a configuration that runs locally without a file
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Address:         ":5001",
			MaxUploadMB:     1024,
			CORSOrigins:     []string{"*"},
			StageTimeout:    15 * time.Minute,
			ShutdownTimeout: 30 * time.Second,
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Storage: StorageConfig{
			Backend: BackendFilesystem,
			WorkDir: "work",
			Filesystem: FilesystemConfig{
				Root:            ".",
				AudioDirectory:  "AudioFiles",
				MergedDirectory: "MergedFiles",
				UploadDirectory: "Uploads",
			},
			Minio: MinioConfig{Region: "us-east-1"},
		},
		Media: MediaConfig{
			FFmpegPath:    "ffmpeg",
			FFprobePath:   "ffprobe",
			MaxConcurrent: 2,
			Timeout:       10 * time.Minute,
			SampleRate:    16000,
			Channels:      1,
			MergePolicy:   "shortest",
			AudioCodec:    "aac",
		},
		Speech: SpeechConfig{
			Provider:  ProviderGoogle,
			Language:  "en-US",
			OnFailure: PolicyPlaceholder,
		},
		Translation: TranslationConfig{
			OnFailure:     PolicyPlaceholder,
			CacheSize:     512,
			DefaultTarget: "en",
		},
		Synthesis: SynthesisConfig{DefaultLanguage: "en"},
		Google: GoogleConfig{
			Timeout:           2 * time.Minute,
			RequestsPerSecond: 10,
		},
		OpenAI: OpenAIConfig{
			Model:   "whisper-1",
			Timeout: 5 * time.Minute,
		},
		Retry: RetryConfig{
			MaxAttempts:     3,
			InitialInterval: 500 * time.Millisecond,
			MaxInterval:     10 * time.Second,
		},
		Sessions: SessionsConfig{
			MaxEntries:   10000,
			TTL:          24 * time.Hour,
			LegacyAttach: true,
		},
	}
}

// Load reads and parses the configuration from the specified YAML file.
// Values absent from the file keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

// Save writes the configuration to the specified YAML file
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Masked returns a copy with secrets replaced, for display
func (c *Config) Masked() *Config {
	m := *c
	m.Google.APIKey = mask(c.Google.APIKey)
	m.OpenAI.APIKey = mask(c.OpenAI.APIKey)
	m.Storage.Minio.SecretKey = mask(c.Storage.Minio.SecretKey)
	return &m
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 4 {
		return "****"
	}
	return "****" + s[len(s)-4:]
}
