package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_MergesWithDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
server:
  address: ":8080"
  stage_timeout: 5m
media:
  merge_policy: pad
  max_concurrent: 4
speech:
  language: es-ES
synthesis:
  voices:
    es: es-ES-Standard-A
sessions:
  ttl: 1h
`
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Address != ":8080" || cfg.Server.StageTimeout != 5*time.Minute {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Media.MergePolicy != "pad" || cfg.Media.MaxConcurrent != 4 {
		t.Errorf("media = %+v", cfg.Media)
	}
	// untouched sections keep defaults
	if cfg.Media.SampleRate != 16000 || cfg.Storage.Backend != BackendFilesystem {
		t.Errorf("defaults lost: sample_rate=%d backend=%q", cfg.Media.SampleRate, cfg.Storage.Backend)
	}
	if cfg.Synthesis.Voices["es"] != "es-ES-Standard-A" {
		t.Errorf("voices = %v", cfg.Synthesis.Voices)
	}
	if cfg.Sessions.TTL != time.Hour || !cfg.Sessions.LegacyAttach {
		t.Errorf("sessions = %+v, want legacy attach kept on", cfg.Sessions)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoad_Errors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load() expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(path, []byte("server: [unclosed"), 0644)
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "parse") {
		t.Errorf("Load() error = %v, want parse error", err)
	}
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := Default()
	cfg.Storage.Backend = BackendMinio
	cfg.Storage.Minio.Endpoint = "localhost:9000"
	cfg.Retry.MaxInterval = 3 * time.Second

	if err := Save(cfg, path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.Storage.Minio.Endpoint != "localhost:9000" || got.Retry.MaxInterval != 3*time.Second {
		t.Errorf("round trip lost values: %+v", got.Storage)
	}
}

func TestDefault_IsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Errorf("Default().Validate() error = %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"unknown backend", func(c *Config) { c.Storage.Backend = "s3" }, "storage.backend"},
		{"minio without endpoint", func(c *Config) { c.Storage.Backend = BackendMinio }, "storage.minio.endpoint"},
		{"drive without folder", func(c *Config) { c.Storage.Backend = BackendDrive }, "storage.drive.folder_id"},
		{"unknown provider", func(c *Config) { c.Speech.Provider = "vosk" }, "speech.provider"},
		{"openai without key", func(c *Config) { c.Speech.Provider = ProviderOpenAI }, "openai.api_key"},
		{"bad speech policy", func(c *Config) { c.Speech.OnFailure = "ignore" }, "speech.on_failure"},
		{"bad translation policy", func(c *Config) { c.Translation.OnFailure = "" }, "translation.on_failure"},
		{"bad merge policy", func(c *Config) { c.Media.MergePolicy = "loop" }, "media.merge_policy"},
		{"zero concurrency", func(c *Config) { c.Media.MaxConcurrent = 0 }, "media.max_concurrent"},
		{"odd sample rate", func(c *Config) { c.Media.SampleRate = 12345 }, "media.sample_rate"},
		{"three channels", func(c *Config) { c.Media.Channels = 3 }, "media.channels"},
		{"bad log level", func(c *Config) { c.Logging.Level = "trace" }, "logging.level"},
		{"no retry", func(c *Config) { c.Retry.MaxAttempts = 0 }, "retry.max_attempts"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_ReportsAllProblems(t *testing.T) {
	cfg := Default()
	cfg.Media.Channels = 0
	cfg.Media.SampleRate = 1
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "media.channels") || !strings.Contains(err.Error(), "media.sample_rate") {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("DUBBING_ADDRESS", ":9999")
	t.Setenv("GOOGLE_API_KEY", "g-key")
	t.Setenv("MINIO_SECRET_KEY", "s3cret")
	t.Setenv("OPENAI_API_KEY", "")

	cfg := Default()
	cfg.OpenAI.APIKey = "from-file"
	cfg.ApplyEnv()

	if cfg.Server.Address != ":9999" || cfg.Google.APIKey != "g-key" || cfg.Storage.Minio.SecretKey != "s3cret" {
		t.Errorf("env overrides not applied: %+v", cfg)
	}
	if cfg.OpenAI.APIKey != "from-file" {
		t.Error("empty env values should not clear file values")
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	os.WriteFile(path, []byte("DUBBING_TEST_DOTENV=from-dotenv\n"), 0644)
	t.Cleanup(func() { os.Unsetenv("DUBBING_TEST_DOTENV") })

	if err := LoadDotEnv(path, filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("LoadDotEnv() error = %v", err)
	}
	if os.Getenv("DUBBING_TEST_DOTENV") != "from-dotenv" {
		t.Error("variable from .env not loaded")
	}
}

func TestMasked(t *testing.T) {
	cfg := Default()
	cfg.Google.APIKey = "AIzaSyExample1234"
	cfg.Storage.Minio.SecretKey = "abc"

	m := cfg.Masked()
	if m.Google.APIKey != "****1234" || m.Storage.Minio.SecretKey != "****" || m.OpenAI.APIKey != "" {
		t.Errorf("Masked() = %q %q %q", m.Google.APIKey, m.Storage.Minio.SecretKey, m.OpenAI.APIKey)
	}
	if cfg.Google.APIKey != "AIzaSyExample1234" {
		t.Error("Masked() modified the original")
	}
}

func TestConfigManager_Voices(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := Default()
	mgr := NewConfigManager(cfg, path)

	if err := mgr.AddVoice("es", "es-ES-Standard-A"); err != nil {
		t.Fatalf("AddVoice() error = %v", err)
	}
	if err := mgr.AddVoice("es", "other"); !errors.Is(err, ErrDuplicateKey) {
		t.Errorf("AddVoice() duplicate error = %v", err)
	}
	if err := mgr.AddVoice("not a code", "x"); !errors.Is(err, ErrInvalidLanguage) {
		t.Errorf("AddVoice() invalid error = %v", err)
	}
	if err := mgr.UpdateVoice("es", "es-ES-Wavenet-B"); err != nil {
		t.Errorf("UpdateVoice() error = %v", err)
	}
	mgr.AddVoice("de", "de-DE-Standard-A")

	voices := mgr.ListVoices()
	if len(voices) != 2 || voices[0].Language != "de" || voices[1].Name != "es-ES-Wavenet-B" {
		t.Errorf("ListVoices() = %+v", voices)
	}

	// changes are persisted
	saved, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if saved.Synthesis.Voices["es"] != "es-ES-Wavenet-B" {
		t.Errorf("saved voices = %v", saved.Synthesis.Voices)
	}

	if err := mgr.RemoveVoice("fr"); !errors.Is(err, ErrVoiceNotFound) {
		t.Errorf("RemoveVoice() error = %v", err)
	}
	if err := mgr.RemoveVoice("de"); err != nil {
		t.Errorf("RemoveVoice() error = %v", err)
	}
}

func TestConfigManager_Origins(t *testing.T) {
	cfg := Default()
	cfg.Server.CORSOrigins = nil
	mgr := NewConfigManager(cfg, filepath.Join(t.TempDir(), "config.yaml"))

	if err := mgr.AddOrigin("http://localhost:3000/"); err != nil {
		t.Fatal(err)
	}
	if err := mgr.AddOrigin("http://localhost:3000"); !errors.Is(err, ErrDuplicateOrigin) {
		t.Errorf("AddOrigin() duplicate error = %v", err)
	}
	if got := mgr.ListOrigins(); len(got) != 1 || got[0] != "http://localhost:3000" {
		t.Errorf("ListOrigins() = %v", got)
	}
	if err := mgr.RemoveOrigin("http://example.com"); !errors.Is(err, ErrOriginNotFound) {
		t.Errorf("RemoveOrigin() error = %v", err)
	}
	if err := mgr.RemoveOrigin("http://localhost:3000"); err != nil || len(mgr.ListOrigins()) != 0 {
		t.Errorf("RemoveOrigin() = %v, origins %v", err, mgr.ListOrigins())
	}
}
