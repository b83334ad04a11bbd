package config

import (
	"errors"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads KEY=value pairs from the given files into the environment.
// Missing files are ignored; variables already set are never overridden.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

// ApplyEnv overrides deployment settings and secrets from the environment
func (c *Config) ApplyEnv() {
	setString(&c.Server.Address, "DUBBING_ADDRESS")
	setString(&c.Server.PublicURL, "DUBBING_PUBLIC_URL")
	setString(&c.Storage.Backend, "DUBBING_STORAGE_BACKEND")
	setString(&c.Google.APIKey, "GOOGLE_API_KEY")
	setString(&c.Google.CredentialsFile, "GOOGLE_APPLICATION_CREDENTIALS")
	setString(&c.OpenAI.APIKey, "OPENAI_API_KEY")
	setString(&c.Storage.Minio.Endpoint, "MINIO_ENDPOINT")
	setString(&c.Storage.Minio.AccessKey, "MINIO_ACCESS_KEY")
	setString(&c.Storage.Minio.SecretKey, "MINIO_SECRET_KEY")
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}
