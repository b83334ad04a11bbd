package google

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"golang.org/x/oauth2"
	googleauth "golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi/transport"
	"google.golang.org/api/option"

	"dubbing-service/infrastructure/cloud"
)

// CloudPlatformScope covers Speech-to-Text, Translation and Text-to-Speech
const CloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

// AuthConfig selects how requests to Google APIs are authenticated.
// APIKey wins over CredentialsFile; with neither, Application Default Credentials are used.
type AuthConfig struct {
	APIKey            string
	CredentialsFile   string
	Timeout           time.Duration
	RequestsPerSecond float64
}

// ClientOptions builds the option set shared by every Google service constructor
func ClientOptions(ctx context.Context, cfg AuthConfig, scopes ...string) ([]option.ClientOption, error) {
	client, err := HTTPClient(ctx, cfg, scopes...)
	if err != nil {
		return nil, err
	}
	return []option.ClientOption{option.WithHTTPClient(client)}, nil
}

// HTTPClient returns an authenticated, rate-limited HTTP client
func HTTPClient(ctx context.Context, cfg AuthConfig, scopes ...string) (*http.Client, error) {
	base := cloud.RateLimited(http.DefaultTransport, cfg.RequestsPerSecond)

	if cfg.APIKey != "" {
		return &http.Client{
			Timeout:   cfg.Timeout,
			Transport: &transport.APIKey{Key: cfg.APIKey, Transport: base},
		}, nil
	}

	// token exchanges go through the same limited transport
	ctx = context.WithValue(ctx, oauth2.HTTPClient, &http.Client{Transport: base})

	var client *http.Client
	if cfg.CredentialsFile != "" {
		b, err := os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("unable to read credentials file: %w", err)
		}

		config, err := googleauth.JWTConfigFromJSON(b, scopes...)
		if err != nil {
			return nil, fmt.Errorf("unable to parse credentials: %w", err)
		}
		client = config.Client(ctx)
	} else {
		c, err := googleauth.DefaultClient(ctx, scopes...)
		if err != nil {
			return nil, fmt.Errorf("no google credentials configured: %w", err)
		}
		client = c
	}

	client.Timeout = cfg.Timeout
	return client, nil
}
