package cloud

import (
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// rateLimitedTransport waits for a limiter token before every request
type rateLimitedTransport struct {
	base    http.RoundTripper
	limiter *rate.Limiter
}

func (t *rateLimitedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}
	return t.base.RoundTrip(req)
}

// RateLimited wraps base so that at most rps requests per second leave the process.
// rps <= 0 disables limiting.
func RateLimited(base http.RoundTripper, rps float64) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	if rps <= 0 {
		return base
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return &rateLimitedTransport{base: base, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

// NewHTTPClient returns a client with a request timeout and an optional rate limit
func NewHTTPClient(timeout time.Duration, rps float64) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: RateLimited(http.DefaultTransport, rps),
	}
}
