package cloud

import (
	"context"
	"log/slog"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
)

// RetryConfig configures retry behavior for cloud calls
type RetryConfig struct {
	MaxAttempts     int           // total attempts including the first
	InitialInterval time.Duration // first backoff delay
	MaxInterval     time.Duration // cap on any single delay
}

// DefaultRetryConfig returns sensible defaults
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:     3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
	}
}

// RetryObserver is told about every retry
type RetryObserver interface {
	CloudRetry(op string)
}

// Retrier retries transient cloud failures with exponential backoff.
// A nil *Retrier runs each operation exactly once.
type Retrier struct {
	cfg      RetryConfig
	observer RetryObserver
	logger   *slog.Logger
}

// RetrierOption is a functional option for configuring Retrier
type RetrierOption func(*Retrier)

// WithRetryObserver reports retries to o
func WithRetryObserver(o RetryObserver) RetrierOption {
	return func(r *Retrier) {
		r.observer = o
	}
}

// WithRetryLogger sets the logger
func WithRetryLogger(l *slog.Logger) RetrierOption {
	return func(r *Retrier) {
		r.logger = l
	}
}

// NewRetrier creates a Retrier
func NewRetrier(cfg RetryConfig, opts ...RetrierOption) *Retrier {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	r := &Retrier{cfg: cfg, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Retrier) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if r.cfg.InitialInterval > 0 {
		b.InitialInterval = r.cfg.InitialInterval
	}
	if r.cfg.MaxInterval > 0 {
		b.MaxInterval = r.cfg.MaxInterval
	}
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(r.cfg.MaxAttempts-1)), ctx)
}

// Do runs fn until it succeeds, fails permanently or attempts run out.
// Only errors for which IsTransient is true are retried.
func Do[T any](ctx context.Context, r *Retrier, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	if r == nil {
		return fn(ctx)
	}

	operation := func() (T, error) {
		res, err := fn(ctx)
		if err != nil && !IsTransient(err) {
			return res, backoff.Permanent(err)
		}
		return res, err
	}

	notify := func(err error, wait time.Duration) {
		r.logger.Warn("retrying cloud call", "op", op, "wait", wait, "error", err)
		if r.observer != nil {
			r.observer.CloudRetry(op)
		}
	}

	return backoff.RetryNotifyWithData(operation, r.backOff(ctx), notify)
}
