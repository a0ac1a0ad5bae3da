// Package resilience provides reliability patterns for the external tools
// sipbox invokes: bounded retry for the container liveness probe and a
// circuit breaker for the trust tool during watch mode.
package resilience

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryOption configures retry behavior
type RetryOption func(*retryConfig)

type retryConfig struct {
	maxRetries   uint64
	initialDelay time.Duration
	maxDelay     time.Duration
	onRetry      func(err error, next time.Duration)
}

// WithMaxRetries sets the maximum number of retry attempts
func WithMaxRetries(n uint64) RetryOption {
	return func(c *retryConfig) {
		c.maxRetries = n
	}
}

// WithInitialDelay sets the initial delay between retries
func WithInitialDelay(d time.Duration) RetryOption {
	return func(c *retryConfig) {
		c.initialDelay = d
	}
}

// WithMaxDelay sets the maximum delay between retries
func WithMaxDelay(d time.Duration) RetryOption {
	return func(c *retryConfig) {
		c.maxDelay = d
	}
}

// WithOnRetry sets a callback for each retry attempt
func WithOnRetry(fn func(err error, next time.Duration)) RetryOption {
	return func(c *retryConfig) {
		c.onRetry = fn
	}
}

// Retry runs operation with exponential backoff. Every external tool sipbox
// touches is local, so the defaults are short: two retries starting at 200ms.
func Retry(ctx context.Context, operation func() error, opts ...RetryOption) error {
	cfg := &retryConfig{
		maxRetries:   2,
		initialDelay: 200 * time.Millisecond,
		maxDelay:     2 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.initialDelay
	b.MaxInterval = cfg.maxDelay

	policy := backoff.WithContext(backoff.WithMaxRetries(b, cfg.maxRetries), ctx)

	notify := func(err error, next time.Duration) {
		if cfg.onRetry != nil {
			cfg.onRetry(err, next)
		}
	}

	return backoff.RetryNotify(operation, policy, notify)
}
