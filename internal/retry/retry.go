// Package retry runs calls to external services with exponential backoff.
package retry

import (
	"context"
	"errors"
	"time"
)

// Config configures exponential backoff retry behavior
type Config struct {
	MaxAttempts int           // Total attempts, including the first
	BaseDelay   time.Duration // Initial delay between attempts
	MaxDelay    time.Duration // Upper bound on the delay
	Multiplier  float64       // Exponential backoff multiplier
}

// Default returns sensible defaults for API calls.
func Default() Config {
	return Config{
		MaxAttempts: 3,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    5 * time.Second,
		Multiplier:  2.0,
	}
}

// permanent marks an error that must not be retried.
type permanent struct{ err error }

func (p *permanent) Error() string { return p.err.Error() }
func (p *permanent) Unwrap() error { return p.err }

// Permanent wraps err so Do returns it immediately. Use it for 4xx
// responses and malformed input.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanent{err: err}
}

// Do executes fn with exponential backoff. Retry stops on context
// cancellation and on errors wrapped with Permanent; the returned error is
// unwrapped from Permanent.
func Do[T any](ctx context.Context, cfg Config, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	backoff := cfg.BaseDelay

	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		var p *permanent
		if errors.As(err, &p) {
			return zero, p.err
		}
		lastErr = err

		// Don't retry on context cancellation
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}

		if attempt < cfg.MaxAttempts-1 {
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(backoff):
				backoff = time.Duration(float64(backoff) * cfg.Multiplier)
				if cfg.MaxDelay > 0 && backoff > cfg.MaxDelay {
					backoff = cfg.MaxDelay
				}
			}
		}
	}

	return zero, lastErr
}
