package market

import (
	"context"
	"time"
)

// RetryConfig configures retry behavior for the data-source clients.
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Multiplier float64
}

func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries: 3,
		BaseDelay:  1 * time.Second,
		MaxDelay:   15 * time.Second,
		Multiplier: 2.0,
	}
}

// WithRetry executes fn with exponential backoff. Context cancellation cuts
// the wait short and returns the last error seen.
func WithRetry(ctx context.Context, config *RetryConfig, fn func() error) error {
	var lastErr error

	delay := config.BaseDelay
	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				if lastErr != nil {
					return lastErr
				}
				return ctx.Err()
			}
			delay = time.Duration(float64(delay) * config.Multiplier)
			if delay > config.MaxDelay {
				delay = config.MaxDelay
			}
		}

		if lastErr = fn(); lastErr == nil {
			return nil
		}
	}

	return lastErr
}
