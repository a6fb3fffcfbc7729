package worker

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/billable/jobqueue/pkg/core"
)

// RetryConfig holds configuration for retry with backoff.
type RetryConfig struct {
	// MaxAttempts is the maximum number of retry attempts (including initial).
	// Default: 5
	MaxAttempts int

	// InitialBackoff is the initial backoff duration.
	// Default: 100ms
	InitialBackoff time.Duration

	// MaxBackoff is the maximum backoff duration.
	// Default: 5s
	MaxBackoff time.Duration

	// BackoffMultiplier is the multiplier applied to backoff after each attempt.
	// Default: 2.0
	BackoffMultiplier float64

	// JitterFraction is the fraction of backoff to randomize (0.0 to 1.0).
	// Default: 0.1 (10% jitter)
	JitterFraction float64
}

// claimRetryConfig backs off longer so claims do not hammer the database
// (or the primary) during an outage.
func claimRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    500 * time.Millisecond,
		MaxBackoff:        10 * time.Second,
		BackoffMultiplier: 2.0,
		JitterFraction:    0.2,
	}
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       5,
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        5 * time.Second,
		BackoffMultiplier: 2.0,
		JitterFraction:    0.1,
	}
}

// delay returns the wait after the n-th failed attempt (n starts at 1),
// before jitter. It grows by BackoffMultiplier and is capped at MaxBackoff.
func (c RetryConfig) delay(n int) time.Duration {
	d := c.InitialBackoff
	for i := 1; i < n; i++ {
		d = time.Duration(float64(d) * c.BackoffMultiplier)
		if c.MaxBackoff > 0 && d >= c.MaxBackoff {
			return c.MaxBackoff
		}
	}
	if c.MaxBackoff > 0 && d > c.MaxBackoff {
		return c.MaxBackoff
	}
	return d
}

// jitter spreads d by up to +/- fraction of itself.
func jitter(d time.Duration, fraction float64) time.Duration {
	if fraction <= 0 || d <= 0 {
		return d
	}
	j := d + time.Duration(float64(d)*fraction*(rand.Float64()*2-1))
	if j < 0 {
		return d
	}
	return j
}

// retryWithBackoff runs operation until it succeeds, fails with an error
// IsRetryableError rejects, or config.MaxAttempts runs are used up. It returns
// the last error, or ctx.Err() when cancelled while waiting.
func retryWithBackoff(ctx context.Context, config RetryConfig, operation func() error) error {
	attempts := max(config.MaxAttempts, 1)

	var err error
	for n := 1; ; n++ {
		if err = operation(); err == nil {
			return nil
		}
		if n >= attempts || !IsRetryableError(err) {
			return err
		}

		t := time.NewTimer(jitter(config.delay(n), config.JitterFraction))
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// IsRetryableError determines if an error is worth retrying.
// Returns false for errors that indicate permanent failures.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	// Context errors are not retryable
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	// Another worker owns the job, or it is gone. Asking again cannot help.
	if errors.Is(err, core.ErrJobNotOwned) || errors.Is(err, core.ErrJobNotFound) {
		return false
	}

	// Busy databases, dropped connections and unreachable primaries are
	// usually transient. We default to retrying unless we know it's permanent.
	return true
}
