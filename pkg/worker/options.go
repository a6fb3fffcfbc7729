// Package worker provides the Worker job processor for the jobqueue packages.
package worker

import (
	"log/slog"
	"time"

	"github.com/billable/jobqueue/pkg/security"
)

// Defaults used when no option overrides them.
const (
	DefaultPollInterval  = 5 * time.Second
	DefaultMaxConcurrent = 3
)

// WorkerOption configures a Worker.
type WorkerOption interface {
	ApplyWorker(*WorkerConfig)
}

type workerOptionFunc func(*WorkerConfig)

func (f workerOptionFunc) ApplyWorker(c *WorkerConfig) { f(c) }

// WorkerConfig holds worker configuration.
type WorkerConfig struct {
	PollInterval  time.Duration
	MaxConcurrent int
	WorkerID      string
	Backoff       Backoff
	StorageRetry  *RetryConfig
	ClaimRetry    *RetryConfig
	Logger        *slog.Logger
}

// PollInterval sets how long an idle worker sleeps before looking for work again.
func PollInterval(d time.Duration) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		if d > 0 {
			c.PollInterval = d
		}
	})
}

// MaxConcurrent sets how many jobs the worker may hold at once.
// Values are clamped to [1, MaxConcurrency].
func MaxConcurrent(n int) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		c.MaxConcurrent = security.ClampConcurrency(n)
	})
}

// WithWorkerID sets the id recorded on claimed jobs.
func WithWorkerID(id string) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		c.WorkerID = id
	})
}

// WithBackoff sets the delay policy applied after a retryable failure.
func WithBackoff(b Backoff) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		c.Backoff = b
	})
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		c.Logger = l
	})
}

// WithStorageRetry configures retries of complete and fail calls.
func WithStorageRetry(cfg RetryConfig) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		c.StorageRetry = &cfg
	})
}

// WithClaimRetry configures retries of claim calls.
func WithClaimRetry(cfg RetryConfig) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		c.ClaimRetry = &cfg
	})
}

// WithRetryAttempts sets the storage retry attempts, keeping other defaults.
func WithRetryAttempts(n int) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		cfg := DefaultRetryConfig()
		cfg.MaxAttempts = n
		c.StorageRetry = &cfg
	})
}

// DisableRetry makes every storage call a single attempt.
func DisableRetry() WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		once := DefaultRetryConfig()
		once.MaxAttempts = 1
		claim := once
		c.StorageRetry = &once
		c.ClaimRetry = &claim
	})
}
