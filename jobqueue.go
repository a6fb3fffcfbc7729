// Package jobqueue provides a persistent background job queue for
// deployments with a single writable database node.
//
// This is the main package users should import. It re-exports the public
// types from the pkg/ packages for a clean API surface.
//
// Basic usage:
//
//	db, _ := jobqueue.OpenSQLite("jobs.db")
//	store := jobqueue.NewGormStorage(db)
//	store.Migrate(context.Background())
//	queue := jobqueue.New(store)
//
//	// Register handler
//	queue.Register("send-email", jobqueue.Typed(func(ctx context.Context, e Email) error {
//	    return sendEmail(e)
//	}))
//
//	// Enqueue job
//	queue.Enqueue(ctx, "send-email", Email{To: "user@example.com"})
//
//	// Start worker
//	worker := jobqueue.NewWorker(queue)
//	worker.Start(ctx)
//
// On a node that cannot write to the database, wrap a forward.Forwarder in
// NewForwardedStorage so job writes reach the primary over HTTP.
package jobqueue

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/billable/jobqueue/pkg/core"
	"github.com/billable/jobqueue/pkg/forward"
	"github.com/billable/jobqueue/pkg/jobctx"
	"github.com/billable/jobqueue/pkg/queue"
	"github.com/billable/jobqueue/pkg/schedule"
	"github.com/billable/jobqueue/pkg/security"
	"github.com/billable/jobqueue/pkg/storage"
	"github.com/billable/jobqueue/pkg/worker"
)

func init() {
	// Register the worker factory to enable queue.NewWorker()
	queue.WorkerFactory = func(q *queue.Queue, opts ...any) core.Starter {
		workerOpts := make([]worker.WorkerOption, 0, len(opts))
		for _, opt := range opts {
			if wo, ok := opt.(worker.WorkerOption); ok {
				workerOpts = append(workerOpts, wo)
			}
		}
		return worker.NewWorker(q, workerOpts...)
	}
}

type (
	// Job represents a unit of work to be processed.
	Job = core.Job

	// JobStatus represents the current state of a job.
	JobStatus = core.JobStatus

	// Stats holds job counts per status.
	Stats = core.Stats

	// Storage defines the Job Record Store.
	Storage = core.Storage

	// Event is the interface for all queue events.
	Event = core.Event

	// JobEnqueued is emitted when a job is stored.
	JobEnqueued = core.JobEnqueued

	// JobStarted is emitted when a job starts processing.
	JobStarted = core.JobStarted

	// JobCompleted is emitted when a job completes successfully.
	JobCompleted = core.JobCompleted

	// JobFailed is emitted when a job fails permanently.
	JobFailed = core.JobFailed

	// JobRetrying is emitted when a job is put back for another attempt.
	JobRetrying = core.JobRetrying

	// JobCancelled is emitted when a pending job is cancelled.
	JobCancelled = core.JobCancelled

	// NoRetryError indicates an error that should not be retried.
	NoRetryError = core.NoRetryError

	// RetryAfterError indicates an error that should be retried after a delay.
	RetryAfterError = core.RetryAfterError

	// Queue manages handler registration, enqueueing and lifecycle hooks.
	Queue = queue.Queue

	// Handler processes the JSON payload of one job.
	Handler = queue.Handler

	// Registry maps job types to handlers.
	Registry = queue.Registry

	// Option modifies Options.
	Option = queue.Option

	// Options holds configuration for job enqueueing.
	Options = queue.Options

	// Worker processes jobs from the queue.
	Worker = worker.Worker

	// WorkerOption configures a Worker.
	WorkerOption = worker.WorkerOption

	// WorkerConfig holds worker configuration.
	WorkerConfig = worker.WorkerConfig

	// Backoff computes the delay before a failed job is retried.
	Backoff = worker.Backoff

	// Schedule defines when recurring work runs next.
	Schedule = schedule.Schedule

	// GormStorage implements Storage using GORM.
	GormStorage = storage.GormStorage

	// ForwardedStorage implements Storage by sending job writes to the primary.
	ForwardedStorage = storage.ForwardedStorage
)

// Status constants
const (
	StatusPending    = core.StatusPending
	StatusProcessing = core.StatusProcessing
	StatusCompleted  = core.StatusCompleted
	StatusFailed     = core.StatusFailed
)

// Security limits
const (
	MaxJobTypeLength      = security.MaxJobTypeLength
	MaxJobDataSize        = security.MaxJobDataSize
	MaxAttemptsLimit      = security.MaxAttempts
	MaxConcurrency        = security.MaxConcurrency
	MaxErrorMessageLength = security.MaxErrorMessageLength
)

// DefaultMaxAttempts is the attempt ceiling of a job enqueued without MaxAttempts.
const DefaultMaxAttempts = core.DefaultMaxAttempts

// Error variables
var (
	ErrInvalidJobType   = core.ErrInvalidJobType
	ErrJobTypeTooLong   = core.ErrJobTypeTooLong
	ErrJobDataTooLarge  = core.ErrJobDataTooLarge
	ErrJobNotFound      = core.ErrJobNotFound
	ErrJobNotOwned      = core.ErrJobNotOwned
	ErrForwarding       = forward.ErrForwarding
	ErrUnauthorized     = forward.ErrUnauthorized
	ErrUnknownOperation = forward.ErrUnknownOperation
)

// New creates a new Queue with the given storage backend and an empty registry.
func New(s Storage) *Queue {
	return queue.New(s, queue.NewRegistry())
}

// OpenSQLite opens a SQLite database tuned for a single writer.
func OpenSQLite(path string) (*gorm.DB, error) {
	return storage.Open(path)
}

// NewGormStorage creates a new GORM-backed storage.
func NewGormStorage(db *gorm.DB) *GormStorage {
	return storage.NewGormStorage(db)
}

// NewForwardedStorage creates a storage that executes job operations through w.
func NewForwardedStorage(w forward.Writer) *ForwardedStorage {
	return storage.NewForwardedStorage(w)
}

// NewWorker creates a new worker for the given queue.
func NewWorker(q *Queue, opts ...WorkerOption) *Worker {
	return worker.NewWorker(q, opts...)
}

// Typed adapts a handler taking a decoded payload.
func Typed[T any](fn func(ctx context.Context, data T) error) Handler {
	return queue.Typed(fn)
}

// NoRetry wraps an error to indicate it should not be retried.
func NoRetry(err error) error {
	return core.NoRetry(err)
}

// RetryAfter wraps an error to indicate it should be retried after a delay.
func RetryAfter(d time.Duration, err error) error {
	return core.RetryAfter(d, err)
}

// ValidateJobType validates a job type.
func ValidateJobType(name string) error {
	return security.ValidateJobType(name)
}

// MaxAttempts sets how many times a job is dispatched before it fails.
func MaxAttempts(n int) Option {
	return queue.MaxAttempts(n)
}

// Worker option functions

// PollInterval sets how long an idle worker waits before polling again.
func PollInterval(d time.Duration) WorkerOption {
	return worker.PollInterval(d)
}

// MaxConcurrent caps the number of jobs a worker processes at once.
func MaxConcurrent(n int) WorkerOption {
	return worker.MaxConcurrent(n)
}

// WithBackoff sets the retry delay strategy.
func WithBackoff(b Backoff) WorkerOption {
	return worker.WithBackoff(b)
}

// Schedule functions

// Every creates a schedule that runs at fixed intervals.
func Every(d time.Duration) Schedule {
	return schedule.Every(d)
}

// Daily creates a schedule that runs at a specific time each day.
func Daily(hour, minute int) Schedule {
	return schedule.Daily(hour, minute)
}

// Weekly creates a schedule that runs at a specific day and time each week.
func Weekly(day time.Weekday, hour, minute int) Schedule {
	return schedule.Weekly(day, hour, minute)
}

// Cron creates a schedule from a cron expression.
func Cron(expr string) Schedule {
	return schedule.Cron(expr)
}

// JobFromContext returns the current Job from context, or nil if not in a job handler.
func JobFromContext(ctx context.Context) *Job {
	return jobctx.JobFromContext(ctx)
}

// JobIDFromContext returns the current job ID from context, or empty string if not in a job handler.
func JobIDFromContext(ctx context.Context) string {
	return jobctx.JobIDFromContext(ctx)
}
