package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/billable/jobqueue/pkg/core"
	intctx "github.com/billable/jobqueue/pkg/internal/context"
	"github.com/billable/jobqueue/pkg/queue"
)

// Worker claims pending jobs and runs their handlers, holding at most
// MaxConcurrent jobs at a time.
type Worker struct {
	queue  *queue.Queue
	config WorkerConfig
	logger *slog.Logger
	wg     sync.WaitGroup
}

// NewWorker creates a new worker for the given queue.
func NewWorker(q *queue.Queue, opts ...WorkerOption) *Worker {
	config := WorkerConfig{
		PollInterval:  DefaultPollInterval,
		MaxConcurrent: DefaultMaxConcurrent,
		WorkerID:      uuid.New().String(),
	}

	for _, opt := range opts {
		opt.ApplyWorker(&config)
	}

	if config.Backoff == nil {
		config.Backoff = DefaultBackoff()
	}
	if config.StorageRetry == nil {
		defaultCfg := DefaultRetryConfig()
		config.StorageRetry = &defaultCfg
	}
	if config.ClaimRetry == nil {
		claimCfg := claimRetryConfig()
		config.ClaimRetry = &claimCfg
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Worker{
		queue:  q,
		config: config,
		logger: logger.With("worker_id", config.WorkerID),
	}
}

// ID returns the id the worker records on claimed jobs.
func (w *Worker) ID() string {
	return w.config.WorkerID
}

// Start begins processing jobs. Blocks until context is cancelled, then
// waits for in-flight jobs to finish.
//
// A slot is taken before every claim, so the number of jobs this worker has
// moved to processing but not finished never exceeds MaxConcurrent.
func (w *Worker) Start(ctx context.Context) error {
	slots := make(chan struct{}, w.config.MaxConcurrent)

	w.logger.Info("worker started",
		"max_concurrent", w.config.MaxConcurrent, "poll_interval", w.config.PollInterval)

	for {
		if ctx.Err() != nil {
			return w.shutdown(ctx)
		}
		select {
		case slots <- struct{}{}:
		case <-ctx.Done():
			return w.shutdown(ctx)
		}

		job, err := w.claimWithRetry(ctx)
		if err != nil || job == nil {
			<-slots
			if err != nil && ctx.Err() == nil {
				w.logger.Error("failed to claim job after retries", "error", err)
			}
			if !w.idle(ctx) {
				return w.shutdown(ctx)
			}
			continue
		}

		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			defer func() { <-slots }()
			w.processJob(ctx, job)
		}()
	}
}

// idle sleeps for the poll interval. It reports false when ctx ends first.
func (w *Worker) idle(ctx context.Context) bool {
	t := time.NewTimer(w.config.PollInterval)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func (w *Worker) shutdown(ctx context.Context) error {
	w.logger.Info("worker stopping, waiting for running jobs")
	w.wg.Wait()
	return ctx.Err()
}

// claimWithRetry attempts to claim a job with exponential backoff on failure.
func (w *Worker) claimWithRetry(ctx context.Context) (*core.Job, error) {
	var job *core.Job
	err := retryWithBackoff(ctx, *w.config.ClaimRetry, func() error {
		var claimErr error
		job, claimErr = w.queue.Storage().ClaimNext(ctx, w.config.WorkerID)
		return claimErr
	})
	return job, err
}

func (w *Worker) processJob(ctx context.Context, job *core.Job) {
	startTime := time.Now()
	logger := w.logger.With("job_id", job.ID, "type", job.Type, "attempt", job.Attempts)

	// The job is ours now; its outcome must be recorded even if shutdown
	// cancels ctx while the handler runs.
	finishCtx := context.WithoutCancel(ctx)

	h, ok := w.queue.Registry().Resolve(job.Type)
	if !ok {
		err := fmt.Errorf("%w: %s", core.ErrNoHandler, job.Type)
		logger.Error("no handler for job")
		if w.failWithRetry(finishCtx, job, fmt.Sprintf("no handler registered for job type: %s", job.Type)) {
			w.failed(finishCtx, job, err)
		}
		return
	}

	w.queue.CallStartHooks(ctx, snapshot(job, core.StatusProcessing))
	w.queue.Emit(&core.JobStarted{Job: snapshot(job, core.StatusProcessing), Timestamp: startTime})
	logger.Debug("job started")

	err := w.executeHandler(ctx, job, h, logger)
	if err != nil {
		w.handleError(finishCtx, job, err, logger)
		return
	}

	if err := w.completeWithRetry(finishCtx, job.ID); err != nil {
		logger.Error("failed to complete job after retries", "error", err)
		return
	}
	logger.Info("job completed", "duration", time.Since(startTime))
	w.queue.CallCompleteHooks(finishCtx, snapshot(job, core.StatusCompleted))
	w.queue.Emit(&core.JobCompleted{Job: snapshot(job, core.StatusCompleted), Duration: time.Since(startTime), Timestamp: time.Now()})
}

// completeWithRetry marks a job complete with retry on transient failures.
func (w *Worker) completeWithRetry(ctx context.Context, jobID string) error {
	return retryWithBackoff(ctx, *w.config.StorageRetry, func() error {
		return w.queue.Storage().Complete(ctx, jobID, w.config.WorkerID)
	})
}

func (w *Worker) executeHandler(ctx context.Context, job *core.Job, h queue.Handler, logger *slog.Logger) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	jobCtx := intctx.WithJobContext(ctx, &intctx.JobContext{
		Job:      job,
		WorkerID: w.config.WorkerID,
		Logger:   logger,
	})
	return h(jobCtx, job.Data)
}

func (w *Worker) handleError(ctx context.Context, job *core.Job, err error, logger *slog.Logger) {
	var noRetry *core.NoRetryError
	if errors.As(err, &noRetry) {
		logger.Warn("job failed permanently", "error", err)
		if w.failWithRetry(ctx, job, err.Error()) {
			w.failed(ctx, job, err)
		}
		return
	}

	delay := w.config.Backoff.Delay(job.Attempts)
	var retryAfter *core.RetryAfterError
	if errors.As(err, &retryAfter) {
		delay = retryAfter.Delay
	}
	retryAt := time.Now().Add(delay)

	var status core.JobStatus
	storeErr := retryWithBackoff(ctx, *w.config.StorageRetry, func() error {
		var e error
		status, e = w.queue.Storage().FailOrRetry(ctx, job.ID, w.config.WorkerID, err.Error(), retryAt)
		return e
	})
	if storeErr != nil {
		logger.Error("failed to record job failure after retries", "error", storeErr, "job_error", err)
		return
	}

	if status == core.StatusFailed {
		logger.Warn("job failed, no attempts left", "error", err, "max_attempts", job.MaxAttempts)
		w.failed(ctx, job, err)
		return
	}

	logger.Info("job failed, will retry", "error", err, "retry_at", retryAt)
	w.queue.CallRetryHooks(ctx, snapshot(job, core.StatusPending), job.Attempts, err)
	w.queue.Emit(&core.JobRetrying{Job: snapshot(job, core.StatusPending), Attempt: job.Attempts, Error: err, NextRunAt: retryAt, Timestamp: time.Now()})
}

func (w *Worker) failed(ctx context.Context, job *core.Job, err error) {
	w.queue.CallFailHooks(ctx, snapshot(job, core.StatusFailed), err)
	w.queue.Emit(&core.JobFailed{Job: snapshot(job, core.StatusFailed), Error: err, Timestamp: time.Now()})
}

// snapshot copies job with status applied. Hooks and event subscribers each
// get their own copy; the claimed job is never written after it is shared.
func snapshot(job *core.Job, status core.JobStatus) *core.Job {
	c := *job
	c.Status = status
	return &c
}

// failWithRetry marks a job as permanently failed with retry on transient
// storage failures. It reports whether the failure was recorded.
func (w *Worker) failWithRetry(ctx context.Context, job *core.Job, errMsg string) bool {
	err := retryWithBackoff(ctx, *w.config.StorageRetry, func() error {
		return w.queue.Storage().Fail(ctx, job.ID, w.config.WorkerID, errMsg)
	})
	if err != nil {
		w.logger.Error("failed to mark job as failed after retries", "job_id", job.ID, "error", err)
		return false
	}
	return true
}
