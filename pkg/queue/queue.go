package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/billable/jobqueue/pkg/core"
	"github.com/billable/jobqueue/pkg/security"
)

// Queue enqueues jobs into a core.Storage and carries the handler registry,
// hooks and event subscribers shared with workers.
type Queue struct {
	storage  core.Storage
	registry *Registry
	logger   *slog.Logger
	mu       sync.RWMutex

	// Hooks
	onStart    []func(context.Context, *core.Job)
	onComplete []func(context.Context, *core.Job)
	onFail     []func(context.Context, *core.Job, error)
	onRetry    []func(context.Context, *core.Job, int, error)

	// Event stream
	eventSubs []chan core.Event
}

// New creates a new Queue with the given storage backend. A nil registry
// is replaced by an empty one.
func New(s core.Storage, reg *Registry) *Queue {
	if reg == nil {
		reg = NewRegistry()
	}
	return &Queue{
		storage:  s,
		registry: reg,
		logger:   slog.Default(),
	}
}

// SetLogger replaces the queue's logger.
func (q *Queue) SetLogger(l *slog.Logger) {
	q.logger = l
}

// Storage returns the underlying storage.
func (q *Queue) Storage() core.Storage {
	return q.storage
}

// Registry returns the handler registry.
func (q *Queue) Registry() *Registry {
	return q.registry
}

// Register is shorthand for q.Registry().Register.
func (q *Queue) Register(jobType string, h Handler) {
	q.registry.Register(jobType, h)
}

// Enqueue stores a new pending job of jobType with data encoded as JSON and
// returns its id. A handler does not need to be registered in this process.
func (q *Queue) Enqueue(ctx context.Context, jobType string, data any, opts ...Option) (string, error) {
	if err := security.ValidateJobType(jobType); err != nil {
		return "", err
	}

	options := NewOptions()
	for _, opt := range opts {
		opt.Apply(options)
	}

	payload, err := encodeData(data)
	if err != nil {
		return "", fmt.Errorf("jobqueue: failed to marshal data: %w", err)
	}
	if len(payload) > security.MaxJobDataSize {
		return "", core.ErrJobDataTooLarge
	}

	job := &core.Job{
		Type:        jobType,
		Data:        payload,
		MaxAttempts: security.ClampMaxAttempts(options.MaxAttempts),
	}
	if err := q.storage.Create(ctx, job); err != nil {
		return "", fmt.Errorf("jobqueue: failed to enqueue: %w", err)
	}

	q.logger.Debug("job enqueued", "job_id", job.ID, "type", jobType)
	q.Emit(&core.JobEnqueued{Job: job, Timestamp: time.Now()})
	return job.ID, nil
}

func encodeData(data any) ([]byte, error) {
	switch v := data.(type) {
	case json.RawMessage:
		if !json.Valid(v) {
			return nil, fmt.Errorf("invalid JSON payload")
		}
		return v, nil
	case nil:
		return []byte("null"), nil
	default:
		return json.Marshal(v)
	}
}

// Get returns the job with the given id, or nil when it does not exist.
func (q *Queue) Get(ctx context.Context, jobID string) (*core.Job, error) {
	return q.storage.Get(ctx, jobID)
}

// Cancel removes a job that has not been claimed yet. It reports false when
// the job is already processing, finished, or unknown.
func (q *Queue) Cancel(ctx context.Context, jobID string) (bool, error) {
	ok, err := q.storage.Cancel(ctx, jobID)
	if err != nil {
		return false, fmt.Errorf("jobqueue: failed to cancel %s: %w", jobID, err)
	}
	if ok {
		q.logger.Info("job cancelled", "job_id", jobID)
		q.Emit(&core.JobCancelled{JobID: jobID, Timestamp: time.Now()})
	}
	return ok, nil
}

// Cleanup deletes finished jobs not updated within retention. Only completed
// jobs are removed unless statuses says otherwise.
func (q *Queue) Cleanup(ctx context.Context, retention time.Duration, statuses ...core.JobStatus) (int64, error) {
	n, err := q.storage.Cleanup(ctx, time.Now().Add(-retention), statuses...)
	if err != nil {
		return 0, fmt.Errorf("jobqueue: cleanup: %w", err)
	}
	if n > 0 {
		q.logger.Info("old jobs removed", "count", n, "retention", retention)
	}
	return n, nil
}

// Stats returns job counts per status.
func (q *Queue) Stats(ctx context.Context) (*core.Stats, error) {
	return q.storage.Stats(ctx)
}

// List returns up to limit jobs with the given status, oldest first.
func (q *Queue) List(ctx context.Context, status core.JobStatus, limit int) ([]*core.Job, error) {
	return q.storage.ListByStatus(ctx, status, limit)
}

// Latest returns the newest job of jobType whose payload contains fragment.
func (q *Queue) Latest(ctx context.Context, jobType, fragment string) (*core.Job, error) {
	return q.storage.FindLatest(ctx, jobType, fragment)
}

// OnJobStart registers a callback for when a job starts.
func (q *Queue) OnJobStart(fn func(context.Context, *core.Job)) {
	q.mu.Lock()
	q.onStart = append(q.onStart, fn)
	q.mu.Unlock()
}

// OnJobComplete registers a callback for when a job completes successfully.
func (q *Queue) OnJobComplete(fn func(context.Context, *core.Job)) {
	q.mu.Lock()
	q.onComplete = append(q.onComplete, fn)
	q.mu.Unlock()
}

// OnJobFail registers a callback for when a job fails permanently.
func (q *Queue) OnJobFail(fn func(context.Context, *core.Job, error)) {
	q.mu.Lock()
	q.onFail = append(q.onFail, fn)
	q.mu.Unlock()
}

// OnRetry registers a callback for when a job is scheduled for another attempt.
func (q *Queue) OnRetry(fn func(context.Context, *core.Job, int, error)) {
	q.mu.Lock()
	q.onRetry = append(q.onRetry, fn)
	q.mu.Unlock()
}

// Events returns a channel for receiving queue events.
// The caller must call Unsubscribe when done to prevent resource leaks.
func (q *Queue) Events() <-chan core.Event {
	ch := make(chan core.Event, 100)
	q.mu.Lock()
	q.eventSubs = append(q.eventSubs, ch)
	q.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber channel created by Events().
// The channel is not closed. After Unsubscribe returns, no further events
// will be sent to the channel.
func (q *Queue) Unsubscribe(ch <-chan core.Event) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, sub := range q.eventSubs {
		if sub == ch {
			q.eventSubs = append(q.eventSubs[:i], q.eventSubs[i+1:]...)
			return
		}
	}
}

// Emit emits an event to all subscribers.
func (q *Queue) Emit(e core.Event) {
	q.mu.RLock()
	subs := make([]chan core.Event, len(q.eventSubs))
	copy(subs, q.eventSubs)
	q.mu.RUnlock()

	for _, ch := range subs {
		select {
		case ch <- e:
		default:
			// Drop if full so a slow consumer never blocks a worker.
		}
	}
}

// CallStartHooks calls all registered start hooks.
func (q *Queue) CallStartHooks(ctx context.Context, job *core.Job) {
	q.mu.RLock()
	hooks := make([]func(context.Context, *core.Job), len(q.onStart))
	copy(hooks, q.onStart)
	q.mu.RUnlock()

	for _, fn := range hooks {
		fn(ctx, job)
	}
}

// CallCompleteHooks calls all registered complete hooks.
func (q *Queue) CallCompleteHooks(ctx context.Context, job *core.Job) {
	q.mu.RLock()
	hooks := make([]func(context.Context, *core.Job), len(q.onComplete))
	copy(hooks, q.onComplete)
	q.mu.RUnlock()

	for _, fn := range hooks {
		fn(ctx, job)
	}
}

// CallFailHooks calls all registered fail hooks.
func (q *Queue) CallFailHooks(ctx context.Context, job *core.Job, err error) {
	q.mu.RLock()
	hooks := make([]func(context.Context, *core.Job, error), len(q.onFail))
	copy(hooks, q.onFail)
	q.mu.RUnlock()

	for _, fn := range hooks {
		fn(ctx, job, err)
	}
}

// CallRetryHooks calls all registered retry hooks.
func (q *Queue) CallRetryHooks(ctx context.Context, job *core.Job, attempt int, err error) {
	q.mu.RLock()
	hooks := make([]func(context.Context, *core.Job, int, error), len(q.onRetry))
	copy(hooks, q.onRetry)
	q.mu.RUnlock()

	for _, fn := range hooks {
		fn(ctx, job, attempt, err)
	}
}

// WorkerFactory is set by the root package to create workers.
// This avoids import cycles between queue and worker packages.
var WorkerFactory func(q *Queue, opts ...any) core.Starter

// NewWorker creates a new worker for this queue.
// Options should be worker.WorkerOption values.
func (q *Queue) NewWorker(opts ...any) core.Starter {
	if WorkerFactory == nil {
		panic("jobqueue: WorkerFactory not initialized - import github.com/billable/jobqueue to initialize")
	}
	return WorkerFactory(q, opts...)
}
