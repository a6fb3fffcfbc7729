package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/billable/jobqueue/pkg/core"
	"github.com/billable/jobqueue/pkg/jobctx"
	"github.com/billable/jobqueue/pkg/queue"
	"github.com/billable/jobqueue/pkg/storage"
)

func newTestQueue(t *testing.T) (*queue.Queue, *storage.GormStorage) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(storage.DSN(filepath.Join(t.TempDir(), "jobs.db"))), storage.GormConfig(logger.Silent))
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	s := storage.NewGormStorage(db)
	require.NoError(t, s.Migrate(context.Background()))
	return queue.New(s, nil), s
}

// fastOptions keep the tests quick: short polls and no retry delay.
func fastOptions(extra ...WorkerOption) []WorkerOption {
	return append([]WorkerOption{
		PollInterval(10 * time.Millisecond),
		WithBackoff(Constant(0)),
		WithWorkerID("test-worker"),
	}, extra...)
}

// runWorker starts w in the background and stops it when the test ends.
func runWorker(t *testing.T, w *Worker) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("worker did not stop")
		}
	})
}

func waitForStatus(t *testing.T, s *storage.GormStorage, id string, status core.JobStatus) *core.Job {
	t.Helper()
	var job *core.Job
	require.Eventually(t, func() bool {
		var err error
		job, err = s.Get(context.Background(), id)
		return err == nil && job != nil && job.Status == status
	}, 5*time.Second, 10*time.Millisecond, "job %s never reached %s", id, status)
	return job
}

func TestNewWorker_Defaults(t *testing.T) {
	q, _ := newTestQueue(t)
	w := NewWorker(q)

	assert.Equal(t, DefaultPollInterval, w.config.PollInterval)
	assert.Equal(t, DefaultMaxConcurrent, w.config.MaxConcurrent)
	assert.NotEmpty(t, w.ID())
	assert.Equal(t, DefaultBackoff(), w.config.Backoff)
	require.NotNil(t, w.config.StorageRetry)
	require.NotNil(t, w.config.ClaimRetry)
	assert.Equal(t, 3, w.config.ClaimRetry.MaxAttempts)
}

func TestWorker_CompletesJob(t *testing.T) {
	q, s := newTestQueue(t)

	var seen atomic.Value
	q.Register("upsert-invoice-pdf", queue.Typed(func(ctx context.Context, p struct {
		InvoiceID string `json:"invoiceId"`
	}) error {
		seen.Store(fmt.Sprintf("%s/%s/%d", p.InvoiceID, jobctx.WorkerID(ctx), jobctx.Attempt(ctx)))
		return nil
	}))

	id, err := q.Enqueue(context.Background(), "upsert-invoice-pdf", map[string]string{"invoiceId": "inv-1"})
	require.NoError(t, err)

	runWorker(t, NewWorker(q, fastOptions()...))

	job := waitForStatus(t, s, id, core.StatusCompleted)
	assert.Equal(t, 1, job.Attempts)
	assert.Nil(t, job.Error)
	assert.Equal(t, "inv-1/test-worker/1", seen.Load())
}

func TestWorker_RetriesUntilSuccess(t *testing.T) {
	q, s := newTestQueue(t)

	var calls atomic.Int32
	q.Register("flaky", func(context.Context, json.RawMessage) error {
		if calls.Add(1) < 3 {
			return errors.New("temporary outage")
		}
		return nil
	})

	id, err := q.Enqueue(context.Background(), "flaky", nil)
	require.NoError(t, err)

	runWorker(t, NewWorker(q, fastOptions()...))

	job := waitForStatus(t, s, id, core.StatusCompleted)
	assert.Equal(t, 3, job.Attempts)
	assert.Equal(t, int32(3), calls.Load())
}

func TestWorker_FailsAfterMaxAttempts(t *testing.T) {
	q, s := newTestQueue(t)

	var calls atomic.Int32
	q.Register("broken", func(context.Context, json.RawMessage) error {
		calls.Add(1)
		return errors.New("always broken")
	})

	var failHooks, retryHooks atomic.Int32
	q.OnJobFail(func(context.Context, *core.Job, error) { failHooks.Add(1) })
	q.OnRetry(func(context.Context, *core.Job, int, error) { retryHooks.Add(1) })

	id, err := q.Enqueue(context.Background(), "broken", nil, queue.MaxAttempts(3))
	require.NoError(t, err)

	runWorker(t, NewWorker(q, fastOptions()...))

	job := waitForStatus(t, s, id, core.StatusFailed)
	assert.Equal(t, 3, job.Attempts)
	assert.Equal(t, "always broken", job.LastError())

	// Give the loop a chance to misbehave before checking it left the job alone.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, int32(1), failHooks.Load())
	assert.Equal(t, int32(2), retryHooks.Load())
}

func TestWorker_MissingHandlerIsTerminal(t *testing.T) {
	q, s := newTestQueue(t)

	id, err := q.Enqueue(context.Background(), "nobody-home", nil, queue.MaxAttempts(5))
	require.NoError(t, err)

	runWorker(t, NewWorker(q, fastOptions()...))

	job := waitForStatus(t, s, id, core.StatusFailed)
	assert.Equal(t, 1, job.Attempts)
	assert.Equal(t, "no handler registered for job type: nobody-home", job.LastError())
}

func TestWorker_NoRetryErrorIsTerminal(t *testing.T) {
	q, s := newTestQueue(t)

	q.Register("invalid-input", func(context.Context, json.RawMessage) error {
		return core.NoRetry(errors.New("invoice not found"))
	})

	id, err := q.Enqueue(context.Background(), "invalid-input", nil, queue.MaxAttempts(5))
	require.NoError(t, err)

	runWorker(t, NewWorker(q, fastOptions()...))

	job := waitForStatus(t, s, id, core.StatusFailed)
	assert.Equal(t, 1, job.Attempts)
	assert.Contains(t, job.LastError(), "invoice not found")
}

func TestWorker_MalformedPayloadIsTerminal(t *testing.T) {
	q, s := newTestQueue(t)

	q.Register("typed", queue.Typed(func(context.Context, struct{ N int }) error { return nil }))

	id, err := q.Enqueue(context.Background(), "typed", json.RawMessage(`{"N":"not a number"}`))
	require.NoError(t, err)

	runWorker(t, NewWorker(q, fastOptions()...))

	job := waitForStatus(t, s, id, core.StatusFailed)
	assert.Equal(t, 1, job.Attempts)
	assert.Contains(t, job.LastError(), "decode payload")
}

func TestWorker_RetryAfterOverridesBackoff(t *testing.T) {
	q, s := newTestQueue(t)

	q.Register("rate-limited", func(context.Context, json.RawMessage) error {
		return core.RetryAfter(time.Hour, errors.New("429 from smtp relay"))
	})

	id, err := q.Enqueue(context.Background(), "rate-limited", nil)
	require.NoError(t, err)

	runWorker(t, NewWorker(q, fastOptions()...))

	var job *core.Job
	require.Eventually(t, func() bool {
		job, err = s.Get(context.Background(), id)
		return err == nil && job.Attempts == 1 && job.Status == core.StatusPending
	}, 5*time.Second, 10*time.Millisecond)

	require.NotNil(t, job.RetryAt)
	assert.WithinDuration(t, time.Now().Add(time.Hour), *job.RetryAt, time.Minute)
}

func TestWorker_BackoffDelaysRetry(t *testing.T) {
	q, s := newTestQueue(t)

	q.Register("slow-retry", func(context.Context, json.RawMessage) error {
		return errors.New("try later")
	})

	id, err := q.Enqueue(context.Background(), "slow-retry", nil)
	require.NoError(t, err)

	runWorker(t, NewWorker(q,
		PollInterval(10*time.Millisecond),
		WithBackoff(Exponential{Base: time.Minute, Max: time.Hour}),
	))

	var job *core.Job
	require.Eventually(t, func() bool {
		job, err = s.Get(context.Background(), id)
		return err == nil && job.Attempts == 1 && job.Status == core.StatusPending
	}, 5*time.Second, 10*time.Millisecond)

	require.NotNil(t, job.RetryAt)
	// First failure: 2^1 minutes.
	assert.WithinDuration(t, time.Now().Add(2*time.Minute), *job.RetryAt, 10*time.Second)

	time.Sleep(50 * time.Millisecond)
	job, err = s.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 1, job.Attempts, "job must not be claimed before its retry time")
}

func TestWorker_RecoversFromPanic(t *testing.T) {
	q, s := newTestQueue(t)

	q.Register("panicky", func(context.Context, json.RawMessage) error {
		panic("nil map write")
	})

	id, err := q.Enqueue(context.Background(), "panicky", nil, queue.MaxAttempts(1))
	require.NoError(t, err)

	runWorker(t, NewWorker(q, fastOptions()...))

	job := waitForStatus(t, s, id, core.StatusFailed)
	assert.Equal(t, "panic: nil map write", job.LastError())
}

func TestWorker_RespectsMaxConcurrent(t *testing.T) {
	q, s := newTestQueue(t)

	const limit = 2
	var (
		running atomic.Int32
		peak    atomic.Int32
		release = make(chan struct{})
	)
	q.Register("blocking", func(context.Context, json.RawMessage) error {
		n := running.Add(1)
		defer running.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		<-release
		return nil
	})

	ids := make([]string, 6)
	for i := range ids {
		var err error
		ids[i], err = q.Enqueue(context.Background(), "blocking", nil)
		require.NoError(t, err)
	}

	runWorker(t, NewWorker(q, fastOptions(MaxConcurrent(limit))...))

	require.Eventually(t, func() bool { return running.Load() == limit }, 5*time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	stats, err := s.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(limit), stats.Processing, "claimed jobs never exceed the limit")

	close(release)
	for _, id := range ids {
		waitForStatus(t, s, id, core.StatusCompleted)
	}
	assert.Equal(t, int32(limit), peak.Load())
}

func TestWorker_ProcessesOldestFirst(t *testing.T) {
	q, s := newTestQueue(t)

	var (
		mu    sync.Mutex
		order []string
	)
	q.Register("ordered", queue.Typed(func(_ context.Context, p struct{ Name string }) error {
		mu.Lock()
		order = append(order, p.Name)
		mu.Unlock()
		return nil
	}))

	var last string
	for _, name := range []string{"first", "second", "third"} {
		var err error
		last, err = q.Enqueue(context.Background(), "ordered", map[string]string{"Name": name})
		require.NoError(t, err)
		time.Sleep(2 * time.Millisecond)
	}

	runWorker(t, NewWorker(q, fastOptions(MaxConcurrent(1))...))

	waitForStatus(t, s, last, core.StatusCompleted)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"first", "second", "third"}, order)
}

func TestWorker_ShutdownFinishesRunningJob(t *testing.T) {
	q, s := newTestQueue(t)

	started := make(chan struct{})
	q.Register("long", func(ctx context.Context, _ json.RawMessage) error {
		close(started)
		time.Sleep(100 * time.Millisecond)
		return nil
	})

	id, err := q.Enqueue(context.Background(), "long", nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewWorker(q, fastOptions()...).Start(ctx) }()

	<-started
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop")
	}

	job, err := s.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, core.StatusCompleted, job.Status, "a finished job is recorded despite shutdown")
}

func TestWorker_EmitsLifecycleEvents(t *testing.T) {
	q, s := newTestQueue(t)

	q.Register("evented", func(context.Context, json.RawMessage) error { return nil })
	events := q.Events()
	defer q.Unsubscribe(events)

	id, err := q.Enqueue(context.Background(), "evented", nil)
	require.NoError(t, err)

	runWorker(t, NewWorker(q, fastOptions()...))
	waitForStatus(t, s, id, core.StatusCompleted)

	var kinds []string
	require.Eventually(t, func() bool {
		for {
			select {
			case e := <-events:
				kinds = append(kinds, fmt.Sprintf("%T", e))
			default:
				return len(kinds) >= 3
			}
		}
	}, time.Second, 10*time.Millisecond)

	assert.Equal(t, []string{"*core.JobEnqueued", "*core.JobStarted", "*core.JobCompleted"}, kinds)
}

func TestWorker_EventsCarryStatusAtEmitTime(t *testing.T) {
	q, s := newTestQueue(t)

	var calls atomic.Int32
	q.Register("flaky", func(context.Context, json.RawMessage) error {
		if calls.Add(1) == 1 {
			return errors.New("first attempt fails")
		}
		return nil
	})
	events := q.Events()
	defer q.Unsubscribe(events)

	// The subscriber reads event fields while the worker keeps going.
	statuses := make(chan string, 16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for e := range events {
			switch ev := e.(type) {
			case *core.JobStarted:
				statuses <- "started:" + string(ev.Job.Status)
			case *core.JobRetrying:
				statuses <- "retrying:" + string(ev.Job.Status)
			case *core.JobCompleted:
				statuses <- "completed:" + string(ev.Job.Status)
				return
			}
		}
	}()

	id, err := q.Enqueue(context.Background(), "flaky", nil)
	require.NoError(t, err)

	runWorker(t, NewWorker(q, fastOptions()...))
	waitForStatus(t, s, id, core.StatusCompleted)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("completion event never arrived")
	}
	close(statuses)

	var got []string
	for st := range statuses {
		got = append(got, st)
	}
	assert.Equal(t, []string{
		"started:processing",
		"retrying:pending",
		"started:processing",
		"completed:completed",
	}, got)
}

func TestWorker_StopsWhenContextCancelledWhileIdle(t *testing.T) {
	q, _ := newTestQueue(t)
	w := NewWorker(q, PollInterval(time.Hour))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := w.Start(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
