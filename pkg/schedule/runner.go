package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Task is one run of recurring work.
type Task func(ctx context.Context) error

type entry struct {
	name     string
	schedule Schedule
	task     Task
}

// Runner runs named tasks on their schedules. A failing run is logged and
// the task runs again at its next scheduled time.
type Runner struct {
	mu      sync.Mutex
	entries []entry
	logger  *slog.Logger
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) RunnerOption {
	return func(r *Runner) {
		r.logger = l
	}
}

// NewRunner creates an empty Runner.
func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Add registers task under name. Tasks added after Run has started are
// picked up by the next call to Run.
func (r *Runner) Add(name string, s Schedule, task Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry{name: name, schedule: s, task: task})
}

// Run blocks until ctx is cancelled, running every task when it is due.
// It waits for running tasks before returning ctx.Err().
func (r *Runner) Run(ctx context.Context) error {
	r.mu.Lock()
	entries := make([]entry, len(r.entries))
	copy(entries, r.entries)
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, e := range entries {
		wg.Add(1)
		go func(e entry) {
			defer wg.Done()
			r.loop(ctx, e)
		}(e)
	}
	wg.Wait()
	return ctx.Err()
}

func (r *Runner) loop(ctx context.Context, e entry) {
	logger := r.logger.With("task", e.name)
	for {
		now := time.Now()
		next := e.schedule.Next(now)
		if next.IsZero() {
			logger.Warn("schedule has no future runs")
			return
		}
		logger.Debug("next run scheduled", "at", next)

		t := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}

		start := time.Now()
		if err := r.runOnce(ctx, e); err != nil {
			logger.Error("scheduled task failed", "error", err, "duration", time.Since(start))
			continue
		}
		logger.Debug("scheduled task finished", "duration", time.Since(start))
	}
}

func (r *Runner) runOnce(ctx context.Context, e entry) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return e.task(ctx)
}
