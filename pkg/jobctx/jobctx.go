// Package jobctx provides public access to job context for handlers.
package jobctx

import (
	"context"
	"log/slog"

	"github.com/billable/jobqueue/pkg/core"
	intctx "github.com/billable/jobqueue/pkg/internal/context"
)

// JobFromContext returns the current Job from context, or nil if not in a job handler.
// Use this to get the job ID for logging or progress tracking.
func JobFromContext(ctx context.Context) *core.Job {
	jc := intctx.GetJobContext(ctx)
	if jc == nil {
		return nil
	}
	return jc.Job
}

// JobIDFromContext returns the current job ID from context, or empty string if not in a job handler.
func JobIDFromContext(ctx context.Context) string {
	job := JobFromContext(ctx)
	if job == nil {
		return ""
	}
	return job.ID
}

// Attempt returns which dispatch of the current job this is, starting at 1.
// It returns 0 outside a job handler.
func Attempt(ctx context.Context) int {
	job := JobFromContext(ctx)
	if job == nil {
		return 0
	}
	return job.Attempts
}

// IsLastAttempt reports whether a failure now would fail the job permanently.
func IsLastAttempt(ctx context.Context) bool {
	job := JobFromContext(ctx)
	return job != nil && job.Attempts >= job.MaxAttempts
}

// WorkerID returns the id of the worker running the current job.
func WorkerID(ctx context.Context) string {
	jc := intctx.GetJobContext(ctx)
	if jc == nil {
		return ""
	}
	return jc.WorkerID
}

// Logger returns the worker's logger annotated with the current job, or
// slog.Default() outside a job handler.
func Logger(ctx context.Context) *slog.Logger {
	jc := intctx.GetJobContext(ctx)
	if jc == nil || jc.Logger == nil {
		return slog.Default()
	}
	return jc.Logger
}
