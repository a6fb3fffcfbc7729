// Package context provides context helpers for the jobqueue packages.
package context

import (
	"context"
	"log/slog"

	"github.com/billable/jobqueue/pkg/core"
)

// JobContextKey is the key for storing job context in context.Context.
type JobContextKey struct{}

// JobContext holds the job being processed and the worker that claimed it.
type JobContext struct {
	Job      *core.Job
	WorkerID string
	Logger   *slog.Logger
}

// GetJobContext retrieves the job context from a context.Context.
func GetJobContext(ctx context.Context) *JobContext {
	if jc, ok := ctx.Value(JobContextKey{}).(*JobContext); ok {
		return jc
	}
	return nil
}

// WithJobContext adds job context to a context.Context.
func WithJobContext(ctx context.Context, jc *JobContext) context.Context {
	return context.WithValue(ctx, JobContextKey{}, jc)
}
