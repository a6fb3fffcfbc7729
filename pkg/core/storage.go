package core

import (
	"context"
	"time"
)

// Starter is the interface for starting workers.
type Starter interface {
	Start(ctx context.Context) error
}

// Storage defines the Job Record Store.
//
// Every write method must be safe under concurrent callers in different
// processes; ClaimNext in particular must hand a job to exactly one caller.
type Storage interface {
	// Migrate creates the necessary database tables.
	Migrate(ctx context.Context) error

	// Job lifecycle
	Create(ctx context.Context, job *Job) error
	ClaimNext(ctx context.Context, workerID string) (*Job, error)
	Complete(ctx context.Context, jobID string, workerID string) error
	FailOrRetry(ctx context.Context, jobID string, workerID string, errMsg string, retryAt time.Time) (JobStatus, error)
	Fail(ctx context.Context, jobID string, workerID string, errMsg string) error

	// Cancel removes a job that has not been claimed yet.
	Cancel(ctx context.Context, jobID string) (bool, error)

	// Cleanup deletes terminal jobs last updated before olderThan.
	// With no statuses given only completed jobs are removed.
	Cleanup(ctx context.Context, olderThan time.Time, statuses ...JobStatus) (int64, error)

	// Queries
	Get(ctx context.Context, jobID string) (*Job, error)
	ListByStatus(ctx context.Context, status JobStatus, limit int) ([]*Job, error)
	FindLatest(ctx context.Context, jobType string, dataContains string) (*Job, error)
	Stats(ctx context.Context) (*Stats, error)
}
