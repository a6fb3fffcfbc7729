// Package worker provides the Worker type for job processing.
//
// This package includes:
//   - Worker: claims pending jobs and runs their handlers
//   - WorkerOption: configuration options for workers
//   - Backoff: the delay before a failed job may run again
//   - RetryConfig: retries of transient storage failures
//
// Most users should import the root package github.com/billable/jobqueue
// which provides access to worker configuration through queue.NewWorker().
package worker
