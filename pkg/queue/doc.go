// Package queue provides the Handler Registry and the Queue type used to
// enqueue and inspect jobs.
//
// This package includes:
//   - Registry: maps job types to handlers
//   - Typed: adapts a func(ctx, T) error into a Handler
//   - Queue: enqueueing, cancellation, cleanup and statistics
//   - Hook registration and event subscription for job lifecycle events
//
// Most users should import the root package github.com/billable/jobqueue
// which re-exports Queue and all option functions.
package queue
