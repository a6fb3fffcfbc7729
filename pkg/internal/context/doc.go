// Package context provides internal context helpers for job execution.
//
// This package is internal and should not be imported directly.
// It carries the job being processed, the worker that claimed it and a
// logger annotated with both.
package context
