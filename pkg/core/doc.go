// Package core provides the fundamental types and interfaces for the jobqueue package.
//
// This package contains:
//   - The Job data model with GORM annotations
//   - Storage interface defining the Job Record Store contract
//   - Event types for queue monitoring
//   - Error types for job processing
//
// Most users should import the root package github.com/billable/jobqueue
// instead of this package directly.
package core
