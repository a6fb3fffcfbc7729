// Package security provides validation, sanitization, and limits for the jobqueue package.
//
// This package includes:
//   - Input validation for job types and forwarded model/operation names
//   - Error message sanitization to prevent sensitive data leakage
//   - Clamping functions to enforce safe limits on attempts and concurrency
//   - Bearer token parsing and constant-time comparison for the write endpoint
//
// Most users should import the root package github.com/billable/jobqueue
// which re-exports these functions.
package security
