// Package schedule provides schedules and a runner for recurring
// maintenance work such as removing old jobs.
//
// This package includes:
//   - Schedule interface for defining when work runs
//   - Every() for fixed-interval schedules
//   - Daily() for daily schedules at a specific time
//   - Weekly() for weekly schedules on a specific day and time
//   - Cron() and ParseCron() for cron expression-based schedules
//   - Runner, which runs named tasks on their schedules
//
// Most users should import the root package github.com/billable/jobqueue
// which re-exports these functions.
package schedule
