package storage

import (
	"context"
	"time"

	"github.com/billable/jobqueue/pkg/core"
	"github.com/billable/jobqueue/pkg/forward"
)

// JobModel is the forwarded model name of the jobs table.
const JobModel = "job"

// Job operations as they appear on the wire.
const (
	OpMigrate      = "migrate"
	OpCreate       = "create"
	OpClaimNext    = "claimNext"
	OpComplete     = "complete"
	OpFailOrRetry  = "failOrRetry"
	OpFail         = "fail"
	OpCancel       = "cancel"
	OpCleanup      = "cleanup"
	OpGet          = "get"
	OpListByStatus = "listByStatus"
	OpFindLatest   = "findLatest"
	OpStats        = "stats"
)

type claimArgs struct {
	WorkerID string `json:"workerId"`
}

type finishArgs struct {
	ID       string    `json:"id"`
	WorkerID string    `json:"workerId"`
	Error    string    `json:"error,omitempty"`
	RetryAt  time.Time `json:"retryAt,omitzero"`
}

type idArgs struct {
	ID string `json:"id"`
}

type cleanupArgs struct {
	OlderThan time.Time        `json:"olderThan"`
	Statuses  []core.JobStatus `json:"statuses,omitempty"`
}

type listArgs struct {
	Status core.JobStatus `json:"status"`
	Limit  int            `json:"limit"`
}

type latestArgs struct {
	Type         string `json:"type"`
	DataContains string `json:"dataContains,omitempty"`
}

type statusResult struct {
	Status core.JobStatus `json:"status"`
}

type cancelResult struct {
	Cancelled bool `json:"cancelled"`
}

type cleanupResult struct {
	Deleted int64 `json:"deleted"`
}

type none struct{}

// RegisterCommands exposes s on reg under the "job" model so that the primary
// can execute job operations sent by other nodes.
func RegisterCommands(reg *forward.Registry, s *GormStorage) {
	forward.Handle(reg, JobModel, OpMigrate, forward.Write, func(ctx context.Context, _ none) (none, error) {
		return none{}, s.Migrate(ctx)
	})
	forward.Handle(reg, JobModel, OpCreate, forward.Write, func(ctx context.Context, job core.Job) (*core.Job, error) {
		if err := s.Create(ctx, &job); err != nil {
			return nil, err
		}
		return &job, nil
	})
	forward.Handle(reg, JobModel, OpClaimNext, forward.Write, func(ctx context.Context, a claimArgs) (*core.Job, error) {
		return s.ClaimNext(ctx, a.WorkerID)
	})
	forward.Handle(reg, JobModel, OpComplete, forward.Write, func(ctx context.Context, a finishArgs) (none, error) {
		return none{}, s.Complete(ctx, a.ID, a.WorkerID)
	})
	forward.Handle(reg, JobModel, OpFailOrRetry, forward.Write, func(ctx context.Context, a finishArgs) (statusResult, error) {
		st, err := s.FailOrRetry(ctx, a.ID, a.WorkerID, a.Error, a.RetryAt)
		return statusResult{Status: st}, err
	})
	forward.Handle(reg, JobModel, OpFail, forward.Write, func(ctx context.Context, a finishArgs) (none, error) {
		return none{}, s.Fail(ctx, a.ID, a.WorkerID, a.Error)
	})
	forward.Handle(reg, JobModel, OpCancel, forward.Write, func(ctx context.Context, a idArgs) (cancelResult, error) {
		ok, err := s.Cancel(ctx, a.ID)
		return cancelResult{Cancelled: ok}, err
	})
	forward.Handle(reg, JobModel, OpCleanup, forward.Write, func(ctx context.Context, a cleanupArgs) (cleanupResult, error) {
		n, err := s.Cleanup(ctx, a.OlderThan, a.Statuses...)
		return cleanupResult{Deleted: n}, err
	})

	forward.Handle(reg, JobModel, OpGet, forward.Read, func(ctx context.Context, a idArgs) (*core.Job, error) {
		return s.Get(ctx, a.ID)
	})
	forward.Handle(reg, JobModel, OpListByStatus, forward.Read, func(ctx context.Context, a listArgs) ([]*core.Job, error) {
		return s.ListByStatus(ctx, a.Status, a.Limit)
	})
	forward.Handle(reg, JobModel, OpFindLatest, forward.Read, func(ctx context.Context, a latestArgs) (*core.Job, error) {
		return s.FindLatest(ctx, a.Type, a.DataContains)
	})
	forward.Handle(reg, JobModel, OpStats, forward.Read, func(ctx context.Context, _ none) (*core.Stats, error) {
		return s.Stats(ctx)
	})
}
