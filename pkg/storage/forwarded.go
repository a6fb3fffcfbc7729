package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/billable/jobqueue/pkg/core"
	"github.com/billable/jobqueue/pkg/forward"
)

// ForwardedStorage implements core.Storage by sending every operation
// through a forward.Writer. Paired with a forward.Forwarder it reads the
// local database and writes through the primary when running on a replica.
type ForwardedStorage struct {
	w forward.Writer
}

// NewForwardedStorage creates a storage that executes through w.
func NewForwardedStorage(w forward.Writer) *ForwardedStorage {
	return &ForwardedStorage{w: w}
}

func (s *ForwardedStorage) Migrate(ctx context.Context) error {
	_, err := forward.Do[none](ctx, s.w, JobModel, OpMigrate, none{})
	return restore(err)
}

func (s *ForwardedStorage) Create(ctx context.Context, job *core.Job) error {
	created, err := forward.Do[*core.Job](ctx, s.w, JobModel, OpCreate, job)
	if err != nil {
		return restore(err)
	}
	if created != nil {
		*job = *created
	}
	return nil
}

func (s *ForwardedStorage) ClaimNext(ctx context.Context, workerID string) (*core.Job, error) {
	job, err := forward.Do[*core.Job](ctx, s.w, JobModel, OpClaimNext, claimArgs{WorkerID: workerID})
	return job, restore(err)
}

func (s *ForwardedStorage) Complete(ctx context.Context, jobID string, workerID string) error {
	_, err := forward.Do[none](ctx, s.w, JobModel, OpComplete, finishArgs{ID: jobID, WorkerID: workerID})
	return restore(err)
}

func (s *ForwardedStorage) FailOrRetry(ctx context.Context, jobID string, workerID string, errMsg string, retryAt time.Time) (core.JobStatus, error) {
	res, err := forward.Do[statusResult](ctx, s.w, JobModel, OpFailOrRetry, finishArgs{
		ID:       jobID,
		WorkerID: workerID,
		Error:    errMsg,
		RetryAt:  retryAt,
	})
	return res.Status, restore(err)
}

func (s *ForwardedStorage) Fail(ctx context.Context, jobID string, workerID string, errMsg string) error {
	_, err := forward.Do[none](ctx, s.w, JobModel, OpFail, finishArgs{ID: jobID, WorkerID: workerID, Error: errMsg})
	return restore(err)
}

func (s *ForwardedStorage) Cancel(ctx context.Context, jobID string) (bool, error) {
	res, err := forward.Do[cancelResult](ctx, s.w, JobModel, OpCancel, idArgs{ID: jobID})
	return res.Cancelled, restore(err)
}

func (s *ForwardedStorage) Cleanup(ctx context.Context, olderThan time.Time, statuses ...core.JobStatus) (int64, error) {
	res, err := forward.Do[cleanupResult](ctx, s.w, JobModel, OpCleanup, cleanupArgs{OlderThan: olderThan, Statuses: statuses})
	return res.Deleted, restore(err)
}

func (s *ForwardedStorage) Get(ctx context.Context, jobID string) (*core.Job, error) {
	job, err := forward.Do[*core.Job](ctx, s.w, JobModel, OpGet, idArgs{ID: jobID})
	return job, restore(err)
}

func (s *ForwardedStorage) ListByStatus(ctx context.Context, status core.JobStatus, limit int) ([]*core.Job, error) {
	jobs, err := forward.Do[[]*core.Job](ctx, s.w, JobModel, OpListByStatus, listArgs{Status: status, Limit: limit})
	return jobs, restore(err)
}

func (s *ForwardedStorage) FindLatest(ctx context.Context, jobType string, dataContains string) (*core.Job, error) {
	job, err := forward.Do[*core.Job](ctx, s.w, JobModel, OpFindLatest, latestArgs{Type: jobType, DataContains: dataContains})
	return job, restore(err)
}

func (s *ForwardedStorage) Stats(ctx context.Context) (*core.Stats, error) {
	stats, err := forward.Do[*core.Stats](ctx, s.w, JobModel, OpStats, none{})
	return stats, restore(err)
}

// remoteSentinels are store errors the primary can only report by message.
var remoteSentinels = []error{
	core.ErrJobNotOwned,
	core.ErrJobNotFound,
	core.ErrInvalidStatus,
	core.ErrCleanupNonTerminal,
}

// restore re-attaches the store sentinel named in a primary's error response,
// so errors.Is works the same on a replica as on the primary.
func restore(err error) error {
	var fe *forward.Error
	if !errors.As(err, &fe) || fe.StatusCode == 0 {
		return err
	}
	for _, sentinel := range remoteSentinels {
		if strings.Contains(fe.Message, sentinel.Error()) {
			return fmt.Errorf("%w: %w", sentinel, err)
		}
	}
	return err
}

var _ core.Storage = (*ForwardedStorage)(nil)
