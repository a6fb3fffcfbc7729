package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/billable/jobqueue/pkg/core"
	"github.com/billable/jobqueue/pkg/security"
)

// utcNow is the store's clock. go-sqlite3 binds times as text in their own
// zone, so every stored or compared time is UTC to keep text order equal to
// time order across nodes.
func utcNow() time.Time {
	return time.Now().UTC()
}

// maxClaimRaces bounds how many candidates ClaimNext tries after losing
// the conditional update to another worker.
const maxClaimRaces = 8

// GormStorage implements core.Storage using GORM. It must only be used
// where direct writes are allowed, i.e. on the primary.
type GormStorage struct {
	db *gorm.DB
}

// NewGormStorage creates a new GORM-backed storage.
func NewGormStorage(db *gorm.DB) *GormStorage {
	return &GormStorage{db: db}
}

// DB returns the underlying database handle.
func (s *GormStorage) DB() *gorm.DB {
	return s.db
}

// Migrate creates the necessary tables.
func (s *GormStorage) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&core.Job{})
}

// Create inserts a new pending job.
func (s *GormStorage) Create(ctx context.Context, job *core.Job) error {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if job.MaxAttempts == 0 {
		job.MaxAttempts = core.DefaultMaxAttempts
	}
	job.MaxAttempts = security.ClampMaxAttempts(job.MaxAttempts)
	job.Status = core.StatusPending
	job.Attempts = 0
	job.LockedBy = ""
	job.RetryAt = nil
	if job.CreatedAt.IsZero() {
		job.CreatedAt = utcNow()
	}
	job.CreatedAt = job.CreatedAt.UTC()
	job.UpdatedAt = job.CreatedAt
	return s.db.WithContext(ctx).Create(job).Error
}

// ClaimNext atomically moves the oldest eligible pending job to processing.
//
// The candidate is chosen with a plain SELECT; the claim itself is a single
// conditional UPDATE on (id, status = pending). When another worker wins the
// update, zero rows are affected and the next candidate is tried.
func (s *GormStorage) ClaimNext(ctx context.Context, workerID string) (*core.Job, error) {
	for race := 0; race < maxClaimRaces; race++ {
		now := utcNow()

		var candidate core.Job
		err := s.db.WithContext(ctx).
			Select("id").
			Where("status = ?", core.StatusPending).
			Where("(retry_at IS NULL OR retry_at <= ?)", now).
			Where("attempts < max_attempts").
			Order("created_at ASC, id ASC").
			Take(&candidate).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}

		result := s.db.WithContext(ctx).
			Model(&core.Job{}).
			Where("id = ? AND status = ?", candidate.ID, core.StatusPending).
			Updates(map[string]any{
				"status":     core.StatusProcessing,
				"attempts":   gorm.Expr("attempts + 1"),
				"locked_by":  workerID,
				"started_at": now,
				"retry_at":   nil,
				"updated_at": now,
			})
		if result.Error != nil {
			return nil, result.Error
		}
		if result.RowsAffected == 1 {
			return s.Get(ctx, candidate.ID)
		}
	}
	return nil, nil
}

// Complete marks a processing job as completed.
// Validates that the worker owns the job before completing.
func (s *GormStorage) Complete(ctx context.Context, jobID string, workerID string) error {
	now := utcNow()
	result := s.owned(ctx, jobID, workerID).
		Updates(map[string]any{
			"status":       core.StatusCompleted,
			"error":        nil,
			"completed_at": now,
			"locked_by":    "",
			"updated_at":   now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return s.notOwned(ctx, jobID)
	}
	return nil
}

// FailOrRetry records a handler failure. The job becomes failed once its
// attempts reach max_attempts, otherwise it returns to pending and may be
// claimed again from retryAt on. Error messages are sanitized before storage.
func (s *GormStorage) FailOrRetry(ctx context.Context, jobID string, workerID string, errMsg string, retryAt time.Time) (core.JobStatus, error) {
	// attempts and max_attempts of a processing job only change through its
	// owner, so the decision below cannot go stale before the update.
	var job core.Job
	err := s.owned(ctx, jobID, workerID).Take(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", s.notOwned(ctx, jobID)
	}
	if err != nil {
		return "", err
	}

	now := utcNow()
	updates := map[string]any{
		"error":      security.SanitizeErrorMessage(errMsg),
		"locked_by":  "",
		"updated_at": now,
	}

	status := core.StatusPending
	if job.Attempts >= job.MaxAttempts {
		status = core.StatusFailed
		updates["completed_at"] = now
	} else {
		updates["retry_at"] = retryAt.UTC()
	}
	updates["status"] = status

	result := s.owned(ctx, jobID, workerID).Updates(updates)
	if result.Error != nil {
		return "", result.Error
	}
	if result.RowsAffected == 0 {
		return "", s.notOwned(ctx, jobID)
	}
	return status, nil
}

// Fail marks a processing job as permanently failed without consulting
// its remaining attempts.
func (s *GormStorage) Fail(ctx context.Context, jobID string, workerID string, errMsg string) error {
	now := utcNow()
	result := s.owned(ctx, jobID, workerID).
		Updates(map[string]any{
			"status":       core.StatusFailed,
			"error":        security.SanitizeErrorMessage(errMsg),
			"completed_at": now,
			"locked_by":    "",
			"updated_at":   now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return s.notOwned(ctx, jobID)
	}
	return nil
}

// Cancel deletes a job that is still pending. It reports false for jobs
// that were already claimed, finished, or never existed.
func (s *GormStorage) Cancel(ctx context.Context, jobID string) (bool, error) {
	result := s.db.WithContext(ctx).
		Where("id = ? AND status = ?", jobID, core.StatusPending).
		Delete(&core.Job{})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// Cleanup deletes terminal jobs whose last update is older than olderThan.
func (s *GormStorage) Cleanup(ctx context.Context, olderThan time.Time, statuses ...core.JobStatus) (int64, error) {
	if len(statuses) == 0 {
		statuses = []core.JobStatus{core.StatusCompleted}
	}
	for _, st := range statuses {
		if !st.IsTerminal() {
			return 0, fmt.Errorf("%w: %q", core.ErrCleanupNonTerminal, st)
		}
	}

	result := s.db.WithContext(ctx).
		Where("status IN ?", statuses).
		Where("updated_at < ?", olderThan.UTC()).
		Delete(&core.Job{})
	return result.RowsAffected, result.Error
}

// Get retrieves a job by ID. It returns nil without error when the job does not exist.
func (s *GormStorage) Get(ctx context.Context, jobID string) (*core.Job, error) {
	var job core.Job
	err := s.db.WithContext(ctx).First(&job, "id = ?", jobID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// ListByStatus retrieves jobs by status, oldest first.
func (s *GormStorage) ListByStatus(ctx context.Context, status core.JobStatus, limit int) ([]*core.Job, error) {
	if !status.Valid() {
		return nil, core.ErrInvalidStatus
	}
	var jobList []*core.Job
	err := s.db.WithContext(ctx).
		Where("status = ?", status).
		Order("created_at ASC").
		Limit(limit).
		Find(&jobList).Error
	return jobList, err
}

// FindLatest returns the newest job of jobType whose payload contains
// dataContains, or nil when there is none.
func (s *GormStorage) FindLatest(ctx context.Context, jobType string, dataContains string) (*core.Job, error) {
	var job core.Job
	q := s.db.WithContext(ctx).Where("type = ?", jobType)
	if dataContains != "" {
		q = q.Where(`CAST(data AS TEXT) LIKE ? ESCAPE '\'`, "%"+likeEscaper.Replace(dataContains)+"%")
	}
	err := q.Order("created_at DESC").Take(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// likeEscaper makes LIKE wildcards in a fragment match literally.
var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

// Stats counts jobs per status.
func (s *GormStorage) Stats(ctx context.Context) (*core.Stats, error) {
	var rows []struct {
		Status core.JobStatus
		Count  int64
	}
	err := s.db.WithContext(ctx).
		Model(&core.Job{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	stats := &core.Stats{}
	for _, r := range rows {
		stats.Total += r.Count
		switch r.Status {
		case core.StatusPending:
			stats.Pending = r.Count
		case core.StatusProcessing:
			stats.Processing = r.Count
		case core.StatusCompleted:
			stats.Completed = r.Count
		case core.StatusFailed:
			stats.Failed = r.Count
		}
	}
	return stats, nil
}

// owned scopes a query to a job claimed by workerID and still processing.
func (s *GormStorage) owned(ctx context.Context, jobID, workerID string) *gorm.DB {
	return s.db.WithContext(ctx).
		Model(&core.Job{}).
		Where("id = ? AND status = ? AND locked_by = ?", jobID, core.StatusProcessing, workerID)
}

func (s *GormStorage) notOwned(ctx context.Context, jobID string) error {
	job, err := s.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if job == nil {
		return core.ErrJobNotFound
	}
	return core.ErrJobNotOwned
}

var _ core.Storage = (*GormStorage)(nil)
