package core

import (
	"time"
)

// JobStatus represents the current state of a job.
type JobStatus string

const (
	StatusPending    JobStatus = "pending"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
)

// DefaultMaxAttempts is used when a job is enqueued without an explicit limit.
const DefaultMaxAttempts = 3

// IsTerminal reports whether no further transition is possible from s.
func (s JobStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Valid reports whether s is one of the known statuses.
func (s JobStatus) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Job represents a unit of deferred work.
type Job struct {
	ID          string     `gorm:"primaryKey;size:36" json:"id"`
	Type        string     `gorm:"index;size:255;not null" json:"type"`
	Data        []byte     `gorm:"type:blob" json:"data"`
	Status      JobStatus  `gorm:"index;size:20;default:'pending'" json:"status"`
	Attempts    int        `gorm:"default:0" json:"attempts"`
	MaxAttempts int        `gorm:"default:3" json:"maxAttempts"`
	Error       *string    `gorm:"type:text" json:"error"`
	RetryAt     *time.Time `gorm:"index" json:"retryAt,omitempty"` // earliest re-claim after a retryable failure
	LockedBy    string     `gorm:"size:255" json:"lockedBy,omitempty"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	CreatedAt   time.Time  `gorm:"index;autoCreateTime" json:"createdAt"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updatedAt"`
}

// LastError returns the recorded failure message, or "" when there is none.
func (j *Job) LastError() string {
	if j.Error == nil {
		return ""
	}
	return *j.Error
}

// Stats holds job counts per status.
type Stats struct {
	Total      int64 `json:"total"`
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Completed  int64 `json:"completed"`
	Failed     int64 `json:"failed"`
}
