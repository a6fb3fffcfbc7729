package core

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEvents_ImplementEvent(t *testing.T) {
	now := time.Now()
	events := []Event{
		&JobEnqueued{Job: &Job{ID: "a"}, Timestamp: now},
		&JobStarted{Job: &Job{ID: "a"}, Timestamp: now},
		&JobCompleted{Job: &Job{ID: "a"}, Duration: time.Second, Timestamp: now},
		&JobFailed{Job: &Job{ID: "a"}, Error: errors.New("failed"), Timestamp: now},
		&JobRetrying{Job: &Job{ID: "a"}, Attempt: 1, Error: errors.New("retry"), NextRunAt: now, Timestamp: now},
		&JobCancelled{JobID: "a", Timestamp: now},
	}
	for _, e := range events {
		assert.NotNil(t, e)
	}
}

func TestJobRetrying_Fields(t *testing.T) {
	next := time.Now().Add(4 * time.Second)
	e := &JobRetrying{Job: &Job{ID: "job-1"}, Attempt: 2, NextRunAt: next}

	assert.Equal(t, "job-1", e.Job.ID)
	assert.Equal(t, 2, e.Attempt)
	assert.Equal(t, next, e.NextRunAt)
}
