package core

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNoRetryError(t *testing.T) {
	originalErr := errors.New("permanent failure")
	wrapped := NoRetry(originalErr)

	var noRetryErr *NoRetryError
	assert.True(t, errors.As(wrapped, &noRetryErr))
	assert.Equal(t, originalErr, noRetryErr.Unwrap())
	assert.Contains(t, noRetryErr.Error(), "no retry")
	assert.Contains(t, noRetryErr.Error(), "permanent failure")
}

func TestRetryAfterError(t *testing.T) {
	originalErr := errors.New("temporary failure")
	delay := 5 * time.Second
	wrapped := RetryAfter(delay, originalErr)

	var retryErr *RetryAfterError
	assert.True(t, errors.As(wrapped, &retryErr))
	assert.Equal(t, originalErr, retryErr.Unwrap())
	assert.Equal(t, delay, retryErr.Delay)
	assert.Contains(t, retryErr.Error(), "retry after")
	assert.Contains(t, retryErr.Error(), "5s")
}

func TestErrorVariables(t *testing.T) {
	assert.NotNil(t, ErrInvalidJobType)
	assert.NotNil(t, ErrJobTypeTooLong)
	assert.NotNil(t, ErrJobDataTooLarge)
	assert.NotNil(t, ErrJobNotFound)
	assert.NotNil(t, ErrJobNotOwned)
	assert.NotNil(t, ErrNoHandler)

	assert.Contains(t, ErrInvalidJobType.Error(), "invalid job type")
	assert.Contains(t, ErrJobNotOwned.Error(), "not owned")
	assert.Contains(t, ErrJobNotFound.Error(), "not found")
}

func TestNoRetry_ErrorsIs(t *testing.T) {
	wrapped := NoRetry(ErrNoHandler)
	assert.True(t, errors.Is(wrapped, ErrNoHandler))
}
