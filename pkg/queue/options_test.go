package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/billable/jobqueue/pkg/core"
)

func TestNewOptions_Defaults(t *testing.T) {
	opts := NewOptions()

	assert.Equal(t, core.DefaultMaxAttempts, opts.MaxAttempts)
}

func TestMaxAttempts(t *testing.T) {
	opts := NewOptions()
	MaxAttempts(5).Apply(opts)

	assert.Equal(t, 5, opts.MaxAttempts)
}

func TestMaxAttempts_Clamped(t *testing.T) {
	opts := NewOptions()

	MaxAttempts(1000).Apply(opts)
	assert.Equal(t, 100, opts.MaxAttempts)

	MaxAttempts(0).Apply(opts)
	assert.Equal(t, 1, opts.MaxAttempts)
}
