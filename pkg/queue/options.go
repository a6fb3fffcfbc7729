package queue

import (
	"github.com/billable/jobqueue/pkg/core"
	"github.com/billable/jobqueue/pkg/security"
)

// Options holds configuration for job enqueueing.
type Options struct {
	MaxAttempts int
}

// NewOptions creates Options with defaults.
func NewOptions() *Options {
	return &Options{
		MaxAttempts: core.DefaultMaxAttempts,
	}
}

// Option modifies Options.
type Option interface {
	Apply(*Options)
}

type optionFunc func(*Options)

func (f optionFunc) Apply(o *Options) { f(o) }

// MaxAttempts sets how many times the job may be dispatched.
// Values are clamped to [1, 100].
func MaxAttempts(n int) Option {
	return optionFunc(func(o *Options) {
		o.MaxAttempts = security.ClampMaxAttempts(n)
	})
}
