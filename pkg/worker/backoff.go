package worker

import (
	"math"
	"time"
)

// Backoff computes the delay before a job that failed on its n-th attempt
// may be claimed again.
type Backoff interface {
	Delay(attempts int) time.Duration
}

// Exponential waits Base * 2^attempts, capped at Max.
// With Base of one second this is 2, 4, 8... seconds.
type Exponential struct {
	Base time.Duration
	Max  time.Duration
}

// DefaultBackoff returns the default policy: 2^attempts seconds, at most an hour.
func DefaultBackoff() Exponential {
	return Exponential{Base: time.Second, Max: time.Hour}
}

func (e Exponential) Delay(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	d := float64(e.Base) * math.Pow(2, float64(attempts))
	if e.Max > 0 && d > float64(e.Max) {
		return e.Max
	}
	if d > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}

// Constant always waits the same duration.
type Constant time.Duration

func (c Constant) Delay(int) time.Duration {
	return time.Duration(c)
}

// BackoffFunc adapts a function to Backoff.
type BackoffFunc func(attempts int) time.Duration

func (f BackoffFunc) Delay(attempts int) time.Duration {
	return f(attempts)
}
