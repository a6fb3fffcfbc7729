package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/billable/jobqueue/pkg/core"
	"github.com/billable/jobqueue/pkg/security"
)

// Handler processes the payload of one job. A nil return marks the job
// completed; an error makes it eligible for retry unless wrapped with
// core.NoRetry.
type Handler func(ctx context.Context, data json.RawMessage) error

// Typed adapts fn into a Handler that decodes the payload into T first.
// A payload that does not decode is a permanent failure.
func Typed[T any](fn func(ctx context.Context, data T) error) Handler {
	return func(ctx context.Context, raw json.RawMessage) error {
		var data T
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &data); err != nil {
				return core.NoRetry(fmt.Errorf("decode payload: %w", err))
			}
		}
		return fn(ctx, data)
	}
}

// Registry maps job types to handlers. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register associates jobType with h, replacing any earlier handler.
// Job type names must be alphanumeric (starting with a letter), max 255 chars.
func (r *Registry) Register(jobType string, h Handler) {
	if err := security.ValidateJobType(jobType); err != nil {
		panic(fmt.Sprintf("jobqueue: invalid handler name %q: %v", jobType, err))
	}
	if h == nil {
		panic(fmt.Sprintf("jobqueue: nil handler for %q", jobType))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[jobType] = h
}

// Resolve returns the handler for jobType.
func (r *Registry) Resolve(jobType string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[jobType]
	return h, ok
}

// Types lists the registered job types in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
