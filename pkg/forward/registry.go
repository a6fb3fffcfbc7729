package forward

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/billable/jobqueue/pkg/security"
)

// Kind classifies an operation. Read operations always run locally because
// replicas can read the database directly.
type Kind int

const (
	Write Kind = iota
	Read
)

func (k Kind) String() string {
	if k == Read {
		return "read"
	}
	return "write"
}

type executor struct {
	kind Kind
	fn   func(ctx context.Context, args json.RawMessage) (any, error)
}

// Registry maps (model, operation) pairs to executors. It is itself a Writer
// that executes against the local database.
type Registry struct {
	mu    sync.RWMutex
	execs map[string]executor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{execs: make(map[string]executor)}
}

// Handle registers fn as the executor for model.operation.
// Arguments arrive as JSON and are decoded into A; the result R is encoded as JSON.
// Registering an invalid name panics, as does registering the same pair twice.
func Handle[A any, R any](r *Registry, model, operation string, kind Kind, fn func(ctx context.Context, args A) (R, error)) {
	if !security.ValidName(model) || !security.ValidName(operation) {
		panic(fmt.Sprintf("forward: invalid operation name %q.%q", model, operation))
	}
	if fn == nil {
		panic(fmt.Sprintf("forward: nil executor for %s.%s", model, operation))
	}

	e := executor{
		kind: kind,
		fn: func(ctx context.Context, raw json.RawMessage) (any, error) {
			var args A
			if len(raw) > 0 && string(raw) != "null" {
				if err := json.Unmarshal(raw, &args); err != nil {
					return nil, fmt.Errorf("%w for %s.%s: %v", ErrInvalidArgs, model, operation, err)
				}
			}
			return fn(ctx, args)
		},
	}

	key := model + "." + operation
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.execs[key]; dup {
		panic(fmt.Sprintf("forward: %s registered twice", key))
	}
	r.execs[key] = e
}

// Kind returns the kind of a registered operation.
func (r *Registry) Kind(model, operation string) (Kind, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.execs[model+"."+operation]
	return e.kind, ok
}

// Operations lists the registered operations as "model.operation".
func (r *Registry) Operations() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ops := make([]string, 0, len(r.execs))
	for k := range r.execs {
		ops = append(ops, k)
	}
	sort.Strings(ops)
	return ops
}

// Exec runs cmd against the local database.
func (r *Registry) Exec(ctx context.Context, cmd Command) (json.RawMessage, error) {
	r.mu.RLock()
	e, ok := r.execs[cmd.String()]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownOperation, cmd)
	}

	result, err := e.fn(ctx, cmd.Args)
	if err != nil {
		return nil, err
	}
	out, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("forward: encode %s result: %w", cmd, err)
	}
	return out, nil
}
