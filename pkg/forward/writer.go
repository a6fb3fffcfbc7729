package forward

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
)

// Writer executes commands against the data store, wherever it lives.
type Writer interface {
	Exec(ctx context.Context, cmd Command) (json.RawMessage, error)
}

// Forwarder decides per command whether to execute locally or on the primary.
type Forwarder struct {
	local   *Registry
	remote  Writer
	primary bool
	logger  *slog.Logger
}

// ForwarderOption configures a Forwarder.
type ForwarderOption func(*Forwarder)

// WithForwarderLogger sets the logger.
func WithForwarderLogger(l *slog.Logger) ForwarderOption {
	return func(f *Forwarder) {
		f.logger = l
	}
}

// NewForwarder creates a Forwarder. remote may be nil on the primary.
func NewForwarder(local *Registry, remote Writer, primary bool, opts ...ForwarderOption) *Forwarder {
	f := &Forwarder{
		local:   local,
		remote:  remote,
		primary: primary,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// IsPrimary reports whether writes execute in this process.
func (f *Forwarder) IsPrimary() bool {
	return f.primary
}

// Exec runs cmd locally when this process is the primary or cmd is a read,
// and sends it to the primary otherwise.
func (f *Forwarder) Exec(ctx context.Context, cmd Command) (json.RawMessage, error) {
	kind, known := f.local.Kind(cmd.Model, cmd.Operation)
	if f.primary || (known && kind == Read) {
		return f.local.Exec(ctx, cmd)
	}
	if f.remote == nil {
		return nil, &Error{Command: cmd.String(), Err: fmt.Errorf("no primary configured")}
	}
	f.logger.Debug("forwarding write to primary", "command", cmd.String())
	return f.remote.Exec(ctx, cmd)
}

// Do marshals args, executes model.operation through w and decodes the result into R.
func Do[R any](ctx context.Context, w Writer, model, operation string, args any) (R, error) {
	var result R

	raw, err := json.Marshal(args)
	if err != nil {
		return result, fmt.Errorf("forward: encode %s.%s args: %w", model, operation, err)
	}

	out, err := w.Exec(ctx, Command{Model: model, Operation: operation, Args: raw})
	if err != nil {
		return result, err
	}
	if len(out) == 0 || string(out) == "null" {
		return result, nil
	}
	if err := json.Unmarshal(out, &result); err != nil {
		return result, fmt.Errorf("forward: decode %s.%s result: %w", model, operation, err)
	}
	return result, nil
}
