package forward

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type greetArgs struct {
	Name string `json:"name"`
}

type greeting struct {
	Message string `json:"message"`
}

func newGreetRegistry() *Registry {
	reg := NewRegistry()
	Handle(reg, "greeter", "greet", Write, func(_ context.Context, a greetArgs) (greeting, error) {
		if a.Name == "" {
			return greeting{}, errors.New("name is required")
		}
		return greeting{Message: "hello " + a.Name}, nil
	})
	Handle(reg, "greeter", "count", Read, func(_ context.Context, _ struct{}) (int, error) {
		return 42, nil
	})
	return reg
}

func TestRegistry_ExecDecodesArgsAndEncodesResult(t *testing.T) {
	reg := newGreetRegistry()

	out, err := reg.Exec(context.Background(), Command{
		Model:     "greeter",
		Operation: "greet",
		Args:      json.RawMessage(`{"name":"ada"}`),
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"message":"hello ada"}`, string(out))
}

func TestRegistry_ExecWithoutArgs(t *testing.T) {
	reg := newGreetRegistry()

	out, err := reg.Exec(context.Background(), Command{Model: "greeter", Operation: "count"})
	require.NoError(t, err)
	assert.Equal(t, "42", string(out))
}

func TestRegistry_ExecUnknownOperation(t *testing.T) {
	reg := newGreetRegistry()

	_, err := reg.Exec(context.Background(), Command{Model: "greeter", Operation: "wave"})
	assert.ErrorIs(t, err, ErrUnknownOperation)
}

func TestRegistry_ExecInvalidArgs(t *testing.T) {
	reg := newGreetRegistry()

	_, err := reg.Exec(context.Background(), Command{
		Model:     "greeter",
		Operation: "greet",
		Args:      json.RawMessage(`{"name":7}`),
	})
	assert.ErrorIs(t, err, ErrInvalidArgs)
}

func TestRegistry_ExecutorError(t *testing.T) {
	reg := newGreetRegistry()

	_, err := reg.Exec(context.Background(), Command{
		Model:     "greeter",
		Operation: "greet",
		Args:      json.RawMessage(`{}`),
	})
	assert.EqualError(t, err, "name is required")
}

func TestRegistry_KindAndOperations(t *testing.T) {
	reg := newGreetRegistry()

	kind, ok := reg.Kind("greeter", "greet")
	assert.True(t, ok)
	assert.Equal(t, Write, kind)

	kind, ok = reg.Kind("greeter", "count")
	assert.True(t, ok)
	assert.Equal(t, Read, kind)

	_, ok = reg.Kind("greeter", "missing")
	assert.False(t, ok)

	assert.Equal(t, []string{"greeter.count", "greeter.greet"}, reg.Operations())
}

func TestHandle_Panics(t *testing.T) {
	noop := func(context.Context, struct{}) (struct{}, error) { return struct{}{}, nil }

	t.Run("duplicate", func(t *testing.T) {
		reg := NewRegistry()
		Handle(reg, "m", "op", Write, noop)
		assert.Panics(t, func() { Handle(reg, "m", "op", Read, noop) })
	})

	t.Run("invalid name", func(t *testing.T) {
		assert.Panics(t, func() { Handle(NewRegistry(), "bad model!", "op", Write, noop) })
	})

	t.Run("nil executor", func(t *testing.T) {
		assert.Panics(t, func() {
			Handle[struct{}, struct{}](NewRegistry(), "m", "op", Write, nil)
		})
	})
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "write", Write.String())
	assert.Equal(t, "read", Read.String())
}

func TestCommand_Validate(t *testing.T) {
	assert.NoError(t, Command{Model: "invoice", Operation: "markSent"}.Validate())
	assert.Error(t, Command{Model: "", Operation: "markSent"}.Validate())
	assert.Error(t, Command{Model: "invoice", Operation: "drop table"}.Validate())
	assert.Equal(t, "invoice.markSent", Command{Model: "invoice", Operation: "markSent"}.String())
}
