package forward

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/billable/jobqueue/pkg/security"
)

// Path is where the primary serves forwarded writes.
const Path = "/internal/queue-write"

var (
	ErrForwarding       = errors.New("forward: write forwarding failed")
	ErrUnauthorized     = errors.New("forward: unauthorized")
	ErrUnknownOperation = errors.New("forward: unknown model operation")
	ErrInvalidArgs      = errors.New("forward: invalid arguments")
)

// Command is the wire envelope for one data-store operation.
type Command struct {
	Model     string          `json:"model" validate:"required,name"`
	Operation string          `json:"operation" validate:"required,name"`
	Args      json.RawMessage `json:"args,omitempty"`
}

func (c Command) String() string {
	return c.Model + "." + c.Operation
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("name", func(fl validator.FieldLevel) bool {
		return security.ValidName(fl.Field().String())
	})
	return v
}

// Validate checks the model and operation names.
func (c Command) Validate() error {
	return validate.Struct(c)
}

// Error describes a failed forwarded command.
// StatusCode is zero when the request never got a response.
type Error struct {
	Command    string
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("forward %s: %v", e.Command, e.Err)
	}
	return fmt.Sprintf("forward %s: primary returned %d: %s", e.Command, e.StatusCode, e.Message)
}

func (e *Error) Unwrap() []error {
	errs := []error{ErrForwarding}
	if e.StatusCode == http.StatusUnauthorized {
		errs = append(errs, ErrUnauthorized)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}
