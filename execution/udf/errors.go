package udf

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/cube2222/octoudf/serialization"
)

var (
	ErrSchemaMismatch   = errors.New("record doesn't match input schema")
	ErrDecode           = serialization.ErrDecode
	ErrArityMismatch    = serialization.ErrArityMismatch
	ErrBufferUnderflow  = errors.New("function result delivered with no pending record")
	ErrBufferNotDrained = errors.New("pending records left after function runner closed")
	ErrInvalidState     = errors.New("invalid operator state")
	ErrInvalidConfig    = errors.New("invalid scalar function configuration")
)

// RunnerFailure is a failure of the function runner or of the runtime behind it.
type RunnerFailure struct {
	Err error
}

func (e *RunnerFailure) Error() string {
	return fmt.Sprintf("function runner failure: %s", e.Err)
}

func (e *RunnerFailure) Unwrap() error {
	return e.Err
}

// AsRunnerFailure wraps err into a RunnerFailure, unless it already is one.
func AsRunnerFailure(err error) error {
	if err == nil {
		return nil
	}
	var failure *RunnerFailure
	if errors.As(err, &failure) {
		return err
	}
	return &RunnerFailure{Err: err}
}
