package udf

import (
	"context"
)

// ResultReceiver accepts a single encoded function result.
// A non-nil error is fatal: the runner must stop delivering results and return it from Submit or Close.
type ResultReceiver func(result []byte) error

// FunctionRunner evaluates encoded inputs in an external function runtime.
//
// Results are delivered to the ResultReceiver exactly once per submitted input,
// one at a time and in submission order. Submit may block to apply backpressure.
// Close flushes in-flight work and returns only after all outstanding results
// have been delivered, or with an error.
type FunctionRunner interface {
	Open(ctx context.Context) error
	Submit(ctx context.Context, input []byte) error
	Close(ctx context.Context) error
}

// RunnerFactory creates a runner bound to the given receiver.
// Options are runner-specific and opaque to the operator.
type RunnerFactory func(options map[string]string, receiver ResultReceiver) (FunctionRunner, error)
