package udf

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/cube2222/octoudf/octosql"
	"github.com/cube2222/octoudf/physical"
	"github.com/cube2222/octoudf/serialization"
)

var ErrFIFOViolation = errors.New("function runner doesn't deliver results in submission order")

// VerifyFIFO pushes probes distinct rows through a runner evaluating an identity function
// and checks that every result comes back exactly once, in submission order.
func VerifyFIFO(ctx context.Context, factory RunnerFactory, format serialization.Format, options map[string]string, probes int) error {
	codec, err := serialization.NewCodec(format, physical.NewSchema([]physical.SchemaField{
		{Name: "probe", Type: octosql.Int},
	}))
	if err != nil {
		return errors.Wrap(err, "couldn't create probe codec")
	}

	var mu sync.Mutex
	var received []int
	receiver := func(result []byte) error {
		values, err := codec.Decode(result)
		if err != nil {
			return errors.Wrap(err, "couldn't decode probe result")
		}
		mu.Lock()
		defer mu.Unlock()
		if values[0].TypeID != octosql.TypeIDInt {
			return errors.Wrapf(ErrFIFOViolation, "result %d isn't a probe: %s", len(received), values[0])
		}
		if got, want := values[0].Int, len(received); got != want {
			return errors.Wrapf(ErrFIFOViolation, "result %d is probe %d", want, got)
		}
		received = append(received, values[0].Int)
		return nil
	}

	runner, err := factory(options, receiver)
	if err != nil {
		return errors.Wrap(err, "couldn't create function runner")
	}
	if err := runner.Open(ctx); err != nil {
		return errors.Wrap(err, "couldn't open function runner")
	}

	for i := 0; i < probes; i++ {
		data, err := codec.Encode([]octosql.Value{octosql.NewInt(i)})
		if err != nil {
			return closeAfterFailure(ctx, runner, errors.Wrapf(err, "couldn't encode probe %d", i))
		}
		if err := runner.Submit(ctx, data); err != nil {
			return closeAfterFailure(ctx, runner, errors.Wrapf(err, "couldn't submit probe %d", i))
		}
	}
	if err := runner.Close(ctx); err != nil {
		return errors.Wrap(err, "couldn't close function runner")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(received) != probes {
		return errors.Wrapf(ErrFIFOViolation, "submitted %d probes, got %d results", probes, len(received))
	}
	return nil
}

// closeAfterFailure closes the runner and adds its close error, if any, to err.
func closeAfterFailure(ctx context.Context, runner FunctionRunner, err error) error {
	if closeErr := runner.Close(ctx); closeErr != nil {
		return errors.Wrapf(err, "also couldn't close function runner: %s", closeErr)
	}
	return err
}
