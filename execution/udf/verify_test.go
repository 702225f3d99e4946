package udf_test

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/cube2222/octoudf/execution/udf"
	"github.com/cube2222/octoudf/execution/udf/passthrough"
	"github.com/cube2222/octoudf/serialization"
)

// reorderingFactory creates runners which swap every pair of results.
func reorderingFactory(options map[string]string, receiver udf.ResultReceiver) (udf.FunctionRunner, error) {
	var held []byte
	return &funcRunner{
		submit: func(ctx context.Context, input []byte) error {
			if held == nil {
				held = input
				return nil
			}
			if err := receiver(input); err != nil {
				return err
			}
			first := held
			held = nil
			return receiver(first)
		},
		close: func(ctx context.Context) error {
			if held != nil {
				return receiver(held)
			}
			return nil
		},
	}, nil
}

func TestVerifyFIFO(t *testing.T) {
	ctx := context.Background()

	for _, format := range []serialization.Format{serialization.FormatRowBinary, serialization.FormatArrow} {
		t.Run(string(format), func(t *testing.T) {
			err := udf.VerifyFIFO(ctx, passthrough.NewFactory(nil, nil), format, map[string]string{
				"bundle_size": "16",
				"parallelism": "4",
			}, 500)
			assert.NoError(t, err)
		})
	}

	t.Run("reordering runner", func(t *testing.T) {
		err := udf.VerifyFIFO(ctx, reorderingFactory, serialization.FormatRowBinary, nil, 10)
		assert.ErrorIs(t, err, udf.ErrFIFOViolation)
	})

	t.Run("lossy runner", func(t *testing.T) {
		lossy := func(options map[string]string, receiver udf.ResultReceiver) (udf.FunctionRunner, error) {
			return &funcRunner{}, nil
		}
		err := udf.VerifyFIFO(ctx, lossy, serialization.FormatRowBinary, nil, 10)
		assert.ErrorIs(t, err, udf.ErrFIFOViolation)
	})
}

func TestReorderingRunnerBreaksOperatorOrder(t *testing.T) {
	// Without FIFO delivery the operator pairs results with the wrong rows.
	op, out := openOperator(t, singleIntConfig(), reorderingFactory)

	ctx := context.Background()
	for i := 0; i < 4; i++ {
		assert.NoError(t, op.ProcessRecord(ctx, intRecord(i)))
	}
	assert.NoError(t, op.Finish(ctx))

	records := out.get()
	if assert.Len(t, records, 4) {
		assert.Equal(t, 0, records[0].Values[0].Int)
		assert.Equal(t, 1, records[0].Values[1].Int)
	}
}

func TestVerifyFIFOReportsCloseErrorAfterSubmitFailure(t *testing.T) {
	errSubmit := errors.New("runtime unreachable")
	errClose := errors.New("runtime didn't shut down")
	var closed bool
	factory := func(options map[string]string, receiver udf.ResultReceiver) (udf.FunctionRunner, error) {
		return &funcRunner{
			submit: func(ctx context.Context, input []byte) error {
				return errSubmit
			},
			close: func(ctx context.Context) error {
				closed = true
				return errClose
			},
		}, nil
	}

	err := udf.VerifyFIFO(context.Background(), factory, serialization.FormatRowBinary, nil, 10)
	assert.ErrorIs(t, err, errSubmit)
	assert.Contains(t, err.Error(), "runtime didn't shut down")
	assert.True(t, closed)
}
