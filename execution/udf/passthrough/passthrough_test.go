package passthrough

import (
	"context"
	"strconv"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cube2222/octoudf/execution/udf"
)

type results struct {
	mu   sync.Mutex
	data []string
}

func (r *results) receive(result []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data = append(r.data, string(result))
	return nil
}

func (r *results) get() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string{}, r.data...)
}

func TestOptions(t *testing.T) {
	runner, err := New(nil, func([]byte) error { return nil }, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, runner.bundleSize)
	assert.Equal(t, 16, runner.queueSize)
	assert.Equal(t, 1, runner.parallelism)

	runner, err = New(map[string]string{"bundle_size": "8", "queue_size": "2", "parallelism": "4"}, func([]byte) error { return nil }, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 8, runner.bundleSize)
	assert.Equal(t, 2, runner.queueSize)
	assert.Equal(t, 4, runner.parallelism)

	for _, options := range []map[string]string{
		{"bundle_size": "0"},
		{"queue_size": "-1"},
		{"parallelism": "many"},
	} {
		_, err := New(options, func([]byte) error { return nil }, nil, nil)
		assert.Error(t, err, "%v", options)
	}
}

func TestDeliversInSubmissionOrder(t *testing.T) {
	tests := []struct {
		name    string
		options map[string]string
	}{
		{name: "defaults"},
		{name: "partial last bundle", options: map[string]string{"bundle_size": "7"}},
		{name: "parallel", options: map[string]string{"bundle_size": "10", "parallelism": "5"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := &results{}
			upper := func(input []byte) ([]byte, error) {
				return append([]byte("out-"), input...), nil
			}
			runner, err := New(tt.options, out.receive, upper, nil)
			require.NoError(t, err)

			ctx := context.Background()
			require.NoError(t, runner.Open(ctx))
			var expected []string
			for i := 0; i < 100; i++ {
				require.NoError(t, runner.Submit(ctx, []byte(strconv.Itoa(i))))
				expected = append(expected, "out-"+strconv.Itoa(i))
			}
			require.NoError(t, runner.Close(ctx))
			assert.Equal(t, expected, out.get())

			// Close is idempotent.
			assert.NoError(t, runner.Close(ctx))
		})
	}
}

func TestReceiverErrorStopsDelivery(t *testing.T) {
	errStop := errors.New("stop")
	var delivered int
	receiver := func(result []byte) error {
		delivered++
		if delivered == 3 {
			return errStop
		}
		return nil
	}
	runner, err := New(map[string]string{"bundle_size": "50"}, receiver, nil, nil)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, runner.Open(ctx))
	for i := 0; i < 10; i++ {
		require.NoError(t, runner.Submit(ctx, []byte{byte(i)}))
	}
	assert.ErrorIs(t, runner.Close(ctx), errStop)
	assert.Equal(t, 3, delivered)
}

func TestTransformErrorIsRunnerFailure(t *testing.T) {
	errBoom := errors.New("boom")
	failing := func(input []byte) ([]byte, error) {
		if input[0] == 5 {
			return nil, errBoom
		}
		return input, nil
	}

	for _, parallelism := range []string{"1", "4"} {
		t.Run(parallelism, func(t *testing.T) {
			out := &results{}
			runner, err := New(map[string]string{"bundle_size": "4", "parallelism": parallelism}, out.receive, failing, nil)
			require.NoError(t, err)

			ctx := context.Background()
			require.NoError(t, runner.Open(ctx))
			var submitErr error
			for i := 0; i < 20 && submitErr == nil; i++ {
				submitErr = runner.Submit(ctx, []byte{byte(i)})
			}
			closeErr := runner.Close(ctx)
			err = closeErr
			if err == nil {
				err = submitErr
			}
			require.Error(t, err)

			var failure *udf.RunnerFailure
			assert.ErrorAs(t, err, &failure)
			assert.ErrorIs(t, err, errBoom)
			// Only the first bundle, which doesn't contain the failing input, is delivered.
			assert.Len(t, out.get(), 4)
		})
	}
}

func TestSubmitBeforeOpen(t *testing.T) {
	runner, err := New(nil, func([]byte) error { return nil }, nil, nil)
	require.NoError(t, err)
	assert.Error(t, runner.Submit(context.Background(), []byte{1}))
	assert.NoError(t, runner.Close(context.Background()))
}

func TestCloseAfterWorkerFailure(t *testing.T) {
	errBoom := errors.New("boom")
	failing := func(input []byte) ([]byte, error) {
		return nil, errBoom
	}
	out := &results{}
	runner, err := New(map[string]string{"bundle_size": "2", "queue_size": "1"}, out.receive, failing, nil)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, runner.Open(ctx))
	require.NoError(t, runner.Submit(ctx, []byte("a")))
	require.NoError(t, runner.Submit(ctx, []byte("b")))
	<-runner.groupCtx.Done()

	// Left in the bundle, dispatched by Close.
	require.NoError(t, runner.Submit(ctx, []byte("c")))
	err = runner.Close(ctx)
	assert.ErrorIs(t, err, errBoom)
	var failure *udf.RunnerFailure
	assert.ErrorAs(t, err, &failure)
	assert.Empty(t, out.get())
	assert.Equal(t, err, runner.Close(ctx))
}
