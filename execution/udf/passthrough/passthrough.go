package passthrough

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cube2222/octoudf/config"
	"github.com/cube2222/octoudf/execution/udf"
)

// Transform evaluates a single encoded input.
type Transform func(input []byte) ([]byte, error)

func Identity(input []byte) ([]byte, error) {
	return input, nil
}

// Runner is an in-process FunctionRunner.
// Inputs are grouped into bundles which a background worker evaluates,
// possibly in parallel, delivering the results in submission order.
//
// Submit and Close must not be called concurrently with each other.
type Runner struct {
	receiver    udf.ResultReceiver
	transform   Transform
	bundleSize  int
	queueSize   int
	parallelism int
	logger      *zap.Logger

	bundle    [][]byte
	queue     chan [][]byte
	group     *errgroup.Group
	groupCtx  context.Context
	closeOnce sync.Once
	closeErr  error
}

// NewFactory returns a factory of runners applying transform. A nil transform is the identity.
func NewFactory(transform Transform, logger *zap.Logger) udf.RunnerFactory {
	return func(options map[string]string, receiver udf.ResultReceiver) (udf.FunctionRunner, error) {
		return New(options, receiver, transform, logger)
	}
}

func New(options map[string]string, receiver udf.ResultReceiver, transform Transform, logger *zap.Logger) (*Runner, error) {
	bundleSize, err := config.GetPositiveInt(options, "bundle_size", config.WithDefault(1))
	if err != nil {
		return nil, errors.Wrap(err, "couldn't get bundle size")
	}
	queueSize, err := config.GetPositiveInt(options, "queue_size", config.WithDefault(16))
	if err != nil {
		return nil, errors.Wrap(err, "couldn't get queue size")
	}
	parallelism, err := config.GetPositiveInt(options, "parallelism", config.WithDefault(1))
	if err != nil {
		return nil, errors.Wrap(err, "couldn't get parallelism")
	}
	if transform == nil {
		transform = Identity
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Runner{
		receiver:    receiver,
		transform:   transform,
		bundleSize:  bundleSize,
		queueSize:   queueSize,
		parallelism: parallelism,
		logger:      logger,
	}, nil
}

func (r *Runner) Open(ctx context.Context) error {
	r.queue = make(chan [][]byte, r.queueSize)
	r.group, r.groupCtx = errgroup.WithContext(ctx)
	r.group.Go(func() error {
		return r.work(r.groupCtx)
	})
	r.logger.Debug("passthrough runner opened",
		zap.Int("bundle_size", r.bundleSize),
		zap.Int("queue_size", r.queueSize),
		zap.Int("parallelism", r.parallelism),
	)
	return nil
}

func (r *Runner) Submit(ctx context.Context, input []byte) error {
	if r.queue == nil {
		return errors.New("runner not opened")
	}
	r.bundle = append(r.bundle, input)
	if len(r.bundle) < r.bundleSize {
		return nil
	}
	return r.dispatch(ctx)
}

func (r *Runner) dispatch(ctx context.Context) error {
	bundle := r.bundle
	r.bundle = nil
	select {
	case r.queue <- bundle:
		return nil
	case <-r.groupCtx.Done():
		// The worker has stopped, its error is the reason.
		if err := r.group.Wait(); err != nil {
			return err
		}
		return r.groupCtx.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runner) Close(ctx context.Context) error {
	r.closeOnce.Do(func() {
		if r.queue == nil {
			return
		}
		if len(r.bundle) > 0 {
			if err := r.dispatch(ctx); err != nil {
				close(r.queue)
				// A failed dispatch already carries the worker error.
				_ = r.group.Wait()
				r.closeErr = err
				return
			}
		}
		close(r.queue)
		r.closeErr = r.group.Wait()
		r.logger.Debug("passthrough runner closed", zap.Error(r.closeErr))
	})
	return r.closeErr
}

func (r *Runner) work(ctx context.Context) error {
	for {
		select {
		case bundle, ok := <-r.queue:
			if !ok {
				return nil
			}
			results, err := r.evaluate(ctx, bundle)
			if err != nil {
				return err
			}
			for i := range results {
				if err := r.receiver(results[i]); err != nil {
					return err
				}
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (r *Runner) evaluate(ctx context.Context, bundle [][]byte) ([][]byte, error) {
	results := make([][]byte, len(bundle))
	if r.parallelism == 1 {
		for i := range bundle {
			out, err := r.transform(bundle[i])
			if err != nil {
				return nil, udf.AsRunnerFailure(errors.Wrap(err, "couldn't evaluate function"))
			}
			results[i] = out
		}
		return results, nil
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.parallelism)
	for i := range bundle {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			out, err := r.transform(bundle[i])
			if err != nil {
				return errors.Wrap(err, "couldn't evaluate function")
			}
			results[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, udf.AsRunnerFailure(err)
	}
	return results, nil
}
