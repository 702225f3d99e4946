package execution

import (
	"context"

	"go.uber.org/zap"
)

type Node interface {
	// Run pushes all records of the stream into produce.
	// It returns once the stream is exhausted or an error occurs.
	Run(ctx ExecutionContext, produce ProduceFn) error
}

type ExecutionContext struct {
	context.Context
	Logger *zap.Logger
}

func NewExecutionContext(ctx context.Context, logger *zap.Logger) ExecutionContext {
	if logger == nil {
		logger = zap.NewNop()
	}
	return ExecutionContext{
		Context: ctx,
		Logger:  logger,
	}
}

type ProduceFn func(ctx ProduceContext, record Record) error

type ProduceContext struct {
	context.Context
	Logger *zap.Logger
}

func ProduceFromExecutionContext(ctx ExecutionContext) ProduceContext {
	return ProduceContext{
		Context: ctx.Context,
		Logger:  ctx.Logger,
	}
}
