package plugin

import (
	"context"
	"io"
	"net"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/cube2222/octoudf/octosql"
	"github.com/cube2222/octoudf/plugins/internal/plugins"
	"github.com/cube2222/octoudf/serialization"
)

// Version is the function runtime protocol version reported by Info.
const Version = "0.1.0"

// ScalarFunction evaluates one encoded row into one encoded result row.
type ScalarFunction func(input []byte) ([]byte, error)

// NewValuesFunction adapts a function over decoded values to the given wire format.
// Rows are decoded and encoded using their own runtime types.
func NewValuesFunction(format serialization.Format, fn func(values []octosql.Value) ([]octosql.Value, error)) ScalarFunction {
	return func(input []byte) ([]byte, error) {
		values, err := serialization.DecodeUntyped(format, input)
		if err != nil {
			return nil, errors.Wrap(err, "couldn't decode input")
		}
		out, err := fn(values)
		if err != nil {
			return nil, err
		}
		data, err := serialization.EncodeUntyped(format, out)
		if err != nil {
			return nil, errors.Wrap(err, "couldn't encode result")
		}
		return data, nil
	}
}

type Info struct {
	Function string
	Format   serialization.Format
}

type server struct {
	fn     ScalarFunction
	info   plugins.RuntimeInfo
	logger *zap.Logger
}

func (s *server) Info(ctx context.Context, request *emptypb.Empty) (*wrapperspb.StringValue, error) {
	return wrapperspb.String(string(s.info.JSON())), nil
}

// Evaluate handles inputs one at a time, so results leave in input order.
func (s *server) Evaluate(stream plugins.FunctionRuntime_EvaluateServer) error {
	var count int
	for {
		msg, err := stream.Recv()
		if err == io.EOF {
			s.logger.Debug("evaluation stream finished", zap.Int("count", count))
			return nil
		} else if err != nil {
			return err
		}

		out, err := s.fn(msg.Value)
		if err != nil {
			s.logger.Error("couldn't evaluate function", zap.Int("index", count), zap.Error(err))
			return status.Errorf(codes.InvalidArgument, "couldn't evaluate function on input %d: %s", count, err)
		}
		if err := stream.Send(wrapperspb.Bytes(out)); err != nil {
			return err
		}
		count++
	}
}

// Serve serves fn on the listener until ctx is cancelled.
func Serve(ctx context.Context, listener net.Listener, info Info, fn ScalarFunction, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	if info.Format == "" {
		info.Format = serialization.FormatRowBinary
	}

	grpcServer := grpc.NewServer()
	plugins.RegisterFunctionRuntimeServer(grpcServer, &server{
		fn: fn,
		info: plugins.RuntimeInfo{
			Version:  Version,
			Function: info.Function,
			Format:   string(info.Format),
		},
		logger: logger,
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			logger.Info("stopping function runtime")
			grpcServer.GracefulStop()
		case <-done:
		}
	}()

	logger.Info("serving function runtime", zap.String("address", listener.Addr().String()), zap.String("function", info.Function))
	if err := grpcServer.Serve(listener); err != nil {
		return errors.Wrap(err, "couldn't serve")
	}
	return nil
}
