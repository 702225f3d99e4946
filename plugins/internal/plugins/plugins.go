package plugins

import (
	"context"

	"github.com/pkg/errors"
	"github.com/valyala/fastjson"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// The FunctionRuntime service is equivalent to:
//
//	service FunctionRuntime {
//	  rpc Info(google.protobuf.Empty) returns (google.protobuf.StringValue);
//	  rpc Evaluate(stream google.protobuf.BytesValue) returns (stream google.protobuf.BytesValue);
//	}
//
// Info returns a JSON encoded RuntimeInfo. Evaluate returns exactly one result
// per input, in input order.
const (
	ServiceName = "octoudf.FunctionRuntime"

	infoMethod     = "/" + ServiceName + "/Info"
	evaluateMethod = "/" + ServiceName + "/Evaluate"
)

type RuntimeInfo struct {
	Version  string
	Function string
	Format   string
}

func (info RuntimeInfo) JSON() []byte {
	var arena fastjson.Arena
	obj := arena.NewObject()
	obj.Set("version", arena.NewString(info.Version))
	obj.Set("function", arena.NewString(info.Function))
	obj.Set("format", arena.NewString(info.Format))
	return obj.MarshalTo(nil)
}

func ParseRuntimeInfo(data []byte) (RuntimeInfo, error) {
	v, err := fastjson.ParseBytes(data)
	if err != nil {
		return RuntimeInfo{}, errors.Wrap(err, "couldn't parse runtime info")
	}
	if v.Type() != fastjson.TypeObject {
		return RuntimeInfo{}, errors.Errorf("runtime info should be an object, got %s", v.Type())
	}
	info := RuntimeInfo{
		Version:  string(v.GetStringBytes("version")),
		Function: string(v.GetStringBytes("function")),
		Format:   string(v.GetStringBytes("format")),
	}
	if info.Version == "" {
		return RuntimeInfo{}, errors.New("runtime info is missing the version")
	}
	return info, nil
}

type FunctionRuntimeServer interface {
	Info(ctx context.Context, request *emptypb.Empty) (*wrapperspb.StringValue, error)
	Evaluate(stream FunctionRuntime_EvaluateServer) error
}

type FunctionRuntime_EvaluateServer interface {
	Send(*wrapperspb.BytesValue) error
	Recv() (*wrapperspb.BytesValue, error)
	grpc.ServerStream
}

func RegisterFunctionRuntimeServer(s grpc.ServiceRegistrar, srv FunctionRuntimeServer) {
	s.RegisterService(&FunctionRuntime_ServiceDesc, srv)
}

var FunctionRuntime_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*FunctionRuntimeServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Info",
			Handler:    infoHandler,
		},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Evaluate",
			Handler:       evaluateHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "octoudf/function_runtime.proto",
}

func infoHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(FunctionRuntimeServer).Info(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: infoMethod,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(FunctionRuntimeServer).Info(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func evaluateHandler(srv interface{}, stream grpc.ServerStream) error {
	return srv.(FunctionRuntimeServer).Evaluate(&evaluateServer{stream})
}

type evaluateServer struct {
	grpc.ServerStream
}

func (x *evaluateServer) Send(m *wrapperspb.BytesValue) error {
	return x.ServerStream.SendMsg(m)
}

func (x *evaluateServer) Recv() (*wrapperspb.BytesValue, error) {
	m := new(wrapperspb.BytesValue)
	if err := x.ServerStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

type FunctionRuntimeClient interface {
	Info(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*wrapperspb.StringValue, error)
	Evaluate(ctx context.Context, opts ...grpc.CallOption) (FunctionRuntime_EvaluateClient, error)
}

type FunctionRuntime_EvaluateClient interface {
	Send(*wrapperspb.BytesValue) error
	Recv() (*wrapperspb.BytesValue, error)
	grpc.ClientStream
}

type functionRuntimeClient struct {
	cc grpc.ClientConnInterface
}

func NewFunctionRuntimeClient(cc grpc.ClientConnInterface) FunctionRuntimeClient {
	return &functionRuntimeClient{cc}
}

func (c *functionRuntimeClient) Info(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*wrapperspb.StringValue, error) {
	out := new(wrapperspb.StringValue)
	if err := c.cc.Invoke(ctx, infoMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *functionRuntimeClient) Evaluate(ctx context.Context, opts ...grpc.CallOption) (FunctionRuntime_EvaluateClient, error) {
	stream, err := c.cc.NewStream(ctx, &FunctionRuntime_ServiceDesc.Streams[0], evaluateMethod, opts...)
	if err != nil {
		return nil, err
	}
	return &evaluateClient{stream}, nil
}

type evaluateClient struct {
	grpc.ClientStream
}

func (x *evaluateClient) Send(m *wrapperspb.BytesValue) error {
	return x.ClientStream.SendMsg(m)
}

func (x *evaluateClient) Recv() (*wrapperspb.BytesValue, error) {
	m := new(wrapperspb.BytesValue)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

// GetRuntimeInfo calls Info and parses the response.
func GetRuntimeInfo(ctx context.Context, client FunctionRuntimeClient) (RuntimeInfo, error) {
	res, err := client.Info(ctx, &emptypb.Empty{})
	if err != nil {
		return RuntimeInfo{}, errors.Wrap(err, "couldn't get runtime info")
	}
	return ParseRuntimeInfo([]byte(res.Value))
}
