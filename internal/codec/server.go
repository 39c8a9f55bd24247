package codec

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// GeneratorServer is the server side of the generation service.
type GeneratorServer interface {
	Generate(ctx context.Context, req GenerateRequest) (GenerateResult, error)
}

// GenerateFunc adapts a plain function to GeneratorServer.
type GenerateFunc func(ctx context.Context, req GenerateRequest) (GenerateResult, error)

// Generate calls f.
func (f GenerateFunc) Generate(ctx context.Context, req GenerateRequest) (GenerateResult, error) {
	return f(ctx, req)
}

// ServiceDesc describes arbiter.Generator for grpc.ServiceRegistrar.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: "arbiter.Generator",
	HandlerType: (*GeneratorServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Generate", Handler: generateHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "arbiter/generator",
}

// RegisterGenerator serves fn as arbiter.Generator on s.
func RegisterGenerator(s grpc.ServiceRegistrar, fn GenerateFunc) {
	s.RegisterService(&ServiceDesc, fn)
}

func generateHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := &structpb.Struct{}
	if err := dec(in); err != nil {
		return nil, err
	}
	call := func(ctx context.Context, req any) (any, error) {
		res, err := srv.(GeneratorServer).Generate(ctx, requestFromStruct(req.(*structpb.Struct)))
		if err != nil {
			return nil, err
		}
		out, err := resultStruct(res)
		if err != nil {
			return nil, fmt.Errorf("generate: %w", err)
		}
		return out, nil
	}
	if interceptor == nil {
		return call(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: GenerateMethod}
	return interceptor(ctx, in, info, call)
}
