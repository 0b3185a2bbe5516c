package strategy

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// SignalServer exposes a Source as the gRPC signal service.
type SignalServer struct {
	src Source
}

// Evaluate handles one request.
func (s *SignalServer) Evaluate(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, asset, prices := decodeRequest(req)
	res, err := s.src.Signal(ctx, id, asset, prices)
	if err != nil {
		return nil, err
	}
	return encodeResult(res), nil
}

type signalService interface {
	Evaluate(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

var signalServiceDesc = grpc.ServiceDesc{
	ServiceName: "sentinel.signal.v1.SignalService",
	HandlerType: (*signalService)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Evaluate", Handler: evaluateHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "sentinel/signal/v1/signal.proto",
}

func evaluateHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	svc := srv.(signalService)
	if interceptor == nil {
		return svc.Evaluate(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: evaluateMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return svc.Evaluate(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// RegisterSignalServer mounts src on s.
func RegisterSignalServer(s grpc.ServiceRegistrar, src Source) {
	s.RegisterService(&signalServiceDesc, &SignalServer{src: src})
}
