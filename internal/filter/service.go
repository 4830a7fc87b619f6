package filter

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	ServiceName = "logpack.filter.v1.FilterService"
	MatchMethod = "/" + ServiceName + "/Match"
)

// MatchServer is implemented by out-of-process filters. The request is a
// struct with the fields produced by requestStruct; the reply says whether
// the filter matched.
type MatchServer interface {
	Match(ctx context.Context, req *structpb.Struct) (*wrapperspb.BoolValue, error)
}

func RegisterMatchServer(s grpc.ServiceRegistrar, srv MatchServer) {
	s.RegisterService(&serviceDesc, srv)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*MatchServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Match",
			Handler:    matchHandler,
		},
	},
	Streams: []grpc.StreamDesc{},
}

func matchHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(MatchServer).Match(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: MatchMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(MatchServer).Match(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}
