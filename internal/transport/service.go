package transport

import (
	"context"

	"google.golang.org/grpc"

	"pollux/internal/wire"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "pollux.Gossip"

const (
	pushMethod = "/" + ServiceName + "/Push"
	syncMethod = "/" + ServiceName + "/Sync"
)

// GossipServer is the server API of the pollux.Gossip service.
type GossipServer interface {
	Push(ctx context.Context, req *wire.PushRequest) (*wire.PushResponse, error)
	Sync(ctx context.Context, req *wire.SyncRequest) (*wire.SyncResponse, error)
}

// RegisterGossipServer registers srv on s.
func RegisterGossipServer(s grpc.ServiceRegistrar, srv GossipServer) {
	s.RegisterService(&gossipServiceDesc, srv)
}

var gossipServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*GossipServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Push", Handler: pushHandler},
		{MethodName: "Sync", Handler: syncHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "pollux/gossip",
}

func pushHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wire.PushRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(GossipServer).Push(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: pushMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(GossipServer).Push(ctx, req.(*wire.PushRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func syncHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wire.SyncRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(GossipServer).Sync(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: syncMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(GossipServer).Sync(ctx, req.(*wire.SyncRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// ServerOptions returns the options a gRPC server needs to serve pollux.Gossip.
func ServerOptions() []grpc.ServerOption {
	return []grpc.ServerOption{grpc.ForceServerCodec(wire.Codec{})}
}
