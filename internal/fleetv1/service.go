// Package fleetv1 defines the fleet.v1.FleetService gRPC contract. The
// service carries protobuf well-known types only: requests are
// google.protobuf.Empty and every response is a google.protobuf.Struct
// holding the same JSON document the HTTP API serves.
package fleetv1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "fleet.v1.FleetService"

const (
	FleetService_GetSnapshot_FullMethodName    = "/fleet.v1.FleetService/GetSnapshot"
	FleetService_WatchSnapshots_FullMethodName = "/fleet.v1.FleetService/WatchSnapshots"
	FleetService_Health_FullMethodName         = "/fleet.v1.FleetService/Health"
)

// FleetServiceServer is the server API for FleetService.
type FleetServiceServer interface {
	// GetSnapshot returns the latest published registry snapshot.
	GetSnapshot(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	// WatchSnapshots streams the current snapshot, then every later
	// snapshot and connectivity status change.
	WatchSnapshots(*emptypb.Empty, grpc.ServerStreamingServer[structpb.Struct]) error
	// Health reports liveness and upstream connectivity.
	Health(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

// RegisterFleetServiceServer registers srv on s.
func RegisterFleetServiceServer(s grpc.ServiceRegistrar, srv FleetServiceServer) {
	s.RegisterService(&FleetService_ServiceDesc, srv)
}

func getSnapshotHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(FleetServiceServer).GetSnapshot(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FleetService_GetSnapshot_FullMethodName}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(FleetServiceServer).GetSnapshot(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func healthHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(FleetServiceServer).Health(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FleetService_Health_FullMethodName}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(FleetServiceServer).Health(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func watchSnapshotsHandler(srv any, stream grpc.ServerStream) error {
	in := new(emptypb.Empty)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(FleetServiceServer).WatchSnapshots(in, &grpc.GenericServerStream[emptypb.Empty, structpb.Struct]{ServerStream: stream})
}

// FleetService_ServiceDesc is the grpc.ServiceDesc for FleetService.
var FleetService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*FleetServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetSnapshot", Handler: getSnapshotHandler},
		{MethodName: "Health", Handler: healthHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "WatchSnapshots", Handler: watchSnapshotsHandler, ServerStreams: true},
	},
	Metadata: "fleet/v1/fleet.proto",
}

// WatchSnapshotsStreamDesc describes the server stream for clients.
var WatchSnapshotsStreamDesc = &grpc.StreamDesc{StreamName: "WatchSnapshots", ServerStreams: true}
