package server

import (
	"github.com/fastfare/fleetlive/internal/fleetv1"
	"github.com/fastfare/fleetlive/internal/snapshot"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// NewGRPCServer creates a gRPC server with standard interceptors and
// registers the FleetService. Messages are well-known types wrapped by a
// hand-written service descriptor, so no reflection service is offered.
func NewGRPCServer(fleetServer *FleetServer, authToken string) *grpc.Server {
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			RecoveryInterceptor,
			LoggingInterceptor,
			AuthInterceptor(authToken),
		),
		grpc.ChainStreamInterceptor(
			StreamRecoveryInterceptor,
			StreamLoggingInterceptor,
			StreamAuthInterceptor(authToken),
		),
	)

	fleetv1.RegisterFleetServiceServer(srv, fleetServer)

	return srv
}

// WatchSnapshots streams the current status and snapshot, then every
// later snapshot and status change until the client goes away.
func (s *FleetServer) WatchSnapshots(_ *emptypb.Empty, stream grpc.ServerStreamingServer[structpb.Struct]) error {
	sub := s.hub.Subscribe()
	defer sub.Close()

	sid := s.Presence.Open("grpc", peerAddr(stream))
	defer s.Presence.Close(sid)

	send := func(ev snapshot.Event) error {
		msg, err := fleetv1.ToStruct(ev)
		if err != nil {
			return status.Errorf(codes.Internal, "failed to encode %s event: %v", ev.Type, err)
		}
		if err := stream.Send(msg); err != nil {
			return err
		}
		if ev.Snapshot != nil {
			s.Presence.Delivered(sid, ev.Snapshot.Seq)
		}
		return nil
	}

	if err := send(snapshot.StatusEvent(s.hub.Status())); err != nil {
		return err
	}
	if err := send(snapshot.SnapshotEvent(sub.Current())); err != nil {
		return err
	}

	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case snap := <-sub.C():
			if err := send(snapshot.SnapshotEvent(snap)); err != nil {
				return err
			}
		case st := <-sub.StatusC():
			if err := send(snapshot.StatusEvent(st)); err != nil {
				return err
			}
		}
	}
}

func peerAddr(stream grpc.ServerStream) string {
	if p, ok := peer.FromContext(stream.Context()); ok && p.Addr != nil {
		return p.Addr.String()
	}
	return ""
}
