package server

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/fastfare/fleetlive/internal/fleetv1"
	"github.com/fastfare/fleetlive/internal/model"
	"github.com/fastfare/fleetlive/internal/snapshot"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// dialTestGRPC serves srv over an in-memory listener and returns a client
// connection to it.
func dialTestGRPC(t *testing.T, srv *FleetServer, token string) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	gs := NewGRPCServer(srv, token)
	go func() { _ = gs.Serve(lis) }()
	t.Cleanup(gs.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dialing bufconn: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestNewGRPCServer_RegistersOnlyFleetService(t *testing.T) {
	srv, _, _ := newTestServer(t)
	gs := NewGRPCServer(srv, "")
	defer gs.Stop()

	info := gs.GetServiceInfo()
	if len(info) != 1 {
		t.Fatalf("expected exactly one service, got %v", info)
	}
	if _, ok := info[fleetv1.ServiceName]; !ok {
		t.Errorf("expected %s to be registered, got %v", fleetv1.ServiceName, info)
	}
}

func TestGRPC_GetSnapshot(t *testing.T) {
	srv, p, _ := newTestServer(t)
	p.Apply(model.NewPositionEvent("D1", 12.9, 77.6))
	conn := dialTestGRPC(t, srv, "")

	out := new(structpb.Struct)
	if err := conn.Invoke(context.Background(), fleetv1.FleetService_GetSnapshot_FullMethodName, &emptypb.Empty{}, out); err != nil {
		t.Fatalf("GetSnapshot: %v", err)
	}
	var snap snapshot.Snapshot
	if err := fleetv1.FromStruct(out, &snap); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if snap.Seq != 1 || len(snap.Drivers) != 1 || snap.Drivers[0].ID != "D1" {
		t.Errorf("unexpected snapshot %+v", snap)
	}
}

func TestGRPC_HealthExemptFromAuth(t *testing.T) {
	srv, _, _ := newTestServer(t)
	conn := dialTestGRPC(t, srv, "secret")

	out := new(structpb.Struct)
	if err := conn.Invoke(context.Background(), fleetv1.FleetService_Health_FullMethodName, &emptypb.Empty{}, out); err != nil {
		t.Fatalf("Health: %v", err)
	}
	if got := out.GetFields()["status"].GetStringValue(); got != "ok" {
		t.Errorf("expected status ok, got %q", got)
	}

	err := conn.Invoke(context.Background(), fleetv1.FleetService_GetSnapshot_FullMethodName, &emptypb.Empty{}, new(structpb.Struct))
	if status.Code(err) != codes.Unauthenticated {
		t.Fatalf("expected Unauthenticated without token, got %v", err)
	}
}

func recvEvent(t *testing.T, stream grpc.ClientStream) snapshot.Event {
	t.Helper()
	msg := new(structpb.Struct)
	if err := stream.RecvMsg(msg); err != nil {
		t.Fatalf("RecvMsg: %v", err)
	}
	var ev snapshot.Event
	if err := fleetv1.FromStruct(msg, &ev); err != nil {
		t.Fatalf("decoding event: %v", err)
	}
	return ev
}

func openWatch(t *testing.T, ctx context.Context, conn *grpc.ClientConn) grpc.ClientStream {
	t.Helper()
	stream, err := conn.NewStream(ctx, fleetv1.WatchSnapshotsStreamDesc, fleetv1.FleetService_WatchSnapshots_FullMethodName)
	if err != nil {
		t.Fatalf("NewStream: %v", err)
	}
	if err := stream.SendMsg(&emptypb.Empty{}); err != nil {
		t.Fatalf("SendMsg: %v", err)
	}
	if err := stream.CloseSend(); err != nil {
		t.Fatalf("CloseSend: %v", err)
	}
	return stream
}

func TestGRPC_WatchSnapshots(t *testing.T) {
	srv, p, _ := newTestServer(t)
	conn := dialTestGRPC(t, srv, "secret")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer secret")
	stream := openWatch(t, ctx, conn)

	if ev := recvEvent(t, stream); ev.Type != snapshot.EventStatus || ev.Status != model.StatusDisconnected {
		t.Fatalf("expected initial status event, got %+v", ev)
	}
	if ev := recvEvent(t, stream); ev.Type != snapshot.EventSnapshot || ev.Snapshot == nil || ev.Snapshot.Seq != 0 {
		t.Fatalf("expected initial empty snapshot, got %+v", ev)
	}

	p.Apply(model.NewPositionEvent("D1", 12.90, 77.60))
	ev := recvEvent(t, stream)
	if ev.Type != snapshot.EventSnapshot || ev.Snapshot.Seq != 1 || len(ev.Snapshot.Drivers) != 1 {
		t.Fatalf("expected snapshot seq 1 with D1, got %+v", ev)
	}

	p.SetStatus(model.StatusDegraded)
	if ev := recvEvent(t, stream); ev.Type != snapshot.EventStatus || ev.Status != model.StatusDegraded {
		t.Fatalf("expected degraded status event, got %+v", ev)
	}

	if srv.Presence.Len() != 1 || srv.Presence.Roster()[0].Transport != "grpc" {
		t.Errorf("expected one grpc watcher, got %+v", srv.Presence.Roster())
	}
}

func TestGRPC_WatchRequiresAuth(t *testing.T) {
	srv, _, _ := newTestServer(t)
	conn := dialTestGRPC(t, srv, "secret")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	stream := openWatch(t, ctx, conn)

	err := stream.RecvMsg(new(structpb.Struct))
	if status.Code(err) != codes.Unauthenticated {
		t.Fatalf("expected Unauthenticated, got %v", err)
	}
}
