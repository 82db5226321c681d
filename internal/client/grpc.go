package client

import (
	"context"
	"fmt"

	"github.com/fastfare/fleetlive/internal/fleetv1"
	"github.com/fastfare/fleetlive/internal/model"
	"github.com/fastfare/fleetlive/internal/snapshot"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// GRPCClient implements FleetClient using the gRPC transport.
type GRPCClient struct {
	conn *grpc.ClientConn
}

var _ FleetClient = (*GRPCClient)(nil)

// NewGRPCClient connects to the given gRPC address and returns a client.
// When token is non-empty it is sent as a bearer token on every call.
func NewGRPCClient(addr, token string, opts ...grpc.DialOption) (*GRPCClient, error) {
	dialOpts := []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	if token != "" {
		dialOpts = append(dialOpts, grpc.WithPerRPCCredentials(bearerToken(token)))
	}
	conn, err := grpc.NewClient(addr, append(dialOpts, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("grpc dial: %w", err)
	}
	return &GRPCClient{conn: conn}, nil
}

func (c *GRPCClient) Close() error {
	return c.conn.Close()
}

func (c *GRPCClient) Drivers(ctx context.Context, liveOnly bool) (*snapshot.Snapshot, error) {
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, fleetv1.FleetService_GetSnapshot_FullMethodName, &emptypb.Empty{}, out); err != nil {
		return nil, err
	}
	var snap snapshot.Snapshot
	if err := fleetv1.FromStruct(out, &snap); err != nil {
		return nil, err
	}
	if liveOnly {
		live := make([]model.DriverState, 0, len(snap.Drivers))
		for _, d := range snap.Drivers {
			if !d.Offline {
				live = append(live, d)
			}
		}
		snap.Drivers = live
	}
	return &snap, nil
}

func (c *GRPCClient) Driver(ctx context.Context, id string) (*model.DriverState, error) {
	snap, err := c.Drivers(ctx, false)
	if err != nil {
		return nil, err
	}
	d, ok := snap.Driver(id)
	if !ok {
		return nil, fmt.Errorf("driver %s: %w", id, ErrNotFound)
	}
	return &d, nil
}

// Status derives a report from GetSnapshot and Health. Server-side
// counters (subscribers, watchers, uptime) are not available over gRPC.
func (c *GRPCClient) Status(ctx context.Context) (*model.StatusReport, error) {
	snap, err := c.Drivers(ctx, false)
	if err != nil {
		return nil, err
	}
	h, err := c.health(ctx)
	if err != nil {
		return nil, err
	}
	rep := &model.StatusReport{
		Status:          model.ConnStatus(h["connection"]),
		Seq:             snap.Seq,
		Generation:      snap.Generation,
		Drivers:         len(snap.Drivers),
		LastPublishedAt: snap.PublishedAt,
	}
	for _, d := range snap.Drivers {
		if d.Offline {
			rep.Offline++
		}
	}
	return rep, nil
}

func (c *GRPCClient) Health(ctx context.Context) (string, error) {
	h, err := c.health(ctx)
	if err != nil {
		return "", err
	}
	return h["status"], nil
}

func (c *GRPCClient) health(ctx context.Context) (map[string]string, error) {
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, fleetv1.FleetService_Health_FullMethodName, &emptypb.Empty{}, out); err != nil {
		return nil, err
	}
	var h map[string]string
	if err := fleetv1.FromStruct(out, &h); err != nil {
		return nil, err
	}
	return h, nil
}

func (c *GRPCClient) Watch(ctx context.Context, fn func(snapshot.Event) error) error {
	stream, err := c.conn.NewStream(ctx, fleetv1.WatchSnapshotsStreamDesc, fleetv1.FleetService_WatchSnapshots_FullMethodName)
	if err != nil {
		return fmt.Errorf("opening watch stream: %w", err)
	}
	if err := stream.SendMsg(&emptypb.Empty{}); err != nil {
		return fmt.Errorf("sending watch request: %w", err)
	}
	if err := stream.CloseSend(); err != nil {
		return fmt.Errorf("closing watch request: %w", err)
	}

	for {
		msg := new(structpb.Struct)
		if err := stream.RecvMsg(msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		var ev snapshot.Event
		if err := fleetv1.FromStruct(msg, &ev); err != nil {
			return err
		}
		if err := fn(ev); err != nil {
			return err
		}
	}
}

// bearerToken attaches an Authorization header to every RPC.
type bearerToken string

func (t bearerToken) GetRequestMetadata(context.Context, ...string) (map[string]string, error) {
	return map[string]string{"authorization": "Bearer " + string(t)}, nil
}

// RequireTransportSecurity is false so tokens work with the plaintext
// connections the CLI uses.
func (t bearerToken) RequireTransportSecurity() bool { return false }
