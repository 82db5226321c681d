package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/fastfare/fleetlive/internal/fleetv1"
	"github.com/fastfare/fleetlive/internal/model"
	"github.com/fastfare/fleetlive/internal/pipeline"
	"github.com/fastfare/fleetlive/internal/presence"
	"github.com/fastfare/fleetlive/internal/snapshot"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// FleetServer serves the pipeline's snapshots over HTTP, SSE and gRPC and
// accepts position events over HTTP.
type FleetServer struct {
	pipeline *pipeline.Pipeline
	hub      *snapshot.Hub
	Presence *presence.Tracker
	started  time.Time
	logger   *slog.Logger
}

var _ fleetv1.FleetServiceServer = (*FleetServer)(nil)

// NewFleetServer returns a FleetServer in front of p.
func NewFleetServer(p *pipeline.Pipeline, logger *slog.Logger) *FleetServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &FleetServer{
		pipeline: p,
		hub:      p.Hub(),
		Presence: presence.New(),
		started:  time.Now(),
		logger:   logger.With("component", "server"),
	}
}

// Report builds the operator status view.
func (s *FleetServer) Report() model.StatusReport {
	snap := s.hub.Latest()
	offline := 0
	for _, d := range snap.Drivers {
		if d.Offline {
			offline++
		}
	}
	return model.StatusReport{
		Status:          s.hub.Status(),
		Seq:             snap.Seq,
		Generation:      snap.Generation,
		Drivers:         len(snap.Drivers),
		Offline:         offline,
		Subscribers:     s.hub.Subscribers(),
		Watchers:        s.Presence.Len(),
		LastPublishedAt: snap.PublishedAt,
		UptimeSecs:      time.Since(s.started).Seconds(),
		Closed:          s.pipeline.Closed(),
	}
}

func (s *FleetServer) health() map[string]string {
	return map[string]string{
		"status":     "ok",
		"connection": s.hub.Status().String(),
	}
}

// GetSnapshot returns the latest published snapshot.
func (s *FleetServer) GetSnapshot(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	out, err := fleetv1.ToStruct(s.hub.Latest())
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode snapshot: %v", err)
	}
	return out, nil
}

// Health reports liveness and upstream connectivity.
func (s *FleetServer) Health(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	out, err := fleetv1.ToStruct(s.health())
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode health: %v", err)
	}
	return out, nil
}
