// Package client provides a transport-agnostic interface for the fleet
// service and HTTP/JSON and gRPC implementations of it.
package client

import (
	"context"
	"errors"

	"github.com/fastfare/fleetlive/internal/model"
	"github.com/fastfare/fleetlive/internal/snapshot"
)

// FleetClient is the interface the fleet CLI commands use to read from a
// running server. It is implemented by HTTPClient (default) and GRPCClient.
type FleetClient interface {
	// Drivers returns the latest snapshot. liveOnly drops offline drivers.
	Drivers(ctx context.Context, liveOnly bool) (*snapshot.Snapshot, error)
	// Driver returns one driver from the latest snapshot.
	Driver(ctx context.Context, id string) (*model.DriverState, error)
	// Status returns the operator status report.
	Status(ctx context.Context) (*model.StatusReport, error)
	// Health returns the server's health status string.
	Health(ctx context.Context) (string, error)
	// Watch streams snapshot and status events to fn until ctx is done,
	// the stream ends, or fn returns an error.
	Watch(ctx context.Context, fn func(snapshot.Event) error) error

	// Lifecycle
	Close() error
}

// ErrNotFound is returned when a requested driver does not exist.
var ErrNotFound = errors.New("not found")

// BatchResult is the server's answer to a batch or resync post.
type BatchResult struct {
	Accepted  int  `json:"accepted"`
	Rejected  int  `json:"rejected"`
	Published bool `json:"published"`
}
