package feed

import (
	"context"
	"fmt"

	"github.com/jamespfennell/gtfs"

	"github.com/fastfare/fleetlive/internal/model"
)

// GTFSFetcher pulls vehicle positions from a GTFS-realtime feed. Each
// vehicle with an ID and a position becomes one position event; the
// vehicle label is used as the driver name and the licence plate as the
// vehicle.
type GTFSFetcher struct {
	g getter
}

// NewGTFSFetcher creates a fetcher for a VehiclePositions feed at url.
func NewGTFSFetcher(url string, opts Options) *GTFSFetcher {
	return &GTFSFetcher{g: newGetter(url, opts, "feed_gtfs")}
}

// Fetch implements pipeline.Fetcher.
func (f *GTFSFetcher) Fetch(ctx context.Context) ([]model.RawPositionEvent, error) {
	b, err := f.g.get(ctx, "application/x-protobuf")
	if err != nil {
		return nil, err
	}
	rt, err := gtfs.ParseRealtime(b, &gtfs.ParseRealtimeOptions{})
	if err != nil {
		return nil, fmt.Errorf("parsing GTFS-realtime from %s: %w", f.g.url, err)
	}

	evs, skipped := VehicleEvents(rt.Vehicles)
	if skipped > 0 {
		f.g.logger.Debug("skipped vehicles without id or position", "count", skipped)
	}
	return evs, nil
}

// VehicleEvents converts GTFS-realtime vehicles to position events.
// Vehicles missing an ID or coordinates are skipped and counted.
func VehicleEvents(vehicles []gtfs.Vehicle) (evs []model.RawPositionEvent, skipped int) {
	evs = make([]model.RawPositionEvent, 0, len(vehicles))
	for _, v := range vehicles {
		if v.ID == nil || v.ID.ID == "" || v.Position == nil ||
			v.Position.Latitude == nil || v.Position.Longitude == nil {
			skipped++
			continue
		}
		ev := model.NewPositionEvent(v.ID.ID,
			float64(*v.Position.Latitude),
			float64(*v.Position.Longitude))
		ev.DriverName = v.ID.Label
		ev.Vehicle = v.ID.LicensePlate
		if v.Timestamp != nil {
			ev.Timestamp = model.At(*v.Timestamp)
		}
		evs = append(evs, ev)
	}
	return evs, skipped
}
