// Package pipeline reconciles raw position events into the live driver
// registry and decides when a new snapshot is published.
//
// All mutations go through one mutex, so the registry sees a single
// logical thread of control no matter how many transports feed it.
package pipeline

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/fastfare/fleetlive/internal/idgen"
	"github.com/fastfare/fleetlive/internal/model"
	"github.com/fastfare/fleetlive/internal/registry"
	"github.com/fastfare/fleetlive/internal/snapshot"
)

// Config configures a Pipeline.
type Config struct {
	Registry registry.Options
	Reaper   registry.ReaperConfig
}

// BatchResult summarises a batch application.
type BatchResult struct {
	Accepted  int
	Rejected  int
	Removed   int // drivers pruned by Reconcile
	Published bool
}

// Pipeline owns a registry and publishes its snapshots to a hub.
type Pipeline struct {
	mu         sync.Mutex
	reg        *registry.Registry
	hub        *snapshot.Hub
	generation string
	closed     bool
	reaper     registry.ReaperConfig
	now        func() time.Time
	logger     *slog.Logger

	reaperStop chan struct{}
	reaperDone chan struct{}
}

// New creates a pipeline publishing to hub.
func New(hub *snapshot.Hub, cfg Config, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Registry.Now
	if now == nil {
		now = time.Now
	}
	return &Pipeline{
		reg:        registry.New(cfg.Registry),
		hub:        hub,
		generation: idgen.Generation(),
		reaper:     cfg.Reaper,
		now:        now,
		logger:     logger.With("component", "pipeline"),
	}
}

// Apply handles a single live update. An accepted event is published
// immediately; a rejected one is logged and changes nothing.
func (p *Pipeline) Apply(ev model.RawPositionEvent) (model.DriverState, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return model.DriverState{}, model.ErrClosed
	}

	d, err := p.reg.Upsert(ev)
	if err != nil {
		p.logReject(err)
		return model.DriverState{}, err
	}
	p.publishLocked()
	return d, nil
}

// ApplyBatch applies events in order and publishes at most one snapshot
// after the whole batch.
func (p *Pipeline) ApplyBatch(evs []model.RawPositionEvent) BatchResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return BatchResult{Rejected: len(evs)}
	}
	return p.applyBatchLocked(evs)
}

// Resync replaces the registry contents with evs. The registry is cleared
// first so drivers absent from the fresh batch disappear, and the
// snapshot generation changes.
func (p *Pipeline) Resync(evs []model.RawPositionEvent) BatchResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return BatchResult{Rejected: len(evs)}
	}

	dropped := p.reg.Len()
	p.reg.Clear()
	p.generation = idgen.Generation()
	res := p.applyBatchLocked(evs)
	p.logger.Info("registry resynced",
		"generation", p.generation,
		"dropped", dropped,
		"accepted", res.Accepted,
		"rejected", res.Rejected)
	return res
}

// Reconcile merges a periodic full listing into the registry. Drivers in
// evs keep their motion state, so speed and heading stay meaningful
// across polls; drivers absent from the listing are pruned. The
// generation is unchanged and at most one snapshot is published. A
// listing with no accepted events prunes nothing.
func (p *Pipeline) Reconcile(evs []model.RawPositionEvent) BatchResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return BatchResult{Rejected: len(evs)}
	}

	var res BatchResult
	seen := make(map[string]struct{}, len(evs))
	for _, ev := range evs {
		d, err := p.reg.Upsert(ev)
		if err != nil {
			p.logReject(err)
			res.Rejected++
			continue
		}
		seen[d.ID] = struct{}{}
		res.Accepted++
	}
	if res.Accepted > 0 {
		if removed := p.reg.Retain(seen); len(removed) > 0 {
			res.Removed = len(removed)
			p.logger.Info("pruned drivers missing from listing", "count", len(removed))
		}
	}
	res.Published = p.publishLocked()
	return res
}

func (p *Pipeline) applyBatchLocked(evs []model.RawPositionEvent) BatchResult {
	var res BatchResult
	for _, ev := range evs {
		if _, err := p.reg.Upsert(ev); err != nil {
			p.logReject(err)
			res.Rejected++
			continue
		}
		res.Accepted++
	}
	res.Published = p.publishLocked()
	return res
}

// SetStatus reports upstream connectivity. It never touches the registry:
// stale positions stay visible while the transport is down.
func (p *Pipeline) SetStatus(status model.ConnStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.hub.SetStatus(status)
}

// Sweep runs one stale-driver pass and publishes if anything changed.
func (p *Pipeline) Sweep(now time.Time) registry.SweepResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return registry.SweepResult{}
	}
	res := p.reg.Sweep(now, p.reaper)
	if res.Changed() {
		p.publishLocked()
		p.logger.Info("reaper sweep",
			"offline", len(res.Offline),
			"evicted", len(res.Evicted))
	}
	return res
}

// Snapshot returns the latest published snapshot.
func (p *Pipeline) Snapshot() *snapshot.Snapshot {
	return p.hub.Latest()
}

// Hub returns the hub this pipeline publishes to.
func (p *Pipeline) Hub() *snapshot.Hub {
	return p.hub
}

// Closed reports whether Close has been called.
func (p *Pipeline) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Close tears the pipeline down and stops the hub's mirror. Every later
// mutation, including results of fetches that were in flight, is ignored.
func (p *Pipeline) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.hub.SetStatus(model.StatusDisconnected)
	p.mu.Unlock()

	p.stopReaper()
	p.hub.Close()
	p.logger.Info("pipeline closed")
}

// publishLocked publishes a snapshot if the registry is dirty.
func (p *Pipeline) publishLocked() bool {
	if !p.reg.Dirty() {
		return false
	}
	p.hub.Publish(p.generation, p.reg.Snapshot())
	p.reg.MarkClean()
	return true
}

func (p *Pipeline) logReject(err error) {
	var re *model.RejectError
	if errors.As(err, &re) {
		p.logger.Warn("dropped position event", "driver_id", re.DriverID, "reason", re.Reason)
		return
	}
	p.logger.Warn("dropped position event", "err", err)
}
