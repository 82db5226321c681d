// Package registry holds the live driver registry: the authoritative,
// deduplicated set of current driver states keyed by driver ID.
//
// A Registry performs no locking. It is owned by exactly one pipeline,
// which serialises every mutation; consumers only ever see the copies
// returned by Snapshot.
package registry

import (
	"strings"
	"time"

	"github.com/fastfare/fleetlive/internal/geo"
	"github.com/fastfare/fleetlive/internal/model"
)

// Options tunes registry behavior.
type Options struct {
	// RejectOutOfOrder drops events whose timestamp is older than the
	// driver's lastUpdated. Off by default: events are applied in arrival
	// order and only lastUpdated is kept monotonic.
	RejectOutOfOrder bool

	// Now returns the ingestion time used for events without a timestamp.
	// Defaults to time.Now.
	Now func() time.Time
}

// Registry maps driver IDs to their last known state.
type Registry struct {
	drivers map[string]*model.DriverState
	order   []string // insertion order, stable between mutations
	dirty   bool
	opts    Options
}

// New creates an empty registry.
func New(opts Options) *Registry {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Registry{
		drivers: make(map[string]*model.DriverState),
		opts:    opts,
	}
}

// Upsert validates ev and merges it into the registry. On rejection the
// registry is left untouched and the error is a *model.RejectError.
func (r *Registry) Upsert(ev model.RawPositionEvent) (model.DriverState, error) {
	if err := model.ValidateEvent(ev); err != nil {
		return model.DriverState{}, err
	}
	id := strings.TrimSpace(ev.DriverID)

	at := ev.Timestamp.Time
	if at.IsZero() {
		at = r.opts.Now()
	}

	prior, ok := r.drivers[id]
	if ok && r.opts.RejectOutOfOrder && at.Before(prior.LastUpdated) {
		return model.DriverState{}, &model.RejectError{DriverID: id, Reason: model.ErrOutOfOrder}
	}

	var next model.DriverState
	if !ok {
		next = model.Merge(nil, ev, at)
		next.HeadingDegrees = 0
		next.SpeedEstimate = 0
		r.order = append(r.order, id)
	} else {
		next = model.Merge(prior, ev, at)
		if deg, moved := geo.Heading(prior.Lat, prior.Lng, next.Lat, next.Lng); moved {
			next.HeadingDegrees = deg
		}
		next.SpeedEstimate = geo.SpeedKMH(prior.Lat, prior.Lng, next.Lat, next.Lng)
	}

	r.drivers[id] = &next
	r.dirty = true
	return next.Clone(), nil
}

// Get returns a copy of one driver's state.
func (r *Registry) Get(id string) (model.DriverState, bool) {
	d, ok := r.drivers[id]
	if !ok {
		return model.DriverState{}, false
	}
	return d.Clone(), true
}

// Snapshot returns independent copies of every driver in insertion order.
func (r *Registry) Snapshot() []model.DriverState {
	out := make([]model.DriverState, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.drivers[id].Clone())
	}
	return out
}

// Clear removes every driver. Used when the upstream replays a full
// snapshot that must replace, not merge with, the current contents.
func (r *Registry) Clear() {
	r.drivers = make(map[string]*model.DriverState)
	r.order = nil
	r.dirty = true
}

// Retain removes every driver whose ID is not in keep and returns the
// removed IDs in registry order. Kept drivers retain their motion state.
func (r *Registry) Retain(keep map[string]struct{}) []string {
	var removed []string
	for _, id := range r.order {
		if _, ok := keep[id]; !ok {
			removed = append(removed, id)
		}
	}
	for _, id := range removed {
		r.remove(id)
	}
	if len(removed) > 0 {
		r.dirty = true
	}
	return removed
}

// Len returns the number of tracked drivers.
func (r *Registry) Len() int {
	return len(r.order)
}

// Dirty reports whether the registry changed since the last MarkClean.
func (r *Registry) Dirty() bool {
	return r.dirty
}

// MarkClean resets the dirty flag after a snapshot has been published.
func (r *Registry) MarkClean() {
	r.dirty = false
}

func (r *Registry) remove(id string) {
	delete(r.drivers, id)
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			return
		}
	}
}
