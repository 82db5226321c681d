// Package snapshot delivers immutable copies of the driver registry to
// rendering consumers. Every publish replaces the previous snapshot as a
// whole, so a consumer never observes a half-applied batch.
package snapshot

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/fastfare/fleetlive/internal/events"
	"github.com/fastfare/fleetlive/internal/model"
)

// Snapshot is one published state of the registry.
type Snapshot struct {
	Seq         uint64              `json:"seq"`        // increases by one per publish
	Generation  string              `json:"generation"` // changes on every resync
	Drivers     []model.DriverState `json:"drivers"`
	PublishedAt time.Time           `json:"publishedAt"`
}

// Driver returns the state for id, if present.
func (s *Snapshot) Driver(id string) (model.DriverState, bool) {
	for _, d := range s.Drivers {
		if d.ID == id {
			return d.Clone(), true
		}
	}
	return model.DriverState{}, false
}

// Hub fans out snapshots and connectivity status to subscribers.
type Hub struct {
	mu      sync.RWMutex
	latest  *Snapshot
	status  model.ConnStatus
	clients map[*Subscription]struct{}

	mirror   events.Publisher
	mirrorCh chan *Snapshot
	done     chan struct{}
	stopped  chan struct{}
	stop     sync.Once
	logger   *slog.Logger
}

// mirrorTimeout bounds a single mirror publish so a stalled broker cannot
// hold the mirror loop indefinitely.
const mirrorTimeout = 5 * time.Second

// Subscription is a single consumer of the hub. Snapshots and status
// changes are delivered latest-wins: a slow consumer skips intermediate
// snapshots but always receives the newest complete one.
type Subscription struct {
	hub     *Hub
	current *Snapshot
	ch      chan *Snapshot
	status  chan model.ConnStatus
	once    sync.Once
}

// NewHub creates a hub holding an empty snapshot. When mirror is non-nil
// published snapshots are also sent to events.TopicRegistrySnapshot from a
// background goroutine, latest-wins; Close stops it.
func NewHub(mirror events.Publisher, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Hub{
		latest:  &Snapshot{Drivers: []model.DriverState{}},
		status:  model.StatusDisconnected,
		clients: make(map[*Subscription]struct{}),
		mirror:  mirror,
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
		logger:  logger,
	}
	if mirror != nil {
		h.mirrorCh = make(chan *Snapshot, 1)
		go h.mirrorLoop()
	} else {
		close(h.stopped)
	}
	return h
}

func (h *Hub) mirrorLoop() {
	defer close(h.stopped)
	for {
		select {
		case <-h.done:
			return
		case snap := <-h.mirrorCh:
			ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
			err := h.mirror.Publish(ctx, events.TopicRegistrySnapshot, snap)
			cancel()
			if err != nil {
				h.logger.Warn("failed to mirror snapshot", "seq", snap.Seq, "err", err)
			}
		}
	}
}

// Close stops the mirror goroutine and waits for an in-flight publish to
// finish. It is safe to call more than once.
func (h *Hub) Close() {
	h.stop.Do(func() { close(h.done) })
	<-h.stopped
}

// Publish stores drivers as the newest snapshot and notifies subscribers.
// The hub takes ownership of the slice.
func (h *Hub) Publish(generation string, drivers []model.DriverState) *Snapshot {
	if drivers == nil {
		drivers = []model.DriverState{}
	}

	h.mu.Lock()
	snap := &Snapshot{
		Seq:         h.latest.Seq + 1,
		Generation:  generation,
		Drivers:     drivers,
		PublishedAt: time.Now().UTC(),
	}
	h.latest = snap
	for c := range h.clients {
		offer(c.ch, snap)
	}
	if h.mirrorCh != nil {
		offer(h.mirrorCh, snap)
	}
	h.mu.Unlock()
	return snap
}

// Latest returns the most recently published snapshot. Callers must treat
// it as read-only; use Copy before filtering or editing it.
func (h *Hub) Latest() *Snapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.latest
}

// SetStatus records the upstream connectivity status. Unchanged values
// are not re-announced.
func (h *Hub) SetStatus(status model.ConnStatus) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.status == status {
		return
	}
	h.status = status
	for c := range h.clients {
		offer(c.status, status)
	}
}

// Status returns the current upstream connectivity status.
func (h *Hub) Status() model.ConnStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.status
}

// Subscribe registers a consumer. The returned subscription's Current is
// the snapshot as of the last publish before the call; every later
// publish is delivered on C.
func (h *Hub) Subscribe() *Subscription {
	c := &Subscription{
		hub:    h,
		ch:     make(chan *Snapshot, 1),
		status: make(chan model.ConnStatus, 1),
	}
	h.mu.Lock()
	c.current = h.latest
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	return c
}

// Subscribers returns the number of registered consumers.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Current is the snapshot at subscribe time.
func (s *Subscription) Current() *Snapshot { return s.current }

// C delivers snapshots published after Subscribe.
func (s *Subscription) C() <-chan *Snapshot { return s.ch }

// StatusC delivers connectivity status changes.
func (s *Subscription) StatusC() <-chan model.ConnStatus { return s.status }

// Close unregisters the subscription. It is safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.mu.Lock()
		delete(s.hub.clients, s)
		s.hub.mu.Unlock()
	})
}

// Copy returns a deep copy of the snapshot.
func (s *Snapshot) Copy() *Snapshot {
	out := *s
	out.Drivers = make([]model.DriverState, len(s.Drivers))
	for i, d := range s.Drivers {
		out.Drivers[i] = d.Clone()
	}
	return &out
}

// offer performs a latest-wins send on a channel of capacity one. Callers
// hold the hub lock, so no other sender races with the drain.
func offer[T any](ch chan T, v T) {
	select {
	case ch <- v:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- v:
	default:
	}
}
