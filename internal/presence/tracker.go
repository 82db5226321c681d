// Package presence tracks the consumers currently watching the snapshot
// stream, over SSE or gRPC, for the status endpoint.
//
// Sessions are opened when a stream starts and closed when it ends, so
// unlike the driver registry there is nothing to reap: a session exists
// exactly as long as its stream handler runs.
package presence

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/fastfare/fleetlive/internal/idgen"
)

// Entry represents a single watcher's live state.
type Entry struct {
	SessionID     string    `json:"session_id"`
	Transport     string    `json:"transport"` // "sse" or "grpc"
	Client        string    `json:"client,omitempty"`
	ConnectedAt   time.Time `json:"connected_at"`
	LastSentAt    time.Time `json:"last_sent_at,omitzero"`
	LastSeq       uint64    `json:"last_seq"`
	Delivered     int64     `json:"delivered"`
	ConnectedSecs float64   `json:"connected_secs"`
	IdleSecs      float64   `json:"idle_secs"` // seconds since last delivery (or connect)
}

// Tracker maintains an in-memory roster of watch sessions.
type Tracker struct {
	mu       sync.RWMutex
	sessions map[string]*sessionState
	now      func() time.Time
}

type sessionState struct {
	transport   string
	client      string
	connectedAt time.Time
	lastSentAt  time.Time
	lastSeq     uint64
	delivered   int64
}

// New creates a new presence tracker.
func New() *Tracker {
	return &Tracker{
		sessions: make(map[string]*sessionState),
		now:      time.Now,
	}
}

// Open registers a new watch session and returns its ID.
func (t *Tracker) Open(transport, client string) string {
	id, err := idgen.New(idgen.PrefixSession)
	if err != nil {
		// IDs only need to be unique within this process.
		id = idgen.PrefixSession + t.now().Format("150405.000000000")
	}

	t.mu.Lock()
	t.sessions[id] = &sessionState{
		transport:   transport,
		client:      client,
		connectedAt: t.now(),
	}
	n := len(t.sessions)
	t.mu.Unlock()

	slog.Debug("presence: watcher connected", "session_id", id, "transport", transport, "watchers", n)
	return id
}

// Delivered records that the snapshot with sequence seq was sent to the
// session. Unknown sessions are ignored.
func (t *Tracker) Delivered(id string, seq uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[id]
	if !ok {
		return
	}
	s.lastSentAt = t.now()
	s.lastSeq = seq
	s.delivered++
}

// Close removes a session. It is safe to call more than once.
func (t *Tracker) Close(id string) {
	t.mu.Lock()
	s, ok := t.sessions[id]
	delete(t.sessions, id)
	t.mu.Unlock()

	if ok {
		slog.Debug("presence: watcher disconnected",
			"session_id", id,
			"transport", s.transport,
			"delivered", s.delivered)
	}
}

// Len returns the number of open sessions.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.sessions)
}

// Roster returns a snapshot of all open sessions, oldest first.
func (t *Tracker) Roster() []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	now := t.now()
	entries := make([]Entry, 0, len(t.sessions))
	for id, s := range t.sessions {
		last := s.lastSentAt
		if last.IsZero() {
			last = s.connectedAt
		}
		entries = append(entries, Entry{
			SessionID:     id,
			Transport:     s.transport,
			Client:        s.client,
			ConnectedAt:   s.connectedAt,
			LastSentAt:    s.lastSentAt,
			LastSeq:       s.lastSeq,
			Delivered:     s.delivered,
			ConnectedSecs: now.Sub(s.connectedAt).Seconds(),
			IdleSecs:      now.Sub(last).Seconds(),
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].ConnectedAt.Equal(entries[j].ConnectedAt) {
			return entries[i].SessionID < entries[j].SessionID
		}
		return entries[i].ConnectedAt.Before(entries[j].ConnectedAt)
	})
	return entries
}
