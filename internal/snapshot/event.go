package snapshot

import "github.com/fastfare/fleetlive/internal/model"

// Event kinds delivered to stream consumers.
const (
	EventSnapshot = "snapshot"
	EventStatus   = "status"
)

// Event is one message on a watch stream: either a full snapshot or a
// connectivity status change.
type Event struct {
	Type     string           `json:"type"`
	Snapshot *Snapshot        `json:"snapshot,omitempty"`
	Status   model.ConnStatus `json:"status,omitempty"`
}

// SnapshotEvent wraps s as a stream event.
func SnapshotEvent(s *Snapshot) Event {
	return Event{Type: EventSnapshot, Snapshot: s}
}

// StatusEvent wraps status as a stream event.
func StatusEvent(status model.ConnStatus) Event {
	return Event{Type: EventStatus, Status: status}
}
