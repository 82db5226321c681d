package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fastfare/fleetlive/internal/model"
	"github.com/fastfare/fleetlive/internal/snapshot"
)

// sseKeepaliveInterval is how often keepalive comments are sent to
// prevent connection timeouts.
var sseKeepaliveInterval = 15 * time.Second

// handleDriverStream handles GET /v1/drivers/stream (SSE endpoint).
//
// The stream opens with a "status" event and a "snapshot" event holding
// the current registry, then carries one "snapshot" event per publish and
// one "status" event per connectivity change. Snapshot event IDs are the
// snapshot sequence numbers. A slow client skips intermediate snapshots
// but always receives the newest complete one.
func (s *FleetServer) handleDriverStream(w http.ResponseWriter, r *http.Request) {
	// Ensure response supports flushing (required for SSE).
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	sub := s.hub.Subscribe()
	defer sub.Close()

	sid := s.Presence.Open("sse", r.RemoteAddr)
	defer s.Presence.Close(sid)

	// Set SSE headers.
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering.
	w.WriteHeader(http.StatusOK)

	writeStatusEvent(w, s.hub.Status())
	cur := sub.Current()
	writeSnapshotEvent(w, cur)
	s.Presence.Delivered(sid, cur.Seq)
	flusher.Flush()

	// Stream events until client disconnects.
	ctx := r.Context()
	keepalive := time.NewTicker(sseKeepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-sub.C():
			writeSnapshotEvent(w, snap)
			s.Presence.Delivered(sid, snap.Seq)
			flusher.Flush()
		case st := <-sub.StatusC():
			writeStatusEvent(w, st)
			flusher.Flush()
		case <-keepalive.C:
			// Send a comment line as keepalive.
			fmt.Fprintf(w, ":keepalive\n\n")
			flusher.Flush()
		}
	}
}

func writeSnapshotEvent(w io.Writer, snap *snapshot.Snapshot) {
	data, err := json.Marshal(snap)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "id:%d\n", snap.Seq)
	fmt.Fprintf(w, "event:%s\n", snapshot.EventSnapshot)
	fmt.Fprintf(w, "data:%s\n\n", data)
}

func writeStatusEvent(w io.Writer, st model.ConnStatus) {
	data, _ := json.Marshal(map[string]model.ConnStatus{"status": st})
	fmt.Fprintf(w, "event:%s\n", snapshot.EventStatus)
	fmt.Fprintf(w, "data:%s\n\n", data)
}
