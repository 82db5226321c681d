package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fastfare/fleetlive/internal/model"
	"github.com/fastfare/fleetlive/internal/pipeline"
	"github.com/fastfare/fleetlive/internal/snapshot"
)

// newTestServer returns a FleetServer over a fresh pipeline and its HTTP
// handler with auth disabled.
func newTestServer(t *testing.T) (*FleetServer, *pipeline.Pipeline, http.Handler) {
	t.Helper()
	hub := snapshot.NewHub(nil, nil)
	p := pipeline.New(hub, pipeline.Config{}, nil)
	t.Cleanup(p.Close)
	srv := NewFleetServer(p, nil)
	return srv, p, srv.NewHTTPHandler("")
}

func doRequest(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		if err := json.NewEncoder(&buf).Encode(b); err != nil {
			t.Fatalf("encoding body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("decoding response: %v; body: %s", err, rec.Body.String())
	}
}

func TestReport(t *testing.T) {
	srv, p, _ := newTestServer(t)
	p.ApplyBatch([]model.RawPositionEvent{
		model.NewPositionEvent("D1", 1, 1),
		model.NewPositionEvent("D2", 2, 2),
	})
	p.SetStatus(model.StatusConnected)

	rep := srv.Report()
	if rep.Drivers != 2 || rep.Seq != 1 {
		t.Errorf("expected 2 drivers at seq 1, got %+v", rep)
	}
	if rep.Status != model.StatusConnected {
		t.Errorf("expected connected, got %s", rep.Status)
	}
	if rep.Generation == "" {
		t.Error("expected a generation")
	}
	if rep.Closed {
		t.Error("pipeline should not be closed")
	}

	p.Close()
	if !srv.Report().Closed {
		t.Error("expected Closed after pipeline Close")
	}
}
