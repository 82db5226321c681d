package client

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fastfare/fleetlive/internal/model"
	"github.com/fastfare/fleetlive/internal/pipeline"
	"github.com/fastfare/fleetlive/internal/server"
	"github.com/fastfare/fleetlive/internal/snapshot"
)

// testHandler captures the incoming request details and returns a canned response.
type testHandler struct {
	// captured from the request
	method      string
	path        string
	rawPath     string // URL-encoded path (for testing PathEscape)
	query       string
	body        string
	contentType string
	auth        string

	// canned response
	statusCode   int
	responseBody string
}

func (h *testHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.method = r.Method
	h.path = r.URL.Path
	h.rawPath = r.URL.RawPath
	h.query = r.URL.RawQuery
	h.contentType = r.Header.Get("Content-Type")
	h.auth = r.Header.Get("Authorization")
	if r.Body != nil {
		data, _ := io.ReadAll(r.Body)
		h.body = string(data)
	}

	w.Header().Set("Content-Type", "application/json")
	if h.statusCode != 0 {
		w.WriteHeader(h.statusCode)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	if h.responseBody != "" {
		_, _ = w.Write([]byte(h.responseBody))
	}
}

// newTestClient creates an HTTPClient pointed at a test server with the given handler.
func newTestClient(t *testing.T, h http.Handler, token string) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewHTTPClient(srv.URL+"/", token)
}

// newLiveServer runs the real fleet HTTP handler over a fresh pipeline.
func newLiveServer(t *testing.T, token string) (*HTTPClient, *pipeline.Pipeline) {
	t.Helper()
	hub := snapshot.NewHub(nil, nil)
	p := pipeline.New(hub, pipeline.Config{}, nil)
	t.Cleanup(p.Close)
	fs := server.NewFleetServer(p, nil)
	return newTestClient(t, fs.NewHTTPHandler(token), token), p
}

func TestHTTPDrivers_Request(t *testing.T) {
	h := &testHandler{responseBody: `{"seq":3,"generation":"gen-a","drivers":[{"id":"D1","name":"D1","lat":1,"lng":2,"isLive":true}]}`}
	c := newTestClient(t, h, "secret")

	snap, err := c.Drivers(context.Background(), true)
	if err != nil {
		t.Fatalf("Drivers: %v", err)
	}
	if h.method != http.MethodGet || h.path != "/v1/drivers" || h.query != "live=true" {
		t.Errorf("request = %s %s?%s", h.method, h.path, h.query)
	}
	if h.auth != "Bearer secret" {
		t.Errorf("Authorization = %q", h.auth)
	}
	if snap.Seq != 3 || snap.Generation != "gen-a" || len(snap.Drivers) != 1 {
		t.Errorf("unexpected snapshot %+v", snap)
	}
}

func TestHTTPDriver_PathEscape(t *testing.T) {
	h := &testHandler{responseBody: `{"id":"a/b"}`}
	c := newTestClient(t, h, "")

	if _, err := c.Driver(context.Background(), "a/b"); err != nil {
		t.Fatalf("Driver: %v", err)
	}
	if h.rawPath != "/v1/drivers/a%2Fb" {
		t.Errorf("rawPath = %q", h.rawPath)
	}
	if h.auth != "" {
		t.Errorf("unexpected Authorization %q", h.auth)
	}
}

func TestHTTPDriver_NotFound(t *testing.T) {
	h := &testHandler{statusCode: http.StatusNotFound, responseBody: `{"error":"driver not found"}`}
	c := newTestClient(t, h, "")

	_, err := c.Driver(context.Background(), "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestHTTPAPIError(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantMsg string
	}{
		{"json error", http.StatusBadRequest, `{"error":"missing driver id"}`, "missing driver id"},
		{"plain text", http.StatusBadGateway, "upstream down\n", "upstream down"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &testHandler{statusCode: tt.status, responseBody: tt.body}
			c := newTestClient(t, h, "")

			_, err := c.Status(context.Background())
			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("err = %v, want *APIError", err)
			}
			if apiErr.StatusCode != tt.status || apiErr.Message != tt.wantMsg {
				t.Errorf("got %d %q, want %d %q", apiErr.StatusCode, apiErr.Message, tt.status, tt.wantMsg)
			}
		})
	}
}

func TestHTTPPostBatch_EmptyIsArray(t *testing.T) {
	h := &testHandler{statusCode: http.StatusAccepted, responseBody: `{"accepted":0,"rejected":0,"published":false}`}
	c := newTestClient(t, h, "")

	if _, err := c.Resync(context.Background(), nil); err != nil {
		t.Fatalf("Resync: %v", err)
	}
	if h.path != "/v1/positions/resync" || h.method != http.MethodPost {
		t.Errorf("request = %s %s", h.method, h.path)
	}
	if h.body != "[]" {
		t.Errorf("body = %q, want []", h.body)
	}
	if h.contentType != "application/json" {
		t.Errorf("Content-Type = %q", h.contentType)
	}
}

func TestDecodeSSE(t *testing.T) {
	ev, err := decodeSSE("status", `{"status":"degraded"}`)
	if err != nil || ev.Type != snapshot.EventStatus || ev.Status != model.StatusDegraded {
		t.Errorf("status event = %+v, %v", ev, err)
	}
	ev, err = decodeSSE("snapshot", `{"seq":7,"drivers":[]}`)
	if err != nil || ev.Type != snapshot.EventSnapshot || ev.Snapshot == nil || ev.Snapshot.Seq != 7 {
		t.Errorf("snapshot event = %+v, %v", ev, err)
	}
	if _, err := decodeSSE("snapshot", `{`); err == nil {
		t.Error("expected error for truncated snapshot")
	}
}

// --- Against the real server ---

func TestHTTP_RoundTrip(t *testing.T) {
	c, _ := newLiveServer(t, "tok")
	ctx := context.Background()

	d, err := c.PostPosition(ctx, model.NewPositionEvent("D1", 12.90, 77.60))
	if err != nil {
		t.Fatalf("PostPosition: %v", err)
	}
	if d.ID != "D1" || d.Name != "D1" {
		t.Errorf("unexpected driver %+v", d)
	}

	res, err := c.PostBatch(ctx, []model.RawPositionEvent{
		model.NewPositionEvent("D2", 1, 1),
		{DriverID: "  "},
	})
	if err != nil {
		t.Fatalf("PostBatch: %v", err)
	}
	if res.Accepted != 1 || res.Rejected != 1 || !res.Published {
		t.Errorf("batch result = %+v", res)
	}

	snap, err := c.Drivers(ctx, false)
	if err != nil {
		t.Fatalf("Drivers: %v", err)
	}
	if len(snap.Drivers) != 2 || snap.Seq != 2 {
		t.Errorf("snapshot = %+v", snap)
	}

	rep, err := c.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if rep.Drivers != 2 {
		t.Errorf("report drivers = %d", rep.Drivers)
	}

	health, err := c.Health(ctx)
	if err != nil || health != "ok" {
		t.Errorf("Health = %q, %v", health, err)
	}

	if _, err := c.Driver(ctx, "D9"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Driver(D9) err = %v", err)
	}
}

func TestHTTP_Unauthorized(t *testing.T) {
	c, _ := newLiveServer(t, "tok")
	c.token = "wrong"

	_, err := c.Drivers(context.Background(), false)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("err = %v, want 401", err)
	}
}

func TestHTTP_Watch(t *testing.T) {
	c, p := newLiveServer(t, "")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	errDone := errors.New("done")
	var got []snapshot.Event
	err := c.Watch(ctx, func(ev snapshot.Event) error {
		got = append(got, ev)
		if ev.Type == snapshot.EventSnapshot && ev.Snapshot.Seq == 0 {
			// Initial snapshot received; trigger a publish.
			go p.Apply(model.NewPositionEvent("D1", 1, 1))
		}
		if ev.Type == snapshot.EventSnapshot && ev.Snapshot.Seq == 1 {
			return errDone
		}
		return nil
	})
	if !errors.Is(err, errDone) {
		t.Fatalf("Watch err = %v", err)
	}
	if len(got) < 3 || got[0].Type != snapshot.EventStatus {
		t.Fatalf("events = %+v", got)
	}
	last := got[len(got)-1]
	if len(last.Snapshot.Drivers) != 1 || last.Snapshot.Drivers[0].ID != "D1" {
		t.Errorf("last snapshot = %+v", last.Snapshot)
	}
}

func TestHTTP_WatchHTTPError(t *testing.T) {
	h := &testHandler{statusCode: http.StatusUnauthorized, responseBody: `{"error":"unauthorized"}`}
	c := newTestClient(t, h, "")

	err := c.Watch(context.Background(), func(snapshot.Event) error { return nil })
	if err == nil || !strings.Contains(err.Error(), "unauthorized") {
		t.Errorf("err = %v", err)
	}
}
