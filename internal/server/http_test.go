package server

import (
	"net/http"
	"testing"

	"github.com/fastfare/fleetlive/internal/model"
	"github.com/fastfare/fleetlive/internal/snapshot"
)

func TestHandleHealth(t *testing.T) {
	_, _, h := newTestServer(t)
	rec := doRequest(t, h, http.MethodGet, "/v1/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]string
	decodeBody(t, rec, &body)
	if body["status"] != "ok" || body["connection"] != "disconnected" {
		t.Errorf("unexpected health body %v", body)
	}
}

func TestHandlePostPosition(t *testing.T) {
	_, _, h := newTestServer(t)

	rec := doRequest(t, h, http.MethodPost, "/v1/positions",
		`{"driverId":"D1","lat":12.9,"lng":77.6,"driverName":"Asha","timestamp":1767225600000}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d; body: %s", rec.Code, rec.Body.String())
	}
	var d model.DriverState
	decodeBody(t, rec, &d)
	if d.ID != "D1" || d.Name != "Asha" || !d.IsLive {
		t.Errorf("unexpected driver %+v", d)
	}

	rec = doRequest(t, h, http.MethodGet, "/v1/drivers/D1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestHandlePostPosition_Rejected(t *testing.T) {
	_, p, h := newTestServer(t)

	for name, body := range map[string]string{
		"MissingCoordinates": `{"driverId":"D1"}`,
		"MissingDriverID":    `{"lat":1,"lng":2}`,
		"BadJSON":            `{"driverId":`,
	} {
		t.Run(name, func(t *testing.T) {
			rec := doRequest(t, h, http.MethodPost, "/v1/positions", body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d; body: %s", rec.Code, rec.Body.String())
			}
		})
	}
	if seq := p.Snapshot().Seq; seq != 0 {
		t.Errorf("rejected events must not publish, seq = %d", seq)
	}
}

func TestHandlePostPosition_Closed(t *testing.T) {
	_, p, h := newTestServer(t)
	p.Close()

	rec := doRequest(t, h, http.MethodPost, "/v1/positions", model.NewPositionEvent("D1", 1, 1))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	rec = doRequest(t, h, http.MethodPost, "/v1/positions/batch", `[]`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 for batch, got %d", rec.Code)
	}
}

func TestHandlePostBatch(t *testing.T) {
	_, p, h := newTestServer(t)

	rec := doRequest(t, h, http.MethodPost, "/v1/positions/batch",
		`[{"driverId":"D1","lat":1,"lng":1},{"driverId":"D2"},{"driverId":"D3","lat":"x"},{"driverId":"D4","lat":4,"lng":4}]`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d; body: %s", rec.Code, rec.Body.String())
	}
	var res batchResponse
	decodeBody(t, rec, &res)
	if res.Accepted != 2 || res.Rejected != 2 || !res.Published {
		t.Errorf("unexpected result %+v", res)
	}
	if seq := p.Snapshot().Seq; seq != 1 {
		t.Errorf("expected one snapshot for the batch, seq = %d", seq)
	}
}

func TestHandlePostBatch_BadBody(t *testing.T) {
	_, _, h := newTestServer(t)
	rec := doRequest(t, h, http.MethodPost, "/v1/positions/batch", `42`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandlePostResync(t *testing.T) {
	_, p, h := newTestServer(t)
	p.Apply(model.NewPositionEvent("OLD", 1, 1))

	rec := doRequest(t, h, http.MethodPost, "/v1/positions/resync",
		`{"drivers":[{"driverId":"NEW","lat":2,"lng":2}]}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d; body: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, h, http.MethodGet, "/v1/drivers", nil)
	var snap snapshot.Snapshot
	decodeBody(t, rec, &snap)
	if len(snap.Drivers) != 1 || snap.Drivers[0].ID != "NEW" {
		t.Errorf("expected only NEW after resync, got %+v", snap.Drivers)
	}
}

func TestHandleListDrivers(t *testing.T) {
	_, p, h := newTestServer(t)
	p.ApplyBatch([]model.RawPositionEvent{
		model.NewPositionEvent("D1", 1, 1),
		model.NewPositionEvent("D2", 2, 2),
	})

	rec := doRequest(t, h, http.MethodGet, "/v1/drivers", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var snap snapshot.Snapshot
	decodeBody(t, rec, &snap)
	if snap.Seq != 1 || len(snap.Drivers) != 2 {
		t.Fatalf("expected seq 1 with 2 drivers, got %+v", snap)
	}
	if snap.Drivers[0].ID != "D1" || snap.Drivers[1].ID != "D2" {
		t.Errorf("expected insertion order D1, D2, got %s, %s", snap.Drivers[0].ID, snap.Drivers[1].ID)
	}
}

func TestHandleListDrivers_Empty(t *testing.T) {
	_, _, h := newTestServer(t)
	rec := doRequest(t, h, http.MethodGet, "/v1/drivers", nil)
	var snap snapshot.Snapshot
	decodeBody(t, rec, &snap)
	if snap.Drivers == nil || len(snap.Drivers) != 0 {
		t.Errorf("expected empty drivers list, got %#v", snap.Drivers)
	}
}

func TestHandleListDrivers_LiveOnly(t *testing.T) {
	_, p, h := newTestServer(t)
	hub := p.Hub()
	hub.Publish("g", []model.DriverState{
		{ID: "A", IsLive: true},
		{ID: "B", Offline: true},
		{ID: "C", IsLive: true},
	})

	rec := doRequest(t, h, http.MethodGet, "/v1/drivers?live=true", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var snap snapshot.Snapshot
	decodeBody(t, rec, &snap)
	if len(snap.Drivers) != 2 || snap.Drivers[0].ID != "A" || snap.Drivers[1].ID != "C" {
		t.Errorf("expected A, C, got %+v", snap.Drivers)
	}
	if snap.Seq != hub.Latest().Seq {
		t.Errorf("filtered seq %d, want %d", snap.Seq, hub.Latest().Seq)
	}
	if got := hub.Latest().Drivers; len(got) != 3 || got[1].ID != "B" {
		t.Errorf("filtering mutated the published snapshot: %+v", got)
	}
}

func TestHandleListDrivers_BadLiveParam(t *testing.T) {
	_, _, h := newTestServer(t)
	rec := doRequest(t, h, http.MethodGet, "/v1/drivers?live=perhaps", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandleGetDriver_NotFound(t *testing.T) {
	_, _, h := newTestServer(t)
	rec := doRequest(t, h, http.MethodGet, "/v1/drivers/ghost", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestHandleStatus(t *testing.T) {
	_, p, h := newTestServer(t)
	p.Apply(model.NewPositionEvent("D1", 1, 1))
	p.SetStatus(model.StatusDegraded)

	rec := doRequest(t, h, http.MethodGet, "/v1/status", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var rep model.StatusReport
	decodeBody(t, rec, &rep)
	if rep.Status != model.StatusDegraded || rep.Drivers != 1 || rep.Seq != 1 {
		t.Errorf("unexpected report %+v", rep)
	}
}

func TestHandleWatchers_Empty(t *testing.T) {
	_, _, h := newTestServer(t)
	rec := doRequest(t, h, http.MethodGet, "/v1/watchers", nil)
	var body struct {
		Watchers []map[string]any `json:"watchers"`
	}
	decodeBody(t, rec, &body)
	if body.Watchers == nil || len(body.Watchers) != 0 {
		t.Errorf("expected empty watchers list, got %#v", body.Watchers)
	}
}

func TestNewHTTPHandler_Auth(t *testing.T) {
	srv, _, _ := newTestServer(t)
	h := srv.NewHTTPHandler("secret")

	if rec := doRequest(t, h, http.MethodGet, "/v1/drivers", nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", rec.Code)
	}
	if rec := doRequest(t, h, http.MethodGet, "/v1/health", nil); rec.Code != http.StatusOK {
		t.Errorf("expected health to be exempt, got %d", rec.Code)
	}
}
