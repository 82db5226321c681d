package feed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jamespfennell/gtfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, status int, body string, check func(*http.Request)) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			check(r)
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv.URL
}

func TestHTTPFetcher_Array(t *testing.T) {
	url := serve(t, http.StatusOK,
		`[{"driverId":"D1","lat":12.9,"lng":77.6,"driverName":"Asha"},{"driverId":"D2","lat":1,"lng":2}]`, nil)

	evs, err := NewHTTPFetcher(url, Options{}).Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, evs, 2)
	assert.Equal(t, "D1", evs[0].DriverID)
	assert.Equal(t, "Asha", evs[0].DriverName)
	assert.InDelta(t, 12.9, *evs[0].Lat, 1e-9)
}

func TestHTTPFetcher_WrappedAndBadElements(t *testing.T) {
	url := serve(t, http.StatusOK,
		`{"drivers":[{"driverId":"D1","lat":1,"lng":2},{"driverId":"D2","lat":"north"}]}`, nil)

	evs, err := NewHTTPFetcher(url, Options{}).Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.Equal(t, "D1", evs[0].DriverID)
}

func TestHTTPFetcher_SendsHeaders(t *testing.T) {
	var gotKey, gotAccept string
	url := serve(t, http.StatusOK, `[]`, func(r *http.Request) {
		gotKey = r.Header.Get("X-Api-Key")
		gotAccept = r.Header.Get("Accept")
	})

	_, err := NewHTTPFetcher(url, Options{Headers: AuthHeaders("X-Api-Key", "secret")}).Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "secret", gotKey)
	assert.Equal(t, "application/json", gotAccept)
}

func TestHTTPFetcher_StatusError(t *testing.T) {
	url := serve(t, http.StatusServiceUnavailable, `down`, nil)

	_, err := NewHTTPFetcher(url, Options{}).Fetch(context.Background())
	var se *StatusError
	require.True(t, errors.As(err, &se), "expected *StatusError, got %v", err)
	assert.Equal(t, http.StatusServiceUnavailable, se.StatusCode)
}

func TestHTTPFetcher_BadBody(t *testing.T) {
	url := serve(t, http.StatusOK, `"not a list"`, nil)
	_, err := NewHTTPFetcher(url, Options{}).Fetch(context.Background())
	assert.Error(t, err)
}

func TestHTTPFetcher_ContextCancelled(t *testing.T) {
	url := serve(t, http.StatusOK, `[]`, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewHTTPFetcher(url, Options{}).Fetch(ctx)
	assert.Error(t, err)
}

func TestAuthHeaders(t *testing.T) {
	assert.Nil(t, AuthHeaders("", "v"))
	assert.Nil(t, AuthHeaders("k", ""))
	assert.Equal(t, map[string]string{"k": "v"}, AuthHeaders("k", "v"))
}

func TestGTFSFetcher_StatusError(t *testing.T) {
	url := serve(t, http.StatusNotFound, ``, nil)
	_, err := NewGTFSFetcher(url, Options{}).Fetch(context.Background())
	var se *StatusError
	assert.True(t, errors.As(err, &se), "expected *StatusError, got %v", err)
}

func f32(v float32) *float32 { return &v }

func TestVehicleEvents(t *testing.T) {
	ts := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	vehicles := []gtfs.Vehicle{
		{
			ID:        &gtfs.VehicleID{ID: "bus-1", Label: "Route 5", LicensePlate: "KA01AB1234"},
			Position:  &gtfs.Position{Latitude: f32(12.9), Longitude: f32(77.6)},
			Timestamp: &ts,
		},
		{ID: &gtfs.VehicleID{ID: "bus-2"}},
		{Position: &gtfs.Position{Latitude: f32(1), Longitude: f32(2)}},
		{
			ID:       &gtfs.VehicleID{ID: "bus-3"},
			Position: &gtfs.Position{Latitude: f32(1)},
		},
		{
			ID:       &gtfs.VehicleID{ID: "bus-4"},
			Position: &gtfs.Position{Latitude: f32(-33.9), Longitude: f32(151.2)},
		},
	}

	evs, skipped := VehicleEvents(vehicles)
	assert.Equal(t, 3, skipped)
	require.Len(t, evs, 2)

	first := evs[0]
	assert.Equal(t, "bus-1", first.DriverID)
	assert.Equal(t, "Route 5", first.DriverName)
	assert.Equal(t, "KA01AB1234", first.Vehicle)
	assert.InDelta(t, 12.9, *first.Lat, 1e-5)
	assert.InDelta(t, 77.6, *first.Lng, 1e-5)
	assert.True(t, first.Timestamp.Equal(ts))

	assert.Equal(t, "bus-4", evs[1].DriverID)
	assert.True(t, evs[1].Timestamp.IsZero())
}
