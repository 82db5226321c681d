package server

import (
	"net/http"
	"slices"
	"strconv"

	"github.com/fastfare/fleetlive/internal/model"
)

// handleListDrivers handles GET /v1/drivers.
// Query params: live=true drops drivers the reaper marked offline.
func (s *FleetServer) handleListDrivers(w http.ResponseWriter, r *http.Request) {
	snap := s.hub.Latest()

	liveOnly := false
	if v := r.URL.Query().Get("live"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid live parameter")
			return
		}
		liveOnly = b
	}
	if !liveOnly {
		writeJSON(w, http.StatusOK, snap)
		return
	}

	out := snap.Copy()
	out.Drivers = slices.DeleteFunc(out.Drivers, func(d model.DriverState) bool { return d.Offline })
	writeJSON(w, http.StatusOK, out)
}

// handleGetDriver handles GET /v1/drivers/{id}.
func (s *FleetServer) handleGetDriver(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	d, ok := s.hub.Latest().Driver(id)
	if !ok {
		writeError(w, http.StatusNotFound, "driver not found")
		return
	}
	writeJSON(w, http.StatusOK, d)
}
