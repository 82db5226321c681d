package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/fastfare/fleetlive/internal/model"
	"github.com/fastfare/fleetlive/internal/pipeline"
)

// batchResponse is returned by the batch and resync endpoints.
type batchResponse struct {
	Accepted  int  `json:"accepted"`
	Rejected  int  `json:"rejected"`
	Published bool `json:"published"`
}

// handlePostPosition handles POST /v1/positions (one live update).
func (s *FleetServer) handlePostPosition(w http.ResponseWriter, r *http.Request) {
	var ev model.RawPositionEvent
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&ev); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	d, err := s.pipeline.Apply(ev)
	switch {
	case errors.Is(err, model.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, "pipeline is shut down")
		return
	case err != nil:
		var re *model.RejectError
		if errors.As(err, &re) {
			writeError(w, http.StatusBadRequest, re.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, d)
}

// handlePostBatch handles POST /v1/positions/batch.
func (s *FleetServer) handlePostBatch(w http.ResponseWriter, r *http.Request) {
	s.handleBatch(w, r, s.pipeline.ApplyBatch)
}

// handlePostResync handles POST /v1/positions/resync. The registry is
// replaced by the posted list.
func (s *FleetServer) handlePostResync(w http.ResponseWriter, r *http.Request) {
	s.handleBatch(w, r, s.pipeline.Resync)
}

func (s *FleetServer) handleBatch(w http.ResponseWriter, r *http.Request, apply func([]model.RawPositionEvent) pipeline.BatchResult) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}
	evs, bad, err := model.DecodeBatch(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if s.pipeline.Closed() {
		writeError(w, http.StatusServiceUnavailable, "pipeline is shut down")
		return
	}

	res := apply(evs)
	if bad > 0 {
		s.logger.Warn("skipped undecodable positions", "path", r.URL.Path, "count", bad)
	}
	writeJSON(w, http.StatusAccepted, batchResponse{
		Accepted:  res.Accepted,
		Rejected:  res.Rejected + bad,
		Published: res.Published,
	})
}
