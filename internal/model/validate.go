package model

import (
	"errors"
	"math"
	"strings"
)

// Reasons a position event is rejected.
var (
	ErrMissingDriverID      = errors.New("driverId is required")
	ErrMissingCoordinates   = errors.New("lat and lng are required")
	ErrNonFiniteCoordinates = errors.New("lat and lng must be finite")
	ErrOutOfOrder           = errors.New("event is older than the driver's last update")
	ErrClosed               = errors.New("pipeline is closed")
)

// RejectError reports why an event was not applied. Use errors.Is against
// the Err* sentinels to inspect the reason.
type RejectError struct {
	DriverID string
	Reason   error
}

func (e *RejectError) Error() string {
	if e.DriverID == "" {
		return "rejected position event: " + e.Reason.Error()
	}
	return "rejected position event for " + e.DriverID + ": " + e.Reason.Error()
}

func (e *RejectError) Unwrap() error { return e.Reason }

// ValidateEvent checks the required fields of a position event.
// It returns a *RejectError, or nil if the event is acceptable.
func ValidateEvent(ev RawPositionEvent) error {
	id := strings.TrimSpace(ev.DriverID)
	if id == "" {
		return &RejectError{Reason: ErrMissingDriverID}
	}
	if ev.Lat == nil || ev.Lng == nil {
		return &RejectError{DriverID: id, Reason: ErrMissingCoordinates}
	}
	if !isFinite(*ev.Lat) || !isFinite(*ev.Lng) {
		return &RejectError{DriverID: id, Reason: ErrNonFiniteCoordinates}
	}
	return nil
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
