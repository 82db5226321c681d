package model

import (
	"strings"
	"time"
)

// Merge folds an accepted event into the prior state of its driver and
// returns the new state. Non-empty event fields win; anything the event
// does not carry is inherited from prior. Position, liveness and
// lastUpdated always come from the event. Derived fields (heading, speed)
// are copied from prior and left to the caller.
//
// prior may be nil on first sighting, in which case the name falls back
// to the driver ID. at is the event time (ingestion time when the event
// carried none); lastUpdated never moves backwards.
func Merge(prior *DriverState, ev RawPositionEvent, at time.Time) DriverState {
	id := strings.TrimSpace(ev.DriverID)

	var next DriverState
	if prior != nil {
		next = prior.Clone()
	}
	next.ID = id
	next.Lat = *ev.Lat
	next.Lng = *ev.Lng
	next.IsLive = true
	next.Offline = false

	if ev.DriverName != "" {
		next.Name = ev.DriverName
	} else if next.Name == "" {
		next.Name = id
	}
	if ev.Phone != "" {
		next.Phone = ev.Phone
	}
	if ev.Vehicle != "" {
		next.Vehicle = ev.Vehicle
	}
	if ev.FuelLevel != nil {
		f := *ev.FuelLevel
		next.FuelLevel = &f
	}

	if prior == nil || at.After(prior.LastUpdated) {
		next.LastUpdated = at
	}
	return next
}
