// Package geo derives travel heading and speed from consecutive driver
// positions using a flat-earth approximation, which is accurate enough for
// the short hops between live location ticks.
package geo

import (
	"math"
	"time"
)

// MetersPerDegree is the flat-earth conversion from degree distance to meters.
const MetersPerDegree = 111000.0

// SampleInterval is the assumed time between two position reports from the
// same driver. Speed is displacement divided by this interval, regardless
// of the timestamps the events carry.
const SampleInterval = 5 * time.Second

// Heading returns the bearing of travel from (lat1, lng1) to (lat2, lng2) in
// degrees within [0, 360). North is 0 and east is 90, i.e. the angle is
// atan2(Δlng, Δlat). ok is false when the two points are identical, in which
// case the bearing is undefined and callers keep their previous heading.
func Heading(lat1, lng1, lat2, lng2 float64) (deg float64, ok bool) {
	dLat := lat2 - lat1
	dLng := lng2 - lng1
	if dLat == 0 && dLng == 0 {
		return 0, false
	}
	deg = math.Mod(math.Atan2(dLng, dLat)*180/math.Pi+360, 360)
	return deg, true
}

// DisplacementMeters is the Euclidean degree distance between two points
// scaled by MetersPerDegree.
func DisplacementMeters(lat1, lng1, lat2, lng2 float64) float64 {
	return math.Hypot(lat2-lat1, lng2-lng1) * MetersPerDegree
}

// SpeedKMH converts the displacement between two consecutive reports into
// km/h over SampleInterval.
func SpeedKMH(lat1, lng1, lat2, lng2 float64) float64 {
	mps := DisplacementMeters(lat1, lng1, lat2, lng2) / SampleInterval.Seconds()
	return mps * 3.6
}

// BearingToCompass converts a heading in degrees to an 8-point compass
// direction, used next to the numeric heading in CLI output.
func BearingToCompass(bearing float64) string {
	directions := []string{"N", "NE", "E", "SE", "S", "SW", "W", "NW"}
	index := int((math.Mod(bearing, 360)+22.5)/45.0) % 8
	return directions[index]
}
