package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHeading(t *testing.T) {
	tests := []struct {
		name                   string
		lat1, lng1, lat2, lng2 float64
		expected               float64
	}{
		{name: "North", lat1: 0, lng1: 0, lat2: 1, lng2: 0, expected: 0},
		{name: "East", lat1: 0, lng1: 0, lat2: 0, lng2: 1, expected: 90},
		{name: "South", lat1: 0, lng1: 0, lat2: -1, lng2: 0, expected: 180},
		{name: "West", lat1: 0, lng1: 0, lat2: 0, lng2: -1, expected: 270},
		{name: "Northeast", lat1: 12.9, lng1: 77.6, lat2: 12.91, lng2: 77.61, expected: 45},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deg, ok := Heading(tt.lat1, tt.lng1, tt.lat2, tt.lng2)
			assert.True(t, ok)
			assert.InDelta(t, tt.expected, deg, 1e-6)
			assert.GreaterOrEqual(t, deg, 0.0)
			assert.Less(t, deg, 360.0)
		})
	}
}

func TestHeading_StationaryIsUndefined(t *testing.T) {
	_, ok := Heading(12.9, 77.6, 12.9, 77.6)
	assert.False(t, ok)
}

func TestSpeedKMH(t *testing.T) {
	assert.Equal(t, 0.0, SpeedKMH(1, 1, 1, 1))

	// 0.01° north is 1110 m; over 5 s that is 222 m/s = 799.2 km/h.
	assert.InDelta(t, 799.2, SpeedKMH(12.90, 77.60, 12.91, 77.60), 1e-6)
}

func TestDisplacementMeters(t *testing.T) {
	assert.InDelta(t, 555.0, DisplacementMeters(0, 0, 0.003, 0.004), 1e-6)
}

func TestBearingToCompass(t *testing.T) {
	tests := []struct {
		bearing  float64
		expected string
	}{
		{0.0, "N"},
		{45.0, "NE"},
		{90.0, "E"},
		{135.0, "SE"},
		{180.0, "S"},
		{225.0, "SW"},
		{270.0, "W"},
		{315.0, "NW"},
		{359.0, "N"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, BearingToCompass(tt.bearing))
	}
}
