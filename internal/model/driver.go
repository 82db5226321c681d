package model

import "time"

// DriverState is the registry's view of one driver: the last accepted
// position plus the fields derived from consecutive positions.
type DriverState struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Lat            float64   `json:"lat"`
	Lng            float64   `json:"lng"`
	HeadingDegrees float64   `json:"headingDegrees"`
	SpeedEstimate  float64   `json:"speedEstimate"` // km/h
	LastUpdated    time.Time `json:"lastUpdated"`
	IsLive         bool      `json:"isLive"`
	Phone          string    `json:"phone,omitempty"`
	Vehicle        string    `json:"vehicle,omitempty"`
	FuelLevel      *float64  `json:"fuelLevel,omitempty"`
	Offline        bool      `json:"offline,omitempty"`
}

// Clone returns a deep copy safe to hand to consumers.
func (d DriverState) Clone() DriverState {
	if d.FuelLevel != nil {
		f := *d.FuelLevel
		d.FuelLevel = &f
	}
	return d
}

// ConnStatus describes the freshness of the upstream event channel.
type ConnStatus string

const (
	StatusConnected    ConnStatus = "connected"
	StatusDegraded     ConnStatus = "degraded"
	StatusDisconnected ConnStatus = "disconnected"
)

// String returns the string representation of the status.
func (s ConnStatus) String() string {
	return string(s)
}

// IsValid checks whether the status is a known value.
func (s ConnStatus) IsValid() bool {
	switch s {
	case StatusConnected, StatusDegraded, StatusDisconnected:
		return true
	}
	return false
}
