package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// RawPositionEvent is a single driver position report as delivered by a
// transport. Only DriverID, Lat and Lng are required.
type RawPositionEvent struct {
	DriverID   string    `json:"driverId"`
	Lat        *float64  `json:"lat"`
	Lng        *float64  `json:"lng"`
	DriverName string    `json:"driverName,omitempty"`
	Timestamp  EventTime `json:"timestamp,omitzero"`
	Phone      string    `json:"phone,omitempty"`
	Vehicle    string    `json:"vehicle,omitempty"`
	FuelLevel  *float64  `json:"fuelLevel,omitempty"`
}

// NewPositionEvent is a convenience constructor for callers that always
// have coordinates.
func NewPositionEvent(driverID string, lat, lng float64) RawPositionEvent {
	return RawPositionEvent{DriverID: driverID, Lat: &lat, Lng: &lng}
}

// EventTime is an event timestamp that accepts epoch milliseconds (as a
// JSON number or numeric string) or an ISO-8601 string. The zero value
// means the event carried no timestamp.
type EventTime struct {
	time.Time
}

// At wraps t as an EventTime.
func At(t time.Time) EventTime { return EventTime{Time: t} }

// isoLayouts are tried in order when a timestamp is a non-numeric string.
var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *EventTime) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	if data[0] != '"' {
		ms, err := strconv.ParseFloat(string(data), 64)
		if err != nil {
			return fmt.Errorf("timestamp: %w", err)
		}
		// int64 conversion of an out-of-range float is implementation-defined.
		if math.IsNaN(ms) || ms >= 1<<63 || ms < -(1<<63) {
			return fmt.Errorf("timestamp: %s out of range for epoch milliseconds", data)
		}
		t.Time = time.UnixMilli(int64(ms))
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseEventTime(s)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}

// MarshalJSON encodes the timestamp as epoch milliseconds.
func (t EventTime) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return strconv.AppendInt(nil, t.UnixMilli(), 10), nil
}

// ParseEventTime parses a timestamp string. Numeric strings are epoch
// milliseconds; anything else must match one of the ISO layouts.
func ParseEventTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms), nil
	}
	for _, layout := range isoLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, fmt.Errorf("timestamp: unrecognized format %q", s)
}
