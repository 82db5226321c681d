package model

import "time"

// StatusReport is the operator view of a running pipeline.
type StatusReport struct {
	Status          ConnStatus `json:"status"`
	Seq             uint64     `json:"seq"`
	Generation      string     `json:"generation"`
	Drivers         int        `json:"drivers"`
	Offline         int        `json:"offline"`
	Subscribers     int        `json:"subscribers"`
	Watchers        int        `json:"watchers"`
	LastPublishedAt time.Time  `json:"lastPublishedAt,omitzero"`
	UptimeSecs      float64    `json:"uptimeSecs"`
	Closed          bool       `json:"closed,omitempty"`
}
