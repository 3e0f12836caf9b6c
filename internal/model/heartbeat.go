package model

import "time"

// HeartbeatSample is one diagnostic snapshot reported by a display.
type HeartbeatSample struct {
	At      time.Time      `json:"at"`
	Status  string         `json:"status,omitempty"`
	Metrics map[string]any `json:"metrics,omitempty"`
}
