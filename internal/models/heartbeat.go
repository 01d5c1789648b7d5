package models

import (
	"encoding/json"
	"time"
)

// Heartbeat is the periodic liveness frame sent by a device.
type Heartbeat struct {
	Type      string          `json:"type"`
	Timestamp json.RawMessage `json:"timestamp,omitempty"`
}

// HeartbeatAck answers a heartbeat. Timestamp echoes the device value untouched.
type HeartbeatAck struct {
	Type       string          `json:"type"`
	Status     string          `json:"status"`
	Timestamp  json.RawMessage `json:"timestamp,omitempty"`
	ServerTime time.Time       `json:"server_time"`
}

// DeviceStatus carries battery and radio readings pushed by the device.
type DeviceStatus struct {
	Type           string   `json:"type"`
	Battery        *float64 `json:"battery,omitempty"`
	SignalStrength *float64 `json:"signal_strength,omitempty"`
}
