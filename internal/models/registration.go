package models

import (
	"encoding/json"
	"time"
)

// RegisterFrame is the first frame a device sends after the transport is accepted.
type RegisterFrame struct {
	Type string `json:"type"`

	// DeviceID is the key callers use to address the device.
	DeviceID string `json:"device_id"`

	// DeviceName is a human readable label reported by the device app.
	DeviceName string `json:"device_name,omitempty"`

	// AppVersion is the semantic version of the device app.
	AppVersion string `json:"app_version,omitempty"`

	// Metadata contains additional information about the device, in key-value pairs.
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

// RegisterAck confirms a registration to the device.
type RegisterAck struct {
	Type       string    `json:"type"`
	DeviceID   string    `json:"device_id"`
	SessionID  string    `json:"session_id"`
	ServerTime time.Time `json:"server_time"`
}
