package models

import (
	"encoding/json"
	"time"

	"github.com/benmeehan/device-hub/internal/constants"
)

// DeviceMetadata is what the hub knows about a device beyond its liveness.
type DeviceMetadata struct {
	DeviceName     string          `json:"device_name,omitempty"`
	AppVersion     string          `json:"app_version,omitempty"`
	Outdated       bool            `json:"outdated,omitempty"`
	Battery        *float64        `json:"battery,omitempty"`
	SignalStrength *float64        `json:"signal_strength,omitempty"`
	Extra          json.RawMessage `json:"extra,omitempty"`
}

// DeviceInfo is a point-in-time snapshot of a device session.
type DeviceInfo struct {
	DeviceID      string                  `json:"device_id"`
	SessionID     string                  `json:"session_id"`
	Status        constants.SessionStatus `json:"status"`
	Online        bool                    `json:"online"`
	RemoteAddr    string                  `json:"remote_addr,omitempty"`
	ConnectedAt   time.Time               `json:"connected_at"`
	LastHeartbeat time.Time               `json:"last_heartbeat"`
	Metadata      DeviceMetadata          `json:"metadata"`
}

// Presence is published periodically with the set of online devices.
type Presence struct {
	Timestamp time.Time `json:"timestamp"`
	Devices   []string  `json:"devices"`
	Count     int       `json:"count"`
}
