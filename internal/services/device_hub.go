package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/benmeehan/device-hub/internal/hub"
	"github.com/benmeehan/device-hub/internal/models"
)

// DeviceHub is the part of the hub the services drive.
type DeviceHub interface {
	Send(ctx context.Context, deviceID, action string, payload json.RawMessage, timeout time.Duration) (json.RawMessage, error)
	CommandTimeout(requested time.Duration) time.Duration
	IsOnline(deviceID string) bool
	ListOnline() map[string]struct{}
	Devices() []models.DeviceInfo
	Device(deviceID string) (models.DeviceInfo, bool)
	OnlineCount() int
}

// DeviceGateway is a DeviceHub that also accepts device connections.
type DeviceGateway interface {
	DeviceHub
	Serve(ctx context.Context, transport hub.Transport) error
	ServeDevice(ctx context.Context, transport hub.Transport, deviceID string) error
}

var _ DeviceGateway = (*hub.Hub)(nil)
