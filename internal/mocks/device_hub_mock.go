package mocks

import (
	"context"
	"encoding/json"
	"time"

	"github.com/benmeehan/device-hub/internal/models"
	"github.com/stretchr/testify/mock"
)

// MockDeviceHub is a mock implementation of the services.DeviceHub interface
type MockDeviceHub struct {
	mock.Mock
}

func (m *MockDeviceHub) Send(ctx context.Context, deviceID, action string, payload json.RawMessage, timeout time.Duration) (json.RawMessage, error) {
	args := m.Called(ctx, deviceID, action, payload, timeout)
	data, _ := args.Get(0).(json.RawMessage)
	return data, args.Error(1)
}

func (m *MockDeviceHub) CommandTimeout(requested time.Duration) time.Duration {
	args := m.Called(requested)
	return args.Get(0).(time.Duration)
}

func (m *MockDeviceHub) IsOnline(deviceID string) bool {
	args := m.Called(deviceID)
	return args.Bool(0)
}

func (m *MockDeviceHub) ListOnline() map[string]struct{} {
	args := m.Called()
	online, _ := args.Get(0).(map[string]struct{})
	return online
}

func (m *MockDeviceHub) Devices() []models.DeviceInfo {
	args := m.Called()
	devices, _ := args.Get(0).([]models.DeviceInfo)
	return devices
}

func (m *MockDeviceHub) Device(deviceID string) (models.DeviceInfo, bool) {
	args := m.Called(deviceID)
	return args.Get(0).(models.DeviceInfo), args.Bool(1)
}

func (m *MockDeviceHub) OnlineCount() int {
	args := m.Called()
	return args.Int(0)
}
