package constants

import "time"

const (
	DefaultCommandTimeout = 10 * time.Second // used when a caller does not supply one
	MaxCommandTimeout     = 2 * time.Minute
	DefaultBridgeWorkers  = 8
)

// Command result statuses reported to callers of the REST and MQTT surfaces.
const (
	// CommandStatusSuccess indicates that the device executed the action.
	CommandStatusSuccess = "success"
	// CommandStatusError indicates that the command failed for any reason.
	CommandStatusError = "error"
)

// Error codes attached to failed command results.
const (
	ErrorCodeNotConnected = "device_not_connected"
	ErrorCodeTimeout      = "timeout"
	ErrorCodeDisconnected = "device_disconnected"
	ErrorCodeDeviceError  = "device_error"
	ErrorCodeBadRequest   = "bad_request"
	ErrorCodeCancelled    = "cancelled"
	ErrorCodeInternal     = "internal_error"
)
