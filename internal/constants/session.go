package constants

import "time"

const (
	// DefaultHeartbeatTimeout is the staleness threshold used by the liveness policy.
	// Devices send a heartbeat every 30 seconds.
	DefaultHeartbeatTimeout = 30 * time.Second

	// DefaultRegisterTimeout bounds how long an accepted connection may stay silent
	// before declaring its identity.
	DefaultRegisterTimeout = 10 * time.Second

	// DefaultIdleTimeout closes a connection that sends nothing at all. Must exceed
	// the device heartbeat period.
	DefaultIdleTimeout = 35 * time.Second

	// DefaultWriteTimeout is the time allowed to write a single frame.
	DefaultWriteTimeout = 10 * time.Second

	// DefaultMaxMessageSize is the largest inbound frame accepted from a device.
	DefaultMaxMessageSize = 1024 * 1024 // 1MB
)

// SessionStatus describes where a device session is in its lifecycle.
type SessionStatus string

const (
	SessionConnecting SessionStatus = "connecting"
	SessionOnline     SessionStatus = "online"
	SessionStale      SessionStatus = "stale"
	SessionClosed     SessionStatus = "closed"
)

// Frame types exchanged with devices.
const (
	FrameRegister     = "register"
	FrameHeartbeat    = "heartbeat"
	FrameResponse     = "response"
	FrameDeviceStatus = "device_status"

	FrameRegisterAck  = "register_ack"
	FrameCommand      = "command"
	FrameHeartbeatAck = "heartbeat_ack"
)
