package hub

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/benmeehan/device-hub/internal/constants"
)

// Sentinel errors for the caller-visible failure kinds. A *DispatchError wraps
// exactly one of them, so callers can use errors.Is.
var (
	ErrNotConnected = errors.New("device not connected")
	ErrTimeout      = errors.New("command timed out")
	ErrDisconnected = errors.New("device disconnected")
	ErrDeviceError  = errors.New("device reported an error")
)

var (
	ErrInvalidTimeout      = errors.New("command timeout must be positive")
	ErrMissingDeviceID     = errors.New("device id is required")
	ErrMissingAction       = errors.New("action is required")
	ErrDuplicateCommandID  = errors.New("correlation id already pending")
	ErrSessionClosed       = errors.New("session closed")
	ErrRegistrationTimeout = errors.New("device did not register in time")
)

// DispatchError describes why a command did not produce a device result.
type DispatchError struct {
	Kind          error
	DeviceID      string
	Action        string
	CorrelationID string

	// Detail is the device supplied error payload, verbatim. Only set for ErrDeviceError.
	Detail json.RawMessage
}

func newDispatchError(kind error, deviceID, action, correlationID string) *DispatchError {
	return &DispatchError{Kind: kind, DeviceID: deviceID, Action: action, CorrelationID: correlationID}
}

func (e *DispatchError) Error() string {
	msg := fmt.Sprintf("%s: device=%s action=%s", e.Kind, e.DeviceID, e.Action)
	if detail := e.DetailString(); detail != "" {
		msg += ": " + detail
	}
	return msg
}

func (e *DispatchError) Unwrap() error {
	return e.Kind
}

// DetailString renders Detail for humans. A JSON string is unquoted, anything
// else is returned as raw JSON.
func (e *DispatchError) DetailString() string {
	if len(e.Detail) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(e.Detail, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(e.Detail))
}

// Code maps the error kind to the code reported on the REST and MQTT surfaces.
func (e *DispatchError) Code() string {
	switch {
	case errors.Is(e.Kind, ErrNotConnected):
		return constants.ErrorCodeNotConnected
	case errors.Is(e.Kind, ErrTimeout):
		return constants.ErrorCodeTimeout
	case errors.Is(e.Kind, ErrDisconnected):
		return constants.ErrorCodeDisconnected
	case errors.Is(e.Kind, ErrDeviceError):
		return constants.ErrorCodeDeviceError
	default:
		return constants.ErrorCodeInternal
	}
}

// ProtocolError is a malformed or unexpected inbound frame. It is logged by the
// session loop and never returned to callers.
type ProtocolError struct {
	DeviceID  string
	FrameType string
	Reason    string
	Err       error
}

func (e *ProtocolError) Error() string {
	msg := "protocol error"
	if e.DeviceID != "" {
		msg += " from " + e.DeviceID
	}
	if e.FrameType != "" {
		msg += " (" + e.FrameType + ")"
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}
