package hub

import (
	"context"
	"encoding/json"
	"time"

	"github.com/benmeehan/device-hub/internal/constants"
	"github.com/benmeehan/device-hub/internal/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var emptyPayload = json.RawMessage(`{}`)

// Dispatcher sends commands to devices and waits for their replies.
type Dispatcher struct {
	registry         *Registry
	pending          *PendingTable
	heartbeatTimeout time.Duration
	logger           zerolog.Logger
}

// NewDispatcher creates a Dispatcher. heartbeatTimeout is the liveness threshold
// a device must meet to be addressed at all.
func NewDispatcher(registry *Registry, pending *PendingTable, heartbeatTimeout time.Duration, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		registry:         registry,
		pending:          pending,
		heartbeatTimeout: heartbeatTimeout,
		logger:           logger,
	}
}

// Send issues action to deviceID and blocks until the device replies, the
// timeout elapses, the device disconnects or ctx is cancelled. Exactly one frame
// is written per call and nothing is retried.
//
// Failures are returned as *DispatchError wrapping ErrNotConnected, ErrTimeout,
// ErrDisconnected or ErrDeviceError; cancellation returns ctx.Err().
func (d *Dispatcher) Send(ctx context.Context, deviceID, action string, payload json.RawMessage, timeout time.Duration) (json.RawMessage, error) {
	if deviceID == "" {
		return nil, ErrMissingDeviceID
	}
	if action == "" {
		return nil, ErrMissingAction
	}
	if timeout <= 0 {
		return nil, ErrInvalidTimeout
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	session, ok := d.registry.online(deviceID, time.Now(), d.heartbeatTimeout)
	if !ok {
		d.logger.Debug().Str("device_id", deviceID).Str("action", action).Msg("Device not connected")
		return nil, newDispatchError(ErrNotConnected, deviceID, action, "")
	}

	if len(payload) == 0 {
		payload = emptyPayload
	}

	correlationID := uuid.NewString()
	pending, err := d.pending.Create(correlationID, deviceID, session.ID(), action, time.Now().Add(timeout))
	if err != nil {
		return nil, err
	}

	logger := d.logger.With().
		Str("device_id", deviceID).
		Str("action", action).
		Str("correlation_id", correlationID).
		Logger()

	frame := models.CommandFrame{
		Type:   constants.FrameCommand,
		ID:     correlationID,
		Action: action,
		Data:   payload,
	}
	if err := session.WriteJSON(frame); err != nil {
		if d.pending.Remove(correlationID) {
			logger.Warn().Err(err).Msg("Failed to write command to device")
			return nil, newDispatchError(ErrDisconnected, deviceID, action, correlationID)
		}
		return d.result(pending, <-pending.Done(), logger)
	}
	logger.Info().Msg("Command sent to device")

	// The write counts against the command's deadline.
	timer := time.NewTimer(time.Until(pending.Deadline))
	defer timer.Stop()

	select {
	case outcome := <-pending.Done():
		return d.result(pending, outcome, logger)

	case <-timer.C:
		if d.pending.Remove(correlationID) {
			logger.Warn().Dur("timeout", timeout).Msg("Command timed out")
			return nil, newDispatchError(ErrTimeout, deviceID, action, correlationID)
		}

	case <-session.Done():
		// The session loop expires pending commands on close, but a command
		// created while the close was in flight may have been missed.
		if d.pending.Remove(correlationID) {
			logger.Info().Msg("Device disconnected before replying")
			return nil, newDispatchError(ErrDisconnected, deviceID, action, correlationID)
		}

	case <-ctx.Done():
		if d.pending.Remove(correlationID) {
			logger.Info().Err(ctx.Err()).Msg("Command cancelled by caller")
			return nil, ctx.Err()
		}
	}

	// Lost the race: another path removed the entry and has delivered its outcome.
	return d.result(pending, <-pending.Done(), logger)
}

func (d *Dispatcher) result(p *PendingCommand, outcome Outcome, logger zerolog.Logger) (json.RawMessage, error) {
	if outcome.Err != nil {
		return nil, outcome.Err
	}

	resp := outcome.Response
	latency := time.Since(p.CreatedAt)
	if !resp.OK {
		logger.Info().Dur("latency", latency).Msg("Device reported command failure")
		dispatchErr := newDispatchError(ErrDeviceError, p.DeviceID, p.Action, p.CorrelationID)
		dispatchErr.Detail = resp.Error
		return nil, dispatchErr
	}

	logger.Info().Dur("latency", latency).Msg("Command completed")
	return resp.Data, nil
}
