package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/benmeehan/device-hub/internal/constants"
	"github.com/benmeehan/device-hub/internal/models"
	"github.com/rs/zerolog"
)

// loopState is the position of a session loop in its state machine.
type loopState int

const (
	stateConnecting loopState = iota
	stateRegistered
	stateActive
	stateClosed
)

func (s loopState) String() string {
	switch s {
	case stateConnecting:
		return "connecting"
	case stateRegistered:
		return "registered"
	case stateActive:
		return "active"
	default:
		return "closed"
	}
}

// Serve runs the session loop for a freshly accepted transport. The device must
// declare its identity with a register frame. Serve owns the transport, returns
// once it is closed, and always leaves the registry and pending table clean.
func (h *Hub) Serve(ctx context.Context, transport Transport) error {
	return h.serve(ctx, transport, "")
}

// ServeDevice is Serve for transports whose device id is already known, for
// example from the connection URL. The session is registered immediately.
func (h *Hub) ServeDevice(ctx context.Context, transport Transport, deviceID string) error {
	if deviceID == "" {
		_ = transport.Close()
		return ErrMissingDeviceID
	}
	return h.serve(ctx, transport, deviceID)
}

func (h *Hub) serve(ctx context.Context, transport Transport, deviceID string) (err error) {
	h.loops.Add(1)
	defer h.loops.Done()

	logger := h.logger.With().Str("remote_addr", transport.RemoteAddr()).Logger()
	state := stateConnecting

	stop := context.AfterFunc(ctx, func() {
		_ = transport.Close()
	})
	defer stop()

	var session *Session
	defer func() {
		state = stateClosed
		if session != nil {
			h.release(session)
		} else {
			_ = transport.Close()
		}
		logger.Debug().Str("state", state.String()).Err(err).Msg("Session loop finished")
	}()

	frame := models.RegisterFrame{Type: constants.FrameRegister, DeviceID: deviceID}
	if deviceID == "" {
		frame, err = h.awaitRegistration(transport, logger)
		if err != nil {
			return closeReason(ctx, err)
		}
	}

	state = stateRegistered
	session = h.register(transport, frame, logger)
	logger = logger.With().Str("device_id", session.DeviceID()).Str("session_id", session.ID()).Logger()

	state = stateActive
	for {
		if h.cfg.IdleTimeout > 0 {
			_ = transport.SetReadDeadline(time.Now().Add(h.cfg.IdleTimeout))
		}
		data, readErr := transport.ReadMessage()
		if readErr != nil {
			select {
			case <-session.Done():
				logger.Info().Msg("Session closed by hub")
				return nil
			default:
			}
			err = closeReason(ctx, readErr)
			if err != nil {
				logger.Warn().Err(err).Msg("Device connection lost")
			} else {
				logger.Info().Msg("Device disconnected")
			}
			return err
		}
		h.handleFrame(session, data, logger)
	}
}

// closeReason turns the error that ended a loop into its return value: normal
// closes and hub shutdown are not errors.
func closeReason(ctx context.Context, err error) error {
	if errors.Is(err, io.EOF) || ctx.Err() != nil {
		return nil
	}
	return err
}

// awaitRegistration reads frames until one declares the device identity.
func (h *Hub) awaitRegistration(transport Transport, logger zerolog.Logger) (models.RegisterFrame, error) {
	deadline := time.Now().Add(h.cfg.RegisterTimeout)
	if err := transport.SetReadDeadline(deadline); err != nil {
		return models.RegisterFrame{}, fmt.Errorf("failed to set registration deadline: %w", err)
	}

	for {
		data, err := transport.ReadMessage()
		if err != nil {
			if time.Now().After(deadline) {
				logger.Warn().Dur("timeout", h.cfg.RegisterTimeout).Msg("Connection closed before registration")
				return models.RegisterFrame{}, ErrRegistrationTimeout
			}
			return models.RegisterFrame{}, err
		}

		var frame models.RegisterFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			h.logProtocolError(logger, &ProtocolError{Reason: "malformed frame", Err: err})
			continue
		}
		if frame.Type != constants.FrameRegister {
			h.logProtocolError(logger, &ProtocolError{FrameType: frame.Type, Reason: "frame received before registration"})
			continue
		}
		if frame.DeviceID == "" {
			h.logProtocolError(logger, &ProtocolError{FrameType: frame.Type, Reason: "register frame without device_id"})
			continue
		}
		return frame, nil
	}
}

func (h *Hub) register(transport Transport, frame models.RegisterFrame, logger zerolog.Logger) *Session {
	if h.cfg.IdleTimeout <= 0 {
		_ = transport.SetReadDeadline(time.Time{})
	}

	session, superseded := h.registry.Register(frame.DeviceID, transport, h.metadataFor(frame, logger))
	if superseded != nil {
		h.release(superseded)
	}

	ack := models.RegisterAck{
		Type:       constants.FrameRegisterAck,
		DeviceID:   session.DeviceID(),
		SessionID:  session.ID(),
		ServerTime: time.Now().UTC(),
	}
	if err := session.WriteJSON(ack); err != nil {
		logger.Debug().Err(err).Msg("Failed to acknowledge registration")
	}
	return session
}

// handleFrame routes one inbound frame. Nothing a device sends can end the loop.
func (h *Hub) handleFrame(s *Session, data []byte, logger zerolog.Logger) {
	var envelope models.Envelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		h.logProtocolError(logger, &ProtocolError{DeviceID: s.DeviceID(), Reason: "malformed frame", Err: err})
		return
	}

	switch envelope.Type {
	case constants.FrameHeartbeat:
		var heartbeat models.Heartbeat
		if err := json.Unmarshal(data, &heartbeat); err != nil {
			h.logProtocolError(logger, &ProtocolError{DeviceID: s.DeviceID(), FrameType: envelope.Type, Reason: "malformed heartbeat", Err: err})
			return
		}
		s.touch(time.Now())
		ack := models.HeartbeatAck{
			Type:       constants.FrameHeartbeatAck,
			Status:     "ok",
			Timestamp:  heartbeat.Timestamp,
			ServerTime: time.Now().UTC(),
		}
		if err := s.WriteJSON(ack); err != nil {
			logger.Debug().Err(err).Msg("Failed to acknowledge heartbeat")
		}
		logger.Debug().Msg("Heartbeat received")

	case constants.FrameResponse:
		var resp models.ResponseFrame
		if err := json.Unmarshal(data, &resp); err != nil {
			h.logProtocolError(logger, &ProtocolError{DeviceID: s.DeviceID(), FrameType: envelope.Type, Reason: "malformed response", Err: err})
			return
		}
		if resp.ID == "" {
			h.logProtocolError(logger, &ProtocolError{DeviceID: s.DeviceID(), FrameType: envelope.Type, Reason: "response without id"})
			return
		}
		if !h.pending.ResolveFromSession(s.ID(), resp.ID, Outcome{Response: &resp}) {
			logger.Debug().Str("correlation_id", resp.ID).Msg("Ignoring response for unknown or completed command")
			return
		}
		logger.Debug().Str("correlation_id", resp.ID).Bool("ok", resp.OK).Msg("Response received")

	case constants.FrameDeviceStatus:
		var status models.DeviceStatus
		if err := json.Unmarshal(data, &status); err != nil {
			h.logProtocolError(logger, &ProtocolError{DeviceID: s.DeviceID(), FrameType: envelope.Type, Reason: "malformed device status", Err: err})
			return
		}
		s.updateStatus(status)
		logger.Debug().Msg("Device status updated")

	case constants.FrameRegister:
		var frame models.RegisterFrame
		if err := json.Unmarshal(data, &frame); err != nil || frame.DeviceID != s.DeviceID() {
			h.logProtocolError(logger, &ProtocolError{DeviceID: s.DeviceID(), FrameType: envelope.Type, Reason: "register frame for another device id", Err: err})
			return
		}
		s.touch(time.Now())
		logger.Debug().Msg("Ignoring repeated register frame")

	default:
		h.logProtocolError(logger, &ProtocolError{DeviceID: s.DeviceID(), FrameType: envelope.Type, Reason: "unknown frame type"})
	}
}

func (h *Hub) logProtocolError(logger zerolog.Logger, err *ProtocolError) {
	logger.Warn().Err(err).Msg("Ignoring frame")
}
