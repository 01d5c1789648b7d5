package services

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/benmeehan/device-hub/internal/constants"
	"github.com/benmeehan/device-hub/internal/models"
	ws "github.com/benmeehan/device-hub/pkg/websocket"
)

const maxCommandBody = 1 << 20

// handleDeviceSocket upgrades the request and runs the session loop until the
// device goes away. With a {device_id} path value the device is registered
// immediately; otherwise it must send a register frame.
func (g *GatewayService) handleDeviceSocket(w http.ResponseWriter, r *http.Request) {
	deviceID := r.PathValue("device_id")

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already written the HTTP error.
		g.logger.Warn().Err(err).Str("remote_addr", r.RemoteAddr).Msg("WebSocket upgrade failed")
		return
	}

	g.sessions.Add(1)
	defer g.sessions.Done()

	transport := ws.NewConn(conn, g.config.MaxMessageSize, g.config.WriteTimeout)
	g.logger.Info().Str("remote_addr", transport.RemoteAddr()).Str("device_id", deviceID).Msg("Device connected")

	ctx := g.sessionContext()
	if deviceID != "" {
		err = g.hub.ServeDevice(ctx, transport, deviceID)
	} else {
		err = g.hub.Serve(ctx, transport)
	}
	if err != nil {
		g.logger.Warn().Err(err).Str("remote_addr", transport.RemoteAddr()).Msg("Device session ended with error")
	}
}

func (g *GatewayService) handleHealth(w http.ResponseWriter, r *http.Request) {
	g.writeJSON(w, http.StatusOK, map[string]any{
		"status":            "healthy",
		"service":           constants.DefaultServiceName,
		"connected_devices": g.hub.OnlineCount(),
		"timestamp":         time.Now().UTC(),
	})
}

func (g *GatewayService) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices := g.hub.Devices()
	if devices == nil {
		devices = []models.DeviceInfo{}
	}
	g.writeJSON(w, http.StatusOK, map[string]any{
		"devices": devices,
		"count":   len(devices),
	})
}

func (g *GatewayService) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	deviceID := r.PathValue("device_id")
	info, ok := g.hub.Device(deviceID)
	if !ok {
		g.writeJSON(w, http.StatusNotFound, models.CommandResult{
			DeviceID: deviceID,
			Status:   constants.CommandStatusError,
			Code:     constants.ErrorCodeNotConnected,
			Message:  "device " + deviceID + " is not connected",
		})
		return
	}
	g.writeJSON(w, http.StatusOK, info)
}

// handleCommand forwards {action, data, timeout_ms} to the device and blocks
// until the result is known.
func (g *GatewayService) handleCommand(w http.ResponseWriter, r *http.Request) {
	deviceID := r.PathValue("device_id")

	var req models.CommandRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxCommandBody))
	if err := decoder.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		g.writeJSON(w, http.StatusBadRequest, models.CommandResult{
			DeviceID: deviceID,
			Status:   constants.CommandStatusError,
			Code:     constants.ErrorCodeBadRequest,
			Message:  "invalid request body: " + err.Error(),
		})
		return
	}
	req.DeviceID = deviceID

	result, status := ExecuteCommand(r.Context(), g.hub, req)
	if status != http.StatusOK {
		g.logger.Info().
			Str("device_id", deviceID).
			Str("action", req.Action).
			Str("code", result.Code).
			Int("status", status).
			Msg("Command failed")
	}
	g.writeJSON(w, status, result)
}

func (g *GatewayService) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		g.logger.Debug().Err(err).Msg("Failed to write response")
	}
}
