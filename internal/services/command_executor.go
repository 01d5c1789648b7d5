package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/benmeehan/device-hub/internal/constants"
	"github.com/benmeehan/device-hub/internal/hub"
	"github.com/benmeehan/device-hub/internal/models"
)

// ExecuteCommand runs req against the hub and builds the caller-facing result
// together with the matching HTTP status. It never returns an error: every
// failure is described by the result.
func ExecuteCommand(ctx context.Context, h DeviceHub, req models.CommandRequest) (models.CommandResult, int) {
	result := models.CommandResult{
		RequestID: req.RequestID,
		DeviceID:  req.DeviceID,
		Action:    req.Action,
	}

	switch {
	case req.DeviceID == "":
		return failed(result, constants.ErrorCodeBadRequest, "device_id is required"), http.StatusBadRequest
	case req.Action == "":
		return failed(result, constants.ErrorCodeBadRequest, "action is required"), http.StatusBadRequest
	case req.TimeoutMs < 0:
		return failed(result, constants.ErrorCodeBadRequest, "timeout_ms must not be negative"), http.StatusBadRequest
	}

	timeout := h.CommandTimeout(time.Duration(req.TimeoutMs) * time.Millisecond)
	data, err := h.Send(ctx, req.DeviceID, req.Action, req.Data, timeout)
	if err == nil {
		result.Status = constants.CommandStatusSuccess
		result.Data = data
		return result, http.StatusOK
	}

	var dispatchErr *hub.DispatchError
	switch {
	case errors.As(err, &dispatchErr):
		result = failed(result, dispatchErr.Code(), dispatchMessage(dispatchErr, timeout))
		result.Detail = dispatchErr.Detail
		return result, dispatchStatus(dispatchErr)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return failed(result, constants.ErrorCodeCancelled, "request cancelled"), http.StatusServiceUnavailable
	case errors.Is(err, hub.ErrMissingDeviceID), errors.Is(err, hub.ErrMissingAction), errors.Is(err, hub.ErrInvalidTimeout):
		return failed(result, constants.ErrorCodeBadRequest, err.Error()), http.StatusBadRequest
	default:
		return failed(result, constants.ErrorCodeInternal, err.Error()), http.StatusInternalServerError
	}
}

func failed(result models.CommandResult, code, message string) models.CommandResult {
	result.Status = constants.CommandStatusError
	result.Code = code
	result.Message = message
	return result
}

func dispatchMessage(err *hub.DispatchError, timeout time.Duration) string {
	switch {
	case errors.Is(err, hub.ErrNotConnected):
		return fmt.Sprintf("device %s is not connected", err.DeviceID)
	case errors.Is(err, hub.ErrTimeout):
		return fmt.Sprintf("device did not respond within %s", timeout)
	case errors.Is(err, hub.ErrDisconnected):
		return "device disconnected before responding"
	default:
		if detail := err.DetailString(); detail != "" {
			return detail
		}
		return "device reported an error"
	}
}

func dispatchStatus(err *hub.DispatchError) int {
	switch {
	case errors.Is(err, hub.ErrNotConnected):
		return http.StatusNotFound
	case errors.Is(err, hub.ErrTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}
