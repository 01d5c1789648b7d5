package models

import "encoding/json"

// Envelope is decoded first to classify an inbound frame.
type Envelope struct {
	Type string `json:"type"`
}

// CommandFrame is written to a device to request an action.
type CommandFrame struct {
	Type   string          `json:"type"`
	ID     string          `json:"id"`     // Correlation id echoed back in the response.
	Action string          `json:"action"` // Opaque action name, interpreted by the device only.
	Data   json.RawMessage `json:"data"`
}

// ResponseFrame is a device reply to a CommandFrame.
type ResponseFrame struct {
	Type  string          `json:"type"`
	ID    string          `json:"id"`
	OK    bool            `json:"ok"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error json.RawMessage `json:"error,omitempty"`
}

// CommandRequest is what the dialogue layer submits over REST or MQTT.
type CommandRequest struct {
	RequestID string          `json:"request_id,omitempty"`
	DeviceID  string          `json:"device_id,omitempty"`
	Action    string          `json:"action"`
	Data      json.RawMessage `json:"data,omitempty"`
	TimeoutMs int64           `json:"timeout_ms,omitempty"`
	ReplyTo   string          `json:"reply_to,omitempty"`
}

// CommandResult is the outcome of a CommandRequest.
type CommandResult struct {
	RequestID string          `json:"request_id,omitempty"`
	DeviceID  string          `json:"device_id"`
	Action    string          `json:"action,omitempty"`
	Status    string          `json:"status"`
	Data      json.RawMessage `json:"data,omitempty"`
	Code      string          `json:"code,omitempty"`
	Message   string          `json:"message,omitempty"`
	Detail    json.RawMessage `json:"detail,omitempty"`
}
