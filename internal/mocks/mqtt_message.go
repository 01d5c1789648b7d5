package mocks

import (
	"sync/atomic"

	MQTT "github.com/eclipse/paho.mqtt.golang"
)

var _ MQTT.Message = (*MockMessage)(nil)

// MockMessage is an inbound MQTT delivery as the command bridge receives it.
// It records whether the handler acknowledged it.
type MockMessage struct {
	TopicName string
	Body      []byte
	QoS       byte
	ID        uint16
	Redeliver bool

	acked atomic.Bool
}

// NewMockMessage returns a QoS 1 delivery of payload on topic.
func NewMockMessage(topic string, payload []byte) *MockMessage {
	return &MockMessage{TopicName: topic, Body: payload, QoS: 1, ID: 1}
}

func (m *MockMessage) Payload() []byte   { return m.Body }
func (m *MockMessage) Topic() string     { return m.TopicName }
func (m *MockMessage) Duplicate() bool   { return m.Redeliver }
func (m *MockMessage) Qos() byte         { return m.QoS }
func (m *MockMessage) Retained() bool    { return false }
func (m *MockMessage) MessageID() uint16 { return m.ID }
func (m *MockMessage) Ack()              { m.acked.Store(true) }

// Acked reports whether Ack was called.
func (m *MockMessage) Acked() bool {
	return m.acked.Load()
}
