package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benmeehan/device-hub/internal/constants"
	"github.com/benmeehan/device-hub/internal/models"
	"github.com/benmeehan/device-hub/internal/utils"
	"github.com/benmeehan/device-hub/pkg/mqtt"
	MQTT "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const publishTimeout = 5 * time.Second

// CommandBridgeService lets the dialogue layer reach devices over MQTT. It
// receives command requests on <topic>/request, dispatches them through the
// hub and publishes each result to the request's reply_to topic or to
// <topic>/response/<request_id>.
type CommandBridgeService struct {
	// Configuration Fields
	topic   string
	qos     int
	workers int

	// Dependencies
	mqttClient mqtt.MQTTClient
	hub        DeviceHub
	logger     zerolog.Logger

	// Internal state management
	workerPool *utils.WorkerPool
	stopChan   chan struct{}
	wg         sync.WaitGroup
	mu         sync.Mutex

	// Context for cancellation
	ctx    context.Context
	cancel context.CancelFunc
}

// NewCommandBridgeService initializes a new CommandBridgeService with given parameters.
func NewCommandBridgeService(topic string, qos, workers int, mqttClient mqtt.MQTTClient, hub DeviceHub, logger zerolog.Logger) *CommandBridgeService {
	if topic == "" {
		topic = constants.DefaultBridgeTopic
	}
	if workers <= 0 {
		workers = constants.DefaultBridgeWorkers
	}

	logger = logger.With().Str("component", "bridge").Logger()
	ctx, cancel := context.WithCancel(context.Background())

	return &CommandBridgeService{
		topic:      topic,
		qos:        qos,
		workers:    workers,
		mqttClient: mqttClient,
		hub:        hub,
		logger:     logger,
		workerPool: utils.NewWorkerPool(workers, logger),
		stopChan:   make(chan struct{}),
		ctx:        ctx,
		cancel:     cancel,
	}
}

func (cs *CommandBridgeService) requestTopic() string {
	return cs.topic + "/request"
}

func (cs *CommandBridgeService) responseTopic(requestID string) string {
	return fmt.Sprintf("%s/response/%s", cs.topic, requestID)
}

// Start subscribes to the request topic.
func (cs *CommandBridgeService) Start() error {
	topic := cs.requestTopic()
	cs.logger.Info().Str("topic", topic).Int("workers", cs.workers).Msg("Starting CommandBridgeService and subscribing to MQTT topic")

	token := cs.mqttClient.Subscribe(topic, byte(cs.qos), cs.HandleRequest)
	token.Wait()
	if err := token.Error(); err != nil {
		cs.logger.Error().Err(err).Str("topic", topic).Msg("Failed to subscribe to MQTT topic")
		return err
	}

	cs.logger.Info().Str("topic", topic).Msg("Successfully subscribed to MQTT topic")
	return nil
}

// Stop stops accepting requests, cancels the ones in flight and unsubscribes.
func (cs *CommandBridgeService) Stop() error {
	cs.mu.Lock()
	select {
	case <-cs.stopChan:
		cs.mu.Unlock()
		return errors.New("command bridge service is not running")
	default:
		close(cs.stopChan)
	}
	cs.mu.Unlock()

	cs.cancel()
	cs.wg.Wait()
	cs.workerPool.Shutdown()

	topic := cs.requestTopic()
	token := cs.mqttClient.Unsubscribe(topic)
	token.Wait()
	if err := token.Error(); err != nil {
		cs.logger.Error().Err(err).Str("topic", topic).Msg("Failed to unsubscribe from MQTT topic")
		return err
	}

	cs.logger.Info().Msg("CommandBridgeService stopped successfully")
	return nil
}

// HandleRequest queues an incoming request on the worker pool.
func (cs *CommandBridgeService) HandleRequest(client MQTT.Client, msg MQTT.Message) {
	cs.mu.Lock()
	select {
	case <-cs.stopChan:
		cs.mu.Unlock()
		cs.logger.Warn().Msg("Received request but service is stopping, ignoring request")
		return
	default:
		cs.wg.Add(1)
		cs.mu.Unlock()
	}

	payload := msg.Payload()
	err := cs.workerPool.Submit(func() {
		defer cs.wg.Done()
		cs.processRequest(payload)
	})
	if err != nil {
		cs.wg.Done()
		cs.logger.Warn().Err(err).Msg("Dropping request")
	}
}

// processRequest dispatches one request and publishes its result.
func (cs *CommandBridgeService) processRequest(payload []byte) {
	var req models.CommandRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		cs.logger.Warn().Err(err).Msg("Dropping malformed command request")
		return
	}

	if req.RequestID == "" {
		if req.ReplyTo == "" {
			cs.logger.Warn().Str("device_id", req.DeviceID).Msg("Dropping command request without request_id or reply_to")
			return
		}
		req.RequestID = uuid.NewString()
	}

	cs.logger.Info().
		Str("request_id", req.RequestID).
		Str("device_id", req.DeviceID).
		Str("action", req.Action).
		Msg("Received command request")

	result, _ := ExecuteCommand(cs.ctx, cs.hub, req)

	topic := req.ReplyTo
	if topic == "" {
		topic = cs.responseTopic(req.RequestID)
	}
	// Results of requests cancelled by Stop are still reported.
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := cs.PublishResult(ctx, topic, result); err != nil {
		cs.logger.Error().Err(err).Str("request_id", req.RequestID).Msg("Failed to publish command result")
	}
}

// PublishResult sends a command result to topic.
func (cs *CommandBridgeService) PublishResult(ctx context.Context, topic string, result models.CommandResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to serialize command result: %w", err)
	}

	token := cs.mqttClient.Publish(topic, byte(cs.qos), false, data)
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			cs.logger.Error().Err(err).Str("topic", topic).Msg("Failed to publish command result")
			return err
		}
	case <-ctx.Done():
		cs.logger.Warn().Str("topic", topic).Msg("Publish operation cancelled")
		return ctx.Err()
	}

	cs.logger.Debug().Str("topic", topic).Str("status", result.Status).Msg("Command result published")
	return nil
}
