package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/benmeehan/device-hub/internal/constants"
	"github.com/benmeehan/device-hub/internal/models"
	"github.com/benmeehan/device-hub/internal/utils"
	"github.com/benmeehan/device-hub/pkg/mqtt"
	"github.com/rs/zerolog"
)

// PresenceService periodically sweeps the registry for stale sessions and
// publishes the set of online devices. Without an MQTT client it only sweeps.
type PresenceService struct {
	PubTopic   string
	Interval   time.Duration
	QOS        int
	MqttClient mqtt.MQTTClient
	Hub        DeviceHub
	Logger     zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPresenceService initializes a new PresenceService. mqttClient may be nil.
func NewPresenceService(pubTopic string, interval time.Duration, qos int, mqttClient mqtt.MQTTClient,
	hub DeviceHub, logger zerolog.Logger) *PresenceService {

	if interval <= 0 {
		interval = constants.DefaultPresenceEvery
	}

	return &PresenceService{
		PubTopic:   pubTopic,
		Interval:   interval,
		QOS:        qos,
		MqttClient: mqttClient,
		Hub:        hub,
		Logger:     logger.With().Str("component", "presence").Logger(),
	}
}

// Start launches the presence loop in a separate goroutine.
func (p *PresenceService) Start() error {
	if p.ctx != nil {
		p.Logger.Warn().Msg("PresenceService is already running")
		return errors.New("presence service is already running")
	}

	p.ctx, p.cancel = context.WithCancel(context.Background())

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.runPresenceLoop()
	}()

	p.Logger.Info().Str("topic", p.PubTopic).Dur("interval", p.Interval).Msg("PresenceService started successfully")
	return nil
}

// Stop gracefully stops the presence service.
func (p *PresenceService) Stop() error {
	if p.ctx == nil {
		p.Logger.Warn().Msg("PresenceService is not running")
		return errors.New("presence service is not running")
	}

	p.cancel()
	p.wg.Wait()

	p.ctx = nil
	p.cancel = nil

	p.Logger.Info().Msg("PresenceService stopped successfully")
	return nil
}

// runPresenceLoop sweeps and publishes at the specified interval.
func (p *PresenceService) runPresenceLoop() {
	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.sweep()

		case <-p.ctx.Done():
			p.Logger.Info().Msg("PresenceService stopping gracefully")
			return
		}
	}
}

// sweep marks expired sessions stale and publishes who is still online.
func (p *PresenceService) sweep() {
	online := utils.SortedKeys(p.Hub.ListOnline())
	p.Logger.Debug().Int("online", len(online)).Msg("Presence sweep finished")

	if p.MqttClient == nil || p.PubTopic == "" {
		return
	}

	payload, err := json.Marshal(models.Presence{
		Timestamp: time.Now().UTC(),
		Devices:   online,
		Count:     len(online),
	})
	if err != nil {
		p.Logger.Error().Err(err).Msg("Failed to serialize presence message")
		return
	}

	token := p.MqttClient.Publish(p.PubTopic, byte(p.QOS), true, payload)
	token.Wait()

	if err := token.Error(); err != nil {
		p.Logger.Error().Err(err).Msg("Failed to publish presence message")
	} else {
		p.Logger.Debug().Msg("Presence published successfully")
	}
}
