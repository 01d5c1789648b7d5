package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benmeehan/device-hub/internal/constants"
	"github.com/benmeehan/device-hub/internal/metrics_collectors"
	"github.com/benmeehan/device-hub/internal/models"
	"github.com/benmeehan/device-hub/internal/utils"
	"github.com/benmeehan/device-hub/pkg/mqtt"
	"github.com/rs/zerolog"
)

const metricsPublishRetries = 3

// MetricsService handles hub and host telemetry collection and publishing over MQTT.
type MetricsService struct {
	pubTopic      string
	metricsConfig *models.MetricsConfig
	interval      time.Duration
	timeout       time.Duration
	qos           int
	mqttClient    mqtt.MQTTClient
	logger        zerolog.Logger
	registry      *metrics_collectors.MetricsRegistry
	workerPool    *utils.WorkerPool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewMetricsService initializes and returns a new instance of MetricsService.
func NewMetricsService(
	pubTopic string,
	interval, timeout time.Duration,
	qos int,
	metricsConfig *models.MetricsConfig,
	stats metrics_collectors.HubStats,
	mqttClient mqtt.MQTTClient,
	logger zerolog.Logger,
) *MetricsService {
	if interval <= 0 {
		interval = constants.DefaultMetricsEvery
	}
	if timeout <= 0 {
		timeout = constants.DefaultMetricsTimeout
	}
	logger = logger.With().Str("component", "metrics").Logger()

	service := &MetricsService{
		pubTopic:      pubTopic,
		metricsConfig: metricsConfig,
		interval:      interval,
		timeout:       timeout,
		qos:           qos,
		mqttClient:    mqttClient,
		logger:        logger,
		registry:      metrics_collectors.NewMetricsRegistry(),
	}

	// Register default metric collectors
	service.registerDefaultCollectors(stats)

	return service
}

// registerDefaultCollectors registers the hub process and hub state collectors.
func (m *MetricsService) registerDefaultCollectors(stats metrics_collectors.HubStats) {
	processCollectors, err := metrics_collectors.NewProcessCollectors()
	if err != nil {
		m.logger.Warn().Err(err).Msg("Process metrics unavailable")
	}
	for _, c := range processCollectors {
		m.registry.Register(c)
	}
	if stats != nil {
		for _, c := range metrics_collectors.NewHubCollectors(stats) {
			m.registry.Register(c)
		}
	}
}

// Start initiates periodic metrics collection and publishing.
func (m *MetricsService) Start() error {
	if m.ctx != nil {
		m.logger.Warn().Msg("MetricsService is already running")
		return errors.New("metrics service is already running")
	}

	m.logger.Info().Msg("Starting MetricsService...")

	if err := m.validateMetricsConfig(m.metricsConfig); err != nil {
		m.logger.Error().Err(err).Msg("Invalid metrics configuration")
		return fmt.Errorf("invalid metrics config: %w", err)
	}

	// Start the metrics collection loop
	m.workerPool = utils.NewWorkerPool(constants.DefaultMetricsWorkers, m.logger)
	m.ctx, m.cancel = context.WithCancel(context.Background())
	m.wg.Add(1)
	go m.runMetricsCollectionLoop()

	m.logger.Info().Str("topic", m.pubTopic).Strs("collectors", m.registry.Names()).Msg("MetricsService started successfully")
	return nil
}

// validateMetricsConfig checks if the provided configuration is valid.
func (m *MetricsService) validateMetricsConfig(config *models.MetricsConfig) error {
	if config == nil {
		return errors.New("metrics configuration is missing")
	}
	if !config.MonitorCPU && !config.MonitorMemory && !config.MonitorGoroutines && !config.MonitorHub {
		return errors.New("no metrics enabled in configuration")
	}
	return nil
}

// runMetricsCollectionLoop runs the main metrics collection and publishing loop.
func (m *MetricsService) runMetricsCollectionLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			metrics := m.collectMetrics(m.ctx)
			if err := m.publishMetrics(m.ctx, metrics); err != nil {
				m.logger.Error().Err(err).Msg("Failed to publish metrics")
			}
		case <-m.ctx.Done():
			m.logger.Info().Msg("Stopping metrics collection")
			return
		}
	}
}

// collectMetrics gathers the enabled metrics concurrently.
func (m *MetricsService) collectMetrics(parent context.Context) *models.HubMetrics {
	metrics := &models.HubMetrics{
		Timestamp: time.Now().UTC(),
		Service:   constants.DefaultServiceName,
		Metrics:   make(map[string]models.Metric),
	}

	ctx, cancel := context.WithTimeout(parent, m.timeout)
	defer cancel()

	var wg sync.WaitGroup
	metricsMutex := &sync.Mutex{}

	for name, collector := range m.registry.GetCollectors() {
		if !collector.IsEnabled(m.metricsConfig) {
			m.logger.Debug().Str("metric", name).Msg("Metric disabled in configuration")
			continue
		}
		wg.Add(1)
		err := m.workerPool.Submit(func() {
			defer wg.Done()
			value, err := collector.Collect(ctx)
			if err != nil {
				m.logger.Warn().Err(err).Str("metric", name).Msg("Failed to collect metric")
				return
			}

			metricsMutex.Lock()
			defer metricsMutex.Unlock()
			metrics.Metrics[name] = models.Metric{
				Value: value,
				Unit:  collector.Unit(),
			}
		})
		if err != nil {
			wg.Done()
		}
	}

	wg.Wait()
	m.logger.Debug().Int("metrics", len(metrics.Metrics)).Msg("Metrics collected successfully")
	return metrics
}

// publishMetrics sends the collected metrics via MQTT, retrying with a growing delay.
func (m *MetricsService) publishMetrics(ctx context.Context, metrics *models.HubMetrics) error {
	metricsData, err := json.Marshal(metrics)
	if err != nil {
		return fmt.Errorf("failed to serialize metrics: %w", err)
	}

	var lastErr error
	for i := 0; i < metricsPublishRetries; i++ {
		token := m.mqttClient.Publish(m.pubTopic, byte(m.qos), false, metricsData)
		if token.Wait() && token.Error() == nil {
			m.logger.Debug().Msg("Metrics published successfully")
			return nil
		}
		lastErr = token.Error()
		m.logger.Warn().Err(lastErr).Int("retry", i+1).Msg("Retrying to publish metrics...")

		select {
		case <-time.After(time.Duration(i+1) * time.Second):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return fmt.Errorf("failed to publish metrics after %d retries: %w", metricsPublishRetries, lastErr)
}

// Stop gracefully stops the metrics service.
func (m *MetricsService) Stop() error {
	if m.ctx == nil {
		m.logger.Warn().Msg("MetricsService is not running")
		return errors.New("metrics service is not running")
	}

	m.logger.Info().Msg("Stopping MetricsService...")
	m.cancel()
	m.wg.Wait()
	m.workerPool.Shutdown()
	m.ctx = nil
	m.cancel = nil
	m.logger.Info().Msg("MetricsService stopped successfully")
	return nil
}
