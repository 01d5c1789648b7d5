package service_registry

import (
	"errors"
	"fmt"

	"github.com/benmeehan/device-hub/internal/hub"
	"github.com/benmeehan/device-hub/internal/services"
	"github.com/benmeehan/device-hub/internal/utils"
	"github.com/benmeehan/device-hub/pkg/mqtt"
	"github.com/rs/zerolog"
)

// ServiceRegistry manages the lifecycle of various services in the system.
type ServiceRegistry struct {
	services    map[string]Service // Stores registered services
	serviceKeys []string           // Maintains order of service registration
	started     []string
	mqttClient  mqtt.MQTTClient // nil when MQTT is disabled
	Logger      zerolog.Logger
}

// NewServiceRegistry initializes a new service registry with dependencies.
func NewServiceRegistry(mqttClient mqtt.MQTTClient, logger zerolog.Logger) *ServiceRegistry {
	return &ServiceRegistry{
		services:   make(map[string]Service),
		mqttClient: mqttClient,
		Logger:     logger,
	}
}

// RegisterService adds a new service to the registry.
func (sr *ServiceRegistry) RegisterService(name string, svc Service) {
	if _, exists := sr.services[name]; exists {
		sr.Logger.Warn().Msgf("Service %s is already registered", name)
		return
	}
	sr.services[name] = svc
	sr.serviceKeys = append(sr.serviceKeys, name)
	sr.Logger.Info().Msgf("Registered service: %s", name)
}

// Services returns the registered service names in start order.
func (sr *ServiceRegistry) Services() []string {
	return append([]string(nil), sr.serviceKeys...)
}

// Get returns a registered service by name.
func (sr *ServiceRegistry) Get(name string) (Service, bool) {
	svc, ok := sr.services[name]
	return svc, ok
}

// StartServices initiates all registered services in order.
// If a service fails to start, it stops already started services.
func (sr *ServiceRegistry) StartServices() error {
	startedServices := []string{}

	for _, name := range sr.serviceKeys {
		svc := sr.services[name]
		sr.Logger.Info().Msgf("Starting service: %s", name)
		if err := svc.Start(); err != nil {
			sr.Logger.Error().Err(err).Msgf("Failed to start service: %s", name)

			// Stop already started services before returning
			sr.Logger.Warn().Msg("Stopping already started services due to startup failure...")
			for i := len(startedServices) - 1; i >= 0; i-- {
				_ = sr.services[startedServices[i]].Stop()
			}
			return fmt.Errorf("failed to start %s: %w", name, err)
		}
		startedServices = append(startedServices, name)
	}

	sr.started = startedServices
	return nil
}

// StopServices stops the started services in reverse order.
func (sr *ServiceRegistry) StopServices() error {
	var stopErrors []error
	for i := len(sr.started) - 1; i >= 0; i-- {
		name := sr.started[i]
		if err := sr.services[name].Stop(); err != nil {
			stopErrors = append(stopErrors, fmt.Errorf("failed to stop %s: %w", name, err))
		}
	}
	sr.started = nil

	if len(stopErrors) > 0 {
		for _, e := range stopErrors {
			sr.Logger.Error().Err(e).Msg("Service stop failure")
		}
		return errors.Join(stopErrors...)
	}
	return nil
}

// RegisterServices initializes and registers enabled services based on configuration.
// The gateway is always registered first.
func (sr *ServiceRegistry) RegisterServices(config *utils.Config, deviceHub *hub.Hub) error {
	// Ordered service definitions with inline constructors
	servicesInOrder := []struct {
		name        string
		enabled     bool
		needsMQTT   bool
		constructor func() (Service, error)
	}{
		{
			name:    "gateway",
			enabled: true,
			constructor: func() (Service, error) {
				return services.NewGatewayService(
					services.GatewayConfig{
						ListenAddr:      config.Server.ListenAddr,
						TLSCertFile:     config.Server.TLSCertFile,
						TLSKeyFile:      config.Server.TLSKeyFile,
						ReadBufferSize:  config.Server.ReadBufferSize,
						WriteBufferSize: config.Server.WriteBufferSize,
						MaxMessageSize:  config.Hub.MaxMessageSize,
						WriteTimeout:    config.Hub.WriteTimeout,
					},
					deviceHub,
					sr.Logger,
				), nil
			},
		},
		{
			name:      "bridge",
			enabled:   config.Services.Bridge.Enabled,
			needsMQTT: true,
			constructor: func() (Service, error) {
				return services.NewCommandBridgeService(
					config.Services.Bridge.Topic,
					config.Services.Bridge.QOS,
					config.Services.Bridge.Workers,
					sr.mqttClient,
					deviceHub,
					sr.Logger,
				), nil
			},
		},
		{
			name:    "presence",
			enabled: config.Services.Presence.Enabled,
			constructor: func() (Service, error) {
				return services.NewPresenceService(
					config.Services.Presence.Topic,
					config.Services.Presence.Interval,
					config.Services.Presence.QOS,
					sr.mqttClient,
					deviceHub,
					sr.Logger,
				), nil
			},
		},
		{
			name:      "metrics",
			enabled:   config.Services.Metrics.Enabled,
			needsMQTT: true,
			constructor: func() (Service, error) {
				return services.NewMetricsService(
					config.Services.Metrics.Topic,
					config.Services.Metrics.Interval,
					config.Services.Metrics.Timeout,
					config.Services.Metrics.QOS,
					config.MetricsConfig(),
					deviceHub,
					sr.mqttClient,
					sr.Logger,
				), nil
			},
		},
	}

	// Register services in the predefined order
	registeredServices := []string{}
	for _, svc := range servicesInOrder {
		if !svc.enabled {
			continue
		}
		if svc.needsMQTT && sr.mqttClient == nil {
			return fmt.Errorf("%s service requires an mqtt client", svc.name)
		}
		serviceInstance, err := svc.constructor()
		if err != nil {
			sr.Logger.Error().Err(err).Msgf("Failed to create %s service", svc.name)
			return err
		}
		sr.RegisterService(svc.name, serviceInstance)
		registeredServices = append(registeredServices, svc.name)
	}

	sr.Logger.Info().Msgf("Registered services in order: %v", registeredServices)
	return nil
}
