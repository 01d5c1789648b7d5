package utils

import (
	"errors"
	"fmt"
	"time"

	"github.com/benmeehan/device-hub/internal/constants"
	"github.com/benmeehan/device-hub/internal/hub"
	"github.com/benmeehan/device-hub/internal/models"
	"github.com/benmeehan/device-hub/pkg/file"
)

// Config represents the structure of the configuration file.
type Config struct {
	Server struct {
		ListenAddr      string `yaml:"listen_addr"`       // Address the HTTP and WebSocket server listens on
		TLSCertFile     string `yaml:"tls_cert_file"`     // Optional TLS certificate, enables HTTPS/WSS together with the key
		TLSKeyFile      string `yaml:"tls_key_file"`      // Optional TLS private key
		ReadBufferSize  int    `yaml:"read_buffer_size"`  // WebSocket read buffer size in bytes
		WriteBufferSize int    `yaml:"write_buffer_size"` // WebSocket write buffer size in bytes
	} `yaml:"server"`

	Hub struct {
		HeartbeatTimeout      time.Duration `yaml:"heartbeat_timeout"`       // A device is offline once its last heartbeat is older than this
		RegisterTimeout       time.Duration `yaml:"register_timeout"`        // Time allowed between accept and the register frame
		IdleTimeout           time.Duration `yaml:"idle_timeout"`            // Connections silent for this long are closed
		WriteTimeout          time.Duration `yaml:"write_timeout"`           // Bound on a single frame write
		DefaultCommandTimeout time.Duration `yaml:"default_command_timeout"` // Used when a request carries no timeout
		MaxCommandTimeout     time.Duration `yaml:"max_command_timeout"`     // Upper bound for request timeouts
		MaxMessageSize        int64         `yaml:"max_message_size"`        // Largest accepted inbound frame in bytes
		MinAppVersion         string        `yaml:"min_app_version"`         // Semver constraint; older device apps are flagged outdated
	} `yaml:"hub"`

	Logging struct {
		Level      string `yaml:"level"`        // zerolog level name
		File       string `yaml:"file"`         // Log file path, stdout when empty
		MaxSizeMB  int    `yaml:"max_size_mb"`  // Rotate after this many megabytes
		MaxBackups int    `yaml:"max_backups"`  // Rotated files to keep
		MaxAgeDays int    `yaml:"max_age_days"` // Days to keep rotated files
		Compress   bool   `yaml:"compress"`     // Gzip rotated files
	} `yaml:"logging"`

	MQTT struct {
		Enabled       bool   `yaml:"enabled"`        // Connect to a broker for the bridge, presence and metrics services
		Broker        string `yaml:"broker"`         // MQTT broker address
		ClientID      string `yaml:"client_id"`      // MQTT client ID
		CACertificate string `yaml:"ca_certificate"` // Path to the CA certificate, plain TCP when empty
		Username      string `yaml:"username"`
		Password      string `yaml:"password"`
	} `yaml:"mqtt"`

	Services struct {
		Bridge struct {
			Enabled bool   `yaml:"enabled"` // Enable/disable the MQTT command bridge
			Topic   string `yaml:"topic"`   // Base topic, requests arrive on <topic>/request
			QOS     int    `yaml:"qos"`     // MQTT QoS level for requests and results
			Workers int    `yaml:"workers"` // Commands dispatched concurrently
		} `yaml:"bridge"`

		Presence struct {
			Enabled  bool          `yaml:"enabled"`  // Enable/disable the presence sweep
			Topic    string        `yaml:"topic"`    // MQTT topic for the online set, nothing is published when empty
			QOS      int           `yaml:"qos"`      // MQTT QoS level for presence messages
			Interval time.Duration `yaml:"interval"` // Interval between sweeps
		} `yaml:"presence"`

		Metrics struct {
			Enabled           bool          `yaml:"enabled"`            // Enable/disable metrics service
			Topic             string        `yaml:"topic"`              // MQTT topic for metrics service
			QOS               int           `yaml:"qos"`                // MQTT QoS level for metrics messages
			Interval          time.Duration `yaml:"interval"`           // Interval for sending metrics
			Timeout           time.Duration `yaml:"timeout"`            // Timeout for collecting metrics
			MonitorCPU        bool          `yaml:"monitor_cpu"`        // CPU used by the hub process
			MonitorMemory     bool          `yaml:"monitor_memory"`     // Resident memory of the hub process
			MonitorGoroutines bool          `yaml:"monitor_goroutines"` // Goroutines of the hub process
			MonitorHub        bool          `yaml:"monitor_hub"`        // Sessions, online devices and pending commands
		} `yaml:"metrics"`
	} `yaml:"services"`
}

// LoadConfig loads the YAML configuration from the specified file, applies
// defaults and validates the result.
func LoadConfig(filename string, fileClient file.FileOperations) (*Config, error) {
	var config Config
	if err := fileClient.ReadYamlFile(filename, &config); err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", filename, err)
	}

	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", filename, err)
	}
	return &config, nil
}

// ApplyDefaults fills zero values from the constants package.
func (c *Config) ApplyDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = constants.DefaultListenAddr
	}
	if c.Server.ReadBufferSize == 0 {
		c.Server.ReadBufferSize = 1024
	}
	if c.Server.WriteBufferSize == 0 {
		c.Server.WriteBufferSize = 1024
	}

	if c.Hub.HeartbeatTimeout == 0 {
		c.Hub.HeartbeatTimeout = constants.DefaultHeartbeatTimeout
	}
	if c.Hub.RegisterTimeout == 0 {
		c.Hub.RegisterTimeout = constants.DefaultRegisterTimeout
	}
	if c.Hub.IdleTimeout == 0 {
		c.Hub.IdleTimeout = constants.DefaultIdleTimeout
	}
	if c.Hub.WriteTimeout == 0 {
		c.Hub.WriteTimeout = constants.DefaultWriteTimeout
	}
	if c.Hub.DefaultCommandTimeout == 0 {
		c.Hub.DefaultCommandTimeout = constants.DefaultCommandTimeout
	}
	if c.Hub.MaxCommandTimeout == 0 {
		c.Hub.MaxCommandTimeout = constants.MaxCommandTimeout
	}
	if c.Hub.MaxMessageSize == 0 {
		c.Hub.MaxMessageSize = constants.DefaultMaxMessageSize
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.MaxSizeMB == 0 {
		c.Logging.MaxSizeMB = constants.DefaultLogMaxSizeMB
	}
	if c.Logging.MaxBackups == 0 {
		c.Logging.MaxBackups = constants.DefaultLogMaxBackups
	}
	if c.Logging.MaxAgeDays == 0 {
		c.Logging.MaxAgeDays = constants.DefaultLogMaxAgeDays
	}

	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = constants.DefaultServiceName
	}

	if c.Services.Bridge.Topic == "" {
		c.Services.Bridge.Topic = constants.DefaultBridgeTopic
	}
	if c.Services.Bridge.Workers == 0 {
		c.Services.Bridge.Workers = constants.DefaultBridgeWorkers
	}
	if c.MQTT.Enabled && c.Services.Presence.Topic == "" {
		c.Services.Presence.Topic = constants.DefaultPresenceTopic
	}
	if c.Services.Presence.Interval == 0 {
		c.Services.Presence.Interval = constants.DefaultPresenceEvery
	}
	if c.Services.Metrics.Topic == "" {
		c.Services.Metrics.Topic = constants.DefaultMetricsTopic
	}
	if c.Services.Metrics.Interval == 0 {
		c.Services.Metrics.Interval = constants.DefaultMetricsEvery
	}
	if c.Services.Metrics.Timeout == 0 {
		c.Services.Metrics.Timeout = constants.DefaultMetricsTimeout
	}
}

// Validate rejects inconsistent settings. It expects defaults to be applied.
func (c *Config) Validate() error {
	var errs []error

	if c.Hub.HeartbeatTimeout <= 0 {
		errs = append(errs, errors.New("hub.heartbeat_timeout must be positive"))
	}
	if c.Hub.RegisterTimeout <= 0 {
		errs = append(errs, errors.New("hub.register_timeout must be positive"))
	}
	if c.Hub.IdleTimeout < 0 {
		errs = append(errs, errors.New("hub.idle_timeout must not be negative"))
	}
	if c.Hub.DefaultCommandTimeout <= 0 || c.Hub.MaxCommandTimeout <= 0 {
		errs = append(errs, errors.New("hub command timeouts must be positive"))
	} else if c.Hub.DefaultCommandTimeout > c.Hub.MaxCommandTimeout {
		errs = append(errs, errors.New("hub.default_command_timeout exceeds hub.max_command_timeout"))
	}
	if c.Hub.MaxMessageSize < 0 {
		errs = append(errs, errors.New("hub.max_message_size must not be negative"))
	}
	if (c.Server.TLSCertFile == "") != (c.Server.TLSKeyFile == "") {
		errs = append(errs, errors.New("server.tls_cert_file and server.tls_key_file must be set together"))
	}

	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		errs = append(errs, errors.New("mqtt.broker is required when mqtt is enabled"))
	}
	if !c.MQTT.Enabled && (c.Services.Bridge.Enabled || c.Services.Metrics.Enabled) {
		errs = append(errs, errors.New("the bridge and metrics services require mqtt"))
	}
	if !c.MQTT.Enabled && c.Services.Presence.Enabled && c.Services.Presence.Topic != "" {
		errs = append(errs, errors.New("services.presence.topic requires mqtt"))
	}
	for name, qos := range map[string]int{
		"bridge":   c.Services.Bridge.QOS,
		"presence": c.Services.Presence.QOS,
		"metrics":  c.Services.Metrics.QOS,
	} {
		if qos < 0 || qos > 2 {
			errs = append(errs, fmt.Errorf("services.%s.qos must be 0, 1 or 2", name))
		}
	}
	if c.Services.Bridge.Workers < 0 {
		errs = append(errs, errors.New("services.bridge.workers must not be negative"))
	}

	return errors.Join(errs...)
}

// HubConfig returns the hub timing policy.
func (c *Config) HubConfig() hub.Config {
	return hub.Config{
		HeartbeatTimeout:      c.Hub.HeartbeatTimeout,
		RegisterTimeout:       c.Hub.RegisterTimeout,
		IdleTimeout:           c.Hub.IdleTimeout,
		DefaultCommandTimeout: c.Hub.DefaultCommandTimeout,
		MaxCommandTimeout:     c.Hub.MaxCommandTimeout,
		MinAppVersion:         c.Hub.MinAppVersion,
	}
}

// MetricsConfig returns the collector selection of the metrics service.
func (c *Config) MetricsConfig() *models.MetricsConfig {
	return &models.MetricsConfig{
		MonitorCPU:        c.Services.Metrics.MonitorCPU,
		MonitorMemory:     c.Services.Metrics.MonitorMemory,
		MonitorGoroutines: c.Services.Metrics.MonitorGoroutines,
		MonitorHub:        c.Services.Metrics.MonitorHub,
	}
}
