package constants

import "time"

// Defaults for the optional background services.
const (
	DefaultListenAddr     = ":5000"
	DefaultPresenceTopic  = "devicehub/presence"
	DefaultBridgeTopic    = "devicehub/commands"
	DefaultMetricsTopic   = "devicehub/metrics"
	DefaultPresenceEvery  = 15 * time.Second
	DefaultMetricsEvery   = 60 * time.Second
	DefaultMetricsTimeout = 5 * time.Second
	DefaultMetricsWorkers = 4
	DefaultLogMaxSizeMB   = 50
	DefaultLogMaxBackups  = 3
	DefaultLogMaxAgeDays  = 28
	DefaultServiceName    = "device-hub"
)
