package models

import "time"

// HubMetrics represents the metrics collected at a specific time
type HubMetrics struct {
	Timestamp time.Time         `json:"timestamp"`
	Service   string            `json:"service"`
	Metrics   map[string]Metric `json:"metrics"`
}

// Metric is a single collected value with its unit
type Metric struct {
	Value float64 `json:"value"`
	Unit  string      `json:"unit"`
}

// MetricsConfig selects which collectors run
type MetricsConfig struct {
	MonitorCPU        bool `yaml:"monitor_cpu" json:"monitor_cpu"`
	MonitorMemory     bool `yaml:"monitor_memory" json:"monitor_memory"`
	MonitorGoroutines bool `yaml:"monitor_goroutines" json:"monitor_goroutines"`
	MonitorHub        bool `yaml:"monitor_hub" json:"monitor_hub"`
}
