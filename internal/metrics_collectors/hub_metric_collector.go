package metrics_collectors

import (
	"context"

	"github.com/benmeehan/device-hub/internal/models"
)

// HubStats exposes the hub counters reported as metrics.
type HubStats interface {
	SessionCount() int
	OnlineCount() int
	PendingCount() int
}

func hubEnabled(c *models.MetricsConfig) bool { return c.MonitorHub }

func counter(read func() int) func(context.Context) (float64, error) {
	return func(context.Context) (float64, error) {
		return float64(read()), nil
	}
}

// NewHubCollectors returns the collectors for registered sessions, online
// devices and commands waiting for a reply. All of them follow MonitorHub.
func NewHubCollectors(stats HubStats) []MetricCollector {
	return []MetricCollector{
		&gauge{
			name:        "sessions",
			unit:        "count",
			description: "Registered device sessions, stale ones included.",
			enabled:     hubEnabled,
			read:        counter(stats.SessionCount),
		},
		&gauge{
			name:        "online_devices",
			unit:        "count",
			description: "Devices with a heartbeat inside the liveness window.",
			enabled:     hubEnabled,
			read:        counter(stats.OnlineCount),
		},
		&gauge{
			name:        "pending_commands",
			unit:        "count",
			description: "Commands sent to devices and still waiting for a reply.",
			enabled:     hubEnabled,
			read:        counter(stats.PendingCount),
		},
	}
}
