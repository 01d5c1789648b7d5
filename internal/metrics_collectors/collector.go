package metrics_collectors

import (
	"context"

	"github.com/benmeehan/device-hub/internal/models"
)

// MetricCollector produces one numeric reading per collection round.
type MetricCollector interface {
	Name() string
	Collect(ctx context.Context) (float64, error)
	IsEnabled(config *models.MetricsConfig) bool
	Unit() string
	Description() string
}

// gauge is a MetricCollector built from a read function and the config switch
// that enables it.
type gauge struct {
	name        string
	unit        string
	description string
	enabled     func(*models.MetricsConfig) bool
	read        func(ctx context.Context) (float64, error)
}

func (g *gauge) Name() string {
	return g.name
}

func (g *gauge) Collect(ctx context.Context) (float64, error) {
	return g.read(ctx)
}

func (g *gauge) IsEnabled(config *models.MetricsConfig) bool {
	return config != nil && g.enabled(config)
}

func (g *gauge) Unit() string {
	return g.unit
}

func (g *gauge) Description() string {
	return g.description
}
