package metrics_collectors

import (
	"context"
	"fmt"
	"os"
	"runtime"

	"github.com/benmeehan/device-hub/internal/models"
	"github.com/shirou/gopsutil/process"
)

// NewProcessCollectors returns the collectors that watch the hub process
// itself: CPU share, resident memory and goroutines. Every connected device
// holds a session loop goroutine, so the goroutine count tracks fleet size.
func NewProcessCollectors() ([]MetricCollector, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, fmt.Errorf("failed to open hub process: %w", err)
	}

	return []MetricCollector{
		&gauge{
			name:        "process_cpu",
			unit:        "percentage",
			description: "CPU used by the hub process since the previous collection.",
			enabled:     func(c *models.MetricsConfig) bool { return c.MonitorCPU },
			read: func(ctx context.Context) (float64, error) {
				// The first reading only primes the sample and reports 0.
				return proc.PercentWithContext(ctx, 0)
			},
		},
		&gauge{
			name:        "process_rss",
			unit:        "bytes",
			description: "Resident memory of the hub process.",
			enabled:     func(c *models.MetricsConfig) bool { return c.MonitorMemory },
			read: func(ctx context.Context) (float64, error) {
				info, err := proc.MemoryInfoWithContext(ctx)
				if err != nil {
					return 0, err
				}
				return float64(info.RSS), nil
			},
		},
		&gauge{
			name:        "goroutines",
			unit:        "count",
			description: "Goroutines in the hub process, one per device session plus waiting callers.",
			enabled:     func(c *models.MetricsConfig) bool { return c.MonitorGoroutines },
			read: func(context.Context) (float64, error) {
				return float64(runtime.NumGoroutine()), nil
			},
		},
	}, nil
}
