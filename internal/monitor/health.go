package monitor

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"
)

// Health describes the host the service runs on
type Health struct {
	Status        string    `json:"status"`
	CPUUsage      float64   `json:"cpuUsage"`
	MemoryUsage   float64   `json:"memoryUsage"`
	Uptime        string    `json:"uptime"`
	CheckedAt     time.Time `json:"checkedAt"`
	CheckerActive bool      `json:"checkerActive"`
	TaskCount     int       `json:"taskCount"`
}

// HealthChecker samples host CPU and memory usage
type HealthChecker struct {
	logger    *zap.Logger
	sample    time.Duration
	startedAt time.Time
}

// NewHealthChecker creates a health checker measuring CPU over sample
func NewHealthChecker(sample time.Duration, logger *zap.Logger) *HealthChecker {
	return &HealthChecker{
		logger:    logger.Named("health"),
		sample:    sample,
		startedAt: time.Now(),
	}
}

// Check collects host metrics. Metrics that cannot be read are left at zero
// and mark the status as degraded.
func (h *HealthChecker) Check(ctx context.Context) Health {
	health := Health{
		Status:    "ok",
		Uptime:    time.Since(h.startedAt).Round(time.Second).String(),
		CheckedAt: time.Now(),
	}

	cpuPercent, err := cpu.PercentWithContext(ctx, h.sample, false)
	if err != nil || len(cpuPercent) == 0 {
		h.logger.Warn("Failed to get CPU usage", zap.Error(err))
		health.Status = "degraded"
	} else {
		health.CPUUsage = cpuPercent[0]
	}

	memInfo, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		h.logger.Warn("Failed to get memory usage", zap.Error(err))
		health.Status = "degraded"
	} else {
		health.MemoryUsage = memInfo.UsedPercent
	}

	return health
}
