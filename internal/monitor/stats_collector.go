package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/t77yq/autocontrol/internal/cronlog"
	"github.com/t77yq/autocontrol/internal/model"
)

// DefaultStatsInterval is how often statistics are refreshed
const DefaultStatsInterval = 60 * time.Second

// ActionInvoker calls a remote action
type ActionInvoker interface {
	Invoke(ctx context.Context, action model.Action) (*model.ActionResponse, error)
}

// StatsCollector periodically polls the stats action and caches the result
type StatsCollector struct {
	logger   *zap.Logger
	invoker  ActionInvoker
	interval time.Duration
	now      func() time.Time

	mu       sync.RWMutex
	snapshot model.StatsSnapshot
	cron     *cron.Cron
}

// NewStatsCollector creates a new stats collector
func NewStatsCollector(invoker ActionInvoker, interval time.Duration, logger *zap.Logger) *StatsCollector {
	if interval <= 0 {
		interval = DefaultStatsInterval
	}
	return &StatsCollector{
		logger:   logger.Named("stats-collector"),
		invoker:  invoker,
		interval: interval,
		now:      time.Now,
	}
}

// Start refreshes once in the background and then every interval
func (c *StatsCollector) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cron != nil {
		return nil
	}

	cl := cronlog.New(c.logger)
	cr := cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	if _, err := cr.AddFunc(fmt.Sprintf("@every %s", c.interval), func() {
		c.refresh(ctx)
	}); err != nil {
		return fmt.Errorf("failed to schedule stats refresh: %w", err)
	}

	c.logger.Info("Starting stats collector", zap.Duration("interval", c.interval))
	c.cron = cr
	cr.Start()
	go c.refresh(ctx)

	return nil
}

// Stop stops the periodic refresh
func (c *StatsCollector) Stop() {
	c.mu.Lock()
	cr := c.cron
	c.cron = nil
	c.mu.Unlock()

	if cr == nil {
		return
	}
	c.logger.Info("Stopping stats collector")
	<-cr.Stop().Done()
}

func (c *StatsCollector) refresh(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if _, err := c.Refresh(ctx); err != nil {
		c.logger.Warn("Failed to refresh stats", zap.Error(err))
	}
}

// Refresh polls the stats action now. On failure the previous statistics
// are kept and the error is recorded in the snapshot.
func (c *StatsCollector) Refresh(ctx context.Context) (model.StatsSnapshot, error) {
	resp, err := c.invoker.Invoke(ctx, model.ActionStats)
	var stats model.Stats
	if err == nil {
		stats, err = resp.Stats()
	}
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.snapshot.NextRefresh = now.Add(c.interval)
	if err != nil {
		c.snapshot.Error = err.Error()
		return c.snapshot, err
	}

	c.snapshot = model.StatsSnapshot{
		Stats:             stats,
		CorrectPercentage: stats.CorrectPercentage(),
		TodayPercentage:   stats.TodayPercentage(),
		RefreshedAt:       now,
		NextRefresh:       now.Add(c.interval),
	}

	c.logger.Debug("Stats refreshed",
		zap.Int("total_responses", stats.TotalResponses),
		zap.Int("today_responses", stats.TodayResponses))
	return c.snapshot, nil
}

// Snapshot returns the latest cached statistics
func (c *StatsCollector) Snapshot() model.StatsSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot
}
