package scheduler

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

// CheckerConfig defines the polling behaviour of the checker
type CheckerConfig struct {
	Interval time.Duration
	Location *time.Location
}

// Checker periodically evaluates every task and dispatches the due ones
type Checker struct {
	logger     *zap.Logger
	tasks      TaskSource
	dispatcher Dispatcher
	interval   time.Duration
	location   *time.Location
	now        func() time.Time

	mu     sync.Mutex
	cron   *cron.Cron
	cancel context.CancelFunc
}

// NewChecker creates a checker evaluating tasks from source
func NewChecker(config CheckerConfig, tasks TaskSource, dispatcher Dispatcher, logger *zap.Logger) *Checker {
	if config.Interval <= 0 {
		config.Interval = DefaultPollInterval
	}
	if config.Location == nil {
		config.Location = time.Local
	}
	return &Checker{
		logger:     logger.Named("checker"),
		tasks:      tasks,
		dispatcher: dispatcher,
		interval:   config.Interval,
		location:   config.Location,
		now:        time.Now,
	}
}

// Start runs one check immediately and then every interval.
// Calling Start on a running checker is a no-op.
func (c *Checker) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.cron != nil {
		c.mu.Unlock()
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	cl := cronlog.New(c.logger)
	cr := cron.New(
		cron.WithLocation(c.location),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	if _, err := cr.AddFunc(fmt.Sprintf("@every %s", c.interval), func() {
		c.runTick(runCtx)
	}); err != nil {
		c.mu.Unlock()
		cancel()
		return fmt.Errorf("failed to schedule checker: %w", err)
	}

	c.cron = cr
	c.cancel = cancel
	cr.Start()
	c.mu.Unlock()

	c.logger.Info("Started checker", zap.Duration("interval", c.interval))

	c.runTick(runCtx)
	return nil
}

// Stop cancels the timer. Persisted task state is untouched and the
// checker can be started again.
func (c *Checker) Stop() {
	c.mu.Lock()
	cr, cancel := c.cron, c.cancel
	c.cron, c.cancel = nil, nil
	c.mu.Unlock()

	if cr == nil {
		return
	}
	<-cr.Stop().Done()
	cancel()
	c.logger.Info("Stopped checker")
}

// Running reports whether the checker timer is active
func (c *Checker) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cron != nil
}

func (c *Checker) runTick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	c.Tick(ctx, c.now())
}

// Tick evaluates every task against now, in insertion order, and dispatches
// the due ones sequentially. It returns the number of dispatched tasks.
func (c *Checker) Tick(ctx context.Context, now time.Time) int {
	now = now.In(c.location)

	dispatched := 0
	for _, task := range c.tasks.List() {
		if !ShouldFire(task, now) {
			continue
		}
		if err := c.dispatch(ctx, task, now); err != nil {
			c.logger.Error("Failed to dispatch task",
				zap.String("task_id", task.ID),
				zap.String("task_name", task.Name),
				zap.Error(err))
			continue
		}
		dispatched++
	}

	if dispatched > 0 {
		c.logger.Info("Dispatched due tasks",
			zap.Int("count", dispatched),
			zap.Time("tick", now))
	}
	return dispatched
}

func (c *Checker) dispatch(ctx context.Context, task model.ScheduledTask, now time.Time) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("dispatch panicked: %v", r)
		}
	}()
	return c.dispatcher.Dispatch(ctx, task, now)
}
