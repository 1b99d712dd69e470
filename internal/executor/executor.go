package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/t77yq/autocontrol/internal/model"
	"github.com/t77yq/autocontrol/internal/storage"
)

const (
	// DefaultQueueSize is the number of dispatched tasks waiting for the worker
	DefaultQueueSize = 64

	msgAutoSucceeded   = "automatic execution succeeded"
	msgAutoFailed      = "automatic execution failed"
	msgManualSucceeded = "manual execution succeeded"
	msgManualFailed    = "manual execution failed"
)

var (
	// ErrQueueFull is returned by Dispatch when the worker is saturated
	ErrQueueFull = errors.New("execution queue full")

	// ErrStopped is recorded for dispatched tasks dropped by Stop
	ErrStopped = errors.New("executor stopped")
)

// ActionInvoker calls a remote action
type ActionInvoker interface {
	Invoke(ctx context.Context, action model.Action) (*model.ActionResponse, error)
}

// TaskStore is the part of the task store the executor mutates
type TaskStore interface {
	Update(ctx context.Context, id string, fn func(*model.ScheduledTask)) (model.ScheduledTask, error)
}

// ExecutionLog records execution outcomes
type ExecutionLog interface {
	Append(ctx context.Context, entry model.ExecutionLogEntry) error
}

// Notifier delivers transient notifications to operators
type Notifier interface {
	Notify(ctx context.Context, n model.Notification) error
}

// ExecutorConfig defines configuration for the executor
type ExecutorConfig struct {
	QueueSize int
}

type job struct {
	task model.ScheduledTask
	now  time.Time
}

// Executor runs dispatched tasks one at a time on a single worker
type Executor struct {
	logger   *zap.Logger
	invoker  ActionInvoker
	tasks    TaskStore
	log      ExecutionLog
	notifier Notifier
	queue    chan job
	now      func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewExecutor creates a new executor
func NewExecutor(config ExecutorConfig, invoker ActionInvoker, tasks TaskStore, log ExecutionLog, notifier Notifier, logger *zap.Logger) *Executor {
	if config.QueueSize <= 0 {
		config.QueueSize = DefaultQueueSize
	}
	return &Executor{
		logger:   logger.Named("executor"),
		invoker:  invoker,
		tasks:    tasks,
		log:      log,
		notifier: notifier,
		queue:    make(chan job, config.QueueSize),
		now:      time.Now,
	}
}

// Start starts the worker. Calling Start twice is a no-op.
func (e *Executor) Start(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.wg.Add(1)
	go e.worker(runCtx)

	e.logger.Info("Started executor", zap.Int("queue_size", cap(e.queue)))
}

// Stop stops the worker and waits for the running execution to finish.
// Tasks still queued are recorded as failed and one-time tasks among them
// are deactivated. Tasks dispatched while stopped run on the next Start.
func (e *Executor) Stop() {
	e.mu.Lock()
	cancel := e.cancel
	e.cancel = nil
	e.mu.Unlock()

	if cancel == nil {
		return
	}
	e.logger.Info("Stopping executor")
	cancel()
	e.wg.Wait()
	e.drain(context.Background())
}

func (e *Executor) drain(ctx context.Context) {
	for {
		select {
		case j := <-e.queue:
			e.consumeOnce(ctx, j.task)
			e.record(ctx, j.task, false, fmt.Sprintf("%s: %v", msgAutoFailed, ErrStopped))
		default:
			return
		}
	}
}

// Dispatch marks the task as run at now, persists it and enqueues it for
// the worker without waiting for the remote call.
func (e *Executor) Dispatch(ctx context.Context, task model.ScheduledTask, now time.Time) error {
	marked, err := e.markRun(ctx, task.ID, now)
	if err != nil {
		return err
	}

	select {
	case e.queue <- job{task: marked, now: now}:
		e.logger.Debug("Queued task",
			zap.String("task_id", marked.ID),
			zap.String("action", string(marked.Action)))
		return nil
	default:
		e.consumeOnce(ctx, marked)
		e.record(ctx, marked, false, fmt.Sprintf("%s: %v", msgAutoFailed, ErrQueueFull))
		return ErrQueueFull
	}
}

// Execute invokes the task action and records the outcome.
// A one-time task is deactivated whatever the outcome.
func (e *Executor) Execute(ctx context.Context, task model.ScheduledTask) model.ExecutionLogEntry {
	_, err := e.invoker.Invoke(ctx, task.Action)

	// the outcome is recorded even when ctx was cancelled mid-call
	ctx = context.WithoutCancel(ctx)
	e.consumeOnce(ctx, task)
	return e.finish(ctx, task, err, msgAutoSucceeded, msgAutoFailed)
}

// RunNow executes the task synchronously outside of its schedule.
// A failed remote call is reported in the returned entry, not as an error.
func (e *Executor) RunNow(ctx context.Context, task model.ScheduledTask, now time.Time) (model.ExecutionLogEntry, error) {
	marked, err := e.markRun(ctx, task.ID, now)
	if err != nil {
		return model.ExecutionLogEntry{}, err
	}

	_, err = e.invoker.Invoke(ctx, marked.Action)
	return e.finish(ctx, marked, err, msgManualSucceeded, msgManualFailed), nil
}

func (e *Executor) worker(ctx context.Context) {
	defer e.wg.Done()

	for ctx.Err() == nil {
		select {
		case <-ctx.Done():
			return
		case j := <-e.queue:
			e.run(ctx, j)
		}
	}
}

func (e *Executor) run(ctx context.Context, j job) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Task execution panicked",
				zap.String("task_id", j.task.ID),
				zap.Any("panic", r))
		}
	}()

	start := e.now()
	entry := e.Execute(ctx, j.task)
	e.logger.Info("Executed task",
		zap.String("task_id", j.task.ID),
		zap.String("task_name", j.task.Name),
		zap.Bool("success", entry.Success),
		zap.Duration("queued", start.Sub(j.now)),
		zap.Duration("duration", e.now().Sub(start)))
}

// consumeOnce deactivates a one-time task. A fired one-time task never
// becomes due again, whether or not its action ran.
func (e *Executor) consumeOnce(ctx context.Context, task model.ScheduledTask) {
	if task.ScheduleType != model.ScheduleOnce {
		return
	}
	if _, err := e.tasks.Update(ctx, task.ID, func(t *model.ScheduledTask) {
		t.Active = false
	}); err != nil {
		e.warn("Failed to deactivate one-time task", task, err)
	}
}

// markRun records lastRun and runCount. It must run before the remote call,
// the trigger debounce reads lastRun.
func (e *Executor) markRun(ctx context.Context, id string, now time.Time) (model.ScheduledTask, error) {
	marked, err := e.tasks.Update(ctx, id, func(t *model.ScheduledTask) {
		lastRun := now
		t.LastRun = &lastRun
		t.RunCount++
	})
	if errors.Is(err, storage.ErrTaskNotFound) {
		return model.ScheduledTask{}, err
	}
	if err != nil {
		e.warn("Run bookkeeping kept in memory only", marked, err)
	}
	return marked, nil
}

func (e *Executor) finish(ctx context.Context, task model.ScheduledTask, err error, okMsg, failMsg string) model.ExecutionLogEntry {
	if err != nil {
		e.logger.Warn("Task execution failed",
			zap.String("task_id", task.ID),
			zap.String("action", string(task.Action)),
			zap.Error(err))
		return e.record(ctx, task, false, fmt.Sprintf("%s: %v", failMsg, err))
	}
	return e.record(ctx, task, true, okMsg)
}

func (e *Executor) record(ctx context.Context, task model.ScheduledTask, success bool, msg string) model.ExecutionLogEntry {
	entry := model.ExecutionLogEntry{
		ID:       uuid.New().String(),
		TaskName: task.Name,
		Action:   task.Action,
		Success:  success,
		Message:  msg,
		Time:     e.now(),
	}
	if err := e.log.Append(ctx, entry); err != nil {
		e.warn("Execution log entry kept in memory only", task, err)
	}

	level := model.NotificationSuccess
	if !success {
		level = model.NotificationError
	}
	if err := e.notifier.Notify(ctx, model.Notification{
		ID:      entry.ID,
		Level:   level,
		Message: fmt.Sprintf("%s: %s", task.Name, msg),
		Time:    entry.Time,
	}); err != nil {
		e.warn("Failed to send notification", task, err)
	}
	return entry
}

func (e *Executor) warn(msg string, task model.ScheduledTask, err error) {
	e.logger.Warn(msg,
		zap.String("task_id", task.ID),
		zap.String("task_name", task.Name),
		zap.Error(err))
}
