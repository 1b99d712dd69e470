package scheduler

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

// Service owns the scheduled task engine: task definitions, the execution
// log and the checker loop.
type Service struct {
	logger  *zap.Logger
	builder *Builder
	tasks   *storage.TaskStore
	log     *storage.ExecutionLog
	checker *Checker
	runner  Runner
	now     func() time.Time

	mu      sync.Mutex
	baseCtx context.Context
}

// NewService creates the scheduler service
func NewService(tasks *storage.TaskStore, log *storage.ExecutionLog, checker *Checker, runner Runner, logger *zap.Logger) *Service {
	return &Service{
		logger:  logger.Named("scheduler"),
		builder: NewBuilder(),
		tasks:   tasks,
		log:     log,
		checker: checker,
		runner:  runner,
		now:     time.Now,
		baseCtx: context.Background(),
	}
}

// Load restores tasks and the execution log from the store
func (s *Service) Load(ctx context.Context) error {
	if err := s.tasks.Load(ctx); err != nil {
		return fmt.Errorf("failed to load tasks: %w", err)
	}
	if err := s.log.Load(ctx); err != nil {
		return fmt.Errorf("failed to load execution log: %w", err)
	}
	return nil
}

// Start starts the checker when at least one task is active.
// ctx bounds every checker started later on demand.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	s.baseCtx = ctx
	s.mu.Unlock()

	if !s.tasks.HasActive() {
		s.logger.Info("No active tasks, checker starts on demand")
		return nil
	}
	return s.checker.Start(ctx)
}

// Stop stops the checker
func (s *Service) Stop() {
	s.checker.Stop()
}

// CheckerRunning reports whether the checker is polling
func (s *Service) CheckerRunning() bool {
	return s.checker.Running()
}

// Tasks returns every task in insertion order
func (s *Service) Tasks() []model.ScheduledTask {
	return s.tasks.List()
}

// Task returns the task with the given id
func (s *Service) Task(id string) (model.ScheduledTask, error) {
	return s.tasks.Get(id)
}

// CreateTask validates in, stores the new task and makes sure the checker runs
func (s *Service) CreateTask(ctx context.Context, in TaskInput) (model.ScheduledTask, error) {
	task, err := s.builder.Build(in)
	if err != nil {
		return model.ScheduledTask{}, err
	}

	if err := s.tasks.Add(ctx, task); err != nil {
		s.warnPersist(err, task.ID)
	}
	s.record(ctx, task, true, msgTaskCreated)

	s.logger.Info("Created scheduled task",
		zap.String("task_id", task.ID),
		zap.String("name", task.Name),
		zap.String("action", string(task.Action)),
		zap.String("schedule", task.Describe()))

	s.ensureChecker()
	return task, nil
}

// ToggleTask flips the active flag of a task
func (s *Service) ToggleTask(ctx context.Context, id string) (model.ScheduledTask, error) {
	task, err := s.tasks.Update(ctx, id, func(t *model.ScheduledTask) {
		t.Active = !t.Active
	})
	if errors.Is(err, storage.ErrTaskNotFound) {
		return model.ScheduledTask{}, err
	}
	if err != nil {
		s.warnPersist(err, id)
	}

	msg := msgTaskPaused
	if task.Active {
		msg = msgTaskActivated
		s.ensureChecker()
	}
	s.record(ctx, task, true, msg)
	return task, nil
}

// DeleteTask removes a task. Past log entries are kept.
func (s *Service) DeleteTask(ctx context.Context, id string) (model.ScheduledTask, error) {
	task, err := s.tasks.Delete(ctx, id)
	if errors.Is(err, storage.ErrTaskNotFound) {
		return model.ScheduledTask{}, err
	}
	if err != nil {
		s.warnPersist(err, id)
	}
	s.record(ctx, task, true, msgTaskDeleted)
	return task, nil
}

// RunTaskNow executes a task immediately, outside of its schedule
func (s *Service) RunTaskNow(ctx context.Context, id string) (model.ExecutionLogEntry, error) {
	task, err := s.tasks.Get(id)
	if err != nil {
		return model.ExecutionLogEntry{}, err
	}
	return s.runner.RunNow(ctx, task, s.now())
}

// Log returns up to limit execution log entries, newest first
func (s *Service) Log(limit int) []model.ExecutionLogEntry {
	return s.log.Entries(limit)
}

// ClearLog removes every execution log entry
func (s *Service) ClearLog(ctx context.Context) error {
	if err := s.log.Clear(ctx); err != nil {
		var perr *storage.PersistenceError
		if !errors.As(err, &perr) {
			return err
		}
		s.logger.Warn("Execution log cleared in memory only", zap.Error(err))
	}
	return nil
}

func (s *Service) ensureChecker() {
	s.mu.Lock()
	ctx := s.baseCtx
	s.mu.Unlock()

	if err := s.checker.Start(ctx); err != nil {
		s.logger.Error("Failed to start checker", zap.Error(err))
	}
}

func (s *Service) record(ctx context.Context, task model.ScheduledTask, success bool, msg string) {
	entry := model.ExecutionLogEntry{
		ID:       uuid.New().String(),
		TaskName: task.Name,
		Action:   task.Action,
		Success:  success,
		Message:  msg,
		Time:     s.now(),
	}
	if err := s.log.Append(ctx, entry); err != nil {
		s.logger.Warn("Execution log entry kept in memory only", zap.Error(err))
	}
}

func (s *Service) warnPersist(err error, taskID string) {
	s.logger.Warn("Task change kept in memory only",
		zap.String("task_id", taskID),
		zap.Error(err))
}
