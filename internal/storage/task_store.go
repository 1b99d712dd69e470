package storage

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/t77yq/autocontrol/internal/model"
)

// TaskStore keeps scheduled tasks in insertion order and persists them
// under KeyTasks after every mutation.
type TaskStore struct {
	logger *zap.Logger
	kv     KeyValueStore
	mu     sync.RWMutex
	tasks  []model.ScheduledTask
}

// NewTaskStore creates a task store backed by kv
func NewTaskStore(kv KeyValueStore, logger *zap.Logger) *TaskStore {
	return &TaskStore{
		logger: logger.Named("task-store"),
		kv:     kv,
	}
}

// Load replaces the in-memory tasks with the persisted ones.
// A corrupted value is discarded and the store starts empty.
func (s *TaskStore) Load(ctx context.Context) error {
	var tasks []model.ScheduledTask
	if _, err := GetJSON(ctx, s.kv, KeyTasks, &tasks); err != nil {
		if !errors.Is(err, ErrCorrupted) {
			return err
		}
		s.logger.Warn("Discarding unreadable tasks", zap.Error(err))
		tasks = nil
	}

	s.mu.Lock()
	s.tasks = tasks
	s.mu.Unlock()

	s.logger.Info("Loaded scheduled tasks", zap.Int("count", len(tasks)))
	return nil
}

// List returns a copy of all tasks in insertion order
func (s *TaskStore) List() []model.ScheduledTask {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.ScheduledTask, len(s.tasks))
	for i, t := range s.tasks {
		out[i] = t.Clone()
	}
	return out
}

// Get returns a copy of the task with the given id
func (s *TaskStore) Get(id string) (model.ScheduledTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := s.indexOf(id)
	if i < 0 {
		return model.ScheduledTask{}, ErrTaskNotFound
	}
	return s.tasks[i].Clone(), nil
}

// HasActive reports whether at least one task is active
func (s *TaskStore) HasActive() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, t := range s.tasks {
		if t.Active {
			return true
		}
	}
	return false
}

// Add appends a task and persists the task list.
// A *PersistenceError means the task was kept in memory only.
func (s *TaskStore) Add(ctx context.Context, task model.ScheduledTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tasks = append(s.tasks, task.Clone())
	return s.saveLocked(ctx)
}

// Update applies fn to the task with the given id and persists the task list.
// The updated task is returned even when persisting fails.
func (s *TaskStore) Update(ctx context.Context, id string, fn func(*model.ScheduledTask)) (model.ScheduledTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return model.ScheduledTask{}, ErrTaskNotFound
	}
	fn(&s.tasks[i])
	updated := s.tasks[i].Clone()

	return updated, s.saveLocked(ctx)
}

// Delete removes the task with the given id and persists the task list
func (s *TaskStore) Delete(ctx context.Context, id string) (model.ScheduledTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return model.ScheduledTask{}, ErrTaskNotFound
	}
	removed := s.tasks[i]
	s.tasks = append(s.tasks[:i], s.tasks[i+1:]...)

	return removed, s.saveLocked(ctx)
}

// Save persists the current task list
func (s *TaskStore) Save(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saveLocked(ctx)
}

func (s *TaskStore) saveLocked(ctx context.Context) error {
	tasks := s.tasks
	if tasks == nil {
		tasks = []model.ScheduledTask{}
	}
	return SetJSON(ctx, s.kv, KeyTasks, tasks)
}

func (s *TaskStore) indexOf(id string) int {
	for i, t := range s.tasks {
		if t.ID == id {
			return i
		}
	}
	return -1
}
