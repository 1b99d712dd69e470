package storage

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/t77yq/autocontrol/internal/model"
)

// DefaultLogCapacity is the number of execution log entries kept
const DefaultLogCapacity = 100

// ExecutionLog is a capped, newest-first record of scheduler outcomes
// persisted under KeyLog. Appending past capacity evicts the oldest entry.
type ExecutionLog struct {
	logger   *zap.Logger
	kv       KeyValueStore
	capacity int
	mu       sync.RWMutex
	entries  []model.ExecutionLogEntry
}

// NewExecutionLog creates an execution log backed by kv
func NewExecutionLog(kv KeyValueStore, capacity int, logger *zap.Logger) *ExecutionLog {
	if capacity <= 0 {
		capacity = DefaultLogCapacity
	}
	return &ExecutionLog{
		logger:   logger.Named("execution-log"),
		kv:       kv,
		capacity: capacity,
	}
}

// Load replaces the in-memory entries with the persisted ones
func (l *ExecutionLog) Load(ctx context.Context) error {
	var entries []model.ExecutionLogEntry
	if _, err := GetJSON(ctx, l.kv, KeyLog, &entries); err != nil {
		if !errors.Is(err, ErrCorrupted) {
			return err
		}
		l.logger.Warn("Discarding unreadable execution log", zap.Error(err))
		entries = nil
	}
	if len(entries) > l.capacity {
		entries = entries[:l.capacity]
	}

	l.mu.Lock()
	l.entries = entries
	l.mu.Unlock()
	return nil
}

// Append records entry as the newest one and persists the log
func (l *ExecutionLog) Append(ctx context.Context, entry model.ExecutionLogEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := len(l.entries) + 1
	if n > l.capacity {
		n = l.capacity
	}
	entries := make([]model.ExecutionLogEntry, 0, n)
	entries = append(entries, entry)
	entries = append(entries, l.entries[:n-1]...)
	l.entries = entries

	return SetJSON(ctx, l.kv, KeyLog, l.entries)
}

// Entries returns up to limit entries, newest first. A limit <= 0 returns all.
func (l *ExecutionLog) Entries(limit int) []model.ExecutionLogEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	n := len(l.entries)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]model.ExecutionLogEntry, n)
	copy(out, l.entries[:n])
	return out
}

// Len returns the number of entries
func (l *ExecutionLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Clear removes every entry and persists the empty log
func (l *ExecutionLog) Clear(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = nil
	return SetJSON(ctx, l.kv, KeyLog, []model.ExecutionLogEntry{})
}
