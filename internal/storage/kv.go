package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Keys used in the key-value store
const (
	KeyTasks     = "ac_tasks"
	KeyLog       = "ac_log"
	KeyUsers     = "users"
	KeyScriptURL = "scriptURL"
)

var (
	// ErrTaskNotFound is returned when a task is not found
	ErrTaskNotFound = errors.New("task not found")

	// ErrClosed is returned when the store has been closed
	ErrClosed = errors.New("store closed")

	// ErrCorrupted is returned when a stored value cannot be decoded
	ErrCorrupted = errors.New("corrupted value")
)

// PersistenceError is returned when a write to the key-value store fails.
// The in-memory state has already been updated when it is returned.
type PersistenceError struct {
	Key string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to persist %s: %v", e.Key, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// KeyValueStore defines the interface for the local persistent key-value store
type KeyValueStore interface {
	// Get returns the value stored under key, ok is false if the key is absent
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)

	// Set stores value under key
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes key
	Delete(ctx context.Context, key string) error

	// Close releases the store
	Close() error
}

// Config defines the key-value store backend
type Config struct {
	Driver string // sqlite3, sqlite or memory
	Path   string
}

// Open opens the key-value store selected by cfg.Driver
func Open(cfg Config, logger *zap.Logger) (KeyValueStore, error) {
	switch cfg.Driver {
	case "memory":
		return NewMemoryStore(), nil
	case "", DriverSQLite3, DriverSQLite:
		driver := cfg.Driver
		if driver == "" {
			driver = DriverSQLite3
		}
		return NewSQLiteStore(logger, driver, cfg.Path)
	default:
		return nil, fmt.Errorf("unknown storage driver: %s", cfg.Driver)
	}
}

// GetJSON decodes the value stored under key into v.
// A missing key leaves v untouched and reports false.
func GetJSON(ctx context.Context, kv KeyValueStore, key string, v interface{}) (bool, error) {
	data, ok, err := kv.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	if !ok || len(data) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("%w in %s: %w", ErrCorrupted, key, err)
	}
	return true, nil
}

// SetJSON encodes v and stores it under key
func SetJSON(ctx context.Context, kv KeyValueStore, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return &PersistenceError{Key: key, Err: err}
	}
	if err := kv.Set(ctx, key, data); err != nil {
		return &PersistenceError{Key: key, Err: err}
	}
	return nil
}
