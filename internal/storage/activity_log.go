package storage

import (
	"sync"
	"time"

	"github.com/t77yq/autocontrol/internal/model"
)

// DefaultActivityCapacity is the number of activity entries kept
const DefaultActivityCapacity = 20

// ActivityLog is an in-memory, newest-first record of operator actions
type ActivityLog struct {
	mu       sync.RWMutex
	capacity int
	entries  []model.ActivityEntry
	now      func() time.Time
}

// NewActivityLog creates an activity log holding at most capacity entries
func NewActivityLog(capacity int) *ActivityLog {
	if capacity <= 0 {
		capacity = DefaultActivityCapacity
	}
	return &ActivityLog{capacity: capacity, now: time.Now}
}

// Add records an operator action
func (a *ActivityLog) Add(user, action string, success bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	entry := model.ActivityEntry{
		Action:  action,
		User:    user,
		Success: success,
		Time:    a.now(),
	}
	a.entries = append([]model.ActivityEntry{entry}, a.entries...)
	if len(a.entries) > a.capacity {
		a.entries = a.entries[:a.capacity]
	}
}

// Entries returns the recorded actions, newest first
func (a *ActivityLog) Entries() []model.ActivityEntry {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]model.ActivityEntry, len(a.entries))
	copy(out, a.entries)
	return out
}
