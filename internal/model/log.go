package model

import "time"

// ExecutionLogEntry records the outcome of a scheduled task event.
// TaskName is a snapshot, renaming or deleting the task does not change it.
type ExecutionLogEntry struct {
	ID       string    `json:"id"`
	TaskName string    `json:"taskName"`
	Action   Action    `json:"action"`
	Success  bool      `json:"success"`
	Message  string    `json:"message"`
	Time     time.Time `json:"time"`
}

// ActivityEntry records an operator action in the dashboard
type ActivityEntry struct {
	Action  string    `json:"action"`
	User    string    `json:"user,omitempty"`
	Success bool      `json:"success"`
	Time    time.Time `json:"time"`
}

// NotificationLevel represents the severity of a transient notification
type NotificationLevel string

const (
	NotificationInfo    NotificationLevel = "info"
	NotificationSuccess NotificationLevel = "success"
	NotificationWarning NotificationLevel = "warning"
	NotificationError   NotificationLevel = "error"
)

// Notification is a transient message for operators
type Notification struct {
	ID      string            `json:"id"`
	Level   NotificationLevel `json:"level"`
	Message string            `json:"message"`
	Time    time.Time         `json:"time"`
}
