package scheduler

import "time"

const (
	// DefaultPollInterval is how often the checker evaluates tasks
	DefaultPollInterval = 30 * time.Second

	// MinMonthDay and MaxMonthDay bound monthly tasks to days every month has
	MinMonthDay = 1
	MaxMonthDay = 28
)

// Messages recorded in the execution log for task bookkeeping
const (
	msgTaskCreated   = "task created"
	msgTaskActivated = "task activated"
	msgTaskPaused    = "task paused"
	msgTaskDeleted   = "task deleted"
)
