package scheduler

import (
	"context"
	"time"

	"github.com/t77yq/autocontrol/internal/model"
)

// TaskSource provides the tasks evaluated on every tick, in insertion order
type TaskSource interface {
	List() []model.ScheduledTask
}

// Dispatcher hands a due task over for execution.
// Dispatch must not block on the remote call.
type Dispatcher interface {
	Dispatch(ctx context.Context, task model.ScheduledTask, now time.Time) error
}

// Runner executes a task synchronously
type Runner interface {
	RunNow(ctx context.Context, task model.ScheduledTask, now time.Time) (model.ExecutionLogEntry, error)
}
