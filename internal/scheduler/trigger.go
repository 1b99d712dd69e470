package scheduler

import (
	"time"

	"github.com/t77yq/autocontrol/internal/model"
)

// ShouldFire reports whether task is due at now. Calendar fields are read in
// now's location.
//
// A task fires only inside the minute matching its trigger time, and at most
// once per calendar minute: a task whose lastRun falls in the same minute as
// now is suppressed.
func ShouldFire(task model.ScheduledTask, now time.Time) bool {
	if !task.Active {
		return false
	}
	if now.Hour() != task.Hour || now.Minute() != task.Minute {
		return false
	}
	if task.LastRun != nil && sameMinute(*task.LastRun, now) {
		return false
	}

	switch task.ScheduleType {
	case model.ScheduleOnce:
		return task.Date == now.Format(model.DateLayout)
	case model.ScheduleDaily:
		return true
	case model.ScheduleWeekly:
		return task.HasWeekDay(now.Weekday())
	case model.ScheduleMonthly:
		return now.Day() == task.MonthDay
	default:
		return false
	}
}

func sameMinute(a, b time.Time) bool {
	return a.Truncate(time.Minute).Equal(b.Truncate(time.Minute))
}
