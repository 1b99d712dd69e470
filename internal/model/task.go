package model

import (
	"fmt"
	"strings"
	"time"
)

// ScheduleType represents how often a scheduled task fires
type ScheduleType string

const (
	ScheduleOnce    ScheduleType = "once"
	ScheduleDaily   ScheduleType = "daily"
	ScheduleWeekly  ScheduleType = "weekly"
	ScheduleMonthly ScheduleType = "monthly"
)

// Valid reports whether the schedule type is known
func (t ScheduleType) Valid() bool {
	switch t {
	case ScheduleOnce, ScheduleDaily, ScheduleWeekly, ScheduleMonthly:
		return true
	}
	return false
}

// DateLayout is the calendar date format used by one-time tasks
const DateLayout = "2006-01-02"

// ScheduledTask represents a recurring or one-time invocation of a remote action
type ScheduledTask struct {
	ID           string       `json:"id"`
	Action       Action       `json:"action"`
	ActionLabel  string       `json:"actionLabel,omitempty"`
	Name         string       `json:"name"`
	ScheduleType ScheduleType `json:"scheduleType"`
	Hour         int          `json:"hour"`
	Minute       int          `json:"minute"`

	// Type-specific fields, at most one is populated
	Date     string `json:"date,omitempty"`
	WeekDays []int  `json:"weekDays,omitempty"`
	MonthDay int    `json:"monthDay,omitempty"`

	Active    bool       `json:"active"`
	CreatedAt time.Time  `json:"createdAt"`
	LastRun   *time.Time `json:"lastRun"`
	RunCount  int        `json:"runCount"`
}

// Clone returns a deep copy of the task
func (t ScheduledTask) Clone() ScheduledTask {
	c := t
	if t.WeekDays != nil {
		c.WeekDays = append([]int(nil), t.WeekDays...)
	}
	if t.LastRun != nil {
		lr := *t.LastRun
		c.LastRun = &lr
	}
	return c
}

// HasWeekDay reports whether the weekday (0=Sunday) is selected
func (t ScheduledTask) HasWeekDay(day time.Weekday) bool {
	for _, d := range t.WeekDays {
		if d == int(day) {
			return true
		}
	}
	return false
}

var shortDayNames = [...]string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}

// Describe returns a human readable schedule description
func (t ScheduledTask) Describe() string {
	at := fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
	switch t.ScheduleType {
	case ScheduleOnce:
		if t.Date != "" {
			return fmt.Sprintf("once on %s at %s", t.Date, at)
		}
		return "once at " + at
	case ScheduleDaily:
		return "daily at " + at
	case ScheduleWeekly:
		names := make([]string, 0, len(t.WeekDays))
		for _, d := range t.WeekDays {
			if d >= 0 && d < len(shortDayNames) {
				names = append(names, shortDayNames[d])
			}
		}
		if len(names) == 0 {
			return "weekly at " + at
		}
		return fmt.Sprintf("weekly on %s at %s", strings.Join(names, ", "), at)
	case ScheduleMonthly:
		return fmt.Sprintf("monthly on day %d at %s", t.MonthDay, at)
	default:
		return string(t.ScheduleType)
	}
}
