package scheduler

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/t77yq/autocontrol/internal/model"
)

// TaskInput is the user-submitted definition of a scheduled task
type TaskInput struct {
	Action       model.Action       `json:"action"`
	Name         string             `json:"name"`
	ScheduleType model.ScheduleType `json:"scheduleType"`
	Hour         int                `json:"hour"`
	Minute       int                `json:"minute"`
	Date         string             `json:"date,omitempty"`
	WeekDays     []int              `json:"weekDays,omitempty"`
	MonthDay     int                `json:"monthDay,omitempty"`
}

// Builder validates task input and constructs scheduled tasks
type Builder struct {
	newID func() string
	now   func() time.Time
}

// NewBuilder creates a builder that assigns UUID ids
func NewBuilder() *Builder {
	return &Builder{
		newID: func() string { return uuid.New().String() },
		now:   time.Now,
	}
}

// Build validates in and returns a new active task.
// Validation failures are returned as *ValidationError.
func (b *Builder) Build(in TaskInput) (model.ScheduledTask, error) {
	if in.Action == "" {
		return model.ScheduledTask{}, invalid("action", ErrMissingAction)
	}
	if !in.Action.Valid() {
		return model.ScheduledTask{}, invalid("action", ErrUnknownAction)
	}
	if in.ScheduleType == "" {
		in.ScheduleType = model.ScheduleOnce
	}
	if !in.ScheduleType.Valid() {
		return model.ScheduledTask{}, invalid("scheduleType", ErrInvalidScheduleType)
	}
	if in.Hour < 0 || in.Hour > 23 {
		return model.ScheduledTask{}, invalid("hour", ErrInvalidTime)
	}
	if in.Minute < 0 || in.Minute > 59 {
		return model.ScheduledTask{}, invalid("minute", ErrInvalidTime)
	}

	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = in.Action.Label()
	}

	task := model.ScheduledTask{
		ID:           b.newID(),
		Action:       in.Action,
		ActionLabel:  in.Action.Label(),
		Name:         name,
		ScheduleType: in.ScheduleType,
		Hour:         in.Hour,
		Minute:       in.Minute,
		Active:       true,
		CreatedAt:    b.now(),
	}

	switch in.ScheduleType {
	case model.ScheduleOnce:
		date := strings.TrimSpace(in.Date)
		if date == "" {
			return model.ScheduledTask{}, invalid("date", ErrMissingDate)
		}
		if _, err := time.Parse(model.DateLayout, date); err != nil {
			return model.ScheduledTask{}, invalid("date", ErrInvalidDate)
		}
		task.Date = date
	case model.ScheduleWeekly:
		days, err := normalizeWeekDays(in.WeekDays)
		if err != nil {
			return model.ScheduledTask{}, err
		}
		task.WeekDays = days
	case model.ScheduleMonthly:
		if in.MonthDay < MinMonthDay || in.MonthDay > MaxMonthDay {
			return model.ScheduledTask{}, invalid("monthDay", ErrInvalidMonthDay)
		}
		task.MonthDay = in.MonthDay
	}

	return task, nil
}

func normalizeWeekDays(days []int) ([]int, error) {
	if len(days) == 0 {
		return nil, invalid("weekDays", ErrMissingWeekDays)
	}
	seen := make(map[int]bool, len(days))
	out := make([]int, 0, len(days))
	for _, d := range days {
		if d < 0 || d > 6 {
			return nil, invalid("weekDays", ErrInvalidWeekDay)
		}
		if !seen[d] {
			seen[d] = true
			out = append(out, d)
		}
	}
	sort.Ints(out)
	return out, nil
}
