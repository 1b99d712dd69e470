package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/t77yq/autocontrol/internal/model"
)

func testBuilder() *Builder {
	b := NewBuilder()
	b.newID = func() string { return "task-1" }
	b.now = func() time.Time { return time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC) }
	return b
}

func TestBuilder_Build(t *testing.T) {
	b := testBuilder()

	task, err := b.Build(TaskInput{
		Action:       model.ActionBackup,
		ScheduleType: model.ScheduleWeekly,
		Hour:         8,
		Minute:       30,
		Date:         "2024-06-03",
		WeekDays:     []int{5, 1, 3, 1},
		MonthDay:     12,
	})
	require.NoError(t, err)

	assert.Equal(t, "task-1", task.ID)
	assert.Equal(t, "Backup", task.Name, "name defaults to the action label")
	assert.Equal(t, "Backup", task.ActionLabel)
	assert.True(t, task.Active)
	assert.Nil(t, task.LastRun)
	assert.Zero(t, task.RunCount)
	assert.Equal(t, []int{1, 3, 5}, task.WeekDays)
	assert.Empty(t, task.Date, "only the schedule specific field is kept")
	assert.Zero(t, task.MonthDay)
	assert.Equal(t, time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC), task.CreatedAt)
}

func TestBuilder_BuildKeepsName(t *testing.T) {
	task, err := testBuilder().Build(TaskInput{
		Action:       model.ActionOpenForm,
		Name:         "  Morning open  ",
		ScheduleType: model.ScheduleDaily,
		Hour:         7,
	})
	require.NoError(t, err)
	assert.Equal(t, "Morning open", task.Name)
	assert.Equal(t, "daily at 07:00", task.Describe())
}

func TestBuilder_BuildDefaultsToOnce(t *testing.T) {
	task, err := testBuilder().Build(TaskInput{
		Action: model.ActionStats,
		Date:   "2024-06-02",
		Hour:   12,
	})
	require.NoError(t, err)
	assert.Equal(t, model.ScheduleOnce, task.ScheduleType)
	assert.Equal(t, "2024-06-02", task.Date)
}

func TestBuilder_Validation(t *testing.T) {
	tests := []struct {
		name  string
		input TaskInput
		field string
		err   error
	}{
		{
			name:  "missing action",
			input: TaskInput{ScheduleType: model.ScheduleDaily},
			field: "action",
			err:   ErrMissingAction,
		},
		{
			name:  "unknown action",
			input: TaskInput{Action: "reboot", ScheduleType: model.ScheduleDaily},
			field: "action",
			err:   ErrUnknownAction,
		},
		{
			name:  "unknown schedule type",
			input: TaskInput{Action: model.ActionStats, ScheduleType: "hourly"},
			field: "scheduleType",
			err:   ErrInvalidScheduleType,
		},
		{
			name:  "hour out of range",
			input: TaskInput{Action: model.ActionStats, ScheduleType: model.ScheduleDaily, Hour: 24},
			field: "hour",
			err:   ErrInvalidTime,
		},
		{
			name:  "negative minute",
			input: TaskInput{Action: model.ActionStats, ScheduleType: model.ScheduleDaily, Minute: -1},
			field: "minute",
			err:   ErrInvalidTime,
		},
		{
			name:  "once without date",
			input: TaskInput{Action: model.ActionBackup, ScheduleType: model.ScheduleOnce},
			field: "date",
			err:   ErrMissingDate,
		},
		{
			name:  "once with malformed date",
			input: TaskInput{Action: model.ActionBackup, ScheduleType: model.ScheduleOnce, Date: "2024-02-30"},
			field: "date",
			err:   ErrInvalidDate,
		},
		{
			name:  "weekly without days",
			input: TaskInput{Action: model.ActionBackup, ScheduleType: model.ScheduleWeekly},
			field: "weekDays",
			err:   ErrMissingWeekDays,
		},
		{
			name:  "weekly with invalid day",
			input: TaskInput{Action: model.ActionBackup, ScheduleType: model.ScheduleWeekly, WeekDays: []int{1, 7}},
			field: "weekDays",
			err:   ErrInvalidWeekDay,
		},
		{
			name:  "monthly day zero",
			input: TaskInput{Action: model.ActionBackup, ScheduleType: model.ScheduleMonthly},
			field: "monthDay",
			err:   ErrInvalidMonthDay,
		},
		{
			name:  "monthly day 31",
			input: TaskInput{Action: model.ActionBackup, ScheduleType: model.ScheduleMonthly, MonthDay: 31},
			field: "monthDay",
			err:   ErrInvalidMonthDay,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := testBuilder().Build(tt.input)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.err)

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestBuilder_MonthlyBounds(t *testing.T) {
	for _, day := range []int{MinMonthDay, MaxMonthDay} {
		task, err := testBuilder().Build(TaskInput{
			Action:       model.ActionDelete,
			ScheduleType: model.ScheduleMonthly,
			MonthDay:     day,
		})
		require.NoError(t, err)
		assert.Equal(t, day, task.MonthDay)
	}
}
