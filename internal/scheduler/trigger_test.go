package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/t77yq/autocontrol/internal/model"
)

func at(year int, month time.Month, day, hour, minute, sec int) time.Time {
	return time.Date(year, month, day, hour, minute, sec, 0, time.UTC)
}

func TestShouldFire(t *testing.T) {
	// 2024-06-03 is a Monday
	monday := at(2024, 6, 3, 8, 30, 10)
	lastMinute := at(2024, 6, 3, 8, 29, 50)
	sameMinute := at(2024, 6, 3, 8, 30, 0)

	tests := []struct {
		name string
		task model.ScheduledTask
		now  time.Time
		want bool
	}{
		{
			name: "daily at matching minute",
			task: model.ScheduledTask{Active: true, ScheduleType: model.ScheduleDaily, Hour: 8, Minute: 30},
			now:  monday,
			want: true,
		},
		{
			name: "inactive task never fires",
			task: model.ScheduledTask{Active: false, ScheduleType: model.ScheduleDaily, Hour: 8, Minute: 30},
			now:  monday,
			want: false,
		},
		{
			name: "different minute",
			task: model.ScheduledTask{Active: true, ScheduleType: model.ScheduleDaily, Hour: 8, Minute: 31},
			now:  monday,
			want: false,
		},
		{
			name: "different hour",
			task: model.ScheduledTask{Active: true, ScheduleType: model.ScheduleDaily, Hour: 20, Minute: 30},
			now:  monday,
			want: false,
		},
		{
			name: "already ran this minute",
			task: model.ScheduledTask{Active: true, ScheduleType: model.ScheduleDaily, Hour: 8, Minute: 30, LastRun: &sameMinute},
			now:  monday,
			want: false,
		},
		{
			name: "ran in the previous minute",
			task: model.ScheduledTask{Active: true, ScheduleType: model.ScheduleDaily, Hour: 8, Minute: 30, LastRun: &lastMinute},
			now:  monday,
			want: true,
		},
		{
			name: "once on matching date",
			task: model.ScheduledTask{Active: true, ScheduleType: model.ScheduleOnce, Date: "2024-06-03", Hour: 8, Minute: 30},
			now:  monday,
			want: true,
		},
		{
			name: "once on another date",
			task: model.ScheduledTask{Active: true, ScheduleType: model.ScheduleOnce, Date: "2024-06-04", Hour: 8, Minute: 30},
			now:  monday,
			want: false,
		},
		{
			name: "weekly on selected day",
			task: model.ScheduledTask{Active: true, ScheduleType: model.ScheduleWeekly, WeekDays: []int{1, 3}, Hour: 8, Minute: 30},
			now:  monday,
			want: true,
		},
		{
			name: "weekly on unselected day",
			task: model.ScheduledTask{Active: true, ScheduleType: model.ScheduleWeekly, WeekDays: []int{0, 6}, Hour: 8, Minute: 30},
			now:  monday,
			want: false,
		},
		{
			name: "monthly on matching day",
			task: model.ScheduledTask{Active: true, ScheduleType: model.ScheduleMonthly, MonthDay: 3, Hour: 8, Minute: 30},
			now:  monday,
			want: true,
		},
		{
			name: "monthly on another day",
			task: model.ScheduledTask{Active: true, ScheduleType: model.ScheduleMonthly, MonthDay: 4, Hour: 8, Minute: 30},
			now:  monday,
			want: false,
		},
		{
			name: "unknown schedule type",
			task: model.ScheduledTask{Active: true, ScheduleType: "hourly", Hour: 8, Minute: 30},
			now:  monday,
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShouldFire(tt.task, tt.now))
		})
	}
}

func TestShouldFire_UsesLocationOfNow(t *testing.T) {
	zone := time.FixedZone("UTC+3", 3*60*60)
	task := model.ScheduledTask{Active: true, ScheduleType: model.ScheduleDaily, Hour: 10, Minute: 0}

	utc := at(2024, 6, 3, 7, 0, 0)
	assert.False(t, ShouldFire(task, utc))
	assert.True(t, ShouldFire(task, utc.In(zone)))
}

func TestShouldFire_DailyFiresOnConsecutiveDays(t *testing.T) {
	yesterday := at(2024, 6, 2, 8, 30, 5)
	task := model.ScheduledTask{Active: true, ScheduleType: model.ScheduleDaily, Hour: 8, Minute: 30, LastRun: &yesterday}
	assert.True(t, ShouldFire(task, at(2024, 6, 3, 8, 30, 5)))
}
