package scheduler

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingAction is returned when no action is selected
	ErrMissingAction = errors.New("action is required")

	// ErrUnknownAction is returned when the action is not supported by the endpoint
	ErrUnknownAction = errors.New("unknown action")

	// ErrInvalidScheduleType is returned for an unknown schedule type
	ErrInvalidScheduleType = errors.New("invalid schedule type")

	// ErrInvalidTime is returned when hour or minute are out of range
	ErrInvalidTime = errors.New("invalid trigger time")

	// ErrMissingDate is returned when a one-time task has no date
	ErrMissingDate = errors.New("date is required for one-time tasks")

	// ErrInvalidDate is returned when the date is not a YYYY-MM-DD calendar date
	ErrInvalidDate = errors.New("invalid date")

	// ErrMissingWeekDays is returned when a weekly task has no day selected
	ErrMissingWeekDays = errors.New("at least one week day is required for weekly tasks")

	// ErrInvalidWeekDay is returned when a week day is outside 0-6
	ErrInvalidWeekDay = errors.New("invalid week day")

	// ErrInvalidMonthDay is returned when the day of month is outside 1-28
	ErrInvalidMonthDay = errors.New("day of month must be between 1 and 28")
)

// ValidationError is returned when a task definition is rejected
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func invalid(field string, err error) error {
	return &ValidationError{Field: field, Err: err}
}
