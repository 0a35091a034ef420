package scheduler

import "errors"

var (
	// ErrInvalidExpression is returned when a cron expression does not parse
	ErrInvalidExpression = errors.New("invalid cron expression")

	// ErrInvalidTimezone is returned when the schedule timezone cannot be loaded
	ErrInvalidTimezone = errors.New("invalid schedule timezone")

	// ErrScheduleNotFound is returned when a schedule is not registered
	ErrScheduleNotFound = errors.New("schedule not found")
)
