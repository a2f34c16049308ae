package trainlog

import "errors"

var (
	ErrInvalidWeek = errors.New("invalid week")
	ErrInvalidDay  = errors.New("invalid day")
	ErrInvalidTask = errors.New("invalid task")
)
