package logsync

import (
	"errors"
	"fmt"
)

var (
	// ErrSync matches every *SyncError.
	ErrSync          = errors.New("training log sync failure")
	ErrTrackerClosed = errors.New("tracker closed")
)

// SyncError reports a failed exchange with the snapshot repo. It is a warning:
// the local store stays in place and usable.
type SyncError struct {
	UserID string
	Op     string
	Err    error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("sync %s of [%s]: %s", e.Op, e.UserID, e.Err)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

func (e *SyncError) Is(target error) bool {
	return target == ErrSync
}
