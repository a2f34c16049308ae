package logsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/2beens/trainlog/internal/trainlog"
)

var ErrSnapshotNotFound = errors.New("snapshot not found")

//go:generate mockgen -source=$GOFILE -destination=mocks_test.go -package=logsync_test

// SnapshotRepo persists the whole training log of a user as one snapshot.
// Saves are last-write-wins; there is no merge.
type SnapshotRepo interface {
	// Load returns the latest snapshot or ErrSnapshotNotFound.
	Load(ctx context.Context, userID string) (trainlog.Snapshot, error)
	Save(ctx context.Context, userID string, snapshot trainlog.Snapshot) error
	// Subscribe calls onSnapshot with every snapshot saved for the user, own saves included,
	// until unsubscribe is called or ctx is done.
	Subscribe(ctx context.Context, userID string, onSnapshot func(trainlog.Snapshot)) (unsubscribe func(), err error)
}

func encodeSnapshot(snapshot trainlog.Snapshot) ([]byte, error) {
	if snapshot == nil {
		snapshot = trainlog.Snapshot{}
	}
	b, err := json.Marshal(snapshot)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	return b, nil
}

func decodeSnapshot(b []byte) (trainlog.Snapshot, error) {
	snapshot := trainlog.Snapshot{}
	if err := json.Unmarshal(b, &snapshot); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	if snapshot == nil {
		// a stored JSON null
		snapshot = trainlog.Snapshot{}
	}
	return snapshot, nil
}
