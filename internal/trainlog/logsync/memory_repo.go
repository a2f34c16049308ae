package logsync

import (
	"context"
	"sync"

	"github.com/2beens/trainlog/internal/telemetry/tracing"
	"github.com/2beens/trainlog/internal/trainlog"
)

var _ SnapshotRepo = (*MemoryRepo)(nil)

// MemoryRepo keeps snapshots in process memory. Used in development mode and tests.
type MemoryRepo struct {
	mu          sync.Mutex
	snapshots   map[string]trainlog.Snapshot
	subscribers map[string]map[uint64]*mailbox
	nextSubID   uint64

	saveErr error
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		snapshots:   make(map[string]trainlog.Snapshot),
		subscribers: make(map[string]map[uint64]*mailbox),
	}
}

// FailSaves makes subsequent saves fail with err; nil restores normal behaviour.
func (r *MemoryRepo) FailSaves(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saveErr = err
}

func (r *MemoryRepo) Load(ctx context.Context, userID string) (_ trainlog.Snapshot, err error) {
	_, span := tracing.GlobalTracer.Start(ctx, "repo.trainlog.memory.load")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	r.mu.Lock()
	defer r.mu.Unlock()

	snapshot, ok := r.snapshots[userID]
	if !ok {
		return nil, ErrSnapshotNotFound
	}
	return snapshot.Clone(), nil
}

func (r *MemoryRepo) Save(ctx context.Context, userID string, snapshot trainlog.Snapshot) (err error) {
	_, span := tracing.GlobalTracer.Start(ctx, "repo.trainlog.memory.save")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.saveErr != nil {
		return r.saveErr
	}

	r.snapshots[userID] = snapshot.Clone()
	for _, mb := range r.subscribers[userID] {
		mb.post(snapshot.Clone())
	}

	return nil
}

func (r *MemoryRepo) Subscribe(ctx context.Context, userID string, onSnapshot func(trainlog.Snapshot)) (func(), error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextSubID++
	subID := r.nextSubID
	mb := newMailbox(ctx, onSnapshot)
	if r.subscribers[userID] == nil {
		r.subscribers[userID] = make(map[uint64]*mailbox)
	}
	r.subscribers[userID][subID] = mb

	return func() {
		r.mu.Lock()
		delete(r.subscribers[userID], subID)
		if len(r.subscribers[userID]) == 0 {
			delete(r.subscribers, userID)
		}
		r.mu.Unlock()
		mb.stop()
	}, nil
}

// Subscribers returns the number of active subscriptions of the user.
func (r *MemoryRepo) Subscribers(userID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subscribers[userID])
}
