package logsync

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/2beens/trainlog/internal/telemetry/metrics"
	"github.com/2beens/trainlog/internal/telemetry/tracing"
	"github.com/2beens/trainlog/internal/trainlog"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/multierr"
)

const defaultEchoTTL = 2 * time.Minute

type NewTrackerParams struct {
	Repo           SnapshotRepo
	Curriculum     trainlog.Curriculum
	EchoFilter     *EchoFilter
	// MetricsManager defaults to a manager on its own unexposed registry.
	MetricsManager *metrics.Manager
	// SaveTimeout bounds a single snapshot save; zero means no bound.
	SaveTimeout time.Duration
}

// Tracker owns the training log of one user in this instance.
//
// Local mutations and remote snapshots are applied one at a time under mu, and every
// local mutation is saved before mu is released, so a save in flight can never
// overwrite a remote snapshot applied after it. Reads go through an atomic pointer
// to the current immutable store and never wait on mu.
type Tracker struct {
	repo           SnapshotRepo
	curriculum     trainlog.Curriculum
	echoFilter     *EchoFilter
	metricsManager *metrics.Manager
	saveTimeout    time.Duration

	store atomic.Pointer[trainlog.LogStore]

	mu          sync.Mutex
	userID      string
	unsubscribe func()
	closed      bool

	subCtx    context.Context
	subCancel context.CancelFunc
}

func NewTracker(params NewTrackerParams) *Tracker {
	curriculum := params.Curriculum
	if curriculum == nil {
		curriculum = trainlog.NewStaticCurriculum()
	}
	echoFilter := params.EchoFilter
	if echoFilter == nil {
		echoFilter = NewEchoFilter(0, defaultEchoTTL)
	}
	metricsManager := params.MetricsManager
	if metricsManager == nil {
		metricsManager = metrics.NewManager("backend", "trainlog", prometheus.NewRegistry())
	}

	subCtx, subCancel := context.WithCancel(context.Background())
	t := &Tracker{
		repo:           params.Repo,
		curriculum:     curriculum,
		echoFilter:     echoFilter,
		metricsManager: metricsManager,
		saveTimeout:    params.SaveTimeout,
		subCtx:         subCtx,
		subCancel:      subCancel,
	}
	t.store.Store(trainlog.NewLogStore())

	return t
}

// UserID returns the current identity, empty if none was set yet.
func (t *Tracker) UserID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.userID
}

// SetIdentity switches the tracker to the given user: it subscribes to the user's
// snapshots and loads the latest one. A missing snapshot starts an empty log.
// Load or subscribe failures also leave an empty log and are returned as *SyncError.
func (t *Tracker) SetIdentity(ctx context.Context, userID string) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "tracker.trainlog.setIdentity")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	if userID == "" {
		return errors.New("empty user id")
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrTrackerClosed
	}
	if t.userID == userID {
		t.mu.Unlock()
		return nil
	}

	previousUnsubscribe := t.unsubscribe
	t.userID = userID
	t.unsubscribe = nil

	var syncErr error
	unsubscribe, subErr := t.repo.Subscribe(t.subCtx, userID, func(snapshot trainlog.Snapshot) {
		t.applyRemote(userID, snapshot)
	})
	if subErr != nil {
		log.Warnf("tracker: subscribe to [%s]: %s", userID, subErr)
		syncErr = multierr.Append(syncErr, &SyncError{UserID: userID, Op: "subscribe", Err: subErr})
	} else {
		t.unsubscribe = unsubscribe
	}

	snapshot, loadErr := t.repo.Load(ctx, userID)
	switch {
	case loadErr == nil:
		t.store.Store(trainlog.NewLogStoreFromSnapshot(snapshot))
	case errors.Is(loadErr, ErrSnapshotNotFound):
		log.Debugf("tracker: no snapshot for [%s] yet, starting empty", userID)
		t.store.Store(trainlog.NewLogStore())
	default:
		log.Warnf("tracker: load snapshot of [%s]: %s", userID, loadErr)
		t.store.Store(trainlog.NewLogStore())
		syncErr = multierr.Append(syncErr, &SyncError{UserID: userID, Op: "load", Err: loadErr})
	}
	span.SetAttributes(attribute.Int("entries", t.store.Load().Len()))
	t.mu.Unlock()

	if previousUnsubscribe != nil {
		previousUnsubscribe()
	}

	return syncErr
}

// Store returns the current log; the value is immutable and safe to share.
func (t *Tracker) Store() *trainlog.LogStore {
	return t.store.Load()
}

func (t *Tracker) PersonalBests() trainlog.PersonalBests {
	return trainlog.DerivePersonalBests(t.Store(), t.curriculum.Bindings())
}

func (t *Tracker) WeekProgress(week int) (*trainlog.WeekProgress, error) {
	return trainlog.BuildWeekProgress(t.Store(), t.curriculum, week)
}

func (t *Tracker) Curriculum() trainlog.Curriculum {
	return t.curriculum
}

func (t *Tracker) SetCompletion(ctx context.Context, week int, day trainlog.Day, taskIndex int, done bool) (*trainlog.LogStore, error) {
	if err := t.validateTask(week, day, taskIndex); err != nil {
		return t.Store(), err
	}
	return t.mutate(ctx, "set_completion", func(s *trainlog.LogStore) *trainlog.LogStore {
		return s.SetCompletion(week, day, taskIndex, done)
	})
}

func (t *Tracker) ToggleCompletion(ctx context.Context, week int, day trainlog.Day, taskIndex int) (*trainlog.LogStore, error) {
	if err := t.validateTask(week, day, taskIndex); err != nil {
		return t.Store(), err
	}
	return t.mutate(ctx, "toggle_completion", func(s *trainlog.LogStore) *trainlog.LogStore {
		return s.ToggleCompletion(week, day, taskIndex)
	})
}

func (t *Tracker) SetValue(ctx context.Context, week int, day trainlog.Day, taskIndex int, value string) (*trainlog.LogStore, error) {
	if err := t.validateTask(week, day, taskIndex); err != nil {
		return t.Store(), err
	}
	return t.mutate(ctx, "set_value", func(s *trainlog.LogStore) *trainlog.LogStore {
		return s.SetValue(week, day, taskIndex, value)
	})
}

// Reset wipes the whole log and persists the empty state.
func (t *Tracker) Reset(ctx context.Context) (*trainlog.LogStore, error) {
	return t.mutate(ctx, "reset", func(s *trainlog.LogStore) *trainlog.LogStore {
		return s.Reset()
	})
}

// Close stops the subscription. The tracker must not be used afterwards.
func (t *Tracker) Close() {
	t.mu.Lock()
	unsubscribe := t.unsubscribe
	t.unsubscribe = nil
	t.closed = true
	t.mu.Unlock()

	t.subCancel()
	if unsubscribe != nil {
		unsubscribe()
	}
}

func (t *Tracker) validateTask(week int, day trainlog.Day, taskIndex int) error {
	switch {
	case !trainlog.ValidWeek(week):
		return trainlog.ErrInvalidWeek
	case !day.IsValid():
		return trainlog.ErrInvalidDay
	}
	if _, ok := t.curriculum.Task(week, day, taskIndex); !ok {
		return trainlog.ErrInvalidTask
	}
	return nil
}

// mutate applies the change and saves the resulting store before releasing mu.
// Without an identity it is a no-op. A failed save keeps the new store and returns a *SyncError.
func (t *Tracker) mutate(ctx context.Context, op string, apply func(*trainlog.LogStore) *trainlog.LogStore) (_ *trainlog.LogStore, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "tracker.trainlog."+op)
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return t.store.Load(), ErrTrackerClosed
	}
	if t.userID == "" {
		log.Debugf("tracker: %s ignored, no identity", op)
		return t.store.Load(), nil
	}

	next := apply(t.store.Load())
	t.store.Store(next)
	t.metricsManager.CounterLogMutations.WithLabelValues(op).Inc()

	return next, t.save(ctx, next)
}

// save must be called with mu held.
func (t *Tracker) save(ctx context.Context, store *trainlog.LogStore) error {
	// the save outlives a cancelled caller, bounded by saveTimeout
	saveCtx := context.WithoutCancel(ctx)
	if t.saveTimeout > 0 {
		var cancel context.CancelFunc
		saveCtx, cancel = context.WithTimeout(saveCtx, t.saveTimeout)
		defer cancel()
	}

	snapshot := store.Snapshot()
	// remembered before the save, the echo can arrive before Save returns
	t.echoFilter.Remember(t.userID, snapshot)

	start := time.Now()
	err := t.repo.Save(saveCtx, t.userID, snapshot)
	t.metricsManager.HistSnapshotSaveDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		// no echo will come for it
		t.echoFilter.Forget(t.userID, snapshot)
		t.metricsManager.CounterSnapshotSaves.WithLabelValues("failure").Inc()
		log.Warnf("tracker: save snapshot of [%s]: %s", t.userID, err)
		return &SyncError{UserID: t.userID, Op: "save", Err: err}
	}

	t.metricsManager.CounterSnapshotSaves.WithLabelValues("success").Inc()
	return nil
}

func (t *Tracker) applyRemote(userID string, snapshot trainlog.Snapshot) {
	t.mu.Lock()
	defer t.mu.Unlock()

	outcome := t.remoteOutcome(userID, snapshot)
	if outcome == "applied" {
		t.store.Store(t.store.Load().ReplaceAll(snapshot))
		log.Debugf("tracker: applied remote snapshot of [%s] with %d entries", userID, len(snapshot))
	}
	t.metricsManager.CounterRemoteSnapshots.WithLabelValues(outcome).Inc()
}

func (t *Tracker) remoteOutcome(userID string, snapshot trainlog.Snapshot) string {
	switch {
	case t.closed || t.userID != userID:
		return "ignored"
	case t.echoFilter.Observe(userID, snapshot):
		return "echo"
	case trainlog.SnapshotsEqual(t.store.Load().Snapshot(), snapshot):
		return "unchanged"
	default:
		return "applied"
	}
}
