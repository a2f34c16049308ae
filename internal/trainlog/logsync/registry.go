package logsync

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/2beens/trainlog/internal/telemetry/metrics"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
)

type registryEntry struct {
	tracker  *Tracker
	ready    chan struct{}
	err      error
	lastUsed atomic.Int64
}

func (e *registryEntry) touch() {
	e.lastUsed.Store(time.Now().UnixNano())
}

// Registry holds one Tracker per user id for this instance, created on first use.
type Registry struct {
	params NewTrackerParams

	mu      sync.Mutex
	entries map[string]*registryEntry
	closed  bool
}

func NewRegistry(params NewTrackerParams) *Registry {
	// one filter and one metrics manager shared by all trackers
	if params.EchoFilter == nil {
		params.EchoFilter = NewEchoFilter(0, defaultEchoTTL)
	}
	if params.MetricsManager == nil {
		params.MetricsManager = metrics.NewManager("backend", "trainlog", prometheus.NewRegistry())
	}
	return &Registry{
		params:  params,
		entries: make(map[string]*registryEntry),
	}
}

// Tracker returns the tracker of the user. The first call for a user creates the
// tracker and sets its identity; concurrent callers wait for that to finish.
// A *SyncError from the initial load is returned together with a usable tracker.
func (r *Registry) Tracker(ctx context.Context, userID string) (*Tracker, error) {
	if userID == "" {
		return nil, errors.New("empty user id")
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrTrackerClosed
	}

	entry, ok := r.entries[userID]
	if ok {
		// touched under mu, so CloseIdle cannot pick the entry after this point
		entry.touch()
		r.mu.Unlock()
		select {
		case <-entry.ready:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if entry.tracker == nil {
			return nil, entry.err
		}
		entry.touch()
		return entry.tracker, nil
	}

	entry = &registryEntry{ready: make(chan struct{})}
	entry.touch()
	r.entries[userID] = entry
	r.mu.Unlock()

	tracker := NewTracker(r.params)
	err := tracker.SetIdentity(ctx, userID)
	if err != nil && !errors.Is(err, ErrSync) {
		tracker.Close()
		entry.err = err
		r.mu.Lock()
		delete(r.entries, userID)
		r.mu.Unlock()
		close(entry.ready)
		return nil, err
	}

	entry.tracker = tracker
	close(entry.ready)
	r.updateGauge()

	return tracker, err
}

// CloseIdle closes and forgets trackers not used within maxIdle.
func (r *Registry) CloseIdle(maxIdle time.Duration) int {
	threshold := time.Now().Add(-maxIdle).UnixNano()

	var idle []*Tracker
	r.mu.Lock()
	for userID, entry := range r.entries {
		select {
		case <-entry.ready:
		default:
			continue
		}
		if entry.tracker != nil && entry.lastUsed.Load() < threshold {
			idle = append(idle, entry.tracker)
			delete(r.entries, userID)
		}
	}
	r.mu.Unlock()

	for _, t := range idle {
		t.Close()
	}
	if len(idle) > 0 {
		log.Debugf("tracker registry: closed %d idle trackers", len(idle))
		r.updateGauge()
	}

	return len(idle)
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Close closes all trackers; later Tracker calls fail with ErrTrackerClosed.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	entries := r.entries
	r.entries = make(map[string]*registryEntry)
	r.mu.Unlock()

	for _, entry := range entries {
		<-entry.ready
		if entry.tracker != nil {
			entry.tracker.Close()
		}
	}
	r.updateGauge()
}

func (r *Registry) updateGauge() {
	r.params.MetricsManager.GaugeActiveTrackers.Set(float64(r.Len()))
}
