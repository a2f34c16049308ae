package logsync

import (
	"bytes"
	"crypto/sha256"
	"time"

	"github.com/2beens/trainlog/internal/trainlog"

	"github.com/coocood/freecache"
	log "github.com/sirupsen/logrus"
)

const (
	defaultEchoCacheSize = 4 * 1024 * 1024
	// oldest outstanding saves are dropped beyond this
	maxPendingEchoes = 64
)

// EchoFilter tracks, per user, the checksums of snapshots this instance saved whose
// echo has not come back over the subscription yet, oldest first.
//
// An incoming snapshot matching an outstanding save is an echo: it and every older
// outstanding save are consumed. Anything else is a change made elsewhere, which
// supersedes all outstanding saves, so the user's list is dropped. A snapshot equal to
// an earlier own save therefore counts as an echo only while that save is outstanding.
//
// Calls for the same user must not run concurrently (the tracker holds its lock).
type EchoFilter struct {
	cache     *freecache.Cache
	ttlSecond int
}

func NewEchoFilter(cacheSize int, ttl time.Duration) *EchoFilter {
	if cacheSize <= 0 {
		cacheSize = defaultEchoCacheSize
	}
	ttlSecond := int(ttl.Seconds())
	if ttlSecond <= 0 {
		ttlSecond = 60
	}
	return &EchoFilter{
		cache:     freecache.NewCache(cacheSize),
		ttlSecond: ttlSecond,
	}
}

// Remember records a save of snapshot by this instance as outstanding.
func (f *EchoFilter) Remember(userID string, snapshot trainlog.Snapshot) {
	sum, ok := snapshotChecksum(snapshot)
	if !ok {
		return
	}
	pending := append(f.pending(userID), sum)
	if len(pending) > maxPendingEchoes {
		pending = pending[len(pending)-maxPendingEchoes:]
	}
	f.store(userID, pending)
}

// Forget drops the newest outstanding save of snapshot, used when the save failed.
func (f *EchoFilter) Forget(userID string, snapshot trainlog.Snapshot) {
	sum, ok := snapshotChecksum(snapshot)
	if !ok {
		return
	}
	pending := f.pending(userID)
	for i := len(pending) - 1; i >= 0; i-- {
		if bytes.Equal(pending[i], sum) {
			pending = append(pending[:i], pending[i+1:]...)
			f.store(userID, pending)
			return
		}
	}
}

// Observe reports whether snapshot is the echo of an outstanding save and updates
// the outstanding list as described on EchoFilter.
func (f *EchoFilter) Observe(userID string, snapshot trainlog.Snapshot) bool {
	pending := f.pending(userID)
	if len(pending) == 0 {
		return false
	}

	sum, ok := snapshotChecksum(snapshot)
	if ok {
		for i, p := range pending {
			if bytes.Equal(p, sum) {
				f.store(userID, pending[i+1:])
				return true
			}
		}
	}

	f.store(userID, nil)
	return false
}

// Pending returns the number of outstanding saves of the user.
func (f *EchoFilter) Pending(userID string) int {
	return len(f.pending(userID))
}

func (f *EchoFilter) Clear() {
	f.cache.Clear()
}

func (f *EchoFilter) pending(userID string) [][]byte {
	raw, err := f.cache.Get(echoKey(userID))
	if err != nil {
		return nil
	}
	pending := make([][]byte, 0, len(raw)/sha256.Size+1)
	for len(raw) >= sha256.Size {
		pending = append(pending, raw[:sha256.Size])
		raw = raw[sha256.Size:]
	}
	return pending
}

func (f *EchoFilter) store(userID string, pending [][]byte) {
	if len(pending) == 0 {
		f.cache.Del(echoKey(userID))
		return
	}
	if err := f.cache.Set(echoKey(userID), bytes.Join(pending, nil), f.ttlSecond); err != nil {
		log.Warnf("echo filter: store outstanding saves of [%s]: %s", userID, err)
	}
}

func echoKey(userID string) []byte {
	return []byte("echo::" + userID)
}

// snapshotChecksum is the sha256 of the canonical json; encoding/json sorts map keys.
func snapshotChecksum(snapshot trainlog.Snapshot) ([]byte, bool) {
	b, err := encodeSnapshot(snapshot)
	if err != nil {
		return nil, false
	}
	sum := sha256.Sum256(b)
	return sum[:], true
}
