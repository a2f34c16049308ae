package trainlog

import (
	"maps"
	"sync/atomic"
)

// Snapshot is the persisted form of the whole log: flat key -> bool | string.
// It is the storage/wire format shared with the snapshot repos and must stay stable.
type Snapshot map[string]any

// Clone returns a shallow copy; payloads are immutable scalars.
func (s Snapshot) Clone() Snapshot {
	if s == nil {
		return Snapshot{}
	}
	return maps.Clone(s)
}

var storeVersion atomic.Uint64

// LogStore is an immutable value holding the entire training log of a user.
// Every mutating method returns a new LogStore and leaves the receiver untouched,
// so a *LogStore can be read from any number of goroutines without locking.
type LogStore struct {
	entries Snapshot
	version uint64
}

func NewLogStore() *LogStore {
	return newLogStore(Snapshot{})
}

// NewLogStoreFromSnapshot copies the given snapshot into a new store.
func NewLogStoreFromSnapshot(snapshot Snapshot) *LogStore {
	return newLogStore(snapshot.Clone())
}

func newLogStore(entries Snapshot) *LogStore {
	return &LogStore{
		entries: entries,
		version: storeVersion.Add(1),
	}
}

// Version is unique per store value and grows with every new value created in this process.
func (s *LogStore) Version() uint64 {
	return s.version
}

func (s *LogStore) Len() int {
	return len(s.entries)
}

// Snapshot returns a copy of the store content, ready to be persisted.
func (s *LogStore) Snapshot() Snapshot {
	return s.entries.Clone()
}

// Completion reports whether the task is checked off; unset keys read as false.
func (s *LogStore) Completion(week int, day Day, taskIndex int) bool {
	done, ok := s.entries[EncodeKey(week, day, taskIndex, KindCompletion)].(bool)
	return ok && done
}

// Value returns the raw logged value; unset keys read as "".
func (s *LogStore) Value(week int, day Day, taskIndex int) string {
	val, _ := s.entries[EncodeKey(week, day, taskIndex, KindValue)].(string)
	return val
}

func (s *LogStore) SetCompletion(week int, day Day, taskIndex int, done bool) *LogStore {
	return s.with(EncodeKey(week, day, taskIndex, KindCompletion), done)
}

func (s *LogStore) ToggleCompletion(week int, day Day, taskIndex int) *LogStore {
	return s.SetCompletion(week, day, taskIndex, !s.Completion(week, day, taskIndex))
}

// SetValue stores the value exactly as given; it is interpreted only when deriving stats.
func (s *LogStore) SetValue(week int, day Day, taskIndex int, value string) *LogStore {
	return s.with(EncodeKey(week, day, taskIndex, KindValue), value)
}

// ReplaceAll drops everything in the store and takes over the given snapshot.
func (s *LogStore) ReplaceAll(snapshot Snapshot) *LogStore {
	return NewLogStoreFromSnapshot(snapshot)
}

func (s *LogStore) Reset() *LogStore {
	return NewLogStore()
}

// Equal compares store content, ignoring versions.
func (s *LogStore) Equal(other *LogStore) bool {
	if other == nil {
		return false
	}
	return SnapshotsEqual(s.entries, other.entries)
}

func (s *LogStore) with(key string, payload any) *LogStore {
	entries := make(Snapshot, len(s.entries)+1)
	maps.Copy(entries, s.entries)
	entries[key] = payload
	return newLogStore(entries)
}

// Entry is a decoded log entry.
type Entry struct {
	Key     Key
	Payload any
}

// Entries returns all decodable entries; keys that fail to decode are skipped.
func (s *LogStore) Entries() []Entry {
	entries := make([]Entry, 0, len(s.entries))
	for rawKey, payload := range s.entries {
		key, err := DecodeKey(rawKey)
		if err != nil {
			continue
		}
		entries = append(entries, Entry{Key: key, Payload: payload})
	}
	return entries
}

// SnapshotsEqual compares two snapshots key by key.
func SnapshotsEqual(a, b Snapshot) bool {
	if len(a) != len(b) {
		return false
	}
	for k, va := range a {
		vb, ok := b[k]
		if !ok || !payloadEqual(va, vb) {
			return false
		}
	}
	return true
}

func payloadEqual(a, b any) bool {
	switch av := a.(type) {
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case float64:
		bv, ok := b.(float64)
		return ok && av == bv
	case nil:
		return b == nil
	default:
		// drifted payload types (nested objects etc.) are never considered equal
		return false
	}
}
