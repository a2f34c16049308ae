package logsync

import (
	"context"
	"sync"

	"github.com/2beens/trainlog/internal/trainlog"

	log "github.com/sirupsen/logrus"
)

// beyond this the oldest undelivered snapshots are dropped
const maxMailboxBacklog = 256

// mailbox delivers snapshots to a subscriber on its own goroutine, so a repo never
// blocks on a slow subscriber. Snapshots are delivered one by one in posting order:
// the tracker's echo accounting expects one delivery per save.
type mailbox struct {
	mu      sync.Mutex
	backlog []trainlog.Snapshot

	signal   chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func newMailbox(ctx context.Context, onSnapshot func(trainlog.Snapshot)) *mailbox {
	m := &mailbox{
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case <-m.done:
				return
			case <-m.signal:
				for _, snapshot := range m.take() {
					select {
					case <-ctx.Done():
						return
					case <-m.done:
						return
					default:
					}
					onSnapshot(snapshot)
				}
			}
		}
	}()

	return m
}

func (m *mailbox) post(snapshot trainlog.Snapshot) {
	if snapshot == nil {
		snapshot = trainlog.Snapshot{}
	}

	m.mu.Lock()
	m.backlog = append(m.backlog, snapshot)
	if dropped := len(m.backlog) - maxMailboxBacklog; dropped > 0 {
		log.Warnf("mailbox: subscriber too slow, dropping %d snapshots", dropped)
		m.backlog = m.backlog[dropped:]
	}
	m.mu.Unlock()

	select {
	case m.signal <- struct{}{}:
	default:
		// already signalled, the backlog gets picked up
	}
}

func (m *mailbox) take() []trainlog.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	backlog := m.backlog
	m.backlog = nil
	return backlog
}

// stop must not be called from within onSnapshot.
func (m *mailbox) stop() {
	m.stopOnce.Do(func() {
		close(m.done)
	})
	m.wg.Wait()
}
