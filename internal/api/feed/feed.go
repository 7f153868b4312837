// Package feed fans engine snapshots out to streaming clients. The feed sits
// in the engine's renderer seat: every state change lands here and is pushed
// to each connected client, latest-wins per client so a slow reader never
// stalls the engine.
package feed

import (
	"log/slog"
	"sync"

	"github.com/tradieiq/engine/internal/domain"
)

type StateFeed struct {
	logger *slog.Logger

	mu     sync.Mutex
	last   *domain.Snapshot
	subs   map[int]chan domain.Snapshot
	nextID int
	closed bool
}

func New(logger *slog.Logger) *StateFeed {
	return &StateFeed{
		logger: logger,
		subs:   make(map[int]chan domain.Snapshot),
	}
}

// Render implements domain.Renderer. It never blocks: each subscriber channel
// is buffered one deep and a pending snapshot nobody has read yet is replaced
// by the newer one.
func (f *StateFeed) Render(snap domain.Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return
	}
	f.last = &snap

	for _, ch := range f.subs {
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
}

// Subscribe registers a streaming client. The current snapshot, if any, is
// already buffered on the returned channel so a new client draws immediately.
func (f *StateFeed) Subscribe() (int, <-chan domain.Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := f.nextID
	f.nextID++

	ch := make(chan domain.Snapshot, 1)
	if f.closed {
		close(ch)
		return id, ch
	}
	if f.last != nil {
		ch <- *f.last
	}
	f.subs[id] = ch

	f.logger.Debug("State feed subscriber attached", slog.Int("subscriber_id", id))
	return id, ch
}

// Unsubscribe detaches a client and closes its channel.
func (f *StateFeed) Unsubscribe(id int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	ch, ok := f.subs[id]
	if !ok {
		return
	}
	delete(f.subs, id)
	close(ch)

	f.logger.Debug("State feed subscriber detached", slog.Int("subscriber_id", id))
}

// Last returns the most recent snapshot, if one has been rendered.
func (f *StateFeed) Last() (domain.Snapshot, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.last == nil {
		return domain.Snapshot{}, false
	}
	return *f.last, true
}

// Close detaches every client. Later Render calls are dropped.
func (f *StateFeed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return
	}
	f.closed = true

	for id, ch := range f.subs {
		delete(f.subs, id)
		close(ch)
	}
}
