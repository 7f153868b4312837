// Package gateway holds the pieces shared by the auth gateway
// implementations: a broadcaster that fans identity changes out to listeners
// with the ordering guarantees the session state machine relies on.
package gateway

import (
	"log/slog"
	"sync"

	"github.com/tradieiq/engine/internal/domain"
)

// dispatch is one unit of work for the broadcast loop. A listener index >= 0
// means a replay of the current identity to that listener only; -1 means
// deliver id to everyone.
type dispatch struct {
	id   *domain.Identity
	only int
}

// Broadcaster delivers identity change notifications on a single dispatch
// goroutine, in the order they were published, to listeners in the order they
// registered. A listener that registers after the first notification is
// replayed the current identity, so late listeners never sit on a stale
// loading state.
type Broadcaster struct {
	logger *slog.Logger

	// mu also serializes sends on queue so Close can safely close it.
	mu       sync.Mutex
	queue    chan dispatch
	fns      []func(*domain.Identity)
	current  *domain.Identity
	notified bool
	closed   bool

	done chan struct{}
}

func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	b := &Broadcaster{
		logger: logger,
		queue:  make(chan dispatch, 16),
		done:   make(chan struct{}),
	}
	go b.loop()
	return b
}

// OnChange registers fn. If a notification has already been published, fn is
// scheduled to receive the current identity right away.
func (b *Broadcaster) OnChange(fn func(*domain.Identity)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}

	b.fns = append(b.fns, fn)
	if b.notified {
		b.queue <- dispatch{only: len(b.fns) - 1}
	}
}

// Notify publishes an identity change to every listener. The value is
// recorded as current before delivery starts, so Current never lags the
// notification that is about to arrive.
func (b *Broadcaster) Notify(id *domain.Identity) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}

	b.current = cloneIdentity(id)
	b.notified = true
	b.logger.Debug("Identity change published", slog.Bool("signed_in", id != nil))
	b.queue <- dispatch{id: cloneIdentity(id), only: -1}
}

// Current returns the most recently published identity, or nil before the
// first notification and while signed out.
func (b *Broadcaster) Current() *domain.Identity {
	b.mu.Lock()
	defer b.mu.Unlock()
	return cloneIdentity(b.current)
}

// Close stops the dispatch goroutine after the queued notifications have been
// delivered. Notify and OnChange become no-ops.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	close(b.queue)
	b.mu.Unlock()

	<-b.done
}

func (b *Broadcaster) loop() {
	defer close(b.done)

	for d := range b.queue {
		b.mu.Lock()
		fns := append(([]func(*domain.Identity))(nil), b.fns...)
		id := d.id
		if d.only >= 0 {
			// Replays resolve the identity at delivery time, so a listener
			// that registered during a sign-in still ends on the latest
			// state.
			id = cloneIdentity(b.current)
		}
		b.mu.Unlock()

		if d.only >= 0 {
			if d.only < len(fns) {
				fns[d.only](id)
			}
			continue
		}
		for _, fn := range fns {
			fn(id)
		}
	}
}

func cloneIdentity(id *domain.Identity) *domain.Identity {
	if id == nil {
		return nil
	}
	c := *id
	return &c
}
