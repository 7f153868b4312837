// Package jobcache mirrors the owner-scoped live job query while a session
// is signed in. The cache is reconciled by full replacement: every push from
// the subscription swaps the whole list and recomputes the aggregates, so
// its correctness reduces to one pure function over the latest snapshot.
//
// Writes never touch the cache. Create, update, and delete go straight to
// the store and the cache catches up on the next push, which keeps a single
// source of truth at the cost of a brief delay between a write and its
// visible effect.
package jobcache

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/tradieiq/engine/internal/domain"
)

// Subscriber is the slice of the job store the cache needs.
type Subscriber interface {
	Subscribe(ctx context.Context, ownerID string) (domain.Subscription, error)
}

// PushFunc is invoked after every applied push with a copy of the new list
// and its aggregates. It runs on the cache's delivery goroutine with no
// cache lock held, so it may call back into the cache.
type PushFunc func(jobs []domain.Job, aggs domain.Aggregates)

// Cache is the in-memory mirror of one owner's live job query.
type Cache struct {
	store  Subscriber
	logger *slog.Logger

	// lifecycle serializes Activate and Deactivate so a new subscription can
	// never be opened before the previous one is confirmed cancelled.
	lifecycle sync.Mutex
	sub       domain.Subscription
	done      chan struct{}

	mu      sync.RWMutex
	jobs    []domain.Job
	aggs    domain.Aggregates
	ownerID string
	active  bool
}

// New creates an inactive cache backed by store.
func New(store Subscriber, logger *slog.Logger) *Cache {
	return &Cache{
		store:  store,
		logger: logger,
	}
}

// Activate opens the live subscription for ownerID and starts applying
// pushes. Any previous subscription is cancelled, drained, and cleared
// first: cancel happens-before clear happens-before the new subscribe, so a
// push from a previous identity can never land in the new session's cache.
func (c *Cache) Activate(ctx context.Context, ownerID string, onPush PushFunc) error {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	c.deactivateLocked()

	sub, err := c.store.Subscribe(ctx, ownerID)
	if err != nil {
		c.logger.Error("Failed to subscribe to job feed",
			slog.String("owner_id", ownerID),
			slog.String("error", err.Error()),
		)
		return domain.NewStoreError("subscribe", err)
	}

	done := make(chan struct{})
	c.sub = sub
	c.done = done

	c.mu.Lock()
	c.ownerID = ownerID
	c.active = true
	c.mu.Unlock()

	c.logger.Info("Job cache activated",
		slog.String("owner_id", ownerID),
	)

	go c.deliver(sub, done, onPush)
	return nil
}

// Deactivate cancels the subscription, waits for the delivery goroutine to
// stop, and only then clears the cache. Safe to call when already inactive.
func (c *Cache) Deactivate() {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()
	c.deactivateLocked()
}

func (c *Cache) deactivateLocked() {
	if c.sub == nil {
		return
	}

	c.sub.Cancel()
	<-c.done
	c.sub = nil
	c.done = nil

	c.mu.Lock()
	owner := c.ownerID
	n := len(c.jobs)
	c.jobs = nil
	c.aggs = domain.Aggregates{}
	c.ownerID = ""
	c.active = false
	c.mu.Unlock()

	c.logger.Info("Job cache deactivated",
		slog.String("owner_id", owner),
		slog.Int("discarded_jobs", n),
	)
}

// deliver applies pushes until the subscription channel closes.
func (c *Cache) deliver(sub domain.Subscription, done chan struct{}, onPush PushFunc) {
	defer close(done)

	for snapshot := range sub.Jobs() {
		c.apply(snapshot, onPush)
	}
}

// apply replaces the cached list with snapshot and recomputes aggregates.
func (c *Cache) apply(snapshot []domain.Job, onPush PushFunc) {
	jobs := domain.CloneJobs(snapshot)
	aggs := domain.ComputeAggregates(jobs, time.Now())

	c.mu.Lock()
	c.jobs = jobs
	c.aggs = aggs
	owner := c.ownerID
	c.mu.Unlock()

	c.logger.Debug("Job cache replaced",
		slog.String("owner_id", owner),
		slog.Int("jobs", len(jobs)),
		slog.Int("active", aggs.ActiveCount),
	)

	if onPush != nil {
		onPush(domain.CloneJobs(jobs), aggs)
	}
}

// Active reports whether a subscription is currently live.
func (c *Cache) Active() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.active
}

// OwnerID returns the owner the cache is scoped to, or "" when inactive.
func (c *Cache) OwnerID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ownerID
}

// Jobs returns a copy of the cached list in backend order (UpdatedAt
// descending). Mutating the returned slice does not affect the cache.
func (c *Cache) Jobs() []domain.Job {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return domain.CloneJobs(c.jobs)
}

// Aggregates returns the aggregates computed at the last push.
func (c *Cache) Aggregates() domain.Aggregates {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.aggs
}

// Contains reports whether a job id is present in the cached list.
func (c *Cache) Contains(jobID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for i := range c.jobs {
		if c.jobs[i].ID == jobID {
			return true
		}
	}
	return false
}

// Len returns the number of cached jobs.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.jobs)
}
