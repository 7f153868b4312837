// Package memory implements the job store on process-local maps. It is the
// default backend for development and tests, and the behavioral reference the
// hosted backends are held to.
package memory

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tradieiq/engine/internal/domain"
)

// Store keeps jobs in memory and pushes a full owner-scoped snapshot to every
// live subscription after each write.
type Store struct {
	logger *slog.Logger

	mu      sync.Mutex
	jobs    map[string]*domain.Job
	subs    map[string]map[int]*subscription
	nextSub int
}

func New(logger *slog.Logger) *Store {
	return &Store{
		logger: logger,
		jobs:   make(map[string]*domain.Job),
		subs:   make(map[string]map[int]*subscription),
	}
}

func (s *Store) Create(_ context.Context, ownerID string, draft domain.JobDraft) (string, error) {
	id := uuid.NewString()
	job := domain.NewJob(id, ownerID, draft, time.Now())

	s.mu.Lock()
	s.jobs[id] = &job
	s.notifyLocked(ownerID)
	s.mu.Unlock()

	s.logger.Debug("Job created", slog.String("job_id", id), slog.String("owner_id", ownerID))
	return id, nil
}

func (s *Store) Update(_ context.Context, ownerID, jobID string, patch domain.JobPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok || job.OwnerID != ownerID {
		return domain.ErrJobNotFound
	}

	patch.Apply(job)
	job.UpdatedAt = time.Now()
	s.notifyLocked(ownerID)
	return nil
}

func (s *Store) Delete(_ context.Context, ownerID, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok || job.OwnerID != ownerID {
		return domain.ErrJobNotFound
	}

	delete(s.jobs, jobID)
	s.notifyLocked(ownerID)
	return nil
}

// Subscribe registers a live feed for ownerID. The initial snapshot is
// already buffered when Subscribe returns.
func (s *Store) Subscribe(_ context.Context, ownerID string) (domain.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextSub++
	sub := &subscription{
		store: s,
		owner: ownerID,
		id:    s.nextSub,
		ch:    make(chan []domain.Job, 1),
	}
	if s.subs[ownerID] == nil {
		s.subs[ownerID] = make(map[int]*subscription)
	}
	s.subs[ownerID][sub.id] = sub

	sub.ch <- s.snapshotLocked(ownerID)
	return sub, nil
}

// notifyLocked pushes the current snapshot to every subscription for ownerID.
// Channels are buffered one deep and a pending snapshot is replaced, so a
// slow consumer only ever sees the latest state and a write never blocks.
func (s *Store) notifyLocked(ownerID string) {
	subs := s.subs[ownerID]
	if len(subs) == 0 {
		return
	}

	snapshot := s.snapshotLocked(ownerID)
	for _, sub := range subs {
		select {
		case sub.ch <- domain.CloneJobs(snapshot):
		default:
			select {
			case <-sub.ch:
			default:
			}
			sub.ch <- domain.CloneJobs(snapshot)
		}
	}
}

// snapshotLocked clones ownerID's jobs ordered by UpdatedAt descending.
func (s *Store) snapshotLocked(ownerID string) []domain.Job {
	var jobs []domain.Job
	for _, job := range s.jobs {
		if job.OwnerID == ownerID {
			jobs = append(jobs, job.Clone())
		}
	}
	sort.Slice(jobs, func(i, j int) bool {
		if !jobs[i].UpdatedAt.Equal(jobs[j].UpdatedAt) {
			return jobs[i].UpdatedAt.After(jobs[j].UpdatedAt)
		}
		return jobs[i].ID < jobs[j].ID
	})
	return jobs
}

type subscription struct {
	store *Store
	owner string
	id    int
	ch    chan []domain.Job
	once  sync.Once
}

func (s *subscription) Jobs() <-chan []domain.Job { return s.ch }

// Cancel deregisters the subscription and closes the channel. Registration
// and delivery both happen under the store mutex, so once Cancel returns no
// further push can arrive.
func (s *subscription) Cancel() {
	s.once.Do(func() {
		s.store.mu.Lock()
		defer s.store.mu.Unlock()

		delete(s.store.subs[s.owner], s.id)
		if len(s.store.subs[s.owner]) == 0 {
			delete(s.store.subs, s.owner)
		}
		close(s.ch)
	})
}
