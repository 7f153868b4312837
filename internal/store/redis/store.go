// Package redis implements the job store on Redis. Jobs live as JSON
// documents keyed by id, a set per owner serves as the index, and writes
// publish to a per-owner pub/sub channel. Subscriptions requery the full
// owner scope on every notification and push the result, so consumers always
// replace, never merge.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/tradieiq/engine/internal/domain"
)

func jobKey(jobID string) string     { return "job:" + jobID }
func ownerKey(ownerID string) string { return "owner:" + ownerID + ":jobs" }
func channel(ownerID string) string  { return "jobs:changed:" + ownerID }

// Store is a Redis-backed domain.JobStore.
type Store struct {
	rdb    *goredis.Client
	logger *slog.Logger
}

func New(rdb *goredis.Client, logger *slog.Logger) *Store {
	return &Store{rdb: rdb, logger: logger}
}

// jobDoc is the persisted document shape.
type jobDoc struct {
	ID         string    `json:"id"`
	OwnerID    string    `json:"owner_id"`
	Client     string    `json:"client"`
	Address    string    `json:"address"`
	Value      string    `json:"value"`
	Status     string    `json:"status"`
	Transcript string    `json:"transcript"`
	Tasks      []string  `json:"tasks"`
	Materials  []string  `json:"materials"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func docFrom(j domain.Job) jobDoc {
	return jobDoc{
		ID:         j.ID,
		OwnerID:    j.OwnerID,
		Client:     j.Client,
		Address:    j.Address,
		Value:      j.Value,
		Status:     j.Status,
		Transcript: j.Transcript,
		Tasks:      j.Tasks,
		Materials:  j.Materials,
		CreatedAt:  j.CreatedAt,
		UpdatedAt:  j.UpdatedAt,
	}
}

func (d jobDoc) job() domain.Job {
	return domain.Job{
		ID:         d.ID,
		OwnerID:    d.OwnerID,
		Client:     d.Client,
		Address:    d.Address,
		Value:      d.Value,
		Status:     d.Status,
		Transcript: d.Transcript,
		Tasks:      d.Tasks,
		Materials:  d.Materials,
		CreatedAt:  d.CreatedAt,
		UpdatedAt:  d.UpdatedAt,
	}
}

func (s *Store) Create(ctx context.Context, ownerID string, draft domain.JobDraft) (string, error) {
	id := uuid.NewString()
	job := domain.NewJob(id, ownerID, draft, time.Now().UTC())

	data, err := json.Marshal(docFrom(job))
	if err != nil {
		return "", fmt.Errorf("marshal job: %w", err)
	}

	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, jobKey(id), data, 0)
	pipe.SAdd(ctx, ownerKey(ownerID), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("create job: %w", err)
	}

	s.publish(ctx, ownerID)
	return id, nil
}

func (s *Store) Update(ctx context.Context, ownerID, jobID string, patch domain.JobPatch) error {
	job, err := s.get(ctx, ownerID, jobID)
	if err != nil {
		return err
	}

	patch.Apply(&job)
	job.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(docFrom(job))
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := s.rdb.Set(ctx, jobKey(jobID), data, 0).Err(); err != nil {
		return fmt.Errorf("update job: %w", err)
	}

	s.publish(ctx, ownerID)
	return nil
}

func (s *Store) Delete(ctx context.Context, ownerID, jobID string) error {
	if _, err := s.get(ctx, ownerID, jobID); err != nil {
		return err
	}

	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, jobKey(jobID))
	pipe.SRem(ctx, ownerKey(ownerID), jobID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete job: %w", err)
	}

	s.publish(ctx, ownerID)
	return nil
}

// Subscribe opens the pub/sub channel before the first query so no change
// between the two is missed, then hands delivery to a goroutine that
// requeries on every notification.
func (s *Store) Subscribe(ctx context.Context, ownerID string) (domain.Subscription, error) {
	pubsub := s.rdb.Subscribe(ctx, channel(ownerID))
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribe to %s: %w", channel(ownerID), err)
	}

	initial, err := s.query(ctx, ownerID)
	if err != nil {
		pubsub.Close()
		return nil, err
	}

	sub := &subscription{
		pubsub: pubsub,
		out:    make(chan []domain.Job, 1),
		done:   make(chan struct{}),
	}
	sub.out <- initial

	go s.deliver(ctx, ownerID, sub)
	return sub, nil
}

func (s *Store) deliver(ctx context.Context, ownerID string, sub *subscription) {
	defer close(sub.done)
	defer close(sub.out)

	for range sub.pubsub.Channel() {
		jobs, err := s.query(ctx, ownerID)
		if err != nil {
			s.logger.Warn("Requery after change notification failed",
				slog.String("owner_id", ownerID),
				slog.String("error", err.Error()),
			)
			continue
		}
		sub.push(jobs)
	}
}

// get loads one job and enforces the owner scope. Ids outside the scope look
// exactly like missing ids.
func (s *Store) get(ctx context.Context, ownerID, jobID string) (domain.Job, error) {
	data, err := s.rdb.Get(ctx, jobKey(jobID)).Bytes()
	if err == goredis.Nil {
		return domain.Job{}, domain.ErrJobNotFound
	}
	if err != nil {
		return domain.Job{}, fmt.Errorf("load job: %w", err)
	}

	var doc jobDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return domain.Job{}, fmt.Errorf("decode job %s: %w", jobID, err)
	}
	if doc.OwnerID != ownerID {
		return domain.Job{}, domain.ErrJobNotFound
	}
	return doc.job(), nil
}

// query loads the full owner scope ordered by UpdatedAt descending.
func (s *Store) query(ctx context.Context, ownerID string) ([]domain.Job, error) {
	ids, err := s.rdb.SMembers(ctx, ownerKey(ownerID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list owner jobs: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = jobKey(id)
	}
	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load owner jobs: %w", err)
	}

	jobs := make([]domain.Job, 0, len(vals))
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			// Index entry without a document; skip it.
			continue
		}
		var doc jobDoc
		if err := json.Unmarshal([]byte(raw), &doc); err != nil {
			s.logger.Warn("Skipping undecodable job document",
				slog.String("job_id", ids[i]),
				slog.String("error", err.Error()),
			)
			continue
		}
		jobs = append(jobs, doc.job())
	}

	sort.Slice(jobs, func(i, j int) bool {
		if !jobs[i].UpdatedAt.Equal(jobs[j].UpdatedAt) {
			return jobs[i].UpdatedAt.After(jobs[j].UpdatedAt)
		}
		return jobs[i].ID < jobs[j].ID
	})
	return jobs, nil
}

// publish is best effort: the write is already durable, a lost notification
// only delays the next push.
func (s *Store) publish(ctx context.Context, ownerID string) {
	if err := s.rdb.Publish(ctx, channel(ownerID), "changed").Err(); err != nil {
		s.logger.Warn("Failed to publish change notification",
			slog.String("owner_id", ownerID),
			slog.String("error", err.Error()),
		)
	}
}

type subscription struct {
	pubsub *goredis.PubSub
	out    chan []domain.Job
	done   chan struct{}
	once   sync.Once
}

func (s *subscription) Jobs() <-chan []domain.Job { return s.out }

// push delivers latest-wins: a pending snapshot nobody has read yet is
// replaced rather than queued behind.
func (s *subscription) push(jobs []domain.Job) {
	select {
	case s.out <- jobs:
	default:
		select {
		case <-s.out:
		default:
		}
		s.out <- jobs
	}
}

// Cancel closes the pub/sub channel and waits for the delivery goroutine to
// stop, so no push can land after it returns.
func (s *subscription) Cancel() {
	s.once.Do(func() {
		_ = s.pubsub.Close()
		<-s.done
	})
}
