// Package postgres implements the job store on PostgreSQL with RabbitMQ
// change notifications. Rows are the source of truth; every write publishes
// to a per-owner routing key and subscribers requery the owner's rows on each
// notification, so a lost message is recovered by the next one.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/tradieiq/engine/internal/domain"
	"github.com/tradieiq/engine/shared/postgresql"
	"github.com/tradieiq/engine/shared/rabbitmq"
)

func routingKey(ownerID string) string { return "jobs.changed." + ownerID }

const schema = `
CREATE TABLE IF NOT EXISTS jobs (
	job_id      TEXT PRIMARY KEY,
	owner_id    TEXT NOT NULL,
	client      TEXT NOT NULL DEFAULT '',
	address     TEXT NOT NULL DEFAULT '',
	value       TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL DEFAULT 'new',
	transcript  TEXT NOT NULL DEFAULT '',
	tasks       TEXT[],
	materials   TEXT[],
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_jobs_owner_updated ON jobs (owner_id, updated_at DESC);
`

// Store is a PostgreSQL-backed domain.JobStore.
type Store struct {
	db     *sqlx.DB
	mq     *rabbitmq.Client
	logger *slog.Logger
}

func New(pg *postgresql.Client, mq *rabbitmq.Client, logger *slog.Logger) *Store {
	return &Store{
		db:     pg.GetDB(),
		mq:     mq,
		logger: logger,
	}
}

// EnsureSchema creates the jobs table and its index if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to ensure jobs schema: %w", err)
	}
	return nil
}

type jobRow struct {
	JobID      string         `db:"job_id"`
	OwnerID    string         `db:"owner_id"`
	Client     string         `db:"client"`
	Address    string         `db:"address"`
	Value      string         `db:"value"`
	Status     string         `db:"status"`
	Transcript string         `db:"transcript"`
	Tasks      pq.StringArray `db:"tasks"`
	Materials  pq.StringArray `db:"materials"`
	CreatedAt  time.Time      `db:"created_at"`
	UpdatedAt  time.Time      `db:"updated_at"`
}

func (r jobRow) job() domain.Job {
	return domain.Job{
		ID:         r.JobID,
		OwnerID:    r.OwnerID,
		Client:     r.Client,
		Address:    r.Address,
		Value:      r.Value,
		Status:     r.Status,
		Transcript: r.Transcript,
		Tasks:      r.Tasks,
		Materials:  r.Materials,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
}

func (s *Store) Create(ctx context.Context, ownerID string, draft domain.JobDraft) (string, error) {
	id := uuid.NewString()
	job := domain.NewJob(id, ownerID, draft, time.Now().UTC())

	query := `
		INSERT INTO jobs (
			job_id, owner_id, client, address, value,
			status, transcript, tasks, materials, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10, $11
		)
	`

	_, err := s.db.ExecContext(
		ctx,
		query,
		job.ID,
		job.OwnerID,
		job.Client,
		job.Address,
		job.Value,
		job.Status,
		job.Transcript,
		pq.StringArray(job.Tasks),
		pq.StringArray(job.Materials),
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		return "", fmt.Errorf("failed to create job: %w", err)
	}

	s.notify(ownerID, id, "created")
	return id, nil
}

func (s *Store) Update(ctx context.Context, ownerID, jobID string, patch domain.JobPatch) error {
	query, args := buildUpdate(ownerID, jobID, patch, time.Now().UTC())

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if affected == 0 {
		return domain.ErrJobNotFound
	}

	s.notify(ownerID, jobID, "updated")
	return nil
}

// buildUpdate assembles the SET list from the non-nil patch fields. The
// owner_id condition makes ids outside the scope indistinguishable from
// missing ones.
func buildUpdate(ownerID, jobID string, patch domain.JobPatch, now time.Time) (string, []interface{}) {
	query := "UPDATE jobs SET "
	args := []interface{}{}
	argIdx := 1

	set := func(column string, value interface{}) {
		query += fmt.Sprintf("%s = $%d, ", column, argIdx)
		args = append(args, value)
		argIdx++
	}

	if patch.Status != nil {
		set("status", *patch.Status)
	}
	if patch.Value != nil {
		set("value", *patch.Value)
	}
	if patch.Client != nil {
		set("client", *patch.Client)
	}
	if patch.Address != nil {
		set("address", *patch.Address)
	}
	if patch.Transcript != nil {
		set("transcript", *patch.Transcript)
	}
	if patch.Tasks != nil {
		set("tasks", pq.StringArray(*patch.Tasks))
	}
	if patch.Materials != nil {
		set("materials", pq.StringArray(*patch.Materials))
	}

	query += fmt.Sprintf("updated_at = $%d", argIdx)
	args = append(args, now)
	argIdx++

	query += fmt.Sprintf(" WHERE job_id = $%d AND owner_id = $%d", argIdx, argIdx+1)
	args = append(args, jobID, ownerID)

	return query, args
}

func (s *Store) Delete(ctx context.Context, ownerID, jobID string) error {
	query := `DELETE FROM jobs WHERE job_id = $1 AND owner_id = $2`

	result, err := s.db.ExecContext(ctx, query, jobID, ownerID)
	if err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read delete result: %w", err)
	}
	if affected == 0 {
		return domain.ErrJobNotFound
	}

	s.notify(ownerID, jobID, "deleted")
	return nil
}

// Subscribe binds the change feed before the first query so no write between
// the two is missed.
func (s *Store) Subscribe(ctx context.Context, ownerID string) (domain.Subscription, error) {
	tag := fmt.Sprintf("jobs-feed-%s", uuid.NewString()[:8])
	feed, err := s.mq.Consume(routingKey(ownerID), tag)
	if err != nil {
		return nil, fmt.Errorf("failed to open change feed: %w", err)
	}

	initial, err := s.list(ctx, ownerID)
	if err != nil {
		feed.Close()
		return nil, err
	}

	sub := &subscription{
		feed: feed,
		out:  make(chan []domain.Job, 1),
		done: make(chan struct{}),
	}
	sub.out <- initial

	go s.deliver(ctx, ownerID, sub)
	return sub, nil
}

func (s *Store) deliver(ctx context.Context, ownerID string, sub *subscription) {
	defer close(sub.done)
	defer close(sub.out)

	for range sub.feed.Deliveries() {
		jobs, err := s.list(ctx, ownerID)
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

func (s *Store) list(ctx context.Context, ownerID string) ([]domain.Job, error) {
	query := `
		SELECT
			job_id, owner_id, client, address, value,
			status, transcript, tasks, materials, created_at, updated_at
		FROM jobs
		WHERE owner_id = $1
		ORDER BY updated_at DESC, job_id ASC
	`

	var rows []jobRow
	if err := s.db.SelectContext(ctx, &rows, query, ownerID); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	jobs := make([]domain.Job, len(rows))
	for i, r := range rows {
		jobs[i] = r.job()
	}
	return jobs, nil
}

type changeEvent struct {
	OwnerID string `json:"owner_id"`
	JobID   string `json:"job_id"`
	Action  string `json:"action"`
}

// notify publishes asynchronously. The row is already committed; a failed
// publish only delays the next push, so failures are logged and dropped.
func (s *Store) notify(ownerID, jobID, action string) {
	body, err := json.Marshal(changeEvent{OwnerID: ownerID, JobID: jobID, Action: action})
	if err != nil {
		s.logger.Error("Failed to encode change notification",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := s.mq.PublishWithRetry(ctx, routingKey(ownerID), body, "application/json"); err != nil {
			s.logger.Warn("Failed to publish change notification",
				slog.String("owner_id", ownerID),
				slog.String("job_id", jobID),
				slog.String("error", err.Error()),
			)
		}
	}()
}

type subscription struct {
	feed *rabbitmq.Feed
	out  chan []domain.Job
	done chan struct{}
	once sync.Once
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

// Cancel closes the feed and waits for the delivery goroutine to stop, so no
// push can land after it returns.
func (s *subscription) Cancel() {
	s.once.Do(func() {
		_ = s.feed.Close()
		<-s.done
	})
}
