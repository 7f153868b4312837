// Package firestore implements the job store on Cloud Firestore. The live
// query comes straight from Firestore snapshot listeners, so no separate
// change feed is needed: every committed write is re-delivered to listeners
// as a full query result.
package firestore

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/google/uuid"

	"github.com/tradieiq/engine/internal/domain"
)

const jobsCollection = "jobs"

// Store is a Firestore-backed domain.JobStore.
type Store struct {
	client *firestore.Client
	logger *slog.Logger
}

// New creates a Firestore store for the given GCP project. Credentials come
// from the environment (application default credentials).
func New(ctx context.Context, projectID string, logger *slog.Logger) (*Store, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID is required for Firestore store")
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("creating firestore client: %w", err)
	}

	logger.Info("Firestore store initialized",
		slog.String("project_id", projectID),
		slog.String("collection", jobsCollection),
	)

	return &Store{client: client, logger: logger}, nil
}

// Close releases the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) jobsCol() *firestore.CollectionRef {
	return s.client.Collection(jobsCollection)
}

func (s *Store) jobDocRef(jobID string) *firestore.DocumentRef {
	return s.jobsCol().Doc(jobID)
}

type jobDoc struct {
	OwnerID    string    `firestore:"owner_id"`
	Client     string    `firestore:"client"`
	Address    string    `firestore:"address"`
	Value      string    `firestore:"value"`
	Status     string    `firestore:"status"`
	Transcript string    `firestore:"transcript"`
	Tasks      []string  `firestore:"tasks"`
	Materials  []string  `firestore:"materials"`
	CreatedAt  time.Time `firestore:"created_at"`
	UpdatedAt  time.Time `firestore:"updated_at"`
}

func docFrom(j domain.Job) jobDoc {
	return jobDoc{
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

func (d jobDoc) job(id string) domain.Job {
	return domain.Job{
		ID:         id,
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

	if _, err := s.jobDocRef(id).Create(ctx, docFrom(job)); err != nil {
		return "", fmt.Errorf("firestore create job: %w", err)
	}
	return id, nil
}

func (s *Store) Update(ctx context.Context, ownerID, jobID string, patch domain.JobPatch) error {
	if _, err := s.ownedDoc(ctx, ownerID, jobID); err != nil {
		return err
	}

	fields := patchFields(patch, time.Now().UTC())
	if _, err := s.jobDocRef(jobID).Set(ctx, fields, firestore.MergeAll); err != nil {
		return fmt.Errorf("firestore update job: %w", err)
	}
	return nil
}

// patchFields maps the non-nil patch fields onto firestore field paths.
func patchFields(patch domain.JobPatch, now time.Time) map[string]interface{} {
	fields := map[string]interface{}{
		"updated_at": now,
	}
	if patch.Status != nil {
		fields["status"] = *patch.Status
	}
	if patch.Value != nil {
		fields["value"] = *patch.Value
	}
	if patch.Client != nil {
		fields["client"] = *patch.Client
	}
	if patch.Address != nil {
		fields["address"] = *patch.Address
	}
	if patch.Transcript != nil {
		fields["transcript"] = *patch.Transcript
	}
	if patch.Tasks != nil {
		fields["tasks"] = *patch.Tasks
	}
	if patch.Materials != nil {
		fields["materials"] = *patch.Materials
	}
	return fields
}

func (s *Store) Delete(ctx context.Context, ownerID, jobID string) error {
	if _, err := s.ownedDoc(ctx, ownerID, jobID); err != nil {
		return err
	}

	if _, err := s.jobDocRef(jobID).Delete(ctx); err != nil {
		return fmt.Errorf("firestore delete job: %w", err)
	}
	return nil
}

// ownedDoc loads a job document and enforces the owner scope. Ids outside
// the scope look exactly like missing ids.
func (s *Store) ownedDoc(ctx context.Context, ownerID, jobID string) (jobDoc, error) {
	snap, err := s.jobDocRef(jobID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return jobDoc{}, domain.ErrJobNotFound
		}
		return jobDoc{}, fmt.Errorf("firestore get job: %w", err)
	}

	var doc jobDoc
	if err := snap.DataTo(&doc); err != nil {
		return jobDoc{}, fmt.Errorf("firestore decode job: %w", err)
	}
	if doc.OwnerID != ownerID {
		return jobDoc{}, domain.ErrJobNotFound
	}
	return doc, nil
}

// Subscribe attaches a snapshot listener to the owner's query. Firestore
// delivers the initial result set as the first snapshot, so the listener
// doubles as the initial query and no change can fall between the two.
func (s *Store) Subscribe(ctx context.Context, ownerID string) (domain.Subscription, error) {
	query := s.jobsCol().
		Where("owner_id", "==", ownerID).
		OrderBy("updated_at", firestore.Desc)

	snaps := query.Snapshots(ctx)

	first, err := snaps.Next()
	if err != nil {
		snaps.Stop()
		return nil, fmt.Errorf("firestore subscribe: %w", err)
	}
	initial, err := jobsFromSnapshot(first)
	if err != nil {
		snaps.Stop()
		return nil, err
	}

	sub := &subscription{
		snaps: snaps,
		out:   make(chan []domain.Job, 1),
		done:  make(chan struct{}),
	}
	sub.out <- initial

	go s.deliver(ownerID, sub)
	return sub, nil
}

func (s *Store) deliver(ownerID string, sub *subscription) {
	defer close(sub.done)
	defer close(sub.out)

	for {
		snap, err := sub.snaps.Next()
		if err != nil {
			if err != iterator.Done && status.Code(err) != codes.Canceled {
				s.logger.Warn("Job snapshot listener stopped",
					slog.String("owner_id", ownerID),
					slog.String("error", err.Error()),
				)
			}
			return
		}

		jobs, err := jobsFromSnapshot(snap)
		if err != nil {
			s.logger.Warn("Failed to decode job snapshot",
				slog.String("owner_id", ownerID),
				slog.String("error", err.Error()),
			)
			continue
		}
		sub.push(jobs)
	}
}

func jobsFromSnapshot(snap *firestore.QuerySnapshot) ([]domain.Job, error) {
	iter := snap.Documents
	defer iter.Stop()

	var jobs []domain.Job
	for {
		docSnap, err := iter.Next()
		if err != nil {
			if err == iterator.Done {
				break
			}
			return nil, fmt.Errorf("firestore iterate jobs: %w", err)
		}

		var doc jobDoc
		if err := docSnap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode jobDoc: %w", err)
		}
		jobs = append(jobs, doc.job(docSnap.Ref.ID))
	}

	// The query orders by updated_at only; break ties on id so equal
	// timestamps still yield a stable order.
	sort.Slice(jobs, func(i, j int) bool {
		if !jobs[i].UpdatedAt.Equal(jobs[j].UpdatedAt) {
			return jobs[i].UpdatedAt.After(jobs[j].UpdatedAt)
		}
		return jobs[i].ID < jobs[j].ID
	})
	return jobs, nil
}

type subscription struct {
	snaps *firestore.QuerySnapshotIterator
	out   chan []domain.Job
	done  chan struct{}
	once  sync.Once
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

// Cancel stops the snapshot listener and waits for the delivery goroutine to
// exit, so no push can land after it returns.
func (s *subscription) Cancel() {
	s.once.Do(func() {
		s.snaps.Stop()
		<-s.done
	})
}
