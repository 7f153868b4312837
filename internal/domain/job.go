package domain

import "time"

// Job status values
const (
	JobStatusNew        = "new"
	JobStatusQuoted     = "quoted"
	JobStatusInProgress = "in_progress"
	JobStatusCompleted  = "completed"
)

// Statuses lists every job status in display order.
var Statuses = []string{JobStatusNew, JobStatusQuoted, JobStatusInProgress, JobStatusCompleted}

// ValidStatus reports whether s is one of the known job statuses.
func ValidStatus(s string) bool {
	switch s {
	case JobStatusNew, JobStatusQuoted, JobStatusInProgress, JobStatusCompleted:
		return true
	}
	return false
}

// Job is a persisted work-order record owned by one identity. The ID is
// assigned by the storage backend; Value is kept as the display string the
// user entered (e.g. "$1,500") and only parsed when aggregating.
type Job struct {
	ID         string
	OwnerID    string
	Client     string
	Address    string
	Value      string
	Status     string
	Transcript string
	Tasks      []string
	Materials  []string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Clone returns a deep copy of the job. Snapshots handed out to readers are
// built from clones so later pushes cannot mutate what a caller already holds.
func (j Job) Clone() Job {
	c := j
	if j.Tasks != nil {
		c.Tasks = append([]string(nil), j.Tasks...)
	}
	if j.Materials != nil {
		c.Materials = append([]string(nil), j.Materials...)
	}
	return c
}

// CloneJobs deep-copies a job list.
func CloneJobs(jobs []Job) []Job {
	out := make([]Job, len(jobs))
	for i, j := range jobs {
		out[i] = j.Clone()
	}
	return out
}

// JobDraft is the input for creating a job. Status is not part of the draft:
// every new job starts as "new".
type JobDraft struct {
	Client     string
	Address    string
	Value      string
	Transcript string
}

// NewJob materializes a draft into a job record. Stores call this so the
// defaulting rules live in one place.
func NewJob(id, ownerID string, draft JobDraft, now time.Time) Job {
	return Job{
		ID:         id,
		OwnerID:    ownerID,
		Client:     draft.Client,
		Address:    draft.Address,
		Value:      draft.Value,
		Status:     JobStatusNew,
		Transcript: draft.Transcript,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// JobPatch is a partial update. Nil fields are left untouched; non-nil slice
// fields replace the stored list wholesale.
type JobPatch struct {
	Status     *string
	Value      *string
	Client     *string
	Address    *string
	Transcript *string
	Tasks      *[]string
	Materials  *[]string
}

// IsZero reports whether the patch changes nothing.
func (p JobPatch) IsZero() bool {
	return p.Status == nil && p.Value == nil && p.Client == nil &&
		p.Address == nil && p.Transcript == nil && p.Tasks == nil && p.Materials == nil
}

// Apply writes the patch onto job. The caller is responsible for bumping
// UpdatedAt; Apply only touches the patched fields.
func (p JobPatch) Apply(job *Job) {
	if p.Status != nil {
		job.Status = *p.Status
	}
	if p.Value != nil {
		job.Value = *p.Value
	}
	if p.Client != nil {
		job.Client = *p.Client
	}
	if p.Address != nil {
		job.Address = *p.Address
	}
	if p.Transcript != nil {
		job.Transcript = *p.Transcript
	}
	if p.Tasks != nil {
		job.Tasks = append([]string(nil), (*p.Tasks)...)
	}
	if p.Materials != nil {
		job.Materials = append([]string(nil), (*p.Materials)...)
	}
}
