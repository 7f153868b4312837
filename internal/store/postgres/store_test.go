package postgres

import (
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradieiq/engine/internal/domain"
)

func TestBuildUpdate_SingleField(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	status := domain.JobStatusQuoted

	query, args := buildUpdate("owner-a", "job-1", domain.JobPatch{Status: &status}, now)

	assert.Equal(t,
		"UPDATE jobs SET status = $1, updated_at = $2 WHERE job_id = $3 AND owner_id = $4",
		query,
	)
	assert.Equal(t, []interface{}{"quoted", now, "job-1", "owner-a"}, args)
}

func TestBuildUpdate_AllFields(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	status := domain.JobStatusInProgress
	value := "$2,000"
	client := "Acme"
	address := "1 Main St"
	transcript := "Site visit notes"
	tasks := []string{"demolition", "framing"}
	materials := []string{"timber"}

	patch := domain.JobPatch{
		Status:     &status,
		Value:      &value,
		Client:     &client,
		Address:    &address,
		Transcript: &transcript,
		Tasks:      &tasks,
		Materials:  &materials,
	}

	query, args := buildUpdate("owner-a", "job-1", patch, now)

	assert.Equal(t,
		"UPDATE jobs SET status = $1, value = $2, client = $3, address = $4, "+
			"transcript = $5, tasks = $6, materials = $7, updated_at = $8 "+
			"WHERE job_id = $9 AND owner_id = $10",
		query,
	)
	require.Len(t, args, 10)
	assert.Equal(t, "in_progress", args[0])
	assert.Equal(t, "$2,000", args[1])
	assert.Equal(t, pq.StringArray{"demolition", "framing"}, args[5])
	assert.Equal(t, pq.StringArray{"timber"}, args[6])
	assert.Equal(t, now, args[7])
	assert.Equal(t, "job-1", args[8])
	assert.Equal(t, "owner-a", args[9])
}

func TestBuildUpdate_EmptyPatchStillBumpsUpdatedAt(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

	query, args := buildUpdate("owner-a", "job-1", domain.JobPatch{}, now)

	assert.Equal(t,
		"UPDATE jobs SET updated_at = $1 WHERE job_id = $2 AND owner_id = $3",
		query,
	)
	assert.Equal(t, []interface{}{now, "job-1", "owner-a"}, args)
}

func TestJobRowConversion(t *testing.T) {
	created := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	updated := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

	row := jobRow{
		JobID:      "job-1",
		OwnerID:    "owner-a",
		Client:     "Acme",
		Address:    "1 Main St",
		Value:      "$1,500",
		Status:     domain.JobStatusNew,
		Transcript: "quoted over the phone",
		Tasks:      pq.StringArray{"demolition"},
		Materials:  pq.StringArray{"timber", "nails"},
		CreatedAt:  created,
		UpdatedAt:  updated,
	}

	job := row.job()

	assert.Equal(t, "job-1", job.ID)
	assert.Equal(t, "owner-a", job.OwnerID)
	assert.Equal(t, "Acme", job.Client)
	assert.Equal(t, "1 Main St", job.Address)
	assert.Equal(t, "$1,500", job.Value)
	assert.Equal(t, domain.JobStatusNew, job.Status)
	assert.Equal(t, []string{"demolition"}, job.Tasks)
	assert.Equal(t, []string{"timber", "nails"}, job.Materials)
	assert.Equal(t, created, job.CreatedAt)
	assert.Equal(t, updated, job.UpdatedAt)
}

func TestRoutingKeyIsPerOwner(t *testing.T) {
	assert.Equal(t, "jobs.changed.owner-a", routingKey("owner-a"))
	assert.NotEqual(t, routingKey("owner-a"), routingKey("owner-b"))
}
