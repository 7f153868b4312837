package dto

import (
	"time"

	"github.com/tradieiq/engine/internal/domain"
)

type CreateJobRequest struct {
	Client     string `json:"client" binding:"required"`
	Address    string `json:"address"`
	Value      string `json:"value"`
	Transcript string `json:"transcript"`
}

func (r CreateJobRequest) Draft() domain.JobDraft {
	return domain.JobDraft{
		Client:     r.Client,
		Address:    r.Address,
		Value:      r.Value,
		Transcript: r.Transcript,
	}
}

type CreateJobResponse struct {
	JobID string `json:"job_id"`
}

// UpdateJobRequest is a partial update: absent fields leave the stored value
// untouched, present list fields replace the stored list wholesale.
type UpdateJobRequest struct {
	Status     *string   `json:"status"`
	Value      *string   `json:"value"`
	Client     *string   `json:"client"`
	Address    *string   `json:"address"`
	Transcript *string   `json:"transcript"`
	Tasks      *[]string `json:"tasks"`
	Materials  *[]string `json:"materials"`
}

func (r UpdateJobRequest) Patch() domain.JobPatch {
	return domain.JobPatch{
		Status:     r.Status,
		Value:      r.Value,
		Client:     r.Client,
		Address:    r.Address,
		Transcript: r.Transcript,
		Tasks:      r.Tasks,
		Materials:  r.Materials,
	}
}

type JobDTO struct {
	JobID      string   `json:"job_id"`
	Client     string   `json:"client"`
	Address    string   `json:"address"`
	Value      string   `json:"value"`
	Status     string   `json:"status"`
	Transcript string   `json:"transcript"`
	Tasks      []string `json:"tasks"`
	Materials  []string `json:"materials"`
	CreatedAt  string   `json:"created_at"`
	UpdatedAt  string   `json:"updated_at"`
}

func JobFrom(j domain.Job) JobDTO {
	return JobDTO{
		JobID:      j.ID,
		Client:     j.Client,
		Address:    j.Address,
		Value:      j.Value,
		Status:     j.Status,
		Transcript: j.Transcript,
		Tasks:      j.Tasks,
		Materials:  j.Materials,
		CreatedAt:  j.CreatedAt.Format(time.RFC3339),
		UpdatedAt:  j.UpdatedAt.Format(time.RFC3339),
	}
}

func JobsFrom(jobs []domain.Job) []JobDTO {
	out := make([]JobDTO, len(jobs))
	for i, j := range jobs {
		out[i] = JobFrom(j)
	}
	return out
}
