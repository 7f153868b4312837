package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tradieiq/engine/internal/api/dto"
)

// CreateJob handles POST /api/v1/jobs
// The write is accepted and lands in snapshots once the live query pushes it,
// so the response is 202 with the assigned id.
func (h *JobHandler) CreateJob(c *gin.Context) {
	var req dto.CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondInvalidBody(c, h.logger, err)
		return
	}

	jobID, err := h.engine.CreateJob(c.Request.Context(), req.Draft())
	if err != nil {
		respondEngineError(c, h.engine, err)
		return
	}

	c.JSON(http.StatusAccepted, dto.CreateJobResponse{JobID: jobID})
}

// UpdateJob handles PATCH /api/v1/jobs/:job_id
func (h *JobHandler) UpdateJob(c *gin.Context) {
	jobID := c.Param("job_id")

	var req dto.UpdateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondInvalidBody(c, h.logger, err)
		return
	}

	if err := h.engine.UpdateJob(c.Request.Context(), jobID, req.Patch()); err != nil {
		respondEngineError(c, h.engine, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"job_id": jobID})
}

// DeleteJob handles DELETE /api/v1/jobs/:job_id
func (h *JobHandler) DeleteJob(c *gin.Context) {
	jobID := c.Param("job_id")

	if err := h.engine.DeleteJob(c.Request.Context(), jobID); err != nil {
		respondEngineError(c, h.engine, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"job_id": jobID})
}

// SelectJob handles POST /api/v1/jobs/:job_id/select
// Selecting an id that is not in the cached list is a no-op, not an error:
// the job may have been deleted between push and click.
func (h *JobHandler) SelectJob(c *gin.Context) {
	jobID := c.Param("job_id")

	if err := h.engine.SelectJob(jobID); err != nil {
		respondEngineError(c, h.engine, err)
		return
	}

	c.JSON(http.StatusOK, dto.StateFrom(h.engine.Snapshot()))
}
