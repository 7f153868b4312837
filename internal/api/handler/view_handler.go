package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tradieiq/engine/internal/api/dto"
	"github.com/tradieiq/engine/internal/domain"
)

// Back handles POST /api/v1/view/back
// Going back from anywhere but the job-detail screen is a no-op.
func (h *ViewHandler) Back(c *gin.Context) {
	h.engine.Back()
	c.JSON(http.StatusOK, dto.StateFrom(h.engine.Snapshot()))
}

// SwitchTab handles POST /api/v1/view/tab
func (h *ViewHandler) SwitchTab(c *gin.Context) {
	var req dto.SwitchTabRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondInvalidBody(c, h.logger, err)
		return
	}

	if err := h.engine.SwitchTab(domain.Tab(req.Tab)); err != nil {
		if errors.Is(err, domain.ErrAccessDenied) {
			respondEngineError(c, h.engine, err)
			return
		}
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Code:    "invalid-tab",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, dto.StateFrom(h.engine.Snapshot()))
}
