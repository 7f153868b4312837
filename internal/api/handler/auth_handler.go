package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tradieiq/engine/internal/api/dto"
)

// SignIn handles POST /api/v1/auth/signin
func (h *AuthHandler) SignIn(c *gin.Context) {
	var req dto.CredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondInvalidBody(c, h.logger, err)
		return
	}

	if err := h.engine.SignIn(c.Request.Context(), req.Email, req.Password); err != nil {
		respondAuthError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.StateFrom(h.engine.Snapshot()))
}

// SignUp handles POST /api/v1/auth/signup
func (h *AuthHandler) SignUp(c *gin.Context) {
	var req dto.CredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondInvalidBody(c, h.logger, err)
		return
	}

	if err := h.engine.SignUp(c.Request.Context(), req.Email, req.Password); err != nil {
		respondAuthError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.StateFrom(h.engine.Snapshot()))
}

// SignOut handles POST /api/v1/auth/signout
func (h *AuthHandler) SignOut(c *gin.Context) {
	if err := h.engine.SignOut(c.Request.Context()); err != nil {
		h.logger.Warn("Sign-out failed", slog.String("error", err.Error()))
		respondAuthError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.StateFrom(h.engine.Snapshot()))
}
