package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tradieiq/engine/internal/api/dto"
	"github.com/tradieiq/engine/internal/api/feed"
	"github.com/tradieiq/engine/internal/app"
	"github.com/tradieiq/engine/internal/domain"
)

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger *slog.Logger
	Engine *app.Controller
	Feed   *feed.StateFeed

	// HealthProbe checks the configured backends. Nil means liveness only.
	HealthProbe func(ctx context.Context) error

	// AuthRateEvery and AuthRateBurst bound auth attempts per client IP.
	// Zero disables the limit.
	AuthRateEvery time.Duration
	AuthRateBurst int
}

// AuthHandler handles sign-in, sign-up, and sign-out requests
type AuthHandler struct {
	logger *slog.Logger
	engine *app.Controller
}

// NewAuthHandler creates a new AuthHandler instance
func NewAuthHandler(deps *Dependencies) *AuthHandler {
	return &AuthHandler{
		logger: deps.Logger,
		engine: deps.Engine,
	}
}

// JobHandler handles job write requests
type JobHandler struct {
	logger *slog.Logger
	engine *app.Controller
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	return &JobHandler{
		logger: deps.Logger,
		engine: deps.Engine,
	}
}

// ViewHandler handles view navigation requests
type ViewHandler struct {
	logger *slog.Logger
	engine *app.Controller
}

// NewViewHandler creates a new ViewHandler instance
func NewViewHandler(deps *Dependencies) *ViewHandler {
	return &ViewHandler{
		logger: deps.Logger,
		engine: deps.Engine,
	}
}

// StateHandler serves snapshots, both one-shot and streamed
type StateHandler struct {
	logger *slog.Logger
	engine *app.Controller
	feed   *feed.StateFeed
}

// NewStateHandler creates a new StateHandler instance
func NewStateHandler(deps *Dependencies) *StateHandler {
	return &StateHandler{
		logger: deps.Logger,
		engine: deps.Engine,
		feed:   deps.Feed,
	}
}

// authStatus maps a classified auth error code to an HTTP status.
func authStatus(code string) int {
	switch code {
	case domain.AuthCodeInvalidEmail, domain.AuthCodeWeakPassword:
		return http.StatusBadRequest
	case domain.AuthCodeWrongPassword, domain.AuthCodeUserNotFound:
		return http.StatusUnauthorized
	case domain.AuthCodeEmailInUse:
		return http.StatusConflict
	case domain.AuthCodeRateLimited:
		return http.StatusTooManyRequests
	default:
		// Unknown means the auth backend itself failed.
		return http.StatusBadGateway
	}
}

func respondAuthError(c *gin.Context, err error) {
	code := domain.AuthCodeOf(err)
	c.JSON(authStatus(code), dto.ErrorResponse{
		Code:    code,
		Message: app.MessageFor(code),
	})
}

// respondEngineError maps controller errors from job and view operations.
// Access denials carry the forced sign-in state so clients can redraw
// without another round trip.
func respondEngineError(c *gin.Context, engine *app.Controller, err error) {
	switch {
	case errors.Is(err, domain.ErrAccessDenied):
		c.JSON(http.StatusForbidden, gin.H{
			"code":    "access-denied",
			"message": app.MsgAccessDenied,
			"state":   dto.StateFrom(engine.Snapshot()),
		})
	case errors.Is(err, domain.ErrJobNotFound):
		c.JSON(http.StatusNotFound, dto.ErrorResponse{
			Code:    "job-not-found",
			Message: app.MsgJobGone,
		})
	default:
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
			Code:    "store-failure",
			Message: app.MsgStoreFailure,
		})
	}
}

func respondInvalidBody(c *gin.Context, logger *slog.Logger, err error) {
	logger.Error("Invalid request body", slog.String("error", err.Error()))
	c.JSON(http.StatusBadRequest, dto.ErrorResponse{
		Code:    "invalid-request",
		Message: "Invalid request body",
	})
}
