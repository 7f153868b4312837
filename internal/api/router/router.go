package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/tradieiq/engine/internal/api/handler"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		if deps.HealthProbe != nil {
			if err := deps.HealthProbe(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status":  "degraded",
					"service": "tradieiq-engine",
					"error":   err.Error(),
				})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "tradieiq-engine",
		})
	})

	authHandler := handler.NewAuthHandler(deps)
	jobHandler := handler.NewJobHandler(deps)
	viewHandler := handler.NewViewHandler(deps)
	stateHandler := handler.NewStateHandler(deps)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		// GET /api/v1/state - Current engine snapshot
		v1.GET("/state", stateHandler.State)

		// GET /api/v1/state/stream - Snapshot stream over SSE
		v1.GET("/state/stream", stateHandler.Stream)

		auth := v1.Group("/auth")
		if deps.AuthRateEvery > 0 {
			auth.Use(RateLimitMiddleware(rate.Every(deps.AuthRateEvery), deps.AuthRateBurst))
		}
		{
			// POST /api/v1/auth/signin - Sign in with email and password
			auth.POST("/signin", authHandler.SignIn)

			// POST /api/v1/auth/signup - Register and sign in
			auth.POST("/signup", authHandler.SignUp)

			// POST /api/v1/auth/signout - End the current session
			auth.POST("/signout", authHandler.SignOut)
		}

		jobs := v1.Group("/jobs")
		{
			// POST /api/v1/jobs - Create a new job
			jobs.POST("", jobHandler.CreateJob)

			// PATCH /api/v1/jobs/:job_id - Apply a partial update
			jobs.PATCH("/:job_id", jobHandler.UpdateJob)

			// DELETE /api/v1/jobs/:job_id - Delete a job
			jobs.DELETE("/:job_id", jobHandler.DeleteJob)

			// POST /api/v1/jobs/:job_id/select - Open the job-detail screen
			jobs.POST("/:job_id/select", jobHandler.SelectJob)
		}

		view := v1.Group("/view")
		{
			// POST /api/v1/view/back - Leave the job-detail screen
			view.POST("/back", viewHandler.Back)

			// POST /api/v1/view/tab - Switch the job-detail tab
			view.POST("/tab", viewHandler.SwitchTab)
		}
	}

	return r
}
