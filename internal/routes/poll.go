package routes

import (
	"pollsettle/internal/handlers"
	"pollsettle/internal/middleware"

	"github.com/gin-gonic/gin"
)

// SetupPollRoutes sets up all routes related to polls and betting
func SetupPollRoutes(r *gin.Engine) {
	// Betting is the hot write path; keep a burst-tolerant limit on it.
	betLimiter := middleware.NewRateLimiterMap(middleware.RateLimiterConfig{
		RequestsPerSecond: 20,
		Burst:             40,
	})

	poll := r.Group("/poll")
	{
		poll.GET("", handlers.ListPolls)
		poll.GET("/:id", handlers.GetPoll)
		poll.POST("", handlers.CreatePoll)
		poll.POST("/:id/close", handlers.ClosePoll)
		poll.POST("/:id/bet", betLimiter.Middleware(), handlers.PlaceBet)
	}
}
