package routes

import (
	"pollsettle/internal/handlers"
	"pollsettle/internal/middleware"

	"github.com/gin-gonic/gin"
)

// SetupSettlementRoutes sets up settlement trigger, logs and event stream
func SetupSettlementRoutes(r *gin.Engine) {
	stepLimiter := middleware.NewRateLimiterMap(middleware.RateLimiterConfig{
		RequestsPerSecond: 2,
		Burst:             5,
	})

	settlement := r.Group("/settlement")
	{
		settlement.POST("/step", stepLimiter.Middleware(), handlers.RunSettlementStep)
		settlement.GET("/:id/events", handlers.StreamSettlementEvents)
	}

	logs := r.Group("/settlement-log")
	{
		logs.GET("", handlers.ListSettlementLogs)
		logs.GET("/:pollId", handlers.GetSettlementLogByPoll)
	}
}
