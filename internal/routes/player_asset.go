package routes

import (
	"pollsettle/internal/handlers"

	"github.com/gin-gonic/gin"
)

// SetupPlayerAssetRoutes sets up balance and audit trail routes
func SetupPlayerAssetRoutes(r *gin.Engine) {
	pa := r.Group("/player-asset")
	{
		pa.GET("/:playerId/:assetId", handlers.GetPlayerAsset)
		pa.GET("/:playerId/:assetId/logs", handlers.ListRewardsLogs)
		pa.POST("/adjust", handlers.AdjustPlayerAsset)
	}
}
