package routes

import (
	"pollsettle/internal/handlers"

	"github.com/gin-gonic/gin"
)

// SetupAssetConfigRoutes sets up all routes related to asset management
func SetupAssetConfigRoutes(r *gin.Engine) {
	asset := r.Group("/asset-config")
	{
		asset.GET("", handlers.ListAssetConfigs)
		asset.GET("/:id", handlers.GetAssetConfig)
		asset.POST("", handlers.CreateAssetConfig)
		asset.PUT("/:id", handlers.UpdateAssetConfig)
	}
}
