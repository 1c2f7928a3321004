package handlers

import (
	"net/http"

	"pollsettle/internal/models"
	dbconfig "pollsettle/pkg/config"

	"github.com/gin-gonic/gin"
)

// CreateAssetConfigRequest is the payload for registering a fungible asset
type CreateAssetConfigRequest struct {
	Symbol   string `json:"symbol" binding:"required"`
	Name     string `json:"name" binding:"required"`
	Decimals int    `json:"decimals"`
}

// CreateAssetConfig registers a new asset
func CreateAssetConfig(c *gin.Context) {
	var req CreateAssetConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	asset := models.AssetConfig{
		Symbol:   req.Symbol,
		Name:     req.Name,
		Decimals: req.Decimals,
		Status:   models.AssetStatusActive,
	}
	if err := dbconfig.DB.Create(&asset).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, asset)
}

// ListAssetConfigs returns all registered assets
func ListAssetConfigs(c *gin.Context) {
	var assets []models.AssetConfig
	if err := dbconfig.DB.Order("id asc").Find(&assets).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, assets)
}

// GetAssetConfig returns one asset by id
func GetAssetConfig(c *gin.Context) {
	id, ok := parseUintParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid asset id"})
		return
	}

	var asset models.AssetConfig
	if err := dbconfig.DB.First(&asset, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "asset not found"})
		return
	}
	c.JSON(http.StatusOK, asset)
}

// UpdateAssetConfigRequest allows renaming or disabling an asset
type UpdateAssetConfigRequest struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}

// UpdateAssetConfig updates an asset's name or status
func UpdateAssetConfig(c *gin.Context) {
	id, ok := parseUintParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid asset id"})
		return
	}

	var req UpdateAssetConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var asset models.AssetConfig
	if err := dbconfig.DB.First(&asset, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "asset not found"})
		return
	}

	updates := map[string]interface{}{}
	if req.Name != "" {
		updates["name"] = req.Name
	}
	if req.Status == models.AssetStatusActive || req.Status == models.AssetStatusDisabled {
		updates["status"] = req.Status
	}
	if len(updates) > 0 {
		if err := dbconfig.DB.Model(&asset).Updates(updates).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}

	c.JSON(http.StatusOK, asset)
}
