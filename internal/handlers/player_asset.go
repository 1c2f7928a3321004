package handlers

import (
	"errors"
	"net/http"

	"pollsettle/internal/handlers/business"
	"pollsettle/internal/models"
	dbconfig "pollsettle/pkg/config"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// GetPlayerAsset returns one (player, asset) balance row. Players with no
// row yet simply have a zero balance.
func GetPlayerAsset(c *gin.Context) {
	playerID, ok := parseUintParam(c, "playerId")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid player id"})
		return
	}
	assetID, ok := parseUintParam(c, "assetId")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid asset id"})
		return
	}

	var row models.PlayerAsset
	err := dbconfig.DB.Where("player_id = ? AND asset_id = ?", playerID, assetID).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusOK, models.PlayerAsset{
				PlayerID: playerID,
				AssetID:  assetID,
				Balance:  0,
				Status:   models.PlayerAssetStatusActive,
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, row)
}

// AdjustPlayerAssetRequest is an administrative balance mutation
type AdjustPlayerAssetRequest struct {
	PlayerID uint   `json:"player_id" binding:"required"`
	AssetID  uint   `json:"asset_id" binding:"required"`
	Amount   int64  `json:"amount"`
	Op       string `json:"op" binding:"required"` // ADD, SUBTRACT or SET
	Reason   string `json:"reason"`
}

// AdjustPlayerAsset applies an administrative ADD/SUBTRACT/SET through the
// ledger, in its own transaction
func AdjustPlayerAsset(c *gin.Context) {
	var req AdjustPlayerAssetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	op := business.LedgerOp(req.Op)
	if op != business.OpAdd && op != business.OpSubtract && op != business.OpSet {
		c.JSON(http.StatusBadRequest, gin.H{"error": "op must be ADD, SUBTRACT or SET"})
		return
	}
	reason := req.Reason
	if reason == "" {
		reason = business.ReasonAdminAdjust
	}

	outcome, err := business.ApplyTransaction(nil, business.TxInput{
		PlayerID: req.PlayerID,
		AssetID:  req.AssetID,
		Amount:   req.Amount,
		Op:       op,
		Reason:   reason,
	})
	if err != nil {
		status := http.StatusUnprocessableEntity
		if outcome == nil {
			status = http.StatusInternalServerError
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}
		c.JSON(status, outcome)
		return
	}

	c.JSON(http.StatusOK, outcome)
}

// ListRewardsLogs returns the paginated audit trail for one player+asset
func ListRewardsLogs(c *gin.Context) {
	playerID, ok := parseUintParam(c, "playerId")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid player id"})
		return
	}
	assetID, ok := parseUintParam(c, "assetId")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid asset id"})
		return
	}

	page, pageSize := parsePagination(c)

	q := dbconfig.DB.Model(&models.RewardsLog{}).
		Where("player_id = ? AND asset_id = ?", playerID, assetID)

	var total int64
	if err := q.Count(&total).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	var logs []models.RewardsLog
	if err := q.Order("id desc").
		Offset((page - 1) * pageSize).Limit(pageSize).
		Find(&logs).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":      logs,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}
