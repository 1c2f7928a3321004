package handlers

import (
	"net/http"

	"pollsettle/internal/models"
	dbconfig "pollsettle/pkg/config"

	"github.com/gin-gonic/gin"
)

// ListSettlementLogs returns paginated settlement records, newest first
func ListSettlementLogs(c *gin.Context) {
	page, pageSize := parsePagination(c)

	var total int64
	if err := dbconfig.DB.Model(&models.SettlementLog{}).Count(&total).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	var logs []models.SettlementLog
	if err := dbconfig.DB.Order("id desc").
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

// GetSettlementLogByPoll returns the settlement record of one poll
func GetSettlementLogByPoll(c *gin.Context) {
	pollID, ok := parseUintParam(c, "pollId")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid poll id"})
		return
	}

	var entry models.SettlementLog
	if err := dbconfig.DB.Where("poll_id = ?", pollID).First(&entry).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "settlement log not found"})
		return
	}
	c.JSON(http.StatusOK, entry)
}
