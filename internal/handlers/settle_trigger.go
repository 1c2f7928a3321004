package handlers

import (
	"net/http"

	"pollsettle/internal/handlers/business"

	"github.com/gin-gonic/gin"
)

var settler *business.Settler

// InitSettler wires the shared settlement engine used by the trigger
// endpoint. Called once from main after DB and sink initialization.
func InitSettler(s *business.Settler) {
	settler = s
}

// RunSettlementStep executes exactly one settlement phase for at most one
// poll. This is the same entry point the cron worker ticks; exposing it
// over HTTP lets operators drive or drain settlements by hand.
func RunSettlementStep(c *gin.Context) {
	if settler == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "settlement engine not initialized"})
		return
	}

	res := settler.ProcessNextStep()
	status := http.StatusOK
	if !res.Success && !res.Silent {
		status = http.StatusInternalServerError
	}
	c.JSON(status, res)
}
