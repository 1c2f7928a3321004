package handlers

import (
	"net/http"
	"time"

	"pollsettle/internal/handlers/business"
	"pollsettle/internal/models"
	dbconfig "pollsettle/pkg/config"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// CORS is handled at the router level; the upgrade itself accepts any
	// origin that got past it.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// progressSnapshot is one frame of the settlement event stream.
type progressSnapshot struct {
	PollID        uint                         `json:"poll_id"`
	BettingStatus string                       `json:"betting_status"`
	IsSettled     bool                         `json:"is_settled"`
	Progress      *business.SettlementProgress `json:"progress"`
	ObservedAt    time.Time                    `json:"observed_at"`
}

// StreamSettlementEvents upgrades to a websocket and pushes the poll's
// settlement checkpoint once per second until the settlement completes or
// the client disconnects. Read-only: purely an observation channel for
// admin UIs.
func StreamSettlementEvents(c *gin.Context) {
	pollID, ok := parseUintParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid poll id"})
		return
	}

	var poll models.Poll
	if err := dbconfig.DB.First(&poll, pollID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "poll not found"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Errorf("websocket upgrade failed for poll %d: %v", pollID, err)
		return
	}
	defer conn.Close()

	// Drain client frames so pings/close get processed.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		var current models.Poll
		if err := dbconfig.DB.First(&current, pollID).Error; err != nil {
			log.Errorf("settlement event stream: reload poll %d: %v", pollID, err)
			return
		}
		sp, err := business.LoadProgress(&current)
		if err != nil {
			log.Errorf("settlement event stream: %v", err)
			return
		}

		snapshot := progressSnapshot{
			PollID:        current.ID,
			BettingStatus: current.BettingStatus,
			IsSettled:     current.IsSettled,
			Progress:      sp,
			ObservedAt:    time.Now(),
		}
		if err := conn.WriteJSON(snapshot); err != nil {
			return
		}

		if sp != nil && sp.CurrentPhase == business.PhaseCompleted {
			return
		}

		select {
		case <-closed:
			return
		case <-ticker.C:
		}
	}
}
