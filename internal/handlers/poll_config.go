package handlers

import (
	"errors"
	"net/http"
	"time"

	"pollsettle/internal/handlers/business"
	"pollsettle/internal/models"
	dbconfig "pollsettle/pkg/config"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CreatePollRequest is the payload for opening a new prediction poll
type CreatePollRequest struct {
	Title               string    `json:"title" binding:"required"`
	AssetID             uint      `json:"asset_id" binding:"required"`
	ClosesAt            time.Time `json:"closes_at" binding:"required"`
	HouseCommissionRate float64   `json:"house_commission_rate"`
	Options             []string  `json:"options" binding:"required,min=2"`
}

// CreatePoll opens a new poll with its options
func CreatePoll(c *gin.Context) {
	var req CreatePollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.HouseCommissionRate < 0 || req.HouseCommissionRate > 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "house_commission_rate must be within [0, 1]"})
		return
	}

	var asset models.AssetConfig
	if err := dbconfig.DB.First(&asset, req.AssetID).Error; err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "asset not found"})
		return
	}
	if asset.Status != models.AssetStatusActive {
		c.JSON(http.StatusBadRequest, gin.H{"error": "asset is not active"})
		return
	}

	poll := models.Poll{
		Title:               req.Title,
		AssetID:             req.AssetID,
		Status:              models.PollStatusActive,
		BettingStatus:       models.BettingStatusOpen,
		ClosesAt:            req.ClosesAt,
		HouseCommissionRate: req.HouseCommissionRate,
	}

	err := dbconfig.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&poll).Error; err != nil {
			return err
		}
		for _, label := range req.Options {
			opt := models.PollOption{PollID: poll.ID, Label: label}
			if err := tx.Create(&opt).Error; err != nil {
				return err
			}
			poll.Options = append(poll.Options, opt)
		}
		return nil
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, poll)
}

// ListPolls returns paginated polls, optionally filtered by betting status
func ListPolls(c *gin.Context) {
	page, pageSize := parsePagination(c)

	q := dbconfig.DB.Model(&models.Poll{})
	if status := c.Query("betting_status"); status != "" {
		q = q.Where("betting_status = ?", status)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	var polls []models.Poll
	if err := q.Preload("Options").Order("id desc").
		Offset((page - 1) * pageSize).Limit(pageSize).
		Find(&polls).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":      polls,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// GetPoll returns one poll with its options
func GetPoll(c *gin.Context) {
	id, ok := parseUintParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid poll id"})
		return
	}

	var poll models.Poll
	if err := dbconfig.DB.Preload("Options").Preload("Asset").First(&poll, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "poll not found"})
		return
	}
	c.JSON(http.StatusOK, poll)
}

// ClosePoll forces a still-open poll to close now, making it eligible for
// settlement after the grace period
func ClosePoll(c *gin.Context) {
	id, ok := parseUintParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid poll id"})
		return
	}

	res := dbconfig.DB.Model(&models.Poll{}).
		Where("id = ? AND betting_status = ? AND closes_at > ?", id, models.BettingStatusOpen, time.Now()).
		Update("closes_at", time.Now())
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": res.Error.Error()})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusConflict, gin.H{"error": "poll is not open or already closed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "poll closed"})
}

// PlaceBetRequest stakes an amount on one option
type PlaceBetRequest struct {
	PlayerID uint  `json:"player_id" binding:"required"`
	OptionID uint  `json:"option_id" binding:"required"`
	Amount   int64 `json:"amount" binding:"required,gt=0"`
}

// PlaceBet debits the player's balance and records the bet, atomically
func PlaceBet(c *gin.Context) {
	pollID, ok := parseUintParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid poll id"})
		return
	}

	var req PlaceBetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var bet models.BetRecord
	var outcome *business.TxOutcome
	err := dbconfig.DB.Transaction(func(tx *gorm.DB) error {
		var poll models.Poll
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&poll, pollID).Error; err != nil {
			return err
		}
		if poll.BettingStatus != models.BettingStatusOpen || poll.IsSettled {
			return errBettingClosed
		}
		if !poll.ClosesAt.After(time.Now()) {
			return errBettingClosed
		}

		var option models.PollOption
		if err := tx.Where("id = ? AND poll_id = ?", req.OptionID, poll.ID).First(&option).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errOptionNotFound
			}
			return err
		}

		var err error
		outcome, err = business.ApplyTransaction(tx, business.TxInput{
			PlayerID: req.PlayerID,
			AssetID:  poll.AssetID,
			Amount:   req.Amount,
			Op:       business.OpSubtract,
			Reason:   business.ReasonBetStake,
			PollID:   poll.ID,
		})
		if err != nil {
			return err
		}

		bet = models.BetRecord{
			PollID:   poll.ID,
			PlayerID: req.PlayerID,
			OptionID: option.ID,
			Amount:   req.Amount,
		}
		if err := tx.Create(&bet).Error; err != nil {
			return err
		}

		if err := tx.Model(&models.PollOption{}).Where("id = ?", option.ID).
			Updates(map[string]interface{}{
				"total_stake": gorm.Expr("total_stake + ?", req.Amount),
				"bet_count":   gorm.Expr("bet_count + 1"),
			}).Error; err != nil {
			return err
		}
		return tx.Model(&models.Poll{}).Where("id = ?", poll.ID).
			Update("total_stake", gorm.Expr("total_stake + ?", req.Amount)).Error
	})
	if err != nil {
		c.JSON(betErrorStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"bet":     bet,
		"balance": outcome.BalanceAfter,
	})
}

var (
	errBettingClosed  = errors.New("betting is closed for this poll")
	errOptionNotFound = errors.New("option does not belong to this poll")
)

func betErrorStatus(err error) int {
	switch {
	case errors.Is(err, errBettingClosed):
		return http.StatusConflict
	case errors.Is(err, errOptionNotFound):
		return http.StatusBadRequest
	case errors.Is(err, business.ErrInsufficientBalance),
		errors.Is(err, business.ErrPlayerAssetBlocked),
		errors.Is(err, business.ErrAssetInactive),
		errors.Is(err, business.ErrAssetNotFound),
		errors.Is(err, business.ErrInvalidAmount):
		return http.StatusUnprocessableEntity
	case errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
