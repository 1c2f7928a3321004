package models

import (
	"encoding/json"
	"time"
)

// SettlementLog is written exactly once per poll, at finalization. It is the
// authoritative record of what was paid out and how.
type SettlementLog struct {
	ID                 uint            `gorm:"primarykey" json:"id"`
	PollID             uint            `gorm:"not null;uniqueIndex" json:"poll_id"`
	WinningOptionIDs   json.RawMessage `gorm:"type:jsonb" json:"winning_option_ids"`
	IsRefund           bool            `gorm:"default:false" json:"is_refund"`
	TotalPool          int64           `gorm:"not null" json:"total_pool"`    // total staked across all options
	Commission         int64           `gorm:"not null" json:"commission"`    // house cut, 0 on refunds
	TotalPayout        int64           `gorm:"not null" json:"total_payout"`  // actually credited to players
	TotalWinners       int             `gorm:"not null" json:"total_winners"` // refund target count on refunds
	HouseEdge          float64         `gorm:"default:0" json:"house_edge"`   // commission / total pool
	PayoutDistribution json.RawMessage `gorm:"type:jsonb" json:"payout_distribution"`
	StartedAt          time.Time       `json:"started_at"`
	SettledAt          time.Time       `json:"settled_at"`
	DurationMs         int64           `gorm:"default:0" json:"duration_ms"`
	CreatedAt          time.Time       `json:"created_at" gorm:"autoCreateTime"`
}

func (SettlementLog) TableName() string {
	return "settlement_log"
}

// OptionDistribution is one entry of SettlementLog.PayoutDistribution.
type OptionDistribution struct {
	OptionID uint  `json:"option_id"`
	Bets     int   `json:"bets"`
	Stake    int64 `json:"stake"`
	Payout   int64 `json:"payout"`
}
