package models

import (
	"time"
)

// RewardsLog is the append-only audit trail of balance mutations: one row
// per ADD/SUBTRACT applied by the ledger. For a given player and asset the
// chain of rows ordered by id reconstructs the balance history exactly
// (BalanceAfter = BalanceBefore + Delta). Never mutated after creation.
type RewardsLog struct {
	ID            uint      `gorm:"primarykey" json:"id"`
	PlayerID      uint      `gorm:"not null;index:idx_rewards_player_asset" json:"player_id"`
	AssetID       uint      `gorm:"not null;index:idx_rewards_player_asset" json:"asset_id"`
	Delta         int64     `gorm:"not null" json:"delta"` // signed; positive for credits
	BalanceBefore int64     `gorm:"not null" json:"balance_before"`
	BalanceAfter  int64     `gorm:"not null" json:"balance_after"`
	Reason        string    `gorm:"size:64;not null" json:"reason"`
	PollID        uint      `gorm:"default:0;index" json:"poll_id"` // 0 when not poll-related
	BetID         uint      `gorm:"default:0" json:"bet_id"`
	CreatedAt     time.Time `json:"created_at" gorm:"autoCreateTime"`
}

func (RewardsLog) TableName() string {
	return "rewards_log"
}
