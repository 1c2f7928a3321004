package models

import (
	"time"
)

// BetRecord is one player's stake on one option of one poll.
// Rows are append-only and immutable after creation; settlement treats them
// as read-only input.
type BetRecord struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	PollID    uint      `gorm:"not null;index" json:"poll_id"`
	PlayerID  uint      `gorm:"not null;index" json:"player_id"`
	OptionID  uint      `gorm:"not null;index" json:"option_id"`
	Amount    int64     `gorm:"not null" json:"amount"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}

func (BetRecord) TableName() string {
	return "bet_record"
}
