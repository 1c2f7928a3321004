package models

import (
	"encoding/json"
	"time"
)

// Poll lifecycle status
const (
	PollStatusActive = "ACTIVE"
	PollStatusEnded  = "ENDED"
)

// Betting status drives settlement eligibility and claiming
const (
	BettingStatusOpen     = "OPEN"
	BettingStatusSettling = "SETTLING"
	BettingStatusSettled  = "SETTLED"
)

// Poll is the aggregate root for a single prediction market.
// SettlementProgress holds the orchestrator's durable checkpoint and is
// mutated only by the settlement engine. Once IsSettled is true,
// AnswerOptionIDs is immutable and no payout may reference this poll again.
type Poll struct {
	ID                  uint            `gorm:"primarykey" json:"id"`
	Title               string          `gorm:"size:128;not null" json:"title"`
	AssetID             uint            `gorm:"not null" json:"asset_id"`
	Status              string          `gorm:"size:16;not null;default:'ACTIVE'" json:"status"`                // 'ACTIVE' or 'ENDED'
	BettingStatus       string          `gorm:"size:16;not null;default:'OPEN';index" json:"betting_status"`    // 'OPEN', 'SETTLING', 'SETTLED'
	ClosesAt            time.Time       `gorm:"not null;index" json:"closes_at"`
	HouseCommissionRate float64         `gorm:"default:0" json:"house_commission_rate"` // fraction of the pool, e.g. 0.05
	HouseCommission     int64           `gorm:"default:0" json:"house_commission"`      // computed at settlement time
	TotalStake          int64           `gorm:"default:0" json:"total_stake"`
	IsSettled           bool            `gorm:"default:false" json:"is_settled"`
	SettledAt           *time.Time      `json:"settled_at"`
	SettledBy           string          `gorm:"size:64" json:"settled_by"`
	AnswerOptionIDs     json.RawMessage `gorm:"type:jsonb" json:"answer_option_ids"`
	SettlementProgress  json.RawMessage `gorm:"type:jsonb" json:"settlement_progress"`
	RequiresReview      bool            `gorm:"default:false" json:"requires_review"`
	CreatedAt           time.Time       `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt           time.Time       `json:"updated_at" gorm:"autoUpdateTime"`

	Asset   *AssetConfig `gorm:"foreignKey:AssetID" json:"asset,omitempty"`
	Options []PollOption `gorm:"foreignKey:PollID" json:"options,omitempty"`
}

func (Poll) TableName() string {
	return "poll"
}

// PollOption carries the per-option stake and participation totals that are
// maintained at bet placement and read by the result resolver.
type PollOption struct {
	ID         uint      `gorm:"primarykey" json:"id"`
	PollID     uint      `gorm:"not null;index" json:"poll_id"`
	Label      string    `gorm:"size:128;not null" json:"label"`
	TotalStake int64     `gorm:"default:0" json:"total_stake"`
	BetCount   int       `gorm:"default:0" json:"bet_count"`
	CreatedAt  time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt  time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (PollOption) TableName() string {
	return "poll_option"
}
