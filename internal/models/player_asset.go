package models

import (
	"time"
)

// Player asset status values. INACTIVE, FROZEN and DELETED rows reject all
// balance mutations; rows are never hard-deleted.
const (
	PlayerAssetStatusActive   = "ACTIVE"
	PlayerAssetStatusInactive = "INACTIVE"
	PlayerAssetStatusFrozen   = "FROZEN"
	PlayerAssetStatusDeleted  = "DELETED"
)

// PlayerAsset is one (player, asset) balance row. Balance is never negative;
// every mutation goes through the ledger's validated upsert. Rows are
// created lazily on the first credit or debit.
type PlayerAsset struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	PlayerID  uint      `gorm:"not null;uniqueIndex:idx_player_asset" json:"player_id"`
	AssetID   uint      `gorm:"not null;uniqueIndex:idx_player_asset" json:"asset_id"`
	Balance   int64     `gorm:"not null;default:0" json:"balance"`
	Status    string    `gorm:"size:16;not null;default:'ACTIVE'" json:"status"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (PlayerAsset) TableName() string {
	return "player_asset"
}
