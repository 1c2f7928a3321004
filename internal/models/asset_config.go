package models

import (
	"time"
)

// Asset status values. Ledger mutations are rejected for non-active assets.
const (
	AssetStatusActive   = "ACTIVE"
	AssetStatusDisabled = "DISABLED"
)

// AssetConfig is a fungible asset players hold balances of.
// Amounts everywhere are integers in the smallest unit of the asset.
type AssetConfig struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	Symbol    string    `gorm:"size:16;not null;uniqueIndex" json:"symbol"`
	Name      string    `gorm:"size:64;not null" json:"name"`
	Decimals  int       `gorm:"default:0" json:"decimals"`
	Status    string    `gorm:"size:16;not null;default:'ACTIVE'" json:"status"` // 'ACTIVE' or 'DISABLED'
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (AssetConfig) TableName() string {
	return "asset_config"
}
