package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceSample is one SOL/USD observation. Rows are append-only; retention deletes old ones.
type PriceSample struct {
	ID     uint64          `gorm:"primaryKey;autoIncrement"`
	Source string          `gorm:"type:varchar(32);not null"`
	Price  decimal.Decimal `gorm:"type:numeric(20,8);not null"`
	Conf   decimal.Decimal `gorm:"type:numeric(20,8);not null;default:0"`
	TS     time.Time       `gorm:"column:ts;type:timestamptz;not null;index"`
}

func (PriceSample) TableName() string {
	return "price_samples"
}
