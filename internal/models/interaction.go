package models

import (
	"time"

	"gorm.io/datatypes"
)

// Interaction records one natural-language request from a wallet owner.
type Interaction struct {
	ID      string         `gorm:"type:varchar(36);primaryKey"`
	Owner   string         `gorm:"type:varchar(64);not null;index:idx_interactions_owner_created,priority:1"`
	Prompt  string         `gorm:"type:text;not null"`
	Execute bool           `gorm:"not null;default:false"`
	OK      bool           `gorm:"column:ok;not null;default:true"`
	Kind    string         `gorm:"type:varchar(32)"`
	Source  string         `gorm:"type:varchar(16)"`
	Payload datatypes.JSON `gorm:"type:jsonb"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index:idx_interactions_owner_created,priority:2"`
}

func (Interaction) TableName() string {
	return "interactions"
}
