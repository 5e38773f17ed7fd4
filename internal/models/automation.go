package models

import (
	"time"

	"gorm.io/datatypes"

	"ibrl/internal/intent"
)

const (
	AutomationStatusActive = "ACTIVE"
	AutomationStatusPaused = "PAUSED"
)

// Automation is a standing intent (price trigger or DCA schedule) armed by a wallet owner.
type Automation struct {
	ID    string `gorm:"type:varchar(36);primaryKey"`
	Owner string `gorm:"type:varchar(64);not null;index:idx_automations_owner_status,priority:1"`
	Kind  string `gorm:"type:varchar(32);not null"`

	// Encoded intent, see intent.Marshal.
	Config datatypes.JSON `gorm:"type:jsonb;not null"`

	Status      string     `gorm:"type:varchar(16);not null;default:'ACTIVE';index:idx_automations_owner_status,priority:2"`
	LastFiredAt *time.Time `gorm:"type:timestamptz"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (Automation) TableName() string {
	return "automations"
}

// Intent decodes and validates the stored config.
func (a Automation) Intent() (intent.Intent, error) {
	return intent.Unmarshal(a.Config)
}

func (a Automation) Active() bool {
	return a.Status == AutomationStatusActive
}
