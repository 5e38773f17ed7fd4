package db

import (
	"ibrl/internal/models"
)

// pendingPerAutomationIndex backs the one-pending-proposal-per-automation rule.
const pendingPerAutomationIndex = `CREATE UNIQUE INDEX IF NOT EXISTS idx_proposals_pending_intent
	ON proposals (intent_id) WHERE status = 'PENDING_APPROVAL' AND intent_id IS NOT NULL`

func AutoMigrate(db *DB) error {
	if db == nil || db.Gorm == nil || db.SQL == nil {
		return nil
	}

	if err := db.Gorm.AutoMigrate(
		&models.Automation{},
		&models.Proposal{},
		&models.PriceSample{},
		&models.Interaction{},
		&models.SystemSetting{},
	); err != nil {
		return err
	}
	if err := db.Gorm.Exec(pendingPerAutomationIndex).Error; err != nil {
		return err
	}
	return nil
}
