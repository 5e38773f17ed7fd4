package gormrepository

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"

	"ibrl/internal/models"
	"ibrl/internal/repository"
)

var automationOrderColumns = []string{"created_at", "updated_at", "last_fired_at"}

func (s *Store) InsertAutomation(ctx context.Context, item *models.Automation) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) GetAutomation(ctx context.Context, owner, id string) (*models.Automation, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	owner, id = strings.TrimSpace(owner), strings.TrimSpace(id)
	if owner == "" || id == "" {
		return nil, nil
	}
	var item models.Automation
	err := s.db.WithContext(ctx).Where("id = ? AND owner = ?", id, owner).First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListAutomations(ctx context.Context, params repository.ListAutomationsParams) ([]models.Automation, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := automationsQuery(s.db.WithContext(ctx), params)
	query = applyOrder(query, params.OrderBy, params.Asc, "created_at", automationOrderColumns...)
	var items []models.Automation
	if err := query.Limit(normalizeLimit(params.Limit, 200)).Offset(normalizeOffset(params.Offset)).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountAutomations(ctx context.Context, params repository.ListAutomationsParams) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var total int64
	if err := automationsQuery(s.db.WithContext(ctx), params).Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

func automationsQuery(db *gorm.DB, params repository.ListAutomationsParams) *gorm.DB {
	query := db.Model(&models.Automation{})
	if v, ok := trimmed(params.Owner); ok {
		query = query.Where("owner = ?", v)
	}
	if v, ok := trimmed(params.Status); ok {
		query = query.Where("status = ?", strings.ToUpper(v))
	}
	if kinds := cleanStrings(params.Kinds); len(kinds) > 0 {
		query = query.Where("kind IN ?", kinds)
	}
	if params.Since != nil && !params.Since.IsZero() {
		query = query.Where("created_at >= ?", *params.Since)
	}
	return query
}

func (s *Store) SetAutomationStatus(ctx context.Context, owner, id, status string) (*models.Automation, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	res := s.db.WithContext(ctx).Model(&models.Automation{}).
		Where("id = ? AND owner = ?", strings.TrimSpace(id), strings.TrimSpace(owner)).
		Updates(map[string]any{
			"status":     status,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return s.GetAutomation(ctx, owner, id)
}

func (s *Store) DeleteAutomation(ctx context.Context, owner, id string) (bool, error) {
	if s == nil || s.db == nil {
		return false, nil
	}
	owner, id = strings.TrimSpace(owner), strings.TrimSpace(id)
	if owner == "" || id == "" {
		return false, nil
	}
	deleted := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Automation{}).Where("id = ? AND owner = ?", id, owner).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return nil
		}
		// Proposals are kept for audit and only lose their link.
		if err := tx.Model(&models.Proposal{}).Where("intent_id = ?", id).
			UpdateColumn("intent_id", nil).Error; err != nil {
			return err
		}
		res := tx.Where("id = ? AND owner = ?", id, owner).Delete(&models.Automation{})
		if res.Error != nil {
			return res.Error
		}
		deleted = res.RowsAffected > 0
		return nil
	})
	if err != nil {
		return false, err
	}
	return deleted, nil
}
