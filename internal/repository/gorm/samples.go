package gormrepository

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"

	"ibrl/internal/models"
	"ibrl/internal/repository"
)

func (s *Store) InsertPriceSample(ctx context.Context, item *models.PriceSample) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

// ListPriceSamples returns the newest limit samples since since, oldest first.
func (s *Store) ListPriceSamples(ctx context.Context, since time.Time, limit int) ([]models.PriceSample, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.PriceSample
	if err := s.db.WithContext(ctx).
		Where("ts >= ?", since).
		Order("ts desc").
		Limit(normalizeLimit(limit, 500)).
		Find(&items).Error; err != nil {
		return nil, err
	}
	for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
		items[i], items[j] = items[j], items[i]
	}
	return items, nil
}

func (s *Store) CountPriceSamples(ctx context.Context, since time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var total int64
	if err := s.db.WithContext(ctx).Model(&models.PriceSample{}).Where("ts >= ?", since).Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Store) DeletePriceSamplesBefore(ctx context.Context, before time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	res := s.db.WithContext(ctx).Where("ts < ?", before).Delete(&models.PriceSample{})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (s *Store) InsertInteraction(ctx context.Context, item *models.Interaction) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) ListInteractions(ctx context.Context, params repository.ListInteractionsParams) ([]models.Interaction, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := interactionsQuery(s.db.WithContext(ctx), params)
	query = applyOrder(query, params.OrderBy, params.Asc, "created_at", "created_at")
	var items []models.Interaction
	if err := query.Limit(normalizeLimit(params.Limit, 50)).Offset(normalizeOffset(params.Offset)).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountInteractions(ctx context.Context, params repository.ListInteractionsParams) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var total int64
	if err := interactionsQuery(s.db.WithContext(ctx), params).Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

func interactionsQuery(db *gorm.DB, params repository.ListInteractionsParams) *gorm.DB {
	query := db.Model(&models.Interaction{})
	if v, ok := trimmed(params.Owner); ok {
		query = query.Where("owner = ?", v)
	}
	if params.Since != nil && !params.Since.IsZero() {
		query = query.Where("created_at >= ?", *params.Since)
	}
	return query
}

func (s *Store) LastInteractionAt(ctx context.Context, owner string) (*time.Time, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return nil, nil
	}
	var item models.Interaction
	err := s.db.WithContext(ctx).Select("created_at").
		Where("owner = ?", owner).
		Order("created_at desc").
		First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	ts := item.CreatedAt
	return &ts, nil
}
