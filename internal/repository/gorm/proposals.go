package gormrepository

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"ibrl/internal/errs"
	"ibrl/internal/models"
	"ibrl/internal/repository"
)

var proposalOrderColumns = []string{"created_at", "updated_at"}

func (s *Store) InsertProposal(ctx context.Context, item *models.Proposal) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	err := s.db.WithContext(ctx).Omit(clause.Associations).Create(item).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return errs.ErrStateConflict
	}
	return err
}

func (s *Store) InsertProposalMarkFired(ctx context.Context, item *models.Proposal, fire repository.FireParams) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	id := strings.TrimSpace(fire.AutomationID)
	if id == "" {
		return errs.Validation("automation_id", "required")
	}
	item.IntentID = &id
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var auto models.Automation
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ? AND owner = ?", id, fire.Owner).
			First(&auto).Error
		if err == gorm.ErrRecordNotFound {
			return errs.ErrStateConflict
		}
		if err != nil {
			return err
		}
		if !auto.Active() {
			return errs.ErrStateConflict
		}

		var pending int64
		if err := tx.Model(&models.Proposal{}).
			Where("intent_id = ? AND status = ?", id, models.ProposalStatusPending).
			Count(&pending).Error; err != nil {
			return err
		}
		if pending > 0 {
			return errs.ErrStateConflict
		}

		if err := tx.Omit(clause.Associations).Create(item).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return errs.ErrStateConflict
			}
			return err
		}

		updates := map[string]any{
			"last_fired_at": fire.FiredAt,
			"updated_at":    fire.FiredAt,
		}
		if fire.Pause {
			updates["status"] = models.AutomationStatusPaused
		}
		return tx.Model(&models.Automation{}).Where("id = ?", id).UpdateColumns(updates).Error
	})
}

func (s *Store) GetProposal(ctx context.Context, owner, id string) (*models.Proposal, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	owner, id = strings.TrimSpace(owner), strings.TrimSpace(id)
	if owner == "" || id == "" {
		return nil, nil
	}
	var item models.Proposal
	err := s.db.WithContext(ctx).Where("id = ? AND owner = ?", id, owner).First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListProposals(ctx context.Context, params repository.ListProposalsParams) ([]models.Proposal, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := proposalsQuery(s.db.WithContext(ctx), params)
	query = applyOrder(query, params.OrderBy, params.Asc, "created_at", proposalOrderColumns...)
	var items []models.Proposal
	if err := query.Limit(normalizeLimit(params.Limit, 50)).Offset(normalizeOffset(params.Offset)).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountProposals(ctx context.Context, params repository.ListProposalsParams) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var total int64
	if err := proposalsQuery(s.db.WithContext(ctx), params).Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

func proposalsQuery(db *gorm.DB, params repository.ListProposalsParams) *gorm.DB {
	query := db.Model(&models.Proposal{})
	if v, ok := trimmed(params.Owner); ok {
		query = query.Where("owner = ?", v)
	}
	if v, ok := trimmed(params.Status); ok {
		query = query.Where("status = ?", strings.ToUpper(v))
	}
	if origins := cleanStrings(params.Origins); len(origins) > 0 {
		query = query.Where("origin IN ?", origins)
	}
	if v, ok := trimmed(params.IntentID); ok {
		query = query.Where("intent_id = ?", v)
	}
	if params.Since != nil && !params.Since.IsZero() {
		query = query.Where("created_at >= ?", *params.Since)
	}
	if params.UpdatedBefore != nil && !params.UpdatedBefore.IsZero() {
		query = query.Where("updated_at < ?", *params.UpdatedBefore)
	}
	return query
}

func (s *Store) HasPendingProposal(ctx context.Context, automationID string) (bool, error) {
	if s == nil || s.db == nil {
		return false, nil
	}
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Proposal{}).
		Where("intent_id = ? AND status = ?", strings.TrimSpace(automationID), models.ProposalStatusPending).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *Store) DecideProposal(ctx context.Context, owner, id, status string, signature *string, at time.Time) (*models.Proposal, bool, error) {
	if s == nil || s.db == nil {
		return nil, false, nil
	}
	updates := map[string]any{
		"status":     status,
		"updated_at": at.UTC(),
	}
	if sig, ok := trimmed(signature); ok {
		updates["signature"] = gorm.Expr("COALESCE(signature, ?)", sig)
	}
	res := s.db.WithContext(ctx).Model(&models.Proposal{}).
		Where("id = ? AND owner = ? AND status = ?", strings.TrimSpace(id), strings.TrimSpace(owner), models.ProposalStatusPending).
		UpdateColumns(updates)
	if res.Error != nil {
		return nil, false, res.Error
	}
	item, err := s.GetProposal(ctx, owner, id)
	if err != nil {
		return nil, false, err
	}
	return item, res.RowsAffected > 0, nil
}

func (s *Store) UpdatePendingProposalPayload(ctx context.Context, owner, id string, payload repository.ProposalPayload) (bool, error) {
	if s == nil || s.db == nil {
		return false, nil
	}
	updatedAt := payload.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	res := s.db.WithContext(ctx).Model(&models.Proposal{}).
		Where("id = ? AND owner = ? AND status = ?", strings.TrimSpace(id), strings.TrimSpace(owner), models.ProposalStatusPending).
		UpdateColumns(map[string]any{
			"quote_snapshot":    payload.QuoteSnapshot,
			"tx_payload":        payload.TxPayload,
			"simulation_result": payload.SimulationResult,
			"decision_report":   payload.DecisionReport,
			"updated_at":        updatedAt,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
