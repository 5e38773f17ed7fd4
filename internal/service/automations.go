package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"ibrl/internal/errs"
	"ibrl/internal/intent"
	"ibrl/internal/models"
	"ibrl/internal/repository"
	"ibrl/internal/risk"
)

const (
	ActionPause  = "PAUSE"
	ActionResume = "RESUME"
)

type AutomationService struct {
	Repo   repository.Repository
	Risk   *risk.Manager
	Locks  *OwnerLocks
	Logger *zap.Logger
	Now    func() time.Time
}

func (s *AutomationService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// Create arms a price trigger or DCA schedule. The policy gate runs now against live balances
// and again every time the automation fires.
func (s *AutomationService) Create(ctx context.Context, owner string, in intent.Intent) (*models.Automation, error) {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return nil, errs.Validation("owner", "Wallet not connected")
	}
	if in == nil || !in.Kind().IsAutomation() {
		kind := "none"
		if in != nil {
			kind = string(in.Kind())
		}
		return nil, errs.Validation("kind", fmt.Sprintf("%s is not an automation", kind))
	}
	if err := intent.Validate(in); err != nil {
		return nil, err
	}
	if _, err := s.Risk.Check(ctx, owner, in); err != nil {
		return nil, err
	}
	raw, err := intent.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("encode intent: %w", err)
	}

	unlock, err := s.Locks.LockContext(ctx, owner)
	if err != nil {
		return nil, err
	}
	defer unlock()

	now := s.now()
	item := &models.Automation{
		ID:        uuid.NewString(),
		Owner:     owner,
		Kind:      string(in.Kind()),
		Config:    datatypes.JSON(raw),
		Status:    models.AutomationStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.Repo.InsertAutomation(ctx, item); err != nil {
		return nil, err
	}
	if s.Logger != nil {
		s.Logger.Info("automation armed",
			zap.String("owner", owner),
			zap.String("automation_id", item.ID),
			zap.String("kind", item.Kind),
		)
	}
	return item, nil
}

func (s *AutomationService) List(ctx context.Context, owner string, status *string, limit, offset int) ([]models.Automation, int64, error) {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return nil, 0, errs.Validation("owner", "required")
	}
	if status != nil {
		v := strings.ToUpper(strings.TrimSpace(*status))
		if v != "" && v != models.AutomationStatusActive && v != models.AutomationStatusPaused {
			return nil, 0, errs.Validation("status", "must be ACTIVE or PAUSED")
		}
		status = &v
	}
	params := repository.ListAutomationsParams{Owner: &owner, Status: status, Limit: limit, Offset: offset}
	items, err := s.Repo.ListAutomations(ctx, params)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.Repo.CountAutomations(ctx, params)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (s *AutomationService) Get(ctx context.Context, owner, id string) (*models.Automation, error) {
	item, err := s.Repo.GetAutomation(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, errs.ErrNotFound
	}
	return item, nil
}

// Apply pauses or resumes an automation.
func (s *AutomationService) Apply(ctx context.Context, owner, id, action string) (*models.Automation, error) {
	var status string
	switch strings.ToUpper(strings.TrimSpace(action)) {
	case ActionPause:
		status = models.AutomationStatusPaused
	case ActionResume:
		status = models.AutomationStatusActive
	default:
		return nil, errs.Validation("action", "must be PAUSE or RESUME")
	}
	owner = strings.TrimSpace(owner)
	unlock, err := s.Locks.LockContext(ctx, owner)
	if err != nil {
		return nil, err
	}
	defer unlock()

	item, err := s.Repo.SetAutomationStatus(ctx, owner, id, status)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, errs.ErrNotFound
	}
	return item, nil
}

// Delete removes an automation. Its proposals stay for audit, detached from it.
func (s *AutomationService) Delete(ctx context.Context, owner, id string) error {
	owner = strings.TrimSpace(owner)
	unlock, err := s.Locks.LockContext(ctx, owner)
	if err != nil {
		return err
	}
	defer unlock()

	deleted, err := s.Repo.DeleteAutomation(ctx, owner, id)
	if err != nil {
		return err
	}
	if !deleted {
		return errs.ErrNotFound
	}
	return nil
}
