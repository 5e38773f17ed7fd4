package service

import (
	"context"
	"strings"
	"time"

	"ibrl/internal/errs"
	"ibrl/internal/models"
	"ibrl/internal/repository"
	"ibrl/internal/signal"
)

const defaultActivityWindow = 6 * time.Hour

type ActivitySummary struct {
	Owner             string    `json:"owner"`
	Since             time.Time `json:"since"`
	ProposalsCreated  int64     `json:"proposalsCreated"`
	ProposalsPending  int64     `json:"proposalsPending"`
	AgentProposals    int64     `json:"agentProposals"`
	Interactions      int64     `json:"interactions"`
	ActiveAutomations int64     `json:"activeAutomations"`
	PausedAutomations int64     `json:"pausedAutomations"`
	PriceSamples      int64     `json:"priceSamples"`
}

// ActivityService summarises what the engine and the owner did recently.
type ActivityService struct {
	Repo repository.Repository
	Now  func() time.Time
}

func (s *ActivityService) Summary(ctx context.Context, owner string, window time.Duration) (*ActivitySummary, error) {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return nil, errs.Validation("owner", "required")
	}
	if window <= 0 {
		window = defaultActivityWindow
	}
	now := time.Now().UTC()
	if s.Now != nil {
		now = s.Now().UTC()
	}
	since := now.Add(-window)
	out := &ActivitySummary{Owner: owner, Since: since}

	var err error
	if out.ProposalsCreated, err = s.Repo.CountProposals(ctx, repository.ListProposalsParams{Owner: &owner, Since: &since}); err != nil {
		return nil, err
	}
	if out.ProposalsPending, err = s.Repo.CountProposals(ctx, repository.ListProposalsParams{
		Owner:  &owner,
		Status: strPtr(models.ProposalStatusPending),
	}); err != nil {
		return nil, err
	}
	agentOrigins := []string{models.OriginAutomation, signal.NameDrawdownHedge, signal.NameUSDCBuffer, signal.NameVolatilityReduceRisk}
	if out.AgentProposals, err = s.Repo.CountProposals(ctx, repository.ListProposalsParams{
		Owner:   &owner,
		Origins: agentOrigins,
		Since:   &since,
	}); err != nil {
		return nil, err
	}
	if out.Interactions, err = s.Repo.CountInteractions(ctx, repository.ListInteractionsParams{Owner: &owner, Since: &since}); err != nil {
		return nil, err
	}
	if out.ActiveAutomations, err = s.Repo.CountAutomations(ctx, repository.ListAutomationsParams{
		Owner:  &owner,
		Status: strPtr(models.AutomationStatusActive),
	}); err != nil {
		return nil, err
	}
	if out.PausedAutomations, err = s.Repo.CountAutomations(ctx, repository.ListAutomationsParams{
		Owner:  &owner,
		Status: strPtr(models.AutomationStatusPaused),
	}); err != nil {
		return nil, err
	}
	if out.PriceSamples, err = s.Repo.CountPriceSamples(ctx, since); err != nil {
		return nil, err
	}
	return out, nil
}

// History lists the owner's recorded prompts, newest first.
func (s *ActivityService) History(ctx context.Context, owner string, limit, offset int) ([]models.Interaction, int64, error) {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return nil, 0, errs.Validation("owner", "required")
	}
	params := repository.ListInteractionsParams{Owner: &owner, Limit: limit, Offset: offset}
	items, err := s.Repo.ListInteractions(ctx, params)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.Repo.CountInteractions(ctx, params)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}
