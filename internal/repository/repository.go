package repository

import (
	"context"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"ibrl/internal/models"
)

// Repository is the persistence surface of the proposal engine. Every owner-scoped read
// returns nil (not an error) when the row does not exist or belongs to another owner.
type Repository interface {
	InTx(ctx context.Context, fn func(tx *gorm.DB) error) error

	// Automations
	InsertAutomation(ctx context.Context, item *models.Automation) error
	GetAutomation(ctx context.Context, owner, id string) (*models.Automation, error)
	ListAutomations(ctx context.Context, params ListAutomationsParams) ([]models.Automation, error)
	CountAutomations(ctx context.Context, params ListAutomationsParams) (int64, error)
	SetAutomationStatus(ctx context.Context, owner, id, status string) (*models.Automation, error)
	// DeleteAutomation detaches the automation's proposals and deletes it in one transaction.
	DeleteAutomation(ctx context.Context, owner, id string) (bool, error)

	// Proposals
	InsertProposal(ctx context.Context, item *models.Proposal) error
	// InsertProposalMarkFired inserts a proposal for an automation and stamps the automation's
	// last_fired_at in the same transaction. It returns errs.ErrStateConflict when the
	// automation is gone, paused, or already has a pending proposal.
	InsertProposalMarkFired(ctx context.Context, item *models.Proposal, fire FireParams) error
	GetProposal(ctx context.Context, owner, id string) (*models.Proposal, error)
	ListProposals(ctx context.Context, params ListProposalsParams) ([]models.Proposal, error)
	CountProposals(ctx context.Context, params ListProposalsParams) (int64, error)
	HasPendingProposal(ctx context.Context, automationID string) (bool, error)
	// DecideProposal moves a pending proposal to status. applied is false when the proposal was
	// no longer pending; the returned row carries its current status either way.
	DecideProposal(ctx context.Context, owner, id, status string, signature *string, at time.Time) (item *models.Proposal, applied bool, err error)
	UpdatePendingProposalPayload(ctx context.Context, owner, id string, payload ProposalPayload) (bool, error)

	// Price samples
	InsertPriceSample(ctx context.Context, item *models.PriceSample) error
	ListPriceSamples(ctx context.Context, since time.Time, limit int) ([]models.PriceSample, error)
	CountPriceSamples(ctx context.Context, since time.Time) (int64, error)
	DeletePriceSamplesBefore(ctx context.Context, before time.Time) (int64, error)

	// Interactions
	InsertInteraction(ctx context.Context, item *models.Interaction) error
	ListInteractions(ctx context.Context, params ListInteractionsParams) ([]models.Interaction, error)
	CountInteractions(ctx context.Context, params ListInteractionsParams) (int64, error)
	LastInteractionAt(ctx context.Context, owner string) (*time.Time, error)

	// ListTrackedOwners returns owners with an active automation or an interaction since since.
	ListTrackedOwners(ctx context.Context, since time.Time) ([]string, error)

	// System settings
	UpsertSystemSetting(ctx context.Context, item *models.SystemSetting) error
	GetSystemSettingByKey(ctx context.Context, key string) (*models.SystemSetting, error)
	ListSystemSettings(ctx context.Context, params ListSystemSettingsParams) ([]models.SystemSetting, error)
	CountSystemSettings(ctx context.Context, params ListSystemSettingsParams) (int64, error)
}

type FireParams struct {
	AutomationID string
	Owner        string
	FiredAt      time.Time
	// Pause sets the automation to PAUSED in the same transaction (one-shot triggers).
	Pause bool
}

// ProposalPayload is the rebuilt part of a proposal written by refresh.
type ProposalPayload struct {
	QuoteSnapshot    datatypes.JSON
	TxPayload        datatypes.JSON
	SimulationResult datatypes.JSON
	DecisionReport   datatypes.JSON
	UpdatedAt        time.Time
}

type ListAutomationsParams struct {
	Limit   int
	Offset  int
	Owner   *string
	Status  *string
	Kinds   []string
	Since   *time.Time
	OrderBy string
	Asc     *bool
}

type ListProposalsParams struct {
	Limit         int
	Offset        int
	Owner         *string
	Status        *string
	Origins       []string
	IntentID      *string
	Since         *time.Time
	UpdatedBefore *time.Time
	OrderBy       string
	Asc           *bool
}

type ListInteractionsParams struct {
	Limit   int
	Offset  int
	Owner   *string
	Since   *time.Time
	OrderBy string
	Asc     *bool
}

type ListSystemSettingsParams struct {
	Limit   int
	Offset  int
	Prefix  *string
	OrderBy string
	Asc     *bool
}
