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
	"ibrl/internal/report"
	"ibrl/internal/repository"
)

const DefaultStaleAfter = 2 * time.Minute

const (
	NotSendablePending    = "not pending"
	NotSendableSimulation = "simulation failed"
	NotSendableMissing    = "simulation missing"
	NotSendableStale      = "stale"
)

// IsSendable reports whether a proposal may be signed and sent as is. A pending proposal last
// built more than staleAfter ago must be refreshed first.
func IsSendable(p models.Proposal, now time.Time, staleAfter time.Duration) (bool, string) {
	if !p.Pending() {
		return false, NotSendablePending
	}
	sim, err := p.Simulation()
	if err != nil || sim == nil {
		return false, NotSendableMissing
	}
	if !sim.OK {
		return false, NotSendableSimulation
	}
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	if now.Sub(p.UpdatedAt) > staleAfter {
		return false, NotSendableStale
	}
	return true, ""
}

type ProposalService struct {
	Repo       repository.Repository
	Pipeline   *Pipeline
	Locks      *OwnerLocks
	Audit      Auditor
	Logger     *zap.Logger
	StaleAfter time.Duration
	Now        func() time.Time
}

type DecideResult struct {
	Proposal *models.Proposal
	// Applied is false when the proposal had already been decided.
	Applied bool
}

type RefreshResult struct {
	Proposal  *models.Proposal
	Refreshed bool
	Message   string
}

func (s *ProposalService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *ProposalService) staleAfter() time.Duration {
	if s.StaleAfter <= 0 {
		return DefaultStaleAfter
	}
	return s.StaleAfter
}

func (s *ProposalService) Sendable(p models.Proposal) (bool, string) {
	return IsSendable(p, s.now(), s.staleAfter())
}

// CreateUserProposal builds and stores a proposal for a swap the owner asked for directly.
func (s *ProposalService) CreateUserProposal(ctx context.Context, owner, prompt string, in intent.Intent) (*models.Proposal, error) {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return nil, errs.Validation("owner", "Wallet not connected")
	}
	unlock, err := s.Locks.LockContext(ctx, owner)
	if err != nil {
		return nil, err
	}
	defer unlock()

	built, err := s.Pipeline.Build(ctx, owner, in)
	if err != nil {
		return nil, err
	}
	item, err := newProposal(proposalDraft{
		Owner:     owner,
		Prompt:    prompt,
		Origin:    models.OriginUser,
		CreatedBy: models.CreatedByUser,
		Summary:   intent.Summary(in),
		Intent:    in,
		Built:     built,
		Now:       s.now(),
	})
	if err != nil {
		return nil, err
	}
	if err := s.Repo.InsertProposal(ctx, item); err != nil {
		return nil, err
	}
	return item, nil
}

func (s *ProposalService) Get(ctx context.Context, owner, id string) (*models.Proposal, error) {
	item, err := s.Repo.GetProposal(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, errs.ErrNotFound
	}
	return item, nil
}

func (s *ProposalService) List(ctx context.Context, owner string, status *string, limit, offset int) ([]models.Proposal, int64, error) {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return nil, 0, errs.Validation("owner", "required")
	}
	params := repository.ListProposalsParams{
		Owner:  &owner,
		Status: status,
		Limit:  limit,
		Offset: offset,
	}
	items, err := s.Repo.ListProposals(ctx, params)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.Repo.CountProposals(ctx, params)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (s *ProposalService) Pending(ctx context.Context, owner string, limit int) ([]models.Proposal, error) {
	status := models.ProposalStatusPending
	items, _, err := s.List(ctx, owner, &status, limit, 0)
	return items, err
}

// Decide records the owner's decision. Deciding an already decided proposal is not an error:
// the current state is returned with Applied=false.
func (s *ProposalService) Decide(ctx context.Context, owner, id, decision string, signature *string) (DecideResult, error) {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return DecideResult{}, errs.Validation("owner", "required")
	}
	status := strings.ToUpper(strings.TrimSpace(decision))
	if status != models.ProposalStatusSent && status != models.ProposalStatusDenied {
		return DecideResult{}, errs.Validation("decision", "must be SENT or DENIED")
	}
	if status == models.ProposalStatusDenied {
		signature = nil
	}

	unlock, err := s.Locks.LockContext(ctx, owner)
	if err != nil {
		return DecideResult{}, err
	}
	defer unlock()

	item, applied, err := s.Repo.DecideProposal(ctx, owner, id, status, signature, s.now())
	if err != nil {
		return DecideResult{}, err
	}
	if item == nil {
		return DecideResult{}, errs.ErrNotFound
	}
	if s.Logger != nil {
		s.Logger.Info("proposal decided",
			zap.String("owner", owner),
			zap.String("proposal_id", item.ID),
			zap.String("status", item.Status),
			zap.Bool("applied", applied),
		)
	}
	if applied {
		audit(ctx, s.Audit, "proposal_decided", map[string]any{
			"owner":       owner,
			"proposal_id": item.ID,
			"status":      item.Status,
		})
	}
	return DecideResult{Proposal: item, Applied: applied}, nil
}

// Refresh rebuilds quote, transaction and simulation of a pending proposal in place.
func (s *ProposalService) Refresh(ctx context.Context, owner, id string) (RefreshResult, error) {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return RefreshResult{}, errs.Validation("owner", "required")
	}
	unlock, err := s.Locks.LockContext(ctx, owner)
	if err != nil {
		return RefreshResult{}, err
	}
	defer unlock()

	item, err := s.Get(ctx, owner, id)
	if err != nil {
		return RefreshResult{}, err
	}
	if !item.Pending() {
		return RefreshResult{Proposal: item, Message: "not pending; no refresh required"}, nil
	}
	in, err := item.Intent()
	if err != nil {
		return RefreshResult{}, err
	}
	built, err := s.Pipeline.Build(ctx, owner, in)
	if err != nil {
		return RefreshResult{}, err
	}

	var signal *report.SignalInfo
	var trigger *report.TriggerInfo
	if len(item.DecisionReport) > 0 {
		if prev, err := report.Decode(item.DecisionReport); err == nil {
			signal, trigger = prev.Signal, prev.Trigger
		}
	}
	now := s.now()
	fresh, err := newProposal(proposalDraft{
		Owner:     owner,
		Prompt:    item.Prompt,
		Origin:    item.Origin,
		CreatedBy: item.CreatedBy,
		Summary:   item.Summary,
		Intent:    in,
		Built:     built,
		Signal:    signal,
		Trigger:   trigger,
		Now:       now,
	})
	if err != nil {
		return RefreshResult{}, err
	}
	ok, err := s.Repo.UpdatePendingProposalPayload(ctx, owner, item.ID, repository.ProposalPayload{
		QuoteSnapshot:    fresh.QuoteSnapshot,
		TxPayload:        fresh.TxPayload,
		SimulationResult: fresh.SimulationResult,
		DecisionReport:   fresh.DecisionReport,
		UpdatedAt:        now,
	})
	if err != nil {
		return RefreshResult{}, err
	}
	current, err := s.Get(ctx, owner, item.ID)
	if err != nil {
		return RefreshResult{}, err
	}
	if !ok {
		// Decided while we were rebuilding.
		return RefreshResult{Proposal: current, Message: "not pending; no refresh required"}, nil
	}
	return RefreshResult{Proposal: current, Refreshed: true, Message: "refreshed"}, nil
}

// proposalDraft is everything needed to assemble a pending proposal row.
type proposalDraft struct {
	Owner     string
	Prompt    string
	Origin    string
	CreatedBy string
	Summary   string
	Intent    intent.Intent
	Built     *Built
	Signal    *report.SignalInfo
	Trigger   *report.TriggerInfo
	Now       time.Time
}

func newProposal(d proposalDraft) (*models.Proposal, error) {
	rawIntent, err := intent.Marshal(d.Intent)
	if err != nil {
		return nil, fmt.Errorf("encode intent: %w", err)
	}
	item := &models.Proposal{
		ID:             uuid.NewString(),
		Owner:          d.Owner,
		Kind:           string(d.Intent.Kind()),
		Origin:         d.Origin,
		CreatedBy:      d.CreatedBy,
		Summary:        d.Summary,
		Prompt:         d.Prompt,
		IntentSnapshot: datatypes.JSON(rawIntent),
		Status:         models.ProposalStatusPending,
		CreatedAt:      d.Now,
		UpdatedAt:      d.Now,
	}
	if err := item.SetPayloads(d.Built.Quote, d.Built.Tx, d.Built.Simulation); err != nil {
		return nil, err
	}
	rep := report.Build(report.Input{
		Owner:      d.Owner,
		Prompt:     d.Prompt,
		Origin:     d.Origin,
		Intent:     d.Intent,
		Summary:    d.Summary,
		Preflight:  d.Built.Preflight,
		Quote:      &d.Built.Quote,
		Simulation: &d.Built.Simulation,
		Signal:     d.Signal,
		Trigger:    d.Trigger,
		Now:        d.Now,
	})
	rawReport, err := rep.Encode()
	if err != nil {
		return nil, fmt.Errorf("encode report: %w", err)
	}
	item.DecisionReport = datatypes.JSON(rawReport)
	return item, nil
}
