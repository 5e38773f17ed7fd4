package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"

	"ibrl/internal/errs"
	"ibrl/internal/models"
	"ibrl/internal/repository"
)

// memRepo is a test-only in-memory repository.Repository. It enforces the same pending and
// ownership rules as the gorm store.
type memRepo struct {
	mu           sync.Mutex
	automations  map[string]*models.Automation
	proposals    map[string]*models.Proposal
	samples      []models.PriceSample
	interactions []models.Interaction
	settings     map[string]*models.SystemSetting
	owners       []string
	sampleErr    error
}

func newMemRepo() *memRepo {
	return &memRepo{
		automations: map[string]*models.Automation{},
		proposals:   map[string]*models.Proposal{},
		settings:    map[string]*models.SystemSetting{},
	}
}

func (r *memRepo) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error { return fn(nil) }

func (r *memRepo) InsertAutomation(ctx context.Context, item *models.Automation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *item
	r.automations[item.ID] = &cp
	return nil
}

func (r *memRepo) GetAutomation(ctx context.Context, owner, id string) (*models.Automation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.automations[id]
	if !ok || a.Owner != owner {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (r *memRepo) ListAutomations(ctx context.Context, params repository.ListAutomationsParams) ([]models.Automation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []models.Automation{}
	for _, a := range r.automations {
		if params.Owner != nil && a.Owner != *params.Owner {
			continue
		}
		if params.Status != nil && a.Status != *params.Status {
			continue
		}
		if len(params.Kinds) > 0 && !containsString(params.Kinds, a.Kind) {
			continue
		}
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *memRepo) CountAutomations(ctx context.Context, params repository.ListAutomationsParams) (int64, error) {
	items, err := r.ListAutomations(ctx, params)
	return int64(len(items)), err
}

func (r *memRepo) SetAutomationStatus(ctx context.Context, owner, id, status string) (*models.Automation, error) {
	r.mu.Lock()
	a, ok := r.automations[id]
	if !ok || a.Owner != owner {
		r.mu.Unlock()
		return nil, nil
	}
	a.Status = status
	r.mu.Unlock()
	return r.GetAutomation(ctx, owner, id)
}

func (r *memRepo) DeleteAutomation(ctx context.Context, owner, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.automations[id]
	if !ok || a.Owner != owner {
		return false, nil
	}
	for _, p := range r.proposals {
		if p.IntentID != nil && *p.IntentID == id {
			p.IntentID = nil
		}
	}
	delete(r.automations, id)
	return true, nil
}

func (r *memRepo) pendingFor(automationID string) bool {
	for _, p := range r.proposals {
		if p.IntentID != nil && *p.IntentID == automationID && p.Status == models.ProposalStatusPending {
			return true
		}
	}
	return false
}

func (r *memRepo) InsertProposal(ctx context.Context, item *models.Proposal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if item.IntentID != nil && r.pendingFor(*item.IntentID) {
		return errs.ErrStateConflict
	}
	cp := *item
	r.proposals[item.ID] = &cp
	return nil
}

func (r *memRepo) InsertProposalMarkFired(ctx context.Context, item *models.Proposal, fire repository.FireParams) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.automations[fire.AutomationID]
	if !ok || a.Owner != fire.Owner || !a.Active() || r.pendingFor(fire.AutomationID) {
		return errs.ErrStateConflict
	}
	id := fire.AutomationID
	item.IntentID = &id
	cp := *item
	r.proposals[item.ID] = &cp
	fired := fire.FiredAt
	a.LastFiredAt = &fired
	if fire.Pause {
		a.Status = models.AutomationStatusPaused
	}
	return nil
}

func (r *memRepo) GetProposal(ctx context.Context, owner, id string) (*models.Proposal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.proposals[id]
	if !ok || p.Owner != owner {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (r *memRepo) ListProposals(ctx context.Context, params repository.ListProposalsParams) ([]models.Proposal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []models.Proposal{}
	for _, p := range r.proposals {
		if params.Owner != nil && p.Owner != *params.Owner {
			continue
		}
		if params.Status != nil && p.Status != strings.ToUpper(*params.Status) {
			continue
		}
		if len(params.Origins) > 0 && !contains(params.Origins, p.Origin) {
			continue
		}
		if params.IntentID != nil && (p.IntentID == nil || *p.IntentID != *params.IntentID) {
			continue
		}
		if params.Since != nil && p.CreatedAt.Before(*params.Since) {
			continue
		}
		if params.UpdatedBefore != nil && !p.UpdatedAt.Before(*params.UpdatedBefore) {
			continue
		}
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if params.Offset > 0 {
		if params.Offset >= len(out) {
			return []models.Proposal{}, nil
		}
		out = out[params.Offset:]
	}
	if params.Limit > 0 && len(out) > params.Limit {
		out = out[:params.Limit]
	}
	return out, nil
}

func (r *memRepo) CountProposals(ctx context.Context, params repository.ListProposalsParams) (int64, error) {
	params.Limit, params.Offset = 0, 0
	items, err := r.ListProposals(ctx, params)
	return int64(len(items)), err
}

func (r *memRepo) HasPendingProposal(ctx context.Context, automationID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pendingFor(automationID), nil
}

func (r *memRepo) DecideProposal(ctx context.Context, owner, id, status string, signature *string, at time.Time) (*models.Proposal, bool, error) {
	r.mu.Lock()
	p, ok := r.proposals[id]
	if !ok || p.Owner != owner {
		r.mu.Unlock()
		return nil, false, nil
	}
	applied := false
	if p.Status == models.ProposalStatusPending {
		p.Status = status
		if signature != nil && p.Signature == nil {
			sig := *signature
			p.Signature = &sig
		}
		p.UpdatedAt = at
		applied = true
	}
	r.mu.Unlock()
	item, err := r.GetProposal(ctx, owner, id)
	return item, applied, err
}

func (r *memRepo) UpdatePendingProposalPayload(ctx context.Context, owner, id string, payload repository.ProposalPayload) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.proposals[id]
	if !ok || p.Owner != owner || p.Status != models.ProposalStatusPending {
		return false, nil
	}
	p.QuoteSnapshot = payload.QuoteSnapshot
	p.TxPayload = payload.TxPayload
	p.SimulationResult = payload.SimulationResult
	p.DecisionReport = payload.DecisionReport
	p.UpdatedAt = payload.UpdatedAt
	return true, nil
}

func (r *memRepo) InsertPriceSample(ctx context.Context, item *models.PriceSample) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sampleErr != nil {
		return r.sampleErr
	}
	r.samples = append(r.samples, *item)
	return nil
}

func (r *memRepo) ListPriceSamples(ctx context.Context, since time.Time, limit int) ([]models.PriceSample, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []models.PriceSample{}
	for _, s := range r.samples {
		if !s.TS.Before(since) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TS.Before(out[j].TS) })
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (r *memRepo) CountPriceSamples(ctx context.Context, since time.Time) (int64, error) {
	items, err := r.ListPriceSamples(ctx, since, 0)
	return int64(len(items)), err
}

func (r *memRepo) DeletePriceSamplesBefore(ctx context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.samples[:0]
	var n int64
	for _, s := range r.samples {
		if s.TS.Before(before) {
			n++
			continue
		}
		kept = append(kept, s)
	}
	r.samples = kept
	return n, nil
}

func (r *memRepo) InsertInteraction(ctx context.Context, item *models.Interaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *item
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	r.interactions = append(r.interactions, cp)
	return nil
}

func (r *memRepo) ListInteractions(ctx context.Context, params repository.ListInteractionsParams) ([]models.Interaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []models.Interaction{}
	for _, it := range r.interactions {
		if params.Owner != nil && it.Owner != *params.Owner {
			continue
		}
		if params.Since != nil && it.CreatedAt.Before(*params.Since) {
			continue
		}
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *memRepo) CountInteractions(ctx context.Context, params repository.ListInteractionsParams) (int64, error) {
	items, err := r.ListInteractions(ctx, params)
	return int64(len(items)), err
}

func (r *memRepo) LastInteractionAt(ctx context.Context, owner string) (*time.Time, error) {
	items, err := r.ListInteractions(ctx, repository.ListInteractionsParams{Owner: &owner})
	if err != nil || len(items) == 0 {
		return nil, err
	}
	ts := items[0].CreatedAt
	return &ts, nil
}

func (r *memRepo) ListTrackedOwners(ctx context.Context, since time.Time) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.owners...), nil
}

func (r *memRepo) UpsertSystemSetting(ctx context.Context, item *models.SystemSetting) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *item
	r.settings[item.Key] = &cp
	return nil
}

func (r *memRepo) GetSystemSettingByKey(ctx context.Context, key string) (*models.SystemSetting, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.settings[key]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (r *memRepo) ListSystemSettings(ctx context.Context, params repository.ListSystemSettingsParams) ([]models.SystemSetting, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []models.SystemSetting{}
	for _, s := range r.settings {
		if params.Prefix != nil && !strings.HasPrefix(s.Key, *params.Prefix) {
			continue
		}
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (r *memRepo) CountSystemSettings(ctx context.Context, params repository.ListSystemSettingsParams) (int64, error) {
	items, err := r.ListSystemSettings(ctx, params)
	return int64(len(items)), err
}

func (r *memRepo) proposalCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.proposals)
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func containsString(items []string, v string) bool {
	for _, item := range items {
		if item == v {
			return true
		}
	}
	return false
}
