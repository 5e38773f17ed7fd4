package handler

import (
	"encoding/json"
	"time"

	"ibrl/internal/intent"
	"ibrl/internal/models"
	"ibrl/internal/service"
)

// ProposalView is a proposal as the UI sees it, with its sendability evaluated now.
type ProposalView struct {
	ID                string          `json:"id"`
	Owner             string          `json:"owner"`
	AutomationID      *string         `json:"automationId,omitempty"`
	Kind              string          `json:"kind"`
	Origin            string          `json:"origin"`
	CreatedBy         string          `json:"createdBy"`
	Summary           string          `json:"summary"`
	Prompt            string          `json:"prompt,omitempty"`
	Status            string          `json:"status"`
	Signature         *string         `json:"signature,omitempty"`
	Intent            json.RawMessage `json:"intent"`
	Quote             json.RawMessage `json:"quote,omitempty"`
	Tx                json.RawMessage `json:"tx,omitempty"`
	Simulation        json.RawMessage `json:"simulation,omitempty"`
	Report            json.RawMessage `json:"report,omitempty"`
	Sendable          bool            `json:"sendable"`
	Stale             bool            `json:"stale"`
	NotSendableReason string          `json:"notSendableReason,omitempty"`
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}

func proposalView(svc *service.ProposalService, p *models.Proposal) *ProposalView {
	if p == nil {
		return nil
	}
	ok, reason := svc.Sendable(*p)
	return &ProposalView{
		ID:                p.ID,
		Owner:             p.Owner,
		AutomationID:      p.IntentID,
		Kind:              p.Kind,
		Origin:            p.Origin,
		CreatedBy:         p.CreatedBy,
		Summary:           p.Summary,
		Prompt:            p.Prompt,
		Status:            p.Status,
		Signature:         p.Signature,
		Intent:            raw(p.IntentSnapshot),
		Quote:             raw(p.QuoteSnapshot),
		Tx:                raw(p.TxPayload),
		Simulation:        raw(p.SimulationResult),
		Report:            raw(p.DecisionReport),
		Sendable:          ok,
		Stale:             reason == service.NotSendableStale,
		NotSendableReason: reason,
		CreatedAt:         p.CreatedAt,
		UpdatedAt:         p.UpdatedAt,
	}
}

func proposalViews(svc *service.ProposalService, items []models.Proposal) []*ProposalView {
	out := make([]*ProposalView, 0, len(items))
	for i := range items {
		out = append(out, proposalView(svc, &items[i]))
	}
	return out
}

type AutomationView struct {
	ID          string          `json:"id"`
	Owner       string          `json:"owner"`
	Kind        string          `json:"kind"`
	Status      string          `json:"status"`
	Summary     string          `json:"summary"`
	Config      json.RawMessage `json:"config"`
	LastFiredAt *time.Time      `json:"lastFiredAt,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

func automationView(a *models.Automation) *AutomationView {
	if a == nil {
		return nil
	}
	v := &AutomationView{
		ID:          a.ID,
		Owner:       a.Owner,
		Kind:        a.Kind,
		Status:      a.Status,
		Config:      raw(a.Config),
		LastFiredAt: a.LastFiredAt,
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
	}
	if in, err := a.Intent(); err == nil {
		v.Summary = intent.Summary(in)
	}
	return v
}

func raw(b []byte) json.RawMessage {
	if len(b) == 0 {
		return nil
	}
	return json.RawMessage(b)
}
