package service

import (
	"context"
	"encoding/json"
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

type route int

const (
	routeUnsupported route = iota
	routeChat
	routeQA
	routeTrade
	routeAutomation
)

type router struct{}

func (router) Chat(intent.Chat) route                           { return routeChat }
func (router) PortfolioQA(intent.PortfolioQA) route             { return routeQA }
func (router) Swap(intent.Swap) route                           { return routeTrade }
func (router) ExitToUSDC(intent.ExitToUSDC) route               { return routeTrade }
func (router) PriceTriggerExit(intent.PriceTriggerExit) route   { return routeAutomation }
func (router) PriceTriggerEntry(intent.PriceTriggerEntry) route { return routeAutomation }
func (router) DCASwap(intent.DCASwap) route                     { return routeAutomation }
func (router) Unsupported(intent.Unsupported) route             { return routeUnsupported }

const chatReply = "gm. I can quote SOL/USDC swaps, arm price triggers or DCA schedules, and answer questions about your wallet."

// IntentResult is what one prompt turned into.
type IntentResult struct {
	Kind       intent.Kind           `json:"kind"`
	Source     string                `json:"source"`
	Summary    string                `json:"summary"`
	Intent     json.RawMessage       `json:"intent,omitempty"`
	Reply      string                `json:"reply,omitempty"`
	Executed   bool                  `json:"executed"`
	Preflight  *risk.PreflightResult `json:"preflight,omitempty"`
	Proposal   *models.Proposal      `json:"-"`
	Automation *models.Automation    `json:"-"`
	Portfolio  *Portfolio            `json:"portfolio,omitempty"`
}

// IntentService turns a natural-language prompt into a reply, a proposal or an automation.
type IntentService struct {
	LLM         intent.Generator
	Flags       *SystemSettingsService
	Risk        *risk.Manager
	Proposals   *ProposalService
	Automations *AutomationService
	Portfolio   *PortfolioService
	Repo        repository.Repository
	Logger      *zap.Logger
	Now         func() time.Time
}

func (s *IntentService) extractor(ctx context.Context) *intent.Extractor {
	ex := &intent.Extractor{Logger: s.Logger}
	if s.LLM != nil && s.Flags.IsEnabled(ctx, FeatureLLMIntents, false) {
		ex.LLM = s.LLM
	}
	return ex
}

// Parse extracts the intent without acting on it.
func (s *IntentService) Parse(ctx context.Context, prompt string) (intent.Intent, string) {
	return s.extractor(ctx).Parse(ctx, prompt)
}

// Handle parses prompt and acts on it. Trades become proposals and automation kinds are armed
// only when execute is set; otherwise the policy gate runs as a preview. Every call is recorded
// as an interaction, including rejected ones.
func (s *IntentService) Handle(ctx context.Context, owner, prompt string, execute bool) (*IntentResult, error) {
	owner, prompt = strings.TrimSpace(owner), strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, errs.Validation("prompt", "required")
	}
	in, source := s.Parse(ctx, prompt)
	res := &IntentResult{Kind: in.Kind(), Source: source, Summary: intent.Summary(in)}
	if raw, err := intent.Marshal(in); err == nil {
		res.Intent = raw
	}

	err := s.dispatch(ctx, owner, prompt, execute, in, res)
	s.record(ctx, owner, prompt, execute, res, err)
	if err != nil {
		return res, err
	}
	return res, nil
}

func (s *IntentService) dispatch(ctx context.Context, owner, prompt string, execute bool, in intent.Intent, res *IntentResult) error {
	switch intent.Visit[route](in, router{}) {
	case routeChat:
		res.Reply = chatReply
		if c, ok := in.(intent.Chat); ok && strings.TrimSpace(c.Message) != "" {
			res.Reply = c.Message
		}
		return nil
	case routeQA:
		q, _ := in.(intent.PortfolioQA)
		answer, snap, err := s.Portfolio.Answer(ctx, owner, q.Question)
		if err != nil {
			return err
		}
		res.Reply, res.Portfolio = answer, snap
		return nil
	case routeTrade:
		if !execute {
			return s.preview(ctx, owner, in, res)
		}
		item, err := s.Proposals.CreateUserProposal(ctx, owner, prompt, in)
		if err != nil {
			return err
		}
		res.Proposal, res.Executed = item, true
		return nil
	case routeAutomation:
		if !execute {
			return s.preview(ctx, owner, in, res)
		}
		item, err := s.Automations.Create(ctx, owner, in)
		if err != nil {
			return err
		}
		res.Automation, res.Executed = item, true
		return nil
	default:
		reason := "unsupported request"
		if u, ok := in.(intent.Unsupported); ok && strings.TrimSpace(u.Reason) != "" {
			reason = u.Reason
		}
		return errs.Validation("intent", reason)
	}
}

func (s *IntentService) preview(ctx context.Context, owner string, in intent.Intent, res *IntentResult) error {
	if strings.TrimSpace(owner) == "" {
		return errs.Validation("owner", "Wallet not connected")
	}
	pre, err := s.Risk.Check(ctx, owner, in)
	res.Preflight = &pre
	return err
}

func (s *IntentService) record(ctx context.Context, owner, prompt string, execute bool, res *IntentResult, cause error) {
	if s.Repo == nil || owner == "" {
		return
	}
	payload := map[string]any{"summary": res.Summary}
	if res.Proposal != nil {
		payload["proposalId"] = res.Proposal.ID
	}
	if res.Automation != nil {
		payload["automationId"] = res.Automation.ID
	}
	if cause != nil {
		payload["error"] = cause.Error()
	}
	raw, _ := json.Marshal(payload)
	item := &models.Interaction{
		ID:      uuid.NewString(),
		Owner:   owner,
		Prompt:  prompt,
		Execute: execute,
		OK:      cause == nil,
		Kind:    string(res.Kind),
		Source:  res.Source,
		Payload: datatypes.JSON(raw),
	}
	if s.Now != nil {
		item.CreatedAt = s.Now().UTC()
	}
	if err := s.Repo.InsertInteraction(ctx, item); err != nil && s.Logger != nil {
		s.Logger.Warn("record interaction failed", zap.String("owner", owner), zap.Error(err))
	}
}
