package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"ibrl/internal/client/solana"
	"ibrl/internal/errs"
	"ibrl/internal/risk"
)

// TextGenerator is a model that answers in prose.
type TextGenerator interface {
	GenerateText(ctx context.Context, system, prompt string) (string, error)
}

type EpochReader interface {
	GetEpochInfo(ctx context.Context) (solana.EpochInfo, error)
}

type Portfolio struct {
	Owner     string            `json:"owner"`
	Balances  risk.Balances     `json:"balances"`
	SOL       decimal.Decimal   `json:"sol"`
	USDC      decimal.Decimal   `json:"usdc"`
	Price     *PriceQuote       `json:"price,omitempty"`
	ValueUsd  *decimal.Decimal  `json:"valueUsd,omitempty"`
	Epoch     *solana.EpochInfo `json:"epoch,omitempty"`
	FetchedAt time.Time         `json:"fetchedAt"`
}

const advisorSystemPrompt = `You are IBRL-agent's portfolio assistant for a wallet holding only SOL and USDC.
Answer the question in at most four sentences using only the numbers provided.
Never invent balances or prices. Never recommend leverage, yield products or other tokens.
If a number is missing, say it is unavailable.`

// PortfolioService reads wallet balances and answers questions about them.
type PortfolioService struct {
	Balances risk.BalanceReader
	Prices   *PriceService
	Epochs   EpochReader
	Advisor  TextGenerator
	Logger   *zap.Logger
	Now      func() time.Time
}

// Snapshot fails only when balances are unreadable; price and epoch are best effort.
func (s *PortfolioService) Snapshot(ctx context.Context, owner string) (*Portfolio, error) {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return nil, errs.Validation("owner", "required")
	}
	if s.Balances == nil {
		return nil, errs.Upstream("balances", nil)
	}
	bal, err := s.Balances.Balances(ctx, owner)
	if err != nil {
		return nil, errs.Upstream("balances", err)
	}
	now := time.Now().UTC()
	if s.Now != nil {
		now = s.Now().UTC()
	}
	out := &Portfolio{
		Owner:     owner,
		Balances:  bal,
		SOL:       bal.SOL(),
		USDC:      bal.USDC(),
		FetchedAt: now,
	}
	if s.Prices != nil {
		if q, err := s.Prices.Current(ctx); err == nil {
			out.Price = &q
			v := out.SOL.Mul(q.Price).Add(out.USDC).Round(2)
			out.ValueUsd = &v
		} else if s.Logger != nil {
			s.Logger.Debug("portfolio: price unavailable", zap.Error(err))
		}
	}
	if s.Epochs != nil {
		if info, err := s.Epochs.GetEpochInfo(ctx); err == nil {
			out.Epoch = &info
		} else if s.Logger != nil {
			s.Logger.Debug("portfolio: epoch unavailable", zap.Error(err))
		}
	}
	return out, nil
}

// Answer replies to a holdings question. Without an advisor model, or when it fails, the reply
// is a plain statement of the snapshot.
func (s *PortfolioService) Answer(ctx context.Context, owner, question string) (string, *Portfolio, error) {
	snap, err := s.Snapshot(ctx, owner)
	if err != nil {
		return "", nil, err
	}
	fallback := describePortfolio(snap)
	if s.Advisor == nil {
		return fallback, snap, nil
	}
	prompt := fmt.Sprintf("Wallet facts:\n%s\n\nQuestion: %s", fallback, strings.TrimSpace(question))
	text, err := s.Advisor.GenerateText(ctx, advisorSystemPrompt, prompt)
	if err != nil || strings.TrimSpace(text) == "" {
		if s.Logger != nil {
			s.Logger.Warn("portfolio: advisor unavailable", zap.Error(err))
		}
		return fallback, snap, nil
	}
	return strings.TrimSpace(text), snap, nil
}

func describePortfolio(p *Portfolio) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You hold %s SOL and %s USDC.", p.SOL.String(), p.USDC.String())
	if p.Price != nil {
		fmt.Fprintf(&b, " SOL/USD is %s", p.Price.Price.Round(4).String())
		if p.ValueUsd != nil {
			fmt.Fprintf(&b, ", so the wallet is worth about $%s", p.ValueUsd.StringFixed(2))
		}
		b.WriteString(".")
	} else {
		b.WriteString(" The SOL/USD price is unavailable right now.")
	}
	return b.String()
}
