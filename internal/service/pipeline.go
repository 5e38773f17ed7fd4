package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"ibrl/internal/client/jupiter"
	"ibrl/internal/client/solana"
	"ibrl/internal/errs"
	"ibrl/internal/intent"
	"ibrl/internal/models"
	"ibrl/internal/risk"
)

const maxRouteVenues = 6

// Router quotes a swap and builds its unsigned transaction.
type Router interface {
	Quote(ctx context.Context, inputMint, outputMint string, amount uint64, slippageBps int) (*jupiter.Quote, error)
	Swap(ctx context.Context, q *jupiter.Quote, owner string) (*jupiter.SwapResult, error)
}

type Simulator interface {
	SimulateTransaction(ctx context.Context, txBase64 string) (solana.Simulation, error)
}

type Mints struct {
	SOL  string
	USDC string
}

func (m Mints) Of(a intent.Asset) string {
	if a == intent.AssetUSDC {
		return m.USDC
	}
	return m.SOL
}

// Pipeline turns a monetary intent into a simulated transaction: gate, quote, build, simulate.
type Pipeline struct {
	Risk      *risk.Manager
	Router    Router
	Simulator Simulator
	Mints     Mints
	Logger    *zap.Logger
	Now       func() time.Time
}

type Built struct {
	Preflight  risk.PreflightResult
	Quote      models.QuoteSnapshot
	Tx         models.TxPayload
	Simulation models.SimulationSnapshot
}

// Build re-runs the policy gate against live balances before touching the router. Policy
// rejections come back as validation errors; router or chain failures as upstream errors.
// A simulation that ran but failed is part of a successful result.
func (p *Pipeline) Build(ctx context.Context, owner string, in intent.Intent) (*Built, error) {
	trade, ok := intent.TradeOf(in)
	if !ok {
		return nil, errs.Validation("kind", fmt.Sprintf("%s does not produce a transaction", in.Kind()))
	}
	if p == nil || p.Router == nil || p.Simulator == nil {
		return nil, errs.Upstream("pipeline", errors.New("router or simulator not configured"))
	}

	pre, err := p.Risk.Check(ctx, owner, in)
	if err != nil {
		return nil, err
	}
	amount, err := intent.ToBaseUnits(trade.Amount)
	if err != nil {
		return nil, errs.Validation("amount", err.Error())
	}

	q, err := p.Router.Quote(ctx, p.Mints.Of(trade.From), p.Mints.Of(trade.To), amount, trade.SlippageBps)
	if err != nil || q == nil {
		return nil, errs.Upstream("quote", err)
	}
	swap, err := p.Router.Swap(ctx, q, owner)
	if err != nil || swap == nil {
		return nil, errs.Upstream("build", err)
	}
	sim, err := p.Simulator.SimulateTransaction(ctx, swap.SwapTransaction)
	if err != nil {
		return nil, errs.Upstream("simulate", err)
	}

	now := p.now()
	out := &Built{
		Preflight: pre,
		Quote: models.QuoteSnapshot{
			SchemaVersion:        models.PayloadSchemaVersion,
			InputMint:            q.InputMint,
			OutputMint:           q.OutputMint,
			InAmount:             q.InAmount,
			OutAmount:            q.OutAmount,
			OtherAmountThreshold: q.OtherAmountThreshold,
			PriceImpactPct:       q.PriceImpactPct,
			SlippageBps:          trade.SlippageBps,
			Route: models.RouteSummary{
				HopCount: len(q.RoutePlan),
				Venues:   q.Venues(maxRouteVenues),
			},
			QuotedAt: now,
		},
		Tx: models.TxPayload{
			SchemaVersion:        models.PayloadSchemaVersion,
			TxBase64:             swap.SwapTransaction,
			LastValidBlockHeight: swap.LastValidBlockHeight,
		},
		Simulation: models.SimulationSnapshot{
			SchemaVersion: models.PayloadSchemaVersion,
			OK:            sim.OK(),
			Logs:          sim.Logs,
			UnitsConsumed: sim.UnitsConsumed,
			Slot:          sim.Slot,
			SimulatedAt:   now,
		},
	}
	if !sim.OK() {
		out.Simulation.Err = sim.Err
		if p.Logger != nil {
			p.Logger.Info("simulation failed; proposal will be unsendable",
				zap.String("owner", owner),
				zap.String("kind", string(in.Kind())),
				zap.ByteString("err", sim.Err),
			)
		}
	}
	return out, nil
}

func (p *Pipeline) now() time.Time {
	if p.Now != nil {
		return p.Now().UTC()
	}
	return time.Now().UTC()
}
