// Package signal holds the autonomous detectors that decide, from recent prices and wallet
// balances, whether the engine should propose an exit to USDC for an owner.
//
// Detectors are pure: they never read the clock, the network or the database. The engine
// gathers an Input per owner and runs the policy gate and the swap pipeline on a firing Decision.
package signal

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"ibrl/internal/config"
	"ibrl/internal/intent"
	"ibrl/internal/risk"
)

const (
	NameDrawdownHedge        = "drawdown_hedge"
	NameUSDCBuffer           = "usdc_buffer"
	NameVolatilityReduceRisk = "volatility_reduce_risk"
)

type PricePoint struct {
	Price decimal.Decimal
	TS    time.Time
}

// ProposalRef is the part of a past proposal that cooldowns look at.
type ProposalRef struct {
	Origin    string
	CreatedAt time.Time
}

type Input struct {
	Owner             string
	Balances          risk.Balances
	Samples           []PricePoint
	RecentProposals   []ProposalRef
	LastInteractionAt *time.Time
	Now               time.Time
}

type Decision struct {
	Fire      bool
	Intent    intent.ExitToUSDC
	Rationale string
	Metrics   map[string]float64
	// Reason explains an abstention.
	Reason string
}

type Detector interface {
	Name() string
	Evaluate(in Input) Decision
}

// New returns the detectors enabled in cfg, in a fixed order.
func New(cfg config.DetectorsConfig) []Detector {
	out := []Detector{}
	if cfg.Drawdown.Enabled {
		out = append(out, &DrawdownHedge{Config: cfg.Drawdown})
	}
	if cfg.Buffer.Enabled {
		out = append(out, &USDCBuffer{Config: cfg.Buffer})
	}
	if cfg.Volatility.Enabled {
		out = append(out, &VolatilityReduceRisk{Config: cfg.Volatility})
	}
	return out
}

func abstain(reason string) Decision {
	return Decision{Reason: reason}
}

// windowSamples returns the samples with now-window <= ts <= now, oldest first.
func windowSamples(samples []PricePoint, now time.Time, window time.Duration) []PricePoint {
	from := now.Add(-window)
	out := make([]PricePoint, 0, len(samples))
	for _, s := range samples {
		if s.TS.Before(from) || s.TS.After(now) {
			continue
		}
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].TS.Before(out[j].TS) })
	return out
}

// coolingDown reports whether a proposal with origin was created within cooldown of now.
func coolingDown(refs []ProposalRef, origin string, now time.Time, cooldown time.Duration) bool {
	if cooldown <= 0 {
		return false
	}
	for _, r := range refs {
		if r.Origin != origin {
			continue
		}
		if now.Sub(r.CreatedAt) < cooldown {
			return true
		}
	}
	return false
}

func clamp(v, lo, hi decimal.Decimal) decimal.Decimal {
	if v.LessThan(lo) {
		return lo
	}
	if v.GreaterThan(hi) {
		return hi
	}
	return v
}

func dec(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

func exitIntent(size decimal.Decimal, slippageBps int) intent.ExitToUSDC {
	if slippageBps <= 0 {
		slippageBps = intent.DefaultSlippageBps
	}
	return intent.ExitToUSDC{
		Amount:      intent.Amount{Value: size.RoundDown(intent.SOLDecimals), Unit: intent.AssetSOL},
		SlippageBps: slippageBps,
	}
}

func orDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func orFloat(v, def float64) float64 {
	if v <= 0 {
		return def
	}
	return v
}

func orInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
