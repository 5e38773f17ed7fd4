package signal

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"ibrl/internal/config"
)

// DrawdownHedge proposes a partial exit when SOL/USD has fallen from its recent high.
type DrawdownHedge struct {
	Config config.DrawdownConfig
}

func (d *DrawdownHedge) Name() string { return NameDrawdownHedge }

func (d *DrawdownHedge) Evaluate(in Input) Decision {
	window := orDuration(d.Config.Window, 12*time.Minute)
	cooldown := orDuration(d.Config.Cooldown, 30*time.Minute)
	minDrawdown := dec(orFloat(d.Config.MinDrawdown, 0.03))
	minBalance := dec(orFloat(d.Config.MinBalance, 0.06))
	fraction := dec(orFloat(d.Config.SizeFraction, 0.25))
	maxSize := dec(orFloat(d.Config.MaxSize, 0.25))
	minSize := dec(orFloat(d.Config.MinSize, 0.05))

	if coolingDown(in.RecentProposals, NameDrawdownHedge, in.Now, cooldown) {
		return abstain("cooldown")
	}
	balance := in.Balances.SOL()
	if balance.LessThan(minBalance) {
		return abstain("sol balance below minimum")
	}

	samples := windowSamples(in.Samples, in.Now, window)
	if len(samples) < 2 {
		return abstain("not enough samples")
	}
	peak := samples[0].Price
	for _, s := range samples[1:] {
		if s.Price.GreaterThan(peak) {
			peak = s.Price
		}
	}
	current := samples[len(samples)-1].Price
	if !peak.IsPositive() {
		return abstain("no valid peak")
	}
	drawdown := peak.Sub(current).Div(peak)
	if drawdown.LessThan(minDrawdown) {
		return abstain("drawdown below threshold")
	}

	size := decimal.Min(maxSize, balance.Mul(fraction)).RoundFloor(2)
	size = decimal.Max(size, minSize)

	ddPct := drawdown.Mul(decimal.NewFromInt(100))
	return Decision{
		Fire:   true,
		Intent: exitIntent(size, d.Config.SlippageBps),
		Rationale: fmt.Sprintf("SOL/USD is down %s%% from its %s high ($%s → $%s). Hedging %s SOL into USDC.",
			ddPct.StringFixed(2), formatWindow(window), peak.StringFixed(2), current.StringFixed(2), size.String()),
		Metrics: map[string]float64{
			"drawdown":      drawdown.InexactFloat64(),
			"drawdown_pct":  ddPct.InexactFloat64(),
			"peak_usd":      peak.InexactFloat64(),
			"current_usd":   current.InexactFloat64(),
			"samples":       float64(len(samples)),
			"window_min":    window.Minutes(),
			"sol_balance":   balance.InexactFloat64(),
			"proposed_size": size.InexactFloat64(),
		},
	}
}

func formatWindow(d time.Duration) string {
	if d >= time.Hour && d%time.Hour == 0 {
		return fmt.Sprintf("%dh", int(d/time.Hour))
	}
	return fmt.Sprintf("%dm", int(d/time.Minute))
}
