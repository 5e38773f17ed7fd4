package signal

import (
	"fmt"
	"time"

	"ibrl/internal/config"
)

// USDCBuffer keeps a small USDC float for recently active owners holding only SOL.
type USDCBuffer struct {
	Config config.BufferConfig
}

func (b *USDCBuffer) Name() string { return NameUSDCBuffer }

func (b *USDCBuffer) Evaluate(in Input) Decision {
	minSOL := dec(orFloat(b.Config.MinSOL, 0.15))
	minUSDC := dec(orFloat(b.Config.MinUSDC, 2))
	cooldown := orDuration(b.Config.Cooldown, 2*time.Hour)
	lookback := orDuration(b.Config.ActiveLookback, 7*24*time.Hour)
	fraction := dec(orFloat(b.Config.SizeFraction, 0.08))
	minSize := dec(orFloat(b.Config.MinSize, 0.02))
	maxSize := dec(orFloat(b.Config.MaxSize, 0.05))

	if in.LastInteractionAt == nil || in.Now.Sub(*in.LastInteractionAt) > lookback {
		return abstain("owner inactive")
	}
	if coolingDown(in.RecentProposals, NameUSDCBuffer, in.Now, cooldown) {
		return abstain("cooldown")
	}
	sol := in.Balances.SOL()
	usdc := in.Balances.USDC()
	if sol.LessThan(minSOL) {
		return abstain("sol balance below minimum")
	}
	if !usdc.LessThan(minUSDC) {
		return abstain("usdc buffer healthy")
	}

	size := clamp(sol.Mul(fraction), minSize, maxSize).RoundDown(6)
	return Decision{
		Fire:   true,
		Intent: exitIntent(size, b.Config.SlippageBps),
		Rationale: fmt.Sprintf("USDC buffer is %s USDC (below %s) while holding %s SOL. Converting %s SOL to keep a stable reserve.",
			usdc.StringFixed(2), minUSDC.String(), sol.StringFixed(4), size.String()),
		Metrics: map[string]float64{
			"sol_balance":   sol.InexactFloat64(),
			"usdc_balance":  usdc.InexactFloat64(),
			"min_usdc":      minUSDC.InexactFloat64(),
			"proposed_size": size.InexactFloat64(),
		},
	}
}
