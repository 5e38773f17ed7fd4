package signal

import (
	"fmt"
	"math"
	"time"

	"ibrl/internal/config"
)

// VolatilityReduceRisk trims SOL exposure when both the price range and the dispersion of
// log-returns over the window are elevated.
type VolatilityReduceRisk struct {
	Config config.VolatilityConfig
}

func (v *VolatilityReduceRisk) Name() string { return NameVolatilityReduceRisk }

// Volatility summarizes a price window.
type Volatility struct {
	Raw      int
	Returns  int
	Stdev    float64
	RangePct float64
	Min      float64
	Max      float64
}

func (v *VolatilityReduceRisk) Evaluate(in Input) Decision {
	window := orDuration(v.Config.Window, 30*time.Minute)
	maxSamples := orInt(v.Config.MaxSamples, 500)
	minSamples := orInt(v.Config.MinSamples, 12)
	minReturns := orInt(v.Config.MinReturns, 10)
	minRange := orFloat(v.Config.MinRangePct, 0.035)
	minStdev := orFloat(v.Config.MinStdev, 0.006)
	cooldown := orDuration(v.Config.Cooldown, 6*time.Hour)
	maxUSDC := dec(orFloat(v.Config.MaxUSDC, 25))
	minSOL := dec(orFloat(v.Config.MinSOL, 0.25))
	fraction := dec(orFloat(v.Config.SizeFraction, 0.12))
	minSize := dec(orFloat(v.Config.MinSize, 0.05))
	maxSize := dec(orFloat(v.Config.MaxSize, 0.15))

	if coolingDown(in.RecentProposals, NameVolatilityReduceRisk, in.Now, cooldown) {
		return abstain("cooldown")
	}
	sol := in.Balances.SOL()
	usdc := in.Balances.USDC()
	if !usdc.LessThan(maxUSDC) {
		return abstain("usdc balance already sufficient")
	}
	if sol.LessThan(minSOL) {
		return abstain("sol balance below minimum")
	}

	samples := windowSamples(in.Samples, in.Now, window)
	if len(samples) > maxSamples {
		samples = samples[len(samples)-maxSamples:]
	}
	if len(samples) < minSamples {
		return abstain("not enough samples")
	}
	st := MeasureVolatility(samples)
	if st.Returns < minReturns {
		return abstain("not enough usable returns")
	}
	if st.RangePct < minRange || st.Stdev < minStdev {
		return abstain("volatility below threshold")
	}

	size := clamp(sol.Mul(fraction), minSize, maxSize).RoundDown(6)
	return Decision{
		Fire:   true,
		Intent: exitIntent(size, v.Config.SlippageBps),
		Rationale: fmt.Sprintf("SOL/USD moved %.2f%% peak-to-trough in %s with log-return stdev %.4f. Reducing exposure by %s SOL.",
			st.RangePct*100, formatWindow(window), st.Stdev, size.String()),
		Metrics: map[string]float64{
			"range_pct":     st.RangePct,
			"stdev_logret":  st.Stdev,
			"samples":       float64(st.Raw),
			"returns":       float64(st.Returns),
			"min_usd":       st.Min,
			"max_usd":       st.Max,
			"sol_balance":   sol.InexactFloat64(),
			"usdc_balance":  usdc.InexactFloat64(),
			"proposed_size": size.InexactFloat64(),
		},
	}
}

// MeasureVolatility computes log-returns between consecutive finite positive prices, their
// sample standard deviation, and the range as a fraction of the minimum price.
func MeasureVolatility(samples []PricePoint) Volatility {
	st := Volatility{Raw: len(samples)}
	prices := make([]float64, 0, len(samples))
	for _, s := range samples {
		p := s.Price.InexactFloat64()
		if math.IsNaN(p) || math.IsInf(p, 0) || p <= 0 {
			continue
		}
		prices = append(prices, p)
	}
	if len(prices) == 0 {
		return st
	}

	st.Min, st.Max = prices[0], prices[0]
	for _, p := range prices[1:] {
		st.Min = math.Min(st.Min, p)
		st.Max = math.Max(st.Max, p)
	}
	st.RangePct = (st.Max - st.Min) / st.Min

	returns := make([]float64, 0, len(prices))
	for i := 1; i < len(prices); i++ {
		r := math.Log(prices[i] / prices[i-1])
		if math.IsNaN(r) || math.IsInf(r, 0) {
			continue
		}
		returns = append(returns, r)
	}
	st.Returns = len(returns)
	if len(returns) < 2 {
		return st
	}
	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))
	ss := 0.0
	for _, r := range returns {
		ss += (r - mean) * (r - mean)
	}
	st.Stdev = math.Sqrt(ss / float64(len(returns)-1))
	return st
}
