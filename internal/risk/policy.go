package risk

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"

	"ibrl/internal/errs"
	"ibrl/internal/intent"
)

const (
	MaxPolicySlippageBps = 100
	SafeSpendPercent     = 95
)

var (
	minThresholdUsd = decimal.NewFromInt(1)
	maxThresholdUsd = decimal.NewFromInt(10_000)
)

// Balances are live wallet balances in base units.
type Balances struct {
	Lamports      uint64 `json:"lamports"`
	USDCBaseUnits uint64 `json:"usdc_base_units"`
}

func (b Balances) Of(asset intent.Asset) uint64 {
	if asset == intent.AssetUSDC {
		return b.USDCBaseUnits
	}
	return b.Lamports
}

func (b Balances) SOL() decimal.Decimal {
	return intent.FromBaseUnits(b.Lamports, intent.AssetSOL).Value
}

func (b Balances) USDC() decimal.Decimal {
	return intent.FromBaseUnits(b.USDCBaseUnits, intent.AssetUSDC).Value
}

// SafeSpend returns floor(balance * 95 / 100) without leaving integer arithmetic.
func SafeSpend(balance uint64) uint64 {
	v := new(big.Int).SetUint64(balance)
	v.Mul(v, big.NewInt(SafeSpendPercent))
	v.Quo(v, big.NewInt(100))
	return v.Uint64()
}

// CheckPolicy returns nil when owner may act on in given bal. Violations are
// *errs.ValidationError or *errs.InsufficientFundsError.
func CheckPolicy(owner string, in intent.Intent, bal Balances) error {
	return intent.Visit[error](in, policy{owner: strings.TrimSpace(owner), bal: bal})
}

type policy struct {
	owner string
	bal   Balances
}

func (p policy) Chat(intent.Chat) error { return nil }

func (p policy) PortfolioQA(intent.PortfolioQA) error {
	return p.requireOwner()
}

func (p policy) Unsupported(x intent.Unsupported) error {
	reason := strings.TrimSpace(x.Reason)
	if reason == "" {
		reason = "Unsupported intent"
	}
	return errs.Validation("intent", reason)
}

func (p policy) Swap(x intent.Swap) error {
	return p.trade(intent.Trade{From: x.From, To: x.To, Amount: x.Amount, SlippageBps: x.SlippageBps}, nil)
}

func (p policy) ExitToUSDC(x intent.ExitToUSDC) error {
	return p.trade(intent.Trade{From: intent.AssetSOL, To: intent.AssetUSDC, Amount: x.Amount, SlippageBps: x.SlippageBps}, nil)
}

func (p policy) PriceTriggerExit(x intent.PriceTriggerExit) error {
	th := x.ThresholdUsd
	return p.trade(intent.Trade{From: intent.AssetSOL, To: intent.AssetUSDC, Amount: x.Amount, SlippageBps: x.SlippageBps}, &th)
}

func (p policy) PriceTriggerEntry(x intent.PriceTriggerEntry) error {
	th := x.ThresholdUsd
	return p.trade(intent.Trade{From: intent.AssetUSDC, To: intent.AssetSOL, Amount: x.Amount, SlippageBps: x.SlippageBps}, &th)
}

func (p policy) DCASwap(x intent.DCASwap) error {
	return p.trade(intent.Trade{From: x.From, To: x.To, Amount: x.Amount, SlippageBps: x.SlippageBps}, nil)
}

func (p policy) requireOwner() error {
	if p.owner == "" {
		return errs.Validation("owner", "Wallet not connected")
	}
	return nil
}

func (p policy) trade(t intent.Trade, threshold *decimal.Decimal) error {
	if err := p.requireOwner(); err != nil {
		return err
	}
	if t.SlippageBps > MaxPolicySlippageBps {
		return errs.Validation("slippageBps", fmt.Sprintf("Slippage too high (max %d bps)", MaxPolicySlippageBps))
	}
	if t.SlippageBps < intent.MinSlippageBps {
		return errs.Validation("slippageBps", "Slippage must be at least 1 bps")
	}
	if !t.From.Valid() || !t.To.Valid() {
		return errs.Validation("pair", "Only SOL and USDC are supported")
	}
	if t.From == t.To {
		return errs.Validation("pair", "Swap assets must differ")
	}
	if t.Amount.Unit != t.From {
		return errs.Validation("amount.unit", fmt.Sprintf("Amount unit %s must match the asset being sold (%s)", t.Amount.Unit, t.From))
	}
	if threshold != nil && (threshold.LessThan(minThresholdUsd) || threshold.GreaterThan(maxThresholdUsd)) {
		return errs.Validation("thresholdUsd", "Threshold out of bounds")
	}

	requested, err := intent.ToBaseUnits(t.Amount)
	if err != nil {
		return errs.Validation("amount.value", err.Error())
	}
	balance := p.bal.Of(t.From)
	allowed := SafeSpend(balance)
	if requested > allowed {
		shortfall := requested - allowed
		return &errs.InsufficientFundsError{
			Asset:     string(t.From),
			Requested: requested,
			Allowed:   allowed,
			Shortfall: shortfall,
			Reason: fmt.Sprintf("Requested %s exceeds safe spend (%d%% of balance): short by %s",
				t.Amount.String(), SafeSpendPercent, intent.FromBaseUnits(shortfall, t.From).String()),
		}
	}
	return nil
}
