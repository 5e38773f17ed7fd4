package intent

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseLocal_Swap(t *testing.T) {
	in := ParseLocal("Swap 0.1 SOL to USDC")
	swap, ok := in.(Swap)
	if !ok {
		t.Fatalf("type=%T want Swap", in)
	}
	if swap.From != AssetSOL || swap.To != AssetUSDC {
		t.Fatalf("pair=%s->%s want SOL->USDC", swap.From, swap.To)
	}
	if !swap.Amount.Equal(sol("0.1")) || swap.SlippageBps != DefaultSlippageBps {
		t.Fatalf("amount=%s slippage=%d", swap.Amount.String(), swap.SlippageBps)
	}
}

func TestParseLocal_SwapUSDCToSOLWithSlippage(t *testing.T) {
	in := ParseLocal("convert 25 usdc -> sol with 30 bps")
	swap, ok := in.(Swap)
	if !ok {
		t.Fatalf("type=%T want Swap", in)
	}
	if swap.Amount.Unit != AssetUSDC || swap.To != AssetSOL || swap.SlippageBps != 30 {
		t.Fatalf("swap=%#v", swap)
	}
}

func TestParseLocal_Exit(t *testing.T) {
	in := ParseLocal("exit 0.25 sol to usdc")
	exit, ok := in.(ExitToUSDC)
	if !ok || !exit.Amount.Equal(sol("0.25")) {
		t.Fatalf("intent=%#v want ExitToUSDC 0.25 SOL", in)
	}
}

func TestParseLocal_Triggers(t *testing.T) {
	in := ParseLocal("Protect 0.5 SOL if SOL drops below $120")
	exit, ok := in.(PriceTriggerExit)
	if !ok {
		t.Fatalf("type=%T want PriceTriggerExit", in)
	}
	if !exit.ThresholdUsd.Equal(decimal.NewFromInt(120)) || !exit.Amount.Equal(sol("0.5")) {
		t.Fatalf("trigger=%#v", exit)
	}

	in = ParseLocal("buy SOL with 20 USDC if SOL dips below 95.5")
	entry, ok := in.(PriceTriggerEntry)
	if !ok {
		t.Fatalf("type=%T want PriceTriggerEntry", in)
	}
	if !entry.ThresholdUsd.Equal(decimal.RequireFromString("95.5")) || entry.Amount.Unit != AssetUSDC {
		t.Fatalf("entry=%#v", entry)
	}
}

func TestParseLocal_DCA(t *testing.T) {
	in := ParseLocal("DCA 10 USDC to SOL every 2h")
	dca, ok := in.(DCASwap)
	if !ok {
		t.Fatalf("type=%T want DCASwap", in)
	}
	if dca.IntervalMinutes != 120 || dca.From != AssetUSDC || dca.To != AssetSOL {
		t.Fatalf("dca=%#v", dca)
	}
	if err := Validate(dca); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestParseLocal_FallThrough(t *testing.T) {
	if k := ParseLocal("hello there").Kind(); k != KindChat {
		t.Fatalf("kind=%s want CHAT", k)
	}
	if k := ParseLocal("swap 0.1 sol").Kind(); k != KindUnsupported {
		t.Fatalf("kind=%s want UNSUPPORTED", k)
	}
	if k := ParseLocal("what should my portfolio look like?").Kind(); k != KindPortfolioQA {
		t.Fatalf("kind=%s want PORTFOLIO_QA", k)
	}
	if k := ParseLocal("stake my JUP").Kind(); k != KindUnsupported {
		t.Fatalf("kind=%s want UNSUPPORTED", k)
	}
}
