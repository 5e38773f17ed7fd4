// Package intent models the structured trading intents produced by the intent extractor.
//
// Intent is a closed set of variants. Consumers that must treat every kind implement Visitor,
// so a new kind does not compile until each of them handles it.
package intent

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

type Kind string

const (
	KindChat              Kind = "CHAT"
	KindPortfolioQA       Kind = "PORTFOLIO_QA"
	KindSwap              Kind = "SWAP"
	KindExitToUSDC        Kind = "EXIT_TO_USDC"
	KindPriceTriggerExit  Kind = "PRICE_TRIGGER_EXIT"
	KindPriceTriggerEntry Kind = "PRICE_TRIGGER_ENTRY"
	KindDCASwap           Kind = "DCA_SWAP"
	KindUnsupported       Kind = "UNSUPPORTED"
)

func AllKinds() []Kind {
	return []Kind{
		KindChat,
		KindPortfolioQA,
		KindSwap,
		KindExitToUSDC,
		KindPriceTriggerExit,
		KindPriceTriggerEntry,
		KindDCASwap,
		KindUnsupported,
	}
}

func ParseKind(raw string) (Kind, error) {
	k := Kind(strings.ToUpper(strings.TrimSpace(raw)))
	for _, known := range AllKinds() {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown intent kind %q", raw)
}

// IsAutomation reports whether the kind is a standing rule evaluated every tick.
func (k Kind) IsAutomation() bool {
	return k == KindPriceTriggerExit || k == KindPriceTriggerEntry || k == KindDCASwap
}

type Asset string

const (
	AssetSOL  Asset = "SOL"
	AssetUSDC Asset = "USDC"
)

func ParseAsset(raw string) (Asset, bool) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "SOL":
		return AssetSOL, true
	case "USDC", "USD":
		return AssetUSDC, true
	default:
		return "", false
	}
}

func (a Asset) Valid() bool { return a == AssetSOL || a == AssetUSDC }

type Amount struct {
	Value decimal.Decimal `json:"value"`
	Unit  Asset           `json:"unit"`
}

func (a Amount) Equal(b Amount) bool {
	return a.Unit == b.Unit && a.Value.Equal(b.Value)
}

func (a Amount) String() string {
	return a.Value.String() + " " + string(a.Unit)
}

// Intent is implemented only by the variant types in this package.
type Intent interface {
	Kind() Kind
	sealed()
}

type Chat struct {
	Message string
}

type PortfolioQA struct {
	Question string
}

type Swap struct {
	From        Asset
	To          Asset
	Amount      Amount
	SlippageBps int
}

type ExitToUSDC struct {
	Amount      Amount
	SlippageBps int
}

type PriceTriggerExit struct {
	Amount       Amount
	SlippageBps  int
	ThresholdUsd decimal.Decimal
}

// PriceTriggerEntry buys SOL with USDC when the price falls to the threshold.
type PriceTriggerEntry struct {
	Amount       Amount
	SlippageBps  int
	ThresholdUsd decimal.Decimal
}

type DCASwap struct {
	From            Asset
	To              Asset
	Amount          Amount
	SlippageBps     int
	IntervalMinutes int
}

type Unsupported struct {
	Reason string
}

func (Chat) Kind() Kind              { return KindChat }
func (PortfolioQA) Kind() Kind       { return KindPortfolioQA }
func (Swap) Kind() Kind              { return KindSwap }
func (ExitToUSDC) Kind() Kind        { return KindExitToUSDC }
func (PriceTriggerExit) Kind() Kind  { return KindPriceTriggerExit }
func (PriceTriggerEntry) Kind() Kind { return KindPriceTriggerEntry }
func (DCASwap) Kind() Kind           { return KindDCASwap }
func (Unsupported) Kind() Kind       { return KindUnsupported }

func (Chat) sealed()              {}
func (PortfolioQA) sealed()       {}
func (Swap) sealed()              {}
func (ExitToUSDC) sealed()        {}
func (PriceTriggerExit) sealed()  {}
func (PriceTriggerEntry) sealed() {}
func (DCASwap) sealed()           {}
func (Unsupported) sealed()       {}

// Visitor has one method per kind.
type Visitor[T any] interface {
	Chat(Chat) T
	PortfolioQA(PortfolioQA) T
	Swap(Swap) T
	ExitToUSDC(ExitToUSDC) T
	PriceTriggerExit(PriceTriggerExit) T
	PriceTriggerEntry(PriceTriggerEntry) T
	DCASwap(DCASwap) T
	Unsupported(Unsupported) T
}

// Visit dispatches in to the matching Visitor method. Pointer variants are accepted too.
func Visit[T any](in Intent, v Visitor[T]) T {
	switch x := in.(type) {
	case Chat:
		return v.Chat(x)
	case *Chat:
		return v.Chat(*x)
	case PortfolioQA:
		return v.PortfolioQA(x)
	case *PortfolioQA:
		return v.PortfolioQA(*x)
	case Swap:
		return v.Swap(x)
	case *Swap:
		return v.Swap(*x)
	case ExitToUSDC:
		return v.ExitToUSDC(x)
	case *ExitToUSDC:
		return v.ExitToUSDC(*x)
	case PriceTriggerExit:
		return v.PriceTriggerExit(x)
	case *PriceTriggerExit:
		return v.PriceTriggerExit(*x)
	case PriceTriggerEntry:
		return v.PriceTriggerEntry(x)
	case *PriceTriggerEntry:
		return v.PriceTriggerEntry(*x)
	case DCASwap:
		return v.DCASwap(x)
	case *DCASwap:
		return v.DCASwap(*x)
	case Unsupported:
		return v.Unsupported(x)
	case *Unsupported:
		return v.Unsupported(*x)
	}
	// Unreachable for values built by this package; nil is treated as unsupported.
	return v.Unsupported(Unsupported{Reason: "missing intent"})
}

// Trade is the monetary part shared by every swap-producing kind.
type Trade struct {
	From        Asset
	To          Asset
	Amount      Amount
	SlippageBps int
}

type tradeResult struct {
	trade Trade
	ok    bool
}

type tradeVisitor struct{}

func (tradeVisitor) Chat(Chat) tradeResult               { return tradeResult{} }
func (tradeVisitor) PortfolioQA(PortfolioQA) tradeResult { return tradeResult{} }
func (tradeVisitor) Unsupported(Unsupported) tradeResult { return tradeResult{} }

func (tradeVisitor) Swap(x Swap) tradeResult {
	return tradeResult{Trade{From: x.From, To: x.To, Amount: x.Amount, SlippageBps: x.SlippageBps}, true}
}

func (tradeVisitor) ExitToUSDC(x ExitToUSDC) tradeResult {
	return tradeResult{Trade{From: AssetSOL, To: AssetUSDC, Amount: x.Amount, SlippageBps: x.SlippageBps}, true}
}

func (tradeVisitor) PriceTriggerExit(x PriceTriggerExit) tradeResult {
	return tradeResult{Trade{From: AssetSOL, To: AssetUSDC, Amount: x.Amount, SlippageBps: x.SlippageBps}, true}
}

func (tradeVisitor) PriceTriggerEntry(x PriceTriggerEntry) tradeResult {
	return tradeResult{Trade{From: AssetUSDC, To: AssetSOL, Amount: x.Amount, SlippageBps: x.SlippageBps}, true}
}

func (tradeVisitor) DCASwap(x DCASwap) tradeResult {
	return tradeResult{Trade{From: x.From, To: x.To, Amount: x.Amount, SlippageBps: x.SlippageBps}, true}
}

// TradeOf returns the swap pair and amount of a monetary intent.
func TradeOf(in Intent) (Trade, bool) {
	r := Visit[tradeResult](in, tradeVisitor{})
	return r.trade, r.ok
}

// Threshold returns the USD trigger price of a price-trigger intent.
func Threshold(in Intent) (decimal.Decimal, bool) {
	switch x := in.(type) {
	case PriceTriggerExit:
		return x.ThresholdUsd, true
	case *PriceTriggerExit:
		return x.ThresholdUsd, true
	case PriceTriggerEntry:
		return x.ThresholdUsd, true
	case *PriceTriggerEntry:
		return x.ThresholdUsd, true
	}
	return decimal.Zero, false
}

// IntervalMinutes returns the DCA schedule of a DCA intent.
func IntervalMinutes(in Intent) (int, bool) {
	switch x := in.(type) {
	case DCASwap:
		return x.IntervalMinutes, true
	case *DCASwap:
		return x.IntervalMinutes, true
	}
	return 0, false
}
