package intent

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"ibrl/internal/errs"
)

// SchemaVersion is written into every stored intent. Readers reject newer versions.
const SchemaVersion = 1

const (
	MinSlippageBps     = 1
	MaxSlippageBps     = 200
	MinIntervalMinutes = 5
	MaxIntervalMinutes = 1440
)

type wire struct {
	SchemaVersion   int              `json:"schema_version"`
	Kind            Kind             `json:"kind"`
	Message         string           `json:"message,omitempty"`
	Question        string           `json:"question,omitempty"`
	Reason          string           `json:"reason,omitempty"`
	From            Asset            `json:"from,omitempty"`
	To              Asset            `json:"to,omitempty"`
	Amount          *Amount          `json:"amount,omitempty"`
	SlippageBps     *int             `json:"slippageBps,omitempty"`
	ThresholdUsd    *decimal.Decimal `json:"thresholdUsd,omitempty"`
	IntervalMinutes *int             `json:"intervalMinutes,omitempty"`
}

type toWire struct{}

func (toWire) Chat(x Chat) wire { return wire{Kind: KindChat, Message: x.Message} }
func (toWire) PortfolioQA(x PortfolioQA) wire {
	return wire{Kind: KindPortfolioQA, Question: x.Question}
}
func (toWire) Unsupported(x Unsupported) wire {
	return wire{Kind: KindUnsupported, Reason: x.Reason}
}

func (toWire) Swap(x Swap) wire {
	return wire{Kind: KindSwap, From: x.From, To: x.To, Amount: amountPtr(x.Amount), SlippageBps: intPtr(x.SlippageBps)}
}

func (toWire) ExitToUSDC(x ExitToUSDC) wire {
	return wire{Kind: KindExitToUSDC, Amount: amountPtr(x.Amount), SlippageBps: intPtr(x.SlippageBps)}
}

func (toWire) PriceTriggerExit(x PriceTriggerExit) wire {
	th := x.ThresholdUsd
	return wire{Kind: KindPriceTriggerExit, Amount: amountPtr(x.Amount), SlippageBps: intPtr(x.SlippageBps), ThresholdUsd: &th}
}

func (toWire) PriceTriggerEntry(x PriceTriggerEntry) wire {
	th := x.ThresholdUsd
	return wire{Kind: KindPriceTriggerEntry, Amount: amountPtr(x.Amount), SlippageBps: intPtr(x.SlippageBps), ThresholdUsd: &th}
}

func (toWire) DCASwap(x DCASwap) wire {
	return wire{
		Kind:            KindDCASwap,
		From:            x.From,
		To:              x.To,
		Amount:          amountPtr(x.Amount),
		SlippageBps:     intPtr(x.SlippageBps),
		IntervalMinutes: intPtr(x.IntervalMinutes),
	}
}

// Marshal encodes an intent for storage.
func Marshal(in Intent) ([]byte, error) {
	if in == nil {
		return nil, fmt.Errorf("nil intent")
	}
	w := Visit[wire](in, toWire{})
	w.SchemaVersion = SchemaVersion
	return json.Marshal(w)
}

// Unmarshal decodes and validates an intent. A missing schema_version is read as version 1
// so that raw extractor output can be decoded with the same function.
func Unmarshal(raw []byte) (Intent, error) {
	in, err := Decode(raw)
	if err != nil {
		return nil, err
	}
	if err := Validate(in); err != nil {
		return nil, err
	}
	return in, nil
}

// Decode checks structure only; use Unmarshal for untrusted input.
func Decode(raw []byte) (Intent, error) {
	var w wire
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, errs.Validation("intent", "invalid json: "+err.Error())
	}
	if w.SchemaVersion > SchemaVersion {
		return nil, errs.Validation("schema_version", fmt.Sprintf("unsupported version %d", w.SchemaVersion))
	}
	kind, err := ParseKind(string(w.Kind))
	if err != nil {
		return nil, errs.Validation("kind", err.Error())
	}

	needTrade := func() error {
		if w.Amount == nil {
			return errs.Validation("amount", "required")
		}
		if w.SlippageBps == nil {
			return errs.Validation("slippageBps", "required")
		}
		return nil
	}

	switch kind {
	case KindChat:
		return Chat{Message: w.Message}, nil
	case KindPortfolioQA:
		return PortfolioQA{Question: w.Question}, nil
	case KindUnsupported:
		return Unsupported{Reason: w.Reason}, nil
	case KindSwap:
		if err := needTrade(); err != nil {
			return nil, err
		}
		return Swap{From: w.From, To: w.To, Amount: *w.Amount, SlippageBps: *w.SlippageBps}, nil
	case KindExitToUSDC:
		if err := needTrade(); err != nil {
			return nil, err
		}
		return ExitToUSDC{Amount: *w.Amount, SlippageBps: *w.SlippageBps}, nil
	case KindPriceTriggerExit, KindPriceTriggerEntry:
		if err := needTrade(); err != nil {
			return nil, err
		}
		if w.ThresholdUsd == nil {
			return nil, errs.Validation("thresholdUsd", "required")
		}
		if kind == KindPriceTriggerExit {
			return PriceTriggerExit{Amount: *w.Amount, SlippageBps: *w.SlippageBps, ThresholdUsd: *w.ThresholdUsd}, nil
		}
		return PriceTriggerEntry{Amount: *w.Amount, SlippageBps: *w.SlippageBps, ThresholdUsd: *w.ThresholdUsd}, nil
	case KindDCASwap:
		if err := needTrade(); err != nil {
			return nil, err
		}
		if w.IntervalMinutes == nil {
			return nil, errs.Validation("intervalMinutes", "required")
		}
		return DCASwap{From: w.From, To: w.To, Amount: *w.Amount, SlippageBps: *w.SlippageBps, IntervalMinutes: *w.IntervalMinutes}, nil
	}
	return nil, errs.Validation("kind", "unhandled kind "+string(kind))
}

// Validate enforces the schema bounds of each kind. Policy limits live in the risk package.
func Validate(in Intent) error {
	if in == nil {
		return errs.Validation("intent", "required")
	}
	switch x := in.(type) {
	case Chat:
		if strings.TrimSpace(x.Message) == "" {
			return errs.Validation("message", "required")
		}
		return nil
	case PortfolioQA:
		if strings.TrimSpace(x.Question) == "" {
			return errs.Validation("question", "required")
		}
		return nil
	case Unsupported:
		if strings.TrimSpace(x.Reason) == "" {
			return errs.Validation("reason", "required")
		}
		return nil
	}

	trade, ok := TradeOf(in)
	if !ok {
		return errs.Validation("kind", "unhandled kind "+string(in.Kind()))
	}
	if !trade.From.Valid() {
		return errs.Validation("from", fmt.Sprintf("unsupported asset %q", trade.From))
	}
	if !trade.To.Valid() {
		return errs.Validation("to", fmt.Sprintf("unsupported asset %q", trade.To))
	}
	if !trade.Amount.Unit.Valid() {
		return errs.Validation("amount.unit", fmt.Sprintf("unsupported unit %q", trade.Amount.Unit))
	}
	if !trade.Amount.Value.IsPositive() {
		return errs.Validation("amount.value", "must be positive")
	}
	if _, err := ToBaseUnits(trade.Amount); err != nil {
		return errs.Validation("amount.value", err.Error())
	}
	if trade.SlippageBps < MinSlippageBps || trade.SlippageBps > MaxSlippageBps {
		return errs.Validation("slippageBps", fmt.Sprintf("must be within [%d,%d]", MinSlippageBps, MaxSlippageBps))
	}
	if th, ok := Threshold(in); ok && !th.IsPositive() {
		return errs.Validation("thresholdUsd", "must be positive")
	}
	if iv, ok := IntervalMinutes(in); ok && (iv < MinIntervalMinutes || iv > MaxIntervalMinutes) {
		return errs.Validation("intervalMinutes", fmt.Sprintf("must be within [%d,%d]", MinIntervalMinutes, MaxIntervalMinutes))
	}
	return nil
}

// Equal compares two intents by value; decimals compare numerically.
func Equal(a, b Intent) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.Kind() != b.Kind() {
		return false
	}
	wa := Visit[wire](a, toWire{})
	wb := Visit[wire](b, toWire{})
	if wa.Message != wb.Message || wa.Question != wb.Question || wa.Reason != wb.Reason {
		return false
	}
	if wa.From != wb.From || wa.To != wb.To {
		return false
	}
	if (wa.Amount == nil) != (wb.Amount == nil) || (wa.Amount != nil && !wa.Amount.Equal(*wb.Amount)) {
		return false
	}
	if !equalIntPtr(wa.SlippageBps, wb.SlippageBps) || !equalIntPtr(wa.IntervalMinutes, wb.IntervalMinutes) {
		return false
	}
	if (wa.ThresholdUsd == nil) != (wb.ThresholdUsd == nil) {
		return false
	}
	return wa.ThresholdUsd == nil || wa.ThresholdUsd.Equal(*wb.ThresholdUsd)
}

func equalIntPtr(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func amountPtr(a Amount) *Amount { return &a }

func intPtr(v int) *int { return &v }
