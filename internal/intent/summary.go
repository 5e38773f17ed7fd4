package intent

import (
	"fmt"
	"strings"
)

type summarizer struct{}

func (summarizer) Chat(x Chat) string { return "Chat: " + truncate(x.Message, 80) }

func (summarizer) PortfolioQA(x PortfolioQA) string {
	return "Portfolio question: " + truncate(x.Question, 80)
}

func (summarizer) Swap(x Swap) string {
	return fmt.Sprintf("Swap %s → %s (max slippage %d bps)", x.Amount.String(), x.To, x.SlippageBps)
}

func (summarizer) ExitToUSDC(x ExitToUSDC) string {
	return fmt.Sprintf("Exit %s → USDC (max slippage %d bps)", x.Amount.String(), x.SlippageBps)
}

func (summarizer) PriceTriggerExit(x PriceTriggerExit) string {
	return fmt.Sprintf("Protect: exit %s → USDC if SOL/USD ≤ $%s", x.Amount.String(), x.ThresholdUsd.String())
}

func (summarizer) PriceTriggerEntry(x PriceTriggerEntry) string {
	return fmt.Sprintf("Buy dip: swap %s → SOL if SOL/USD ≤ $%s", x.Amount.String(), x.ThresholdUsd.String())
}

func (summarizer) DCASwap(x DCASwap) string {
	return fmt.Sprintf("DCA: swap %s → %s every %s", x.Amount.String(), x.To, formatInterval(x.IntervalMinutes))
}

func (summarizer) Unsupported(x Unsupported) string { return "Unsupported: " + x.Reason }

// Summary renders a one-line description of an intent.
func Summary(in Intent) string {
	return Visit[string](in, summarizer{})
}

type firedSummarizer struct {
	summarizer
}

func (f firedSummarizer) PriceTriggerExit(x PriceTriggerExit) string {
	return fmt.Sprintf("Auto-trigger: exit %s → USDC (SOL/USD ≤ $%s)", x.Amount.String(), x.ThresholdUsd.String())
}

func (f firedSummarizer) PriceTriggerEntry(x PriceTriggerEntry) string {
	return fmt.Sprintf("Auto-trigger: buy SOL with %s (SOL/USD ≤ $%s)", x.Amount.String(), x.ThresholdUsd.String())
}

func (f firedSummarizer) DCASwap(x DCASwap) string {
	return fmt.Sprintf("Scheduled DCA: swap %s → %s (every %s)", x.Amount.String(), x.To, formatInterval(x.IntervalMinutes))
}

// FiredSummary describes a proposal produced by an automation firing.
func FiredSummary(in Intent) string {
	return Visit[string](in, firedSummarizer{})
}

func formatInterval(minutes int) string {
	if minutes > 0 && minutes%60 == 0 {
		return fmt.Sprintf("%dh", minutes/60)
	}
	return fmt.Sprintf("%dm", minutes)
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
