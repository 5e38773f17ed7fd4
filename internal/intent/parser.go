package intent

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

const DefaultSlippageBps = 50

var (
	swapRe    = regexp.MustCompile(`(?i)^(?:swap|sell|convert)\s+(\d+(?:\.\d+)?)\s*(sol|usdc|usd)\s*(?:to|->|for|into)\s*(sol|usdc|usd)\b`)
	exitRe    = regexp.MustCompile(`(?i)^exit\s+(\d+(?:\.\d+)?)\s*sol\b(?:\s*(?:to|->)\s*(?:usdc|usd))?`)
	protectRe = regexp.MustCompile(`(?i)^(?:protect|exit)\s+(\d+(?:\.\d+)?)\s*sol\b.*?\bif\s+sol\s+(?:drops|falls|goes|is)\s+(?:below|under|to)\s+\$?(\d+(?:\.\d+)?)`)
	entryRe   = regexp.MustCompile(`(?i)^buy\s+sol\s+with\s+(\d+(?:\.\d+)?)\s*(?:usdc|usd)\b.*?\bif\s+sol\s+(?:drops|falls|dips|goes|is)\s+(?:below|under|to)\s+\$?(\d+(?:\.\d+)?)`)
	dcaRe     = regexp.MustCompile(`(?i)^dca\s+(\d+(?:\.\d+)?)\s*(sol|usdc|usd)\s*(?:to|into|->)\s*(sol|usdc|usd)\s+every\s+(\d+)\s*(m|min|mins|minutes?|h|hr|hrs|hours?)\b`)
	bpsRe     = regexp.MustCompile(`(?i)(\d{1,3})\s*bps\b`)

	tradeVerbs = []string{"swap", "exit", "sell", "convert", "protect", "buy", "dca"}
	qaHints    = []string{"portfolio", "my balance", "how much", "should i", "what should", "allocation", "exposure"}
)

// ParseLocal is the deterministic prompt parser. It never returns nil.
func ParseLocal(prompt string) Intent {
	text := strings.TrimSpace(prompt)
	lower := strings.ToLower(text)
	if isGreeting(lower) {
		return Chat{Message: "Hello. Give me an intent like: “Swap 0.1 SOL to USDC”."}
	}

	slippage := DefaultSlippageBps
	if m := bpsRe.FindStringSubmatch(text); m != nil {
		if v, err := strconv.Atoi(m[1]); err == nil {
			slippage = v
		}
	}

	if m := protectRe.FindStringSubmatch(text); m != nil {
		return PriceTriggerExit{
			Amount:       Amount{Value: decimal.RequireFromString(m[1]), Unit: AssetSOL},
			SlippageBps:  slippage,
			ThresholdUsd: decimal.RequireFromString(m[2]),
		}
	}
	if m := entryRe.FindStringSubmatch(text); m != nil {
		return PriceTriggerEntry{
			Amount:       Amount{Value: decimal.RequireFromString(m[1]), Unit: AssetUSDC},
			SlippageBps:  slippage,
			ThresholdUsd: decimal.RequireFromString(m[2]),
		}
	}
	if m := dcaRe.FindStringSubmatch(text); m != nil {
		from, _ := ParseAsset(m[2])
		to, _ := ParseAsset(m[3])
		n, _ := strconv.Atoi(m[4])
		if strings.HasPrefix(strings.ToLower(m[5]), "h") {
			n *= 60
		}
		return DCASwap{
			From:            from,
			To:              to,
			Amount:          Amount{Value: decimal.RequireFromString(m[1]), Unit: from},
			SlippageBps:     slippage,
			IntervalMinutes: n,
		}
	}
	if m := swapRe.FindStringSubmatch(text); m != nil {
		from, _ := ParseAsset(m[2])
		to, _ := ParseAsset(m[3])
		return Swap{
			From:        from,
			To:          to,
			Amount:      Amount{Value: decimal.RequireFromString(m[1]), Unit: from},
			SlippageBps: slippage,
		}
	}
	if m := exitRe.FindStringSubmatch(text); m != nil {
		return ExitToUSDC{
			Amount:      Amount{Value: decimal.RequireFromString(m[1]), Unit: AssetSOL},
			SlippageBps: slippage,
		}
	}

	for _, verb := range tradeVerbs {
		if strings.HasPrefix(lower, verb) {
			return Unsupported{Reason: `Missing destination or condition. Try: "Swap 0.1 SOL to USDC".`}
		}
	}
	for _, hint := range qaHints {
		if strings.Contains(lower, hint) {
			return PortfolioQA{Question: text}
		}
	}
	return Unsupported{Reason: `Could not interpret intent. Try: "Swap 0.1 SOL to USDC" or "Exit 0.25 SOL to USDC".`}
}

func isGreeting(t string) bool {
	for _, g := range []string{"hi", "hello", "hey"} {
		if t == g || strings.HasPrefix(t, g+" ") || strings.HasPrefix(t, g+"!") {
			return true
		}
	}
	return false
}
