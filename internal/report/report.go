// Package report builds the decision report attached to every proposal: what the agent wants to
// do, why, what the policy gate and the simulation said, and what could go wrong.
package report

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"ibrl/internal/intent"
	"ibrl/internal/models"
	"ibrl/internal/risk"
)

const SchemaVersion = 1

const highSlippageBps = 75

type Report struct {
	SchemaVersion int                   `json:"schema_version"`
	GeneratedAt   time.Time             `json:"generatedAt"`
	Owner         string                `json:"owner"`
	Prompt        string                `json:"prompt"`
	Origin        string                `json:"origin"`
	Proposal      ProposalInfo          `json:"proposal"`
	Checks        Checks                `json:"checks"`
	Preflight     []risk.PreflightCheck `json:"preflight,omitempty"`
	Quote         *QuoteView            `json:"quote,omitempty"`
	Signal        *SignalInfo           `json:"signal,omitempty"`
	Trigger       *TriggerInfo          `json:"trigger,omitempty"`
	Risks         []string              `json:"risks"`
	Scenarios     []Scenario            `json:"scenarios"`
	Sendable      bool                  `json:"sendable"`
	Markdown      string                `json:"markdown"`
}

type ProposalInfo struct {
	Kind    string `json:"kind"`
	Summary string `json:"summary"`
}

type Checks struct {
	Policy     PolicyCheck     `json:"policy"`
	Simulation SimulationCheck `json:"simulation"`
}

type PolicyCheck struct {
	OK     bool   `json:"ok"`
	Reason string `json:"reason,omitempty"`
}

type SimulationCheck struct {
	OK  bool            `json:"ok"`
	Err json.RawMessage `json:"err,omitempty"`
}

type QuoteView struct {
	InAmount             string              `json:"inAmount"`
	OutAmount            string              `json:"outAmount"`
	OtherAmountThreshold string              `json:"otherAmountThreshold,omitempty"`
	PriceImpactPct       string              `json:"priceImpactPct,omitempty"`
	SlippageBps          int                 `json:"slippageBps"`
	From                 intent.Asset        `json:"from"`
	To                   intent.Asset        `json:"to"`
	InHuman              string              `json:"inHuman"`
	OutHuman             string              `json:"outHuman"`
	MinOutHuman          string              `json:"minOutHuman,omitempty"`
	Route                models.RouteSummary `json:"route"`
}

// SignalInfo is the numeric rationale of an autonomous detector.
type SignalInfo struct {
	Detector  string             `json:"detector"`
	Rationale string             `json:"rationale"`
	Metrics   map[string]float64 `json:"metrics,omitempty"`
}

type TriggerInfo struct {
	AutomationID    string           `json:"automationId"`
	PriceUsd        *decimal.Decimal `json:"priceUsd,omitempty"`
	ThresholdUsd    *decimal.Decimal `json:"thresholdUsd,omitempty"`
	IntervalMinutes int              `json:"intervalMinutes,omitempty"`
	LastFiredAt     *time.Time       `json:"lastFiredAt,omitempty"`
}

type Scenario struct {
	IfPriceMovesPct int    `json:"ifPriceMovesPct"`
	Note            string `json:"note"`
}

type Input struct {
	Owner      string
	Prompt     string
	Origin     string
	Intent     intent.Intent
	Summary    string
	Preflight  risk.PreflightResult
	Quote      *models.QuoteSnapshot
	Simulation *models.SimulationSnapshot
	Signal     *SignalInfo
	Trigger    *TriggerInfo
	Now        time.Time
}

// Build assembles the report. A failed simulation makes the report unsendable.
func Build(in Input) Report {
	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	r := Report{
		SchemaVersion: SchemaVersion,
		GeneratedAt:   now,
		Owner:         in.Owner,
		Prompt:        in.Prompt,
		Origin:        in.Origin,
		Proposal:      ProposalInfo{Kind: string(in.Intent.Kind()), Summary: in.Summary},
		Checks: Checks{
			Policy: PolicyCheck{OK: in.Preflight.Passed, Reason: in.Preflight.Reason},
		},
		Preflight: in.Preflight.Checks,
		Signal:    in.Signal,
		Trigger:   in.Trigger,
	}

	simOK := in.Simulation != nil && in.Simulation.OK
	r.Checks.Simulation.OK = simOK
	if in.Simulation != nil && !simOK {
		r.Checks.Simulation.Err = in.Simulation.Err
	}
	r.Sendable = simOK

	trade, isTrade := intent.TradeOf(in.Intent)
	if isTrade && in.Quote != nil {
		r.Quote = &QuoteView{
			InAmount:             in.Quote.InAmount,
			OutAmount:            in.Quote.OutAmount,
			OtherAmountThreshold: in.Quote.OtherAmountThreshold,
			PriceImpactPct:       in.Quote.PriceImpactPct,
			SlippageBps:          trade.SlippageBps,
			From:                 trade.From,
			To:                   trade.To,
			InHuman:              baseUnitsToHuman(in.Quote.InAmount, trade.From),
			OutHuman:             baseUnitsToHuman(in.Quote.OutAmount, trade.To),
			Route:                in.Quote.Route,
		}
		if in.Quote.OtherAmountThreshold != "" {
			r.Quote.MinOutHuman = baseUnitsToHuman(in.Quote.OtherAmountThreshold, trade.To)
		}
	}

	if isTrade {
		r.Risks = append(r.Risks,
			"Markets can move between simulation and send; expected output may change.",
			"Jupiter routing can change; the built transaction is a point-in-time route.",
			"Simulation uses commitment=processed and may not match finalized state.",
		)
		if trade.SlippageBps >= highSlippageBps {
			r.Risks = append(r.Risks, fmt.Sprintf("Higher slippage (%d bps) increases adverse execution risk.", trade.SlippageBps))
		}
		if !simOK {
			r.Risks = append(r.Risks, "Simulation indicates this transaction will likely fail; do not send.")
		}
	}
	if r.Risks == nil {
		r.Risks = []string{}
	}
	r.Scenarios = scenarios(r.Quote)
	r.Markdown = renderMarkdown(r, trade)
	return r
}

func scenarios(q *QuoteView) []Scenario {
	if q == nil {
		return []Scenario{
			{IfPriceMovesPct: -1, Note: "Price movement against you increases execution risk or worsens outcome."},
			{IfPriceMovesPct: 1, Note: "Price movement in your favor improves outcome; still confirm the route and fees."},
		}
	}
	down := "If price moves ~1% against you, expected output decreases and the swap may fail depending on slippage protection."
	if q.MinOutHuman != "" {
		down = fmt.Sprintf("If price moves ~1%% against you, the swap may execute closer to the minimum output (%s).", q.MinOutHuman)
	}
	return []Scenario{
		{IfPriceMovesPct: -1, Note: down},
		{IfPriceMovesPct: 1, Note: "If price moves ~1% in your favor, you may receive more output, but the transaction still respects its fixed route + slippage bounds."},
	}
}

func baseUnitsToHuman(amount string, unit intent.Asset) string {
	v, err := strconv.ParseUint(strings.TrimSpace(amount), 10, 64)
	if err != nil {
		return amount
	}
	return intent.HumanString(v, unit)
}

func whyNow(r Report) string {
	switch {
	case r.Signal != nil:
		return "Autonomous signal: " + r.Signal.Rationale
	case r.Trigger != nil && r.Trigger.ThresholdUsd != nil && r.Trigger.PriceUsd != nil:
		return fmt.Sprintf("Your automation's condition is met: SOL/USD $%s ≤ $%s.", r.Trigger.PriceUsd.StringFixed(2), r.Trigger.ThresholdUsd.String())
	case r.Trigger != nil && r.Trigger.IntervalMinutes > 0:
		return fmt.Sprintf("Your DCA schedule is due (every %d minutes).", r.Trigger.IntervalMinutes)
	}
	return "You requested a one-off action and asked the agent to produce a real, signable transaction."
}

func renderMarkdown(r Report, trade intent.Trade) string {
	lines := []string{
		"### Decision Report",
		"",
		"**Proposal:** " + r.Proposal.Summary,
		fmt.Sprintf("- Kind: `%s`", r.Proposal.Kind),
	}
	if trade.From != "" {
		lines = append(lines, fmt.Sprintf("- From → To: `%s → %s`", trade.From, trade.To))
	}
	lines = append(lines, "", "**Why this action**")
	if strings.TrimSpace(r.Prompt) != "" {
		lines = append(lines, fmt.Sprintf("- Derived from your intent: `%s`", r.Prompt))
	} else {
		lines = append(lines, fmt.Sprintf("- Proposed by the agent (`%s`).", r.Origin))
	}
	if r.Signal != nil {
		for _, k := range sortedKeys(r.Signal.Metrics) {
			lines = append(lines, fmt.Sprintf("- %s: `%s`", k, strconv.FormatFloat(r.Signal.Metrics[k], 'f', -1, 64)))
		}
	}
	lines = append(lines, "", "**Why now**", "- "+whyNow(r), "")

	if r.Checks.Policy.OK {
		lines = append(lines, "**Policy checks:** `PASS`")
	} else {
		reason := r.Checks.Policy.Reason
		if reason == "" {
			reason = "Unknown reason"
		}
		lines = append(lines, "**Policy checks:** `BLOCKED`: "+reason)
	}
	lines = append(lines, "")

	if r.Checks.Simulation.OK {
		lines = append(lines, "**Simulation:** `OK`")
	} else {
		lines = append(lines, "**Simulation:** `ERR`")
		if len(r.Checks.Simulation.Err) > 0 {
			lines = append(lines, fmt.Sprintf("- Error: `%s`", string(r.Checks.Simulation.Err)))
		}
	}

	if q := r.Quote; q != nil {
		lines = append(lines, "",
			"**Quote (Jupiter):**",
			fmt.Sprintf("- In: `%s`", q.InHuman),
			fmt.Sprintf("- Out (est.): `%s`", q.OutHuman),
		)
		if q.MinOutHuman != "" {
			lines = append(lines, fmt.Sprintf("- Min out: `%s`", q.MinOutHuman))
		}
		if q.PriceImpactPct != "" {
			lines = append(lines, fmt.Sprintf("- Price impact: `%s`", q.PriceImpactPct))
		}
		lines = append(lines, fmt.Sprintf("- Slippage: `%d bps`", q.SlippageBps))
		if q.Route.HopCount > 0 {
			lines = append(lines, fmt.Sprintf("- Route: `%d hop(s) via %s`", q.Route.HopCount, strings.Join(q.Route.Venues, ", ")))
		}
	}

	lines = append(lines, "", "**Risks**")
	for _, line := range r.Risks {
		lines = append(lines, "- "+line)
	}
	lines = append(lines, "", "**What changes if price moves**")
	for _, s := range r.Scenarios {
		sign := ""
		if s.IfPriceMovesPct > 0 {
			sign = "+"
		}
		lines = append(lines, fmt.Sprintf("- %s%d%%: %s", sign, s.IfPriceMovesPct, s.Note))
	}
	lines = append(lines, "", "**Approval gate**", "- Nothing is broadcast until you approve in-wallet.")
	return strings.Join(lines, "\n")
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (r Report) Encode() ([]byte, error) {
	r.SchemaVersion = SchemaVersion
	return json.Marshal(r)
}

// Decode reads a stored report. Reports from a newer schema are rejected.
func Decode(raw []byte) (Report, error) {
	var r Report
	if len(raw) == 0 {
		return r, fmt.Errorf("empty decision report")
	}
	if err := json.Unmarshal(raw, &r); err != nil {
		return r, err
	}
	if r.SchemaVersion == 0 {
		r.SchemaVersion = SchemaVersion
	}
	if r.SchemaVersion > SchemaVersion {
		return r, fmt.Errorf("decision report schema_version %d not supported", r.SchemaVersion)
	}
	return r, nil
}
