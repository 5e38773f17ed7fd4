package report

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"ibrl/internal/intent"
	"ibrl/internal/models"
	"ibrl/internal/risk"
)

func exitIntent(bps int) intent.ExitToUSDC {
	return intent.ExitToUSDC{
		Amount:      intent.Amount{Value: decimal.RequireFromString("0.1"), Unit: intent.AssetSOL},
		SlippageBps: bps,
	}
}

func TestBuild_SimulationFailureIsUnsendable(t *testing.T) {
	r := Build(Input{
		Owner:      "owner1",
		Intent:     exitIntent(80),
		Summary:    "Exit 0.1 SOL → USDC",
		Preflight:  risk.PreflightResult{Passed: true},
		Quote:      &models.QuoteSnapshot{InAmount: "100000000", OutAmount: "14230000", OtherAmountThreshold: "14160000"},
		Simulation: &models.SimulationSnapshot{OK: false, Err: json.RawMessage(`"BlockhashNotFound"`)},
		Now:        time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	})
	if r.Sendable {
		t.Fatalf("sendable=true want false")
	}
	if r.Checks.Simulation.OK || string(r.Checks.Simulation.Err) != `"BlockhashNotFound"` {
		t.Fatalf("simulation check=%+v", r.Checks.Simulation)
	}
	if len(r.Risks) != 5 {
		t.Fatalf("risks=%v want 3 generic + slippage + simulation", r.Risks)
	}
	if r.Risks[4] != "Simulation indicates this transaction will likely fail; do not send." {
		t.Fatalf("last risk=%q", r.Risks[4])
	}
	if r.Quote == nil || r.Quote.InHuman != "0.1 SOL" || r.Quote.OutHuman != "14.23 USDC" || r.Quote.MinOutHuman != "14.16 USDC" {
		t.Fatalf("quote=%+v", r.Quote)
	}
	if !strings.Contains(r.Markdown, "**Simulation:** `ERR`") || !strings.Contains(r.Markdown, "minimum output (14.16 USDC)") {
		t.Fatalf("markdown=%s", r.Markdown)
	}
}

func TestBuild_SignalRationaleRecorded(t *testing.T) {
	r := Build(Input{
		Owner:      "owner1",
		Origin:     "drawdown_hedge",
		Intent:     exitIntent(50),
		Summary:    "Exit 0.1 SOL → USDC",
		Preflight:  risk.PreflightResult{Passed: true},
		Quote:      &models.QuoteSnapshot{InAmount: "100000000", OutAmount: "9300000"},
		Simulation: &models.SimulationSnapshot{OK: true},
		Signal:     &SignalInfo{Detector: "drawdown_hedge", Rationale: "SOL/USD is down 7.00%", Metrics: map[string]float64{"drawdown": 0.07}},
	})
	if !r.Sendable || len(r.Risks) != 3 {
		t.Fatalf("sendable=%v risks=%v", r.Sendable, r.Risks)
	}
	if !strings.Contains(r.Markdown, "Autonomous signal: SOL/USD is down 7.00%") || !strings.Contains(r.Markdown, "drawdown: `0.07`") {
		t.Fatalf("markdown=%s", r.Markdown)
	}
}

func TestEncodeDecode(t *testing.T) {
	r := Build(Input{Owner: "o", Intent: intent.Chat{Message: "hi"}, Preflight: risk.PreflightResult{Passed: true}})
	raw, err := r.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	back, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if back.SchemaVersion != SchemaVersion || back.Owner != "o" || back.Markdown != r.Markdown {
		t.Fatalf("back=%+v", back)
	}
	if _, err := Decode([]byte(`{"schema_version":9}`)); err == nil {
		t.Fatalf("expected error for newer schema")
	}
}
