package intent

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"

	"ibrl/internal/errs"
)

func sol(v string) Amount  { return Amount{Value: decimal.RequireFromString(v), Unit: AssetSOL} }
func usdc(v string) Amount { return Amount{Value: decimal.RequireFromString(v), Unit: AssetUSDC} }

func TestMarshalUnmarshal_AllKinds(t *testing.T) {
	cases := []Intent{
		Chat{Message: "hello"},
		PortfolioQA{Question: "how much SOL do I hold?"},
		Swap{From: AssetSOL, To: AssetUSDC, Amount: sol("0.1"), SlippageBps: 50},
		ExitToUSDC{Amount: sol("0.25"), SlippageBps: 75},
		PriceTriggerExit{Amount: sol("1.5"), SlippageBps: 30, ThresholdUsd: decimal.RequireFromString("120.5")},
		PriceTriggerEntry{Amount: usdc("20"), SlippageBps: 50, ThresholdUsd: decimal.RequireFromString("95")},
		DCASwap{From: AssetUSDC, To: AssetSOL, Amount: usdc("10.25"), SlippageBps: 50, IntervalMinutes: 60},
		Unsupported{Reason: "yield is not supported"},
	}
	if len(cases) != len(AllKinds()) {
		t.Fatalf("cases=%d want one per kind (%d)", len(cases), len(AllKinds()))
	}
	for _, in := range cases {
		raw, err := Marshal(in)
		if err != nil {
			t.Fatalf("marshal %s: %v", in.Kind(), err)
		}
		out, err := Unmarshal(raw)
		if err != nil {
			t.Fatalf("unmarshal %s: %v (raw=%s)", in.Kind(), err, raw)
		}
		if !Equal(in, out) {
			t.Fatalf("round trip %s: got=%#v want=%#v", in.Kind(), out, in)
		}
	}
}

func TestMarshal_WritesSchemaVersion(t *testing.T) {
	raw, err := Marshal(ExitToUSDC{Amount: sol("0.1"), SlippageBps: 50})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var probe map[string]any
	if err := json.Unmarshal(raw, &probe); err != nil {
		t.Fatalf("json: %v", err)
	}
	if probe["schema_version"] != float64(SchemaVersion) {
		t.Fatalf("schema_version=%v want=%d", probe["schema_version"], SchemaVersion)
	}
}

func TestUnmarshal_RejectsNewerSchema(t *testing.T) {
	_, err := Unmarshal([]byte(`{"schema_version":99,"kind":"CHAT","message":"hi"}`))
	if !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("err=%v want validation", err)
	}
}

func TestUnmarshal_AcceptsModelOutputWithoutVersion(t *testing.T) {
	in, err := Unmarshal([]byte(`{"kind":"SWAP","from":"SOL","to":"USDC","amount":{"value":0.1,"unit":"SOL"},"slippageBps":50}`))
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	swap, ok := in.(Swap)
	if !ok {
		t.Fatalf("type=%T want Swap", in)
	}
	if !swap.Amount.Value.Equal(decimal.RequireFromString("0.1")) || swap.Amount.Unit != AssetSOL {
		t.Fatalf("amount=%s", swap.Amount.String())
	}
}

func TestValidate_Bounds(t *testing.T) {
	bad := []Intent{
		Swap{From: AssetSOL, To: AssetUSDC, Amount: sol("0.1"), SlippageBps: 0},
		Swap{From: AssetSOL, To: AssetUSDC, Amount: sol("0.1"), SlippageBps: 201},
		Swap{From: AssetSOL, To: "BONK", Amount: sol("0.1"), SlippageBps: 50},
		ExitToUSDC{Amount: sol("0"), SlippageBps: 50},
		ExitToUSDC{Amount: sol("0.0000000001"), SlippageBps: 50},
		PriceTriggerExit{Amount: sol("1"), SlippageBps: 50, ThresholdUsd: decimal.Zero},
		DCASwap{From: AssetUSDC, To: AssetSOL, Amount: usdc("5"), SlippageBps: 50, IntervalMinutes: 4},
		DCASwap{From: AssetUSDC, To: AssetSOL, Amount: usdc("5"), SlippageBps: 50, IntervalMinutes: 1441},
		Chat{Message: "  "},
	}
	for _, in := range bad {
		if err := Validate(in); !errs.IsValidation(err) {
			t.Fatalf("intent=%#v err=%v want validation error", in, err)
		}
	}
	if err := Validate(DCASwap{From: AssetUSDC, To: AssetSOL, Amount: usdc("5"), SlippageBps: 200, IntervalMinutes: 1440}); err != nil {
		t.Fatalf("upper bounds should pass: %v", err)
	}
}

func TestRoundTrip_Property(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("stored intents decode to the same value", prop.ForAll(
		func(kindIdx int, units int64, slippage int, interval int, thresholdCents int64, usdcSide bool) bool {
			unit := AssetSOL
			from, to := AssetSOL, AssetUSDC
			if usdcSide {
				unit = AssetUSDC
				from, to = AssetUSDC, AssetSOL
			}
			amount := FromBaseUnits(uint64(units), unit)
			threshold := decimal.New(thresholdCents, -2)

			var in Intent
			switch AllKinds()[kindIdx] {
			case KindChat:
				in = Chat{Message: "gm"}
			case KindPortfolioQA:
				in = PortfolioQA{Question: "what is my exposure?"}
			case KindSwap:
				in = Swap{From: from, To: to, Amount: amount, SlippageBps: slippage}
			case KindExitToUSDC:
				in = ExitToUSDC{Amount: FromBaseUnits(uint64(units), AssetSOL), SlippageBps: slippage}
			case KindPriceTriggerExit:
				in = PriceTriggerExit{Amount: FromBaseUnits(uint64(units), AssetSOL), SlippageBps: slippage, ThresholdUsd: threshold}
			case KindPriceTriggerEntry:
				in = PriceTriggerEntry{Amount: FromBaseUnits(uint64(units), AssetUSDC), SlippageBps: slippage, ThresholdUsd: threshold}
			case KindDCASwap:
				in = DCASwap{From: from, To: to, Amount: amount, SlippageBps: slippage, IntervalMinutes: interval}
			default:
				in = Unsupported{Reason: "nope"}
			}

			raw, err := Marshal(in)
			if err != nil {
				return false
			}
			out, err := Unmarshal(raw)
			if err != nil {
				return false
			}
			return Equal(in, out)
		},
		gen.IntRange(0, len(AllKinds())-1),
		gen.Int64Range(1, 1_000_000_000_000),
		gen.IntRange(MinSlippageBps, MaxSlippageBps),
		gen.IntRange(MinIntervalMinutes, MaxIntervalMinutes),
		gen.Int64Range(100, 1_000_000),
		gen.Bool(),
	))

	properties.TestingRun(t)
}
