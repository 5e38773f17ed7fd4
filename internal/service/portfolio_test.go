package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"ibrl/internal/client/solana"
	"ibrl/internal/errs"
)

type stubEpochs struct{}

func (stubEpochs) GetEpochInfo(ctx context.Context) (solana.EpochInfo, error) {
	return solana.EpochInfo{Epoch: 812, SlotIndex: 1000, SlotsInEpoch: 432000}, nil
}

func TestPortfolio_SnapshotBestEffort(t *testing.T) {
	f := newFixture(t)
	f.oracle.err = errors.New("hermes down")
	svc := &PortfolioService{Balances: f.balances, Prices: &PriceService{Oracle: f.oracle}, Epochs: stubEpochs{}, Now: f.clock}

	snap, err := svc.Snapshot(context.Background(), testOwner)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.Price != nil || snap.ValueUsd != nil {
		t.Fatalf("price should be absent when the oracle is down")
	}
	if snap.Epoch == nil || snap.Epoch.Epoch != 812 {
		t.Fatalf("epoch=%+v", snap.Epoch)
	}
	if snap.SOL.String() != "2" || snap.USDC.String() != "50" {
		t.Fatalf("sol=%s usdc=%s", snap.SOL, snap.USDC)
	}
	if _, err := svc.Snapshot(context.Background(), " "); !errs.IsValidation(err) {
		t.Fatalf("err=%v want validation", err)
	}
}

func TestPortfolio_AnswerUsesAdvisorWithFallback(t *testing.T) {
	f := newFixture(t)
	advisor := &stubGenerator{out: "You are mostly in SOL."}
	svc := &PortfolioService{Balances: f.balances, Prices: &PriceService{Oracle: f.oracle}, Advisor: advisor}

	answer, _, err := svc.Answer(context.Background(), testOwner, "am I diversified?")
	if err != nil || answer != "You are mostly in SOL." {
		t.Fatalf("answer=%q err=%v", answer, err)
	}

	advisor.out = ""
	answer, _, err = svc.Answer(context.Background(), testOwner, "am I diversified?")
	if err != nil || !strings.Contains(answer, "2 SOL and 50 USDC") {
		t.Fatalf("fallback answer=%q err=%v", answer, err)
	}
}
