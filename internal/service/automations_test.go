package service

import (
	"context"
	"errors"
	"testing"

	"ibrl/internal/errs"
	"ibrl/internal/intent"
	"ibrl/internal/models"
	"ibrl/internal/repository"
)

func TestAutomation_CreateRejectsNonAutomation(t *testing.T) {
	f := newFixture(t)
	_, err := f.automations().Create(context.Background(), testOwner, intent.ExitToUSDC{Amount: sol("0.1"), SlippageBps: 50})
	if !errs.IsValidation(err) {
		t.Fatalf("err=%v want validation", err)
	}
}

func TestAutomation_CreateRunsPolicy(t *testing.T) {
	f := newFixture(t)
	_, err := f.automations().Create(context.Background(), testOwner, intent.PriceTriggerExit{Amount: sol("5"), SlippageBps: 50, ThresholdUsd: priceTrigger("150").ThresholdUsd})
	if _, ok := errs.AsInsufficientFunds(err); !ok {
		t.Fatalf("err=%v want insufficient funds", err)
	}
	if n, _ := f.repo.CountAutomations(context.Background(), repository.ListAutomationsParams{}); n != 0 {
		t.Fatalf("automation persisted after rejection")
	}
}

func TestAutomation_PauseResumeDelete(t *testing.T) {
	f := newFixture(t)
	svc := f.automations()
	ctx := context.Background()
	a := f.arm(t, intent.DCASwap{From: intent.AssetUSDC, To: intent.AssetSOL, Amount: usdc("5"), SlippageBps: 50, IntervalMinutes: 60})

	paused, err := svc.Apply(ctx, testOwner, a.ID, "pause")
	if err != nil || paused.Status != models.AutomationStatusPaused {
		t.Fatalf("pause=%+v err=%v", paused, err)
	}
	if _, err := svc.Apply(ctx, otherOwner, a.ID, ActionResume); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("cross owner resume err=%v", err)
	}
	if _, err := svc.Apply(ctx, testOwner, a.ID, "explode"); !errs.IsValidation(err) {
		t.Fatalf("bad action err=%v", err)
	}
	resumed, err := svc.Apply(ctx, testOwner, a.ID, ActionResume)
	if err != nil || resumed.Status != models.AutomationStatusActive {
		t.Fatalf("resume=%+v err=%v", resumed, err)
	}

	f.engine().Tick(ctx)
	if err := svc.Delete(ctx, otherOwner, a.ID); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("cross owner delete err=%v", err)
	}
	if err := svc.Delete(ctx, testOwner, a.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	items, _ := f.repo.ListProposals(ctx, repository.ListProposalsParams{})
	if len(items) != 1 || items[0].IntentID != nil {
		t.Fatalf("proposals=%+v want one detached", items)
	}
}
