package service

import (
	"context"
	"testing"
	"time"
)

func TestActivitySummary(t *testing.T) {
	f := newFixture(t)
	f.arm(t, priceTrigger("150"))
	f.engine().Tick(context.Background())
	if _, err := f.intents(nil).Handle(context.Background(), testOwner, "hello", false); err != nil {
		t.Fatalf("handle: %v", err)
	}

	svc := &ActivityService{Repo: f.repo, Now: f.clock}
	sum, err := svc.Summary(context.Background(), testOwner, 0)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if sum.ProposalsCreated != 1 || sum.AgentProposals != 1 || sum.ProposalsPending != 1 {
		t.Fatalf("proposals=%+v", sum)
	}
	if sum.Interactions != 1 || sum.ActiveAutomations != 1 || sum.PriceSamples != 1 {
		t.Fatalf("summary=%+v", sum)
	}
	if !sum.Since.Equal(f.clock().Add(-6 * time.Hour)) {
		t.Fatalf("since=%s", sum.Since)
	}

	items, total, err := svc.History(context.Background(), testOwner, 10, 0)
	if err != nil || total != 1 || items[0].Prompt != "hello" {
		t.Fatalf("history=%+v total=%d err=%v", items, total, err)
	}
}
