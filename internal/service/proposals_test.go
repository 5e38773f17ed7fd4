package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"ibrl/internal/errs"
	"ibrl/internal/intent"
	"ibrl/internal/models"
	"ibrl/internal/report"
	"ibrl/internal/risk"
)

func createExit(t *testing.T, f *fixture, amount string) *models.Proposal {
	t.Helper()
	p, err := f.proposals().CreateUserProposal(context.Background(), testOwner, "exit "+amount+" sol", intent.ExitToUSDC{Amount: sol(amount), SlippageBps: 50})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return p
}

func TestIsSendable_StaleAfterTwoMinutes(t *testing.T) {
	f := newFixture(t)
	p := createExit(t, f, "0.1")
	built := p.UpdatedAt

	if ok, reason := IsSendable(*p, built.Add(2*time.Minute), DefaultStaleAfter); !ok {
		t.Fatalf("at 2m sendable=false reason=%q", reason)
	}
	if ok, reason := IsSendable(*p, built.Add(3*time.Minute), DefaultStaleAfter); ok || reason != NotSendableStale {
		t.Fatalf("at 3m sendable=%v reason=%q want stale", ok, reason)
	}

	decided := *p
	decided.Status = models.ProposalStatusSent
	if ok, reason := IsSendable(decided, built, DefaultStaleAfter); ok || reason != NotSendablePending {
		t.Fatalf("sent proposal sendable=%v reason=%q", ok, reason)
	}

	missing := *p
	missing.SimulationResult = nil
	if ok, reason := IsSendable(missing, built, DefaultStaleAfter); ok || reason != NotSendableMissing {
		t.Fatalf("no simulation sendable=%v reason=%q", ok, reason)
	}
}

func TestCreateUserProposal_Report(t *testing.T) {
	f := newFixture(t)
	p := createExit(t, f, "0.25")
	if p.Origin != models.OriginUser || p.CreatedBy != models.CreatedByUser || !p.Pending() {
		t.Fatalf("proposal=%+v", p)
	}
	rep, err := report.Decode(p.DecisionReport)
	if err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if rep.Signal != nil || rep.Trigger != nil {
		t.Fatalf("user proposal carries agent context: %+v", rep)
	}
	q, err := p.Quote()
	if err != nil || q == nil || q.Route.HopCount != 1 || len(q.Route.Venues) != 1 {
		t.Fatalf("quote=%+v err=%v", q, err)
	}
}

func TestCreateUserProposal_InsufficientFunds(t *testing.T) {
	f := newFixture(t)
	f.balances.set(testOwner, risk.Balances{Lamports: 100_000_000})

	_, err := f.proposals().CreateUserProposal(context.Background(), testOwner, "exit", intent.ExitToUSDC{Amount: sol("0.5"), SlippageBps: 50})
	fe, ok := errs.AsInsufficientFunds(err)
	if !ok {
		t.Fatalf("err=%v want insufficient funds", err)
	}
	if fe.Shortfall != 405_000_000 {
		t.Fatalf("shortfall=%d want=405000000", fe.Shortfall)
	}
	if f.repo.proposalCount() != 0 {
		t.Fatalf("proposal persisted after rejection")
	}
}

func TestDecide_Idempotent(t *testing.T) {
	f := newFixture(t)
	svc := f.proposals()
	p := createExit(t, f, "0.1")
	sig := "5VERv8NMvzbJMEkV8xnrLkEaWRtSz9CosKDYjCJjBRnbJLgp8uirBgmQpjKhoR4tjF3ZpRzrFmBV6UjKdiSZkQUW"

	f.advance(time.Minute)
	first, err := svc.Decide(context.Background(), testOwner, p.ID, "sent", &sig)
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if !first.Applied || first.Proposal.Status != models.ProposalStatusSent {
		t.Fatalf("first=%+v", first)
	}
	if !first.Proposal.UpdatedAt.Equal(f.clock()) {
		t.Fatalf("updatedAt=%v want=%v", first.Proposal.UpdatedAt, f.clock())
	}

	second, err := svc.Decide(context.Background(), testOwner, p.ID, "DENIED", nil)
	if err != nil {
		t.Fatalf("second decide: %v", err)
	}
	if second.Applied || second.Proposal.Status != models.ProposalStatusSent {
		t.Fatalf("second=%+v want unchanged SENT", second)
	}
	if second.Proposal.Signature == nil || *second.Proposal.Signature != sig {
		t.Fatalf("signature lost")
	}
}

func TestDecide_DenyDropsSignature(t *testing.T) {
	f := newFixture(t)
	p := createExit(t, f, "0.1")
	sig := "abc"
	res, err := f.proposals().Decide(context.Background(), testOwner, p.ID, "DENIED", &sig)
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if res.Proposal.Signature != nil {
		t.Fatalf("denied proposal kept a signature")
	}
}

func TestDecide_CrossOwnerAndBadInput(t *testing.T) {
	f := newFixture(t)
	svc := f.proposals()
	p := createExit(t, f, "0.1")

	if _, err := svc.Decide(context.Background(), otherOwner, p.ID, "SENT", nil); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("cross owner err=%v want not found", err)
	}
	if _, err := svc.Decide(context.Background(), testOwner, p.ID, "MAYBE", nil); !errs.IsValidation(err) {
		t.Fatalf("bad decision err=%v want validation", err)
	}
	if _, err := svc.Get(context.Background(), otherOwner, p.ID); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("cross owner get err=%v", err)
	}
}

func TestRefresh_RebuildsPendingOnly(t *testing.T) {
	f := newFixture(t)
	svc := f.proposals()
	p := createExit(t, f, "0.1")

	f.advance(5 * time.Minute)
	if ok, _ := svc.Sendable(*p); ok {
		t.Fatalf("5 minute old proposal should be stale")
	}
	res, err := svc.Refresh(context.Background(), testOwner, p.ID)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if !res.Refreshed || !res.Proposal.UpdatedAt.Equal(f.clock()) {
		t.Fatalf("refresh=%+v", res)
	}
	if ok, reason := svc.Sendable(*res.Proposal); !ok {
		t.Fatalf("refreshed proposal not sendable: %s", reason)
	}
	if f.router.quoteCount() != 2 {
		t.Fatalf("quotes=%d want=2", f.router.quoteCount())
	}

	if _, err := svc.Decide(context.Background(), testOwner, p.ID, "DENIED", nil); err != nil {
		t.Fatalf("deny: %v", err)
	}
	res, err = svc.Refresh(context.Background(), testOwner, p.ID)
	if err != nil {
		t.Fatalf("refresh decided: %v", err)
	}
	if res.Refreshed || res.Message != "not pending; no refresh required" {
		t.Fatalf("refresh decided=%+v", res)
	}
	if f.router.quoteCount() != 2 {
		t.Fatalf("decided proposal was re-quoted")
	}
}

func TestRefresh_KeepsTriggerContext(t *testing.T) {
	f := newFixture(t)
	f.arm(t, priceTrigger("150"))
	f.engine().Tick(context.Background())

	items, _, err := f.proposals().List(context.Background(), testOwner, nil, 10, 0)
	if err != nil || len(items) != 1 {
		t.Fatalf("items=%d err=%v", len(items), err)
	}
	f.advance(3 * time.Minute)
	res, err := f.proposals().Refresh(context.Background(), testOwner, items[0].ID)
	if err != nil || !res.Refreshed {
		t.Fatalf("refresh=%+v err=%v", res, err)
	}
	rep, err := report.Decode(res.Proposal.DecisionReport)
	if err != nil || rep.Trigger == nil {
		t.Fatalf("trigger context lost: %+v err=%v", rep, err)
	}
}
