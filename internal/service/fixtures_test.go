package service

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"ibrl/internal/client/jupiter"
	"ibrl/internal/client/pyth"
	"ibrl/internal/client/solana"
	"ibrl/internal/config"
	"ibrl/internal/intent"
	"ibrl/internal/models"
	"ibrl/internal/risk"
	"ibrl/internal/signal"
)

const (
	testOwner  = "7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU"
	otherOwner = "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"
)

type stubBalances struct {
	mu       sync.Mutex
	byOwner  map[string]risk.Balances
	panicFor string
}

func (b *stubBalances) set(owner string, bal risk.Balances) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.byOwner[owner] = bal
}

func (b *stubBalances) Balances(ctx context.Context, owner string) (risk.Balances, error) {
	if owner == b.panicFor {
		panic("balance reader exploded")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.byOwner[owner], nil
}

type stubRouter struct {
	mu     sync.Mutex
	quotes int
	err    error
}

func (r *stubRouter) Quote(ctx context.Context, inputMint, outputMint string, amount uint64, slippageBps int) (*jupiter.Quote, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.quotes++
	if r.err != nil {
		return nil, r.err
	}
	return &jupiter.Quote{
		InputMint:            inputMint,
		OutputMint:           outputMint,
		InAmount:             strconv.FormatUint(amount, 10),
		OutAmount:            "14000000",
		OtherAmountThreshold: "13930000",
		SlippageBps:          slippageBps,
		PriceImpactPct:       "0.001",
		RoutePlan: []jupiter.RoutePlanStep{
			{SwapInfo: jupiter.SwapInfo{Label: "Whirlpool"}, Percent: 100},
		},
	}, nil
}

func (r *stubRouter) Swap(ctx context.Context, q *jupiter.Quote, owner string) (*jupiter.SwapResult, error) {
	return &jupiter.SwapResult{SwapTransaction: "AQABAgME", LastValidBlockHeight: 250_000_000}, nil
}

func (r *stubRouter) quoteCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.quotes
}

type stubSimulator struct {
	err json.RawMessage
}

func (s *stubSimulator) SimulateTransaction(ctx context.Context, txBase64 string) (solana.Simulation, error) {
	return solana.Simulation{Slot: 42, Err: s.err, Logs: []string{"Program log: ok"}}, nil
}

type stubOracle struct {
	mu    sync.Mutex
	price decimal.Decimal
	err   error
}

func (o *stubOracle) setPrice(v string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.price = decimal.RequireFromString(v)
}

func (o *stubOracle) LatestPrice(ctx context.Context) (pyth.Price, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return pyth.Price{}, o.err
	}
	return pyth.Price{Price: o.price, Conf: decimal.RequireFromString("0.05"), PublishTime: time.Now().UTC()}, nil
}

type fixture struct {
	repo     *memRepo
	balances *stubBalances
	router   *stubRouter
	sim      *stubSimulator
	oracle   *stubOracle
	locks    *OwnerLocks
	flags    *SystemSettingsService
	risk     *risk.Manager
	pipeline *Pipeline

	mu  sync.Mutex
	now time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:     newMemRepo(),
		balances: &stubBalances{byOwner: map[string]risk.Balances{}},
		router:   &stubRouter{},
		sim:      &stubSimulator{},
		oracle:   &stubOracle{price: decimal.NewFromInt(140)},
		locks:    NewOwnerLocks(),
		now:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	f.flags = &SystemSettingsService{Repo: f.repo}
	f.risk = &risk.Manager{Balances: f.balances}
	f.pipeline = &Pipeline{
		Risk:      f.risk,
		Router:    f.router,
		Simulator: f.sim,
		Mints:     Mints{SOL: "So11111111111111111111111111111111111111112", USDC: "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"},
		Now:       f.clock,
	}
	f.balances.set(testOwner, risk.Balances{Lamports: 2_000_000_000, USDCBaseUnits: 50_000_000})
	f.repo.owners = []string{testOwner}
	return f
}

func (f *fixture) clock() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fixture) advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func (f *fixture) engine(detectors ...signal.Detector) *ProposalEngine {
	return &ProposalEngine{
		Repo:      f.repo,
		Pipeline:  f.pipeline,
		Balances:  f.balances,
		Prices:    &PriceService{Oracle: f.oracle, Repo: f.repo, Now: f.clock},
		Detectors: detectors,
		Locks:     f.locks,
		Flags:     f.flags,
		Config:    config.EngineConfig{OwnerConcurrency: 4, OwnerTimeout: 5 * time.Second},
		Now:       f.clock,
	}
}

func (f *fixture) proposals() *ProposalService {
	return &ProposalService{Repo: f.repo, Pipeline: f.pipeline, Locks: f.locks, Now: f.clock}
}

func (f *fixture) automations() *AutomationService {
	return &AutomationService{Repo: f.repo, Risk: f.risk, Locks: f.locks, Now: f.clock}
}

func (f *fixture) arm(t *testing.T, in intent.Intent) *models.Automation {
	t.Helper()
	a, err := f.automations().Create(context.Background(), testOwner, in)
	if err != nil {
		t.Fatalf("arm: %v", err)
	}
	return a
}

func sol(v string) intent.Amount {
	return intent.Amount{Value: decimal.RequireFromString(v), Unit: intent.AssetSOL}
}

func usdc(v string) intent.Amount {
	return intent.Amount{Value: decimal.RequireFromString(v), Unit: intent.AssetUSDC}
}

func priceTrigger(threshold string) intent.PriceTriggerExit {
	return intent.PriceTriggerExit{Amount: sol("0.5"), SlippageBps: 50, ThresholdUsd: decimal.RequireFromString(threshold)}
}
