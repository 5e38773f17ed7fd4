package service

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"ibrl/internal/config"
	"ibrl/internal/errs"
	"ibrl/internal/intent"
	"ibrl/internal/logger"
	"ibrl/internal/models"
	"ibrl/internal/report"
	"ibrl/internal/repository"
	"ibrl/internal/risk"
	"ibrl/internal/signal"
)

const (
	defaultTriggerThrottle = 15 * time.Minute
	sampleLookback         = time.Hour
	sampleLimit            = 500
	detectorHistory        = 24 * time.Hour
)

// ProposalEngine evaluates every tracked owner on each tick: armed automations first, then
// the autonomous detectors. It only ever writes PENDING_APPROVAL proposals.
type ProposalEngine struct {
	Repo      repository.Repository
	Pipeline  *Pipeline
	Balances  risk.BalanceReader
	Prices    *PriceService
	Detectors []signal.Detector
	Locks     *OwnerLocks
	Flags     *SystemSettingsService
	Audit     Auditor
	Config    config.EngineConfig
	Logger    *zap.Logger
	Now       func() time.Time
}

// Outcome is what happened to one automation or detector for one owner.
type Outcome struct {
	Source     string `json:"source"`
	Fired      bool   `json:"fired"`
	ProposalID string `json:"proposalId,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

type OwnerReport struct {
	Owner    string    `json:"owner"`
	Outcomes []Outcome `json:"outcomes"`
	Error    string    `json:"error,omitempty"`
}

type TickReport struct {
	StartedAt time.Time        `json:"startedAt"`
	Duration  time.Duration    `json:"duration"`
	Price     *decimal.Decimal `json:"price,omitempty"`
	Owners    int              `json:"owners"`
	Proposals int              `json:"proposals"`
	Failures  int              `json:"failures"`
	Skipped   string           `json:"skipped,omitempty"`
}

// Market is the price context shared by every owner in a tick.
type Market struct {
	Price   *decimal.Decimal
	Samples []signal.PricePoint
}

func (e *ProposalEngine) now() time.Time {
	if e.Now != nil {
		return e.Now().UTC()
	}
	return time.Now().UTC()
}

func (e *ProposalEngine) log() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

// Tick samples the price once and evaluates all tracked owners on a bounded worker pool.
// One owner's failure, timeout or panic never affects the others.
func (e *ProposalEngine) Tick(ctx context.Context) (rep TickReport) {
	if e == nil || e.Repo == nil {
		rep.Skipped = "not configured"
		return rep
	}
	started, wall := e.now(), time.Now()
	rep.StartedAt = started
	defer func() { rep.Duration = time.Since(wall) }()
	if !e.Flags.IsEnabled(ctx, FeatureEngine, true) {
		rep.Skipped = "disabled"
		return rep
	}

	market := e.LoadMarket(ctx)
	rep.Price = market.Price

	lookback := e.Config.TrackedOwnerLookback
	if lookback <= 0 {
		lookback = 7 * 24 * time.Hour
	}
	owners, err := e.Repo.ListTrackedOwners(ctx, started.Add(-lookback))
	if err != nil {
		e.log().Warn("engine: list owners failed", zap.Error(err))
		rep.Skipped = "owners unavailable"
		return rep
	}
	rep.Owners = len(owners)

	workers := e.Config.OwnerConcurrency
	if workers <= 0 {
		workers = 8
	}
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		sem = make(chan struct{}, workers)
	)
	for _, owner := range owners {
		if ctx.Err() != nil {
			break
		}
		sem <- struct{}{}
		wg.Add(1)
		go func(owner string) {
			defer func() {
				<-sem
				wg.Done()
			}()
			res := e.runOwner(ctx, owner, market)
			mu.Lock()
			defer mu.Unlock()
			if res.Error != "" {
				rep.Failures++
			}
			for _, o := range res.Outcomes {
				if o.Fired {
					rep.Proposals++
				}
			}
		}(owner)
	}
	wg.Wait()

	e.log().Info("engine tick",
		zap.Int("owners", rep.Owners),
		zap.Int("proposals", rep.Proposals),
		zap.Int("failures", rep.Failures),
		zap.Duration("elapsed", time.Since(wall)),
	)
	return rep
}

// RunOwner evaluates a single owner outside the tick, e.g. on demand from the API.
func (e *ProposalEngine) RunOwner(ctx context.Context, owner string) OwnerReport {
	return e.runOwner(ctx, owner, e.LoadMarket(ctx))
}

func (e *ProposalEngine) runOwner(ctx context.Context, owner string, market Market) (res OwnerReport) {
	res.Owner = owner
	defer func() {
		if r := recover(); r != nil {
			res.Error = fmt.Sprintf("panic: %v", r)
			e.log().Error("engine: owner evaluation panicked",
				logger.Owner(owner),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
		}
	}()

	timeout := e.Config.OwnerTimeout
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	unlock, err := e.Locks.LockContext(ctx, owner)
	if err != nil {
		res.Error = err.Error()
		e.log().Warn("engine: owner busy", logger.Owner(owner), zap.Error(err))
		return res
	}
	defer unlock()

	outcomes, err := e.EvaluateOwner(ctx, owner, market)
	res.Outcomes = outcomes
	if err != nil {
		res.Error = err.Error()
		e.log().Warn("engine: owner skipped", logger.Owner(owner), zap.Error(err))
	}
	return res
}

// LoadMarket samples the oracle and reads the recent sample window. An oracle failure leaves
// Price nil, and neither price triggers nor detectors fire on that tick.
func (e *ProposalEngine) LoadMarket(ctx context.Context) Market {
	now := e.now()
	var m Market
	if e.Prices != nil {
		if q, err := e.Prices.Sample(ctx); err != nil {
			e.log().Warn("engine: price unavailable", zap.Error(err))
		} else {
			p := q.Price
			m.Price = &p
		}
	}
	samples, err := e.Repo.ListPriceSamples(ctx, now.Add(-sampleLookback), sampleLimit)
	if err != nil {
		e.log().Warn("engine: load samples failed", zap.Error(err))
		return m
	}
	m.Samples = make([]signal.PricePoint, 0, len(samples))
	for _, s := range samples {
		m.Samples = append(m.Samples, signal.PricePoint{Price: s.Price, TS: s.TS})
	}
	return m
}

// EvaluateOwner must be called with the owner's lock held.
func (e *ProposalEngine) EvaluateOwner(ctx context.Context, owner string, market Market) ([]Outcome, error) {
	outcomes := []Outcome{}
	if kinds := e.enabledAutomationKinds(ctx); len(kinds) > 0 {
		autos, err := e.Repo.ListAutomations(ctx, repository.ListAutomationsParams{
			Owner:  &owner,
			Status: strPtr(models.AutomationStatusActive),
			Kinds:  kinds,
			Limit:  200,
		})
		if err != nil {
			return outcomes, fmt.Errorf("list automations: %w", err)
		}
		for _, a := range autos {
			if ctx.Err() != nil {
				return outcomes, ctx.Err()
			}
			outcomes = append(outcomes, e.evaluateAutomation(ctx, a, market))
		}
	}

	// Stored samples alone never stand in for a live price.
	if len(e.Detectors) == 0 || market.Price == nil {
		return outcomes, nil
	}
	input, err := e.detectorInput(ctx, owner, market)
	if err != nil {
		return outcomes, err
	}
	for _, d := range e.Detectors {
		if ctx.Err() != nil {
			return outcomes, ctx.Err()
		}
		if !e.Flags.IsEnabled(ctx, DetectorFeature(d.Name()), true) {
			continue
		}
		out := e.evaluateDetector(ctx, d, input)
		if out.Fired {
			input.RecentProposals = append(input.RecentProposals, signal.ProposalRef{Origin: d.Name(), CreatedAt: input.Now})
		}
		outcomes = append(outcomes, out)
	}
	return outcomes, nil
}

func (e *ProposalEngine) enabledAutomationKinds(ctx context.Context) []string {
	kinds := []string{}
	if e.Flags.IsEnabled(ctx, FeaturePriceTriggers, true) {
		kinds = append(kinds, string(intent.KindPriceTriggerExit), string(intent.KindPriceTriggerEntry))
	}
	if e.Flags.IsEnabled(ctx, FeatureDCA, true) {
		kinds = append(kinds, string(intent.KindDCASwap))
	}
	return kinds
}

func (e *ProposalEngine) detectorInput(ctx context.Context, owner string, market Market) (signal.Input, error) {
	now := e.now()
	in := signal.Input{Owner: owner, Samples: market.Samples, Now: now}
	if e.Balances == nil {
		return in, errs.Upstream("balances", errors.New("balance reader not configured"))
	}
	bal, err := e.Balances.Balances(ctx, owner)
	if err != nil {
		return in, errs.Upstream("balances", err)
	}
	in.Balances = bal

	names := make([]string, 0, len(e.Detectors))
	for _, d := range e.Detectors {
		names = append(names, d.Name())
	}
	since := now.Add(-detectorHistory)
	recent, err := e.Repo.ListProposals(ctx, repository.ListProposalsParams{
		Owner:   &owner,
		Origins: names,
		Since:   &since,
		Limit:   200,
	})
	if err != nil {
		return in, fmt.Errorf("list recent proposals: %w", err)
	}
	for _, p := range recent {
		in.RecentProposals = append(in.RecentProposals, signal.ProposalRef{Origin: p.Origin, CreatedAt: p.CreatedAt})
	}
	last, err := e.Repo.LastInteractionAt(ctx, owner)
	if err != nil {
		return in, fmt.Errorf("last interaction: %w", err)
	}
	in.LastInteractionAt = last
	return in, nil
}

func (e *ProposalEngine) evaluateDetector(ctx context.Context, d signal.Detector, in signal.Input) Outcome {
	out := Outcome{Source: d.Name()}
	decision := d.Evaluate(in)
	if !decision.Fire {
		out.Reason = decision.Reason
		return out
	}

	built, err := e.Pipeline.Build(ctx, in.Owner, decision.Intent)
	if err != nil {
		out.Reason = e.skipReason(in.Owner, d.Name(), err)
		return out
	}
	item, err := newProposal(proposalDraft{
		Owner:     in.Owner,
		Origin:    d.Name(),
		CreatedBy: models.CreatedByAgent,
		Summary:   intent.Summary(decision.Intent),
		Intent:    decision.Intent,
		Built:     built,
		Signal: &report.SignalInfo{
			Detector:  d.Name(),
			Rationale: decision.Rationale,
			Metrics:   decision.Metrics,
		},
		Now: in.Now,
	})
	if err != nil {
		out.Reason = err.Error()
		return out
	}
	if err := e.Repo.InsertProposal(ctx, item); err != nil {
		out.Reason = e.skipReason(in.Owner, d.Name(), err)
		return out
	}
	e.log().Info("engine: detector proposal created",
		logger.Owner(in.Owner),
		zap.String("detector", d.Name()),
		zap.String("proposal_id", item.ID),
		zap.String("rationale", decision.Rationale),
	)
	audit(ctx, e.Audit, "proposal_created", map[string]any{
		"owner":       in.Owner,
		"origin":      d.Name(),
		"proposal_id": item.ID,
	})
	out.Fired = true
	out.ProposalID = item.ID
	return out
}

func (e *ProposalEngine) evaluateAutomation(ctx context.Context, a models.Automation, market Market) Outcome {
	out := Outcome{Source: "automation:" + a.ID}
	in, err := a.Intent()
	if err != nil {
		out.Reason = "invalid config: " + err.Error()
		e.log().Warn("engine: automation config unreadable", zap.String("automation_id", a.ID), zap.Error(err))
		return out
	}
	now := e.now()
	due, reason := Due(in, a.LastFiredAt, market.Price, now, e.Config.TriggerThrottle)
	if !due {
		out.Reason = reason
		return out
	}
	pending, err := e.Repo.HasPendingProposal(ctx, a.ID)
	if err != nil {
		out.Reason = err.Error()
		return out
	}
	if pending {
		out.Reason = "pending approval exists"
		return out
	}

	built, err := e.Pipeline.Build(ctx, a.Owner, in)
	if err != nil {
		out.Reason = e.skipReason(a.Owner, out.Source, err)
		return out
	}
	trigger := &report.TriggerInfo{AutomationID: a.ID, PriceUsd: market.Price, LastFiredAt: a.LastFiredAt}
	if th, ok := intent.Threshold(in); ok {
		trigger.ThresholdUsd = &th
	}
	if iv, ok := intent.IntervalMinutes(in); ok {
		trigger.IntervalMinutes = iv
	}
	item, err := newProposal(proposalDraft{
		Owner:     a.Owner,
		Origin:    models.OriginAutomation,
		CreatedBy: models.CreatedByAgent,
		Summary:   intent.FiredSummary(in),
		Intent:    in,
		Built:     built,
		Trigger:   trigger,
		Now:       now,
	})
	if err != nil {
		out.Reason = err.Error()
		return out
	}
	_, isPrice := intent.Threshold(in)
	err = e.Repo.InsertProposalMarkFired(ctx, item, repository.FireParams{
		AutomationID: a.ID,
		Owner:        a.Owner,
		FiredAt:      now,
		Pause:        isPrice && e.Config.OneShotTriggers,
	})
	if err != nil {
		out.Reason = e.skipReason(a.Owner, out.Source, err)
		return out
	}
	e.log().Info("engine: automation fired",
		logger.Owner(a.Owner),
		zap.String("automation_id", a.ID),
		zap.String("proposal_id", item.ID),
		zap.String("kind", a.Kind),
	)
	audit(ctx, e.Audit, "proposal_created", map[string]any{
		"owner":         a.Owner,
		"origin":        models.OriginAutomation,
		"automation_id": a.ID,
		"proposal_id":   item.ID,
	})
	out.Fired = true
	out.ProposalID = item.ID
	return out
}

// Due decides whether an armed automation should fire at now. Price triggers fire while the
// price is at or below the threshold, at most once per throttle. DCA fires once per interval
// and immediately if it never fired.
func Due(in intent.Intent, lastFiredAt *time.Time, price *decimal.Decimal, now time.Time, throttle time.Duration) (bool, string) {
	if threshold, ok := intent.Threshold(in); ok {
		if price == nil {
			return false, "price unavailable"
		}
		if price.GreaterThan(threshold) {
			return false, "price above threshold"
		}
		if throttle <= 0 {
			throttle = defaultTriggerThrottle
		}
		if lastFiredAt != nil && now.Sub(*lastFiredAt) < throttle {
			return false, "throttled"
		}
		return true, ""
	}
	if minutes, ok := intent.IntervalMinutes(in); ok {
		if lastFiredAt == nil {
			return true, ""
		}
		if now.Sub(*lastFiredAt) < time.Duration(minutes)*time.Minute {
			return false, "interval not elapsed"
		}
		return true, ""
	}
	return false, "not an automation"
}

// skipReason logs a deferred fire and renders it for the outcome list.
func (e *ProposalEngine) skipReason(owner, source string, err error) string {
	fields := []zap.Field{logger.Owner(owner), zap.String("source", source), zap.Error(err)}
	switch {
	case errors.Is(err, errs.ErrStateConflict):
		e.log().Debug("engine: lost race for automation", fields...)
		return "state conflict"
	case errs.IsValidation(err):
		if f, ok := errs.AsInsufficientFunds(err); ok {
			fields = append(fields, zap.String("asset", f.Asset), zap.Uint64("shortfall", f.Shortfall))
		}
		e.log().Warn("engine: policy blocked fire", fields...)
	case errs.IsUpstream(err):
		e.log().Warn("engine: upstream unavailable; retry next tick", fields...)
	default:
		e.log().Warn("engine: fire failed", fields...)
	}
	return err.Error()
}

// PruneSamples runs the sample retention job.
func (e *ProposalEngine) PruneSamples(ctx context.Context) {
	retention := e.Config.SampleRetention
	if retention <= 0 {
		retention = 48 * time.Hour
	}
	n, err := e.Prices.Prune(ctx, retention)
	if err != nil {
		e.log().Warn("engine: prune samples failed", zap.Error(err))
		return
	}
	if n > 0 {
		e.log().Info("engine: pruned price samples", zap.Int64("deleted", n))
	}
}

// SweepStale logs pending proposals that need a refresh before they can be sent.
func (e *ProposalEngine) SweepStale(ctx context.Context) int64 {
	staleAfter := e.Config.StaleAfter
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	before := e.now().Add(-staleAfter)
	n, err := e.Repo.CountProposals(ctx, repository.ListProposalsParams{
		Status:        strPtr(models.ProposalStatusPending),
		UpdatedBefore: &before,
	})
	if err != nil {
		e.log().Warn("engine: stale sweep failed", zap.Error(err))
		return 0
	}
	if n > 0 {
		e.log().Info("engine: stale proposals awaiting refresh", zap.Int64("count", n))
	}
	return n
}

func strPtr(v string) *string { return &v }
