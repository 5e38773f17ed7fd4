package risk

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"ibrl/internal/errs"
	"ibrl/internal/intent"
)

// BalanceReader returns live balances for a wallet.
type BalanceReader interface {
	Balances(ctx context.Context, owner string) (Balances, error)
}

// Manager runs the policy gate against live balances.
type Manager struct {
	Balances BalanceReader
	Logger   *zap.Logger
}

type PreflightResult struct {
	Passed   bool             `json:"passed"`
	Reason   string           `json:"reason,omitempty"`
	Balances Balances         `json:"balances"`
	Checks   []PreflightCheck `json:"checks"`
}

type PreflightCheck struct {
	Name   string `json:"name"`
	Status string `json:"status"` // pass|fail|skip
	Value  any    `json:"value,omitempty"`
	Msg    string `json:"msg,omitempty"`
}

// Check reads live balances and applies CheckPolicy. The returned result is filled even when
// the policy rejects, so callers can render it. A balance read failure is an upstream error.
func (m *Manager) Check(ctx context.Context, owner string, in intent.Intent) (PreflightResult, error) {
	owner = strings.TrimSpace(owner)
	res := PreflightResult{}

	needsBalances := false
	if _, ok := intent.TradeOf(in); ok && owner != "" {
		needsBalances = true
	}
	if needsBalances {
		if m == nil || m.Balances == nil {
			return res, errs.Upstream("balances", errors.New("balance reader not configured"))
		}
		bal, err := m.Balances.Balances(ctx, owner)
		if err != nil {
			return res, errs.Upstream("balances", err)
		}
		res.Balances = bal
	}

	err := CheckPolicy(owner, in, res.Balances)
	res.Checks = preflightChecks(owner, in, res.Balances, err)
	res.Passed = err == nil
	if err != nil {
		res.Reason = err.Error()
		if m != nil && m.Logger != nil {
			m.Logger.Debug("risk: policy rejected",
				zap.String("owner", owner),
				zap.String("kind", string(in.Kind())),
				zap.String("reason", res.Reason),
			)
		}
	}
	return res, err
}

func preflightChecks(owner string, in intent.Intent, bal Balances, policyErr error) []PreflightCheck {
	checks := []PreflightCheck{}
	ownerCheck := PreflightCheck{Name: "owner", Status: "pass", Value: owner}
	if owner == "" {
		ownerCheck.Status = "fail"
		ownerCheck.Msg = "Wallet not connected"
	}
	checks = append(checks, ownerCheck)

	trade, ok := intent.TradeOf(in)
	if !ok {
		status := "pass"
		msg := ""
		if policyErr != nil {
			status = "fail"
			msg = policyErr.Error()
		}
		return append(checks, PreflightCheck{Name: "policy", Status: status, Msg: msg})
	}

	checks = append(checks, PreflightCheck{
		Name:   "slippage",
		Status: passIf(trade.SlippageBps <= MaxPolicySlippageBps),
		Value:  trade.SlippageBps,
	})

	spend := PreflightCheck{Name: "safe_spend", Status: "skip"}
	if requested, err := intent.ToBaseUnits(trade.Amount); err == nil && owner != "" {
		allowed := SafeSpend(bal.Of(trade.From))
		spend.Status = passIf(requested <= allowed)
		spend.Value = map[string]any{
			"asset":     string(trade.From),
			"requested": requested,
			"allowed":   allowed,
			"balance":   bal.Of(trade.From),
		}
	}
	if fe, ok := errs.AsInsufficientFunds(policyErr); ok {
		spend.Msg = fe.Error()
	}
	checks = append(checks, spend)

	policyCheck := PreflightCheck{Name: "policy", Status: "pass"}
	if policyErr != nil {
		policyCheck.Status = "fail"
		policyCheck.Msg = policyErr.Error()
	}
	return append(checks, policyCheck)
}

func passIf(ok bool) string {
	if ok {
		return "pass"
	}
	return "fail"
}
