package solana

import (
	"context"
	"fmt"

	"ibrl/internal/risk"
)

// BalanceReader adapts the RPC client to the policy gate's live balance source.
type BalanceReader struct {
	RPC      *Client
	USDCMint string
}

func (b BalanceReader) Balances(ctx context.Context, owner string) (risk.Balances, error) {
	lamports, err := b.RPC.GetBalance(ctx, owner)
	if err != nil {
		return risk.Balances{}, fmt.Errorf("get sol balance: %w", err)
	}
	usdc, err := b.RPC.GetTokenBalance(ctx, owner, b.USDCMint)
	if err != nil {
		return risk.Balances{}, fmt.Errorf("get usdc balance: %w", err)
	}
	return risk.Balances{Lamports: lamports, USDCBaseUnits: usdc.Amount}, nil
}
