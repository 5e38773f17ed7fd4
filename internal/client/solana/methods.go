package solana

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
)

type contextValue[T any] struct {
	Context struct {
		Slot uint64 `json:"slot"`
	} `json:"context"`
	Value T `json:"value"`
}

// GetBalance returns the owner's native balance in lamports.
func (c *Client) GetBalance(ctx context.Context, owner string) (uint64, error) {
	var out contextValue[uint64]
	if err := c.Call(ctx, "getBalance", []any{owner, map[string]any{"commitment": "confirmed"}}, &out); err != nil {
		return 0, err
	}
	return out.Value, nil
}

type TokenBalance struct {
	Amount   uint64
	Decimals int
}

type tokenAccount struct {
	Account struct {
		Data struct {
			Parsed struct {
				Info struct {
					TokenAmount struct {
						Amount   string `json:"amount"`
						Decimals int    `json:"decimals"`
					} `json:"tokenAmount"`
				} `json:"info"`
			} `json:"parsed"`
		} `json:"data"`
	} `json:"account"`
}

// GetTokenBalance sums every token account the owner holds for mint. An owner with no
// account for the mint has a zero balance.
func (c *Client) GetTokenBalance(ctx context.Context, owner, mint string) (TokenBalance, error) {
	var out contextValue[[]tokenAccount]
	params := []any{
		owner,
		map[string]any{"mint": mint},
		map[string]any{"encoding": "jsonParsed", "commitment": "confirmed"},
	}
	if err := c.Call(ctx, "getTokenAccountsByOwner", params, &out); err != nil {
		return TokenBalance{}, err
	}
	var total TokenBalance
	for _, acc := range out.Value {
		amt := acc.Account.Data.Parsed.Info.TokenAmount
		v, err := strconv.ParseUint(amt.Amount, 10, 64)
		if err != nil {
			return TokenBalance{}, fmt.Errorf("invalid token amount %q: %w", amt.Amount, err)
		}
		total.Amount += v
		total.Decimals = amt.Decimals
	}
	return total, nil
}

type Simulation struct {
	Slot          uint64
	Err           json.RawMessage
	Logs          []string
	UnitsConsumed *uint64
}

func (s Simulation) OK() bool {
	return len(s.Err) == 0 || string(s.Err) == "null"
}

type simulationValue struct {
	Err           json.RawMessage `json:"err"`
	Logs          []string        `json:"logs"`
	UnitsConsumed *uint64         `json:"unitsConsumed"`
}

// SimulateTransaction dry-runs a base64 encoded transaction. Signatures are not verified and
// the blockhash is replaced so unsigned router transactions simulate cleanly.
func (c *Client) SimulateTransaction(ctx context.Context, txBase64 string) (Simulation, error) {
	var out contextValue[simulationValue]
	params := []any{
		txBase64,
		map[string]any{
			"sigVerify":              false,
			"replaceRecentBlockhash": true,
			"commitment":             "processed",
			"encoding":               "base64",
		},
	}
	if err := c.Call(ctx, "simulateTransaction", params, &out); err != nil {
		return Simulation{}, err
	}
	return Simulation{
		Slot:          out.Context.Slot,
		Err:           out.Value.Err,
		Logs:          out.Value.Logs,
		UnitsConsumed: out.Value.UnitsConsumed,
	}, nil
}

type EpochInfo struct {
	AbsoluteSlot uint64 `json:"absoluteSlot"`
	BlockHeight  uint64 `json:"blockHeight"`
	Epoch        uint64 `json:"epoch"`
	SlotIndex    uint64 `json:"slotIndex"`
	SlotsInEpoch uint64 `json:"slotsInEpoch"`
}

func (c *Client) GetEpochInfo(ctx context.Context) (EpochInfo, error) {
	var out EpochInfo
	if err := c.Call(ctx, "getEpochInfo", nil, &out); err != nil {
		return EpochInfo{}, err
	}
	return out, nil
}
