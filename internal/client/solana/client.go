// Package solana is a minimal JSON-RPC client for the calls the agent makes against the
// chain: balances, simulation and epoch info.
package solana

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

var ErrNoEndpoints = errors.New("solana: no rpc endpoints configured")

type Client struct {
	endpoints  []string
	httpClient *http.Client
	logger     *zap.Logger
	seq        atomic.Uint64
}

// StatusError is an HTTP level failure from one endpoint.
type StatusError struct {
	Endpoint string
	Status   int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("rpc %s error (%d): %s", e.Endpoint, e.Status, e.Body)
}

// RPCError is a JSON-RPC error object returned by a healthy endpoint.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

func NewClient(httpClient *http.Client, endpoints []string, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 12 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cleaned := make([]string, 0, len(endpoints))
	for _, e := range endpoints {
		if e = strings.TrimSpace(e); e != "" {
			cleaned = append(cleaned, e)
		}
	}
	return &Client{endpoints: cleaned, httpClient: httpClient, logger: logger}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params,omitempty"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

// retryable reports whether the next endpoint should be tried. Vendors answer 403 and 429
// for policy or rate limits.
func retryable(status int) bool {
	return status == http.StatusForbidden || status == http.StatusTooManyRequests || status >= 500
}

// Call sends one JSON-RPC request, failing over across endpoints in order.
func (c *Client) Call(ctx context.Context, method string, params []any, out any) error {
	if len(c.endpoints) == 0 {
		return ErrNoEndpoints
	}
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: c.seq.Add(1), Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("encode %s: %w", method, err)
	}

	var lastErr error
	for _, endpoint := range c.endpoints {
		raw, status, err := c.post(ctx, endpoint, body)
		if err != nil {
			if ctx.Err() != nil {
				return err
			}
			lastErr = err
			c.logger.Debug("rpc endpoint failed", zap.String("method", method), zap.Error(err))
			continue
		}
		if status != http.StatusOK {
			lastErr = &StatusError{Endpoint: endpoint, Status: status, Body: truncate(string(raw), 200)}
			if retryable(status) {
				c.logger.Debug("rpc endpoint rejected", zap.String("method", method), zap.Int("status", status))
				continue
			}
			return lastErr
		}
		var resp rpcResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			return fmt.Errorf("decode %s: %w", method, err)
		}
		if resp.Error != nil {
			return resp.Error
		}
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(resp.Result, out); err != nil {
			return fmt.Errorf("decode %s result: %w", method, err)
		}
		return nil
	}
	return lastErr
}

func (c *Client) post(ctx context.Context, endpoint string, body []byte) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read response: %w", err)
	}
	return raw, resp.StatusCode, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
