// Package jupiter talks to the Jupiter swap API: quote a route, then build an unsigned
// swap transaction for it.
package jupiter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

var ErrNoRoute = errors.New("jupiter: no route")

type Client struct {
	host       string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
}

type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("jupiter error (%d): %s", e.Status, e.Body)
}

type Options struct {
	Host          string
	APIKey        string
	RatePerSecond float64
	Burst         int
}

func NewClient(httpClient *http.Client, opts Options) *Client {
	host := strings.TrimRight(strings.TrimSpace(opts.Host), "/")
	if host == "" {
		host = "https://lite-api.jup.ag"
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 12 * time.Second}
	}
	limit := rate.Inf
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Client{
		host:       host,
		apiKey:     strings.TrimSpace(opts.APIKey),
		httpClient: httpClient,
		limiter:    rate.NewLimiter(limit, burst),
	}
}

type SwapInfo struct {
	AmmKey     string `json:"ammKey"`
	Label      string `json:"label"`
	InputMint  string `json:"inputMint"`
	OutputMint string `json:"outputMint"`
	InAmount   string `json:"inAmount"`
	OutAmount  string `json:"outAmount"`
}

type RoutePlanStep struct {
	SwapInfo SwapInfo `json:"swapInfo"`
	Percent  int      `json:"percent"`
}

// Quote is the decoded quote plus the raw document, which the swap endpoint expects back
// verbatim.
type Quote struct {
	InputMint            string          `json:"inputMint"`
	OutputMint           string          `json:"outputMint"`
	InAmount             string          `json:"inAmount"`
	OutAmount            string          `json:"outAmount"`
	OtherAmountThreshold string          `json:"otherAmountThreshold"`
	SwapMode             string          `json:"swapMode"`
	SlippageBps          int             `json:"slippageBps"`
	PriceImpactPct       string          `json:"priceImpactPct"`
	RoutePlan            []RoutePlanStep `json:"routePlan"`

	Raw json.RawMessage `json:"-"`
}

// Venues lists distinct route labels in route order, at most limit of them.
func (q *Quote) Venues(limit int) []string {
	out := []string{}
	seen := map[string]struct{}{}
	for _, step := range q.RoutePlan {
		label := strings.TrimSpace(step.SwapInfo.Label)
		if label == "" {
			continue
		}
		if _, ok := seen[label]; ok {
			continue
		}
		seen[label] = struct{}{}
		out = append(out, label)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

type SwapResult struct {
	SwapTransaction      string `json:"swapTransaction"`
	LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
}

func (c *Client) Quote(ctx context.Context, inputMint, outputMint string, amount uint64, slippageBps int) (*Quote, error) {
	if inputMint == "" || outputMint == "" {
		return nil, fmt.Errorf("input and output mint are required")
	}
	if amount == 0 {
		return nil, fmt.Errorf("amount is required")
	}
	query := url.Values{}
	query.Set("inputMint", inputMint)
	query.Set("outputMint", outputMint)
	query.Set("amount", strconv.FormatUint(amount, 10))
	query.Set("slippageBps", strconv.Itoa(slippageBps))

	body, err := c.do(ctx, http.MethodGet, "/swap/v1/quote?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}
	var q Quote
	if err := json.Unmarshal(body, &q); err != nil {
		return nil, fmt.Errorf("decode quote: %w", err)
	}
	if q.OutAmount == "" || q.OutAmount == "0" {
		return nil, ErrNoRoute
	}
	q.Raw = json.RawMessage(body)
	return &q, nil
}

type swapRequest struct {
	QuoteResponse           json.RawMessage `json:"quoteResponse"`
	UserPublicKey           string          `json:"userPublicKey"`
	WrapAndUnwrapSol        bool            `json:"wrapAndUnwrapSol"`
	DynamicComputeUnitLimit bool            `json:"dynamicComputeUnitLimit"`
}

// Swap builds an unsigned versioned transaction for q, paid by owner.
func (c *Client) Swap(ctx context.Context, q *Quote, owner string) (*SwapResult, error) {
	if q == nil || len(q.Raw) == 0 {
		return nil, fmt.Errorf("quote is required")
	}
	if strings.TrimSpace(owner) == "" {
		return nil, fmt.Errorf("owner is required")
	}
	payload, err := json.Marshal(swapRequest{
		QuoteResponse:           q.Raw,
		UserPublicKey:           owner,
		WrapAndUnwrapSol:        true,
		DynamicComputeUnitLimit: true,
	})
	if err != nil {
		return nil, err
	}
	body, err := c.do(ctx, http.MethodPost, "/swap/v1/swap", payload)
	if err != nil {
		return nil, err
	}
	var out SwapResult
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode swap: %w", err)
	}
	if out.SwapTransaction == "" {
		return nil, fmt.Errorf("swap response missing transaction")
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.host+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{Status: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}
