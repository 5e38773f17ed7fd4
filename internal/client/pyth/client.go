// Package pyth reads the SOL/USD price from a Pyth Hermes endpoint.
package pyth

import (
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

	"github.com/shopspring/decimal"
)

const DefaultSOLUSDFeedID = "ef0d8b6fda2ceba41da15d4095d1da392a0d2f8ed0c6c7bc0f4cfac8c280b56d"

var ErrMissingPrice = errors.New("pyth: missing parsed price")

type Client struct {
	host       string
	feedID     string
	httpClient *http.Client
}

type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("hermes error (%d): %s", e.Status, e.Body)
}

// Price is an exact oracle reading; Price and Conf are already scaled by the feed exponent.
type Price struct {
	FeedID      string
	Price       decimal.Decimal
	Conf        decimal.Decimal
	PublishTime time.Time
}

func NewClient(httpClient *http.Client, host, feedID string) *Client {
	if host == "" {
		host = "https://hermes.pyth.network"
	}
	if feedID == "" {
		feedID = DefaultSOLUSDFeedID
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 12 * time.Second}
	}
	return &Client{
		host:       strings.TrimRight(host, "/"),
		feedID:     strings.TrimPrefix(strings.TrimSpace(feedID), "0x"),
		httpClient: httpClient,
	}
}

type latestResponse struct {
	Parsed []struct {
		ID    string `json:"id"`
		Price struct {
			Price       string `json:"price"`
			Conf        string `json:"conf"`
			Expo        int32  `json:"expo"`
			PublishTime int64  `json:"publish_time"`
		} `json:"price"`
	} `json:"parsed"`
}

// LatestPrice fails closed: any transport, status or decoding problem is an error and no
// fallback price is produced.
func (c *Client) LatestPrice(ctx context.Context) (Price, error) {
	query := url.Values{}
	query.Set("encoding", "base64")
	query.Add("ids[]", c.feedID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.host+"/v2/updates/price/latest?"+query.Encode(), nil)
	if err != nil {
		return Price{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Price{}, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Price{}, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Price{}, &APIError{Status: resp.StatusCode, Body: string(body)}
	}
	return parseLatest(body)
}

func parseLatest(body []byte) (Price, error) {
	var payload latestResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return Price{}, fmt.Errorf("decode hermes response: %w", err)
	}
	if len(payload.Parsed) == 0 || payload.Parsed[0].Price.Price == "" {
		return Price{}, ErrMissingPrice
	}
	p := payload.Parsed[0]
	raw, err := strconv.ParseInt(p.Price.Price, 10, 64)
	if err != nil {
		return Price{}, fmt.Errorf("invalid price %q: %w", p.Price.Price, err)
	}
	if raw <= 0 {
		return Price{}, fmt.Errorf("invalid price %q", p.Price.Price)
	}
	out := Price{
		FeedID:      p.ID,
		Price:       decimal.New(raw, p.Price.Expo),
		Conf:        decimal.Zero,
		PublishTime: time.Unix(p.Price.PublishTime, 0).UTC(),
	}
	if conf, err := strconv.ParseInt(p.Price.Conf, 10, 64); err == nil {
		out.Conf = decimal.New(conf, p.Price.Expo)
	}
	return out, nil
}
