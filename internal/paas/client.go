package paas

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const DefaultAgent = "ibrl-agent"

// Client ships audit entries to the platform log API. It logs in with an API key and
// re-authenticates shortly before the token expires.
type Client struct {
	BaseURL string
	APIKey  string
	Agent   string
	HTTP    *http.Client
	Logger  *zap.Logger

	mu        sync.RWMutex
	token     string
	expiresAt time.Time
}

type loginResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
}

type LogEntry struct {
	Agent      string         `json:"agent"`
	Action     string         `json:"action"`
	Level      string         `json:"level"`
	Details    map[string]any `json:"details"`
	SessionKey string         `json:"session_key"`
	Metadata   map[string]any `json:"metadata"`
}

// New returns nil when no base url is configured, which disables auditing.
func New(baseURL, apiKey, agent string, logger *zap.Logger) *Client {
	if strings.TrimSpace(baseURL) == "" {
		return nil
	}
	return &Client{BaseURL: baseURL, APIKey: apiKey, Agent: agent, Logger: logger}
}

func (c *Client) base() string {
	return strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
}

func (c *Client) agent() string {
	if a := strings.TrimSpace(c.Agent); a != "" {
		return a
	}
	return DefaultAgent
}

func (c *Client) Login(ctx context.Context) error {
	if c.base() == "" {
		return errors.New("paas base url is empty")
	}
	apiKey := strings.TrimSpace(c.APIKey)
	if apiKey == "" {
		return errors.New("paas api key is empty")
	}
	body, _ := json.Marshal(map[string]any{"api_key": apiKey})
	b, err := c.post(ctx, "/api/v1/auth/login", body, "")
	if err != nil {
		return fmt.Errorf("paas login: %w", err)
	}
	var lr loginResponse
	if err := json.Unmarshal(b, &lr); err != nil {
		return err
	}
	exp, _ := time.Parse(time.RFC3339, strings.TrimSpace(lr.ExpiresAt))

	c.mu.Lock()
	c.token = strings.TrimSpace(lr.Token)
	c.expiresAt = exp
	c.mu.Unlock()
	return nil
}

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) EnsureToken(ctx context.Context) error {
	c.mu.RLock()
	tok, exp := c.token, c.expiresAt
	c.mu.RUnlock()
	if strings.TrimSpace(tok) == "" {
		return c.Login(ctx)
	}
	if !exp.IsZero() && time.Until(exp) < 2*time.Minute {
		return c.Login(ctx)
	}
	return nil
}

func (c *Client) CreateLog(ctx context.Context, entry LogEntry) error {
	if err := c.EnsureToken(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(entry.Agent) == "" {
		entry.Agent = c.agent()
	}
	if entry.Metadata == nil {
		entry.Metadata = map[string]any{}
	}
	b, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	if _, err := c.post(ctx, "/api/v1/logs", b, c.Token()); err != nil {
		return fmt.Errorf("paas create log: %w", err)
	}
	return nil
}

// Audit records one entry without blocking the caller for more than two seconds. Failures are
// logged at debug level only. A nil client is a no-op.
func (c *Client) Audit(ctx context.Context, action, level string, details map[string]any) {
	if c == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	err := c.CreateLog(ctx, LogEntry{Action: action, Level: level, Details: details})
	if err != nil && c.Logger != nil {
		c.Logger.Debug("paas audit failed", zap.String("action", action), zap.Error(err))
	}
}

func (c *Client) post(ctx context.Context, path string, body []byte, token string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base()+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	b, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	return b, nil
}

func (c *Client) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return &http.Client{Timeout: 10 * time.Second}
}
