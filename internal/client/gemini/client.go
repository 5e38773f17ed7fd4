// Package gemini wraps the Gemini API for intent extraction and portfolio answers.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"
)

var ErrNotConfigured = errors.New("gemini: api key not configured")

type Client struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

type Options struct {
	APIKey  string
	Model   string
	Timeout time.Duration
	// BaseURL overrides the API host; empty uses the default endpoint.
	BaseURL string
}

func New(ctx context.Context, opts Options) (*Client, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, ErrNotConfigured
	}
	cc := &genai.ClientConfig{APIKey: opts.APIKey, Backend: genai.BackendGeminiAPI}
	if opts.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: opts.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, err
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = "gemini-2.0-flash"
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Client{client: client, model: model, timeout: timeout}, nil
}

// GenerateJSON asks for a single JSON document.
func (c *Client) GenerateJSON(ctx context.Context, system, prompt string) (string, error) {
	return c.generate(ctx, system, prompt, "application/json")
}

func (c *Client) GenerateText(ctx context.Context, system, prompt string) (string, error) {
	return c.generate(ctx, system, prompt, "")
}

func (c *Client) generate(ctx context.Context, system, prompt, mime string) (string, error) {
	if c == nil || c.client == nil {
		return "", ErrNotConfigured
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cfg := &genai.GenerateContentConfig{ResponseMIMEType: mime}
	if strings.TrimSpace(system) != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(prompt), cfg)
	if err != nil {
		return "", fmt.Errorf("gemini request failed: %w", err)
	}
	if resp == nil {
		return "", fmt.Errorf("gemini returned no response")
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("gemini returned empty text")
	}
	return text, nil
}
