// Package completion is the HTTP client for the remote completion
// service: a general chat-style completion used as the intent engine's
// escalation path, plus named text-transform operations.
package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/creastat/infra/telemetry"

	"github.com/creastat/assistant/core"
)

// Config holds completion client configuration
type Config struct {
	BaseURL string
	APIKey  string

	// HTTPClient overrides the default client (used by tests)
	HTTPClient *http.Client

	Timeout time.Duration
	Logger  telemetry.Logger
}

// Client talks to the remote completion service
type Client struct {
	config Config
	http   *http.Client
}

// New creates a completion client
func New(config Config) *Client {
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: config.Timeout}
	}
	return &Client{
		config: config,
		http:   httpClient,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Complete sends a conversation history and returns the free-form
// completion text. Callers cap the history before calling.
func (c *Client) Complete(ctx context.Context, messages []core.Message) (string, error) {
	payload := struct {
		Messages []chatMessage `json:"messages"`
	}{Messages: make([]chatMessage, 0, len(messages))}

	for _, m := range messages {
		payload.Messages = append(payload.Messages, chatMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}

	var resp struct {
		Content string `json:"content"`
	}
	if err := c.post(ctx, "/completions", payload, &resp); err != nil {
		return "", err
	}
	return resp.Content, nil
}

// CleanGrammar corrects the grammar of the given text
func (c *Client) CleanGrammar(ctx context.Context, text string) (string, error) {
	return c.transform(ctx, "/clean-grammar", "text", text)
}

// Rephrase rewords the given text
func (c *Client) Rephrase(ctx context.Context, text string) (string, error) {
	return c.transform(ctx, "/rephrase", "text", text)
}

// Ask answers a free-form question
func (c *Client) Ask(ctx context.Context, question string) (string, error) {
	return c.transform(ctx, "/ask", "question", question)
}

// Formula builds a spreadsheet formula from a description
func (c *Client) Formula(ctx context.Context, description string) (string, error) {
	return c.transform(ctx, "/formula", "description", description)
}

// transform calls a named text-transform operation
func (c *Client) transform(ctx context.Context, path, field, value string) (string, error) {
	var resp struct {
		Result string `json:"result"`
	}
	if err := c.post(ctx, path, map[string]string{field: value}, &resp); err != nil {
		return "", err
	}
	return resp.Result, nil
}

// post sends a JSON request and decodes a JSON response
func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	logger := c.config.Logger.WithModule("completion")

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	logger.Debug("Calling completion service", telemetry.String("path", path), telemetry.Int("body_size", len(body)))

	resp, err := c.http.Do(req)
	if err != nil {
		logger.Error("Completion request failed", telemetry.Err(err), telemetry.String("path", path))
		return fmt.Errorf("completion request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Read a little of the body for diagnostics, then discard
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		logger.Error("Completion service returned error status",
			telemetry.Int("status", resp.StatusCode),
			telemetry.String("path", path),
			telemetry.String("body", string(snippet)))
		return fmt.Errorf("completion service returned status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
