// Package grounding answers queries from the live web through a
// chat-completions style answer API.
//
// The call is single-shot and stateless. Callers treat failures as
// [ErrService] and degrade gracefully rather than retrying forever.
package grounding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// ErrService indicates the web answer service failed or returned an
// unusable response.
var ErrService = errors.New("grounding service error")

// DefaultModel is the web-search answer model requested by default.
const DefaultModel = "sonar"

// Result is a web-grounded answer with its source URLs in citation order.
type Result struct {
	Answer  string
	Sources []string
}

// Client calls the web answer API.
// Safe for concurrent use.
type Client struct {
	baseURL    string
	model      string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client (tests use httptest).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithModel overrides the answer model.
func WithModel(model string) Option {
	return func(c *Client) {
		if model != "" {
			c.model = model
		}
	}
}

// New creates a grounding client.
//
// Parameters:
//   - baseURL: API base, e.g. "https://api.perplexity.ai"
//   - apiKey: bearer token for the answer service
//   - logger: logger for debugging (nil = slog.Default())
func New(baseURL, apiKey string, logger *slog.Logger, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("grounding base URL is required")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("grounding API key is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{
		baseURL:    baseURL,
		model:      DefaultModel,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// chatRequest is the chat-completions request body.
type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatResponse is the subset of the chat-completions response we read.
type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Citations []string `json:"citations"`
}

// Search asks the web answer service a single question and returns the
// answer text with its sources.
func (c *Client) Search(ctx context.Context, query string) (*Result, error) {
	if query == "" {
		return nil, fmt.Errorf("%w: empty query", ErrService)
	}

	reqBody := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "user", Content: query},
		},
	}

	var resp chatResponse
	if err := c.makeRequest(ctx, c.baseURL+"/chat/completions", reqBody, &resp); err != nil {
		return nil, err
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return nil, fmt.Errorf("%w: empty answer", ErrService)
	}

	c.logger.Debug("grounding answer received",
		"sources", len(resp.Citations))
	return &Result{
		Answer:  resp.Choices[0].Message.Content,
		Sources: resp.Citations,
	}, nil
}

// makeRequest posts a JSON body and decodes the JSON response.
func (c *Client) makeRequest(ctx context.Context, url string, body, result any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrService, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read response: %v", ErrService, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: status %d: %s", ErrService, resp.StatusCode, truncate(respBody, 200))
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("%w: unmarshal response: %v", ErrService, err)
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
