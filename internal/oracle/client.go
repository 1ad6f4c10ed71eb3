package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Provider selects the chat API dialect
type Provider string

const (
	ProviderClaude   Provider = "claude"
	ProviderOpenAI   Provider = "openai"
	ProviderDeepSeek Provider = "deepseek"
)

// ClientConfig holds chat client settings
type ClientConfig struct {
	Provider    Provider
	BaseURL     string // Overrides the provider's default endpoint when set
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

// Client calls a chat-completion API and returns the raw text reply
type Client struct {
	config     ClientConfig
	httpClient *http.Client
}

// NewClient creates a chat client
func NewClient(config ClientConfig) *Client {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
	}
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Chat sends a system+user prompt and returns the model's text reply
func (c *Client) Chat(ctx context.Context, system, user string) (string, error) {
	switch c.config.Provider {
	case ProviderClaude:
		return c.chatClaude(ctx, system, user)
	case ProviderOpenAI, ProviderDeepSeek:
		return c.chatOpenAI(ctx, system, user)
	default:
		return "", fmt.Errorf("oracle: unknown provider %q", c.config.Provider)
	}
}

func (c *Client) chatClaude(ctx context.Context, system, user string) (string, error) {
	reqBody := struct {
		Model       string    `json:"model"`
		MaxTokens   int       `json:"max_tokens"`
		Temperature float64   `json:"temperature,omitempty"`
		System      string    `json:"system,omitempty"`
		Messages    []message `json:"messages"`
	}{
		Model:       c.config.Model,
		MaxTokens:   c.config.MaxTokens,
		Temperature: c.config.Temperature,
		System:      system,
		Messages:    []message{{Role: "user", Content: user}},
	}

	base := "https://api.anthropic.com"
	if c.config.BaseURL != "" {
		base = c.config.BaseURL
	}
	headers := map[string]string{
		"x-api-key":         c.config.APIKey,
		"anthropic-version": "2023-06-01",
	}
	body, err := c.post(ctx, base+"/v1/messages", reqBody, headers)
	if err != nil {
		return "", err
	}

	var resp struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("oracle: parse response: %w", err)
	}
	if resp.Error != nil {
		return "", fmt.Errorf("oracle: API error: %s", resp.Error.Message)
	}
	for _, block := range resp.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", fmt.Errorf("oracle: empty response")
}

func (c *Client) chatOpenAI(ctx context.Context, system, user string) (string, error) {
	base := "https://api.openai.com"
	if c.config.Provider == ProviderDeepSeek {
		base = "https://api.deepseek.com"
	}
	if c.config.BaseURL != "" {
		base = c.config.BaseURL
	}
	endpoint := base + "/v1/chat/completions"

	reqBody := struct {
		Model       string    `json:"model"`
		MaxTokens   int       `json:"max_tokens,omitempty"`
		Temperature float64   `json:"temperature,omitempty"`
		Messages    []message `json:"messages"`
	}{
		Model:       c.config.Model,
		MaxTokens:   c.config.MaxTokens,
		Temperature: c.config.Temperature,
		Messages: []message{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	}

	headers := map[string]string{"Authorization": "Bearer " + c.config.APIKey}
	body, err := c.post(ctx, endpoint, reqBody, headers)
	if err != nil {
		return "", err
	}

	var resp struct {
		Choices []struct {
			Message message `json:"message"`
		} `json:"choices"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("oracle: parse response: %w", err)
	}
	if resp.Error != nil {
		return "", fmt.Errorf("oracle: API error: %s", resp.Error.Message)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("oracle: empty response")
	}
	return resp.Choices[0].Message.Content, nil
}

func (c *Client) post(ctx context.Context, endpoint string, reqBody interface{}, headers map[string]string) ([]byte, error) {
	data, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("oracle: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("oracle: request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("oracle: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("oracle: API status %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}
