package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dgallion1/docrag/internal/stats"
)

const (
	DefaultAnthropicBaseURL = "https://api.anthropic.com"
	defaultAnthropicTokens  = 1024
)

// AnthropicConfig configures a Messages API client.
type AnthropicConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Stats   *stats.Latency
}

// ClaudeClient streams from the Anthropic Messages API.
type ClaudeClient struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	stats      *stats.Latency
}

func NewClaudeClient(cfg AnthropicConfig) *ClaudeClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultAnthropicBaseURL
	}
	return &ClaudeClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		httpClient: &http.Client{},
		stats:      cfg.Stats,
	}
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	Temperature float64            `json:"temperature"`
	Stream      bool               `json:"stream"`
}

type anthropicEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *ClaudeClient) Model() string { return c.model }

func (c *ClaudeClient) Stream(ctx context.Context, messages []Message, opts Options, onDelta func(string) error) (answer string, err error) {
	start := time.Now()
	defer func() { c.stats.Observe(start, err) }()

	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicTokens
	}
	msgs := make([]anthropicMessage, 0, len(messages))
	for _, m := range messages {
		msgs = append(msgs, anthropicMessage{Role: string(m.Role), Content: m.Content})
	}
	body, err := json.Marshal(anthropicRequest{
		Model:       c.model,
		MaxTokens:   maxTokens,
		System:      opts.System,
		Messages:    msgs,
		Temperature: opts.Temperature,
		Stream:      true,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("claude api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return "", &StatusError{Provider: "claude", StatusCode: resp.StatusCode, Body: string(raw)}
	}

	var (
		full     strings.Builder
		finished bool
	)
	err = streamSSE(resp.Body, func(_ string, data string) error {
		var ev anthropicEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			return fmt.Errorf("decode stream event: %w", err)
		}
		switch ev.Type {
		case "content_block_delta":
			if ev.Delta.Text == "" {
				return nil
			}
			full.WriteString(ev.Delta.Text)
			return onDelta(ev.Delta.Text)
		case "message_stop":
			finished = true
		case "error":
			if ev.Error != nil {
				return fmt.Errorf("claude stream error: %s: %s", ev.Error.Type, ev.Error.Message)
			}
			return fmt.Errorf("claude stream error")
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if !finished {
		return "", fmt.Errorf("claude stream ended before completion")
	}
	return full.String(), nil
}

// Close releases resources.
func (c *ClaudeClient) Close() {
	c.httpClient.CloseIdleConnections()
}
