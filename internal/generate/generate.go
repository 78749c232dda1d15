// Package generate produces grounded answers by streaming from a chat model.
package generate

import (
	"context"
	"fmt"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one conversation turn.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Options tune one generation call.
type Options struct {
	System      string
	Temperature float64
	MaxTokens   int
}

// Service is a streaming chat model. Stream delivers fragments to onDelta in arrival order
// and returns the full text. An onDelta error stops consumption and is returned.
type Service interface {
	Stream(ctx context.Context, messages []Message, opts Options, onDelta func(string) error) (string, error)
	Model() string
}

// StatusError is a non-2xx response from a generation provider.
type StatusError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s api status %d: %s", e.Provider, e.StatusCode, truncate(e.Body, 300))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
