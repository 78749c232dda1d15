// Package embedding maps text to dense vectors.
package embedding

import (
	"context"
	"fmt"
)

// Embedder produces vectors in one embedding space.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	// Dimension is the vector length, or 0 until the first vector is produced.
	Dimension() int
	Model() string
}

// RetryableError indicates a transient failure that can be retried.
type RetryableError struct {
	StatusCode int
	Message    string
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("retryable error (status %d): %s", e.StatusCode, truncate(e.Message, 200))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

var knownDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// KnownDimension returns the default output size of a hosted OpenAI embedding model, or 0.
func KnownDimension(model string) int {
	return knownDimensions[model]
}
