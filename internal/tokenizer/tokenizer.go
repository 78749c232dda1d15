// Package tokenizer counts tokens for sizing decisions. Counts are never used for generation.
package tokenizer

import (
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

// DefaultEncoding is the BPE vocabulary of the OpenAI embedding and chat models used for chunk sizing.
const DefaultEncoding = "cl100k_base"

func init() {
	// BPE ranks ship inside the binary; no download at startup.
	tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
}

// Tokenizer maps text to a token count for one model's vocabulary.
type Tokenizer interface {
	CountTokens(text string) int
	Model() string
}

// Tiktoken counts tokens with a BPE encoding.
type Tiktoken struct {
	name string
	enc  *tiktoken.Tiktoken
}

// ForEncoding binds to a named BPE encoding such as "cl100k_base".
func ForEncoding(encoding string) (*Tiktoken, error) {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("load encoding %s: %w", encoding, err)
	}
	return &Tiktoken{name: encoding, enc: enc}, nil
}

// ForModel binds to the encoding a model uses, e.g. "gpt-4" or "text-embedding-3-small".
func ForModel(model string) (*Tiktoken, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		return nil, fmt.Errorf("encoding for model %s: %w", model, err)
	}
	return &Tiktoken{name: model, enc: enc}, nil
}

func (t *Tiktoken) CountTokens(text string) int {
	if text == "" {
		return 0
	}
	// Special-token markers in document text count as ordinary tokens.
	return len(t.enc.Encode(text, []string{"all"}, nil))
}

func (t *Tiktoken) Model() string { return t.name }

// Estimator approximates token counts from word counts.
type Estimator struct{}

func (Estimator) CountTokens(text string) int { return EstimateTokens(text) }

func (Estimator) Model() string { return "estimate" }

// EstimateTokens gives a rough token count, about 1.33 tokens per English word.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	words := len(strings.Fields(text))
	tokens := int(float64(words) * 1.33)
	if tokens < 1 {
		tokens = 1
	}
	return tokens
}

// Select resolves name as an encoding, then as a model name. "estimate" picks the Estimator.
func Select(name string) (Tokenizer, error) {
	if name == "" {
		name = DefaultEncoding
	}
	if name == "estimate" {
		return Estimator{}, nil
	}
	if t, err := ForEncoding(name); err == nil {
		return t, nil
	}
	t, err := ForModel(name)
	if err != nil {
		return nil, err
	}
	return t, nil
}
