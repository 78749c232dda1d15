package generate

import (
	"context"
	"time"

	"github.com/dgallion1/docrag/internal/ragerr"
)

// SystemPrompt instructs the model to answer from the supplied context only.
const SystemPrompt = "You are a helpful assistant that answers questions based on the provided context. " +
	"Use only the information from the context to answer questions. " +
	"If you're unsure or the context doesn't contain the relevant information, say so."

const DefaultTemperature = 0.3

// SystemMessage builds the system instruction carrying context.
func SystemMessage(contextText string) string {
	return SystemPrompt + "\n\nContext:\n" + contextText
}

// Generator answers the latest user turn of a conversation from retrieved context.
type Generator struct {
	svc         Service
	Temperature float64
	MaxTokens   int
	// Timeout bounds one Respond call; 0 means no limit beyond ctx.
	Timeout time.Duration
}

func NewGenerator(svc Service) *Generator {
	return &Generator{svc: svc, Temperature: DefaultTemperature}
}

// Model names the underlying chat model.
func (g *Generator) Model() string { return g.svc.Model() }

// Respond streams the answer to messages grounded on context. Fragments reach onDelta as they
// arrive. Every failure is a GenerationError; nothing is retried.
func (g *Generator) Respond(ctx context.Context, messages []Message, contextText string, onDelta func(string) error) (string, error) {
	if g.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.Timeout)
		defer cancel()
	}
	if onDelta == nil {
		onDelta = func(string) error { return nil }
	}
	answer, err := g.svc.Stream(ctx, messages, Options{
		System:      SystemMessage(contextText),
		Temperature: g.Temperature,
		MaxTokens:   g.MaxTokens,
	}, onDelta)
	if err != nil {
		return "", ragerr.Generation("respond", err)
	}
	return answer, nil
}
