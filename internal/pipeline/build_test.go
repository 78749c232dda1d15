package pipeline

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/docrag/internal/config"
	"github.com/dgallion1/docrag/internal/ragerr"
	"github.com/dgallion1/docrag/internal/tokenizer"
)

func TestSelectTokenizer_FallbackWarns(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))

	tok, err := selectTokenizer(config.Config{Tokenizer: "no_such_model", TokenizerFallback: true}, log)
	require.NoError(t, err)
	assert.Equal(t, tokenizer.Estimator{}, tok)

	out := buf.String()
	assert.Contains(t, out, "level=WARN")
	assert.Contains(t, out, "requested=no_such_model")
	assert.Contains(t, out, "error=")
}

func TestSelectTokenizer_NoFallbackIsInvalidConfiguration(t *testing.T) {
	_, err := selectTokenizer(config.Config{Tokenizer: "no_such_model"}, testLogger())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ragerr.ErrInvalidConfiguration))
}

func TestSelectTokenizer_KnownNameDoesNotWarn(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))

	tok, err := selectTokenizer(config.Config{Tokenizer: "estimate", TokenizerFallback: true}, log)
	require.NoError(t, err)
	assert.Equal(t, "estimate", tok.Model())
	assert.Empty(t, buf.String())
}

func TestBuild_MemoryStackWithFallbackTokenizer(t *testing.T) {
	cfg := config.Config{
		EmbeddingProvider:   config.ProviderHash,
		EmbeddingDimensions: 64,
		EmbeddingWorkers:    1,
		GenerationProvider:  config.ProviderOpenAI,
		GenerationModel:     "gpt-4o-mini",
		Tokenizer:           "no_such_model",
		TokenizerFallback:   true,
		MaxTokens:           100,
		TopK:                3,
		VectorStore:         config.StoreMemory,
	}
	comps, err := Build(context.Background(), cfg, testLogger())
	require.NoError(t, err)
	defer comps.Close()

	assert.Equal(t, 3, comps.Session.DefaultK)
	assert.Equal(t, "estimate", comps.Session.Tokenizer.Model())
}
