package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgallion1/docrag/internal/chunker"
	"github.com/dgallion1/docrag/internal/config"
	"github.com/dgallion1/docrag/internal/embedding"
	"github.com/dgallion1/docrag/internal/generate"
	"github.com/dgallion1/docrag/internal/indexer"
	"github.com/dgallion1/docrag/internal/parser"
	"github.com/dgallion1/docrag/internal/ragerr"
	"github.com/dgallion1/docrag/internal/retriever"
	"github.com/dgallion1/docrag/internal/stats"
	"github.com/dgallion1/docrag/internal/tokenizer"
	"github.com/dgallion1/docrag/internal/vectorstore"
)

const statsWindow = 1 * time.Hour

// Components is the wired ingestion and query stack shared by the server and the CLI.
type Components struct {
	Store     vectorstore.Store
	Embedder  embedding.Embedder
	Generator *generate.Generator
	Ingester  *Ingester
	Session   *Session

	EmbedStats *stats.Latency
	GenStats   *stats.Latency
}

// Build wires every component from cfg. The caller must Close the result.
func Build(ctx context.Context, cfg config.Config, log *slog.Logger) (*Components, error) {
	c := &Components{
		EmbedStats: stats.NewLatency(statsWindow),
		GenStats:   stats.NewLatency(statsWindow),
	}

	tok, err := selectTokenizer(cfg, log)
	if err != nil {
		return nil, err
	}
	ch, err := chunker.New(tok, chunker.Config{MaxTokens: cfg.MaxTokens, MergePeers: cfg.MergePeers})
	if err != nil {
		return nil, err
	}

	c.Embedder = newEmbedder(cfg, c.EmbedStats)

	c.Store, err = newStore(ctx, cfg, c.Embedder, log)
	if err != nil {
		return nil, err
	}

	ix, err := indexer.New(log, c.Embedder, c.Store, indexer.Config{
		Workers:    cfg.EmbeddingWorkers,
		MaxRetries: cfg.EmbeddingMaxRetries,
	})
	if err != nil {
		c.Close()
		return nil, err
	}

	c.Ingester = NewIngester(log, ch, ix, parser.NewFetcher(cfg.MaxUploadBytes), parser.Options{
		PDFFallbackPdftotext: cfg.PDFFallbackPdftotext,
	})
	c.Ingester.Timeout = cfg.IngestTimeout

	svc, err := newGenerationService(cfg, c.GenStats)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Generator = generate.NewGenerator(svc)
	c.Generator.Temperature = cfg.GenerationTemperature
	c.Generator.MaxTokens = cfg.GenerationMaxTokens
	c.Generator.Timeout = cfg.GenerationTimeout

	r := retriever.New(c.Embedder, c.Store)
	r.MinScore = cfg.MinScore
	c.Session = NewSession(log, r, c.Generator)
	if cfg.TopK > 0 {
		c.Session.DefaultK = cfg.TopK
	}
	c.Session.ContextBudget = cfg.ContextTokenBudget
	c.Session.Tokenizer = tok

	log.Info("components ready",
		"store", cfg.VectorStore,
		"embedding_model", c.Embedder.Model(),
		"generation_model", c.Generator.Model(),
		"tokenizer", tok.Model(),
		"max_tokens", cfg.MaxTokens,
	)
	return c, nil
}

// Close releases the vector store and any provider connections.
func (c *Components) Close() error {
	var errs []error
	if c.Store != nil {
		errs = append(errs, c.Store.Close())
	}
	if cl, ok := c.Embedder.(interface{ Close() }); ok {
		cl.Close()
	}
	return errors.Join(errs...)
}

// selectTokenizer loads the configured BPE tokenizer, falling back to the word estimate
// only when TOKENIZER_FALLBACK allows it.
func selectTokenizer(cfg config.Config, log *slog.Logger) (tokenizer.Tokenizer, error) {
	tok, err := tokenizer.Select(cfg.Tokenizer)
	if err == nil {
		return tok, nil
	}
	if !cfg.TokenizerFallback {
		return nil, ragerr.InvalidConfiguration("build", "tokenizer %q: %v", cfg.Tokenizer, err)
	}
	log.Warn("tokenizer unavailable, using word estimate; chunk budgets are approximate",
		"requested", cfg.Tokenizer, "error", err)
	return tokenizer.Estimator{}, nil
}

func newEmbedder(cfg config.Config, st *stats.Latency) embedding.Embedder {
	if cfg.EmbeddingProvider == config.ProviderHash {
		dim := cfg.EmbeddingDimensions
		if dim <= 0 {
			dim = embedding.DefaultHashDimension
		}
		return embedding.NewHashEmbedder(dim)
	}
	return embedding.NewOpenAIClient(embedding.OpenAIConfig{
		BaseURL:           cfg.EmbeddingBaseURL,
		APIKey:            cfg.EmbeddingAPIKey,
		Model:             cfg.EmbeddingModel,
		Dimensions:        cfg.EmbeddingDimensions,
		Timeout:           cfg.EmbeddingTimeout,
		RequestsPerSecond: cfg.EmbeddingRPS,
		Stats:             st,
	})
}

func newStore(ctx context.Context, cfg config.Config, emb embedding.Embedder, log *slog.Logger) (vectorstore.Store, error) {
	switch cfg.VectorStore {
	case config.StoreMemory:
		return vectorstore.NewMemory(), nil
	case config.StoreSQLite:
		s, err := vectorstore.NewSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return s, nil
	case config.StoreQdrant:
		dim := emb.Dimension()
		if dim == 0 {
			dim = embedding.KnownDimension(emb.Model())
		}
		return vectorstore.NewQdrant(ctx, log, vectorstore.QdrantConfig{
			URL:        cfg.QdrantURL,
			APIKey:     cfg.QdrantAPIKey,
			Collection: cfg.QdrantCollection,
			VectorDim:  dim,
		})
	default:
		return nil, ragerr.InvalidConfiguration("build", "unknown vector store %q", cfg.VectorStore)
	}
}

func newGenerationService(cfg config.Config, st *stats.Latency) (generate.Service, error) {
	switch cfg.GenerationProvider {
	case config.ProviderOpenAI:
		return generate.NewOpenAIClient(generate.OpenAIConfig{
			BaseURL: cfg.GenerationBaseURL,
			APIKey:  cfg.GenerationAPIKey,
			Model:   cfg.GenerationModel,
			Stats:   st,
		}), nil
	case config.ProviderAnthropic:
		return generate.NewClaudeClient(generate.AnthropicConfig{
			BaseURL: cfg.GenerationBaseURL,
			APIKey:  cfg.GenerationAPIKey,
			Model:   cfg.GenerationModel,
			Stats:   st,
		}), nil
	default:
		return nil, ragerr.InvalidConfiguration("build", "unknown generation provider %q", cfg.GenerationProvider)
	}
}
