// Package indexer embeds enriched chunks and writes them to a vector store.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dgallion1/docrag/internal/doctree"
	"github.com/dgallion1/docrag/internal/embedding"
	"github.com/dgallion1/docrag/internal/ragerr"
	"github.com/dgallion1/docrag/internal/vectorstore"
)

// recordNamespace seeds the deterministic record ids.
var recordNamespace = uuid.MustParse("4b7d0f64-3c56-4d1e-9a0b-6a8f2f9c1e27")

// Config controls the embedding worker pool.
type Config struct {
	Workers    int
	MaxRetries int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{Workers: 4, MaxRetries: MaxRetries}
}

// Indexer turns chunks into records. It is safe for concurrent use across documents.
type Indexer struct {
	log     *slog.Logger
	emb     embedding.Embedder
	store   vectorstore.Store
	cfg     Config
	backoff func(attempt int) time.Duration
}

func New(log *slog.Logger, emb embedding.Embedder, store vectorstore.Store, cfg Config) (*Indexer, error) {
	if emb == nil || store == nil {
		return nil, ragerr.InvalidConfiguration("indexer config", "embedder and store are required")
	}
	if cfg.Workers <= 0 {
		return nil, ragerr.InvalidConfiguration("indexer config", "workers must be positive, got %d", cfg.Workers)
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &Indexer{
		log:     log,
		emb:     emb,
		store:   store,
		cfg:     cfg,
		backoff: Backoff,
	}, nil
}

// RecordID is the deterministic id of chunk index of docID.
func RecordID(docID string, index int) string {
	return uuid.NewSHA1(recordNamespace, []byte(docID+"|"+strconv.Itoa(index))).String()
}

// Index embeds every chunk and replaces docID's records with the result. Any embedding
// failure cancels the remaining work and nothing is written.
func (ix *Indexer) Index(ctx context.Context, docID string, chunks []doctree.EnrichedChunk) (int, error) {
	vectors := make([][]float32, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.cfg.Workers)
	for i := range chunks {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			vec, err := ix.embed(gctx, chunks[i].Text)
			if err != nil {
				return ragerr.Embedding(fmt.Sprintf("embed chunk %d of %s", i, docID), err)
			}
			vectors[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, ragerr.Embedding("index "+docID, err)
	}

	records := make([]vectorstore.Record, len(chunks))
	for i, c := range chunks {
		if len(vectors[i]) != len(vectors[0]) {
			return 0, ragerr.SpaceMismatch(fmt.Sprintf("embed chunk %d of %s", i, docID), len(vectors[0]), len(vectors[i]))
		}
		records[i] = vectorstore.Record{
			ID:         RecordID(docID, i),
			DocID:      docID,
			ChunkIndex: c.Index,
			Text:       c.Text,
			Vector:     vectors[i],
			Metadata:   c.Metadata,
		}
	}

	if err := ix.store.ReplaceDocument(ctx, docID, records); err != nil {
		return 0, fmt.Errorf("store document %s: %w", docID, err)
	}
	ix.log.Debug("document indexed", "doc_id", docID, "records", len(records))
	return len(records), nil
}

func (ix *Indexer) embed(ctx context.Context, text string) ([]float32, error) {
	var lastErr error
	for attempt := 0; attempt <= ix.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			d := ix.backoff(attempt - 1)
			ix.log.Warn("retrying embedding", "attempt", attempt, "backoff", d, "error", lastErr)
			if err := sleep(ctx, d); err != nil {
				return nil, err
			}
		}
		vec, err := ix.emb.Embed(ctx, text)
		if err == nil {
			if len(vec) == 0 {
				return nil, fmt.Errorf("empty vector")
			}
			return vec, nil
		}
		lastErr = err
		if !IsRetryable(err) {
			break
		}
	}
	return nil, lastErr
}
