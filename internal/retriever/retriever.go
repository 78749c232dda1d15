// Package retriever finds the stored chunks most similar to a question.
package retriever

import (
	"context"
	"fmt"

	"github.com/dgallion1/docrag/internal/embedding"
	"github.com/dgallion1/docrag/internal/ragerr"
	"github.com/dgallion1/docrag/internal/vectorstore"
)

// DefaultK is the number of results returned when k is not positive.
const DefaultK = 5

// Retriever embeds queries with the same embedder used at indexing time.
type Retriever struct {
	emb   embedding.Embedder
	store vectorstore.Store
	// MinScore drops results scoring below it; 0 keeps everything.
	MinScore float64
}

func New(emb embedding.Embedder, store vectorstore.Store) *Retriever {
	return &Retriever{emb: emb, store: store}
}

// Search returns up to k results ranked 1..n by descending similarity.
func (r *Retriever) Search(ctx context.Context, query string, k int) ([]vectorstore.Result, error) {
	if k <= 0 {
		k = DefaultK
	}
	vec, err := r.emb.Embed(ctx, query)
	if err != nil {
		return nil, ragerr.Embedding("embed query", err)
	}
	if dim := r.store.Dimension(); dim > 0 && len(vec) != dim {
		return nil, ragerr.SpaceMismatch("search", dim, len(vec))
	}

	results, err := r.store.Search(ctx, vec, k)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	out := results[:0]
	for _, res := range results {
		if r.MinScore > 0 && res.Score < r.MinScore {
			continue
		}
		out = append(out, res)
	}
	for i := range out {
		out[i].Rank = i + 1
	}
	return out, nil
}
