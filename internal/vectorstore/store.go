// Package vectorstore persists embedded chunks and answers nearest-neighbor queries by
// cosine similarity.
package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/dgallion1/docrag/internal/doctree"
	"github.com/dgallion1/docrag/internal/ragerr"
)

// Record is one embedded chunk.
type Record struct {
	ID         string           `json:"id"`
	DocID      string           `json:"doc_id"`
	ChunkIndex int              `json:"chunk_index"`
	Text       string           `json:"text"`
	Vector     []float32        `json:"-"`
	Metadata   doctree.Metadata `json:"metadata"`
}

// Result is a record matched by a query. Rank is 1-based and assigned by the retriever.
type Result struct {
	Record
	Score float64 `json:"score"`
	Rank  int     `json:"rank"`
}

// DocumentInfo summarizes the records stored for one document.
type DocumentInfo struct {
	DocID    string `json:"doc_id"`
	Filename string `json:"filename,omitempty"`
	Chunks   int    `json:"chunks"`
}

// Store is a vector index. Implementations are safe for concurrent use.
type Store interface {
	// Upsert inserts records, replacing any with the same ID.
	Upsert(ctx context.Context, records []Record) error
	// ReplaceDocument drops every record of docID and writes records in its place.
	// Readers never observe the document without records.
	ReplaceDocument(ctx context.Context, docID string, records []Record) error
	DeleteDocument(ctx context.Context, docID string) (int, error)
	// Search returns up to k records by descending cosine similarity, ties in insertion order.
	Search(ctx context.Context, vector []float32, k int) ([]Result, error)
	Count(ctx context.Context) (int, error)
	Documents(ctx context.Context) ([]DocumentInfo, error)
	// Dimension is the vector length of stored records, or 0 when none fixes it yet.
	Dimension() int
	Close() error
}

// Cosine returns the cosine similarity of a and b, or 0 if either is a zero vector.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// batchDimension checks that every record shares one vector length matching want
// (0 accepts any) and returns that length.
func batchDimension(op string, want int, records []Record) (int, error) {
	dim := want
	for _, r := range records {
		if len(r.Vector) == 0 {
			return 0, ragerr.Embedding(op, fmt.Errorf("record %q has an empty vector", r.ID))
		}
		if dim == 0 {
			dim = len(r.Vector)
		}
		if len(r.Vector) != dim {
			return 0, ragerr.SpaceMismatch(op, dim, len(r.Vector))
		}
	}
	return dim, nil
}

type scored struct {
	res Result
	seq int64
}

// topK orders candidates by descending score, then ascending seq, and keeps k.
func topK(cands []scored, k int) []Result {
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].res.Score == cands[j].res.Score {
			return cands[i].seq < cands[j].seq
		}
		return cands[i].res.Score > cands[j].res.Score
	})
	if k > 0 && len(cands) > k {
		cands = cands[:k]
	}
	out := make([]Result, len(cands))
	for i, c := range cands {
		out[i] = c.res
	}
	return out
}
