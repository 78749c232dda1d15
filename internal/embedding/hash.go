package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// DefaultHashDimension is the vector length of a HashEmbedder built with dim 0.
const DefaultHashDimension = 512

// HashEmbedder is a deterministic bag-of-words embedder. Each lowercase term is hashed into a
// bucket and the counts are L2-normalized, so texts sharing vocabulary score high under cosine
// similarity. It needs no network and is used offline and in tests.
type HashEmbedder struct {
	dim int
}

func NewHashEmbedder(dim int) *HashEmbedder {
	if dim <= 0 {
		dim = DefaultHashDimension
	}
	return &HashEmbedder{dim: dim}
}

func (h *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vec := make([]float32, h.dim)
	for _, term := range Terms(text) {
		f := fnv.New32a()
		f.Write([]byte(term))
		vec[f.Sum32()%uint32(h.dim)]++
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec, nil
	}
	inv := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= inv
	}
	return vec, nil
}

func (h *HashEmbedder) Dimension() int { return h.dim }

func (h *HashEmbedder) Model() string { return "hash" }

// Terms splits text into lowercase runs of letters and digits.
func Terms(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
