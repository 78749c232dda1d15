package indexer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/docrag/internal/doctree"
	"github.com/dgallion1/docrag/internal/embedding"
	"github.com/dgallion1/docrag/internal/ragerr"
	"github.com/dgallion1/docrag/internal/vectorstore"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// scriptedEmbedder wraps a HashEmbedder with per-text failures.
type scriptedEmbedder struct {
	*embedding.HashEmbedder
	mu        sync.Mutex
	failures  map[string][]error
	calls     atomic.Int32
	dimByText map[string]int
}

func newScripted() *scriptedEmbedder {
	return &scriptedEmbedder{
		HashEmbedder: embedding.NewHashEmbedder(1024),
		failures:     map[string][]error{},
		dimByText:    map[string]int{},
	}
}

func (s *scriptedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	s.calls.Add(1)
	s.mu.Lock()
	if errs := s.failures[text]; len(errs) > 0 {
		s.failures[text] = errs[1:]
		s.mu.Unlock()
		return nil, errs[0]
	}
	dim := s.dimByText[text]
	s.mu.Unlock()
	if dim > 0 {
		return make([]float32, dim), nil
	}
	return s.HashEmbedder.Embed(ctx, text)
}

func chunks(texts ...string) []doctree.EnrichedChunk {
	out := make([]doctree.EnrichedChunk, len(texts))
	for i, t := range texts {
		out[i] = doctree.EnrichedChunk{
			Chunk:    doctree.Chunk{Index: i, Text: t},
			Metadata: doctree.Metadata{Filename: "doc.md", PageNumbers: []int{i + 1}},
		}
	}
	return out
}

func newIndexer(t *testing.T, emb embedding.Embedder, store vectorstore.Store, workers int) *Indexer {
	t.Helper()
	ix, err := New(testLogger(), emb, store, Config{Workers: workers, MaxRetries: 2})
	require.NoError(t, err)
	ix.backoff = func(int) time.Duration { return time.Millisecond }
	return ix
}

func TestIndex_PreservesChunkOrder(t *testing.T) {
	store := vectorstore.NewMemory()
	ix := newIndexer(t, newScripted(), store, 3)

	texts := []string{"alpha one", "beta two", "gamma three", "delta four", "epsilon five", "zeta six"}
	n, err := ix.Index(context.Background(), "doc", chunks(texts...))
	require.NoError(t, err)
	assert.Equal(t, len(texts), n)

	emb := embedding.NewHashEmbedder(1024)
	for i, text := range texts {
		q, _ := emb.Embed(context.Background(), text)
		res, err := store.Search(context.Background(), q, 1)
		require.NoError(t, err)
		require.Len(t, res, 1)
		assert.Equal(t, text, res[0].Text)
		assert.Equal(t, i, res[0].ChunkIndex)
		assert.Equal(t, RecordID("doc", i), res[0].ID)
		assert.Equal(t, []int{i + 1}, res[0].Metadata.PageNumbers)
	}
}

func TestIndex_ReindexOverwrites(t *testing.T) {
	store := vectorstore.NewMemory()
	ix := newIndexer(t, newScripted(), store, 2)
	ctx := context.Background()

	_, err := ix.Index(ctx, "doc", chunks("a", "b", "c"))
	require.NoError(t, err)
	_, err = ix.Index(ctx, "doc", chunks("a", "b", "c"))
	require.NoError(t, err)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestIndex_RetriesTransientFailures(t *testing.T) {
	emb := newScripted()
	emb.failures["flaky"] = []error{
		&embedding.RetryableError{StatusCode: 429, Message: "slow down"},
		&embedding.RetryableError{StatusCode: 503, Message: "busy"},
	}
	store := vectorstore.NewMemory()
	ix := newIndexer(t, emb, store, 1)

	n, err := ix.Index(context.Background(), "doc", chunks("steady", "flaky"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.EqualValues(t, 4, emb.calls.Load())
}

func TestIndex_FailsFastWithoutWriting(t *testing.T) {
	emb := newScripted()
	emb.failures["bad"] = []error{errors.New("invalid api key")}
	store := vectorstore.NewMemory()
	ix := newIndexer(t, emb, store, 1)

	texts := []string{"bad"}
	for i := 0; i < 20; i++ {
		texts = append(texts, strings.Repeat("x", i+1))
	}
	_, err := ix.Index(context.Background(), "doc", chunks(texts...))
	require.Error(t, err)
	assert.ErrorIs(t, err, ragerr.ErrEmbedding)
	assert.Contains(t, err.Error(), "invalid api key")
	assert.Less(t, int(emb.calls.Load()), len(texts), "remaining chunks are not embedded")

	count, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestIndex_RetriesExhausted(t *testing.T) {
	emb := newScripted()
	retryable := &embedding.RetryableError{StatusCode: 500, Message: "down"}
	emb.failures["x"] = []error{retryable, retryable, retryable, retryable}
	ix := newIndexer(t, emb, vectorstore.NewMemory(), 1)

	_, err := ix.Index(context.Background(), "doc", chunks("x"))
	assert.ErrorIs(t, err, ragerr.ErrEmbedding)
	assert.True(t, IsRetryable(err))
	assert.EqualValues(t, 3, emb.calls.Load())
}

func TestIndex_MixedDimensions(t *testing.T) {
	emb := newScripted()
	emb.dimByText["short"] = 4
	ix := newIndexer(t, emb, vectorstore.NewMemory(), 2)

	_, err := ix.Index(context.Background(), "doc", chunks("normal text", "short"))
	assert.ErrorIs(t, err, ragerr.ErrEmbeddingSpaceMismatch)
}

func TestIndex_StoreDimensionMismatch(t *testing.T) {
	store := vectorstore.NewMemory()
	require.NoError(t, store.ReplaceDocument(context.Background(), "other", []vectorstore.Record{
		{ID: "o", DocID: "other", Text: "o", Vector: []float32{1, 0, 0}},
	}))
	ix := newIndexer(t, newScripted(), store, 2)

	_, err := ix.Index(context.Background(), "doc", chunks("a"))
	assert.ErrorIs(t, err, ragerr.ErrEmbeddingSpaceMismatch)
}

func TestIndex_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	store := vectorstore.NewMemory()
	ix := newIndexer(t, newScripted(), store, 2)

	_, err := ix.Index(ctx, "doc", chunks("a", "b"))
	assert.ErrorIs(t, err, ragerr.ErrEmbedding)
	assert.ErrorIs(t, err, context.Canceled)

	count, _ := store.Count(context.Background())
	assert.Equal(t, 0, count)
}

func TestIndex_EmptyDocumentClearsRecords(t *testing.T) {
	store := vectorstore.NewMemory()
	ix := newIndexer(t, newScripted(), store, 2)
	ctx := context.Background()

	_, err := ix.Index(ctx, "doc", chunks("a"))
	require.NoError(t, err)
	n, err := ix.Index(ctx, "doc", nil)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	count, _ := store.Count(ctx)
	assert.Equal(t, 0, count)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(testLogger(), nil, vectorstore.NewMemory(), DefaultConfig())
	assert.ErrorIs(t, err, ragerr.ErrInvalidConfiguration)
	_, err = New(testLogger(), newScripted(), vectorstore.NewMemory(), Config{Workers: 0})
	assert.ErrorIs(t, err, ragerr.ErrInvalidConfiguration)
}

func TestRecordID_Deterministic(t *testing.T) {
	assert.Equal(t, RecordID("doc", 1), RecordID("doc", 1))
	assert.NotEqual(t, RecordID("doc", 1), RecordID("doc", 2))
	assert.NotEqual(t, RecordID("doc", 1), RecordID("doc2", 1))
}

func TestBackoff_Bounds(t *testing.T) {
	for attempt := 0; attempt < 8; attempt++ {
		d := Backoff(attempt)
		base := time.Duration(1<<uint(attempt)) * time.Second
		if base > 30*time.Second {
			base = 30 * time.Second
		}
		assert.GreaterOrEqual(t, d, base)
		assert.Less(t, d, base+base/2)
	}
}
