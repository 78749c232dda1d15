package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/docrag/internal/ragerr"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func jsonResponse(t *testing.T, status int, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	return &http.Response{
		StatusCode: status,
		Header:     make(http.Header),
		Body:       io.NopCloser(bytes.NewReader(raw)),
	}
}

func okEnvelope(t *testing.T, result any) *http.Response {
	return jsonResponse(t, http.StatusOK, map[string]any{"result": result, "status": "ok", "time": 0.001})
}

func newTestQdrant(t *testing.T, dim int, rt func(*http.Request) (*http.Response, error)) *Qdrant {
	t.Helper()
	return &Qdrant{
		log:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		baseURL:    "http://qdrant.local",
		collection: "docs",
		http:       &http.Client{Transport: roundTripFunc(rt)},
		dim:        dim,
	}
}

func decodeBody(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.NewDecoder(r.Body).Decode(&m))
	return m
}

func TestQdrant_ReplaceDocumentUpsertsThenDeletesStale(t *testing.T) {
	type call struct {
		method, path string
		body         map[string]any
	}
	var calls []call
	q := newTestQdrant(t, 2, func(r *http.Request) (*http.Response, error) {
		calls = append(calls, call{r.Method, r.URL.Path, decodeBody(t, r)})
		return okEnvelope(t, map[string]any{"status": "acknowledged"}), nil
	})

	records := []Record{rec("ignored", 0, "hello", 1, 0)}
	records[0].ID = "6f1c3f9e-1b9e-5b7a-9b1e-2d6c7a0b8e11"
	require.NoError(t, q.ReplaceDocument(context.Background(), "doc-1", records))
	assert.Equal(t, "ignored", records[0].DocID, "caller's records are not modified")

	require.Len(t, calls, 2)
	assert.Equal(t, http.MethodPut, calls[0].method)
	assert.Equal(t, "/collections/docs/points", calls[0].path)
	points := calls[0].body["points"].([]any)
	require.Len(t, points, 1)
	payload := points[0].(map[string]any)["payload"].(map[string]any)
	assert.Equal(t, "doc-1", payload["doc_id"])
	assert.Equal(t, "hello", payload["text"])
	gen := payload["generation"].(string)
	require.NotEmpty(t, gen)

	assert.Equal(t, http.MethodPost, calls[1].method)
	assert.Equal(t, "/collections/docs/points/delete", calls[1].path)
	filter := calls[1].body["filter"].(map[string]any)
	mustNot := filter["must_not"].([]any)[0].(map[string]any)
	assert.Equal(t, "generation", mustNot["key"])
	assert.Equal(t, gen, mustNot["match"].(map[string]any)["value"])
}

func TestQdrant_ReplaceFailureSkipsDelete(t *testing.T) {
	calls := 0
	q := newTestQdrant(t, 2, func(r *http.Request) (*http.Response, error) {
		calls++
		return jsonResponse(t, http.StatusInternalServerError, map[string]any{"status": map[string]any{"error": "disk full"}}), nil
	})
	err := q.ReplaceDocument(context.Background(), "doc-1", []Record{rec("doc-1", 0, "x", 1, 0)})
	var qe *QdrantError
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, http.StatusInternalServerError, qe.StatusCode)
	assert.Equal(t, 1, calls, "stale points must not be deleted when the upsert failed")
}

func TestQdrant_SearchDecodesPayloadAndOrders(t *testing.T) {
	q := newTestQdrant(t, 2, func(r *http.Request) (*http.Response, error) {
		assert.Equal(t, "/collections/docs/points/search", r.URL.Path)
		body := decodeBody(t, r)
		assert.EqualValues(t, 3, body["limit"])
		return okEnvelope(t, []map[string]any{
			{"id": "b", "score": 0.5, "payload": map[string]any{"doc_id": "d", "text": "later", "seq": 9}},
			{"id": "a", "score": 0.5, "payload": map[string]any{"doc_id": "d", "text": "earlier", "seq": 2, "page_numbers": []int{3}, "filename": "f.pdf"}},
			{"id": "c", "score": 0.9, "payload": map[string]any{"doc_id": "d", "text": "best", "seq": 5}},
		}), nil
	})

	res, err := q.Search(context.Background(), []float32{1, 0}, 3)
	require.NoError(t, err)
	require.Len(t, res, 3)
	assert.Equal(t, []string{"best", "earlier", "later"}, []string{res[0].Text, res[1].Text, res[2].Text})
	assert.Equal(t, "a", res[1].ID)
	assert.Equal(t, []int{3}, res[1].Metadata.PageNumbers)
	assert.Equal(t, []int{}, res[0].Metadata.PageNumbers)
}

func TestQdrant_SearchDimensionMismatch(t *testing.T) {
	q := newTestQdrant(t, 3, func(r *http.Request) (*http.Response, error) {
		t.Fatal("no request expected")
		return nil, nil
	})
	_, err := q.Search(context.Background(), []float32{1, 0}, 1)
	assert.ErrorIs(t, err, ragerr.ErrEmbeddingSpaceMismatch)
}

func TestQdrant_DocumentsScrollsPages(t *testing.T) {
	page := 0
	q := newTestQdrant(t, 2, func(r *http.Request) (*http.Response, error) {
		body := decodeBody(t, r)
		page++
		if page == 1 {
			assert.Nil(t, body["offset"])
			return okEnvelope(t, map[string]any{
				"points": []map[string]any{
					{"id": "1", "payload": map[string]any{"doc_id": "a", "filename": "a.md"}},
					{"id": "2", "payload": map[string]any{"doc_id": "b", "filename": "b.md"}},
				},
				"next_page_offset": "3",
			}), nil
		}
		assert.Equal(t, "3", body["offset"])
		return okEnvelope(t, map[string]any{
			"points":           []map[string]any{{"id": "3", "payload": map[string]any{"doc_id": "a", "filename": "a.md"}}},
			"next_page_offset": nil,
		}), nil
	})

	docs, err := q.Documents(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []DocumentInfo{
		{DocID: "a", Filename: "a.md", Chunks: 2},
		{DocID: "b", Filename: "b.md", Chunks: 1},
	}, docs)
}

func TestQdrant_DeleteDocumentCountsFirst(t *testing.T) {
	var paths []string
	q := newTestQdrant(t, 2, func(r *http.Request) (*http.Response, error) {
		paths = append(paths, r.URL.Path)
		if r.URL.Path == "/collections/docs/points/count" {
			return okEnvelope(t, map[string]any{"count": 4}), nil
		}
		return okEnvelope(t, map[string]any{"status": "acknowledged"}), nil
	})
	n, err := q.DeleteDocument(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, []string{"/collections/docs/points/count", "/collections/docs/points/delete"}, paths)
}

func TestQdrant_EnsureCollection(t *testing.T) {
	t.Run("creates missing collection", func(t *testing.T) {
		var created map[string]any
		q := newTestQdrant(t, 0, func(r *http.Request) (*http.Response, error) {
			if r.Method == http.MethodGet {
				return jsonResponse(t, http.StatusNotFound, map[string]any{"status": map[string]any{"error": "not found"}}), nil
			}
			created = decodeBody(t, r)
			return okEnvelope(t, true), nil
		})
		require.NoError(t, q.ensureCollection(context.Background(), 8))
		assert.Equal(t, 8, q.Dimension())
		vectors := created["vectors"].(map[string]any)
		assert.EqualValues(t, 8, vectors["size"])
		assert.Equal(t, "Cosine", vectors["distance"])
	})

	t.Run("missing collection without size", func(t *testing.T) {
		q := newTestQdrant(t, 0, func(r *http.Request) (*http.Response, error) {
			return jsonResponse(t, http.StatusNotFound, map[string]any{}), nil
		})
		err := q.ensureCollection(context.Background(), 0)
		assert.ErrorIs(t, err, ragerr.ErrInvalidConfiguration)
	})

	t.Run("size mismatch", func(t *testing.T) {
		q := newTestQdrant(t, 0, func(r *http.Request) (*http.Response, error) {
			return okEnvelope(t, map[string]any{"config": map[string]any{"params": map[string]any{"vectors": map[string]any{"size": 1536}}}}), nil
		})
		err := q.ensureCollection(context.Background(), 512)
		assert.ErrorIs(t, err, ragerr.ErrEmbeddingSpaceMismatch)
	})

	t.Run("adopts existing size", func(t *testing.T) {
		q := newTestQdrant(t, 0, func(r *http.Request) (*http.Response, error) {
			return okEnvelope(t, map[string]any{"config": map[string]any{"params": map[string]any{"vectors": map[string]any{"size": 1536}}}}), nil
		})
		require.NoError(t, q.ensureCollection(context.Background(), 0))
		assert.Equal(t, 1536, q.Dimension())
	})
}
