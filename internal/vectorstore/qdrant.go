package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dgallion1/docrag/internal/doctree"
	"github.com/dgallion1/docrag/internal/ragerr"
)

const (
	maxErrorBodyBytes = 1024
	scrollPageSize    = 256
)

// QdrantConfig addresses one collection on a Qdrant server.
type QdrantConfig struct {
	URL        string
	APIKey     string
	Collection string
	// VectorDim sizes the collection when it has to be created.
	VectorDim int
	Timeout   time.Duration
}

// Qdrant stores records as points of a cosine collection, through the REST API.
// Record IDs must be UUIDs.
type Qdrant struct {
	log        *slog.Logger
	baseURL    string
	apiKey     string
	collection string
	http       *http.Client
	dim        int
	seq        atomic.Int64
}

type qdrantEnvelope struct {
	Result json.RawMessage `json:"result"`
	Status json.RawMessage `json:"status"`
}

type qdrantPayload struct {
	DocID       string `json:"doc_id"`
	ChunkIndex  int    `json:"chunk_index"`
	Text        string `json:"text"`
	Filename    string `json:"filename"`
	PageNumbers []int  `json:"page_numbers"`
	Title       string `json:"title"`
	Seq         int64  `json:"seq"`
	Generation  string `json:"generation"`
}

type qdrantPoint struct {
	ID      string        `json:"id"`
	Vector  []float32     `json:"vector,omitempty"`
	Payload qdrantPayload `json:"payload"`
}

type qdrantScoredPoint struct {
	ID      json.RawMessage `json:"id"`
	Score   float64         `json:"score"`
	Payload qdrantPayload   `json:"payload"`
}

// QdrantError is a failed call to the Qdrant API.
type QdrantError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *QdrantError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("qdrant %s: status %d: %s", e.Op, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("qdrant %s: %s", e.Op, e.Message)
}

// NewQdrant connects to the collection, creating it when missing. An existing collection
// whose vector size differs from cfg.VectorDim is an EmbeddingSpaceMismatch.
func NewQdrant(ctx context.Context, log *slog.Logger, cfg QdrantConfig) (*Qdrant, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, ragerr.InvalidConfiguration("qdrant config", "url is required")
	}
	if strings.TrimSpace(cfg.Collection) == "" {
		return nil, ragerr.InvalidConfiguration("qdrant config", "collection is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	q := &Qdrant{
		log:        log.With("component", "qdrant"),
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		http:       &http.Client{Timeout: cfg.Timeout},
	}
	if err := q.ensureCollection(ctx, cfg.VectorDim); err != nil {
		return nil, err
	}
	q.seq.Store(time.Now().UnixNano())
	q.log.Info("qdrant vector store ready", "url", q.baseURL, "collection", q.collection, "vector_dim", q.dim)
	return q, nil
}

func (q *Qdrant) ensureCollection(ctx context.Context, want int) error {
	var info struct {
		Config struct {
			Params struct {
				Vectors struct {
					Size int `json:"size"`
				} `json:"vectors"`
			} `json:"params"`
		} `json:"config"`
	}
	err := q.doJSON(ctx, "get collection", http.MethodGet, q.collectionPath(""), nil, &info)
	var qe *QdrantError
	if errors.As(err, &qe) && qe.StatusCode == http.StatusNotFound {
		if want <= 0 {
			return ragerr.InvalidConfiguration("qdrant config", "collection %s does not exist and no vector size is known", q.collection)
		}
		req := map[string]any{"vectors": map[string]any{"size": want, "distance": "Cosine"}}
		if err := q.doJSON(ctx, "create collection", http.MethodPut, q.collectionPath(""), req, nil); err != nil {
			return err
		}
		q.dim = want
		return nil
	}
	if err != nil {
		return err
	}
	size := info.Config.Params.Vectors.Size
	if want > 0 && size != 0 && size != want {
		return ragerr.SpaceMismatch("qdrant collection "+q.collection, size, want)
	}
	q.dim = size
	return nil
}

func (q *Qdrant) Dimension() int { return q.dim }

func (q *Qdrant) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	return q.upsert(ctx, "upsert", records, uuid.NewString())
}

// ReplaceDocument writes the new points tagged with a fresh generation, then deletes the
// document's points from any other generation. Readers may briefly see both generations.
func (q *Qdrant) ReplaceDocument(ctx context.Context, docID string, records []Record) error {
	gen := uuid.NewString()
	if len(records) > 0 {
		owned := make([]Record, len(records))
		for i, r := range records {
			r.DocID = docID
			owned[i] = r
		}
		if err := q.upsert(ctx, "replace", owned, gen); err != nil {
			return err
		}
	}
	req := map[string]any{
		"filter": map[string]any{
			"must":     []any{matchCondition("doc_id", docID)},
			"must_not": []any{matchCondition("generation", gen)},
		},
	}
	return q.doJSON(ctx, "replace", http.MethodPost, q.collectionPath("/points/delete?wait=true"), req, nil)
}

func (q *Qdrant) upsert(ctx context.Context, op string, records []Record, gen string) error {
	if _, err := batchDimension("qdrant "+op, q.dim, records); err != nil {
		return err
	}
	base := q.seq.Add(int64(len(records))) - int64(len(records))
	points := make([]qdrantPoint, 0, len(records))
	for i, r := range records {
		points = append(points, qdrantPoint{
			ID:     r.ID,
			Vector: r.Vector,
			Payload: qdrantPayload{
				DocID:       r.DocID,
				ChunkIndex:  r.ChunkIndex,
				Text:        r.Text,
				Filename:    r.Metadata.Filename,
				PageNumbers: nonNilPages(r.Metadata.PageNumbers),
				Title:       r.Metadata.Title,
				Seq:         base + int64(i) + 1,
				Generation:  gen,
			},
		})
	}
	return q.doJSON(ctx, op, http.MethodPut, q.collectionPath("/points?wait=true"), map[string]any{"points": points}, nil)
}

func (q *Qdrant) DeleteDocument(ctx context.Context, docID string) (int, error) {
	filter := map[string]any{"must": []any{matchCondition("doc_id", docID)}}
	n, err := q.count(ctx, filter)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}
	req := map[string]any{"filter": filter}
	if err := q.doJSON(ctx, "delete", http.MethodPost, q.collectionPath("/points/delete?wait=true"), req, nil); err != nil {
		return 0, err
	}
	return n, nil
}

func (q *Qdrant) Search(ctx context.Context, vector []float32, k int) ([]Result, error) {
	if len(vector) != q.dim {
		return nil, ragerr.SpaceMismatch("qdrant search", q.dim, len(vector))
	}
	if k <= 0 {
		k = 10
	}
	req := map[string]any{
		"vector":       vector,
		"limit":        k,
		"with_payload": true,
		"with_vector":  false,
	}
	var raw []qdrantScoredPoint
	if err := q.doJSON(ctx, "search", http.MethodPost, q.collectionPath("/points/search"), req, &raw); err != nil {
		return nil, err
	}
	cands := make([]scored, 0, len(raw))
	for _, p := range raw {
		cands = append(cands, scored{
			res: Result{Record: p.Payload.record(decodePointID(p.ID)), Score: p.Score},
			seq: p.Payload.Seq,
		})
	}
	return topK(cands, k), nil
}

func (q *Qdrant) Count(ctx context.Context) (int, error) {
	return q.count(ctx, nil)
}

func (q *Qdrant) count(ctx context.Context, filter map[string]any) (int, error) {
	req := map[string]any{"exact": true}
	if filter != nil {
		req["filter"] = filter
	}
	var res struct {
		Count int `json:"count"`
	}
	if err := q.doJSON(ctx, "count", http.MethodPost, q.collectionPath("/points/count"), req, &res); err != nil {
		return 0, err
	}
	return res.Count, nil
}

// Documents scrolls every point's payload.
func (q *Qdrant) Documents(ctx context.Context) ([]DocumentInfo, error) {
	out := []DocumentInfo{}
	pos := make(map[string]int)
	var offset json.RawMessage
	for {
		req := map[string]any{
			"limit":        scrollPageSize,
			"with_payload": []string{"doc_id", "filename"},
			"with_vector":  false,
		}
		if len(offset) > 0 {
			req["offset"] = offset
		}
		var page struct {
			Points []struct {
				Payload qdrantPayload `json:"payload"`
			} `json:"points"`
			NextPageOffset json.RawMessage `json:"next_page_offset"`
		}
		if err := q.doJSON(ctx, "scroll", http.MethodPost, q.collectionPath("/points/scroll"), req, &page); err != nil {
			return nil, err
		}
		for _, p := range page.Points {
			i, ok := pos[p.Payload.DocID]
			if !ok {
				i = len(out)
				pos[p.Payload.DocID] = i
				out = append(out, DocumentInfo{DocID: p.Payload.DocID, Filename: p.Payload.Filename})
			}
			out[i].Chunks++
		}
		if len(page.NextPageOffset) == 0 || string(page.NextPageOffset) == "null" {
			return out, nil
		}
		offset = page.NextPageOffset
	}
}

// Close releases resources.
func (q *Qdrant) Close() error {
	q.http.CloseIdleConnections()
	return nil
}

func (q *Qdrant) doJSON(ctx context.Context, op, method, path string, in any, out any) error {
	var body io.Reader
	if in != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(in); err != nil {
			return &QdrantError{Op: op, Message: "encode request: " + err.Error()}
		}
		body = &buf
	}

	req, err := http.NewRequestWithContext(ctx, method, q.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("qdrant %s: build request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if q.apiKey != "" {
		req.Header.Set("api-key", q.apiKey)
	}

	resp, err := q.http.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant %s: %w", op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return fmt.Errorf("qdrant %s: read response: %w", op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &QdrantError{Op: op, StatusCode: resp.StatusCode, Message: truncateBody(raw)}
	}

	var envelope qdrantEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("qdrant %s: decode envelope: %w", op, err)
	}
	if msg := envelopeStatusError(envelope.Status); msg != "" {
		return &QdrantError{Op: op, StatusCode: resp.StatusCode, Message: msg}
	}
	if out == nil || len(envelope.Result) == 0 || string(envelope.Result) == "null" {
		return nil
	}
	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return fmt.Errorf("qdrant %s: decode result: %w", op, err)
	}
	return nil
}

func (q *Qdrant) collectionPath(suffix string) string {
	return "/collections/" + q.collection + suffix
}

func (p qdrantPayload) record(id string) Record {
	return Record{
		ID:         id,
		DocID:      p.DocID,
		ChunkIndex: p.ChunkIndex,
		Text:       p.Text,
		Metadata: doctree.Metadata{
			Filename:    p.Filename,
			PageNumbers: nonNilPages(p.PageNumbers),
			Title:       p.Title,
		},
	}
}

func matchCondition(key, value string) map[string]any {
	return map[string]any{"key": key, "match": map[string]any{"value": value}}
}

func envelopeStatusError(raw json.RawMessage) string {
	status := strings.TrimSpace(string(raw))
	if status == "" || status == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if strings.EqualFold(s, "ok") {
			return ""
		}
		return fmt.Sprintf("status %q", s)
	}
	var obj struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && strings.TrimSpace(obj.Error) != "" {
		return strings.TrimSpace(obj.Error)
	}
	return "status " + status
}

func decodePointID(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}

func truncateBody(raw []byte) string {
	if len(raw) <= maxErrorBodyBytes {
		return string(raw)
	}
	return string(raw[:maxErrorBodyBytes]) + "..."
}
