package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgallion1/docrag/internal/chunker"
	"github.com/dgallion1/docrag/internal/enricher"
	"github.com/dgallion1/docrag/internal/indexer"
	"github.com/dgallion1/docrag/internal/parser"
	"github.com/dgallion1/docrag/internal/ragerr"
)

// Request describes one document to ingest.
type Request struct {
	Filename string // extension selects the parser
	Data     []byte // fetched from Source when nil
	DocID    string // defaults to DocumentID(Source or Filename)
	Source   string // original path or URL, used for the default id
	Title    string // overrides the parsed title

	// OnStatus, if set, is called as the document moves through the phases.
	OnStatus func(status JobStatus, totalChunks int)
}

// Result summarizes one ingested document.
type Result struct {
	DocID     string        `json:"doc_id"`
	Filename  string        `json:"filename"`
	Title     string        `json:"title"`
	Chunks    int           `json:"chunks"`
	Records   int           `json:"records"`
	Oversized int           `json:"oversized"`
	Duration  time.Duration `json:"duration"`
}

// BatchResult is the outcome for one source of a batch.
type BatchResult struct {
	Source string  `json:"source"`
	Result *Result `json:"result,omitempty"`
	Err    error   `json:"-"`
	// Skipped is set for sources not attempted after a non-parse failure.
	Skipped bool `json:"skipped,omitempty"`
}

// Ingester runs parse, chunk, enrich and index for single documents.
type Ingester struct {
	chunker *chunker.Chunker
	indexer *indexer.Indexer
	fetcher *parser.Fetcher
	opts    parser.Options
	log     *slog.Logger

	// Timeout bounds each document; 0 disables it.
	Timeout time.Duration
}

func NewIngester(log *slog.Logger, c *chunker.Chunker, ix *indexer.Indexer, f *parser.Fetcher, opts parser.Options) *Ingester {
	return &Ingester{chunker: c, indexer: ix, fetcher: f, opts: opts, log: log}
}

// DocumentID derives a stable id from a source name.
func DocumentID(source string) string {
	return ContentHashHex([]byte(source))[:16]
}

// IngestFile ingests raw bytes under filename.
func (in *Ingester) IngestFile(ctx context.Context, filename string, data []byte) (*Result, error) {
	return in.Ingest(ctx, Request{Filename: filename, Data: data})
}

// IngestSource fetches a local path or URL and ingests it.
func (in *Ingester) IngestSource(ctx context.Context, source string) (*Result, error) {
	return in.Ingest(ctx, Request{Source: source})
}

func (in *Ingester) fetch(ctx context.Context, source string) ([]byte, string, error) {
	if in.fetcher == nil {
		return nil, "", ragerr.InvalidConfiguration("fetch "+source, "no fetcher configured")
	}
	return in.fetcher.Fetch(ctx, source)
}

// IngestBatch ingests sources in order. A ParseError is recorded and the batch moves on;
// any other failure stops it and marks the remaining sources skipped.
func (in *Ingester) IngestBatch(ctx context.Context, sources []string) []BatchResult {
	results := make([]BatchResult, len(sources))
	var stop error
	for i, src := range sources {
		results[i].Source = src
		if stop != nil {
			results[i].Skipped = true
			results[i].Err = fmt.Errorf("skipped after earlier failure: %w", stop)
			continue
		}
		res, err := in.IngestSource(ctx, src)
		results[i].Result = res
		results[i].Err = err
		if err == nil {
			continue
		}
		if errors.Is(err, ragerr.ErrParse) {
			in.log.Warn("skipping unparseable source", "source", src, "error", err)
			continue
		}
		stop = err
	}
	return results
}

// Ingest runs the full pipeline for one document, fetching req.Source first when no data
// was supplied. Records are committed only when every chunk embedded successfully within
// the timeout, which also covers the fetch.
func (in *Ingester) Ingest(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	if in.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, in.Timeout)
		defer cancel()
	}

	notify := func(status JobStatus, total int) {
		if req.OnStatus != nil {
			req.OnStatus(status, total)
		}
	}

	notify(StatusParsing, 0)
	if req.Data == nil && req.Source != "" {
		data, filename, err := in.fetch(ctx, req.Source)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("ingest %s: %w", req.Source, ctxErr)
		}
		if err != nil {
			return nil, err
		}
		req.Data = data
		if req.Filename == "" {
			req.Filename = filename
		}
	}

	docID := req.DocID
	if docID == "" {
		name := req.Source
		if name == "" {
			name = req.Filename
		}
		docID = DocumentID(name)
	}
	log := in.log.With("doc_id", docID, "filename", req.Filename)

	doc, err := parser.ParseBytes(req.Data, req.Filename, in.opts)
	if err != nil {
		return nil, err
	}
	if req.Title != "" {
		doc.Title = req.Title
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("ingest %s: %w", req.Filename, err)
	}

	notify(StatusChunking, 0)
	chunks, err := in.chunker.Chunk(doc)
	if err != nil {
		return nil, err
	}
	enriched := enricher.Enrich(doc, chunks)
	oversized := 0
	for _, c := range chunks {
		if c.Oversized {
			oversized++
		}
	}
	if oversized > 0 {
		log.Warn("items exceed the token budget", "oversized", oversized)
	}
	log.Info("chunked document", "items", doc.Len(), "chunks", len(chunks))

	notify(StatusEmbedding, len(chunks))
	n, err := in.indexer.Index(ctx, docID, enriched)
	if err != nil {
		return nil, err
	}

	res := &Result{
		DocID:     docID,
		Filename:  req.Filename,
		Title:     doc.Title,
		Chunks:    len(chunks),
		Records:   n,
		Oversized: oversized,
		Duration:  time.Since(start),
	}
	log.Info("ingested document", "records", n, "duration_ms", res.Duration.Milliseconds())
	return res, nil
}
