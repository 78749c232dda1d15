package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dgallion1/docrag/internal/chunker"
	"github.com/dgallion1/docrag/internal/embedding"
	"github.com/dgallion1/docrag/internal/generate"
	"github.com/dgallion1/docrag/internal/indexer"
	"github.com/dgallion1/docrag/internal/parser"
	"github.com/dgallion1/docrag/internal/retriever"
	"github.com/dgallion1/docrag/internal/tokenizer"
	"github.com/dgallion1/docrag/internal/vectorstore"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// trapEmbedder fails texts containing trap and can slow every call down.
type trapEmbedder struct {
	*embedding.HashEmbedder
	trap  string
	delay time.Duration
}

func (e *trapEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if e.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(e.delay):
		}
	}
	if e.trap != "" && strings.Contains(text, e.trap) {
		return nil, errors.New("provider rejected input")
	}
	return e.HashEmbedder.Embed(ctx, text)
}

// echoService streams fixed fragments and records what it was asked.
type echoService struct {
	mu        sync.Mutex
	fragments []string
	err       error
	calls     int
	lastMsgs  []generate.Message
	lastOpts  generate.Options
}

func (s *echoService) Model() string { return "echo" }

func (s *echoService) Stream(ctx context.Context, msgs []generate.Message, opts generate.Options, onDelta func(string) error) (string, error) {
	s.mu.Lock()
	s.calls++
	s.lastMsgs = msgs
	s.lastOpts = opts
	s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	var b strings.Builder
	for _, f := range s.fragments {
		if err := onDelta(f); err != nil {
			return "", err
		}
		b.WriteString(f)
	}
	return b.String(), nil
}

type stack struct {
	emb      *trapEmbedder
	store    *vectorstore.Memory
	ingester *Ingester
	svc      *echoService
	session  *Session
}

func newStack(t *testing.T) *stack {
	t.Helper()
	log := testLogger()
	emb := &trapEmbedder{HashEmbedder: embedding.NewHashEmbedder(1024)}
	store := vectorstore.NewMemory()

	ch, err := chunker.New(tokenizer.Estimator{}, chunker.Config{MaxTokens: 20, MergePeers: true})
	require.NoError(t, err)
	ix, err := indexer.New(log, emb, store, indexer.Config{Workers: 2, MaxRetries: 1})
	require.NoError(t, err)

	svc := &echoService{fragments: []string{"It ", "is ", "sunny."}}
	return &stack{
		emb:      emb,
		store:    store,
		ingester: NewIngester(log, ch, ix, parser.NewFetcher(1<<20), parser.Options{}),
		svc:      svc,
		session:  NewSession(log, retriever.New(emb, store), generate.NewGenerator(svc)),
	}
}
