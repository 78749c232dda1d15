package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/dgallion1/docrag/internal/assembler"
	"github.com/dgallion1/docrag/internal/generate"
	"github.com/dgallion1/docrag/internal/ragerr"
	"github.com/dgallion1/docrag/internal/retriever"
	"github.com/dgallion1/docrag/internal/tokenizer"
	"github.com/dgallion1/docrag/internal/vectorstore"
)

// Answer is one answered question with the context it was grounded on.
type Answer struct {
	Question string               `json:"question"`
	Context  string               `json:"context"`
	Results  []vectorstore.Result `json:"results"`
	Answer   string               `json:"answer"`
	// RetrievalError is set when retrieval failed and the answer was generated without context.
	RetrievalError string `json:"retrieval_error,omitempty"`
}

// Session answers questions by retrieval, context assembly and generation.
type Session struct {
	retriever *retriever.Retriever
	generator *generate.Generator
	log       *slog.Logger

	// DefaultK is used when a caller passes k <= 0.
	DefaultK int
	// ContextBudget caps the assembled context in tokens; 0 disables the cap.
	ContextBudget int
	Tokenizer     tokenizer.Tokenizer
}

func NewSession(log *slog.Logger, r *retriever.Retriever, g *generate.Generator) *Session {
	return &Session{retriever: r, generator: g, log: log, DefaultK: retriever.DefaultK}
}

// Query answers a single question with no conversation history.
func (s *Session) Query(ctx context.Context, question string, k int) (*Answer, error) {
	ans, err := s.ground(ctx, question, k)
	if err != nil {
		return nil, err
	}
	msgs := []generate.Message{{Role: generate.RoleUser, Content: question}}
	text, err := s.generator.Respond(ctx, msgs, ans.Context, nil)
	if err != nil {
		return nil, err
	}
	ans.Answer = text
	return ans, nil
}

// Chat appends question to conv, answers it from the whole history, and streams fragments to
// onDelta. The assistant turn is appended only when generation succeeds; the question stays in
// history either way.
func (s *Session) Chat(ctx context.Context, conv *generate.Conversation, question string, k int, onDelta func(string) error) (*Answer, error) {
	conv.Append(generate.RoleUser, question)

	ans, err := s.ground(ctx, question, k)
	if err != nil {
		return nil, err
	}
	text, err := s.generator.Respond(ctx, conv.Messages(), ans.Context, onDelta)
	if err != nil {
		return nil, err
	}
	conv.Append(generate.RoleAssistant, text)
	ans.Answer = text
	return ans, nil
}

// ground retrieves and assembles the context for question. An embedding space mismatch or a
// done ctx fails; other retrieval failures yield NoContext with RetrievalError set.
func (s *Session) ground(ctx context.Context, question string, k int) (*Answer, error) {
	if k <= 0 {
		k = s.DefaultK
	}
	ans := &Answer{Question: question, Results: []vectorstore.Result{}}

	results, err := s.retriever.Search(ctx, question, k)
	switch {
	case err == nil:
	case errors.Is(err, ragerr.ErrEmbeddingSpaceMismatch):
		return nil, err
	case ctx.Err() != nil:
		return nil, ctx.Err()
	default:
		s.log.Warn("retrieval failed, answering without context", "error", err)
		ans.RetrievalError = err.Error()
		results = nil
	}

	if s.ContextBudget > 0 && s.Tokenizer != nil {
		results = assembler.FitBudget(results, s.Tokenizer, s.ContextBudget)
	}
	if len(results) == 0 {
		ans.Context = assembler.NoContext
		return ans, nil
	}
	ans.Results = results
	ans.Context = assembler.Assemble(results)
	return ans, nil
}

// SessionStore keeps conversations by id and drops idle ones after the TTL.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]*generate.Conversation
	ttl      time.Duration
}

func NewSessionStore(ttl time.Duration) *SessionStore {
	return &SessionStore{sessions: make(map[string]*generate.Conversation), ttl: ttl}
}

// GetOrCreate returns the conversation for id, starting a new one if needed.
func (s *SessionStore) GetOrCreate(id string) *generate.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.sessions[id]
	if !ok {
		conv = generate.NewConversation(id)
		s.sessions[id] = conv
	}
	return conv
}

// Get returns the conversation for id, or nil.
func (s *SessionStore) Get(id string) *generate.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[id]
}

func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Cleanup removes conversations idle for longer than the TTL.
func (s *SessionStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for id, conv := range s.sessions {
		if now.Sub(conv.UpdatedAt()) > s.ttl {
			delete(s.sessions, id)
		}
	}
}

// Run calls Cleanup every interval until ctx is done.
func (s *SessionStore) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Cleanup()
		}
	}
}
