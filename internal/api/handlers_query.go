package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/dgallion1/docrag/internal/ragerr"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const maxQuestionBody = 64 << 10

type queryRequest struct {
	Question string `json:"question"`
	K        int    `json:"k"`
}

type chatRequest struct {
	SessionID string `json:"session_id"`
	Question  string `json:"question"`
	K         int    `json:"k"`
}

func decodeBody(r *http.Request, v any) error {
	return json.NewDecoder(io.LimitReader(r.Body, maxQuestionBody)).Decode(v)
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := decodeBody(r, &req); err != nil {
		jsonError(w, "invalid JSON body: "+err.Error(), http.StatusBadRequest)
		return
	}
	req.Question = strings.TrimSpace(req.Question)
	if req.Question == "" {
		jsonError(w, "question is required", http.StatusBadRequest)
		return
	}

	ans, err := s.components.Session.Query(r.Context(), req.Question, req.K)
	if err != nil {
		s.log.Error("query failed", "error", err)
		kindError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ans)
}

// handleChat streams one conversation turn as server-sent events: delta events carry answer
// fragments, then a single done or error event ends the stream. Failures before the first
// fragment are plain JSON errors with a mapped status.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeBody(r, &req); err != nil {
		jsonError(w, "invalid JSON body: "+err.Error(), http.StatusBadRequest)
		return
	}
	req.Question = strings.TrimSpace(req.Question)
	if req.Question == "" {
		jsonError(w, "question is required", http.StatusBadRequest)
		return
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		jsonError(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("X-Session-ID", req.SessionID)

	conv := s.sessions.GetOrCreate(req.SessionID)
	sse := &eventWriter{w: w, flusher: flusher}
	ans, err := s.components.Session.Chat(r.Context(), conv, req.Question, req.K, func(delta string) error {
		return sse.send("delta", map[string]string{"text": delta})
	})
	if err != nil {
		log := s.log.With("session_id", req.SessionID)
		if r.Context().Err() != nil {
			log.Info("chat client went away", "error", err)
			return
		}
		log.Error("chat turn failed", "error", err)
		if !sse.started {
			kindError(w, err)
			return
		}
		_ = sse.send("error", map[string]string{"error": err.Error(), "kind": string(ragerr.KindOf(err))})
		return
	}

	_ = sse.send("done", map[string]any{
		"session_id":      req.SessionID,
		"answer":          ans.Answer,
		"context":         ans.Context,
		"results":         ans.Results,
		"retrieval_error": ans.RetrievalError,
	})
}

func (s *Server) handleChatHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	conv := s.sessions.Get(id)
	if conv == nil {
		jsonError(w, "session not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": conv.ID(),
		"messages":   conv.Messages(),
		"updated_at": conv.UpdatedAt(),
	})
}

// eventWriter writes text/event-stream frames, committing headers on the first event.
type eventWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	started bool
}

func (e *eventWriter) send(event string, payload any) error {
	if !e.started {
		h := e.w.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		e.w.WriteHeader(http.StatusOK)
		e.started = true
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(e.w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	e.flusher.Flush()
	return nil
}

