package api

import (
	"net/http"
)

func (s *Server) handleLLMStats(w http.ResponseWriter, r *http.Request) {
	c := s.components
	if c == nil || c.GenStats == nil || c.EmbedStats == nil {
		jsonError(w, "llm stats unavailable", http.StatusServiceUnavailable)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"generation": map[string]any{
			"model": c.Generator.Model(),
			"stats": c.GenStats.Snapshot(),
		},
		"embedding": map[string]any{
			"model":     c.Embedder.Model(),
			"dimension": c.Embedder.Dimension(),
			"stats":     c.EmbedStats.Snapshot(),
		},
		"queue_depth": s.orchestrator.QueueDepth(),
	})
}
