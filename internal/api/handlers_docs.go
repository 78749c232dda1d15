package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// handleListDocuments lists indexed documents with their chunk counts.
func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.components.Store.Documents(r.Context())
	if err != nil {
		jsonError(w, "failed to list documents: "+err.Error(), http.StatusInternalServerError)
		return
	}
	count, err := s.components.Store.Count(r.Context())
	if err != nil {
		jsonError(w, "failed to count records: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"documents": docs,
		"records":   count,
		"dimension": s.components.Store.Dimension(),
	})
}

// handleDeleteDocument removes every record of a document.
func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "docID")
	n, err := s.components.Store.DeleteDocument(r.Context(), docID)
	if err != nil {
		jsonError(w, "failed to delete document: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if n == 0 {
		jsonError(w, "document not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"doc_id":          docID,
		"records_deleted": n,
	})
}
