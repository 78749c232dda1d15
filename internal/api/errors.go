package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dgallion1/docrag/internal/ragerr"
)

// statusFor maps an error kind to an HTTP status.
func statusFor(err error) int {
	switch ragerr.KindOf(err) {
	case ragerr.KindParse:
		return http.StatusUnprocessableEntity
	case ragerr.KindInvalidConfiguration:
		return http.StatusBadRequest
	case ragerr.KindEmbeddingSpaceMismatch:
		return http.StatusConflict
	case ragerr.KindEmbedding, ragerr.KindGeneration:
		return http.StatusBadGateway
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// kindError writes err with its kind and the mapped status.
func kindError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusFor(err))
	body := map[string]string{"error": err.Error()}
	if k := ragerr.KindOf(err); k != "" {
		body["kind"] = string(k)
	}
	json.NewEncoder(w).Encode(body)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
