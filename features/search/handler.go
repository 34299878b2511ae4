package search

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"hudhud/backend/internal/middleware"
	"hudhud/backend/internal/search"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Search handles POST /search, the lexical engine with relational
// fallback.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	var req search.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return
	}

	result, err := h.service.Search(r.Context(), req)
	if err != nil {
		slog.ErrorContext(r.Context(), "search failed", "error", err, "query", req.Query)
		h.writeError(r.Context(), w, "INTERNAL_ERROR", "Search is unavailable", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, map[string]interface{}{"data": result})
}

// Semantic handles POST /search/semantic, vector search over chunks.
func (h *Handler) Semantic(w http.ResponseWriter, r *http.Request) {
	var req SemanticRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", "query is required", http.StatusBadRequest)
		return
	}

	hits, err := h.service.Semantic(r.Context(), req)
	if err != nil {
		slog.ErrorContext(r.Context(), "semantic search failed", "error", err, "query", req.Query)
		h.writeError(r.Context(), w, "INTERNAL_ERROR", "Semantic search is unavailable", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, map[string]interface{}{
		"data": map[string]interface{}{"results": hits, "count": len(hits)},
	})
}

// Similar handles GET /search/similar/{id}, record-level vector search.
func (h *Handler) Similar(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", "invalid epigraph id", http.StatusBadRequest)
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil {
			h.writeError(r.Context(), w, "VALIDATION_ERROR", "invalid limit", http.StatusBadRequest)
			return
		}
	}

	hits, err := h.service.Similar(r.Context(), id, limit)
	if errors.Is(err, ErrEpigraphNotFound) {
		h.writeError(r.Context(), w, "NOT_FOUND", "Epigraph not found", http.StatusNotFound)
		return
	}
	if err != nil {
		slog.ErrorContext(r.Context(), "similar search failed", "error", err, "epigraph_id", id)
		h.writeError(r.Context(), w, "INTERNAL_ERROR", "Similar search is unavailable", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, map[string]interface{}{
		"data": map[string]interface{}{"results": hits, "count": len(hits)},
	})
}

// Index handles POST /search/index/{id}, writing one record into the
// lexical index.
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", "invalid epigraph id", http.StatusBadRequest)
		return
	}

	err = h.service.IndexRecord(r.Context(), id)
	if errors.Is(err, ErrEpigraphNotFound) {
		h.writeError(r.Context(), w, "NOT_FOUND", "Epigraph not found", http.StatusNotFound)
		return
	}
	if err != nil {
		slog.ErrorContext(r.Context(), "indexing failed", "error", err, "epigraph_id", id)
		h.writeError(r.Context(), w, "INTERNAL_ERROR", "Indexing failed", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, map[string]interface{}{
		"data": map[string]interface{}{"epigraph_id": id, "indexed": true},
	})
}

// RemoveIndex handles DELETE /search/index/{id}.
func (h *Handler) RemoveIndex(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", "invalid epigraph id", http.StatusBadRequest)
		return
	}

	if err := h.service.RemoveRecord(r.Context(), id); err != nil {
		slog.ErrorContext(r.Context(), "index removal failed", "error", err, "epigraph_id", id)
		h.writeError(r.Context(), w, "INTERNAL_ERROR", "Index removal failed", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, map[string]interface{}{
		"data": map[string]interface{}{"epigraph_id": id, "removed": true},
	})
}

// Reindex handles POST /search/reindex, rebuilding the lexical index
// from the epigraphs table. The body is optional.
func (h *Handler) Reindex(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PublishedOnly bool `json:"published_only"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return
	}

	result, err := h.service.Reindex(r.Context(), req.PublishedOnly)
	if err != nil {
		slog.ErrorContext(r.Context(), "reindex failed", "error", err)
		h.writeError(r.Context(), w, "INTERNAL_ERROR", "Reindex failed", http.StatusInternalServerError)
		return
	}

	slog.InfoContext(r.Context(), "reindex complete",
		"total", result.Total, "indexed", result.Indexed, "failed", len(result.Failed))
	h.writeJSON(w, map[string]interface{}{"data": result})
}

func (h *Handler) writeJSON(w http.ResponseWriter, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": middleware.GetCorrelationID(ctx),
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}
