package chunks

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"hudhud/backend/internal/middleware"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type chunkRequest struct {
	Force bool `json:"force"`
	Embed bool `json:"embed"`
}

type bulkRequest struct {
	EpigraphIDs []int `json:"epigraph_ids,omitempty"`
	Force       bool  `json:"force"`
	Embed       bool  `json:"embed"`
}

// ChunkEpigraph handles POST /chunks/epigraph/{id}.
func (h *Handler) ChunkEpigraph(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil || id <= 0 {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", "invalid epigraph id", http.StatusBadRequest)
		return
	}

	var req chunkRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.writeError(r.Context(), w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
			return
		}
	}

	saved, err := h.service.ChunkEpigraph(r.Context(), id, req.Force, req.Embed)
	if errors.Is(err, ErrEpigraphNotFound) {
		h.writeError(r.Context(), w, "NOT_FOUND", "Epigraph not found", http.StatusNotFound)
		return
	}
	if err != nil {
		slog.ErrorContext(r.Context(), "chunking failed", "error", err, "epigraph_id", id)
		h.writeError(r.Context(), w, "INTERNAL_ERROR", "Chunking failed", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"epigraph_id": id,
			"chunk_count": len(saved),
			"chunks":      saved,
		},
	})
}

// Bulk handles POST /chunks/bulk. The run is asynchronous; the response
// carries the run id and how many tasks were fanned out.
func (h *Handler) Bulk(w http.ResponseWriter, r *http.Request) {
	var req bulkRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.writeError(r.Context(), w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
			return
		}
	}

	runID, total, failed, err := h.service.BulkChunk(r.Context(), req.EpigraphIDs, req.Force, req.Embed)
	if err != nil {
		slog.ErrorContext(r.Context(), "bulk chunk run failed to start", "error", err)
		h.writeError(r.Context(), w, "INTERNAL_ERROR", "Failed to start bulk run", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"data": map[string]interface{}{
			"run_id":   runID,
			"enqueued": total - len(failed),
			"total":    total,
			"failed":   failed,
		},
	})
}

// List handles GET /chunks/epigraph/{id}.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil || id <= 0 {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", "invalid epigraph id", http.StatusBadRequest)
		return
	}

	list, err := h.service.ListByEpigraph(r.Context(), id)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to list chunks", "error", err, "epigraph_id", id)
		h.writeError(r.Context(), w, "INTERNAL_ERROR", "Failed to list chunks", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"epigraph_id": id,
			"count":       len(list),
			"chunks":      list,
		},
	})
}

// Delete handles DELETE /chunks/epigraph/{id}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil || id <= 0 {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", "invalid epigraph id", http.StatusBadRequest)
		return
	}

	deleted, err := h.service.DeleteForEpigraph(r.Context(), id)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to delete chunks", "error", err, "epigraph_id", id)
		h.writeError(r.Context(), w, "INTERNAL_ERROR", "Failed to delete chunks", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{"epigraph_id": id, "deleted": deleted},
	})
}

// Stats handles GET /chunks/stats.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to compute chunk stats", "error", err)
		h.writeError(r.Context(), w, "INTERNAL_ERROR", "Failed to compute stats", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"data": stats})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
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
