package batches

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

type createRequest struct {
	MaxBatches int `json:"max_batches,omitempty"`
}

// Create handles POST /batches.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.writeError(r.Context(), w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
			return
		}
	}
	if req.MaxBatches < 0 {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", "max_batches must not be negative", http.StatusBadRequest)
		return
	}

	result, err := h.service.Create(r.Context(), req.MaxBatches)
	if errors.Is(err, ErrNothingToEmbed) {
		h.writeError(r.Context(), w, "NOTHING_TO_EMBED", "All chunks already have embeddings", http.StatusConflict)
		return
	}
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to create embedding batches", "error", err)
		h.writeError(r.Context(), w, "INTERNAL_ERROR", "Failed to create batches", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusCreated, map[string]interface{}{"data": result})
}

// Get handles GET /batches/{id}, refreshing provider state as a side
// effect.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil || id <= 0 {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", "invalid batch id", http.StatusBadRequest)
		return
	}

	job, err := h.service.Get(r.Context(), id)
	if errors.Is(err, ErrJobNotFound) {
		h.writeError(r.Context(), w, "NOT_FOUND", "Batch job not found", http.StatusNotFound)
		return
	}
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to get batch job", "error", err, "job_id", id)
		h.writeError(r.Context(), w, "INTERNAL_ERROR", "Failed to get batch job", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"data": job})
}

// List handles GET /batches.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.service.List(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to list batch jobs", "error", err)
		h.writeError(r.Context(), w, "INTERNAL_ERROR", "Failed to list batch jobs", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{"jobs": jobs, "count": len(jobs)},
	})
}

// Apply handles POST /batches/{id}/apply.
func (h *Handler) Apply(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil || id <= 0 {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", "invalid batch id", http.StatusBadRequest)
		return
	}

	result, err := h.service.Apply(r.Context(), id)
	switch {
	case errors.Is(err, ErrJobNotFound):
		h.writeError(r.Context(), w, "NOT_FOUND", "Batch job not found", http.StatusNotFound)
		return
	case errors.Is(err, ErrAlreadyApplied):
		h.writeError(r.Context(), w, "ALREADY_APPLIED", "Batch job already applied", http.StatusConflict)
		return
	case errors.Is(err, ErrNotCompleted):
		h.writeError(r.Context(), w, "NOT_COMPLETED", err.Error(), http.StatusConflict)
		return
	case err != nil:
		slog.ErrorContext(r.Context(), "failed to apply batch job", "error", err, "job_id", id)
		h.writeError(r.Context(), w, "INTERNAL_ERROR", "Failed to apply batch job", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"data": result})
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
