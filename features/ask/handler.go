package ask

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"hudhud/backend/internal/answer"
	"hudhud/backend/internal/middleware"
)

// Asker is the answer pipeline. The channel closes when the answer is
// complete or failed; cancelling the context stops generation.
type Asker interface {
	Ask(ctx context.Context, query string, history []answer.Turn) <-chan answer.Event
}

type Handler struct {
	asker Asker
}

func NewHandler(asker Asker) *Handler {
	return &Handler{asker: asker}
}

type streamRequest struct {
	Query   string        `json:"query"`
	History []answer.Turn `json:"history,omitempty"`
}

// Stream handles POST /ask/stream: events are forwarded over SSE as they
// arrive, and a client disconnect cancels the pipeline via the request
// context.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	var req streamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", "query is required", http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writeError(r.Context(), w, "INTERNAL_ERROR", "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ctx := r.Context()
	for ev := range h.asker.Ask(ctx, req.Query, req.History) {
		data, err := json.Marshal(ev)
		if err != nil {
			slog.ErrorContext(ctx, "failed to encode event", "error", err)
			continue
		}
		if _, err := w.Write(append(append([]byte("data: "), data...), '\n', '\n')); err != nil {
			// Client gone; the context cancellation drains the pipeline.
			slog.InfoContext(ctx, "client disconnected mid-stream")
			return
		}
		flusher.Flush()
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
