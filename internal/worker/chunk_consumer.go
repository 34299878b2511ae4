package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nsqio/go-nsq"

	"hudhud/backend/internal/chunking"
	"hudhud/backend/internal/epigraph"
	"hudhud/backend/internal/middleware"
	"hudhud/backend/internal/progress"
)

const embedTimeout = 60 * time.Second

// ChunkConsumer processes chunk.task messages: fetch the epigraph,
// re-derive its chunks, replace the persisted set and mirror embedded
// chunks into the vector index.
type ChunkConsumer struct {
	epigraphs epigraph.Store
	chunks    epigraph.ChunkStore
	chunker   Chunker
	embedder  Embedder
	vectors   VectorWriter
	reporter  progress.Reporter
}

func NewChunkConsumer(
	epigraphs epigraph.Store,
	chunks epigraph.ChunkStore,
	chunker Chunker,
	embedder Embedder,
	vectors VectorWriter,
	reporter progress.Reporter,
) *ChunkConsumer {
	if reporter == nil {
		reporter = progress.Nop{}
	}
	return &ChunkConsumer{
		epigraphs: epigraphs,
		chunks:    chunks,
		chunker:   chunker,
		embedder:  embedder,
		vectors:   vectors,
		reporter:  reporter,
	}
}

// HandleMessage is the NSQ entry point. A returned error requeues the
// message; malformed or unprocessable tasks are dropped so they cannot
// poison the channel.
func (h *ChunkConsumer) HandleMessage(m *nsq.Message) error {
	if len(m.Body) == 0 {
		return nil
	}

	var task ChunkTask
	if err := json.Unmarshal(m.Body, &task); err != nil {
		slog.Error("poison pill: invalid chunk task", "error", err)
		return nil
	}

	ctx := context.Background()
	if task.CorrelationID != "" {
		ctx = middleware.WithCorrelationID(ctx, task.CorrelationID)
	}

	if task.EpigraphID == 0 {
		slog.ErrorContext(ctx, "chunk task without epigraph id, dropping")
		return nil
	}

	return h.process(ctx, task)
}

func (h *ChunkConsumer) process(ctx context.Context, task ChunkTask) error {
	e, err := h.epigraphs.GetByID(ctx, task.EpigraphID)
	if err != nil {
		slog.ErrorContext(ctx, "epigraph lookup failed", "epigraph_id", task.EpigraphID, "error", err)
		return err
	}
	if e == nil {
		// Deleted since the task was enqueued, nothing to do.
		slog.WarnContext(ctx, "epigraph gone, dropping task", "epigraph_id", task.EpigraphID)
		h.reporter.Report(ctx, task.RunID, 1, task.Total, progress.StatusRunning, "epigraph not found")
		return nil
	}

	if !task.Force {
		existing, err := h.chunks.GetByEpigraph(ctx, task.EpigraphID)
		if err != nil {
			slog.ErrorContext(ctx, "chunk lookup failed", "epigraph_id", task.EpigraphID, "error", err)
			return err
		}
		if len(existing) > 0 {
			slog.InfoContext(ctx, "epigraph already chunked, skipping",
				"epigraph_id", task.EpigraphID, "chunks", len(existing))
			h.reporter.Report(ctx, task.RunID, 1, task.Total, progress.StatusRunning, "")
			return nil
		}
	}

	chunks := h.chunker.ChunkEpigraph(ctx, e)

	if task.Embed && h.embedder != nil {
		h.embedInline(ctx, chunks)
	}

	saved, err := h.chunks.ReplaceForEpigraph(ctx, task.EpigraphID, chunks)
	if err != nil {
		slog.ErrorContext(ctx, "chunk replace failed", "epigraph_id", task.EpigraphID, "error", err)
		return err
	}

	// The vector index follows the relational store: drop the old chunk
	// objects, then mirror whatever came back embedded.
	if err := h.vectors.DeleteForEpigraph(ctx, task.EpigraphID); err != nil {
		slog.ErrorContext(ctx, "vector delete failed", "epigraph_id", task.EpigraphID, "error", err)
		return err
	}
	if err := h.vectors.StoreChunks(ctx, saved, e.Published); err != nil {
		slog.ErrorContext(ctx, "vector store failed", "epigraph_id", task.EpigraphID, "error", err)
		return err
	}

	if h.embedder != nil {
		h.storeSummary(ctx, e)
	}

	slog.InfoContext(ctx, "epigraph chunked",
		"epigraph_id", task.EpigraphID, "chunks", len(saved), "embedded", task.Embed)
	h.reporter.Report(ctx, task.RunID, 1, task.Total, progress.StatusRunning, "")
	return nil
}

// storeSummary refreshes the record-level vector that backs similar-record
// lookups. The task never fails on it; a record without a summary vector
// simply stays out of similarity results until the next run.
func (h *ChunkConsumer) storeSummary(ctx context.Context, e *epigraph.Epigraph) {
	embedCtx, cancel := context.WithTimeout(ctx, embedTimeout)
	vec, err := h.embedder.Embed(embedCtx, chunking.Summarize(e))
	cancel()
	if err != nil {
		slog.WarnContext(ctx, "summary embedding failed", "epigraph_id", e.ID, "error", err)
		return
	}
	if err := h.vectors.StoreEpigraphSummary(ctx, e, vec); err != nil {
		slog.WarnContext(ctx, "summary vector store failed", "epigraph_id", e.ID, "error", err)
	}
}

// embedInline attaches vectors where it can. A chunk whose embedding
// fails stays unembedded and is picked up later by a batch job; the
// task itself never fails on embedding errors.
func (h *ChunkConsumer) embedInline(ctx context.Context, chunks []epigraph.Chunk) {
	for i := range chunks {
		embedCtx, cancel := context.WithTimeout(ctx, embedTimeout)
		vec, err := h.embedder.Embed(embedCtx, chunks[i].Text)
		cancel()
		if err != nil {
			slog.WarnContext(ctx, "inline embedding failed, chunk left for batch",
				"epigraph_id", chunks[i].EpigraphID, "chunk_index", chunks[i].Index, "error", err)
			continue
		}
		chunks[i].Embedding = vec
	}
}
