package chunks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"hudhud/backend/internal/chunking"
	"hudhud/backend/internal/embedding"
	"hudhud/backend/internal/epigraph"
	"hudhud/backend/internal/worker"
)

var ErrEpigraphNotFound = errors.New("epigraph not found")

// BulkEnqueuer fans a bulk run out over the task queue.
type BulkEnqueuer interface {
	EnqueueRun(ctx context.Context, ids []int, force, embed bool) (string, []int, error)
}

// Service owns the chunk lifecycle: derive, persist, mirror to the
// vector index, and report coverage.
type Service struct {
	epigraphs epigraph.Store
	chunks    epigraph.ChunkStore
	chunker   worker.Chunker
	embedder  worker.Embedder
	vectors   worker.VectorWriter
	enqueuer  BulkEnqueuer
}

func NewService(
	epigraphs epigraph.Store,
	chunks epigraph.ChunkStore,
	chunker worker.Chunker,
	embedder worker.Embedder,
	vectors worker.VectorWriter,
	enqueuer BulkEnqueuer,
) *Service {
	return &Service{
		epigraphs: epigraphs,
		chunks:    chunks,
		chunker:   chunker,
		embedder:  embedder,
		vectors:   vectors,
		enqueuer:  enqueuer,
	}
}

// ChunkEpigraph re-chunks one epigraph synchronously and returns the
// saved chunks. Without force, an already-chunked epigraph is returned
// as-is.
func (s *Service) ChunkEpigraph(ctx context.Context, id int, force, embed bool) ([]epigraph.Chunk, error) {
	e, err := s.epigraphs.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("chunk epigraph %d: %w", id, err)
	}
	if e == nil {
		return nil, ErrEpigraphNotFound
	}

	if !force {
		existing, err := s.chunks.GetByEpigraph(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("chunk epigraph %d: %w", id, err)
		}
		if len(existing) > 0 {
			return existing, nil
		}
	}

	derived := s.chunker.ChunkEpigraph(ctx, e)

	if embed && s.embedder != nil {
		for i := range derived {
			vec, err := s.embedder.Embed(ctx, derived[i].Text)
			if err != nil {
				slog.WarnContext(ctx, "inline embedding failed, chunk left for batch",
					"epigraph_id", id, "chunk_index", derived[i].Index, "error", err)
				continue
			}
			derived[i].Embedding = vec
		}
	}

	saved, err := s.chunks.ReplaceForEpigraph(ctx, id, derived)
	if err != nil {
		return nil, fmt.Errorf("chunk epigraph %d: %w", id, err)
	}

	if err := s.vectors.DeleteForEpigraph(ctx, id); err != nil {
		return nil, fmt.Errorf("chunk epigraph %d: vector delete: %w", id, err)
	}
	if err := s.vectors.StoreChunks(ctx, saved, e.Published); err != nil {
		return nil, fmt.Errorf("chunk epigraph %d: vector store: %w", id, err)
	}

	// Refresh the record-level vector backing similar-record lookups. The
	// record stays chunked even when the summary embed fails; it just
	// drops out of similarity results until the next run.
	if s.embedder != nil {
		if vec, err := s.embedder.Embed(ctx, chunking.Summarize(e)); err != nil {
			slog.WarnContext(ctx, "summary embedding failed", "epigraph_id", id, "error", err)
		} else if err := s.vectors.StoreEpigraphSummary(ctx, e, vec); err != nil {
			slog.WarnContext(ctx, "summary vector store failed", "epigraph_id", id, "error", err)
		}
	}
	return saved, nil
}

// BulkChunk enqueues one task per epigraph. With no explicit ids it
// covers every published epigraph.
func (s *Service) BulkChunk(ctx context.Context, ids []int, force, embed bool) (string, int, []int, error) {
	if len(ids) == 0 {
		var err error
		ids, err = s.epigraphs.ListIDs(ctx, true)
		if err != nil {
			return "", 0, nil, fmt.Errorf("bulk chunk: list epigraphs: %w", err)
		}
	}
	if len(ids) == 0 {
		return "", 0, nil, errors.New("bulk chunk: nothing to chunk")
	}

	runID, failed, err := s.enqueuer.EnqueueRun(ctx, ids, force, embed)
	if err != nil {
		return "", 0, nil, err
	}
	return runID, len(ids), failed, nil
}

func (s *Service) ListByEpigraph(ctx context.Context, id int) ([]epigraph.Chunk, error) {
	return s.chunks.GetByEpigraph(ctx, id)
}

// DeleteForEpigraph removes an epigraph's chunks from both stores.
func (s *Service) DeleteForEpigraph(ctx context.Context, id int) (int, error) {
	n, err := s.chunks.DeleteForEpigraph(ctx, id)
	if err != nil {
		return 0, err
	}
	if err := s.vectors.DeleteForEpigraph(ctx, id); err != nil {
		return n, fmt.Errorf("delete chunks %d: vector delete: %w", id, err)
	}
	return n, nil
}

// Stats is the operational summary, including what it would cost to
// embed the remaining unembedded chunks.
type Stats struct {
	*epigraph.ChunkStats
	EmbeddingCoverage     string  `json:"embedding_coverage"`
	EstimatedCostStandard float64 `json:"estimated_cost_standard_usd"`
	EstimatedCostBatch    float64 `json:"estimated_cost_batch_usd"`
}

func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	base, err := s.chunks.Stats(ctx)
	if err != nil {
		return nil, err
	}

	coverage := "0%"
	if base.TotalChunks > 0 {
		coverage = fmt.Sprintf("%.1f%%", float64(base.ChunksWithEmbedding)/float64(base.TotalChunks)*100)
	}

	return &Stats{
		ChunkStats:            base,
		EmbeddingCoverage:     coverage,
		EstimatedCostStandard: roundCents(embedding.EstimateCost(base.UnembeddedTokens, false)),
		EstimatedCostBatch:    roundCents(embedding.EstimateCost(base.UnembeddedTokens, true)),
	}, nil
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
