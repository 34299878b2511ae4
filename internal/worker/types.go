package worker

import (
	"context"

	"hudhud/backend/internal/epigraph"
)

// ChunkTask is one unit of a bulk chunking run: re-chunk a single
// epigraph. One message per epigraph keeps runs resumable; redelivery
// of a processed task is harmless because chunk writes replace.
type ChunkTask struct {
	EpigraphID int    `json:"epigraph_id"`
	// Force re-chunks even when chunks already exist.
	Force bool `json:"force,omitempty"`
	// Embed generates embeddings inline instead of leaving the chunks
	// for a batch job.
	Embed bool `json:"embed,omitempty"`

	RunID         string `json:"run_id,omitempty"`
	Total         int    `json:"total,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

type Chunker interface {
	ChunkEpigraph(ctx context.Context, e *epigraph.Epigraph) []epigraph.Chunk
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// VectorWriter mirrors persisted chunks and record-level summary
// vectors into the vector index.
type VectorWriter interface {
	StoreChunks(ctx context.Context, chunks []epigraph.Chunk, published bool) error
	StoreEpigraphSummary(ctx context.Context, e *epigraph.Epigraph, vec []float32) error
	DeleteForEpigraph(ctx context.Context, epigraphID int) error
}

// TaskPublisher is satisfied by *nsq.Producer.
type TaskPublisher interface {
	Publish(topic string, body []byte) error
}
