package vector

import (
	"context"

	"hudhud/backend/internal/epigraph"
)

// ChunkHit is one nearest-neighbour chunk. Similarity is 1 minus cosine
// distance, in [0, 1] for normalized vectors.
type ChunkHit struct {
	ChunkID    int     `json:"chunk_id"`
	EpigraphID int     `json:"epigraph_id"`
	Text       string  `json:"text"`
	Type       string  `json:"chunk_type"`
	Title      string  `json:"title"`
	Similarity float64 `json:"similarity"`
}

// EpigraphHit is one nearest-neighbour record.
type EpigraphHit struct {
	EpigraphID int     `json:"epigraph_id"`
	Title      string  `json:"title"`
	Similarity float64 `json:"similarity"`
}

// ChunkFilters constrain nearest-chunk search before ranking.
type ChunkFilters struct {
	PublishedOnly bool
	ChunkTypes    []string
	Periods       []string
	Languages     []string
}

// Index is the vector store. MaxDistance bounds cosine distance (not
// similarity); 1.0 admits everything with any positive alignment.
type Index interface {
	StoreChunks(ctx context.Context, chunks []epigraph.Chunk, published bool) error
	DeleteForEpigraph(ctx context.Context, epigraphID int) error
	NearestChunks(ctx context.Context, vec []float32, maxDistance float64, limit int, f ChunkFilters) ([]ChunkHit, error)
	StoreEpigraphSummary(ctx context.Context, e *epigraph.Epigraph, vec []float32) error
	NearestEpigraphs(ctx context.Context, vec []float32, maxDistance float64, limit, excludeID int) ([]EpigraphHit, error)
	CountChunks(ctx context.Context) (int, error)
}
