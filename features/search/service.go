package search

import (
	"context"
	"errors"
	"fmt"

	"hudhud/backend/internal/chunking"
	"hudhud/backend/internal/epigraph"
	"hudhud/backend/internal/search"
	"hudhud/backend/internal/vector"
)

var ErrEpigraphNotFound = errors.New("epigraph not found")

// Embedder turns a free-text query into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Vectors is the vector index view this feature needs, chunk level for
// semantic search and record level for similar-record lookups.
type Vectors interface {
	NearestChunks(ctx context.Context, vec []float32, maxDistance float64, limit int, f vector.ChunkFilters) ([]vector.ChunkHit, error)
	NearestEpigraphs(ctx context.Context, vec []float32, maxDistance float64, limit, excludeID int) ([]vector.EpigraphHit, error)
}

// Lexical is the boolean search engine with relational fallback.
type Lexical interface {
	Search(ctx context.Context, req search.Request) (*search.Result, error)
}

// Indexer manages the documents behind the lexical engine.
type Indexer interface {
	IndexEpigraph(ctx context.Context, e *epigraph.Epigraph) error
	BulkIndex(ctx context.Context, es []epigraph.Epigraph) (int, []int, error)
	DeleteEpigraph(ctx context.Context, id int) error
}

const (
	defaultSemanticLimit     = 20
	defaultSemanticThreshold = 1.0
	maxSemanticLimit         = 100
	defaultSimilarLimit      = 10

	// reindexBatchSize bounds how many full records are held in memory
	// per bulk indexing round.
	reindexBatchSize = 500
)

// SemanticRequest is the body of POST /search/semantic.
type SemanticRequest struct {
	Query      string   `json:"query"`
	Limit      int      `json:"limit,omitempty"`
	Threshold  float64  `json:"threshold,omitempty"`
	ChunkTypes []string `json:"chunk_types,omitempty"`
}

// Service fronts both search modes for the HTTP layer, plus the index
// maintenance operations that feed the lexical engine.
type Service struct {
	lexical  Lexical
	embedder Embedder
	vectors  Vectors
	records  epigraph.Store
	indexer  Indexer
}

func NewService(lexical Lexical, embedder Embedder, vectors Vectors, records epigraph.Store, indexer Indexer) *Service {
	return &Service{
		lexical:  lexical,
		embedder: embedder,
		vectors:  vectors,
		records:  records,
		indexer:  indexer,
	}
}

func (s *Service) Search(ctx context.Context, req search.Request) (*search.Result, error) {
	return s.lexical.Search(ctx, req)
}

func (s *Service) Semantic(ctx context.Context, req SemanticRequest) ([]vector.ChunkHit, error) {
	if req.Limit <= 0 {
		req.Limit = defaultSemanticLimit
	}
	if req.Limit > maxSemanticLimit {
		req.Limit = maxSemanticLimit
	}
	if req.Threshold <= 0 {
		req.Threshold = defaultSemanticThreshold
	}

	vec, err := s.embedder.Embed(ctx, req.Query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	hits, err := s.vectors.NearestChunks(ctx, vec, req.Threshold, req.Limit,
		vector.ChunkFilters{PublishedOnly: true, ChunkTypes: req.ChunkTypes})
	if err != nil {
		return nil, fmt.Errorf("semantic search: %w", err)
	}
	return hits, nil
}

// Similar returns published records close to the given record's summary
// vector. A record whose summary was never embedded yields an empty set,
// not an error.
func (s *Service) Similar(ctx context.Context, id, limit int) ([]vector.EpigraphHit, error) {
	if limit <= 0 {
		limit = defaultSimilarLimit
	}
	if limit > maxSemanticLimit {
		limit = maxSemanticLimit
	}

	e, err := s.records.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("similar %d: %w", id, err)
	}
	if e == nil {
		return nil, ErrEpigraphNotFound
	}

	vec, err := s.embedder.Embed(ctx, chunking.Summarize(e))
	if err != nil {
		return nil, fmt.Errorf("similar %d: embed summary: %w", id, err)
	}

	hits, err := s.vectors.NearestEpigraphs(ctx, vec, defaultSemanticThreshold, limit, id)
	if err != nil {
		return nil, fmt.Errorf("similar %d: %w", id, err)
	}
	return hits, nil
}

// IndexRecord writes one epigraph into the lexical index.
func (s *Service) IndexRecord(ctx context.Context, id int) error {
	e, err := s.records.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("index %d: %w", id, err)
	}
	if e == nil {
		return ErrEpigraphNotFound
	}
	return s.indexer.IndexEpigraph(ctx, e)
}

// RemoveRecord drops one epigraph from the lexical index. Removing a
// record that was never indexed is not an error.
func (s *Service) RemoveRecord(ctx context.Context, id int) error {
	return s.indexer.DeleteEpigraph(ctx, id)
}

// ReindexResult reports a bulk indexing run.
type ReindexResult struct {
	Total   int   `json:"total"`
	Indexed int   `json:"indexed"`
	Failed  []int `json:"failed,omitempty"`
}

// Reindex rebuilds the lexical index from the epigraphs table. The index
// holds unpublished records too, so the default covers everything; the
// query layer handles published visibility.
func (s *Service) Reindex(ctx context.Context, publishedOnly bool) (*ReindexResult, error) {
	ids, err := s.records.ListIDs(ctx, publishedOnly)
	if err != nil {
		return nil, fmt.Errorf("reindex: list epigraphs: %w", err)
	}

	res := &ReindexResult{Total: len(ids)}
	for start := 0; start < len(ids); start += reindexBatchSize {
		end := start + reindexBatchSize
		if end > len(ids) {
			end = len(ids)
		}

		batch, err := s.records.GetByIDs(ctx, ids[start:end])
		if err != nil {
			return nil, fmt.Errorf("reindex: load epigraphs: %w", err)
		}
		indexed, failed, err := s.indexer.BulkIndex(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("reindex: %w", err)
		}
		res.Indexed += indexed
		res.Failed = append(res.Failed, failed...)
	}
	return res, nil
}
