package search

import (
	"context"
	"fmt"
	"log/slog"
)

// Service fronts the lexical engines: the index first, the relational
// fallback when the index is missing or errors. Fallback results are
// degraded (no scores, AND-only matching) but never empty-handed because
// the index is down.
type Service struct {
	index    Index
	fallback *Fallback
}

func NewService(index Index, fallback *Fallback) *Service {
	return &Service{index: index, fallback: fallback}
}

func (s *Service) Search(ctx context.Context, req Request) (*Result, error) {
	req.Filters = req.Filters.Sanitize()

	if s.index != nil {
		res, err := s.index.Search(ctx, req)
		if err == nil {
			return res, nil
		}
		if s.fallback == nil {
			return nil, err
		}
		slog.ErrorContext(ctx, "index search failed, using relational fallback",
			"error", err, "query", req.Query)
	}

	if s.fallback == nil {
		return nil, fmt.Errorf("no search engine configured")
	}
	return s.fallback.Search(ctx, req)
}
