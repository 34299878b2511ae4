package weaviate

import (
	"context"
	"fmt"
	"strconv"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"hudhud/backend/internal/epigraph"
	"hudhud/backend/internal/vector"
)

// Store mirrors embedded chunks and record summaries into Weaviate and
// serves nearest-neighbour queries. Postgres stays the system of record;
// everything here can be rebuilt from it.
type Store struct {
	client *weaviate.Client
}

func NewStore(client *weaviate.Client) *Store {
	return &Store{client: client}
}

// StoreChunks batch-writes chunk objects with their vectors. Chunks
// without a vector are skipped.
func (s *Store) StoreChunks(ctx context.Context, chunks []epigraph.Chunk, published bool) error {
	var objects []*models.Object
	for i := range chunks {
		c := &chunks[i]
		if len(c.Embedding) == 0 {
			continue
		}
		objects = append(objects, &models.Object{
			Class: vector.ClassChunk,
			Properties: map[string]interface{}{
				"chunkId":    c.ID,
				"epigraphId": c.EpigraphID,
				"text":       c.Text,
				"chunkType":  string(c.Type),
				"chunkIndex": c.Index,
				"title":      c.Metadata.Title,
				"period":     c.Metadata.Period,
				"language":   c.Metadata.Language,
				"published":  published,
			},
			Vector: c.Embedding,
		})
	}
	if len(objects) == 0 {
		return nil
	}

	res, err := s.client.Batch().ObjectsBatcher().WithObjects(objects...).Do(ctx)
	if err != nil {
		return fmt.Errorf("store chunks: %w", err)
	}
	for _, obj := range res {
		if obj.Result != nil && obj.Result.Errors != nil && len(obj.Result.Errors.Error) > 0 {
			return fmt.Errorf("store chunks: %s", obj.Result.Errors.Error[0].Message)
		}
	}
	return nil
}

// DeleteForEpigraph removes every chunk object of one record, used before
// re-chunking and when a record is unpublished.
func (s *Store) DeleteForEpigraph(ctx context.Context, epigraphID int) error {
	_, err := s.client.Batch().ObjectsBatchDeleter().
		WithClassName(vector.ClassChunk).
		WithOutput("minimal").
		WithWhere(filters.Where().
			WithPath([]string{"epigraphId"}).
			WithOperator(filters.Equal).
			WithValueInt(int64(epigraphID))).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("delete chunks for epigraph %d: %w", epigraphID, err)
	}
	return nil
}

func chunkWhere(f vector.ChunkFilters) *filters.WhereBuilder {
	var operands []*filters.WhereBuilder
	if f.PublishedOnly {
		operands = append(operands, filters.Where().
			WithPath([]string{"published"}).
			WithOperator(filters.Equal).
			WithValueBoolean(true))
	}
	if len(f.ChunkTypes) > 0 {
		operands = append(operands, anyOfString("chunkType", f.ChunkTypes))
	}
	if len(f.Periods) > 0 {
		operands = append(operands, anyOfString("period", f.Periods))
	}
	if len(f.Languages) > 0 {
		operands = append(operands, anyOfString("language", f.Languages))
	}

	switch len(operands) {
	case 0:
		return nil
	case 1:
		return operands[0]
	default:
		return filters.Where().WithOperator(filters.And).WithOperands(operands)
	}
}

func anyOfString(path string, values []string) *filters.WhereBuilder {
	if len(values) == 1 {
		return filters.Where().
			WithPath([]string{path}).
			WithOperator(filters.Equal).
			WithValueString(values[0])
	}
	ors := make([]*filters.WhereBuilder, len(values))
	for i, v := range values {
		ors[i] = filters.Where().
			WithPath([]string{path}).
			WithOperator(filters.Equal).
			WithValueString(v)
	}
	return filters.Where().WithOperator(filters.Or).WithOperands(ors)
}

// NearestChunks runs a nearVector query bounded by maxDistance, applying
// filters before ranking. Hits come back ordered by distance; Similarity
// is 1 minus distance.
func (s *Store) NearestChunks(ctx context.Context, vec []float32, maxDistance float64, limit int, f vector.ChunkFilters) ([]vector.ChunkHit, error) {
	near := s.client.GraphQL().NearVectorArgBuilder().
		WithVector(vec).
		WithDistance(float32(maxDistance))

	fields := []graphql.Field{
		{Name: "chunkId"},
		{Name: "epigraphId"},
		{Name: "text"},
		{Name: "chunkType"},
		{Name: "title"},
		{Name: "_additional", Fields: []graphql.Field{{Name: "distance"}}},
	}

	query := s.client.GraphQL().Get().
		WithClassName(vector.ClassChunk).
		WithNearVector(near).
		WithLimit(limit).
		WithFields(fields...)
	if where := chunkWhere(f); where != nil {
		query = query.WithWhere(where)
	}

	res, err := query.Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("nearest chunks: %w", err)
	}
	if len(res.Errors) > 0 {
		return nil, fmt.Errorf("nearest chunks: graphql error: %v", res.Errors[0].Message)
	}

	var out []vector.ChunkHit
	for _, props := range getObjects(res.Data, vector.ClassChunk) {
		hit := vector.ChunkHit{
			ChunkID:    intProp(props, "chunkId"),
			EpigraphID: intProp(props, "epigraphId"),
			Text:       stringProp(props, "text"),
			Type:       stringProp(props, "chunkType"),
			Title:      stringProp(props, "title"),
			Similarity: 1 - distanceProp(props),
		}
		out = append(out, hit)
	}
	return out, nil
}

// StoreEpigraphSummary upserts the record-level vector keyed by a
// deterministic object id, so re-embedding replaces rather than
// duplicates.
func (s *Store) StoreEpigraphSummary(ctx context.Context, e *epigraph.Epigraph, vec []float32) error {
	props := map[string]interface{}{
		"epigraphId": e.ID,
		"title":      e.Title,
		"period":     e.Period,
		"language":   e.Language(),
		"published":  e.Published,
	}

	// Delete-then-create keeps one summary object per record.
	if err := s.deleteEpigraphSummary(ctx, e.ID); err != nil {
		return err
	}
	_, err := s.client.Data().Creator().
		WithClassName(vector.ClassEpigraph).
		WithProperties(props).
		WithVector(vec).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("store epigraph summary %d: %w", e.ID, err)
	}
	return nil
}

func (s *Store) deleteEpigraphSummary(ctx context.Context, epigraphID int) error {
	_, err := s.client.Batch().ObjectsBatchDeleter().
		WithClassName(vector.ClassEpigraph).
		WithOutput("minimal").
		WithWhere(filters.Where().
			WithPath([]string{"epigraphId"}).
			WithOperator(filters.Equal).
			WithValueInt(int64(epigraphID))).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("delete epigraph summary %d: %w", epigraphID, err)
	}
	return nil
}

// NearestEpigraphs finds records similar to the query vector, excluding
// the record the vector came from.
func (s *Store) NearestEpigraphs(ctx context.Context, vec []float32, maxDistance float64, limit, excludeID int) ([]vector.EpigraphHit, error) {
	near := s.client.GraphQL().NearVectorArgBuilder().
		WithVector(vec).
		WithDistance(float32(maxDistance))

	fields := []graphql.Field{
		{Name: "epigraphId"},
		{Name: "title"},
		{Name: "_additional", Fields: []graphql.Field{{Name: "distance"}}},
	}

	query := s.client.GraphQL().Get().
		WithClassName(vector.ClassEpigraph).
		WithNearVector(near).
		WithLimit(limit + 1).
		WithFields(fields...).
		WithWhere(filters.Where().
			WithPath([]string{"published"}).
			WithOperator(filters.Equal).
			WithValueBoolean(true))

	res, err := query.Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("nearest epigraphs: %w", err)
	}
	if len(res.Errors) > 0 {
		return nil, fmt.Errorf("nearest epigraphs: graphql error: %v", res.Errors[0].Message)
	}

	var out []vector.EpigraphHit
	for _, props := range getObjects(res.Data, vector.ClassEpigraph) {
		id := intProp(props, "epigraphId")
		if id == excludeID {
			continue
		}
		out = append(out, vector.EpigraphHit{
			EpigraphID: id,
			Title:      stringProp(props, "title"),
			Similarity: 1 - distanceProp(props),
		})
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// CountChunks reports the number of chunk objects in the index.
func (s *Store) CountChunks(ctx context.Context) (int, error) {
	fields := graphql.Field{
		Name:   "meta",
		Fields: []graphql.Field{{Name: "count"}},
	}
	res, err := s.client.GraphQL().Aggregate().
		WithClassName(vector.ClassChunk).
		WithFields(fields).
		Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("count chunks: %w", err)
	}
	if len(res.Errors) > 0 {
		return 0, fmt.Errorf("count chunks: graphql error: %v", res.Errors[0].Message)
	}

	if agg, ok := res.Data["Aggregate"].(map[string]interface{}); ok {
		if classes, ok := agg[vector.ClassChunk].([]interface{}); ok && len(classes) > 0 {
			if props, ok := classes[0].(map[string]interface{}); ok {
				if meta, ok := props["meta"].(map[string]interface{}); ok {
					if count, ok := meta["count"].(float64); ok {
						return int(count), nil
					}
				}
			}
		}
	}
	return 0, nil
}

func getObjects(data map[string]models.JSONObject, class string) []map[string]interface{} {
	get, ok := data["Get"].(map[string]interface{})
	if !ok {
		return nil
	}
	raw, ok := get[class].([]interface{})
	if !ok {
		return nil
	}
	out := make([]map[string]interface{}, 0, len(raw))
	for _, r := range raw {
		if props, ok := r.(map[string]interface{}); ok {
			out = append(out, props)
		}
	}
	return out
}

func intProp(props map[string]interface{}, name string) int {
	switch v := props[name].(type) {
	case float64:
		return int(v)
	case string:
		n, _ := strconv.Atoi(v)
		return n
	}
	return 0
}

func stringProp(props map[string]interface{}, name string) string {
	s, _ := props[name].(string)
	return s
}

func distanceProp(props map[string]interface{}) float64 {
	additional, ok := props["_additional"].(map[string]interface{})
	if !ok {
		return 1
	}
	if d, ok := additional["distance"].(float64); ok {
		return d
	}
	return 1
}
