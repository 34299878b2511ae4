package search_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	feature "hudhud/backend/features/search"
	"hudhud/backend/internal/epigraph"
	"hudhud/backend/internal/search"
	"hudhud/backend/internal/vector"
)

type stubLexical struct {
	result *search.Result
	err    error
	got    search.Request
}

func (s *stubLexical) Search(_ context.Context, req search.Request) (*search.Result, error) {
	s.got = req
	return s.result, s.err
}

type stubEmbedder struct {
	vec []float32
	err error
}

func (s *stubEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	return s.vec, s.err
}

type stubVectors struct {
	hits      []vector.ChunkHit
	gotLimit  int
	gotDist   float64
	gotFilter vector.ChunkFilters

	epigraphHits []vector.EpigraphHit
	gotExclude   int
	gotEpiLimit  int
}

func (s *stubVectors) NearestChunks(_ context.Context, _ []float32, dist float64, limit int, f vector.ChunkFilters) ([]vector.ChunkHit, error) {
	s.gotDist = dist
	s.gotLimit = limit
	s.gotFilter = f
	return s.hits, nil
}

func (s *stubVectors) NearestEpigraphs(_ context.Context, _ []float32, _ float64, limit, excludeID int) ([]vector.EpigraphHit, error) {
	s.gotEpiLimit = limit
	s.gotExclude = excludeID
	return s.epigraphHits, nil
}

type stubRecords struct {
	byID    map[int]*epigraph.Epigraph
	listIDs []int
	batches [][]int
}

func (s *stubRecords) GetByID(_ context.Context, id int) (*epigraph.Epigraph, error) {
	return s.byID[id], nil
}

func (s *stubRecords) GetByIDs(_ context.Context, ids []int) ([]epigraph.Epigraph, error) {
	s.batches = append(s.batches, ids)
	out := make([]epigraph.Epigraph, len(ids))
	for i, id := range ids {
		out[i] = epigraph.Epigraph{ID: id}
	}
	return out, nil
}

func (s *stubRecords) FindByTitle(_ context.Context, _ string, _ int) ([]epigraph.Epigraph, error) {
	return nil, nil
}

func (s *stubRecords) ListIDs(_ context.Context, _ bool) ([]int, error) {
	return s.listIDs, nil
}

type stubIndexer struct {
	indexed   []int
	deleted   []int
	bulked    [][]epigraph.Epigraph
	failIDs   []int
	indexErr  error
	deleteErr error
}

func (s *stubIndexer) IndexEpigraph(_ context.Context, e *epigraph.Epigraph) error {
	if s.indexErr != nil {
		return s.indexErr
	}
	s.indexed = append(s.indexed, e.ID)
	return nil
}

func (s *stubIndexer) BulkIndex(_ context.Context, es []epigraph.Epigraph) (int, []int, error) {
	s.bulked = append(s.bulked, es)
	return len(es) - len(s.failIDs), s.failIDs, nil
}

func (s *stubIndexer) DeleteEpigraph(_ context.Context, id int) error {
	if s.deleteErr != nil {
		return s.deleteErr
	}
	s.deleted = append(s.deleted, id)
	return nil
}

func newHandler(lex *stubLexical, emb *stubEmbedder, vec *stubVectors, rec *stubRecords, idx *stubIndexer) *feature.Handler {
	return feature.NewHandler(feature.NewService(lex, emb, vec, rec, idx))
}

func TestHandler_Search(t *testing.T) {
	lex := &stubLexical{result: &search.Result{
		Hits:   []search.Hit{{EpigraphID: 42, Title: "RES 4176", Score: 9.1}},
		Total:  1,
		Engine: search.EngineOpenSearch,
	}}
	h := newHandler(lex, &stubEmbedder{}, &stubVectors{}, &stubRecords{}, &stubIndexer{})

	body := `{"query": "+almaqah \"bʿl ʾwm\"", "filters": {"period": "Early Sabaic"}, "size": 10}`
	req := httptest.NewRequest(http.MethodPost, "/search", strings.NewReader(body))
	w := httptest.NewRecorder()
	h.Search(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `+almaqah "bʿl ʾwm"`, lex.got.Query)
	assert.Equal(t, 10, lex.got.Size)

	var resp struct {
		Data struct {
			Hits   []search.Hit `json:"hits"`
			Total  int64        `json:"total"`
			Engine string       `json:"engine"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(1), resp.Data.Total)
	assert.Equal(t, "opensearch", resp.Data.Engine)
	require.Len(t, resp.Data.Hits, 1)
	assert.Equal(t, "RES 4176", resp.Data.Hits[0].Title)
}

func TestHandler_Search_EngineFailure(t *testing.T) {
	lex := &stubLexical{err: errors.New("both engines down")}
	h := newHandler(lex, &stubEmbedder{}, &stubVectors{}, &stubRecords{}, &stubIndexer{})

	req := httptest.NewRequest(http.MethodPost, "/search", strings.NewReader(`{"query": "x"}`))
	w := httptest.NewRecorder()
	h.Search(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "INTERNAL_ERROR")
}

func TestHandler_Semantic(t *testing.T) {
	chunks := &stubVectors{hits: []vector.ChunkHit{
		{ChunkID: 1, EpigraphID: 42, Title: "RES 4176", Similarity: 0.88},
	}}
	h := newHandler(&stubLexical{}, &stubEmbedder{vec: []float32{0.1}}, chunks, &stubRecords{}, &stubIndexer{})

	body := `{"query": "dedications to Almaqah", "limit": 5, "chunk_types": ["translation"]}`
	req := httptest.NewRequest(http.MethodPost, "/search/semantic", strings.NewReader(body))
	w := httptest.NewRecorder()
	h.Semantic(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 5, chunks.gotLimit)
	assert.InDelta(t, 1.0, chunks.gotDist, 1e-9, "default threshold")
	assert.True(t, chunks.gotFilter.PublishedOnly)
	assert.Equal(t, []string{"translation"}, chunks.gotFilter.ChunkTypes)
	assert.Contains(t, w.Body.String(), `"count":1`)
}

func TestHandler_Semantic_RequiresQuery(t *testing.T) {
	h := newHandler(&stubLexical{}, &stubEmbedder{}, &stubVectors{}, &stubRecords{}, &stubIndexer{})

	req := httptest.NewRequest(http.MethodPost, "/search/semantic", strings.NewReader(`{"query": "  "}`))
	w := httptest.NewRecorder()
	h.Semantic(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "VALIDATION_ERROR")
}

func TestHandler_Similar(t *testing.T) {
	vec := &stubVectors{epigraphHits: []vector.EpigraphHit{
		{EpigraphID: 7, Title: "CIH 40", Similarity: 0.91},
	}}
	rec := &stubRecords{byID: map[int]*epigraph.Epigraph{
		42: {ID: 42, Title: "RES 4176", Period: "Early Sabaic", Published: true},
	}}
	h := newHandler(&stubLexical{}, &stubEmbedder{vec: []float32{0.1}}, vec, rec, &stubIndexer{})

	req := httptest.NewRequest(http.MethodGet, "/search/similar/42?limit=5", nil)
	req.SetPathValue("id", "42")
	w := httptest.NewRecorder()
	h.Similar(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 42, vec.gotExclude, "source record excluded from its own results")
	assert.Equal(t, 5, vec.gotEpiLimit)
	assert.Contains(t, w.Body.String(), `"count":1`)
	assert.Contains(t, w.Body.String(), "CIH 40")
}

func TestHandler_Similar_NotFound(t *testing.T) {
	h := newHandler(&stubLexical{}, &stubEmbedder{}, &stubVectors{}, &stubRecords{}, &stubIndexer{})

	req := httptest.NewRequest(http.MethodGet, "/search/similar/99", nil)
	req.SetPathValue("id", "99")
	w := httptest.NewRecorder()
	h.Similar(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "NOT_FOUND")
}

func TestHandler_Index(t *testing.T) {
	idx := &stubIndexer{}
	rec := &stubRecords{byID: map[int]*epigraph.Epigraph{42: {ID: 42, Title: "RES 4176"}}}
	h := newHandler(&stubLexical{}, &stubEmbedder{}, &stubVectors{}, rec, idx)

	req := httptest.NewRequest(http.MethodPost, "/search/index/42", nil)
	req.SetPathValue("id", "42")
	w := httptest.NewRecorder()
	h.Index(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []int{42}, idx.indexed)
}

func TestHandler_Index_NotFound(t *testing.T) {
	h := newHandler(&stubLexical{}, &stubEmbedder{}, &stubVectors{}, &stubRecords{}, &stubIndexer{})

	req := httptest.NewRequest(http.MethodPost, "/search/index/99", nil)
	req.SetPathValue("id", "99")
	w := httptest.NewRecorder()
	h.Index(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandler_RemoveIndex(t *testing.T) {
	idx := &stubIndexer{}
	h := newHandler(&stubLexical{}, &stubEmbedder{}, &stubVectors{}, &stubRecords{}, idx)

	req := httptest.NewRequest(http.MethodDelete, "/search/index/42", nil)
	req.SetPathValue("id", "42")
	w := httptest.NewRecorder()
	h.RemoveIndex(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []int{42}, idx.deleted)
}

func TestHandler_Reindex(t *testing.T) {
	idx := &stubIndexer{failIDs: nil}
	rec := &stubRecords{listIDs: []int{1, 2, 3}}
	h := newHandler(&stubLexical{}, &stubEmbedder{}, &stubVectors{}, rec, idx)

	req := httptest.NewRequest(http.MethodPost, "/search/reindex", strings.NewReader(""))
	w := httptest.NewRecorder()
	h.Reindex(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, idx.bulked, 1)
	assert.Len(t, idx.bulked[0], 3)

	var resp struct {
		Data struct {
			Total   int   `json:"total"`
			Indexed int   `json:"indexed"`
			Failed  []int `json:"failed"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.Data.Total)
	assert.Equal(t, 3, resp.Data.Indexed)
	assert.Empty(t, resp.Data.Failed)
}

func TestHandler_Reindex_ReportsFailures(t *testing.T) {
	idx := &stubIndexer{failIDs: []int{2}}
	rec := &stubRecords{listIDs: []int{1, 2, 3}}
	h := newHandler(&stubLexical{}, &stubEmbedder{}, &stubVectors{}, rec, idx)

	req := httptest.NewRequest(http.MethodPost, "/search/reindex", strings.NewReader(`{"published_only": true}`))
	w := httptest.NewRecorder()
	h.Reindex(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"indexed":2`)
	assert.Contains(t, w.Body.String(), `"failed":[2]`)
}

func TestHandler_Semantic_EmbeddingFailure(t *testing.T) {
	h := newHandler(&stubLexical{}, &stubEmbedder{err: errors.New("down")}, &stubVectors{}, &stubRecords{}, &stubIndexer{})

	req := httptest.NewRequest(http.MethodPost, "/search/semantic", strings.NewReader(`{"query": "x"}`))
	w := httptest.NewRecorder()
	h.Semantic(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
