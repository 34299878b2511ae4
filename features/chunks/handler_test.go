package chunks_test

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

	"hudhud/backend/features/chunks"
	"hudhud/backend/internal/epigraph"
)

type stubEpigraphs struct {
	byID    map[int]*epigraph.Epigraph
	listIDs []int
	listErr error
}

func (s *stubEpigraphs) GetByID(_ context.Context, id int) (*epigraph.Epigraph, error) {
	return s.byID[id], nil
}

func (s *stubEpigraphs) GetByIDs(_ context.Context, _ []int) ([]epigraph.Epigraph, error) {
	return nil, nil
}

func (s *stubEpigraphs) FindByTitle(_ context.Context, _ string, _ int) ([]epigraph.Epigraph, error) {
	return nil, nil
}

func (s *stubEpigraphs) ListIDs(_ context.Context, _ bool) ([]int, error) {
	return s.listIDs, s.listErr
}

type stubChunkStore struct {
	existing   []epigraph.Chunk
	saved      []epigraph.Chunk
	replaced   []epigraph.Chunk
	deleted    int
	deletedFor []int
	stats      *epigraph.ChunkStats
	statsErr   error
}

func (s *stubChunkStore) ReplaceForEpigraph(_ context.Context, epigraphID int, in []epigraph.Chunk) ([]epigraph.Chunk, error) {
	s.replaced = in
	out := make([]epigraph.Chunk, len(in))
	copy(out, in)
	for i := range out {
		out[i].ID = i + 1
		out[i].EpigraphID = epigraphID
	}
	s.saved = out
	return out, nil
}

func (s *stubChunkStore) GetByEpigraph(_ context.Context, _ int) ([]epigraph.Chunk, error) {
	return s.existing, nil
}

func (s *stubChunkStore) GetByIDs(_ context.Context, _ []int) ([]epigraph.Chunk, error) {
	return nil, nil
}

func (s *stubChunkStore) ListUnembedded(_ context.Context, _ int) ([]epigraph.Chunk, error) {
	return nil, nil
}

func (s *stubChunkStore) SetEmbedding(_ context.Context, _ int, _ []float32) error {
	return nil
}

func (s *stubChunkStore) DeleteForEpigraph(_ context.Context, epigraphID int) (int, error) {
	s.deletedFor = append(s.deletedFor, epigraphID)
	return s.deleted, nil
}

func (s *stubChunkStore) Stats(_ context.Context) (*epigraph.ChunkStats, error) {
	return s.stats, s.statsErr
}

type stubChunker struct {
	chunks []epigraph.Chunk
}

func (s *stubChunker) ChunkEpigraph(_ context.Context, _ *epigraph.Epigraph) []epigraph.Chunk {
	return s.chunks
}

type stubEmbedder struct {
	vec   []float32
	err   error
	calls int
}

func (s *stubEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	s.calls++
	return s.vec, s.err
}

type stubVectors struct {
	stored     []epigraph.Chunk
	summaries  []int
	deletedFor []int
}

func (s *stubVectors) StoreChunks(_ context.Context, cs []epigraph.Chunk, _ bool) error {
	s.stored = cs
	return nil
}

func (s *stubVectors) StoreEpigraphSummary(_ context.Context, e *epigraph.Epigraph, _ []float32) error {
	s.summaries = append(s.summaries, e.ID)
	return nil
}

func (s *stubVectors) DeleteForEpigraph(_ context.Context, epigraphID int) error {
	s.deletedFor = append(s.deletedFor, epigraphID)
	return nil
}

type stubEnqueuer struct {
	runID  string
	failed []int
	err    error

	gotIDs   []int
	gotForce bool
	gotEmbed bool
}

func (s *stubEnqueuer) EnqueueRun(_ context.Context, ids []int, force, embed bool) (string, []int, error) {
	s.gotIDs = ids
	s.gotForce = force
	s.gotEmbed = embed
	return s.runID, s.failed, s.err
}

func newHandler(eps *stubEpigraphs, store *stubChunkStore, chunker *stubChunker, emb *stubEmbedder, vec *stubVectors, enq *stubEnqueuer) *chunks.Handler {
	return chunks.NewHandler(chunks.NewService(eps, store, chunker, emb, vec, enq))
}

func sampleEpigraph() *epigraph.Epigraph {
	return &epigraph.Epigraph{ID: 42, Title: "RES 4176", Published: true}
}

func TestHandler_ChunkEpigraph(t *testing.T) {
	store := &stubChunkStore{}
	vec := &stubVectors{}
	chunker := &stubChunker{chunks: []epigraph.Chunk{
		{Text: "first", Type: epigraph.ChunkTypeText, Index: 0, TokenCount: 3},
		{Text: "second", Type: epigraph.ChunkTypeTranslation, Index: 1, TokenCount: 4},
	}}
	h := newHandler(&stubEpigraphs{byID: map[int]*epigraph.Epigraph{42: sampleEpigraph()}},
		store, chunker, &stubEmbedder{}, vec, &stubEnqueuer{})

	req := httptest.NewRequest(http.MethodPost, "/chunks/epigraph/42", strings.NewReader(`{"force": true}`))
	req.SetPathValue("id", "42")
	w := httptest.NewRecorder()
	h.ChunkEpigraph(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"chunk_count":2`)
	assert.Equal(t, []int{42}, vec.deletedFor, "vector index cleared before re-store")
	require.Len(t, vec.stored, 2)
	assert.Equal(t, 42, vec.stored[0].EpigraphID)
	assert.Equal(t, []int{42}, vec.summaries, "record summary vector refreshed")
}

func TestHandler_ChunkEpigraph_SkipsWhenAlreadyChunked(t *testing.T) {
	store := &stubChunkStore{existing: []epigraph.Chunk{{ID: 7, EpigraphID: 42, Text: "kept"}}}
	vec := &stubVectors{}
	h := newHandler(&stubEpigraphs{byID: map[int]*epigraph.Epigraph{42: sampleEpigraph()}},
		store, &stubChunker{}, &stubEmbedder{}, vec, &stubEnqueuer{})

	req := httptest.NewRequest(http.MethodPost, "/chunks/epigraph/42", strings.NewReader(`{}`))
	req.SetPathValue("id", "42")
	w := httptest.NewRecorder()
	h.ChunkEpigraph(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"chunk_count":1`)
	assert.Nil(t, store.replaced, "existing chunks must not be replaced without force")
	assert.Empty(t, vec.deletedFor)
}

func TestHandler_ChunkEpigraph_InlineEmbedding(t *testing.T) {
	store := &stubChunkStore{}
	emb := &stubEmbedder{vec: []float32{0.1, 0.2}}
	chunker := &stubChunker{chunks: []epigraph.Chunk{{Text: "first"}, {Text: "second"}}}
	h := newHandler(&stubEpigraphs{byID: map[int]*epigraph.Epigraph{42: sampleEpigraph()}},
		store, chunker, emb, &stubVectors{}, &stubEnqueuer{})

	req := httptest.NewRequest(http.MethodPost, "/chunks/epigraph/42", strings.NewReader(`{"force": true, "embed": true}`))
	req.SetPathValue("id", "42")
	w := httptest.NewRecorder()
	h.ChunkEpigraph(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 3, emb.calls, "two chunks plus the record summary")
	require.Len(t, store.replaced, 2)
	assert.Equal(t, []float32{0.1, 0.2}, store.replaced[0].Embedding)
}

func TestHandler_ChunkEpigraph_NotFound(t *testing.T) {
	h := newHandler(&stubEpigraphs{byID: map[int]*epigraph.Epigraph{}},
		&stubChunkStore{}, &stubChunker{}, &stubEmbedder{}, &stubVectors{}, &stubEnqueuer{})

	req := httptest.NewRequest(http.MethodPost, "/chunks/epigraph/99", strings.NewReader(`{}`))
	req.SetPathValue("id", "99")
	w := httptest.NewRecorder()
	h.ChunkEpigraph(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "NOT_FOUND")
}

func TestHandler_ChunkEpigraph_RejectsBadID(t *testing.T) {
	h := newHandler(&stubEpigraphs{}, &stubChunkStore{}, &stubChunker{}, &stubEmbedder{}, &stubVectors{}, &stubEnqueuer{})

	req := httptest.NewRequest(http.MethodPost, "/chunks/epigraph/abc", nil)
	req.SetPathValue("id", "abc")
	w := httptest.NewRecorder()
	h.ChunkEpigraph(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandler_Bulk_DefaultsToAllPublished(t *testing.T) {
	enq := &stubEnqueuer{runID: "run-1", failed: []int{3}}
	h := newHandler(&stubEpigraphs{listIDs: []int{1, 2, 3}},
		&stubChunkStore{}, &stubChunker{}, &stubEmbedder{}, &stubVectors{}, enq)

	req := httptest.NewRequest(http.MethodPost, "/chunks/bulk", strings.NewReader(`{"embed": true}`))
	w := httptest.NewRecorder()
	h.Bulk(w, req)

	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, []int{1, 2, 3}, enq.gotIDs)
	assert.True(t, enq.gotEmbed)
	assert.False(t, enq.gotForce)

	var resp struct {
		Data struct {
			RunID    string `json:"run_id"`
			Enqueued int    `json:"enqueued"`
			Total    int    `json:"total"`
			Failed   []int  `json:"failed"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "run-1", resp.Data.RunID)
	assert.Equal(t, 3, resp.Data.Total)
	assert.Equal(t, 2, resp.Data.Enqueued)
	assert.Equal(t, []int{3}, resp.Data.Failed)
}

func TestHandler_Bulk_ExplicitIDs(t *testing.T) {
	enq := &stubEnqueuer{runID: "run-2"}
	h := newHandler(&stubEpigraphs{listIDs: []int{1, 2, 3}},
		&stubChunkStore{}, &stubChunker{}, &stubEmbedder{}, &stubVectors{}, enq)

	req := httptest.NewRequest(http.MethodPost, "/chunks/bulk", strings.NewReader(`{"epigraph_ids": [5, 9], "force": true}`))
	w := httptest.NewRecorder()
	h.Bulk(w, req)

	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, []int{5, 9}, enq.gotIDs)
	assert.True(t, enq.gotForce)
}

func TestHandler_Bulk_NothingToChunk(t *testing.T) {
	h := newHandler(&stubEpigraphs{listIDs: nil},
		&stubChunkStore{}, &stubChunker{}, &stubEmbedder{}, &stubVectors{}, &stubEnqueuer{})

	req := httptest.NewRequest(http.MethodPost, "/chunks/bulk", strings.NewReader(`{}`))
	w := httptest.NewRecorder()
	h.Bulk(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestHandler_Delete(t *testing.T) {
	store := &stubChunkStore{deleted: 5}
	vec := &stubVectors{}
	h := newHandler(&stubEpigraphs{}, store, &stubChunker{}, &stubEmbedder{}, vec, &stubEnqueuer{})

	req := httptest.NewRequest(http.MethodDelete, "/chunks/epigraph/42", nil)
	req.SetPathValue("id", "42")
	w := httptest.NewRecorder()
	h.Delete(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"deleted":5`)
	assert.Equal(t, []int{42}, store.deletedFor)
	assert.Equal(t, []int{42}, vec.deletedFor)
}

func TestHandler_Stats(t *testing.T) {
	store := &stubChunkStore{stats: &epigraph.ChunkStats{
		TotalChunks:         120,
		ChunksByType:        map[string]int{"epigraph_text": 70, "translation": 50},
		AverageTokens:       87.5,
		ChunksWithEmbedding: 90,
		UnembeddedTokens:    2_000_000,
	}}
	h := newHandler(&stubEpigraphs{}, store, &stubChunker{}, &stubEmbedder{}, &stubVectors{}, &stubEnqueuer{})

	req := httptest.NewRequest(http.MethodGet, "/chunks/stats", nil)
	w := httptest.NewRecorder()
	h.Stats(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data struct {
			TotalChunks           int     `json:"total_chunks"`
			EmbeddingCoverage     string  `json:"embedding_coverage"`
			EstimatedCostStandard float64 `json:"estimated_cost_standard_usd"`
			EstimatedCostBatch    float64 `json:"estimated_cost_batch_usd"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 120, resp.Data.TotalChunks)
	assert.Equal(t, "75.0%", resp.Data.EmbeddingCoverage)
	assert.InDelta(t, 0.26, resp.Data.EstimatedCostStandard, 1e-9)
	assert.InDelta(t, 0.13, resp.Data.EstimatedCostBatch, 1e-9)
}

func TestHandler_Stats_StoreFailure(t *testing.T) {
	store := &stubChunkStore{statsErr: errors.New("db down")}
	h := newHandler(&stubEpigraphs{}, store, &stubChunker{}, &stubEmbedder{}, &stubVectors{}, &stubEnqueuer{})

	req := httptest.NewRequest(http.MethodGet, "/chunks/stats", nil)
	w := httptest.NewRecorder()
	h.Stats(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
