package worker

import (
	"context"

	"github.com/stretchr/testify/mock"

	"hudhud/backend/internal/epigraph"
	"hudhud/backend/internal/progress"
)

type mockEpigraphStore struct {
	mock.Mock
}

func (m *mockEpigraphStore) GetByID(ctx context.Context, id int) (*epigraph.Epigraph, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*epigraph.Epigraph), args.Error(1)
}

func (m *mockEpigraphStore) GetByIDs(ctx context.Context, ids []int) ([]epigraph.Epigraph, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]epigraph.Epigraph), args.Error(1)
}

func (m *mockEpigraphStore) FindByTitle(ctx context.Context, title string, limit int) ([]epigraph.Epigraph, error) {
	args := m.Called(ctx, title, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]epigraph.Epigraph), args.Error(1)
}

func (m *mockEpigraphStore) ListIDs(ctx context.Context, publishedOnly bool) ([]int, error) {
	args := m.Called(ctx, publishedOnly)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]int), args.Error(1)
}

type mockChunkStore struct {
	mock.Mock
}

func (m *mockChunkStore) ReplaceForEpigraph(ctx context.Context, epigraphID int, chunks []epigraph.Chunk) ([]epigraph.Chunk, error) {
	args := m.Called(ctx, epigraphID, chunks)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]epigraph.Chunk), args.Error(1)
}

func (m *mockChunkStore) GetByEpigraph(ctx context.Context, epigraphID int) ([]epigraph.Chunk, error) {
	args := m.Called(ctx, epigraphID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]epigraph.Chunk), args.Error(1)
}

func (m *mockChunkStore) GetByIDs(ctx context.Context, ids []int) ([]epigraph.Chunk, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]epigraph.Chunk), args.Error(1)
}

func (m *mockChunkStore) ListUnembedded(ctx context.Context, limit int) ([]epigraph.Chunk, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]epigraph.Chunk), args.Error(1)
}

func (m *mockChunkStore) SetEmbedding(ctx context.Context, chunkID int, vector []float32) error {
	return m.Called(ctx, chunkID, vector).Error(0)
}

func (m *mockChunkStore) DeleteForEpigraph(ctx context.Context, epigraphID int) (int, error) {
	args := m.Called(ctx, epigraphID)
	return args.Int(0), args.Error(1)
}

func (m *mockChunkStore) Stats(ctx context.Context) (*epigraph.ChunkStats, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*epigraph.ChunkStats), args.Error(1)
}

type mockVectorWriter struct {
	mock.Mock
}

func (m *mockVectorWriter) StoreChunks(ctx context.Context, chunks []epigraph.Chunk, published bool) error {
	return m.Called(ctx, chunks, published).Error(0)
}

func (m *mockVectorWriter) StoreEpigraphSummary(ctx context.Context, e *epigraph.Epigraph, vec []float32) error {
	return m.Called(ctx, e, vec).Error(0)
}

func (m *mockVectorWriter) DeleteForEpigraph(ctx context.Context, epigraphID int) error {
	return m.Called(ctx, epigraphID).Error(0)
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

type recordingReporter struct {
	reports []progress.Status
	errs    []string
}

func (r *recordingReporter) Report(_ context.Context, _ string, _, _ int, status progress.Status, errMsg string) {
	r.reports = append(r.reports, status)
	r.errs = append(r.errs, errMsg)
}

type stubPublisher struct {
	published [][]byte
	topics    []string
	failAfter int // fail every publish once this many succeeded; <0 never fails
}

func (s *stubPublisher) Publish(topic string, body []byte) error {
	if s.failAfter >= 0 && len(s.published) >= s.failAfter {
		return errAlwaysFail
	}
	s.topics = append(s.topics, topic)
	s.published = append(s.published, body)
	return nil
}
