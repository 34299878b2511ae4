package worker

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/nsqio/go-nsq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"hudhud/backend/internal/epigraph"
	"hudhud/backend/internal/progress"
)

var errAlwaysFail = errors.New("publish failed")

func taskMessage(t *testing.T, task ChunkTask) *nsq.Message {
	t.Helper()
	body, err := json.Marshal(task)
	require.NoError(t, err)
	return &nsq.Message{ID: nsq.MessageID{'1'}, Body: body}
}

func sampleRecord() *epigraph.Epigraph {
	return &epigraph.Epigraph{ID: 42, Title: "RES 4176", Text: "ʾlmqh bʿl ʾwm", Published: true}
}

func sampleChunks() []epigraph.Chunk {
	return []epigraph.Chunk{
		{EpigraphID: 42, Text: "RES 4176: ʾlmqh bʿl ʾwm", Type: epigraph.ChunkTypeText, Index: 0},
	}
}

func TestChunkConsumer_DropsMalformedMessages(t *testing.T) {
	c := NewChunkConsumer(new(mockEpigraphStore), new(mockChunkStore), &stubChunker{}, nil, new(mockVectorWriter), nil)

	assert.NoError(t, c.HandleMessage(&nsq.Message{Body: nil}))
	assert.NoError(t, c.HandleMessage(&nsq.Message{Body: []byte("not json")}))
	assert.NoError(t, c.HandleMessage(&nsq.Message{Body: []byte("{}")}), "missing epigraph id is dropped, not retried")
}

func TestChunkConsumer_SkipsAlreadyChunked(t *testing.T) {
	epigraphs := new(mockEpigraphStore)
	chunks := new(mockChunkStore)
	reporter := &recordingReporter{}
	epigraphs.On("GetByID", mock.Anything, 42).Return(sampleRecord(), nil)
	chunks.On("GetByEpigraph", mock.Anything, 42).Return(sampleChunks(), nil)

	c := NewChunkConsumer(epigraphs, chunks, &stubChunker{}, nil, new(mockVectorWriter), reporter)
	err := c.HandleMessage(taskMessage(t, ChunkTask{EpigraphID: 42, RunID: "run-1", Total: 10}))

	assert.NoError(t, err)
	chunks.AssertNotCalled(t, "ReplaceForEpigraph", mock.Anything, mock.Anything, mock.Anything)
	assert.Equal(t, []progress.Status{progress.StatusRunning}, reporter.reports)
}

func TestChunkConsumer_ForceRechunks(t *testing.T) {
	epigraphs := new(mockEpigraphStore)
	chunks := new(mockChunkStore)
	vectors := new(mockVectorWriter)
	saved := sampleChunks()
	saved[0].ID = 7

	epigraphs.On("GetByID", mock.Anything, 42).Return(sampleRecord(), nil)
	chunks.On("ReplaceForEpigraph", mock.Anything, 42, mock.Anything).Return(saved, nil)
	vectors.On("DeleteForEpigraph", mock.Anything, 42).Return(nil)
	vectors.On("StoreChunks", mock.Anything, saved, true).Return(nil)

	c := NewChunkConsumer(epigraphs, chunks, &stubChunker{chunks: sampleChunks()}, nil, vectors, nil)
	err := c.HandleMessage(taskMessage(t, ChunkTask{EpigraphID: 42, Force: true}))

	assert.NoError(t, err)
	chunks.AssertNotCalled(t, "GetByEpigraph", mock.Anything, mock.Anything)
	vectors.AssertExpectations(t)
}

func TestChunkConsumer_InlineEmbeddingFailureIsNotFatal(t *testing.T) {
	epigraphs := new(mockEpigraphStore)
	chunks := new(mockChunkStore)
	vectors := new(mockVectorWriter)
	embedder := &stubEmbedder{err: errors.New("provider down")}

	epigraphs.On("GetByID", mock.Anything, 42).Return(sampleRecord(), nil)
	chunks.On("ReplaceForEpigraph", mock.Anything, 42, mock.MatchedBy(func(cs []epigraph.Chunk) bool {
		return len(cs) == 1 && cs[0].Embedding == nil
	})).Return(sampleChunks(), nil)
	vectors.On("DeleteForEpigraph", mock.Anything, 42).Return(nil)
	vectors.On("StoreChunks", mock.Anything, mock.Anything, true).Return(nil)

	c := NewChunkConsumer(epigraphs, chunks, &stubChunker{chunks: sampleChunks()}, embedder, vectors, nil)
	err := c.HandleMessage(taskMessage(t, ChunkTask{EpigraphID: 42, Force: true, Embed: true}))

	assert.NoError(t, err)
	assert.Equal(t, 2, embedder.calls, "chunk embed then summary embed")
	chunks.AssertExpectations(t)
	vectors.AssertNotCalled(t, "StoreEpigraphSummary", mock.Anything, mock.Anything, mock.Anything)
}

func TestChunkConsumer_InlineEmbeddingAttachesVectors(t *testing.T) {
	epigraphs := new(mockEpigraphStore)
	chunks := new(mockChunkStore)
	vectors := new(mockVectorWriter)
	embedder := &stubEmbedder{vec: []float32{0.1, 0.2}}

	epigraphs.On("GetByID", mock.Anything, 42).Return(sampleRecord(), nil)
	chunks.On("ReplaceForEpigraph", mock.Anything, 42, mock.MatchedBy(func(cs []epigraph.Chunk) bool {
		return len(cs) == 1 && len(cs[0].Embedding) == 2
	})).Return(sampleChunks(), nil)
	vectors.On("DeleteForEpigraph", mock.Anything, 42).Return(nil)
	vectors.On("StoreChunks", mock.Anything, mock.Anything, true).Return(nil)
	vectors.On("StoreEpigraphSummary", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	c := NewChunkConsumer(epigraphs, chunks, &stubChunker{chunks: sampleChunks()}, embedder, vectors, nil)
	err := c.HandleMessage(taskMessage(t, ChunkTask{EpigraphID: 42, Force: true, Embed: true}))

	assert.NoError(t, err)
	chunks.AssertExpectations(t)
}

func TestChunkConsumer_RefreshesSummaryVector(t *testing.T) {
	epigraphs := new(mockEpigraphStore)
	chunks := new(mockChunkStore)
	vectors := new(mockVectorWriter)
	embedder := &stubEmbedder{vec: []float32{0.1, 0.2}}

	epigraphs.On("GetByID", mock.Anything, 42).Return(sampleRecord(), nil)
	chunks.On("ReplaceForEpigraph", mock.Anything, 42, mock.Anything).Return(sampleChunks(), nil)
	vectors.On("DeleteForEpigraph", mock.Anything, 42).Return(nil)
	vectors.On("StoreChunks", mock.Anything, mock.Anything, true).Return(nil)
	vectors.On("StoreEpigraphSummary", mock.Anything, mock.MatchedBy(func(e *epigraph.Epigraph) bool {
		return e.ID == 42
	}), []float32{0.1, 0.2}).Return(nil)

	c := NewChunkConsumer(epigraphs, chunks, &stubChunker{chunks: sampleChunks()}, embedder, vectors, nil)
	err := c.HandleMessage(taskMessage(t, ChunkTask{EpigraphID: 42, Force: true}))

	assert.NoError(t, err)
	vectors.AssertExpectations(t)
}

func TestChunkConsumer_MissingEpigraphIsDropped(t *testing.T) {
	epigraphs := new(mockEpigraphStore)
	reporter := &recordingReporter{}
	epigraphs.On("GetByID", mock.Anything, 42).Return(nil, nil)

	c := NewChunkConsumer(epigraphs, new(mockChunkStore), &stubChunker{}, nil, new(mockVectorWriter), reporter)
	err := c.HandleMessage(taskMessage(t, ChunkTask{EpigraphID: 42, RunID: "run-1"}))

	assert.NoError(t, err, "a deleted record must not requeue forever")
	assert.Equal(t, []string{"epigraph not found"}, reporter.errs)
}

func TestChunkConsumer_StoreFailureRequeues(t *testing.T) {
	epigraphs := new(mockEpigraphStore)
	chunks := new(mockChunkStore)
	epigraphs.On("GetByID", mock.Anything, 42).Return(sampleRecord(), nil)
	chunks.On("ReplaceForEpigraph", mock.Anything, 42, mock.Anything).Return(nil, errors.New("db down"))

	c := NewChunkConsumer(epigraphs, chunks, &stubChunker{chunks: sampleChunks()}, nil, new(mockVectorWriter), nil)
	err := c.HandleMessage(taskMessage(t, ChunkTask{EpigraphID: 42, Force: true}))

	assert.Error(t, err)
}
