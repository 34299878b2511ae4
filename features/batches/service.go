package batches

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"hudhud/backend/internal/embedding"
	"hudhud/backend/internal/epigraph"
	"hudhud/backend/internal/worker"
)

var (
	ErrJobNotFound    = errors.New("batch job not found")
	ErrNotCompleted   = errors.New("batch job is not completed")
	ErrAlreadyApplied = errors.New("batch job already applied")
	ErrNothingToEmbed = errors.New("no unembedded chunks")
)

// unembeddedScanLimit bounds one Create call. A corpus larger than this is
// drained over successive calls once earlier jobs are applied.
const unembeddedScanLimit = 200000

// Service drives the offline embedding lifecycle: submit unembedded chunks
// to the provider, poll job state, and apply completed results back to the
// relational store and the vector index.
type Service struct {
	repo      Repository
	provider  embedding.BatchProvider
	chunks    epigraph.ChunkStore
	epigraphs epigraph.Store
	vectors   worker.VectorWriter
}

func NewService(
	repo Repository,
	provider embedding.BatchProvider,
	chunks epigraph.ChunkStore,
	epigraphs epigraph.Store,
	vectors worker.VectorWriter,
) *Service {
	return &Service{
		repo:      repo,
		provider:  provider,
		chunks:    chunks,
		epigraphs: epigraphs,
		vectors:   vectors,
	}
}

// CreateResult summarizes a submitted run.
type CreateResult struct {
	Jobs          []Job   `json:"jobs"`
	TotalChunks   int     `json:"total_chunks"`
	TotalTokens   int     `json:"total_tokens"`
	EstimatedCost float64 `json:"estimated_cost_usd"`
}

// Create submits every unembedded chunk as one or more provider batches.
// maxBatches of zero means no cap.
func (s *Service) Create(ctx context.Context, maxBatches int) (*CreateResult, error) {
	pending, err := s.chunks.ListUnembedded(ctx, unembeddedScanLimit)
	if err != nil {
		return nil, fmt.Errorf("create batches: %w", err)
	}
	if len(pending) == 0 {
		return nil, ErrNothingToEmbed
	}

	requests := make([]embedding.BatchRequest, len(pending))
	for i, c := range pending {
		requests[i] = embedding.BatchRequest{ChunkID: c.ID, Text: c.Text}
	}

	partitions := embedding.PartitionRequests(requests)
	if maxBatches > 0 && len(partitions) > maxBatches {
		partitions = partitions[:maxBatches]
	}

	result := &CreateResult{}
	for _, part := range partitions {
		providerID, err := s.provider.CreateBatch(ctx, part)
		if err != nil {
			if len(result.Jobs) == 0 {
				return nil, fmt.Errorf("create batches: %w", err)
			}
			// Jobs already submitted stay tracked; the caller retries
			// for the remainder.
			slog.ErrorContext(ctx, "batch submission failed partway",
				"submitted", len(result.Jobs), "error", err)
			break
		}

		job := &Job{
			ProviderID: providerID,
			Status:     embedding.BatchQueued,
			InputCount: len(part),
			ChunkIDs:   chunkIDs(part),
		}
		if err := s.repo.Save(ctx, job); err != nil {
			return nil, fmt.Errorf("create batches: persist job %s: %w", providerID, err)
		}

		result.Jobs = append(result.Jobs, *job)
		result.TotalChunks += len(part)
	}

	// Partitions preserve order, so the submitted chunks are a prefix of
	// the pending list.
	for _, c := range pending[:result.TotalChunks] {
		result.TotalTokens += c.TokenCount
	}
	result.EstimatedCost = embedding.EstimateCost(result.TotalTokens, true)
	return result, nil
}

// Get returns the job, refreshing non-terminal state from the provider.
func (s *Service) Get(ctx context.Context, id int) (*Job, error) {
	job, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, ErrJobNotFound
	}
	if job.Status.Terminal() || job.Applied() {
		return job, nil
	}

	status, err := s.provider.GetBatch(ctx, job.ProviderID)
	if err != nil {
		// Stale local state is still an answer.
		slog.WarnContext(ctx, "failed to poll batch, returning last known state",
			"job_id", id, "provider_id", job.ProviderID, "error", err)
		return job, nil
	}

	job.Status = status.State
	job.Succeeded = int(status.Completed)
	job.Failed = int(status.Failed)
	job.OutputFile = status.OutputFileID
	job.ErrorFile = status.ErrorFileID
	if err := s.repo.UpdateStatus(ctx, job); err != nil {
		return nil, fmt.Errorf("get batch %d: persist status: %w", id, err)
	}
	return job, nil
}

func (s *Service) List(ctx context.Context) ([]Job, error) {
	return s.repo.List(ctx)
}

// ApplyResult summarizes one apply pass.
type ApplyResult struct {
	JobID     int `json:"job_id"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Mirrored  int `json:"mirrored"`
}

// Apply writes a completed job's vectors back to the chunk store and
// mirrors the embedded chunks into the vector index. Chunks the provider
// rejected are counted and left unembedded for a later run.
func (s *Service) Apply(ctx context.Context, id int) (*ApplyResult, error) {
	job, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Applied() {
		return nil, ErrAlreadyApplied
	}
	if !job.Status.Succeeded() {
		return nil, fmt.Errorf("%w: status is %s", ErrNotCompleted, job.Status)
	}

	requests := make([]embedding.BatchRequest, len(job.ChunkIDs))
	for i, chunkID := range job.ChunkIDs {
		requests[i] = embedding.BatchRequest{ChunkID: chunkID}
	}
	status := &embedding.BatchStatus{
		ProviderID:   job.ProviderID,
		State:        job.Status,
		OutputFileID: job.OutputFile,
		ErrorFileID:  job.ErrorFile,
	}

	results, err := s.provider.FetchResults(ctx, status, requests)
	if err != nil {
		return nil, fmt.Errorf("apply batch %d: %w", id, err)
	}

	applied := &ApplyResult{JobID: id}
	var embeddedIDs []int
	for _, res := range results {
		if res.Vector == nil {
			applied.Failed++
			continue
		}
		if err := s.chunks.SetEmbedding(ctx, res.ChunkID, res.Vector); err != nil {
			return nil, fmt.Errorf("apply batch %d: chunk %d: %w", id, res.ChunkID, err)
		}
		applied.Succeeded++
		embeddedIDs = append(embeddedIDs, res.ChunkID)
	}

	mirrored, err := s.mirror(ctx, embeddedIDs)
	if err != nil {
		return nil, fmt.Errorf("apply batch %d: %w", id, err)
	}
	applied.Mirrored = mirrored

	if err := s.repo.MarkApplied(ctx, id, applied.Succeeded, applied.Failed); err != nil {
		return nil, fmt.Errorf("apply batch %d: %w", id, err)
	}
	return applied, nil
}

// mirror pushes freshly embedded chunks into the vector index, grouped by
// epigraph so each group carries its own publication flag.
func (s *Service) mirror(ctx context.Context, chunkIDs []int) (int, error) {
	if len(chunkIDs) == 0 {
		return 0, nil
	}
	chunks, err := s.chunks.GetByIDs(ctx, chunkIDs)
	if err != nil {
		return 0, err
	}

	byEpigraph := map[int][]epigraph.Chunk{}
	var epigraphIDs []int
	for _, c := range chunks {
		if _, seen := byEpigraph[c.EpigraphID]; !seen {
			epigraphIDs = append(epigraphIDs, c.EpigraphID)
		}
		byEpigraph[c.EpigraphID] = append(byEpigraph[c.EpigraphID], c)
	}

	records, err := s.epigraphs.GetByIDs(ctx, epigraphIDs)
	if err != nil {
		return 0, err
	}
	published := map[int]bool{}
	for _, e := range records {
		published[e.ID] = e.Published
	}

	mirrored := 0
	for epigraphID, group := range byEpigraph {
		if err := s.vectors.StoreChunks(ctx, group, published[epigraphID]); err != nil {
			return mirrored, err
		}
		mirrored += len(group)
	}
	return mirrored, nil
}

func chunkIDs(requests []embedding.BatchRequest) []int {
	ids := make([]int, len(requests))
	for i, req := range requests {
		ids[i] = req.ChunkID
	}
	return ids
}
