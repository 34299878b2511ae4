package openai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"hudhud/backend/internal/embedding"
	"hudhud/backend/internal/token"
)

// BatchProvider drives the OpenAI batch API for offline embedding jobs:
// upload a JSONL request file, create the batch, poll it, download results.
type BatchProvider struct {
	client  openai.Client
	counter token.Counter
	model   string
}

func NewBatchProvider(apiKey string, counter token.Counter, model string, opts ...option.RequestOption) *BatchProvider {
	if model == "" {
		model = DefaultEmbeddingModel
	}
	return &BatchProvider{
		client:  openai.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)...),
		counter: counter,
		model:   model,
	}
}

type batchRequestLine struct {
	CustomID string         `json:"custom_id"`
	Method   string         `json:"method"`
	URL      string         `json:"url"`
	Body     batchEmbedBody `json:"body"`
}

type batchEmbedBody struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type batchOutputLine struct {
	CustomID string `json:"custom_id"`
	Response struct {
		StatusCode int `json:"status_code"`
		Body       struct {
			Data []struct {
				Embedding []float64 `json:"embedding"`
			} `json:"data"`
		} `json:"body"`
	} `json:"response"`
	Error json.RawMessage `json:"error"`
}

func customID(chunkID int) string { return "chunk-" + strconv.Itoa(chunkID) }

func parseCustomID(s string) (int, bool) {
	id, err := strconv.Atoi(strings.TrimPrefix(s, "chunk-"))
	return id, err == nil
}

// CreateBatch uploads the request file and opens a 24h-window batch against
// the embeddings endpoint, returning the provider batch id.
func (p *BatchProvider) CreateBatch(ctx context.Context, requests []embedding.BatchRequest) (string, error) {
	if len(requests) == 0 {
		return "", fmt.Errorf("%w: empty batch", embedding.ErrProvider)
	}
	if len(requests) > embedding.MaxRequestsPerBatch {
		return "", fmt.Errorf("%w: %d requests exceeds per-batch cap %d",
			embedding.ErrProvider, len(requests), embedding.MaxRequestsPerBatch)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, req := range requests {
		line := batchRequestLine{
			CustomID: customID(req.ChunkID),
			Method:   "POST",
			URL:      "/v1/embeddings",
			Body: batchEmbedBody{
				Model: p.model,
				Input: p.counter.Truncate(req.Text, maxInputTokens),
			},
		}
		if err := enc.Encode(line); err != nil {
			return "", fmt.Errorf("encode batch request: %w", err)
		}
	}

	file, err := p.client.Files.New(ctx, openai.FileNewParams{
		File:    openai.File(&buf, "embedding_requests.jsonl", "application/jsonl"),
		Purpose: openai.FilePurposeBatch,
	})
	if err != nil {
		return "", fmt.Errorf("%w: upload batch file: %v", embedding.ErrProvider, err)
	}

	batch, err := p.client.Batches.New(ctx, openai.BatchNewParams{
		CompletionWindow: openai.BatchNewParamsCompletionWindow24h,
		Endpoint:         openai.BatchNewParamsEndpointV1Embeddings,
		InputFileID:      file.ID,
	})
	if err != nil {
		return "", fmt.Errorf("%w: create batch: %v", embedding.ErrProvider, err)
	}

	slog.InfoContext(ctx, "embedding batch created",
		"batch_id", batch.ID, "requests", len(requests), "input_file", file.ID)
	return batch.ID, nil
}

func (p *BatchProvider) GetBatch(ctx context.Context, providerID string) (*embedding.BatchStatus, error) {
	batch, err := p.client.Batches.Get(ctx, providerID)
	if err != nil {
		return nil, fmt.Errorf("%w: get batch %s: %v", embedding.ErrProvider, providerID, err)
	}
	return &embedding.BatchStatus{
		ProviderID:   batch.ID,
		State:        mapBatchState(batch.Status),
		Total:        batch.RequestCounts.Total,
		Completed:    batch.RequestCounts.Completed,
		Failed:       batch.RequestCounts.Failed,
		OutputFileID: batch.OutputFileID,
		ErrorFileID:  batch.ErrorFileID,
	}, nil
}

// FetchResults downloads the output file and matches lines back to chunk
// ids. Every request gets an entry; rejected or missing items come back
// with a nil vector.
func (p *BatchProvider) FetchResults(ctx context.Context, status *embedding.BatchStatus, requests []embedding.BatchRequest) ([]embedding.BatchResult, error) {
	if status.OutputFileID == "" {
		return nil, fmt.Errorf("%w: batch %s has no output file", embedding.ErrProvider, status.ProviderID)
	}

	resp, err := p.client.Files.Content(ctx, status.OutputFileID)
	if err != nil {
		return nil, fmt.Errorf("%w: download batch output: %v", embedding.ErrProvider, err)
	}
	defer resp.Body.Close()

	vectors := make(map[int][]float32, len(requests))
	scanner := bufio.NewScanner(resp.Body)
	// Each line carries a full 3072-dim vector as JSON floats.
	scanner.Buffer(make([]byte, 0, 1<<20), 16<<20)
	for scanner.Scan() {
		var line batchOutputLine
		if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
			slog.WarnContext(ctx, "skipping malformed batch output line", "error", err)
			continue
		}
		chunkID, ok := parseCustomID(line.CustomID)
		if !ok {
			continue
		}
		if line.Response.StatusCode != 200 || len(line.Response.Body.Data) == 0 {
			continue
		}
		vectors[chunkID] = toFloat32(line.Response.Body.Data[0].Embedding)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: read batch output: %v", embedding.ErrProvider, err)
	}

	out := make([]embedding.BatchResult, len(requests))
	for i, req := range requests {
		out[i] = embedding.BatchResult{ChunkID: req.ChunkID, Vector: vectors[req.ChunkID]}
	}
	return out, nil
}

func (p *BatchProvider) CancelBatch(ctx context.Context, providerID string) error {
	if _, err := p.client.Batches.Cancel(ctx, providerID); err != nil {
		return fmt.Errorf("%w: cancel batch %s: %v", embedding.ErrProvider, providerID, err)
	}
	return nil
}

func mapBatchState(s openai.BatchStatus) embedding.BatchState {
	switch s {
	case openai.BatchStatusValidating:
		return embedding.BatchValidating
	case openai.BatchStatusInProgress:
		return embedding.BatchInProgress
	case openai.BatchStatusFinalizing:
		return embedding.BatchFinalizing
	case openai.BatchStatusCompleted:
		return embedding.BatchCompleted
	case openai.BatchStatusFailed:
		return embedding.BatchFailed
	case openai.BatchStatusExpired:
		return embedding.BatchExpired
	case openai.BatchStatusCancelled:
		return embedding.BatchCancelled
	case openai.BatchStatusCancelling:
		// Still transitioning; callers keep polling until cancelled.
		return embedding.BatchInProgress
	default:
		return embedding.BatchQueued
	}
}
