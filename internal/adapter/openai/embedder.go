package openai

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"hudhud/backend/internal/embedding"
	"hudhud/backend/internal/token"
)

const (
	// DefaultEmbeddingModel is the synchronous and batch embedding model.
	DefaultEmbeddingModel = string(openai.EmbeddingModelTextEmbedding3Large)
	// DefaultDimensions is the vector width of text-embedding-3-large.
	DefaultDimensions = 3072
	// maxInputTokens is the model's per-input window.
	maxInputTokens = 8192
	// subBatchSize caps inputs per embeddings request.
	subBatchSize = 2048
	// subBatchDelay spaces consecutive embeddings requests to stay under
	// the provider rate limit during bulk runs.
	subBatchDelay = time.Second
)

// Embedder embeds text through the OpenAI embeddings API. Inputs over the
// model window are truncated, never rejected.
type Embedder struct {
	client  openai.Client
	counter token.Counter
	model   string
	dims    int

	mu    sync.Mutex
	delay time.Duration
	next  time.Time
}

func NewEmbedder(apiKey string, counter token.Counter, model string, dims int, opts ...option.RequestOption) *Embedder {
	if model == "" {
		model = DefaultEmbeddingModel
	}
	if dims <= 0 {
		dims = DefaultDimensions
	}
	return &Embedder{
		client:  openai.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)...),
		counter: counter,
		model:   model,
		dims:    dims,
	}
}

// WithRateLimit spaces successive synchronous embedding requests at
// least d apart, keeping bulk inline runs under the provider rate
// limit. Zero leaves pacing off.
func (e *Embedder) WithRateLimit(d time.Duration) *Embedder {
	e.delay = d
	return e
}

func (e *Embedder) Dimensions() int { return e.dims }

// pace blocks until this caller's request slot. Slots are handed out
// delay apart, so concurrent callers queue instead of bursting.
func (e *Embedder) pace(ctx context.Context) error {
	if e.delay <= 0 {
		return nil
	}

	e.mu.Lock()
	now := time.Now()
	slot := e.next
	if slot.Before(now) {
		slot = now
	}
	e.next = slot.Add(e.delay)
	e.mu.Unlock()

	wait := time.Until(slot)
	if wait <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(wait):
		return nil
	}
}

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: empty input", embedding.ErrProvider)
	}

	input := e.counter.Truncate(text, maxInputTokens)
	vec, err := e.embedOne(ctx, input)
	if err == nil {
		return vec, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	// The local tokenizer can undercount against the provider's. One retry
	// at half the window before giving up.
	if isTooLongError(err) {
		slog.WarnContext(ctx, "input rejected as too long, retrying at half window",
			"model", e.model, "tokens", e.counter.Count(input))
		input = e.counter.Truncate(input, maxInputTokens/2)
		vec, err = e.embedOne(ctx, input)
		if err == nil {
			return vec, nil
		}
		if isTooLongError(err) {
			return nil, fmt.Errorf("%w: %v", embedding.ErrTooLong, err)
		}
	}
	return nil, fmt.Errorf("%w: %v", embedding.ErrProvider, err)
}

func (e *Embedder) embedOne(ctx context.Context, text string) ([]float32, error) {
	if err := e.pace(ctx); err != nil {
		return nil, err
	}
	resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("empty embedding response")
	}
	return toFloat32(resp.Data[0].Embedding), nil
}

// EmbedBatch embeds texts preserving order, splitting the input into
// provider-sized sub-batches with a pacing delay between them. A failed
// sub-batch degrades to per-item calls so one bad input yields one nil
// entry instead of failing its siblings.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))

	for start := 0; start < len(texts); start += subBatchSize {
		if start > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(subBatchDelay):
			}
		}

		end := start + subBatchSize
		if end > len(texts) {
			end = len(texts)
		}

		inputs := make([]string, 0, end-start)
		for _, t := range texts[start:end] {
			inputs = append(inputs, e.counter.Truncate(strings.TrimSpace(t), maxInputTokens))
		}

		resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
			Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: inputs},
			Model: openai.EmbeddingModel(e.model),
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			slog.WarnContext(ctx, "sub-batch embedding failed, degrading to per-item calls",
				"error", err, "from", start, "to", end)
			e.embedIndividually(ctx, texts[start:end], out[start:end])
			continue
		}
		for _, d := range resp.Data {
			idx := int(d.Index)
			if idx >= 0 && idx < len(inputs) {
				out[start+idx] = toFloat32(d.Embedding)
			}
		}
	}
	return out, nil
}

func (e *Embedder) embedIndividually(ctx context.Context, texts []string, out [][]float32) {
	for i, t := range texts {
		vec, err := e.Embed(ctx, t)
		if err != nil {
			slog.WarnContext(ctx, "embedding failed for batch item", "error", err, "index", i)
			continue
		}
		out[i] = vec
	}
}

func isTooLongError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "maximum context length") ||
		strings.Contains(msg, "too long") ||
		strings.Contains(msg, "string_above_max_length")
}

func toFloat32(in []float64) []float32 {
	out := make([]float32, len(in))
	for i, v := range in {
		out[i] = float32(v)
	}
	return out
}
