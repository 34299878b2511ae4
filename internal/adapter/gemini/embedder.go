package gemini

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"hudhud/backend/internal/embedding"
)

const (
	defaultModel = "gemini-embedding-001"
	// The Gemini API caps one BatchEmbedContents call at 100 requests.
	maxBatchSize = 100
)

// Embedder is the alternate synchronous embedding provider, selected by
// configuration. It produces 3072-dim vectors matching the index schema.
type Embedder struct {
	client *genai.Client
	model  string
	dims   int
}

func NewEmbedder(ctx context.Context, apiKey string, dims int, opts ...option.ClientOption) (*Embedder, error) {
	client, err := genai.NewClient(ctx, append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, err
	}
	if dims <= 0 {
		dims = 3072
	}
	return &Embedder{client: client, model: defaultModel, dims: dims}, nil
}

func (e *Embedder) Dimensions() int { return e.dims }

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	slog.DebugContext(ctx, "embedding content", "model", e.model, "length", len(text))
	em := e.client.EmbeddingModel(e.model)
	res, err := em.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		slog.ErrorContext(ctx, "embedding failed", "error", err)
		return nil, fmt.Errorf("%w: %v", embedding.ErrProvider, err)
	}
	if res.Embedding == nil {
		return nil, fmt.Errorf("%w: empty embedding response", embedding.ErrProvider)
	}
	return res.Embedding.Values, nil
}

// EmbedBatch embeds texts preserving order. Each API-sized sub-batch fails
// independently; its entries come back nil while the rest succeed.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	em := e.client.EmbeddingModel(e.model)

	for start := 0; start < len(texts); start += maxBatchSize {
		end := start + maxBatchSize
		if end > len(texts) {
			end = len(texts)
		}

		batch := em.NewBatch()
		for _, t := range texts[start:end] {
			batch.AddContent(genai.Text(t))
		}
		res, err := em.BatchEmbedContents(ctx, batch)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			slog.WarnContext(ctx, "batch embedding failed", "error", err, "from", start, "to", end)
			continue
		}
		for i, emb := range res.Embeddings {
			if emb != nil && start+i < len(out) {
				out[start+i] = emb.Values
			}
		}
	}
	return out, nil
}
