package embedding

import (
	"context"
	"errors"
)

var (
	// ErrTooLong reports input that exceeds the provider's token window even
	// after truncation attempts.
	ErrTooLong = errors.New("embedding: input exceeds model token limit")
	// ErrProvider wraps upstream API failures so callers can tell them apart
	// from local validation errors.
	ErrProvider = errors.New("embedding: provider request failed")
)

// Embedder produces fixed-dimension vectors for retrieval. Implementations
// must return vectors of the same dimensionality for every call, matching
// the vector index schema.
type Embedder interface {
	// Embed embeds a single text. Inputs longer than the model window are
	// truncated rather than rejected.
	Embed(ctx context.Context, text string) ([]float32, error)
	// EmbedBatch embeds texts preserving order. The result always has
	// len(texts) entries; a nil entry marks an input that failed without
	// failing its siblings.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	// Dimensions reports the vector width this embedder produces.
	Dimensions() int
}
