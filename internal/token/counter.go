package token

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// Counter abstracts the embedding model's token scheme so the chunker and
// embedder don't depend on a specific tokenizer implementation.
type Counter interface {
	Count(text string) int
	Truncate(text string, maxTokens int) string
}

// TiktokenCounter counts and truncates text using the BPE encoding of the
// configured embedding model.
type TiktokenCounter struct {
	encoding *tiktoken.Tiktoken
}

// NewTiktokenCounter resolves the encoding for the given model, falling back
// to cl100k_base when the model is unknown to the tiktoken registry.
func NewTiktokenCounter(model string) (*TiktokenCounter, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("load tokenizer encoding: %w", err)
		}
	}
	return &TiktokenCounter{encoding: enc}, nil
}

func (c *TiktokenCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	return len(c.encoding.Encode(text, nil, nil))
}

// Truncate keeps at most maxTokens tokens and decodes back to text, so a
// multi-byte rune is never cut in the middle the way character slicing would.
func (c *TiktokenCounter) Truncate(text string, maxTokens int) string {
	if text == "" || maxTokens <= 0 {
		return ""
	}
	ids := c.encoding.Encode(text, nil, nil)
	if len(ids) <= maxTokens {
		return text
	}
	return c.encoding.Decode(ids[:maxTokens])
}
