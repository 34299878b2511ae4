package epigraph

import "context"

type ChunkType string

const (
	ChunkTypeText              ChunkType = "epigraph_text"
	ChunkTypeTranslation       ChunkType = "translation"
	ChunkTypeTranslationNote   ChunkType = "translation_note"
	ChunkTypeCulturalNote      ChunkType = "cultural_note"
	ChunkTypeApparatusNote     ChunkType = "apparatus_note"
	ChunkTypeGeneralNote       ChunkType = "general_note"
	ChunkTypeSupportNote       ChunkType = "support_note"
	ChunkTypeDepositNote       ChunkType = "deposit_note"
	ChunkTypeObjectDescription ChunkType = "object_description"
)

// Chunk is one token-bounded retrieval unit derived from a single field of
// an epigraph. Text is immutable once created; re-chunking an epigraph
// replaces its whole chunk set.
type Chunk struct {
	ID         int           `json:"id"`
	EpigraphID int           `json:"epigraph_id"`
	Text       string        `json:"chunk_text"`
	Type       ChunkType     `json:"chunk_type"`
	Index      int           `json:"chunk_index"`
	TokenCount int           `json:"token_count"`
	Metadata   ChunkMetadata `json:"chunk_metadata"`
	// Embedding is nil until the embedding subsystem attaches a vector;
	// when present it always has the subsystem-wide dimensionality.
	Embedding []float32 `json:"-"`
}

// ChunkMetadata is the open per-chunk context map, kept as a closed set of
// typed fields so it stays serializable and queryable without runtime type
// checks.
type ChunkMetadata struct {
	Title            string   `json:"title,omitempty"`
	DasiID           int      `json:"dasi_id,omitempty"`
	Period           string   `json:"period,omitempty"`
	Language         string   `json:"language,omitempty"`
	TextualTypology  string   `json:"textual_typology,omitempty"`
	RoyalInscription bool     `json:"royal_inscription,omitempty"`
	SiteNames        []string `json:"site_names,omitempty"`
	Editors          []string `json:"epigraph_editors,omitempty"`
	Bibliography     []string `json:"epigraph_bibliography,omitempty"`

	TranslationLanguage string `json:"translation_language,omitempty"`
	TranslationIndex    *int   `json:"translation_index,omitempty"`
	TranslationLabel    string `json:"translation_label,omitempty"`

	NoteIndex    *int   `json:"note_index,omitempty"`
	Topic        string `json:"topic,omitempty"`
	Lines        string `json:"lines,omitempty"`
	NoteLanguage string `json:"note_language,omitempty"`

	ObjectIndex *int     `json:"object_index,omitempty"`
	Materials   []string `json:"materials,omitempty"`

	SentenceRange  string  `json:"sentence_range,omitempty"`
	NumSentences   int     `json:"num_sentences,omitempty"`
	ChunkingMethod string  `json:"chunking_method,omitempty"`
	AvgCoherence   float64 `json:"avg_coherence,omitempty"`
}

// ChunkStore persists chunks. ReplaceForEpigraph has delete-then-recreate
// semantics per epigraph so bulk runs are resumable without duplicating
// chunks.
type ChunkStore interface {
	ReplaceForEpigraph(ctx context.Context, epigraphID int, chunks []Chunk) ([]Chunk, error)
	GetByEpigraph(ctx context.Context, epigraphID int) ([]Chunk, error)
	GetByIDs(ctx context.Context, ids []int) ([]Chunk, error)
	ListUnembedded(ctx context.Context, limit int) ([]Chunk, error)
	SetEmbedding(ctx context.Context, chunkID int, vector []float32) error
	DeleteForEpigraph(ctx context.Context, epigraphID int) (int, error)
	Stats(ctx context.Context) (*ChunkStats, error)
}

// ChunkStats is the operational summary surfaced by GET /chunks/stats.
type ChunkStats struct {
	TotalChunks         int            `json:"total_chunks"`
	ChunksByType        map[string]int `json:"chunks_by_type"`
	AverageTokens       float64        `json:"average_tokens_per_chunk"`
	ChunksWithEmbedding int            `json:"chunks_with_embeddings"`
	UnembeddedTokens    int            `json:"unembedded_tokens"`
}
