package chunking

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"hudhud/backend/internal/epigraph"
	"hudhud/backend/internal/token"
)

const (
	methodTokenBased = "token_based"
	methodSemantic   = "semantic_embedding"
)

// SentenceEmbedder supplies sentence vectors for the optional semantic
// boundary mode.
type SentenceEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type Config struct {
	// MaxTokens is the hard per-chunk budget in embedding-model tokens.
	MaxTokens int
	// OverlapSentences are carried from each chunk into the next one so
	// context survives the boundary.
	OverlapSentences int
	// SemanticThreshold forces a boundary where adjacent-sentence cosine
	// similarity drops below it (semantic mode only).
	SemanticThreshold float64
	// Semantic enables embedding-driven boundaries. Falls back to
	// token-only splitting whenever a sentence embedding fails.
	Semantic bool
}

func DefaultConfig() Config {
	return Config{
		MaxTokens:         512,
		OverlapSentences:  1,
		SemanticThreshold: 0.7,
	}
}

// Chunker decomposes one epigraph into token-bounded retrieval units.
// ChunkEpigraph is deterministic for identical input and configuration and
// has no side effects; persistence belongs to the caller.
type Chunker struct {
	counter  token.Counter
	splitter SentenceSplitter
	embedder SentenceEmbedder
	cfg      Config
}

func New(counter token.Counter, splitter SentenceSplitter, embedder SentenceEmbedder, cfg Config) *Chunker {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultConfig().MaxTokens
	}
	return &Chunker{counter: counter, splitter: splitter, embedder: embedder, cfg: cfg}
}

// ChunkEpigraph produces the ordered chunk sequence for one epigraph:
// inscription text first, then translations in array order (each followed
// by its notes), cultural notes, apparatus notes, the long note fields, and
// finally object descriptions. Chunk indices increase monotonically over
// the whole sequence.
func (c *Chunker) ChunkEpigraph(ctx context.Context, e *epigraph.Epigraph) []epigraph.Chunk {
	base := c.baseMetadata(e)
	var chunks []epigraph.Chunk

	if clean := CleanText(e.Text); len(clean) > 5 {
		full := e.Title + ": " + clean
		chunks = c.appendText(ctx, chunks, full, epigraph.ChunkTypeText, base)
	}

	for i := range e.Translations {
		chunks = c.appendTranslation(ctx, chunks, &e.Translations[i], i, base)
	}

	chunks = c.appendNotes(ctx, chunks, e.CulturalNotes, epigraph.ChunkTypeCulturalNote, base)
	chunks = c.appendNotes(ctx, chunks, e.ApparatusNotes, epigraph.ChunkTypeApparatusNote, base)

	for _, long := range []struct {
		text string
		typ  epigraph.ChunkType
	}{
		{e.GeneralNotes, epigraph.ChunkTypeGeneralNote},
		{e.SupportNotes, epigraph.ChunkTypeSupportNote},
		{e.DepositNotes, epigraph.ChunkTypeDepositNote},
	} {
		if clean := CleanText(long.text); clean != "" {
			chunks = c.appendText(ctx, chunks, clean, long.typ, base)
		}
	}

	for i := range e.Objects {
		desc := DescribeObject(&e.Objects[i])
		if desc == "" {
			continue
		}
		meta := base
		meta.ObjectIndex = intPtr(i)
		meta.Materials = e.Objects[i].Materials
		chunks = c.appendText(ctx, chunks, desc, epigraph.ChunkTypeObjectDescription, meta)
	}

	for i := range chunks {
		chunks[i].EpigraphID = e.ID
		chunks[i].Index = i
	}
	return chunks
}

func (c *Chunker) baseMetadata(e *epigraph.Epigraph) epigraph.ChunkMetadata {
	meta := epigraph.ChunkMetadata{
		Title:            e.Title,
		DasiID:           e.DasiID,
		Period:           e.Period,
		Language:         e.Language(),
		TextualTypology:  e.TextualTypology,
		RoyalInscription: e.Royal,
		Editors:          FormatEditors(e.Editors),
		Bibliography:     FormatBibliography(e.Bibliography),
	}
	for _, site := range e.Sites {
		name := site.ModernName
		if name == "" {
			name = site.Name
		}
		if name != "" {
			meta.SiteNames = append(meta.SiteNames, name)
		}
	}
	return meta
}

func (c *Chunker) appendTranslation(ctx context.Context, chunks []epigraph.Chunk, tr *epigraph.Translation, idx int, base epigraph.ChunkMetadata) []epigraph.Chunk {
	clean := CleanText(tr.Text)
	if clean != "" {
		meta := base
		meta.TranslationLanguage = tr.Language
		meta.TranslationIndex = intPtr(idx)
		meta.TranslationLabel = tr.Label
		if len(tr.Editors) > 0 {
			meta.Editors = FormatEditors(tr.Editors)
		}
		if len(tr.Bibliography) > 0 {
			meta.Bibliography = FormatBibliography(tr.Bibliography)
		}
		chunks = c.appendText(ctx, chunks, clean, epigraph.ChunkTypeTranslation, meta)
	}

	for ni := range tr.Notes {
		noteText := CleanText(tr.Notes[ni].Text)
		if noteText == "" {
			continue
		}
		meta := base
		meta.TranslationLanguage = tr.Language
		meta.TranslationIndex = intPtr(idx)
		meta.NoteIndex = intPtr(ni)
		meta.Lines = tr.Notes[ni].Lines
		chunks = c.appendText(ctx, chunks, noteText, epigraph.ChunkTypeTranslationNote, meta)
	}
	return chunks
}

func (c *Chunker) appendNotes(ctx context.Context, chunks []epigraph.Chunk, notes []epigraph.Note, typ epigraph.ChunkType, base epigraph.ChunkMetadata) []epigraph.Chunk {
	for i := range notes {
		text := CleanText(notes[i].Text)
		if text == "" {
			continue
		}
		meta := base
		meta.NoteIndex = intPtr(i)
		meta.Topic = notes[i].Topic
		meta.Lines = notes[i].Lines
		meta.NoteLanguage = notes[i].Language
		chunks = c.appendText(ctx, chunks, text, typ, meta)
	}
	return chunks
}

// appendText emits one chunk when the text fits the budget, otherwise the
// sentence-grouped splits of it.
func (c *Chunker) appendText(ctx context.Context, chunks []epigraph.Chunk, text string, typ epigraph.ChunkType, meta epigraph.ChunkMetadata) []epigraph.Chunk {
	tokens := c.counter.Count(text)
	if tokens <= c.cfg.MaxTokens {
		return append(chunks, epigraph.Chunk{
			Text:       text,
			Type:       typ,
			TokenCount: tokens,
			Metadata:   meta,
		})
	}
	return append(chunks, c.chunkLongText(ctx, text, typ, meta)...)
}

func (c *Chunker) chunkLongText(ctx context.Context, text string, typ epigraph.ChunkType, meta epigraph.ChunkMetadata) []epigraph.Chunk {
	sents := c.splitter.Split(text)
	if len(sents) == 0 {
		return nil
	}

	if c.cfg.Semantic && c.embedder != nil {
		out, err := c.semanticChunks(ctx, sents, typ, meta)
		if err == nil {
			return out
		}
		slog.WarnContext(ctx, "semantic chunking failed, falling back to token-based",
			"error", err, "chunk_type", typ)
	}
	return c.tokenChunks(sents, typ, meta)
}

// tokenChunks groups consecutive sentences under the token budget, carrying
// OverlapSentences trailing sentences into the next group. The overlap is
// dropped whenever keeping it would push the next chunk over the budget;
// the budget is a hard cap, the overlap is best effort.
func (c *Chunker) tokenChunks(sents []string, typ epigraph.ChunkType, meta epigraph.ChunkMetadata) []epigraph.Chunk {
	sents = c.splitOversized(sents)

	var out []epigraph.Chunk
	var current []string
	currentTokens := 0

	flush := func(endIdx int) {
		text := strings.Join(current, " ")
		m := meta
		m.SentenceRange = fmt.Sprintf("%d-%d", endIdx-len(current), endIdx)
		m.NumSentences = len(current)
		m.ChunkingMethod = methodTokenBased
		out = append(out, epigraph.Chunk{
			Text:       text,
			Type:       typ,
			TokenCount: c.counter.Count(text),
			Metadata:   m,
		})
	}

	for i, s := range sents {
		sTokens := c.counter.Count(s)
		if currentTokens+sTokens > c.cfg.MaxTokens && len(current) > 0 {
			flush(i)
			keep := len(current) - c.cfg.OverlapSentences
			if keep < 0 {
				keep = 0
			}
			current = append([]string(nil), current[keep:]...)
			currentTokens = 0
			for _, kept := range current {
				currentTokens += c.counter.Count(kept)
			}
			if currentTokens+sTokens > c.cfg.MaxTokens {
				current = current[:0]
				currentTokens = 0
			}
		}
		current = append(current, s)
		currentTokens += sTokens
	}
	if len(current) > 0 {
		flush(len(sents))
	}
	return out
}

// splitOversized hard-splits any single sentence whose token count exceeds
// the budget on its own. Tokenizer decoding of a token prefix is a byte
// prefix of the input, so the remainder can be recovered by trimming.
func (c *Chunker) splitOversized(sents []string) []string {
	out := make([]string, 0, len(sents))
	for _, s := range sents {
		for c.counter.Count(s) > c.cfg.MaxTokens {
			head := c.counter.Truncate(s, c.cfg.MaxTokens)
			rest := strings.TrimSpace(strings.TrimPrefix(s, head))
			head = strings.TrimSpace(head)
			if head == "" || rest == s {
				break
			}
			out = append(out, head)
			s = rest
		}
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// semanticChunks embeds every sentence and forces a boundary wherever
// adjacent-sentence similarity drops below the threshold, in addition to
// the token budget. Any embedding failure aborts to the token-based path;
// a record's indexing must never fail on a transient provider error.
func (c *Chunker) semanticChunks(ctx context.Context, sents []string, typ epigraph.ChunkType, meta epigraph.ChunkMetadata) ([]epigraph.Chunk, error) {
	sents = c.splitOversized(sents)
	vectors := make([][]float32, len(sents))
	for i, s := range sents {
		vec, err := c.embedder.Embed(ctx, s)
		if err != nil {
			return nil, fmt.Errorf("embed sentence %d: %w", i, err)
		}
		if len(vec) == 0 {
			return nil, fmt.Errorf("empty embedding for sentence %d", i)
		}
		vectors[i] = vec
	}

	similarities := make([]float64, len(sents)-1)
	for i := 0; i < len(sents)-1; i++ {
		similarities[i] = cosine(vectors[i], vectors[i+1])
	}

	splits := []int{0}
	currentTokens := 0
	for i, s := range sents {
		sTokens := c.counter.Count(s)
		boundary := i < len(similarities) && similarities[i] < c.cfg.SemanticThreshold
		if currentTokens+sTokens > c.cfg.MaxTokens && currentTokens > 0 {
			boundary = true
		}
		if boundary && i > splits[len(splits)-1] {
			splits = append(splits, i)
			currentTokens = sTokens
		} else {
			currentTokens += sTokens
		}
	}
	if splits[len(splits)-1] < len(sents) {
		splits = append(splits, len(sents))
	}

	var out []epigraph.Chunk
	for i := 0; i < len(splits)-1; i++ {
		start, end := splits[i], splits[i+1]
		text := strings.Join(sents[start:end], " ")

		coherence := 1.0
		if end-start > 1 {
			sum, n := 0.0, 0
			for j := start; j < end-1 && j < len(similarities); j++ {
				sum += similarities[j]
				n++
			}
			if n > 0 {
				coherence = sum / float64(n)
			}
		}

		m := meta
		m.SentenceRange = fmt.Sprintf("%d-%d", start, end)
		m.NumSentences = end - start
		m.ChunkingMethod = methodSemantic
		m.AvgCoherence = math.Round(coherence*1000) / 1000
		out = append(out, epigraph.Chunk{
			Text:       text,
			Type:       typ,
			TokenCount: c.counter.Count(text),
			Metadata:   m,
		})
	}
	return out, nil
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		if i >= len(b) {
			break
		}
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func intPtr(i int) *int { return &i }
