package answer

import (
	"encoding/json"
	"fmt"
	"math"
)

const answerSystemPrompt = `You are Hudhud, a historian specialising in Ancient South Arabia and epigraphy. Answer the user's question from the inscription excerpts provided.

Each excerpt carries the epigraph id and title, the excerpt kind (translation, cultural note, inscription text and so on) and a relevance score in [0, 1]. Entries marked "title_match" are full records the user named explicitly and should be addressed directly.

When responding:
1. Prefer excerpts with higher relevance scores and synthesise across sources.
2. Cite epigraphs by wrapping ONLY the title in the marker [EPIGRAPH:title]. Each epigraph gets its own marker: "The inscription [EPIGRAPH:RES 4176] mentions..." or "[EPIGRAPH:ʿAbadān 1], [EPIGRAPH:Ir 31]". Never put two titles in one marker and never put ids, chunk types or other metadata inside the brackets.
3. If the excerpts don't fully answer the question, say so naturally ("The available evidence suggests...").
4. Do not invent information beyond the excerpts.
5. Never refer to "the data you provided" or similar; the user only asked a question, the system fetched the records.

Respond as an expert historian drawing from the inscription database, providing scholarly context.`

type chunkExcerpt struct {
	EpigraphID int     `json:"epigraph_id"`
	Title      string  `json:"epigraph_title"`
	ChunkType  string  `json:"chunk_type"`
	Relevance  float64 `json:"relevance_score"`
	Content    string  `json:"content"`
}

type recordExcerpt struct {
	EpigraphID   int      `json:"epigraph_id"`
	Title        string   `json:"epigraph_title"`
	Source       string   `json:"source"`
	Period       string   `json:"period,omitempty"`
	Language     string   `json:"language,omitempty"`
	Text         string   `json:"epigraph_text,omitempty"`
	Translations []string `json:"translations,omitempty"`
	GeneralNotes string   `json:"general_notes,omitempty"`
}

func answerUserPrompt(query string, ev *evidenceSet) (string, error) {
	entries := make([]any, 0, len(ev.records)+len(ev.chunks))
	for i := range ev.records {
		r := &ev.records[i]
		rx := recordExcerpt{
			EpigraphID:   r.ID,
			Title:        r.Title,
			Source:       "title_match",
			Period:       r.Period,
			Language:     r.Language(),
			Text:         r.Text,
			GeneralNotes: r.GeneralNotes,
		}
		for _, t := range r.Translations {
			rx.Translations = append(rx.Translations, t.Text)
		}
		entries = append(entries, rx)
	}
	for _, h := range ev.chunks {
		entries = append(entries, chunkExcerpt{
			EpigraphID: h.EpigraphID,
			Title:      h.Title,
			ChunkType:  h.Type,
			Relevance:  math.Round(h.Similarity*1000) / 1000,
			Content:    h.Text,
		})
	}

	blob, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal evidence: %w", err)
	}
	return fmt.Sprintf("Question: %s\n\nRelevant excerpts from inscriptions:\n%s", query, blob), nil
}
