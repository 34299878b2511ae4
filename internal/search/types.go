package search

import "context"

// Filters are hard constraints applied as exact matches, field name to
// scalar value or value list. Only whitelisted epigraph fields are
// accepted; anything else is dropped before querying.
type Filters map[string]any

// filterableFields mirrors the epigraph columns callers may constrain.
var filterableFields = map[string]bool{
	"period":            true,
	"language_level_1":  true,
	"language_level_2":  true,
	"language_level_3":  true,
	"textual_typology":  true,
	"royal_inscription": true,
	"dasi_published":    true,
}

// Sanitize drops unknown filter fields.
func (f Filters) Sanitize() Filters {
	out := make(Filters, len(f))
	for field, value := range f {
		if filterableFields[field] {
			out[field] = value
		}
	}
	return out
}

// Request is one lexical search invocation.
type Request struct {
	Query     string  `json:"query"`
	Filters   Filters `json:"filters,omitempty"`
	SortField string  `json:"sort_field,omitempty"`
	SortOrder string  `json:"sort_order,omitempty"`
	From      int     `json:"from"`
	Size      int     `json:"size"`
}

// Hit is one matching epigraph. Score is zero when the relational engine
// produced the result.
type Hit struct {
	EpigraphID int                 `json:"epigraph_id"`
	Title      string              `json:"title"`
	Score      float64             `json:"score,omitempty"`
	Highlights map[string][]string `json:"highlights,omitempty"`
}

// Engine names which backend served a result.
const (
	EngineOpenSearch = "opensearch"
	EngineRelational = "relational"
)

type Result struct {
	Hits   []Hit  `json:"hits"`
	Total  int64  `json:"total"`
	Engine string `json:"engine"`
}

// Index is the primary lexical engine.
type Index interface {
	Search(ctx context.Context, req Request) (*Result, error)
}
