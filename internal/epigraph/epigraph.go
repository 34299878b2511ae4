package epigraph

import "context"

// Epigraph is the scholarly record being chunked and searched. It is owned
// by the external import pipeline; this subsystem only reads it.
type Epigraph struct {
	ID              int            `json:"id"`
	DasiID          int            `json:"dasi_id,omitempty"`
	Title           string         `json:"title"`
	Period          string         `json:"period,omitempty"`
	LanguageLevel1  string         `json:"language_level_1,omitempty"`
	LanguageLevel2  string         `json:"language_level_2,omitempty"`
	LanguageLevel3  string         `json:"language_level_3,omitempty"`
	TextualTypology string         `json:"textual_typology,omitempty"`
	Royal           bool           `json:"royal_inscription,omitempty"`
	Published       bool           `json:"dasi_published"`
	Text            string         `json:"epigraph_text,omitempty"`
	Translations    []Translation  `json:"translations,omitempty"`
	CulturalNotes   []Note         `json:"cultural_notes,omitempty"`
	ApparatusNotes  []Note         `json:"apparatus_notes,omitempty"`
	GeneralNotes    string         `json:"general_notes,omitempty"`
	SupportNotes    string         `json:"support_notes,omitempty"`
	DepositNotes    string         `json:"deposit_notes,omitempty"`
	Objects         []Object       `json:"objects,omitempty"`
	Sites           []Site         `json:"sites,omitempty"`
	Editors         []Editor       `json:"editors,omitempty"`
	Bibliography    []BibReference `json:"bibliography,omitempty"`
}

// Language renders the language hierarchy the way the importer stores it,
// e.g. "Ancient South Arabian > Sabaic > Central Sabaic".
func (e *Epigraph) Language() string {
	out := ""
	for _, lvl := range []string{e.LanguageLevel1, e.LanguageLevel2, e.LanguageLevel3} {
		if lvl == "" {
			continue
		}
		if out != "" {
			out += " > "
		}
		out += lvl
	}
	return out
}

type Translation struct {
	Language     string         `json:"language,omitempty"`
	Text         string         `json:"text"`
	Label        string         `json:"label,omitempty"`
	Editors      []Editor       `json:"editors,omitempty"`
	Bibliography []BibReference `json:"bibliography,omitempty"`
	Notes        []Note         `json:"notes,omitempty"`
}

// Note is a single annotated scholarly note (apparatus, cultural,
// translation note). Lines refers to the inscription lines it comments on.
type Note struct {
	Text     string `json:"text"`
	Topic    string `json:"topic,omitempty"`
	Lines    string `json:"lines,omitempty"`
	Language string `json:"language,omitempty"`
}

type Editor struct {
	Name           string `json:"name"`
	Responsibility string `json:"responsibility,omitempty"`
	Date           string `json:"date,omitempty"`
}

type BibReference struct {
	Reference      string `json:"reference,omitempty"`
	ReferenceShort string `json:"reference_short,omitempty"`
	FirstAuthors   string `json:"first_authors,omitempty"`
	Page           string `json:"page,omitempty"`
	QuotationLabel string `json:"quotation_label,omitempty"`
}

type Site struct {
	DasiID     int    `json:"dasi_id,omitempty"`
	Name       string `json:"name,omitempty"`
	ModernName string `json:"modern_name,omitempty"`
}

// Object is the physical support an inscription is carved on.
type Object struct {
	SupportTypes []string  `json:"support_types,omitempty"`
	Materials    []string  `json:"materials,omitempty"`
	Shape        string    `json:"shape,omitempty"`
	Description  string    `json:"description,omitempty"`
	Deposits     []Deposit `json:"deposits,omitempty"`
	Decorations  []string  `json:"decorations,omitempty"`
	Notes        []Note    `json:"cultural_notes,omitempty"`
	SupportNotes string    `json:"support_notes,omitempty"`
	DepositNotes string    `json:"deposit_notes,omitempty"`
}

type Deposit struct {
	Settlement           string `json:"settlement,omitempty"`
	Institution          string `json:"institution,omitempty"`
	Repository           string `json:"repository,omitempty"`
	IdentificationNumber string `json:"identificationNumber,omitempty"`
}

// Store is the read-only collaborator exposing epigraphs persisted by the
// import pipeline.
type Store interface {
	GetByID(ctx context.Context, id int) (*Epigraph, error)
	GetByIDs(ctx context.Context, ids []int) ([]Epigraph, error)
	// FindByTitle matches titles loosely (case-insensitive substring), used
	// to resolve titles named explicitly in a question.
	FindByTitle(ctx context.Context, title string, limit int) ([]Epigraph, error)
	ListIDs(ctx context.Context, publishedOnly bool) ([]int, error)
}
