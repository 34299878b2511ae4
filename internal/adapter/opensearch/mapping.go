package opensearch

import (
	"hudhud/backend/internal/chunking"
	"hudhud/backend/internal/epigraph"
)

// indexMapping pairs an edge-ngram index analyzer with a stemming search
// analyzer so partial terms match at index time while queries stay
// linguistic. Top-level text fields carry keyword and raw (unstemmed)
// subfields for exact and phrase scoring.
const indexMapping = `{
  "settings": {
    "number_of_shards": 1,
    "number_of_replicas": 0,
    "analysis": {
      "analyzer": {
        "custom_text_analyzer": {
          "type": "custom",
          "tokenizer": "standard",
          "filter": ["lowercase", "stop", "kstem"]
        },
        "edge_ngram_analyzer": {
          "type": "custom",
          "tokenizer": "edge_ngram_tokenizer",
          "filter": ["lowercase"]
        }
      },
      "tokenizer": {
        "edge_ngram_tokenizer": {
          "type": "edge_ngram",
          "min_gram": 2,
          "max_gram": 10,
          "token_chars": ["letter", "digit"]
        }
      }
    }
  },
  "mappings": {
    "properties": {
      "id": {"type": "integer"},
      "dasi_id": {"type": "integer"},
      "title": {
        "type": "text",
        "analyzer": "edge_ngram_analyzer",
        "search_analyzer": "custom_text_analyzer",
        "fields": {
          "keyword": {"type": "keyword"},
          "raw": {"type": "text", "analyzer": "standard"}
        }
      },
      "epigraph_text": {
        "type": "text",
        "analyzer": "edge_ngram_analyzer",
        "search_analyzer": "custom_text_analyzer",
        "fields": {
          "keyword": {"type": "keyword"},
          "raw": {"type": "text", "analyzer": "standard"}
        }
      },
      "general_notes": {
        "type": "text",
        "analyzer": "custom_text_analyzer",
        "fields": {
          "keyword": {"type": "keyword"},
          "raw": {"type": "text", "analyzer": "standard"}
        }
      },
      "support_notes": {
        "type": "text",
        "analyzer": "custom_text_analyzer",
        "fields": {
          "keyword": {"type": "keyword"},
          "raw": {"type": "text", "analyzer": "standard"}
        }
      },
      "deposit_notes": {
        "type": "text",
        "analyzer": "custom_text_analyzer",
        "fields": {
          "keyword": {"type": "keyword"},
          "raw": {"type": "text", "analyzer": "standard"}
        }
      },
      "translations": {
        "type": "nested",
        "properties": {
          "text": {"type": "text", "analyzer": "custom_text_analyzer"},
          "language": {"type": "keyword"},
          "label": {"type": "keyword"},
          "notes": {
            "type": "nested",
            "properties": {
              "lines": {"type": "keyword"},
              "text": {"type": "text", "analyzer": "custom_text_analyzer"}
            }
          },
          "bibliography": {
            "type": "nested",
            "properties": {
              "page": {"type": "keyword"},
              "reference": {"type": "text", "analyzer": "custom_text_analyzer"},
              "reference_short": {"type": "text", "analyzer": "custom_text_analyzer"},
              "first_authors": {"type": "keyword"},
              "quotation_label": {"type": "keyword"}
            }
          },
          "editors": {
            "type": "nested",
            "properties": {
              "name": {"type": "keyword"},
              "responsibility": {"type": "keyword"},
              "date": {"type": "keyword"}
            }
          }
        }
      },
      "cultural_notes": {
        "type": "nested",
        "properties": {
          "text": {"type": "text", "analyzer": "custom_text_analyzer"},
          "topic": {"type": "keyword"},
          "lines": {"type": "keyword"}
        }
      },
      "apparatus_notes": {
        "type": "nested",
        "properties": {
          "text": {"type": "text", "analyzer": "custom_text_analyzer"},
          "lines": {"type": "keyword"}
        }
      },
      "bibliography": {
        "type": "nested",
        "properties": {
          "reference": {"type": "text", "analyzer": "custom_text_analyzer"},
          "reference_short": {"type": "text", "analyzer": "custom_text_analyzer"},
          "page": {"type": "keyword"},
          "first_authors": {"type": "keyword"},
          "quotation_label": {"type": "keyword"}
        }
      },
      "sites": {
        "type": "nested",
        "properties": {
          "name": {"type": "keyword"},
          "modern_name": {"type": "keyword"},
          "dasi_id": {"type": "integer"}
        }
      },
      "editors": {
        "type": "nested",
        "properties": {
          "name": {"type": "keyword"},
          "responsibility": {"type": "keyword"},
          "date": {"type": "keyword"}
        }
      },
      "deposits": {
        "type": "nested",
        "properties": {
          "settlement": {"type": "text", "analyzer": "custom_text_analyzer"},
          "institution": {"type": "text", "analyzer": "custom_text_analyzer"},
          "repository": {"type": "text", "analyzer": "custom_text_analyzer"},
          "identificationNumber": {"type": "keyword"}
        }
      },
      "period": {"type": "keyword"},
      "language_level_1": {"type": "keyword"},
      "language_level_2": {"type": "keyword"},
      "language_level_3": {"type": "keyword"},
      "textual_typology": {"type": "keyword"},
      "royal_inscription": {"type": "boolean"},
      "dasi_published": {"type": "boolean"}
    }
  }
}`

// osDocument is the indexed shape of an epigraph. Object-level long notes
// are concatenated to top-level fields; deposits are flattened across
// objects.
type osDocument struct {
	ID              int                     `json:"id"`
	DasiID          int                     `json:"dasi_id,omitempty"`
	Title           string                  `json:"title"`
	EpigraphText    string                  `json:"epigraph_text,omitempty"`
	GeneralNotes    string                  `json:"general_notes,omitempty"`
	SupportNotes    string                  `json:"support_notes,omitempty"`
	DepositNotes    string                  `json:"deposit_notes,omitempty"`
	Translations    []epigraph.Translation  `json:"translations,omitempty"`
	CulturalNotes   []epigraph.Note         `json:"cultural_notes,omitempty"`
	ApparatusNotes  []epigraph.Note         `json:"apparatus_notes,omitempty"`
	Bibliography    []epigraph.BibReference `json:"bibliography,omitempty"`
	Sites           []epigraph.Site         `json:"sites,omitempty"`
	Editors         []epigraph.Editor       `json:"editors,omitempty"`
	Deposits        []epigraph.Deposit      `json:"deposits,omitempty"`
	Period          string                  `json:"period,omitempty"`
	LanguageLevel1  string                  `json:"language_level_1,omitempty"`
	LanguageLevel2  string                  `json:"language_level_2,omitempty"`
	LanguageLevel3  string                  `json:"language_level_3,omitempty"`
	TextualTypology string                  `json:"textual_typology,omitempty"`
	Royal           bool                    `json:"royal_inscription"`
	Published       bool                    `json:"dasi_published"`
}

func toDocument(e *epigraph.Epigraph) osDocument {
	doc := osDocument{
		ID:              e.ID,
		DasiID:          e.DasiID,
		Title:           e.Title,
		EpigraphText:    chunking.CleanText(e.Text),
		GeneralNotes:    e.GeneralNotes,
		SupportNotes:    e.SupportNotes,
		DepositNotes:    e.DepositNotes,
		Translations:    e.Translations,
		CulturalNotes:   e.CulturalNotes,
		ApparatusNotes:  e.ApparatusNotes,
		Bibliography:    e.Bibliography,
		Sites:           e.Sites,
		Editors:         e.Editors,
		Period:          e.Period,
		LanguageLevel1:  e.LanguageLevel1,
		LanguageLevel2:  e.LanguageLevel2,
		LanguageLevel3:  e.LanguageLevel3,
		TextualTypology: e.TextualTypology,
		Royal:           e.Royal,
		Published:       e.Published,
	}

	for i := range e.Objects {
		obj := &e.Objects[i]
		if obj.SupportNotes != "" {
			doc.SupportNotes = joinNonEmpty(doc.SupportNotes, obj.SupportNotes)
		}
		if obj.DepositNotes != "" {
			doc.DepositNotes = joinNonEmpty(doc.DepositNotes, obj.DepositNotes)
		}
		doc.Deposits = append(doc.Deposits, obj.Deposits...)
	}
	return doc
}

func joinNonEmpty(a, b string) string {
	if a == "" {
		return b
	}
	return a + " " + b
}
