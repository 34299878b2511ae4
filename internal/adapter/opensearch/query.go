package opensearch

import (
	"strings"

	"hudhud/backend/internal/search"
)

// Field sets the bool query is built over. Top-level fields carry
// `.keyword` and `.raw` subfields; nested fields address sub-documents by
// path.
var (
	topFields = []string{
		"title",
		"epigraph_text",
		"general_notes",
		"support_notes",
		"deposit_notes",
	}
	nestedFields = []string{
		"translations.text",
		"translations.notes.text",
		"translations.bibliography.reference",
		"translations.bibliography.reference_short",
		"cultural_notes.text",
		"apparatus_notes.text",
		"bibliography.reference",
		"bibliography.reference_short",
		"sites.name",
		"editors.name",
		"deposits.settlement",
		"deposits.institution",
		"deposits.repository",
	}
	highlightFields = []string{
		"title", "epigraph_text", "general_notes", "support_notes", "deposit_notes",
		"translations.text", "translations.notes.text",
		"cultural_notes.text", "apparatus_notes.text",
		"bibliography.reference",
	}
)

func keywordFields() []string {
	out := make([]string, len(topFields))
	for i, f := range topFields {
		out[i] = f + ".keyword"
	}
	return out
}

func rawFields() []string {
	out := make([]string, len(topFields))
	for i, f := range topFields {
		out[i] = f + ".raw"
	}
	return out
}

func nestedPath(field string) string {
	for i := 0; i < len(field); i++ {
		if field[i] == '.' {
			return field[:i]
		}
	}
	return field
}

type m = map[string]any

// buildSearchBody translates a parsed request into the index's bool query:
// must terms expand to a per-term should-of-variants group (phrase matches
// on raw and stemmed fields, multi-match over stemmed/ngram/keyword
// variants, nested queries per sub-document path, query_string for
// wildcards), should terms form one optional group, must_not terms exclude.
// dasi_published is always filtered unless the request overrides it.
func buildSearchBody(req search.Request) m {
	parsed := search.ParseQuery(req.Query)

	var must, should, mustNot []m

	for _, term := range parsed.Must {
		must = append(must, shouldOfVariants(termQueries(term, true)))
	}

	if len(parsed.Should) > 0 {
		joined := strings.Join(parsed.Should, " ")
		if search.HasWildcard(joined) {
			should = append(should, wildcardQueries(joined, "OR")...)
		} else {
			should = append(should,
				m{"multi_match": m{"query": joined, "fields": topFields, "type": "best_fields", "minimum_should_match": "50%", "boost": 3}},
				m{"multi_match": m{"query": joined, "fields": keywordFields(), "type": "best_fields", "boost": 5}},
			)
			for _, nf := range nestedFields {
				should = append(should, nestedQuery(nf,
					m{"multi_match": m{"query": joined, "fields": []string{nf}, "type": "best_fields", "minimum_should_match": "50%"}}))
			}
		}
	}

	for _, term := range parsed.MustNot {
		mustNot = append(mustNot, shouldOfVariants(termQueries(term, false)))
	}

	boolQuery := m{"filter": buildFilters(req.Filters)}
	if len(must) > 0 {
		boolQuery["must"] = must
	}
	if len(should) > 0 {
		boolQuery["should"] = should
		if len(must) == 0 {
			boolQuery["minimum_should_match"] = 1
		}
	}
	if len(mustNot) > 0 {
		boolQuery["must_not"] = mustNot
	}

	size := req.Size
	if size <= 0 {
		size = 100
	}

	highlight := m{}
	for _, f := range highlightFields {
		highlight[f] = m{}
	}

	body := m{
		"query":     m{"bool": boolQuery},
		"from":      req.From,
		"size":      size,
		"highlight": m{"fields": highlight},
	}

	if req.SortField != "" && req.SortField != "_score" {
		order := "asc"
		if req.SortOrder == "desc" {
			order = "desc"
		}
		body["sort"] = []any{m{req.SortField: m{"order": order}}}
	} else {
		body["sort"] = []any{"_score"}
	}
	return body
}

// termQueries produces the ranked match variants for one term. Scoring
// boosts only matter for must terms; must_not variants go unboosted.
func termQueries(term string, boosted bool) []m {
	if search.HasWildcard(term) {
		return wildcardQueries(search.PhraseText(term), "OR")
	}

	isPhrase := search.IsPhrase(term)
	clean := search.PhraseText(term)

	var out []m
	if isPhrase {
		out = append(out,
			matchPhrase("epigraph_text.raw", clean, boost(15, boosted)),
			matchPhrase("epigraph_text", clean, boost(10, boosted)),
		)
		for _, f := range topFields {
			if f == "epigraph_text" {
				continue
			}
			out = append(out,
				matchPhrase(f+".raw", clean, boost(12, boosted)),
				matchPhrase(f, clean, boost(8, boosted)),
			)
		}
		out = append(out,
			m{"multi_match": withBoost(m{"query": clean, "fields": rawFields(), "type": "phrase"}, 6, boosted)},
			m{"query_string": withBoost(m{"query": `"` + clean + `"`, "fields": rawFields(), "default_operator": "AND"}, 5, boosted)},
			m{"multi_match": withBoost(m{"query": clean, "fields": rawFields(), "type": "phrase_prefix"}, 4, boosted)},
			m{"query_string": withBoost(m{"query": `"` + clean + `"`, "fields": keywordFields(), "default_operator": "AND"}, 6, boosted)},
		)
		for _, nf := range nestedFields {
			out = append(out,
				nestedQuery(nf, matchPhrase(nf, clean, boost(5, boosted))),
				nestedQuery(nf, m{"multi_match": withBoost(m{"query": clean, "fields": []string{nf}, "type": "phrase"}, 4, boosted)}),
				nestedQuery(nf, m{"query_string": withBoost(m{"query": `"` + clean + `"`, "fields": []string{nf}, "default_operator": "AND"}, 3, boosted)}),
			)
		}
		return out
	}

	out = append(out,
		m{"multi_match": withBoost(m{"query": clean, "fields": topFields, "type": "best_fields"}, 3, boosted)},
		m{"multi_match": withBoost(m{"query": clean, "fields": keywordFields(), "type": "best_fields"}, 5, boosted)},
	)
	for _, nf := range nestedFields {
		out = append(out, nestedQuery(nf,
			m{"multi_match": m{"query": clean, "fields": []string{nf}, "type": "best_fields"}}))
	}
	return out
}

// wildcardQueries routes glob terms through query_string with wildcard
// analysis on top, keyword and nested fields.
func wildcardQueries(term, operator string) []m {
	out := []m{
		{"query_string": m{"query": term, "fields": topFields, "default_operator": operator, "analyze_wildcard": true, "boost": 3}},
		{"query_string": m{"query": term, "fields": keywordFields(), "default_operator": operator, "analyze_wildcard": true, "boost": 5}},
	}
	for _, nf := range nestedFields {
		out = append(out, nestedQuery(nf,
			m{"query_string": m{"query": term, "fields": []string{nf}, "default_operator": operator, "analyze_wildcard": true}}))
	}
	return out
}

func buildFilters(filters search.Filters) []m {
	out := []m{}
	if _, overridden := filters["dasi_published"]; !overridden {
		out = append(out, m{"term": m{"dasi_published": true}})
	}
	for field, value := range filters {
		switch v := value.(type) {
		case []string:
			out = append(out, m{"terms": m{field: v}})
		default:
			out = append(out, m{"term": m{field: v}})
		}
	}
	return out
}

func shouldOfVariants(variants []m) m {
	if len(variants) == 1 {
		return variants[0]
	}
	return m{"bool": m{"should": variants, "minimum_should_match": 1}}
}

func nestedQuery(field string, query m) m {
	return m{"nested": m{"path": nestedPath(field), "query": query}}
}

func matchPhrase(field, query string, boost float64) m {
	inner := m{"query": query}
	if boost > 0 {
		inner["boost"] = boost
	}
	return m{"match_phrase": m{field: inner}}
}

func boost(v float64, enabled bool) float64 {
	if !enabled {
		return 0
	}
	return v
}

func withBoost(q m, v float64, enabled bool) m {
	if enabled {
		q["boost"] = v
	}
	return q
}
