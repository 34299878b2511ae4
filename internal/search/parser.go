package search

import (
	"regexp"
	"strings"
)

// ParsedQuery groups query terms by boolean role. Phrase terms keep their
// surrounding quotes so the query builder can tell them from bare terms.
type ParsedQuery struct {
	Must    []string
	Should  []string
	MustNot []string
}

func (q ParsedQuery) IsEmpty() bool {
	return len(q.Must) == 0 && len(q.Should) == 0 && len(q.MustNot) == 0
}

var quotedRe = regexp.MustCompile(`"([^"]*)"`)

// ParseQuery implements the +term / -term / "phrase" grammar. Quoted
// phrases are extracted first (balanced quotes only) and required; then
// +terms are required, -terms excluded, and bare terms optional. A lone
// prefix without a term is dropped.
func ParseQuery(raw string) ParsedQuery {
	var out ParsedQuery

	for _, m := range quotedRe.FindAllStringSubmatch(raw, -1) {
		if phrase := strings.TrimSpace(m[1]); phrase != "" {
			out.Must = append(out.Must, `"`+phrase+`"`)
		}
	}
	rest := quotedRe.ReplaceAllString(raw, "")

	for _, tok := range strings.Fields(rest) {
		switch {
		case strings.HasPrefix(tok, "+"):
			if term := strings.TrimSpace(tok[1:]); term != "" {
				out.Must = append(out.Must, term)
			}
		case strings.HasPrefix(tok, "-"):
			if term := strings.TrimSpace(tok[1:]); term != "" {
				out.MustNot = append(out.MustNot, term)
			}
		default:
			// A dangling quote from an unbalanced pair is stripped, the
			// term itself is kept.
			if term := strings.Trim(tok, `"`); term != "" {
				out.Should = append(out.Should, term)
			}
		}
	}
	return out
}

// IsPhrase reports whether a parsed term is a quoted phrase.
func IsPhrase(term string) bool {
	return len(term) >= 2 && strings.HasPrefix(term, `"`) && strings.HasSuffix(term, `"`)
}

// PhraseText strips the phrase quotes.
func PhraseText(term string) string {
	return strings.Trim(term, `"`)
}

// HasWildcard reports whether a term carries glob metacharacters and must
// be routed through pattern matching instead of analysis.
func HasWildcard(term string) bool {
	return strings.ContainsAny(term, "*?")
}
