package search

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
)

// jsonbTextExpr flattens a JSONB array column into searchable text:
// objects contribute their "text" member, plain values their string form.
func jsonbTextExpr(field string) string {
	return fmt.Sprintf(`CASE
		WHEN e.%[1]s IS NULL THEN ''
		WHEN jsonb_typeof(e.%[1]s) = 'array' THEN
			COALESCE((
				SELECT string_agg(CASE
					WHEN jsonb_typeof(value) = 'object' AND value ? 'text'
					THEN value #>> '{text}'
					ELSE value #>> '{}'
				END, ' ')
				FROM jsonb_array_elements(e.%[1]s)
			), '')
		ELSE e.%[1]s::text
	END`, field)
}

// searchVectorExpr is the concatenated field set the relational search
// matches against, the same surface the index covers.
var searchVectorExpr = strings.Join([]string{
	"COALESCE(e.title::text, '')",
	"COALESCE(e.epigraph_text::text, '')",
	"COALESCE(e.general_notes::text, '')",
	"COALESCE(e.support_notes::text, '')",
	"COALESCE(e.deposit_notes::text, '')",
	jsonbTextExpr("translations"),
	jsonbTextExpr("cultural_notes"),
	jsonbTextExpr("apparatus_notes"),
	jsonbTextExpr("bibliography"),
}, " || ' ' || ")

var punctRe = regexp.MustCompile(`[!@#$%^&*()+=\[\]{};:"\\|,._<>/?-]`)

// sortableFields whitelists ORDER BY targets.
var sortableFields = map[string]bool{
	"id":     true,
	"title":  true,
	"period": true,
}

// Fallback runs the lexical search on Postgres full-text matching when the
// index is unavailable. Boolean operators degrade to plain AND matching;
// results carry no relevance score.
type Fallback struct {
	db *sql.DB
}

func NewFallback(db *sql.DB) *Fallback {
	return &Fallback{db: db}
}

func (f *Fallback) Search(ctx context.Context, req Request) (*Result, error) {
	cleaned := strings.Join(strings.Fields(punctRe.ReplaceAllString(req.Query, " ")), " ")

	filters := req.Filters.Sanitize()

	var (
		conds []string
		args  []any
	)
	// Published-only is the default, dropped when the caller constrains
	// dasi_published explicitly, matching the index path.
	if _, overridden := filters["dasi_published"]; !overridden {
		conds = append(conds, "e.dasi_published IS NOT FALSE")
	}
	if cleaned != "" {
		args = append(args, cleaned)
		conds = append(conds, fmt.Sprintf("to_tsvector(%s) @@ plainto_tsquery($%d)", searchVectorExpr, len(args)))
	}

	for field, value := range filters {
		switch v := value.(type) {
		case []string:
			args = append(args, "{"+strings.Join(v, ",")+"}")
			conds = append(conds, fmt.Sprintf("e.%s = ANY($%d::text[])", field, len(args)))
		default:
			args = append(args, v)
			conds = append(conds, fmt.Sprintf("e.%s = $%d", field, len(args)))
		}
	}

	order := "e.id ASC"
	if sortableFields[req.SortField] {
		dir := "ASC"
		if strings.EqualFold(req.SortOrder, "desc") {
			dir = "DESC"
		}
		order = fmt.Sprintf("e.%s %s", req.SortField, dir)
	}

	size := req.Size
	if size <= 0 {
		size = 100
	}
	args = append(args, size, req.From)

	query := fmt.Sprintf(
		`SELECT e.id, e.title, COUNT(*) OVER() AS total
		 FROM epigraphs e
		 WHERE %s
		 ORDER BY %s
		 LIMIT $%d OFFSET $%d`,
		strings.Join(conds, " AND "), order, len(args)-1, len(args))

	rows, err := f.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("relational search: %w", err)
	}
	defer rows.Close()

	res := &Result{Engine: EngineRelational}
	for rows.Next() {
		var hit Hit
		if err := rows.Scan(&hit.EpigraphID, &hit.Title, &res.Total); err != nil {
			return nil, fmt.Errorf("relational search scan: %w", err)
		}
		res.Hits = append(res.Hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("relational search rows: %w", err)
	}
	return res, nil
}
