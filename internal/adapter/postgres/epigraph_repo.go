package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"hudhud/backend/internal/epigraph"
)

// EpigraphRepo reads the epigraphs table owned by the import pipeline.
// This subsystem never writes to it.
type EpigraphRepo struct {
	db *sql.DB
}

func NewEpigraphRepo(db *sql.DB) *EpigraphRepo {
	return &EpigraphRepo{db: db}
}

const epigraphColumns = `id, COALESCE(dasi_id, 0), title,
	COALESCE(period, ''), COALESCE(language_level_1, ''), COALESCE(language_level_2, ''), COALESCE(language_level_3, ''),
	COALESCE(textual_typology, ''), COALESCE(royal_inscription, FALSE), COALESCE(dasi_published, TRUE),
	COALESCE(epigraph_text, ''), COALESCE(general_notes, ''), COALESCE(support_notes, ''), COALESCE(deposit_notes, ''),
	COALESCE(translations, '[]'::jsonb), COALESCE(cultural_notes, '[]'::jsonb), COALESCE(apparatus_notes, '[]'::jsonb),
	COALESCE(objects, '[]'::jsonb), COALESCE(sites, '[]'::jsonb), COALESCE(editors, '[]'::jsonb), COALESCE(bibliography, '[]'::jsonb)`

// GetByID returns (nil, nil) when the record does not exist; callers
// treat a missing record as a skippable condition, not a failure.
func (r *EpigraphRepo) GetByID(ctx context.Context, id int) (*epigraph.Epigraph, error) {
	query := `SELECT ` + epigraphColumns + ` FROM epigraphs WHERE id = $1`
	e, err := scanEpigraph(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get epigraph %d: %w", id, err)
	}
	return e, nil
}

func (r *EpigraphRepo) GetByIDs(ctx context.Context, ids []int) ([]epigraph.Epigraph, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `SELECT ` + epigraphColumns + ` FROM epigraphs WHERE id = ANY($1) ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("get epigraphs: %w", err)
	}
	defer rows.Close()
	return collectEpigraphs(rows)
}

// FindByTitle matches loosely: case-insensitive substring, shortest
// titles first so "RES 4176" outranks "RES 4176 bis".
func (r *EpigraphRepo) FindByTitle(ctx context.Context, title string, limit int) ([]epigraph.Epigraph, error) {
	query := `SELECT ` + epigraphColumns + ` FROM epigraphs
		WHERE title ILIKE '%' || $1 || '%' AND dasi_published IS NOT FALSE
		ORDER BY LENGTH(title), id LIMIT $2`
	rows, err := r.db.QueryContext(ctx, query, title, limit)
	if err != nil {
		return nil, fmt.Errorf("find epigraphs by title: %w", err)
	}
	defer rows.Close()
	return collectEpigraphs(rows)
}

func (r *EpigraphRepo) ListIDs(ctx context.Context, publishedOnly bool) ([]int, error) {
	query := `SELECT id FROM epigraphs ORDER BY id`
	if publishedOnly {
		query = `SELECT id FROM epigraphs WHERE dasi_published IS NOT FALSE ORDER BY id`
	}
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list epigraph ids: %w", err)
	}
	defer rows.Close()

	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEpigraph(row rowScanner) (*epigraph.Epigraph, error) {
	var e epigraph.Epigraph
	var translations, culturalNotes, apparatusNotes, objects, sites, editors, bibliography []byte

	err := row.Scan(
		&e.ID, &e.DasiID, &e.Title,
		&e.Period, &e.LanguageLevel1, &e.LanguageLevel2, &e.LanguageLevel3,
		&e.TextualTypology, &e.Royal, &e.Published,
		&e.Text, &e.GeneralNotes, &e.SupportNotes, &e.DepositNotes,
		&translations, &culturalNotes, &apparatusNotes,
		&objects, &sites, &editors, &bibliography,
	)
	if err != nil {
		return nil, err
	}

	for _, col := range []struct {
		raw []byte
		dst any
	}{
		{translations, &e.Translations},
		{culturalNotes, &e.CulturalNotes},
		{apparatusNotes, &e.ApparatusNotes},
		{objects, &e.Objects},
		{sites, &e.Sites},
		{editors, &e.Editors},
		{bibliography, &e.Bibliography},
	} {
		if len(col.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(col.raw, col.dst); err != nil {
			return nil, fmt.Errorf("decode epigraph %d jsonb: %w", e.ID, err)
		}
	}
	return &e, nil
}

func collectEpigraphs(rows *sql.Rows) ([]epigraph.Epigraph, error) {
	var out []epigraph.Epigraph
	for rows.Next() {
		e, err := scanEpigraph(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}
