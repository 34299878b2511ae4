package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"

	"hudhud/backend/internal/epigraph"
)

// ChunkRepo persists retrieval chunks. Chunk text is immutable once
// written; the only mutation is attaching an embedding.
type ChunkRepo struct {
	db *sql.DB
}

func NewChunkRepo(db *sql.DB) *ChunkRepo {
	return &ChunkRepo{db: db}
}

const chunkColumns = `id, epigraph_id, chunk_text, chunk_type, chunk_index, token_count, chunk_metadata, embedding`

// ReplaceForEpigraph deletes the epigraph's chunk set and writes the new
// one in a single transaction, so re-chunking never leaves a partial mix
// of old and new chunks.
func (r *ChunkRepo) ReplaceForEpigraph(ctx context.Context, epigraphID int, chunks []epigraph.Chunk) ([]epigraph.Chunk, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("replace chunks: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM epigraph_chunks WHERE epigraph_id = $1`, epigraphID); err != nil {
		return nil, fmt.Errorf("replace chunks: delete: %w", err)
	}

	insert := `INSERT INTO epigraph_chunks (epigraph_id, chunk_text, chunk_type, chunk_index, token_count, chunk_metadata, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`

	saved := make([]epigraph.Chunk, len(chunks))
	for i, c := range chunks {
		meta, err := json.Marshal(c.Metadata)
		if err != nil {
			return nil, fmt.Errorf("replace chunks: encode metadata: %w", err)
		}
		saved[i] = c
		saved[i].EpigraphID = epigraphID
		err = tx.QueryRowContext(ctx, insert,
			epigraphID, c.Text, string(c.Type), c.Index, c.TokenCount, meta, embeddingArg(c.Embedding),
		).Scan(&saved[i].ID)
		if err != nil {
			return nil, fmt.Errorf("replace chunks: insert %d: %w", c.Index, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("replace chunks: commit: %w", err)
	}
	return saved, nil
}

func (r *ChunkRepo) GetByEpigraph(ctx context.Context, epigraphID int) ([]epigraph.Chunk, error) {
	query := `SELECT ` + chunkColumns + ` FROM epigraph_chunks WHERE epigraph_id = $1 ORDER BY chunk_index`
	rows, err := r.db.QueryContext(ctx, query, epigraphID)
	if err != nil {
		return nil, fmt.Errorf("get chunks for epigraph %d: %w", epigraphID, err)
	}
	defer rows.Close()
	return collectChunks(rows)
}

func (r *ChunkRepo) GetByIDs(ctx context.Context, ids []int) ([]epigraph.Chunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `SELECT ` + chunkColumns + ` FROM epigraph_chunks WHERE id = ANY($1) ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("get chunks: %w", err)
	}
	defer rows.Close()
	return collectChunks(rows)
}

func (r *ChunkRepo) ListUnembedded(ctx context.Context, limit int) ([]epigraph.Chunk, error) {
	query := `SELECT ` + chunkColumns + ` FROM epigraph_chunks WHERE embedding IS NULL ORDER BY id LIMIT $1`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list unembedded chunks: %w", err)
	}
	defer rows.Close()
	return collectChunks(rows)
}

func (r *ChunkRepo) SetEmbedding(ctx context.Context, chunkID int, vector []float32) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE epigraph_chunks SET embedding = $2 WHERE id = $1`, chunkID, embeddingArg(vector))
	if err != nil {
		return fmt.Errorf("set embedding for chunk %d: %w", chunkID, err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return fmt.Errorf("set embedding: chunk %d not found", chunkID)
	}
	return nil
}

func (r *ChunkRepo) DeleteForEpigraph(ctx context.Context, epigraphID int) (int, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM epigraph_chunks WHERE epigraph_id = $1`, epigraphID)
	if err != nil {
		return 0, fmt.Errorf("delete chunks for epigraph %d: %w", epigraphID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (r *ChunkRepo) Stats(ctx context.Context) (*epigraph.ChunkStats, error) {
	stats := &epigraph.ChunkStats{ChunksByType: map[string]int{}}

	summary := `SELECT COUNT(*), COALESCE(AVG(token_count), 0), COUNT(embedding),
		COALESCE(SUM(token_count) FILTER (WHERE embedding IS NULL), 0)
		FROM epigraph_chunks`
	err := r.db.QueryRowContext(ctx, summary).Scan(
		&stats.TotalChunks, &stats.AverageTokens, &stats.ChunksWithEmbedding, &stats.UnembeddedTokens)
	if err != nil {
		return nil, fmt.Errorf("chunk stats: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT chunk_type, COUNT(*) FROM epigraph_chunks GROUP BY chunk_type`)
	if err != nil {
		return nil, fmt.Errorf("chunk stats by type: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var typ string
		var count int
		if err := rows.Scan(&typ, &count); err != nil {
			return nil, err
		}
		stats.ChunksByType[typ] = count
	}
	return stats, rows.Err()
}

// embeddingArg maps a nil vector to SQL NULL so absence stays
// distinguishable from an empty array.
func embeddingArg(vec []float32) any {
	if vec == nil {
		return nil
	}
	return pq.Array(vec)
}

func collectChunks(rows *sql.Rows) ([]epigraph.Chunk, error) {
	var out []epigraph.Chunk
	for rows.Next() {
		var c epigraph.Chunk
		var typ string
		var meta []byte
		var emb pq.Float32Array
		if err := rows.Scan(&c.ID, &c.EpigraphID, &c.Text, &typ, &c.Index, &c.TokenCount, &meta, &emb); err != nil {
			return nil, err
		}
		c.Type = epigraph.ChunkType(typ)
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &c.Metadata); err != nil {
				return nil, fmt.Errorf("decode chunk %d metadata: %w", c.ID, err)
			}
		}
		c.Embedding = emb
		out = append(out, c)
	}
	return out, rows.Err()
}
