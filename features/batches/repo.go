package batches

import (
	"context"
	"database/sql"

	"github.com/lib/pq"

	"hudhud/backend/internal/embedding"
)

type Repository interface {
	Save(ctx context.Context, job *Job) error
	Get(ctx context.Context, id int) (*Job, error)
	List(ctx context.Context) ([]Job, error)
	UpdateStatus(ctx context.Context, job *Job) error
	MarkApplied(ctx context.Context, id int, succeeded, failed int) error
}

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

const jobColumns = `id, provider_id, status, input_count, succeeded, failed, chunk_ids, output_file, error_file, applied_at, created_at, updated_at`

func (r *PostgresRepo) Save(ctx context.Context, job *Job) error {
	query := `INSERT INTO embedding_jobs (provider_id, status, input_count, chunk_ids)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at`
	return r.db.QueryRowContext(ctx, query,
		job.ProviderID, string(job.Status), job.InputCount, pq.Array(job.ChunkIDs),
	).Scan(&job.ID, &job.CreatedAt, &job.UpdatedAt)
}

func (r *PostgresRepo) Get(ctx context.Context, id int) (*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM embedding_jobs WHERE id = $1`
	job, err := scanJob(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return job, nil
}

func (r *PostgresRepo) List(ctx context.Context) ([]Job, error) {
	query := `SELECT ` + jobColumns + ` FROM embedding_jobs ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

func (r *PostgresRepo) UpdateStatus(ctx context.Context, job *Job) error {
	query := `UPDATE embedding_jobs
		SET status = $2, succeeded = $3, failed = $4, output_file = $5, error_file = $6, updated_at = NOW()
		WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query,
		job.ID, string(job.Status), job.Succeeded, job.Failed, job.OutputFile, job.ErrorFile)
	return err
}

func (r *PostgresRepo) MarkApplied(ctx context.Context, id int, succeeded, failed int) error {
	query := `UPDATE embedding_jobs
		SET succeeded = $2, failed = $3, applied_at = NOW(), updated_at = NOW()
		WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id, succeeded, failed)
	return err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*Job, error) {
	j := &Job{}
	var status string
	var chunkIDs pq.Int64Array
	var appliedAt sql.NullTime
	if err := row.Scan(
		&j.ID, &j.ProviderID, &status, &j.InputCount, &j.Succeeded, &j.Failed,
		&chunkIDs, &j.OutputFile, &j.ErrorFile, &appliedAt, &j.CreatedAt, &j.UpdatedAt,
	); err != nil {
		return nil, err
	}
	j.Status = embedding.BatchState(status)
	if appliedAt.Valid {
		j.AppliedAt = &appliedAt.Time
	}
	j.ChunkIDs = make([]int, len(chunkIDs))
	for i, id := range chunkIDs {
		j.ChunkIDs[i] = int(id)
	}
	return j, nil
}
