package claimimport

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/claimsdesk/claims/internal/platform/db"
)

type jobRepoPG struct {
	pool *pgxpool.Pool
}

func NewJobRepoPG(pool *pgxpool.Pool) JobRepository {
	return &jobRepoPG{pool: pool}
}

func (r *jobRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const jobCols = `id, file_name, total_records, processed_records, status, created_at, updated_at`

func scanJob(row pgx.Row) (*Job, error) {
	var j Job
	if err := row.Scan(&j.ID, &j.FileName, &j.TotalRecords, &j.ProcessedRecords,
		&j.Status, &j.CreatedAt, &j.UpdatedAt); err != nil {
		return nil, err
	}
	return &j, nil
}

func (r *jobRepoPG) Create(ctx context.Context, j *Job) error {
	j.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO claim_imports (id, file_name, total_records, processed_records, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`,
		j.ID, j.FileName, j.TotalRecords, j.ProcessedRecords, j.Status,
	).Scan(&j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create import job: %w", err)
	}
	return nil
}

func (r *jobRepoPG) Update(ctx context.Context, j *Job) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE claim_imports
		SET total_records = $2, processed_records = $3, status = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		j.ID, j.TotalRecords, j.ProcessedRecords, j.Status,
	).Scan(&j.UpdatedAt)
	if err != nil {
		if db.IsNotFound(err) {
			return ErrJobNotFound
		}
		return fmt.Errorf("update import job: %w", err)
	}
	return nil
}

func (r *jobRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Job, error) {
	j, err := scanJob(r.conn(ctx).QueryRow(ctx, `SELECT `+jobCols+` FROM claim_imports WHERE id = $1`, id))
	if err != nil {
		if db.IsNotFound(err) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("get import job: %w", err)
	}
	return j, nil
}

func (r *jobRepoPG) List(ctx context.Context, limit, offset int) ([]*Job, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM claim_imports`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count import jobs: %w", err)
	}

	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+jobCols+` FROM claim_imports
		ORDER BY created_at DESC, id
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list import jobs: %w", err)
	}
	defer rows.Close()

	items := []*Job{}
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan import job: %w", err)
		}
		items = append(items, j)
	}
	return items, total, rows.Err()
}
