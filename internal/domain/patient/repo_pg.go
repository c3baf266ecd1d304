package patient

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/claimsdesk/claims/internal/platform/db"
)

const (
	identityIndex = "patients_identity_idx"

	// findOrCreateAttempts bounds the insert/select loop. Another attempt
	// is only needed when the conflicting row is deleted between the two
	// statements.
	findOrCreateAttempts = 3
)

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const patientCols = `id, first_name, last_name, dob, created_at, updated_at`

func (r *repoPG) scan(row pgx.Row) (*Patient, error) {
	var p Patient
	if err := row.Scan(&p.ID, &p.FirstName, &p.LastName, &p.DOB, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *repoPG) FindByIdentity(ctx context.Context, id Identity) (*Patient, error) {
	p, err := r.scan(r.conn(ctx).QueryRow(ctx, `
		SELECT `+patientCols+` FROM patients
		WHERE lower(first_name) = lower($1) AND lower(last_name) = lower($2) AND dob = $3`,
		id.FirstName, id.LastName, id.DOB))
	if err != nil {
		if db.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find patient by identity: %w", err)
	}
	return p, nil
}

func (r *repoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patients (id, first_name, last_name, dob)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at`,
		p.ID, p.FirstName, p.LastName, p.DOB,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if db.IsUniqueViolation(err, identityIndex) {
			return ErrDuplicate
		}
		return fmt.Errorf("create patient: %w", err)
	}
	return nil
}

func (r *repoPG) FindOrCreate(ctx context.Context, id Identity) (*Patient, bool, error) {
	for attempt := 0; attempt < findOrCreateAttempts; attempt++ {
		p, err := r.scan(r.conn(ctx).QueryRow(ctx, `
			INSERT INTO patients (id, first_name, last_name, dob)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT ((lower(first_name)), (lower(last_name)), dob) DO NOTHING
			RETURNING `+patientCols,
			uuid.New(), id.FirstName, id.LastName, id.DOB))
		if err == nil {
			return p, true, nil
		}
		if !db.IsNotFound(err) {
			return nil, false, fmt.Errorf("insert patient: %w", err)
		}

		// Conflict: the patient already exists.
		p, err = r.FindByIdentity(ctx, id)
		if err == nil {
			return p, false, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, false, err
		}
	}
	return nil, false, fmt.Errorf("find or create patient %s %s: gave up after %d attempts",
		id.FirstName, id.LastName, findOrCreateAttempts)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, err := r.scan(r.conn(ctx).QueryRow(ctx,
		`SELECT `+patientCols+` FROM patients WHERE id = $1`, id))
	if err != nil {
		if db.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get patient: %w", err)
	}
	return p, nil
}

func (r *repoPG) Update(ctx context.Context, p *Patient) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE patients SET first_name = $2, last_name = $3, dob = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING created_at, updated_at`,
		p.ID, p.FirstName, p.LastName, p.DOB,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		switch {
		case db.IsNotFound(err):
			return ErrNotFound
		case db.IsUniqueViolation(err, identityIndex):
			return ErrDuplicate
		}
		return fmt.Errorf("update patient: %w", err)
	}
	return nil
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM patients WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete patient: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) List(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM patients`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count patients: %w", err)
	}

	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+patientCols+` FROM patients
		ORDER BY created_at DESC, id
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list patients: %w", err)
	}
	defer rows.Close()

	items := []*Patient{}
	for rows.Next() {
		p, err := r.scan(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan patient: %w", err)
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

func (r *repoPG) ListClaims(ctx context.Context, patientID uuid.UUID) ([]*ClaimSummary, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, claim_number, service_date, amount::text, status
		FROM claims WHERE patient_id = $1
		ORDER BY service_date DESC, claim_number`, patientID)
	if err != nil {
		return nil, fmt.Errorf("list patient claims: %w", err)
	}
	defer rows.Close()

	items := []*ClaimSummary{}
	for rows.Next() {
		var (
			c      ClaimSummary
			amount string
		)
		if err := rows.Scan(&c.ID, &c.ClaimNumber, &c.ServiceDate, &amount, &c.Status); err != nil {
			return nil, fmt.Errorf("scan patient claim: %w", err)
		}
		if c.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("parse amount %q: %w", amount, err)
		}
		items = append(items, &c)
	}
	return items, rows.Err()
}
