package claim

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/claimsdesk/claims/internal/domain/patient"
	"github.com/claimsdesk/claims/internal/platform/db"
)

const (
	claimNumberKey = "claims_claim_number_key"
	patientFKey    = "claims_patient_id_fkey"
	importFKey     = "claims_claim_import_id_fkey"
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

// Amounts cross the driver as text so no float conversion is involved.
const claimCols = `c.id, c.claim_number, c.service_date, c.amount::text, c.status,
	c.patient_id, c.claim_import_id, c.created_at, c.updated_at,
	p.first_name, p.last_name, p.dob, p.created_at, p.updated_at`

const claimFrom = ` FROM claims c JOIN patients p ON p.id = c.patient_id`

func scanClaim(row pgx.Row) (*Claim, error) {
	var (
		c      Claim
		p      patient.Patient
		amount string
	)
	err := row.Scan(&c.ID, &c.ClaimNumber, &c.ServiceDate, &amount, &c.Status,
		&c.PatientID, &c.ClaimImportID, &c.CreatedAt, &c.UpdatedAt,
		&p.FirstName, &p.LastName, &p.DOB, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if c.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	p.ID = c.PatientID
	c.Patient = &p
	c.PatientName = p.FullName()
	return &c, nil
}

func (r *repoPG) Create(ctx context.Context, c *Claim) error {
	c.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO claims (id, claim_number, service_date, amount, status, patient_id, claim_import_id)
		VALUES ($1, $2, $3, $4::text::numeric, $5, $6, $7)
		RETURNING created_at, updated_at`,
		c.ID, c.ClaimNumber, c.ServiceDate, c.Amount.StringFixed(2), c.Status, c.PatientID, c.ClaimImportID,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return classify("create claim", err)
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Claim, error) {
	c, err := scanClaim(r.conn(ctx).QueryRow(ctx, `SELECT `+claimCols+claimFrom+` WHERE c.id = $1`, id))
	if err != nil {
		if db.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get claim: %w", err)
	}
	return c, nil
}

func (r *repoPG) Update(ctx context.Context, c *Claim) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE claims SET claim_number = $2, service_date = $3, amount = $4::text::numeric,
			status = $5, patient_id = $6, claim_import_id = $7, updated_at = NOW()
		WHERE id = $1
		RETURNING created_at, updated_at`,
		c.ID, c.ClaimNumber, c.ServiceDate, c.Amount.StringFixed(2), c.Status, c.PatientID, c.ClaimImportID,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if db.IsNotFound(err) {
			return ErrNotFound
		}
		return classify("update claim", err)
	}
	return nil
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM claims WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete claim: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*Claim, int, error) {
	where, args := f.where()

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*)`+claimFrom+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count claims: %w", err)
	}

	n := len(args)
	args = append(args, limit, offset)
	items, err := r.query(ctx, `SELECT `+claimCols+claimFrom+where+
		fmt.Sprintf(` ORDER BY c.created_at DESC, c.id LIMIT $%d OFFSET $%d`, n+1, n+2), args...)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *repoPG) ListAll(ctx context.Context, f Filter) ([]*Claim, error) {
	where, args := f.where()
	return r.query(ctx, `SELECT `+claimCols+claimFrom+where+` ORDER BY c.created_at DESC, c.id`, args...)
}

func (r *repoPG) query(ctx context.Context, sql string, args ...interface{}) ([]*Claim, error) {
	rows, err := r.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list claims: %w", err)
	}
	defer rows.Close()

	items := []*Claim{}
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, fmt.Errorf("scan claim: %w", err)
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

// where renders the filter as a WHERE clause with positional arguments.
func (f Filter) where() (string, []interface{}) {
	var (
		conds []string
		args  []interface{}
	)
	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.Status != "" {
		add("c.status = $%d", f.Status)
	}
	if f.PatientID != nil {
		add("c.patient_id = $%d", *f.PatientID)
	}
	if f.ImportID != nil {
		add("c.claim_import_id = $%d", *f.ImportID)
	}
	if f.From != nil {
		add("c.service_date >= $%d", *f.From)
	}
	if f.To != nil {
		add("c.service_date <= $%d", *f.To)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func classify(op string, err error) error {
	switch {
	case db.IsUniqueViolation(err, claimNumberKey):
		return ErrDuplicateClaimNumber
	case db.IsForeignKeyViolation(err, patientFKey):
		return ErrPatientNotFound
	case db.IsForeignKeyViolation(err, importFKey):
		return ErrImportNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}
