package claim

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrNotFound             = errors.New("claim not found")
	ErrDuplicateClaimNumber = errors.New("claim number has already been taken")
	ErrPatientNotFound      = errors.New("patient must exist")
	ErrImportNotFound       = errors.New("claim_import must exist")
)

type Repository interface {
	Create(ctx context.Context, c *Claim) error
	GetByID(ctx context.Context, id uuid.UUID) (*Claim, error)
	Update(ctx context.Context, c *Claim) error
	Delete(ctx context.Context, id uuid.UUID) error
	// List returns one page, newest first, and the total matching count.
	List(ctx context.Context, f Filter, limit, offset int) ([]*Claim, int, error)
	// ListAll returns every matching claim, newest first.
	ListAll(ctx context.Context, f Filter) ([]*Claim, error)
}
