package patient

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrNotFound  = errors.New("patient not found")
	ErrDuplicate = errors.New("Patient with this name and DOB already exists")
)

type Repository interface {
	// FindByIdentity returns ErrNotFound when no patient matches.
	FindByIdentity(ctx context.Context, id Identity) (*Patient, error)
	Create(ctx context.Context, p *Patient) error
	// FindOrCreate returns the patient for id, creating it if needed. The
	// bool reports whether this call created it.
	FindOrCreate(ctx context.Context, id Identity) (*Patient, bool, error)

	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	Update(ctx context.Context, p *Patient) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, limit, offset int) ([]*Patient, int, error)
	ListClaims(ctx context.Context, patientID uuid.UUID) ([]*ClaimSummary, error)
}
