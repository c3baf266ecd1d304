package claim

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/claimsdesk/claims/pkg/validation"
)

type Service struct {
	claims Repository
}

func NewService(claims Repository) *Service {
	return &Service{claims: claims}
}

// Changes carries a partial update; nil fields are left untouched.
type Changes struct {
	ClaimNumber   *string
	ServiceDate   *time.Time
	Amount        *decimal.Decimal
	Status        *string
	PatientID     *uuid.UUID
	ClaimImportID *uuid.UUID
}

func (ch Changes) apply(c *Claim) {
	if ch.ClaimNumber != nil {
		c.ClaimNumber = *ch.ClaimNumber
	}
	if ch.ServiceDate != nil {
		c.ServiceDate = *ch.ServiceDate
	}
	if ch.Amount != nil {
		c.Amount = *ch.Amount
	}
	if ch.Status != nil {
		c.Status = *ch.Status
	}
	if ch.PatientID != nil {
		c.PatientID = *ch.PatientID
	}
	if ch.ClaimImportID != nil {
		c.ClaimImportID = ch.ClaimImportID
	}
}

func (s *Service) CreateClaim(ctx context.Context, ch Changes) (*Claim, error) {
	c := &Claim{Status: StatusPending}
	ch.apply(c)
	c.Normalize()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if err := s.claims.Create(ctx, c); err != nil {
		return nil, asValidation(err)
	}
	return s.claims.GetByID(ctx, c.ID)
}

func (s *Service) GetClaim(ctx context.Context, id uuid.UUID) (*Claim, error) {
	return s.claims.GetByID(ctx, id)
}

func (s *Service) UpdateClaim(ctx context.Context, id uuid.UUID, ch Changes) (*Claim, error) {
	c, err := s.claims.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	ch.apply(c)
	c.Normalize()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if err := s.claims.Update(ctx, c); err != nil {
		return nil, asValidation(err)
	}
	return s.claims.GetByID(ctx, id)
}

func (s *Service) DeleteClaim(ctx context.Context, id uuid.UUID) error {
	return s.claims.Delete(ctx, id)
}

func (s *Service) ListClaims(ctx context.Context, f Filter, limit, offset int) ([]*Claim, int, error) {
	return s.claims.List(ctx, f, limit, offset)
}

// ListForExport returns every claim matching f, newest first.
func (s *Service) ListForExport(ctx context.Context, f Filter) ([]*Claim, error) {
	return s.claims.ListAll(ctx, f)
}

func asValidation(err error) error {
	switch {
	case errors.Is(err, ErrDuplicateClaimNumber):
		return validation.New("claim_number has already been taken")
	case errors.Is(err, ErrPatientNotFound), errors.Is(err, ErrImportNotFound):
		return validation.New(err.Error())
	}
	return err
}
