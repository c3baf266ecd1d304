package patient

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/claimsdesk/claims/pkg/validation"
)

type Service struct {
	patients Repository
}

func NewService(patients Repository) *Service {
	return &Service{patients: patients}
}

// Changes carries a partial update; nil fields are left untouched.
type Changes struct {
	FirstName *string
	LastName  *string
	DOB       *time.Time
}

func normalize(p *Patient) {
	p.FirstName = strings.TrimSpace(p.FirstName)
	p.LastName = strings.TrimSpace(p.LastName)
	p.DOB = truncateDate(p.DOB)
}

func (s *Service) CreatePatient(ctx context.Context, p *Patient) error {
	normalize(p)
	if err := p.Validate(); err != nil {
		return err
	}
	if err := s.patients.Create(ctx, p); err != nil {
		return duplicateAsValidation(err)
	}
	return nil
}

// GetPatient returns the patient together with its claims.
func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, err := s.patients.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	claims, err := s.patients.ListClaims(ctx, id)
	if err != nil {
		return nil, err
	}
	p.Claims = claims
	return p, nil
}

func (s *Service) UpdatePatient(ctx context.Context, id uuid.UUID, ch Changes) (*Patient, error) {
	p, err := s.patients.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if ch.FirstName != nil {
		p.FirstName = *ch.FirstName
	}
	if ch.LastName != nil {
		p.LastName = *ch.LastName
	}
	if ch.DOB != nil {
		p.DOB = *ch.DOB
	}
	normalize(p)
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := s.patients.Update(ctx, p); err != nil {
		return nil, duplicateAsValidation(err)
	}
	return p, nil
}

func (s *Service) DeletePatient(ctx context.Context, id uuid.UUID) error {
	return s.patients.Delete(ctx, id)
}

func (s *Service) ListPatients(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	return s.patients.List(ctx, limit, offset)
}

func duplicateAsValidation(err error) error {
	if errors.Is(err, ErrDuplicate) {
		return validation.New(ErrDuplicate.Error())
	}
	return err
}
