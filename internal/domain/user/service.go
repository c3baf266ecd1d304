package user

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/claimsdesk/claims/internal/platform/auth"
	"github.com/claimsdesk/claims/pkg/validation"
)

type Service struct {
	users Repository
	cost  int
}

func NewService(users Repository) *Service {
	return &Service{users: users, cost: bcrypt.DefaultCost}
}

// Register signs up a staff user. Any requested role is ignored.
func (s *Service) Register(ctx context.Context, cred Credentials) (*User, error) {
	cred.Role = auth.RoleStaff
	return s.CreateUser(ctx, cred)
}

// CreateUser creates a user with the role given in cred.
func (s *Service) CreateUser(ctx context.Context, cred Credentials) (*User, error) {
	cred.Email = NormalizeEmail(cred.Email)
	if err := cred.validate(); err != nil {
		return nil, err
	}

	digest, err := bcrypt.GenerateFromPassword([]byte(cred.Password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u := &User{Email: cred.Email, PasswordDigest: string(digest), Role: cred.Role}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return nil, validation.New(ErrEmailTaken.Error())
		}
		return nil, err
	}
	return u, nil
}

// Authenticate returns ErrInvalidCredentials for an unknown email or a wrong
// password alike.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	u, err := s.users.GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordDigest), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

func (s *Service) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.users.GetByID(ctx, id)
}
