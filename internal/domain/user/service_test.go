package user

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/claimsdesk/claims/internal/platform/auth"
	"github.com/claimsdesk/claims/pkg/validation"
)

type mockRepo struct {
	users map[uuid.UUID]*User
}

func newMockRepo() *mockRepo {
	return &mockRepo{users: make(map[uuid.UUID]*User)}
}

func (m *mockRepo) Create(_ context.Context, u *User) error {
	for _, other := range m.users {
		if strings.EqualFold(other.Email, u.Email) {
			return ErrEmailTaken
		}
	}
	u.ID = uuid.New()
	u.CreatedAt = time.Now()
	u.UpdatedAt = u.CreatedAt
	m.users[u.ID] = u
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return u, nil
}

func (m *mockRepo) GetByEmail(_ context.Context, email string) (*User, error) {
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return nil, ErrNotFound
}

func newTestService() (*Service, *mockRepo) {
	repo := newMockRepo()
	svc := NewService(repo)
	svc.cost = bcrypt.MinCost
	return svc, repo
}

func TestService_Register(t *testing.T) {
	svc, _ := newTestService()
	u, err := svc.Register(context.Background(), Credentials{
		Email:    "  Jane@Example.COM ",
		Password: "s3cret-pass",
		Role:     auth.RoleAdmin,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.Email != "jane@example.com" {
		t.Errorf("expected lower-cased email, got %q", u.Email)
	}
	if u.Role != auth.RoleStaff {
		t.Errorf("register must create staff users, got %q", u.Role)
	}
	if u.PasswordDigest == "s3cret-pass" || u.PasswordDigest == "" {
		t.Error("expected password to be hashed")
	}
}

func TestService_CreateUser_Validation(t *testing.T) {
	svc, _ := newTestService()
	mismatch := "other"
	tests := []struct {
		name string
		cred Credentials
		want string
	}{
		{"blank email", Credentials{Password: "x", Role: auth.RoleStaff}, "Email can't be blank"},
		{"bad email", Credentials{Email: "nope", Password: "x", Role: auth.RoleStaff}, "Email is invalid"},
		{"blank password", Credentials{Email: "a@b.co", Role: auth.RoleStaff}, "Password can't be blank"},
		{"long password", Credentials{Email: "a@b.co", Password: strings.Repeat("x", 73), Role: auth.RoleStaff}, "Password is too long (maximum is 72 characters)"},
		{"confirmation", Credentials{Email: "a@b.co", Password: "x", PasswordConfirmation: &mismatch, Role: auth.RoleStaff}, "Password confirmation doesn't match Password"},
		{"role", Credentials{Email: "a@b.co", Password: "x", Role: "root"}, "Role is not included in the list"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateUser(context.Background(), tt.cred)
			msgs, ok := validation.Messages(err)
			if !ok || len(msgs) != 1 || msgs[0] != tt.want {
				t.Errorf("expected [%s], got %v", tt.want, err)
			}
		})
	}
}

func TestService_CreateUser_EmailTaken(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	cred := Credentials{Email: "jane@example.com", Password: "pw", Role: auth.RoleStaff}
	if _, err := svc.CreateUser(ctx, cred); err != nil {
		t.Fatal(err)
	}
	cred.Email = "JANE@example.com"
	_, err := svc.CreateUser(ctx, cred)
	msgs, ok := validation.Messages(err)
	if !ok || msgs[0] != "Email has already been taken" {
		t.Errorf("expected taken message, got %v", err)
	}
}

func TestService_Authenticate(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	created, err := svc.CreateUser(ctx, Credentials{Email: "admin@example.com", Password: "correct horse", Role: auth.RoleAdmin})
	if err != nil {
		t.Fatal(err)
	}

	u, err := svc.Authenticate(ctx, "ADMIN@example.com", "correct horse")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.ID != created.ID || !u.IsAdmin() {
		t.Errorf("unexpected user %+v", u)
	}

	if _, err := svc.Authenticate(ctx, "admin@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials for wrong password, got %v", err)
	}
	if _, err := svc.Authenticate(ctx, "ghost@example.com", "correct horse"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials for unknown email, got %v", err)
	}
}
