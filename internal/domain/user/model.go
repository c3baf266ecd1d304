package user

import (
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/claimsdesk/claims/internal/platform/auth"
	"github.com/claimsdesk/claims/pkg/validation"
)

// bcrypt ignores everything past 72 bytes.
const maxPasswordLen = 72

type User struct {
	ID             uuid.UUID `json:"id"`
	Email          string    `json:"email"`
	PasswordDigest string    `json:"-"`
	Role           string    `json:"role"`
	CreatedAt      time.Time `json:"-"`
	UpdatedAt      time.Time `json:"-"`
}

func (u *User) IsAdmin() bool { return u.Role == auth.RoleAdmin }

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Credentials is the input for creating a user.
type Credentials struct {
	Email                string
	Password             string
	PasswordConfirmation *string
	Role                 string
}

func (c Credentials) validate() error {
	var errs validation.Errors
	if c.Email == "" {
		errs.Add("Email can't be blank")
	} else if addr, err := mail.ParseAddress(c.Email); err != nil || addr.Address != c.Email {
		errs.Add("Email is invalid")
	}
	switch {
	case c.Password == "":
		errs.Add("Password can't be blank")
	case len(c.Password) > maxPasswordLen:
		errs.Add("Password is too long (maximum is 72 characters)")
	}
	if c.PasswordConfirmation != nil && *c.PasswordConfirmation != c.Password {
		errs.Add("Password confirmation doesn't match Password")
	}
	if c.Role != auth.RoleAdmin && c.Role != auth.RoleStaff {
		errs.Add("Role is not included in the list")
	}
	return errs.Err()
}
