package patient

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/claimsdesk/claims/pkg/validation"
)

// DateLayout is the only accepted textual date form.
const DateLayout = "2006-01-02"

// Patient maps to the patients table.
type Patient struct {
	ID        uuid.UUID
	FirstName string
	LastName  string
	DOB       time.Time
	CreatedAt time.Time
	UpdatedAt time.Time

	// Claims is only populated for the detail view.
	Claims []*ClaimSummary
}

func (p *Patient) FullName() string {
	return p.FirstName + " " + p.LastName
}

// Validate checks the fields every stored patient must have.
func (p *Patient) Validate() error {
	var errs validation.Errors
	if strings.TrimSpace(p.FirstName) == "" {
		errs.Add("First name can't be blank")
	}
	if strings.TrimSpace(p.LastName) == "" {
		errs.Add("Last name can't be blank")
	}
	if p.DOB.IsZero() {
		errs.Add("Dob can't be blank")
	}
	return errs.Err()
}

func (p *Patient) Identity() Identity {
	return NewIdentity(p.FirstName, p.LastName, p.DOB)
}

// ClaimSummary is the slice of a claim shown on the patient detail view.
type ClaimSummary struct {
	ID          uuid.UUID
	ClaimNumber string
	ServiceDate time.Time
	Amount      decimal.Decimal
	Status      string
}

// Identity is the (first name, last name, date of birth) triple that
// identifies one patient. Names compare case-insensitively.
type Identity struct {
	FirstName string
	LastName  string
	DOB       time.Time
}

func NewIdentity(firstName, lastName string, dob time.Time) Identity {
	return Identity{
		FirstName: strings.TrimSpace(firstName),
		LastName:  strings.TrimSpace(lastName),
		DOB:       truncateDate(dob),
	}
}

// Matches reports whether two identities name the same patient.
func (i Identity) Matches(other Identity) bool {
	return strings.EqualFold(i.FirstName, other.FirstName) &&
		strings.EqualFold(i.LastName, other.LastName) &&
		i.DOB.Equal(other.DOB)
}

func truncateDate(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

type patientJSON struct {
	ID        uuid.UUID           `json:"id"`
	FirstName string              `json:"first_name"`
	LastName  string              `json:"last_name"`
	FullName  string              `json:"full_name"`
	DOB       string              `json:"dob"`
	CreatedAt time.Time           `json:"created_at"`
	Claims    *[]claimSummaryJSON `json:"claims,omitempty"`
}

type claimSummaryJSON struct {
	ID          uuid.UUID   `json:"id"`
	ClaimNumber string      `json:"claim_number"`
	ServiceDate string      `json:"service_date"`
	Amount      json.Number `json:"amount"`
	Status      string      `json:"status"`
}

func (p *Patient) MarshalJSON() ([]byte, error) {
	out := patientJSON{
		ID:        p.ID,
		FirstName: p.FirstName,
		LastName:  p.LastName,
		FullName:  p.FullName(),
		DOB:       p.DOB.Format(DateLayout),
		CreatedAt: p.CreatedAt,
	}
	if p.Claims != nil {
		claims := make([]claimSummaryJSON, 0, len(p.Claims))
		for _, c := range p.Claims {
			claims = append(claims, claimSummaryJSON{
				ID:          c.ID,
				ClaimNumber: c.ClaimNumber,
				ServiceDate: c.ServiceDate.Format(DateLayout),
				Amount:      json.Number(c.Amount.StringFixed(2)),
				Status:      c.Status,
			})
		}
		out.Claims = &claims
	}
	return json.Marshal(out)
}
