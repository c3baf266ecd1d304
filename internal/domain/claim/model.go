package claim

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/claimsdesk/claims/internal/domain/patient"
	"github.com/claimsdesk/claims/pkg/validation"
)

const (
	StatusPending   = "pending"
	StatusSubmitted = "submitted"
	StatusDenied    = "denied"
	StatusPaid      = "paid"
)

// Statuses lists the accepted claim statuses in display order.
var Statuses = []string{StatusPending, StatusSubmitted, StatusDenied, StatusPaid}

// maxAmount is the first value numeric(10,2) cannot hold.
var maxAmount = decimal.New(1, 8)

const (
	maxAmountDigits = 8
	// maxAmountScale bounds the decimal places of an amount as written.
	// Rounding or comparing rescales the coefficient by 10^places.
	maxAmountScale = 20
	// Past 2^96 a coefficient has at least 29 digits, which with at most
	// maxAmountScale places leaves more than maxAmountDigits before the point.
	maxCoefficientBits = 96
)

// CheckAmount returns the problem with d as a claim amount, or "". Only the
// sign, exponent and coefficient size are inspected until d is known to be
// small enough to round.
func CheckAmount(d decimal.Decimal) string {
	tooLarge := "amount must be less than " + maxAmount.String()
	if d.IsNegative() {
		return "amount must be greater than or equal to 0"
	}
	exp := int(d.Exponent())
	if exp < -maxAmountScale {
		return fmt.Sprintf("amount must have at most %d decimal places", maxAmountScale)
	}
	if d.Coefficient().BitLen() > maxCoefficientBits || d.NumDigits()+exp > maxAmountDigits {
		return tooLarge
	}
	if d.Round(2).GreaterThanOrEqual(maxAmount) {
		return tooLarge
	}
	return ""
}

// ValidStatus reports whether s is a known status. Matching is exact; use
// NormalizeStatus first for user input.
func ValidStatus(s string) bool {
	for _, v := range Statuses {
		if s == v {
			return true
		}
	}
	return false
}

func NormalizeStatus(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// StatusMessage is the problem reported for an unknown status.
func StatusMessage() string {
	return "status must be one of: " + strings.Join(Statuses, ", ")
}

// Claim maps to the claims table. PatientName and Patient are read-side
// only and filled from a join.
type Claim struct {
	ID            uuid.UUID
	ClaimNumber   string
	ServiceDate   time.Time
	Amount        decimal.Decimal
	Status        string
	PatientID     uuid.UUID
	ClaimImportID *uuid.UUID
	CreatedAt     time.Time
	UpdatedAt     time.Time

	PatientName string
	Patient     *patient.Patient
}

// Normalize trims the claim number, lower-cases the status and rounds the
// amount to cents. An amount CheckAmount rejects is left as given so
// Validate reports it.
func (c *Claim) Normalize() {
	c.ClaimNumber = strings.TrimSpace(c.ClaimNumber)
	c.Status = NormalizeStatus(c.Status)
	if CheckAmount(c.Amount) == "" {
		c.Amount = c.Amount.Round(2)
	}
	if !c.ServiceDate.IsZero() {
		y, m, d := c.ServiceDate.Date()
		c.ServiceDate = time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	}
}

// Validate enforces the invariants every stored claim satisfies.
func (c *Claim) Validate() error {
	var errs validation.Errors
	if c.ClaimNumber == "" {
		errs.Add("claim_number can't be blank")
	}
	if c.ServiceDate.IsZero() {
		errs.Add("service_date can't be blank")
	}
	if p := CheckAmount(c.Amount); p != "" {
		errs.Add(p)
	}
	if !ValidStatus(c.Status) {
		errs.Add(StatusMessage())
	}
	if c.PatientID == uuid.Nil {
		errs.Add("patient must exist")
	}
	return errs.Err()
}

type claimJSON struct {
	ID            uuid.UUID    `json:"id"`
	ClaimNumber   string       `json:"claim_number"`
	ServiceDate   string       `json:"service_date"`
	Amount        json.Number  `json:"amount"`
	Status        string       `json:"status"`
	PatientID     uuid.UUID    `json:"patient_id"`
	PatientName   string       `json:"patient_name"`
	ClaimImportID *uuid.UUID   `json:"claim_import_id"`
	CreatedAt     time.Time    `json:"created_at"`
	Patient       *patientJSON `json:"patient,omitempty"`
}

type patientJSON struct {
	ID        uuid.UUID `json:"id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	FullName  string    `json:"full_name"`
	DOB       string    `json:"dob"`
}

func (c *Claim) MarshalJSON() ([]byte, error) {
	out := claimJSON{
		ID:            c.ID,
		ClaimNumber:   c.ClaimNumber,
		ServiceDate:   c.ServiceDate.Format(patient.DateLayout),
		Amount:        json.Number(c.Amount.StringFixed(2)),
		Status:        c.Status,
		PatientID:     c.PatientID,
		PatientName:   c.PatientName,
		ClaimImportID: c.ClaimImportID,
		CreatedAt:     c.CreatedAt,
	}
	if p := c.Patient; p != nil {
		out.Patient = &patientJSON{
			ID:        p.ID,
			FirstName: p.FirstName,
			LastName:  p.LastName,
			FullName:  p.FullName(),
			DOB:       p.DOB.Format(patient.DateLayout),
		}
	}
	return json.Marshal(out)
}

// Filter narrows list and export queries. Zero fields match everything.
type Filter struct {
	Status    string
	PatientID *uuid.UUID
	ImportID  *uuid.UUID
	From      *time.Time
	To        *time.Time
}
