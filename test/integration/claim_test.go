package integration

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/claimsdesk/claims/internal/domain/claim"
	"github.com/claimsdesk/claims/internal/domain/patient"
)

func createPatient(t *testing.T, first, last, dob string) *patient.Patient {
	t.Helper()
	p := &patient.Patient{FirstName: first, LastName: last, DOB: date(dob)}
	if err := patient.NewRepoPG(globalDB.Pool).Create(context.Background(), p); err != nil {
		t.Fatalf("create patient: %v", err)
	}
	return p
}

func createClaim(t *testing.T, repo claim.Repository, number, service, amount, status string, patientID uuid.UUID) *claim.Claim {
	t.Helper()
	c := &claim.Claim{
		ClaimNumber: number,
		ServiceDate: date(service),
		Amount:      decimal.RequireFromString(amount),
		Status:      status,
		PatientID:   patientID,
	}
	if err := repo.Create(context.Background(), c); err != nil {
		t.Fatalf("create claim %s: %v", number, err)
	}
	return c
}

func TestClaimRepo_AmountRoundTrip(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	repo := claim.NewRepoPG(globalDB.Pool)
	p := createPatient(t, "Ada", "Lovelace", "1815-12-10")

	c := createClaim(t, repo, "CLM-1", "2024-01-10", "99999999.99", claim.StatusPaid, p.ID)

	fetched, err := repo.GetByID(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if fetched.Amount.StringFixed(2) != "99999999.99" {
		t.Errorf("amount = %s, want 99999999.99", fetched.Amount.StringFixed(2))
	}
	if fetched.PatientName != "Ada Lovelace" {
		t.Errorf("patient name = %q", fetched.PatientName)
	}
	if fetched.Patient == nil || fetched.Patient.ID != p.ID {
		t.Errorf("patient not joined: %+v", fetched.Patient)
	}
	if fetched.ClaimImportID != nil {
		t.Errorf("claim import id = %v, want nil", fetched.ClaimImportID)
	}
}

func TestClaimRepo_ConstraintErrors(t *testing.T) {
	resetTables(t)
	repo := claim.NewRepoPG(globalDB.Pool)
	p := createPatient(t, "Ada", "Lovelace", "1815-12-10")
	createClaim(t, repo, "CLM-1", "2024-01-10", "10.00", claim.StatusPending, p.ID)

	dup := &claim.Claim{ClaimNumber: "CLM-1", ServiceDate: date("2024-01-11"), Amount: decimal.NewFromInt(5), Status: claim.StatusPending, PatientID: p.ID}
	if err := repo.Create(context.Background(), dup); !errors.Is(err, claim.ErrDuplicateClaimNumber) {
		t.Errorf("duplicate claim number = %v, want ErrDuplicateClaimNumber", err)
	}

	orphan := &claim.Claim{ClaimNumber: "CLM-2", ServiceDate: date("2024-01-11"), Amount: decimal.NewFromInt(5), Status: claim.StatusPending, PatientID: uuid.New()}
	if err := repo.Create(context.Background(), orphan); !errors.Is(err, claim.ErrPatientNotFound) {
		t.Errorf("unknown patient = %v, want ErrPatientNotFound", err)
	}

	missingImport := uuid.New()
	badImport := &claim.Claim{ClaimNumber: "CLM-3", ServiceDate: date("2024-01-11"), Amount: decimal.NewFromInt(5), Status: claim.StatusPending, PatientID: p.ID, ClaimImportID: &missingImport}
	if err := repo.Create(context.Background(), badImport); !errors.Is(err, claim.ErrImportNotFound) {
		t.Errorf("unknown import = %v, want ErrImportNotFound", err)
	}
}

func TestClaimRepo_Filters(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	repo := claim.NewRepoPG(globalDB.Pool)
	ada := createPatient(t, "Ada", "Lovelace", "1815-12-10")
	alan := createPatient(t, "Alan", "Turing", "1912-06-23")

	createClaim(t, repo, "CLM-1", "2024-01-05", "10.00", claim.StatusPaid, ada.ID)
	createClaim(t, repo, "CLM-2", "2024-01-15", "20.00", claim.StatusPending, ada.ID)
	createClaim(t, repo, "CLM-3", "2024-02-01", "30.00", claim.StatusPaid, alan.ID)

	from, to := date("2024-01-01"), date("2024-01-31")
	tests := []struct {
		name   string
		filter claim.Filter
		want   int
	}{
		{"all", claim.Filter{}, 3},
		{"status", claim.Filter{Status: claim.StatusPaid}, 2},
		{"patient", claim.Filter{PatientID: &ada.ID}, 2},
		{"date range", claim.Filter{From: &from, To: &to}, 2},
		{"inclusive bounds", claim.Filter{From: ptrTime(date("2024-02-01")), To: ptrTime(date("2024-02-01"))}, 1},
		{"status and range", claim.Filter{Status: claim.StatusPaid, From: &from, To: &to}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			all, err := repo.ListAll(ctx, tt.filter)
			if err != nil {
				t.Fatalf("ListAll: %v", err)
			}
			if len(all) != tt.want {
				t.Errorf("ListAll = %d claims, want %d", len(all), tt.want)
			}

			page, total, err := repo.List(ctx, tt.filter, 1, 0)
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if total != tt.want {
				t.Errorf("List total = %d, want %d", total, tt.want)
			}
			if tt.want > 0 && len(page) != 1 {
				t.Errorf("List page = %d claims, want 1", len(page))
			}
		})
	}
}

func TestPatientRepo_ListClaimsAndCascade(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	claims := claim.NewRepoPG(globalDB.Pool)
	patients := patient.NewRepoPG(globalDB.Pool)
	p := createPatient(t, "Ada", "Lovelace", "1815-12-10")

	createClaim(t, claims, "CLM-1", "2024-01-05", "10.50", claim.StatusPaid, p.ID)
	createClaim(t, claims, "CLM-2", "2024-01-15", "20.00", claim.StatusPending, p.ID)

	summaries, err := patients.ListClaims(ctx, p.ID)
	if err != nil {
		t.Fatalf("ListClaims: %v", err)
	}
	if len(summaries) != 2 || summaries[0].ClaimNumber != "CLM-2" {
		t.Fatalf("unexpected summaries %+v", summaries)
	}
	if summaries[1].Amount.StringFixed(2) != "10.50" {
		t.Errorf("amount = %s", summaries[1].Amount.StringFixed(2))
	}

	if err := patients.Delete(ctx, p.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if n := countRows(t, "claims"); n != 0 {
		t.Errorf("claims after patient delete = %d, want 0", n)
	}
}

func ptrTime(t time.Time) *time.Time {
	return &t
}
