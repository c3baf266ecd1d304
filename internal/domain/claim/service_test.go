package claim

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/claimsdesk/claims/internal/domain/patient"
	"github.com/claimsdesk/claims/pkg/validation"
)

type mockRepo struct {
	claims   map[uuid.UUID]*Claim
	patients map[uuid.UUID]*patient.Patient
	seq      int
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		claims:   make(map[uuid.UUID]*Claim),
		patients: make(map[uuid.UUID]*patient.Patient),
	}
}

func (m *mockRepo) addPatient(first, last string) *patient.Patient {
	p := &patient.Patient{ID: uuid.New(), FirstName: first, LastName: last, DOB: day("1980-05-01")}
	m.patients[p.ID] = p
	return p
}

func (m *mockRepo) check(c *Claim) error {
	if _, ok := m.patients[c.PatientID]; !ok {
		return ErrPatientNotFound
	}
	for id, other := range m.claims {
		if id != c.ID && other.ClaimNumber == c.ClaimNumber {
			return ErrDuplicateClaimNumber
		}
	}
	return nil
}

func (m *mockRepo) Create(_ context.Context, c *Claim) error {
	c.ID = uuid.New()
	if err := m.check(c); err != nil {
		return err
	}
	m.seq++
	c.CreatedAt = time.Unix(int64(m.seq), 0)
	c.UpdatedAt = c.CreatedAt
	cp := *c
	m.claims[c.ID] = &cp
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Claim, error) {
	c, ok := m.claims[id]
	if !ok {
		return nil, ErrNotFound
	}
	return m.joined(c), nil
}

func (m *mockRepo) joined(c *Claim) *Claim {
	cp := *c
	if p, ok := m.patients[c.PatientID]; ok {
		cp.Patient = p
		cp.PatientName = p.FullName()
	}
	return &cp
}

func (m *mockRepo) Update(_ context.Context, c *Claim) error {
	if _, ok := m.claims[c.ID]; !ok {
		return ErrNotFound
	}
	if err := m.check(c); err != nil {
		return err
	}
	cp := *c
	m.claims[c.ID] = &cp
	return nil
}

func (m *mockRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.claims[id]; !ok {
		return ErrNotFound
	}
	delete(m.claims, id)
	return nil
}

func (m *mockRepo) List(ctx context.Context, f Filter, limit, offset int) ([]*Claim, int, error) {
	all, _ := m.ListAll(ctx, f)
	total := len(all)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (m *mockRepo) ListAll(_ context.Context, f Filter) ([]*Claim, error) {
	out := []*Claim{}
	for _, c := range m.claims {
		if f.Status != "" && c.Status != f.Status {
			continue
		}
		if f.PatientID != nil && c.PatientID != *f.PatientID {
			continue
		}
		if f.ImportID != nil && (c.ClaimImportID == nil || *c.ClaimImportID != *f.ImportID) {
			continue
		}
		if f.From != nil && c.ServiceDate.Before(*f.From) {
			continue
		}
		if f.To != nil && c.ServiceDate.After(*f.To) {
			continue
		}
		out = append(out, m.joined(c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func day(s string) time.Time {
	t, err := time.Parse(patient.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func strPtr(s string) *string { return &s }

func newTestService() (*Service, *mockRepo) {
	repo := newMockRepo()
	return NewService(repo), repo
}

func validChanges(patientID uuid.UUID, number string) Changes {
	d := day("2024-01-10")
	amt := decimal.RequireFromString("120.505")
	return Changes{
		ClaimNumber: strPtr(" " + number + " "),
		ServiceDate: &d,
		Amount:      &amt,
		Status:      strPtr("Pending"),
		PatientID:   &patientID,
	}
}

func TestClaim_Validate(t *testing.T) {
	base := func() *Claim {
		return &Claim{
			ClaimNumber: "CLM-001",
			ServiceDate: day("2024-01-10"),
			Amount:      decimal.RequireFromString("10"),
			Status:      StatusPaid,
			PatientID:   uuid.New(),
		}
	}
	tests := []struct {
		name   string
		mutate func(c *Claim)
		want   string
	}{
		{"valid", func(c *Claim) {}, ""},
		{"blank number", func(c *Claim) { c.ClaimNumber = "" }, "claim_number can't be blank"},
		{"no service date", func(c *Claim) { c.ServiceDate = time.Time{} }, "service_date can't be blank"},
		{"negative amount", func(c *Claim) { c.Amount = decimal.RequireFromString("-3") }, "amount must be greater than or equal to 0"},
		{"tiny negative amount", func(c *Claim) { c.Amount = decimal.RequireFromString("-0.001") }, "amount must be greater than or equal to 0"},
		{"too large", func(c *Claim) { c.Amount = decimal.RequireFromString("100000000") }, "amount must be less than 100000000"},
		{"huge exponent", func(c *Claim) { c.Amount = decimal.RequireFromString("1e999999999") }, "amount must be less than 100000000"},
		{"huge scale", func(c *Claim) { c.Amount = decimal.RequireFromString("1e-999999999") }, "amount must have at most 20 decimal places"},
		{"zero amount", func(c *Claim) { c.Amount = decimal.Zero }, ""},
		{"bad status", func(c *Claim) { c.Status = "closed" }, "status must be one of: pending, submitted, denied, paid"},
		{"no patient", func(c *Claim) { c.PatientID = uuid.Nil }, "patient must exist"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(c)
			err := c.Validate()
			if tt.want == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			msgs, ok := validation.Messages(err)
			if !ok || len(msgs) != 1 || msgs[0] != tt.want {
				t.Errorf("expected [%s], got %v", tt.want, err)
			}
		})
	}
}

func TestClaim_Normalize(t *testing.T) {
	c := &Claim{
		ClaimNumber: "  CLM-9 ",
		Status:      " PAID ",
		Amount:      decimal.RequireFromString("1e2"),
		ServiceDate: day("2024-01-10").Add(15 * time.Hour),
	}
	c.Normalize()
	if c.ClaimNumber != "CLM-9" || c.Status != StatusPaid {
		t.Errorf("unexpected normalized claim %+v", c)
	}
	if c.Amount.StringFixed(2) != "100.00" {
		t.Errorf("expected 100.00, got %s", c.Amount.StringFixed(2))
	}
	if !c.ServiceDate.Equal(day("2024-01-10")) {
		t.Errorf("expected date only, got %v", c.ServiceDate)
	}
}

func TestClaim_NormalizeKeepsRejectedAmounts(t *testing.T) {
	for _, raw := range []string{"-0.001", "-0.004", "1e999999999"} {
		c := &Claim{
			ClaimNumber: "CLM-9",
			Status:      StatusPaid,
			Amount:      decimal.RequireFromString(raw),
			ServiceDate: day("2024-01-10"),
			PatientID:   uuid.New(),
		}
		c.Normalize()
		if !c.Amount.Equal(decimal.RequireFromString(raw)) {
			t.Errorf("%s: amount changed to %s", raw, c.Amount)
		}
		if err := c.Validate(); err == nil {
			t.Errorf("%s: expected a validation error", raw)
		}
	}
}

func TestService_CreateClaim(t *testing.T) {
	svc, repo := newTestService()
	p := repo.addPatient("Jane", "Doe")

	c, err := svc.CreateClaim(context.Background(), validChanges(p.ID, "CLM-001"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.ClaimNumber != "CLM-001" || c.Status != StatusPending {
		t.Errorf("unexpected claim %+v", c)
	}
	if c.Amount.StringFixed(2) != "120.51" {
		t.Errorf("expected amount rounded to 120.51, got %s", c.Amount.StringFixed(2))
	}
	if c.PatientName != "Jane Doe" {
		t.Errorf("expected patient name, got %q", c.PatientName)
	}
}

func TestService_CreateClaim_Duplicate(t *testing.T) {
	svc, repo := newTestService()
	p := repo.addPatient("Jane", "Doe")
	ctx := context.Background()

	if _, err := svc.CreateClaim(ctx, validChanges(p.ID, "CLM-001")); err != nil {
		t.Fatal(err)
	}
	_, err := svc.CreateClaim(ctx, validChanges(p.ID, "CLM-001"))
	msgs, ok := validation.Messages(err)
	if !ok || msgs[0] != "claim_number has already been taken" {
		t.Errorf("expected duplicate message, got %v", err)
	}
}

func TestService_CreateClaim_UnknownPatient(t *testing.T) {
	svc, _ := newTestService()
	_, err := svc.CreateClaim(context.Background(), validChanges(uuid.New(), "CLM-001"))
	msgs, ok := validation.Messages(err)
	if !ok || msgs[0] != "patient must exist" {
		t.Errorf("expected patient must exist, got %v", err)
	}
}

func TestService_UpdateClaim(t *testing.T) {
	svc, repo := newTestService()
	p := repo.addPatient("Jane", "Doe")
	ctx := context.Background()
	c, err := svc.CreateClaim(ctx, validChanges(p.ID, "CLM-001"))
	if err != nil {
		t.Fatal(err)
	}

	updated, err := svc.UpdateClaim(ctx, c.ID, Changes{Status: strPtr("DENIED")})
	if err != nil {
		t.Fatal(err)
	}
	if updated.Status != StatusDenied || updated.ClaimNumber != "CLM-001" {
		t.Errorf("unexpected update result %+v", updated)
	}

	neg := decimal.RequireFromString("-1")
	if _, err := svc.UpdateClaim(ctx, c.ID, Changes{Amount: &neg}); err == nil {
		t.Error("expected negative amount to be rejected")
	}
	if _, err := svc.UpdateClaim(ctx, uuid.New(), Changes{}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestService_ListClaims_Filter(t *testing.T) {
	svc, repo := newTestService()
	jane := repo.addPatient("Jane", "Doe")
	john := repo.addPatient("John", "Roe")
	ctx := context.Background()

	svc.CreateClaim(ctx, validChanges(jane.ID, "CLM-001"))
	paid := validChanges(john.ID, "CLM-002")
	paid.Status = strPtr("paid")
	svc.CreateClaim(ctx, paid)

	items, total, err := svc.ListClaims(ctx, Filter{Status: StatusPaid}, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 || items[0].ClaimNumber != "CLM-002" {
		t.Errorf("expected only CLM-002, got total=%d", total)
	}

	items, _, _ = svc.ListClaims(ctx, Filter{PatientID: &jane.ID}, 10, 0)
	if len(items) != 1 || items[0].ClaimNumber != "CLM-001" {
		t.Errorf("expected only CLM-001 for jane, got %d items", len(items))
	}

	all, err := svc.ListForExport(ctx, Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 || all[0].ClaimNumber != "CLM-002" {
		t.Errorf("expected newest first, got %d items", len(all))
	}
}

func TestFilter_Where(t *testing.T) {
	pid := uuid.New()
	from := day("2024-01-01")
	where, args := Filter{Status: "paid", PatientID: &pid, From: &from}.where()
	want := " WHERE c.status = $1 AND c.patient_id = $2 AND c.service_date >= $3"
	if where != want {
		t.Errorf("expected %q, got %q", want, where)
	}
	if len(args) != 3 {
		t.Errorf("expected 3 args, got %d", len(args))
	}

	if where, args := (Filter{}).where(); where != "" || args != nil {
		t.Errorf("expected empty clause, got %q %v", where, args)
	}
}
