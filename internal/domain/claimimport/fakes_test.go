package claimimport

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/claimsdesk/claims/internal/domain/claim"
	"github.com/claimsdesk/claims/internal/domain/patient"
	"github.com/claimsdesk/claims/internal/platform/live"
)

// -- Jobs --

type fakeJobs struct {
	mu        sync.Mutex
	jobs      map[uuid.UUID]*Job
	updates   []Job
	createErr error
	updateErr error
	// failOnUpdate makes the n-th Update (1-based) return updateErr.
	failOnUpdate int
	seq          int
}

func newFakeJobs() *fakeJobs {
	return &fakeJobs{jobs: make(map[uuid.UUID]*Job)}
}

func (f *fakeJobs) Create(_ context.Context, j *Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.seq++
	j.ID = uuid.New()
	j.CreatedAt = time.Unix(int64(f.seq), 0)
	j.UpdatedAt = j.CreatedAt
	cp := *j
	f.jobs[j.ID] = &cp
	return nil
}

func (f *fakeJobs) Update(_ context.Context, j *Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOnUpdate > 0 && len(f.updates)+1 == f.failOnUpdate {
		f.failOnUpdate = 0
		return f.updateErr
	}
	if _, ok := f.jobs[j.ID]; !ok {
		return ErrJobNotFound
	}
	cp := *j
	f.jobs[j.ID] = &cp
	f.updates = append(f.updates, cp)
	return nil
}

func (f *fakeJobs) GetByID(_ context.Context, id uuid.UUID) (*Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	cp := *j
	return &cp, nil
}

func (f *fakeJobs) List(_ context.Context, limit, offset int) ([]*Job, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []*Job{}
	for _, j := range f.jobs {
		cp := *j
		out = append(out, &cp)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.After(out[b].CreatedAt) })
	total := len(out)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return out[offset:end], total, nil
}

func (f *fakeJobs) stored(id uuid.UUID) *Job {
	j, _ := f.GetByID(context.Background(), id)
	return j
}

// -- Patients, claims and transactions --

// fakeDB keeps patients and claims in memory. Do snapshots both and
// restores them when fn fails or panics, like a rolled back transaction.
type fakeDB struct {
	patients []*patient.Patient
	claims   []*claim.Claim

	// findErr is returned by FindOrCreate when set.
	findErr error
	// panicOn makes Create panic for this claim number.
	panicOn string

	commits   int
	rollbacks int
}

func (d *fakeDB) Do(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	patients := append([]*patient.Patient(nil), d.patients...)
	claims := append([]*claim.Claim(nil), d.claims...)
	rollback := func() {
		d.patients, d.claims = patients, claims
		d.rollbacks++
	}
	defer func() {
		if r := recover(); r != nil {
			rollback()
			panic(r)
		}
	}()
	if err := fn(ctx); err != nil {
		rollback()
		return err
	}
	d.commits++
	return nil
}

type fakePatients struct{ db *fakeDB }

func (f fakePatients) FindByIdentity(_ context.Context, id patient.Identity) (*patient.Patient, error) {
	for _, p := range f.db.patients {
		if p.Identity().Matches(id) {
			return p, nil
		}
	}
	return nil, patient.ErrNotFound
}

func (f fakePatients) Create(ctx context.Context, p *patient.Patient) error {
	if _, err := f.FindByIdentity(ctx, p.Identity()); err == nil {
		return patient.ErrDuplicate
	}
	p.ID = uuid.New()
	p.CreatedAt = time.Now()
	f.db.patients = append(f.db.patients, p)
	return nil
}

func (f fakePatients) FindOrCreate(ctx context.Context, id patient.Identity) (*patient.Patient, bool, error) {
	if f.db.findErr != nil {
		return nil, false, f.db.findErr
	}
	if p, err := f.FindByIdentity(ctx, id); err == nil {
		return p, false, nil
	}
	p := &patient.Patient{FirstName: id.FirstName, LastName: id.LastName, DOB: id.DOB}
	if err := f.Create(ctx, p); err != nil {
		return nil, false, err
	}
	return p, true, nil
}

type fakeClaims struct{ db *fakeDB }

func (f fakeClaims) Create(_ context.Context, c *claim.Claim) error {
	if f.db.panicOn != "" && c.ClaimNumber == f.db.panicOn {
		panic("boom")
	}
	for _, other := range f.db.claims {
		if other.ClaimNumber == c.ClaimNumber {
			return claim.ErrDuplicateClaimNumber
		}
	}
	c.ID = uuid.New()
	c.CreatedAt = time.Now()
	cp := *c
	for _, p := range f.db.patients {
		if p.ID == c.PatientID {
			cp.PatientName = p.FullName()
		}
	}
	f.db.claims = append(f.db.claims, &cp)
	return nil
}

func (f fakeClaims) ListForExport(_ context.Context, flt claim.Filter) ([]*claim.Claim, error) {
	out := []*claim.Claim{}
	for _, c := range f.db.claims {
		if flt.Status != "" && c.Status != flt.Status {
			continue
		}
		if flt.ImportID != nil && (c.ClaimImportID == nil || *c.ClaimImportID != *flt.ImportID) {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// -- Recorder --

type fakeRecorder struct {
	rows     map[string]int
	finished []string
	exports  []int
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{rows: make(map[string]int)}
}

func (r *fakeRecorder) ImportStarted() func(string) {
	return func(status string) { r.finished = append(r.finished, status) }
}

func (r *fakeRecorder) ImportRow(outcome string) { r.rows[outcome]++ }

func (r *fakeRecorder) ExportGenerated(rows int) { r.exports = append(r.exports, rows) }

// -- Publisher --

type fakePublisher struct {
	events []live.Event
	// onPublish runs after each event is recorded.
	onPublish func(ev live.Event)
}

func (p *fakePublisher) Publish(_ context.Context, ev live.Event) error {
	p.events = append(p.events, ev)
	if p.onPublish != nil {
		p.onPublish(ev)
	}
	return nil
}

func (p *fakePublisher) types(topic string) []string {
	var out []string
	for _, ev := range p.events {
		if ev.Topic == topic {
			out = append(out, ev.Type)
		}
	}
	return out
}

// -- Fixture --

type fixture struct {
	jobs     *fakeJobs
	db       *fakeDB
	recorder *fakeRecorder
	events   *fakePublisher
	importer *Importer
}

func newFixture() *fixture {
	f := &fixture{jobs: newFakeJobs(), db: &fakeDB{}, recorder: newFakeRecorder(), events: &fakePublisher{}}
	f.importer = NewImporter(f.jobs, fakePatients{f.db}, fakeClaims{f.db}, f.db,
		WithRecorder(f.recorder),
		WithEvents(f.events),
	)
	return f
}

const header = "patient_first_name,patient_last_name,patient_dob,claim_number,service_date,amount,status"

func csvFile(lines ...string) []byte {
	return []byte(strings.Join(lines, "\n") + "\n")
}

var errStore = errors.New("connection reset by peer")
