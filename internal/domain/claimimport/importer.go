package claimimport

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"runtime/debug"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/claimsdesk/claims/internal/domain/claim"
	"github.com/claimsdesk/claims/internal/domain/patient"
	"github.com/claimsdesk/claims/internal/platform/db"
	"github.com/claimsdesk/claims/internal/platform/live"
	"github.com/claimsdesk/claims/pkg/validation"
)

// PatientStore resolves row identities to patients.
type PatientStore interface {
	FindByIdentity(ctx context.Context, id patient.Identity) (*patient.Patient, error)
	Create(ctx context.Context, p *patient.Patient) error
	FindOrCreate(ctx context.Context, id patient.Identity) (*patient.Patient, bool, error)
}

// ClaimStore writes claims.
type ClaimStore interface {
	Create(ctx context.Context, c *claim.Claim) error
}

// Transactor runs fn in one transaction, committing only when it returns
// nil. *db.UnitOfWork implements it.
type Transactor interface {
	Do(ctx context.Context, fn func(ctx context.Context) error) error
}

// Recorder receives import metrics. *metrics.Manager implements it.
type Recorder interface {
	ImportStarted() func(status string)
	ImportRow(outcome string)
}

type nopRecorder struct{}

func (nopRecorder) ImportStarted() func(string) { return func(string) {} }
func (nopRecorder) ImportRow(string)            {}

// Result summarizes one import.
type Result struct {
	Job            *Job     `json:"claim_import"`
	ProcessedCount int      `json:"processed_count"`
	Errors         []string `json:"errors"`
}

// Importer loads claims from CSV files.
type Importer struct {
	jobs     JobStore
	patients PatientStore
	claims   ClaimStore
	tx       Transactor
	recorder Recorder
	events   live.Publisher
	logger   zerolog.Logger
}

type Option func(*Importer)

func WithRecorder(r Recorder) Option {
	return func(im *Importer) { im.recorder = r }
}

func WithLogger(l zerolog.Logger) Option {
	return func(im *Importer) { im.logger = l }
}

func NewImporter(jobs JobStore, patients PatientStore, claims ClaimStore, tx Transactor, opts ...Option) *Importer {
	im := &Importer{
		jobs:     jobs,
		patients: patients,
		claims:   claims,
		tx:       tx,
		recorder: nopRecorder{},
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(im)
	}
	return im
}

// Run imports content and records the attempt as a job named fileName. It
// never returns an error: structural faults fail the job, row problems are
// collected in file order and the job completes. Once started an import runs
// to the end even if ctx is cancelled, so the job always matches the claims
// it wrote.
func (im *Importer) Run(ctx context.Context, content []byte, fileName string) *Result {
	ctx = context.WithoutCancel(ctx)
	job := &Job{FileName: fileName, Status: StatusPending}
	res := &Result{Job: job, Errors: []string{}}
	finish := im.recorder.ImportStarted()
	start := time.Now()

	log := im.logger.With().Str("file_name", fileName).Logger()

	if err := im.jobs.Create(ctx, job); err != nil {
		job.Status = StatusFailed
		res.Errors = append(res.Errors, "Import failed: "+err.Error())
		log.Error().Err(err).Msg("import job could not be created")
		finish(job.Status)
		return res
	}
	log = log.With().Str("job_id", job.ID.String()).Logger()
	log.Info().Msg("import started")
	im.emit(ctx, EventStarted, job, map[string]*Job{"claim_import": job})

	err := im.process(ctx, job, content, res, log)
	if err == nil && job.Status == StatusPending {
		job.ProcessedRecords = res.ProcessedCount
		job.Status = StatusCompleted
		err = im.jobs.Update(ctx, job)
	}
	if err != nil {
		im.fail(ctx, job, res, err, log)
	}

	log.Info().
		Str("status", job.Status).
		Int("total_records", job.TotalRecords).
		Int("processed_records", res.ProcessedCount).
		Int("error_count", len(res.Errors)).
		Dur("duration", time.Since(start)).
		Msg("import finished")
	im.emit(ctx, EventFinished, job, res)
	finish(job.Status)
	return res
}

// process parses content and drives every row. A returned error is a
// structural fault.
func (im *Importer) process(ctx context.Context, job *Job, content []byte, res *Result, log zerolog.Logger) error {
	records, err := parseCSV(content)
	if err != nil {
		return err
	}

	var header []string
	if len(records) > 0 {
		header = records[0].fields
	}
	if missing := missingHeaders(header); len(missing) > 0 {
		job.Status = StatusFailed
		res.Errors = append(res.Errors, "Missing required headers: "+strings.Join(missing, ", "))
		log.Warn().Strs("missing", missing).Msg("import rejected: missing headers")
		if err := im.jobs.Update(ctx, job); err != nil {
			return err
		}
		return nil
	}

	rows := records[1:]
	job.TotalRecords = len(rows)
	if err := im.jobs.Update(ctx, job); err != nil {
		return err
	}

	for _, record := range rows {
		out := im.processRow(ctx, job, record.line, toRow(header, record.fields))
		im.recorder.ImportRow(out.kind.String())
		switch out.kind {
		case outcomeProcessed:
			res.ProcessedCount++
		case outcomeFault:
			log.Error().Int("row", out.row).Str("detail", out.detail).Msg("unexpected row failure")
		}
		res.Errors = append(res.Errors, out.messages()...)
		im.emit(ctx, EventProgress, job, Progress{
			Row:            out.row,
			TotalRecords:   job.TotalRecords,
			ProcessedCount: res.ProcessedCount,
			ErrorCount:     len(res.Errors),
		})
	}
	return nil
}

// fail marks the job failed after a structural fault. Rows already committed
// stay counted and their errors are kept ahead of the failure.
func (im *Importer) fail(ctx context.Context, job *Job, res *Result, cause error, log zerolog.Logger) {
	job.Status = StatusFailed
	job.ProcessedRecords = res.ProcessedCount
	res.Errors = append(res.Errors, "Import failed: "+cause.Error())
	log.Error().Err(cause).Msg("import failed")
	if job.ID == uuid.Nil {
		return
	}
	if err := im.jobs.Update(ctx, job); err != nil {
		log.Error().Err(err).Msg("could not mark import job failed")
	}
}

// processRow validates one row and writes it in its own transaction. The
// patient and the claim commit or roll back together.
func (im *Importer) processRow(ctx context.Context, job *Job, n int, row Row) (out rowOutcome) {
	defer func() {
		if r := recover(); r != nil {
			im.logger.Debug().Bytes("stack", debug.Stack()).Int("row", n).Msg("row panic recovered")
			out = rowOutcome{kind: outcomeFault, row: n, detail: fmt.Sprint(r)}
		}
	}()

	if problems := ValidateRow(row); len(problems) > 0 {
		return rowOutcome{kind: outcomeInvalid, row: n, problems: problems}
	}
	parsed := row.parse()

	err := im.tx.Do(ctx, func(ctx context.Context) error {
		p, _, err := im.patients.FindOrCreate(ctx, parsed.identity)
		if err != nil {
			return err
		}
		jobID := job.ID
		c := &claim.Claim{
			ClaimNumber:   parsed.claimNumber,
			ServiceDate:   parsed.serviceDate,
			Amount:        parsed.amount,
			Status:        parsed.status,
			PatientID:     p.ID,
			ClaimImportID: &jobID,
		}
		c.Normalize()
		if err := c.Validate(); err != nil {
			return err
		}
		return im.claims.Create(ctx, c)
	})
	if err != nil {
		return classifyRowError(n, parsed.claimNumber, err)
	}
	return rowOutcome{kind: outcomeProcessed, row: n}
}

// classifyRowError separates data the store rejected from everything else.
func classifyRowError(n int, claimNumber string, err error) rowOutcome {
	if msgs, ok := validation.Messages(err); ok {
		return rowOutcome{kind: outcomeRejected, row: n, detail: strings.Join(msgs, ", ")}
	}
	switch {
	case errors.Is(err, claim.ErrDuplicateClaimNumber):
		return rowOutcome{kind: outcomeRejected, row: n,
			detail: fmt.Sprintf("claim_number %s has already been taken", claimNumber)}
	case errors.Is(err, claim.ErrPatientNotFound), errors.Is(err, patient.ErrDuplicate):
		return rowOutcome{kind: outcomeRejected, row: n, detail: err.Error()}
	case db.IsConstraintViolation(err):
		return rowOutcome{kind: outcomeRejected, row: n, detail: db.ConstraintMessage(err)}
	}
	return rowOutcome{kind: outcomeFault, row: n, detail: err.Error()}
}

// csvRecord is one record and the file line it starts on. Lines count from
// 1, so the first data row of a plain file is line 2.
type csvRecord struct {
	line   int
	fields []string
}

// parseCSV decodes content and splits it into records. A UTF-8 or UTF-16
// byte order mark is honored and removed; anything that is not valid UTF-8
// afterwards is rejected.
func parseCSV(content []byte) ([]csvRecord, error) {
	decoded, _, err := transform.Bytes(unicode.BOMOverride(transform.Nop), content)
	if err != nil {
		return nil, fmt.Errorf("decode file: %w", err)
	}
	if !utf8.Valid(decoded) {
		return nil, errors.New("file is not valid UTF-8")
	}

	r := csv.NewReader(bytes.NewReader(decoded))
	r.FieldsPerRecord = -1
	var records []csvRecord
	for {
		fields, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("malformed CSV: %w", err)
		}
		line, _ := r.FieldPos(0)
		records = append(records, csvRecord{line: line, fields: fields})
	}
	if len(records) > 0 {
		for i, h := range records[0].fields {
			records[0].fields[i] = strings.TrimSpace(h)
		}
	}
	return records, nil
}

// toRow pairs values with header names. The first column wins when a name
// repeats.
func toRow(header, record []string) Row {
	row := make(Row, len(header))
	for i, h := range header {
		if _, dup := row[h]; dup {
			continue
		}
		if i < len(record) {
			row[h] = record[i]
		} else {
			row[h] = ""
		}
	}
	return row
}
