package claimimport

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/claimsdesk/claims/internal/domain/claim"
)

const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

var ErrJobNotFound = errors.New("import not found")

// Job is the record of one import attempt. Only the Importer mutates it.
type Job struct {
	ID               uuid.UUID `json:"id"`
	FileName         string    `json:"file_name"`
	TotalRecords     int       `json:"total_records"`
	ProcessedRecords int       `json:"processed_records"`
	Status           string    `json:"status"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"-"`
}

// JobStore persists import jobs.
type JobStore interface {
	Create(ctx context.Context, j *Job) error
	Update(ctx context.Context, j *Job) error
}

// JobRepository adds the read side used by the HTTP handlers.
type JobRepository interface {
	JobStore
	GetByID(ctx context.Context, id uuid.UUID) (*Job, error)
	List(ctx context.Context, limit, offset int) ([]*Job, int, error)
}

// JobDetail is a job with the claims it created.
type JobDetail struct {
	*Job
	Claims []*claim.Claim
}

type jobClaimJSON struct {
	ID          uuid.UUID   `json:"id"`
	ClaimNumber string      `json:"claim_number"`
	PatientName string      `json:"patient_name"`
	ServiceDate string      `json:"service_date"`
	Amount      json.Number `json:"amount"`
	Status      string      `json:"status"`
}

func (d *JobDetail) MarshalJSON() ([]byte, error) {
	claims := make([]jobClaimJSON, 0, len(d.Claims))
	for _, c := range d.Claims {
		claims = append(claims, jobClaimJSON{
			ID:          c.ID,
			ClaimNumber: c.ClaimNumber,
			PatientName: c.PatientName,
			ServiceDate: c.ServiceDate.Format(dateLayout),
			Amount:      json.Number(c.Amount.StringFixed(2)),
			Status:      c.Status,
		})
	}
	return json.Marshal(struct {
		*Job
		Claims []jobClaimJSON `json:"claims"`
	}{d.Job, claims})
}
