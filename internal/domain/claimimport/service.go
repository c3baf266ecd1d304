package claimimport

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"time"

	"github.com/google/uuid"

	"github.com/claimsdesk/claims/internal/domain/claim"
	"github.com/claimsdesk/claims/internal/platform/uploads"
)

// ClaimLister reads claims for exports and job details. *claim.Service
// implements it.
type ClaimLister interface {
	ListForExport(ctx context.Context, f claim.Filter) ([]*claim.Claim, error)
}

// ExportRecorder counts generated exports. *metrics.Manager implements it.
type ExportRecorder interface {
	ExportGenerated(rows int)
}

// Service ties the importer to upload archiving and the read side.
type Service struct {
	importer *Importer
	jobs     JobRepository
	claims   ClaimLister
	files    uploads.Store
	exports  ExportRecorder
	now      func() time.Time
}

func NewService(importer *Importer, jobs JobRepository, claims ClaimLister, files uploads.Store, exports ExportRecorder) *Service {
	return &Service{
		importer: importer,
		jobs:     jobs,
		claims:   claims,
		files:    files,
		exports:  exports,
		now:      time.Now,
	}
}

// Import archives content under a dated key and imports it. The job is
// named after the archived file. An error means the file could not be
// archived and nothing was imported.
func (s *Service) Import(ctx context.Context, content []byte) (*Result, error) {
	obj, err := s.files.Put(ctx, uploads.ImportKey(s.now()), bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("store upload: %w", err)
	}
	return s.importer.Run(ctx, content, path.Base(obj.Key)), nil
}

func (s *Service) GetJob(ctx context.Context, id uuid.UUID) (*JobDetail, error) {
	job, err := s.jobs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	claims, err := s.claims.ListForExport(ctx, claim.Filter{ImportID: &id})
	if err != nil {
		return nil, err
	}
	return &JobDetail{Job: job, Claims: claims}, nil
}

func (s *Service) ListJobs(ctx context.Context, limit, offset int) ([]*Job, int, error) {
	return s.jobs.List(ctx, limit, offset)
}

// Export renders every claim matching f and returns the CSV with its row
// count.
func (s *Service) Export(ctx context.Context, f claim.Filter) ([]byte, int, error) {
	claims, err := s.claims.ListForExport(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	content, err := ExportCSV(claims)
	if err != nil {
		return nil, 0, err
	}
	if s.exports != nil {
		s.exports.ExportGenerated(len(claims))
	}
	return content, len(claims), nil
}

// ExportToArchive writes the export under the dated exports prefix.
func (s *Service) ExportToArchive(ctx context.Context, f claim.Filter) (*uploads.Object, int, error) {
	content, n, err := s.Export(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	obj, err := s.files.Put(ctx, uploads.ExportKey(s.now()), bytes.NewReader(content))
	if err != nil {
		return nil, 0, fmt.Errorf("store export: %w", err)
	}
	return obj, n, nil
}

// ExportFileName is the download name of an export made at t.
func ExportFileName(t time.Time) string {
	return path.Base(uploads.ExportKey(t))
}
