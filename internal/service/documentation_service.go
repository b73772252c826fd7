package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/docgen-api/internal/domain"
	"github.com/phrazzld/docgen-api/internal/platform/logger"
	"github.com/phrazzld/docgen-api/internal/store"
	"github.com/phrazzld/docgen-api/internal/task"
)

// JobSubmitter queues a documentation job. *task.JobRunner implements it.
type JobSubmitter interface {
	Submit(ctx context.Context, repositoryID string) (*task.Job, error)
}

// CompletionAwaiter blocks until a job is terminal. *task.CompletionWaiter
// implements it.
type CompletionAwaiter interface {
	AwaitJob(ctx context.Context, repositoryID string, minJobID int64) (*domain.Document, error)
}

// SubmittedJob describes a job accepted for processing.
type SubmittedJob struct {
	JobID          int64     `json:"job_id"`
	RepositoryID   string    `json:"repository_id"`
	RepositoryName string    `json:"repository_name"`
	Generation     uuid.UUID `json:"generation"`
	UnitCount      int       `json:"unit_count"`
	StartedAt      time.Time `json:"started_at"`
}

// JobStatusView is the caller-facing snapshot of a job.
type JobStatusView struct {
	RepositoryID   string                       `json:"repository_id"`
	Generation     uuid.UUID                    `json:"generation"`
	OverallStatus  domain.OverallStatus         `json:"overall_status"`
	Units          domain.UnitCounts            `json:"units"`
	OverviewStatus domain.UnitStatus            `json:"overview_status,omitempty"`
	UnitStatus     map[string]domain.UnitStatus `json:"unit_status,omitempty"`
	CreatedAt      time.Time                    `json:"created_at"`
	UpdatedAt      time.Time                    `json:"updated_at"`
}

// UnitStatusView is the status of one unit within the current job.
type UnitStatusView struct {
	RepositoryID string            `json:"repository_id"`
	UnitKey      string            `json:"unit_key"`
	Generation   uuid.UUID         `json:"generation"`
	Status       domain.UnitStatus `json:"status"`
}

// DocumentationService is the read path and job entry point used by the
// HTTP API and the CLI.
type DocumentationService interface {
	// SubmitJob lists the repository's units, starts a new job and queues it.
	// Any previous job and document for the repository are discarded.
	// Returns ErrSourceUnavailable when the units cannot be listed.
	SubmitJob(ctx context.Context, repositoryID string) (*SubmittedJob, error)

	// GetStatus returns the job's overall status and per-unit counts.
	// includeUnits adds the per-unit map.
	GetStatus(ctx context.Context, repositoryID string, includeUnits bool) (*JobStatusView, error)

	// GetUnitStatus returns the status of one unit, or of the overview step
	// when unitKey is domain.OverviewUnitKey.
	GetUnitStatus(ctx context.Context, repositoryID, unitKey string) (*UnitStatusView, error)

	// AwaitCompletion blocks until the job is terminal or ctx expires.
	// A Failed job returns the document together with ErrJobFailed. A
	// positive jobID, as returned in SubmittedJob, ignores jobs started
	// before it; zero accepts whichever job the repository has.
	AwaitCompletion(ctx context.Context, repositoryID string, jobID int64) (*domain.Document, error)

	// GetDocument returns the repository's current document.
	GetDocument(ctx context.Context, repositoryID string) (*domain.Document, error)

	// GetUnitResult returns the stored output for a single unit.
	GetUnitResult(ctx context.Context, repositoryID, unitKey string) (*domain.UnitResult, error)

	// DeleteDocument removes the repository's document. The status record is
	// kept. Returns ErrJobInProgress while a job is still writing to it.
	DeleteDocument(ctx context.Context, repositoryID string) error
}

type documentationServiceImpl struct {
	store     store.Store
	submitter JobSubmitter
	awaiter   CompletionAwaiter
	logger    *slog.Logger
}

var _ DocumentationService = (*documentationServiceImpl)(nil)

// NewDocumentationService creates a DocumentationService.
// It returns an error if any of the required dependencies are nil.
func NewDocumentationService(
	st store.Store,
	submitter JobSubmitter,
	awaiter CompletionAwaiter,
	log *slog.Logger,
) (DocumentationService, error) {
	if st == nil {
		return nil, &DocumentationServiceError{Operation: "create_service", Message: "store cannot be nil"}
	}
	if submitter == nil {
		return nil, &DocumentationServiceError{Operation: "create_service", Message: "submitter cannot be nil"}
	}
	if awaiter == nil {
		return nil, &DocumentationServiceError{Operation: "create_service", Message: "awaiter cannot be nil"}
	}
	if log == nil {
		log = slog.Default()
	}
	return &documentationServiceImpl{
		store:     st,
		submitter: submitter,
		awaiter:   awaiter,
		logger:    log.With("component", "documentation_service"),
	}, nil
}

func (s *documentationServiceImpl) log(ctx context.Context) *slog.Logger {
	return logger.FromContextOr(ctx, s.logger)
}

// SubmitJob implements DocumentationService.
func (s *documentationServiceImpl) SubmitJob(ctx context.Context, repositoryID string) (*SubmittedJob, error) {
	log := s.log(ctx)
	if err := domain.ValidateRepositoryID(repositoryID); err != nil {
		return nil, NewDocumentationServiceError("submit_job", "invalid repository ID", err)
	}

	job, err := s.submitter.Submit(ctx, repositoryID)
	if err != nil {
		log.Error("failed to submit documentation job",
			"repository_id", repositoryID,
			"error", err)
		return nil, NewDocumentationServiceError("submit_job", "failed to submit job", err)
	}

	log.Info("documentation job submitted",
		"job_id", job.ID,
		"repository_id", job.RepositoryID,
		"generation", job.Generation,
		"unit_count", len(job.Units))

	return &SubmittedJob{
		JobID:          job.ID,
		RepositoryID:   job.RepositoryID,
		RepositoryName: job.RepositoryName,
		Generation:     job.Generation,
		UnitCount:      len(job.Units),
		StartedAt:      job.StartedAt,
	}, nil
}

// GetStatus implements DocumentationService.
func (s *documentationServiceImpl) GetStatus(
	ctx context.Context,
	repositoryID string,
	includeUnits bool,
) (*JobStatusView, error) {
	if err := domain.ValidateRepositoryID(repositoryID); err != nil {
		return nil, NewDocumentationServiceError("get_status", "invalid repository ID", err)
	}

	status, err := s.store.GetStatus(ctx, repositoryID)
	if err != nil {
		return nil, NewDocumentationServiceError("get_status", "failed to read job status", err)
	}

	view := &JobStatusView{
		RepositoryID:  status.RepositoryID,
		Generation:    status.Generation,
		OverallStatus: status.OverallStatus,
		Units:         status.Counts(),
		CreatedAt:     status.CreatedAt,
		UpdatedAt:     status.UpdatedAt,
	}
	if st, ok := status.OverviewStatus(); ok {
		view.OverviewStatus = st
	}
	if includeUnits {
		view.UnitStatus = status.Clone().UnitStatus
	}
	return view, nil
}

// GetUnitStatus implements DocumentationService.
func (s *documentationServiceImpl) GetUnitStatus(
	ctx context.Context,
	repositoryID, unitKey string,
) (*UnitStatusView, error) {
	if err := domain.ValidateRepositoryID(repositoryID); err != nil {
		return nil, NewDocumentationServiceError("get_unit_status", "invalid repository ID", err)
	}
	if unitKey == "" {
		return nil, NewDocumentationServiceError("get_unit_status", "invalid unit key", domain.ErrEmptyUnitKey)
	}

	status, err := s.store.GetStatus(ctx, repositoryID)
	if err != nil {
		return nil, NewDocumentationServiceError("get_unit_status", "failed to read job status", err)
	}

	st, ok := status.UnitStatus[unitKey]
	if !ok {
		return nil, ErrUnitNotFound
	}
	return &UnitStatusView{
		RepositoryID: status.RepositoryID,
		UnitKey:      unitKey,
		Generation:   status.Generation,
		Status:       st,
	}, nil
}

// AwaitCompletion implements DocumentationService.
func (s *documentationServiceImpl) AwaitCompletion(
	ctx context.Context,
	repositoryID string,
	jobID int64,
) (*domain.Document, error) {
	if err := domain.ValidateRepositoryID(repositoryID); err != nil {
		return nil, NewDocumentationServiceError("await_completion", "invalid repository ID", err)
	}
	if jobID < 0 {
		return nil, fmt.Errorf("%w: job ID cannot be negative", ErrInvalidRequest)
	}

	doc, err := s.awaiter.AwaitJob(ctx, repositoryID, jobID)
	switch {
	case err == nil:
		return doc, nil
	case errors.Is(err, task.ErrJobFailed):
		s.log(ctx).Info("awaited documentation job failed",
			"repository_id", repositoryID,
			"job_id", jobID)
		return doc, ErrJobFailed
	default:
		return nil, NewDocumentationServiceError("await_completion", "failed to await job", err)
	}
}

// GetDocument implements DocumentationService.
func (s *documentationServiceImpl) GetDocument(ctx context.Context, repositoryID string) (*domain.Document, error) {
	if err := domain.ValidateRepositoryID(repositoryID); err != nil {
		return nil, NewDocumentationServiceError("get_document", "invalid repository ID", err)
	}

	doc, err := s.store.GetDocument(ctx, repositoryID)
	if err != nil {
		return nil, NewDocumentationServiceError("get_document", "failed to read document", err)
	}
	return doc, nil
}

// GetUnitResult implements DocumentationService.
func (s *documentationServiceImpl) GetUnitResult(
	ctx context.Context,
	repositoryID, unitKey string,
) (*domain.UnitResult, error) {
	if err := domain.ValidateRepositoryID(repositoryID); err != nil {
		return nil, NewDocumentationServiceError("get_unit_result", "invalid repository ID", err)
	}
	if unitKey == "" {
		return nil, NewDocumentationServiceError("get_unit_result", "invalid unit key", domain.ErrEmptyUnitKey)
	}

	result, err := s.store.GetUnitResult(ctx, repositoryID, unitKey)
	if err != nil {
		return nil, NewDocumentationServiceError("get_unit_result", "failed to read unit result", err)
	}
	return result, nil
}

// DeleteDocument implements DocumentationService.
func (s *documentationServiceImpl) DeleteDocument(ctx context.Context, repositoryID string) error {
	if err := domain.ValidateRepositoryID(repositoryID); err != nil {
		return NewDocumentationServiceError("delete_document", "invalid repository ID", err)
	}

	status, err := s.store.GetStatus(ctx, repositoryID)
	switch {
	case err == nil && status.OverallStatus == domain.OverallStatusInProgress:
		return ErrJobInProgress
	case err != nil && !store.IsNotFoundError(err):
		return NewDocumentationServiceError("delete_document", "failed to read job status", err)
	}

	// Reading first turns a missing document into ErrDocumentNotFound.
	if _, err := s.store.GetDocument(ctx, repositoryID); err != nil {
		return NewDocumentationServiceError("delete_document", "failed to read document", err)
	}
	if err := s.store.DeleteDocument(ctx, repositoryID); err != nil {
		return NewDocumentationServiceError("delete_document", "failed to delete document", err)
	}

	s.log(ctx).Info("document deleted", "repository_id", repositoryID)
	return nil
}
