package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/docgen-api/internal/domain"
	"github.com/phrazzld/docgen-api/internal/events"
	"github.com/phrazzld/docgen-api/internal/store"
)

// Store keeps job status records and documents in maps guarded by a single
// mutex, so status and document changes for a repository are atomic with
// respect to each other.
type Store struct {
	mu      sync.RWMutex
	nextID  int64
	jobs    map[string]*domain.JobStatus
	docs    map[string]*domain.Document
	emitter events.EventEmitter
	logger  *slog.Logger
}

var _ store.Store = (*Store)(nil)

// NewStore creates an empty store. Status writes are announced on emitter;
// pass nil when nobody listens.
func NewStore(emitter events.EventEmitter, logger *slog.Logger) *Store {
	if emitter == nil {
		emitter = events.NopEmitter{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		jobs:    make(map[string]*domain.JobStatus),
		docs:    make(map[string]*domain.Document),
		emitter: emitter,
		logger:  logger.With("component", "memory_store"),
	}
}

func (s *Store) emit(ctx context.Context, job *domain.JobStatus, unitKey string) {
	event := events.NewStatusChangedEvent(job.RepositoryID, job.Generation, job.OverallStatus, unitKey)
	if err := s.emitter.EmitEvent(ctx, event); err != nil {
		s.logger.Warn("failed to emit status change",
			"repository_id", job.RepositoryID,
			"error", err)
	}
}

// currentJob returns the record owned by generation. Callers hold s.mu.
func (s *Store) currentJob(repositoryID string, generation uuid.UUID) (*domain.JobStatus, error) {
	job, ok := s.jobs[repositoryID]
	if !ok {
		return nil, store.ErrJobNotFound
	}
	if job.Generation != generation {
		return nil, fmt.Errorf("%w: repository %s is owned by generation %s",
			store.ErrStaleGeneration, repositoryID, job.Generation)
	}
	return job, nil
}

// StartJob implements store.JobStatusStore.
func (s *Store) StartJob(ctx context.Context, repositoryID string, generation uuid.UUID) (*domain.JobStatus, error) {
	job, err := domain.NewJobStatus(repositoryID, generation)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", store.ErrInvalidEntity, err)
	}

	s.mu.Lock()
	s.nextID++
	job.ID = s.nextID
	delete(s.docs, repositoryID)
	s.jobs[repositoryID] = job
	snapshot := job.Clone()
	s.mu.Unlock()

	s.emit(ctx, snapshot, "")
	return snapshot, nil
}

// MarkUnitStarted implements store.JobStatusStore.
func (s *Store) MarkUnitStarted(ctx context.Context, repositoryID string, generation uuid.UUID, unitKey string) error {
	if unitKey == "" {
		return fmt.Errorf("%w: %w", store.ErrInvalidEntity, domain.ErrEmptyUnitKey)
	}

	s.mu.Lock()
	job, ok := s.jobs[repositoryID]
	if !ok {
		created, err := domain.NewJobStatus(repositoryID, generation)
		if err != nil {
			s.mu.Unlock()
			return fmt.Errorf("%w: %w", store.ErrInvalidEntity, err)
		}
		s.nextID++
		created.ID = s.nextID
		s.jobs[repositoryID] = created
		job = created
	} else if job.Generation != generation {
		s.mu.Unlock()
		return fmt.Errorf("%w: repository %s is owned by generation %s",
			store.ErrStaleGeneration, repositoryID, job.Generation)
	}
	job.UnitStatus[unitKey] = domain.UnitStatusInProgress
	job.UpdatedAt = time.Now().UTC()
	snapshot := job.Clone()
	s.mu.Unlock()

	s.emit(ctx, snapshot, unitKey)
	return nil
}

// MarkUnitTerminal implements store.JobStatusStore.
func (s *Store) MarkUnitTerminal(
	ctx context.Context,
	repositoryID string,
	generation uuid.UUID,
	unitKey string,
	success bool,
) error {
	if unitKey == "" {
		return fmt.Errorf("%w: %w", store.ErrInvalidEntity, domain.ErrEmptyUnitKey)
	}

	s.mu.Lock()
	job, err := s.currentJob(repositoryID, generation)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	job.UnitStatus[unitKey] = domain.UnitStatusFromOutcome(success)
	job.UpdatedAt = time.Now().UTC()
	snapshot := job.Clone()
	s.mu.Unlock()

	s.emit(ctx, snapshot, unitKey)
	return nil
}

// MarkJobTerminal implements store.JobStatusStore.
func (s *Store) MarkJobTerminal(ctx context.Context, repositoryID string, generation uuid.UUID, success bool) error {
	s.mu.Lock()
	job, err := s.currentJob(repositoryID, generation)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	job.OverallStatus = domain.OverallStatusFromOutcome(success)
	job.UpdatedAt = time.Now().UTC()
	snapshot := job.Clone()
	s.mu.Unlock()

	s.emit(ctx, snapshot, "")
	return nil
}

// GetStatus implements store.JobStatusStore.
func (s *Store) GetStatus(_ context.Context, repositoryID string) (*domain.JobStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[repositoryID]
	if !ok {
		return nil, store.ErrJobNotFound
	}
	return job.Clone(), nil
}

// documentFor returns the document owned by generation, creating it when the
// job is current. Callers hold s.mu.
func (s *Store) documentFor(repositoryID string, generation uuid.UUID) (*domain.Document, error) {
	if _, err := s.currentJob(repositoryID, generation); err != nil {
		if store.IsNotFoundError(err) {
			return nil, fmt.Errorf("%w: no job owns repository %s", store.ErrStaleGeneration, repositoryID)
		}
		return nil, err
	}
	doc, ok := s.docs[repositoryID]
	if !ok || doc.Generation != generation {
		doc = domain.NewDocument(repositoryID, generation)
		s.docs[repositoryID] = doc
	}
	return doc, nil
}

// PutUnitResult implements store.DocumentStore.
func (s *Store) PutUnitResult(
	_ context.Context,
	repositoryID string,
	generation uuid.UUID,
	unitKey string,
	result domain.UnitResult,
) error {
	if err := domain.ValidateUnitKey(unitKey); err != nil {
		return fmt.Errorf("%w: %w", store.ErrInvalidEntity, err)
	}
	result.Normalize()

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.documentFor(repositoryID, generation)
	if err != nil {
		return err
	}
	doc.Units[unitKey] = result
	doc.UpdatedAt = time.Now().UTC()
	return nil
}

// PutOverview implements store.DocumentStore.
func (s *Store) PutOverview(
	_ context.Context,
	repositoryID string,
	generation uuid.UUID,
	overview domain.RepositoryOverview,
) error {
	overview.Normalize()

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.documentFor(repositoryID, generation)
	if err != nil {
		return err
	}
	doc.RepositorySummary = overview.Summary
	doc.Overview = &overview
	doc.UpdatedAt = time.Now().UTC()
	return nil
}

// GetDocument implements store.DocumentStore.
func (s *Store) GetDocument(_ context.Context, repositoryID string) (*domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.docs[repositoryID]
	if !ok {
		return nil, store.ErrDocumentNotFound
	}
	return doc.Clone(), nil
}

// GetUnitResult implements store.DocumentStore.
func (s *Store) GetUnitResult(_ context.Context, repositoryID, unitKey string) (*domain.UnitResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.docs[repositoryID]
	if !ok {
		return nil, store.ErrDocumentNotFound
	}
	result, ok := doc.Units[unitKey]
	if !ok {
		return nil, store.ErrUnitNotFound
	}
	cp := result.Clone()
	return &cp, nil
}

// DeleteDocument implements store.DocumentStore.
func (s *Store) DeleteDocument(_ context.Context, repositoryID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, repositoryID)
	return nil
}
