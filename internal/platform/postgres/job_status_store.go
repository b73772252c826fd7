package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/docgen-api/internal/domain"
	"github.com/phrazzld/docgen-api/internal/platform/logger"
	"github.com/phrazzld/docgen-api/internal/store"
)

// StartJob implements store.JobStatusStore. The previous status record and
// document are removed in the same transaction that inserts the new record.
func (s *Store) StartJob(ctx context.Context, repositoryID string, generation uuid.UUID) (*domain.JobStatus, error) {
	job, err := domain.NewJobStatus(repositoryID, generation)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", store.ErrInvalidEntity, err)
	}

	err = store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM documents WHERE repository_id = $1`, repositoryID); err != nil {
			return MapError(err)
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM job_status WHERE repository_id = $1`, repositoryID); err != nil {
			return MapError(err)
		}
		// A concurrent StartJob may have inserted after our delete; the
		// newest generation wins and takes a fresh id so ids keep increasing.
		return MapError(tx.QueryRowContext(ctx, `
			INSERT INTO job_status (repository_id, generation, overall_status, unit_status, created_at, updated_at)
			VALUES ($1, $2, $3, '{}'::jsonb, $4, $4)
			ON CONFLICT (repository_id) DO UPDATE
			SET id = DEFAULT,
				generation = EXCLUDED.generation,
				overall_status = EXCLUDED.overall_status,
				unit_status = EXCLUDED.unit_status,
				created_at = EXCLUDED.created_at,
				updated_at = EXCLUDED.updated_at
			RETURNING id`,
			repositoryID, generation, string(job.OverallStatus), job.CreatedAt,
		).Scan(&job.ID))
	})
	if err != nil {
		logger.FromContextOr(ctx, s.logger).Error("failed to start job",
			"repository_id", repositoryID,
			"error", err)
		return nil, err
	}
	return job, nil
}

// MarkUnitStarted implements store.JobStatusStore.
func (s *Store) MarkUnitStarted(ctx context.Context, repositoryID string, generation uuid.UUID, unitKey string) error {
	if unitKey == "" {
		return fmt.Errorf("%w: %w", store.ErrInvalidEntity, domain.ErrEmptyUnitKey)
	}
	if err := domain.ValidateRepositoryID(repositoryID); err != nil {
		return fmt.Errorf("%w: %w", store.ErrInvalidEntity, err)
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO job_status (repository_id, generation, overall_status, unit_status, created_at, updated_at)
		VALUES ($1, $2, $3, jsonb_build_object($4::text, $5::text), $6, $6)
		ON CONFLICT (repository_id) DO UPDATE
		SET unit_status = job_status.unit_status || jsonb_build_object($4::text, $5::text),
			updated_at = EXCLUDED.updated_at
		WHERE job_status.generation = EXCLUDED.generation`,
		repositoryID,
		generation,
		string(domain.OverallStatusInProgress),
		domain.EscapeUnitKey(unitKey),
		string(domain.UnitStatusInProgress),
		time.Now().UTC(),
	)
	if err != nil {
		return MapError(err)
	}
	n, err := rowsAffected(result)
	if err != nil {
		return err
	}
	if n == 0 {
		return s.missingOrStale(ctx, s.db, repositoryID, generation)
	}
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

	result, err := s.db.ExecContext(ctx, `
		UPDATE job_status
		SET unit_status = unit_status || jsonb_build_object($3::text, $4::text),
			updated_at = $5
		WHERE repository_id = $1 AND generation = $2`,
		repositoryID,
		generation,
		domain.EscapeUnitKey(unitKey),
		string(domain.UnitStatusFromOutcome(success)),
		time.Now().UTC(),
	)
	return s.checkConditionalUpdate(ctx, result, err, repositoryID, generation)
}

// MarkJobTerminal implements store.JobStatusStore.
func (s *Store) MarkJobTerminal(ctx context.Context, repositoryID string, generation uuid.UUID, success bool) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE job_status
		SET overall_status = $3, updated_at = $4
		WHERE repository_id = $1 AND generation = $2`,
		repositoryID,
		generation,
		string(domain.OverallStatusFromOutcome(success)),
		time.Now().UTC(),
	)
	return s.checkConditionalUpdate(ctx, result, err, repositoryID, generation)
}

func (s *Store) checkConditionalUpdate(
	ctx context.Context,
	result sql.Result,
	err error,
	repositoryID string,
	generation uuid.UUID,
) error {
	if err != nil {
		return MapError(err)
	}
	n, err := rowsAffected(result)
	if err != nil {
		return err
	}
	if n == 0 {
		return s.missingOrStale(ctx, s.db, repositoryID, generation)
	}
	return nil
}

// GetStatus implements store.JobStatusStore.
func (s *Store) GetStatus(ctx context.Context, repositoryID string) (*domain.JobStatus, error) {
	var (
		job        domain.JobStatus
		overall    string
		unitStatus []byte
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, repository_id, generation, overall_status, unit_status, created_at, updated_at
		FROM job_status
		WHERE repository_id = $1`,
		repositoryID,
	).Scan(&job.ID, &job.RepositoryID, &job.Generation, &overall, &unitStatus, &job.CreatedAt, &job.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrJobNotFound
	}
	if err != nil {
		return nil, MapError(err)
	}

	if job.OverallStatus, err = domain.ParseOverallStatus(overall); err != nil {
		return nil, store.NewStoreError("job_status", "get_status", "corrupt overall status", err)
	}
	if job.UnitStatus, err = decodeUnitStatus(unitStatus); err != nil {
		return nil, store.NewStoreError("job_status", "get_status", "corrupt unit status", err)
	}
	return &job, nil
}
