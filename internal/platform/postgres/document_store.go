package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/docgen-api/internal/domain"
	"github.com/phrazzld/docgen-api/internal/store"
)

// Document writes only land while generation owns the repository's
// job_status row. A document left over from an older generation is replaced
// rather than extended.

// PutUnitResult implements store.DocumentStore.
func (s *Store) PutUnitResult(
	ctx context.Context,
	repositoryID string,
	generation uuid.UUID,
	unitKey string,
	result domain.UnitResult,
) error {
	if err := domain.ValidateUnitKey(unitKey); err != nil {
		return fmt.Errorf("%w: %w", store.ErrInvalidEntity, err)
	}
	result.Normalize()
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("%w: encode unit result: %w", store.ErrInvalidEntity, err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (repository_id, repository_name, units, generation, created_at, updated_at)
		SELECT $1, $2, jsonb_build_object($3::text, $4::jsonb), $5, $6, $6
		FROM job_status
		WHERE repository_id = $1 AND generation = $5
		ON CONFLICT (repository_id) DO UPDATE
		SET units = CASE WHEN documents.generation = EXCLUDED.generation
				THEN documents.units || EXCLUDED.units
				ELSE EXCLUDED.units END,
			repository_summary = CASE WHEN documents.generation = EXCLUDED.generation
				THEN documents.repository_summary ELSE '' END,
			overview = CASE WHEN documents.generation = EXCLUDED.generation
				THEN documents.overview ELSE NULL END,
			generation = EXCLUDED.generation,
			updated_at = EXCLUDED.updated_at`,
		repositoryID,
		domain.RepositoryName(repositoryID),
		domain.EscapeUnitKey(unitKey),
		string(payload),
		generation,
		time.Now().UTC(),
	)
	return s.checkDocumentWrite(res, err, repositoryID)
}

// PutOverview implements store.DocumentStore.
func (s *Store) PutOverview(
	ctx context.Context,
	repositoryID string,
	generation uuid.UUID,
	overview domain.RepositoryOverview,
) error {
	overview.Normalize()
	payload, err := json.Marshal(overview)
	if err != nil {
		return fmt.Errorf("%w: encode overview: %w", store.ErrInvalidEntity, err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (repository_id, repository_name, repository_summary, overview, units, generation, created_at, updated_at)
		SELECT $1, $2, $3, $4::jsonb, '{}'::jsonb, $5, $6, $6
		FROM job_status
		WHERE repository_id = $1 AND generation = $5
		ON CONFLICT (repository_id) DO UPDATE
		SET repository_summary = EXCLUDED.repository_summary,
			overview = EXCLUDED.overview,
			units = CASE WHEN documents.generation = EXCLUDED.generation
				THEN documents.units ELSE EXCLUDED.units END,
			generation = EXCLUDED.generation,
			updated_at = EXCLUDED.updated_at`,
		repositoryID,
		domain.RepositoryName(repositoryID),
		overview.Summary,
		string(payload),
		generation,
		time.Now().UTC(),
	)
	return s.checkDocumentWrite(res, err, repositoryID)
}

func (s *Store) checkDocumentWrite(res sql.Result, err error, repositoryID string) error {
	if err != nil {
		return MapError(err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: no current job owns repository %s", store.ErrStaleGeneration, repositoryID)
	}
	return nil
}

// GetDocument implements store.DocumentStore.
func (s *Store) GetDocument(ctx context.Context, repositoryID string) (*domain.Document, error) {
	var (
		doc      domain.Document
		overview []byte
		units    []byte
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT repository_id, repository_name, repository_summary, overview, units, generation, created_at, updated_at
		FROM documents
		WHERE repository_id = $1`,
		repositoryID,
	).Scan(
		&doc.RepositoryID,
		&doc.RepositoryName,
		&doc.RepositorySummary,
		&overview,
		&units,
		&doc.Generation,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrDocumentNotFound
	}
	if err != nil {
		return nil, MapError(err)
	}

	if len(overview) > 0 {
		var ov domain.RepositoryOverview
		if err := json.Unmarshal(overview, &ov); err != nil {
			return nil, store.NewStoreError("document", "get_document", "corrupt overview", err)
		}
		ov.Normalize()
		doc.Overview = &ov
	}
	if doc.Units, err = decodeUnits(units); err != nil {
		return nil, store.NewStoreError("document", "get_document", "corrupt units", err)
	}
	return &doc, nil
}

// GetUnitResult implements store.DocumentStore.
func (s *Store) GetUnitResult(ctx context.Context, repositoryID, unitKey string) (*domain.UnitResult, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT units -> $2::text FROM documents WHERE repository_id = $1`,
		repositoryID, domain.EscapeUnitKey(unitKey),
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrDocumentNotFound
	}
	if err != nil {
		return nil, MapError(err)
	}
	if len(raw) == 0 {
		return nil, store.ErrUnitNotFound
	}

	var result domain.UnitResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, store.NewStoreError("document", "get_unit_result", "corrupt unit result", err)
	}
	result.Normalize()
	return &result, nil
}

// DeleteDocument implements store.DocumentStore.
func (s *Store) DeleteDocument(ctx context.Context, repositoryID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE repository_id = $1`, repositoryID)
	return MapError(err)
}
