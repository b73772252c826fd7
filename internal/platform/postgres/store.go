package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/docgen-api/internal/domain"
	"github.com/phrazzld/docgen-api/internal/store"
)

// Store implements store.Store on PostgreSQL.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ store.Store = (*Store)(nil)

// NewStore creates a Store on an open database handle.
func NewStore(db *sql.DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		db:     db,
		logger: logger.With("component", "postgres_store"),
	}
}

// missingOrStale explains why a conditional write on job_status matched no
// row: either the repository has no job or another generation owns it.
func (s *Store) missingOrStale(ctx context.Context, q store.DBTX, repositoryID string, generation uuid.UUID) error {
	var current uuid.UUID
	err := q.QueryRowContext(ctx,
		`SELECT generation FROM job_status WHERE repository_id = $1`,
		repositoryID,
	).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrJobNotFound
	}
	if err != nil {
		return MapError(err)
	}
	if current == generation {
		// Ownership changed between the two statements.
		return fmt.Errorf("%w: repository %s changed concurrently", store.ErrStaleGeneration, repositoryID)
	}
	return fmt.Errorf("%w: repository %s is owned by generation %s",
		store.ErrStaleGeneration, repositoryID, current)
}

func rowsAffected(result sql.Result) (int64, error) {
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// encodeUnitStatus converts a unit status map to its stored JSON form.
func encodeUnitStatus(units map[string]domain.UnitStatus) (string, error) {
	stored := make(map[string]string, len(units))
	for key, st := range units {
		stored[domain.EscapeUnitKey(key)] = string(st)
	}
	data, err := json.Marshal(stored)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// decodeUnitStatus reads a stored unit status map, unescaping keys and
// normalizing legacy status spellings.
func decodeUnitStatus(raw []byte) (map[string]domain.UnitStatus, error) {
	units := make(map[string]domain.UnitStatus)
	if len(raw) == 0 {
		return units, nil
	}
	var stored map[string]string
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, fmt.Errorf("decode unit status: %w", err)
	}
	for escaped, value := range stored {
		key, err := domain.UnescapeUnitKey(escaped)
		if err != nil {
			return nil, err
		}
		st, err := domain.ParseUnitStatus(value)
		if err != nil {
			return nil, err
		}
		units[key] = st
	}
	return units, nil
}

func decodeUnits(raw []byte) (map[string]domain.UnitResult, error) {
	units := make(map[string]domain.UnitResult)
	if len(raw) == 0 {
		return units, nil
	}
	var stored map[string]domain.UnitResult
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, fmt.Errorf("decode units: %w", err)
	}
	for escaped, result := range stored {
		key, err := domain.UnescapeUnitKey(escaped)
		if err != nil {
			return nil, err
		}
		result.Normalize()
		units[key] = result
	}
	return units, nil
}
