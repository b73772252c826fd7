package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/phrazzld/docgen-api/internal/domain"
	"github.com/phrazzld/docgen-api/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const repo = "s3://bucket/acme/widgets"

func TestStore_StartJob(t *testing.T) {
	t.Parallel()

	t.Run("replaces previous job and document", func(t *testing.T) {
		t.Parallel()
		s, mock := newMockStore(t)
		gen := uuid.New()

		mock.ExpectBegin()
		mock.ExpectExec("DELETE FROM documents").WithArgs(repo).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("DELETE FROM job_status").WithArgs(repo).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery("INSERT INTO job_status").
			WithArgs(repo, gen, "in_progress", sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))
		mock.ExpectCommit()

		job, err := s.StartJob(context.Background(), repo, gen)
		require.NoError(t, err)
		assert.Equal(t, int64(7), job.ID)
		assert.Equal(t, gen, job.Generation)
		assert.Equal(t, domain.OverallStatusInProgress, job.OverallStatus)
		assert.Empty(t, job.UnitStatus)
	})

	t.Run("rolls back on failure", func(t *testing.T) {
		t.Parallel()
		s, mock := newMockStore(t)

		mock.ExpectBegin()
		mock.ExpectExec("DELETE FROM documents").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec("DELETE FROM job_status").WillReturnError(&pgconn.PgError{Code: "08006"})
		mock.ExpectRollback()

		_, err := s.StartJob(context.Background(), repo, uuid.New())
		assert.ErrorIs(t, err, store.ErrStorageUnavailable)
	})

	t.Run("rejects blank repository", func(t *testing.T) {
		t.Parallel()
		s, _ := newMockStore(t)
		_, err := s.StartJob(context.Background(), "  ", uuid.New())
		assert.ErrorIs(t, err, store.ErrInvalidEntity)
	})
}

func TestStore_MarkUnitStarted(t *testing.T) {
	t.Parallel()

	t.Run("upserts escaped key", func(t *testing.T) {
		t.Parallel()
		s, mock := newMockStore(t)
		gen := uuid.New()

		mock.ExpectExec("INSERT INTO job_status").
			WithArgs(repo, gen, "in_progress", "pkg/main%2Epy", "in_progress", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, s.MarkUnitStarted(context.Background(), repo, gen, "pkg/main.py"))
	})

	t.Run("stale generation", func(t *testing.T) {
		t.Parallel()
		s, mock := newMockStore(t)
		owner := uuid.New()

		mock.ExpectExec("INSERT INTO job_status").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("SELECT generation FROM job_status").
			WithArgs(repo).
			WillReturnRows(sqlmock.NewRows([]string{"generation"}).AddRow(owner.String()))

		err := s.MarkUnitStarted(context.Background(), repo, uuid.New(), "a.py")
		assert.ErrorIs(t, err, store.ErrStaleGeneration)
		assert.Contains(t, err.Error(), owner.String())
	})

	t.Run("empty key", func(t *testing.T) {
		t.Parallel()
		s, _ := newMockStore(t)
		err := s.MarkUnitStarted(context.Background(), repo, uuid.New(), "")
		assert.ErrorIs(t, err, store.ErrInvalidEntity)
	})
}

func TestStore_MarkUnitTerminal(t *testing.T) {
	t.Parallel()

	t.Run("records outcome", func(t *testing.T) {
		t.Parallel()
		s, mock := newMockStore(t)
		gen := uuid.New()

		mock.ExpectExec("UPDATE job_status").
			WithArgs(repo, gen, "@overview", "failed", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, s.MarkUnitTerminal(context.Background(), repo, gen, "@overview", false))
	})

	t.Run("missing job", func(t *testing.T) {
		t.Parallel()
		s, mock := newMockStore(t)

		mock.ExpectExec("UPDATE job_status").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("SELECT generation FROM job_status").WillReturnError(sql.ErrNoRows)

		err := s.MarkUnitTerminal(context.Background(), repo, uuid.New(), "a.py", true)
		assert.ErrorIs(t, err, store.ErrJobNotFound)
	})
}

func TestStore_MarkJobTerminal(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	gen := uuid.New()

	mock.ExpectExec("UPDATE job_status").
		WithArgs(repo, gen, "completed", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.MarkJobTerminal(context.Background(), repo, gen, true))
}

func TestStore_GetStatus(t *testing.T) {
	t.Parallel()

	columns := []string{"id", "repository_id", "generation", "overall_status", "unit_status", "created_at", "updated_at"}

	t.Run("normalizes stored values", func(t *testing.T) {
		t.Parallel()
		s, mock := newMockStore(t)
		gen := uuid.New()
		now := time.Now().UTC()

		mock.ExpectQuery("SELECT id, repository_id, generation").
			WithArgs(repo).
			WillReturnRows(sqlmock.NewRows(columns).AddRow(
				int64(3), repo, gen.String(), "Complete",
				[]byte(`{"pkg/main%2Epy":"done","lib/x%2524%2Ejs":"Failed","@overview":"in progress"}`),
				now, now,
			))

		job, err := s.GetStatus(context.Background(), repo)
		require.NoError(t, err)
		assert.Equal(t, int64(3), job.ID)
		assert.Equal(t, gen, job.Generation)
		assert.Equal(t, domain.OverallStatusCompleted, job.OverallStatus)
		assert.Equal(t, map[string]domain.UnitStatus{
			"pkg/main.py":          domain.UnitStatusCompleted,
			"lib/x%24.js":          domain.UnitStatusFailed,
			domain.OverviewUnitKey: domain.UnitStatusInProgress,
		}, job.UnitStatus)
		assert.Equal(t, domain.UnitCounts{Total: 2, Completed: 1, Failed: 1}, job.Counts())
	})

	t.Run("not found", func(t *testing.T) {
		t.Parallel()
		s, mock := newMockStore(t)
		mock.ExpectQuery("SELECT id, repository_id, generation").WillReturnError(sql.ErrNoRows)

		_, err := s.GetStatus(context.Background(), repo)
		assert.ErrorIs(t, err, store.ErrJobNotFound)
	})

	t.Run("unknown status", func(t *testing.T) {
		t.Parallel()
		s, mock := newMockStore(t)
		now := time.Now()
		mock.ExpectQuery("SELECT id, repository_id, generation").
			WillReturnRows(sqlmock.NewRows(columns).AddRow(
				int64(1), repo, uuid.NewString(), "exploded", []byte(`{}`), now, now,
			))

		_, err := s.GetStatus(context.Background(), repo)
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrUnknownStatus)

		var storeErr *store.StoreError
		require.True(t, errors.As(err, &storeErr))
		assert.Equal(t, "get_status", storeErr.Operation)
	})
}
