package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/docgen-api/internal/api/shared"
	"github.com/phrazzld/docgen-api/internal/domain"
	"github.com/phrazzld/docgen-api/internal/service"
	"github.com/phrazzld/docgen-api/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRepo = "s3://docs-bucket/acme/billing"

// fakeDocumentationService is a function-field fake of service.DocumentationService.
type fakeDocumentationService struct {
	SubmitJobFn       func(ctx context.Context, repositoryID string) (*service.SubmittedJob, error)
	GetStatusFn       func(ctx context.Context, repositoryID string, includeUnits bool) (*service.JobStatusView, error)
	GetUnitStatusFn   func(ctx context.Context, repositoryID, unitKey string) (*service.UnitStatusView, error)
	AwaitCompletionFn func(ctx context.Context, repositoryID string, jobID int64) (*domain.Document, error)
	GetDocumentFn     func(ctx context.Context, repositoryID string) (*domain.Document, error)
	GetUnitResultFn   func(ctx context.Context, repositoryID, unitKey string) (*domain.UnitResult, error)
	DeleteDocumentFn  func(ctx context.Context, repositoryID string) error
}

var _ service.DocumentationService = (*fakeDocumentationService)(nil)

func (f *fakeDocumentationService) SubmitJob(ctx context.Context, repositoryID string) (*service.SubmittedJob, error) {
	return f.SubmitJobFn(ctx, repositoryID)
}

func (f *fakeDocumentationService) GetStatus(
	ctx context.Context,
	repositoryID string,
	includeUnits bool,
) (*service.JobStatusView, error) {
	return f.GetStatusFn(ctx, repositoryID, includeUnits)
}

func (f *fakeDocumentationService) GetUnitStatus(
	ctx context.Context,
	repositoryID, unitKey string,
) (*service.UnitStatusView, error) {
	return f.GetUnitStatusFn(ctx, repositoryID, unitKey)
}

func (f *fakeDocumentationService) AwaitCompletion(
	ctx context.Context,
	repositoryID string,
	jobID int64,
) (*domain.Document, error) {
	return f.AwaitCompletionFn(ctx, repositoryID, jobID)
}

func (f *fakeDocumentationService) GetDocument(ctx context.Context, repositoryID string) (*domain.Document, error) {
	return f.GetDocumentFn(ctx, repositoryID)
}

func (f *fakeDocumentationService) GetUnitResult(
	ctx context.Context,
	repositoryID, unitKey string,
) (*domain.UnitResult, error) {
	return f.GetUnitResultFn(ctx, repositoryID, unitKey)
}

func (f *fakeDocumentationService) DeleteDocument(ctx context.Context, repositoryID string) error {
	return f.DeleteDocumentFn(ctx, repositoryID)
}

func newTestRouter(svc service.DocumentationService, cfg HandlerConfig) http.Handler {
	h := NewDocumentationHandler(svc, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	r := chi.NewRouter()
	r.Route("/api", h.Register)
	return r
}

func doRequest(t *testing.T, router http.Handler, method, target string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func query(path string, kv ...string) string {
	v := url.Values{}
	for i := 0; i+1 < len(kv); i += 2 {
		v.Set(kv[i], kv[i+1])
	}
	return path + "?" + v.Encode()
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) shared.ErrorResponse {
	t.Helper()
	var resp shared.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestSubmitJob(t *testing.T) {
	gen := uuid.New()
	svc := &fakeDocumentationService{
		SubmitJobFn: func(_ context.Context, repositoryID string) (*service.SubmittedJob, error) {
			switch repositoryID {
			case testRepo:
				return &service.SubmittedJob{
					JobID:          9,
					RepositoryID:   repositoryID,
					RepositoryName: "billing",
					Generation:     gen,
					UnitCount:      12,
				}, nil
			case "/missing":
				return nil, fmt.Errorf("%w: stat /missing", service.ErrSourceUnavailable)
			case "ftp://host/repo":
				return nil, fmt.Errorf("%w: unsupported scheme", service.ErrInvalidRequest)
			default:
				return nil, service.ErrBusy
			}
		},
	}
	router := newTestRouter(svc, HandlerConfig{})

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantError  string
	}{
		{name: "accepted", body: `{"repository_id":"` + testRepo + `"}`, wantStatus: http.StatusAccepted},
		{name: "malformed body", body: `{"repository_id":`, wantStatus: http.StatusBadRequest, wantError: "Invalid request format"},
		{name: "missing repository", body: `{}`, wantStatus: http.StatusBadRequest, wantError: "Invalid RepositoryID: required field"},
		{name: "source unavailable", body: `{"repository_id":"/missing"}`, wantStatus: http.StatusUnprocessableEntity, wantError: "Repository source unavailable"},
		{name: "unsupported scheme", body: `{"repository_id":"ftp://host/repo"}`, wantStatus: http.StatusBadRequest},
		{name: "queue closed", body: `{"repository_id":"/busy"}`, wantStatus: http.StatusServiceUnavailable},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := doRequest(t, router, http.MethodPost, "/api/jobs", []byte(tc.body))
			assert.Equal(t, tc.wantStatus, w.Code)

			if tc.wantStatus == http.StatusAccepted {
				var job service.SubmittedJob
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &job))
				assert.Equal(t, gen, job.Generation)
				assert.Equal(t, int64(9), job.JobID)
				assert.Equal(t, 12, job.UnitCount)
				return
			}
			if tc.wantError != "" {
				assert.Equal(t, tc.wantError, decodeError(t, w).Error)
			}
		})
	}
}

func TestGetStatus(t *testing.T) {
	var gotInclude bool
	svc := &fakeDocumentationService{
		GetStatusFn: func(_ context.Context, repositoryID string, includeUnits bool) (*service.JobStatusView, error) {
			if repositoryID != testRepo {
				return nil, service.ErrJobNotFound
			}
			gotInclude = includeUnits
			view := &service.JobStatusView{
				RepositoryID:  repositoryID,
				OverallStatus: domain.OverallStatusInProgress,
				Units:         domain.UnitCounts{Total: 10, InProgress: 2, Completed: 6, Failed: 2},
			}
			if includeUnits {
				view.UnitStatus = map[string]domain.UnitStatus{"a.py": domain.UnitStatusCompleted}
			}
			return view, nil
		},
	}
	router := newTestRouter(svc, HandlerConfig{})

	w := doRequest(t, router, http.MethodGet, query("/api/jobs/status", "repository_id", testRepo), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var view service.JobStatusView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	assert.Equal(t, domain.OverallStatusInProgress, view.OverallStatus)
	assert.Equal(t, 6, view.Units.Completed)
	assert.False(t, gotInclude)
	assert.NotContains(t, w.Body.String(), "unit_status")

	w = doRequest(t, router, http.MethodGet, query("/api/jobs/status", "repository_id", testRepo, "units", "true"), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, gotInclude)
	assert.Contains(t, w.Body.String(), `"a.py":"completed"`)

	w = doRequest(t, router, http.MethodGet, query("/api/jobs/status", "repository_id", testRepo, "units", "maybe"), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(t, router, http.MethodGet, query("/api/jobs/status", "repository_id", "/unknown"), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "No documentation job found for repository", decodeError(t, w).Error)

	w = doRequest(t, router, http.MethodGet, "/api/jobs/status", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetUnitStatus(t *testing.T) {
	svc := &fakeDocumentationService{
		GetUnitStatusFn: func(_ context.Context, repositoryID, unitKey string) (*service.UnitStatusView, error) {
			if unitKey != "src/app.js" {
				return nil, service.ErrUnitNotFound
			}
			return &service.UnitStatusView{
				RepositoryID: repositoryID,
				UnitKey:      unitKey,
				Status:       domain.UnitStatusFailed,
			}, nil
		},
	}
	router := newTestRouter(svc, HandlerConfig{})

	w := doRequest(t, router, http.MethodGet,
		query("/api/jobs/status/unit", "repository_id", testRepo, "unit_key", "src/app.js"), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"failed"`)

	w = doRequest(t, router, http.MethodGet,
		query("/api/jobs/status/unit", "repository_id", testRepo, "unit_key", "src/other.js"), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doRequest(t, router, http.MethodGet, query("/api/jobs/status/unit", "repository_id", testRepo), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid UnitKey: required field", decodeError(t, w).Error)
}

func TestAwaitCompletion(t *testing.T) {
	doc := domain.NewDocument(testRepo, uuid.New())
	doc.RepositorySummary = "billing service"

	t.Run("completed", func(t *testing.T) {
		svc := &fakeDocumentationService{
			AwaitCompletionFn: func(context.Context, string, int64) (*domain.Document, error) { return doc, nil },
		}
		w := doRequest(t, newTestRouter(svc, HandlerConfig{}), http.MethodGet,
			query("/api/jobs/await", "repository_id", testRepo), nil)

		require.Equal(t, http.StatusOK, w.Code)
		var resp AwaitResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, AwaitStatusCompleted, resp.Status)
		require.NotNil(t, resp.Document)
		assert.Equal(t, "billing service", resp.Document.RepositorySummary)
	})

	t.Run("failed job still returns document", func(t *testing.T) {
		svc := &fakeDocumentationService{
			AwaitCompletionFn: func(context.Context, string, int64) (*domain.Document, error) {
				return doc, service.ErrJobFailed
			},
		}
		w := doRequest(t, newTestRouter(svc, HandlerConfig{}), http.MethodGet,
			query("/api/jobs/await", "repository_id", testRepo), nil)

		require.Equal(t, http.StatusOK, w.Code)
		var resp AwaitResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, AwaitStatusFailed, resp.Status)
		assert.NotNil(t, resp.Document)
	})

	t.Run("timeout reports pending", func(t *testing.T) {
		var deadline time.Time
		svc := &fakeDocumentationService{
			AwaitCompletionFn: func(ctx context.Context, _ string, _ int64) (*domain.Document, error) {
				deadline, _ = ctx.Deadline()
				<-ctx.Done()
				return nil, ctx.Err()
			},
		}
		start := time.Now()
		w := doRequest(t, newTestRouter(svc, HandlerConfig{}), http.MethodGet,
			query("/api/jobs/await", "repository_id", testRepo, "timeout", "50ms"), nil)

		require.Equal(t, http.StatusAccepted, w.Code)
		var resp AwaitResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, AwaitStatusPending, resp.Status)
		assert.Nil(t, resp.Document)
		assert.WithinDuration(t, start.Add(50*time.Millisecond), deadline, time.Second)
	})

	t.Run("timeout is clamped", func(t *testing.T) {
		var remaining time.Duration
		svc := &fakeDocumentationService{
			AwaitCompletionFn: func(ctx context.Context, _ string, _ int64) (*domain.Document, error) {
				deadline, _ := ctx.Deadline()
				remaining = time.Until(deadline)
				return doc, nil
			},
		}
		router := newTestRouter(svc, HandlerConfig{DefaultAwaitTimeout: time.Second, MaxAwaitTimeout: 2 * time.Second})

		w := doRequest(t, router, http.MethodGet, query("/api/jobs/await", "repository_id", testRepo, "timeout", "3600"), nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.LessOrEqual(t, remaining, 2*time.Second)
		assert.Greater(t, remaining, time.Second)
	})

	t.Run("job id is forwarded", func(t *testing.T) {
		gotJobID := int64(-1)
		svc := &fakeDocumentationService{
			AwaitCompletionFn: func(_ context.Context, _ string, jobID int64) (*domain.Document, error) {
				gotJobID = jobID
				return doc, nil
			},
		}
		router := newTestRouter(svc, HandlerConfig{})

		w := doRequest(t, router, http.MethodGet, query("/api/jobs/await", "repository_id", testRepo, "job_id", "17"), nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, int64(17), gotJobID)

		w = doRequest(t, router, http.MethodGet, query("/api/jobs/await", "repository_id", testRepo), nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Zero(t, gotJobID)

		for _, raw := range []string{"latest", "-3"} {
			w = doRequest(t, router, http.MethodGet, query("/api/jobs/await", "repository_id", testRepo, "job_id", raw), nil)
			assert.Equal(t, http.StatusBadRequest, w.Code, raw)
		}
	})

	t.Run("invalid timeout", func(t *testing.T) {
		svc := &fakeDocumentationService{}
		router := newTestRouter(svc, HandlerConfig{})
		for _, raw := range []string{"soon", "-5s", "0"} {
			w := doRequest(t, router, http.MethodGet, query("/api/jobs/await", "repository_id", testRepo, "timeout", raw), nil)
			assert.Equal(t, http.StatusBadRequest, w.Code, raw)
		}
	})

	t.Run("storage failure", func(t *testing.T) {
		svc := &fakeDocumentationService{
			AwaitCompletionFn: func(context.Context, string, int64) (*domain.Document, error) {
				return nil, &service.DocumentationServiceError{
					Operation: "await_completion",
					Message:   "failed to await job",
					Err:       store.ErrStorageUnavailable,
				}
			},
		}
		w := doRequest(t, newTestRouter(svc, HandlerConfig{}), http.MethodGet,
			query("/api/jobs/await", "repository_id", testRepo), nil)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})
}

func TestGetDocumentAndUnitResult(t *testing.T) {
	doc := domain.NewDocument(testRepo, uuid.New())
	doc.Units["src/app.js"] = domain.UnitResult{Path: "src/app.js", Summary: "entry point"}

	svc := &fakeDocumentationService{
		GetDocumentFn: func(_ context.Context, repositoryID string) (*domain.Document, error) {
			if repositoryID != testRepo {
				return nil, service.ErrDocumentNotFound
			}
			return doc, nil
		},
		GetUnitResultFn: func(_ context.Context, _ string, unitKey string) (*domain.UnitResult, error) {
			r, ok := doc.Units[unitKey]
			if !ok {
				return nil, service.ErrUnitNotFound
			}
			return &r, nil
		},
	}
	router := newTestRouter(svc, HandlerConfig{})

	w := doRequest(t, router, http.MethodGet, query("/api/documents", "repository_id", testRepo), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got domain.Document
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "billing", got.RepositoryName)
	assert.Contains(t, got.Units, "src/app.js")

	w = doRequest(t, router, http.MethodGet, query("/api/documents", "repository_id", "/nope"), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Document not found", decodeError(t, w).Error)

	w = doRequest(t, router, http.MethodGet,
		query("/api/documents/unit", "repository_id", testRepo, "unit_key", "src/app.js"), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "entry point")

	w = doRequest(t, router, http.MethodGet,
		query("/api/documents/unit", "repository_id", testRepo, "unit_key", "src/gone.js"), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteDocument(t *testing.T) {
	var deleted []string
	svc := &fakeDocumentationService{
		DeleteDocumentFn: func(_ context.Context, repositoryID string) error {
			switch repositoryID {
			case testRepo:
				deleted = append(deleted, repositoryID)
				return nil
			case "/running":
				return service.ErrJobInProgress
			default:
				return service.ErrDocumentNotFound
			}
		},
	}
	router := newTestRouter(svc, HandlerConfig{})

	w := doRequest(t, router, http.MethodDelete, query("/api/documents", "repository_id", testRepo), nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.String())
	assert.Equal(t, []string{testRepo}, deleted)

	w = doRequest(t, router, http.MethodDelete, query("/api/documents", "repository_id", "/running"), nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "Documentation job still in progress", decodeError(t, w).Error)

	w = doRequest(t, router, http.MethodDelete, query("/api/documents", "repository_id", "/nope"), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doRequest(t, router, http.MethodDelete, "/api/documents", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Len(t, deleted, 1)
}
