package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/phrazzld/docgen-api/internal/api/shared"
	"github.com/phrazzld/docgen-api/internal/domain"
	"github.com/phrazzld/docgen-api/internal/platform/logger"
	"github.com/phrazzld/docgen-api/internal/service"
)

// Await outcomes reported by GET /jobs/await.
const (
	AwaitStatusCompleted = "completed"
	AwaitStatusFailed    = "failed"
	AwaitStatusPending   = "pending"
)

// SubmitJobRequest is the body of POST /jobs.
type SubmitJobRequest struct {
	RepositoryID string `json:"repository_id" validate:"required,max=2048"`
}

// repositoryQuery is bound from the repository_id and unit_key query parameters.
type repositoryQuery struct {
	RepositoryID string `validate:"required,max=2048"`
	UnitKey      string `validate:"omitempty,max=4096"`
}

// AwaitResponse is returned by GET /jobs/await. Document is set when the
// job reached a terminal state.
type AwaitResponse struct {
	RepositoryID string           `json:"repository_id"`
	Status       string           `json:"status"`
	Document     *domain.Document `json:"document,omitempty"`
}

// HandlerConfig bounds how long a single await request may block.
type HandlerConfig struct {
	DefaultAwaitTimeout time.Duration
	MaxAwaitTimeout     time.Duration
}

// DefaultHandlerConfig returns the default await bounds.
func DefaultHandlerConfig() HandlerConfig {
	return HandlerConfig{
		DefaultAwaitTimeout: 30 * time.Second,
		MaxAwaitTimeout:     5 * time.Minute,
	}
}

// DocumentationHandler serves job and document endpoints.
type DocumentationHandler struct {
	svc    service.DocumentationService
	config HandlerConfig
	logger *slog.Logger
}

// NewDocumentationHandler creates a DocumentationHandler. Zero config
// fields fall back to DefaultHandlerConfig.
func NewDocumentationHandler(
	svc service.DocumentationService,
	cfg HandlerConfig,
	log *slog.Logger,
) *DocumentationHandler {
	def := DefaultHandlerConfig()
	if cfg.DefaultAwaitTimeout <= 0 {
		cfg.DefaultAwaitTimeout = def.DefaultAwaitTimeout
	}
	if cfg.MaxAwaitTimeout <= 0 {
		cfg.MaxAwaitTimeout = def.MaxAwaitTimeout
	}
	if cfg.DefaultAwaitTimeout > cfg.MaxAwaitTimeout {
		cfg.DefaultAwaitTimeout = cfg.MaxAwaitTimeout
	}
	if log == nil {
		log = slog.Default()
	}
	return &DocumentationHandler{
		svc:    svc,
		config: cfg,
		logger: log.With("component", "documentation_handler"),
	}
}

// Register mounts the handler's routes on r.
func (h *DocumentationHandler) Register(r chi.Router) {
	r.Post("/jobs", h.SubmitJob)
	r.Get("/jobs/status", h.GetStatus)
	r.Get("/jobs/status/unit", h.GetUnitStatus)
	r.Get("/jobs/await", h.AwaitCompletion)
	r.Get("/documents", h.GetDocument)
	r.Delete("/documents", h.DeleteDocument)
	r.Get("/documents/unit", h.GetUnitResult)
}

// SubmitJob handles POST /jobs. The job runs asynchronously, so a
// successful submission returns 202 Accepted.
func (h *DocumentationHandler) SubmitJob(w http.ResponseWriter, r *http.Request) {
	var req SubmitJobRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid request format", err)
		return
	}
	if err := shared.ValidateRequest(&req); err != nil {
		HandleAPIError(w, r, err)
		return
	}

	job, err := h.svc.SubmitJob(r.Context(), req.RepositoryID)
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusAccepted, job)
}

// GetStatus handles GET /jobs/status?repository_id=...&units=true.
func (h *DocumentationHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	q, ok := h.bindQuery(w, r, false)
	if !ok {
		return
	}

	includeUnits := false
	if raw := r.URL.Query().Get("units"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid units: must be a boolean")
			return
		}
		includeUnits = v
	}

	view, err := h.svc.GetStatus(r.Context(), q.RepositoryID, includeUnits)
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, view)
}

// GetUnitStatus handles GET /jobs/status/unit?repository_id=...&unit_key=....
func (h *DocumentationHandler) GetUnitStatus(w http.ResponseWriter, r *http.Request) {
	q, ok := h.bindQuery(w, r, true)
	if !ok {
		return
	}

	view, err := h.svc.GetUnitStatus(r.Context(), q.RepositoryID, q.UnitKey)
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, view)
}

// AwaitCompletion handles GET /jobs/await?repository_id=...&job_id=...&timeout=30s.
// It blocks until the job is terminal or the timeout passes; a timeout is
// reported as 202 with status "pending" so clients can poll again. job_id,
// as returned by POST /jobs, keeps an earlier job's result from answering.
func (h *DocumentationHandler) AwaitCompletion(w http.ResponseWriter, r *http.Request) {
	q, ok := h.bindQuery(w, r, false)
	if !ok {
		return
	}
	timeout, err := h.awaitTimeout(r.URL.Query().Get("timeout"))
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid timeout", err)
		return
	}
	var jobID int64
	if raw := r.URL.Query().Get("job_id"); raw != "" {
		jobID, err = strconv.ParseInt(raw, 10, 64)
		if err != nil || jobID < 0 {
			shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid job_id: must be a non-negative integer")
			return
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	doc, err := h.svc.AwaitCompletion(ctx, q.RepositoryID, jobID)
	switch {
	case err == nil:
		shared.RespondWithJSON(w, r, http.StatusOK, AwaitResponse{
			RepositoryID: q.RepositoryID,
			Status:       AwaitStatusCompleted,
			Document:     doc,
		})
	case errors.Is(err, service.ErrJobFailed):
		shared.RespondWithJSON(w, r, http.StatusOK, AwaitResponse{
			RepositoryID: q.RepositoryID,
			Status:       AwaitStatusFailed,
			Document:     doc,
		})
	case r.Context().Err() != nil:
		logger.FromContextOr(r.Context(), h.logger).Debug("client went away while awaiting job",
			"repository_id", q.RepositoryID)
	case errors.Is(err, context.DeadlineExceeded):
		shared.RespondWithJSON(w, r, http.StatusAccepted, AwaitResponse{
			RepositoryID: q.RepositoryID,
			Status:       AwaitStatusPending,
		})
	default:
		HandleAPIError(w, r, err)
	}
}

// GetDocument handles GET /documents?repository_id=....
func (h *DocumentationHandler) GetDocument(w http.ResponseWriter, r *http.Request) {
	q, ok := h.bindQuery(w, r, false)
	if !ok {
		return
	}

	doc, err := h.svc.GetDocument(r.Context(), q.RepositoryID)
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, doc)
}

// DeleteDocument handles DELETE /documents?repository_id=.... The job
// status is kept; a document still being written yields 409.
func (h *DocumentationHandler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	q, ok := h.bindQuery(w, r, false)
	if !ok {
		return
	}

	if err := h.svc.DeleteDocument(r.Context(), q.RepositoryID); err != nil {
		HandleAPIError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetUnitResult handles GET /documents/unit?repository_id=...&unit_key=....
func (h *DocumentationHandler) GetUnitResult(w http.ResponseWriter, r *http.Request) {
	q, ok := h.bindQuery(w, r, true)
	if !ok {
		return
	}

	result, err := h.svc.GetUnitResult(r.Context(), q.RepositoryID, q.UnitKey)
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, result)
}

// bindQuery reads and validates the repository (and optionally unit)
// query parameters, writing a 400 response on failure.
func (h *DocumentationHandler) bindQuery(w http.ResponseWriter, r *http.Request, needUnit bool) (repositoryQuery, bool) {
	values := r.URL.Query()
	q := repositoryQuery{
		RepositoryID: values.Get("repository_id"),
		UnitKey:      values.Get("unit_key"),
	}
	if err := shared.ValidateRequest(&q); err != nil {
		HandleAPIError(w, r, err)
		return q, false
	}
	if needUnit && q.UnitKey == "" {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid UnitKey: required field")
		return q, false
	}
	return q, true
}

// awaitTimeout parses a Go duration ("90s") or a number of seconds and
// clamps it to the configured maximum.
func (h *DocumentationHandler) awaitTimeout(raw string) (time.Duration, error) {
	if raw == "" {
		return h.config.DefaultAwaitTimeout, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		secs, convErr := strconv.Atoi(raw)
		if convErr != nil {
			return 0, fmt.Errorf("parse timeout %q: %w", raw, err)
		}
		d = time.Duration(secs) * time.Second
	}
	if d <= 0 {
		return 0, fmt.Errorf("timeout must be positive, got %s", d)
	}
	return min(d, h.config.MaxAwaitTimeout), nil
}
