package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/phrazzld/docgen-api/internal/api/shared"
	"github.com/phrazzld/docgen-api/internal/service"
	"github.com/phrazzld/docgen-api/internal/store"
)

// MapErrorToStatusCode maps service and store errors to HTTP status codes.
func MapErrorToStatusCode(err error) int {
	var verrs validator.ValidationErrors
	switch {
	case errors.As(err, &verrs),
		errors.Is(err, service.ErrInvalidRequest),
		errors.Is(err, store.ErrInvalidEntity):
		return http.StatusBadRequest

	case errors.Is(err, service.ErrJobNotFound),
		errors.Is(err, service.ErrDocumentNotFound),
		errors.Is(err, service.ErrUnitNotFound),
		errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound

	case errors.Is(err, service.ErrSourceUnavailable):
		return http.StatusUnprocessableEntity

	case errors.Is(err, service.ErrJobInProgress):
		return http.StatusConflict

	case errors.Is(err, service.ErrBusy),
		errors.Is(err, store.ErrStorageUnavailable):
		return http.StatusServiceUnavailable

	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout

	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a client-facing message for err.
func GetSafeErrorMessage(err error) string {
	var verrs validator.ValidationErrors
	switch {
	case err == nil:
		return "An unexpected error occurred"
	case errors.As(err, &verrs):
		return SanitizeValidationError(verrs)
	case errors.Is(err, service.ErrInvalidRequest):
		return "Invalid repository ID or unit key"
	case errors.Is(err, store.ErrInvalidEntity):
		return "Invalid entity data"
	case errors.Is(err, service.ErrJobNotFound):
		return "No documentation job found for repository"
	case errors.Is(err, service.ErrDocumentNotFound):
		return "Document not found"
	case errors.Is(err, service.ErrUnitNotFound):
		return "Unit not found"
	case errors.Is(err, service.ErrSourceUnavailable):
		return "Repository source unavailable"
	case errors.Is(err, service.ErrJobInProgress):
		return "Documentation job still in progress"
	case errors.Is(err, service.ErrBusy):
		return "Job queue unavailable, retry later"
	case errors.Is(err, store.ErrStorageUnavailable):
		return "Storage unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return "Request timed out"
	default:
		return "An unexpected error occurred"
	}
}

// SanitizeValidationError reports the first failing field without echoing
// the rejected value.
func SanitizeValidationError(verrs validator.ValidationErrors) string {
	if len(verrs) == 0 {
		return "Validation error"
	}
	fe := verrs[0]
	return fmt.Sprintf("Invalid %s: %s", fe.Field(), getValidationTagMessage(fe.Tag()))
}

func getValidationTagMessage(tag string) string {
	switch tag {
	case "required":
		return "required field"
	case "min":
		return "too short"
	case "max":
		return "too long"
	case "oneof":
		return "invalid value"
	default:
		return "validation failed"
	}
}

// HandleAPIError writes the mapped status and safe message for err and
// logs the redacted detail.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error) {
	shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
}
