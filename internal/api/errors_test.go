package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/phrazzld/docgen-api/internal/service"
	"github.com/phrazzld/docgen-api/internal/store"
	"github.com/stretchr/testify/assert"
)

func TestMapErrorToStatusCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{service.ErrInvalidRequest, http.StatusBadRequest},
		{fmt.Errorf("wrap: %w", store.ErrInvalidEntity), http.StatusBadRequest},
		{service.ErrJobNotFound, http.StatusNotFound},
		{service.ErrDocumentNotFound, http.StatusNotFound},
		{service.ErrUnitNotFound, http.StatusNotFound},
		{store.ErrDocumentNotFound, http.StatusNotFound},
		{fmt.Errorf("%w: s3 access denied", service.ErrSourceUnavailable), http.StatusUnprocessableEntity},
		{service.ErrJobInProgress, http.StatusConflict},
		{service.ErrBusy, http.StatusServiceUnavailable},
		{fmt.Errorf("ping: %w", store.ErrStorageUnavailable), http.StatusServiceUnavailable},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, MapErrorToStatusCode(tc.err), tc.err.Error())
	}
}

func TestGetSafeErrorMessage_DoesNotLeakDetails(t *testing.T) {
	err := fmt.Errorf("%w: GetObject s3://secret-bucket/key: AccessDenied", service.ErrSourceUnavailable)
	msg := GetSafeErrorMessage(err)
	assert.Equal(t, "Repository source unavailable", msg)
	assert.NotContains(t, msg, "secret-bucket")

	assert.Equal(t, "An unexpected error occurred", GetSafeErrorMessage(errors.New("pq: password authentication failed")))
	assert.Equal(t, "An unexpected error occurred", GetSafeErrorMessage(nil))
}

func TestSanitizeValidationError(t *testing.T) {
	type req struct {
		RepositoryID string `validate:"required"`
	}
	err := validator.New().Struct(req{})
	var verrs validator.ValidationErrors
	assert.True(t, errors.As(err, &verrs))
	assert.Equal(t, "Invalid RepositoryID: required field", SanitizeValidationError(verrs))
	assert.Equal(t, "Validation error", SanitizeValidationError(nil))
	assert.Equal(t, http.StatusBadRequest, MapErrorToStatusCode(err))
}
