package shared

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/phrazzld/docgen-api/internal/platform/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// requestWithLog returns a request whose context carries a trace ID and a
// debug logger writing to the returned buffer.
func requestWithLog(t *testing.T) (*http.Request, *strings.Builder) {
	t.Helper()
	var buf strings.Builder
	log := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	ctx := context.WithValue(context.Background(), TraceIDKey, "test-trace-id")
	ctx = logger.WithContext(ctx, log)
	req := httptest.NewRequest(http.MethodGet, "/api/documents", nil).WithContext(ctx)
	return req, &buf
}

func TestRespondWithJSON(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	w := httptest.NewRecorder()

	RespondWithJSON(w, req, http.StatusAccepted, map[string]any{"status": "in_progress", "units": 3})

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "in_progress", body["status"])
	assert.Equal(t, float64(3), body["units"])
}

func TestRespondWithJSONNil(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	w := httptest.NewRecorder()

	RespondWithJSON(w, req, http.StatusOK, nil)

	assert.Equal(t, "null\n", w.Body.String())
}

func TestRespondWithJSONEncodingError(t *testing.T) {
	req, logBuf := requestWithLog(t)
	w := httptest.NewRecorder()

	RespondWithJSON(w, req, http.StatusOK, map[string]any{"bad": make(chan int)})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, logBuf.String(), "failed to encode JSON response")
}

func TestRespondWithError(t *testing.T) {
	req, _ := requestWithLog(t)
	w := httptest.NewRecorder()

	RespondWithError(w, req, http.StatusBadRequest, "Invalid request")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	var response ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "Invalid request", response.Error)
	assert.Equal(t, "test-trace-id", response.TraceID)
}

func TestRespondWithErrorNoTraceID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	w := httptest.NewRecorder()

	RespondWithError(w, req, http.StatusUnauthorized, "Unauthorized")

	var response ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "Unauthorized", response.Error)
	assert.Empty(t, response.TraceID)
	assert.NotContains(t, w.Body.String(), "trace_id")
}

func TestRespondWithErrorAndLog(t *testing.T) {
	tests := []struct {
		name          string
		statusCode    int
		elevate       bool
		expectedLevel string
	}{
		{name: "server error", statusCode: http.StatusInternalServerError, expectedLevel: "level=ERROR"},
		{name: "client error", statusCode: http.StatusNotFound, expectedLevel: "level=DEBUG"},
		{name: "elevated client error", statusCode: http.StatusUnauthorized, elevate: true, expectedLevel: "level=WARN"},
		{name: "rate limited", statusCode: http.StatusTooManyRequests, expectedLevel: "level=WARN"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req, logBuf := requestWithLog(t)
			w := httptest.NewRecorder()

			var opts []ResponseOption
			if tc.elevate {
				opts = append(opts, WithElevatedLogLevel())
			}
			RespondWithErrorAndLog(w, req, tc.statusCode, "Something failed",
				errors.New("dial tcp 10.0.0.7:5432: connection refused"), opts...)

			assert.Equal(t, tc.statusCode, w.Code)
			var response ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
			assert.Equal(t, "Something failed", response.Error)
			assert.Equal(t, "test-trace-id", response.TraceID)
			assert.NotContains(t, w.Body.String(), "connection refused")

			out := logBuf.String()
			assert.Contains(t, out, tc.expectedLevel)
			assert.Contains(t, out, "trace_id=test-trace-id")
			assert.Contains(t, out, "error_type=*errors.errorString")
		})
	}
}
