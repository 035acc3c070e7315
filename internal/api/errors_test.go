package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskconvertai/taskconvert-api/internal/api/shared"
	"github.com/taskconvertai/taskconvert-api/internal/domain"
	"github.com/taskconvertai/taskconvert-api/internal/ingest"
	"github.com/taskconvertai/taskconvert-api/internal/service"
	"github.com/taskconvertai/taskconvert-api/internal/service/auth"
	"github.com/taskconvertai/taskconvert-api/internal/store"
	"github.com/taskconvertai/taskconvert-api/internal/task"
)

func TestMapErrorToStatusCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"expired token", auth.ErrExpiredToken, http.StatusUnauthorized},
		{"token not yet valid", fmt.Errorf("wrap: %w", auth.ErrTokenNotYetValid), http.StatusUnauthorized},
		{"unsupported media", ErrUnsupportedMediaType, http.StatusUnsupportedMediaType},
		{"validation", domain.NewValidationError("name", "too long", nil), http.StatusBadRequest},
		{"oversize", fmt.Errorf("ingest: %w", ingest.ErrOversize), http.StatusBadRequest},
		{"empty payload", ingest.ErrEmptyPayload, http.StatusBadRequest},
		{"empty body", shared.ErrEmptyBody, http.StatusBadRequest},
		{"max bytes", &http.MaxBytesError{Limit: 10}, http.StatusBadRequest},
		{"job not found", service.NewJobServiceError("get_job", "failed", store.ErrJobNotFound), http.StatusNotFound},
		{"result not found", store.ErrResultNotFound, http.StatusNotFound},
		{"not finished", fmt.Errorf("%w: job x is RUNNING", service.ErrJobNotFinished), http.StatusConflict},
		{"queue full", task.ErrQueueFull, http.StatusServiceUnavailable},
		{"queue closed", task.ErrQueueClosed, http.StatusServiceUnavailable},
		{"unexpected", errors.New("connection reset"), http.StatusInternalServerError},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, MapErrorToStatusCode(tc.err))
		})
	}
}

func TestGetSafeErrorMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, "An unexpected error occurred"},
		{"invalid token", auth.ErrInvalidToken, "Invalid token"},
		{"oversize", ingest.ErrOversize, "File too large"},
		{"empty payload", ingest.ErrEmptyPayload, "Empty request"},
		{"owner", domain.NewValidationError("userID", "is required", service.ErrOwnerRequired), "Invalid userID: is required"},
		{"job not found", store.ErrJobNotFound, "Job not found"},
		{"result not found", store.ErrResultNotFound, "Result not found"},
		{"not finished", service.ErrJobNotFinished, "Job not finished"},
		{"queue full", task.ErrQueueFull, "Service is busy, try again later"},
		{
			"internal details are hidden",
			errors.New(`pq: password authentication failed for user "admin"`),
			"An unexpected error occurred",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, GetSafeErrorMessage(tc.err))
		})
	}
}

func TestSanitizeValidationError(t *testing.T) {
	t.Parallel()

	type request struct {
		Summary string `validate:"required"`
		Label   string `validate:"max=3"`
	}

	err := validator.New().Struct(request{Label: "secret-value"})
	var errs validator.ValidationErrors
	require.True(t, errors.As(err, &errs))

	msg := SanitizeValidationError(errs)
	assert.Equal(t, "Invalid summary: required field", msg)
	assert.NotContains(t, msg, "secret-value")
	assert.Equal(t, "Validation error", SanitizeValidationError(nil))
}

func TestHandleAPIError(t *testing.T) {
	t.Parallel()

	t.Run("fallback replaces generic message", func(t *testing.T) {
		t.Parallel()
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/jobs", nil)

		HandleAPIError(rr, req, errors.New("dial tcp 10.0.0.7:5432: refused"), "Failed to list jobs")

		assert.Equal(t, http.StatusInternalServerError, rr.Code)
		assert.Equal(t, "Failed to list jobs", decodeError(t, rr))
		assert.NotContains(t, rr.Body.String(), "10.0.0.7")
	})

	t.Run("fallback ignored for client errors", func(t *testing.T) {
		t.Parallel()
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/jobs/x", nil)

		HandleAPIError(rr, req, store.ErrJobNotFound, "Failed to get job")

		assert.Equal(t, http.StatusNotFound, rr.Code)
		assert.Equal(t, "Job not found", decodeError(t, rr))
	})
}
