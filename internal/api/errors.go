package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/taskconvertai/taskconvert-api/internal/api/shared"
	"github.com/taskconvertai/taskconvert-api/internal/domain"
	"github.com/taskconvertai/taskconvert-api/internal/ingest"
	"github.com/taskconvertai/taskconvert-api/internal/service"
	"github.com/taskconvertai/taskconvert-api/internal/service/auth"
	"github.com/taskconvertai/taskconvert-api/internal/store"
	"github.com/taskconvertai/taskconvert-api/internal/task"
)

// ErrUnsupportedMediaType is returned for uploads that are neither
// multipart/form-data nor a raw octet stream.
var ErrUnsupportedMediaType = errors.New("unsupported media type")

// isBadRequest reports whether err describes a malformed request.
func isBadRequest(err error) bool {
	var validationErrs validator.ValidationErrors
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	var maxBytesErr *http.MaxBytesError

	return errors.Is(err, domain.ErrValidation) ||
		errors.Is(err, ingest.ErrOversize) ||
		errors.Is(err, shared.ErrEmptyBody) ||
		errors.As(err, &validationErrs) ||
		errors.As(err, &syntaxErr) ||
		errors.As(err, &typeErr) ||
		errors.As(err, &maxBytesErr)
}

// MapErrorToStatusCode maps internal errors to appropriate HTTP status codes
// based on the error type. This prevents leaking internal error types or
// messages to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrTokenNotYetValid),
		errors.Is(err, auth.ErrMissingToken):
		return http.StatusUnauthorized

	case errors.Is(err, ErrUnsupportedMediaType):
		return http.StatusUnsupportedMediaType

	case isBadRequest(err):
		return http.StatusBadRequest

	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound

	case errors.Is(err, service.ErrJobNotFinished):
		return http.StatusConflict

	case errors.Is(err, task.ErrQueueFull),
		errors.Is(err, task.ErrQueueClosed):
		return http.StatusServiceUnavailable

	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized, user-friendly error message
// based on the error type. This prevents leaking sensitive internal details.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	var validationErr *domain.ValidationError
	var validationErrs validator.ValidationErrors
	var maxBytesErr *http.MaxBytesError

	switch {
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrTokenNotYetValid),
		errors.Is(err, auth.ErrMissingToken):
		return "Invalid token"

	case errors.Is(err, ErrUnsupportedMediaType):
		return "Content-Type must be multipart/form-data or application/octet-stream"

	case errors.Is(err, ingest.ErrOversize), errors.As(err, &maxBytesErr):
		return "File too large"

	case errors.Is(err, ingest.ErrEmptyPayload), errors.Is(err, shared.ErrEmptyBody):
		return "Empty request"

	case errors.As(err, &validationErr):
		return fmt.Sprintf("Invalid %s: %s", validationErr.Field, validationErr.Message)

	case errors.As(err, &validationErrs):
		return SanitizeValidationError(validationErrs)

	case isBadRequest(err):
		return "Malformed request body"

	case errors.Is(err, store.ErrJobNotFound):
		return "Job not found"

	case errors.Is(err, store.ErrResultNotFound):
		return "Result not found"

	case errors.Is(err, service.ErrJobNotFinished):
		return "Job not finished"

	case errors.Is(err, task.ErrQueueFull), errors.Is(err, task.ErrQueueClosed):
		return "Service is busy, try again later"

	default:
		return "An unexpected error occurred"
	}
}

// SanitizeValidationError turns validator errors into a message naming the
// first offending field without echoing the submitted value.
func SanitizeValidationError(errs validator.ValidationErrors) string {
	if len(errs) == 0 {
		return "Validation error"
	}
	fe := errs[0]
	return fmt.Sprintf("Invalid %s: %s", lowerFirst(fe.Field()), getValidationTagMessage(fe.Tag()))
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

// getValidationTagMessage maps validation tags to user-friendly error messages
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

// HandleAPIError writes the status and safe message for err. fallback
// replaces the generic message of unexpected errors when set.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	status := MapErrorToStatusCode(err)
	message := GetSafeErrorMessage(err)
	if status == http.StatusInternalServerError && fallback != "" {
		message = fallback
	}
	shared.RespondWithErrorAndLog(w, r, status, message, err)
}
