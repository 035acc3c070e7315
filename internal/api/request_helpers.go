package api

import (
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/taskconvertai/taskconvert-api/internal/api/shared"
	"github.com/taskconvertai/taskconvert-api/internal/domain"
)

// OwnerQueryParam names the query parameter carrying the submitter when
// requests are not authenticated.
const OwnerQueryParam = "userID"

// ownerFromRequest resolves the submitter of a request. The authenticated
// owner wins over the query parameter.
func ownerFromRequest(r *http.Request) string {
	if ownerID, ok := shared.OwnerIDFromContext(r.Context()); ok {
		return ownerID
	}
	return strings.TrimSpace(r.URL.Query().Get(OwnerQueryParam))
}

// getPathJobID extracts the jobId path parameter.
func getPathJobID(r *http.Request) (string, error) {
	id := strings.TrimSpace(chi.URLParam(r, "jobId"))
	if id == "" {
		return "", domain.NewValidationError("jobId", "is required", domain.ErrInvalidID)
	}
	return id, nil
}

// mediaType returns the lower-cased media type and parameters of the
// Content-Type header. A missing or unparsable header yields "".
func mediaType(r *http.Request) (string, map[string]string) {
	header := r.Header.Get("Content-Type")
	if header == "" {
		return "", nil
	}
	mt, params, err := mime.ParseMediaType(header)
	if err != nil {
		return "", nil
	}
	return strings.ToLower(mt), params
}

// dispositionFileName returns the filename of a Content-Disposition
// header, if any.
func dispositionFileName(r *http.Request) string {
	header := r.Header.Get("Content-Disposition")
	if header == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(header)
	if err != nil {
		return ""
	}
	return params["filename"]
}
