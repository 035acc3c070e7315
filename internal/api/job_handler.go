package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/taskconvertai/taskconvert-api/internal/api/shared"
	"github.com/taskconvertai/taskconvert-api/internal/domain"
	"github.com/taskconvertai/taskconvert-api/internal/ingest"
	"github.com/taskconvertai/taskconvert-api/internal/platform/logger"
	"github.com/taskconvertai/taskconvert-api/internal/service"
	"github.com/taskconvertai/taskconvert-api/internal/store"
	"github.com/taskconvertai/taskconvert-api/internal/task"
)

// DefaultMaxTaskBodyBytes caps the body of POST /task.
const DefaultMaxTaskBodyBytes int64 = 1 << 20

// JobService is the subset of the job service used by the handlers.
type JobService interface {
	CreateAudioJob(ctx context.Context, ownerID string, audio task.AudioArtifact) (*domain.Job, error)
	CreateTaskJob(ctx context.Context, ownerID string, req domain.TaskRequest) (*domain.Job, error)
	GetJob(ctx context.Context, id string) (*domain.Job, error)
	ListJobs(ctx context.Context, ownerID string) ([]*domain.Job, error)
	GetResult(ctx context.Context, id string) (service.JobResult, error)
}

var _ JobService = (*service.JobService)(nil)

// Uploader stores an inbound audio stream on local disk.
type Uploader interface {
	Ingest(ctx context.Context, body io.Reader, framing ingest.Framing) (*ingest.Artifact, error)
}

var _ Uploader = (*ingest.Ingester)(nil)

// JobHandler handles the job HTTP endpoints.
type JobHandler struct {
	jobs         JobService
	uploader     Uploader
	maxTaskBytes int64
	logger       *slog.Logger
}

// NewJobHandler creates a JobHandler. maxTaskBytes <= 0 selects
// DefaultMaxTaskBodyBytes.
func NewJobHandler(jobs JobService, uploader Uploader, maxTaskBytes int64, logger *slog.Logger) *JobHandler {
	if logger == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for JobHandler")
	}
	if maxTaskBytes <= 0 {
		maxTaskBytes = DefaultMaxTaskBodyBytes
	}
	return &JobHandler{
		jobs:         jobs,
		uploader:     uploader,
		maxTaskBytes: maxTaskBytes,
		logger:       logger.With(slog.String("component", "job_handler")),
	}
}

// RegisterRoutes mounts the job endpoints on r.
func (h *JobHandler) RegisterRoutes(r chi.Router) {
	r.Post("/audio", h.CreateAudioJob)
	r.Post("/task", h.CreateTaskJob)
	r.Get("/jobs", h.ListJobs)
	r.Get("/jobs/{jobId}", h.GetJob)
	r.Get("/jobs/{jobId}/result", h.GetResult)
}

// Health handles GET /health.
func (h *JobHandler) Health(w http.ResponseWriter, r *http.Request) {
	shared.RespondWithText(w, http.StatusOK, "OK")
}

// CreateAudioJob handles POST /audio. The body is streamed to disk by the
// uploader before the job is created; the request is never buffered.
func (h *JobHandler) CreateAudioJob(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	ownerID := ownerFromRequest(r)
	if ownerID == "" {
		HandleAPIError(w, r, domain.NewValidationError(OwnerQueryParam, "is required", domain.ErrValidation), "")
		return
	}

	framing, err := uploadFraming(r)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	artifact, err := h.uploader.Ingest(r.Context(), r.Body, framing)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to receive upload")
		return
	}

	log.Debug("upload received",
		slog.String("owner_id", ownerID),
		slog.Int64("size", artifact.Size),
		slog.Int("stalls", artifact.Stalls))

	job, err := h.jobs.CreateAudioJob(r.Context(), ownerID, artifact)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to create job")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, JobCreatedResponse{JobID: job.ID})
}

// uploadFraming selects how the upload body is framed from Content-Type.
func uploadFraming(r *http.Request) (ingest.Framing, error) {
	mt, params := mediaType(r)
	switch {
	case mt == "multipart/form-data":
		if params["boundary"] == "" {
			return nil, ingest.ErrMalformedMultipart
		}
		return ingest.FramingMultipart{Boundary: params["boundary"]}, nil
	case mt == "application/octet-stream", strings.HasPrefix(mt, "audio/"):
		return ingest.FramingRaw{FileName: dispositionFileName(r)}, nil
	default:
		return nil, ErrUnsupportedMediaType
	}
}

// CreateTaskJob handles POST /task. A JSON body is decoded as a
// TaskRequest; any other body is taken as the description text.
func (h *JobHandler) CreateTaskJob(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	ownerID := ownerFromRequest(r)
	if ownerID == "" {
		HandleAPIError(w, r, domain.NewValidationError(OwnerQueryParam, "is required", domain.ErrValidation), "")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxTaskBytes)

	req, err := h.decodeTaskRequest(r)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	job, err := h.jobs.CreateTaskJob(r.Context(), ownerID, req)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to create job")
		return
	}

	log.Debug("task job created", slog.String("job_id", job.ID), slog.String("owner_id", ownerID))
	shared.RespondWithJSON(w, r, http.StatusOK, JobCreatedResponse{JobID: job.ID})
}

func (h *JobHandler) decodeTaskRequest(r *http.Request) (domain.TaskRequest, error) {
	if mt, _ := mediaType(r); mt == "application/json" {
		var body TaskRequest
		if err := shared.DecodeJSON(r, &body); err != nil {
			return domain.TaskRequest{}, err
		}
		if err := shared.ValidateRequest(&body); err != nil {
			return domain.TaskRequest{}, err
		}
		return body.ToDomain(), nil
	}

	raw, err := io.ReadAll(r.Body)
	if err != nil {
		return domain.TaskRequest{}, err
	}
	text := strings.TrimSpace(string(raw))
	if text == "" {
		return domain.TaskRequest{}, shared.ErrEmptyBody
	}
	return domain.TaskRequest{Description: text}, nil
}

// ListJobs handles GET /jobs. Without an owner every job is listed.
func (h *JobHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.jobs.ListJobs(r.Context(), ownerFromRequest(r))
	if err != nil {
		HandleAPIError(w, r, err, "Failed to list jobs")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, ToJobResponses(jobs))
}

// GetJob handles GET /jobs/{jobId}.
func (h *JobHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	id, err := getPathJobID(r)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	job, err := h.jobs.GetJob(r.Context(), id)
	if err == nil {
		err = checkOwner(r, job)
	}
	if err != nil {
		HandleAPIError(w, r, err, "Failed to get job")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, ToJobResponse(job))
}

// checkOwner hides jobs of other owners from an authenticated caller.
// Without authentication jobs are addressed by id alone.
func checkOwner(r *http.Request, job *domain.Job) error {
	ownerID, ok := shared.OwnerIDFromContext(r.Context())
	if !ok || job.UserID == ownerID {
		return nil
	}
	logger.FromContext(r.Context()).Warn("job requested by another owner",
		slog.String("job_id", job.ID))
	return fmt.Errorf("%w: %s", store.ErrJobNotFound, job.ID)
}

// GetResult handles GET /jobs/{jobId}/result. AUDIO results can be read
// once.
func (h *JobHandler) GetResult(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	id, err := getPathJobID(r)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	// Ownership is checked before the read, which consumes AUDIO results.
	if _, ok := shared.OwnerIDFromContext(r.Context()); ok {
		job, err := h.jobs.GetJob(r.Context(), id)
		if err == nil {
			err = checkOwner(r, job)
		}
		if err != nil {
			HandleAPIError(w, r, err, "Failed to get result")
			return
		}
	}

	result, err := h.jobs.GetResult(r.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrJobNotFinished) {
			log.Debug("result requested before completion", slog.String("job_id", id))
		}
		HandleAPIError(w, r, err, "Failed to get result")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, ToResultResponse(result))
}
