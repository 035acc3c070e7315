package api

import (
	"time"

	"github.com/taskconvertai/taskconvert-api/internal/domain"
	"github.com/taskconvertai/taskconvert-api/internal/service"
)

// JobCreatedResponse is returned by the job creation endpoints.
type JobCreatedResponse struct {
	JobID string `json:"jobId"`
}

// JobResponse is the client view of a job.
type JobResponse struct {
	JobID           string           `json:"jobId"`
	SubmitterUserID string           `json:"submitterUserId"`
	Type            domain.JobType   `json:"type"`
	Status          domain.JobStatus `json:"status"`
	CreatedAt       time.Time        `json:"createdAt"`
	UpdatedAt       time.Time        `json:"updatedAt"`
	ErrorMessage    *string          `json:"errorMessage"`
	GeoLatitude     *float64         `json:"geoLatitude,omitempty"`
	GeoLongitude    *float64         `json:"geoLongitude,omitempty"`
	Name            *string          `json:"name,omitempty"`
	Group           *string          `json:"group,omitempty"`
	Data            *string          `json:"data,omitempty"`
}

// TaskRequest is the JSON body accepted by POST /task. A plain text body
// is taken as the description.
type TaskRequest struct {
	Description  string   `json:"description" validate:"required"`
	GeoLatitude  *float64 `json:"geoLatitude,omitempty" validate:"omitempty,gte=-90,lte=90"`
	GeoLongitude *float64 `json:"geoLongitude,omitempty" validate:"omitempty,gte=-180,lte=180"`
	Name         *string  `json:"name,omitempty" validate:"omitempty,max=255"`
	Group        *string  `json:"group,omitempty" validate:"omitempty,max=255"`
	Data         *string  `json:"data,omitempty"`
}

// Validate requires the coordinates to be given together.
func (r TaskRequest) Validate() error {
	if (r.GeoLatitude == nil) != (r.GeoLongitude == nil) {
		return domain.NewValidationError("geo", "latitude and longitude must be given together", domain.ErrValidation)
	}
	return nil
}

// ToDomain converts the request body to the service input.
func (r TaskRequest) ToDomain() domain.TaskRequest {
	req := domain.TaskRequest{
		Description: r.Description,
		Name:        r.Name,
		Group:       r.Group,
		Data:        r.Data,
	}
	if r.GeoLatitude != nil && r.GeoLongitude != nil {
		req.Geo = &domain.GeoLocation{Latitude: *r.GeoLatitude, Longitude: *r.GeoLongitude}
	}
	return req
}

// TaskItemResponse is one extracted task of a TASK result.
type TaskItemResponse struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Assignee    *string `json:"assignee"`
}

// AnalysisResponse is the body of a TASK result.
type AnalysisResponse struct {
	JobID        string             `json:"jobId"`
	Summary      string             `json:"summary"`
	Tasks        []TaskItemResponse `json:"tasks"`
	GeoLatitude  *float64           `json:"geoLatitude,omitempty"`
	GeoLongitude *float64           `json:"geoLongitude,omitempty"`
	Name         *string            `json:"name,omitempty"`
	Group        *string            `json:"group,omitempty"`
	Data         *string            `json:"data,omitempty"`
}

func geoFields(geo *domain.GeoLocation) (*float64, *float64) {
	if geo == nil {
		return nil, nil
	}
	lat, lon := geo.Latitude, geo.Longitude
	return &lat, &lon
}

// ToJobResponse converts a job for output.
func ToJobResponse(job *domain.Job) JobResponse {
	resp := JobResponse{
		JobID:           job.ID,
		SubmitterUserID: job.UserID,
		Type:            job.Type,
		Status:          job.Status,
		CreatedAt:       job.CreatedAt,
		UpdatedAt:       job.UpdatedAt,
		Name:            job.Metadata.Name,
		Group:           job.Metadata.Group,
		Data:            job.Metadata.Data,
	}
	if job.ErrorMessage != "" {
		msg := job.ErrorMessage
		resp.ErrorMessage = &msg
	}
	resp.GeoLatitude, resp.GeoLongitude = geoFields(job.Metadata.Geo)
	return resp
}

// ToJobResponses converts a job list for output.
func ToJobResponses(jobs []*domain.Job) []JobResponse {
	out := make([]JobResponse, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, ToJobResponse(job))
	}
	return out
}

// ToResultResponse renders a job result. AUDIO results are a bare list of
// utterances; TASK results are the analysis object.
func ToResultResponse(result service.JobResult) any {
	switch r := result.(type) {
	case service.TranscriptResult:
		if r.Utterances == nil {
			return []domain.PublicUtterance{}
		}
		return r.Utterances

	case service.AnalysisResultView:
		tasks := make([]TaskItemResponse, 0, len(r.Tasks))
		for _, t := range r.Tasks {
			tasks = append(tasks, TaskItemResponse{Title: t.Title, Description: t.Description, Assignee: t.Assignee})
		}
		resp := AnalysisResponse{
			JobID:   r.JobID,
			Summary: r.Summary,
			Tasks:   tasks,
			Name:    r.Name,
			Group:   r.Group,
			Data:    r.Data,
		}
		resp.GeoLatitude, resp.GeoLongitude = geoFields(r.Geo)
		return resp

	default:
		panic("unhandled job result type")
	}
}
