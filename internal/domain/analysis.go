package domain

import "strings"

// TaskItem is one actionable item extracted from analysed text.
type TaskItem struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Assignee    *string `json:"assignee,omitempty"`
}

// MeetingSummary is what the analysis backend returns for a text.
type MeetingSummary struct {
	Summary string     `json:"summary"`
	Tasks   []TaskItem `json:"tasks"`
}

// AnalysisResult is the persisted outcome of a TASK job together with the
// metadata the job was submitted with.
type AnalysisResult struct {
	JobID   string       `json:"-"`
	UserID  string       `json:"-"`
	Summary string       `json:"summary"`
	Tasks   []TaskItem   `json:"tasks"`
	Geo     *GeoLocation `json:"geo,omitempty"`
	Name    *string      `json:"name,omitempty"`
	Group   *string      `json:"group,omitempty"`
	Data    *string      `json:"data,omitempty"`
}

// WithMetadata copies the job metadata onto the result.
func (r AnalysisResult) WithMetadata(m JobMetadata) AnalysisResult {
	r.Geo = m.Geo
	r.Name = m.Name
	r.Group = m.Group
	r.Data = m.Data
	return r
}

// TaskRequest is the payload submitted for a TASK job.
type TaskRequest struct {
	Description string       `json:"description" validate:"required"`
	Geo         *GeoLocation `json:"geo,omitempty"`
	Name        *string      `json:"name,omitempty" validate:"omitempty,max=255"`
	Group       *string      `json:"group,omitempty" validate:"omitempty,max=255"`
	Data        *string      `json:"data,omitempty"`
}

// Validate checks the request independently of any transport validation.
func (r TaskRequest) Validate() error {
	if strings.TrimSpace(r.Description) == "" {
		return NewValidationError("description", "is required", ErrEmptyContent)
	}
	if r.Name != nil && len(*r.Name) > 255 {
		return NewValidationError("name", "must be at most 255 characters", ErrValidation)
	}
	if r.Group != nil && len(*r.Group) > 255 {
		return NewValidationError("group", "must be at most 255 characters", ErrValidation)
	}
	if r.Geo != nil {
		return r.Geo.Validate()
	}
	return nil
}

// Metadata extracts the job metadata carried by the request.
func (r TaskRequest) Metadata() JobMetadata {
	return JobMetadata{Geo: r.Geo, Name: r.Name, Group: r.Group, Data: r.Data}
}
