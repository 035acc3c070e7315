package service

import "github.com/taskconvertai/taskconvert-api/internal/domain"

// JobResult is the outcome of a SUCCEEDED job. The concrete type depends
// on the job type: TranscriptResult for AUDIO, AnalysisResultView for TASK.
type JobResult interface {
	JobType() domain.JobType
	jobResult()
}

// TranscriptResult is the merged transcript of an AUDIO job.
type TranscriptResult struct {
	JobID      string
	Utterances []domain.PublicUtterance
}

// JobType implements JobResult.
func (TranscriptResult) JobType() domain.JobType { return domain.JobTypeAudio }
func (TranscriptResult) jobResult()              {}

// AnalysisResultView is the analysis of a TASK job.
type AnalysisResultView struct {
	domain.AnalysisResult
}

// JobType implements JobResult.
func (AnalysisResultView) JobType() domain.JobType { return domain.JobTypeTask }
func (AnalysisResultView) jobResult()              {}
