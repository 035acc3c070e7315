package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/taskconvertai/taskconvert-api/internal/domain"
	"github.com/taskconvertai/taskconvert-api/internal/retry"
	"github.com/taskconvertai/taskconvert-api/internal/store"
)

// errEmptyAnalysis is returned when the backend answers without a body.
var errEmptyAnalysis = errors.New("backend returned no analysis")

// AnalysisTask summarises submitted text and stores the extracted tasks
// together with the job's metadata.
type AnalysisTask struct {
	jobID    string
	userID   string
	metadata domain.JobMetadata
	text     string
	backend  Backend
	caller   *retry.Caller
	results  store.ResultStore
	logger   *slog.Logger
}

var _ Task = (*AnalysisTask)(nil)

// JobID returns the job the task works on
func (t *AnalysisTask) JobID() string {
	return t.jobID
}

// Type returns the job type the task handles
func (t *AnalysisTask) Type() domain.JobType {
	return domain.JobTypeTask
}

// Execute runs the analysis.
func (t *AnalysisTask) Execute(ctx context.Context) error {
	summary, err := retry.Do(ctx, t.caller, func(ctx context.Context) (*domain.MeetingSummary, error) {
		return t.backend.Analyze(ctx, t.text)
	})
	if err != nil {
		return fmt.Errorf("analysis failed: %w", err)
	}
	if summary == nil {
		return errEmptyAnalysis
	}

	tasks := summary.Tasks
	if tasks == nil {
		tasks = []domain.TaskItem{}
	}
	result := domain.AnalysisResult{
		JobID:   t.jobID,
		UserID:  t.userID,
		Summary: summary.Summary,
		Tasks:   tasks,
	}.WithMetadata(t.metadata)

	if err := t.results.SaveAnalysis(ctx, &result); err != nil {
		return fmt.Errorf("failed to save analysis: %w", err)
	}

	t.logger.InfoContext(ctx, "analysis stored", "tasks", len(tasks))
	return nil
}
