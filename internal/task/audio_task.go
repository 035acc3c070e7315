package task

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/taskconvertai/taskconvert-api/internal/domain"
	"github.com/taskconvertai/taskconvert-api/internal/retry"
	"github.com/taskconvertai/taskconvert-api/internal/store"
)

// AudioTask transcribes an ingested recording and stores the merged
// transcript. The temporary audio file is removed when the task ends,
// whatever the outcome.
type AudioTask struct {
	jobID   string
	userID  string
	audio   AudioArtifact
	backend Backend
	caller  *retry.Caller
	results store.ResultStore
	archive Archiver
	logger  *slog.Logger
}

var (
	_ Task      = (*AudioTask)(nil)
	_ Discarder = (*AudioTask)(nil)
)

// JobID returns the job the task works on
func (t *AudioTask) JobID() string {
	return t.jobID
}

// Type returns the job type the task handles
func (t *AudioTask) Type() domain.JobType {
	return domain.JobTypeAudio
}

// Discard removes the audio of a task that will never run.
func (t *AudioTask) Discard() {
	t.audio.Remove()
}

// Execute runs the transcription.
func (t *AudioTask) Execute(ctx context.Context) error {
	defer t.audio.Remove()

	if t.archive != nil {
		if err := t.archive.PutAudio(ctx, t.jobID, t.audio); err != nil {
			t.logger.WarnContext(ctx, "failed to archive audio", "error", err)
		}
	}

	utterances, err := retry.Do(ctx, t.caller, func(ctx context.Context) ([]domain.Utterance, error) {
		return t.backend.Transcribe(ctx, t.audio)
	})
	if err != nil {
		return fmt.Errorf("transcription failed: %w", err)
	}

	merged := domain.MergeUtterances(utterances)
	if err := t.results.SaveTranscription(ctx, t.jobID, t.userID, merged); err != nil {
		return fmt.Errorf("failed to save transcription: %w", err)
	}

	t.logger.InfoContext(ctx, "transcription stored",
		"utterances", len(utterances),
		"merged_utterances", len(merged))
	return nil
}
