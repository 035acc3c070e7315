package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/taskconvertai/taskconvert-api/internal/domain"
	"github.com/taskconvertai/taskconvert-api/internal/platform/logger"
	"github.com/taskconvertai/taskconvert-api/internal/retry"
	"github.com/taskconvertai/taskconvert-api/internal/task"
)

// MaxInlineAudioBytes is the largest recording sent inline with a request.
const MaxInlineAudioBytes = 20 << 20

// Config selects the model and credentials.
type Config struct {
	APIKey    string
	ModelName string
}

// contentGenerator is the part of *genai.Models the backend uses.
type contentGenerator interface {
	GenerateContent(
		ctx context.Context,
		model string,
		contents []*genai.Content,
		config *genai.GenerateContentConfig,
	) (*genai.GenerateContentResponse, error)
}

// Backend calls Gemini for transcription and analysis.
type Backend struct {
	models contentGenerator
	model  string
	logger *slog.Logger
}

var _ task.Backend = (*Backend)(nil)

// NewBackend creates a Backend with a Gemini API client.
func NewBackend(ctx context.Context, cfg Config, logger *slog.Logger) (*Backend, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: API key cannot be empty", ErrInvalidConfig)
	}
	if cfg.ModelName == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty", ErrInvalidConfig)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v", ErrInvalidConfig, err)
	}

	return newBackend(client.Models, cfg.ModelName, logger), nil
}

func newBackend(models contentGenerator, model string, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{
		models: models,
		model:  model,
		logger: logger.With("component", "gemini_backend", "model", model),
	}
}

type transcriptSchema struct {
	Segments []struct {
		Speaker *string  `json:"speaker"`
		Text    string   `json:"text"`
		Start   *float64 `json:"start"`
		End     *float64 `json:"end"`
	} `json:"segments"`
}

// Transcribe sends the recording inline and decodes the returned segments.
func (b *Backend) Transcribe(ctx context.Context, audio task.AudioSource) ([]domain.Utterance, error) {
	data, err := readAudio(audio)
	if err != nil {
		return nil, err
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText("Transcribe this recording."),
			genai.NewPartFromBytes(data, audio.ContentType()),
		}, genai.RoleUser),
	}

	var out transcriptSchema
	if err := b.generate(ctx, "transcribe", transcribeInstruction, contents, &out); err != nil {
		return nil, err
	}

	utterances := make([]domain.Utterance, 0, len(out.Segments))
	for _, s := range out.Segments {
		utterances = append(utterances, domain.Utterance{
			Speaker: s.Speaker,
			Text:    s.Text,
			Start:   s.Start,
			End:     s.End,
		})
	}
	return utterances, nil
}

func readAudio(audio task.AudioSource) ([]byte, error) {
	src, err := audio.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open audio: %w", err)
	}
	defer func() { _ = src.Close() }()

	data, err := io.ReadAll(io.LimitReader(src, MaxInlineAudioBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read audio: %w", err)
	}
	if len(data) > MaxInlineAudioBytes {
		return nil, ErrAudioTooLarge
	}
	return data, nil
}

// Analyze asks for a summary and task list of text.
func (b *Backend) Analyze(ctx context.Context, text string) (*domain.MeetingSummary, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}

	prompt, err := renderAnalyzePrompt(text)
	if err != nil {
		return nil, err
	}

	var out domain.MeetingSummary
	if err := b.generate(ctx, "analyze", analyzeInstruction, genai.Text(prompt), &out); err != nil {
		return nil, err
	}
	if out.Tasks == nil {
		out.Tasks = []domain.TaskItem{}
	}
	return &out, nil
}

func (b *Backend) generate(
	ctx context.Context,
	op string,
	instruction string,
	contents []*genai.Content,
	out any,
) error {
	log := logger.FromContextOrDefault(ctx, b.logger).With("operation", op)

	resp, err := b.models.GenerateContent(ctx, b.model, contents, &genai.GenerateContentConfig{
		ResponseMIMEType:  "application/json",
		SystemInstruction: genai.NewContentFromText(instruction, genai.RoleUser),
	})
	if err != nil {
		log.WarnContext(ctx, "Gemini API call failed", "error", err)
		return classifyAPIError(err)
	}

	if resp == nil || len(resp.Candidates) == 0 {
		return fmt.Errorf("%w: no candidates", ErrInvalidResponse)
	}
	if resp.Candidates[0].FinishReason == genai.FinishReasonSafety {
		return ErrContentBlocked
	}

	text := resp.Text()
	if text == "" {
		return fmt.Errorf("%w: empty content", ErrInvalidResponse)
	}
	if err := json.Unmarshal([]byte(text), out); err != nil {
		return fmt.Errorf("%w: failed to parse JSON response: %v", ErrInvalidResponse, err)
	}

	log.DebugContext(ctx, "Gemini API call succeeded", "response_length", len(text))
	return nil
}

// classifyAPIError marks rate limiting and server errors as transport
// failures. Anything else is returned unchanged.
func classifyAPIError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= http.StatusInternalServerError {
			return fmt.Errorf("%w: gemini returned %d %s: %s",
				retry.ErrTransport, apiErr.Code, apiErr.Status, apiErr.Message)
		}
		return fmt.Errorf("gemini returned %d %s: %w", apiErr.Code, apiErr.Status, err)
	}
	return fmt.Errorf("gemini request failed: %w", err)
}
